package provider

import (
	"errors"
	"testing"

	"go.uber.org/zap"

	"tunebridge/internal/core"
)

func TestSpotifyURLCodec(t *testing.T) {
	adapter := NewSpotifyAdapter(&core.SpotifyConfig{}, zap.NewNop())

	tests := []struct {
		name     string
		url      string
		wantKind core.EntityKind
		wantID   string
		wantErr  bool
	}{
		{
			name:     "track link",
			url:      "https://open.spotify.com/track/4uLU6hMCjMI75M1A2tKUQC",
			wantKind: core.KindSong,
			wantID:   "4uLU6hMCjMI75M1A2tKUQC",
		},
		{
			name:     "localized track link",
			url:      "https://open.spotify.com/intl-de/track/4uLU6hMCjMI75M1A2tKUQC",
			wantKind: core.KindSong,
			wantID:   "4uLU6hMCjMI75M1A2tKUQC",
		},
		{
			name:     "album link",
			url:      "https://open.spotify.com/album/1DFixLWuPkv3KT3TnV35m3",
			wantKind: core.KindAlbum,
			wantID:   "1DFixLWuPkv3KT3TnV35m3",
		},
		{
			name:     "artist link",
			url:      "https://open.spotify.com/artist/4gzpq5DPGxSnKTe4SA8HAU",
			wantKind: core.KindArtist,
			wantID:   "4gzpq5DPGxSnKTe4SA8HAU",
		},
		{
			name:     "playlist link",
			url:      "https://open.spotify.com/playlist/37i9dQZF1DXcBWIGoYBM5M",
			wantKind: core.KindPlaylist,
			wantID:   "37i9dQZF1DXcBWIGoYBM5M",
		},
		{
			name:    "missing id",
			url:     "https://open.spotify.com/track",
			wantErr: true,
		},
		{
			name:    "unknown path",
			url:     "https://open.spotify.com/show/abc",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, kindErr := adapter.TypeFromURL(tt.url)
			id, idErr := adapter.IDFromURL(tt.url)

			if tt.wantErr {
				if kindErr == nil || idErr == nil {
					t.Fatalf("expected error for %q", tt.url)
				}
				if !errors.Is(kindErr, core.ErrUnsupportedURL) {
					t.Errorf("error should wrap ErrUnsupportedURL, got %v", kindErr)
				}
				return
			}
			if kindErr != nil || idErr != nil {
				t.Fatalf("unexpected error: %v / %v", kindErr, idErr)
			}
			if kind != tt.wantKind || id != tt.wantID {
				t.Errorf("got (%s, %s), want (%s, %s)", kind, id, tt.wantKind, tt.wantID)
			}
		})
	}
}

func TestSpotifyEntityURLRoundTrip(t *testing.T) {
	adapter := NewSpotifyAdapter(&core.SpotifyConfig{}, zap.NewNop())

	for _, kind := range []core.EntityKind{core.KindSong, core.KindAlbum, core.KindArtist} {
		built, err := adapter.EntityURL("someid123", kind)
		if err != nil {
			t.Fatalf("EntityURL(%s): %v", kind, err)
		}
		gotKind, err := adapter.TypeFromURL(built)
		if err != nil {
			t.Fatalf("TypeFromURL(%s): %v", built, err)
		}
		gotID, err := adapter.IDFromURL(built)
		if err != nil {
			t.Fatalf("IDFromURL(%s): %v", built, err)
		}
		if gotKind != kind || gotID != "someid123" {
			t.Errorf("round trip for %s produced (%s, %s)", kind, gotKind, gotID)
		}
	}

	if _, err := adapter.EntityURL("x", core.KindPlaylist); err == nil {
		t.Error("playlist URLs should not be constructable")
	}
}

func TestAppleMusicURLCodec(t *testing.T) {
	adapter := NewAppleMusicAdapter(zap.NewNop())

	tests := []struct {
		name     string
		url      string
		wantKind core.EntityKind
		wantID   string
		wantErr  bool
	}{
		{
			name:     "album link with song query",
			url:      "https://music.apple.com/us/album/some-album/1440857781?i=1440857786",
			wantKind: core.KindSong,
			wantID:   "1440857786",
		},
		{
			name:     "song link",
			url:      "https://music.apple.com/us/song/yellow/1122782283",
			wantKind: core.KindSong,
			wantID:   "1122782283",
		},
		{
			name:     "album link",
			url:      "https://music.apple.com/us/album/parachutes/1122782181",
			wantKind: core.KindAlbum,
			wantID:   "1122782181",
		},
		{
			name:     "artist link",
			url:      "https://music.apple.com/us/artist/coldplay/471744",
			wantKind: core.KindArtist,
			wantID:   "471744",
		},
		{
			name:     "legacy id prefix trimmed",
			url:      "https://itunes.apple.com/us/artist/coldplay/id471744",
			wantKind: core.KindArtist,
			wantID:   "471744",
		},
		{
			name:    "no id segment",
			url:     "https://music.apple.com/us/song",
			wantErr: true,
		},
		{
			name:    "unrecognized path",
			url:     "https://music.apple.com/us/browse",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, kindErr := adapter.TypeFromURL(tt.url)
			id, idErr := adapter.IDFromURL(tt.url)

			if tt.wantErr {
				if kindErr == nil || idErr == nil {
					t.Fatalf("expected error for %q", tt.url)
				}
				return
			}
			if kindErr != nil || idErr != nil {
				t.Fatalf("unexpected error: %v / %v", kindErr, idErr)
			}
			if kind != tt.wantKind || id != tt.wantID {
				t.Errorf("got (%s, %s), want (%s, %s)", kind, id, tt.wantKind, tt.wantID)
			}
		})
	}
}

func TestAppleMusicEntityURLRoundTrip(t *testing.T) {
	adapter := NewAppleMusicAdapter(zap.NewNop())

	for _, kind := range []core.EntityKind{core.KindSong, core.KindAlbum, core.KindArtist} {
		built, err := adapter.EntityURL("1440857786", kind)
		if err != nil {
			t.Fatalf("EntityURL(%s): %v", kind, err)
		}
		gotKind, err := adapter.TypeFromURL(built)
		if err != nil {
			t.Fatalf("TypeFromURL(%s): %v", built, err)
		}
		gotID, err := adapter.IDFromURL(built)
		if err != nil {
			t.Fatalf("IDFromURL(%s): %v", built, err)
		}
		if gotKind != kind || gotID != "1440857786" {
			t.Errorf("round trip for %s produced (%s, %s)", kind, gotKind, gotID)
		}
	}
}

func TestDeezerURLCodec(t *testing.T) {
	adapter := NewDeezerAdapter(zap.NewNop())

	tests := []struct {
		name     string
		url      string
		wantKind core.EntityKind
		wantID   string
		wantErr  bool
	}{
		{
			name:     "track link with language",
			url:      "https://www.deezer.com/en/track/3135556",
			wantKind: core.KindSong,
			wantID:   "3135556",
		},
		{
			name:     "track link without language",
			url:      "https://www.deezer.com/track/3135556",
			wantKind: core.KindSong,
			wantID:   "3135556",
		},
		{
			name:     "album link",
			url:      "https://www.deezer.com/fr/album/302127",
			wantKind: core.KindAlbum,
			wantID:   "302127",
		},
		{
			name:     "artist link",
			url:      "https://www.deezer.com/en/artist/27",
			wantKind: core.KindArtist,
			wantID:   "27",
		},
		{
			name:    "missing id",
			url:     "https://www.deezer.com/en/track",
			wantErr: true,
		},
		{
			name:    "unrecognized path",
			url:     "https://www.deezer.com/en/charts",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, kindErr := adapter.TypeFromURL(tt.url)
			id, idErr := adapter.IDFromURL(tt.url)

			if tt.wantErr {
				if kindErr == nil || idErr == nil {
					t.Fatalf("expected error for %q", tt.url)
				}
				return
			}
			if kindErr != nil || idErr != nil {
				t.Fatalf("unexpected error: %v / %v", kindErr, idErr)
			}
			if kind != tt.wantKind || id != tt.wantID {
				t.Errorf("got (%s, %s), want (%s, %s)", kind, id, tt.wantKind, tt.wantID)
			}
		})
	}
}

func TestRegistryDispatch(t *testing.T) {
	registry := NewRegistry(
		NewSpotifyAdapter(&core.SpotifyConfig{}, zap.NewNop()),
		NewAppleMusicAdapter(zap.NewNop()),
		NewDeezerAdapter(zap.NewNop()),
	)

	tests := []struct {
		name         string
		url          string
		wantProvider core.Provider
		wantErr      bool
	}{
		{name: "spotify host", url: "https://open.spotify.com/track/abc", wantProvider: core.ProviderSpotify},
		{name: "apple host", url: "https://music.apple.com/us/song/x/1", wantProvider: core.ProviderAppleMusic},
		{name: "deezer host", url: "https://www.deezer.com/en/track/1", wantProvider: core.ProviderDeezer},
		{name: "unknown host", url: "https://example.com/track/1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapter, err := registry.ByURL(tt.url)
			if tt.wantErr {
				if !errors.Is(err, core.ErrUnsupportedProvider) {
					t.Fatalf("expected ErrUnsupportedProvider, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if adapter.Name() != tt.wantProvider {
				t.Errorf("dispatched to %s, want %s", adapter.Name(), tt.wantProvider)
			}
		})
	}

	if _, err := registry.ByName("tidal"); !errors.Is(err, core.ErrUnsupportedProvider) {
		t.Errorf("ByName for unknown provider should fail, got %v", err)
	}
	if got := len(registry.Providers()); got != 3 {
		t.Errorf("Providers() returned %d entries, want 3", got)
	}
}
