package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"tunebridge/internal/core"
)

func newTestDeezerAdapter(apiURL string) *DeezerAdapter {
	adapter := NewDeezerAdapter(zap.NewNop())
	adapter.apiURL = apiURL
	return adapter
}

func TestDeezerSongByID(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/track/3135556", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{
			"id":3135556,
			"title":"Harder, Better, Faster, Stronger",
			"duration":224,
			"release_date":"2001-03-07",
			"preview":"https://example.test/preview.mp3",
			"artist":{"id":27,"name":"Daft Punk"},
			"contributors":[{"id":27,"name":"Daft Punk"}],
			"album":{"id":302127,"title":"Discovery","cover_medium":"https://example.test/cover.jpg"}
		}`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	adapter := newTestDeezerAdapter(server.URL)

	song, err := adapter.SongByID(context.Background(), "3135556")
	if err != nil {
		t.Fatalf("SongByID: %v", err)
	}
	if song.Title != "Harder, Better, Faster, Stronger" {
		t.Errorf("Title = %q", song.Title)
	}
	if song.DurationSeconds != 224 {
		t.Errorf("DurationSeconds = %f", song.DurationSeconds)
	}
	if song.Album != "Discovery" {
		t.Errorf("Album = %q", song.Album)
	}
	if song.ExternalIDs[core.ProviderDeezer] != "3135556" {
		t.Errorf("ExternalIDs = %v", song.ExternalIDs)
	}
	if len(song.Artists) != 1 || song.Artists[0] != "Daft Punk" {
		t.Errorf("Artists = %v, duplicates should collapse", song.Artists)
	}
}

func TestDeezerErrorInOKResponse(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/track/0", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"error":{"type":"DataException","message":"no data","code":800}}`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	adapter := newTestDeezerAdapter(server.URL)

	_, err := adapter.SongByID(context.Background(), "0")
	if !errors.Is(err, core.ErrNotFound) {
		t.Errorf("expected ErrNotFound for Deezer error object, got %v", err)
	}
}

func TestDeezerSongBySearchRefetchesFullTrack(t *testing.T) {
	var trackFetches int
	mux := http.NewServeMux()
	mux.HandleFunc("/search/track", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("q"); got != "One More Time Daft Punk" {
			t.Errorf("search query = %q", got)
		}
		fmt.Fprint(w, `{"data":[{"id":3135553,"title":"One More Time","duration":320,"artist":{"name":"Daft Punk"}}]}`)
	})
	mux.HandleFunc("/track/3135553", func(w http.ResponseWriter, _ *http.Request) {
		trackFetches++
		fmt.Fprint(w, `{
			"id":3135553,"title":"One More Time","duration":320,
			"artist":{"id":27,"name":"Daft Punk"},
			"album":{"id":302127,"title":"Discovery","cover_medium":""}
		}`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	adapter := newTestDeezerAdapter(server.URL)

	song, err := adapter.SongBySearch(context.Background(), "One More Time Daft Punk")
	if err != nil {
		t.Fatalf("SongBySearch: %v", err)
	}
	if trackFetches != 1 {
		t.Errorf("full track fetched %d times, want 1", trackFetches)
	}
	if song.Album != "Discovery" {
		t.Errorf("Album = %q, search result should be enriched by the full fetch", song.Album)
	}
}

func TestDeezerArtistByIDWithTopTracks(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/artist/27", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"id":27,"name":"Daft Punk","picture_medium":"https://example.test/daft.jpg"}`)
	})
	mux.HandleFunc("/artist/27/top", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"data":[
			{"id":1,"title":"One More Time","duration":320},
			{"id":2,"title":"Get Lucky","duration":369}
		]}`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	adapter := newTestDeezerAdapter(server.URL)

	artist, err := adapter.ArtistByID(context.Background(), "27")
	if err != nil {
		t.Fatalf("ArtistByID: %v", err)
	}
	if artist.Name != "Daft Punk" {
		t.Errorf("Name = %q", artist.Name)
	}
	if len(artist.TopTracks) != 2 {
		t.Fatalf("TopTracks = %v, want 2 entries", artist.TopTracks)
	}
	if artist.TopTracks[0].Provider != core.ProviderDeezer || artist.TopTracks[0].ProviderID != "1" {
		t.Errorf("first top track = %+v", artist.TopTracks[0])
	}
	if artist.ExternalIDs[core.ProviderDeezer] != "27" {
		t.Errorf("ExternalIDs = %v", artist.ExternalIDs)
	}
}

func TestDeezerAlbumByID(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/album/302127", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{
			"id":302127,"title":"Discovery","release_date":"2001-03-07",
			"artist":{"id":27,"name":"Daft Punk"},
			"genres":{"data":[{"name":"Electro"}]},
			"tracks":{"data":[
				{"id":1,"title":"One More Time","duration":320,"artist":{"name":"Daft Punk"}},
				{"id":2,"title":"Aerodynamic","duration":212,"artist":{"name":"Daft Punk"}}
			]}
		}`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	adapter := newTestDeezerAdapter(server.URL)

	album, err := adapter.AlbumByID(context.Background(), "302127")
	if err != nil {
		t.Fatalf("AlbumByID: %v", err)
	}
	if album.Genre != "Electro" {
		t.Errorf("Genre = %q", album.Genre)
	}
	if album.TrackCount() != 2 {
		t.Fatalf("TrackCount = %d", album.TrackCount())
	}
	if album.DurationSeconds() != 532 {
		t.Errorf("DurationSeconds = %f, want 532", album.DurationSeconds())
	}
	if album.SyncID == "" {
		t.Error("SyncID must be set")
	}
}
