package provider

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"go.uber.org/zap"
	"golang.org/x/oauth2/clientcredentials"

	"tunebridge/internal/core"
	"tunebridge/pkg/identity"
)

const (
	// spotifyTopTracksCountry selects the market for artist top tracks.
	spotifyTopTracksCountry = "US"
	// spotifyMillisPerSecond converts Spotify's millisecond durations.
	spotifyMillisPerSecond = 1000.0
)

// SpotifyAdapter translates Spotify Web API responses into canonical entities
// using an app-level client-credentials token.
type SpotifyAdapter struct {
	client *spotify.Client
	logger *zap.Logger
}

// NewSpotifyAdapter creates a Spotify adapter. The token is fetched lazily on
// the first API call.
func NewSpotifyAdapter(cfg *core.SpotifyConfig, logger *zap.Logger) *SpotifyAdapter {
	auth := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     spotifyauth.TokenURL,
	}

	httpClient := auth.Client(context.Background())
	httpClient.Timeout = defaultHTTPTimeout

	return &SpotifyAdapter{
		client: spotify.New(httpClient),
		logger: logger,
	}
}

// Name returns the provider name.
func (a *SpotifyAdapter) Name() core.Provider { return core.ProviderSpotify }

// MatchesHost reports whether the host belongs to Spotify.
func (a *SpotifyAdapter) MatchesHost(host string) bool {
	return host == "open.spotify.com" || host == "spotify.com" || host == "play.spotify.com"
}

// IDFromURL extracts the Spotify ID from a share link.
func (a *SpotifyAdapter) IDFromURL(rawURL string) (string, error) {
	_, id, err := a.parseURL(rawURL)
	return id, err
}

// TypeFromURL extracts the entity kind from a share link.
func (a *SpotifyAdapter) TypeFromURL(rawURL string) (core.EntityKind, error) {
	kind, _, err := a.parseURL(rawURL)
	return kind, err
}

// parseURL handles open.spotify.com/{type}/{id} links, including the
// localized /intl-xx/ path prefix.
func (a *SpotifyAdapter) parseURL(rawURL string) (core.EntityKind, string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", core.ErrUnsupportedURL, err)
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) > 0 && strings.HasPrefix(parts[0], "intl-") {
		parts = parts[1:]
	}
	if len(parts) < 2 {
		return "", "", fmt.Errorf("%w: missing type or id in Spotify URL", core.ErrUnsupportedURL)
	}

	kind, ok := spotifyPathKind(parts[0])
	if !ok {
		return "", "", fmt.Errorf("%w: unknown Spotify path %q", core.ErrUnsupportedURL, parts[0])
	}

	id := parts[1]
	if id == "" {
		return "", "", fmt.Errorf("%w: empty Spotify ID", core.ErrUnsupportedURL)
	}

	return kind, id, nil
}

func spotifyPathKind(segment string) (core.EntityKind, bool) {
	switch segment {
	case "track":
		return core.KindSong, true
	case "album":
		return core.KindAlbum, true
	case "artist":
		return core.KindArtist, true
	case "playlist":
		return core.KindPlaylist, true
	}
	return "", false
}

// EntityURL builds the canonical open.spotify.com link for an ID.
func (a *SpotifyAdapter) EntityURL(id string, kind core.EntityKind) (string, error) {
	var segment string
	switch kind {
	case core.KindSong:
		segment = "track"
	case core.KindAlbum:
		segment = "album"
	case core.KindArtist:
		segment = "artist"
	default:
		return "", fmt.Errorf("%w: cannot build Spotify URL for kind %q", core.ErrUnsupportedURL, kind)
	}
	return fmt.Sprintf("https://open.spotify.com/%s/%s", segment, id), nil
}

// SongByID fetches a track and converts it to a canonical song.
func (a *SpotifyAdapter) SongByID(ctx context.Context, id string) (*core.Song, error) {
	track, err := a.client.GetTrack(ctx, spotify.ID(id))
	if err != nil {
		return nil, fmt.Errorf("spotify track lookup failed: %w", err)
	}
	return a.songFromTrack(track)
}

// AlbumByID fetches an album with its tracklist.
func (a *SpotifyAdapter) AlbumByID(ctx context.Context, id string) (*core.Album, error) {
	album, err := a.client.GetAlbum(ctx, spotify.ID(id))
	if err != nil {
		return nil, fmt.Errorf("spotify album lookup failed: %w", err)
	}
	return a.albumFromFull(album)
}

// ArtistByID fetches an artist with top tracks and albums.
func (a *SpotifyAdapter) ArtistByID(ctx context.Context, id string) (*core.Artist, error) {
	artist, err := a.client.GetArtist(ctx, spotify.ID(id))
	if err != nil {
		return nil, fmt.Errorf("spotify artist lookup failed: %w", err)
	}

	out, err := a.artistFromFull(artist)
	if err != nil {
		return nil, err
	}

	// Top tracks and albums enrich the artist; their absence is not fatal.
	if top, topErr := a.client.GetArtistsTopTracks(ctx, spotify.ID(id), spotifyTopTracksCountry); topErr == nil {
		for i := range top {
			out.TopTracks = append(out.TopTracks, core.TopTrack{
				Name:            top[i].Name,
				Provider:        core.ProviderSpotify,
				ProviderID:      string(top[i].ID),
				DurationSeconds: float64(top[i].Duration) / spotifyMillisPerSecond,
			})
		}
	} else {
		a.logger.Debug("Spotify top tracks unavailable", zap.String("artist", id), zap.Error(topErr))
	}

	return out, nil
}

// SongBySearch returns the first track matching the query.
func (a *SpotifyAdapter) SongBySearch(ctx context.Context, query string) (*core.Song, error) {
	result, err := a.client.Search(ctx, query, spotify.SearchTypeTrack, spotify.Limit(1))
	if err != nil {
		return nil, fmt.Errorf("spotify track search failed: %w", err)
	}
	if result.Tracks == nil || len(result.Tracks.Tracks) == 0 {
		return nil, fmt.Errorf("%w: no Spotify track for %q", core.ErrNotFound, query)
	}
	return a.songFromTrack(&result.Tracks.Tracks[0])
}

// AlbumBySearch returns the first album matching the query, fully loaded.
func (a *SpotifyAdapter) AlbumBySearch(ctx context.Context, query string) (*core.Album, error) {
	result, err := a.client.Search(ctx, query, spotify.SearchTypeAlbum, spotify.Limit(1))
	if err != nil {
		return nil, fmt.Errorf("spotify album search failed: %w", err)
	}
	if result.Albums == nil || len(result.Albums.Albums) == 0 {
		return nil, fmt.Errorf("%w: no Spotify album for %q", core.ErrNotFound, query)
	}
	// The search result is a simple album; fetch the full record for tracks.
	return a.AlbumByID(ctx, string(result.Albums.Albums[0].ID))
}

// ArtistBySearch returns the first artist matching the query.
func (a *SpotifyAdapter) ArtistBySearch(ctx context.Context, query string) (*core.Artist, error) {
	result, err := a.client.Search(ctx, query, spotify.SearchTypeArtist, spotify.Limit(1))
	if err != nil {
		return nil, fmt.Errorf("spotify artist search failed: %w", err)
	}
	if result.Artists == nil || len(result.Artists.Artists) == 0 {
		return nil, fmt.Errorf("%w: no Spotify artist for %q", core.ErrNotFound, query)
	}
	return a.ArtistByID(ctx, string(result.Artists.Artists[0].ID))
}

func (a *SpotifyAdapter) songFromTrack(track *spotify.FullTrack) (*core.Song, error) {
	if track.Name == "" {
		return nil, errors.New("spotify track has no title")
	}

	artists := make([]string, 0, len(track.Artists))
	for _, artist := range track.Artists {
		artists = append(artists, artist.Name)
	}

	duration := float64(track.Duration) / spotifyMillisPerSecond

	song := &core.Song{
		SyncID:          identity.SongID(track.Name, artists, duration),
		Title:           track.Name,
		Artists:         identity.Normalize(track.Name, artists).AllArtists,
		DurationSeconds: duration,
		Album:           track.Album.Name,
		ReleaseDate:     track.Album.ReleaseDate,
		PreviewURL:      track.PreviewURL,
		ExternalIDs:     core.ExternalIDMap{core.ProviderSpotify: string(track.ID)},
	}
	if len(track.Album.Images) > 0 {
		song.CoverURL = track.Album.Images[0].URL
	}

	return song, nil
}

func (a *SpotifyAdapter) albumFromFull(album *spotify.FullAlbum) (*core.Album, error) {
	if album.Name == "" {
		return nil, errors.New("spotify album has no title")
	}

	artists := make([]string, 0, len(album.Artists))
	for _, artist := range album.Artists {
		artists = append(artists, artist.Name)
	}

	out := &core.Album{
		Title:       album.Name,
		Artists:     artists,
		ReleaseDate: album.ReleaseDate,
		ExternalIDs: core.ExternalIDMap{core.ProviderSpotify: string(album.ID)},
	}
	if len(album.Genres) > 0 {
		out.Genre = album.Genres[0]
	}
	if len(album.Images) > 0 {
		out.CoverURL = album.Images[0].URL
	}

	for i := range album.Tracks.Tracks {
		track := &album.Tracks.Tracks[i]
		trackArtists := make([]string, 0, len(track.Artists))
		for _, artist := range track.Artists {
			trackArtists = append(trackArtists, artist.Name)
		}
		duration := float64(track.Duration) / spotifyMillisPerSecond
		out.Tracks = append(out.Tracks, core.Song{
			SyncID:          identity.SongID(track.Name, trackArtists, duration),
			Title:           track.Name,
			Artists:         identity.Normalize(track.Name, trackArtists).AllArtists,
			DurationSeconds: duration,
			Album:           album.Name,
			ExternalIDs:     core.ExternalIDMap{core.ProviderSpotify: string(track.ID)},
		})
	}

	out.SyncID = identity.AlbumID(out.Title, out.Artists, out.DurationSeconds())
	return out, nil
}

func (a *SpotifyAdapter) artistFromFull(artist *spotify.FullArtist) (*core.Artist, error) {
	if artist.Name == "" {
		return nil, errors.New("spotify artist has no name")
	}

	out := &core.Artist{
		SyncID:      identity.ArtistID(artist.Name),
		Name:        artist.Name,
		ExternalIDs: core.ExternalIDMap{core.ProviderSpotify: string(artist.ID)},
	}
	if len(artist.Genres) > 0 {
		out.Genre = artist.Genres[0]
	}
	if len(artist.Images) > 0 {
		out.ImageURL = artist.Images[0].URL
	}

	return out, nil
}
