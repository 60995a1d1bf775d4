package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"tunebridge/internal/core"
	"tunebridge/pkg/identity"
)

// deezerAPIURL is the public Deezer API base. No authentication required.
const deezerAPIURL = "https://api.deezer.com"

// deezerError is embedded in every Deezer response; the API reports failures
// with HTTP 200 and an error object.
type deezerError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

type deezerTrack struct {
	Error        *deezerError  `json:"error"`
	ID           int64         `json:"id"`
	Title        string        `json:"title"`
	Duration     float64       `json:"duration"`
	ReleaseDate  string        `json:"release_date"`
	Preview      string        `json:"preview"`
	Artist       deezerArtist  `json:"artist"`
	Contributors []deezerArtist `json:"contributors"`
	Album        struct {
		ID    int64  `json:"id"`
		Title string `json:"title"`
		Cover string `json:"cover_medium"`
	} `json:"album"`
}

type deezerArtist struct {
	Error   *deezerError `json:"error"`
	ID      int64        `json:"id"`
	Name    string       `json:"name"`
	Picture string       `json:"picture_medium"`
}

type deezerAlbum struct {
	Error       *deezerError   `json:"error"`
	ID          int64          `json:"id"`
	Title       string         `json:"title"`
	Cover       string         `json:"cover_medium"`
	ReleaseDate string         `json:"release_date"`
	Artist      deezerArtist   `json:"artist"`
	Contributors []deezerArtist `json:"contributors"`
	Genres      struct {
		Data []struct {
			Name string `json:"name"`
		} `json:"data"`
	} `json:"genres"`
	Tracks struct {
		Data []deezerTrack `json:"data"`
	} `json:"tracks"`
}

type deezerTrackList struct {
	Error *deezerError  `json:"error"`
	Data  []deezerTrack `json:"data"`
}

type deezerArtistList struct {
	Error *deezerError   `json:"error"`
	Data  []deezerArtist `json:"data"`
}

type deezerAlbumList struct {
	Error *deezerError  `json:"error"`
	Data  []deezerAlbum `json:"data"`
}

// DeezerAdapter translates Deezer's public JSON API into canonical entities.
type DeezerAdapter struct {
	client *http.Client
	logger *zap.Logger
	apiURL string
}

// NewDeezerAdapter creates a Deezer adapter.
func NewDeezerAdapter(logger *zap.Logger) *DeezerAdapter {
	return &DeezerAdapter{
		client: newHTTPClient(),
		logger: logger,
		apiURL: deezerAPIURL,
	}
}

// Name returns the provider name.
func (a *DeezerAdapter) Name() core.Provider { return core.ProviderDeezer }

// MatchesHost reports whether the host belongs to Deezer.
func (a *DeezerAdapter) MatchesHost(host string) bool {
	return host == "deezer.com" || host == "www.deezer.com" || host == "deezer.page.link"
}

// IDFromURL extracts the Deezer ID from a share link.
func (a *DeezerAdapter) IDFromURL(rawURL string) (string, error) {
	_, id, err := a.parseURL(rawURL)
	return id, err
}

// TypeFromURL extracts the entity kind from a share link.
func (a *DeezerAdapter) TypeFromURL(rawURL string) (core.EntityKind, error) {
	kind, _, err := a.parseURL(rawURL)
	return kind, err
}

// parseURL handles deezer.com/{lang}/{type}/{id} and deezer.com/{type}/{id}.
func (a *DeezerAdapter) parseURL(rawURL string) (core.EntityKind, string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", core.ErrUnsupportedURL, err)
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i, part := range parts {
		var kind core.EntityKind
		switch part {
		case "track":
			kind = core.KindSong
		case "album":
			kind = core.KindAlbum
		case "artist":
			kind = core.KindArtist
		case "playlist":
			kind = core.KindPlaylist
		default:
			continue
		}

		if i == len(parts)-1 || parts[i+1] == "" {
			return "", "", fmt.Errorf("%w: no ID in Deezer URL", core.ErrUnsupportedURL)
		}
		return kind, parts[i+1], nil
	}

	return "", "", fmt.Errorf("%w: unrecognized Deezer path", core.ErrUnsupportedURL)
}

// EntityURL builds a canonical www.deezer.com link.
func (a *DeezerAdapter) EntityURL(id string, kind core.EntityKind) (string, error) {
	var segment string
	switch kind {
	case core.KindSong:
		segment = "track"
	case core.KindAlbum:
		segment = "album"
	case core.KindArtist:
		segment = "artist"
	default:
		return "", fmt.Errorf("%w: cannot build Deezer URL for kind %q", core.ErrUnsupportedURL, kind)
	}
	return fmt.Sprintf("https://www.deezer.com/%s/%s", segment, id), nil
}

// SongByID fetches a track by its Deezer ID.
func (a *DeezerAdapter) SongByID(ctx context.Context, id string) (*core.Song, error) {
	var track deezerTrack
	if err := fetchJSON(ctx, a.client, fmt.Sprintf("%s/track/%s", a.apiURL, url.PathEscape(id)), &track); err != nil {
		return nil, fmt.Errorf("deezer track lookup failed: %w", err)
	}
	if track.Error != nil {
		return nil, fmt.Errorf("%w: deezer track %s: %s", core.ErrNotFound, id, track.Error.Message)
	}
	return a.songFromTrack(&track)
}

// AlbumByID fetches an album with its tracklist.
func (a *DeezerAdapter) AlbumByID(ctx context.Context, id string) (*core.Album, error) {
	var album deezerAlbum
	if err := fetchJSON(ctx, a.client, fmt.Sprintf("%s/album/%s", a.apiURL, url.PathEscape(id)), &album); err != nil {
		return nil, fmt.Errorf("deezer album lookup failed: %w", err)
	}
	if album.Error != nil {
		return nil, fmt.Errorf("%w: deezer album %s: %s", core.ErrNotFound, id, album.Error.Message)
	}
	return a.albumFromAlbum(&album)
}

// ArtistByID fetches an artist with top tracks and albums.
func (a *DeezerAdapter) ArtistByID(ctx context.Context, id string) (*core.Artist, error) {
	var artist deezerArtist
	if err := fetchJSON(ctx, a.client, fmt.Sprintf("%s/artist/%s", a.apiURL, url.PathEscape(id)), &artist); err != nil {
		return nil, fmt.Errorf("deezer artist lookup failed: %w", err)
	}
	if artist.Error != nil {
		return nil, fmt.Errorf("%w: deezer artist %s: %s", core.ErrNotFound, id, artist.Error.Message)
	}

	out, err := a.artistFromArtist(&artist)
	if err != nil {
		return nil, err
	}

	// Top tracks enrich the artist; their absence is not fatal.
	var top deezerTrackList
	topURL := fmt.Sprintf("%s/artist/%s/top?limit=10", a.apiURL, url.PathEscape(id))
	if err := fetchJSON(ctx, a.client, topURL, &top); err == nil && top.Error == nil {
		for i := range top.Data {
			out.TopTracks = append(out.TopTracks, core.TopTrack{
				Name:            top.Data[i].Title,
				Provider:        core.ProviderDeezer,
				ProviderID:      strconv.FormatInt(top.Data[i].ID, 10),
				DurationSeconds: top.Data[i].Duration,
			})
		}
	} else {
		a.logger.Debug("Deezer top tracks unavailable", zap.String("artist", id), zap.Error(err))
	}

	return out, nil
}

// SongBySearch returns the first track matching the query.
func (a *DeezerAdapter) SongBySearch(ctx context.Context, query string) (*core.Song, error) {
	var result deezerTrackList
	reqURL := fmt.Sprintf("%s/search/track?q=%s&limit=1", a.apiURL, url.QueryEscape(query))
	if err := fetchJSON(ctx, a.client, reqURL, &result); err != nil {
		return nil, fmt.Errorf("deezer track search failed: %w", err)
	}
	if result.Error != nil || len(result.Data) == 0 {
		return nil, fmt.Errorf("%w: no Deezer track for %q", core.ErrNotFound, query)
	}
	// Search rows omit album details; fetch the full track.
	return a.SongByID(ctx, strconv.FormatInt(result.Data[0].ID, 10))
}

// AlbumBySearch returns the first album matching the query, fully loaded.
func (a *DeezerAdapter) AlbumBySearch(ctx context.Context, query string) (*core.Album, error) {
	var result deezerAlbumList
	reqURL := fmt.Sprintf("%s/search/album?q=%s&limit=1", a.apiURL, url.QueryEscape(query))
	if err := fetchJSON(ctx, a.client, reqURL, &result); err != nil {
		return nil, fmt.Errorf("deezer album search failed: %w", err)
	}
	if result.Error != nil || len(result.Data) == 0 {
		return nil, fmt.Errorf("%w: no Deezer album for %q", core.ErrNotFound, query)
	}
	return a.AlbumByID(ctx, strconv.FormatInt(result.Data[0].ID, 10))
}

// ArtistBySearch returns the first artist matching the query.
func (a *DeezerAdapter) ArtistBySearch(ctx context.Context, query string) (*core.Artist, error) {
	var result deezerArtistList
	reqURL := fmt.Sprintf("%s/search/artist?q=%s&limit=1", a.apiURL, url.QueryEscape(query))
	if err := fetchJSON(ctx, a.client, reqURL, &result); err != nil {
		return nil, fmt.Errorf("deezer artist search failed: %w", err)
	}
	if result.Error != nil || len(result.Data) == 0 {
		return nil, fmt.Errorf("%w: no Deezer artist for %q", core.ErrNotFound, query)
	}
	return a.ArtistByID(ctx, strconv.FormatInt(result.Data[0].ID, 10))
}

func (a *DeezerAdapter) songFromTrack(track *deezerTrack) (*core.Song, error) {
	if track.Title == "" {
		return nil, errors.New("deezer track has no title")
	}

	artists := make([]string, 0, len(track.Contributors)+1)
	if track.Artist.Name != "" {
		artists = append(artists, track.Artist.Name)
	}
	for _, c := range track.Contributors {
		artists = append(artists, c.Name)
	}

	return &core.Song{
		SyncID:          identity.SongID(track.Title, artists, track.Duration),
		Title:           track.Title,
		Artists:         identity.Normalize(track.Title, artists).AllArtists,
		DurationSeconds: track.Duration,
		Album:           track.Album.Title,
		ReleaseDate:     track.ReleaseDate,
		CoverURL:        track.Album.Cover,
		PreviewURL:      track.Preview,
		ExternalIDs: core.ExternalIDMap{
			core.ProviderDeezer: strconv.FormatInt(track.ID, 10),
		},
	}, nil
}

func (a *DeezerAdapter) albumFromAlbum(album *deezerAlbum) (*core.Album, error) {
	if album.Title == "" {
		return nil, errors.New("deezer album has no title")
	}

	artists := make([]string, 0, len(album.Contributors)+1)
	if album.Artist.Name != "" {
		artists = append(artists, album.Artist.Name)
	}
	for _, c := range album.Contributors {
		artists = append(artists, c.Name)
	}

	out := &core.Album{
		Title:       album.Title,
		Artists:     identity.Normalize(album.Title, artists).AllArtists,
		ReleaseDate: album.ReleaseDate,
		CoverURL:    album.Cover,
		ExternalIDs: core.ExternalIDMap{
			core.ProviderDeezer: strconv.FormatInt(album.ID, 10),
		},
	}
	if len(album.Genres.Data) > 0 {
		out.Genre = album.Genres.Data[0].Name
	}

	for i := range album.Tracks.Data {
		track := &album.Tracks.Data[i]
		trackArtists := []string{track.Artist.Name}
		out.Tracks = append(out.Tracks, core.Song{
			SyncID:          identity.SongID(track.Title, trackArtists, track.Duration),
			Title:           track.Title,
			Artists:         identity.Normalize(track.Title, trackArtists).AllArtists,
			DurationSeconds: track.Duration,
			Album:           album.Title,
			ExternalIDs: core.ExternalIDMap{
				core.ProviderDeezer: strconv.FormatInt(track.ID, 10),
			},
		})
	}

	out.SyncID = identity.AlbumID(out.Title, out.Artists, out.DurationSeconds())
	return out, nil
}

func (a *DeezerAdapter) artistFromArtist(artist *deezerArtist) (*core.Artist, error) {
	if artist.Name == "" {
		return nil, errors.New("deezer artist has no name")
	}

	return &core.Artist{
		SyncID:   identity.ArtistID(artist.Name),
		Name:     artist.Name,
		ImageURL: artist.Picture,
		ExternalIDs: core.ExternalIDMap{
			core.ProviderDeezer: strconv.FormatInt(artist.ID, 10),
		},
	}, nil
}
