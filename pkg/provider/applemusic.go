package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"tunebridge/internal/core"
	"tunebridge/pkg/identity"
)

const (
	// itunesLookupURL is the iTunes/Apple Music lookup endpoint.
	itunesLookupURL = "https://itunes.apple.com/lookup"
	// itunesSearchURL is the iTunes/Apple Music search endpoint.
	itunesSearchURL = "https://itunes.apple.com/search"
	// appleMusicPageURL is the base for public Apple Music pages.
	appleMusicPageURL = "https://music.apple.com"
	// millisPerSecond converts iTunes millisecond durations.
	millisPerSecond = 1000.0
)

// jsonLDRegex locates the schema.org blob embedded in Apple Music pages.
var jsonLDRegex = regexp.MustCompile(`(?s)<script[^>]+type="application/ld\+json"[^>]*>(.*?)</script>`)

// itunesResponse is the envelope of both lookup and search responses.
type itunesResponse struct {
	ResultCount int            `json:"resultCount"`
	Results     []itunesResult `json:"results"`
}

// itunesResult is a single lookup/search result. The wrapper type decides
// which fields are populated.
type itunesResult struct {
	WrapperType      string `json:"wrapperType"`
	TrackID          int64  `json:"trackId"`
	TrackName        string `json:"trackName"`
	ArtistID         int64  `json:"artistId"`
	ArtistName       string `json:"artistName"`
	CollectionID     int64  `json:"collectionId"`
	CollectionName   string `json:"collectionName"`
	TrackTimeMillis  int64  `json:"trackTimeMillis"`
	ReleaseDate      string `json:"releaseDate"`
	PrimaryGenreName string `json:"primaryGenreName"`
	ArtworkURL100    string `json:"artworkUrl100"`
	PreviewURL       string `json:"previewUrl"`
}

// AppleMusicAdapter translates iTunes API responses into canonical entities.
// Song pages are scraped as a fallback when the lookup API has no entry for a
// store-specific ID.
type AppleMusicAdapter struct {
	client    *http.Client
	logger    *zap.Logger
	lookupURL string
	searchURL string
	pageURL   string
}

// NewAppleMusicAdapter creates an Apple Music adapter.
func NewAppleMusicAdapter(logger *zap.Logger) *AppleMusicAdapter {
	return &AppleMusicAdapter{
		client:    newHTTPClient(),
		logger:    logger,
		lookupURL: itunesLookupURL,
		searchURL: itunesSearchURL,
		pageURL:   appleMusicPageURL,
	}
}

// Name returns the provider name.
func (a *AppleMusicAdapter) Name() core.Provider { return core.ProviderAppleMusic }

// MatchesHost reports whether the host belongs to Apple Music. Both
// music.apple.com and legacy itunes.apple.com links are supported.
func (a *AppleMusicAdapter) MatchesHost(host string) bool {
	return host == "music.apple.com" || host == "itunes.apple.com" || host == "geo.music.apple.com"
}

// IDFromURL extracts the store ID from an Apple Music link.
func (a *AppleMusicAdapter) IDFromURL(rawURL string) (string, error) {
	_, id, err := a.parseURL(rawURL)
	return id, err
}

// TypeFromURL extracts the entity kind from an Apple Music link.
func (a *AppleMusicAdapter) TypeFromURL(rawURL string) (core.EntityKind, error) {
	kind, _, err := a.parseURL(rawURL)
	return kind, err
}

// parseURL handles the Apple Music URL grammar: album links carry a song ID
// in the ?i= query parameter, direct song/album/artist links carry it as the
// trailing path segment.
func (a *AppleMusicAdapter) parseURL(rawURL string) (core.EntityKind, string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", core.ErrUnsupportedURL, err)
	}

	if songID := u.Query().Get("i"); songID != "" {
		return core.KindSong, songID, nil
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i, part := range parts {
		var kind core.EntityKind
		switch part {
		case "song":
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

		id := parts[len(parts)-1]
		if i == len(parts)-1 || id == "" {
			return "", "", fmt.Errorf("%w: no ID in Apple Music URL", core.ErrUnsupportedURL)
		}
		return kind, strings.TrimPrefix(id, "id"), nil
	}

	return "", "", fmt.Errorf("%w: unrecognized Apple Music path", core.ErrUnsupportedURL)
}

// EntityURL builds a canonical music.apple.com link.
func (a *AppleMusicAdapter) EntityURL(id string, kind core.EntityKind) (string, error) {
	var segment string
	switch kind {
	case core.KindSong:
		segment = "song"
	case core.KindAlbum:
		segment = "album"
	case core.KindArtist:
		segment = "artist"
	default:
		return "", fmt.Errorf("%w: cannot build Apple Music URL for kind %q", core.ErrUnsupportedURL, kind)
	}
	return fmt.Sprintf("%s/us/%s/_/%s", a.pageURL, segment, id), nil
}

// SongByID resolves a song via the lookup API, falling back to the public
// song page when the API has no entry.
func (a *AppleMusicAdapter) SongByID(ctx context.Context, id string) (*core.Song, error) {
	var resp itunesResponse
	reqURL := fmt.Sprintf("%s?id=%s&entity=song", a.lookupURL, url.QueryEscape(id))
	if err := fetchJSON(ctx, a.client, reqURL, &resp); err != nil {
		return nil, fmt.Errorf("apple music lookup failed: %w", err)
	}

	for i := range resp.Results {
		if resp.Results[i].WrapperType == "track" {
			return a.songFromResult(&resp.Results[i])
		}
	}

	a.logger.Debug("Apple Music lookup returned no track, scraping song page",
		zap.String("id", id))
	return a.songFromPage(ctx, id)
}

// AlbumByID resolves an album and its tracklist with a single entity=song
// lookup: the collection row comes first, tracks follow in album order.
func (a *AppleMusicAdapter) AlbumByID(ctx context.Context, id string) (*core.Album, error) {
	var resp itunesResponse
	reqURL := fmt.Sprintf("%s?id=%s&entity=song", a.lookupURL, url.QueryEscape(id))
	if err := fetchJSON(ctx, a.client, reqURL, &resp); err != nil {
		return nil, fmt.Errorf("apple music album lookup failed: %w", err)
	}

	var album *core.Album
	for i := range resp.Results {
		result := &resp.Results[i]
		switch result.WrapperType {
		case "collection":
			if album == nil {
				built, err := a.albumFromResult(result)
				if err != nil {
					return nil, err
				}
				album = built
			}
		case "track":
			if album == nil {
				continue
			}
			song, err := a.songFromResult(result)
			if err != nil {
				continue // skip malformed tracks, the album itself stands
			}
			album.Tracks = append(album.Tracks, *song)
		}
	}

	if album == nil {
		return nil, fmt.Errorf("%w: no Apple Music album for id %q", core.ErrNotFound, id)
	}

	album.SyncID = identity.AlbumID(album.Title, album.Artists, album.DurationSeconds())
	return album, nil
}

// ArtistByID resolves an artist with their top songs.
func (a *AppleMusicAdapter) ArtistByID(ctx context.Context, id string) (*core.Artist, error) {
	var resp itunesResponse
	reqURL := fmt.Sprintf("%s?id=%s&entity=song&limit=10", a.lookupURL, url.QueryEscape(id))
	if err := fetchJSON(ctx, a.client, reqURL, &resp); err != nil {
		return nil, fmt.Errorf("apple music artist lookup failed: %w", err)
	}

	var artist *core.Artist
	for i := range resp.Results {
		result := &resp.Results[i]
		switch result.WrapperType {
		case "artist":
			if artist == nil {
				built, err := a.artistFromResult(result)
				if err != nil {
					return nil, err
				}
				artist = built
			}
		case "track":
			if artist == nil {
				continue
			}
			artist.TopTracks = append(artist.TopTracks, core.TopTrack{
				Name:            result.TrackName,
				Provider:        core.ProviderAppleMusic,
				ProviderID:      strconv.FormatInt(result.TrackID, 10),
				DurationSeconds: float64(result.TrackTimeMillis) / millisPerSecond,
			})
		}
	}

	if artist == nil {
		return nil, fmt.Errorf("%w: no Apple Music artist for id %q", core.ErrNotFound, id)
	}
	return artist, nil
}

// SongBySearch returns the first song matching the query.
func (a *AppleMusicAdapter) SongBySearch(ctx context.Context, query string) (*core.Song, error) {
	var resp itunesResponse
	reqURL := fmt.Sprintf("%s?term=%s&entity=song&limit=1", a.searchURL, url.QueryEscape(query))
	if err := fetchJSON(ctx, a.client, reqURL, &resp); err != nil {
		return nil, fmt.Errorf("apple music search failed: %w", err)
	}
	if resp.ResultCount == 0 || len(resp.Results) == 0 {
		return nil, fmt.Errorf("%w: no Apple Music song for %q", core.ErrNotFound, query)
	}
	return a.songFromResult(&resp.Results[0])
}

// AlbumBySearch returns the first album matching the query, fully loaded.
func (a *AppleMusicAdapter) AlbumBySearch(ctx context.Context, query string) (*core.Album, error) {
	var resp itunesResponse
	reqURL := fmt.Sprintf("%s?term=%s&entity=album&limit=1", a.searchURL, url.QueryEscape(query))
	if err := fetchJSON(ctx, a.client, reqURL, &resp); err != nil {
		return nil, fmt.Errorf("apple music album search failed: %w", err)
	}
	if resp.ResultCount == 0 || len(resp.Results) == 0 {
		return nil, fmt.Errorf("%w: no Apple Music album for %q", core.ErrNotFound, query)
	}
	return a.AlbumByID(ctx, strconv.FormatInt(resp.Results[0].CollectionID, 10))
}

// ArtistBySearch returns the first artist matching the query.
func (a *AppleMusicAdapter) ArtistBySearch(ctx context.Context, query string) (*core.Artist, error) {
	var resp itunesResponse
	reqURL := fmt.Sprintf("%s?term=%s&entity=musicArtist&limit=1", a.searchURL, url.QueryEscape(query))
	if err := fetchJSON(ctx, a.client, reqURL, &resp); err != nil {
		return nil, fmt.Errorf("apple music artist search failed: %w", err)
	}
	if resp.ResultCount == 0 || len(resp.Results) == 0 {
		return nil, fmt.Errorf("%w: no Apple Music artist for %q", core.ErrNotFound, query)
	}
	return a.ArtistByID(ctx, strconv.FormatInt(resp.Results[0].ArtistID, 10))
}

func (a *AppleMusicAdapter) songFromResult(result *itunesResult) (*core.Song, error) {
	if result.TrackName == "" {
		return nil, errors.New("apple music track has no title")
	}

	duration := float64(result.TrackTimeMillis) / millisPerSecond
	artists := []string{result.ArtistName}

	return &core.Song{
		SyncID:          identity.SongID(result.TrackName, artists, duration),
		Title:           result.TrackName,
		Artists:         identity.Normalize(result.TrackName, artists).AllArtists,
		DurationSeconds: duration,
		Album:           result.CollectionName,
		ReleaseDate:     dateOnly(result.ReleaseDate),
		Genre:           result.PrimaryGenreName,
		CoverURL:        result.ArtworkURL100,
		PreviewURL:      result.PreviewURL,
		ExternalIDs: core.ExternalIDMap{
			core.ProviderAppleMusic: strconv.FormatInt(result.TrackID, 10),
		},
	}, nil
}

func (a *AppleMusicAdapter) albumFromResult(result *itunesResult) (*core.Album, error) {
	if result.CollectionName == "" {
		return nil, errors.New("apple music album has no title")
	}

	return &core.Album{
		Title:       result.CollectionName,
		Artists:     identity.Normalize(result.CollectionName, []string{result.ArtistName}).AllArtists,
		ReleaseDate: dateOnly(result.ReleaseDate),
		Genre:       result.PrimaryGenreName,
		CoverURL:    result.ArtworkURL100,
		ExternalIDs: core.ExternalIDMap{
			core.ProviderAppleMusic: strconv.FormatInt(result.CollectionID, 10),
		},
	}, nil
}

func (a *AppleMusicAdapter) artistFromResult(result *itunesResult) (*core.Artist, error) {
	if result.ArtistName == "" {
		return nil, errors.New("apple music artist has no name")
	}

	return &core.Artist{
		SyncID: identity.ArtistID(result.ArtistName),
		Name:   result.ArtistName,
		Genre:  result.PrimaryGenreName,
		ExternalIDs: core.ExternalIDMap{
			core.ProviderAppleMusic: strconv.FormatInt(result.ArtistID, 10),
		},
	}, nil
}

// songFromPage decodes the schema.org JSON-LD blob from the public song page.
// Store-specific IDs occasionally miss the lookup API but still serve a page.
func (a *AppleMusicAdapter) songFromPage(ctx context.Context, id string) (*core.Song, error) {
	pageURL := fmt.Sprintf("%s/us/song/_/%s", a.pageURL, id)
	html, err := fetchHTML(ctx, a.client, pageURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch Apple Music song page: %w", err)
	}

	song, err := parseAppleSongPage(html)
	if err != nil {
		return nil, err
	}
	song.ExternalIDs = core.ExternalIDMap{core.ProviderAppleMusic: id}
	return song, nil
}

// parseAppleSongPage extracts title, artists and the ISO-8601 duration from
// the embedded JSON-LD.
func parseAppleSongPage(html string) (*core.Song, error) {
	m := jsonLDRegex.FindStringSubmatch(html)
	if m == nil {
		return nil, errors.New("no JSON-LD blob in Apple Music page")
	}

	var blob struct {
		Name     string          `json:"name"`
		Duration string          `json:"duration"`
		ByArtist json.RawMessage `json:"byArtist"`
	}
	if err := json.Unmarshal([]byte(m[1]), &blob); err != nil {
		return nil, fmt.Errorf("failed to decode JSON-LD blob: %w", err)
	}
	if blob.Name == "" {
		return nil, errors.New("apple music page has no song title")
	}

	artists := decodeByArtist(blob.ByArtist)

	var duration float64
	if blob.Duration != "" {
		if parsed, err := parseISO8601Duration(blob.Duration); err == nil {
			duration = parsed
		}
	}

	return &core.Song{
		SyncID:          identity.SongID(blob.Name, artists, duration),
		Title:           blob.Name,
		Artists:         identity.Normalize(blob.Name, artists).AllArtists,
		DurationSeconds: duration,
	}, nil
}

// decodeByArtist tolerates both the single-object and array forms of the
// schema.org byArtist field.
func decodeByArtist(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}

	type ldArtist struct {
		Name string `json:"name"`
	}

	var list []ldArtist
	if err := json.Unmarshal(raw, &list); err == nil {
		out := make([]string, 0, len(list))
		for _, a := range list {
			if a.Name != "" {
				out = append(out, a.Name)
			}
		}
		return out
	}

	var single ldArtist
	if err := json.Unmarshal(raw, &single); err == nil && single.Name != "" {
		return []string{single.Name}
	}

	return nil
}

// dateOnly trims iTunes timestamps ("2011-07-27T07:00:00Z") to the date part.
func dateOnly(ts string) string {
	if i := strings.Index(ts, "T"); i > 0 {
		return ts[:i]
	}
	return ts
}
