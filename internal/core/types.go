// Package core holds the canonical entity model, configuration and error
// taxonomy shared by the resolution and conversion engine.
package core

import "time"

// Provider identifies a streaming provider.
type Provider string

const (
	ProviderSpotify    Provider = "spotify"
	ProviderAppleMusic Provider = "applemusic"
	ProviderDeezer     Provider = "deezer"
)

// EntityKind tags a canonical entity with its concrete shape. The kind is set
// authoritatively by the adapter that produced the entity and is never
// inferred from field presence.
type EntityKind string

const (
	KindSong     EntityKind = "song"
	KindAlbum    EntityKind = "album"
	KindArtist   EntityKind = "artist"
	KindPlaylist EntityKind = "playlist"
)

// ParseEntityKind maps a request string to an EntityKind.
func ParseEntityKind(s string) (EntityKind, bool) {
	switch EntityKind(s) {
	case KindSong, KindAlbum, KindArtist, KindPlaylist:
		return EntityKind(s), true
	}
	return "", false
}

// ExternalIDMap is a sparse mapping from provider to that provider's native ID
// for one canonical entity. Entries accumulate over time and are never removed
// by a merge.
type ExternalIDMap map[Provider]string

// Clone returns a copy of the map so callers can mutate without aliasing.
func (m ExternalIDMap) Clone() ExternalIDMap {
	out := make(ExternalIDMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Entity is implemented by Song, Album and Artist.
type Entity interface {
	Kind() EntityKind
	ID() string
	ExternalIDMap() ExternalIDMap
}

// Song is the canonical representation of a single track.
type Song struct {
	SyncID          string        `json:"syncId"`
	Title           string        `json:"title"`
	Artists         []string      `json:"artists"`
	DurationSeconds float64       `json:"durationSeconds"`
	Album           string        `json:"album,omitempty"`
	ReleaseDate     string        `json:"releaseDate,omitempty"`
	Genre           string        `json:"genre,omitempty"`
	CoverURL        string        `json:"coverUrl,omitempty"`
	PreviewURL      string        `json:"previewUrl,omitempty"`
	ExternalIDs     ExternalIDMap `json:"externalIds"`
}

func (s *Song) Kind() EntityKind             { return KindSong }
func (s *Song) ID() string                   { return s.SyncID }
func (s *Song) ExternalIDMap() ExternalIDMap { return s.ExternalIDs }

// Album is the canonical representation of an album, owning its tracklist in
// insertion order.
type Album struct {
	SyncID      string        `json:"syncId"`
	Title       string        `json:"title"`
	Artists     []string      `json:"artists"`
	ReleaseDate string        `json:"releaseDate,omitempty"`
	Genre       string        `json:"genre,omitempty"`
	CoverURL    string        `json:"coverUrl,omitempty"`
	Tracks      []Song        `json:"tracks,omitempty"`
	ExternalIDs ExternalIDMap `json:"externalIds"`
}

func (a *Album) Kind() EntityKind             { return KindAlbum }
func (a *Album) ID() string                   { return a.SyncID }
func (a *Album) ExternalIDMap() ExternalIDMap { return a.ExternalIDs }

// TrackCount returns the number of owned tracks.
func (a *Album) TrackCount() int { return len(a.Tracks) }

// DurationSeconds returns the summed duration of the owned tracks.
func (a *Album) DurationSeconds() float64 {
	var total float64
	for i := range a.Tracks {
		total += a.Tracks[i].DurationSeconds
	}
	return total
}

// TopTrack is a lightweight, provider-specific track reference owned by an
// Artist. It is deliberately not a full Song entity.
type TopTrack struct {
	Name            string   `json:"name"`
	Provider        Provider `json:"provider,omitempty"`
	ProviderID      string   `json:"providerId,omitempty"`
	DurationSeconds float64  `json:"durationSeconds,omitempty"`
}

// Artist is the canonical representation of an artist.
type Artist struct {
	SyncID      string        `json:"syncId"`
	Name        string        `json:"name"`
	Genre       string        `json:"genre,omitempty"`
	ImageURL    string        `json:"imageUrl,omitempty"`
	TopTracks   []TopTrack    `json:"topTracks,omitempty"`
	Albums      []Album       `json:"albums,omitempty"`
	ExternalIDs ExternalIDMap `json:"externalIds"`
}

func (a *Artist) Kind() EntityKind             { return KindArtist }
func (a *Artist) ID() string                   { return a.SyncID }
func (a *Artist) ExternalIDMap() ExternalIDMap { return a.ExternalIDs }

// ResolvedLink is the output of the resolution orchestrator: the canonical
// entity plus where it came from.
type ResolvedLink struct {
	Kind     EntityKind `json:"kind"`
	Provider Provider   `json:"provider"`
	Entity   Entity     `json:"entity"`
}

// StoredRow wraps an entity read back from the store with its row timestamps.
type StoredRow struct {
	Entity    Entity
	CreatedAt time.Time
	UpdatedAt time.Time
}
