package store

import (
	"strings"

	"tunebridge/internal/core"
)

// Merge rules are additive: external ID maps only grow, list items are never
// removed, and descriptive fields are never overwritten once set.

// mergeExternalIDs combines the maps; existing entries win only where present,
// incoming entries for providers not yet known are added.
func mergeExternalIDs(existing, incoming core.ExternalIDMap) core.ExternalIDMap {
	merged := make(core.ExternalIDMap, len(existing)+len(incoming))
	for k, v := range incoming {
		merged[k] = v
	}
	for k, v := range existing {
		merged[k] = v
	}
	return merged
}

// unionStrings returns existing followed by incoming entries not already
// present, deduplicated by exact string.
func unionStrings(existing, incoming []string) []string {
	seen := make(map[string]struct{}, len(existing))
	out := make([]string, 0, len(existing)+len(incoming))
	for _, v := range existing {
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	for _, v := range incoming {
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}

// keepSet returns existing when already set, otherwise incoming.
func keepSet(existing, incoming string) string {
	if existing != "" {
		return existing
	}
	return incoming
}

func MergeSongs(existing, incoming *core.Song) core.Song {
	merged := *incoming
	merged.ExternalIDs = mergeExternalIDs(existing.ExternalIDs, incoming.ExternalIDs)
	merged.Artists = unionStrings(existing.Artists, incoming.Artists)
	merged.ReleaseDate = keepSet(existing.ReleaseDate, incoming.ReleaseDate)
	merged.Album = keepSet(existing.Album, incoming.Album)
	merged.Genre = keepSet(existing.Genre, incoming.Genre)
	merged.CoverURL = keepSet(existing.CoverURL, incoming.CoverURL)
	merged.PreviewURL = keepSet(existing.PreviewURL, incoming.PreviewURL)
	return merged
}

func MergeAlbums(existing, incoming *core.Album) core.Album {
	merged := *incoming
	merged.ExternalIDs = mergeExternalIDs(existing.ExternalIDs, incoming.ExternalIDs)
	merged.Artists = unionStrings(existing.Artists, incoming.Artists)
	merged.ReleaseDate = keepSet(existing.ReleaseDate, incoming.ReleaseDate)
	merged.Genre = keepSet(existing.Genre, incoming.Genre)
	merged.CoverURL = keepSet(existing.CoverURL, incoming.CoverURL)

	// Tracklist: first-write-wins per title, new tracks appended in order.
	seen := make(map[string]struct{}, len(existing.Tracks))
	tracks := make([]core.Song, 0, len(existing.Tracks)+len(incoming.Tracks))
	for i := range existing.Tracks {
		key := strings.ToLower(existing.Tracks[i].Title)
		if _, ok := seen[key]; !ok {
			seen[key] = struct{}{}
			tracks = append(tracks, existing.Tracks[i])
		}
	}
	for i := range incoming.Tracks {
		key := strings.ToLower(incoming.Tracks[i].Title)
		if _, ok := seen[key]; !ok {
			seen[key] = struct{}{}
			tracks = append(tracks, incoming.Tracks[i])
		}
	}
	merged.Tracks = tracks

	return merged
}

func MergeArtists(existing, incoming *core.Artist) core.Artist {
	merged := *incoming
	merged.ExternalIDs = mergeExternalIDs(existing.ExternalIDs, incoming.ExternalIDs)
	merged.Genre = keepSet(existing.Genre, incoming.Genre)
	merged.ImageURL = keepSet(existing.ImageURL, incoming.ImageURL)

	// Top tracks: first-write-wins per track name.
	seenTracks := make(map[string]struct{}, len(existing.TopTracks))
	topTracks := make([]core.TopTrack, 0, len(existing.TopTracks)+len(incoming.TopTracks))
	for _, t := range existing.TopTracks {
		key := strings.ToLower(t.Name)
		if _, ok := seenTracks[key]; !ok {
			seenTracks[key] = struct{}{}
			topTracks = append(topTracks, t)
		}
	}
	for _, t := range incoming.TopTracks {
		key := strings.ToLower(t.Name)
		if _, ok := seenTracks[key]; !ok {
			seenTracks[key] = struct{}{}
			topTracks = append(topTracks, t)
		}
	}
	merged.TopTracks = topTracks

	// Albums: first-write-wins per album sync ID.
	seenAlbums := make(map[string]struct{}, len(existing.Albums))
	albums := make([]core.Album, 0, len(existing.Albums)+len(incoming.Albums))
	for i := range existing.Albums {
		if _, ok := seenAlbums[existing.Albums[i].SyncID]; !ok {
			seenAlbums[existing.Albums[i].SyncID] = struct{}{}
			albums = append(albums, existing.Albums[i])
		}
	}
	for i := range incoming.Albums {
		if _, ok := seenAlbums[incoming.Albums[i].SyncID]; !ok {
			seenAlbums[incoming.Albums[i].SyncID] = struct{}{}
			albums = append(albums, incoming.Albums[i])
		}
	}
	merged.Albums = albums

	return merged
}
