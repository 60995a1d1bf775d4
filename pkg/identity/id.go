package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"strings"
)

// titleSeparators truncate a title at trailing "remix" / "radio edit" style
// suffixes that bracket stripping does not catch.
var titleSeparators = []string{" - ", " — ", " | "}

// SongID derives the canonical sync ID for a song. The formula is the interop
// contract with previously stored rows: cleaned lowercase title, first
// normalized artist and the duration rounded to a 2-second bucket, joined
// with underscores and hashed with SHA-256.
func SongID(title string, artists []string, durationSeconds float64) string {
	return songOrAlbumID(title, artists, durationSeconds)
}

// AlbumID derives the canonical sync ID for an album using the same formula
// as SongID.
func AlbumID(title string, artists []string, durationSeconds float64) string {
	return songOrAlbumID(title, artists, durationSeconds)
}

// ArtistID derives the canonical sync ID for an artist from the cleaned name
// alone.
func ArtistID(name string) string {
	return digest(cleanForID(name))
}

func songOrAlbumID(title string, artists []string, durationSeconds float64) string {
	cleanTitle := cleanForID(title)

	firstArtist := ""
	if split := dedupe(splitArtists(artists)); len(split) > 0 {
		firstArtist = fold(strings.ToLower(split[0]))
	}

	bucket := durationBucket(durationSeconds)

	return digest(fmt.Sprintf("%s_%s_%d", cleanTitle, firstArtist, bucket))
}

// cleanForID lowercases, strips bracketed content, truncates at the first
// title separator and folds unicode.
func cleanForID(title string) string {
	title = strings.ToLower(title)
	title = stripBrackets(title)

	idx := -1
	for _, sep := range titleSeparators {
		if i := strings.Index(title, sep); i >= 0 && (idx < 0 || i < idx) {
			idx = i
		}
	}
	if idx >= 0 {
		title = strings.TrimSpace(title[:idx])
	}

	return fold(title)
}

// durationBucket rounds a duration to the nearest 2-second bucket. The coarse
// bucket absorbs provider-to-provider encoding jitter (183.4s and 184.0s land
// in the same bucket) while still discriminating distinct tracks.
func durationBucket(durationSeconds float64) int {
	return int(math.Round(durationSeconds/2)) * 2
}

func digest(input string) string {
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}
