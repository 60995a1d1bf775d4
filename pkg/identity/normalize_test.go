package identity

import (
	"reflect"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name        string
		title       string
		artists     []string
		wantTitle   string
		wantArtists []string
	}{
		{
			name:        "plain title untouched",
			title:       "Bohemian Rhapsody",
			artists:     []string{"Queen"},
			wantTitle:   "Bohemian Rhapsody",
			wantArtists: []string{"Queen"},
		},
		{
			name:        "remaster tag stripped, case preserved",
			title:       "Song (Remastered 2011)",
			artists:     []string{"A"},
			wantTitle:   "Song",
			wantArtists: []string{"A"},
		},
		{
			name:        "square brackets stripped",
			title:       "Title [Live at Wembley]",
			artists:     []string{"Band"},
			wantTitle:   "Title",
			wantArtists: []string{"Band"},
		},
		{
			name:        "featured artists pulled from title",
			title:       "Track (feat. B, C)",
			artists:     []string{"A"},
			wantTitle:   "Track",
			wantArtists: []string{"A", "B", "C"},
		},
		{
			name:        "artist list split on separators",
			title:       "Track",
			artists:     []string{"A & B", "C, D", "E and F"},
			wantTitle:   "Track",
			wantArtists: []string{"A", "B", "C", "D", "E", "F"},
		},
		{
			name:        "duplicate artists collapse case-insensitively",
			title:       "Track (feat. queen)",
			artists:     []string{"Queen", "QUEEN"},
			wantTitle:   "Track",
			wantArtists: []string{"Queen"},
		},
		{
			name:        "empty input yields empty result",
			title:       "",
			artists:     nil,
			wantTitle:   "",
			wantArtists: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.title, tt.artists)
			if got.CleanTitle != tt.wantTitle {
				t.Errorf("CleanTitle = %q, want %q", got.CleanTitle, tt.wantTitle)
			}
			if !reflect.DeepEqual(got.AllArtists, tt.wantArtists) {
				t.Errorf("AllArtists = %v, want %v", got.AllArtists, tt.wantArtists)
			}
		})
	}
}

func TestSearchQuery(t *testing.T) {
	tests := []struct {
		name    string
		title   string
		artists []string
		want    string
	}{
		{
			name:    "title plus joined artists",
			title:   "Track (feat. B)",
			artists: []string{"A"},
			want:    "Track A, B",
		},
		{
			name:    "title only when no artists",
			title:   "Instrumental",
			artists: nil,
			want:    "Instrumental",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.title, tt.artists).SearchQuery()
			if got != tt.want {
				t.Errorf("SearchQuery() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFold(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "accents removed", input: "Beyoncé", want: "Beyonce"},
		{name: "whitespace collapsed", input: "  a   b ", want: "a b"},
		{name: "plain ascii untouched", input: "abba", want: "abba"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := fold(tt.input); got != tt.want {
				t.Errorf("fold(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
