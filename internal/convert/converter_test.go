package convert

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"tunebridge/internal/core"
	"tunebridge/internal/store"
	"tunebridge/pkg/provider"
)

// fakeAdapter is a scriptable target provider. Only the search paths and the
// URL builder are exercised by the converter.
type fakeAdapter struct {
	name core.Provider

	mu          sync.Mutex
	searchCalls int
	song        *core.Song
	searchErr   error
}

func (f *fakeAdapter) Name() core.Provider          { return f.name }
func (f *fakeAdapter) MatchesHost(host string) bool { return false }

func (f *fakeAdapter) IDFromURL(string) (string, error) {
	return "", core.ErrUnsupportedURL
}

func (f *fakeAdapter) TypeFromURL(string) (core.EntityKind, error) {
	return "", core.ErrUnsupportedURL
}

func (f *fakeAdapter) EntityURL(id string, kind core.EntityKind) (string, error) {
	return fmt.Sprintf("https://%s.test/%s/%s", f.name, kind, id), nil
}

func (f *fakeAdapter) SongByID(context.Context, string) (*core.Song, error) {
	return nil, core.ErrNotFound
}

func (f *fakeAdapter) AlbumByID(context.Context, string) (*core.Album, error) {
	return nil, core.ErrNotFound
}

func (f *fakeAdapter) ArtistByID(context.Context, string) (*core.Artist, error) {
	return nil, core.ErrNotFound
}

func (f *fakeAdapter) SongBySearch(context.Context, string) (*core.Song, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searchCalls++
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	clone := *f.song
	clone.ExternalIDs = f.song.ExternalIDs.Clone()
	return &clone, nil
}

func (f *fakeAdapter) AlbumBySearch(context.Context, string) (*core.Album, error) {
	return nil, core.ErrNotFound
}

func (f *fakeAdapter) ArtistBySearch(context.Context, string) (*core.Artist, error) {
	return nil, core.ErrNotFound
}

func (f *fakeAdapter) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.searchCalls
}

type fakeRecorder struct {
	mu             sync.Mutex
	cacheHits      int
	providerCalls  int
	pollRecoveries int
}

func (r *fakeRecorder) RecordCacheHit(string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cacheHits++
}

func (r *fakeRecorder) RecordProviderCall(string, string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providerCalls++
}

func (r *fakeRecorder) RecordPollRecovery() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pollRecoveries++
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(&core.StoreConfig{
		Path:                   ":memory:",
		MaxOpenConns:           1,
		MaxIdleConns:           1,
		BloomCapacity:          1000,
		BloomFalsePositiveRate: 0.001,
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

func fastPollConfig() core.ConvertConfig {
	return core.ConvertConfig{
		PollAttempts:     20,
		PollInitialDelay: 5 * time.Millisecond,
		PollBackoff:      1.2,
		PollMaxWait:      2 * time.Second,
	}
}

func sourceSong() *core.Song {
	return &core.Song{
		SyncID:          "sync-abc",
		Title:           "Yellow",
		Artists:         []string{"Coldplay"},
		DurationSeconds: 266,
		ExternalIDs:     core.ExternalIDMap{core.ProviderSpotify: "abc123"},
	}
}

func targetSong() *core.Song {
	return &core.Song{
		SyncID:          "sync-abc",
		Title:           "Yellow",
		Artists:         []string{"Coldplay"},
		DurationSeconds: 266.4,
		Genre:           "Alternative",
		ExternalIDs:     core.ExternalIDMap{core.ProviderAppleMusic: "y777"},
	}
}

func TestConvertMissSearchesAndStoresBothIDs(t *testing.T) {
	st := newTestStore(t)
	adapter := &fakeAdapter{name: core.ProviderAppleMusic, song: targetSong()}
	recorder := &fakeRecorder{}
	conv := New(provider.NewRegistry(adapter), st, fastPollConfig(), recorder, zap.NewNop())
	ctx := context.Background()

	got, err := conv.Convert(ctx, sourceSong(), core.ProviderAppleMusic)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if adapter.calls() != 1 {
		t.Errorf("search called %d times, want 1", adapter.calls())
	}

	song, ok := got.(*core.Song)
	if !ok {
		t.Fatalf("result is %T", got)
	}
	if song.ExternalIDs[core.ProviderSpotify] != "abc123" || song.ExternalIDs[core.ProviderAppleMusic] != "y777" {
		t.Errorf("result should carry both IDs, got %v", song.ExternalIDs)
	}
	if song.Genre != "Alternative" {
		t.Errorf("target fields should flow into the result, got genre %q", song.Genre)
	}

	stored, err := st.GetSong(ctx, "sync-abc")
	if err != nil {
		t.Fatalf("GetSong: %v", err)
	}
	if stored == nil {
		t.Fatal("conversion must persist a row")
	}
	if stored.ExternalIDs[core.ProviderSpotify] != "abc123" || stored.ExternalIDs[core.ProviderAppleMusic] != "y777" {
		t.Errorf("stored row should hold both IDs, got %v", stored.ExternalIDs)
	}
}

func TestConvertCacheHitSkipsProvider(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	row := sourceSong()
	row.ExternalIDs[core.ProviderAppleMusic] = "cached"
	if _, err := st.UpsertSong(ctx, row); err != nil {
		t.Fatalf("seed upsert: %v", err)
	}

	adapter := &fakeAdapter{name: core.ProviderAppleMusic, song: targetSong()}
	recorder := &fakeRecorder{}
	conv := New(provider.NewRegistry(adapter), st, fastPollConfig(), recorder, zap.NewNop())

	got, err := conv.Convert(ctx, sourceSong(), core.ProviderAppleMusic)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if adapter.calls() != 0 {
		t.Errorf("cache hit must not call the provider, got %d calls", adapter.calls())
	}
	if recorder.cacheHits != 1 {
		t.Errorf("cacheHits = %d, want 1", recorder.cacheHits)
	}
	if got.ExternalIDMap()[core.ProviderAppleMusic] != "cached" {
		t.Errorf("stored row should be returned verbatim, got %v", got.ExternalIDMap())
	}
}

func TestConvertSecondRequestIsCacheHit(t *testing.T) {
	st := newTestStore(t)
	adapter := &fakeAdapter{name: core.ProviderAppleMusic, song: targetSong()}
	conv := New(provider.NewRegistry(adapter), st, fastPollConfig(), nil, zap.NewNop())
	ctx := context.Background()

	if _, err := conv.Convert(ctx, sourceSong(), core.ProviderAppleMusic); err != nil {
		t.Fatalf("first Convert: %v", err)
	}
	if _, err := conv.Convert(ctx, sourceSong(), core.ProviderAppleMusic); err != nil {
		t.Fatalf("second Convert: %v", err)
	}
	if adapter.calls() != 1 {
		t.Errorf("repeat conversion should hit the cache, got %d search calls", adapter.calls())
	}
}

func TestConvertConcurrentCallsConverge(t *testing.T) {
	st := newTestStore(t)
	adapter := &fakeAdapter{name: core.ProviderAppleMusic, song: targetSong()}
	conv := New(provider.NewRegistry(adapter), st, fastPollConfig(), nil, zap.NewNop())
	ctx := context.Background()

	results := make([]core.Entity, 2)
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = conv.Convert(ctx, sourceSong(), core.ProviderAppleMusic)
		}(i)
	}
	wg.Wait()

	for i := 0; i < 2; i++ {
		if errs[i] != nil {
			t.Fatalf("Convert %d: %v", i, errs[i])
		}
		if results[i] == nil || results[i].ID() != "sync-abc" {
			t.Fatalf("Convert %d returned %v, want entity sync-abc", i, results[i])
		}
	}

	// Duplicate searches under concurrency are acceptable, but never more
	// than one per caller.
	if calls := adapter.calls(); calls < 1 || calls > 2 {
		t.Errorf("search called %d times, want 1 or 2", calls)
	}

	stored, err := st.GetSong(ctx, "sync-abc")
	if err != nil {
		t.Fatalf("GetSong: %v", err)
	}
	if stored == nil {
		t.Fatal("conversion must persist a row")
	}
	if stored.ExternalIDs[core.ProviderSpotify] != "abc123" || stored.ExternalIDs[core.ProviderAppleMusic] != "y777" {
		t.Errorf("stored row should converge on both IDs, got %v", stored.ExternalIDs)
	}
}

func TestConvertLeavesSourceEntityUntouched(t *testing.T) {
	st := newTestStore(t)
	adapter := &fakeAdapter{name: core.ProviderAppleMusic, song: targetSong()}
	conv := New(provider.NewRegistry(adapter), st, fastPollConfig(), nil, zap.NewNop())

	source := sourceSong()
	if _, err := conv.Convert(context.Background(), source, core.ProviderAppleMusic); err != nil {
		t.Fatalf("Convert: %v", err)
	}

	if len(source.ExternalIDs) != 1 || source.ExternalIDs[core.ProviderSpotify] != "abc123" {
		t.Errorf("caller's entity was mutated, got %v", source.ExternalIDs)
	}
}

func TestConvertPollRecoversFromConcurrentWriter(t *testing.T) {
	st := newTestStore(t)
	adapter := &fakeAdapter{
		name:      core.ProviderAppleMusic,
		searchErr: errors.New("provider unavailable"),
	}
	recorder := &fakeRecorder{}
	conv := New(provider.NewRegistry(adapter), st, fastPollConfig(), recorder, zap.NewNop())
	ctx := context.Background()

	go func() {
		time.Sleep(30 * time.Millisecond)
		row := sourceSong()
		row.ExternalIDs[core.ProviderAppleMusic] = "landed"
		_, _ = st.UpsertSong(context.Background(), row)
	}()

	got, err := conv.Convert(ctx, sourceSong(), core.ProviderAppleMusic)
	if err != nil {
		t.Fatalf("Convert should recover from the concurrent writer: %v", err)
	}
	if got.ExternalIDMap()[core.ProviderAppleMusic] != "landed" {
		t.Errorf("recovered row = %v", got.ExternalIDMap())
	}
	if recorder.pollRecoveries != 1 {
		t.Errorf("pollRecoveries = %d, want 1", recorder.pollRecoveries)
	}
}

func TestConvertPollExhaustionSurfacesFetchError(t *testing.T) {
	st := newTestStore(t)
	fetchErr := errors.New("provider unavailable")
	adapter := &fakeAdapter{name: core.ProviderAppleMusic, searchErr: fetchErr}
	conv := New(provider.NewRegistry(adapter), st, core.ConvertConfig{
		PollAttempts:     3,
		PollInitialDelay: time.Millisecond,
		PollBackoff:      1.2,
		PollMaxWait:      time.Second,
	}, nil, zap.NewNop())

	_, err := conv.Convert(context.Background(), sourceSong(), core.ProviderAppleMusic)
	if !errors.Is(err, fetchErr) {
		t.Errorf("exhausted poll should return the original fetch error, got %v", err)
	}
	if adapter.calls() != 1 {
		t.Errorf("provider should be called exactly once, got %d", adapter.calls())
	}
}

func TestConvertUnknownTarget(t *testing.T) {
	st := newTestStore(t)
	conv := New(provider.NewRegistry(), st, fastPollConfig(), nil, zap.NewNop())

	_, err := conv.Convert(context.Background(), sourceSong(), core.ProviderDeezer)
	if !errors.Is(err, core.ErrUnsupportedProvider) {
		t.Errorf("expected ErrUnsupportedProvider, got %v", err)
	}
}

func TestEntityURL(t *testing.T) {
	st := newTestStore(t)
	adapter := &fakeAdapter{name: core.ProviderAppleMusic}
	conv := New(provider.NewRegistry(adapter), st, fastPollConfig(), nil, zap.NewNop())

	song := sourceSong()
	song.ExternalIDs[core.ProviderAppleMusic] = "y777"

	url, err := conv.EntityURL(song, core.ProviderAppleMusic)
	if err != nil {
		t.Fatalf("EntityURL: %v", err)
	}
	if url != "https://applemusic.test/song/y777" {
		t.Errorf("url = %q", url)
	}

	_, err = conv.EntityURL(sourceSong(), core.ProviderDeezer)
	if !errors.Is(err, core.ErrMissingExternalID) {
		t.Errorf("expected ErrMissingExternalID, got %v", err)
	}
}
