package autoplay

import (
	"context"
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/guildbox/internal/app/filter"
	"github.com/osa030/guildbox/internal/domain/track"
	"github.com/osa030/guildbox/internal/infra/config"
	"github.com/osa030/guildbox/internal/infra/lastfm"
	"github.com/osa030/guildbox/internal/infra/youtube"
)

type recommendCall struct {
	artist, title string
}

type fakeRecommender struct {
	mu      sync.Mutex
	byQuery map[recommendCall][]Candidate
	err     error
	calls   []recommendCall
}

func (f *fakeRecommender) Recommend(ctx context.Context, artist, title string, limit int) ([]Candidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	call := recommendCall{artist, title}
	f.calls = append(f.calls, call)
	if f.err != nil {
		return nil, f.err
	}
	return f.byQuery[call], nil
}

func (f *fakeRecommender) Name() string { return "fake" }

type fakeResolver struct {
	tracks map[string]track.Track
	err    map[string]error
}

func (f *fakeResolver) Resolve(ctx context.Context, query string) (*track.Track, error) {
	if err := f.err[query]; err != nil {
		return nil, err
	}
	t, ok := f.tracks[query]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

type rejectTitle string

func (r rejectTitle) Execute(ctx context.Context, t track.Track, queued []track.QueueEntry) filter.Result {
	if t.Title == string(r) {
		return filter.Reject("blocked")
	}
	return filter.Accept()
}

func TestChain_Recommend(t *testing.T) {
	first := &fakeRecommender{byQuery: map[recommendCall][]Candidate{
		{"A", "T"}: {{Title: "One", Artist: "X"}, {Title: "Two", Artist: "Y"}},
	}}
	second := &fakeRecommender{byQuery: map[recommendCall][]Candidate{
		{"A", "T"}: {{Title: "one", Artist: "x"}, {Title: "Three", Artist: "Z"}},
	}}
	failing := &fakeRecommender{err: errors.New("down")}

	t.Run("merges and dedupes", func(t *testing.T) {
		chain := NewChain([]NamedRecommender{{failing, "broken"}, {first, "first"}, {second, "second"}})

		got, err := chain.Recommend(context.Background(), "A", "T", 10)
		require.NoError(t, err)
		assert.Equal(t, []Candidate{
			{Title: "One", Artist: "X"},
			{Title: "Two", Artist: "Y"},
			{Title: "Three", Artist: "Z"},
		}, got)
	})

	t.Run("stops once limit reached", func(t *testing.T) {
		later := &fakeRecommender{}
		chain := NewChain([]NamedRecommender{{first, "first"}, {later, "later"}})

		got, err := chain.Recommend(context.Background(), "A", "T", 2)
		require.NoError(t, err)
		assert.Len(t, got, 2)
		assert.Empty(t, later.calls)
	})

	t.Run("all failing", func(t *testing.T) {
		chain := NewChain([]NamedRecommender{{failing, "broken"}})

		_, err := chain.Recommend(context.Background(), "A", "T", 2)
		assert.Error(t, err)
	})

	t.Run("empty is not an error", func(t *testing.T) {
		chain := NewChain([]NamedRecommender{{&fakeRecommender{}, "empty"}})

		got, err := chain.Recommend(context.Background(), "A", "T", 2)
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestRefiller_Refill(t *testing.T) {
	seed := track.Track{Title: "Daft Punk - One More Time", Author: "Daft Punk"}
	queued := []track.QueueEntry{
		{Index: 1, Track: track.Track{ID: "q1", Title: "Daft Punk - One More Time"}},
		{Index: 2, Track: track.Track{ID: "q2", Title: "Aerodynamic"}},
	}

	rec := &fakeRecommender{byQuery: map[recommendCall][]Candidate{
		{"Daft Punk", "One More Time"}: {
			{Title: "aerodynamic", Artist: "Daft Punk"}, // already queued
			{Title: "Digital Love", Artist: "Daft Punk"},
			{Title: "Unresolvable", Artist: "Nobody"},
			{Title: "Blocked", Artist: "Daft Punk"},
			{Title: "Harder Better Faster Stronger", Artist: "Daft Punk"},
			{Title: "Around the World", Artist: "Daft Punk"},
		},
	}}
	resolver := &fakeResolver{
		tracks: map[string]track.Track{
			"Daft Punk aerodynamic":                   {ID: "r0", Title: "Aerodynamic"},
			"Daft Punk Digital Love":                  {ID: "r1", Title: "Digital Love"},
			"Daft Punk Blocked":                       {ID: "r2", Title: "Blocked"},
			"Daft Punk Harder Better Faster Stronger": {ID: "r3", Title: "Harder Better Faster Stronger"},
			"Daft Punk Around the World":              {ID: "r4", Title: "Around the World"},
		},
		err: map[string]error{"Nobody Unresolvable": errors.New("boom")},
	}

	r := NewRefiller(rec, resolver, rejectTitle("Blocked"), 10)

	got, err := r.Refill(context.Background(), seed, queued, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "r1", got[0].ID)
	assert.Equal(t, "r3", got[1].ID)
	assert.Equal(t, []recommendCall{{"Daft Punk", "One More Time"}}, rec.calls)
}

func TestRefiller_FallsBackToTitleOnly(t *testing.T) {
	rec := &fakeRecommender{byQuery: map[recommendCall][]Candidate{
		{"", "Song"}: {{Title: "Other", Artist: "B"}},
	}}
	resolver := &fakeResolver{tracks: map[string]track.Track{"B Other": {ID: "o", Title: "Other"}}}
	r := NewRefiller(rec, resolver, nil, 0)

	got, err := r.Refill(context.Background(), track.Track{Title: "Song", Author: "A"}, nil, 3)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []recommendCall{{"A", "Song"}, {"", "Song"}}, rec.calls)
}

func TestRefiller_NothingFound(t *testing.T) {
	tests := []struct {
		name string
		rec  *fakeRecommender
		seed track.Track
	}{
		{name: "no recommendations", rec: &fakeRecommender{}, seed: track.Track{Title: "A - B"}},
		{name: "empty title", rec: &fakeRecommender{}, seed: track.Track{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRefiller(tt.rec, &fakeResolver{}, nil, 5)

			got, err := r.Refill(context.Background(), tt.seed, nil, 2)
			require.NoError(t, err)
			assert.Empty(t, got)
		})
	}
}

func TestRefiller_RecommenderError(t *testing.T) {
	r := NewRefiller(&fakeRecommender{err: errors.New("down")}, &fakeResolver{}, nil, 5)

	_, err := r.Refill(context.Background(), track.Track{Title: "A - B"}, nil, 2)
	assert.Error(t, err)
}

func TestRefiller_Cancelled(t *testing.T) {
	rec := &fakeRecommender{byQuery: map[recommendCall][]Candidate{
		{"A", "B"}: {{Title: "C", Artist: "A"}},
	}}
	r := NewRefiller(rec, &fakeResolver{}, nil, 5)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Refill(ctx, track.Track{Title: "A - B"}, nil, 2)
	assert.ErrorIs(t, err, context.Canceled)
}

type fakeLastFm struct {
	similar   []lastfm.SimilarTrack
	search    []lastfm.SearchResult
	gotTrack  string
	gotArtist string
}

func (f *fakeLastFm) GetSimilarTracks(ctx context.Context, trackName, artistName string, limit int) ([]lastfm.SimilarTrack, error) {
	f.gotTrack, f.gotArtist = trackName, artistName
	return f.similar, nil
}

func (f *fakeLastFm) SearchTracks(ctx context.Context, trackName string, limit int) ([]lastfm.SearchResult, error) {
	return f.search, nil
}

func TestLastFmRecommender_Recommend(t *testing.T) {
	client := &fakeLastFm{
		similar: []lastfm.SimilarTrack{
			{Name: "Digital Love", Artist: "Daft Punk", Match: 0.9},
			{Name: "Weak", Artist: "Someone", Match: 0.1},
			{Name: "one more time", Artist: "Daft Punk", Match: 1},
		},
		search: []lastfm.SearchResult{{Name: "One More Time", Artist: "Daft Punk"}},
	}
	r := &LastFmRecommender{client: client, config: LastFmConfig{MinMatch: 0.5}}

	t.Run("artist and title", func(t *testing.T) {
		got, err := r.Recommend(context.Background(), "Daft Punk", "One More Time", 5)
		require.NoError(t, err)
		assert.Equal(t, []Candidate{{Title: "Digital Love", Artist: "Daft Punk"}}, got)
	})

	t.Run("title only seeds from search", func(t *testing.T) {
		_, err := r.Recommend(context.Background(), "", "one more time", 5)
		require.NoError(t, err)
		assert.Equal(t, "Daft Punk", client.gotArtist)
		assert.Equal(t, "One More Time", client.gotTrack)
	})

	t.Run("title only without search match", func(t *testing.T) {
		empty := &LastFmRecommender{client: &fakeLastFm{}}
		got, err := empty.Recommend(context.Background(), "", "unknown", 5)
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestNewLastFmRecommender_Settings(t *testing.T) {
	_, err := NewLastFmRecommender(map[string]any{})
	assert.Error(t, err)

	_, err = NewLastFmRecommender(map[string]any{"api_key": "k", "min_match": 2.0})
	assert.Error(t, err)

	r, err := NewLastFmRecommender(map[string]any{"api_key": "k"})
	require.NoError(t, err)
	assert.Equal(t, 30, r.config.CacheTTLMin)
	assert.Equal(t, "lastfm", r.Name())
}

type fakeMusic struct {
	tracks []youtube.MusicTrack
	query  string
}

func (f *fakeMusic) SearchTracks(ctx context.Context, query string, limit int) ([]youtube.MusicTrack, error) {
	f.query = query
	return f.tracks, nil
}

func TestYouTubeMusicRecommender_Recommend(t *testing.T) {
	music := &fakeMusic{tracks: []youtube.MusicTrack{
		{VideoID: "1", Title: "One More Time", Artists: []string{"Daft Punk"}},
		{VideoID: "2", Title: "Digital Love", Artists: []string{"Daft Punk"}},
		{VideoID: "3", Title: "Veridis Quo", Artists: []string{"Daft Punk"}},
	}}
	r := NewYouTubeMusicRecommender(music)

	got, err := r.Recommend(context.Background(), "Daft Punk", "One More Time", 1)
	require.NoError(t, err)
	assert.Equal(t, "Daft Punk One More Time", music.query)
	assert.Equal(t, []Candidate{{Title: "Digital Love", Artist: "Daft Punk"}}, got)
}

func TestNewChainFromConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.AutoplayConfig
		wantIs  error
		wantMsg string
		wantLen int
	}{
		{name: "no providers", cfg: config.AutoplayConfig{}, wantIs: ErrNoRecommenders},
		{
			name: "lastfm and ytmusic",
			cfg: config.AutoplayConfig{Providers: []config.ProviderConfig{
				{Type: "lastfm", DisplayName: "Last.fm", Settings: map[string]any{"api_key": "k"}},
				{Type: "ytmusic", DisplayName: "YouTube Music"},
			}},
			wantLen: 2,
		},
		{
			name: "unknown type",
			cfg: config.AutoplayConfig{Providers: []config.ProviderConfig{
				{Type: "playlist", DisplayName: "DJ"},
			}},
			wantMsg: "unsupported",
		},
		{
			name: "invalid settings",
			cfg: config.AutoplayConfig{Providers: []config.ProviderConfig{
				{Type: "lastfm", DisplayName: "Last.fm"},
			}},
			wantMsg: "validation",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chain, err := NewChainFromConfig(tt.cfg)
			if tt.wantIs != nil {
				assert.ErrorIs(t, err, tt.wantIs)
				return
			}
			if tt.wantMsg != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantMsg)
				return
			}
			require.NoError(t, err)
			assert.Len(t, chain.recommenders, tt.wantLen)
		})
	}
}
