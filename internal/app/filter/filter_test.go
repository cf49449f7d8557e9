package filter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/guildbox/internal/domain/track"
	"github.com/osa030/guildbox/internal/infra/config"
)

type stubFilter struct {
	name   string
	result Result
	calls  int
}

func (s *stubFilter) Name() string                       { return s.name }
func (s *stubFilter) Description() string                { return "stub" }
func (s *stubFilter) ReturnCodes() []string              { return []string{s.result.Code} }
func (s *stubFilter) ValidateConfig(map[string]any) error { return nil }

func (s *stubFilter) Check(ctx context.Context, t track.Track, queued []track.QueueEntry) Result {
	s.calls++
	return s.result
}

func TestChain_Execute(t *testing.T) {
	t.Run("empty chain accepts", func(t *testing.T) {
		result := NewChain().Execute(context.Background(), track.Track{}, nil)
		assert.True(t, result.Accepted)
	})

	t.Run("first rejection wins", func(t *testing.T) {
		first := &stubFilter{name: "first", result: Accept()}
		second := &stubFilter{name: "second", result: Reject("second_code")}
		third := &stubFilter{name: "third", result: Reject("third_code")}

		chain := NewChain()
		chain.Add(first)
		chain.Add(second)
		chain.Add(third)

		result := chain.Execute(context.Background(), track.Track{}, nil)
		assert.False(t, result.Accepted)
		assert.Equal(t, "second_code", result.Code)
		assert.Equal(t, 1, first.calls)
		assert.Equal(t, 0, third.calls, "filters after a rejection must not run")
		assert.Len(t, chain.Filters(), 3)
	})
}

func TestNewChainFromConfig(t *testing.T) {
	tests := []struct {
		name      string
		cfg       map[string]config.FilterConfig
		wantNames []string
		wantErr   bool
	}{
		{
			name: "enabled filters in name order",
			cfg: map[string]config.FilterConfig{
				"stream_filter":          {Enabled: true},
				"duplicate_title_filter": {Enabled: true},
				"duration_limit_filter":  {Enabled: false},
			},
			wantNames: []string{"duplicate_title_filter", "stream_filter"},
		},
		{
			name: "settings are applied",
			cfg: map[string]config.FilterConfig{
				"duration_limit_filter": {Enabled: true, Settings: map[string]any{"min": "2m", "max": "8m"}},
			},
			wantNames: []string{"duration_limit_filter"},
		},
		{
			name: "invalid settings",
			cfg: map[string]config.FilterConfig{
				"duration_limit_filter": {Enabled: true, Settings: map[string]any{"min": "10m", "max": "5m"}},
			},
			wantErr: true,
		},
		{
			name: "unknown filter",
			cfg: map[string]config.FilterConfig{
				"no_such_filter": {Enabled: true},
			},
			wantErr: true,
		},
		{
			name:      "nothing configured",
			cfg:       nil,
			wantNames: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chain, err := NewChainFromConfig(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)

			names := make([]string, 0)
			for _, f := range chain.Filters() {
				names = append(names, f.Name())
			}
			assert.Equal(t, tt.wantNames, names)
		})
	}
}

func TestChain_ScreensAutoplayCandidates(t *testing.T) {
	chain, err := NewChainFromConfig(map[string]config.FilterConfig{
		"duplicate_title_filter": {Enabled: true},
		"duration_limit_filter":  {Enabled: true, Settings: map[string]any{"min": "1m", "max": "10m"}},
		"stream_filter":          {Enabled: true},
	})
	require.NoError(t, err)

	queued := queueOf(track.Track{ID: "a", Title: "Take On Me", Author: "a-ha", Duration: 4 * time.Minute})

	tests := []struct {
		name      string
		candidate track.Track
		wantCode  string
	}{
		{name: "fresh track", candidate: track.Track{ID: "b", Title: "The Sun Always Shines on T.V.", Author: "a-ha", Duration: 5 * time.Minute}},
		{name: "already queued", candidate: track.Track{ID: "c", Title: "take on me", Author: "a-ha", Duration: 4 * time.Minute}, wantCode: CodeDuplicateTitle},
		{name: "too long", candidate: track.Track{ID: "d", Title: "Ten Hour Mix", Author: "a-ha", Duration: 10 * time.Hour}, wantCode: CodeDuration},
		{name: "live stream", candidate: track.Track{ID: "e", Title: "24/7 Radio", Author: "lofi", IsStream: true}, wantCode: CodeLiveStream},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := chain.Execute(context.Background(), tt.candidate, queued)
			if tt.wantCode == "" {
				assert.True(t, result.Accepted)
				return
			}
			assert.False(t, result.Accepted)
			assert.Equal(t, tt.wantCode, result.Code)
		})
	}
}

func TestRegisteredFilters(t *testing.T) {
	assert.Equal(t, []string{"duplicate_title_filter", "duration_limit_filter", "stream_filter"}, Names())

	for _, name := range Names() {
		f, ok := Lookup(name)
		require.True(t, ok, name)
		assert.Equal(t, name, f.Name())
		assert.NotEmpty(t, f.Description())
		assert.NotEmpty(t, f.ReturnCodes())
	}

	_, ok := Lookup("no_such_filter")
	assert.False(t, ok)
	assert.Panics(t, func() {
		Register("stream_filter", func() Filter { return &StreamFilter{} })
	})
}
