package filter

import (
	"context"

	"github.com/osa030/guildbox/internal/domain/track"
)

// StreamFilter rejects live streams, which never end on their own.
type StreamFilter struct{}

func (f *StreamFilter) Name() string {
	return "stream_filter"
}

func (f *StreamFilter) Description() string {
	return "Rejects live streams"
}

func (f *StreamFilter) ReturnCodes() []string {
	return []string{CodeLiveStream}
}

func (f *StreamFilter) ValidateConfig(settings map[string]any) error {
	return nil
}

func (f *StreamFilter) Check(ctx context.Context, t track.Track, queued []track.QueueEntry) Result {
	if t.IsStream {
		return Reject(CodeLiveStream)
	}
	return Accept()
}

func init() {
	Register("stream_filter", func() Filter {
		return &StreamFilter{}
	})
}
