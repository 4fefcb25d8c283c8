package logs

import (
	"context"
	"fmt"
	"time"

	"storyreel/internal/eventlog"
)

// DefaultPoll is how often Follow re-reads the log while waiting.
const DefaultPoll = 250 * time.Millisecond

// Source reads event log entries newer than a sequence number.
type Source interface {
	EventsAfter(ctx context.Context, sessionID string, afterSeq int64) ([]eventlog.Entry, error)
}

// FollowOptions controls one Follow call.
type FollowOptions struct {
	// After is the last sequence number already seen.
	After int64
	// Wait bounds how long Follow blocks when nothing new is available.
	// Zero returns immediately.
	Wait time.Duration
	Poll time.Duration
}

// FollowResult carries new entries and the cursor for the next call.
type FollowResult struct {
	Entries []eventlog.Entry
	After   int64
}

// Follow returns entries appended after opts.After, waiting up to opts.Wait
// for the first one to arrive.
func Follow(ctx context.Context, src Source, sessionID string, opts FollowOptions) (FollowResult, error) {
	result := FollowResult{After: opts.After}
	if src == nil {
		return result, fmt.Errorf("follow %s: no event source", sessionID)
	}
	if opts.Wait < 0 {
		opts.Wait = 0
	}
	if opts.Poll <= 0 {
		opts.Poll = DefaultPoll
	}

	deadline := time.Now().Add(opts.Wait)
	ticker := time.NewTicker(opts.Poll)
	defer ticker.Stop()

	for {
		entries, err := src.EventsAfter(ctx, sessionID, result.After)
		if err != nil {
			return result, fmt.Errorf("read event log: %w", err)
		}
		if len(entries) > 0 {
			result.Entries = entries
			result.After = entries[len(entries)-1].Seq
			return result, nil
		}
		if !time.Now().Before(deadline) {
			return result, nil
		}

		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-ticker.C:
		}
	}
}
