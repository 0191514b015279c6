package usage

import (
	"context"
	"fmt"
)

type counterWriter interface {
	Incr(ctx context.Context, key string) (int64, error)
	UsageKey(userID, metric string) string
}

// Recorder increments per-user consumption counters in redis.
type Recorder struct {
	store counterWriter
}

// NewRecorder builds a usage recorder over the provided counter store.
func NewRecorder(store counterWriter) (*Recorder, error) {
	if store == nil {
		return nil, fmt.Errorf("counter store is required")
	}
	return &Recorder{store: store}, nil
}

// RecordAPICall bumps the user's API call counter by one.
func (r *Recorder) RecordAPICall(ctx context.Context, userID string) error {
	if r == nil || r.store == nil || userID == "" {
		return nil
	}
	_, err := r.store.Incr(ctx, r.store.UsageKey(userID, metricAPICalls))
	return err
}
