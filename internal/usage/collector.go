package usage

import (
	"context"
	"fmt"
	"strconv"

	goredis "github.com/redis/go-redis/v9"

	pkgerrors "github.com/meterlane/billingdash-backend/pkg/errors"
)

const (
	metricAPICalls    = "api_calls"
	metricStorageGB   = "storage_gb"
	metricTeamMembers = "team_members"
)

type counterStore interface {
	Get(ctx context.Context, key string) (string, error)
	UsageKey(userID, metric string) string
}

// Collector reads per-user consumption counters from redis.
type Collector struct {
	store counterStore
}

// NewCollector builds a usage collector over the provided counter store.
func NewCollector(store counterStore) (*Collector, error) {
	if store == nil {
		return nil, fmt.Errorf("counter store is required")
	}
	return &Collector{store: store}, nil
}

// Collect returns the current metrics for the user. Missing counters read
// as zero; a store failure surfaces as a dependency error so the presenter
// can select the error state.
func (c *Collector) Collect(ctx context.Context, userID string) (*Metrics, error) {
	if userID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}

	metrics := &Metrics{}
	reads := []struct {
		metric string
		dest   *int64
	}{
		{metricAPICalls, &metrics.APICalls},
		{metricStorageGB, &metrics.StorageGB},
		{metricTeamMembers, &metrics.TeamMembers},
	}

	for _, read := range reads {
		value, err := c.readCounter(ctx, userID, read.metric)
		if err != nil {
			return nil, err
		}
		*read.dest = value
	}

	return metrics, nil
}

func (c *Collector) readCounter(ctx context.Context, userID, metric string) (int64, error) {
	raw, err := c.store.Get(ctx, c.store.UsageKey(userID, metric))
	if err != nil {
		if err == goredis.Nil {
			return 0, nil
		}
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read usage counter")
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("parse usage counter %s", metric))
	}
	return value, nil
}
