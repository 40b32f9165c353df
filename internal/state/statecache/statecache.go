// Package statecache publishes read-only InvestigationState snapshots to a
// shared Redis instance so observers in other processes can inspect a
// running investigation without contending with its single in-process
// writer. The cache is write-through and advisory: the State Store remains
// the source of truth, readers tolerate staleness, and a cache failure
// never affects the investigation.
package statecache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/olorin-ai/investigation-engine/internal/ident"
	"github.com/olorin-ai/investigation-engine/internal/state"
)

// Cache publishes snapshots keyed by investigation id.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// New constructs a Cache over client. ttl bounds how long a snapshot
// outlives its last write; zero means 24h.
func New(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Cache{client: client, ttl: ttl}
}

func key(id ident.InvestigationID) string {
	return "investigation:snapshot:" + string(id)
}

// Put publishes a snapshot, replacing any prior one for the same id.
func (c *Cache) Put(ctx context.Context, st *state.InvestigationState) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("statecache: marshal snapshot: %w", err)
	}
	if err := c.client.Set(ctx, key(st.InvestigationID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("statecache: put snapshot: %w", err)
	}
	return nil
}

// Get reads the most recent published snapshot for id. A missing snapshot
// returns redis.Nil wrapped with context.
func (c *Cache) Get(ctx context.Context, id ident.InvestigationID) (*state.InvestigationState, error) {
	data, err := c.client.Get(ctx, key(id)).Bytes()
	if err != nil {
		return nil, fmt.Errorf("statecache: get snapshot %s: %w", id, err)
	}
	var st state.InvestigationState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("statecache: decode snapshot %s: %w", id, err)
	}
	return &st, nil
}

// Delete removes id's snapshot, typically at investigation archival.
func (c *Cache) Delete(ctx context.Context, id ident.InvestigationID) error {
	if err := c.client.Del(ctx, key(id)).Err(); err != nil {
		return fmt.Errorf("statecache: delete snapshot %s: %w", id, err)
	}
	return nil
}
