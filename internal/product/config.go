// Package product implements the Product worker role: per-instance page
// extraction against tabs opened by a General worker, idempotent upsert,
// and audit logging.
package product

import "time"

// Config bundles one Product worker's tunables.
type Config struct {
	ID                string
	PollInterval      time.Duration
	HeartbeatInterval time.Duration
}

func DefaultConfig(id string) Config {
	return Config{
		ID:                id,
		PollInterval:      2 * time.Second,
		HeartbeatInterval: 10 * time.Second,
	}
}
