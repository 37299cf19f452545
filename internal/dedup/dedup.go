// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package dedup provides message deduplication using a Redis SET with TTL.
// This prevents the same email from being ingested twice when poll passes
// overlap or the windowed fetch re-reads a message it already handled.
package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sbscrm/leadingest/internal/models"
)

const (
	// DefaultTTL is how long we remember a seen Message-ID. Mailbox windows
	// only look back minutes, so 7 days is comfortably beyond any replay.
	DefaultTTL = 7 * 24 * time.Hour

	// keyPrefix namespaces dedup keys in Redis.
	keyPrefix = "leadingest:seen:"
)

// Filter tracks which message IDs have already been ingested.
type Filter struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewFilter creates a dedup filter backed by Redis.
func NewFilter(rdb *redis.Client) *Filter {
	return &Filter{
		rdb: rdb,
		ttl: DefaultTTL,
	}
}

// IsNew returns true if the message ID has NOT been seen before.
// If true, the message is marked as seen atomically (SETNX).
// Sentinel message IDs are never deduplicated: a mail without a Message-ID
// header must not shadow every later mail that also lacks one.
func (f *Filter) IsNew(ctx context.Context, messageID string) (bool, error) {
	if messageID == "" || messageID == models.NoMessageID {
		return true, nil
	}

	key := fmt.Sprintf("%s%s", keyPrefix, messageID)

	// SET NX = set only if key does not exist. Returns true if the key was set.
	set, err := f.rdb.SetNX(ctx, key, 1, f.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup SETNX: %w", err)
	}

	return set, nil
}

// Forget removes a message ID from the seen set. Called when processing
// failed after the SETNX, so the message is retried on the next pass instead
// of being silently dropped.
func (f *Filter) Forget(ctx context.Context, messageID string) error {
	if messageID == "" || messageID == models.NoMessageID {
		return nil
	}
	if err := f.rdb.Del(ctx, keyPrefix+messageID).Err(); err != nil {
		return fmt.Errorf("dedup DEL: %w", err)
	}
	return nil
}
