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

package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Poller runs pipeline passes on a fixed interval. Passes never overlap: if
// a pass is still running when the ticker fires, the tick is skipped rather
// than queued, so a slow mailbox cannot stack up concurrent IMAP sessions.
type Poller struct {
	proc     *Processor
	interval time.Duration

	inflight sync.Mutex
}

// NewPoller creates a poller around the processor.
func NewPoller(proc *Processor, interval time.Duration) *Poller {
	return &Poller{
		proc:     proc,
		interval: interval,
	}
}

// Run executes one pass immediately, then one per interval, until the
// context is cancelled.
func (p *Poller) Run(ctx context.Context) {
	slog.Info("poller started", "interval", p.interval)

	p.runGuarded(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("poller stopped")
			return
		case <-ticker.C:
			p.runGuarded(ctx)
		}
	}
}

func (p *Poller) runGuarded(ctx context.Context) {
	if !p.inflight.TryLock() {
		slog.Warn("previous pass still running, skipping tick")
		return
	}
	defer p.inflight.Unlock()

	passID := uuid.New().String()
	start := time.Now()
	slog.Info("pass started", "pass_id", passID)

	stats, err := p.proc.RunPass(ctx)
	if err != nil {
		slog.Error("pass failed", "pass_id", passID, "error", err)
		return
	}

	slog.Info("pass finished",
		"pass_id", passID,
		"duration", time.Since(start).Round(time.Millisecond),
		"fetched", stats.Fetched,
		"saved", stats.Saved,
		"filtered", stats.Filtered,
		"duplicates", stats.Duplicates,
		"failed", stats.Failed,
	)
}
