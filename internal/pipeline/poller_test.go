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
	"sync"
	"testing"
	"time"

	"github.com/sbscrm/leadingest/internal/models"
)

// slowMailbox blocks inside ListUnseen until released, to hold a pass open.
type slowMailbox struct {
	mu      sync.Mutex
	lists   int
	started chan struct{}
	gate    chan struct{}
}

func (s *slowMailbox) ListUnseen() ([]models.InboundMessage, error) {
	s.mu.Lock()
	s.lists++
	s.mu.Unlock()
	s.started <- struct{}{}
	<-s.gate
	return nil, nil
}

func (s *slowMailbox) ListRecent(time.Time) ([]models.InboundMessage, error) { return nil, nil }
func (s *slowMailbox) MarkSeen(uint32) error                                 { return nil }

func TestPoller_OverlappingTickIsSkipped(t *testing.T) {
	mbx := &slowMailbox{started: make(chan struct{}), gate: make(chan struct{})}
	proc := NewProcessor(testConfig(), mbx, &fakeExtractor{ops: &ops{}}, &fakeMatcher{ops: &ops{}}, nil, &fakeStore{ops: &ops{}}, nil, nil)
	poller := NewPoller(proc, time.Hour)

	done := make(chan struct{})
	go func() {
		poller.runGuarded(context.Background())
		close(done)
	}()

	// Wait until the first pass is mid-flight, then fire a second tick.
	<-mbx.started
	poller.runGuarded(context.Background())

	close(mbx.gate)
	<-done

	mbx.mu.Lock()
	defer mbx.mu.Unlock()
	if mbx.lists != 1 {
		t.Errorf("expected the overlapping pass to be skipped, got %d listings", mbx.lists)
	}
}
