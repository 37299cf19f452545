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

package mailbox

import (
	"log/slog"
	"sync"
	"time"

	"github.com/sbscrm/leadingest/internal/models"
)

// Conn keeps an IMAP session alive across poll passes, dialing lazily and
// redialing after the server drops the connection. IMAP servers routinely
// close idle sessions, so a failed call tears the session down and the next
// call starts fresh.
type Conn struct {
	dial func() (*Client, error)

	mu  sync.Mutex
	cur *Client
}

// NewConn wraps a dial function into a self-healing session.
func NewConn(dial func() (*Client, error)) *Conn {
	return &Conn{dial: dial}
}

func (c *Conn) client() (*Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cur != nil {
		return c.cur, nil
	}
	client, err := c.dial()
	if err != nil {
		return nil, err
	}
	c.cur = client
	return client, nil
}

func (c *Conn) drop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cur != nil {
		_ = c.cur.Close()
		c.cur = nil
		slog.Warn("IMAP session dropped, will redial on next use")
	}
}

// ListUnseen lists unseen messages, tearing the session down on failure so
// the next pass redials.
func (c *Conn) ListUnseen() ([]models.InboundMessage, error) {
	client, err := c.client()
	if err != nil {
		return nil, err
	}
	msgs, err := client.ListUnseen()
	if err != nil {
		c.drop()
		return nil, err
	}
	return msgs, nil
}

// ListRecent lists messages inside the recency window, tearing the session
// down on failure.
func (c *Conn) ListRecent(now time.Time) ([]models.InboundMessage, error) {
	client, err := c.client()
	if err != nil {
		return nil, err
	}
	msgs, err := client.ListRecent(now)
	if err != nil {
		c.drop()
		return nil, err
	}
	return msgs, nil
}

// MarkSeen flags a message seen, tearing the session down on failure.
func (c *Conn) MarkSeen(uid uint32) error {
	client, err := c.client()
	if err != nil {
		return err
	}
	if err := client.MarkSeen(uid); err != nil {
		c.drop()
		return err
	}
	return nil
}

// Close logs out of the current session, if any.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cur == nil {
		return nil
	}
	err := c.cur.Close()
	c.cur = nil
	return err
}
