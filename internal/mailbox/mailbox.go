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

// Package mailbox wraps the IMAP connection. Fetches always use BODY.PEEK so
// the server never flags a message as seen before the pipeline has persisted
// its lead; MarkSeen is an explicit, separate call.
package mailbox

import (
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"

	"github.com/sbscrm/leadingest/internal/config"
	"github.com/sbscrm/leadingest/internal/models"
)

// Client is an authenticated IMAP session with the configured folder
// selected read-write.
type Client struct {
	cfg config.MailboxConfig
	c   *client.Client

	// total message count of the selected folder, refreshed on Select.
	total uint32
}

// Connect dials the IMAP server over TLS, logs in, and selects the folder.
func Connect(cfg config.MailboxConfig) (*Client, error) {
	address := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	tlsConfig := &tls.Config{
		ServerName: cfg.Host,
	}

	c, err := client.DialTLS(address, tlsConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to IMAP server: %w", err)
	}

	if err := c.Login(cfg.Username, cfg.Password); err != nil {
		_ = c.Logout()
		return nil, fmt.Errorf("IMAP login: %w", err)
	}

	// Read-write select: MarkSeen needs STORE, which EXAMINE mode rejects.
	mbox, err := c.Select(cfg.Folder, false)
	if err != nil {
		_ = c.Logout()
		return nil, fmt.Errorf("select %s: %w", cfg.Folder, err)
	}

	slog.Info("connected to mailbox",
		"host", cfg.Host,
		"folder", cfg.Folder,
		"messages", mbox.Messages,
	)

	return &Client{cfg: cfg, c: c, total: mbox.Messages}, nil
}

// Close logs out of the IMAP session.
func (m *Client) Close() error {
	return m.c.Logout()
}

// ListUnseen returns every message in the folder without the \Seen flag.
func (m *Client) ListUnseen() ([]models.InboundMessage, error) {
	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}

	seqNums, err := m.c.Search(criteria)
	if err != nil {
		return nil, fmt.Errorf("search unseen: %w", err)
	}
	if len(seqNums) == 0 {
		return nil, nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(seqNums...)

	return m.fetch(seqset, len(seqNums))
}

// ListRecent scans the folder backward in sequence batches and returns the
// messages whose internal date falls inside the configured window. Scanning
// stops at the first batch that contains no in-window message, so a large
// folder is never walked end to end. Results come back oldest first.
func (m *Client) ListRecent(now time.Time) ([]models.InboundMessage, error) {
	// Re-select to pick up the current message count.
	mbox, err := m.c.Select(m.cfg.Folder, false)
	if err != nil {
		return nil, fmt.Errorf("reselect %s: %w", m.cfg.Folder, err)
	}
	m.total = mbox.Messages

	cutoff := now.Add(-m.cfg.Window)
	var recent []models.InboundMessage

	for _, batch := range planBatches(m.total, uint32(m.cfg.BatchSize)) {
		seqset := new(imap.SeqSet)
		seqset.AddRange(batch.from, batch.to)

		msgs, err := m.fetch(seqset, int(batch.to-batch.from+1))
		if err != nil {
			return nil, err
		}

		inWindow := 0
		for _, msg := range msgs {
			if !msg.Date.Before(cutoff) {
				recent = append(recent, msg)
				inWindow++
			}
		}

		// Batches run newest to oldest: once a whole batch predates the
		// window, everything earlier does too.
		if inWindow == 0 {
			break
		}
	}

	// Oldest first, so downstream events keep arrival order.
	for i, j := 0, len(recent)-1; i < j; i, j = i+1, j-1 {
		recent[i], recent[j] = recent[j], recent[i]
	}

	return recent, nil
}

// MarkSeen adds the \Seen flag to one message by UID. Called only after the
// pipeline has finished with the message.
func (m *Client) MarkSeen(uid uint32) error {
	seqset := new(imap.SeqSet)
	seqset.AddNum(uid)

	item := imap.FormatFlagsOp(imap.AddFlags, true) // silent update
	flags := []any{imap.SeenFlag}

	if err := m.c.UidStore(seqset, item, flags, nil); err != nil {
		return fmt.Errorf("mark %d as \\Seen: %w", uid, err)
	}

	slog.Debug("marked message seen", "uid", uid)
	return nil
}

// fetch pulls UID, internal date, and the peeked header and text sections
// for every message in the set.
func (m *Client) fetch(seqset *imap.SeqSet, capacity int) ([]models.InboundMessage, error) {
	headerSection := &imap.BodySectionName{
		BodyPartName: imap.BodyPartName{Specifier: imap.HeaderSpecifier},
		Peek:         true,
	}
	textSection := &imap.BodySectionName{
		BodyPartName: imap.BodyPartName{Specifier: imap.TextSpecifier},
		Peek:         true,
	}

	items := []imap.FetchItem{
		imap.FetchUid,
		imap.FetchInternalDate,
		headerSection.FetchItem(),
		textSection.FetchItem(),
	}

	ch := make(chan *imap.Message, capacity)
	if err := m.c.Fetch(seqset, items, ch); err != nil {
		return nil, fmt.Errorf("fetch messages: %w", err)
	}

	var out []models.InboundMessage
	for msg := range ch {
		header := readSection(msg, headerSection)
		body := readSection(msg, textSection)
		if header == nil && body == nil {
			slog.Warn("message fetched without any content", "uid", msg.Uid)
			continue
		}

		out = append(out, models.InboundMessage{
			UID:       msg.Uid,
			Date:      msg.InternalDate,
			RawHeader: header,
			RawBody:   body,
		})
	}

	return out, nil
}

func readSection(msg *imap.Message, section *imap.BodySectionName) []byte {
	literal := msg.GetBody(section)
	if literal == nil {
		return nil
	}
	data, err := io.ReadAll(literal)
	if err != nil {
		slog.Warn("failed to read message section", "uid", msg.Uid, "error", err)
		return nil
	}
	return data
}
