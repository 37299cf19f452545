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

// Package pipeline orchestrates one pass over the mailbox: fetch, decode,
// extract, validate, match, persist, publish, mark seen — in that order.
// A message is only flagged \Seen on the server after its lead is durably
// persisted (or after it was deliberately dropped), so a crash mid-pass
// leaves unprocessed mail unseen and retryable.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sbscrm/leadingest/internal/catalog"
	"github.com/sbscrm/leadingest/internal/config"
	"github.com/sbscrm/leadingest/internal/decode"
	"github.com/sbscrm/leadingest/internal/models"
	"github.com/sbscrm/leadingest/internal/validate"
)

// Mailbox is the IMAP surface the pipeline drives.
type Mailbox interface {
	ListUnseen() ([]models.InboundMessage, error)
	ListRecent(now time.Time) ([]models.InboundMessage, error)
	MarkSeen(uid uint32) error
}

// Extractor produces the raw LLM extraction text for one email. A non-nil
// catalog switches the extraction into catalog-aware mode.
type Extractor interface {
	Extract(ctx context.Context, bodyText, subject, fromEmail, fromName string, catalog []models.CatalogEntry) (string, error)
}

// LeadStore persists extracted leads.
type LeadStore interface {
	ExistsByMessageID(ctx context.Context, messageID string) (bool, error)
	SaveLead(ctx context.Context, lead *models.ExtractedLead, matches []models.MatchResult, rawEmail, messageID string) (*models.SavedLead, error)
}

// Deduper filters already-ingested message IDs. Optional.
type Deduper interface {
	IsNew(ctx context.Context, messageID string) (bool, error)
	Forget(ctx context.Context, messageID string) error
}

// Publisher announces persisted leads downstream. Optional.
type Publisher interface {
	PublishLeadEvent(ctx context.Context, event *models.LeadEvent) error
}

// Snapshotter loads the full catalog for catalog-aware extraction.
type Snapshotter interface {
	Snapshot(ctx context.Context) ([]models.CatalogEntry, error)
}

// Outcome classifies what happened to one message.
type Outcome string

const (
	OutcomeSaved     Outcome = "saved"
	OutcomeFiltered  Outcome = "filtered"
	OutcomeDuplicate Outcome = "duplicate"
)

// PassStats summarises one pipeline pass.
type PassStats struct {
	Fetched    int
	Saved      int
	Filtered   int
	Duplicates int
	Failed     int
}

// Processor runs the per-message pipeline. The mailbox, store, extractor,
// and matcher are required; dedup and events are optional and nil disables
// them.
type Processor struct {
	cfg      config.Config
	mailbox  Mailbox
	extract  Extractor
	matcher  catalog.Matcher
	snapshot Snapshotter // non-nil only in "ai" match mode
	store    LeadStore
	dedup    Deduper
	events   Publisher
}

// NewProcessor wires the pipeline stages together.
func NewProcessor(cfg config.Config, mbx Mailbox, ext Extractor, m catalog.Matcher, snap Snapshotter, store LeadStore, dedup Deduper, events Publisher) *Processor {
	return &Processor{
		cfg:      cfg,
		mailbox:  mbx,
		extract:  ext,
		matcher:  m,
		snapshot: snap,
		store:    store,
		dedup:    dedup,
		events:   events,
	}
}

// RunPass fetches the current batch of messages and processes each one
// independently: a failing message is logged and left unseen for the next
// pass, and never blocks its siblings.
func (p *Processor) RunPass(ctx context.Context) (PassStats, error) {
	var stats PassStats

	var (
		messages []models.InboundMessage
		err      error
	)
	switch p.cfg.Mailbox.FetchMode {
	case "window":
		messages, err = p.mailbox.ListRecent(time.Now())
	default:
		messages, err = p.mailbox.ListUnseen()
	}
	if err != nil {
		return stats, fmt.Errorf("list messages: %w", err)
	}
	stats.Fetched = len(messages)
	if len(messages) == 0 {
		return stats, nil
	}

	// In catalog-aware mode the snapshot is loaded once per pass and shared
	// across every extraction in it.
	var catalogSnapshot []models.CatalogEntry
	if p.snapshot != nil {
		catalogSnapshot, err = p.snapshot.Snapshot(ctx)
		if err != nil {
			return stats, fmt.Errorf("load catalog snapshot: %w", err)
		}
	}

	for _, msg := range messages {
		outcome, err := p.processOne(ctx, msg, catalogSnapshot)
		if err != nil {
			stats.Failed++
			slog.Error("message processing failed, will retry next pass",
				"uid", msg.UID,
				"error", err,
			)
			continue
		}
		switch outcome {
		case OutcomeSaved:
			stats.Saved++
		case OutcomeFiltered:
			stats.Filtered++
		case OutcomeDuplicate:
			stats.Duplicates++
		}
	}

	return stats, nil
}

func (p *Processor) processOne(ctx context.Context, msg models.InboundMessage, catalogSnapshot []models.CatalogEntry) (Outcome, error) {
	dec := decode.Decode(msg.RawHeader, msg.RawBody)

	isNew, err := p.isNewMessage(ctx, dec.MessageID)
	if err != nil {
		return "", err
	}
	if !isNew {
		// Already ingested on an earlier pass; make sure the server flag
		// catches up so the message stops reappearing.
		p.markSeen(msg.UID)
		slog.Info("skipping duplicate message", "uid", msg.UID, "message_id", dec.MessageID)
		return OutcomeDuplicate, nil
	}

	rawText, err := p.extract.Extract(ctx, dec.BodyText, dec.Subject, dec.FromEmail, dec.FromName, catalogSnapshot)
	if err != nil {
		p.forget(ctx, dec.MessageID)
		return "", fmt.Errorf("extract: %w", err)
	}

	lead := validate.Validate(rawText, dec.FromEmail, dec.FromName, p.cfg.Extraction.MinConfidence)
	if lead == nil {
		// Not a contact inquiry, confidence too low, or unparseable output.
		// The dedup mark stays so the same mail is not re-extracted.
		if p.cfg.Mailbox.MarkFilteredSeen {
			p.markSeen(msg.UID)
		}
		slog.Info("message filtered out", "uid", msg.UID, "message_id", dec.MessageID)
		return OutcomeFiltered, nil
	}

	// Match every line item, isolating failures: a broken catalog query
	// costs that item its matches, never the lead.
	matches := make([]models.MatchResult, len(lead.Products))
	for i, item := range lead.Products {
		result, err := p.matcher.Match(ctx, item, AssertedFor(lead, i))
		if err != nil {
			slog.Error("catalog match failed for line item",
				"message_id", dec.MessageID,
				"index", i,
				"error", err,
			)
			continue
		}
		matches[i] = result
	}

	rawEmail := string(msg.RawHeader) + "\r\n" + string(msg.RawBody)
	saved, err := p.store.SaveLead(ctx, lead, matches, rawEmail, dec.MessageID)
	if err != nil {
		p.forget(ctx, dec.MessageID)
		return "", fmt.Errorf("save lead: %w", err)
	}

	p.publish(ctx, dec, lead, saved)

	// Persisted: now, and only now, flag the message on the server. A
	// failure here is tolerable — the dedup check catches the replay and
	// retries the flag.
	p.markSeen(msg.UID)

	slog.Info("lead ingested",
		"uid", msg.UID,
		"message_id", dec.MessageID,
		"lead_id", saved.LeadID,
		"products", len(lead.Products),
	)
	return OutcomeSaved, nil
}

// isNewMessage reports whether this message has NOT been ingested yet, via
// Redis filter when configured, otherwise via the lead table. Returns true
// when the message is new.
func (p *Processor) isNewMessage(ctx context.Context, messageID string) (bool, error) {
	if p.dedup != nil {
		isNew, err := p.dedup.IsNew(ctx, messageID)
		if err != nil {
			return false, fmt.Errorf("dedup check: %w", err)
		}
		return isNew, nil
	}
	exists, err := p.store.ExistsByMessageID(ctx, messageID)
	if err != nil {
		return false, fmt.Errorf("existence check: %w", err)
	}
	return !exists, nil
}

// forget releases the dedup claim on a message whose processing failed, so
// the next pass picks it up again.
func (p *Processor) forget(ctx context.Context, messageID string) {
	if p.dedup == nil {
		return
	}
	if err := p.dedup.Forget(ctx, messageID); err != nil {
		slog.Error("failed to release dedup mark", "message_id", messageID, "error", err)
	}
}

func (p *Processor) markSeen(uid uint32) {
	if err := p.mailbox.MarkSeen(uid); err != nil {
		slog.Warn("failed to mark message seen", "uid", uid, "error", err)
	}
}

func (p *Processor) publish(ctx context.Context, dec models.DecodedEmail, lead *models.ExtractedLead, saved *models.SavedLead) {
	if p.events == nil {
		return
	}
	total := 0
	for _, li := range saved.LineItems {
		total += len(li.Matches)
	}
	event := &models.LeadEvent{
		LeadID:    saved.LeadID,
		LeadName:  lead.Name,
		Email:     lead.Email,
		MessageID: dec.MessageID,
		Products:  len(lead.Products),
		Matches:   total,
	}
	// Event loss is survivable; a publish failure must not put the lead
	// back through the pipeline.
	if err := p.events.PublishLeadEvent(ctx, event); err != nil {
		slog.Error("failed to publish lead event", "lead_id", saved.LeadID, "error", err)
	}
}

// AssertedFor picks the LLM-asserted catalog match for line item i, when the
// extraction supplied one. A null or empty entry counts as no assertion.
func AssertedFor(lead *models.ExtractedLead, i int) []models.CatalogEntry {
	if i >= len(lead.MatchedProducts) {
		return nil
	}
	entry := lead.MatchedProducts[i]
	if entry.DetailID == nil && entry.ProductID == nil && blank(entry.Description) {
		return nil
	}
	return []models.CatalogEntry{entry}
}

func blank(s *string) bool {
	return s == nil || strings.TrimSpace(*s) == ""
}
