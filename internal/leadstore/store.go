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

// Package leadstore persists extracted leads, their line items, and the
// resolved catalog matches to Postgres. Writes are best-effort rather than
// all-or-nothing: a failing line-item insert is logged and skipped while
// the lead and its successfully inserted siblings remain committed.
package leadstore

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/sbscrm/leadingest/internal/models"
)

// DB is the subset of pgxpool.Pool the store needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store provides lead persistence in Postgres.
type Store struct {
	db DB
}

// NewStore creates a lead store and ensures the lead tables exist.
func NewStore(ctx context.Context, db DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure lead schema: %w", err)
	}
	slog.Info("lead store initialised")
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS email_leads (
			id                BIGSERIAL PRIMARY KEY,
			lead_name         TEXT NOT NULL,
			email             TEXT NOT NULL,
			contact_number    TEXT,
			lead_source       TEXT NOT NULL DEFAULT 'Email',
			terms_conditions  TEXT,
			message_id        TEXT,
			raw_email_content TEXT,
			created_at        TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_email_leads_message ON email_leads(message_id);
		CREATE INDEX IF NOT EXISTS idx_email_leads_email ON email_leads(email);

		CREATE TABLE IF NOT EXISTS email_products (
			id               BIGSERIAL PRIMARY KEY,
			lead_id          BIGINT NOT NULL REFERENCES email_leads(id),
			unit             TEXT,
			pr_no            TEXT,
			pr_date          TEXT,
			legacy_code      TEXT,
			item_code        TEXT,
			item_description TEXT,
			product_name     TEXT,
			size             TEXT,
			uom              TEXT,
			manufacturer     TEXT,
			additional_specs TEXT,
			pr_quantity      INTEGER,
			is_ambiguous     BOOLEAN NOT NULL DEFAULT FALSE
		);
		CREATE INDEX IF NOT EXISTS idx_email_products_lead ON email_products(lead_id);

		CREATE TABLE IF NOT EXISTS matched_products (
			id                BIGSERIAL PRIMARY KEY,
			lead_id           BIGINT NOT NULL REFERENCES email_leads(id),
			email_product_id  BIGINT NOT NULL REFERENCES email_products(id),
			maincategory_id   BIGINT,
			maincategory_name TEXT,
			subcategory_id    BIGINT,
			subcategory_name  TEXT,
			product_id        BIGINT,
			product_name      TEXT,
			detail_id         BIGINT,
			batch             TEXT,
			description       TEXT,
			size              TEXT,
			hsncode           TEXT,
			gstrate           NUMERIC,
			listprice         NUMERIC,
			moq               BIGINT,
			created_at        TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_matched_products_lead ON matched_products(lead_id);
	`)
	return err
}

// ExistsByMessageID reports whether a lead was already persisted for this
// mailbox message. Sentinel message IDs never count as seen.
func (s *Store) ExistsByMessageID(ctx context.Context, messageID string) (bool, error) {
	if messageID == "" || messageID == models.NoMessageID {
		return false, nil
	}
	var exists bool
	err := s.db.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM email_leads WHERE message_id = $1)
	`, messageID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check lead existence: %w", err)
	}
	return exists, nil
}

// SaveLead inserts the lead, its line items, and each item's catalog
// matches. matches is index-aligned with lead.Products. A failing line-item
// insert skips that item and its matches; a failing match insert skips that
// row only. SaveLead is deliberately NOT keyed on message ID — calling it
// twice for the same message creates two leads (callers dedup upstream).
func (s *Store) SaveLead(ctx context.Context, lead *models.ExtractedLead, matches []models.MatchResult, rawEmail, messageID string) (*models.SavedLead, error) {
	var leadID int64
	err := s.db.QueryRow(ctx, `
		INSERT INTO email_leads
			(lead_name, email, contact_number, lead_source, terms_conditions, message_id, raw_email_content, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		RETURNING id
	`, lead.Name, lead.Email, lead.ContactNumber, lead.Source, lead.TermsConditions, messageID, rawEmail).Scan(&leadID)
	if err != nil {
		return nil, fmt.Errorf("insert lead: %w", err)
	}

	saved := &models.SavedLead{LeadID: leadID}

	for i, item := range lead.Products {
		var result models.MatchResult
		if i < len(matches) {
			result = matches[i]
		}

		var itemID int64
		err := s.db.QueryRow(ctx, `
			INSERT INTO email_products
				(lead_id, unit, pr_no, pr_date, legacy_code, item_code, item_description,
				 product_name, size, uom, manufacturer, additional_specs, pr_quantity, is_ambiguous)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
			RETURNING id
		`, leadID, item.Unit, item.PrNumber, item.PrDate, item.LegacyCode, item.ItemCode,
			item.Description, item.ProductName, item.Size, item.UnitOfMeasure,
			item.Manufacturer, item.AdditionalSpecs, item.Quantity, result.IsAmbiguous || item.IsAmbiguous,
		).Scan(&itemID)
		if err != nil {
			slog.Error("failed to insert line item, skipping",
				"lead_id", leadID,
				"index", i,
				"error", err,
			)
			continue
		}

		savedItem := models.SavedLineItem{LineItemID: itemID, Item: item}

		for _, m := range result.Matches {
			_, err := s.db.Exec(ctx, `
				INSERT INTO matched_products
					(lead_id, email_product_id, maincategory_id, maincategory_name,
					 subcategory_id, subcategory_name, product_id, product_name, detail_id,
					 batch, description, size, hsncode, gstrate, listprice, moq, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, NOW())
			`, leadID, itemID, m.MainCategoryID, m.MainCategoryName,
				m.SubCategoryID, m.SubCategoryName, m.ProductID, m.ProductName, m.DetailID,
				m.Batch, m.Description, m.Size, m.HSNCode, m.GSTRate, m.ListPrice, m.MOQ)
			if err != nil {
				slog.Error("failed to insert matched product, skipping",
					"lead_id", leadID,
					"line_item_id", itemID,
					"error", err,
				)
				continue
			}
			savedItem.Matches = append(savedItem.Matches, m)
		}

		saved.LineItems = append(saved.LineItems, savedItem)
	}

	return saved, nil
}
