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

// Package catalog provides read-only access to the product catalog
// hierarchy (category → subcategory → product → detail) and the matching
// strategies that reconcile extracted line items against it. Nothing in
// this package mutates catalog state.
package catalog

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/sbscrm/leadingest/internal/models"
)

// Querier is the subset of pgxpool.Pool the store needs.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Store runs catalog queries against Postgres.
type Store struct {
	db Querier
}

// NewStore creates a catalog store backed by the given connection pool.
func NewStore(db Querier) *Store {
	return &Store{db: db}
}

const catalogColumns = `
	mc.maincategory_id,
	mc.maincategory_name,
	sc.subcategory_id,
	sc.subcategory_name,
	pn.product_id,
	pn.product_name,
	pd.detail_id,
	pd.batch,
	pd.description,
	pd.size,
	pd.hsncode,
	pd.gstrate,
	pd.listprice,
	pd.moq,
	pd.created_at::text
FROM product_details pd
LEFT JOIN main_category mc ON pd.maincategory_id = mc.maincategory_id
LEFT JOIN sub_category sc ON pd.subcategory_id = sc.subcategory_id
LEFT JOIN product_name pn ON pd.product_id = pn.product_id`

// Snapshot returns the full catalog, newest detail rows first. Used to
// build the catalog-aware extraction prompt.
func (s *Store) Snapshot(ctx context.Context) ([]models.CatalogEntry, error) {
	rows, err := s.db.Query(ctx, `SELECT `+catalogColumns+`
		ORDER BY pd.detail_id DESC`)
	if err != nil {
		return nil, fmt.Errorf("query catalog snapshot: %w", err)
	}
	defer rows.Close()
	return collectEntries(rows)
}

// measurementToken pulls a weight/size token out of a free-text item
// description ("HEAD WEIGHT: 565 GMS") for the secondary size filter.
var measurementToken = regexp.MustCompile(`(?i)HEAD WEIGHT: *([\d.]+ *GMS|\d+ *oz\.|medium size)`)

// Search returns catalog candidates for one extracted line item using
// OR-combined signals: exact HSN/batch match on the item code, substring
// match of the description against catalog description and product name,
// and substring match of a regex-extracted measurement token against the
// catalog size. Absent signals contribute no predicate — an item with no
// usable signal yields zero candidates, never the whole catalog.
func (s *Store) Search(ctx context.Context, item models.ExtractedLineItem) ([]models.CatalogEntry, error) {
	code := strings.TrimSpace(deref(item.ItemCode))
	desc := strings.TrimSpace(deref(item.Description))

	sizeToken := ""
	if m := measurementToken.FindStringSubmatch(desc); m != nil {
		sizeToken = m[1]
	}

	var (
		preds []string
		args  []any
	)
	add := func(expr string, v any) {
		args = append(args, v)
		preds = append(preds, fmt.Sprintf(expr, len(args)))
	}
	if code != "" {
		add("pd.hsncode = $%d", code)
		add("pd.batch = $%d", code)
	}
	if desc != "" {
		add("pd.description ILIKE $%d", "%"+desc+"%")
		add("pn.product_name ILIKE $%d", "%"+desc+"%")
	}
	if sizeToken != "" {
		add("pd.size ILIKE $%d", "%"+sizeToken+"%")
	}
	if len(preds) == 0 {
		return nil, nil
	}

	rows, err := s.db.Query(ctx, `SELECT `+catalogColumns+`
		WHERE `+strings.Join(preds, "\n		   OR "), args...)
	if err != nil {
		return nil, fmt.Errorf("query catalog candidates: %w", err)
	}
	defer rows.Close()
	return collectEntries(rows)
}

func collectEntries(rows pgx.Rows) ([]models.CatalogEntry, error) {
	var entries []models.CatalogEntry
	for rows.Next() {
		var e models.CatalogEntry
		if err := rows.Scan(
			&e.MainCategoryID, &e.MainCategoryName,
			&e.SubCategoryID, &e.SubCategoryName,
			&e.ProductID, &e.ProductName,
			&e.DetailID, &e.Batch, &e.Description, &e.Size,
			&e.HSNCode, &e.GSTRate, &e.ListPrice, &e.MOQ, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan catalog row: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
