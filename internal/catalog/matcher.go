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

package catalog

import (
	"context"
	"strings"

	"github.com/sbscrm/leadingest/internal/models"
)

// Matcher reconciles one extracted line item against the catalog.
// asserted carries the LLM-asserted matches for this item when extraction
// ran in catalog-aware mode; local matching ignores it.
type Matcher interface {
	Match(ctx context.Context, item models.ExtractedLineItem, asserted []models.CatalogEntry) (models.MatchResult, error)
}

// Searcher is the candidate query the local matcher runs. Implemented by
// Store.
type Searcher interface {
	Search(ctx context.Context, item models.ExtractedLineItem) ([]models.CatalogEntry, error)
}

// LocalMatcher queries the catalog with SQL and decides ambiguity itself:
// a line item is ambiguous when the query finds more than one candidate and
// the item carries no item code. A present item code is treated as a strong
// enough identifier to accept multiplicity without flagging.
type LocalMatcher struct {
	catalog Searcher
}

// NewLocalMatcher creates the SQL-backed matching strategy.
func NewLocalMatcher(catalog Searcher) *LocalMatcher {
	return &LocalMatcher{catalog: catalog}
}

// Match implements Matcher.
func (m *LocalMatcher) Match(ctx context.Context, item models.ExtractedLineItem, _ []models.CatalogEntry) (models.MatchResult, error) {
	candidates, err := m.catalog.Search(ctx, item)
	if err != nil {
		return models.MatchResult{}, err
	}

	hasCode := item.ItemCode != nil && strings.TrimSpace(*item.ItemCode) != ""

	return models.MatchResult{
		Matches:     candidates,
		IsAmbiguous: len(candidates) > 1 && !hasCode,
	}, nil
}

// TrustedMatcher persists LLM-asserted matches verbatim. The catalog-aware
// prompt already enforces the strict confidence threshold and category
// alignment, so no further filtering happens here.
type TrustedMatcher struct{}

// NewTrustedMatcher creates the LLM-trusted matching strategy.
func NewTrustedMatcher() *TrustedMatcher {
	return &TrustedMatcher{}
}

// Match implements Matcher.
func (m *TrustedMatcher) Match(_ context.Context, item models.ExtractedLineItem, asserted []models.CatalogEntry) (models.MatchResult, error) {
	return models.MatchResult{
		Matches:     asserted,
		IsAmbiguous: item.IsAmbiguous,
	}, nil
}
