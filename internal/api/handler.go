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

// Package api serves the operational HTTP surface: a health endpoint and a
// test-email endpoint that pushes a pasted email through the
// extract → validate → match stages without touching IMAP, persisting the
// result only when the request asks for it.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sbscrm/leadingest/internal/catalog"
	"github.com/sbscrm/leadingest/internal/models"
	"github.com/sbscrm/leadingest/internal/pipeline"
	"github.com/sbscrm/leadingest/internal/validate"
)

// Pinger reports backend liveness. Implemented by pgxpool.Pool and the
// queue publisher.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler serves the API endpoints.
type Handler struct {
	extractor     pipeline.Extractor
	matcher       catalog.Matcher
	snapshot      pipeline.Snapshotter // nil outside catalog-aware mode
	store         pipeline.LeadStore   // nil disables persist requests
	minConfidence float64

	db    Pinger
	redis Pinger // nil when Redis is not configured
}

// NewHandler creates the API handler.
func NewHandler(extractor pipeline.Extractor, matcher catalog.Matcher, snapshot pipeline.Snapshotter, store pipeline.LeadStore, minConfidence float64, db, redis Pinger) *Handler {
	return &Handler{
		extractor:     extractor,
		matcher:       matcher,
		snapshot:      snapshot,
		store:         store,
		minConfidence: minConfidence,
		db:            db,
		redis:         redis,
	}
}

// Mux returns the route table.
func (h *Handler) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.ServeHealth)
	mux.HandleFunc("/api/test-email", h.ServeTestEmail)
	return mux
}

// ServeHealth reports service and backend health.
func (h *Handler) ServeHealth(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		if err := h.db.Ping(r.Context()); err != nil {
			http.Error(w, "postgres unhealthy", http.StatusServiceUnavailable)
			return
		}
	}
	if h.redis != nil {
		if err := h.redis.Ping(r.Context()); err != nil {
			http.Error(w, "redis unhealthy", http.StatusServiceUnavailable)
			return
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status": "healthy"}`))
}

// testEmailRequest is a pasted email to push through the pipeline stages.
// Persist opts into writing the accepted lead; the default is a dry run.
type testEmailRequest struct {
	FromEmail string `json:"from_email"`
	FromName  string `json:"from_name"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
	Persist   bool   `json:"persist"`
}

// testEmailResponse reports what the pipeline did with the email. LeadID is
// set only when the request asked to persist. No event is published and no
// mailbox flag is touched either way.
type testEmailResponse struct {
	Accepted bool                  `json:"accepted"`
	Reason   string                `json:"reason,omitempty"`
	Lead     *models.ExtractedLead `json:"lead,omitempty"`
	Matches  []models.MatchResult  `json:"matches,omitempty"`
	LeadID   int64                 `json:"lead_id,omitempty"`
}

// ServeTestEmail handles dry-run extraction requests.
func (h *Handler) ServeTestEmail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req testEmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Body) == "" {
		http.Error(w, "body is required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()

	var catalogSnapshot []models.CatalogEntry
	if h.snapshot != nil {
		var err error
		catalogSnapshot, err = h.snapshot.Snapshot(ctx)
		if err != nil {
			slog.Error("test-email: catalog snapshot failed", "error", err)
			http.Error(w, "catalog unavailable", http.StatusBadGateway)
			return
		}
	}

	rawText, err := h.extractor.Extract(ctx, req.Body, req.Subject, req.FromEmail, req.FromName, catalogSnapshot)
	if err != nil {
		slog.Error("test-email: extraction failed", "error", err)
		http.Error(w, "extraction failed", http.StatusBadGateway)
		return
	}

	lead := validate.Validate(rawText, req.FromEmail, req.FromName, h.minConfidence)
	if lead == nil {
		writeJSON(w, testEmailResponse{
			Accepted: false,
			Reason:   "not a contact inquiry, confidence below threshold, or unparseable extraction",
		})
		return
	}

	matches := make([]models.MatchResult, len(lead.Products))
	for i, item := range lead.Products {
		result, err := h.matcher.Match(ctx, item, pipeline.AssertedFor(lead, i))
		if err != nil {
			slog.Error("test-email: match failed", "index", i, "error", err)
			continue
		}
		matches[i] = result
	}

	resp := testEmailResponse{
		Accepted: true,
		Lead:     lead,
		Matches:  matches,
	}

	if req.Persist && h.store != nil {
		saved, err := h.store.SaveLead(ctx, lead, matches, req.Body, models.NoMessageID)
		if err != nil {
			slog.Error("test-email: persist failed", "error", err)
			http.Error(w, "persist failed", http.StatusInternalServerError)
			return
		}
		resp.LeadID = saved.LeadID
	}

	writeJSON(w, resp)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
