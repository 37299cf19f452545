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

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sbscrm/leadingest/internal/models"
)

const acceptedExtraction = `{
	"is_contact_inquiry": true,
	"confidence": 0.85,
	"name": "Priya Sharma",
	"email": "priya@example.com",
	"source": "Email",
	"products": [{"description": "SPANNER DE 10x11", "qty": 4}]
}`

type stubExtractor struct {
	response string
	err      error
}

func (s *stubExtractor) Extract(context.Context, string, string, string, string, []models.CatalogEntry) (string, error) {
	return s.response, s.err
}

type stubMatcher struct {
	result models.MatchResult
	err    error
}

func (s *stubMatcher) Match(context.Context, models.ExtractedLineItem, []models.CatalogEntry) (models.MatchResult, error) {
	return s.result, s.err
}

type stubPinger struct{ err error }

func (s *stubPinger) Ping(context.Context) error { return s.err }

func newTestHandler(ext *stubExtractor, m *stubMatcher) *Handler {
	return NewHandler(ext, m, nil, nil, 0.5, &stubPinger{}, nil)
}

func postTestEmail(t *testing.T, h *Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/test-email", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeTestEmail(rec, req)
	return rec
}

func TestServeHealth(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		h := NewHandler(&stubExtractor{}, &stubMatcher{}, nil, nil, 0.5, &stubPinger{}, &stubPinger{})
		rec := httptest.NewRecorder()
		h.ServeHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "healthy") {
			t.Errorf("body = %q", rec.Body.String())
		}
	})

	t.Run("postgres down", func(t *testing.T) {
		h := NewHandler(&stubExtractor{}, &stubMatcher{}, nil, nil, 0.5, &stubPinger{err: errors.New("down")}, nil)
		rec := httptest.NewRecorder()
		h.ServeHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want 503", rec.Code)
		}
	})

	t.Run("redis down", func(t *testing.T) {
		h := NewHandler(&stubExtractor{}, &stubMatcher{}, nil, nil, 0.5, &stubPinger{}, &stubPinger{err: errors.New("down")})
		rec := httptest.NewRecorder()
		h.ServeHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want 503", rec.Code)
		}
	})
}

func TestServeTestEmail_MethodNotAllowed(t *testing.T) {
	h := newTestHandler(&stubExtractor{}, &stubMatcher{})
	req := httptest.NewRequest(http.MethodGet, "/api/test-email", nil)
	rec := httptest.NewRecorder()
	h.ServeTestEmail(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestServeTestEmail_BadRequests(t *testing.T) {
	h := newTestHandler(&stubExtractor{}, &stubMatcher{})

	if rec := postTestEmail(t, h, "{not json"); rec.Code != http.StatusBadRequest {
		t.Errorf("invalid JSON: status = %d, want 400", rec.Code)
	}
	if rec := postTestEmail(t, h, `{"subject": "hi"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("missing body: status = %d, want 400", rec.Code)
	}
}

func TestServeTestEmail_Accepted(t *testing.T) {
	var id int64 = 7
	h := newTestHandler(
		&stubExtractor{response: acceptedExtraction},
		&stubMatcher{result: models.MatchResult{Matches: []models.CatalogEntry{{DetailID: &id}}}},
	)

	rec := postTestEmail(t, h, `{"body": "need 4 spanners", "from_email": "priya@example.com"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp testEmailResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Accepted {
		t.Fatalf("expected accepted, got reason %q", resp.Reason)
	}
	if resp.Lead == nil || resp.Lead.Name != "Priya Sharma" {
		t.Errorf("unexpected lead: %+v", resp.Lead)
	}
	if len(resp.Matches) != 1 || len(resp.Matches[0].Matches) != 1 {
		t.Errorf("unexpected matches: %+v", resp.Matches)
	}
}

type stubStore struct {
	saves  int
	nextID int64
}

func (s *stubStore) ExistsByMessageID(context.Context, string) (bool, error) { return false, nil }

func (s *stubStore) SaveLead(_ context.Context, lead *models.ExtractedLead, matches []models.MatchResult, _, _ string) (*models.SavedLead, error) {
	s.saves++
	s.nextID++
	return &models.SavedLead{LeadID: s.nextID}, nil
}

func TestServeTestEmail_PersistOptIn(t *testing.T) {
	store := &stubStore{}
	h := NewHandler(&stubExtractor{response: acceptedExtraction}, &stubMatcher{}, nil, store, 0.5, &stubPinger{}, nil)

	// Default is a dry run.
	rec := postTestEmail(t, h, `{"body": "need 4 spanners"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if store.saves != 0 {
		t.Error("dry run must not persist")
	}

	rec = postTestEmail(t, h, `{"body": "need 4 spanners", "persist": true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp testEmailResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if store.saves != 1 || resp.LeadID != 1 {
		t.Errorf("expected persisted lead with ID, got saves=%d lead_id=%d", store.saves, resp.LeadID)
	}
}

func TestServeTestEmail_RejectedByGate(t *testing.T) {
	h := newTestHandler(
		&stubExtractor{response: `{"is_contact_inquiry": false, "confidence": 0.99}`},
		&stubMatcher{},
	)

	rec := postTestEmail(t, h, `{"body": "monthly newsletter"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp testEmailResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Accepted {
		t.Error("newsletter must be rejected")
	}
	if resp.Lead != nil {
		t.Error("rejected response must not carry a lead")
	}
}

func TestServeTestEmail_ExtractionFailure(t *testing.T) {
	h := newTestHandler(&stubExtractor{err: errors.New("upstream 500")}, &stubMatcher{})

	rec := postTestEmail(t, h, `{"body": "need 4 spanners"}`)
	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
}

func TestServeTestEmail_MatcherFailureStillResponds(t *testing.T) {
	h := newTestHandler(
		&stubExtractor{response: acceptedExtraction},
		&stubMatcher{err: errors.New("catalog query failed")},
	)

	rec := postTestEmail(t, h, `{"body": "need 4 spanners"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp testEmailResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Accepted {
		t.Error("a match failure must not reject the lead")
	}
	if len(resp.Matches) != 1 || len(resp.Matches[0].Matches) != 0 {
		t.Errorf("failed item should report no matches: %+v", resp.Matches)
	}
}

func TestMux_Routes(t *testing.T) {
	h := newTestHandler(&stubExtractor{}, &stubMatcher{})
	srv := httptest.NewServer(h.Mux())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("/health status = %d", resp.StatusCode)
	}
}
