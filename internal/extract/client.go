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

// Package extract calls the external LLM chat-completions endpoint to turn
// a raw email body into a structured extraction. The client returns the raw
// response text only — parsing, gating, and normalisation belong to the
// validate package.
package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sbscrm/leadingest/internal/config"
	"github.com/sbscrm/leadingest/internal/models"
)

// ErrNotConfigured is returned when no API key is set. The extraction
// dependency fails closed: without a key no email is ever treated as a lead.
var ErrNotConfigured = errors.New("extraction API key not configured")

// catalogMaxTokens is the response ceiling for catalog-aware requests. The
// catalog prompt asks the model to echo matched product rows back alongside
// the extraction, so the response needs more headroom than plain mode.
const catalogMaxTokens = 6000

// Client calls an OpenRouter-style chat-completions API.
type Client struct {
	cfg        config.ExtractionConfig
	httpClient *http.Client
}

// NewClient creates an extraction client. The request timeout bounds the
// whole LLM round-trip; a timed-out call fails that message only.
func NewClient(cfg config.ExtractionConfig) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// chatRequest is the chat-completions request body.
type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature"`
	MaxTokens      int           `json:"max_tokens"`
	ResponseFormat responseFmt   `json:"response_format"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFmt struct {
	Type string `json:"type"`
}

// chatResponse is the subset of the chat-completions response we read.
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Extract sends the decoded email to the LLM and returns the raw response
// text. When catalog is non-nil the catalog-aware prompt is used: the model
// is instructed to pre-match extracted items against the provided snapshot.
// Transport errors and non-2xx responses are returned to the caller, which
// treats them as a per-message failure.
func (c *Client) Extract(ctx context.Context, bodyText, subject, fromEmail, fromName string, catalog []models.CatalogEntry) (string, error) {
	if c.cfg.APIKey == "" {
		slog.Error("extraction API key not found")
		return "", ErrNotConfigured
	}

	prompt := buildPrompt(bodyText, subject, fromEmail, fromName)
	maxTokens := c.cfg.MaxTokens
	if catalog != nil {
		prompt = buildCatalogPrompt(bodyText, subject, fromEmail, fromName, catalog)
		if maxTokens < catalogMaxTokens {
			maxTokens = catalogMaxTokens
		}
	}

	reqBody, err := json.Marshal(chatRequest{
		Model:       c.cfg.Model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: 0.1,
		MaxTokens:   maxTokens,
		ResponseFormat: responseFmt{
			Type: "json_object",
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIURL, bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("HTTP-Referer", c.cfg.SiteURL)
	req.Header.Set("X-Title", c.cfg.AppTitle)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("call extraction API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		slog.Error("extraction API error", "status", resp.StatusCode, "body", string(body))
		return "", fmt.Errorf("extraction API returned HTTP %d", resp.StatusCode)
	}

	var chat chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}

	if len(chat.Choices) == 0 {
		return "", fmt.Errorf("extraction API returned no choices")
	}

	return extractJSON(chat.Choices[0].Message.Content), nil
}

// extractJSON locates the first '{' and the last '}' in the model output.
// The model is asked for a bare JSON object but still wraps it in prose
// often enough that this repair step is required.
func extractJSON(content string) string {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start == -1 || end == -1 || end < start {
		return content
	}
	return content[start : end+1]
}
