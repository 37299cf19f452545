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

// Package validate parses the raw LLM extraction output, applies the
// contact-inquiry and confidence gates, and normalises every field into the
// canonical ExtractedLead shape. This is the primary spam/noise filter of
// the pipeline: an email whose extraction fails the gate is dropped, not
// persisted.
package validate

import (
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"

	"github.com/sbscrm/leadingest/internal/models"
)

// rawExtraction mirrors the LLM output contract. The model is asked for
// typed JSON but regularly returns numbers as strings and vice versa, so
// every loose field is decoded as `any` and coerced.
type rawExtraction struct {
	Name             any             `json:"name"`
	Email            any             `json:"email"`
	Mobile           any             `json:"mobile"`
	Products         []rawLineItem   `json:"products"`
	MatchedProducts  json.RawMessage `json:"matchedProducts"`
	TermsConditions  any             `json:"terms_conditions"`
	Source           any             `json:"source"`
	Confidence       any             `json:"confidence"`
	IsContactInquiry any             `json:"is_contact_inquiry"`
}

type rawLineItem struct {
	PrNo            any `json:"pr_no"`
	PrDate          any `json:"pr_date"`
	LegacyCode      any `json:"legacy_code"`
	NewIC           any `json:"new_ic"`
	ItemCode        any `json:"item_code"`
	Description     any `json:"description"`
	ProductName     any `json:"product_name"`
	Size            any `json:"size"`
	Qty             any `json:"qty"`
	UOM             any `json:"uom"`
	Unit            any `json:"unit"`
	Manufacturer    any `json:"manufacturer"`
	AdditionalSpecs any `json:"additional_specs"`
	IsAmbiguous     any `json:"is_ambiguous"`
}

// Validate parses rawText into an ExtractedLead. It returns nil when the
// JSON is unparsable or when the extraction fails the contact-inquiry or
// confidence gate. The returned lead always has every field populated;
// unavailable values are nil pointers, never omitted.
func Validate(rawText, fromEmail, fromName string, minConfidence float64) *models.ExtractedLead {
	var raw rawExtraction
	if err := json.Unmarshal([]byte(rawText), &raw); err != nil {
		slog.Error("extraction JSON parse failed", "error", err, "content", rawText)
		return nil
	}

	isContactInquiry := asBool(raw.IsContactInquiry)
	confidence := asFloat(raw.Confidence)

	if !isContactInquiry || confidence < minConfidence {
		slog.Info("email filtered out",
			"is_contact_inquiry", isContactInquiry,
			"confidence", confidence,
			"min_confidence", minConfidence,
		)
		return nil
	}

	lead := &models.ExtractedLead{
		Name:             normalizeName(asString(raw.Name), fromName),
		Email:            normalizeEmail(asString(raw.Email), fromEmail),
		ContactNumber:    NormalizePhone(asString(raw.Mobile)),
		Products:         make([]models.ExtractedLineItem, 0, len(raw.Products)),
		TermsConditions:  strPtr(asString(raw.TermsConditions)),
		Source:           defaultString(asString(raw.Source), models.DefaultSource),
		Confidence:       confidence,
		IsContactInquiry: true,
	}

	for _, p := range raw.Products {
		lead.Products = append(lead.Products, normalizeLineItem(p))
	}

	if len(raw.MatchedProducts) > 0 {
		var matched []models.CatalogEntry
		if err := json.Unmarshal(raw.MatchedProducts, &matched); err != nil {
			slog.Warn("discarding unparsable matchedProducts", "error", err)
		} else {
			lead.MatchedProducts = matched
		}
	}

	return lead
}

// NormalizePhone strips all non-digit characters and keeps the last 10
// digits when 10 or more remain, everything that remains otherwise, and nil
// for empty input.
func NormalizePhone(raw string) *string {
	var digits strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}

	s := digits.String()
	if s == "" {
		return nil
	}
	if len(s) >= 10 {
		s = s[len(s)-10:]
	}
	return &s
}

func normalizeLineItem(p rawLineItem) models.ExtractedLineItem {
	// "new_ic" and "item_code" are the same field under two prompt
	// generations; the newer name wins when both are present.
	itemCode := strPtr(asString(p.NewIC))
	if itemCode == nil {
		itemCode = strPtr(asString(p.ItemCode))
	}

	return models.ExtractedLineItem{
		PrNumber:        strPtr(asString(p.PrNo)),
		PrDate:          strPtr(asString(p.PrDate)),
		LegacyCode:      strPtr(asString(p.LegacyCode)),
		ItemCode:        itemCode,
		Description:     strPtr(asString(p.Description)),
		ProductName:     strPtr(asString(p.ProductName)),
		Size:            strPtr(asString(p.Size)),
		Quantity:        asIntPtr(p.Qty),
		UnitOfMeasure:   strPtr(asString(p.UOM)),
		Unit:            strPtr(asString(p.Unit)),
		Manufacturer:    strPtr(asString(p.Manufacturer)),
		AdditionalSpecs: strPtr(asString(p.AdditionalSpecs)),
		IsAmbiguous:     asBool(p.IsAmbiguous),
	}
}

func normalizeName(name, fromName string) string {
	name = strings.TrimSpace(name)
	if name != "" {
		return name
	}
	if fromName = strings.TrimSpace(fromName); fromName != "" {
		return fromName
	}
	return models.UnknownName
}

func normalizeEmail(email, fromEmail string) string {
	email = strings.ToLower(strings.TrimSpace(email))
	if email != "" {
		return email
	}
	if fromEmail = strings.ToLower(strings.TrimSpace(fromEmail)); fromEmail != "" {
		return fromEmail
	}
	return models.UnknownEmail
}

func defaultString(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}

func strPtr(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}

// asString renders a loose JSON value as a string; null and non-scalar
// values become "".
func asString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

// asFloat coerces a loose JSON value to float64, accepting numeric strings.
func asFloat(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

// asIntPtr coerces a loose JSON value to an integer; unparsable values are
// nil, matching the "quantity is an integer or null" contract.
func asIntPtr(v any) *int {
	switch t := v.(type) {
	case float64:
		n := int(t)
		return &n
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return nil
		}
		// tolerate "12 Nos" style values by taking the leading digits
		end := 0
		for end < len(s) && s[end] >= '0' && s[end] <= '9' {
			end++
		}
		if end == 0 {
			return nil
		}
		n, err := strconv.Atoi(s[:end])
		if err != nil {
			return nil
		}
		return &n
	default:
		return nil
	}
}

// asBool coerces a loose JSON value to bool; only an explicit true (or
// "true") counts.
func asBool(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return strings.EqualFold(strings.TrimSpace(t), "true")
	default:
		return false
	}
}
