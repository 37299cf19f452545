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

package validate

import (
	"testing"

	"github.com/sbscrm/leadingest/internal/models"
)

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string // "" means nil expected
	}{
		{"international with dashes", "+91-7879985320", "7879985320"},
		{"exactly 10 digits", "7879985320", "7879985320"},
		{"more than 10 digits keeps last 10", "0091 78799 85320", "7879985320"},
		{"fewer than 10 digits kept as-is", "12345", "12345"},
		{"formatted with spaces", "PH - 78 79 98 53 20", "7879985320"},
		{"no digits", "call me", ""},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizePhone(tt.input)
			if tt.want == "" {
				if got != nil {
					t.Errorf("NormalizePhone(%q) = %q, want nil", tt.input, *got)
				}
				return
			}
			if got == nil {
				t.Fatalf("NormalizePhone(%q) = nil, want %q", tt.input, tt.want)
			}
			if *got != tt.want {
				t.Errorf("NormalizePhone(%q) = %q, want %q", tt.input, *got, tt.want)
			}
		})
	}
}

func TestValidate_GateRejections(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not a contact inquiry", `{"is_contact_inquiry": false, "confidence": 0.95}`},
		{"confidence below threshold", `{"is_contact_inquiry": true, "confidence": 0.3}`},
		{"missing gate fields", `{"name": "someone"}`},
		{"unparsable JSON", `{"is_contact_inquiry": true,`},
		{"confidence as garbage string", `{"is_contact_inquiry": true, "confidence": "high"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Validate(tt.raw, "a@b.com", "A B", 0.5); got != nil {
				t.Errorf("Validate(%s) = %+v, want nil", tt.raw, got)
			}
		})
	}
}

func TestValidate_AcceptsAndNormalizes(t *testing.T) {
	raw := `{
		"name": "  Roza Sheikh  ",
		"email": "SBSRoza1@Gmail.com ",
		"mobile": "+91-7879985320",
		"products": [
			{
				"pr_no": "5000387076",
				"description": "Ball Pein Hammer GROZ",
				"qty": "12",
				"uom": "NOS",
				"is_ambiguous": true
			},
			{
				"description": "HAMMER,TYPE:BALL PEIN,HEAD WEIGHT:565 GMS",
				"new_ic": "BPID/20/14",
				"qty": 6
			}
		],
		"terms_conditions": "Delivery within 2 weeks",
		"confidence": 0.92,
		"is_contact_inquiry": true
	}`

	lead := Validate(raw, "fallback@example.com", "Fallback", 0.5)
	if lead == nil {
		t.Fatal("Validate returned nil for a valid inquiry")
	}

	if lead.Name != "Roza Sheikh" {
		t.Errorf("Name = %q, want trimmed Roza Sheikh", lead.Name)
	}
	if lead.Email != "sbsroza1@gmail.com" {
		t.Errorf("Email = %q, want lowercased sbsroza1@gmail.com", lead.Email)
	}
	if lead.ContactNumber == nil || *lead.ContactNumber != "7879985320" {
		t.Errorf("ContactNumber = %v, want 7879985320", lead.ContactNumber)
	}
	if lead.Source != models.DefaultSource {
		t.Errorf("Source = %q, want default %q", lead.Source, models.DefaultSource)
	}
	if lead.Confidence != 0.92 {
		t.Errorf("Confidence = %v, want 0.92", lead.Confidence)
	}

	if len(lead.Products) != 2 {
		t.Fatalf("len(Products) = %d, want 2", len(lead.Products))
	}

	first := lead.Products[0]
	if first.Quantity == nil || *first.Quantity != 12 {
		t.Errorf("Products[0].Quantity = %v, want 12 (string coerced)", first.Quantity)
	}
	if first.ItemCode != nil {
		t.Errorf("Products[0].ItemCode = %v, want nil", first.ItemCode)
	}
	if !first.IsAmbiguous {
		t.Error("Products[0].IsAmbiguous = false, want true")
	}

	second := lead.Products[1]
	if second.ItemCode == nil || *second.ItemCode != "BPID/20/14" {
		t.Errorf("Products[1].ItemCode = %v, want BPID/20/14 from new_ic", second.ItemCode)
	}
	if second.Quantity == nil || *second.Quantity != 6 {
		t.Errorf("Products[1].Quantity = %v, want 6", second.Quantity)
	}
	if second.PrNumber != nil {
		t.Errorf("Products[1].PrNumber = %v, want nil", second.PrNumber)
	}
}

func TestValidate_SenderFallbacks(t *testing.T) {
	raw := `{"is_contact_inquiry": true, "confidence": 0.8, "products": []}`

	lead := Validate(raw, "Sender@Example.COM", "Sender Name", 0.5)
	if lead == nil {
		t.Fatal("Validate returned nil")
	}

	if lead.Name != "Sender Name" {
		t.Errorf("Name = %q, want header fallback Sender Name", lead.Name)
	}
	if lead.Email != "sender@example.com" {
		t.Errorf("Email = %q, want lowercased header fallback", lead.Email)
	}
	if lead.ContactNumber != nil {
		t.Errorf("ContactNumber = %v, want nil", lead.ContactNumber)
	}
	if lead.TermsConditions != nil {
		t.Errorf("TermsConditions = %v, want nil", lead.TermsConditions)
	}
	if lead.Products == nil || len(lead.Products) != 0 {
		t.Errorf("Products = %v, want empty non-nil slice", lead.Products)
	}
}

func TestValidate_NoSenderAtAllUsesSentinels(t *testing.T) {
	raw := `{"is_contact_inquiry": true, "confidence": 0.8}`

	lead := Validate(raw, "", "", 0.5)
	if lead == nil {
		t.Fatal("Validate returned nil")
	}
	if lead.Name != models.UnknownName {
		t.Errorf("Name = %q, want %q", lead.Name, models.UnknownName)
	}
	if lead.Email != models.UnknownEmail {
		t.Errorf("Email = %q, want %q", lead.Email, models.UnknownEmail)
	}
}

func TestValidate_QuantityCoercion(t *testing.T) {
	tests := []struct {
		name string
		qty  string // raw JSON fragment
		want int    // -1 means nil expected
	}{
		{"number", `12`, 12},
		{"numeric string", `"12"`, 12},
		{"string with unit suffix", `"12 Nos"`, 12},
		{"non-numeric string", `"a dozen"`, -1},
		{"null", `null`, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := `{"is_contact_inquiry": true, "confidence": 0.9,
				"products": [{"description": "hammer", "qty": ` + tt.qty + `}]}`

			lead := Validate(raw, "a@b.com", "", 0.5)
			if lead == nil {
				t.Fatal("Validate returned nil")
			}
			got := lead.Products[0].Quantity
			if tt.want == -1 {
				if got != nil {
					t.Errorf("Quantity = %d, want nil", *got)
				}
				return
			}
			if got == nil || *got != tt.want {
				t.Errorf("Quantity = %v, want %d", got, tt.want)
			}
		})
	}
}

func TestValidate_MatchedProductsParsed(t *testing.T) {
	raw := `{
		"is_contact_inquiry": true,
		"confidence": 0.95,
		"products": [{"description": "chain pulley 2T"}],
		"matchedProducts": [
			{"product_name": "CHAIN PULLEY BLOCK", "hsncode": "8425", "listprice": 4500.0}
		]
	}`

	lead := Validate(raw, "a@b.com", "", 0.5)
	if lead == nil {
		t.Fatal("Validate returned nil")
	}
	if len(lead.MatchedProducts) != 1 {
		t.Fatalf("len(MatchedProducts) = %d, want 1", len(lead.MatchedProducts))
	}
	m := lead.MatchedProducts[0]
	if m.ProductName == nil || *m.ProductName != "CHAIN PULLEY BLOCK" {
		t.Errorf("ProductName = %v, want CHAIN PULLEY BLOCK", m.ProductName)
	}
	if m.ListPrice == nil || *m.ListPrice != 4500.0 {
		t.Errorf("ListPrice = %v, want 4500.0", m.ListPrice)
	}
}
