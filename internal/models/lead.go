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

// Package models defines the data structures shared across the lead
// ingestion pipeline.
package models

import "time"

// Sentinel defaults used when a field cannot be extracted. The decoder and
// validator degrade to these instead of failing a message.
const (
	UnknownEmail  = "unknown@example.com"
	UnknownName   = "Unknown"
	NoSubject     = "No Subject"
	NoMessageID   = "No Message ID"
	DefaultSource = "Email"
)

// InboundMessage is a raw message pulled from the mailbox. It only lives for
// the duration of one poll pass; the raw body is optionally kept alongside
// the persisted lead.
type InboundMessage struct {
	UID       uint32
	Date      time.Time
	RawHeader []byte
	RawBody   []byte
}

// DecodedEmail is the normalised view of an inbound message. Every field is
// always populated — missing headers degrade to the sentinel values above.
type DecodedEmail struct {
	FromEmail string
	FromName  string
	Subject   string
	MessageID string
	BodyText  string
}

// ExtractedLineItem is one requested product extracted from an email body.
// All fields are nullable; Quantity is an integer or nil.
type ExtractedLineItem struct {
	PrNumber        *string `json:"pr_no"`
	PrDate          *string `json:"pr_date"`
	LegacyCode      *string `json:"legacy_code"`
	ItemCode        *string `json:"item_code"`
	Description     *string `json:"description"`
	ProductName     *string `json:"product_name"`
	Size            *string `json:"size"`
	Quantity        *int    `json:"qty"`
	UnitOfMeasure   *string `json:"uom"`
	Unit            *string `json:"unit"`
	Manufacturer    *string `json:"manufacturer"`
	AdditionalSpecs *string `json:"additional_specs"`
	IsAmbiguous     bool    `json:"is_ambiguous"`
}

// ExtractedLead is the validated output of the LLM extraction for one email.
// It only materialises when the email passed the contact-inquiry and
// confidence gates.
type ExtractedLead struct {
	Name             string              `json:"name"`
	Email            string              `json:"email"`
	ContactNumber    *string             `json:"mobile"`
	Products         []ExtractedLineItem `json:"products"`
	TermsConditions  *string             `json:"terms_conditions"`
	Source           string              `json:"source"`
	Confidence       float64             `json:"confidence"`
	IsContactInquiry bool                `json:"is_contact_inquiry"`

	// MatchedProducts carries LLM-asserted catalog matches when the
	// extraction ran in catalog-aware mode. Index-aligned with Products.
	MatchedProducts []CatalogEntry `json:"matched_products,omitempty"`
}

// CatalogEntry is one priced row of the product catalog hierarchy
// (category → subcategory → product → detail). Read-only reference data.
type CatalogEntry struct {
	MainCategoryID   *int64   `json:"maincategory_id"`
	MainCategoryName *string  `json:"maincategory_name"`
	SubCategoryID    *int64   `json:"subcategory_id"`
	SubCategoryName  *string  `json:"subcategory_name"`
	ProductID        *int64   `json:"product_id"`
	ProductName      *string  `json:"product_name"`
	DetailID         *int64   `json:"detail_id"`
	Batch            *string  `json:"batch"`
	Description      *string  `json:"description"`
	Size             *string  `json:"size"`
	HSNCode          *string  `json:"hsncode"`
	GSTRate          *float64 `json:"gstrate"`
	ListPrice        *float64 `json:"listprice"`
	MOQ              *int64   `json:"moq"`
	CreatedAt        *string  `json:"created_at"`
}

// MatchResult is the outcome of matching one line item against the catalog.
// Zero matches is a valid, non-error outcome.
type MatchResult struct {
	Matches     []CatalogEntry
	IsAmbiguous bool
}

// SavedLead reports what the persistence adapter wrote for one email.
type SavedLead struct {
	LeadID    int64
	LineItems []SavedLineItem
}

// SavedLineItem links a persisted line item to the catalog matches stored
// for it.
type SavedLineItem struct {
	LineItemID int64
	Item       ExtractedLineItem
	Matches    []CatalogEntry
}

// LeadEvent is published to the downstream CRM queue after a lead has been
// durably persisted.
type LeadEvent struct {
	EventID   string    `json:"event_id"`
	LeadID    int64     `json:"lead_id"`
	LeadName  string    `json:"lead_name"`
	Email     string    `json:"email"`
	MessageID string    `json:"message_id"`
	Products  int       `json:"products"`
	Matches   int       `json:"matches"`
	CreatedAt time.Time `json:"created_at"`
}
