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

package extract

import (
	"encoding/json"
	"fmt"

	"github.com/sbscrm/leadingest/internal/models"
)

// matchConfidenceThreshold is the confidence the catalog-aware prompt
// demands before the model may assert a catalog match.
const matchConfidenceThreshold = 0.9

const outputContract = `Output format:
{
  "name": "<Name or null>",
  "email": "<Email or null>",
  "mobile": "<Phone or null>",
  "products": [
    {
      "pr_no": "<Purchase Requisition Number or null>",
      "pr_date": "<PR Date (YYYY-MM-DD) or null>",
      "legacy_code": "<Legacy Code or null>",
      "item_code": "<HSN Code, Item Code, Model Number, or Batch Code or null>",
      "description": "<Full Item Description or constructed from available details>",
      "product_name": "<Concise Product Name or null>",
      "size": "<Normalized Size (e.g., weight in oz/kg/gms, length in in/mm) or null>",
      "qty": <Quantity or null>,
      "uom": "<Unit of Measure or null>",
      "unit": "<Unit or null>",
      "manufacturer": "<Manufacturer or null>",
      "additional_specs": "<Additional Specifications or null>",
      "is_ambiguous": <Boolean, true if details may match multiple products>
    }
  ],
  "terms_conditions": "<Terms and Conditions or null>",
  "source": "Email",
  "confidence": <Confidence Score 0.0-1.0>,
  "is_contact_inquiry": <Boolean>
}`

const extractionRules = `**Instructions**:
- Process the raw email content as provided, including headers, forwarded sections, HTML tags, and multi-part MIME structures. Ignore MIME boundary markers.
- Prioritize contact details (name, email, mobile) from the innermost forwarded section's sender or the email body; use the top-level sender only when nothing better is found. Look for patterns like "Name:", "PH:", "E MAIL:", or phone numbers in signatures.
- Identify product details from any part of the email. Support comma-separated specs, colon-separated key-value pairs, HTML or text tables, lists, and free text. Extract multiple products when listed.
- Map "PR No"/"RFQ number" to pr_no, dates (converted to YYYY-MM-DD) to pr_date, "Material Code"/"Legacy Code" to legacy_code, "Item Code"/"MODEL NUMBER"/"HSN Code" to item_code, quantities ("Qty-12 Nos") to qty as an integer, units of measure ("NOS", "UNITS") to uom, brand names to manufacturer.
- Construct description from available details when no full description is given. Preserve special characters. Set unavailable fields to null, never omit them.
- Set is_ambiguous to true when an item has only minimal details (product name, brand, quantity) and no unique identifier (model number, HSN code); set it to false when a unique identifier is present.
- Extract terms from sections labeled "Terms and Conditions" or "Special Instruction" into a single newline-joined string.
- Set is_contact_inquiry to true if the email contains RFQ, BOQ, product specs, PR No, quantities, or machine tools terms; false for spam or newsletters.
- Confidence: 0.9-0.95 for detailed RFQs with unique identifiers, 0.7-0.8 for minimal or ambiguous data, below 0.5 for spam.
- Return valid JSON only and handle malformed or incomplete content gracefully.`

// buildPrompt builds the plain extraction prompt: contact and line items
// only, matching happens locally afterwards.
func buildPrompt(bodyText, subject, fromEmail, fromName string) string {
	return fmt.Sprintf(`ANALYZE THIS RAW EMAIL CONTENT AND EXTRACT CONTACT AND PRODUCT INFORMATION IN JSON FORMAT:

Return a valid JSON object with contact and product details extracted from the raw email content, including headers, forwarded sections, HTML, and multi-part MIME structures, without any preprocessing.

EMAIL DETAILS:
- Subject: %s
- From: %s <%s>

%s

%s

Raw email content:
%s`,
		orDefault(subject, models.NoSubject),
		orDefault(fromName, models.UnknownName),
		orDefault(fromEmail, models.UnknownEmail),
		outputContract,
		extractionRules,
		orDefault(bodyText, "No content"),
	)
}

// buildCatalogPrompt embeds a serialized catalog snapshot and instructs the
// model to pre-match extracted items against it. Matches below the strict
// threshold or across misaligned categories must be excluded, so the
// pipeline can persist the asserted matches verbatim.
func buildCatalogPrompt(bodyText, subject, fromEmail, fromName string, catalog []models.CatalogEntry) string {
	snapshot, err := json.MarshalIndent(catalog, "", "  ")
	if err != nil {
		snapshot = []byte("[]")
	}

	return fmt.Sprintf(`ANALYZE THIS RAW EMAIL CONTENT AND EXTRACT CONTACT AND PRODUCT INFORMATION, THEN MATCH PRODUCTS WITH DATABASE PRODUCTS IN JSON FORMAT:

Return a valid JSON object with contact details, extracted product details, and matched products from the provided database products. Only include matches with high confidence (> %.1f) based on strict semantic and field-based matching. Exclude unmatched products from matchedProducts.

EMAIL DETAILS:
- Subject: %s
- From: %s <%s>

DATABASE PRODUCTS:
%s

%s

Additionally return a "matchedProducts" array, index-aligned with "products", where each entry carries the full database fields of the matched product (maincategory_id, maincategory_name, subcategory_id, subcategory_name, product_id, product_name, detail_id, batch, description, size, hsncode, gstrate, listprice, moq).

%s
- Match extracted products against DATABASE PRODUCTS using hsncode, batch, description, product_name, size, and category names. Prefer exact matches on hsncode or batch, then strong description/product_name overlap.
- Ensure category alignment: lifting equipment (HSN 8425) must not match hand tools (HSN 8204) or striking tools (HSN 8205) even on fuzzy text overlap.
- Exclude any match below the %.1f confidence threshold.

Raw email content:
%s`,
		matchConfidenceThreshold,
		orDefault(subject, models.NoSubject),
		orDefault(fromName, models.UnknownName),
		orDefault(fromEmail, models.UnknownEmail),
		snapshot,
		outputContract,
		extractionRules,
		matchConfidenceThreshold,
		orDefault(bodyText, "No content"),
	)
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
