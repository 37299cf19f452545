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

// Package decode turns raw RFC-822 message bytes into a normalised
// DecodedEmail. Every extraction step is individually guarded: a field that
// cannot be parsed degrades to its sentinel default instead of failing the
// message, so the decoder never aborts the pipeline.
package decode

import (
	"bytes"
	"io"
	"log/slog"
	"regexp"
	"strings"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"

	"github.com/sbscrm/leadingest/internal/models"
)

// angleAddr extracts the address from a raw "Name <addr>" header line when
// structured parsing fails.
var angleAddr = regexp.MustCompile(`<([^>]+)>`)

// Decode parses raw header and body bytes into a DecodedEmail. It never
// returns an error; unparseable fields fall back to sentinel values and the
// body degrades to the raw text.
func Decode(rawHeader, rawBody []byte) models.DecodedEmail {
	decoded := models.DecodedEmail{
		FromEmail: models.UnknownEmail,
		FromName:  models.UnknownName,
		Subject:   models.NoSubject,
		MessageID: models.NoMessageID,
		BodyText:  string(rawBody),
	}

	full := make([]byte, 0, len(rawHeader)+len(rawBody)+4)
	full = append(full, rawHeader...)
	if !bytes.HasSuffix(rawHeader, []byte("\r\n\r\n")) && !bytes.HasSuffix(rawHeader, []byte("\n\n")) {
		full = append(full, "\r\n"...)
	}
	full = append(full, rawBody...)

	mr, err := mail.CreateReader(bytes.NewReader(full))
	if err != nil && mr == nil {
		// Headers too broken for structured parsing — best-effort regex
		// over the raw header lines.
		slog.Warn("structured MIME parse failed, using raw header fallback", "error", err)
		applyHeaderFallback(&decoded, string(rawHeader))
		return decoded
	}

	header := mr.Header

	if from, err := header.AddressList("From"); err == nil && len(from) > 0 && from[0] != nil {
		if from[0].Address != "" {
			decoded.FromEmail = from[0].Address
		}
		if from[0].Name != "" {
			decoded.FromName = from[0].Name
		}
	} else {
		applyHeaderFallback(&decoded, header.Get("From"))
	}

	if subject, err := header.Subject(); err == nil && subject != "" {
		decoded.Subject = subject
	} else if raw := header.Get("Subject"); raw != "" {
		decoded.Subject = raw
	}

	if id, err := header.MessageID(); err == nil && id != "" {
		decoded.MessageID = id
	} else if raw := strings.Trim(header.Get("Message-Id"), "<> "); raw != "" {
		decoded.MessageID = raw
	}

	if body := extractBody(mr); body != "" {
		decoded.BodyText = body
	}

	return decoded
}

// extractBody walks the MIME parts and concatenates every inline text part.
// Multipart and malformed messages yield whatever text could be recovered.
func extractBody(mr *mail.Reader) string {
	var parts []string

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Unknown charsets and malformed parts are common in the
			// wild — keep whatever was already collected.
			if message.IsUnknownCharset(err) {
				continue
			}
			slog.Debug("skipping unreadable MIME part", "error", err)
			break
		}

		switch part.Header.(type) {
		case *mail.InlineHeader:
			body, err := io.ReadAll(part.Body)
			if err != nil {
				slog.Debug("failed to read part body", "error", err)
				continue
			}
			if text := strings.TrimSpace(string(body)); text != "" {
				parts = append(parts, text)
			}
		default:
			// Attachments are not part of the extraction input
		}
	}

	return strings.Join(parts, "\n")
}

// applyHeaderFallback pulls a sender out of a raw From header line by
// splitting on <...> angle brackets.
func applyHeaderFallback(decoded *models.DecodedEmail, fromLine string) {
	fromLine = strings.TrimSpace(fromLine)
	if fromLine == "" {
		return
	}

	if m := angleAddr.FindStringSubmatch(fromLine); m != nil {
		decoded.FromEmail = m[1]
		if name := strings.TrimSpace(strings.Trim(fromLine[:strings.Index(fromLine, "<")], `" `)); name != "" {
			decoded.FromName = name
		}
		return
	}

	if strings.Contains(fromLine, "@") {
		decoded.FromEmail = fromLine
	}
}
