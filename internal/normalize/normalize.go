// Package normalize converts raw Gmail API messages into canonical
// EmailRecord values. Malformed input is handled with defaults; the
// normalizer never returns an error for bad message content.
package normalize

import (
	"encoding/base64"
	"regexp"
	"strings"
	"time"

	"google.golang.org/api/gmail/v1"

	"github.com/ignite/inbox-assistant/internal/domain"
)

var (
	htmlTagRe    = regexp.MustCompile(`<[^>]+>`)
	nameAddrRe   = regexp.MustCompile(`^(.+?)\s*<(.+)>$`)
	addrDomainRe = regexp.MustCompile(`@([A-Za-z0-9.-]+)`)
	addrLocalRe  = regexp.MustCompile(`([^@<\s]+)@`)
)

// Date layouts seen in the wild, most common first.
var dateLayouts = []string{
	time.RFC1123Z,
	"Mon, 2 Jan 2006 15:04:05 -0700 (MST)",
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"2 Jan 2006 15:04:05 -0700",
	time.RFC1123,
}

// Record builds the canonical EmailRecord for a fetched message.
func Record(msg *gmail.Message) domain.EmailRecord {
	rec := domain.EmailRecord{
		ID:       msg.Id,
		ThreadID: msg.ThreadId,
		Snippet:  msg.Snippet,
		LabelIDs: msg.LabelIds,
		Headers:  map[string]string{},
	}
	rec.SizeBytes = msg.SizeEstimate

	if msg.Payload != nil {
		for _, h := range msg.Payload.Headers {
			rec.Headers[h.Name] = h.Value
		}
		rec.Body = extractBody(msg.Payload)
	}

	rec.Sender = rec.Header("From")
	rec.Recipient = rec.Header("To")
	rec.Subject = rec.Header("Subject")
	rec.SenderName = SenderName(rec.Sender)
	rec.SenderDomain = senderDomain(rec.Sender)
	rec.ReceivedAt = receivedAt(msg, rec.Header("Date"))

	return rec
}

// extractBody pulls text content out of the MIME payload. Plain text
// parts win; HTML is stripped to text only when no plain part exists.
func extractBody(payload *gmail.MessagePart) string {
	var plain, html strings.Builder

	var walk func(p *gmail.MessagePart)
	walk = func(p *gmail.MessagePart) {
		switch p.MimeType {
		case "text/plain":
			plain.WriteString(decodePart(p))
		case "text/html":
			html.WriteString(decodePart(p))
		}
		for _, child := range p.Parts {
			walk(child)
		}
	}
	walk(payload)

	if plain.Len() > 0 {
		return strings.TrimSpace(plain.String())
	}
	return strings.TrimSpace(htmlTagRe.ReplaceAllString(html.String(), ""))
}

func decodePart(p *gmail.MessagePart) string {
	if p.Body == nil || p.Body.Data == "" {
		return ""
	}
	data, err := base64.URLEncoding.WithPadding(base64.NoPadding).DecodeString(p.Body.Data)
	if err != nil {
		// Gmail sometimes pads; retry with standard URL encoding.
		data, err = base64.URLEncoding.DecodeString(p.Body.Data)
		if err != nil {
			return ""
		}
	}
	return string(data)
}

// SenderName extracts a display name from a From header. Falls back to a
// title-cased local part, then "there", so drafts always address someone.
func SenderName(sender string) string {
	if m := nameAddrRe.FindStringSubmatch(strings.TrimSpace(sender)); m != nil {
		name := strings.Trim(m[1], `" `)
		if name != "" {
			return name
		}
	}
	if m := addrLocalRe.FindStringSubmatch(sender); m != nil {
		name := strings.NewReplacer(".", " ", "_", " ").Replace(m[1])
		name = strings.TrimSpace(name)
		if len(name) > 1 {
			return titleCase(name)
		}
	}
	return "there"
}

func titleCase(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func senderDomain(sender string) string {
	if m := addrDomainRe.FindStringSubmatch(sender); m != nil {
		return strings.ToLower(m[1])
	}
	return ""
}

func receivedAt(msg *gmail.Message, dateHeader string) time.Time {
	if msg.InternalDate > 0 {
		return time.UnixMilli(msg.InternalDate).UTC()
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, strings.TrimSpace(dateHeader)); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
