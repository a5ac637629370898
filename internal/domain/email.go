package domain

import (
	"strings"
	"time"
)

// EmailRecord is the canonical form of a fetched message. It is immutable
// once produced by normalization and owned by the run that produced it.
type EmailRecord struct {
	ID           string            `json:"id"`
	ThreadID     string            `json:"thread_id"`
	Sender       string            `json:"sender"`
	SenderName   string            `json:"sender_name"`
	SenderDomain string            `json:"sender_domain"`
	Recipient    string            `json:"recipient"`
	Subject      string            `json:"subject"`
	Body         string            `json:"body"`
	Snippet      string            `json:"snippet"`
	Headers      map[string]string `json:"headers"`
	LabelIDs     []string          `json:"label_ids"`
	ReceivedAt   time.Time         `json:"received_at"`
	SizeBytes    int64             `json:"size_bytes"`
}

// Header returns the named header, compared case-insensitively the way
// mail headers are. Returns "" when absent.
func (r EmailRecord) Header(name string) string {
	if v, ok := r.Headers[name]; ok {
		return v
	}
	for k, v := range r.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}
