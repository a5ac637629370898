package normalize

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"google.golang.org/api/gmail/v1"
)

func encode(s string) string {
	return base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString([]byte(s))
}

func testMessage() *gmail.Message {
	return &gmail.Message{
		Id:           "msg-1",
		ThreadId:     "thread-1",
		Snippet:      "Can we schedule...",
		LabelIds:     []string{"INBOX", "UNREAD"},
		InternalDate: 1756382400000, // 2025-08-28T12:00:00Z
		SizeEstimate: 2048,
		Payload: &gmail.MessagePart{
			MimeType: "text/plain",
			Headers: []*gmail.MessagePartHeader{
				{Name: "From", Value: "Alice Smith <alice@example.com>"},
				{Name: "To", Value: "me@mydomain.com"},
				{Name: "Subject", Value: "Meeting on Thursday"},
			},
			Body: &gmail.MessagePartBody{Data: encode("Can we schedule a meeting?")},
		},
	}
}

func TestRecordBasicFields(t *testing.T) {
	rec := Record(testMessage())

	assert.Equal(t, "msg-1", rec.ID)
	assert.Equal(t, "thread-1", rec.ThreadID)
	assert.Equal(t, "Alice Smith <alice@example.com>", rec.Sender)
	assert.Equal(t, "Alice Smith", rec.SenderName)
	assert.Equal(t, "example.com", rec.SenderDomain)
	assert.Equal(t, "me@mydomain.com", rec.Recipient)
	assert.Equal(t, "Meeting on Thursday", rec.Subject)
	assert.Equal(t, "Can we schedule a meeting?", rec.Body)
	assert.Equal(t, []string{"INBOX", "UNREAD"}, rec.LabelIDs)
	assert.Equal(t, int64(2048), rec.SizeBytes)
	assert.Equal(t, time.UnixMilli(1756382400000).UTC(), rec.ReceivedAt)
}

func TestRecordMultipartPrefersPlainText(t *testing.T) {
	msg := testMessage()
	msg.Payload = &gmail.MessagePart{
		MimeType: "multipart/alternative",
		Headers: []*gmail.MessagePartHeader{
			{Name: "From", Value: "bob@example.com"},
		},
		Parts: []*gmail.MessagePart{
			{MimeType: "text/plain", Body: &gmail.MessagePartBody{Data: encode("plain version")}},
			{MimeType: "text/html", Body: &gmail.MessagePartBody{Data: encode("<p>html version</p>")}},
		},
	}
	rec := Record(msg)
	assert.Equal(t, "plain version", rec.Body)
}

func TestRecordStripsHTMLFallback(t *testing.T) {
	msg := testMessage()
	msg.Payload = &gmail.MessagePart{
		MimeType: "text/html",
		Body:     &gmail.MessagePartBody{Data: encode("<div><b>Hello</b> world</div>")},
	}
	rec := Record(msg)
	assert.Equal(t, "Hello world", rec.Body)
}

func TestRecordHeaderLookupCaseInsensitive(t *testing.T) {
	rec := Record(testMessage())
	assert.Equal(t, "Meeting on Thursday", rec.Header("subject"))
	assert.Equal(t, "Meeting on Thursday", rec.Header("SUBJECT"))
}

func TestRecordDateHeaderFallback(t *testing.T) {
	msg := testMessage()
	msg.InternalDate = 0
	msg.Payload.Headers = append(msg.Payload.Headers,
		&gmail.MessagePartHeader{Name: "Date", Value: "Thu, 28 Aug 2025 09:30:00 -0400"})

	rec := Record(msg)
	assert.Equal(t, time.Date(2025, 8, 28, 13, 30, 0, 0, time.UTC), rec.ReceivedAt)
}

func TestRecordHandlesEmptyMessage(t *testing.T) {
	rec := Record(&gmail.Message{Id: "empty"})

	assert.Equal(t, "empty", rec.ID)
	assert.Empty(t, rec.Body)
	assert.Equal(t, "there", rec.SenderName)
	assert.Empty(t, rec.SenderDomain)
	assert.True(t, rec.ReceivedAt.IsZero())
}

func TestSenderName(t *testing.T) {
	cases := []struct {
		sender string
		want   string
	}{
		{"Alice Smith <alice@example.com>", "Alice Smith"},
		{`"Smith, Alice" <alice@example.com>`, "Smith, Alice"},
		{"john.doe@example.com", "John Doe"},
		{"jane_roe@example.com", "Jane Roe"},
		{"x@example.com", "there"},
		{"", "there"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, SenderName(tc.sender), "sender %q", tc.sender)
	}
}

func TestRecordBadBase64IsEmptyBody(t *testing.T) {
	msg := testMessage()
	msg.Payload.Body = &gmail.MessagePartBody{Data: "%%% not base64 %%%"}
	rec := Record(msg)
	assert.Empty(t, rec.Body)
}
