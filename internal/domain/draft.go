package domain

import "time"

// ResponseType classifies the kind of reply a draft proposes.
type ResponseType string

const (
	ResponseMeeting        ResponseType = "meeting"
	ResponseQuestion       ResponseType = "question"
	ResponseRequest        ResponseType = "request"
	ResponseAcknowledgment ResponseType = "acknowledgment"
	ResponseGeneral        ResponseType = "general"
)

// DraftStatus is the lifecycle state of a draft candidate. There is no
// "sent" state anywhere in this system; sending is not a capability.
type DraftStatus string

const (
	DraftPendingApproval DraftStatus = "pending_approval"
	DraftDiscarded       DraftStatus = "discarded"
)

// DraftCandidate is a generated reply awaiting human approval.
type DraftCandidate struct {
	ID            string        `json:"id" db:"id"`
	MessageID     string        `json:"message_id" db:"message_id"`
	Recipient     string        `json:"recipient" db:"recipient"`
	RecipientName string        `json:"recipient_name" db:"recipient_name"`
	Subject       string        `json:"subject" db:"subject"`
	Body          string        `json:"body" db:"body"`
	ResponseType  ResponseType  `json:"response_type" db:"response_type"`
	Confidence    float64       `json:"confidence" db:"confidence"`
	Category      CategoryLabel `json:"category" db:"category"`
	Status        DraftStatus   `json:"status" db:"status"`
	CreatedAt     time.Time     `json:"created_at" db:"created_at"`
}
