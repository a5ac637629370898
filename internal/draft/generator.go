// Package draft turns response-worthy messages into reply drafts awaiting
// human approval.
//
// The generator classifies intent with keyword cues, renders the matching
// Liquid template, and scores its own confidence. Low-confidence drafts
// are discarded before they ever reach the store, and nothing in this
// package (or the rest of the module) can send a draft.
package draft

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/osteele/liquid"

	"github.com/ignite/inbox-assistant/internal/config"
	"github.com/ignite/inbox-assistant/internal/domain"
)

// Base confidence per response type reflects how well the canned template
// fits that intent. Extra matching cues add a small signal bonus.
var baseConfidence = map[domain.ResponseType]float64{
	domain.ResponseMeeting:        0.80,
	domain.ResponseQuestion:       0.70,
	domain.ResponseRequest:        0.75,
	domain.ResponseAcknowledgment: 0.90,
	domain.ResponseGeneral:        0.60,
}

const (
	cueBonus    = 0.02
	maxCueBonus = 0.10
)

// Senders that never warrant a reply.
var automatedSenders = []string{"noreply", "no-reply", "donotreply", "automated", "notification"}

var (
	meetingCues = []string{"meeting", "schedule", "appointment"}
	requestCues = []string{"request", "need", "help", "assistance"}
	ackCues     = []string{"thank", "thanks", "appreciate"}
)

var defaultTemplates = map[domain.ResponseType]string{
	domain.ResponseMeeting: "Hi {{ sender_name }},\n\nThank you for your email regarding the meeting. " +
		"I'll review my calendar and get back to you with my availability shortly.\n\nBest regards",
	domain.ResponseQuestion: "Hi {{ sender_name }},\n\nThank you for your question. I'll need to review " +
		"this and provide you with a detailed response. I'll get back to you within 24 hours.\n\nBest regards",
	domain.ResponseRequest: "Hi {{ sender_name }},\n\nI've received your request and will review it " +
		"carefully. I'll respond with more details soon.\n\nThank you for reaching out.\n\nBest regards",
	domain.ResponseAcknowledgment: "Hi {{ sender_name }},\n\nYou're very welcome! I'm glad I could help.\n\nBest regards",
	domain.ResponseGeneral: "Hi {{ sender_name }},\n\nThank you for your email. I've received it and " +
		"will respond appropriately soon.\n\nBest regards",
}

// Generator renders gated draft candidates. Safe for concurrent use once
// constructed.
type Generator struct {
	cfg       config.AIResponseConfig
	engine    *liquid.Engine
	templates map[domain.ResponseType]*liquid.Template
	now       func() time.Time
}

// NewGenerator compiles the configured response templates, falling back to
// the built-in ones per type. Returns an error only for unparseable
// configured templates (a validation failure, fatal at startup).
func NewGenerator(cfg config.AIResponseConfig) (*Generator, error) {
	engine := liquid.NewEngine()
	templates := make(map[domain.ResponseType]*liquid.Template, len(defaultTemplates))

	for rtype, fallback := range defaultTemplates {
		src := fallback
		if custom, ok := cfg.ResponseTemplates[string(rtype)]; ok && custom != "" {
			src = custom
		}
		tpl, err := engine.ParseString(src)
		if err != nil {
			return nil, fmt.Errorf("parse %s template: %w", rtype, err)
		}
		templates[rtype] = tpl
	}

	return &Generator{cfg: cfg, engine: engine, templates: templates, now: time.Now}, nil
}

// Generate returns the draft candidate for a message, or nil when the
// message warrants no response or confidence falls below the configured
// threshold (the threshold itself is inclusive: equal confidence persists).
func (g *Generator) Generate(rec domain.EmailRecord, label domain.CategoryLabel) *domain.DraftCandidate {
	if !g.cfg.Enabled {
		return nil
	}
	if label != domain.CategoryBusiness && label != domain.CategoryPersonal {
		return nil
	}
	sender := strings.ToLower(rec.Sender)
	for _, marker := range automatedSenders {
		if strings.Contains(sender, marker) {
			return nil
		}
	}

	rtype, cueMatches := intent(rec)
	confidence := baseConfidence[rtype] + signalBonus(cueMatches)
	if confidence < g.cfg.ConfidenceThreshold {
		return nil
	}

	body, err := g.render(rtype, rec)
	if err != nil {
		// Template bound at startup; a render failure means a bad custom
		// binding value. Treat as no draft rather than a run error.
		return nil
	}

	return &domain.DraftCandidate{
		ID:            "draft_" + uuid.New().String(),
		MessageID:     rec.ID,
		Recipient:     rec.Sender,
		RecipientName: rec.SenderName,
		Subject:       replySubject(rec.Subject),
		Body:          body,
		ResponseType:  rtype,
		Confidence:    confidence,
		Category:      label,
		Status:        domain.DraftPendingApproval,
		CreatedAt:     g.now().UTC(),
	}
}

// intent picks the response type and counts how many cues of that type
// matched. Cue groups are checked in a fixed order (meeting, question,
// request, acknowledgment) so the result is deterministic.
func intent(rec domain.EmailRecord) (domain.ResponseType, int) {
	text := strings.ToLower(rec.Subject) + "\n" + strings.ToLower(rec.Body)

	if n := countCues(text, meetingCues); n > 0 {
		return domain.ResponseMeeting, n
	}
	if strings.Contains(text, "?") {
		return domain.ResponseQuestion, strings.Count(text, "?")
	}
	if n := countCues(text, requestCues); n > 0 {
		return domain.ResponseRequest, n
	}
	if n := countCues(text, ackCues); n > 0 {
		return domain.ResponseAcknowledgment, n
	}
	return domain.ResponseGeneral, 0
}

func countCues(text string, cues []string) int {
	n := 0
	for _, cue := range cues {
		if strings.Contains(text, cue) {
			n++
		}
	}
	return n
}

func signalBonus(cueMatches int) float64 {
	if cueMatches <= 1 {
		return 0
	}
	bonus := float64(cueMatches-1) * cueBonus
	if bonus > maxCueBonus {
		bonus = maxCueBonus
	}
	return bonus
}

func (g *Generator) render(rtype domain.ResponseType, rec domain.EmailRecord) (string, error) {
	out, err := g.templates[rtype].RenderString(map[string]any{
		"sender_name": rec.SenderName,
		"subject":     rec.Subject,
	})
	if err != nil {
		return "", err
	}
	if g.cfg.MaxResponseLength > 0 && len(out) > g.cfg.MaxResponseLength {
		out = out[:g.cfg.MaxResponseLength]
	}
	return out, nil
}

func replySubject(subject string) string {
	if strings.HasPrefix(strings.ToLower(subject), "re:") {
		return subject
	}
	return "Re: " + subject
}
