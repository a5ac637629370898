// Package spam implements heuristic spam scoring.
//
// Each matched signal contributes an additive weight and the aggregate is
// clamped to [0,1], so the score never decreases as signals accumulate.
// A whitelisted sender domain beats everything: the verdict is ham
// regardless of score.
package spam

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/ignite/inbox-assistant/internal/config"
	"github.com/ignite/inbox-assistant/internal/domain"
)

// Signal weights. Tuned against the keyword lists shipped in the default
// configuration; sensitivity moves the cutoff, not the weights.
const (
	keywordWeight = 0.2
	domainWeight  = 0.5
	allCapsWeight = 0.3
	punctWeight   = 0.2
	urgencyWeight = 0.3
)

// Scorer scores messages against a fixed rule set. Safe for concurrent use.
type Scorer struct {
	cfg    config.SpamConfig
	cutoff float64
}

// NewScorer builds a scorer from validated configuration.
func NewScorer(cfg config.SpamConfig) *Scorer {
	return &Scorer{cfg: cfg, cutoff: cfg.Cutoff()}
}

// Score computes the spam verdict for one message. Empty subject or body
// contributes zero signal; scoring never fails.
func (s *Scorer) Score(rec domain.EmailRecord) domain.SpamVerdict {
	if !s.cfg.Enabled {
		return domain.SpamVerdict{Reason: "spam detection disabled"}
	}

	subject := strings.ToLower(rec.Subject)
	body := strings.ToLower(rec.Body)
	text := subject + "\n" + body

	var (
		score   float64
		reasons []string
		verdict domain.SpamVerdict
	)

	for _, kw := range s.cfg.Keywords {
		if strings.Contains(text, strings.ToLower(kw)) {
			verdict.MatchedKeywords = append(verdict.MatchedKeywords, kw)
		}
	}
	if n := len(verdict.MatchedKeywords); n > 0 {
		sort.Strings(verdict.MatchedKeywords)
		score += float64(n) * keywordWeight
		reasons = append(reasons, fmt.Sprintf("contains %d spam keywords", n))
	}

	senderLower := strings.ToLower(rec.Sender)
	for _, d := range s.cfg.SuspiciousDomains {
		if strings.Contains(senderLower, strings.ToLower(d)) {
			verdict.MatchedDomain = d
			score += domainWeight
			reasons = append(reasons, "suspicious sender domain: "+d)
			break
		}
	}

	if capsRatio(rec.Subject) > s.cfg.CapsRatioCutoff {
		verdict.Flags = append(verdict.Flags, domain.FlagAllCaps)
		score += allCapsWeight
		reasons = append(reasons, "excessive capital letters")
	}
	if strings.Count(rec.Subject, "!") > s.cfg.MaxExclamations {
		verdict.Flags = append(verdict.Flags, domain.FlagExcessPunct)
		score += punctWeight
		reasons = append(reasons, "excessive punctuation")
	}
	for _, phrase := range s.cfg.UrgencyPhrases {
		if strings.Contains(text, strings.ToLower(phrase)) {
			verdict.Flags = append(verdict.Flags, domain.FlagUrgency)
			score += urgencyWeight
			reasons = append(reasons, "contains urgent language")
			break
		}
	}

	if score > 1 {
		score = 1
	}
	verdict.Score = score

	if s.whitelisted(rec.SenderDomain) {
		verdict.Whitelisted = true
		verdict.Reason = "sender domain whitelisted"
		return verdict
	}

	verdict.IsSpam = score >= s.cutoff
	if len(reasons) > 0 {
		verdict.Reason = strings.Join(reasons, "; ")
	} else {
		verdict.Reason = "no spam indicators"
	}
	return verdict
}

func (s *Scorer) whitelisted(senderDomain string) bool {
	for _, d := range s.cfg.WhitelistDomains {
		if strings.EqualFold(d, senderDomain) {
			return true
		}
	}
	return false
}

// capsRatio returns the share of letters in s that are uppercase,
// measured against the full subject length the way the original tuning
// was done.
func capsRatio(s string) float64 {
	if len(s) == 0 {
		return 0
	}
	upper := 0
	for _, r := range s {
		if unicode.IsUpper(r) {
			upper++
		}
	}
	return float64(upper) / float64(len([]rune(s)))
}
