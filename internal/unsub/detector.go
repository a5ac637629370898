// Package unsub extracts unsubscribe opportunities from promotional-leaning
// messages.
//
// Detection only runs on non-spam messages that are either classified
// promotional or sit in the advisory "gray zone" below the spam cutoff.
// A dedicated List-Unsubscribe header is the strongest signal; plain-text
// body links and mailto addresses rank lower. Candidates whose host is on
// the safe-domain allowlist are marked whitelisted and never flagged for
// review.
package unsub

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/ignite/inbox-assistant/internal/config"
	"github.com/ignite/inbox-assistant/internal/domain"
)

// Confidence per extraction source.
const (
	headerConfidence = 0.9
	bodyConfidence   = 0.6
	mailtoConfidence = 0.5
)

var (
	bodyURLRe   = regexp.MustCompile(`(?i)https?://[^\s<>"]+(?:unsubscribe|opt[_-]?out|remove)[^\s<>"]*`)
	mailtoRe    = regexp.MustCompile(`(?i)mailto:[^\s<>"]+(?:unsubscribe|remove)[^\s<>"]*`)
	headerURLRe = regexp.MustCompile(`<(https?://[^>]+)>`)
)

// Detector extracts and filters unsubscribe candidates. Safe for
// concurrent use.
type Detector struct {
	cfg      config.UnsubscribeConfig
	spamCut  float64
	advisory float64
}

// NewDetector builds a detector. spamCutoff is the active sensitivity
// cutoff; together with the advisory threshold it bounds the gray zone.
func NewDetector(cfg config.UnsubscribeConfig, spamCutoff float64) *Detector {
	return &Detector{cfg: cfg, spamCut: spamCutoff, advisory: cfg.AdvisoryThreshold}
}

// Detect returns the unsubscribe candidate for a message, or nil when the
// message is out of scope or carries no well-formed opportunity.
func (d *Detector) Detect(rec domain.EmailRecord, label domain.CategoryLabel, verdict domain.SpamVerdict) *domain.UnsubscribeCandidate {
	if !d.cfg.Enabled || verdict.IsSpam {
		return nil
	}
	grayZone := verdict.Score >= d.advisory && verdict.Score < d.spamCut
	if label != domain.CategoryPromotional && !grayZone {
		return nil
	}

	if cand := d.fromHeader(rec); cand != nil {
		return cand
	}
	return d.fromBody(rec)
}

// fromHeader reads the dedicated List-Unsubscribe header (RFC 2369).
func (d *Detector) fromHeader(rec domain.EmailRecord) *domain.UnsubscribeCandidate {
	header := rec.Header("List-Unsubscribe")
	if header == "" {
		return nil
	}
	if m := headerURLRe.FindStringSubmatch(header); m != nil {
		return d.candidate(m[1], headerConfidence, "header")
	}
	// Header may carry only a mailto entry.
	if m := mailtoRe.FindString(header); m != "" {
		return d.candidate(m, mailtoConfidence, "header")
	}
	return nil
}

// fromBody looks for the first well-formed URL adjacent to an
// unsubscribe-type phrase.
func (d *Detector) fromBody(rec domain.EmailRecord) *domain.UnsubscribeCandidate {
	body := strings.ToLower(rec.Body)
	phrased := false
	for _, kw := range d.cfg.Keywords {
		if strings.Contains(body, strings.ToLower(kw)) {
			phrased = true
			break
		}
	}
	if !phrased {
		return nil
	}

	if m := bodyURLRe.FindString(rec.Body); m != "" {
		return d.candidate(m, bodyConfidence, "body")
	}
	if m := mailtoRe.FindString(rec.Body); m != "" {
		return d.candidate(m, mailtoConfidence, "mailto")
	}
	return nil
}

func (d *Detector) candidate(raw string, confidence float64, source string) *domain.UnsubscribeCandidate {
	u, err := url.Parse(raw)
	if err != nil {
		return nil
	}
	return &domain.UnsubscribeCandidate{
		URL:         raw,
		Confidence:  confidence,
		Whitelisted: d.safeHost(u),
		Source:      source,
	}
}

func (d *Detector) safeHost(u *url.URL) bool {
	host := strings.ToLower(u.Hostname())
	if host == "" && u.Scheme == "mailto" {
		if i := strings.LastIndex(u.Opaque, "@"); i >= 0 {
			host = strings.ToLower(u.Opaque[i+1:])
		}
	}
	for _, safe := range d.cfg.SafeDomains {
		safe = strings.ToLower(safe)
		if host == safe || strings.HasSuffix(host, "."+safe) {
			return true
		}
	}
	return false
}
