// Package classify assigns exactly one category label per message.
//
// Every category votes by counting keyword matches (case-insensitive
// substring over subject+body); the highest count wins. Ties are broken
// by a fixed priority order (business, personal, promotional, social,
// other, then custom categories in configuration order) so the result
// is deterministic and reproducible.
package classify

import (
	"sort"
	"strings"

	"github.com/ignite/inbox-assistant/internal/config"
	"github.com/ignite/inbox-assistant/internal/domain"
)

// Classifier is a compiled rule table. Safe for concurrent use.
type Classifier struct {
	// categories in tie-break order, best priority first
	categories []domain.Category
}

// NewClassifier compiles the configured keyword sets into an ordered rule
// table. Custom categories slot in after the built-ins unless they carry
// an explicit priority override.
func NewClassifier(cfg config.CategorizationConfig) *Classifier {
	builtin := []domain.Category{
		{Label: domain.CategoryBusiness, Keywords: cfg.BusinessKeywords, Priority: 10},
		{Label: domain.CategoryPersonal, Keywords: cfg.PersonalKeywords, Priority: 20},
		{Label: domain.CategoryPromotional, Keywords: cfg.PromotionalKeywords, Priority: 30},
		{Label: domain.CategorySocial, Keywords: cfg.SocialKeywords, Priority: 40},
		{Label: domain.CategoryOther, Priority: 50},
	}

	cats := builtin
	for i, cc := range cfg.CustomCategories {
		prio := cc.Priority
		if prio == 0 {
			prio = 100 + i // after all built-ins, in configuration order
		}
		cats = append(cats, domain.Category{
			Label:    domain.CategoryLabel(cc.Name),
			Keywords: lowered(cc.Keywords),
			Priority: prio,
		})
	}

	for i := range cats {
		cats[i].Keywords = lowered(cats[i].Keywords)
	}
	sort.SliceStable(cats, func(i, j int) bool { return cats[i].Priority < cats[j].Priority })
	return &Classifier{categories: cats}
}

// Classify returns the single label for a message. Zero matches across
// all categories yields CategoryOther.
func (c *Classifier) Classify(rec domain.EmailRecord) domain.CategoryLabel {
	text := strings.ToLower(rec.Subject) + "\n" + strings.ToLower(rec.Body)

	best := domain.CategoryOther
	bestCount := 0
	// categories are pre-sorted by priority, so the first max wins ties
	for _, cat := range c.categories {
		count := 0
		for _, kw := range cat.Keywords {
			if kw != "" && strings.Contains(text, kw) {
				count++
			}
		}
		if count > bestCount {
			best = cat.Label
			bestCount = count
		}
	}
	return best
}

func lowered(keywords []string) []string {
	out := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		out = append(out, strings.ToLower(strings.TrimSpace(kw)))
	}
	return out
}
