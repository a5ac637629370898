package domain

// HeuristicFlag identifies an independent spam heuristic that fired.
type HeuristicFlag string

const (
	FlagAllCaps     HeuristicFlag = "all_caps"
	FlagUrgency     HeuristicFlag = "urgency"
	FlagExcessPunct HeuristicFlag = "excess_punctuation"
)

// SpamVerdict is the outcome of scoring one message. Score is in [0,1]
// and never decreases when more signals match.
type SpamVerdict struct {
	IsSpam          bool            `json:"is_spam"`
	Score           float64         `json:"score"`
	MatchedKeywords []string        `json:"matched_keywords,omitempty"`
	MatchedDomain   string          `json:"matched_domain,omitempty"`
	Flags           []HeuristicFlag `json:"flags,omitempty"`
	Whitelisted     bool            `json:"whitelisted,omitempty"`
	Reason          string          `json:"reason,omitempty"`
}

// HasFlag reports whether the given heuristic fired.
func (v SpamVerdict) HasFlag(f HeuristicFlag) bool {
	for _, fl := range v.Flags {
		if fl == f {
			return true
		}
	}
	return false
}

// CategoryLabel names the single category assigned to a message. The
// built-in set is closed; custom categories carry their configured name.
type CategoryLabel string

const (
	CategoryBusiness    CategoryLabel = "business"
	CategoryPersonal    CategoryLabel = "personal"
	CategoryPromotional CategoryLabel = "promotional"
	CategorySocial      CategoryLabel = "social"
	CategoryOther       CategoryLabel = "other"
)

// BuiltinCategoryOrder is the fixed tie-break priority for built-in
// categories. Custom categories sort after these, in configuration order,
// unless they override priority explicitly.
var BuiltinCategoryOrder = []CategoryLabel{
	CategoryBusiness,
	CategoryPersonal,
	CategoryPromotional,
	CategorySocial,
	CategoryOther,
}

// Category is one classification rule: a label plus the keyword set that
// votes for it. Priority is the tie-break rank (lower wins).
type Category struct {
	Label    CategoryLabel `json:"label"`
	Keywords []string      `json:"keywords"`
	Priority int           `json:"priority"`
}

// UnsubscribeCandidate is an extracted unsubscribe opportunity.
// Whitelisted candidates come from known legitimate senders and are
// never flagged for review.
type UnsubscribeCandidate struct {
	URL         string  `json:"url"`
	Confidence  float64 `json:"confidence"`
	Whitelisted bool    `json:"whitelisted"`
	Source      string  `json:"source"` // "header", "body" or "mailto"
}
