package models

import "time"

type InteractionKind string

const (
	InteractionView     InteractionKind = "view"
	InteractionLike     InteractionKind = "like"
	InteractionSave     InteractionKind = "save"
	InteractionPurchase InteractionKind = "purchase"
	InteractionShare    InteractionKind = "share"
)

// InteractionKinds is the closed set of accepted kinds.
var InteractionKinds = []InteractionKind{
	InteractionView,
	InteractionLike,
	InteractionSave,
	InteractionPurchase,
	InteractionShare,
}

// ParseInteractionKind reports whether s names a known kind.
func ParseInteractionKind(s string) (InteractionKind, bool) {
	for _, k := range InteractionKinds {
		if string(k) == s {
			return k, true
		}
	}
	return "", false
}

// InteractionRecord is unique per (UserID, CandidateID, Kind).
type InteractionRecord struct {
	UserID      int64           `json:"user_id"`
	CandidateID int64           `json:"business_id"`
	Kind        InteractionKind `json:"interaction_type"`
	Weight      float64         `json:"weight"`
	Timestamp   time.Time       `json:"timestamp"`
}
