package domain

import "time"

// SubscriptionStatus is a point-in-time snapshot derived from the ledger.
// ActiveNow holds iff EndTime was strictly in the future at query time; it
// goes stale between refreshes and is never counted down locally.
type SubscriptionStatus struct {
	EndTime        time.Time `json:"end_time"`
	EverSubscribed bool      `json:"ever_subscribed"`
	ActiveNow      bool      `json:"active_now"`
}

// ProofRecord is one decorative NFT receipt from the proof gallery.
type ProofRecord struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	ImageURL     string `json:"image_url"`
	ExplorerLink string `json:"explorer_link"`
}

// ActionResult reports the outcome of one paid-action invocation. Warnings
// carries non-fatal degradations (e.g. a dropped referrer); Status is set
// after a successful subscribe; FeedbackUnlocked after a successful feedback
// payment.
type ActionResult struct {
	ID               string              `json:"id"`
	Action           string              `json:"action"`
	Message          string              `json:"message,omitempty"`
	Warnings         []string            `json:"warnings,omitempty"`
	Approved         bool                `json:"approved"`
	Status           *SubscriptionStatus `json:"status,omitempty"`
	FeedbackUnlocked bool                `json:"feedback_unlocked,omitempty"`
}
