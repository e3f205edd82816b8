package domain

import "time"

// AlertRecord tracks the last delivered state of one condition on one
// channel, for deduplication and edit-in-place.
type AlertRecord struct {
	ConditionKey string     `json:"condition_key"`
	Channel      string     `json:"channel"`
	LastRef      MessageRef `json:"last_ref"`
	LastHash     uint64     `json:"last_hash"`
	LastSentAt   time.Time  `json:"last_sent_at"`
}
