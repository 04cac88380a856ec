package storage

import "time"

// Item is a single stored key/value pair.
type Item struct {
	Owner     string
	Key       string
	Value     string
	UpdatedAt time.Time
}

// PolicyRef identifies a recently viewed policy.
type PolicyRef struct {
	OPID      int    `json:"opid"`
	PolicyNo  string `json:"policyNo"`
	PolicyRef string `json:"policyRef"`
}

// TripDates is the remembered trip search range.
type TripDates struct {
	From string `json:"from"`
	To   string `json:"to"`
}
