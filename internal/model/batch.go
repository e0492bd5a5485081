package model

// OutcomeStatus is the settled state of one batch entry.
type OutcomeStatus string

const (
	OutcomeFulfilled OutcomeStatus = "fulfilled"
	OutcomeRejected  OutcomeStatus = "rejected"
)

// Outcome holds the settled result of creating one item in a batch.
type Outcome struct {
	Status OutcomeStatus `json:"status"`
	Value  *Item         `json:"value,omitempty"`
	Reason string        `json:"reason,omitempty"`
}

// BatchResult aggregates a batch run. Results has one entry per input item,
// in input order.
type BatchResult struct {
	Total      int       `json:"total"`
	Successful int       `json:"successful"`
	Failed     int       `json:"failed"`
	Results    []Outcome `json:"results"`
}
