package lending

// DispatchThreshold is the number of distinct valid ids at which a checkout
// is fanned out to the task queue instead of running as one bulk update.
const DispatchThreshold = 5

// Status is the result of one item within a checkout.
type Status string

const (
	StatusProcessed    Status = "processed"
	StatusNotProcessed Status = "not_processed"
)

// Reasons attached to not_processed outcomes. They are logged, not returned:
// callers see only the two-way partition.
const (
	// ReasonMalformedID marks an id that is not a valid record identifier.
	ReasonMalformedID = "malformed_id"
	// ReasonUnavailable marks an item that does not exist or is already held.
	ReasonUnavailable = "unavailable"
)

// Outcome is the result for one requested item.
type Outcome struct {
	ItemID string
	Status Status
	Reason string
}

// Processed returns a successful outcome for id.
func Processed(id string) Outcome {
	return Outcome{ItemID: id, Status: StatusProcessed}
}

// NotProcessed returns a failed outcome for id.
func NotProcessed(id, reason string) Outcome {
	return Outcome{ItemID: id, Status: StatusNotProcessed, Reason: reason}
}

// Partition is the checkout response: every requested id appears in exactly one list.
type Partition struct {
	ProcessedIDs    []string `json:"processed_ids"`
	NotProcessedIDs []string `json:"not_processed_ids"`
}

// Len returns the number of ids accounted for.
func (p Partition) Len() int {
	return len(p.ProcessedIDs) + len(p.NotProcessedIDs)
}
