package lending

// Aggregate folds outcomes into a Partition.
// Each id is reported once, in first-seen order. When an id has several
// outcomes, processed wins: it reflects a committed hold.
func Aggregate(outcomes []Outcome) Partition {
	p := Partition{
		ProcessedIDs:    []string{},
		NotProcessedIDs: []string{},
	}

	order := make([]string, 0, len(outcomes))
	status := make(map[string]Status, len(outcomes))
	for _, o := range outcomes {
		prev, seen := status[o.ItemID]
		if !seen {
			order = append(order, o.ItemID)
		}
		if !seen || prev != StatusProcessed {
			status[o.ItemID] = o.Status
		}
	}

	for _, id := range order {
		if status[id] == StatusProcessed {
			p.ProcessedIDs = append(p.ProcessedIDs, id)
		} else {
			p.NotProcessedIDs = append(p.NotProcessedIDs, id)
		}
	}
	return p
}
