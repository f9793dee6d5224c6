package flow

// SlotEvaluation is the completeness verdict for a ticket's field set.
type SlotEvaluation struct {
	Missing  []string
	Complete bool
}

// EvaluateSlots computes which required fields are still absent from the
// known set. Pure: no I/O, no mutation, stable order (required order).
// A field counts as known only when its value is non-empty.
func EvaluateSlots(required []string, known map[string]string) SlotEvaluation {
	missing := make([]string, 0, len(required))
	for _, field := range required {
		if known[field] == "" {
			missing = append(missing, field)
		}
	}
	return SlotEvaluation{Missing: missing, Complete: len(missing) == 0}
}
