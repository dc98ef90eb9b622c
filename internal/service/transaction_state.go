package service

import "strings"

// Transfer status transitions. Terminal states have no successors; CANCELLED
// is reachable from PENDING only, before any provider call has been made.
var transactionTransitions = map[string]map[string]struct{}{
	"PENDING": {
		"PROCESSING": {},
		"FAILED":     {},
		"CANCELLED":  {},
	},
	"PROCESSING": {
		"COMPLETED": {},
		"FAILED":    {},
	},
	"COMPLETED": {},
	"FAILED":    {},
	"CANCELLED": {},
}

func normalizeState(state string) string {
	return strings.ToUpper(strings.TrimSpace(state))
}

func canTransition(current, next string) bool {
	nextStates, ok := transactionTransitions[normalizeState(current)]
	if !ok {
		return false
	}
	_, ok = nextStates[normalizeState(next)]
	return ok
}
