// Package scan holds the scan-result aggregation rules as pure functions
// over types.ScanState. Callers own the state value and serialize updates.
package scan

import "github.com/lyallcooper/barscan/internal/types"

// MaxHistory is the number of distinct results kept in history.
const MaxHistory = 10

// NewState returns the state a scanner starts with on activation.
func NewState() types.ScanState {
	return types.ScanState{
		Phase:   types.PhaseIdle,
		History: []types.ScanResult{},
	}
}

// OnDecoded applies a freshly decoded result. CurrentResult always becomes
// the new result; history only grows when the text has not been seen.
//
// The input history slice is never modified, so earlier snapshots stay valid.
func OnDecoded(state types.ScanState, result types.ScanResult) types.ScanState {
	current := result
	state.CurrentResult = &current

	if Contains(state.History, result.Text) {
		return state
	}

	history := make([]types.ScanResult, 0, len(state.History)+1)
	history = append(history, result)
	history = append(history, state.History...)
	if len(history) > MaxHistory {
		history = history[:MaxHistory]
	}
	state.History = history
	return state
}

// ClearHistory empties the history. The current result is left alone.
func ClearHistory(state types.ScanState) types.ScanState {
	state.History = []types.ScanResult{}
	return state
}

// Contains reports whether history already holds an entry with exactly text.
func Contains(history []types.ScanResult, text string) bool {
	for _, r := range history {
		if r.Text == text {
			return true
		}
	}
	return false
}

// Find returns the entry with the given ID from the current result or history.
func Find(state types.ScanState, id string) (types.ScanResult, bool) {
	if state.CurrentResult != nil && state.CurrentResult.ID == id {
		return *state.CurrentResult, true
	}
	for _, r := range state.History {
		if r.ID == id {
			return r, true
		}
	}
	return types.ScanResult{}, false
}

// Clone returns a deep copy safe to hand to another goroutine.
func Clone(state types.ScanState) types.ScanState {
	if state.CurrentResult != nil {
		current := *state.CurrentResult
		state.CurrentResult = &current
	}
	history := make([]types.ScanResult, len(state.History))
	copy(history, state.History)
	state.History = history
	return state
}
