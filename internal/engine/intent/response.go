package intent

import "strings"

// Response is the tri-state routing discriminant set by the intake stage.
type Response string

const (
	// ResponseUnset is the sentinel value a turn starts with; stale
	// routing from a prior turn is a bug, so intake always overwrites it.
	ResponseUnset    Response = "unset"
	ResponseAction   Response = "action"
	ResponseQuestion Response = "question"
	ResponseExit     Response = "exit"
)

var (
	actionResponseWords = []string{"attack", "move", "cast", "use", "take", "open", "go"}
	questionWords       = []string{"what", "where", "who", "why", "how", "tell me"}
	exitWords           = []string{"quit", "exit", "goodbye"}
)

// ClassifyResponse decides whether raw input is an action, a question, or
// an exit request. Overlapping keywords resolve action first, so "take
// the exit" plays as an action rather than ending the session. Ambiguous
// input stays ResponseUnset and routes to the safe terminal downstream.
func ClassifyResponse(input string) Response {
	lowered := strings.ToLower(input)
	switch {
	case containsAny(lowered, actionResponseWords):
		return ResponseAction
	case strings.Contains(lowered, "?") || containsAny(lowered, questionWords):
		return ResponseQuestion
	case containsAny(lowered, exitWords):
		return ResponseExit
	default:
		return ResponseUnset
	}
}
