package llm

import "time"

// TimestampLayout is the ISO-8601 layout used for turn timestamps.
// It is fixed-width so that lexicographic order equals chronological order.
const TimestampLayout = "2006-01-02T15:04:05.000000"

// Turn is one request/response pair tied to a call identifier.
// Turns are never mutated once stored.
type Turn struct {
	// CallID groups turns into a conversation. Nil when the caller sent none.
	CallID *string `json:"call_id"`

	// Request is the raw text received from the caller.
	Request string `json:"request"`

	// Response is the text generated by the completion service.
	Response string `json:"response"`

	// Timestamp is assigned at save time when empty.
	Timestamp string `json:"timestamp"`
}

// NewTurn builds a turn stamped with the current time. An empty callID is
// recorded as null.
func NewTurn(callID, request, response string) Turn {
	t := Turn{
		Request:   request,
		Response:  response,
		Timestamp: Timestamp(time.Now()),
	}
	if callID != "" {
		t.CallID = &callID
	}
	return t
}

// Timestamp formats t with TimestampLayout.
func Timestamp(t time.Time) string {
	return t.Format(TimestampLayout)
}

// HasCallID reports whether the turn belongs to the given call.
func (t Turn) HasCallID(callID string) bool {
	return t.CallID != nil && *t.CallID == callID
}

// CallIDString returns the call identifier or "" for anonymous turns.
func (t Turn) CallIDString() string {
	if t.CallID == nil {
		return ""
	}
	return *t.CallID
}
