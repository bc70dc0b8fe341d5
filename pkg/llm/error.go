// Package llm provides the internal representations shared by the relay,
// the completion backends and the turn storage drivers.
package llm

// ErrorResponse is the JSON body returned to callers when a request fails.
type ErrorResponse struct {
	Error string `json:"error"`
}
