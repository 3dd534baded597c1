// Package feedback relays station issue reports from the app by email.
package feedback

import "errors"

// ErrMissingFields is returned when a report lacks a station or an issue type.
var ErrMissingFields = errors.New("missing fields")

// Feedback is a station issue report.
type Feedback struct {
	Station string `json:"station"`
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
}

// Validate checks that the required fields are present.
func (f Feedback) Validate() error {
	if f.Station == "" || f.Type == "" {
		return ErrMissingFields
	}
	return nil
}

// Message is a plain-text email.
type Message struct {
	From    string
	To      string
	Subject string
	Body    string
}
