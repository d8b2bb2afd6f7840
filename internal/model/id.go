package model

import "github.com/oklog/ulid/v2"

// NewRef generates a ULID string used as the stable reference of a submitted
// action. Unlike the numeric action id it never wraps, so journal rows and
// event topics are keyed by it.
func NewRef() string {
	return ulid.Make().String()
}
