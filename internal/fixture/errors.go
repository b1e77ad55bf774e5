package fixture

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by snapshot lookups that match no record.
var ErrNotFound = errors.New("record not found")

// IOError reports a datastore or fixture file that could not be used.
// It covers missing files, malformed JSON and schema violations alike.
type IOError struct {
	Path   string
	Reason string
	Err    error
}

func (e *IOError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fixture %s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("fixture %s: %s", e.Path, e.Reason)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// reasonMalformed marks a file that is not valid JSON.
const reasonMalformed = "malformed JSON"

// Torn reports whether err is a datastore read that found the file empty or
// cut short. The application rewrites the file in place, so a read between
// its truncate and its write sees this, and a later read may succeed.
func Torn(err error) bool {
	var ioErr *IOError
	return errors.As(err, &ioErr) && ioErr.Reason == reasonMalformed
}

// notFound wraps ErrNotFound with the collection that was searched.
func notFound(collection string) error {
	return fmt.Errorf("%s: %w", collection, ErrNotFound)
}
