package client

import (
	"errors"
	"fmt"
)

// MalformedResponseError marks a provider response that arrived but could
// not be parsed into the expected structure. Callers use this to tell
// parse failures apart from transport failures when deciding to retry.
type MalformedResponseError struct {
	Provider string
	Err      error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("%s returned a malformed response: %v", e.Provider, e.Err)
}

func (e *MalformedResponseError) Unwrap() error {
	return e.Err
}

// IsMalformedResponse reports whether err is (or wraps) a malformed
// provider response.
func IsMalformedResponse(err error) bool {
	var m *MalformedResponseError
	return errors.As(err, &m)
}
