package catalog

import "fmt"

// FetchError reports a failed read from the remote catalog.
// StatusCode is zero when the request never got an HTTP answer.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("could not fetch %s (status %d): %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("could not fetch %s: unexpected status %d", e.URL, e.StatusCode)
}

func (e *FetchError) Unwrap() error { return e.Err }

// WriteError reports a failed album creation, deletion or photo upload.
type WriteError struct {
	Op         string
	URL        string
	StatusCode int
	Err        error
}

func (e *WriteError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s (status %d): %v", e.Op, e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s: unexpected status %d", e.Op, e.URL, e.StatusCode)
}

func (e *WriteError) Unwrap() error { return e.Err }
