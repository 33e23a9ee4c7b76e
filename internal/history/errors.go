package history

import "errors"

var (
	// ErrSourceUnavailable reports that the history log could not be opened or read.
	ErrSourceUnavailable = errors.New("history source unavailable")

	// ErrMalformedRecord reports an entry spanning more physical lines than
	// allowed without a delimiter.
	ErrMalformedRecord = errors.New("malformed history record")
)
