// internal/record/errors.go

package record

import "errors"

// ErrWriterOpen marks a sink that could not be opened for a segment.
// The recorder logs it and skips writes until the next rotation
// boundary tries a fresh sink.
var ErrWriterOpen = errors.New("record: writer open failed")
