package version

import (
	"fmt"
)

// Kind classifies the failures GenerateVersion can surface. Lock-path
// signals (no lock, expired, timed out) never appear here: they drive
// control flow inside the coordinator and are handled there.
type Kind string

const (
	// KindNoSuchSource: the blob store could not supply the original.
	KindNoSuchSource Kind = "no-such-source"
	// KindTransform: the transform collaborator failed (bad or
	// corrupt input, unsupported format).
	KindTransform Kind = "transform-failed"
	// KindUpload: uploading the generated version failed, including
	// a non-success transport status.
	KindUpload Kind = "upload-failed"
	// KindStore: the key-value store is unreachable or misbehaving.
	KindStore Kind = "store-unavailable"
	// KindLockTimeout: the build could not proceed and the lock
	// never cleared. Should not normally happen, since a lock
	// failure is the trigger to build, not a terminal error.
	KindLockTimeout Kind = "lock-timeout"
)

// Error is the one error type GenerateVersion returns: a kind for
// dispatch, and the underlying cause for logs.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

// ErrorKind extracts the Kind from an error returned by this package,
// or "" if it isn't one of ours.
func ErrorKind(err error) Kind {
	if e, ok := err.(*Error); ok {
		return e.Kind
	}
	return ""
}

func failure(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}
