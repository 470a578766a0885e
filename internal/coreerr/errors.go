package coreerr

import "errors"

// Kind is one of the error taxonomy buckets from the failure model: callers
// use errors.Is against these sentinels rather than inspecting message text.
type Kind error

var (
	// ErrInput covers malformed uploads: bad extension, oversized file, corrupt image.
	ErrInput Kind = errors.New("input error")
	// ErrDetectionMiss means every detector variant, on every enhancement pass, found nothing.
	ErrDetectionMiss Kind = errors.New("detection miss")
	// ErrExtraction means a face was detected but the crop was too small/degenerate to embed.
	ErrExtraction Kind = errors.New("extraction error")
	// ErrStorage wraps a failed read/write against Postgres or the blob store.
	ErrStorage Kind = errors.New("storage error")
	// ErrDevice covers camera acquisition/read failures in the live-scan path.
	ErrDevice Kind = errors.New("device error")
	// ErrMatchingEmpty means a live-scan capture matched no stored person, including
	// when the event has no stored embeddings at all.
	ErrMatchingEmpty Kind = errors.New("matching empty")
)

// Wrap tags err with a taxonomy kind while preserving the original error for errors.Is/As.
func Wrap(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &taggedError{kind: kind, cause: err}
}

type taggedError struct {
	kind  Kind
	cause error
}

func (e *taggedError) Error() string { return e.kind.Error() + ": " + e.cause.Error() }
func (e *taggedError) Unwrap() error { return e.cause }
func (e *taggedError) Is(target error) bool { return target == e.kind }
