// Package cos provides the small set of common low-level types this client
// needs, trimmed down from the teacher's cmn/cos (which serves an entire
// storage cluster) to sentinel error shapes and id generation.
package cos

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrNotFound mirrors the teacher's cmn/cos.ErrNotFound shape: a typed
// "missing X" error distinguishable via errors.As, rather than a bare
// errors.New, so callers can branch on it (e.g. the retry controller
// hands a failed resend to the controller shortcut when its error is of
// this type).
type ErrNotFound struct {
	what string
}

func NewErrNotFound(format string, a ...any) *ErrNotFound {
	return &ErrNotFound{fmt.Sprintf(format, a...)}
}

func (e *ErrNotFound) Error() string { return e.what + " not found" }

func IsErrNotFound(err error) bool {
	_, ok := errors.Cause(err).(*ErrNotFound)
	return ok
}

// Reassembly failure categories (spec.md §4.4, §7).
var (
	ErrMissingFragment    = errors.New("missing fragment")
	ErrDecodingFailed     = errors.New("invalid utf-8 in reassembled payload")
	ErrDeserializeFailed  = errors.New("invalid json in reassembled payload")
)

// Wrap adds call-site context the way the teacher wraps errors crossing a
// goroutine/channel boundary, via the same pkg/errors dependency the
// teacher's go.mod already carries.
func Wrap(err error, format string, a ...any) error {
	return errors.Wrapf(err, format, a...)
}
