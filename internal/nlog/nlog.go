// Package nlog is the client's logger, adapted from the teacher's own
// cmn/nlog: a small leveled writer with no external dependency, because
// the teacher does not reach for a third-party logging library for this
// concern either (see DESIGN.md "ambient/logging"). Unlike the teacher's
// daemon-oriented nlog — which shards output across rotating per-severity
// files — this client is a single long-running process with no log
// rotation requirement, so the buffering/rotation machinery is dropped
// and only the severity + mutex-guarded-writer idiom survives.
package nlog

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

type severity int32

const (
	sevInfo severity = iota
	sevWarn
	sevErr
)

func (s severity) tag() string {
	switch s {
	case sevWarn:
		return "W"
	case sevErr:
		return "E"
	default:
		return "I"
	}
}

var (
	mu     sync.Mutex
	out    io.Writer = os.Stderr
	level  atomic.Int32
	prefix atomic.Value // string
)

// SetOutput redirects all log output, which goes to stderr by default.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
}

// SetVerbosity sets the minimum severity that is actually written.
// 0 (default) logs everything; 1 drops Info; 2 drops Info and Warning.
func SetVerbosity(v int) { level.Store(int32(v)) }

// SetPrefix tags every subsequent line with a fixed prefix, e.g. the
// owning client's node id, mirroring the teacher's per-daemon SetTitle.
func SetPrefix(p string) { prefix.Store(p) }

func write(sev severity, format string, args ...any) {
	if int32(sev) < level.Load() {
		return
	}
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	p, _ := prefix.Load().(string)
	line := fmt.Sprintf("%s %s %s%s\n", time.Now().Format("15:04:05.000"), sev.tag(), p, msg)

	mu.Lock()
	_, _ = io.WriteString(out, line)
	mu.Unlock()
}

func Infof(format string, args ...any)    { write(sevInfo, format, args...) }
func Warningf(format string, args ...any) { write(sevWarn, format, args...) }
func Errorf(format string, args ...any)   { write(sevErr, format, args...) }

func Infoln(args ...any)    { write(sevInfo, fmt.Sprint(args...)) }
func Warningln(args ...any) { write(sevWarn, fmt.Sprint(args...)) }
func Errorln(args ...any)   { write(sevErr, fmt.Sprint(args...)) }

// Flush is a no-op kept for call-site parity with the teacher's nlog,
// which must flush buffered, file-backed writers; this logger writes
// through immediately, so flushing is always a no-op.
func Flush() {}
