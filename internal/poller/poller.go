// Package poller wraps the kernel readiness multiplexer. Each worker owns one
// Poller and is the only goroutine that touches it.
package poller

import (
	"errors"
	"strings"
)

// ErrUnsupported is returned by New on platforms without epoll.
var ErrUnsupported = errors.New("poller: readiness multiplexer not supported on this platform")

// Interest selects the readiness conditions a descriptor is watched for.
type Interest uint8

const (
	Readable Interest = 1 << iota
	Writable
)

func (i Interest) String() string {
	var parts []string
	if i&Readable != 0 {
		parts = append(parts, "read")
	}
	if i&Writable != 0 {
		parts = append(parts, "write")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// Event is one ready descriptor. Hang-up and error conditions are reported
// as Readable so the owner observes them on its next receive.
type Event struct {
	FD       int
	Readable bool
	Writable bool
}
