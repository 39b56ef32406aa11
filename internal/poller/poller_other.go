//go:build !linux

package poller

import "time"

// Poller is unavailable on this platform.
type Poller struct{}

// New always fails with ErrUnsupported.
func New() (*Poller, error) { return nil, ErrUnsupported }

func (p *Poller) Add(fd int, interest Interest) error    { return ErrUnsupported }
func (p *Poller) Modify(fd int, interest Interest) error { return ErrUnsupported }
func (p *Poller) Remove(fd int) error                    { return ErrUnsupported }

func (p *Poller) Wait(events []Event, timeout time.Duration) (int, error) {
	return 0, ErrUnsupported
}

func (p *Poller) Close() error { return nil }
