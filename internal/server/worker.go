//go:build linux

package server

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/conneroisu/otuserver/internal/errors"
	"github.com/conneroisu/otuserver/internal/logging"
	"github.com/conneroisu/otuserver/internal/metrics"
	"github.com/conneroisu/otuserver/internal/poller"
	"github.com/conneroisu/otuserver/internal/processor"
	"golang.org/x/sys/unix"
)

const maxEvents = 128

// worker runs one event loop over its own poller. It shares only the
// listening socket with other workers.
type worker struct {
	id       int
	listenFD int

	poller    *poller.Poller
	processor *processor.Processor
	logger    logging.Logger
	errors    *errors.ErrorHandler
	metrics   *metrics.Recorder

	shutdown        *atomic.Bool
	readyTimeout    time.Duration
	maxRequestBytes int

	conns   map[int]*conn
	events  []poller.Event
	readBuf [readChunk]byte
}

func newWorker(id int, p *Pool, listenFD int) (*worker, error) {
	pl, err := poller.New()
	if err != nil {
		return nil, errors.NewPollerError("creating poller", err)
	}
	if err := pl.Add(listenFD, poller.Readable); err != nil {
		_ = pl.Close()
		return nil, errors.NewPollerError("registering listening socket", err)
	}

	logger := p.logger.With("worker", id)
	return &worker{
		id:              id,
		listenFD:        listenFD,
		poller:          pl,
		processor:       p.processor,
		logger:          logger,
		errors:          errors.NewErrorHandler(logger),
		metrics:         p.metrics,
		shutdown:        &p.shutdown,
		readyTimeout:    p.cfg.Server.ReadyTimeout,
		maxRequestBytes: p.cfg.Server.MaxRequestBytes,
		conns:           make(map[int]*conn),
		events:          make([]poller.Event, maxEvents),
	}, nil
}

// run loops until the shutdown flag is observed at a wait timeout or the
// poller fails. Connections still open on exit are closed without draining.
func (w *worker) run(ctx context.Context) error {
	defer w.abandon(ctx)

	w.logger.Debug(ctx, "Worker started")
	for !w.shutdown.Load() {
		n, err := w.poller.Wait(w.events, w.readyTimeout)
		if err != nil {
			return errors.NewPollerError("waiting for readiness", err)
		}

		for _, ev := range w.events[:n] {
			if ev.FD == w.listenFD {
				w.accept(ctx)
				continue
			}
			w.dispatch(ctx, ev)
		}
	}
	w.logger.Debug(ctx, "Worker stopping", "open_connections", len(w.conns))

	return nil
}

// accept takes at most one pending connection. Other workers race for the
// same socket, so an empty queue is expected.
func (w *worker) accept(ctx context.Context) {
	fd, sa, err := unix.Accept4(w.listenFD, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err != nil {
		switch err {
		case unix.EAGAIN, unix.ECONNABORTED, unix.EINTR:
		default:
			w.logger.Warn(ctx, err, "Accept failed")
		}
		return
	}

	c := newConn(w, fd, peerString(sa))
	w.metrics.ConnectionAccepted(ctx)
	if err := c.register(); err != nil {
		w.errors.Handle(ctx, err, "conn", c.id)
		c.close(ctx)
		return
	}
	w.conns[fd] = c
	c.logger.Debug(ctx, "Connection accepted")
}

// dispatch hands one readiness event to its connection. Any fault, panics
// included, closes that connection only.
func (w *worker) dispatch(ctx context.Context, ev poller.Event) {
	c, ok := w.conns[ev.FD]
	if !ok {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			err := errors.NewInternalError(errors.ErrCodeInternalError,
				"panic while serving connection", fmt.Errorf("%v", r))
			w.fault(ctx, c, err)
		}
	}()

	var err error
	switch c.phase {
	case phaseReading:
		if ev.Readable {
			err = c.onReadable(ctx)
		}
	case phaseWriting:
		// Hang-up arrives as Readable; the send reports it.
		if ev.Writable || ev.Readable {
			err = c.onWritable(ctx)
		}
	}

	if err != nil && !errors.IsWouldBlock(err) {
		w.fault(ctx, c, err)
	}
}

func (w *worker) fault(ctx context.Context, c *conn, err error) {
	if !errors.IsPeerClosed(err) {
		w.metrics.ConnectionFault(ctx, string(errors.KindOf(err)))
	}
	w.errors.Handle(ctx, err, "conn", c.id, "peer", c.peer, "phase", c.phase.String())
	c.close(ctx)
}

func (w *worker) abandon(ctx context.Context) {
	for _, c := range w.conns {
		c.close(ctx)
	}
	if err := w.poller.Close(); err != nil {
		w.logger.Warn(ctx, err, "Closing poller failed")
	}
}
