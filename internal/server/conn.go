//go:build linux

package server

import (
	"context"

	"github.com/conneroisu/otuserver/internal/errors"
	"github.com/conneroisu/otuserver/internal/logging"
	"github.com/conneroisu/otuserver/internal/poller"
	"github.com/conneroisu/otuserver/internal/processor"
	"github.com/google/uuid"
	"golang.org/x/sys/unix"
)

// readChunk is the size of one non-blocking receive.
const readChunk = 4096

type phase int

const (
	phaseAccepted phase = iota
	phaseReading
	phaseWriting
	phaseClosed
)

func (p phase) String() string {
	switch p {
	case phaseAccepted:
		return "accepted"
	case phaseReading:
		return "reading"
	case phaseWriting:
		return "writing"
	case phaseClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// conn is one accepted client socket. Only the worker that accepted it ever
// touches it. A conn reads until the request line is complete, writes one
// response and closes; it never returns to reading.
type conn struct {
	fd     int
	id     string
	peer   string
	phase  phase
	recv   []byte
	send   []byte
	status int

	w      *worker
	logger logging.Logger
}

func newConn(w *worker, fd int, peer string) *conn {
	id := uuid.NewString()
	return &conn{
		fd:     fd,
		id:     id,
		peer:   peer,
		phase:  phaseAccepted,
		w:      w,
		logger: w.logger.With("conn", id, "peer", peer),
	}
}

// register adds the socket to the worker's poller for reading.
func (c *conn) register() error {
	if err := c.w.poller.Add(c.fd, poller.Readable); err != nil {
		return errors.NewPollerError("registering connection", err)
	}
	c.phase = phaseReading
	return nil
}

// onReadable performs one receive. Once the buffered bytes hold a full
// request line the response is built and the connection switches to writing.
func (c *conn) onReadable(ctx context.Context) error {
	if c.phase != phaseReading {
		return nil
	}

	buf := c.w.readBuf[:]
	n, err := unix.Read(c.fd, buf)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EINTR {
			return errors.ErrWouldBlock
		}
		return errors.NewInternalError(errors.ErrCodeInternalError, "receive failed", err)
	}
	if n == 0 {
		return errors.ErrPeerClosed
	}
	c.recv = append(c.recv, buf[:n]...)

	if !processor.RequestLineComplete(c.recv) {
		if len(c.recv) > c.w.maxRequestBytes {
			return errors.NewInternalError(errors.ErrCodeRequestTooLarge,
				"request line exceeds limit", nil).WithContext("bytes", len(c.recv))
		}
		return nil
	}

	return c.respond(ctx)
}

func (c *conn) respond(ctx context.Context) error {
	resp, perr := c.w.processor.Handle(c.recv)
	if perr != nil {
		c.w.errors.Handle(ctx, perr, "conn", c.id, "peer", c.peer)
	}

	c.status = resp.Status
	c.send = resp.Bytes()
	c.recv = nil
	c.w.metrics.ResponseBuilt(ctx, resp.Status)

	if err := c.w.poller.Modify(c.fd, poller.Writable); err != nil {
		return errors.NewPollerError("switching to write interest", err)
	}
	c.phase = phaseWriting

	c.logger.Debug(ctx, "Response ready", "status", c.status, "bytes", len(c.send))
	return nil
}

// onWritable performs one send. Partial sends keep the remainder; a fully
// drained buffer closes the connection.
func (c *conn) onWritable(ctx context.Context) error {
	if c.phase != phaseWriting {
		return nil
	}

	n, err := unix.Write(c.fd, c.send)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EINTR {
			return errors.ErrWouldBlock
		}
		return errors.NewInternalError(errors.ErrCodeInternalError, "send failed", err)
	}
	c.send = c.send[n:]

	if len(c.send) == 0 {
		c.logger.Debug(ctx, "Response sent", "status", c.status)
		c.close(ctx)
	}
	return nil
}

// close deregisters and closes the socket. Safe to call more than once;
// failures are logged and otherwise ignored.
func (c *conn) close(ctx context.Context) {
	if c.phase == phaseClosed {
		return
	}
	registered := c.phase != phaseAccepted
	c.phase = phaseClosed

	if registered {
		if err := c.w.poller.Remove(c.fd); err != nil {
			c.logger.Debug(ctx, "Deregister failed", "error", err.Error())
		}
	}
	if err := unix.Close(c.fd); err != nil {
		c.logger.Debug(ctx, "Close failed", "error", err.Error())
	}

	c.recv = nil
	c.send = nil
	delete(c.w.conns, c.fd)
	c.w.metrics.ConnectionClosed(ctx)
}
