//go:build !linux

package server

import (
	"context"
	"net"

	"github.com/conneroisu/otuserver/internal/poller"
)

func listen(host string, port, backlog int) (int, *net.TCPAddr, error) {
	return -1, nil, poller.ErrUnsupported
}

func closeSocket(fd int) error { return nil }

type worker struct{ id int }

func newWorker(id int, p *Pool, listenFD int) (*worker, error) {
	return nil, poller.ErrUnsupported
}

func (w *worker) run(ctx context.Context) error { return poller.ErrUnsupported }

func (w *worker) abandon(ctx context.Context) {}
