// Package server runs the listener pool: a fixed set of workers, each with
// its own readiness poller, sharing one non-blocking listening socket.
package server

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/conneroisu/otuserver/internal/config"
	"github.com/conneroisu/otuserver/internal/errors"
	"github.com/conneroisu/otuserver/internal/logging"
	"github.com/conneroisu/otuserver/internal/metrics"
	"github.com/conneroisu/otuserver/internal/processor"
	"github.com/conneroisu/otuserver/internal/templates"
)

// Option configures a Pool.
type Option func(*Pool)

// WithMetrics records activity on r instead of the global meter provider.
func WithMetrics(r *metrics.Recorder) Option {
	return func(p *Pool) { p.metrics = r }
}

// WithProcessor replaces the processor built from the configuration.
func WithProcessor(proc *processor.Processor) Option {
	return func(p *Pool) { p.processor = proc }
}

// WithClock sets the clock used for the Date header.
func WithClock(now func() time.Time) Option {
	return func(p *Pool) { p.now = now }
}

// Pool owns the listening socket and the workers.
type Pool struct {
	cfg       *config.Config
	logger    logging.Logger
	metrics   *metrics.Recorder
	processor *processor.Processor
	templates *templates.Store
	now       func() time.Time

	shutdown atomic.Bool
	ready    chan struct{}

	mu   sync.RWMutex
	addr *net.TCPAddr
}

// NewPool prepares a pool. Nothing is bound until Start.
func NewPool(cfg *config.Config, logger logging.Logger, opts ...Option) (*Pool, error) {
	if cfg == nil {
		return nil, errors.NewConfigError("configuration is required", nil)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	p := &Pool{
		cfg:    cfg,
		logger: logger.WithComponent("server"),
		ready:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.metrics == nil {
		recorder, err := metrics.Global()
		if err != nil {
			return nil, err
		}
		p.metrics = recorder
	}

	if p.processor == nil {
		store, err := templates.New(templates.Options{
			Dir:    cfg.Templates.Dir,
			Cache:  cfg.Templates.Cache,
			Logger: logger,
		})
		if err != nil {
			return nil, err
		}
		if cfg.Templates.Cache {
			if err := store.Verify(); err != nil {
				return nil, err
			}
		}
		p.templates = store

		proc, err := processor.New(processor.Options{
			Root:       cfg.Server.Root,
			Index:      cfg.Server.Index,
			ServerName: cfg.Server.Name,
			Templates:  store,
			Now:        p.now,
			Logger:     logger,
		})
		if err != nil {
			return nil, err
		}
		p.processor = proc
	}

	return p, nil
}

// Ready is closed once the socket is listening and the workers are running.
func (p *Pool) Ready() <-chan struct{} {
	return p.ready
}

// Addr returns the bound address, or nil before Ready.
func (p *Pool) Addr() net.Addr {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.addr == nil {
		return nil
	}
	return p.addr
}

// Start binds the socket, runs the workers and blocks until ctx is done.
// Each worker is then given join_timeout to notice the shutdown flag, which
// it checks once per ready_timeout.
func (p *Pool) Start(ctx context.Context) error {
	srv := p.cfg.Server

	fd, addr, err := listen(srv.Host, srv.Port, srv.Backlog)
	if err != nil {
		return errors.NewInternalError(errors.ErrCodeSocketUnavailable, "binding listening socket", err).
			WithContext("address", p.cfg.Address())
	}
	// A worker that missed its join deadline may still call accept on fd;
	// closing it would let that worker accept on a reused descriptor.
	joined := true
	defer func() {
		if !joined {
			p.logger.Warn(ctx, nil, "Leaving listening socket open for unjoined workers", "fd", fd)
			return
		}
		if err := closeSocket(fd); err != nil {
			p.logger.Warn(ctx, err, "Closing listening socket failed")
		}
	}()

	p.mu.Lock()
	p.addr = addr
	p.mu.Unlock()

	workers := make([]*worker, 0, srv.Workers)
	for i := 0; i < srv.Workers; i++ {
		w, err := newWorker(i, p, fd)
		if err != nil {
			for _, started := range workers {
				started.abandon(ctx)
			}
			return err
		}
		workers = append(workers, w)
	}

	// Workers run on a context that outlives ctx; they stop on the flag.
	workerCtx := context.WithoutCancel(ctx)
	done := make([]chan struct{}, len(workers))
	for i, w := range workers {
		done[i] = make(chan struct{})
		go func(w *worker, done chan struct{}) {
			defer close(done)
			if err := w.run(workerCtx); err != nil {
				p.logger.Error(workerCtx, err, "Worker stopped", "worker", w.id)
			}
		}(w, done[i])
	}

	if p.templates != nil {
		if err := p.templates.Watch(ctx); err != nil {
			p.logger.Warn(ctx, err, "Template watcher unavailable")
		}
		defer p.templates.Close()
	}

	p.logger.Info(ctx, "Server listening",
		"address", addr.String(),
		"workers", len(workers),
		"root", p.processor.Root())
	close(p.ready)

	<-ctx.Done()
	p.shutdown.Store(true)
	p.logger.Info(workerCtx, "Shutting down", "workers", len(workers))

	joined = p.joinWorkers(workerCtx, done, srv.JoinTimeout)

	p.logger.Info(workerCtx, "Server stopped")
	return nil
}

// joinWorkers waits up to timeout for each worker in turn and reports
// whether all of them stopped.
func (p *Pool) joinWorkers(ctx context.Context, done []chan struct{}, timeout time.Duration) bool {
	all := true
	for i, ch := range done {
		select {
		case <-ch:
		case <-time.After(timeout):
			all = false
			p.logger.Warn(ctx, nil, "Worker did not stop in time", "worker", i,
				"join_timeout", timeout.String())
		}
	}
	return all
}
