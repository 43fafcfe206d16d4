package providers

import (
	"context"
	"errors"
	"io"
	"sync"

	"go.uber.org/zap"
)

// ErrPoolClosed is returned by Get after Close
var ErrPoolClosed = errors.New("client pool closed")

// Pool hands out one shared client per region. A region's client is built
// at most once, even when several requests ask for it concurrently.
type Pool struct {
	factory ClientFactory
	logger  *zap.Logger

	mu      sync.Mutex
	entries map[string]*poolEntry
	closed  bool
}

// poolEntry lets concurrent callers wait on one in-flight build
type poolEntry struct {
	ready  chan struct{}
	client Client
	err    error
}

// NewPool creates an empty pool that builds clients with factory
func NewPool(factory ClientFactory, logger *zap.Logger) *Pool {
	return &Pool{
		factory: factory,
		logger:  logger,
		entries: make(map[string]*poolEntry),
	}
}

// Get returns the client for region, building it on first use. Failed
// builds are not cached, so a later call retries.
func (p *Pool) Get(ctx context.Context, region string) (Client, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}

	if e, ok := p.entries[region]; ok {
		p.mu.Unlock()
		select {
		case <-e.ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if e.err != nil {
			return nil, e.err
		}
		return e.client, nil
	}

	e := &poolEntry{ready: make(chan struct{})}
	p.entries[region] = e
	p.mu.Unlock()

	e.client, e.err = p.factory(ctx, region)
	if e.err != nil {
		var connErr *ConnectionError
		if !errors.As(e.err, &connErr) {
			e.err = &ConnectionError{Region: region, Err: e.err}
		}
		p.logger.Error("failed to create inference client",
			zap.String("region", region),
			zap.Error(e.err))

		p.mu.Lock()
		delete(p.entries, region)
		p.mu.Unlock()
	} else {
		p.logger.Debug("created inference client", zap.String("region", region))
	}
	close(e.ready)

	if e.err != nil {
		return nil, e.err
	}
	return e.client, nil
}

// Warm builds clients for every region up front and returns the first
// failure.
func (p *Pool) Warm(ctx context.Context, regions []string) error {
	for _, region := range regions {
		if _, err := p.Get(ctx, region); err != nil {
			return err
		}
	}
	p.logger.Info("inference clients ready", zap.Int("regions", len(regions)))
	return nil
}

// Len returns the number of clients built so far
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	for _, e := range p.entries {
		select {
		case <-e.ready:
			if e.err == nil {
				n++
			}
		default:
		}
	}
	return n
}

// Close releases every client that holds resources and rejects further
// lookups.
func (p *Pool) Close() error {
	p.mu.Lock()
	entries := p.entries
	p.entries = make(map[string]*poolEntry)
	p.closed = true
	p.mu.Unlock()

	var errs []error
	for region, e := range entries {
		<-e.ready
		if c, ok := e.client.(io.Closer); ok {
			if err := c.Close(); err != nil {
				p.logger.Warn("failed to close inference client", zap.String("region", region), zap.Error(err))
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
