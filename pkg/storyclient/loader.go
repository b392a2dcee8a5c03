package storyclient

import (
	"context"
	"errors"
	"sync"

	"github.com/Adda-Baaj/khobor-desk/internal/listing"
)

// ErrSuperseded is returned by Loader.Load when a newer load started before
// this one finished. Its result must not be rendered.
var ErrSuperseded = errors.New("story load superseded by a newer request")

// Lister fetches one page of stories.
type Lister interface {
	List(ctx context.Context, q listing.Query) (*ListResponse, error)
}

// Loader serialises story loads driven by user input. Starting a load
// cancels the one in flight, and only the most recent load may return a
// result.
type Loader struct {
	lister Lister

	mu     sync.Mutex
	seq    uint64
	cancel context.CancelFunc
}

// NewLoader wraps lister.
func NewLoader(lister Lister) *Loader {
	return &Loader{lister: lister}
}

// Load fetches q, cancelling any earlier load still running.
func (l *Loader) Load(ctx context.Context, q listing.Query) (*ListResponse, error) {
	return l.Begin(ctx, q).Wait()
}

// Pending is a load that has taken its place in the sequence but not yet
// run.
type Pending struct {
	l      *Loader
	token  uint64
	ctx    context.Context
	cancel context.CancelFunc
	q      listing.Query
}

// Begin claims the next sequence slot for q and cancels the load in flight.
// Callers that start loads from several goroutines call Begin in input
// order and Wait concurrently.
func (l *Loader) Begin(ctx context.Context, q listing.Query) *Pending {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seq++
	if l.cancel != nil {
		l.cancel()
	}
	loadCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	return &Pending{l: l, token: l.seq, ctx: loadCtx, cancel: cancel, q: q}
}

// Wait runs the load. It returns ErrSuperseded when a newer load began
// meanwhile.
func (p *Pending) Wait() (*ListResponse, error) {
	resp, err := p.l.lister.List(p.ctx, p.q)

	p.l.mu.Lock()
	defer p.l.mu.Unlock()
	p.cancel()
	if p.token != p.l.seq {
		return nil, ErrSuperseded
	}
	p.l.cancel = nil
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// Cancel aborts the load in flight, if any.
func (l *Loader) Cancel() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seq++
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
}
