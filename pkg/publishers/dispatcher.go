package publishers

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/Adda-Baaj/khobor-desk/internal/domain"
)

type route struct {
	pub Publisher
	cfg Config
}

// Dispatcher fans story events out to every enabled publisher that
// subscribes to the event type.
type Dispatcher struct {
	routes []route
	log    Logger
}

// NewDispatcher builds a publisher for each enabled config.
func NewDispatcher(ctx context.Context, reg *Registry, cfgs []Config, log Logger) (*Dispatcher, error) {
	if reg == nil {
		reg = DefaultRegistry()
	}
	d := &Dispatcher{log: ensureLogger(log)}
	for _, cfg := range Enabled(cfgs) {
		pub, err := reg.Build(ctx, cfg, d.log)
		if err != nil {
			_ = d.Close()
			return nil, err
		}
		d.routes = append(d.routes, route{pub: pub, cfg: cfg})
	}
	return d, nil
}

// Len returns the number of active publishers.
func (d *Dispatcher) Len() int {
	if d == nil {
		return 0
	}
	return len(d.routes)
}

// PublishEvent delivers evt to each subscribed publisher. Every publisher is
// attempted; failures are logged and joined.
func (d *Dispatcher) PublishEvent(ctx context.Context, evt domain.StoryEvent) error {
	if d == nil {
		return nil
	}
	var errs []error
	for _, r := range d.routes {
		if !r.cfg.Accepts(evt.Type) {
			continue
		}
		if err := r.pub.Publish(ctx, evt); err != nil {
			d.log.WarnObj("event publish failed", "publish_error", map[string]any{
				"publisher_id": r.pub.ID(),
				"event_type":   evt.Type,
				"story_id":     evt.StoryID,
				"error":        err.Error(),
			})
			errs = append(errs, fmt.Errorf("publisher %s: %w", r.pub.ID(), err))
		}
	}
	return errors.Join(errs...)
}

// Close releases every publisher that holds resources, such as Pub/Sub
// clients. It is safe on a nil Dispatcher.
func (d *Dispatcher) Close() error {
	if d == nil {
		return nil
	}
	var errs []error
	for _, r := range d.routes {
		c, ok := r.pub.(io.Closer)
		if !ok {
			continue
		}
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("publisher %s: %w", r.pub.ID(), err))
		}
	}
	return errors.Join(errs...)
}
