// Package notify delivers alert and progression events to external channels.
// The core treats delivery as fire-and-forget: failures are logged by callers
// and never abort the operation that produced the event.
package notify

import (
	"context"
	"errors"
	"log"
)

// Dispatcher delivers one event of the given kind to an external channel.
type Dispatcher interface {
	Dispatch(ctx context.Context, kind string, payload any) error
}

// LogDispatcher writes events to the process log. Default when no channel is
// configured; also useful in tests.
type LogDispatcher struct{}

func (LogDispatcher) Dispatch(_ context.Context, kind string, payload any) error {
	log.Printf("notify %s: %+v", kind, payload)
	return nil
}

// Multi fans an event out to several dispatchers. Every dispatcher sees the
// event even if an earlier one fails; errors are joined.
type Multi []Dispatcher

func (m Multi) Dispatch(ctx context.Context, kind string, payload any) error {
	var errs []error
	for _, d := range m {
		if err := d.Dispatch(ctx, kind, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
