// Package notify implements the notifier/notifiee relationship shared by every
// stateful entity in the simulator.
//
// A Notifier keeps an ordered list of registered notifiees and broadcasts
// events to them. A Binding is the notifiee side: it points at exactly one
// notifier at a time and moves its registration when re-pointed.
//
// Bindings are either referencing (they count as a holder of the notifier) or
// non-referencing. Entities that install a reactor on themselves use
// non-referencing bindings so the reactor does not count toward the entity's
// holders.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/signalsfoundry/shipping-simulator/internal/logging"
)

// Notifier fans events out to registered notifiees of type N. The zero value
// is ready to use.
type Notifier[N comparable] struct {
	// Log receives one error line per failing notifiee. Nil means no logging.
	Log logging.Logger

	notifiees []N
	holders   int
}

// Register appends n unless it is already registered.
func (nf *Notifier[N]) Register(n N) {
	for _, existing := range nf.notifiees {
		if existing == n {
			return
		}
	}
	nf.notifiees = append(nf.notifiees, n)
}

// Deregister removes n. It is a no-op when n is not registered.
func (nf *Notifier[N]) Deregister(n N) {
	for i, existing := range nf.notifiees {
		if existing == n {
			nf.notifiees = append(nf.notifiees[:i], nf.notifiees[i+1:]...)
			return
		}
	}
}

// Len returns the number of registered notifiees.
func (nf *Notifier[N]) Len() int { return len(nf.notifiees) }

// Notifiees returns a snapshot of the registered notifiees in registration order.
func (nf *Notifier[N]) Notifiees() []N {
	return append([]N(nil), nf.notifiees...)
}

// Holders returns how many referencing bindings currently hold this notifier.
func (nf *Notifier[N]) Holders() int { return nf.holders }

func (nf *Notifier[N]) retain() { nf.holders++ }

func (nf *Notifier[N]) release() {
	if nf.holders > 0 {
		nf.holders--
	}
}

// Broadcast invokes fn for every notifiee registered when the broadcast
// starts. A notifiee that returns an error or panics is logged and skipped;
// the remaining notifiees are still invoked. The collected failures are
// returned joined, or nil.
func (nf *Notifier[N]) Broadcast(ctx context.Context, event string, fn func(N) error) error {
	if len(nf.notifiees) == 0 {
		return nil
	}
	var errs []error
	for i, n := range nf.Notifiees() {
		if err := invoke(n, fn); err != nil {
			if nf.Log != nil {
				nf.Log.Error(ctx, "notification unsuccessful",
					logging.String("event", event),
					logging.Int("notifiee", i),
					logging.Err(err),
				)
			}
			errs = append(errs, fmt.Errorf("%s notifiee %d: %w", event, i, err))
		}
	}
	return errors.Join(errs...)
}

// ErrNotifieePanicked wraps a panic recovered during a broadcast.
var ErrNotifieePanicked = errors.New("notifiee panicked")

func invoke[N comparable](n N, fn func(N) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrNotifieePanicked, r)
		}
	}()
	return fn(n)
}
