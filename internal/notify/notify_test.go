package notify

import (
	"context"
	"errors"
	"testing"
)

type listener struct {
	name  string
	calls *[]string
}

type fakeNotifiee interface {
	OnEvent() error
}

func (l *listener) OnEvent() error {
	*l.calls = append(*l.calls, l.name)
	return nil
}

type failing struct{ err error }

func (f *failing) OnEvent() error { return f.err }

type panicking struct{}

func (panicking) OnEvent() error { panic("boom") }

func TestNotifier_RegisterDedupes(t *testing.T) {
	var nf Notifier[fakeNotifiee]
	var calls []string
	l := &listener{name: "a", calls: &calls}

	nf.Register(l)
	nf.Register(l)
	if nf.Len() != 1 {
		t.Fatalf("expected 1 notifiee after duplicate register, got %d", nf.Len())
	}

	nf.Deregister(l)
	nf.Deregister(l)
	if nf.Len() != 0 {
		t.Fatalf("expected 0 notifiees after deregister, got %d", nf.Len())
	}
}

func TestNotifier_BroadcastContinuesPastFailures(t *testing.T) {
	var nf Notifier[fakeNotifiee]
	var calls []string
	sentinel := errors.New("listener failed")

	nf.Register(&listener{name: "first", calls: &calls})
	nf.Register(&failing{err: sentinel})
	nf.Register(panicking{})
	nf.Register(&listener{name: "last", calls: &calls})

	err := nf.Broadcast(context.Background(), "onEvent", func(n fakeNotifiee) error {
		return n.OnEvent()
	})

	if len(calls) != 2 || calls[0] != "first" || calls[1] != "last" {
		t.Fatalf("expected both healthy listeners to run in order, got %v", calls)
	}
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected joined error to contain listener error, got %v", err)
	}
	if !errors.Is(err, ErrNotifieePanicked) {
		t.Fatalf("expected joined error to contain recovered panic, got %v", err)
	}
}

func TestNotifier_BroadcastUsesSnapshot(t *testing.T) {
	var nf Notifier[fakeNotifiee]
	var calls []string
	late := &listener{name: "late", calls: &calls}

	nf.Register(&selfRegistering{nf: &nf, add: late})
	if err := nf.Broadcast(context.Background(), "onEvent", func(n fakeNotifiee) error {
		return n.OnEvent()
	}); err != nil {
		t.Fatalf("unexpected broadcast error: %v", err)
	}
	if len(calls) != 0 {
		t.Fatalf("listener added during broadcast must not be invoked, got %v", calls)
	}
	if nf.Len() != 2 {
		t.Fatalf("expected registration during broadcast to stick, got %d notifiees", nf.Len())
	}
}

type selfRegistering struct {
	nf  *Notifier[fakeNotifiee]
	add fakeNotifiee
}

func (s *selfRegistering) OnEvent() error {
	s.nf.Register(s.add)
	return nil
}

func TestBinding_RepointMovesRegistrationAndHold(t *testing.T) {
	var a, b Notifier[fakeNotifiee]
	var calls []string
	l := &listener{name: "l", calls: &calls}
	binding := NewBinding[fakeNotifiee](l, false)

	binding.NotifierIs(&a)
	if a.Len() != 1 || a.Holders() != 1 {
		t.Fatalf("expected registration and hold on a, got len=%d holders=%d", a.Len(), a.Holders())
	}

	binding.NotifierIs(&a)
	if a.Len() != 1 || a.Holders() != 1 {
		t.Fatalf("re-pointing to the same notifier must be a no-op, got len=%d holders=%d", a.Len(), a.Holders())
	}

	binding.NotifierIs(&b)
	if a.Len() != 0 || a.Holders() != 0 {
		t.Fatalf("expected a released, got len=%d holders=%d", a.Len(), a.Holders())
	}
	if b.Len() != 1 || b.Holders() != 1 {
		t.Fatalf("expected registration and hold on b, got len=%d holders=%d", b.Len(), b.Holders())
	}

	binding.Close()
	if b.Len() != 0 || b.Holders() != 0 {
		t.Fatalf("expected close to release b, got len=%d holders=%d", b.Len(), b.Holders())
	}
	if binding.Notifier() != nil {
		t.Fatalf("expected closed binding to be detached")
	}
}

func TestBinding_NonReferencingNeverHolds(t *testing.T) {
	var nf Notifier[fakeNotifiee]
	var calls []string
	binding := NewBinding[fakeNotifiee](&listener{name: "l", calls: &calls}, true)

	binding.NotifierIs(&nf)
	if nf.Len() != 1 {
		t.Fatalf("expected non-referencing binding to register, got %d", nf.Len())
	}
	if nf.Holders() != 0 {
		t.Fatalf("expected no hold from non-referencing binding, got %d", nf.Holders())
	}

	if !binding.NonReferencing() {
		t.Fatalf("expected binding to report non-referencing")
	}

	binding.NonReferencingIs(false)
	if binding.NonReferencing() {
		t.Fatalf("expected binding to report referencing")
	}
	if nf.Holders() != 1 {
		t.Fatalf("expected switching to referencing to retain, got %d", nf.Holders())
	}
	binding.NonReferencingIs(true)
	if nf.Holders() != 0 {
		t.Fatalf("expected switching back to release, got %d", nf.Holders())
	}
}
