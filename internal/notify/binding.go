package notify

// Binding is the notifiee half of the relationship. Self is the value that
// gets registered with the notifier; it is normally the struct embedding the
// binding.
type Binding[N comparable] struct {
	self           N
	notifier       *Notifier[N]
	nonReferencing bool
}

// NewBinding returns a binding for self that is not yet attached.
func NewBinding[N comparable](self N, nonReferencing bool) *Binding[N] {
	return &Binding[N]{self: self, nonReferencing: nonReferencing}
}

// Notifier returns the notifier the binding is attached to, or nil.
func (b *Binding[N]) Notifier() *Notifier[N] { return b.notifier }

// NonReferencing reports whether the binding leaves its notifier unheld.
func (b *Binding[N]) NonReferencing() bool { return b.nonReferencing }

// NotifierIs re-points the binding. It deregisters from the previous notifier,
// registers with next, and moves the holder count when the binding is
// referencing. Passing the current notifier is a no-op; passing nil detaches.
func (b *Binding[N]) NotifierIs(next *Notifier[N]) {
	if next == b.notifier {
		return
	}
	prev := b.notifier
	b.notifier = next
	if prev != nil {
		prev.Deregister(b.self)
		if !b.NonReferencing() {
			prev.release()
		}
	}
	if next != nil {
		next.Register(b.self)
		if !b.NonReferencing() {
			next.retain()
		}
	}
}

// NonReferencingIs switches the holding mode while attached, adjusting the
// current notifier's holder count.
func (b *Binding[N]) NonReferencingIs(nonReferencing bool) {
	if nonReferencing == b.nonReferencing {
		return
	}
	b.nonReferencing = nonReferencing
	if b.notifier == nil {
		return
	}
	if nonReferencing {
		b.notifier.release()
	} else {
		b.notifier.retain()
	}
}

// Close detaches the binding from its notifier.
func (b *Binding[N]) Close() {
	b.NotifierIs(nil)
}
