package stt

import "context"

// Compile-time assertion that Unavailable satisfies Provider.
var _ Provider = (*Unavailable)(nil)

// Unavailable is a Provider that always fails with KindUnavailable. It stands
// in for an engine whose initialisation failed so the failure reason stays
// visible on every call.
type Unavailable struct {
	// Name identifies the engine that could not be built.
	Name string

	// Reason is why it could not be built.
	Reason error
}

// NewUnavailable returns an Unavailable stub for name.
func NewUnavailable(name string, reason error) *Unavailable {
	return &Unavailable{Name: name, Reason: reason}
}

// Transcribe always returns a KindUnavailable *Error.
func (u *Unavailable) Transcribe(context.Context, Audio) (string, error) {
	reason := u.Reason
	if reason == nil {
		reason = ErrUnavailable
	}
	return "", NewError(u.Name, KindUnavailable, reason)
}

// Usable reports whether p is a real engine: not nil and not an
// [Unavailable] stub.
func Usable(p Provider) bool {
	if p == nil {
		return false
	}
	_, stub := p.(*Unavailable)
	return !stub
}
