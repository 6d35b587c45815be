// Package wdbgerr names the error-kind taxonomy used to classify what went
// wrong anywhere in this module, without introducing a stack-trace or
// custom-error library — every error in the corpus this module is built
// from is a plain wrapped stdlib error, and this package follows suit.
package wdbgerr

import "errors"

// Kind classifies an error by where in the stack it originated.
type Kind int

const (
	// KindUnknown is the zero value: an error this package didn't wrap.
	KindUnknown Kind = iota
	// KindTransport means the TCP connection itself failed (dial, read,
	// write, or an unexpected close).
	KindTransport
	// KindFraming means the packet head/tail or size field was invalid.
	KindFraming
	// KindDecode means a message body's fields didn't match what was
	// expected once the packet itself framed correctly.
	KindDecode
	// KindIdentifierMismatch means a response arrived whose identifier
	// didn't match any registered expectation.
	KindIdentifierMismatch
	// KindRouting means a packet matched a registered identifier but no
	// waiter or subscriber was present to receive it.
	KindRouting
	// KindLifecycle means a Client or Router method was called out of
	// order (e.g. Start twice, Stop before Start).
	KindLifecycle
	// KindTimeout means a blocking call exceeded its connection's read
	// timeout before a response arrived.
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindFraming:
		return "framing"
	case KindDecode:
		return "decode"
	case KindIdentifierMismatch:
		return "identifier_mismatch"
	case KindRouting:
		return "routing"
	case KindLifecycle:
		return "lifecycle"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// kindError pairs a Kind with the underlying error it wraps.
type kindError struct {
	kind Kind
	err  error
}

func (e *kindError) Error() string { return e.err.Error() }
func (e *kindError) Unwrap() error { return e.err }

// Wrap tags err with kind so that Kind(err) can recover it later, anywhere
// up the call stack.
func Wrap(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &kindError{kind: kind, err: err}
}

// KindOf returns the Kind tagged onto err by Wrap, or KindUnknown if err
// (or any error it wraps) was never tagged.
func KindOf(err error) Kind {
	var ke *kindError
	if errors.As(err, &ke) {
		return ke.kind
	}
	return KindUnknown
}
