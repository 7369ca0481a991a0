package cacheaside

import (
	"errors"
	"fmt"
)

// Kind classifies why a resource could not be produced.
type Kind int

const (
	KindUnknown Kind = iota
	// KindNetwork means the upstream was unreachable or answered with a non-2xx status.
	KindNetwork
	// KindEmptyResult means the upstream answered well-formed but with zero matches.
	KindEmptyResult
	// KindParse means the upstream answered with an unexpected shape.
	KindParse
	// KindStorage means a persistent store operation failed.
	KindStorage
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindEmptyResult:
		return "empty result"
	case KindParse:
		return "parse"
	case KindStorage:
		return "storage"
	default:
		return "unknown"
	}
}

// Error is a failure tagged with its Kind and the operation that produced it.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s failure", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s failure: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Network tags err as an upstream connectivity or status failure.
func Network(op string, err error) error { return newError(KindNetwork, op, err) }

// Empty tags err as a well-formed response with nothing in it.
func Empty(op string, err error) error { return newError(KindEmptyResult, op, err) }

// Parse tags err as an unexpected response shape.
func Parse(op string, err error) error { return newError(KindParse, op, err) }

// Storage tags err as a persistent store failure.
func Storage(op string, err error) error { return newError(KindStorage, op, err) }

// KindOf reports the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries the given Kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
