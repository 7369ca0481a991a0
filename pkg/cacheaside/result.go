package cacheaside

// Source records where a Result's value came from.
type Source int

const (
	// SourceUnavailable means no value could be produced; Err says why.
	SourceUnavailable Source = iota
	// SourceCache means a fresh stored record was served without a network call.
	SourceCache
	// SourceOrigin means the value was fetched upstream and written back.
	SourceOrigin
	// SourceStale means the fetch failed and a stale stored record was served instead.
	SourceStale
)

func (s Source) String() string {
	switch s {
	case SourceCache:
		return "cache"
	case SourceOrigin:
		return "origin"
	case SourceStale:
		return "stale"
	default:
		return "unavailable"
	}
}

// Result is what an orchestrator hands back instead of an error. A caller can tell
// "nothing there" (Found false, Err nil) from "lookup failed" (Err set).
type Result[V any] struct {
	Value  V
	Found  bool
	Source Source
	// Err is set when the result is degraded (SourceStale), unavailable, or when a
	// write-back failed after a successful fetch.
	Err error
}

// Unavailable builds a result that carries only a failure.
func Unavailable[V any](err error) Result[V] {
	return Result[V]{Source: SourceUnavailable, Err: err}
}

// Map converts a result's value, keeping its provenance. The mapping may report the
// converted value as absent, e.g. a holiday calendar that has no entry for today.
func Map[R, V any](r Result[R], f func(R) (V, bool)) Result[V] {
	out := Result[V]{Source: r.Source, Err: r.Err}
	if !r.Found {
		return out
	}
	out.Value, out.Found = f(r.Value)
	return out
}
