package analysis

import "encoding/json"

// Kind tells how a result was produced.
type Kind int

const (
	// KindOk means the model answered with a valid value.
	KindOk Kind = iota
	// KindFallback means the value came from the offline heuristics or a fixed default.
	KindFallback
	// KindError means no value could be produced.
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindOk:
		return "ok"
	case KindFallback:
		return "fallback"
	default:
		return "error"
	}
}

// MarshalJSON renders the kind as its name.
func (k Kind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// Result carries a value together with how it was obtained. Cause is set
// for fallbacks and errors.
type Result[T any] struct {
	Value T
	Kind  Kind
	Cause error
}

// Ok wraps a model-produced value.
func Ok[T any](v T) Result[T] { return Result[T]{Value: v, Kind: KindOk} }

// Fallback wraps a substitute value and the reason it was needed.
func Fallback[T any](v T, cause error) Result[T] {
	return Result[T]{Value: v, Kind: KindFallback, Cause: cause}
}

// Failed records that no value is available.
func Failed[T any](err error) Result[T] { return Result[T]{Kind: KindError, Cause: err} }

// Err returns Cause when the result is an error, nil otherwise.
func (r Result[T]) Err() error {
	if r.Kind == KindError {
		return r.Cause
	}
	return nil
}
