package coordinator

import (
	"context"
	"encoding/json"
	"strconv"
)

// Result is a three-way outcome for a typed read: the key held a value that
// parsed (Present), the key was absent (Absent), or the key held a value
// that failed to parse (Invalid). Callers decide how to handle each case;
// the Result itself never turns an Absent or Invalid read into a Present
// zero value.
type Result[T any] struct {
	kind    resultKind
	value   T
	rawInvalid string
}

type resultKind int

const (
	kindAbsent resultKind = iota
	kindPresent
	kindInvalid
)

func Present[T any](v T) Result[T] { return Result[T]{kind: kindPresent, value: v} }
func Absent[T any]() Result[T]     { return Result[T]{kind: kindAbsent} }
func Invalid[T any](raw string) Result[T] {
	return Result[T]{kind: kindInvalid, rawInvalid: raw}
}

func (r Result[T]) IsPresent() bool { return r.kind == kindPresent }
func (r Result[T]) IsAbsent() bool  { return r.kind == kindAbsent }
func (r Result[T]) IsInvalid() bool { return r.kind == kindInvalid }

// Value returns the parsed value and true iff the result is Present.
func (r Result[T]) Value() (T, bool) {
	return r.value, r.kind == kindPresent
}

// Raw returns the unparsed string that failed to parse, valid only when
// IsInvalid.
func (r Result[T]) Raw() string { return r.rawInvalid }

// ReadInt reads key as a decimal integer.
func ReadInt(ctx context.Context, c Client, key string) (Result[int], error) {
	raw, ok, err := c.Get(ctx, key)
	if err != nil {
		return Result[int]{}, err
	}
	if !ok {
		return Absent[int](), nil
	}
	n, perr := strconv.Atoi(raw)
	if perr != nil {
		return Invalid[int](raw), nil
	}
	return Present(n), nil
}

// ReadFlag reads key as a "1"/"0" boolean flag. Any other value is Invalid.
func ReadFlag(ctx context.Context, c Client, key string) (Result[bool], error) {
	raw, ok, err := c.Get(ctx, key)
	if err != nil {
		return Result[bool]{}, err
	}
	if !ok {
		return Absent[bool](), nil
	}
	switch raw {
	case "1":
		return Present(true), nil
	case "0":
		return Present(false), nil
	default:
		return Invalid[bool](raw), nil
	}
}

// ReadJSON reads key and unmarshals it into T.
func ReadJSON[T any](ctx context.Context, c Client, key string) (Result[T], error) {
	raw, ok, err := c.Get(ctx, key)
	if err != nil {
		return Result[T]{}, err
	}
	if !ok {
		return Absent[T](), nil
	}
	var v T
	if uerr := json.Unmarshal([]byte(raw), &v); uerr != nil {
		return Invalid[T](raw), nil
	}
	return Present(v), nil
}

// WriteJSON marshals v and writes it unconditionally to key.
func WriteJSON(ctx context.Context, c Client, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Set(ctx, key, string(data))
}
