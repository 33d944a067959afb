// Package option provides a generic Option[T] type, used throughout this
// module in place of pointers or zero-value sentinels when a value may or
// may not be present. It's a thin wrapper over github.com/samber/mo's
// Option[T], the library the teacher's own option package builds on,
// keeping this module's pointer-free Some/None/Get/OrElse surface stable
// for callers rather than exposing mo's own method names directly.
package option

import (
	"reflect"

	"github.com/samber/mo"
)

// Option[T] holds either a value of type T or nothing.
type Option[T any] struct {
	inner mo.Option[T]
}

// Some returns an Option that holds val.
func Some[T any](val T) Option[T] {
	return Option[T]{inner: mo.Some(val)}
}

// None returns an empty Option.
func None[T any]() Option[T] {
	return Option[T]{inner: mo.None[T]()}
}

// FromPointer returns an Option built from a possibly-nil pointer. A nil
// pointer yields an empty Option; otherwise the Option holds a copy of
// the pointee.
func FromPointer[T any](ptr *T) Option[T] {
	if ptr == nil {
		return None[T]()
	}
	return Some(*ptr)
}

// Get returns the held value and true, or the zero value and false if
// the Option is empty.
func (o Option[T]) Get() (T, bool) {
	return o.inner.Get()
}

// IsNone returns whether the Option is empty.
func (o Option[T]) IsNone() bool {
	return o.inner.IsAbsent()
}

// IsSome returns whether the Option holds a value.
func (o Option[T]) IsSome() bool {
	return o.inner.IsPresent()
}

// OrElse returns the held value, or fallback if the Option is empty.
func (o Option[T]) OrElse(fallback T) T {
	return o.inner.OrElse(fallback)
}

// ToPointer returns a pointer to a copy of the held value, or nil if the
// Option is empty.
func (o Option[T]) ToPointer() *T {
	return o.inner.ToPointer()
}

func isNil(val any) bool {
	if val == nil {
		return true
	}
	rv := reflect.ValueOf(val)
	switch rv.Kind() {
	case reflect.Chan, reflect.Func, reflect.Interface, reflect.Map, reflect.Ptr, reflect.Slice:
		return rv.IsNil()
	default:
		return false
	}
}
