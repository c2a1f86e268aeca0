package codec

import (
	"reflect"
	"sync"
)

// The registry replaces the dynamic class loading the original
// implementation relies on (pydoc.locate against a fully qualified
// class name). Go has no equivalent of loading an arbitrary type by
// string at runtime, so every type that needs to cross the wire must
// be registered once, typically from an init() func next to its
// declaration.
var (
	mu     sync.RWMutex
	byType = map[reflect.Type]string{}
	byName = map[string]reflect.Type{}
)

// Register associates a logical wire name with the type T. Re-registering
// the same name with a different type, or the same type with a
// different name, overwrites the previous entry — callers are expected
// to register each type exactly once, at package init time.
func Register[T any](name string) {
	t := typeOf[T]()
	mu.Lock()
	defer mu.Unlock()
	byType[t] = name
	byName[name] = t
}

// RegisterError is Register for error types that also implement
// ArgsError, so RemoteInvocationError can be reconstructed with its
// original constructor arguments rather than just its message string.
func RegisterError[T error](name string) {
	Register[T](name)
}

func typeOf[T any]() reflect.Type {
	var zero T
	t := reflect.TypeOf(zero)
	if t != nil {
		return t
	}
	// zero is nil (interface or pointer type); recover the static type
	// via a pointer to the zero value instead.
	return reflect.TypeOf(&zero).Elem()
}

// NameOf returns the registry name for a value's concrete type. Error
// types are usually registered by their pointer type (pointer-receiver
// Error methods are the common case) while plain data structs are
// usually registered by value type, so a miss on the exact type falls
// back to the other form rather than committing to one convention.
func NameOf(v any) (string, bool) {
	if v == nil {
		return "", false
	}
	t := reflect.TypeOf(v)
	mu.RLock()
	defer mu.RUnlock()
	if name, ok := byType[t]; ok {
		return name, true
	}
	if t.Kind() == reflect.Ptr {
		name, ok := byType[t.Elem()]
		return name, ok
	}
	name, ok := byType[reflect.PointerTo(t)]
	return name, ok
}

// TypeOf resolves a registry name back to its reflect.Type.
func TypeOf(name string) (reflect.Type, bool) {
	mu.RLock()
	defer mu.RUnlock()
	t, ok := byName[name]
	return t, ok
}

// Constructible lets a registered struct take over field assignment
// from the codec's default reflect-based assignment, mirroring the
// "call the constructor with the accepted subset of fields" behavior
// of the original deep_from_dict.
type Constructible interface {
	FromFields(fields map[string]any) error
}

// ArgsError lets an error type round-trip through the wire as its
// constructor arguments instead of just its formatted message, which
// is what RemoteInvocationError needs to reconstruct a typed failure
// on the caller's side.
type ArgsError interface {
	error
	Args() []any
}
