package event

import "reflect"

// Kind identifies a category of envelopes for routing.
// Kinds are comparable and usable as map keys. Two envelopes are
// routed identically if and only if their kinds are equal.
type Kind struct {
	name string
}

// KindOf returns the kind derived from the Go type T.
// The kind name is the package path and type name, so it is stable
// across runs and distinct for identically named types in different
// packages. T and *T are different kinds.
func KindOf[T any]() Kind {
	return Kind{name: typeName(reflect.TypeFor[T]())}
}

// NamedKind returns a kind with an explicit name.
// Use it when the kind must be declared without a Go type, for example
// from configuration.
func NamedKind(name string) Kind {
	return Kind{name: name}
}

// String returns the kind name.
func (k Kind) String() string {
	return k.name
}

// IsZero reports whether k is the zero Kind.
func (k Kind) IsZero() bool {
	return k.name == ""
}

func typeName(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	if t.Kind() == reflect.Pointer {
		return "*" + typeName(t.Elem())
	}
	if t.Name() != "" && t.PkgPath() != "" {
		return t.PkgPath() + "." + t.Name()
	}
	return t.String()
}
