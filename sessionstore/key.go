package sessionstore

// Key names a cache slot holding values of type T. Two keys with the same
// name but different T address the same slot; a read through the wrong type
// reports the value as absent.
type Key[T any] struct {
	name string
}

// NewKey returns a key for slot name.
func NewKey[T any](name string) Key[T] {
	return Key[T]{name: name}
}

// Name returns the slot name.
func (k Key[T]) Name() string {
	return k.name
}
