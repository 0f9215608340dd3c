// File: session/resources.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Typed single-instance resource bag. Keys are the static type argument of
// the accessor, so Set[*T] and Set[T] address different slots.

package session

import (
	"errors"
	"fmt"
	"io"
	"reflect"
	"sync"
)

// ErrResourceNotFound is returned by Get and Remove when no value of the
// requested type is stored.
var ErrResourceNotFound = errors.New("resource not found")

// Resources stores at most one value per type.
type Resources struct {
	mu    sync.RWMutex
	items map[reflect.Type]any
}

// NewResources returns an empty bag.
func NewResources() *Resources {
	return &Resources{items: make(map[reflect.Type]any)}
}

// Set stores v, replacing any previous value of type T.
func Set[T any](r *Resources, v T) {
	r.mu.Lock()
	r.items[reflect.TypeFor[T]()] = v
	r.mu.Unlock()
}

// Get returns the value of type T or ErrResourceNotFound.
func Get[T any](r *Resources) (T, error) {
	v, ok := TryGet[T](r)
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s", ErrResourceNotFound, reflect.TypeFor[T]())
	}
	return v, nil
}

// TryGet returns the value of type T and whether it was present.
func TryGet[T any](r *Resources) (T, bool) {
	r.mu.RLock()
	v, ok := r.items[reflect.TypeFor[T]()]
	r.mu.RUnlock()
	if !ok {
		var zero T
		return zero, false
	}
	t, _ := v.(T)
	return t, true
}

// Remove deletes the value of type T; it fails if none is stored.
// The value is not closed.
func Remove[T any](r *Resources) error {
	if !RemoveIfExists[T](r) {
		return fmt.Errorf("%w: %s", ErrResourceNotFound, reflect.TypeFor[T]())
	}
	return nil
}

// RemoveIfExists deletes the value of type T and reports whether one existed.
func RemoveIfExists[T any](r *Resources) bool {
	key := reflect.TypeFor[T]()
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[key]; !ok {
		return false
	}
	delete(r.items, key)
	return true
}

// Len returns the number of stored values.
func (r *Resources) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

// Close empties the bag and closes every value implementing io.Closer.
func (r *Resources) Close() error {
	r.mu.Lock()
	items := r.items
	r.items = make(map[reflect.Type]any)
	r.mu.Unlock()

	var errs []error
	for _, v := range items {
		if c, ok := v.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
