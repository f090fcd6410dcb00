package storage

import (
	"context"
	"errors"
	"sync"
)

// Lazy holds a value that is either already resolved or built by a factory on first
// use. Resolution happens at most once, even under concurrent callers; a failed
// resolution is remembered and returned to every later caller.
type Lazy[T any] struct {
	once    sync.Once
	factory func(context.Context) (T, error)
	value   T
	err     error
}

// NewLazy returns an unresolved Lazy built by factory.
func NewLazy[T any](factory func(context.Context) (T, error)) *Lazy[T] {
	return &Lazy[T]{factory: factory}
}

// Resolved returns a Lazy that already holds v.
func Resolved[T any](v T) *Lazy[T] {
	l := &Lazy[T]{value: v}
	l.once.Do(func() {})
	return l
}

// Get resolves the value if needed and returns it. ctx is only used by the resolving call.
func (l *Lazy[T]) Get(ctx context.Context) (T, error) {
	l.once.Do(func() {
		if l.factory == nil {
			l.err = errors.New("lazy value has no factory")
			return
		}
		l.value, l.err = l.factory(ctx)
		l.factory = nil
	})
	return l.value, l.err
}
