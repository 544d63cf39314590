// Package registry implements a generic, concurrency-safe named-item
// registry shared by every catalog in loom (tools, chat models, embedders,
// stores): one generic map-with-mutex instead of a bespoke registry per
// component.
package registry

import (
	"sync"

	"github.com/loomrun/loom/pkg/errs"
)

type Registry[T any] interface {
	Register(name string, item T) error
	Get(name string) (T, bool)
	List() []T
	Remove(name string) error
	Count() int
	Clear()
}

type BaseRegistry[T any] struct {
	mu    sync.RWMutex
	items map[string]T
}

func NewBaseRegistry[T any]() *BaseRegistry[T] {
	return &BaseRegistry[T]{
		items: make(map[string]T),
	}
}

// Register adds item under name. Both an empty name and a name already
// registered are config-time mistakes, not runtime faults, so both return
// a KindConfig error the caller can fold into its own load-path error
// (spec §4.C8-style "fails the build" conventions apply uniformly across
// every registry, not just the stage graph).
func (r *BaseRegistry[T]) Register(name string, item T) error {
	if name == "" {
		return errs.New(errs.KindConfig, "registry", "name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[name]; exists {
		return errs.New(errs.KindConfig, "registry", "item with name '"+name+"' already registered")
	}

	r.items[name] = item
	return nil
}

func (r *BaseRegistry[T]) Get(name string) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	item, exists := r.items[name]
	return item, exists
}

func (r *BaseRegistry[T]) List() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	items := make([]T, 0, len(r.items))
	for _, item := range r.items {
		items = append(items, item)
	}
	return items
}

func (r *BaseRegistry[T]) Remove(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[name]; !exists {
		return errs.New(errs.KindConfig, "registry", "item '"+name+"' not found")
	}

	delete(r.items, name)
	return nil
}

func (r *BaseRegistry[T]) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.items)
}

func (r *BaseRegistry[T]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items = make(map[string]T)
}

// Keys returns the registered names in no particular order.
func (r *BaseRegistry[T]) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.items))
	for k := range r.items {
		keys = append(keys, k)
	}
	return keys
}
