package declaration

import (
	"fmt"
	"sort"
	"sync"

	command "github.com/goliatone/go-command-worker"
)

// Named is anything registered by name.
type Named interface {
	Name() string
}

// Collection is a name keyed repository of prototypes.
type Collection[T Named] struct {
	mu    sync.RWMutex
	items map[string]T
}

func NewCollection[T Named]() *Collection[T] {
	return &Collection[T]{items: make(map[string]T)}
}

// Add registers item. Names are unique.
func (c *Collection[T]) Add(item T) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	name := item.Name()
	if _, exists := c.items[name]; exists {
		return command.CloneError(command.ErrDuplicateDefinition,
			fmt.Sprintf("%q is already registered", name), nil, map[string]any{"name": name})
	}
	c.items[name] = item
	return nil
}

func (c *Collection[T]) Get(name string) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	item, ok := c.items[name]
	return item, ok
}

func (c *Collection[T]) Has(name string) bool {
	_, ok := c.Get(name)
	return ok
}

// Names returns the registered names, sorted.
func (c *Collection[T]) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.items))
	for name := range c.items {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (c *Collection[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
