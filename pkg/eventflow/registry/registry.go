package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/randalmurphal/eventflow/pkg/eventflow"
	"github.com/randalmurphal/eventflow/pkg/eventflow/config"
)

// ErrUnknownType indicates an app config names a type with no registered factory.
var ErrUnknownType = errors.New("unknown app type")

// PublisherFactory builds a publisher from its app configuration.
type PublisherFactory func(app config.AppConfig) (eventflow.Publisher, error)

// SubscriberFactory builds a subscriber from its app configuration.
type SubscriberFactory func(app config.AppConfig) (eventflow.Subscriber, error)

// Engine is the part of *eventflow.Engine that Build needs.
type Engine interface {
	AddPublisher(name string, app eventflow.Publisher) error
	AddSubscriber(name string, app eventflow.Subscriber) error
}

type entry struct {
	publisher  PublisherFactory
	subscriber SubscriberFactory
}

// Registry is a thread-safe set of app factories indexed by type name.
// A type name maps to exactly one factory; registering it again replaces it.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// New creates a new empty registry.
func New() *Registry {
	return &Registry{
		entries: make(map[string]entry),
	}
}

// RegisterPublisher adds or replaces the factory for typ.
// Panics if f is nil.
func (r *Registry) RegisterPublisher(typ string, f PublisherFactory) {
	if f == nil {
		panic("registry: nil publisher factory")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[typ] = entry{publisher: f}
}

// RegisterSubscriber adds or replaces the factory for typ.
// Panics if f is nil.
func (r *Registry) RegisterSubscriber(typ string, f SubscriberFactory) {
	if f == nil {
		panic("registry: nil subscriber factory")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[typ] = entry{subscriber: f}
}

// Has returns true if typ has a registered factory.
func (r *Registry) Has(typ string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[typ]
	return ok
}

// Types returns the registered type names, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.entries))
	for t := range r.entries {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Build constructs every app in apps and adds it to engine under its name,
// in order. It keeps going after a failure and returns all failures joined.
func (r *Registry) Build(engine Engine, apps []config.AppConfig) error {
	var errs []error
	for _, app := range apps {
		if err := r.build(engine, app); err != nil {
			errs = append(errs, fmt.Errorf("app %q: %w", app.Name, err))
		}
	}
	return errors.Join(errs...)
}

func (r *Registry) build(engine Engine, app config.AppConfig) error {
	r.mu.RLock()
	e, ok := r.entries[app.Type]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownType, app.Type)
	}

	if e.publisher != nil {
		pub, err := e.publisher(app)
		if err != nil {
			return fmt.Errorf("build %s: %w", app.Type, err)
		}
		return engine.AddPublisher(app.Name, pub)
	}

	sub, err := e.subscriber(app)
	if err != nil {
		return fmt.Errorf("build %s: %w", app.Type, err)
	}
	return engine.AddSubscriber(app.Name, sub)
}
