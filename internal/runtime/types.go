package runtime

import (
	"fmt"
	"reflect"
	"sync"

	errspkg "github.com/drblury/portalflow/internal/runtime/errors"
)

// TypeName returns the registry key for a payload value.
func TypeName(value any) string {
	return fmt.Sprintf("%T", value)
}

// typeRegistry maps registered type names to their reflect types so remote
// results and incoming requests can be materialized as fresh instances. Both
// sides of a portal channel register the same domain and criteria types.
type typeRegistry struct {
	mu    sync.RWMutex
	types map[string]reflect.Type
}

func newTypeRegistry() *typeRegistry {
	return &typeRegistry{types: make(map[string]reflect.Type)}
}

// Register records prototypes for later materialization. Pointer prototypes
// yield pointer instances. Registering the same type again is a no-op.
func (r *typeRegistry) Register(prototypes ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, prototype := range prototypes {
		if prototype == nil {
			continue
		}
		r.types[TypeName(prototype)] = reflect.TypeOf(prototype)
	}
}

// Lookup returns the reflect type registered under name.
func (r *typeRegistry) Lookup(name string) (reflect.Type, error) {
	r.mu.RLock()
	rt, ok := r.types[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", errspkg.ErrTypeNotRegistered, name)
	}
	return rt, nil
}

// New materializes a fresh zero instance of the named type. Types registered
// through pointer prototypes yield pointers.
func (r *typeRegistry) New(name string) (any, error) {
	rt, err := r.Lookup(name)
	if err != nil {
		return nil, err
	}
	if rt.Kind() == reflect.Pointer {
		return reflect.New(rt.Elem()).Interface(), nil
	}
	return reflect.New(rt).Elem().Interface(), nil
}

// Names returns the registered type names, for introspection.
func (r *typeRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	return names
}

// Has reports whether the named type is registered.
func (r *typeRegistry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.types[name]
	return ok
}
