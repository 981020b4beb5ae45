// Package capability provides the registry that instantiates and names
// pluggable capabilities. The same registry type serves sensors and storage
// backends.
package capability

import (
	"errors"
	"fmt"
	"reflect"

	"go.uber.org/zap"
)

// ErrNotFound is returned by Lookup for a name no module reported.
var ErrNotFound = errors.New("capability not found")

// Capability is the minimum every pluggable unit implements.
type Capability interface {
	Name() string
}

// LoadError reports a module that could not be loaded or instantiated.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load capability module %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Module is one loadable unit: a factory and destructor pair plus the handle
// that keeps them valid. Builtin modules have no handle and no Release.
type Module[T Capability] struct {
	Path    string
	Handle  any
	New     func() T
	Destroy func(T)
	Release func() error
}

// Builtin returns a compiled-in module named after the capability it creates.
func Builtin[T Capability](name string, factory func() T) Module[T] {
	return Module[T]{
		Path:    "builtin:" + name,
		New:     factory,
		Destroy: func(T) {},
	}
}

type descriptor[T Capability] struct {
	module   Module[T]
	instance T
}

// Registry owns loaded capability instances in load order. It is read-only
// after construction and safe for concurrent lookups.
type Registry[T Capability] struct {
	entries []descriptor[T]
	logger  *zap.Logger
}

// New instantiates every module in order. Construction aborts on the first
// module that lacks an entry point or yields no instance; instances created up
// to that point are torn down before the error is returned.
func New[T Capability](logger *zap.Logger, modules ...Module[T]) (*Registry[T], error) {
	r := &Registry[T]{logger: logger}
	seen := make(map[string]string, len(modules))

	for _, m := range modules {
		if m.New == nil || m.Destroy == nil {
			_ = r.Close()
			return nil, &LoadError{Path: m.Path, Err: errors.New("missing factory or destructor")}
		}

		instance := m.New()
		if isNil(instance) {
			_ = r.Close()
			return nil, &LoadError{Path: m.Path, Err: errors.New("factory returned no instance")}
		}

		name := instance.Name()
		if first, ok := seen[name]; ok {
			logger.Warn("Duplicate capability name, earlier module shadows it",
				zap.String("name", name),
				zap.String("module", m.Path),
				zap.String("shadowed_by", first))
		} else {
			seen[name] = m.Path
		}

		r.entries = append(r.entries, descriptor[T]{module: m, instance: instance})
		logger.Debug("Loaded capability",
			zap.String("name", name),
			zap.String("module", m.Path))
	}

	return r, nil
}

// Lookup returns the first loaded capability reporting name.
func (r *Registry[T]) Lookup(name string) (T, error) {
	for _, e := range r.entries {
		if e.instance.Name() == name {
			return e.instance, nil
		}
	}
	var zero T
	return zero, fmt.Errorf("%w: %q", ErrNotFound, name)
}

// Count returns the number of loaded capabilities.
func (r *Registry[T]) Count() int { return len(r.entries) }

// NameAt returns the name of the capability at index i in load order.
func (r *Registry[T]) NameAt(i int) (string, error) {
	if i < 0 || i >= len(r.entries) {
		return "", fmt.Errorf("capability index %d out of range [0,%d)", i, len(r.entries))
	}
	return r.entries[i].instance.Name(), nil
}

// Names lists capability names in load order, duplicates included.
func (r *Registry[T]) Names() []string {
	names := make([]string, len(r.entries))
	for i, e := range r.entries {
		names[i] = e.instance.Name()
	}
	return names
}

// Close destroys instances in reverse load order. Each instance is destroyed
// before its module handle is released.
func (r *Registry[T]) Close() error {
	var errs []error
	for i := len(r.entries) - 1; i >= 0; i-- {
		e := r.entries[i]
		e.module.Destroy(e.instance)
		if e.module.Release != nil {
			if err := e.module.Release(); err != nil {
				errs = append(errs, &LoadError{Path: e.module.Path, Err: err})
			}
		}
	}
	r.entries = nil
	return errors.Join(errs...)
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Interface, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
