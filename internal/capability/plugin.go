//go:build cgo && (linux || darwin || freebsd)

package capability

import (
	"fmt"
	"plugin"
)

// openModule opens a Go plugin and resolves its factory and destructor. Go
// cannot unload a plugin, so the handle lives until the process exits and the
// module has no Release.
func openModule[T Capability](path string, symbols Symbols) (Module[T], error) {
	p, err := plugin.Open(path)
	if err != nil {
		return Module[T]{}, err
	}

	factorySym, err := p.Lookup(symbols.Factory)
	if err != nil {
		return Module[T]{}, fmt.Errorf("missing entry point %s: %w", symbols.Factory, err)
	}
	destroySym, err := p.Lookup(symbols.Destroy)
	if err != nil {
		return Module[T]{}, fmt.Errorf("missing entry point %s: %w", symbols.Destroy, err)
	}

	factory, ok := factorySym.(func() T)
	if !ok {
		return Module[T]{}, fmt.Errorf("entry point %s has type %T", symbols.Factory, factorySym)
	}
	destroy, ok := destroySym.(func(T))
	if !ok {
		return Module[T]{}, fmt.Errorf("entry point %s has type %T", symbols.Destroy, destroySym)
	}

	return Module[T]{
		Path:    path,
		Handle:  p,
		New:     factory,
		Destroy: destroy,
	}, nil
}
