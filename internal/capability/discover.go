package capability

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ModuleExt is the file extension of dynamically loadable modules.
const ModuleExt = ".so"

// ErrDynamicUnsupported is returned when modules are present but this build
// cannot open them.
var ErrDynamicUnsupported = errors.New("dynamic capability modules are not supported by this build")

// Symbols names the two entry points every dynamic module must export.
type Symbols struct {
	Factory string
	Destroy string
}

// Discover scans dir for modules and resolves their entry points. An empty dir
// means no dynamic modules. A configured dir that does not exist is an error,
// as is any module that fails to open or lacks an entry point; no partial set
// is returned.
func Discover[T Capability](dir string, symbols Symbols) ([]Module[T], error) {
	paths, err := modulePaths(dir)
	if err != nil || len(paths) == 0 {
		return nil, err
	}

	modules := make([]Module[T], 0, len(paths))
	for _, path := range paths {
		m, err := openModule[T](path, symbols)
		if err != nil {
			releaseAll(modules)
			return nil, &LoadError{Path: path, Err: err}
		}
		modules = append(modules, m)
	}
	return modules, nil
}

func modulePaths(dir string) ([]string, error) {
	if dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &LoadError{Path: dir, Err: fmt.Errorf("read module directory: %w", err)}
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ModuleExt) {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	return paths, nil
}

func releaseAll[T Capability](modules []Module[T]) {
	for i := len(modules) - 1; i >= 0; i-- {
		if modules[i].Release != nil {
			_ = modules[i].Release()
		}
	}
}
