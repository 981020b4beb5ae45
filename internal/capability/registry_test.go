package capability

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeCap struct {
	name string
	tag  string
}

func (f *fakeCap) Name() string { return f.name }

type teardownLog struct {
	events []string
}

func (l *teardownLog) module(path, name, tag string) Module[*fakeCap] {
	return Module[*fakeCap]{
		Path: path,
		New:  func() *fakeCap { return &fakeCap{name: name, tag: tag} },
		Destroy: func(c *fakeCap) {
			l.events = append(l.events, "destroy:"+c.tag)
		},
		Release: func() error {
			l.events = append(l.events, "release:"+path)
			return nil
		},
	}
}

func TestRegistryLookupAndListing(t *testing.T) {
	log := &teardownLog{}
	r, err := New(zaptest.NewLogger(t),
		log.module("a.so", "load_average", "a"),
		log.module("b.so", "memory_usage", "b"),
	)
	require.NoError(t, err)

	assert.Equal(t, 2, r.Count())
	assert.Equal(t, []string{"load_average", "memory_usage"}, r.Names())

	name, err := r.NameAt(1)
	require.NoError(t, err)
	assert.Equal(t, "memory_usage", name)

	_, err = r.NameAt(2)
	assert.Error(t, err)

	c, err := r.Lookup("memory_usage")
	require.NoError(t, err)
	assert.Equal(t, "b", c.tag)

	_, err = r.Lookup("file_system_usage")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegistryDuplicateNamesFirstMatchWins(t *testing.T) {
	log := &teardownLog{}
	r, err := New(zaptest.NewLogger(t),
		log.module("first.so", "cpu", "first"),
		log.module("second.so", "cpu", "second"),
	)
	require.NoError(t, err)

	c, err := r.Lookup("cpu")
	require.NoError(t, err)
	assert.Equal(t, "first", c.tag)
	assert.Equal(t, 2, r.Count())
}

func TestRegistryCloseReverseOrder(t *testing.T) {
	log := &teardownLog{}
	r, err := New(zaptest.NewLogger(t),
		log.module("one.so", "one", "1"),
		log.module("two.so", "two", "2"),
		log.module("three.so", "three", "3"),
	)
	require.NoError(t, err)

	require.NoError(t, r.Close())
	assert.Equal(t, []string{
		"destroy:3", "release:three.so",
		"destroy:2", "release:two.so",
		"destroy:1", "release:one.so",
	}, log.events)
	assert.Zero(t, r.Count())
}

func TestRegistryAbortsOnBrokenModule(t *testing.T) {
	tests := []struct {
		name   string
		broken Module[*fakeCap]
	}{
		{
			name:   "missing destructor",
			broken: Module[*fakeCap]{Path: "broken.so", New: func() *fakeCap { return &fakeCap{name: "x"} }},
		},
		{
			name:   "missing factory",
			broken: Module[*fakeCap]{Path: "broken.so", Destroy: func(*fakeCap) {}},
		},
		{
			name: "nil instance",
			broken: Module[*fakeCap]{
				Path:    "broken.so",
				New:     func() *fakeCap { return nil },
				Destroy: func(*fakeCap) {},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log := &teardownLog{}
			r, err := New(zaptest.NewLogger(t), log.module("ok.so", "ok", "ok"), tt.broken)
			require.Error(t, err)
			assert.Nil(t, r)

			var loadErr *LoadError
			require.True(t, errors.As(err, &loadErr))
			assert.Equal(t, "broken.so", loadErr.Path)
			assert.Equal(t, []string{"destroy:ok", "release:ok.so"}, log.events)
		})
	}
}

func TestBuiltinModule(t *testing.T) {
	m := Builtin("uptime", func() *fakeCap { return &fakeCap{name: "uptime"} })
	assert.Equal(t, "builtin:uptime", m.Path)

	r, err := New(zaptest.NewLogger(t), m)
	require.NoError(t, err)
	_, err = r.Lookup("uptime")
	assert.NoError(t, err)
	assert.NoError(t, r.Close())
}

func TestDiscover(t *testing.T) {
	symbols := Symbols{Factory: "NewFake", Destroy: "DestroyFake"}

	t.Run("empty path means no modules", func(t *testing.T) {
		modules, err := Discover[*fakeCap]("", symbols)
		require.NoError(t, err)
		assert.Empty(t, modules)
	})

	t.Run("missing directory is fatal", func(t *testing.T) {
		_, err := Discover[*fakeCap](filepath.Join(t.TempDir(), "absent"), symbols)
		var loadErr *LoadError
		require.True(t, errors.As(err, &loadErr))
		assert.True(t, errors.Is(err, os.ErrNotExist))
	})

	t.Run("non-module files are ignored", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "README"), []byte("x"), 0o644))
		require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.so"), 0o755))

		modules, err := Discover[*fakeCap](dir, symbols)
		require.NoError(t, err)
		assert.Empty(t, modules)
	})

	t.Run("unloadable module aborts discovery", func(t *testing.T) {
		dir := t.TempDir()
		bad := filepath.Join(dir, "bad.so")
		require.NoError(t, os.WriteFile(bad, []byte("not a shared object"), 0o644))

		modules, err := Discover[*fakeCap](dir, symbols)
		assert.Nil(t, modules)
		var loadErr *LoadError
		require.True(t, errors.As(err, &loadErr))
		assert.Equal(t, bad, loadErr.Path)
	})
}
