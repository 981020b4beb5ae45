//go:build !cgo || !(linux || darwin || freebsd)

package capability

func openModule[T Capability](string, Symbols) (Module[T], error) {
	return Module[T]{}, ErrDynamicUnsupported
}
