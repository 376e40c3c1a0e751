//go:build !unix

package bus

func errnoKind(error) (Kind, bool) {
	return 0, false
}
