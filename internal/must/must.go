// Package must adapts (value, error)-returning calls into panicking
// value-only calls, for use during startup where there is no
// sensible recovery from a config or flag parsing error.
package must

func Must2[T1 any](p1 T1, err error) T1 {
	if err != nil {
		panic(err)
	}
	return p1
}

func Must3[T1, T2 any](p1 T1, p2 T2, err error) (T1, T2) {
	if err != nil {
		panic(err)
	}
	return p1, p2
}
