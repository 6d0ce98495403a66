package align

import "io"

type sliceSource[T Chunk] struct {
	chunks []T
}

// FromSlice returns a Source that yields the given chunks in order.
func FromSlice[T Chunk](chunks ...T) Source[T] {
	return &sliceSource[T]{chunks: chunks}
}

func (s *sliceSource[T]) Next() (T, error) {
	if len(s.chunks) == 0 {
		var zero T
		return zero, io.EOF
	}
	c := s.chunks[0]
	s.chunks = s.chunks[1:]
	return c, nil
}

// Collect drains src and returns every chunk it produced.
func Collect[T Chunk](src Source[T]) ([]T, error) {
	var out []T
	for {
		c, err := src.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, c)
	}
}
