package ndimage

import (
	"golang.org/x/exp/constraints"
)

// Pixel is the set of scalar types an image can store
type Pixel interface {
	constraints.Integer | constraints.Float
}

// Buffer is a contiguous pixel store addressed by linear offsets
type Buffer[T Pixel] struct {
	data []T
}

// NewBuffer allocates n zeroed pixel slots
func NewBuffer[T Pixel](n int64) *Buffer[T] {
	if n < 0 {
		n = 0
	}
	return &Buffer[T]{data: make([]T, n)}
}

// WrapBuffer uses data as the backing store without copying
func WrapBuffer[T Pixel](data []T) *Buffer[T] {
	return &Buffer[T]{data: data}
}

// Len returns the number of pixel slots
func (b *Buffer[T]) Len() int64 {
	return int64(len(b.data))
}

// At returns the value stored at offset
func (b *Buffer[T]) At(offset int64) T {
	return b.data[offset]
}

// Set stores v at offset
func (b *Buffer[T]) Set(offset int64, v T) {
	b.data[offset] = v
}

// Fill sets every slot to v
func (b *Buffer[T]) Fill(v T) {
	for i := range b.data {
		b.data[i] = v
	}
}

// Data exposes the backing slice. Writes to it are writes to the buffer.
func (b *Buffer[T]) Data() []T {
	return b.data
}

// Clone returns a buffer with a copy of the pixel data
func (b *Buffer[T]) Clone() *Buffer[T] {
	out := make([]T, len(b.data))
	copy(out, b.data)
	return &Buffer[T]{data: out}
}
