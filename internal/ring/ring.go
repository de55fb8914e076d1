// Copyright ©2025 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package ring implements a fixed capacity ring buffer that overwrites
// its oldest elements when full.
package ring

// Buffer is a ring buffer of T. The zero value is not usable; use
// NewBuffer.
type Buffer[T any] struct {
	data []T
	head int // index of the oldest element
	n    int // number of held elements
}

// NewBuffer returns a Buffer holding at most n elements.
func NewBuffer[T any](n int) *Buffer[T] {
	return &Buffer[T]{data: make([]T, n)}
}

// Len returns the number of held elements.
func (r *Buffer[T]) Len() int { return r.n }

// Size returns the capacity of the buffer.
func (r *Buffer[T]) Size() int { return len(r.data) }

// Push adds v as the newest element. If the buffer is full the oldest
// element is overwritten and Push returns true.
func (r *Buffer[T]) Push(v T) (dropped bool) {
	if len(r.data) == 0 {
		return true
	}
	tail := (r.head + r.n) % len(r.data)
	r.data[tail] = v
	if r.n == len(r.data) {
		r.head = (r.head + 1) % len(r.data)
		return true
	}
	r.n++
	return false
}

// Pop removes and returns the oldest element.
func (r *Buffer[T]) Pop() (v T, ok bool) {
	if r.n == 0 {
		return v, false
	}
	var zero T
	v = r.data[r.head]
	r.data[r.head] = zero
	r.head = (r.head + 1) % len(r.data)
	r.n--
	return v, true
}

// Write adds the elements of src in order, overwriting the oldest
// elements when the buffer is full. It returns the number of elements
// dropped.
func (r *Buffer[T]) Write(src []T) (dropped int) {
	if len(src) >= len(r.data) {
		dropped = r.n + len(src) - len(r.data)
		r.head = 0
		r.n = copy(r.data, src[len(src)-len(r.data):])
		return dropped
	}
	for _, v := range src {
		if r.Push(v) {
			dropped++
		}
	}
	return dropped
}

// Read removes up to len(dst) of the oldest elements into dst and
// returns the number removed.
func (r *Buffer[T]) Read(dst []T) int {
	n := r.CopyTo(dst)
	r.Advance(n)
	return n
}

// CopyTo copies up to len(dst) of the oldest elements into dst without
// removing them.
func (r *Buffer[T]) CopyTo(dst []T) int {
	m := min(len(dst), r.n)
	if m == 0 {
		return 0
	}
	n := copy(dst[:m], r.data[r.head:])
	n += copy(dst[n:m], r.data[:m-n])
	return n
}

// Advance discards up to n of the oldest elements.
func (r *Buffer[T]) Advance(n int) {
	n = min(n, r.n)
	if n <= 0 {
		return
	}
	r.head = (r.head + n) % len(r.data)
	r.n -= n
}
