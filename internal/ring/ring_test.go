package ring

import (
	"reflect"
	"testing"
)

var bufferTests = []struct {
	name string
	ops  func() any
	want any
}{
	{
		name: "new_4_string",
		ops: func() any {
			return NewBuffer[string](4)
		},
		want: &Buffer[string]{data: make([]string, 4)},
	},
	{
		name: "new_4_uint16_write_2",
		ops: func() any {
			r := NewBuffer[uint16](4)
			d := r.Write([]uint16{1, 2})
			return []any{r, d}
		},
		want: []any{&Buffer[uint16]{data: []uint16{1, 2, 0, 0}, head: 0, n: 2}, 0},
	},
	{
		name: "new_4_uint16_write_2_3",
		ops: func() any {
			r := NewBuffer[uint16](4)
			r.Write([]uint16{1, 2})
			d := r.Write([]uint16{3, 4, 5})
			return []any{r, d}
		},
		want: []any{&Buffer[uint16]{data: []uint16{5, 2, 3, 4}, head: 1, n: 4}, 1},
	},
	{
		name: "new_4_uint16_write_2_5",
		ops: func() any {
			r := NewBuffer[uint16](4)
			r.Write([]uint16{1, 2})
			d := r.Write([]uint16{3, 4, 5, 6, 7})
			return []any{r, d}
		},
		want: []any{&Buffer[uint16]{data: []uint16{4, 5, 6, 7}, head: 0, n: 4}, 3},
	},
	{
		name: "new_4_uint16_write_4_adv2_1_read",
		ops: func() any {
			r := NewBuffer[uint16](4)
			r.Write([]uint16{1, 2, 3, 4})
			r.Advance(2)
			r.Write([]uint16{5})
			var buf [4]uint16
			n := r.Read(buf[:])
			return []any{r, buf[:n]}
		},
		want: []any{
			&Buffer[uint16]{data: []uint16{5, 2, 3, 4}, head: 1, n: 0},
			[]uint16{3, 4, 5},
		},
	},
	{
		name: "new_4_uint16_write_4_adv2_1_copy",
		ops: func() any {
			r := NewBuffer[uint16](4)
			r.Write([]uint16{1, 2, 3, 4})
			r.Advance(2)
			r.Write([]uint16{5})
			var buf [2]uint16
			n := r.CopyTo(buf[:])
			return []any{r, buf[:n]}
		},
		want: []any{
			&Buffer[uint16]{data: []uint16{5, 2, 3, 4}, head: 2, n: 3},
			[]uint16{3, 4},
		},
	},
	{
		name: "push_pop_wrap",
		ops: func() any {
			r := NewBuffer[string](3)
			var dropped []bool
			for _, s := range []string{"a", "b", "c", "d"} {
				dropped = append(dropped, r.Push(s))
			}
			var got []string
			for {
				s, ok := r.Pop()
				if !ok {
					break
				}
				got = append(got, s)
			}
			return []any{r, dropped, got}
		},
		want: []any{
			&Buffer[string]{data: []string{"", "", ""}, head: 1, n: 0},
			[]bool{false, false, false, true},
			[]string{"b", "c", "d"},
		},
	},
	{
		name: "push_zero_size",
		ops: func() any {
			r := NewBuffer[int](0)
			return []any{r.Push(1), r.Len()}
		},
		want: []any{true, 0},
	},
	{
		name: "advance_past_len",
		ops: func() any {
			r := NewBuffer[int](4)
			r.Write([]int{1, 2})
			r.Advance(10)
			return r
		},
		want: &Buffer[int]{data: []int{1, 2, 0, 0}, head: 2, n: 0},
	},
	{
		name: "head_one_before_end",
		ops: func() any {
			var buf [10]uint16
			r := &Buffer[uint16]{
				data: []uint16{0x1, 0x2, 0x3, 0x4, 0x5, 0x6, 0x7, 0x8},
				head: 7, n: 4,
			}
			n := r.CopyTo(buf[:])
			return buf[:n]
		},
		want: []uint16{0x8, 0x1, 0x2, 0x3},
	},
}

func TestBuffer(t *testing.T) {
	for _, test := range bufferTests {
		t.Run(test.name, func(t *testing.T) {
			got := test.ops()
			if !reflect.DeepEqual(got, test.want) {
				t.Errorf("expected result:\ngot: %#v\nwant:%#v", got, test.want)
			}
		})
	}
}
