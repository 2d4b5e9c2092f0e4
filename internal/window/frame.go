package window

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
)

// Frame selects the rows around the current row that a window sums over,
// counted in rows. Preceding is ignored when Unbounded is set.
type Frame struct {
	Preceding int
	Following int
	Unbounded bool
}

// Trailing sums the current row and the n rows before it.
func Trailing(n int) Frame {
	return Frame{Preceding: n}
}

// Cumulative sums every row up to and including the current row.
func Cumulative() Frame {
	return Frame{Unbounded: true}
}

func (f Frame) MarshalJSON() ([]byte, error) {
	first := "null"
	if !f.Unbounded {
		first = strconv.Itoa(f.Preceding)
	}
	return []byte("[" + first + "," + strconv.Itoa(f.Following) + "]"), nil
}

func (f *Frame) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return errors.New("frame must have two elements")
	}

	*f = Frame{}
	if bytes.Equal(bytes.TrimSpace(pair[0]), []byte("null")) {
		f.Unbounded = true
	} else if err := json.Unmarshal(pair[0], &f.Preceding); err != nil {
		return err
	}
	return json.Unmarshal(pair[1], &f.Following)
}

// bounds returns the inclusive index range of the frame around i in a
// series of n rows.
func (f Frame) bounds(i, n int) (int, int) {
	lo := 0
	if !f.Unbounded {
		lo = i - f.Preceding
		if lo < 0 {
			lo = 0
		}
	}
	hi := i + f.Following
	if hi > n-1 {
		hi = n - 1
	}
	return lo, hi
}
