package dto

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Quantity is a lenient cart quantity. It accepts a JSON number or a numeric
// string; anything else, including a missing field, reads as 1.
type Quantity struct {
	value int
	set   bool
}

func NewQuantity(n int) Quantity { return Quantity{value: n, set: true} }

// UnmarshalJSON truncates fractional numbers, while a string must hold a
// whole number to count.
func (q *Quantity) UnmarshalJSON(b []byte) error {
	*q = Quantity{}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			q.value, q.set = n, true
		}
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return nil
	}
	if i, err := n.Int64(); err == nil {
		q.value, q.set = int(i), true
	} else if f, err := n.Float64(); err == nil {
		q.value, q.set = int(f), true
	}
	return nil
}

func (q Quantity) MarshalJSON() ([]byte, error) {
	return json.Marshal(q.Int())
}

// Int returns the parsed quantity, or 1 when none was given.
func (q Quantity) Int() int {
	if !q.set {
		return 1
	}
	return q.value
}
