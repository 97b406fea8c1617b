package provider

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNumber(t *testing.T) {
	cases := []struct {
		name string
		in   any
		want float64
		ok   bool
	}{
		{"nil", nil, 0, false},
		{"float", 3.5, 3.5, true},
		{"int", 7, 7, true},
		{"int64", int64(9), 9, true},
		{"json number", json.Number("1012"), 1012, true},
		{"numeric string", "2.25", 2.25, true},
		{"garbage string", "calm", 0, false},
		{"bool", true, 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := Number(tc.in)
			assert.Equal(t, tc.ok, ok)
			assert.InDelta(t, tc.want, got, 1e-9)
		})
	}
}

func TestInt(t *testing.T) {
	assert.Equal(t, 4, Int(3.6, 0))
	assert.Equal(t, -4, Int(-3.6, 0))
	assert.Equal(t, 42, Int(nil, 42))
	assert.Equal(t, 42, Int("n/a", 42))
}
