package clock

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompare(t *testing.T) {
	cases := []struct {
		name string
		a, b Clock
		want Relation
	}{
		{"both empty", Clock{}, Clock{}, Equal},
		{"identical", Clock{"d1": 3, "d2": 1}, Clock{"d1": 3, "d2": 1}, Equal},
		{"a strictly behind", Clock{"d1": 1}, Clock{"d1": 2}, Before},
		{"a strictly ahead", Clock{"d1": 2}, Clock{"d1": 1}, After},
		{"missing key treated as zero, before", Clock{}, Clock{"d1": 1}, Before},
		{"missing key treated as zero, after", Clock{"d1": 1}, Clock{}, After},
		{"concurrent", Clock{"d1": 2, "d2": 0}, Clock{"d1": 0, "d2": 2}, Concurrent},
		{"concurrent with shared key", Clock{"d1": 2, "d2": 1}, Clock{"d1": 1, "d2": 2}, Concurrent},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Compare(tc.a, tc.b))
		})
	}
}

func TestCompare_ConcurrentIsSymmetric(t *testing.T) {
	a := Clock{"d1": 1, "d2": 3}
	b := Clock{"d1": 2, "d2": 1}

	require.Equal(t, Concurrent, Compare(a, b))
	require.Equal(t, Concurrent, Compare(b, a))
}

func TestMerge(t *testing.T) {
	a := Clock{"d1": 3, "d2": 1}
	b := Clock{"d1": 1, "d3": 5}

	got := Merge(a, b)

	assert.Equal(t, Clock{"d1": 3, "d2": 1, "d3": 5}, got)
	// Inputs must not be mutated.
	assert.Equal(t, Clock{"d1": 3, "d2": 1}, a)
	assert.Equal(t, Clock{"d1": 1, "d3": 5}, b)
}

func TestIncrement(t *testing.T) {
	original := Clock{"d1": 1}

	got := Increment("d1", original)
	assert.Equal(t, int64(2), got["d1"])
	assert.Equal(t, int64(1), original["d1"], "input clock must not be mutated")

	gotNew := Increment("d2", original)
	assert.Equal(t, int64(1), gotNew["d2"])
	_, present := original["d2"]
	assert.False(t, present)
}

func TestFromMap_NilCoercesToEmpty(t *testing.T) {
	c := FromMap(nil)
	assert.True(t, c.IsZero())
}

func TestJSONRoundTrip(t *testing.T) {
	c := Clock{"device-a": 4, "device-b": 0}

	data, err := json.Marshal(c)
	require.NoError(t, err)

	var decoded Clock
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, c, decoded)
}

func TestUnmarshalJSON_InvalidCoercesToEmpty(t *testing.T) {
	var c Clock
	err := json.Unmarshal([]byte(`"not-a-map"`), &c)
	require.NoError(t, err)
	assert.True(t, c.IsZero())
}

func TestMarshalJSON_NilClockEncodesEmptyObject(t *testing.T) {
	var c Clock
	data, err := json.Marshal(c)
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(data))
}
