package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRound2_HalfAwayFromZero(t *testing.T) {
	assert.Equal(t, "2.35", Round2(MustQuantity("2.345")).String())
	assert.Equal(t, "-2.35", Round2(MustQuantity("-2.345")).String())
	assert.Equal(t, "2.34", Round2(MustQuantity("2.3449")).String())
}

func TestDivRound2(t *testing.T) {
	assert.Equal(t, "3.33", DivRound2(MustQuantity("10"), MustQuantity("3")).String())
	assert.Equal(t, "0.67", DivRound2(MustQuantity("2"), MustQuantity("3")).String())
	assert.Equal(t, "5", DivRound2(MustQuantity("40"), MustQuantity("8")).String())
}

func TestNonNegative(t *testing.T) {
	assert.True(t, NonNegative(MustQuantity("-5")).IsZero())
	assert.Equal(t, "5", NonNegative(MustQuantity("5")).String())
}

type numbers struct {
	A OptionalNumber `json:"a"`
	B OptionalNumber `json:"b"`
	C OptionalNumber `json:"c"`
	D OptionalNumber `json:"d"`
	E OptionalNumber `json:"e"`
}

func TestOptionalNumber_Unmarshal(t *testing.T) {
	var n numbers
	require.NoError(t, json.Unmarshal([]byte(`{"a": 12.5, "b": "7", "c": null, "d": "abc"}`), &n))

	assert.True(t, n.A.Set)
	assert.True(t, n.A.Valid)
	assert.Equal(t, "12.5", n.A.Value.String())

	assert.True(t, n.B.Valid)
	assert.Equal(t, "7", n.B.Value.String())

	assert.True(t, n.C.Set)
	assert.False(t, n.C.Valid)

	assert.True(t, n.D.Set)
	assert.False(t, n.D.Valid)
	assert.Equal(t, "abc", n.D.Raw)

	assert.False(t, n.E.Set)
}

func TestOptionalNumber_RejectsNonScalars(t *testing.T) {
	for _, payload := range []string{`{"a": true}`, `{"a": {"x": 1}}`, `{"a": [1]}`} {
		var n numbers
		assert.Error(t, json.Unmarshal([]byte(payload), &n), payload)
	}
}

func TestOptionalNumber_OrDefault(t *testing.T) {
	assert.Equal(t, "1", NullNumber().OrDefault(MustQuantity("1")).String())
	assert.Equal(t, "4", NumberOf(MustQuantity("4")).OrDefault(MustQuantity("1")).String())
}
