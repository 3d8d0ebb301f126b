package mode

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	m, err := Parse(" Convert ")
	require.NoError(t, err)
	assert.Equal(t, Convert, m)

	_, err = Parse("split")
	assert.Error(t, err)
}

func TestJSONUsesNames(t *testing.T) {
	data, err := json.Marshal(map[string]Mode{"mode": Convert})
	require.NoError(t, err)
	assert.JSONEq(t, `{"mode":"convert"}`, string(data))

	var out struct {
		Mode Mode `json:"mode"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"mode":"merge"}`), &out))
	assert.Equal(t, Merge, out.Mode)

	assert.Error(t, json.Unmarshal([]byte(`{"mode":"zip"}`), &out))
}

func TestSwitch(t *testing.T) {
	s := NewSwitch()
	assert.Equal(t, Merge, s.Active())

	assert.Equal(t, Merge, s.Set(Convert))
	assert.Equal(t, Convert, s.Active())

	// setting the same mode is allowed
	assert.Equal(t, Convert, s.Set(Convert))
}

func TestUnknownModeString(t *testing.T) {
	assert.Equal(t, "mode(7)", Mode(7).String())
	_, err := Mode(7).MarshalText()
	assert.Error(t, err)
}
