package initwfn

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInitWFnJSON(t *testing.T) {
	init := New(GlorotUConfig{Gain: 1.5})

	data, err := json.Marshal(init)
	require.NoError(t, err)

	var decoded InitWFn
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, GlorotU, decoded.Type())
	require.Equal(t, GlorotUConfig{Gain: 1.5}, decoded.Config)
	require.NotNil(t, decoded.InitWFn())

	require.NoError(t, json.Unmarshal([]byte(`{"Type": "Zeroes"}`), &decoded))
	require.Equal(t, Zeroes, decoded.Type())

	require.Error(t, json.Unmarshal([]byte(`{"Type": "Orthogonal"}`),
		&decoded))
}
