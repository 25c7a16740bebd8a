package ipc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONCodec_MarshalUnmarshal(t *testing.T) {
	c := jsonCodec{}
	in := &StatusRequest{}
	data, err := c.Marshal(in)
	require.NoError(t, err)

	out := new(StatusResponse)
	require.NoError(t, c.Unmarshal([]byte(`{"Status":"ready"}`), out))
	assert.Equal(t, "ready", out.Status)
	assert.NotNil(t, data)
}

func TestJSONCodec_Name(t *testing.T) {
	assert.Equal(t, "json", jsonCodec{}.Name())
}

func TestJSONCodec_UnmarshalEmpty(t *testing.T) {
	c := jsonCodec{}
	out := new(StatusResponse)
	assert.NoError(t, c.Unmarshal(nil, out))
}
