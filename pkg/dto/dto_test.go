package dto

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOk(t *testing.T) {
	env := Ok(map[string]string{"foo": "bar"})

	assert.True(t, env.Success)
	assert.Empty(t, env.Message)
	assert.NotNil(t, env.Data)
	_, err := time.Parse(time.RFC3339, env.Timestamp)
	assert.NoError(t, err)
}

func TestFail(t *testing.T) {
	env := Fail("something went wrong")

	assert.False(t, env.Success)
	assert.Equal(t, "something went wrong", env.Message)
	assert.Nil(t, env.Data)
}

func TestEnvelope_OmitsEmptyFieldsOnFail(t *testing.T) {
	env := Fail("bad request")

	data, err := json.Marshal(env)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))

	_, hasData := decoded["data"]
	assert.False(t, hasData, "data should be omitted when nil")
	assert.Equal(t, "bad request", decoded["message"])
	assert.Equal(t, false, decoded["success"])
}
