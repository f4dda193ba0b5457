package outbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEnvelope(t *testing.T) {
	env, err := DecodeEnvelope([]byte(`{"version":1,"eventId":"e-1","data":{"orderId":"o-1"}}`))
	require.NoError(t, err)
	assert.Equal(t, "e-1", env.EventID)
	assert.JSONEq(t, `{"orderId":"o-1"}`, string(env.Data))

	legacy, err := DecodeEnvelope([]byte(`{"data":{}}`))
	require.NoError(t, err)
	assert.Equal(t, 1, legacy.Version)

	for name, raw := range map[string]string{
		"not json":       `{`,
		"future version": `{"version":2,"data":{}}`,
		"null data":      `{"version":1,"data":null}`,
		"no data":        `{"version":1}`,
	} {
		_, err := DecodeEnvelope([]byte(raw))
		assert.Error(t, err, name)
	}
}
