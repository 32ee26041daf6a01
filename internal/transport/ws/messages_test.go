package ws

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlexInt64(t *testing.T) {
	t.Run("accepts a JSON number", func(t *testing.T) {
		var msg inboundMessage
		require.NoError(t, json.Unmarshal([]byte(`{"event":"new_pairing","platform":12}`), &msg))
		assert.True(t, msg.Platform.set)
		assert.Equal(t, int64(12), msg.Platform.value)
	})

	t.Run("accepts a numeric string", func(t *testing.T) {
		var msg inboundMessage
		require.NoError(t, json.Unmarshal([]byte(`{"event":"new_pairing","platform":"34"}`), &msg))
		assert.True(t, msg.Platform.set)
		assert.Equal(t, int64(34), msg.Platform.value)
	})

	t.Run("treats null and empty string as absent", func(t *testing.T) {
		for _, raw := range []string{`{"platform":null}`, `{"platform":""}`, `{}`} {
			var msg inboundMessage
			require.NoError(t, json.Unmarshal([]byte(raw), &msg), raw)
			assert.False(t, msg.Platform.set, raw)
		}
	})

	t.Run("rejects non-numeric strings", func(t *testing.T) {
		var msg inboundMessage
		assert.Error(t, json.Unmarshal([]byte(`{"platform":"dock-a"}`), &msg))
	})
}
