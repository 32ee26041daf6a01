package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRole(t *testing.T) {
	t.Run("capabilities", func(t *testing.T) {
		assert.False(t, RoleNone.CanRead())
		assert.False(t, RoleNone.CanWrite())
		assert.True(t, RoleReader.CanRead())
		assert.False(t, RoleReader.CanWrite())
		assert.False(t, RoleWriter.CanRead())
		assert.True(t, RoleWriter.CanWrite())
		assert.True(t, RoleReadWriter.CanRead())
		assert.True(t, RoleReadWriter.CanWrite())
	})

	t.Run("validity", func(t *testing.T) {
		for _, r := range []Role{RoleNone, RoleReader, RoleWriter, RoleReadWriter} {
			assert.True(t, r.Valid(), r.String())
		}
		assert.False(t, Role(4).Valid())
		assert.False(t, Role(255).Valid())
	})
}
