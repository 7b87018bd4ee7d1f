package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOperators(t *testing.T) {
	dir, err := ParseOperators([]string{
		"Ops@Example.com:Ops Team:admin",
		"+33 6 00 00 00 00",
		"support@example.com::support",
	})
	require.NoError(t, err)
	assert.Equal(t, 3, dir.Len())

	ops, ok := dir.Lookup("ops@example.com")
	require.True(t, ok)
	assert.Equal(t, "Ops Team", ops.Name)
	assert.Equal(t, "admin", ops.Role)
	assert.Equal(t, "ops@example.com", ops.Email)

	phone, ok := dir.Lookup("+33600000000")
	require.True(t, ok)
	assert.Equal(t, "+33600000000", phone.Phone)
	assert.Equal(t, "+33600000000", phone.Name)
	assert.Equal(t, "admin", phone.Role)

	support, ok := dir.Lookup("SUPPORT@example.com")
	require.True(t, ok)
	assert.Equal(t, "support", support.Role)
	assert.Equal(t, "support@example.com", support.Name)

	_, ok = dir.Lookup("nobody@example.com")
	assert.False(t, ok)
}

func TestParseOperators_StableIDs(t *testing.T) {
	first, err := ParseOperators([]string{"ops@example.com"})
	require.NoError(t, err)
	second, err := ParseOperators([]string{"OPS@example.com:Renamed"})
	require.NoError(t, err)

	a, _ := first.Lookup("ops@example.com")
	b, _ := second.Lookup("ops@example.com")
	assert.Equal(t, a.ID, b.ID)
}

func TestParseOperators_Rejects(t *testing.T) {
	_, err := ParseOperators([]string{":Nameless"})
	assert.Error(t, err)

	_, err = ParseOperators([]string{"ops@example.com", "OPS@example.com"})
	assert.Error(t, err)
}
