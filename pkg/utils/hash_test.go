package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("rahasia1")
	require.NoError(t, err)
	assert.NotEqual(t, "rahasia1", hash)
	assert.True(t, CheckPassword("rahasia1", hash))
	assert.False(t, CheckPassword("rahasia2", hash))
	assert.False(t, CheckPassword("rahasia1", "not-a-hash"))
}

func TestHashPassword_Rejects(t *testing.T) {
	_, err := HashPassword("")
	assert.ErrorIs(t, err, ErrEmptyPassword)

	_, err = HashPassword(strings.Repeat("a", 73))
	assert.Error(t, err)
}
