package apikey

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCategory(t *testing.T) {
	c, err := ParseCategory(" phone_only ")
	require.NoError(t, err)
	assert.Equal(t, CategoryPhoneOnly, c)

	c, err = ParseCategory("EMAIL_ONLY")
	require.NoError(t, err)
	assert.Equal(t, CategoryEmailOnly, c)

	_, err = ParseCategory("SMS")
	assert.Error(t, err)
}

func TestEligible(t *testing.T) {
	assert.True(t, (&APIKey{IsActive: true, Status: StatusActive}).Eligible())
	assert.False(t, (&APIKey{IsActive: false, Status: StatusActive}).Eligible())
	assert.False(t, (&APIKey{IsActive: true, Status: StatusSuspended}).Eligible())
}

func TestSuffixAndPreview(t *testing.T) {
	assert.Equal(t, "wxyz", KeySuffix("abcdefwxyz"))
	assert.Equal(t, "abc", KeySuffix("abc"))
	assert.Equal(t, "abcdefgh...", Preview("abcdefghijkl"))
	assert.Equal(t, "short", Preview("short"))
}
