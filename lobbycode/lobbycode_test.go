package lobbycode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateProducesValidCode(t *testing.T) {
	for i := 0; i < 20; i++ {
		code, err := Generate()
		require.NoError(t, err)
		assert.Len(t, code, Length)
		assert.True(t, Valid(code), "generated code %q should validate", code)
	}
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "ABC123", Normalize("  abc123  "))
}

func TestValid(t *testing.T) {
	assert.True(t, Valid("ABCDEF"))
	assert.False(t, Valid("abcdef")) // must already be normalized
	assert.False(t, Valid("ABCDE"))  // too short
	assert.False(t, Valid("ABCDEI")) // ambiguous char not in alphabet
}

func TestExtractFromQueryParam(t *testing.T) {
	code, ok := Extract("https://example.com/join?code=abc234")
	require.True(t, ok)
	assert.Equal(t, "ABC234", code)
}

func TestExtractFromPathSegment(t *testing.T) {
	code, ok := Extract("https://example.com/join/abc234")
	require.True(t, ok)
	assert.Equal(t, "ABC234", code)
}

func TestExtractFromRawText(t *testing.T) {
	code, ok := Extract("hey join my lobby: abc-234!")
	require.True(t, ok)
	assert.Equal(t, "ABC234", code)
}

func TestExtractFailsOnShortInput(t *testing.T) {
	_, ok := Extract("ab2")
	assert.False(t, ok)
}

func TestBuildURL(t *testing.T) {
	url := BuildURL("https://example.com/arcade/", "ABC234")
	assert.Contains(t, url, "code=ABC234")
}
