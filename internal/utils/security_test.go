package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateInputRejectsScriptTags(t *testing.T) {
	_, ok := ValidateInput("hello <script>alert(1)</script>")
	assert.False(t, ok)
}

func TestValidateInputTrimsPlainText(t *testing.T) {
	out, ok := ValidateInput("  who is on the SRE team?  ")
	assert.True(t, ok)
	assert.Equal(t, "who is on the SRE team?", out)
}

func TestValidateInputAllowsEmpty(t *testing.T) {
	out, ok := ValidateInput("")
	assert.True(t, ok)
	assert.Equal(t, "", out)
}

func TestSanitizeForLogStripsControlCharacters(t *testing.T) {
	assert.Equal(t, "line one line two", SanitizeForLog("line one\nline two"))
	assert.Equal(t, "a b", SanitizeForLog("a\tb"))
}

func TestSanitizeForLogArray(t *testing.T) {
	out := SanitizeForLogArray([]string{"a\nb", "c\rd"})
	assert.Equal(t, []string{"a b", "c d"}, out)
}
