package sanitize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRedactPII(t *testing.T) {
	in := "Call me at +62 812-3456-7890 or mail jane.doe@example.com about case 2024."
	out := RedactPII(in)

	assert.NotContains(t, out, "jane.doe@example.com")
	assert.NotContains(t, out, "3456")
	assert.Contains(t, out, "[redacted email]")
	assert.Contains(t, out, "[redacted phone]")
	assert.Contains(t, out, "case 2024", "short numbers are not phones")
}

func TestRedactPII_Empty(t *testing.T) {
	assert.Equal(t, "", RedactPII(""))
}

func TestSummary(t *testing.T) {
	assert.Equal(t, "short", Summary("short", 10))

	s := Summary("the quick brown fox jumps", 12)
	assert.True(t, strings.HasSuffix(s, "…"))
	assert.Equal(t, "the quick…", s)

	// no space to break on
	assert.Equal(t, "abcde…", Summary("abcdefghij", 5))
}
