package script

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestTruncateKeepsRunesWhole(t *testing.T) {
	raw := strings.Repeat("부부", 150)
	got := truncate(raw, 200)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, 200, utf8.RuneCountInString(got))

	assert.Equal(t, "short", truncate("short", 200))
	assert.Equal(t, "대화", truncate("대화", 2))
}
