package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAvatarURLNormalizesEmail(t *testing.T) {
	a := AvatarURL("  Owner@Example.FR ", 0)
	b := AvatarURL("owner@example.fr", 80)

	assert.Equal(t, a, b)
	assert.True(t, strings.HasPrefix(a, "https://www.gravatar.com/avatar/"))
	assert.Contains(t, a, "s=80")
}

func TestAvatarURLEmpty(t *testing.T) {
	assert.Empty(t, AvatarURL("   ", 120))
}
