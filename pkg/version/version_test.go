package version

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestString_DefaultsToDev(t *testing.T) {
	s := String()
	assert.True(t, strings.HasPrefix(s, "dev"), "expected dev prefix, got %q", s)
}

func TestString_UsesBuildTimeVersion(t *testing.T) {
	old := Version
	defer func() { Version = old }()

	Version = "v1.2.3"
	assert.Equal(t, "v1.2.3", String())
}
