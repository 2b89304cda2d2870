package instanceid

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolve_OverrideWins(t *testing.T) {
	assert.Equal(t, "custom-id", Resolve("  custom-id  "))
}

func TestResolve_FallsBackToHostnameOrUUID(t *testing.T) {
	id := Resolve("")
	assert.NotEmpty(t, id, "must always resolve to something, even without a hostname")
}
