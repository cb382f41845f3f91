package instance

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetIDPrefersExplicitID(t *testing.T) {
	t.Setenv(envInstanceID, "forwarder-3")
	t.Setenv("DYNO", "web.1")

	assert.Equal(t, "forwarder-3", GetID("forwarder"))
}

func TestGetIDFallsBackToDyno(t *testing.T) {
	t.Setenv(envInstanceID, "")
	t.Setenv("DYNO", "worker.2")

	assert.Equal(t, "worker.2", GetID("cron-worker"))
}

func TestGetIDNeverEmpty(t *testing.T) {
	t.Setenv(envInstanceID, "")
	t.Setenv("DYNO", "")

	assert.NotEmpty(t, GetID(""))
}
