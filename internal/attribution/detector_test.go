package attribution

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectObserverFromObserverEnv(t *testing.T) {
	t.Setenv("ENGRAM_OBSERVER", "my-agent")
	assert.Equal(t, "my-agent", detectObserverUncached())
}

func TestDetectObserverFromUserEnv(t *testing.T) {
	_ = os.Unsetenv("ENGRAM_OBSERVER")
	t.Setenv("ENGRAM_USER", "sam")
	assert.Equal(t, "sam", detectObserverUncached())
}

func TestDetectObserverFallback(t *testing.T) {
	_ = os.Unsetenv("ENGRAM_OBSERVER")
	_ = os.Unsetenv("ENGRAM_USER")
	// Either a real git name or "unknown" — never empty.
	assert.NotEmpty(t, detectObserverUncached())
}
