// Package attribution identifies who is operating the tool server, so stored
// memories can record their observer in metadata.
package attribution

import (
	"os"
	"os/exec"
	"strings"
	"sync"
)

var (
	cachedName string
	once       sync.Once
)

// DetectObserver returns the best available operator name. Checks in order:
// ENGRAM_OBSERVER env, ENGRAM_USER env, git config user.name, "unknown".
// The result is cached after the first call.
func DetectObserver() string {
	once.Do(func() {
		cachedName = detectObserverUncached()
	})
	return cachedName
}

// detectObserverUncached performs detection without caching. Used for testing.
func detectObserverUncached() string {
	if name := os.Getenv("ENGRAM_OBSERVER"); name != "" {
		return name
	}
	if name := os.Getenv("ENGRAM_USER"); name != "" {
		return name
	}
	if name := gitUserName(); name != "" {
		return name
	}
	return "unknown"
}

// gitUserName runs `git config --get user.name` and returns the trimmed
// result. Returns empty string on any error.
func gitUserName() string {
	out, err := exec.Command("git", "config", "--get", "user.name").Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}
