package engine

import (
	"math"
	"time"

	"github.com/engramdev/engram/pkg/types"
)

// accessBoostCap bounds the permanent relevance floor a memory can earn
// through repeated access.
const accessBoostCap = 0.3

// effectiveRelevance is the memory's stored relevance score decayed
// exponentially by time since last access (creation, if never accessed),
// plus a small floor earned through access count. Recall ranks by
// similarity weighted with this value, so stale memories sink and
// frequently-recalled ones stay reachable.
//
//	effective = stored * 2^(-age / halfLife) + min(accessCount * 0.01, 0.3)
func (e *Engine) effectiveRelevance(memory *types.Memory, now time.Time) float64 {
	ref := memory.CreatedAt
	if memory.LastAccessedAt != nil && !memory.LastAccessedAt.IsZero() {
		ref = *memory.LastAccessedAt
	}

	age := now.Sub(ref)
	if age < 0 {
		age = 0
	}

	halfLives := age.Hours() / e.cfg.RelevanceHalfLife.Hours()
	decayed := memory.RelevanceScore * math.Pow(2, -halfLives)
	boost := math.Min(float64(memory.AccessCount)*0.01, accessBoostCap)

	return math.Max(decayed+boost, 0)
}
