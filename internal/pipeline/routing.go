package pipeline

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/MimeLyc/tiered-sub-translator/internal/record"
)

// Router picks the model tier for a chunk. Flagged chunks always go to the
// quality tier. Others draw once from [0,100) and go to quality when the draw
// is below the pro allocation.
//
// The split is per chunk, so with few chunks the realized share can be far
// from the configured one: at 30% with 3 chunks, all three land on fast about
// a third of the time.
type Router struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRouter uses src for draws. A nil src seeds from the clock.
func NewRouter(src rand.Source) *Router {
	if src == nil {
		now := uint64(time.Now().UnixNano())
		src = rand.NewPCG(now, now>>17|1)
	}
	return &Router{rng: rand.New(src)}
}

func (r *Router) Route(flagged bool, proAllocation int) record.Tier {
	if flagged {
		return record.TierQuality
	}
	r.mu.Lock()
	draw := r.rng.IntN(100)
	r.mu.Unlock()
	if draw < proAllocation {
		return record.TierQuality
	}
	return record.TierFast
}

// Flagged reports whether any item carries a suggestion, applied or not.
func Flagged(items []record.Record) bool {
	for _, item := range items {
		if item.Flagged() {
			return true
		}
	}
	return false
}
