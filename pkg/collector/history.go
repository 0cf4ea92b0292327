package collector

import (
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/platinummonkey/beacon/pkg/hit"
)

// DefaultHistorySize is the number of received hits kept when Options.HistorySize is zero.
const DefaultHistorySize = 1000

// Received is one hit as the collector saw it.
type Received struct {
	ID         string              `json:"id"`
	Sequence   uint64              `json:"sequence"`
	Method     string              `json:"method"`
	Path       string              `json:"path"`
	Params     map[string]string   `json:"params"`
	Valid      bool                `json:"valid"`
	Messages   []hit.ParserMessage `json:"messages,omitempty"`
	UserAgent  string              `json:"user_agent,omitempty"`
	ReceivedAt time.Time           `json:"received_at"`
}

// Type returns the hit type parameter.
func (r Received) Type() string {
	return r.Params[hit.KeyHitType]
}

// history keeps the most recent hits, evicting the oldest.
type history struct {
	seq   atomic.Uint64
	cache *lru.Cache[uint64, Received]
}

func newHistory(size int) *history {
	if size <= 0 {
		size = DefaultHistorySize
	}
	cache, err := lru.New[uint64, Received](size)
	if err != nil {
		panic(err)
	}
	return &history{cache: cache}
}

func (h *history) add(r Received) Received {
	r.Sequence = h.seq.Add(1)
	h.cache.Add(r.Sequence, r)
	return r
}

// list returns up to limit of the newest hits in arrival order. limit <= 0 returns all.
func (h *history) list(limit int) []Received {
	keys := h.cache.Keys()
	if limit > 0 && len(keys) > limit {
		keys = keys[len(keys)-limit:]
	}
	out := make([]Received, 0, len(keys))
	for _, k := range keys {
		if r, ok := h.cache.Peek(k); ok {
			out = append(out, r)
		}
	}
	return out
}

func (h *history) reset() {
	h.cache.Purge()
}
