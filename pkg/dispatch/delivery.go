package dispatch

import (
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// Exchange outcomes.
const (
	OutcomeSent      = "sent"
	OutcomeFailed    = "failed"
	OutcomeMalformed = "malformed"
)

const (
	defaultDeliveryLogSize = 256
	deliveryRetention      = time.Hour
)

// Delivery records one exchange with the collection endpoint.
type Delivery struct {
	Sequence    uint64        `json:"sequence"`
	HitType     string        `json:"hit_type"`
	Method      string        `json:"method"`
	URL         string        `json:"url"`
	Outcome     string        `json:"outcome"`
	StatusCode  int           `json:"status_code,omitempty"`
	Error       string        `json:"error,omitempty"`
	Attempt     int           `json:"attempt"`
	QueueTime   time.Duration `json:"queue_time"`
	Duration    time.Duration `json:"duration"`
	CompletedAt time.Time     `json:"completed_at"`
}

// DeliveryLog keeps the most recent exchanges for diagnostics.
type DeliveryLog struct {
	entries *lru.LRU[uint64, Delivery]
	seq     atomic.Uint64
}

// NewDeliveryLog creates a log holding at most size entries for up to an hour.
func NewDeliveryLog(size int) *DeliveryLog {
	if size <= 0 {
		size = defaultDeliveryLogSize
	}
	return &DeliveryLog{
		entries: lru.NewLRU[uint64, Delivery](size, nil, deliveryRetention),
	}
}

// Record assigns a sequence number to d and stores it.
func (l *DeliveryLog) Record(d Delivery) Delivery {
	d.Sequence = l.seq.Add(1)
	l.entries.Add(d.Sequence, d)
	return d
}

// Recent returns up to limit entries, newest first. A limit <= 0 returns everything.
func (l *DeliveryLog) Recent(limit int) []Delivery {
	values := l.entries.Values()
	if limit <= 0 || limit > len(values) {
		limit = len(values)
	}

	out := make([]Delivery, 0, limit)
	for i := len(values) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, values[i])
	}
	return out
}

// Len returns the number of retained entries.
func (l *DeliveryLog) Len() int {
	return l.entries.Len()
}
