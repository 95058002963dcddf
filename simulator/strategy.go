package simulator

import (
	"math/rand"
	"sync"
	"time"
)

// Decision is a hero's answer to an offer.
type Decision struct {
	Action string
	Reason string
	Delay  time.Duration
}

// Strategy decides how a simulated hero answers an offer. ok is false when
// the hero ignores it.
type Strategy interface {
	Decide(heroID, jobID string) (d Decision, ok bool)
}

// AutoAccept accepts every offer after Delay.
type AutoAccept struct {
	Delay time.Duration
}

func (a AutoAccept) Decide(string, string) (Decision, bool) {
	return Decision{Action: "accept", Delay: a.Delay}, true
}

// RandomAnswer ignores offers with probability DropRate and declines the
// rest with probability DeclineRate. Latency is drawn uniformly from
// [MinDelay, MaxDelay].
type RandomAnswer struct {
	MinDelay    time.Duration
	MaxDelay    time.Duration
	DeclineRate float64
	DropRate    float64

	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomAnswer seeds the strategy. A zero seed uses the clock.
func NewRandomAnswer(minDelay, maxDelay time.Duration, declineRate, dropRate float64, seed int64) *RandomAnswer {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &RandomAnswer{
		MinDelay:    minDelay,
		MaxDelay:    maxDelay,
		DeclineRate: declineRate,
		DropRate:    dropRate,
		rng:         rand.New(rand.NewSource(seed)),
	}
}

func (r *RandomAnswer) Decide(string, string) (Decision, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.DropRate > 0 && r.rng.Float64() < r.DropRate {
		return Decision{}, false
	}
	d := Decision{Action: "accept", Delay: r.MinDelay}
	if span := r.MaxDelay - r.MinDelay; span > 0 {
		d.Delay += time.Duration(r.rng.Int63n(int64(span)))
	}
	if r.DeclineRate > 0 && r.rng.Float64() < r.DeclineRate {
		d.Action = "decline"
		d.Reason = "busy"
	}
	return d, true
}
