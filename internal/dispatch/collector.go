package dispatch

import (
	"sync"

	"github.com/wonny/aegis/consult/internal/contracts"
)

// collector is the only state shared by concurrent calls.
// After seal, late results are discarded.
type collector struct {
	mu      sync.Mutex
	reqs    []*contracts.EvaluationRequest
	results []*CallResult
	sealed  bool
}

func newCollector(reqs []*contracts.EvaluationRequest) *collector {
	return &collector{
		reqs:    reqs,
		results: make([]*CallResult, len(reqs)),
	}
}

// put stores the first result for idx; false when sealed
func (c *collector) put(idx int, r CallResult) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sealed {
		return false
	}
	if c.results[idx] == nil {
		c.results[idx] = &r
	}
	return true
}

// seal freezes the results; missing ones become timeouts with detail.
// Returns the results in request order and how many were missing.
func (c *collector) seal(detail string) ([]CallResult, int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sealed = true

	out := make([]CallResult, len(c.reqs))
	missing := 0
	for i, req := range c.reqs {
		if c.results[i] != nil {
			out[i] = *c.results[i]
			continue
		}
		missing++
		out[i] = CallResult{
			InstanceID: req.InstanceID,
			TimedOut:   true,
			Detail:     detail,
		}
	}
	return out, missing
}
