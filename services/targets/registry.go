// Package targets holds the ordered failover ladder: which models to try,
// in which regions, and how hard to retry each region before moving on.
package targets

import (
	"time"
)

const (
	// DefaultMaxRetries is used when a model omits max_retries
	DefaultMaxRetries = 2

	// DefaultRetryDelay is used when a model omits retry_delay
	DefaultRetryDelay = 2 * time.Second
)

// Target is one selectable model with its ordered regions and retry policy.
type Target struct {
	ModelID    string
	Name       string
	Regions    []string
	MaxRetries int
	RetryDelay time.Duration
}

// Registry is an immutable, ordered set of targets.
type Registry struct {
	targets []Target
	regions []string
}

// NewRegistry builds a registry from already validated targets. The slice
// and every region list are copied so later mutation by the caller has no
// effect.
func NewRegistry(targets []Target) *Registry {
	r := &Registry{targets: make([]Target, len(targets))}
	seen := make(map[string]struct{})

	for i, t := range targets {
		t.Regions = append([]string(nil), t.Regions...)
		r.targets[i] = t

		for _, region := range t.Regions {
			if _, ok := seen[region]; ok {
				continue
			}
			seen[region] = struct{}{}
			r.regions = append(r.regions, region)
		}
	}

	return r
}

// Targets returns the targets in configured order.
func (r *Registry) Targets() []Target {
	out := make([]Target, len(r.targets))
	for i, t := range r.targets {
		t.Regions = append([]string(nil), t.Regions...)
		out[i] = t
	}
	return out
}

// Regions returns every distinct region in first-seen order.
func (r *Registry) Regions() []string {
	return append([]string(nil), r.regions...)
}

// Len returns the number of targets.
func (r *Registry) Len() int {
	return len(r.targets)
}

// MaxAttempts is the number of upstream calls a fully rate-limited
// dispatch makes.
func (r *Registry) MaxAttempts() int {
	total := 0
	for _, t := range r.targets {
		total += len(t.Regions) * t.MaxRetries
	}
	return total
}
