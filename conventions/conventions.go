// Package conventions holds the per-store configuration knobs, grouping
// every tunable in one value that is threaded through the rest of the
// driver.
package conventions

import "time"

// ReadBalanceBehaviour names a read-balancing mode. It is carried in
// Conventions, but the node selector does not consult it: the selector
// rotates only on failover, whatever the value.
type ReadBalanceBehaviour string

const (
	ReadBalanceNone       ReadBalanceBehaviour = "none"
	ReadBalanceRoundRobin ReadBalanceBehaviour = "round_robin"
)

// Conventions groups every tunable recognized by the driver. Defaults
// are applied by New.
type Conventions struct {
	MaxNumberOfRequestsPerSession int
	MaxIdsToCatch                 int
	Timeout                       time.Duration
	UseOptimisticConcurrency      bool
	MaxLengthOfQueryUsingGetURL   int
	IdentityPartsSeparator        string
	DisableTopologyUpdate         bool
	ReadBalanceBehaviour          ReadBalanceBehaviour
}

// New returns a Conventions value populated with the documented defaults.
func New() Conventions {
	return Conventions{
		MaxNumberOfRequestsPerSession: 30,
		MaxIdsToCatch:                 32,
		Timeout:                       30 * time.Second,
		UseOptimisticConcurrency:      false,
		MaxLengthOfQueryUsingGetURL:   1536,
		IdentityPartsSeparator:        "/",
		DisableTopologyUpdate:         false,
		ReadBalanceBehaviour:          ReadBalanceNone,
	}
}

// RetryPolicy groups the per-call retry knobs.
type RetryPolicy struct {
	RetryOnFailure bool
	RetryCount     int
	RetryBackoff   time.Duration
}

// DefaultRetryPolicy returns the documented defaults (RetryCount 3,
// RetryOnFailure false). The value is not normalized; Normalized forces
// RetryCount to zero when RetryOnFailure is false.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		RetryOnFailure: false,
		RetryCount:     3,
		RetryBackoff:   100 * time.Millisecond,
	}
}

// Normalized returns a copy with RetryCount forced to zero when retries
// are disabled.
func (p RetryPolicy) Normalized() RetryPolicy {
	if !p.RetryOnFailure {
		p.RetryCount = 0
	}
	return p
}
