package conventions

import "testing"

func TestNormalizedForcesZeroRetriesWhenDisabled(t *testing.T) {
	p := RetryPolicy{RetryOnFailure: false, RetryCount: 5}
	got := p.Normalized()
	if got.RetryCount != 0 {
		t.Errorf("RetryCount = %d, want 0 when RetryOnFailure is false", got.RetryCount)
	}
}

func TestNormalizedLeavesRetryCountWhenEnabled(t *testing.T) {
	p := RetryPolicy{RetryOnFailure: true, RetryCount: 5}
	got := p.Normalized()
	if got.RetryCount != 5 {
		t.Errorf("RetryCount = %d, want 5 when RetryOnFailure is true", got.RetryCount)
	}
}

func TestNewDefaults(t *testing.T) {
	c := New()
	if c.MaxNumberOfRequestsPerSession != 30 {
		t.Errorf("MaxNumberOfRequestsPerSession = %d, want 30", c.MaxNumberOfRequestsPerSession)
	}
	if c.UseOptimisticConcurrency {
		t.Error("UseOptimisticConcurrency should default to false")
	}
	if c.MaxLengthOfQueryUsingGetURL != 1536 {
		t.Errorf("MaxLengthOfQueryUsingGetURL = %d, want 1536", c.MaxLengthOfQueryUsingGetURL)
	}
}
