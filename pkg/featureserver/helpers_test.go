package featureserver

import (
	"context"
	"time"

	"github.com/sells-group/route-planner/internal/resilience"
)

// noSleep skips retry waits in tests.
func noSleep(_ context.Context, _ time.Duration) error { return nil }

func testPolicy(attempts int) resilience.Policy {
	p := resilience.FixedPolicy(attempts, time.Minute)
	p.Sleep = noSleep
	return p
}

func newTestClient(url string, opts ...Option) Client {
	base := []Option{
		WithRateLimit(1000),
		WithReadPolicy(testPolicy(2)),
		WithWritePolicy(testPolicy(3)),
	}
	return NewClient(url, append(base, opts...)...)
}
