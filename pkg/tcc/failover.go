package tcc

import (
	"fmt"
	"math"
	"strings"

	"github.com/houseofcat/turbocookedcassandra/pkg/utils"
)

// FailoverStrategy decides whether a keyspace learns the ring and retries on other hosts.
type FailoverStrategy int

const (
	// FailFast returns the first fault and never learns about other hosts.
	FailFast FailoverStrategy = iota
	// TryOneNextAvailable retries once on the next ring member.
	TryOneNextAvailable
	// TryAllAvailable retries on every known ring member.
	TryAllAvailable
)

func (s FailoverStrategy) String() string {
	switch s {
	case FailFast:
		return "FailFast"
	case TryOneNextAvailable:
		return "TryOneNextAvailable"
	case TryAllAvailable:
		return "TryAllAvailable"
	default:
		return fmt.Sprintf("FailoverStrategy(%d)", int(s))
	}
}

// ParseFailoverStrategy accepts the strategy names in either CamelCase or the
// ON_FAIL_TRY_* spelling. Empty means TryAllAvailable.
func ParseFailoverStrategy(value string) (FailoverStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "failfast", "fail_fast":
		return FailFast, nil
	case "tryonenextavailable", "on_fail_try_one_next_available":
		return TryOneNextAvailable, nil
	case "", "tryallavailable", "on_fail_try_all_available":
		return TryAllAvailable, nil
	default:
		return 0, fmt.Errorf("%w: failover %q", ErrUnknownStrategy, value)
	}
}

// FailoverPolicy is a retry budget plus a strategy. The executor interprets it.
type FailoverPolicy struct {
	retryCount int
	strategy   FailoverStrategy
	retries    *utils.Counter
}

// NewFailoverPolicy creates a policy. Negative retry counts are treated as 0.
func NewFailoverPolicy(retryCount int, strategy FailoverStrategy) FailoverPolicy {
	if retryCount < 0 {
		retryCount = 0
	}

	return FailoverPolicy{
		retryCount: retryCount,
		strategy:   strategy,
		retries:    utils.NewCounter(0),
	}
}

// FailFastPolicy never retries.
func FailFastPolicy() FailoverPolicy {
	return NewFailoverPolicy(0, FailFast)
}

// TryOneNextAvailablePolicy retries once.
func TryOneNextAvailablePolicy() FailoverPolicy {
	return NewFailoverPolicy(1, TryOneNextAvailable)
}

// TryAllAvailablePolicy retries until every known host has been tried.
func TryAllAvailablePolicy() FailoverPolicy {
	return NewFailoverPolicy(math.MaxInt32, TryAllAvailable)
}

// DefaultFailoverPolicy is used when none is configured.
func DefaultFailoverPolicy() FailoverPolicy {
	return TryAllAvailablePolicy()
}

func (fp FailoverPolicy) RetryCount() int             { return fp.retryCount }
func (fp FailoverPolicy) Strategy() FailoverStrategy { return fp.strategy }

// IncrementRetryCount records a failover for diagnostics; it does not change the budget.
func (fp FailoverPolicy) IncrementRetryCount() int64 {
	if fp.retries == nil {
		return 0
	}
	return fp.retries.Increment()
}

// RetriesPerformed is the number of failovers recorded through IncrementRetryCount.
func (fp FailoverPolicy) RetriesPerformed() int64 {
	if fp.retries == nil {
		return 0
	}
	return fp.retries.Value()
}

// attempts is min(retryCount+1, hosts) without overflowing on TryAllAvailable.
func (fp FailoverPolicy) attempts(hosts int) int {
	if fp.retryCount >= hosts {
		return hosts
	}
	return fp.retryCount + 1
}

func (fp FailoverPolicy) String() string {
	return fmt.Sprintf("%s(retries=%d)", fp.strategy, fp.retryCount)
}

// FailoverConfig is the configuration surface of a FailoverPolicy.
type FailoverConfig struct {
	Strategy   string `json:"Strategy" yaml:"Strategy"`
	RetryCount int    `json:"RetryCount" yaml:"RetryCount"` // 0 uses the strategy's default
}

// Policy builds the FailoverPolicy described by the config.
func (fc FailoverConfig) Policy() (FailoverPolicy, error) {
	strategy, err := ParseFailoverStrategy(fc.Strategy)
	if err != nil {
		return FailoverPolicy{}, err
	}

	if fc.RetryCount > 0 && strategy != FailFast {
		return NewFailoverPolicy(fc.RetryCount, strategy), nil
	}

	switch strategy {
	case FailFast:
		return FailFastPolicy(), nil
	case TryOneNextAvailable:
		return TryOneNextAvailablePolicy(), nil
	default:
		return TryAllAvailablePolicy(), nil
	}
}
