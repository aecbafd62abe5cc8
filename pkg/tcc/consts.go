package tcc

import (
	"fmt"
	"strings"
)

// ConsistencyLevel is the replica agreement required by a request. It is passed through to the
// node untouched.
type ConsistencyLevel int

const (
	ConsistencyZero ConsistencyLevel = iota
	ConsistencyOne
	ConsistencyQuorum
	ConsistencyDCQuorum
	ConsistencyDCQuorumSync
	ConsistencyAll
	ConsistencyAny
)

var consistencyNames = map[ConsistencyLevel]string{
	ConsistencyZero:         "ZERO",
	ConsistencyOne:          "ONE",
	ConsistencyQuorum:       "QUORUM",
	ConsistencyDCQuorum:     "DCQUORUM",
	ConsistencyDCQuorumSync: "DCQUORUMSYNC",
	ConsistencyAll:          "ALL",
	ConsistencyAny:          "ANY",
}

// DefaultConsistency is used when no consistency level is configured.
const DefaultConsistency = ConsistencyDCQuorum

func (c ConsistencyLevel) String() string {
	if name, ok := consistencyNames[c]; ok {
		return name
	}
	return fmt.Sprintf("ConsistencyLevel(%d)", int(c))
}

// ParseConsistencyLevel parses names like "QUORUM" or "dcquorum". Empty means DefaultConsistency.
func ParseConsistencyLevel(value string) (ConsistencyLevel, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return DefaultConsistency, nil
	}

	for level, name := range consistencyNames {
		if strings.EqualFold(name, value) {
			return level, nil
		}
	}

	return 0, fmt.Errorf("%w: %q", ErrUnknownConsistency, value)
}

// LoadBalancingStrategy picks which configured host a new client is borrowed from.
type LoadBalancingStrategy int

const (
	RoundRobin LoadBalancingStrategy = iota
	LeastUtilized
)

func (s LoadBalancingStrategy) String() string {
	switch s {
	case RoundRobin:
		return "RoundRobin"
	case LeastUtilized:
		return "LeastUtilized"
	default:
		return fmt.Sprintf("LoadBalancingStrategy(%d)", int(s))
	}
}

// ParseLoadBalancingStrategy parses "RoundRobin" or "LeastUtilized". Empty means RoundRobin.
func ParseLoadBalancingStrategy(value string) (LoadBalancingStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "roundrobin", "round_robin":
		return RoundRobin, nil
	case "leastutilized", "least_utilized":
		return LeastUtilized, nil
	default:
		return 0, fmt.Errorf("%w: load balancing %q", ErrUnknownStrategy, value)
	}
}

// OperationKind selects which fail counter an operation reports to.
type OperationKind int

const (
	OperationRead OperationKind = iota
	OperationWrite
)

func (o OperationKind) String() string {
	if o == OperationWrite {
		return "write"
	}
	return "read"
}

func (o OperationKind) failCounter() ClientCounter {
	if o == OperationWrite {
		return CounterWriteFail
	}
	return CounterReadFail
}
