package tcc

import (
	"time"

	"github.com/houseofcat/turbocookedcassandra/pkg/pools"
)

// ClusterSeasoning represents the configuration of a ClusterService.
type ClusterSeasoning struct {
	Hosts                 []string       `json:"Hosts" yaml:"Hosts"` // host:port
	PoolConfig            pools.Config   `json:"PoolConfig" yaml:"PoolConfig"`
	FailoverConfig        FailoverConfig `json:"FailoverConfig" yaml:"FailoverConfig"`
	LoadBalancingStrategy string         `json:"LoadBalancingStrategy" yaml:"LoadBalancingStrategy"`
	DefaultConsistency    string         `json:"DefaultConsistency" yaml:"DefaultConsistency"`
	ConnectionTimeout     uint32         `json:"ConnectionTimeout" yaml:"ConnectionTimeout"` // seconds
	MetricsNamespace      string         `json:"MetricsNamespace" yaml:"MetricsNamespace"`
}

func (cs *ClusterSeasoning) connectionTimeout() time.Duration {
	return time.Duration(cs.ConnectionTimeout) * time.Second
}
