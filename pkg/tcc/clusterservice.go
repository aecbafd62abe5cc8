package tcc

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/houseofcat/turbocookedcassandra/pkg/pools"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// ClusterService is the struct for containing all you need for cluster access: the client pool,
// the monitor and the configured hosts new keyspaces start from.
type ClusterService struct {
	Config  *ClusterSeasoning
	Pool    *ClientPool
	Monitor *ClientMonitor

	hosts       []Endpoint
	balancing   LoadBalancingStrategy
	consistency ConsistencyLevel
	failover    FailoverConfig
	nextHost    uint64
	shutdown    int32
	logger      *zap.Logger
}

// NewClusterService creates everything you need to talk to a cluster.
func NewClusterService(config *ClusterSeasoning, remote RemoteClient) (*ClusterService, error) {
	return NewClusterServiceWithLogger(config, remote, nil)
}

// NewClusterServiceWithLogger creates a ClusterService that logs through logger.
func NewClusterServiceWithLogger(config *ClusterSeasoning, remote RemoteClient, logger *zap.Logger) (*ClusterService, error) {
	if config == nil || len(config.Hosts) == 0 {
		return nil, ErrNoHosts
	}
	if remote == nil {
		return nil, errors.New("cluster service requires a remote client")
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	hosts := make([]Endpoint, 0, len(config.Hosts))
	for _, host := range config.Hosts {
		endpoint, err := ParseEndpoint(host)
		if err != nil {
			return nil, err
		}
		hosts = append(hosts, endpoint)
	}

	balancing, err := ParseLoadBalancingStrategy(config.LoadBalancingStrategy)
	if err != nil {
		return nil, err
	}

	consistency, err := ParseConsistencyLevel(config.DefaultConsistency)
	if err != nil {
		return nil, err
	}

	// fail on a bad strategy now rather than on the first keyspace
	if _, err := config.FailoverConfig.Policy(); err != nil {
		return nil, err
	}

	poolConfig := config.PoolConfig
	if poolConfig == (pools.Config{}) {
		poolConfig = pools.DefaultConfig()
	}

	factory := NewClientFactoryWithLogger(remote, config.connectionTimeout(), logger)
	pool, err := pools.NewKeyedObjectPoolWithLogger[Endpoint, *Client](factory, poolConfig, logger)
	if err != nil {
		return nil, err
	}

	monitor := NewClientMonitor()
	monitor.WatchPool(pool)

	return &ClusterService{
		Config:      config,
		Pool:        pool,
		Monitor:     monitor,
		hosts:       hosts,
		balancing:   balancing,
		consistency: consistency,
		failover:    config.FailoverConfig,
		logger:      logger,
	}, nil
}

// Hosts lists the configured hosts.
func (cs *ClusterService) Hosts() []Endpoint {
	return append([]Endpoint(nil), cs.hosts...)
}

// candidates orders the configured hosts by the load balancing strategy.
func (cs *ClusterService) candidates() []Endpoint {
	ordered := make([]Endpoint, 0, len(cs.hosts))

	switch cs.balancing {
	case LeastUtilized:
		ordered = append(ordered, cs.hosts...)
		sort.SliceStable(ordered, func(i, j int) bool {
			return cs.Pool.ActiveCountByKey(ordered[i]) < cs.Pool.ActiveCountByKey(ordered[j])
		})

	default:
		start := int((atomic.AddUint64(&cs.nextHost, 1) - 1) % uint64(len(cs.hosts)))
		ordered = append(ordered, cs.hosts[start:]...)
		ordered = append(ordered, cs.hosts[:start]...)
	}

	return ordered
}

// BorrowClient borrows a client from the first configured host that can provide one.
// Every host that fails counts as a recoverable load balance error.
func (cs *ClusterService) BorrowClient() (*Client, error) {
	if cs.IsShutdown() {
		return nil, ErrServiceShutdown
	}

	var errs []error
	for _, endpoint := range cs.candidates() {
		client, err := cs.Pool.Borrow(endpoint)
		if err == nil {
			return client, nil
		}

		if errors.Is(err, pools.ErrPoolClosed) {
			return nil, ErrServiceShutdown
		}

		cs.Monitor.IncrementCounter(CounterRecoverableLoadBalance)
		cs.logger.Warn("unable to borrow client, trying next host",
			zap.String("endpoint", endpoint.String()),
			zap.Error(err))

		errs = append(errs, fmt.Errorf("%s: %w", endpoint, err))
	}

	return nil, fmt.Errorf("%w: %w", ErrNoAvailableHosts, errors.Join(errs...))
}

// ReleaseClient gives a client back to its endpoint's pool.
func (cs *ClusterService) ReleaseClient(client *Client) error {
	return cs.Pool.Return(client.Endpoint(), client)
}

// GetKeyspace opens a keyspace with the configured consistency and failover policy.
// Call Release on the keyspace when done with it.
func (cs *ClusterService) GetKeyspace(ctx context.Context, name string) (*Keyspace, error) {
	policy, err := cs.failover.Policy()
	if err != nil {
		return nil, err
	}

	return cs.GetKeyspaceAt(ctx, name, cs.consistency, policy)
}

// GetKeyspaceAt opens a keyspace with an explicit consistency level and failover policy.
func (cs *ClusterService) GetKeyspaceAt(
	ctx context.Context,
	name string,
	consistency ConsistencyLevel,
	policy FailoverPolicy) (*Keyspace, error) {

	client, err := cs.BorrowClient()
	if err != nil {
		return nil, err
	}

	ks, err := NewKeyspaceWithLogger(ctx, client, name, consistency, policy, cs.Pool, cs.Monitor, cs.logger)
	if err != nil {
		_ = cs.ReleaseClient(client)
		return nil, err
	}

	return ks, nil
}

// UpdateKnownHosts refreshes the ring view of every open keyspace.
func (cs *ClusterService) UpdateKnownHosts(ctx context.Context) error {
	return cs.Monitor.UpdateKnownHosts(ctx)
}

// RegisterMetrics exports the monitor through registerer.
func (cs *ClusterService) RegisterMetrics(registerer prometheus.Registerer) error {
	namespace := cs.Config.MetricsNamespace
	if namespace == "" {
		namespace = "tcc"
	}
	return registerer.Register(NewMonitorCollector(cs.Monitor, namespace))
}

// Shutdown closes every pool. Keyspaces still holding clients destroy them on Release.
func (cs *ClusterService) Shutdown() error {
	if !atomic.CompareAndSwapInt32(&cs.shutdown, 0, 1) {
		return nil
	}

	cs.logger.Info("cluster service shutting down",
		zap.Int("active", cs.Pool.ActiveCount()),
		zap.Int("idle", cs.Pool.IdleCount()))

	return cs.Pool.Close()
}

func (cs *ClusterService) IsShutdown() bool {
	return atomic.LoadInt32(&cs.shutdown) == 1
}
