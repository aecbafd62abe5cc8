package tcc

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/houseofcat/turbocookedcassandra/pkg/pools"
	"github.com/houseofcat/turbocookedcassandra/pkg/utils"
	cmap "github.com/orcaman/concurrent-map"
)

// ClientCounter names one of the monitor's counters.
type ClientCounter int

const (
	CounterReadSuccess ClientCounter = iota
	CounterReadFail
	CounterWriteSuccess
	CounterWriteFail
	CounterRecoverableTimedOut
	CounterRecoverableUnavailable
	CounterRecoverableTransport
	CounterRecoverableLoadBalance
	CounterSkipHostSuccess
	CounterPoolExhausted

	counterCount
)

var counterNames = [counterCount]string{
	"read_success",
	"read_fail",
	"write_success",
	"write_fail",
	"recoverable_timed_out",
	"recoverable_unavailable",
	"recoverable_transport_error",
	"recoverable_load_balance_error",
	"skip_host_success",
	"pool_exhausted",
}

func (c ClientCounter) String() string {
	if c >= 0 && c < counterCount {
		return counterNames[c]
	}
	return "unknown"
}

// ClientPool is the keyed client pool the monitor reports on.
type ClientPool = pools.KeyedObjectPool[Endpoint, *Client]

// ClientMonitor aggregates operation outcome counters and pool occupancy.
// Counters are individually atomic and never reset.
type ClientMonitor struct {
	counters  [counterCount]utils.Counter
	pools     []*ClientPool
	poolLock  *sync.RWMutex
	keyspaces cmap.ConcurrentMap
}

// NewClientMonitor creates a ClientMonitor with every counter at zero.
func NewClientMonitor() *ClientMonitor {
	return &ClientMonitor{
		poolLock:  &sync.RWMutex{},
		keyspaces: cmap.New(),
	}
}

// IncrementCounter bumps one counter. Unknown counters are ignored.
func (cm *ClientMonitor) IncrementCounter(counter ClientCounter) {
	if counter < 0 || counter >= counterCount {
		return
	}
	cm.counters[counter].Increment()
}

// Counter reads one counter.
func (cm *ClientMonitor) Counter(counter ClientCounter) int64 {
	if counter < 0 || counter >= counterCount {
		return 0
	}
	return cm.counters[counter].Value()
}

func (cm *ClientMonitor) ReadFailCount() int64  { return cm.Counter(CounterReadFail) }
func (cm *ClientMonitor) WriteFailCount() int64 { return cm.Counter(CounterWriteFail) }

func (cm *ClientMonitor) RecoverableTimedOutCount() int64 {
	return cm.Counter(CounterRecoverableTimedOut)
}

func (cm *ClientMonitor) RecoverableUnavailableCount() int64 {
	return cm.Counter(CounterRecoverableUnavailable)
}

func (cm *ClientMonitor) RecoverableTransportCount() int64 {
	return cm.Counter(CounterRecoverableTransport)
}

func (cm *ClientMonitor) RecoverableLoadBalanceCount() int64 {
	return cm.Counter(CounterRecoverableLoadBalance)
}

func (cm *ClientMonitor) SkipHostSuccessCount() int64 { return cm.Counter(CounterSkipHostSuccess) }
func (cm *ClientMonitor) PoolExhaustedCount() int64   { return cm.Counter(CounterPoolExhausted) }

// RecoverableErrorCount = timeouts + unavailable + transport errors + load balance errors.
func (cm *ClientMonitor) RecoverableErrorCount() int64 {
	return cm.RecoverableTimedOutCount() +
		cm.RecoverableUnavailableCount() +
		cm.RecoverableTransportCount() +
		cm.RecoverableLoadBalanceCount()
}

// WatchPool adds a client pool to the occupancy accessors.
func (cm *ClientMonitor) WatchPool(pool *ClientPool) {
	cm.poolLock.Lock()
	defer cm.poolLock.Unlock()

	cm.pools = append(cm.pools, pool)
}

func (cm *ClientMonitor) watchedPools() []*ClientPool {
	cm.poolLock.RLock()
	defer cm.poolLock.RUnlock()

	return append([]*ClientPool(nil), cm.pools...)
}

// NumActive sums borrowed clients across watched pools.
func (cm *ClientMonitor) NumActive() int {
	total := 0
	for _, pool := range cm.watchedPools() {
		total += pool.ActiveCount()
	}
	return total
}

// NumIdle sums idle clients across watched pools.
func (cm *ClientMonitor) NumIdle() int {
	total := 0
	for _, pool := range cm.watchedPools() {
		total += pool.IdleCount()
	}
	return total
}

// PoolNames lists the endpoints that have a pool.
func (cm *ClientMonitor) PoolNames() []string {
	names := make([]string, 0)
	for _, pool := range cm.watchedPools() {
		for _, endpoint := range pool.Keys() {
			names = append(names, endpoint.String())
		}
	}

	sort.Strings(names)
	return names
}

func (cm *ClientMonitor) NumPools() int {
	return len(cm.PoolNames())
}

// ExhaustedPoolNames lists the endpoints whose pool has no capacity left.
func (cm *ClientMonitor) ExhaustedPoolNames() []string {
	names := make([]string, 0)
	for _, pool := range cm.watchedPools() {
		for _, endpoint := range pool.Keys() {
			if sub, ok := pool.Pool(endpoint); ok && sub.IsExhausted() {
				names = append(names, endpoint.String())
			}
		}
	}

	sort.Strings(names)
	return names
}

func (cm *ClientMonitor) NumExhaustedPools() int {
	return len(cm.ExhaustedPoolNames())
}

func (cm *ClientMonitor) registerKeyspace(ks *Keyspace) {
	cm.keyspaces.Set(ks.id, ks)
}

func (cm *ClientMonitor) unregisterKeyspace(ks *Keyspace) {
	cm.keyspaces.Remove(ks.id)
}

func (cm *ClientMonitor) registeredKeyspaces() []*Keyspace {
	keyspaces := make([]*Keyspace, 0, cm.keyspaces.Count())
	for item := range cm.keyspaces.IterBuffered() {
		keyspaces = append(keyspaces, item.Val.(*Keyspace))
	}
	return keyspaces
}

// KnownHosts is the union of the ring views of every live keyspace.
func (cm *ClientMonitor) KnownHosts() []string {
	seen := make(map[string]struct{})
	for _, ks := range cm.registeredKeyspaces() {
		for _, host := range ks.KnownHosts() {
			seen[host] = struct{}{}
		}
	}

	hosts := make([]string, 0, len(seen))
	for host := range seen {
		hosts = append(hosts, host)
	}

	sort.Strings(hosts)
	return hosts
}

// UpdateKnownHosts refreshes the ring view of every live keyspace.
func (cm *ClientMonitor) UpdateKnownHosts(ctx context.Context) error {
	var errs []error
	for _, ks := range cm.registeredKeyspaces() {
		if err := ks.UpdateKnownHosts(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// MonitorSnapshot is a point-in-time copy of everything the monitor reports.
type MonitorSnapshot struct {
	Counters              map[string]int64 `json:"Counters"`
	RecoverableErrorCount int64            `json:"RecoverableErrorCount"`
	NumActive             int              `json:"NumActive"`
	NumIdle               int              `json:"NumIdle"`
	NumPools              int              `json:"NumPools"`
	PoolNames             []string         `json:"PoolNames"`
	ExhaustedPoolNames    []string         `json:"ExhaustedPoolNames"`
	KnownHosts            []string         `json:"KnownHosts"`
}

// Snapshot copies the monitor's current state.
func (cm *ClientMonitor) Snapshot() MonitorSnapshot {
	counters := make(map[string]int64, counterCount)
	for counter := ClientCounter(0); counter < counterCount; counter++ {
		counters[counter.String()] = cm.Counter(counter)
	}

	poolNames := cm.PoolNames()

	return MonitorSnapshot{
		Counters:              counters,
		RecoverableErrorCount: cm.RecoverableErrorCount(),
		NumActive:             cm.NumActive(),
		NumIdle:               cm.NumIdle(),
		NumPools:              len(poolNames),
		PoolNames:             poolNames,
		ExhaustedPoolNames:    cm.ExhaustedPoolNames(),
		KnownHosts:            cm.KnownHosts(),
	}
}

// SnapshotJSON marshals Snapshot for operators.
func (cm *ClientMonitor) SnapshotJSON() ([]byte, error) {
	return utils.MarshalJSON(cm.Snapshot())
}
