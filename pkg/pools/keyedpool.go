package pools

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	cmap "github.com/orcaman/concurrent-map"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// KeyedObjectPool holds one ObjectPool per key, created lazily on first use.
// Every sub-pool shares the same Config and an adapter over the keyed factory.
type KeyedObjectPool[K fmt.Stringer, T comparable] struct {
	config      Config
	factory     KeyedPooledObjectFactory[K, T]
	factoryLock *sync.RWMutex
	pools       cmap.ConcurrentMap
	closed      int32
	logger      *zap.Logger
}

type keyedEntry[K fmt.Stringer, T comparable] struct {
	key  K
	pool *ObjectPool[T]
}

// NewKeyedObjectPool creates an empty KeyedObjectPool.
func NewKeyedObjectPool[K fmt.Stringer, T comparable](factory KeyedPooledObjectFactory[K, T], config Config) (*KeyedObjectPool[K, T], error) {
	return NewKeyedObjectPoolWithLogger(factory, config, nil)
}

// NewKeyedObjectPoolWithLogger creates an empty KeyedObjectPool whose sub-pools log to logger.
func NewKeyedObjectPoolWithLogger[K fmt.Stringer, T comparable](
	factory KeyedPooledObjectFactory[K, T],
	config Config,
	logger *zap.Logger) (*KeyedObjectPool[K, T], error) {

	if err := validateConfig(config); err != nil {
		return nil, err
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	return &KeyedObjectPool[K, T]{
		config:      config,
		factory:     factory,
		factoryLock: &sync.RWMutex{},
		pools:       cmap.New(),
		logger:      logger,
	}, nil
}

// poolFor finds the sub-pool for key, creating and pre-warming it when create is set.
// Pre-warming happens outside the map lock so a slow endpoint never blocks other keys.
func (kp *KeyedObjectPool[K, T]) poolFor(key K, create bool) (*ObjectPool[T], error) {
	name := key.String()
	if value, ok := kp.pools.Get(name); ok {
		return value.(*keyedEntry[K, T]).pool, nil
	}

	if !create {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKey, name)
	}

	if kp.IsClosed() {
		return nil, ErrPoolClosed
	}

	candidate := &keyedEntry[K, T]{
		key:  key,
		pool: newObjectPool(kp.boundFactory(key), kp.config, kp.logger.With(zap.String("key", name))),
	}

	if kp.pools.SetIfAbsent(name, candidate) {
		candidate.pool.prewarm()
	}

	value, _ := kp.pools.Get(name)
	entry := value.(*keyedEntry[K, T])

	if kp.IsClosed() {
		_ = entry.pool.Close()
		return nil, ErrPoolClosed
	}

	return entry.pool, nil
}

func (kp *KeyedObjectPool[K, T]) boundFactory(key K) PooledObjectFactory[T] {
	kp.factoryLock.RLock()
	defer kp.factoryLock.RUnlock()

	if kp.factory == nil {
		return nil
	}

	return &keyedFactory[K, T]{key: key, factory: kp.factory}
}

func (kp *KeyedObjectPool[K, T]) entries() []*keyedEntry[K, T] {
	items := kp.pools.Items()
	entries := make([]*keyedEntry[K, T], 0, len(items))
	for _, item := range items {
		entries = append(entries, item.(*keyedEntry[K, T]))
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].key.String() < entries[j].key.String()
	})

	return entries
}

// Borrow gets an object from key's sub-pool, creating the sub-pool if needed.
func (kp *KeyedObjectPool[K, T]) Borrow(key K) (T, error) {
	pool, err := kp.poolFor(key, true)
	if err != nil {
		var zero T
		return zero, err
	}

	return pool.Borrow()
}

// Return gives obj back to key's sub-pool.
func (kp *KeyedObjectPool[K, T]) Return(key K, obj T) error {
	pool, err := kp.poolFor(key, false)
	if err != nil {
		return err
	}

	return pool.Return(obj)
}

// Add eagerly creates an idle object in key's sub-pool.
func (kp *KeyedObjectPool[K, T]) Add(key K) error {
	pool, err := kp.poolFor(key, true)
	if err != nil {
		return err
	}

	return pool.Add()
}

// Clear destroys the idle objects of every sub-pool.
func (kp *KeyedObjectPool[K, T]) Clear() error {
	group := &errgroup.Group{}
	for _, entry := range kp.entries() {
		pool := entry.pool
		group.Go(pool.Clear)
	}

	return group.Wait()
}

// ClearKey destroys the idle objects of key's sub-pool, if it exists.
func (kp *KeyedObjectPool[K, T]) ClearKey(key K) error {
	pool, err := kp.poolFor(key, false)
	if errors.Is(err, ErrUnknownKey) {
		return nil
	}
	if err != nil {
		return err
	}

	return pool.Clear()
}

// Close closes every sub-pool in parallel. Later calls to Borrow fail with ErrPoolClosed.
func (kp *KeyedObjectPool[K, T]) Close() error {
	if !atomic.CompareAndSwapInt32(&kp.closed, 0, 1) {
		return nil
	}

	group := &errgroup.Group{}
	for _, entry := range kp.entries() {
		group.Go(func() error {
			if err := entry.pool.Close(); err != nil {
				kp.logger.Warn("closing sub-pool failed", zap.String("key", entry.key.String()), zap.Error(err))
				return err
			}
			return nil
		})
	}

	return group.Wait()
}

// SetFactory replaces the keyed factory across all sub-pools. Fails with ErrInvalidState
// while any sub-pool has active objects.
func (kp *KeyedObjectPool[K, T]) SetFactory(factory KeyedPooledObjectFactory[K, T]) error {
	kp.factoryLock.Lock()
	defer kp.factoryLock.Unlock()

	if kp.IsClosed() {
		return ErrPoolClosed
	}

	if kp.ActiveCount() > 0 {
		return ErrInvalidState
	}

	kp.factory = factory

	var errs []error
	for _, entry := range kp.entries() {
		var bound PooledObjectFactory[T]
		if factory != nil {
			bound = &keyedFactory[K, T]{key: entry.key, factory: factory}
		}

		if err := entry.pool.SetFactory(bound); err != nil {
			errs = append(errs, fmt.Errorf("key %s: %w", entry.key, err))
		}
	}

	return errors.Join(errs...)
}

// Pool returns key's sub-pool without creating it.
func (kp *KeyedObjectPool[K, T]) Pool(key K) (*ObjectPool[T], bool) {
	pool, err := kp.poolFor(key, false)
	if err != nil {
		return nil, false
	}
	return pool, true
}

// Keys lists every key that has a sub-pool, ordered by String().
func (kp *KeyedObjectPool[K, T]) Keys() []K {
	entries := kp.entries()
	keys := make([]K, 0, len(entries))
	for _, entry := range entries {
		keys = append(keys, entry.key)
	}
	return keys
}

// ActiveCount sums active objects across sub-pools.
func (kp *KeyedObjectPool[K, T]) ActiveCount() int {
	total := 0
	for _, entry := range kp.entries() {
		total += entry.pool.ActiveCount()
	}
	return total
}

// IdleCount sums idle objects across sub-pools.
func (kp *KeyedObjectPool[K, T]) IdleCount() int {
	total := 0
	for _, entry := range kp.entries() {
		total += entry.pool.IdleCount()
	}
	return total
}

func (kp *KeyedObjectPool[K, T]) ActiveCountByKey(key K) int {
	if pool, ok := kp.Pool(key); ok {
		return pool.ActiveCount()
	}
	return 0
}

func (kp *KeyedObjectPool[K, T]) IdleCountByKey(key K) int {
	if pool, ok := kp.Pool(key); ok {
		return pool.IdleCount()
	}
	return 0
}

// StatsByKey returns the lifetime counters of every sub-pool, keyed by String().
func (kp *KeyedObjectPool[K, T]) StatsByKey() map[string]Stats {
	stats := make(map[string]Stats)
	for _, entry := range kp.entries() {
		stats[entry.key.String()] = entry.pool.Stats()
	}
	return stats
}

// HasMaxSize reports whether sub-pools are bounded.
func (kp *KeyedObjectPool[K, T]) HasMaxSize() bool { return kp.config.MaxSize > 0 }

// Config is the configuration every sub-pool is created with.
func (kp *KeyedObjectPool[K, T]) Config() Config { return kp.config }

// IsClosed reports whether Close has been called.
func (kp *KeyedObjectPool[K, T]) IsClosed() bool {
	return atomic.LoadInt32(&kp.closed) == 1
}
