package pools

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Workiva/go-datastructures/queue"
	"go.uber.org/zap"
)

// ObjectPool is a bounded, blocking pool of interchangeable objects.
// Borrowed objects are tracked in an active set; returned objects are validated and either
// re-queued as idle or destroyed.
type ObjectPool[T comparable] struct {
	minSize   int
	maxSize   int
	timeout   time.Duration
	typeName  string
	available int64
	closed    int32

	factory     PooledObjectFactory[T]
	factoryLock *sync.RWMutex

	idle       *queue.Queue
	active     map[T]struct{}
	activeLock *sync.Mutex

	signal     chan struct{}
	signalGen  uint64
	signalLock *sync.Mutex

	warmOnce *sync.Once
	counters *poolCounters
	logger   *zap.Logger
}

// NewObjectPool creates an ObjectPool and pre-warms it to MinSize.
func NewObjectPool[T comparable](factory PooledObjectFactory[T], config Config) (*ObjectPool[T], error) {
	return NewObjectPoolWithLogger(factory, config, nil)
}

// NewObjectPoolWithLogger creates an ObjectPool that reports discarded objects to logger.
func NewObjectPoolWithLogger[T comparable](factory PooledObjectFactory[T], config Config, logger *zap.Logger) (*ObjectPool[T], error) {
	if err := validateConfig(config); err != nil {
		return nil, err
	}

	p := newObjectPool(factory, config, logger)
	p.prewarm()

	return p, nil
}

func validateConfig(config Config) error {
	if config.MinSize < 0 || config.MaxSize < 0 {
		return ErrInvalidConfig
	}
	return nil
}

func newObjectPool[T comparable](factory PooledObjectFactory[T], config Config, logger *zap.Logger) *ObjectPool[T] {
	if logger == nil {
		logger = zap.NewNop()
	}

	minSize := config.MinSize
	if config.MaxSize > 0 && minSize > config.MaxSize {
		minSize = config.MaxSize
	}

	hint := int64(config.MaxSize)
	if hint == 0 {
		hint = 16
	}

	var zero T
	return &ObjectPool[T]{
		minSize:     minSize,
		maxSize:     config.MaxSize,
		timeout:     config.timeout(),
		typeName:    fmt.Sprintf("%T", zero),
		available:   int64(config.MaxSize),
		factory:     factory,
		factoryLock: &sync.RWMutex{},
		idle:        queue.New(hint),
		active:      make(map[T]struct{}),
		activeLock:  &sync.Mutex{},
		signal:      make(chan struct{}),
		signalLock:  &sync.Mutex{},
		warmOnce:    &sync.Once{},
		counters:    &poolCounters{},
		logger:      logger,
	}
}

// prewarm fills the idle queue up to MinSize, at most once.
func (p *ObjectPool[T]) prewarm() {
	p.warmOnce.Do(func() {
		for i := 0; i < p.minSize; i++ {
			if err := p.Add(); err != nil {
				p.logger.Warn("pool prewarm stopped early",
					zap.String("type", p.typeName),
					zap.Int("created", i),
					zap.Int("minSize", p.minSize),
					zap.Error(err))
				return
			}
		}
	})
}

// Borrow gets an activated, validated object from idle storage or makes a new one.
// Blocks up to the pool timeout waiting for capacity when the pool is bounded.
func (p *ObjectPool[T]) Borrow() (T, error) {
	var zero T
	if p.IsClosed() {
		return zero, ErrPoolClosed
	}

	deadline := time.Now().Add(p.timeout)
	for {
		// Taken before acquiring so a release between the attempt and the wait is not lost.
		wake := p.waitChannel()

		obj, ok, released, err := p.acquire()
		if err != nil {
			return zero, err
		}
		if ok {
			p.counters.borrow.Increment()
			return obj, nil
		}

		raced := false
		if released != nil {
			// our own permit release spent the old channel; any other signal since then
			// means capacity or idle objects changed during the attempt
			raced = released.gen != wake.gen+1
			wake = *released
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		if raced {
			continue
		}

		timer := time.NewTimer(remaining)
		select {
		case <-wake.ch:
			timer.Stop()
		case <-timer.C:
		}

		if p.IsClosed() {
			return zero, ErrPoolClosed
		}
	}

	p.counters.timeout.Increment()
	return zero, &TimeoutError{Timeout: p.timeout, Type: p.typeName}
}

// acquire takes a permit and then an object. released is set when a permit was taken but no
// usable object came out of it, and holds the wakeup its release produced.
func (p *ObjectPool[T]) acquire() (obj T, ok bool, released *wakeup, err error) {
	if p.HasMaxSize() && !p.takePermit() {
		return obj, false, nil, nil
	}

	if p.IsClosed() {
		w := p.releasePermit()
		return obj, false, &w, ErrPoolClosed
	}

	obj, ok, err = p.findIdleOrMake()
	if err != nil || !ok {
		w := p.releasePermit()
		return obj, false, &w, err
	}

	return obj, true, nil, nil
}

func (p *ObjectPool[T]) takePermit() bool {
	for {
		current := atomic.LoadInt64(&p.available)
		if current <= 0 {
			return false
		}
		if atomic.CompareAndSwapInt64(&p.available, current, current-1) {
			return true
		}
	}
}

func (p *ObjectPool[T]) releasePermit() wakeup {
	if p.HasMaxSize() {
		atomic.AddInt64(&p.available, 1)
	}
	return p.notifyAll()
}

func (p *ObjectPool[T]) findIdleOrMake() (T, bool, error) {
	var zero T

	p.factoryLock.RLock()
	defer p.factoryLock.RUnlock()

	if p.factory == nil {
		return zero, false, ErrNoFactory
	}

	for {
		obj, ok := p.pollIdle()
		if !ok {
			break
		}

		if err := p.factory.Activate(obj); err != nil {
			p.counters.failedActivateIdle.Increment()
			p.logger.Debug("discarding idle object that failed activation", zap.String("type", p.typeName), zap.Error(err))
			p.destroy(obj)
			continue
		}

		if !p.factory.Validate(obj) {
			p.counters.failedValidateIdle.Increment()
			p.logger.Debug("discarding idle object that failed validation", zap.String("type", p.typeName))
			p.destroy(obj)
			continue
		}

		p.counters.reuse.Increment()
		p.markActive(obj)
		return obj, true, nil
	}

	obj, err := p.make()
	if err != nil {
		return zero, false, err
	}

	// A new object that can't be activated or validated ends this attempt.
	if err := p.factory.Activate(obj); err != nil {
		p.counters.failedActivateNew.Increment()
		p.logger.Debug("new object failed activation", zap.String("type", p.typeName), zap.Error(err))
		p.destroy(obj)
		return zero, false, nil
	}

	if !p.factory.Validate(obj) {
		p.counters.failedValidateNew.Increment()
		p.logger.Debug("new object failed validation", zap.String("type", p.typeName))
		p.destroy(obj)
		return zero, false, nil
	}

	p.markActive(obj)
	return obj, true, nil
}

// Return gives a borrowed object back to the pool. Objects that fail validation or passivation,
// or that would overflow idle storage, are destroyed instead of re-queued.
func (p *ObjectPool[T]) Return(obj T) error {
	if !p.markInactive(obj) {
		return ErrNotActive
	}

	p.factoryLock.RLock()
	requeued, err := p.returnToIdle(obj)
	p.factoryLock.RUnlock()

	p.releasePermit()
	p.counters.ret.Increment()

	if requeued && p.IsClosed() {
		// raced with Close
		_ = p.Clear()
	}

	if err != nil {
		return err
	}
	if p.IsClosed() {
		return ErrPoolClosed
	}

	return nil
}

// returnToIdle must be called with factoryLock held for reading.
func (p *ObjectPool[T]) returnToIdle(obj T) (bool, error) {
	if p.factory == nil {
		return false, ErrNoFactory
	}

	switch {
	case !p.factory.Validate(obj):
		p.counters.failedValidateReturn.Increment()
		p.destroy(obj)
		return false, nil

	case p.HasMaxSize() && p.IdleCount() >= p.maxSize:
		p.destroy(obj)
		return false, nil

	case !p.factory.Passivate(obj):
		p.counters.failedPassivateReturn.Increment()
		p.destroy(obj)
		return false, nil

	case p.IsClosed():
		p.destroy(obj)
		return false, nil
	}

	if err := p.idle.Put(obj); err != nil {
		p.destroy(obj)
		return false, err
	}

	return true, nil
}

// Add eagerly creates one idle object.
func (p *ObjectPool[T]) Add() error {
	if p.IsClosed() {
		return ErrPoolClosed
	}

	p.factoryLock.RLock()
	defer p.factoryLock.RUnlock()

	if p.factory == nil {
		return ErrNoFactory
	}

	if p.HasMaxSize() && p.ActiveCount()+p.IdleCount() >= p.maxSize {
		return ErrPoolFull
	}

	obj, err := p.make()
	if err != nil {
		return err
	}

	if !p.factory.Passivate(obj) {
		p.destroy(obj)
		return fmt.Errorf("pools: passivate failed for new %q", p.typeName)
	}

	if err := p.idle.Put(obj); err != nil {
		p.destroy(obj)
		return err
	}

	p.notifyAll()
	return nil
}

// Clear destroys every idle object. Active objects are left alone.
func (p *ObjectPool[T]) Clear() error {
	items := p.drainIdle()
	if len(items) == 0 {
		return nil
	}

	p.factoryLock.RLock()
	defer p.factoryLock.RUnlock()

	if p.factory == nil {
		return ErrNoFactory
	}

	var errs []error
	for _, obj := range items {
		if err := p.destroy(obj); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// Close marks the pool closed, destroys idle objects and wakes every blocked Borrow.
func (p *ObjectPool[T]) Close() error {
	if !atomic.CompareAndSwapInt32(&p.closed, 0, 1) {
		return nil
	}

	err := p.Clear()
	p.notifyAll()

	return err
}

// SetFactory replaces the factory. Idle objects are destroyed through the old factory.
// Fails with ErrInvalidState while any object is active.
func (p *ObjectPool[T]) SetFactory(factory PooledObjectFactory[T]) error {
	p.factoryLock.Lock()

	if p.IsClosed() {
		p.factoryLock.Unlock()
		return ErrPoolClosed
	}

	if p.ActiveCount() > 0 {
		p.factoryLock.Unlock()
		return ErrInvalidState
	}

	oldFactory := p.factory
	items := p.drainIdle()
	p.factory = factory
	p.factoryLock.Unlock()

	if oldFactory == nil {
		return nil
	}

	var errs []error
	for _, item := range items {
		if err := oldFactory.Destroy(item); err != nil {
			p.counters.failedDestroy.Increment()
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (p *ObjectPool[T]) make() (T, error) {
	obj, err := p.factory.Make()
	if err != nil {
		p.counters.failedMake.Increment()
		var zero T
		return zero, fmt.Errorf("pools: make failed: %w", err)
	}

	p.counters.make.Increment()
	return obj, nil
}

// destroy must be called with factoryLock held.
func (p *ObjectPool[T]) destroy(obj T) error {
	if err := p.factory.Destroy(obj); err != nil {
		p.counters.failedDestroy.Increment()
		p.logger.Debug("destroy failed", zap.String("type", p.typeName), zap.Error(err))
		return err
	}
	return nil
}

func (p *ObjectPool[T]) pollIdle() (T, bool) {
	var zero T

	taken := false
	items, err := p.idle.TakeUntil(func(interface{}) bool {
		if taken {
			return false
		}
		taken = true
		return true
	})
	if err != nil || len(items) == 0 {
		return zero, false
	}

	obj, ok := items[0].(T)
	return obj, ok
}

func (p *ObjectPool[T]) drainIdle() []T {
	items, err := p.idle.TakeUntil(func(interface{}) bool { return true })
	if err != nil {
		return nil
	}

	objs := make([]T, 0, len(items))
	for _, item := range items {
		if obj, ok := item.(T); ok {
			objs = append(objs, obj)
		}
	}

	return objs
}

func (p *ObjectPool[T]) markActive(obj T) {
	p.activeLock.Lock()
	p.active[obj] = struct{}{}
	p.activeLock.Unlock()
}

func (p *ObjectPool[T]) markInactive(obj T) bool {
	p.activeLock.Lock()
	defer p.activeLock.Unlock()

	if _, ok := p.active[obj]; !ok {
		return false
	}

	delete(p.active, obj)
	return true
}

// wakeup is a broadcast channel and the generation it belongs to.
type wakeup struct {
	ch  <-chan struct{}
	gen uint64
}

func (p *ObjectPool[T]) waitChannel() wakeup {
	p.signalLock.Lock()
	defer p.signalLock.Unlock()

	return wakeup{ch: p.signal, gen: p.signalGen}
}

// notifyAll wakes every waiting Borrow and returns the next wakeup.
func (p *ObjectPool[T]) notifyAll() wakeup {
	p.signalLock.Lock()
	defer p.signalLock.Unlock()

	close(p.signal)
	p.signal = make(chan struct{})
	p.signalGen++

	return wakeup{ch: p.signal, gen: p.signalGen}
}

// IsActive reports whether obj is currently borrowed from this pool.
func (p *ObjectPool[T]) IsActive(obj T) bool {
	p.activeLock.Lock()
	defer p.activeLock.Unlock()

	_, ok := p.active[obj]
	return ok
}

// ActiveCount is the number of borrowed objects.
func (p *ObjectPool[T]) ActiveCount() int {
	p.activeLock.Lock()
	defer p.activeLock.Unlock()

	return len(p.active)
}

// IdleCount is the number of objects waiting in idle storage.
func (p *ObjectPool[T]) IdleCount() int {
	return int(p.idle.Len())
}

// MinSize is the pre-warm size, clamped to MaxSize.
func (p *ObjectPool[T]) MinSize() int { return p.minSize }

// MaxSize is the capacity, 0 when unbounded.
func (p *ObjectPool[T]) MaxSize() int { return p.maxSize }

// Timeout is how long Borrow waits for capacity.
func (p *ObjectPool[T]) Timeout() time.Duration { return p.timeout }

// HasMaxSize reports whether the pool is bounded.
func (p *ObjectPool[T]) HasMaxSize() bool { return p.maxSize > 0 }

// IsClosed reports whether Close has been called.
func (p *ObjectPool[T]) IsClosed() bool {
	return atomic.LoadInt32(&p.closed) == 1
}

// IsExhausted reports whether a bounded pool has no permits left.
func (p *ObjectPool[T]) IsExhausted() bool {
	return p.HasMaxSize() && atomic.LoadInt64(&p.available) <= 0
}

// Stats returns a copy of the pool's lifetime counters.
func (p *ObjectPool[T]) Stats() Stats {
	return p.counters.snapshot()
}
