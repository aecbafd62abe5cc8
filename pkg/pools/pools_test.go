package pools

import (
	"errors"
	"sync/atomic"
)

var errMake = errors.New("endpoint unreachable")

type fakeObject struct {
	id        int64
	broken    int32
	destroyed int32
}

func (o *fakeObject) breakIt() { atomic.StoreInt32(&o.broken, 1) }

type fakeFactory struct {
	made          int64
	destroyed     int64
	failMake      int32
	failPassivate int32
}

func (f *fakeFactory) Make() (*fakeObject, error) {
	if atomic.LoadInt32(&f.failMake) == 1 {
		return nil, errMake
	}
	return &fakeObject{id: atomic.AddInt64(&f.made, 1)}, nil
}

func (f *fakeFactory) Destroy(obj *fakeObject) error {
	atomic.StoreInt32(&obj.destroyed, 1)
	atomic.AddInt64(&f.destroyed, 1)
	return nil
}

func (f *fakeFactory) Activate(obj *fakeObject) error { return nil }

func (f *fakeFactory) Passivate(obj *fakeObject) bool {
	return atomic.LoadInt32(&f.failPassivate) == 0
}

func (f *fakeFactory) Validate(obj *fakeObject) bool {
	return atomic.LoadInt32(&obj.broken) == 0 && atomic.LoadInt32(&obj.destroyed) == 0
}

func (f *fakeFactory) Made() int64      { return atomic.LoadInt64(&f.made) }
func (f *fakeFactory) Destroyed() int64 { return atomic.LoadInt64(&f.destroyed) }

type testKey string

func (k testKey) String() string { return string(k) }

// fakeKeyedFactory tracks one fakeFactory per key.
type fakeKeyedFactory struct {
	byKey map[testKey]*fakeFactory
}

func newFakeKeyedFactory(keys ...testKey) *fakeKeyedFactory {
	kf := &fakeKeyedFactory{byKey: make(map[testKey]*fakeFactory)}
	for _, key := range keys {
		kf.byKey[key] = &fakeFactory{}
	}
	return kf
}

func (kf *fakeKeyedFactory) Make(key testKey) (*fakeObject, error) { return kf.byKey[key].Make() }
func (kf *fakeKeyedFactory) Destroy(key testKey, obj *fakeObject) error {
	return kf.byKey[key].Destroy(obj)
}
func (kf *fakeKeyedFactory) Activate(key testKey, obj *fakeObject) error {
	return kf.byKey[key].Activate(obj)
}
func (kf *fakeKeyedFactory) Passivate(key testKey, obj *fakeObject) bool {
	return kf.byKey[key].Passivate(obj)
}
func (kf *fakeKeyedFactory) Validate(key testKey, obj *fakeObject) bool {
	return kf.byKey[key].Validate(obj)
}
