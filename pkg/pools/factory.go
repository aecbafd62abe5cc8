package pools

// PooledObjectFactory creates, destroys and checks the objects held by an ObjectPool.
type PooledObjectFactory[T any] interface {
	// Make creates a new object.
	Make() (T, error)

	// Destroy releases the object permanently.
	Destroy(obj T) error

	// Activate prepares an object before it is handed out. An error discards the object.
	Activate(obj T) error

	// Passivate prepares an object before it goes back to idle storage.
	Passivate(obj T) bool

	// Validate reports whether the object is still usable.
	Validate(obj T) bool
}

// KeyedPooledObjectFactory is the key-parameterized PooledObjectFactory used by a KeyedObjectPool,
// so construction can target the right endpoint.
type KeyedPooledObjectFactory[K any, T any] interface {
	Make(key K) (T, error)
	Destroy(key K, obj T) error
	Activate(key K, obj T) error
	Passivate(key K, obj T) bool
	Validate(key K, obj T) bool
}

// keyedFactory binds a KeyedPooledObjectFactory to a single key.
type keyedFactory[K any, T any] struct {
	key     K
	factory KeyedPooledObjectFactory[K, T]
}

func (kf *keyedFactory[K, T]) Make() (T, error)     { return kf.factory.Make(kf.key) }
func (kf *keyedFactory[K, T]) Destroy(obj T) error  { return kf.factory.Destroy(kf.key, obj) }
func (kf *keyedFactory[K, T]) Activate(obj T) error { return kf.factory.Activate(kf.key, obj) }
func (kf *keyedFactory[K, T]) Passivate(obj T) bool { return kf.factory.Passivate(kf.key, obj) }
func (kf *keyedFactory[K, T]) Validate(obj T) bool  { return kf.factory.Validate(kf.key, obj) }
