package pools

import "time"

// Config represents settings for creating/configuring an ObjectPool.
type Config struct {
	MinSize int    `json:"MinSize" yaml:"MinSize"` // objects created up front
	MaxSize int    `json:"MaxSize" yaml:"MaxSize"` // 0 means unbounded
	Timeout uint32 `json:"Timeout" yaml:"Timeout"` // seconds Borrow waits for capacity
}

// DefaultConfig mirrors the per-host pool sizing the client has always shipped with.
func DefaultConfig() Config {
	return Config{
		MinSize: 4,
		MaxSize: 20,
		Timeout: 15,
	}
}

func (c Config) timeout() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}
