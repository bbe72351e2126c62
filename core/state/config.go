package state

// Config are the tunables of the durable state store.
type Config struct {
	AccountCacheSize int // clean accounts kept in memory
	StorageCache     int // megabytes of clean storage values kept in memory
	CodeCacheSize    int // contract codes kept in memory, by hash
}

// DefaultConfig contains the default settings for the state store.
var DefaultConfig = Config{
	AccountCacheSize: 8192,
	StorageCache:     32,
	CodeCacheSize:    1024,
}

func (c *Config) sanitize() Config {
	out := *c
	if out.AccountCacheSize <= 0 {
		out.AccountCacheSize = DefaultConfig.AccountCacheSize
	}
	if out.StorageCache <= 0 {
		out.StorageCache = DefaultConfig.StorageCache
	}
	if out.CodeCacheSize <= 0 {
		out.CodeCacheSize = DefaultConfig.CodeCacheSize
	}
	return out
}
