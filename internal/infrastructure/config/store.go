package config

import "sync/atomic"

// Store holds the active configuration snapshot. Readers get an immutable
// *Config; Reload swaps the pointer atomically so in-flight requests keep
// the snapshot they started with.
type Store struct {
	current atomic.Pointer[Config]
	path    string
}

// NewStore loads the initial snapshot from path and returns a ready store.
func NewStore(path string) (*Store, error) {
	cfg, err := LoadFromFile(path)
	if err != nil {
		return nil, err
	}
	s := &Store{path: path}
	s.current.Store(cfg)
	return s, nil
}

// Get returns the active snapshot. The returned value must not be mutated.
func (s *Store) Get() *Config {
	return s.current.Load()
}

// Reload re-reads the configuration sources and swaps in the new snapshot.
// On any load or validation error the previous snapshot stays active.
func (s *Store) Reload() (*Config, error) {
	cfg, err := LoadFromFile(s.path)
	if err != nil {
		return nil, err
	}
	s.current.Store(cfg)
	return cfg, nil
}
