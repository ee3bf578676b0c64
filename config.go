package golap

import "fmt"

// Backend names a storage backend.
type Backend string

const (
	// BackendMemory selects the in-memory store (kcv/memstore).
	BackendMemory Backend = "memory"

	// BackendBadger selects the BadgerDB-backed store (kcv/badgerstore).
	BackendBadger Backend = "badger"
)

// Configuration map keys understood by ConfigFromMap. These are the keys a
// scan engine passes through in its opaque graph-configuration map.
const (
	ConfigKeyBackend       = "storage.backend"
	ConfigKeyPath          = "storage.path"
	ConfigKeyPartitionBits = "ids.partition-bits"
)

// Config configures a graph handle.
type Config struct {
	// Backend selects the storage backend. Defaults to BackendMemory.
	Backend Backend

	// Path is the storage directory for disk-backed backends.
	Path string

	// PartitionBits is the width of the partition field in vertex IDs.
	PartitionBits uint
}

// Validate checks the configuration for consistency.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendMemory, "":
	case BackendBadger:
		if c.Path == "" {
			return fmt.Errorf("golap: backend %q requires a storage path", c.Backend)
		}
	default:
		return fmt.Errorf("golap: unknown storage backend %q", c.Backend)
	}
	return nil
}

// ToMap renders the configuration as a generic map, the form in which it
// travels through the scan protocol.
func (c Config) ToMap() map[string]any {
	return map[string]any{
		ConfigKeyBackend:       string(c.Backend),
		ConfigKeyPath:          c.Path,
		ConfigKeyPartitionBits: int(c.PartitionBits),
	}
}

// ConfigFromMap parses a generic configuration map into a Config.
func ConfigFromMap(m map[string]any) (Config, error) {
	cfg := Config{Backend: BackendMemory}

	if v, ok := m[ConfigKeyBackend].(string); ok && v != "" {
		cfg.Backend = Backend(v)
	}
	if v, ok := m[ConfigKeyPath].(string); ok {
		cfg.Path = v
	}
	switch v := m[ConfigKeyPartitionBits].(type) {
	case int:
		cfg.PartitionBits = uint(v)
	case uint:
		cfg.PartitionBits = v
	case int64:
		cfg.PartitionBits = uint(v)
	case float64:
		cfg.PartitionBits = uint(v)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
