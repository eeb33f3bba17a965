package persist

import "fmt"

// StoreType selects which Store backend NewStoreFromConfig constructs.
type StoreType string

const (
	StoreTypeMemory     StoreType = "memory"
	StoreTypeFileSystem StoreType = "filesystem"
	StoreTypeS3         StoreType = "s3"
)

// StoreConfig describes a store backend and its backend-specific settings.
type StoreConfig struct {
	Type       StoreType
	BasePath   string
	S3         S3Config
}

// NewStoreFromConfig builds the Store backend named by cfg.Type.
func NewStoreFromConfig(cfg StoreConfig) (Store, error) {
	switch cfg.Type {
	case StoreTypeMemory, "":
		return NewMemoryStore(), nil
	case StoreTypeFileSystem:
		if cfg.BasePath == "" {
			return nil, fmt.Errorf("persist: filesystem store requires a base path")
		}
		return NewFileSystemStore(cfg.BasePath)
	case StoreTypeS3:
		return NewS3Store(cfg.S3)
	default:
		return nil, fmt.Errorf("persist: unsupported store type %q", cfg.Type)
	}
}
