package persistence

import "fmt"

// NewStore creates a new Store based on the configuration
func NewStore(config StoreConfig) (Store, error) {
	switch config.Type {
	case StoreTypeMemory, "":
		return NewMemoryStore(), nil
	case StoreTypeFile:
		return NewFileStore(config)
	case StoreTypeRedis:
		return NewRedisStore(config)
	default:
		return nil, fmt.Errorf("unsupported snapshot store type: %s", config.Type)
	}
}

// MustNewStore creates a new Store or panics on error.
//
// WARNING: This function should ONLY be used during application initialization.
// For runtime store creation, use NewStore instead.
func MustNewStore(config StoreConfig) Store {
	store, err := NewStore(config)
	if err != nil {
		panic(fmt.Sprintf("failed to create snapshot store: %v", err))
	}
	return store
}
