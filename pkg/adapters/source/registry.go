package source

import (
	"context"
	"fmt"
	"sync"
)

// ConnectorFactory builds a Connector from a source's connection parameters.
type ConnectorFactory func(ctx context.Context, connection map[string]any) (Connector, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]ConnectorFactory)
)

// Register is called by each adapter's init() function.
// Thread-safe for concurrent init() calls.
func Register(sourceType string, factory ConnectorFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[sourceType] = factory
}

// Open creates a Connector for a registered source type.
func Open(ctx context.Context, sourceType string, connection map[string]any) (Connector, error) {
	registryMu.RLock()
	factory, ok := registry[sourceType]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unsupported source type %q", sourceType)
	}
	return factory(ctx, connection)
}

// RegisteredTypes returns the source types with a registered adapter.
func RegisteredTypes() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	types := make([]string, 0, len(registry))
	for t := range registry {
		types = append(types, t)
	}
	return types
}
