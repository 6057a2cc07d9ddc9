package postgres

import (
	"context"

	"github.com/goldfuse-inc/goldfuse-engine/pkg/adapters/source"
)

func init() {
	source.Register("postgres", func(ctx context.Context, connection map[string]any) (source.Connector, error) {
		cfg, err := FromMap(connection)
		if err != nil {
			return nil, err
		}
		return NewConnector(ctx, cfg)
	})
}
