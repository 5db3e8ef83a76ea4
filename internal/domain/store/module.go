package store

import (
	"context"

	appconfig "github.com/webitel/im-context-relay/config"
	"go.uber.org/fx"
)

var Module = fx.Module("store",
	fx.Provide(
		func(cfg *appconfig.Config) *Store {
			return New(WithCapacity(cfg.Store.HistoryCapacity))
		},
		func(s *Store) Storer { return s },
	),
	fx.Invoke(func(lc fx.Lifecycle, s Storer) {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				s.Reset()
				return nil
			},
		})
	}),
)
