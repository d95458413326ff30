package migrations

import (
	"context"

	"github.com/uptrace/bun"

	"github.com/micropay-ai/micropay.go/db/models"
)

// The recovery query filters on state at every startup.
func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		if _, err := db.NewCreateIndex().
			Model((*models.Order)(nil)).
			Index("orders_state_idx").
			Column("state").
			IfNotExists().
			Exec(ctx); err != nil {
			return err
		}
		return nil
	}, nil)
}
