package migrations

import (
	"context"

	"github.com/uptrace/bun"

	"github.com/micropay-ai/micropay.go/db/models"
)

/* Since this init will reflect the latest model fields when run on fresh db
make sure that when you add/remove columns in subsequent migrations IfNotExists/IfExists is used
otherwise it's going to result in errors.
*/
func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {

		if _, err := db.NewCreateTable().Model((*models.Order)(nil)).Exec(ctx); err != nil {
			return err
		}
		if _, err := db.NewCreateTable().Model((*models.Token)(nil)).Exec(ctx); err != nil {
			return err
		}

		return nil
	}, nil)
}
