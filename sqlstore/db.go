package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/extra/bundebug"
)

type DB struct {
	db *bun.DB
}

func NewDB(db *bun.DB) *DB {
	return &DB{db: db}
}

// Open connects to the SQLite database at dsn and makes sure the schema
// exists. Set BUNDEBUG=1 (or 2 for every query) to log SQL.
func Open(ctx context.Context, dsn string) (*DB, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// SQLite allows a single writer; one connection also keeps ":memory:"
	// databases from being split across connections.
	sqldb.SetMaxOpenConns(1)

	bundb := bun.NewDB(sqldb, sqlitedialect.New())
	bundb.AddQueryHook(bundebug.NewQueryHook(
		bundebug.FromEnv("BUNDEBUG"),
	))

	d := NewDB(bundb)
	if err := d.CreateSchema(ctx); err != nil {
		_ = bundb.Close()
		return nil, err
	}

	return d, nil
}

func (d *DB) CreateSchema(ctx context.Context) error {
	if err := d.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		for _, model := range []any{
			(*attendeeModel)(nil),
		} {
			if _, err := tx.NewCreateTable().
				Model(model).
				IfNotExists().
				Exec(ctx); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return fmt.Errorf("CreateSchema: %w", err)
	}

	return nil
}

func (d *DB) Close() error {
	return d.db.Close()
}
