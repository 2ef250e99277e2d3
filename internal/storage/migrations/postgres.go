package migrations

import (
	"context"
	"fmt"

	"orb-lab/internal/storage/postgres"
)

// RunPostgresMigrations applies the embedded research schema in lexical file order.
// Every statement uses IF NOT EXISTS, so running it on each start is safe.
// pgx runs a whole file as one simple-protocol batch.
func RunPostgresMigrations(ctx context.Context, pool *postgres.Pool) error {
	files, err := load(PostgresFS, "postgres")
	if err != nil {
		return err
	}
	for _, m := range files {
		if _, err := pool.Exec(ctx, m.sql); err != nil {
			return fmt.Errorf("apply migration %s: %w", m.name, err)
		}
	}
	return nil
}
