package services

import (
	"context"
	_ "embed"
	"fmt"

	"challengesAPI/internal/types/challenge"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

func EnsureSchema(ctx context.Context, db *pgxpool.Pool) error {
	if _, err := db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// SyncDefinitions provisions the configured challenges. The active flag is
// only written for new rows; operators own it afterwards.
func SyncDefinitions(ctx context.Context, db *pgxpool.Pool, defs []challenge.Definition) error {
	query := `
		INSERT INTO challenges (id, type, step_count, active, starting_block)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET type = EXCLUDED.type,
			step_count = EXCLUDED.step_count,
			starting_block = EXCLUDED.starting_block
	`

	batch := &pgx.Batch{}
	for _, def := range defs {
		batch.Queue(query, def.ID, string(def.Type), def.StepCount, def.Active, def.StartingBlock)
	}

	br := db.SendBatch(ctx, batch)
	defer br.Close()
	for _, def := range defs {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to provision challenge %s: %w", def.ID, err)
		}
	}
	return br.Close()
}
