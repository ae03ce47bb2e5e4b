package db

import (
	"context"
	"fmt"
	"time"

	"github.com/reboucasericka/Sistema-sub001/internal/model"
)

// SyncCatalog applies the configured catalog: it upserts professionals and
// services, replaces the weekly rules of every listed professional, and marks
// professionals and services missing from the catalog inactive. Appointments
// are never touched.
func (db *DB) SyncCatalog(ctx context.Context, catalog model.Catalog) error {
	seenProfessionals := make(map[int64]struct{}, len(catalog.Professionals))
	for _, p := range catalog.Professionals {
		if err := db.UpsertProfessional(ctx, p); err != nil {
			return err
		}
		if err := db.ReplaceRules(ctx, p.ID, catalog.Rules[p.ID]); err != nil {
			return fmt.Errorf("sync professional %d schedule: %w", p.ID, err)
		}
		seenProfessionals[p.ID] = struct{}{}
	}

	seenServices := make(map[int64]struct{}, len(catalog.Services))
	for _, s := range catalog.Services {
		if err := db.UpsertService(ctx, s); err != nil {
			return err
		}
		seenServices[s.ID] = struct{}{}
	}

	if err := db.deactivateMissing(ctx, "professionals", seenProfessionals); err != nil {
		return err
	}
	if err := db.deactivateMissing(ctx, "services", seenServices); err != nil {
		return err
	}

	db.logger.Info().
		Int("professionals", len(catalog.Professionals)).
		Int("services", len(catalog.Services)).
		Msg("Catalog synced")
	return nil
}

// table is one of the fixed catalog table names, never user input.
func (db *DB) deactivateMissing(ctx context.Context, table string, seen map[int64]struct{}) error {
	rows, err := db.QueryContext(ctx, `SELECT id FROM `+table+` WHERE is_active = 1`)
	if err != nil {
		return fmt.Errorf("list %s: %w", table, err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		if _, ok := seen[id]; !ok {
			ids = append(ids, id)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	now := time.Now().Unix()
	for _, id := range ids {
		if _, err := db.ExecContext(ctx, `UPDATE `+table+` SET is_active = 0, updated_at = ? WHERE id = ?`, now, id); err != nil {
			return fmt.Errorf("deactivate %s %d: %w", table, id, err)
		}
	}
	return nil
}
