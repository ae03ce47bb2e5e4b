package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reboucasericka/Sistema-sub001/internal/model"
)

func seedProfessional(t *testing.T, db *DB, id int64, active bool) {
	t.Helper()
	require.NoError(t, db.UpsertProfessional(context.Background(), model.Professional{ID: id, Name: "Ana", Active: active}))
}

func rule(day time.Weekday, start, end string) model.AvailabilityRule {
	return model.AvailabilityRule{
		ProfessionalID: 1,
		DayOfWeek:      day,
		StartTime:      model.MustParseClock(start),
		EndTime:        model.MustParseClock(end),
	}
}

func TestRulesFor(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedProfessional(t, db, 1, true)

	require.NoError(t, db.ReplaceRules(ctx, 1, []model.AvailabilityRule{
		rule(time.Monday, "14:00", "18:00"),
		rule(time.Monday, "09:00", "12:00"),
		rule(time.Sunday, "08:00", "10:00"),
	}))

	monday, err := db.RulesFor(ctx, 1, time.Monday)
	require.NoError(t, err)
	require.Len(t, monday, 2)
	assert.Equal(t, model.MustParseClock("09:00"), monday[0].StartTime)
	assert.Equal(t, time.Monday, monday[0].DayOfWeek)

	sunday, err := db.RulesFor(ctx, 1, time.Sunday)
	require.NoError(t, err)
	require.Len(t, sunday, 1)
	assert.Equal(t, time.Sunday, sunday[0].DayOfWeek)

	tuesday, err := db.RulesFor(ctx, 1, time.Tuesday)
	require.NoError(t, err)
	assert.Empty(t, tuesday)
}

func TestReplaceRulesRejectsInvalidAtomically(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedProfessional(t, db, 1, true)

	require.NoError(t, db.ReplaceRules(ctx, 1, []model.AvailabilityRule{rule(time.Monday, "09:00", "12:00")}))

	err := db.ReplaceRules(ctx, 1, []model.AvailabilityRule{
		rule(time.Monday, "13:00", "15:00"),
		rule(time.Monday, "12:00", "11:00"),
	})
	assert.ErrorContains(t, err, "rule[1]")

	all, err := db.ListRules(ctx, 1)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, model.MustParseClock("09:00"), all[0].StartTime)
}

func TestAddAndDeleteRule(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedProfessional(t, db, 1, true)

	r := rule(time.Friday, "10:00", "11:00")
	require.NoError(t, db.AddRule(ctx, &r))
	assert.NotZero(t, r.ID)

	bad := rule(time.Friday, "11:00", "10:00")
	assert.Error(t, db.AddRule(ctx, &bad))

	// Removing a rule leaves appointments alone.
	appt := newAppt("10:00", "11:00")
	require.NoError(t, db.Insert(ctx, appt, ""))
	require.NoError(t, db.DeleteRule(ctx, r.ID))
	assert.ErrorIs(t, db.DeleteRule(ctx, r.ID), model.ErrNotFound)

	_, err := db.Get(ctx, appt.ID)
	assert.NoError(t, err)
}

func TestDirectory(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	seedProfessional(t, db, 1, true)
	require.NoError(t, db.UpsertService(ctx, model.Service{ID: 10, Name: "Corte", Duration: 45 * time.Minute, Active: true}))
	assert.Error(t, db.UpsertService(ctx, model.Service{ID: 11, Name: "Nada"}))

	p, err := db.GetProfessional(ctx, 1)
	require.NoError(t, err)
	assert.True(t, p.Active)

	s, err := db.GetService(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 45*time.Minute, s.Duration)

	_, err = db.GetProfessional(ctx, 2)
	assert.ErrorIs(t, err, model.ErrNotFound)
	_, err = db.GetService(ctx, 2)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestSyncCatalog(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	catalog := model.Catalog{
		Professionals: []model.Professional{{ID: 1, Name: "Ana", Active: true}, {ID: 2, Name: "Bruno", Active: true}},
		Services:      []model.Service{{ID: 10, Name: "Corte", Duration: time.Hour, Active: true}},
		Rules: map[int64][]model.AvailabilityRule{
			1: {rule(time.Monday, "09:00", "12:00")},
		},
	}
	require.NoError(t, db.SyncCatalog(ctx, catalog))

	rules, err := db.RulesFor(ctx, 1, time.Monday)
	require.NoError(t, err)
	assert.Len(t, rules, 1)

	// Bruno and the service disappear from the catalog; Ana's schedule changes.
	catalog.Professionals = catalog.Professionals[:1]
	catalog.Services = nil
	catalog.Rules[1] = []model.AvailabilityRule{rule(time.Tuesday, "10:00", "11:00")}
	require.NoError(t, db.SyncCatalog(ctx, catalog))

	bruno, err := db.GetProfessional(ctx, 2)
	require.NoError(t, err)
	assert.False(t, bruno.Active)

	svc, err := db.GetService(ctx, 10)
	require.NoError(t, err)
	assert.False(t, svc.Active)

	monday, err := db.RulesFor(ctx, 1, time.Monday)
	require.NoError(t, err)
	assert.Empty(t, monday)

	list, err := db.ListProfessionals(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, int64(1), list[0].ID)

	services, err := db.ListServices(ctx)
	require.NoError(t, err)
	assert.Len(t, services, 1)
}
