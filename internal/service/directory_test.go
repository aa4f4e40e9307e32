package service

import (
	"context"
	"errors"
	"testing"

	"studiobook/internal/apperr"
	"studiobook/internal/events"
	"studiobook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDirectory(t *testing.T) (*DirectoryService, *eventRecorder) {
	t.Helper()
	f := newFixture(t, nil)
	bus := events.NewEventBus()
	rec := &eventRecorder{}
	bus.SubscribeAll(rec.handle)
	return NewDirectoryService(f.db, bus, nil), rec
}

func TestDirectoryService_Users(t *testing.T) {
	dir, rec := newDirectory(t)
	ctx := context.Background()

	entity, err := dir.CreateEntity(ctx, admin, " Studio Uno ")
	require.NoError(t, err)
	assert.Equal(t, "Studio Uno", entity.Name)

	t.Run("AnonymousRegistration", func(t *testing.T) {
		u, err := dir.RegisterUser(ctx, nil, RegisterRequest{Username: "marta", EntityID: &entity.ID})
		require.NoError(t, err)
		assert.Equal(t, models.RoleUser, u.Role)
		require.NotNil(t, u.EntityID)
		assert.Equal(t, entity.ID, *u.EntityID)

		_, err = dir.RegisterUser(ctx, nil, RegisterRequest{Username: "eve", Role: "admin"})
		assert.True(t, errors.Is(err, apperr.Forbidden), "got %v", err)
	})

	t.Run("Validation", func(t *testing.T) {
		_, err := dir.RegisterUser(ctx, nil, RegisterRequest{Username: "  "})
		assert.True(t, errors.Is(err, apperr.Validation), "got %v", err)

		_, err = dir.RegisterUser(ctx, &admin, RegisterRequest{Username: "x", Role: "wizard"})
		assert.True(t, errors.Is(err, apperr.Validation), "got %v", err)

		_, err = dir.RegisterUser(ctx, nil, RegisterRequest{Username: "marta"})
		assert.True(t, errors.Is(err, apperr.Validation), "duplicate username, got %v", err)

		missing := int64(404)
		_, err = dir.RegisterUser(ctx, nil, RegisterRequest{Username: "nobody", EntityID: &missing})
		assert.True(t, errors.Is(err, apperr.NotFound), "got %v", err)
	})

	t.Run("RoleChange", func(t *testing.T) {
		u, err := dir.RegisterUser(ctx, &secretary, RegisterRequest{Username: "luca", Role: "engineer"})
		require.NoError(t, err)
		assert.Equal(t, models.RoleEngineer, u.Role)

		_, err = dir.UpdateUserRole(ctx, engineer(u.ID), u.ID, models.RoleAdmin)
		assert.True(t, errors.Is(err, apperr.Forbidden), "got %v", err)

		same, err := dir.UpdateUserRole(ctx, admin, u.ID, models.RoleEngineer)
		require.NoError(t, err)
		assert.Equal(t, models.RoleEngineer, same.Role)
		assert.NotContains(t, rec.Types(), events.EventUserRoleChanged)

		changed, err := dir.UpdateUserRole(ctx, admin, u.ID, models.RoleSecretary)
		require.NoError(t, err)
		assert.Equal(t, models.RoleSecretary, changed.Role)
		assert.Contains(t, rec.Types(), events.EventUserRoleChanged)

		_, err = dir.GetUser(ctx, stranger, u.ID)
		assert.True(t, errors.Is(err, apperr.Forbidden), "got %v", err)
		got, err := dir.GetUser(ctx, models.Actor{ID: u.ID, Role: models.RoleSecretary}, u.ID)
		require.NoError(t, err)
		assert.Equal(t, "luca", got.Username)
	})

	entities, err := dir.ListEntities(ctx)
	require.NoError(t, err)
	assert.Len(t, entities, 1)

	_, err = dir.GetEntity(ctx, 404)
	assert.True(t, errors.Is(err, apperr.NotFound), "got %v", err)
	_, err = dir.CreateEntity(ctx, customer, "Other")
	assert.True(t, errors.Is(err, apperr.Forbidden), "got %v", err)
}

func TestDirectoryService_Reports(t *testing.T) {
	dir, rec := newDirectory(t)
	ctx := context.Background()

	_, err := dir.CreateReport(ctx, customer, ReportRequest{Phone: "+39 1", Reason: "no show"})
	assert.True(t, errors.Is(err, apperr.Forbidden), "got %v", err)

	_, err = dir.CreateReport(ctx, admin, ReportRequest{Reason: "no show"})
	assert.True(t, errors.Is(err, apperr.Validation), "got %v", err)

	r, err := dir.CreateReport(ctx, secretary, ReportRequest{Phone: " +39 1 ", Reason: "no show"})
	require.NoError(t, err)
	assert.Equal(t, "+39 1", r.Phone)
	assert.Equal(t, []string{events.EventReportCreated}, rec.Types())

	reports, err := dir.ListReports(ctx, admin)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, r.ID, reports[0].ID)

	_, err = dir.ListReports(ctx, engineer(7))
	assert.True(t, errors.Is(err, apperr.Forbidden), "got %v", err)
}
