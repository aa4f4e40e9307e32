package service

import (
	"context"
	"strings"

	"studiobook/internal/apperr"
	"studiobook/internal/domain"
	"studiobook/internal/events"
	"studiobook/internal/lifecycle"
	"studiobook/internal/logging"
	"studiobook/internal/models"

	"github.com/rs/zerolog"
)

type RegisterRequest struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	EntityID *int64 `json:"entityId"`
}

type ReportRequest struct {
	UserID *int64 `json:"userId"`
	Phone  string `json:"phone"`
	Reason string `json:"reason"`
}

// DirectoryService manages users, studio entities and customer reports.
type DirectoryService struct {
	store    domain.DirectoryStore
	eventBus domain.EventPublisher
	logger   *zerolog.Logger
}

func NewDirectoryService(store domain.DirectoryStore, eventBus domain.EventPublisher, logger *zerolog.Logger) *DirectoryService {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &DirectoryService{store: store, eventBus: eventBus, logger: logger}
}

// RegisterUser creates a user. A nil actor registers itself and always gets USER;
// any other role needs a privileged actor.
func (s *DirectoryService) RegisterUser(ctx context.Context, actor *models.Actor, req RegisterRequest) (*models.User, error) {
	const op = "register_user"

	role := models.RoleUser
	if strings.TrimSpace(req.Role) != "" {
		parsed, err := models.ParseRole(req.Role)
		if err != nil {
			return nil, observe(op, apperr.Wrap(apperr.KindValidation, err, "%s", err.Error()))
		}
		role = parsed
	}
	if role != models.RoleUser {
		if actor == nil {
			return nil, observe(op, apperr.New(apperr.KindForbidden, "anonymous registration may only create USER accounts"))
		}
		if err := lifecycle.CanManageUsers(*actor); err != nil {
			return nil, observe(op, err)
		}
	}

	username := strings.TrimSpace(req.Username)
	if username == "" {
		return nil, observe(op, apperr.New(apperr.KindValidation, "username is required"))
	}
	if req.EntityID != nil {
		if _, err := s.store.GetEntity(ctx, *req.EntityID); err != nil {
			return nil, observe(op, translateError(s.logger, op, err))
		}
	}

	user := &models.User{Username: username, Role: role, EntityID: req.EntityID}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, observe(op, translateError(s.logger, op, err))
	}

	s.logger.Info().Int64("user_id", user.ID).Str("username", user.Username).Str("role", string(role)).Msg("user registered")
	return user, observe(op, nil)
}

func (s *DirectoryService) GetUser(ctx context.Context, actor models.Actor, id int64) (*models.User, error) {
	if !actor.Owns(id) {
		return nil, apperr.New(apperr.KindForbidden, "actor %d may not read user %d", actor.ID, id)
	}
	user, err := s.store.GetUser(ctx, id)
	if err != nil {
		return nil, translateError(s.logger, "get_user", err)
	}
	return user, nil
}

// UpdateUserRole changes the role of id. Setting the current role is a no-op.
func (s *DirectoryService) UpdateUserRole(ctx context.Context, actor models.Actor, id int64, role models.Role) (*models.User, error) {
	const op = "update_user_role"

	if err := lifecycle.CanManageUsers(actor); err != nil {
		return nil, observe(op, err)
	}
	if !role.Valid() {
		return nil, observe(op, apperr.New(apperr.KindValidation, "unknown role %q", role))
	}

	current, err := s.store.GetUser(ctx, id)
	if err != nil {
		return nil, observe(op, translateError(s.logger, op, err))
	}
	if current.Role == role {
		return current, observe(op, nil)
	}

	updated, err := s.store.UpdateUserRole(ctx, id, role)
	if err != nil {
		return nil, observe(op, translateError(s.logger, op, err))
	}

	logging.ForActor(s.logger, actor).Info().Int64("user_id", id).Str("from", string(current.Role)).Str("to", string(role)).Msg("user role changed")
	s.publish(events.EventUserRoleChanged, events.UserEventPayload{
		UserID:    id,
		Role:      string(role),
		FromRole:  string(current.Role),
		ChangedBy: actor.ID,
	})
	return updated, observe(op, nil)
}

func (s *DirectoryService) CreateEntity(ctx context.Context, actor models.Actor, name string) (*models.Entity, error) {
	const op = "create_entity"

	if err := lifecycle.CanManageUsers(actor); err != nil {
		return nil, observe(op, err)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, observe(op, apperr.New(apperr.KindValidation, "entity name is required"))
	}

	entity := &models.Entity{Name: name}
	if err := s.store.CreateEntity(ctx, entity); err != nil {
		return nil, observe(op, translateError(s.logger, op, err))
	}
	s.logger.Info().Int64("entity_id", entity.ID).Str("name", name).Msg("entity created")
	return entity, observe(op, nil)
}

func (s *DirectoryService) GetEntity(ctx context.Context, id int64) (*models.Entity, error) {
	entity, err := s.store.GetEntity(ctx, id)
	if err != nil {
		return nil, translateError(s.logger, "get_entity", err)
	}
	return entity, nil
}

func (s *DirectoryService) ListEntities(ctx context.Context) ([]*models.Entity, error) {
	entities, err := s.store.ListEntities(ctx)
	if err != nil {
		return nil, translateError(s.logger, "list_entities", err)
	}
	return entities, nil
}

// CreateReport records a complaint about a user or a phone number.
func (s *DirectoryService) CreateReport(ctx context.Context, actor models.Actor, req ReportRequest) (*models.Report, error) {
	const op = "create_report"

	if err := lifecycle.CanManageUsers(actor); err != nil {
		return nil, observe(op, err)
	}
	reason := strings.TrimSpace(req.Reason)
	phone := strings.TrimSpace(req.Phone)
	if reason == "" {
		return nil, observe(op, apperr.New(apperr.KindValidation, "reason is required"))
	}
	if req.UserID == nil && phone == "" {
		return nil, observe(op, apperr.New(apperr.KindValidation, "either userId or phone is required"))
	}
	if req.UserID != nil {
		if _, err := s.store.GetUser(ctx, *req.UserID); err != nil {
			return nil, observe(op, translateError(s.logger, op, err))
		}
	}

	report := &models.Report{UserID: req.UserID, Phone: phone, Reason: reason}
	if err := s.store.CreateReport(ctx, report); err != nil {
		return nil, observe(op, translateError(s.logger, op, err))
	}

	logging.ForActor(s.logger, actor).Info().Int64("report_id", report.ID).Msg("report created")
	s.publish(events.EventReportCreated, events.ReportEventPayload{
		ReportID:  report.ID,
		UserID:    report.UserID,
		Phone:     report.Phone,
		Reason:    report.Reason,
		CreatedBy: actor.ID,
	})
	return report, observe(op, nil)
}

func (s *DirectoryService) ListReports(ctx context.Context, actor models.Actor) ([]*models.Report, error) {
	if err := lifecycle.CanManageUsers(actor); err != nil {
		return nil, err
	}
	reports, err := s.store.ListReports(ctx)
	if err != nil {
		return nil, translateError(s.logger, "list_reports", err)
	}
	return reports, nil
}

func (s *DirectoryService) publish(eventType string, payload interface{}) {
	if s.eventBus == nil {
		return
	}
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Msg("publish event error")
	}
}
