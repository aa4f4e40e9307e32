package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"studiobook/internal/calendar"
	"studiobook/internal/database"
	"studiobook/internal/models"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v2"
)

type seedFile struct {
	Entities []string       `yaml:"entities"`
	Users    []seedUser     `yaml:"users"`
	Weekly   []seedTemplate `yaml:"weekly"`
}

type seedUser struct {
	Username string `yaml:"username"`
	Role     string `yaml:"role"`
	Entity   string `yaml:"entity"`
}

// seedTemplate is one weekly window, owned by the engineer with the given username.
type seedTemplate struct {
	Engineer string `yaml:"engineer"`
	Day      string `yaml:"day"`
	Start    string `yaml:"start"`
	End      string `yaml:"end"`
}

func loadSeed(path string, logger *zerolog.Logger) (*seedFile, error) {
	if path == "" {
		return &seedFile{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Warn().Str("seed_path", path).Msg("seed file not found, skipping")
			return &seedFile{}, nil
		}
		logger.Error().Err(err).Str("seed_path", path).Msg("read seed")
		return nil, err
	}

	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		logger.Error().Err(err).Str("seed_path", path).Msg("parse seed")
		return nil, err
	}
	return &seed, nil
}

// applySeed creates missing entities, users and weekly windows. Existing rows are left
// untouched so restarts are safe.
func applySeed(ctx context.Context, db *database.DB, seed *seedFile, logger *zerolog.Logger) error {
	entityIDs, err := seedEntities(ctx, db, seed.Entities)
	if err != nil {
		return err
	}

	userIDs := make(map[string]int64, len(seed.Users))
	created := 0
	for _, u := range seed.Users {
		name := strings.TrimSpace(u.Username)
		if name == "" {
			return fmt.Errorf("seed user without username")
		}
		if existing, err := db.GetUserByUsername(ctx, name); err == nil {
			userIDs[name] = existing.ID
			continue
		} else if !errors.Is(err, database.ErrNotFound) {
			return err
		}

		role, err := models.ParseRole(u.Role)
		if err != nil {
			return fmt.Errorf("seed user %q: %w", name, err)
		}
		user := &models.User{Username: name, Role: role}
		if u.Entity != "" {
			id, ok := entityIDs[u.Entity]
			if !ok {
				return fmt.Errorf("seed user %q: unknown entity %q", name, u.Entity)
			}
			user.EntityID = &id
		}
		if err := db.CreateUser(ctx, user); err != nil {
			return err
		}
		userIDs[name] = user.ID
		created++
	}

	windows := 0
	for _, w := range seed.Weekly {
		engineerID, ok := userIDs[w.Engineer]
		if !ok {
			return fmt.Errorf("seed window: unknown engineer %q", w.Engineer)
		}
		window, err := parseSeedWindow(engineerID, w)
		if err != nil {
			return err
		}
		existing, err := db.ListDayWindows(ctx, engineerID, window.Day)
		if err != nil {
			return err
		}
		if hasWindow(existing, window) {
			continue
		}
		if err := db.CreateAvailability(ctx, window); err != nil {
			return err
		}
		windows++
	}

	logger.Info().
		Int("entities", len(entityIDs)).
		Int("users_created", created).
		Int("windows_created", windows).
		Msg("seed applied")
	return nil
}

func seedEntities(ctx context.Context, db *database.DB, names []string) (map[string]int64, error) {
	existing, err := db.ListEntities(ctx)
	if err != nil {
		return nil, err
	}
	ids := make(map[string]int64, len(existing)+len(names))
	for _, e := range existing {
		ids[e.Name] = e.ID
	}
	for _, raw := range names {
		name := strings.TrimSpace(raw)
		if name == "" {
			continue
		}
		if _, ok := ids[name]; ok {
			continue
		}
		entity := &models.Entity{Name: name}
		if err := db.CreateEntity(ctx, entity); err != nil {
			return nil, err
		}
		ids[name] = entity.ID
	}
	return ids, nil
}

func parseSeedWindow(engineerID int64, w seedTemplate) (*models.Availability, error) {
	day, err := models.ParseDay(w.Day)
	if err != nil {
		return nil, fmt.Errorf("seed window %s: %w", w.Day, err)
	}
	start, err := calendar.ParseClock(w.Start)
	if err != nil {
		return nil, fmt.Errorf("seed window %s start: %w", w.Day, err)
	}
	end, err := calendar.ParseClock(w.End)
	if err != nil {
		return nil, fmt.Errorf("seed window %s end: %w", w.Day, err)
	}
	window := &models.Availability{EngineerID: engineerID, Day: day, Start: start, End: end}
	if !window.Range().Valid() {
		return nil, fmt.Errorf("seed window %s: start must be before end", w.Day)
	}
	return window, nil
}

func hasWindow(existing []*models.Availability, w *models.Availability) bool {
	for _, e := range existing {
		if e.Start == w.Start && e.End == w.End {
			return true
		}
	}
	return false
}
