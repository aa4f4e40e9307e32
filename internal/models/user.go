package models

import (
	"fmt"
	"strings"
	"time"
)

type Role string

const (
	RoleAdmin     Role = "ADMIN"
	RoleSecretary Role = "SECRETARY"
	RoleEngineer  Role = "ENGINEER"
	RoleUser      Role = "USER"
)

// ParseRole accepts a role name in any case.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleSecretary, RoleEngineer, RoleUser:
		return true
	}
	return false
}

// Privileged roles may act on any user's records.
func (r Role) Privileged() bool {
	return r == RoleAdmin || r == RoleSecretary
}

type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Role      Role      `json:"role"`
	EntityID  *int64    `json:"entityId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Actor is the authenticated caller of an operation.
type Actor struct {
	ID   int64
	Role Role
}

func (a Actor) Privileged() bool {
	return a.Role.Privileged()
}

// Owns reports whether the actor is userID or may act on their behalf.
func (a Actor) Owns(userID int64) bool {
	return a.Privileged() || a.ID == userID
}
