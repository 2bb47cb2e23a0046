package auth

import (
	"context"
	"database/sql"
	"fmt"

	"slotline/internal/domain"
)

// ForbiddenError indicates the actor lacks the relationship an action needs.
type ForbiddenError struct {
	ActorID string
	Action  string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("actor %s may not %s", e.ActorID, e.Action)
}

// Service answers space-membership questions. Lookups run on tx when one is
// given so they see the same snapshot as the write they guard.
type Service struct {
	DB *sql.DB
}

// Role returns the actor's role in the space, or "" when not a member.
func (s Service) Role(ctx context.Context, tx *sql.Tx, spaceID, actorID string) (string, error) {
	if actorID == "" {
		return "", nil
	}
	const q = `SELECT role FROM space_members WHERE space_id=? AND actor_id=?`
	var row *sql.Row
	if tx != nil {
		row = tx.QueryRowContext(ctx, q, spaceID, actorID)
	} else {
		row = s.DB.QueryRowContext(ctx, q, spaceID, actorID)
	}
	var role string
	err := row.Scan(&role)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return role, err
}

// RequireMember allows any role, including clients.
func (s Service) RequireMember(ctx context.Context, tx *sql.Tx, spaceID, actorID, action string) (string, error) {
	role, err := s.Role(ctx, tx, spaceID, actorID)
	if err != nil {
		return "", err
	}
	if role == "" {
		return "", ForbiddenError{ActorID: actorID, Action: action}
	}
	return role, nil
}

// RequireInternal allows members of the provider's own team.
func (s Service) RequireInternal(ctx context.Context, tx *sql.Tx, spaceID, actorID, action string) error {
	role, err := s.RequireMember(ctx, tx, spaceID, actorID, action)
	if err != nil {
		return err
	}
	if role == domain.RoleClient {
		return ForbiddenError{ActorID: actorID, Action: action}
	}
	return nil
}

// RequireClient allows only members whose role is exactly client.
func (s Service) RequireClient(ctx context.Context, tx *sql.Tx, spaceID, actorID, action string) error {
	role, err := s.Role(ctx, tx, spaceID, actorID)
	if err != nil {
		return err
	}
	if role != domain.RoleClient {
		return ForbiddenError{ActorID: actorID, Action: action}
	}
	return nil
}

// RequireOrganizer allows the proposal's creator or a space owner/admin.
func (s Service) RequireOrganizer(ctx context.Context, tx *sql.Tx, spaceID, actorID, creatorID, action string) error {
	if actorID != "" && actorID == creatorID {
		return nil
	}
	role, err := s.Role(ctx, tx, spaceID, actorID)
	if err != nil {
		return err
	}
	if IsAdmin(role) {
		return nil
	}
	return ForbiddenError{ActorID: actorID, Action: action}
}

func IsAdmin(role string) bool {
	return role == domain.RoleOwner || role == domain.RoleAdmin
}
