package repo

import (
	"context"
	"database/sql"

	"slotline/internal/domain"
)

func (r Repo) EnsureOrg(ctx context.Context, tx *sql.Tx, orgID, name, now string) error {
	if name == "" {
		name = orgID
	}
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO organizations(id, name, created_at) VALUES (?,?,?)`, orgID, name, now)
	return err
}

func (r Repo) EnsureSpace(ctx context.Context, tx *sql.Tx, s domain.Space) error {
	if s.Name == "" {
		s.Name = s.ID
	}
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO spaces(id, org_id, name, created_at) VALUES (?,?,?,?)`, s.ID, s.OrgID, s.Name, s.CreatedAt)
	return err
}

func (r Repo) GetSpace(ctx context.Context, id string) (domain.Space, error) {
	var s domain.Space
	err := r.DB.QueryRowContext(ctx, `SELECT id, org_id, name, created_at FROM spaces WHERE id=?`, id).
		Scan(&s.ID, &s.OrgID, &s.Name, &s.CreatedAt)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	return s, err
}

// SetSpaceMember adds the actor to the space or changes their role.
func (r Repo) SetSpaceMember(ctx context.Context, tx *sql.Tx, m domain.SpaceMember) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO space_members(space_id, actor_id, role) VALUES (?,?,?)
ON CONFLICT(space_id, actor_id) DO UPDATE SET role=excluded.role`, m.SpaceID, m.ActorID, m.Role)
	return err
}

func (r Repo) RemoveSpaceMember(ctx context.Context, tx *sql.Tx, spaceID, actorID string) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM space_members WHERE space_id=? AND actor_id=?`, spaceID, actorID)
	return err
}

func (r Repo) ListSpaceMembers(ctx context.Context, spaceID string) ([]domain.SpaceMember, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT space_id, actor_id, role FROM space_members WHERE space_id=? ORDER BY actor_id`, spaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.SpaceMember
	for rows.Next() {
		var m domain.SpaceMember
		if err := rows.Scan(&m.SpaceID, &m.ActorID, &m.Role); err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

// ActorSpaceIDs lists the spaces the actor belongs to.
func (r Repo) ActorSpaceIDs(ctx context.Context, actorID string) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT space_id FROM space_members WHERE actor_id=? ORDER BY space_id`, actorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r Repo) UpsertProfile(ctx context.Context, tx *sql.Tx, p domain.Profile) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO profiles(actor_id, display_name, email) VALUES (?,?,?)
ON CONFLICT(actor_id) DO UPDATE SET display_name=excluded.display_name, email=excluded.email`, p.ActorID, p.DisplayName, nullable(p.Email))
	return err
}

// ListProfiles resolves many actors in one query. Actors without a profile
// are absent from the result.
func (r Repo) ListProfiles(ctx context.Context, actorIDs []string) (map[string]domain.Profile, error) {
	res := make(map[string]domain.Profile, len(actorIDs))
	if len(actorIDs) == 0 {
		return res, nil
	}
	args := make([]any, len(actorIDs))
	for i, id := range actorIDs {
		args[i] = id
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT actor_id, display_name, COALESCE(email,'') FROM profiles WHERE actor_id IN (`+placeholders(len(args))+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var p domain.Profile
		if err := rows.Scan(&p.ActorID, &p.DisplayName, &p.Email); err != nil {
			return nil, err
		}
		res[p.ActorID] = p
	}
	return res, rows.Err()
}
