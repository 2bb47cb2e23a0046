package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"slotline/internal/domain"
	"slotline/internal/repo"
)

type MemberSeed struct {
	ActorID     string `json:"actor_id" yaml:"actor_id"`
	Role        string `json:"role" yaml:"role"`
	DisplayName string `json:"display_name,omitempty" yaml:"display_name"`
	Email       string `json:"email,omitempty" yaml:"email"`
}

// SpaceSeed describes a space and its members. Membership itself is managed
// elsewhere; seeding exists for local setups and tests.
type SpaceSeed struct {
	OrgID   string       `json:"org_id" yaml:"org_id"`
	SpaceID string       `json:"space_id" yaml:"space_id"`
	Name    string       `json:"name" yaml:"name"`
	Members []MemberSeed `json:"members" yaml:"members"`
}

// SeedSpace creates the org and space if missing and upserts each member's
// role and profile.
func (e Engine) SeedSpace(ctx context.Context, seed SpaceSeed) (domain.Space, error) {
	if strings.TrimSpace(seed.SpaceID) == "" {
		return domain.Space{}, invalid(CodeInvalidArgument, "space_id is required", nil)
	}
	if seed.OrgID == "" {
		seed.OrgID = "default-org"
	}
	for _, m := range seed.Members {
		switch m.Role {
		case domain.RoleOwner, domain.RoleAdmin, domain.RoleMember, domain.RoleClient:
		default:
			return domain.Space{}, invalid(CodeInvalidArgument, fmt.Sprintf("member %s has unknown role %q", m.ActorID, m.Role), nil)
		}
		if m.ActorID == "" {
			return domain.Space{}, invalid(CodeInvalidArgument, "member actor_id is required", nil)
		}
	}
	now := e.now().UTC().Format(time.RFC3339)
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.Space{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.EnsureOrg(ctx, tx, seed.OrgID, "", now); err != nil {
		return domain.Space{}, internal("ensure org", err)
	}
	space := domain.Space{ID: seed.SpaceID, OrgID: seed.OrgID, Name: seed.Name, CreatedAt: now}
	if err := e.Repo.EnsureSpace(ctx, tx, space); err != nil {
		return domain.Space{}, internal("ensure space", err)
	}
	for _, m := range seed.Members {
		if err := e.Repo.SetSpaceMember(ctx, tx, domain.SpaceMember{SpaceID: space.ID, ActorID: m.ActorID, Role: m.Role}); err != nil {
			return domain.Space{}, internal("set member", err)
		}
		if m.DisplayName != "" || m.Email != "" {
			name := m.DisplayName
			if name == "" {
				name = m.ActorID
			}
			if err := e.Repo.UpsertProfile(ctx, tx, domain.Profile{ActorID: m.ActorID, DisplayName: name, Email: m.Email}); err != nil {
				return domain.Space{}, internal("upsert profile", err)
			}
		}
	}
	if err := commit(tx); err != nil {
		return domain.Space{}, err
	}
	stored, err := e.Repo.GetSpace(ctx, space.ID)
	if err != nil {
		return domain.Space{}, internal("load space", err)
	}
	return stored, nil
}

// MemberSpaces lists the spaces an actor belongs to.
func (e Engine) MemberSpaces(ctx context.Context, actorID string) ([]string, error) {
	ids, err := e.Repo.ActorSpaceIDs(ctx, actorID)
	if err != nil {
		return nil, internal("load spaces", err)
	}
	return ids, nil
}

// ListEvents returns recent events from the spaces the actor belongs to.
// A space filter outside that set yields nothing.
func (e Engine) ListEvents(ctx context.Context, actorID string, f repo.EventFilters) ([]domain.Event, error) {
	spaces, err := e.MemberSpaces(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if len(f.SpaceIDs) > 0 {
		allowed := make(map[string]struct{}, len(spaces))
		for _, id := range spaces {
			allowed[id] = struct{}{}
		}
		var keep []string
		for _, id := range f.SpaceIDs {
			if _, ok := allowed[id]; ok {
				keep = append(keep, id)
			}
		}
		spaces = keep
	}
	if len(spaces) == 0 {
		return []domain.Event{}, nil
	}
	f.SpaceIDs = spaces
	evts, err := e.Repo.LatestEvents(ctx, f)
	if err != nil {
		return nil, internal("list events", err)
	}
	if evts == nil {
		evts = []domain.Event{}
	}
	return evts, nil
}
