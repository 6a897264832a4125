package lesson

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/user"
)

// UserLookup loads lesson member candidates.
type UserLookup interface {
	GetByIDs(ctx context.Context, ids []int64) ([]user.User, error)
}

// Policy decides who may mutate which lesson and validates lesson rosters.
type Policy struct {
	users UserLookup
}

func NewPolicy(users UserLookup) *Policy {
	return &Policy{users: users}
}

// actorOrg returns the organisation of an actor allowed to mutate lessons.
func actorOrg(actor user.User) (int64, error) {
	orgID, ok := actor.OrgID()
	if !ok {
		return 0, core.ErrForbidden
	}
	switch actor.Role {
	case user.RoleAdmin, user.RoleTeacher:
		return orgID, nil
	case user.RoleStudent:
		return 0, core.ErrForbidden
	}
	return 0, core.ErrForbidden
}

// AuthorizeCreate returns the organisation the actor's new lesson belongs to.
// Teachers may only create lessons in their own organisation, admins always create in theirs.
func (p *Policy) AuthorizeCreate(actor user.User, requestedOrgID int64) (int64, error) {
	orgID, err := actorOrg(actor)
	if err != nil {
		return 0, err
	}
	if actor.IsTeacher() && requestedOrgID != orgID {
		return 0, core.ErrForbidden
	}
	return orgID, nil
}

// AuthorizeMutation checks that the actor may update or delete les.
// Admins act on the lessons of their organisation, other lessons are reported as not found.
// Teachers must be one of the lesson's current teachers.
func (p *Policy) AuthorizeMutation(actor user.User, les Lesson) error {
	orgID, err := actorOrg(actor)
	if err != nil {
		return err
	}
	switch actor.Role {
	case user.RoleAdmin:
		if les.OrganisationID != orgID {
			return core.ErrNotFound
		}
	case user.RoleTeacher:
		if les.OrganisationID != orgID || !les.HasTeacher(actor.ID) {
			return core.ErrForbidden
		}
	}
	return nil
}

// ResolveRoster loads and validates the roster of a lesson of the organisation orgID.
// A teacher actor is always part of the teacher set.
// Every member must exist in orgID, else core.ErrCrossOrgReference;
// teacher slot members must be teachers and student slot members students, else core.ErrRoleMismatch.
func (p *Policy) ResolveRoster(ctx context.Context, actor user.User, orgID int64, roster Roster) (teachers, students []user.User, err error) {
	teacherIDs := roster.TeacherIDs
	if actor.IsTeacher() {
		teacherIDs = append([]int64{actor.ID}, teacherIDs...)
	}
	teacherIDs = core.UniqueIDs(teacherIDs)
	studentIDs := core.UniqueIDs(roster.StudentIDs)

	candidates, err := p.users.GetByIDs(ctx, core.UniqueIDs(append(append([]int64{}, teacherIDs...), studentIDs...)))
	if err != nil {
		return nil, nil, errors.Wrap(err, "loading lesson members")
	}
	byID := make(map[int64]user.User, len(candidates))
	for _, c := range candidates {
		byID[c.ID] = c
	}

	// 1. every member exists in the actor's organisation
	for _, ids := range [][]int64{teacherIDs, studentIDs} {
		for _, id := range ids {
			if usr, ok := byID[id]; !ok || !usr.InOrganisation(orgID) {
				return nil, nil, core.NewValidationError(core.ErrCrossOrgReference)
			}
		}
	}

	// 2. every member holds the role of their slot
	pick := func(ids []int64, role user.Role) ([]user.User, error) {
		members := make([]user.User, 0, len(ids))
		for _, id := range ids {
			usr := byID[id]
			if usr.Role != role {
				return nil, core.NewValidationError(core.ErrRoleMismatch)
			}
			members = append(members, usr)
		}
		return members, nil
	}
	if teachers, err = pick(teacherIDs, user.RoleTeacher); err != nil {
		return nil, nil, err
	}
	if students, err = pick(studentIDs, user.RoleStudent); err != nil {
		return nil, nil, err
	}
	return teachers, students, nil
}
