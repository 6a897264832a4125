package organisation_test

import (
	"context"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/organisation"
	"github.com/trezcool/ratiba/core/user"
	"github.com/trezcool/ratiba/tests"
)

func TestService_Create(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()

	org, err := env.Orgs.Create(ctx, organisation.NewOrganisation{Name: "  Kivu Music "})
	require.NoError(t, err)
	assert.Equal(t, "Kivu Music", org.Name)

	ok, err := env.Orgs.Exists(ctx, org.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = env.Orgs.Exists(ctx, org.ID+1)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = env.Orgs.Create(ctx, organisation.NewOrganisation{Name: "Kivu Music"})
	var vErr *core.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.ErrorIs(t, err, organisation.ErrNameExists)
	assert.Equal(t, "name", vErr.Fields[0].Field)

	_, err = env.Orgs.Create(ctx, organisation.NewOrganisation{Name: " "})
	var vErrs validator.ValidationErrors
	assert.ErrorAs(t, err, &vErrs)

	orgs, err := env.Orgs.Query(ctx)
	require.NoError(t, err)
	assert.Equal(t, []organisation.Organisation{org}, orgs)
}

func TestService_Delete(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	org := env.CreateOrg(t, "Kivu Music")
	other := env.CreateOrg(t, "Goma Dance")

	teacher := env.CreateUser(t, "Teacher", user.RoleTeacher, org.ID)
	student := env.CreateUser(t, "Student", user.RoleStudent, org.ID)
	outsider := env.CreateUser(t, "Outsider", user.RoleTeacher, other.ID)
	les := env.CreateLesson(t, org.ID, testutil.Today(1), testutil.Time(10), []user.User{teacher}, []user.User{student})
	kept := env.CreateLesson(t, other.ID, testutil.Today(1), testutil.Time(10), []user.User{outsider}, nil)

	require.NoError(t, env.Orgs.Delete(ctx, org.ID))

	_, err := env.Orgs.Get(ctx, org.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
	for _, id := range []int64{teacher.ID, student.ID} {
		_, err := env.UserRepo.GetUserByID(ctx, id)
		assert.ErrorIs(t, err, core.ErrNotFound)
	}
	_, err = env.LessonRepo.GetLessonByID(ctx, les.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)

	got, err := env.LessonRepo.GetLessonByID(ctx, kept.ID)
	require.NoError(t, err)
	assert.Equal(t, kept, got)

	assert.ErrorIs(t, env.Orgs.Delete(ctx, org.ID), core.ErrNotFound)
}
