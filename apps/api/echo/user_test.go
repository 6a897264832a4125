package echoapi_test

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/user"
	"github.com/trezcool/ratiba/tests"
)

func TestUserAPI_create(t *testing.T) {
	app, env := setup(t)
	org := env.CreateOrg(t, "Kivu Music")

	payload := func(email, role string) []byte {
		return marshallObj(t, map[string]interface{}{
			"name":            " Awe Bisimwa ",
			"email":           email,
			"role":            role,
			"organisation_id": org.ID,
			"password":        testutil.DefaultPassword,
		})
	}

	req, rec := newRequest(http.MethodPost, "/users", payload("Awe@Ratiba.test", "teacher"))
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var got user.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	stored, err := env.UserRepo.GetUserByID(context.Background(), got.ID)
	require.NoError(t, err)
	assert.JSONEq(t, string(marshallObj(t, stored)), rec.Body.String())
	assert.Equal(t, "Awe Bisimwa", stored.Name)
	assert.Equal(t, "awe@ratiba.test", stored.Email)
	assert.Equal(t, user.RoleTeacher, stored.Role)
	assert.False(t, stored.IsVerified)
	assert.NotContains(t, rec.Body.String(), "password")

	tests := []httpTest{
		{
			name:     "duplicate email",
			body:     payload("awe@ratiba.test", "student"),
			wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, map[string]string{"email": user.ErrEmailExists.Error()}),
		},
		{
			name:     "unknown role",
			body:     payload("other@ratiba.test", "janitor"),
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "missing fields",
			body:     []byte(`{"organisation_id": null}`),
			wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, map[string]string{
				"name":     "this field is required",
				"email":    "this field is required",
				"role":     "this field is required",
				"password": "this field is required",
			}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.method, tt.path = http.MethodPost, "/users"
			req, rec := newRequest(tt.method, tt.path, tt.body)
			app.ServeHTTP(rec, req)
			if tt.wantData == nil {
				assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}

	assert.Len(t, env.Mail.Sent(), 1)
}

func TestUserAPI_me(t *testing.T) {
	app, env := setup(t)
	usr := env.CreateUser(t, "Awe Bisimwa", user.RoleStudent, 0)
	tok := env.Token(t, usr)

	httpTest{method: http.MethodGet, path: "/users/me", token: tok, wantCode: http.StatusOK, wantData: marshallObj(t, usr)}.run(t, app)

	want := usr
	want.Name = "Awe B."
	httpTest{
		method:   http.MethodPut,
		path:     "/users/me",
		body:     []byte(`{"name": " Awe B. ", "password": "N3w-Secret!"}`),
		token:    tok,
		wantCode: http.StatusOK,
		wantData: marshallObj(t, want),
	}.run(t, app)

	stored, err := env.Users.GetByID(context.Background(), usr.ID)
	require.NoError(t, err)
	assert.True(t, env.Users.CheckPassword(stored, "N3w-Secret!"))

	httpTest{
		method:   http.MethodPut,
		path:     "/users/me",
		body:     []byte(`{"password": "1234"}`),
		token:    tok,
		wantCode: http.StatusBadRequest,
		wantData: marshallObj(t, map[string]string{"password": "password must contain at least 8 characters"}),
	}.run(t, app)
}

func TestUserAPI_list(t *testing.T) {
	app, env := setup(t)
	org := env.CreateOrg(t, "Kivu Music")
	other := env.CreateOrg(t, "Goma Dance")
	admin := env.CreateUser(t, "Admin", user.RoleAdmin, org.ID)
	teacher := env.CreateUser(t, "Teacher", user.RoleTeacher, org.ID)
	student := env.CreateUser(t, "Student", user.RoleStudent, org.ID)
	_ = env.CreateUser(t, "Outsider", user.RoleTeacher, other.ID)
	loner := env.CreateUser(t, "Loner", user.RoleStudent, 0)
	tok := env.Token(t, student)

	tests := []httpTest{
		{name: "all", path: "/users/", token: tok, wantData: marshallObj(t, []user.User{admin, teacher, student})},
		{name: "by role", path: "/users?role=admin", token: tok, wantData: marshallObj(t, []user.User{admin})},
		{name: "teachers", path: "/users/teachers", token: tok, wantData: marshallObj(t, []user.User{teacher})},
		{name: "students", path: "/users/students", token: tok, wantData: marshallObj(t, []user.User{student})},
		{name: "no organisation", path: "/users", token: env.Token(t, loner), wantData: []byte(`[]`)},
		{
			name:     "bad role",
			path:     "/users?role=janitor",
			token:    tok,
			wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, map[string]string{"role": "role must be one of admin, teacher or student"}),
		},
		{name: "anonymous", path: "/users", wantCode: http.StatusUnauthorized, wantData: marshallObj(t, errMissingToken)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.method = http.MethodGet
			if tt.wantCode == 0 {
				tt.wantCode = http.StatusOK
			}
			tt.run(t, app)
		})
	}
}

func TestUserAPI_detail(t *testing.T) {
	app, env := setup(t)
	org := env.CreateOrg(t, "Kivu Music")
	other := env.CreateOrg(t, "Goma Dance")
	admin := env.CreateUser(t, "Admin", user.RoleAdmin, org.ID)
	teacher := env.CreateUser(t, "Teacher", user.RoleTeacher, org.ID)
	student := env.CreateUser(t, "Student", user.RoleStudent, org.ID)
	outsider := env.CreateUser(t, "Outsider", user.RoleTeacher, other.ID)

	path := func(id int64) string { return "/users/" + strconv.FormatInt(id, 10) }
	notFound := marshallObj(t, httpErr{Error: core.ErrNotFound.Error()})
	forbidden := marshallObj(t, httpErr{Error: core.ErrForbidden.Error()})

	tests := []httpTest{
		{name: "retrieve", method: http.MethodGet, path: path(teacher.ID), token: env.Token(t, student), wantCode: http.StatusOK, wantData: marshallObj(t, teacher)},
		{name: "retrieve outsider", method: http.MethodGet, path: path(outsider.ID), token: env.Token(t, student), wantCode: http.StatusNotFound, wantData: notFound},
		{name: "retrieve bad id", method: http.MethodGet, path: "/users/abc", token: env.Token(t, student), wantCode: http.StatusNotFound, wantData: notFound},
		{name: "delete as teacher", method: http.MethodDelete, path: path(student.ID), token: env.Token(t, teacher), wantCode: http.StatusForbidden, wantData: forbidden},
		{name: "delete self", method: http.MethodDelete, path: path(admin.ID), token: env.Token(t, admin), wantCode: http.StatusForbidden, wantData: forbidden},
		{name: "delete outsider", method: http.MethodDelete, path: path(outsider.ID), token: env.Token(t, admin), wantCode: http.StatusNotFound, wantData: notFound},
		{name: "delete", method: http.MethodDelete, path: path(student.ID), token: env.Token(t, admin), wantCode: http.StatusNoContent},
		{name: "deleted", method: http.MethodGet, path: path(student.ID), token: env.Token(t, admin), wantCode: http.StatusNotFound, wantData: notFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.run(t, app)
		})
	}
}
