package echoapi_test

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"testing"

	"github.com/golang-sql/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/trezcool/ratiba/apps/api/echo"
	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/lesson"
	"github.com/trezcool/ratiba/core/user"
	"github.com/trezcool/ratiba/tests"
)

type lessonFixture struct {
	env                        *testutil.Env
	org, other                 int64
	admin, teacher, teacher2   user.User
	student, student2, outside user.User
}

func setupLessons(t *testing.T) (Server, *lessonFixture) {
	app, env := setup(t)
	f := &lessonFixture{env: env}
	f.org = env.CreateOrg(t, "Kivu Music").ID
	f.other = env.CreateOrg(t, "Goma Dance").ID
	f.admin = env.CreateUser(t, "Admin", user.RoleAdmin, f.org)
	f.teacher = env.CreateUser(t, "Teacher", user.RoleTeacher, f.org)
	f.teacher2 = env.CreateUser(t, "Teacher Two", user.RoleTeacher, f.org)
	f.student = env.CreateUser(t, "Student", user.RoleStudent, f.org)
	f.student2 = env.CreateUser(t, "Student Two", user.RoleStudent, f.org)
	f.outside = env.CreateUser(t, "Outsider", user.RoleStudent, f.other)
	return app, f
}

func lessonBody(t *testing.T, date civil.Date, orgID int64, teacherIDs, studentIDs []int64) []byte {
	if teacherIDs == nil {
		teacherIDs = []int64{}
	}
	if studentIDs == nil {
		studentIDs = []int64{}
	}
	return marshallObj(t, map[string]interface{}{
		"date":            date.String(),
		"time":            "14:30",
		"location":        "Studio A",
		"price":           2500,
		"organisation_id": orgID,
		"teacher_ids":     teacherIDs,
		"student_ids":     studentIDs,
	})
}

func lessonPath(id int64, suffix ...string) string {
	p := "/lessons/" + strconv.FormatInt(id, 10)
	for _, s := range suffix {
		p += s
	}
	return p
}

func TestLessonAPI_roles(t *testing.T) {
	app, f := setupLessons(t)
	les := f.env.CreateLesson(t, f.org, testutil.Today(1), testutil.Time(9), []user.User{f.teacher}, []user.User{f.student})
	forbidden := marshallObj(t, httpErr{Error: core.ErrForbidden.Error()})
	body := lessonBody(t, testutil.Today(1), f.org, nil, nil)

	routes := []struct {
		method string
		path   string
		body   []byte
		roles  []user.User // allowed
	}{
		{http.MethodGet, "/lessons/my-upcoming", nil, []user.User{f.student}},
		{http.MethodPost, "/lessons", body, []user.User{f.teacher}},
		{http.MethodGet, "/lessons/my-lessons", nil, []user.User{f.teacher}},
		{http.MethodPut, lessonPath(les.ID), body, []user.User{f.teacher, f.admin}},
		{http.MethodDelete, lessonPath(les.ID, "/own"), nil, []user.User{f.teacher}},
		{http.MethodGet, "/lessons", nil, []user.User{f.admin}},
		{http.MethodGet, lessonPath(les.ID), nil, []user.User{f.admin}},
		{http.MethodDelete, lessonPath(les.ID), nil, []user.User{f.admin}},
		{http.MethodPost, "/lessons/admin", body, []user.User{f.admin}},
	}
	for _, r := range routes {
		allowed := make(map[int64]bool, len(r.roles))
		for _, u := range r.roles {
			allowed[u.ID] = true
		}
		for _, usr := range []user.User{f.admin, f.teacher, f.student} {
			if allowed[usr.ID] {
				continue
			}
			t.Run(r.method+" "+r.path+" as "+usr.Role.String(), func(t *testing.T) {
				httpTest{
					method:   r.method,
					path:     r.path,
					body:     r.body,
					token:    f.env.Token(t, usr),
					wantCode: http.StatusForbidden,
					wantData: forbidden,
				}.run(t, app)
			})
		}
		t.Run(r.method+" "+r.path+" anonymous", func(t *testing.T) {
			httpTest{
				method:   r.method,
				path:     r.path,
				body:     r.body,
				wantCode: http.StatusUnauthorized,
				wantData: marshallObj(t, errMissingToken),
			}.run(t, app)
		})
	}

	// nothing was touched
	got, err := f.env.LessonRepo.GetLessonByID(context.Background(), les.ID)
	require.NoError(t, err)
	assert.Equal(t, les, got)
}

func TestLessonAPI_create(t *testing.T) {
	app, f := setupLessons(t)
	date := testutil.Today(3)

	req, rec := newAuthRequest(http.MethodPost, "/lessons/", f.env.Token(t, f.teacher), lessonBody(t, date, f.org, nil, []int64{f.student.ID}))
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var got lesson.Lesson
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	stored, err := f.env.LessonRepo.GetLessonByID(context.Background(), got.ID)
	require.NoError(t, err)
	assert.JSONEq(t, string(marshallObj(t, stored)), rec.Body.String())
	assert.Equal(t, date, stored.Date)
	assert.Equal(t, civil.Time{Hour: 14, Minute: 30}, stored.Time)
	assert.Equal(t, []user.User{f.teacher}, stored.Teachers)
	assert.Equal(t, []user.User{f.student}, stored.Students)

	tests := []httpTest{
		{
			name:     "admin as student",
			body:     lessonBody(t, date, f.org, nil, []int64{f.admin.ID}),
			wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, httpErr{Error: core.ErrRoleMismatch.Error()}),
		},
		{
			name:     "outsider student",
			body:     lessonBody(t, date, f.org, nil, []int64{f.outside.ID}),
			wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, httpErr{Error: core.ErrCrossOrgReference.Error()}),
		},
		{
			name:     "another organisation",
			body:     lessonBody(t, date, f.other, nil, nil),
			wantCode: http.StatusForbidden,
			wantData: marshallObj(t, httpErr{Error: core.ErrForbidden.Error()}),
		},
		{
			name:     "missing location and price",
			body:     []byte(`{"date": "` + date.String() + `", "time": "10:00:00", "organisation_id": ` + strconv.FormatInt(f.org, 10) + `}`),
			wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, map[string]string{"location": "this field is required", "price": "this field is required"}),
		},
		{
			name:     "missing date",
			body:     []byte(`{"time": "10:00", "location": "Studio", "price": 0, "organisation_id": ` + strconv.FormatInt(f.org, 10) + `}`),
			wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, map[string]string{"date": "date must be a valid YYYY-MM-DD date"}),
		},
		{
			name:     "missing time",
			body:     []byte(`{"date": "` + date.String() + `", "location": "Studio", "price": 0, "organisation_id": ` + strconv.FormatInt(f.org, 10) + `}`),
			wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, map[string]string{"time": "this field is required"}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.method, tt.path, tt.token = http.MethodPost, "/lessons", f.env.Token(t, f.teacher)
			tt.run(t, app)
		})
	}

	t.Run("hours and minutes", func(t *testing.T) {
		body := []byte(`{"date": "` + date.String() + `", "time": "08:15", "location": "Studio B", "price": 0, "organisation_id": ` +
			strconv.FormatInt(f.org, 10) + `, "teacher_ids": [], "student_ids": []}`)
		req, rec := newAuthRequest(http.MethodPost, "/lessons", f.env.Token(t, f.teacher), body)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var got lesson.Lesson
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, civil.Time{Hour: 8, Minute: 15}, got.Time)
	})

	t.Run("admin", func(t *testing.T) {
		body := lessonBody(t, date, f.other, []int64{f.teacher2.ID}, []int64{f.student.ID, f.student2.ID})
		req, rec := newAuthRequest(http.MethodPost, "/lessons/admin", f.env.Token(t, f.admin), body)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var got lesson.Lesson
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, f.org, got.OrganisationID)
		assert.Len(t, got.Teachers, 1)
		assert.Len(t, got.Students, 2)
	})
}

func TestLessonAPI_upcoming(t *testing.T) {
	app, f := setupLessons(t)
	create := func(days, hour int) lesson.Lesson {
		return f.env.CreateLesson(t, f.org, testutil.Today(days), testutil.Time(hour), []user.User{f.teacher}, []user.User{f.student})
	}
	_ = create(-2, 10)
	late := create(2, 16)
	early := create(2, 8)
	today := create(0, 12)
	_ = f.env.CreateLesson(t, f.org, testutil.Today(1), testutil.Time(9), []user.User{f.teacher}, []user.User{f.student2})

	httpTest{
		method:   http.MethodGet,
		path:     "/lessons/my-upcoming",
		token:    f.env.Token(t, f.student),
		wantCode: http.StatusOK,
		wantData: marshallObj(t, []lesson.Lesson{today, early, late}),
	}.run(t, app)
}

func TestLessonAPI_teacher(t *testing.T) {
	app, f := setupLessons(t)
	mine := f.env.CreateLesson(t, f.org, testutil.Today(1), testutil.Time(9), []user.User{f.teacher}, []user.User{f.student})
	theirs := f.env.CreateLesson(t, f.org, testutil.Today(1), testutil.Time(10), []user.User{f.teacher2}, nil)
	tok := f.env.Token(t, f.teacher)

	httpTest{method: http.MethodGet, path: "/lessons/my-lessons", token: tok, wantCode: http.StatusOK, wantData: marshallObj(t, []lesson.Lesson{mine})}.run(t, app)

	// full overwrite: the acting teacher stays, student replaced
	req, rec := newAuthRequest(http.MethodPut, lessonPath(mine.ID), tok, lessonBody(t, testutil.Today(5), f.org, []int64{f.teacher2.ID}, []int64{f.student2.ID}))
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated, err := f.env.LessonRepo.GetLessonByID(context.Background(), mine.ID)
	require.NoError(t, err)
	assert.JSONEq(t, string(marshallObj(t, updated)), rec.Body.String())
	assert.Equal(t, testutil.Today(5), updated.Date)
	assert.Equal(t, []user.User{f.teacher, f.teacher2}, updated.Teachers)
	assert.Equal(t, []user.User{f.student2}, updated.Students)

	forbidden := marshallObj(t, httpErr{Error: core.ErrForbidden.Error()})
	notFound := marshallObj(t, httpErr{Error: core.ErrNotFound.Error()})
	tests := []httpTest{
		{name: "update theirs", method: http.MethodPut, path: lessonPath(theirs.ID), body: lessonBody(t, testutil.Today(1), f.org, nil, nil), wantCode: http.StatusForbidden, wantData: forbidden},
		{name: "delete theirs", method: http.MethodDelete, path: lessonPath(theirs.ID, "/own"), wantCode: http.StatusForbidden, wantData: forbidden},
		{name: "delete unknown", method: http.MethodDelete, path: lessonPath(9999, "/own"), wantCode: http.StatusNotFound, wantData: notFound},
		{name: "delete mine", method: http.MethodDelete, path: lessonPath(mine.ID, "/own"), wantCode: http.StatusNoContent},
		{name: "deleted", method: http.MethodGet, path: "/lessons/my-lessons", wantCode: http.StatusOK, wantData: []byte(`[]`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.token = tok
			tt.run(t, app)
		})
	}
}

func TestLessonAPI_admin(t *testing.T) {
	app, f := setupLessons(t)
	first := f.env.CreateLesson(t, f.org, testutil.Today(1), testutil.Time(9), []user.User{f.teacher}, []user.User{f.student})
	second := f.env.CreateLesson(t, f.org, testutil.Today(-1), testutil.Time(9), []user.User{f.teacher2}, nil)
	foreign := f.env.CreateLesson(t, f.other, testutil.Today(1), testutil.Time(9), nil, []user.User{f.outside})
	tok := f.env.Token(t, f.admin)
	notFound := marshallObj(t, httpErr{Error: core.ErrNotFound.Error()})

	tests := []httpTest{
		{name: "list", method: http.MethodGet, path: "/lessons", wantCode: http.StatusOK, wantData: marshallObj(t, []lesson.Lesson{second, first})},
		{name: "retrieve", method: http.MethodGet, path: lessonPath(first.ID), wantCode: http.StatusOK, wantData: marshallObj(t, first)},
		{name: "retrieve foreign", method: http.MethodGet, path: lessonPath(foreign.ID), wantCode: http.StatusNotFound, wantData: notFound},
		{name: "update foreign", method: http.MethodPut, path: lessonPath(foreign.ID), body: lessonBody(t, testutil.Today(1), f.org, nil, nil), wantCode: http.StatusNotFound, wantData: notFound},
		{name: "delete foreign", method: http.MethodDelete, path: lessonPath(foreign.ID), wantCode: http.StatusNotFound, wantData: notFound},
		{name: "delete", method: http.MethodDelete, path: lessonPath(first.ID), wantCode: http.StatusNoContent},
		{name: "deleted", method: http.MethodGet, path: lessonPath(first.ID), wantCode: http.StatusNotFound, wantData: notFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.token = tok
			tt.run(t, app)
		})
	}

	got, err := f.env.LessonRepo.GetLessonByID(context.Background(), foreign.ID)
	require.NoError(t, err)
	assert.Equal(t, foreign, got)
}
