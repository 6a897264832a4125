// Package testutil wires the services on the in-memory store for tests.
package testutil

import (
	"context"
	"net/mail"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-sql/civil"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/auth"
	"github.com/trezcool/ratiba/core/lesson"
	"github.com/trezcool/ratiba/core/organisation"
	"github.com/trezcool/ratiba/core/token"
	"github.com/trezcool/ratiba/core/user"
	"github.com/trezcool/ratiba/storage/database/inmem"
)

// DefaultPassword satisfies the password policy for every user created by CreateUser.
const DefaultPassword = "Tr1cky-Passw0rd"

// PlainHasher stores passwords with a marker prefix instead of bcrypt, for speed.
type PlainHasher struct{}

func (PlainHasher) Hash(pwd string) (string, error) { return "plain$" + pwd, nil }
func (PlainHasher) Verify(hash, pwd string) bool    { return hash == "plain$"+pwd }

// MailRecorder collects the messages handed over for delivery.
type MailRecorder struct {
	mu       sync.Mutex
	messages []*core.EmailMessage
}

var _ core.EmailService = (*MailRecorder)(nil)

func (r *MailRecorder) SendMessages(messages ...*core.EmailMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, messages...)
}

func (r *MailRecorder) Sent() []*core.EmailMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*core.EmailMessage(nil), r.messages...)
}

// NopLogger discards everything.
type NopLogger struct{}

var _ core.Logger = NopLogger{}

func (NopLogger) Debug(string, ...interface{}) {}
func (NopLogger) Info(string, ...interface{})  {}
func (NopLogger) Warn(string, ...interface{})  {}
func (NopLogger) Error(string, ...interface{}) {}
func (NopLogger) Fatal(string, ...interface{}) {}

func Config() *core.Config {
	return &core.Config{
		AppName:  "Ratiba",
		Env:      "TEST",
		TestMode: true,
		Server: core.ServerConfig{
			Address:        ":8000",
			Host:           "localhost",
			BackendBaseURL: "http://api.ratiba.test",
			AllowedOrigins: []string{"http://ratiba.test"},
		},
		Auth: core.AuthConfig{
			SecretKey:      "test-secret",
			Algorithm:      "HS256",
			AccessTokenTTL: 60 * time.Minute,
			EmailTokenTTL:  30 * time.Minute,
			BcryptCost:     4,
		},
		Database: core.DatabaseConfig{Engine: core.DBEngineMemory},
		Mail: core.MailConfig{
			Backend:          core.EmailBackendConsole,
			DefaultFromEmail: mail.Address{Name: "Ratiba", Address: "no-reply@ratiba.test"},
			Workers:          1,
			QueueSize:        10,
			MaxTries:         1,
		},
	}
}

// Env holds the services wired on a fresh in-memory store.
type Env struct {
	Conf *core.Config
	DB   *inmemdb.DB
	Mail *MailRecorder

	UserRepo   user.Repository
	OrgRepo    organisation.Repository
	LessonRepo lesson.Repository

	Tokens  *token.Service
	Orgs    *organisation.Service
	Users   *user.Service
	Lessons *lesson.Service
	Auth    *auth.Resolver
}

func NewEnv(t *testing.T) *Env {
	t.Helper()

	conf := Config()
	tokens, err := token.NewService(conf)
	if err != nil {
		t.Fatalf("token.NewService() failed: %v", err)
	}

	db := inmemdb.Open()
	env := &Env{
		Conf:       conf,
		DB:         db,
		Mail:       new(MailRecorder),
		UserRepo:   inmemdb.NewUserRepository(db),
		OrgRepo:    inmemdb.NewOrganisationRepository(db),
		LessonRepo: inmemdb.NewLessonRepository(db),
		Tokens:     tokens,
	}
	env.Orgs = organisation.NewService(env.OrgRepo, NopLogger{})
	env.Users = user.NewService(env.UserRepo, env.Orgs, tokens, PlainHasher{}, env.Mail, NopLogger{}, conf)
	env.Lessons = lesson.NewService(env.LessonRepo, lesson.NewPolicy(env.Users), NopLogger{}, lesson.WithClock(Now))
	env.Auth = auth.NewResolver(tokens, env.Users)
	return env
}

func (env *Env) CreateOrg(t *testing.T, name string) organisation.Organisation {
	t.Helper()
	org, err := env.OrgRepo.CreateOrganisation(context.Background(), organisation.Organisation{Name: name})
	if err != nil {
		t.Fatalf("CreateOrg() failed: %v", err)
	}
	return org
}

// CreateUser stores a verified user with DefaultPassword. An orgID of 0 leaves the user without organisation.
func (env *Env) CreateUser(t *testing.T, name string, role user.Role, orgID int64) user.User {
	t.Helper()
	hash, _ := PlainHasher{}.Hash(DefaultPassword)
	usr := user.User{
		Name:         name,
		Email:        strings.ToLower(strings.ReplaceAll(name, " ", ".")) + "@ratiba.test",
		Role:         role,
		IsVerified:   true,
		PasswordHash: hash,
	}
	if orgID != 0 {
		usr.OrganisationID = null.Int64From(orgID)
	}
	usr, err := env.UserRepo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

func (env *Env) CreateLesson(
	t *testing.T,
	orgID int64,
	date civil.Date,
	tm civil.Time,
	teachers, students []user.User,
) lesson.Lesson {
	t.Helper()
	les, err := env.LessonRepo.CreateLesson(context.Background(), lesson.Lesson{
		Date:           date,
		Time:           tm,
		Location:       "Room 1",
		Price:          1500,
		OrganisationID: orgID,
		Teachers:       teachers,
		Students:       students,
	})
	if err != nil {
		t.Fatalf("CreateLesson() failed: %v", err)
	}
	return les
}

// TokensAt returns a token service sharing env's key whose clock is stopped at at,
// e.g. to issue tokens that env.Tokens sees as expired.
func (env *Env) TokensAt(t *testing.T, at time.Time) *token.Service {
	t.Helper()
	tokens, err := token.NewService(env.Conf, token.WithClock(func() time.Time { return at }))
	if err != nil {
		t.Fatalf("token.NewService() failed: %v", err)
	}
	return tokens
}

// Token issues a session token for usr.
func (env *Env) Token(t *testing.T, usr user.User) string {
	t.Helper()
	tok, err := env.Tokens.IssueSessionToken(usr.ID)
	if err != nil {
		t.Fatalf("Token() failed: %v", err)
	}
	return tok
}

// now is read once so that fixtures and services agree on "today" for the whole run.
var now = time.Now()

// Now is the clock given to services built by NewEnv.
func Now() time.Time { return now }

// Today returns the fixture clock's date shifted by days.
func Today(days int) civil.Date {
	return civil.DateOf(now).AddDays(days)
}

// Time returns hour:00:00.
func Time(hour int) civil.Time {
	return civil.Time{Hour: hour}
}
