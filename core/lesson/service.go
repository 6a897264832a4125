package lesson

import (
	"context"
	"time"

	"github.com/golang-sql/civil"
	"github.com/pkg/errors"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/user"
)

type (
	// Repository lookups return core.ErrNotFound when nothing matches.
	// Lessons are returned with their teachers and students.
	Repository interface {
		// CreateLesson inserts the lesson and its associations in one transaction.
		CreateLesson(ctx context.Context, les Lesson) (Lesson, error)
		GetLessonByID(ctx context.Context, id int64) (Lesson, error)
		// QueryLessons lists lessons ordered by date, time then id.
		QueryLessons(ctx context.Context, filter QueryFilter) ([]Lesson, error)
		// UpdateLesson overwrites the lesson's fields and replaces its associations in one transaction.
		UpdateLesson(ctx context.Context, les Lesson) (Lesson, error)
		// DeleteLesson removes the lesson's associations, then the lesson, in one transaction.
		DeleteLesson(ctx context.Context, id int64) error
	}

	Service struct {
		repo   Repository
		policy *Policy
		logger core.Logger
		now    func() time.Time
	}
)

// Option configures a Service.
type Option func(*Service)

// WithClock makes "today" derive from now instead of the wall clock.
func WithClock(now func() time.Time) Option {
	return func(svc *Service) { svc.now = now }
}

func NewService(repo Repository, policy *Policy, logger core.Logger, opts ...Option) *Service {
	svc := &Service{
		repo:   repo,
		policy: policy,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// today is the server-local date.
func (svc *Service) today() civil.Date {
	return civil.DateOf(svc.now())
}

// Create adds a lesson on behalf of actor. A teacher actor is attached as a teacher.
func (svc *Service) Create(ctx context.Context, actor user.User, nl NewLesson) (Lesson, error) {
	orgID, err := svc.policy.AuthorizeCreate(actor, nl.OrganisationID)
	if err != nil {
		return Lesson{}, err
	}
	if err := nl.Validate(); err != nil {
		return Lesson{}, err
	}
	teachers, students, err := svc.policy.ResolveRoster(ctx, actor, orgID, nl.Roster)
	if err != nil {
		return Lesson{}, err
	}

	les, err := svc.repo.CreateLesson(ctx, Lesson{
		Date:           nl.Date,
		Time:           nl.Time.Time,
		Location:       nl.Location,
		Price:          *nl.Price,
		OrganisationID: orgID,
		Teachers:       teachers,
		Students:       students,
	})
	if err != nil {
		return Lesson{}, errors.Wrap(err, "creating lesson")
	}
	return les, nil
}

// Update overwrites a lesson's fields and roster on behalf of actor.
func (svc *Service) Update(ctx context.Context, actor user.User, id int64, nl NewLesson) (Lesson, error) {
	les, err := svc.repo.GetLessonByID(ctx, id)
	if err != nil {
		return Lesson{}, err
	}
	if err := svc.policy.AuthorizeMutation(actor, les); err != nil {
		return Lesson{}, err
	}
	if err := nl.Validate(); err != nil {
		return Lesson{}, err
	}
	teachers, students, err := svc.policy.ResolveRoster(ctx, actor, les.OrganisationID, nl.Roster)
	if err != nil {
		return Lesson{}, err
	}

	les.Date = nl.Date
	les.Time = nl.Time.Time
	les.Location = nl.Location
	les.Price = *nl.Price
	les.Teachers = teachers
	les.Students = students
	if les, err = svc.repo.UpdateLesson(ctx, les); err != nil {
		return Lesson{}, errors.Wrap(err, "updating lesson")
	}
	return les, nil
}

// Delete removes a lesson on behalf of actor.
func (svc *Service) Delete(ctx context.Context, actor user.User, id int64) error {
	les, err := svc.repo.GetLessonByID(ctx, id)
	if err != nil {
		return err
	}
	if err := svc.policy.AuthorizeMutation(actor, les); err != nil {
		return err
	}
	if err := svc.repo.DeleteLesson(ctx, les.ID); err != nil {
		return errors.Wrap(err, "deleting lesson")
	}
	return nil
}

// Get returns a lesson of actor's organisation.
func (svc *Service) Get(ctx context.Context, actor user.User, id int64) (Lesson, error) {
	orgID, ok := actor.OrgID()
	if !ok {
		return Lesson{}, core.ErrNotFound
	}
	les, err := svc.repo.GetLessonByID(ctx, id)
	if err != nil {
		return Lesson{}, err
	}
	if les.OrganisationID != orgID {
		return Lesson{}, core.ErrNotFound
	}
	return les, nil
}

// QueryOrganisation lists every lesson of actor's organisation.
func (svc *Service) QueryOrganisation(ctx context.Context, actor user.User) ([]Lesson, error) {
	orgID, ok := actor.OrgID()
	if !ok {
		return []Lesson{}, nil
	}
	return svc.repo.QueryLessons(ctx, QueryFilter{OrganisationID: orgID})
}

// QueryTaught lists the lessons the teacher is teaching.
func (svc *Service) QueryTaught(ctx context.Context, teacher user.User) ([]Lesson, error) {
	return svc.repo.QueryLessons(ctx, QueryFilter{TeacherID: teacher.ID})
}

// QueryUpcoming lists the student's lessons dated today or later.
func (svc *Service) QueryUpcoming(ctx context.Context, student user.User) ([]Lesson, error) {
	return svc.repo.QueryLessons(ctx, QueryFilter{StudentID: student.ID, From: svc.today()})
}
