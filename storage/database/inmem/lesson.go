package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/lesson"
)

type lessonRepository struct {
	db *DB
}

var _ lesson.Repository = (*lessonRepository)(nil)

func NewLessonRepository(db *DB) *lessonRepository {
	return &lessonRepository{db: db}
}

func (repo *lessonRepository) CreateLesson(_ context.Context, les lesson.Lesson) (lesson.Lesson, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.organisations[les.OrganisationID]; !ok {
		return lesson.Lesson{}, core.ErrNotFound
	}
	repo.db.lessonSeq++
	les.ID = repo.db.lessonSeq
	repo.db.teachers.set(les.ID, les.Teachers)
	repo.db.students.set(les.ID, les.Students)
	les.Teachers, les.Students = nil, nil
	repo.db.lessons[les.ID] = les
	return repo.db.withMembers(les), nil
}

func (repo *lessonRepository) GetLessonByID(_ context.Context, id int64) (lesson.Lesson, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	les, ok := repo.db.lessons[id]
	if !ok {
		return lesson.Lesson{}, core.ErrNotFound
	}
	return repo.db.withMembers(les), nil
}

func (repo *lessonRepository) QueryLessons(_ context.Context, filter lesson.QueryFilter) ([]lesson.Lesson, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	lessons := make([]lesson.Lesson, 0)
	for _, les := range repo.db.lessons {
		if filter.OrganisationID != 0 && les.OrganisationID != filter.OrganisationID {
			continue
		}
		if filter.TeacherID != 0 && !repo.db.teachers.has(les.ID, filter.TeacherID) {
			continue
		}
		if filter.StudentID != 0 && !repo.db.students.has(les.ID, filter.StudentID) {
			continue
		}
		if filter.From.IsValid() && les.Date.Before(filter.From) {
			continue
		}
		lessons = append(lessons, repo.db.withMembers(les))
	}
	sort.Slice(lessons, func(i, j int) bool { return lessons[i].Before(lessons[j]) })
	return lessons, nil
}

func (repo *lessonRepository) UpdateLesson(_ context.Context, les lesson.Lesson) (lesson.Lesson, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.lessons[les.ID]; !ok {
		return lesson.Lesson{}, core.ErrNotFound
	}
	repo.db.teachers.set(les.ID, les.Teachers)
	repo.db.students.set(les.ID, les.Students)
	les.Teachers, les.Students = nil, nil
	repo.db.lessons[les.ID] = les
	return repo.db.withMembers(les), nil
}

func (repo *lessonRepository) DeleteLesson(_ context.Context, id int64) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.lessons[id]; !ok {
		return core.ErrNotFound
	}
	repo.db.deleteLesson(id)
	return nil
}
