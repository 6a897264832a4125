package sqlxrepos

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/golang-sql/civil"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/ratiba/core/lesson"
	"github.com/trezcool/ratiba/core/user"
)

// lessonRow mirrors the lessons table. lib/pq decodes DATE and TIME columns to time.Time.
type lessonRow struct {
	ID             int64     `db:"id"`
	Date           time.Time `db:"date"`
	Time           time.Time `db:"time"`
	Location       string    `db:"location"`
	Price          int64     `db:"price"`
	OrganisationID int64     `db:"organisation_id"`
}

func (r lessonRow) toLesson() lesson.Lesson {
	return lesson.Lesson{
		ID:             r.ID,
		Date:           civil.DateOf(r.Date),
		Time:           civil.TimeOf(r.Time),
		Location:       r.Location,
		Price:          r.Price,
		OrganisationID: r.OrganisationID,
		Teachers:       []user.User{},
		Students:       []user.User{},
	}
}

type memberRow struct {
	LessonID int64 `db:"lesson_id"`
	user.User
}

type association struct {
	table  string
	column string
}

var (
	teachersAssoc = association{table: "lesson_teachers", column: "teacher_id"}
	studentsAssoc = association{table: "lesson_students", column: "student_id"}
)

const lessonColumns = "l.id, l.date, l.time, l.location, l.price, l.organisation_id"

type lessonRepository struct {
	db *sqlx.DB
}

var _ lesson.Repository = (*lessonRepository)(nil)

func NewLessonRepository(db *sqlx.DB) *lessonRepository {
	return &lessonRepository{db: db}
}

func (repo *lessonRepository) CreateLesson(ctx context.Context, les lesson.Lesson) (lesson.Lesson, error) {
	err := withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		q := `INSERT INTO lessons (date, time, location, price, organisation_id)
			VALUES ($1, $2, $3, $4, $5) RETURNING id`
		err := tx.QueryRowxContext(ctx, q,
			les.Date.String(), les.Time.String(), les.Location, les.Price, les.OrganisationID,
		).Scan(&les.ID)
		if err != nil {
			return errors.Wrap(err, "inserting lesson")
		}
		return setMembers(ctx, tx, les)
	})
	if err != nil {
		return lesson.Lesson{}, err
	}
	return repo.GetLessonByID(ctx, les.ID)
}

func (repo *lessonRepository) GetLessonByID(ctx context.Context, id int64) (lesson.Lesson, error) {
	var row lessonRow
	if err := repo.db.GetContext(ctx, &row, "SELECT "+lessonColumns+" FROM lessons l WHERE l.id = $1", id); err != nil {
		return lesson.Lesson{}, trapNoRowsErr(err)
	}
	lessons := []lesson.Lesson{row.toLesson()}
	if err := loadMembers(ctx, repo.db, lessons); err != nil {
		return lesson.Lesson{}, err
	}
	return lessons[0], nil
}

func (repo *lessonRepository) QueryLessons(ctx context.Context, filter lesson.QueryFilter) ([]lesson.Lesson, error) {
	var (
		conds []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if filter.OrganisationID != 0 {
		conds = append(conds, "l.organisation_id = "+arg(filter.OrganisationID))
	}
	if filter.TeacherID != 0 {
		conds = append(conds, "EXISTS (SELECT 1 FROM lesson_teachers lt WHERE lt.lesson_id = l.id AND lt.teacher_id = "+arg(filter.TeacherID)+")")
	}
	if filter.StudentID != 0 {
		conds = append(conds, "EXISTS (SELECT 1 FROM lesson_students ls WHERE ls.lesson_id = l.id AND ls.student_id = "+arg(filter.StudentID)+")")
	}
	if filter.From.IsValid() {
		conds = append(conds, "l.date >= "+arg(filter.From.String()))
	}

	q := "SELECT " + lessonColumns + " FROM lessons l"
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY l.date, l.time, l.id"

	var rows []lessonRow
	if err := repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying lessons")
	}
	lessons := make([]lesson.Lesson, 0, len(rows))
	for _, row := range rows {
		lessons = append(lessons, row.toLesson())
	}
	if err := loadMembers(ctx, repo.db, lessons); err != nil {
		return nil, err
	}
	return lessons, nil
}

func (repo *lessonRepository) UpdateLesson(ctx context.Context, les lesson.Lesson) (lesson.Lesson, error) {
	err := withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		q := `UPDATE lessons SET date = $2, time = $3, location = $4, price = $5 WHERE id = $1`
		res, err := tx.ExecContext(ctx, q, les.ID, les.Date.String(), les.Time.String(), les.Location, les.Price)
		if err != nil {
			return errors.Wrap(err, "updating lesson")
		}
		if err := mustAffect(res); err != nil {
			return err
		}
		return setMembers(ctx, tx, les)
	})
	if err != nil {
		return lesson.Lesson{}, err
	}
	return repo.GetLessonByID(ctx, les.ID)
}

func (repo *lessonRepository) DeleteLesson(ctx context.Context, id int64) error {
	return withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		for _, assoc := range []association{teachersAssoc, studentsAssoc} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+assoc.table+" WHERE lesson_id = $1", id); err != nil {
				return errors.Wrapf(err, "deleting %s", assoc.table)
			}
		}
		res, err := tx.ExecContext(ctx, "DELETE FROM lessons WHERE id = $1", id)
		if err != nil {
			return errors.Wrap(err, "deleting lesson")
		}
		return mustAffect(res)
	})
}

// setMembers replaces the lesson's associations with its current teachers and students.
func setMembers(ctx context.Context, tx *sqlx.Tx, les lesson.Lesson) error {
	for assoc, members := range map[association][]user.User{
		teachersAssoc: les.Teachers,
		studentsAssoc: les.Students,
	} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+assoc.table+" WHERE lesson_id = $1", les.ID); err != nil {
			return errors.Wrapf(err, "clearing %s", assoc.table)
		}
		if len(members) == 0 {
			continue
		}
		ids := make([]int64, 0, len(members))
		for _, m := range members {
			ids = append(ids, m.ID)
		}
		q := "INSERT INTO " + assoc.table + " (lesson_id, " + assoc.column + ") SELECT $1, unnest($2::bigint[])"
		if _, err := tx.ExecContext(ctx, q, les.ID, pq.Array(ids)); err != nil {
			return errors.Wrapf(err, "inserting %s", assoc.table)
		}
	}
	return nil
}

// loadMembers fills the teachers and students of lessons, ordered by user id.
func loadMembers(ctx context.Context, db sqlx.QueryerContext, lessons []lesson.Lesson) error {
	if len(lessons) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(lessons))
	index := make(map[int64]int, len(lessons)) // {lesson id: position}
	for i, les := range lessons {
		ids = append(ids, les.ID)
		index[les.ID] = i
	}

	for _, assoc := range []association{teachersAssoc, studentsAssoc} {
		q := `SELECT a.lesson_id, u.id, u.name, u.email, u.role, u.organisation_id, u.is_verified, u.password_hash
			FROM ` + assoc.table + ` a JOIN users u ON u.id = a.` + assoc.column + `
			WHERE a.lesson_id = ANY($1) ORDER BY u.id`
		var rows []memberRow
		if err := sqlx.SelectContext(ctx, db, &rows, q, pq.Array(ids)); err != nil {
			return errors.Wrapf(err, "loading %s", assoc.table)
		}
		for _, row := range rows {
			les := &lessons[index[row.LessonID]]
			if assoc == teachersAssoc {
				les.Teachers = append(les.Teachers, row.User)
			} else {
				les.Students = append(les.Students, row.User)
			}
		}
	}
	return nil
}
