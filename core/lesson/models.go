package lesson

import (
	"strings"

	"github.com/golang-sql/civil"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/user"
)

var (
	errInvalidDate = "date must be a valid YYYY-MM-DD date"
	errInvalidTime = "time must be a valid HH:MM or HH:MM:SS time"
)

type Lesson struct {
	ID             int64       `json:"id" db:"id"`
	Date           civil.Date  `json:"date" db:"date"`
	Time           civil.Time  `json:"time" db:"time"`
	Location       string      `json:"location" db:"location"`
	Price          int64       `json:"price" db:"price"` // smallest currency unit
	OrganisationID int64       `json:"organisation_id" db:"organisation_id"`
	Teachers       []user.User `json:"teachers" db:"-"`
	Students       []user.User `json:"students" db:"-"`
}

// HasTeacher reports whether the user id is one of the lesson's teachers.
func (l Lesson) HasTeacher(id int64) bool {
	for _, t := range l.Teachers {
		if t.ID == id {
			return true
		}
	}
	return false
}

// HasStudent reports whether the user id is one of the lesson's students.
func (l Lesson) HasStudent(id int64) bool {
	for _, s := range l.Students {
		if s.ID == id {
			return true
		}
	}
	return false
}

// Before orders lessons by date, time then id.
func (l Lesson) Before(o Lesson) bool {
	if l.Date != o.Date {
		return l.Date.Before(o.Date)
	}
	if c := compareTimes(l.Time, o.Time); c != 0 {
		return c < 0
	}
	return l.ID < o.ID
}

func compareTimes(a, b civil.Time) int {
	for _, d := range [...]int{a.Hour - b.Hour, a.Minute - b.Minute, a.Second - b.Second, a.Nanosecond - b.Nanosecond} {
		if d != 0 {
			return d
		}
	}
	return 0
}

// Roster is the candidate membership of a lesson.
type Roster struct {
	TeacherIDs []int64 `json:"teacher_ids"`
	StudentIDs []int64 `json:"student_ids"`
}

// ClockTime is a lesson start time. It decodes "HH:MM" (as sent by browser time inputs)
// as well as "HH:MM:SS[.nnn]".
type ClockTime struct {
	civil.Time
}

func (t *ClockTime) UnmarshalText(data []byte) error {
	s := string(data)
	if strings.Count(s, ":") == 1 {
		s += ":00"
	}
	ct, err := civil.ParseTime(s)
	if err != nil {
		return err
	}
	t.Time = ct
	return nil
}

// NewLesson is the payload used to create or fully overwrite a Lesson.
type NewLesson struct {
	Date           civil.Date `json:"date"`
	Time           *ClockTime `json:"time" validate:"required"`
	Location       string     `json:"location" validate:"required,notblank,max=255"`
	Price          *int64     `json:"price" validate:"required,min=0"`
	OrganisationID int64      `json:"organisation_id"`
	Roster
}

func (nl *NewLesson) Validate() error {
	nl.Location = core.CleanString(nl.Location)
	if err := core.Validate.Struct(nl); err != nil {
		return err
	}

	var flds []core.FieldError
	if !nl.Date.IsValid() {
		flds = append(flds, core.FieldError{Field: "date", Error: errInvalidDate})
	}
	if !nl.Time.Time.IsValid() {
		flds = append(flds, core.FieldError{Field: "time", Error: errInvalidTime})
	}
	if len(flds) > 0 {
		return core.NewValidationError(nil, flds...)
	}

	nl.TeacherIDs = core.UniqueIDs(nl.TeacherIDs)
	nl.StudentIDs = core.UniqueIDs(nl.StudentIDs)
	return nil
}

// QueryFilter narrows a lesson listing. Zero fields are ignored.
type QueryFilter struct {
	OrganisationID int64
	TeacherID      int64
	StudentID      int64
	From           civil.Date // inclusive
}
