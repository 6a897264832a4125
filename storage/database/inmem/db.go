package inmemdb

import (
	"sort"
	"sync"

	"github.com/trezcool/ratiba/core/lesson"
	"github.com/trezcool/ratiba/core/organisation"
	"github.com/trezcool/ratiba/core/user"
)

type (
	// DB keeps every table behind a single mutex; each repository call is one serialised transaction.
	DB struct {
		mutex sync.RWMutex

		organisations map[int64]organisation.Organisation
		users         map[int64]user.User
		lessons       map[int64]lesson.Lesson // without members
		teachers      linkTable               // lesson_teachers
		students      linkTable               // lesson_students

		orgSeq, userSeq, lessonSeq int64
	}

	link      struct{ lessonID, userID int64 }
	linkTable map[link]struct{}
)

func Open() *DB {
	return &DB{
		organisations: make(map[int64]organisation.Organisation),
		users:         make(map[int64]user.User),
		lessons:       make(map[int64]lesson.Lesson),
		teachers:      make(linkTable),
		students:      make(linkTable),
	}
}

// Reset empties every table. Used by tests.
func (db *DB) Reset() {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	db.organisations = make(map[int64]organisation.Organisation)
	db.users = make(map[int64]user.User)
	db.lessons = make(map[int64]lesson.Lesson)
	db.teachers = make(linkTable)
	db.students = make(linkTable)
	db.orgSeq, db.userSeq, db.lessonSeq = 0, 0, 0
}

func (lt linkTable) userIDs(lessonID int64) []int64 {
	ids := make([]int64, 0)
	for l := range lt {
		if l.lessonID == lessonID {
			ids = append(ids, l.userID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (lt linkTable) has(lessonID, userID int64) bool {
	_, ok := lt[link{lessonID, userID}]
	return ok
}

func (lt linkTable) deleteLesson(lessonID int64) {
	for l := range lt {
		if l.lessonID == lessonID {
			delete(lt, l)
		}
	}
}

func (lt linkTable) deleteUser(userID int64) {
	for l := range lt {
		if l.userID == userID {
			delete(lt, l)
		}
	}
}

func (lt linkTable) set(lessonID int64, users []user.User) {
	lt.deleteLesson(lessonID)
	for _, u := range users {
		lt[link{lessonID, u.ID}] = struct{}{}
	}
}

// members must be called with the mutex held.
func (db *DB) members(lt linkTable, lessonID int64) []user.User {
	ids := lt.userIDs(lessonID)
	members := make([]user.User, 0, len(ids))
	for _, id := range ids {
		if u, ok := db.users[id]; ok {
			members = append(members, u)
		}
	}
	return members
}

// withMembers must be called with the mutex held.
func (db *DB) withMembers(les lesson.Lesson) lesson.Lesson {
	les.Teachers = db.members(db.teachers, les.ID)
	les.Students = db.members(db.students, les.ID)
	return les
}

// deleteLesson must be called with the write lock held.
func (db *DB) deleteLesson(id int64) {
	db.teachers.deleteLesson(id)
	db.students.deleteLesson(id)
	delete(db.lessons, id)
}

// deleteUser must be called with the write lock held.
func (db *DB) deleteUser(id int64) {
	db.teachers.deleteUser(id)
	db.students.deleteUser(id)
	delete(db.users, id)
}
