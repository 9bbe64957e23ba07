package dummydb

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/trezcool/schoolsaas/core/school"
	"github.com/trezcool/schoolsaas/core/user"
)

type (
	// DB is an in-memory database. Units of work run on a copy of its tables
	// which replaces them on commit.
	DB struct {
		txMu sync.Mutex // one unit of work at a time
		mu   sync.RWMutex
		data *tables
	}

	tables struct {
		schools  map[string]school.School
		classes  map[string]school.Class
		subjects map[string]school.Subject
		students map[string]school.Student
		scores   map[string]school.Score
		users    map[string]user.User
	}

	// executor gives the repositories read & write access to a set of tables.
	executor interface {
		read(fn func(t *tables))
		write(fn func(t *tables) error) error
	}

	// txExecutor works on uncommitted tables owned by a single unit of work.
	txExecutor struct {
		data *tables
	}
)

var (
	_ executor          = (*DB)(nil)
	_ executor          = (*txExecutor)(nil)
	_ school.UnitOfWork = (*DB)(nil)
)

func Open() *DB {
	return &DB{data: newTables()}
}

func newTables() *tables {
	return &tables{
		schools:  make(map[string]school.School),
		classes:  make(map[string]school.Class),
		subjects: make(map[string]school.Subject),
		students: make(map[string]school.Student),
		scores:   make(map[string]school.Score),
		users:    make(map[string]user.User),
	}
}

func (t *tables) clone() *tables {
	c := &tables{
		schools:  make(map[string]school.School, len(t.schools)),
		classes:  make(map[string]school.Class, len(t.classes)),
		subjects: make(map[string]school.Subject, len(t.subjects)),
		students: make(map[string]school.Student, len(t.students)),
		scores:   make(map[string]school.Score, len(t.scores)),
		users:    make(map[string]user.User, len(t.users)),
	}
	for k, v := range t.schools {
		c.schools[k] = v
	}
	for k, v := range t.classes {
		c.classes[k] = v
	}
	for k, v := range t.subjects {
		c.subjects[k] = v
	}
	for k, v := range t.students {
		c.students[k] = v
	}
	for k, v := range t.scores {
		c.scores[k] = v
	}
	for k, v := range t.users {
		v.Roles = append([]string(nil), v.Roles...)
		c.users[k] = v
	}
	return c
}

func newID() string { return uuid.New().String() }

func (db *DB) read(fn func(t *tables)) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	fn(db.data)
}

// write applies fn to a copy of the tables, so a failed write leaves them untouched.
// It waits for the running unit of work, if any: do not write through DB repositories inside RunInTx.
func (db *DB) write(fn func(t *tables) error) error {
	db.txMu.Lock()
	defer db.txMu.Unlock()
	db.mu.Lock()
	defer db.mu.Unlock()
	data := db.data.clone()
	if err := fn(data); err != nil {
		return err
	}
	db.data = data
	return nil
}

func (tx *txExecutor) read(fn func(t *tables)) { fn(tx.data) }

func (tx *txExecutor) write(fn func(t *tables) error) error { return fn(tx.data) }

// RunInTx runs fn on a copy of the tables, which replaces them if fn succeeds.
func (db *DB) RunInTx(ctx context.Context, fn func(ctx context.Context, store school.Store) error) error {
	db.txMu.Lock()
	defer db.txMu.Unlock()

	db.mu.RLock()
	tx := &txExecutor{data: db.data.clone()}
	db.mu.RUnlock()

	if err := fn(ctx, school.Store{Schools: &schoolRepository{exec: tx}, Users: &userRepository{exec: tx}}); err != nil {
		return err
	}

	db.mu.Lock()
	db.data = tx.data
	db.mu.Unlock()
	return nil
}

// Reset empties every table.
func (db *DB) Reset() {
	db.mu.Lock()
	db.data = newTables()
	db.mu.Unlock()
}

// Counts returns the number of rows per table.
func (db *DB) Counts() map[string]int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return map[string]int{
		"schools":  len(db.data.schools),
		"classes":  len(db.data.classes),
		"subjects": len(db.data.subjects),
		"students": len(db.data.students),
		"scores":   len(db.data.scores),
		"users":    len(db.data.users),
	}
}

// sortableTime formats times so that their string order is their chronological order.
const sortableTime = "2006-01-02T15:04:05.000000000"
