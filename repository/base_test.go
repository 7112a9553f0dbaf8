/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"github.com/tomoncle/rowkeeper/database"
)

type note struct {
	ID   int64
	Body string
}

func (n *note) EntityID() (int64, bool) { return n.ID, n.ID > 0 }
func (n *note) SetEntityID(id int64)    { n.ID = id }

// noteMapper uses the default notes statements unless a field overrides one.
type noteMapper struct {
	insert   string
	findByID string
	update   string
	deleteIn string
	count    string
}

func or(s, def string) string {
	if s != "" {
		return s
	}
	return def
}

func (m noteMapper) InsertSQL() string {
	return or(m.insert, "INSERT INTO notes (body) VALUES (?)")
}
func (m noteMapper) UpdateSQL() string {
	return or(m.update, "UPDATE notes SET body = ? WHERE id = ?")
}
func (m noteMapper) DeleteSQL() string { return "DELETE FROM notes WHERE id = ?" }
func (m noteMapper) DeleteInSQL() string {
	return or(m.deleteIn, "DELETE FROM notes WHERE id IN (:ids)")
}
func (m noteMapper) CountSQL() string   { return or(m.count, "SELECT COUNT(*) FROM notes") }
func (m noteMapper) FindAllSQL() string { return "SELECT id, body FROM notes ORDER BY id" }
func (m noteMapper) FindByIDSQL() string {
	return or(m.findByID, "SELECT id, body FROM notes WHERE id = ?")
}

func (m noteMapper) BindInsert(n *note, b *Binder) error {
	b.Bind(n.Body)
	return nil
}

func (m noteMapper) BindUpdate(n *note, b *Binder) error {
	b.Bind(n.Body)
	return nil
}

func (m noteMapper) Scan(row RowScanner) (*note, error) {
	var n note
	if err := row.Scan(&n.ID, &n.Body); err != nil {
		return nil, err
	}
	return &n, nil
}

type recordingLogger struct {
	mu     sync.Mutex
	errors []string
}

func (l *recordingLogger) SetLevel(database.LogLevel)              {}
func (l *recordingLogger) Debug(msg string, fields ...interface{}) {}
func (l *recordingLogger) Info(msg string, fields ...interface{})  {}
func (l *recordingLogger) Warn(msg string, fields ...interface{})  {}
func (l *recordingLogger) Error(msg string, fields ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, fmt.Sprint(append([]interface{}{msg}, fields...)...))
}

func (l *recordingLogger) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.errors)
}

type recordingObserver struct {
	queries []string
}

func (o *recordingObserver) ObserveStatement(_ context.Context, query string, _ time.Time, _ error) {
	o.queries = append(o.queries, query)
}

func (o *recordingObserver) deletes() []string {
	var out []string
	for _, q := range o.queries {
		if strings.HasPrefix(q, "DELETE") {
			out = append(out, q)
		}
	}
	return out
}

func newNotesDB(t *testing.T) *bun.DB {
	t.Helper()
	sqldb, err := sql.Open(sqliteshim.ShimName, filepath.Join(t.TempDir(), "notes.db"))
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)
	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.ExecContext(context.Background(),
		"CREATE TABLE notes (id INTEGER PRIMARY KEY AUTOINCREMENT, body TEXT NOT NULL)")
	require.NoError(t, err)
	return db
}

func newNotes(t *testing.T, db *bun.DB, m noteMapper, opts Options) *CrudRepository[*note] {
	t.Helper()
	repo, err := NewWithBun[*note](db, m, opts)
	require.NoError(t, err)
	return repo
}

func saveNotes(t *testing.T, repo *CrudRepository[*note], bodies ...string) []*note {
	t.Helper()
	out := make([]*note, 0, len(bodies))
	for _, body := range bodies {
		n, err := repo.Save(context.Background(), &note{Body: body})
		require.NoError(t, err)
		out = append(out, n)
	}
	return out
}

func TestNewRequiresPolicy(t *testing.T) {
	db := newNotesDB(t)
	_, err := NewWithBun[*note](db, noteMapper{}, Options{})
	assert.ErrorIs(t, err, ErrPolicyRequired)

	_, err = New[*note](nil, db.Dialect(), noteMapper{}, Options{OnError: Propagate})
	assert.Error(t, err)
}

func TestNewRejectsMalformedStatements(t *testing.T) {
	db := newNotesDB(t)
	cases := []struct {
		name   string
		mapper noteMapper
		want   error
	}{
		{"findById without key", noteMapper{findByID: "SELECT id, body FROM notes"}, ErrPlaceholderMismatch},
		{"findById with two keys", noteMapper{findByID: "SELECT id, body FROM notes WHERE id = ? OR id = ?"}, ErrPlaceholderMismatch},
		{"deleteIn without segment", noteMapper{deleteIn: "DELETE FROM notes WHERE id IN (?)"}, ErrPlaceholderMismatch},
		{"deleteIn literal segment", noteMapper{deleteIn: "DELETE FROM notes WHERE body = ':ids'"}, ErrMissingIDsClause},
		{"update without key", noteMapper{update: "UPDATE notes SET body = 'x'"}, ErrPlaceholderMismatch},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewWithBun[*note](db, tc.mapper, Options{OnError: Propagate})
			assert.ErrorIs(t, err, tc.want)
		})
	}

	_, err := NewWithBun[*note](db, noteMapper{count: "   "}, Options{OnError: Propagate})
	assert.Error(t, err)
}

func TestCrudLifecycle(t *testing.T) {
	ctx := context.Background()
	db := newNotesDB(t)
	repo := newNotes(t, db, noteMapper{}, Options{OnError: Propagate})
	assert.Equal(t, Propagate, repo.Policy())
	assert.Equal(t, db.Dialect(), repo.Dialect())

	all, err := repo.FindAll(ctx)
	require.NoError(t, err)
	assert.NotNil(t, all)
	assert.Empty(t, all)

	n := &note{Body: "first"}
	saved, err := repo.Save(ctx, n)
	require.NoError(t, err)
	assert.Same(t, n, saved)
	assert.Positive(t, n.ID)

	second := saveNotes(t, repo, "second")[0]
	assert.NotEqual(t, n.ID, second.ID)

	got, ok, err := repo.FindByID(ctx, n.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "first", got.Body)

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	all, err = repo.FindAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, []string{"first", "second"}, []string{all[0].Body, all[1].Body})

	n.Body = "edited"
	affected, err := repo.Update(ctx, n)
	require.NoError(t, err)
	assert.EqualValues(t, 1, affected)
	got, _, err = repo.FindByID(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, "edited", got.Body)
	assert.Equal(t, n.ID, got.ID)

	affected, err = repo.Delete(ctx, n)
	require.NoError(t, err)
	assert.EqualValues(t, 1, affected)
	assert.Positive(t, n.ID, "delete leaves the in-memory key alone")

	_, ok, err = repo.FindByID(ctx, n.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	count, err = repo.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	affected, err = repo.Delete(ctx, n)
	require.NoError(t, err)
	assert.Zero(t, affected)
}

func TestContractErrors(t *testing.T) {
	ctx := context.Background()
	db := newNotesDB(t)
	repo := newNotes(t, db, noteMapper{}, Options{OnError: ReturnDefault})

	persisted := saveNotes(t, repo, "kept")[0]
	_, err := repo.Save(ctx, persisted)
	assert.ErrorIs(t, err, ErrAlreadyPersisted)

	_, err = repo.Update(ctx, &note{Body: "transient"})
	assert.ErrorIs(t, err, ErrNotPersisted)

	_, err = repo.Delete(ctx, &note{})
	assert.ErrorIs(t, err, ErrNotPersisted)

	_, err = repo.DeleteMany(ctx, persisted, &note{})
	assert.ErrorIs(t, err, ErrNotPersisted)

	var opErr *OpError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "deleteMany", opErr.Op)
	assert.True(t, IsContractError(err))
}

func TestNilEntityIsRejected(t *testing.T) {
	ctx := context.Background()
	db := newNotesDB(t)
	for _, policy := range []ErrorPolicy{Propagate, ReturnDefault} {
		t.Run(policy.Name(), func(t *testing.T) {
			repo := newNotes(t, db, noteMapper{}, Options{OnError: policy, Logger: &recordingLogger{}})
			saved := saveNotes(t, repo, "kept")

			_, err := repo.Save(ctx, nil)
			assert.ErrorIs(t, err, ErrNilEntity)

			_, err = repo.Update(ctx, nil)
			assert.ErrorIs(t, err, ErrNilEntity)

			_, err = repo.Delete(ctx, nil)
			assert.ErrorIs(t, err, ErrNilEntity)

			_, err = repo.DeleteMany(ctx, saved[0], nil)
			assert.ErrorIs(t, err, ErrNilEntity)
			assert.True(t, IsContractError(err))

			_, ok, err := repo.FindByID(ctx, saved[0].ID)
			require.NoError(t, err)
			assert.True(t, ok, "a rejected batch deletes nothing")
		})
	}
}

func TestSaveWithLastInsertID(t *testing.T) {
	ctx := context.Background()
	db := newNotesDB(t)
	observer := &recordingObserver{}
	// The mysql dialect has no INSERT ... RETURNING, so keys come from the result.
	repo, err := New[*note](db.DB, mysqldialect.New(), noteMapper{}, Options{OnError: Propagate, Observer: observer})
	require.NoError(t, err)

	saved := saveNotes(t, repo, "a", "b")
	assert.EqualValues(t, 1, saved[0].ID)
	assert.EqualValues(t, 2, saved[1].ID)
	assert.Equal(t, "INSERT INTO notes (body) VALUES (?)", observer.queries[0])

	got, ok, err := repo.FindByID(ctx, saved[1].ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "b", got.Body)
}

func TestSaveWithoutGeneratedKey(t *testing.T) {
	// The insert matches no rows, so the store hands back no key.
	m := noteMapper{insert: "INSERT INTO notes (body) SELECT ? WHERE 1 = 0"}
	cases := map[string]func(db *bun.DB) (*CrudRepository[*note], error){
		"last insert id": func(db *bun.DB) (*CrudRepository[*note], error) {
			return New[*note](db.DB, mysqldialect.New(), m, Options{OnError: ReturnDefault})
		},
		"returning": func(db *bun.DB) (*CrudRepository[*note], error) {
			return NewWithBun[*note](db, m, Options{OnError: ReturnDefault})
		},
	}
	for name, build := range cases {
		t.Run(name, func(t *testing.T) {
			repo, err := build(newNotesDB(t))
			require.NoError(t, err)

			n := &note{Body: "ghost"}
			_, err = repo.Save(context.Background(), n)
			assert.ErrorIs(t, err, ErrNoGeneratedKey)
			assert.Zero(t, n.ID)
		})
	}
}

func TestSaveReturningDetection(t *testing.T) {
	ctx := context.Background()
	// RETURNING inside a literal is data, not the clause.
	literal := newNotes(t, newNotesDB(t),
		noteMapper{insert: "INSERT INTO notes (body) VALUES (? || ' returning')"}, Options{OnError: Propagate})
	n, err := literal.Save(ctx, &note{Body: "b"})
	require.NoError(t, err)
	require.Positive(t, n.ID)
	got, _, err := literal.FindByID(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, "b returning", got.Body)
}

func TestCancelledContextIsNotSwallowed(t *testing.T) {
	db := newNotesDB(t)
	logger := &recordingLogger{}
	repo := newNotes(t, db, noteMapper{}, Options{OnError: ReturnDefault, Logger: logger})
	saved := saveNotes(t, repo, "a")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, ok, err := repo.FindByID(ctx, saved[0].ID)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, ok)

	_, err = repo.Count(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	var opErr *OpError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "count", opErr.Op)

	_, err = repo.DeleteMany(ctx, saved...)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, logger.count())
}

func TestFindByIDMissingIsAbsent(t *testing.T) {
	db := newNotesDB(t)
	repo := newNotes(t, db, noteMapper{}, Options{OnError: Propagate})

	got, ok, err := repo.FindByID(context.Background(), 4242)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, got)
}

func TestFindByIDNonUniqueAlwaysPropagates(t *testing.T) {
	db := newNotesDB(t)
	repo := newNotes(t, db, noteMapper{findByID: "SELECT id, body FROM notes WHERE id = ? OR 1 = 1"},
		Options{OnError: ReturnDefault, Logger: &recordingLogger{}})
	saved := saveNotes(t, repo, "a", "b")

	_, ok, err := repo.FindByID(context.Background(), saved[0].ID)
	assert.ErrorIs(t, err, ErrNonUniqueResult)
	assert.False(t, ok)
}

func TestUpdatePlaceholderMismatch(t *testing.T) {
	db := newNotesDB(t)
	repo := newNotes(t, db, noteMapper{update: "UPDATE notes SET body = ?, body = ? WHERE id = ?"},
		Options{OnError: ReturnDefault, Logger: &recordingLogger{}})
	n := saveNotes(t, repo, "a")[0]

	_, err := repo.Update(context.Background(), n)
	assert.ErrorIs(t, err, ErrPlaceholderMismatch)
}

func TestReturnDefaultSwallowsStoreFailures(t *testing.T) {
	ctx := context.Background()
	db := newNotesDB(t)
	logger := &recordingLogger{}
	repo := newNotes(t, db, noteMapper{}, Options{OnError: ReturnDefault, Logger: logger})
	saved := saveNotes(t, repo, "a", "b")

	_, err := db.ExecContext(ctx, "DROP TABLE notes")
	require.NoError(t, err)

	got, ok, err := repo.FindByID(ctx, saved[0].ID)
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, got)

	all, err := repo.FindAll(ctx)
	assert.NoError(t, err)
	assert.NotNil(t, all)
	assert.Empty(t, all)

	count, err := repo.Count(ctx)
	assert.NoError(t, err)
	assert.Zero(t, count)

	affected, err := repo.Update(ctx, saved[0])
	assert.NoError(t, err)
	assert.Zero(t, affected)

	affected, err = repo.Delete(ctx, saved[0])
	assert.NoError(t, err)
	assert.Zero(t, affected)

	affected, err = repo.DeleteMany(ctx, saved...)
	assert.NoError(t, err)
	assert.Zero(t, affected)

	assert.Equal(t, 6, logger.count())

	_, err = repo.Save(ctx, &note{Body: "lost"})
	require.Error(t, err, "save fails loudly under every policy")
	var opErr *OpError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "save", opErr.Op)
}

func TestPropagateReturnsOpError(t *testing.T) {
	ctx := context.Background()
	db := newNotesDB(t)
	repo := newNotes(t, db, noteMapper{}, Options{OnError: Propagate})
	saved := saveNotes(t, repo, "a")

	_, err := db.ExecContext(ctx, "DROP TABLE notes")
	require.NoError(t, err)

	ops := map[string]func() error{
		"findById": func() error { _, _, err := repo.FindByID(ctx, saved[0].ID); return err },
		"findAll":  func() error { _, err := repo.FindAll(ctx); return err },
		"count":    func() error { _, err := repo.Count(ctx); return err },
		"update":   func() error { _, err := repo.Update(ctx, saved[0]); return err },
		"delete":   func() error { _, err := repo.Delete(ctx, saved[0]); return err },
		"save":     func() error { _, err := repo.Save(ctx, &note{Body: "x"}); return err },
	}
	for op, call := range ops {
		err := call()
		var opErr *OpError
		require.ErrorAs(t, err, &opErr, op)
		assert.Equal(t, op, opErr.Op)
		assert.False(t, IsContractError(err))
		assert.Contains(t, err.Error(), "repository "+op)
	}
}

func TestDeleteManyInClauseChunks(t *testing.T) {
	ctx := context.Background()
	db := newNotesDB(t)
	observer := &recordingObserver{}
	repo := newNotes(t, db, noteMapper{}, Options{OnError: Propagate, MaxBatchSize: 2, Observer: observer})
	saved := saveNotes(t, repo, "a", "b", "c", "d", "e")

	affected, err := repo.DeleteMany(ctx, saved[0], saved[2], saved[4])
	require.NoError(t, err)
	assert.EqualValues(t, 3, affected)

	assert.Equal(t, []string{
		"DELETE FROM notes WHERE id IN (?, ?)",
		"DELETE FROM notes WHERE id IN (?)",
	}, observer.deletes())

	left, err := repo.FindAll(ctx)
	require.NoError(t, err)
	require.Len(t, left, 2)
	assert.Equal(t, []int64{saved[1].ID, saved[3].ID}, []int64{left[0].ID, left[1].ID})
}

func TestDeleteManyPerRow(t *testing.T) {
	ctx := context.Background()
	db := newNotesDB(t)
	observer := &recordingObserver{}
	repo := newNotes(t, db, noteMapper{}, Options{OnError: Propagate, BatchDelete: BatchPerRow, Observer: observer})
	saved := saveNotes(t, repo, "a", "b", "c")

	// Duplicates collapse to one delete per key.
	affected, err := repo.DeleteMany(ctx, saved[0], saved[1], saved[0])
	require.NoError(t, err)
	assert.EqualValues(t, 2, affected)
	assert.Len(t, observer.deletes(), 2)
	for _, q := range observer.deletes() {
		assert.Equal(t, "DELETE FROM notes WHERE id = ?", q)
	}

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	affected, err = repo.DeleteMany(ctx)
	require.NoError(t, err)
	assert.Zero(t, affected)
}

func TestRepositoryOnCallerTransaction(t *testing.T) {
	ctx := context.Background()
	db := newNotesDB(t)
	seed := newNotes(t, db, noteMapper{}, Options{OnError: Propagate})
	saved := saveNotes(t, seed, "a", "b")

	tx, err := db.DB.BeginTx(ctx, nil)
	require.NoError(t, err)
	inTx, err := New[*note](tx, db.Dialect(), noteMapper{}, Options{OnError: Propagate, BatchDelete: BatchPerRow})
	require.NoError(t, err)

	affected, err := inTx.DeleteMany(ctx, saved...)
	require.NoError(t, err)
	assert.EqualValues(t, 2, affected)
	count, err := inTx.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
	require.NoError(t, tx.Rollback())

	count, err = seed.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)
}

func TestOpErrorUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := error(&OpError{Op: "count", Err: cause})
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "repository count: boom", err.Error())
}
