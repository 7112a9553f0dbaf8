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
	"reflect"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"github.com/uptrace/bun/dialect/feature"
	"github.com/uptrace/bun/schema"

	"github.com/tomoncle/rowkeeper/database"
)

// CrudRepository implements Repository for any entity described by a Mapper.
type CrudRepository[E Entity] struct {
	conn    Conn
	dialect schema.Dialect
	mapper  Mapper[E]
	opts    Options
}

var _ Repository[Entity] = (*CrudRepository[Entity])(nil)

// New builds a repository over an open connection. The statement texts of
// mapper are checked once here so that malformed mappers fail at startup.
func New[E Entity](conn Conn, dialect schema.Dialect, mapper Mapper[E], opts Options) (*CrudRepository[E], error) {
	if conn == nil {
		return nil, errors.New("repository: nil connection")
	}
	if dialect == nil {
		return nil, errors.New("repository: nil dialect")
	}
	if mapper == nil {
		return nil, errors.New("repository: nil mapper")
	}
	opts, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}
	if err := validateMapper[E](dialect.Name(), mapper); err != nil {
		return nil, err
	}
	return &CrudRepository[E]{conn: conn, dialect: dialect, mapper: mapper, opts: opts}, nil
}

// NewWithBun builds a repository on the pool and dialect of a bun database.
// Statements go straight to the underlying *sql.DB.
func NewWithBun[E Entity](db *bun.DB, mapper Mapper[E], opts Options) (*CrudRepository[E], error) {
	if db == nil {
		return nil, errors.New("repository: nil bun database")
	}
	return New[E](db.DB, db.Dialect(), mapper, opts)
}

func validateMapper[E Entity](name dialect.Name, m Mapper[E]) error {
	checks := []struct {
		name  string
		query string
		want  int
	}{
		{"count", m.CountSQL(), 0},
		{"findAll", m.FindAllSQL(), 0},
		{"findById", m.FindByIDSQL(), 1},
		{"delete", m.DeleteSQL(), 1},
		{"deleteIn", m.DeleteInSQL(), 0},
	}
	for _, c := range checks {
		if strings.TrimSpace(c.query) == "" {
			return fmt.Errorf("repository: empty %s statement", c.name)
		}
		if got := countPlaceholders(name, c.query); got != c.want {
			return fmt.Errorf("repository: %s statement has %d placeholders, want %d: %w",
				c.name, got, c.want, ErrPlaceholderMismatch)
		}
	}
	if len(idsSegmentOffsets(name, m.DeleteInSQL())) != 1 {
		return ErrMissingIDsClause
	}
	if strings.TrimSpace(m.InsertSQL()) == "" {
		return errors.New("repository: empty insert statement")
	}
	if strings.TrimSpace(m.UpdateSQL()) == "" {
		return errors.New("repository: empty update statement")
	}
	if countPlaceholders(name, m.UpdateSQL()) < 1 {
		return fmt.Errorf("repository: update statement has no key placeholder: %w", ErrPlaceholderMismatch)
	}
	return nil
}

func (r *CrudRepository[E]) Dialect() schema.Dialect { return r.dialect }

func (r *CrudRepository[E]) Policy() ErrorPolicy { return r.opts.OnError }

func (r *CrudRepository[E]) Save(ctx context.Context, entity E) (E, error) {
	if isNil(entity) {
		return entity, &OpError{Op: "save", Err: ErrNilEntity}
	}
	if _, ok := entity.EntityID(); ok {
		return entity, &OpError{Op: "save", Err: ErrAlreadyPersisted}
	}
	b := NewBinder()
	if err := r.mapper.BindInsert(entity, b); err != nil {
		return entity, &OpError{Op: "save", Err: fmt.Errorf("bind insert: %w", err)}
	}
	query := r.mapper.InsertSQL()
	if got := countPlaceholders(r.dialect.Name(), query); got != b.Len() {
		return entity, &OpError{Op: "save", Err: fmt.Errorf("%w: statement has %d, bound %d",
			ErrPlaceholderMismatch, got, b.Len())}
	}

	var id int64
	var err error
	if r.returning(query) {
		query = strings.TrimRight(strings.TrimSpace(query), ";") + " RETURNING " + r.opts.KeyColumn
		found := false
		err = r.query(ctx, r.conn, query, b.Args(), func(rows *sql.Rows) error {
			if found {
				return nil
			}
			found = true
			return rows.Scan(&id)
		})
		if err == nil && !found {
			err = ErrNoGeneratedKey
		}
	} else {
		var res sql.Result
		res, err = r.exec(ctx, r.conn, query, b.Args())
		if err == nil {
			id, err = res.LastInsertId()
		}
	}
	if err != nil {
		return entity, &OpError{Op: "save", Err: err}
	}
	if id <= 0 {
		return entity, &OpError{Op: "save", Err: ErrNoGeneratedKey}
	}
	entity.SetEntityID(id)
	return entity, nil
}

func (r *CrudRepository[E]) returning(query string) bool {
	if !r.dialect.Features().Has(feature.InsertReturning) {
		return false
	}
	return !hasKeyword(r.dialect.Name(), query, "RETURNING")
}

// isNil reports whether entity is a nil interface or a nil pointer.
func isNil(entity any) bool {
	if entity == nil {
		return true
	}
	v := reflect.ValueOf(entity)
	switch v.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return v.IsNil()
	}
	return false
}

func (r *CrudRepository[E]) FindByID(ctx context.Context, id int64) (E, bool, error) {
	var (
		zero   E
		entity E
		found  bool
	)
	err := r.query(ctx, r.conn, r.mapper.FindByIDSQL(), []any{id}, func(rows *sql.Rows) error {
		if found {
			return ErrNonUniqueResult
		}
		e, err := r.mapper.Scan(rows)
		if err != nil {
			return err
		}
		entity, found = e, true
		return nil
	})
	if err != nil {
		return zero, false, r.degrade(ctx, "findById", err)
	}
	return entity, found, nil
}

func (r *CrudRepository[E]) FindAll(ctx context.Context) ([]E, error) {
	entities := make([]E, 0)
	err := r.query(ctx, r.conn, r.mapper.FindAllSQL(), nil, func(rows *sql.Rows) error {
		e, err := r.mapper.Scan(rows)
		if err != nil {
			return err
		}
		entities = append(entities, e)
		return nil
	})
	if err != nil {
		return make([]E, 0), r.degrade(ctx, "findAll", err)
	}
	return entities, nil
}

func (r *CrudRepository[E]) Count(ctx context.Context) (int64, error) {
	var n sql.NullInt64
	err := r.query(ctx, r.conn, r.mapper.CountSQL(), nil, func(rows *sql.Rows) error {
		return rows.Scan(&n)
	})
	if err != nil {
		return 0, r.degrade(ctx, "count", err)
	}
	return n.Int64, nil
}

func (r *CrudRepository[E]) Update(ctx context.Context, entity E) (int64, error) {
	if isNil(entity) {
		return 0, &OpError{Op: "update", Err: ErrNilEntity}
	}
	id, ok := entity.EntityID()
	if !ok {
		return 0, &OpError{Op: "update", Err: ErrNotPersisted}
	}
	b := NewBinder()
	if err := r.mapper.BindUpdate(entity, b); err != nil {
		return 0, &OpError{Op: "update", Err: fmt.Errorf("bind update: %w", err)}
	}
	b.bindKey(id)
	query := r.mapper.UpdateSQL()
	if got := countPlaceholders(r.dialect.Name(), query); got != b.Len() {
		return 0, &OpError{Op: "update", Err: fmt.Errorf("%w: statement has %d, bound %d values and the key",
			ErrPlaceholderMismatch, got, b.Values())}
	}
	res, err := r.exec(ctx, r.conn, query, b.Args())
	if err != nil {
		return 0, r.degrade(ctx, "update", err)
	}
	return r.affected(ctx, "update", res)
}

func (r *CrudRepository[E]) Delete(ctx context.Context, entity E) (int64, error) {
	if isNil(entity) {
		return 0, &OpError{Op: "delete", Err: ErrNilEntity}
	}
	id, ok := entity.EntityID()
	if !ok {
		return 0, &OpError{Op: "delete", Err: ErrNotPersisted}
	}
	res, err := r.exec(ctx, r.conn, r.mapper.DeleteSQL(), []any{id})
	if err != nil {
		return 0, r.degrade(ctx, "delete", err)
	}
	return r.affected(ctx, "delete", res)
}

func (r *CrudRepository[E]) DeleteMany(ctx context.Context, entities ...E) (int64, error) {
	if len(entities) == 0 {
		return 0, nil
	}
	ids := make([]int64, 0, len(entities))
	seen := make(map[int64]struct{}, len(entities))
	for _, e := range entities {
		if isNil(e) {
			return 0, &OpError{Op: "deleteMany", Err: ErrNilEntity}
		}
		id, ok := e.EntityID()
		if !ok {
			return 0, &OpError{Op: "deleteMany", Err: ErrNotPersisted}
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	var (
		total int64
		err   error
	)
	switch r.opts.BatchDelete {
	case BatchPerRow:
		total, err = r.deletePerRow(ctx, ids)
	default:
		total, err = r.deleteInClause(ctx, ids)
	}
	if err != nil {
		return 0, r.degrade(ctx, "deleteMany", err)
	}
	return total, nil
}

func (r *CrudRepository[E]) deleteInClause(ctx context.Context, ids []int64) (int64, error) {
	chunks := chunkIDs(ids, r.opts.MaxBatchSize)
	run := func(conn Conn) (int64, error) {
		var total int64
		for _, chunk := range chunks {
			query, err := expandIDs(r.dialect.Name(), r.mapper.DeleteInSQL(), len(chunk))
			if err != nil {
				return 0, err
			}
			args := make([]any, len(chunk))
			for i, id := range chunk {
				args[i] = id
			}
			res, err := r.exec(ctx, conn, query, args)
			if err != nil {
				return 0, err
			}
			n, err := res.RowsAffected()
			if err != nil {
				return 0, err
			}
			total += n
		}
		return total, nil
	}
	if len(chunks) == 1 {
		return run(r.conn)
	}
	return r.inTx(ctx, run)
}

func (r *CrudRepository[E]) deletePerRow(ctx context.Context, ids []int64) (int64, error) {
	return r.inTx(ctx, func(conn Conn) (int64, error) {
		var total int64
		for _, id := range ids {
			res, err := r.exec(ctx, conn, r.mapper.DeleteSQL(), []any{id})
			if err != nil {
				return 0, err
			}
			n, err := res.RowsAffected()
			if err != nil {
				return 0, err
			}
			total += n
		}
		return total, nil
	})
}

func chunkIDs(ids []int64, size int) [][]int64 {
	if size <= 0 {
		size = defaultMaxBatchSize
	}
	chunks := make([][]int64, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}

// inTx runs fn inside a transaction when the connection can begin one, and
// directly on the connection otherwise.
func (r *CrudRepository[E]) inTx(ctx context.Context, fn func(Conn) (int64, error)) (n int64, err error) {
	beginner, ok := r.conn.(TxBeginner)
	if !ok {
		return fn(r.conn)
	}
	tx, err := beginner.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	n, err = fn(tx)
	if err != nil {
		return 0, err
	}
	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}
	return n, nil
}

func (r *CrudRepository[E]) prepare(ctx context.Context, conn Conn, query string) (*sql.Stmt, string, error) {
	query = rebind(r.dialect.Name(), query)
	stmt, err := conn.PrepareContext(ctx, query)
	if err != nil {
		return nil, query, fmt.Errorf("prepare: %w", err)
	}
	return stmt, query, nil
}

func (r *CrudRepository[E]) exec(ctx context.Context, conn Conn, query string, args []any) (res sql.Result, err error) {
	start := time.Now()
	stmt, native, err := r.prepare(ctx, conn, query)
	defer func() { r.observe(ctx, native, start, err) }()
	if err != nil {
		return nil, err
	}
	defer stmt.Close()
	return stmt.ExecContext(ctx, args...)
}

// query runs a statement and calls each once per row. Statement and rows are
// closed before it returns.
func (r *CrudRepository[E]) query(ctx context.Context, conn Conn, query string, args []any, each func(*sql.Rows) error) (err error) {
	start := time.Now()
	stmt, native, err := r.prepare(ctx, conn, query)
	defer func() { r.observe(ctx, native, start, err) }()
	if err != nil {
		return err
	}
	defer stmt.Close()

	rows, err := stmt.QueryContext(ctx, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		if err = each(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (r *CrudRepository[E]) observe(ctx context.Context, query string, start time.Time, err error) {
	if r.opts.Observer != nil {
		r.opts.Observer.ObserveStatement(ctx, query, start, err)
	}
}

func (r *CrudRepository[E]) affected(ctx context.Context, op string, res sql.Result) (int64, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, r.degrade(ctx, op, err)
	}
	return n, nil
}

// degrade applies the error policy to a failed operation. Contract errors,
// cancellation of the caller's context and the Propagate policy return err
// wrapped; ReturnDefault logs and swallows everything else.
func (r *CrudRepository[E]) degrade(ctx context.Context, op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &OpError{Op: op, Err: err}
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return &OpError{Op: op, Err: fmt.Errorf("%w: %v", ctxErr, err)}
	}
	if IsContractError(err) || r.opts.OnError != ReturnDefault {
		return &OpError{Op: op, Err: err}
	}
	fields := []interface{}{"op", op, "error", err}
	if class := database.ClassifyError(err); class != "" {
		fields = append(fields, "class", class)
	}
	r.opts.Logger.Error("repository operation failed, returning default", fields...)
	return nil
}
