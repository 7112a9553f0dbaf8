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
	"time"

	"github.com/uptrace/bun/schema"
)

// Entity is anything the engine can persist under a store-generated key.
//
// EntityID reports ok=false while the entity is transient. SetEntityID is
// called by the engine exactly once, right after a successful insert.
// Deleting a row does not clear the key held by the in-memory entity.
type Entity interface {
	EntityID() (id int64, ok bool)
	SetEntityID(id int64)
}

// Conn is the already-open handle statements are prepared on. *sql.DB,
// *sql.Conn and *sql.Tx all satisfy it. Its lifecycle belongs to the caller.
type Conn interface {
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

// TxBeginner is implemented by connections that can start a transaction.
// Multi-statement batch deletes run inside one when available.
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// RowScanner is the current row of a result set.
type RowScanner interface {
	Scan(dest ...any) error
}

// Mapper supplies everything entity specific. Statement texts use '?'
// placeholders; the engine rebinds them for the connection's dialect.
//
//   - FindByIDSQL and DeleteSQL take exactly one placeholder, the key.
//   - UpdateSQL takes the values bound by BindUpdate followed by one final
//     placeholder for the key, which the engine binds itself.
//   - DeleteInSQL contains the segment ":ids", which the engine replaces
//     with one bound placeholder per key.
type Mapper[E Entity] interface {
	InsertSQL() string
	UpdateSQL() string
	DeleteSQL() string
	DeleteInSQL() string
	CountSQL() string
	FindAllSQL() string
	FindByIDSQL() string

	BindInsert(entity E, b *Binder) error
	BindUpdate(entity E, b *Binder) error
	Scan(row RowScanner) (E, error)
}

// StatementObserver is told about every statement a repository executes.
type StatementObserver interface {
	ObserveStatement(ctx context.Context, query string, start time.Time, err error)
}

// Repository is the CRUD surface shared by every entity repository.
//
// A Repository is not safe for concurrent use: it assumes one logical caller
// per connection at a time.
type Repository[E Entity] interface {
	// Save inserts a transient entity and assigns the generated key to it.
	// Failures are always returned.
	Save(ctx context.Context, entity E) (E, error)

	// FindByID returns the entity with the given key; ok is false when no
	// row matches. More than one matching row is an error.
	FindByID(ctx context.Context, id int64) (entity E, ok bool, err error)

	// FindAll returns every entity in result-set order.
	FindAll(ctx context.Context) ([]E, error)

	// Count returns the number of stored entities.
	Count(ctx context.Context) (int64, error)

	// Update rewrites the mutable columns of a persisted entity.
	Update(ctx context.Context, entity E) (int64, error)

	// Delete removes the row of a persisted entity.
	Delete(ctx context.Context, entity E) (int64, error)

	// DeleteMany removes the rows of all given entities.
	DeleteMany(ctx context.Context, entities ...E) (int64, error)

	Dialect() schema.Dialect
	Policy() ErrorPolicy
}
