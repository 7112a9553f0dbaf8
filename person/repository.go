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

package person

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"

	"github.com/tomoncle/rowkeeper/repository"
)

const (
	insertSQL   = "INSERT INTO people (first_name, last_name, dob) VALUES (?, ?, ?)"
	updateSQL   = "UPDATE people SET first_name = ?, last_name = ?, dob = ?, salary = ? WHERE id = ?"
	deleteSQL   = "DELETE FROM people WHERE id = ?"
	deleteInSQL = "DELETE FROM people WHERE id IN (:ids)"
	countSQL    = "SELECT COUNT(*) FROM people"
	findAllSQL  = "SELECT id, first_name, last_name, dob, salary FROM people"
	findByIDSQL = findAllSQL + " WHERE id = ?"
)

// Mapper binds and scans people for the repository engine.
type Mapper struct{}

var _ repository.Mapper[*Person] = Mapper{}

func (Mapper) InsertSQL() string   { return insertSQL }
func (Mapper) UpdateSQL() string   { return updateSQL }
func (Mapper) DeleteSQL() string   { return deleteSQL }
func (Mapper) DeleteInSQL() string { return deleteInSQL }
func (Mapper) CountSQL() string    { return countSQL }
func (Mapper) FindAllSQL() string  { return findAllSQL }
func (Mapper) FindByIDSQL() string { return findByIDSQL }

func (Mapper) BindInsert(p *Person, b *repository.Binder) error {
	if p == nil {
		return fmt.Errorf("nil person")
	}
	b.Bind(p.FirstName, p.LastName, p.DOB.UTC())
	return nil
}

func (Mapper) BindUpdate(p *Person, b *repository.Binder) error {
	if p == nil {
		return fmt.Errorf("nil person")
	}
	b.Bind(p.FirstName, p.LastName, p.DOB.UTC(), p.Salary)
	return nil
}

func (Mapper) Scan(row repository.RowScanner) (*Person, error) {
	var (
		p   Person
		dob utcTime
	)
	if err := row.Scan(&p.ID, &p.FirstName, &p.LastName, &dob, &p.Salary); err != nil {
		return nil, err
	}
	p.DOB = dob.Time
	return &p, nil
}

// utcTime scans a timestamp column whatever the driver hands back and
// normalizes it to UTC. Zone-less text is read as UTC.
type utcTime struct {
	time.Time
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

var _ sql.Scanner = (*utcTime)(nil)

func (t *utcTime) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		t.Time = v.UTC()
		return nil
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	case nil:
		t.Time = time.Time{}
		return nil
	default:
		return fmt.Errorf("person: cannot scan %T into a timestamp", src)
	}
}

func (t *utcTime) parse(s string) error {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if parsed, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("person: unrecognized timestamp %q", s)
}

// Repository stores people. All CRUD operations come from the embedded
// engine.
type Repository struct {
	*repository.CrudRepository[*Person]
}

// NewRepository builds a people repository on an open bun database.
func NewRepository(db *bun.DB, opts repository.Options) (*Repository, error) {
	crud, err := repository.NewWithBun[*Person](db, Mapper{}, opts)
	if err != nil {
		return nil, fmt.Errorf("people repository: %w", err)
	}
	return &Repository{CrudRepository: crud}, nil
}

// NewRepositoryOn builds a people repository on any connection, such as a
// transaction the caller owns.
func NewRepositoryOn(conn repository.Conn, dialect schema.Dialect, opts repository.Options) (*Repository, error) {
	crud, err := repository.New[*Person](conn, dialect, Mapper{}, opts)
	if err != nil {
		return nil, fmt.Errorf("people repository: %w", err)
	}
	return &Repository{CrudRepository: crud}, nil
}
