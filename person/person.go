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

// Package person stores people through the generic repository engine.
package person

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"

	"github.com/tomoncle/rowkeeper/database"
)

// Person is a row of the people table. ID is zero until the person is saved.
// Salary is maintained server side: Save never writes it, Update does.
type Person struct {
	bun.BaseModel `bun:"table:people,alias:p"`

	ID        int64               `bun:"id,pk,autoincrement" json:"id"`
	FirstName string              `bun:"first_name,notnull" json:"first_name"`
	LastName  string              `bun:"last_name,notnull" json:"last_name"`
	DOB       time.Time           `bun:"dob,notnull" json:"dob"`
	Salary    decimal.NullDecimal `bun:"salary,type:decimal(12,2)" json:"salary"`
}

// New returns a transient person.
func New(firstName, lastName string, dob time.Time) *Person {
	return &Person{FirstName: firstName, LastName: lastName, DOB: dob.UTC()}
}

func (p *Person) EntityID() (int64, bool) {
	if p == nil {
		return 0, false
	}
	return p.ID, p.ID > 0
}

func (p *Person) SetEntityID(id int64) {
	p.ID = id
}

// SetSalary sets a non-null salary.
func (p *Person) SetSalary(d decimal.Decimal) {
	p.Salary = decimal.NewNullDecimal(d)
}

func (p *Person) String() string {
	salary := "-"
	if p.Salary.Valid {
		salary = p.Salary.Decimal.StringFixed(2)
	}
	return fmt.Sprintf("Person{id=%d, name=%s %s, dob=%s, salary=%s}",
		p.ID, p.FirstName, p.LastName, p.DOB.UTC().Format(time.RFC3339), salary)
}

// Model is the registry entry the database package creates the people
// table from.
func Model() database.SQLModel {
	return database.NewModelAdapter((*Person)(nil), 10)
}
