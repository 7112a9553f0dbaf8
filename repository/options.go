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
	"fmt"
	"strings"

	"github.com/tomoncle/rowkeeper/database"
	"github.com/tomoncle/rowkeeper/types"
)

// ErrorPolicy decides what FindByID, FindAll, Count, Update, Delete and
// DeleteMany do when the store fails. Save always returns its error.
type ErrorPolicy int

const (
	policyUnset ErrorPolicy = iota
	// Propagate returns store failures as *OpError.
	Propagate
	// ReturnDefault logs store failures and returns the zero result.
	ReturnDefault
)

var _ types.BaseEnum = Propagate

func (p ErrorPolicy) IsValid() bool { return p == Propagate || p == ReturnDefault }

func (p ErrorPolicy) Number() int {
	if !p.IsValid() {
		return types.IllegalValue
	}
	return int(p)
}

func (p ErrorPolicy) Name() string {
	switch p {
	case Propagate:
		return "propagate"
	case ReturnDefault:
		return "return_default"
	default:
		return types.IllegalName
	}
}

func (p ErrorPolicy) String() string { return p.Name() }

func (p ErrorPolicy) Desc() string {
	switch p {
	case Propagate:
		return "return store failures to the caller"
	case ReturnDefault:
		return "log store failures and return an empty result"
	default:
		return types.IllegalDesc
	}
}

// ParseErrorPolicy maps "propagate" or "return_default" to a policy.
func ParseErrorPolicy(s string) (ErrorPolicy, error) {
	if p, ok := types.LookupEnum(s, Propagate, ReturnDefault); ok {
		return p, nil
	}
	return policyUnset, fmt.Errorf("%w: got %q, want one of %s",
		ErrPolicyRequired, s, strings.Join(types.EnumNames(Propagate, ReturnDefault), ", "))
}

// BatchDeleteMode selects how DeleteMany talks to the store. Neither mode
// ever writes key values into the statement text.
type BatchDeleteMode int

const (
	// BatchInClause expands ":ids" into bound placeholders, one statement per
	// MaxBatchSize keys. This is the default.
	BatchInClause BatchDeleteMode = iota
	// BatchPerRow runs the single-row delete once per key inside one
	// transaction when the connection can begin one.
	BatchPerRow
)

var _ types.BaseEnum = BatchInClause

func (m BatchDeleteMode) IsValid() bool { return m == BatchInClause || m == BatchPerRow }

func (m BatchDeleteMode) Number() int {
	if !m.IsValid() {
		return types.IllegalValue
	}
	return int(m)
}

func (m BatchDeleteMode) Name() string {
	switch m {
	case BatchInClause:
		return "in_clause"
	case BatchPerRow:
		return "per_row"
	default:
		return types.IllegalName
	}
}

func (m BatchDeleteMode) String() string { return m.Name() }

func (m BatchDeleteMode) Desc() string {
	switch m {
	case BatchInClause:
		return "one IN (...) statement with bound keys per chunk"
	case BatchPerRow:
		return "one single-row delete per key in a transaction"
	default:
		return types.IllegalDesc
	}
}

// ParseBatchDeleteMode maps "in_clause" (or "") and "per_row" to a mode.
func ParseBatchDeleteMode(s string) (BatchDeleteMode, error) {
	if strings.TrimSpace(s) == "" {
		return BatchInClause, nil
	}
	if m, ok := types.LookupEnum(s, BatchInClause, BatchPerRow); ok {
		return m, nil
	}
	return BatchInClause, fmt.Errorf("unknown batch delete mode %q, want one of %s",
		s, strings.Join(types.EnumNames(BatchInClause, BatchPerRow), ", "))
}

const (
	defaultMaxBatchSize = 500
	defaultKeyColumn    = "id"
)

// Options configures a repository. OnError has no default and must be set
// by whoever assembles the repositories.
type Options struct {
	OnError      ErrorPolicy
	BatchDelete  BatchDeleteMode
	MaxBatchSize int
	// KeyColumn is the generated key column read back with RETURNING on
	// dialects that support it. Defaults to "id".
	KeyColumn string
	Logger    database.Logger
	Observer  StatementObserver
}

// OptionsFromConfig builds Options from the repository section of the
// database configuration.
func OptionsFromConfig(cfg database.RepositoryConfig) (Options, error) {
	policy, err := ParseErrorPolicy(cfg.OnError)
	if err != nil {
		return Options{}, err
	}
	mode, err := ParseBatchDeleteMode(cfg.BatchDelete)
	if err != nil {
		return Options{}, err
	}
	return Options{
		OnError:      policy,
		BatchDelete:  mode,
		MaxBatchSize: cfg.MaxBatchSize,
	}, nil
}

func (o Options) withDefaults() (Options, error) {
	if !o.OnError.IsValid() {
		return o, ErrPolicyRequired
	}
	if !o.BatchDelete.IsValid() {
		return o, fmt.Errorf("invalid batch delete mode %d", o.BatchDelete)
	}
	if o.MaxBatchSize <= 0 {
		o.MaxBatchSize = defaultMaxBatchSize
	}
	if o.KeyColumn == "" {
		o.KeyColumn = defaultKeyColumn
	}
	if o.Logger == nil {
		o.Logger = database.GetLogger()
	}
	return o, nil
}
