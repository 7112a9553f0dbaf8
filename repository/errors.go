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

import "errors"

var (
	// ErrPolicyRequired is returned by New when Options.OnError is unset.
	ErrPolicyRequired = errors.New("error policy must be set to propagate or return_default")

	// ErrNilEntity is returned when an operation is handed a nil entity.
	ErrNilEntity = errors.New("entity is nil")

	// ErrAlreadyPersisted is returned by Save for an entity that already has a key.
	ErrAlreadyPersisted = errors.New("entity already has an identifier")

	// ErrNotPersisted is returned by Update and the deletes for an entity without a key.
	ErrNotPersisted = errors.New("entity has no identifier")

	// ErrPlaceholderMismatch means a statement and its bound values disagree.
	ErrPlaceholderMismatch = errors.New("placeholder count does not match bound values")

	// ErrNonUniqueResult means a lookup by key matched more than one row.
	ErrNonUniqueResult = errors.New("more than one row matched the identifier")

	// ErrMissingIDsClause means the batch delete statement lacks ":ids".
	ErrMissingIDsClause = errors.New(`batch delete statement must contain exactly one ":ids" segment`)

	// ErrNoGeneratedKey means the insert succeeded but no key came back.
	ErrNoGeneratedKey = errors.New("store returned no generated identifier")
)

// OpError wraps a failure of one repository operation.
type OpError struct {
	Op  string
	Err error
}

func (e *OpError) Error() string {
	return "repository " + e.Op + ": " + e.Err.Error()
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// IsContractError reports whether err is a caller or mapper mistake rather
// than a store failure. Contract errors ignore the error policy.
func IsContractError(err error) bool {
	return errors.Is(err, ErrNilEntity) ||
		errors.Is(err, ErrAlreadyPersisted) ||
		errors.Is(err, ErrNotPersisted) ||
		errors.Is(err, ErrPlaceholderMismatch) ||
		errors.Is(err, ErrNonUniqueResult) ||
		errors.Is(err, ErrMissingIDsClause)
}
