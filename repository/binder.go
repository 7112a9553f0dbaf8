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

// Binder collects positional statement arguments in placeholder order.
// Mappers append values with Bind; for updates the engine appends the key
// after the mapper is done, so the key is always the last argument.
type Binder struct {
	args   []any
	values int
	keyed  bool
}

// NewBinder returns an empty Binder.
func NewBinder() *Binder {
	return &Binder{args: make([]any, 0, 8)}
}

// Bind appends values in order.
func (b *Binder) Bind(values ...any) *Binder {
	b.args = append(b.args, values...)
	b.values += len(values)
	return b
}

// Len is the number of arguments bound so far, key included.
func (b *Binder) Len() int { return len(b.args) }

// Values is the number of arguments bound by the mapper.
func (b *Binder) Values() int { return b.values }

// Args returns a copy of the bound arguments.
func (b *Binder) Args() []any {
	out := make([]any, len(b.args))
	copy(out, b.args)
	return out
}

func (b *Binder) bindKey(id int64) {
	if b.keyed {
		panic("repository: key bound twice")
	}
	b.args = append(b.args, id)
	b.keyed = true
}
