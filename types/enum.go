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

// Package types holds small contracts shared by the configuration-facing
// enum types of the repository and database packages.
package types

import "strings"

// Common illegal/default values used by enums.
const (
	IllegalValue = -1
	IllegalName  = "unknown"
	IllegalDesc  = "unknown"
)

// BaseEnum represents a basic enum contract used by option types.
type BaseEnum interface {
	IsValid() bool
	Number() int
	String() string
	Desc() string
	Name() string
}

// LookupEnum returns the first candidate whose Name matches name, ignoring
// case and surrounding spaces. Invalid candidates never match.
func LookupEnum[E BaseEnum](name string, candidates ...E) (E, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	for _, c := range candidates {
		if c.IsValid() && c.Name() == key {
			return c, true
		}
	}
	var zero E
	return zero, false
}

// EnumNames lists the names of the valid candidates, in order.
func EnumNames[E BaseEnum](candidates ...E) []string {
	names := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if c.IsValid() {
			names = append(names, c.Name())
		}
	}
	return names
}
