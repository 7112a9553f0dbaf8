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
	"strconv"
	"strings"

	"github.com/uptrace/bun/dialect"
)

const idsSegment = ":ids"

// codeMask marks the bytes of query that are SQL code, as opposed to string
// literals, quoted identifiers and comments. MySQL also escapes quotes with a
// backslash inside string literals.
func codeMask(name dialect.Name, query string) []bool {
	backslash := name == dialect.MySQL
	mask := make([]bool, len(query))
	for i := 0; i < len(query); {
		c := query[i]
		switch {
		case c == '\'' || c == '"' || c == '`':
			// Doubled quotes escape themselves.
			j := i + 1
			for j < len(query) {
				if backslash && c != '`' && query[j] == '\\' {
					j += 2
					continue
				}
				if query[j] == c {
					if j+1 < len(query) && query[j+1] == c {
						j += 2
						continue
					}
					break
				}
				j++
			}
			i = j + 1
		case c == '-' && i+1 < len(query) && query[i+1] == '-':
			j := strings.IndexByte(query[i:], '\n')
			if j < 0 {
				return mask
			}
			i += j
		case c == '/' && i+1 < len(query) && query[i+1] == '*':
			j := strings.Index(query[i+2:], "*/")
			if j < 0 {
				return mask
			}
			i += j + 4
		default:
			mask[i] = true
			i++
		}
	}
	return mask
}

// placeholderOffsets returns the byte offsets of the '?' placeholders.
func placeholderOffsets(name dialect.Name, query string) []int {
	mask := codeMask(name, query)
	var offsets []int
	for i := 0; i < len(query); i++ {
		if mask[i] && query[i] == '?' {
			offsets = append(offsets, i)
		}
	}
	return offsets
}

func countPlaceholders(name dialect.Name, query string) int {
	return len(placeholderOffsets(name, query))
}

// hasKeyword reports whether query contains keyword as a whole word of SQL
// code, ignoring case.
func hasKeyword(name dialect.Name, query, keyword string) bool {
	mask := codeMask(name, query)
	upper := strings.ToUpper(query)
	keyword = strings.ToUpper(keyword)
	for from := 0; from < len(upper); {
		i := strings.Index(upper[from:], keyword)
		if i < 0 {
			return false
		}
		i += from
		end := i + len(keyword)
		if mask[i] &&
			(i == 0 || !isIdentByte(upper[i-1])) &&
			(end == len(upper) || !isIdentByte(upper[end])) {
			return true
		}
		from = i + 1
	}
	return false
}

// rebind rewrites '?' placeholders into the native style of the dialect.
// Only postgres differs: it numbers them $1..$n.
func rebind(name dialect.Name, query string) string {
	if name != dialect.PG {
		return query
	}
	offsets := placeholderOffsets(name, query)
	if len(offsets) == 0 {
		return query
	}
	var sb strings.Builder
	sb.Grow(len(query) + len(offsets)*2)
	prev := 0
	for i, off := range offsets {
		sb.WriteString(query[prev:off])
		sb.WriteByte('$')
		sb.WriteString(strconv.Itoa(i + 1))
		prev = off + 1
	}
	sb.WriteString(query[prev:])
	return sb.String()
}

func isIdentByte(c byte) bool {
	return c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

// idsSegmentOffsets finds ":ids" outside literals, not part of a "::" cast
// and not followed by more identifier characters.
func idsSegmentOffsets(name dialect.Name, query string) []int {
	mask := codeMask(name, query)
	var offsets []int
	for from := 0; from < len(query); {
		i := strings.Index(query[from:], idsSegment)
		if i < 0 {
			break
		}
		i += from
		end := i + len(idsSegment)
		if mask[i] &&
			(i == 0 || query[i-1] != ':') &&
			(end == len(query) || !isIdentByte(query[end])) {
			offsets = append(offsets, i)
		}
		from = end
	}
	return offsets
}

// expandIDs replaces the single ":ids" segment with n comma-separated
// placeholders. Key values are never written into the text.
func expandIDs(name dialect.Name, query string, n int) (string, error) {
	offsets := idsSegmentOffsets(name, query)
	if len(offsets) != 1 {
		return "", ErrMissingIDsClause
	}
	if n <= 0 {
		return "", fmt.Errorf("expand %s: need at least one key, got %d", idsSegment, n)
	}
	off := offsets[0]
	list := strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
	return query[:off] + list + query[off+len(idsSegment):], nil
}
