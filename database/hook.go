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

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fatih/color"
	"github.com/uptrace/bun"
)

const (
	ansiReset     = "\x1b[0m"
	ansiRed       = "\x1b[31m"
	ansiYellow    = "\x1b[33m"
	ansiGreen     = "\x1b[32m"
	ansiBlue      = "\x1b[34m"
	ansiMagenta   = "\x1b[35m"
	ansiCyan      = "\x1b[36m"
	ansiBGGreen   = "\x1b[42;97m"
	ansiBGYellow  = "\x1b[43;97m"
	ansiBGBlue    = "\x1b[44;97m"
	ansiBGMagenta = "\x1b[45;97m"
	ansiBGRed     = "\x1b[41;97m"
)

var sqlSilentMode atomic.Bool

// EnableSqlSilent suppresses every QueryHook while b is true. Table creation
// turns it on so startup DDL stays out of the statement log.
func EnableSqlSilent(b bool) {
	sqlSilentMode.Store(b)
}

func colorWrap(s, code string) string { return code + s + ansiReset }

// QueryHook prints executed statements. It serves both as a bun.QueryHook
// for queries bun runs itself and as the statement observer of the
// repositories, which prepare their statements on the raw connection.
//
// The environment variable named by envName overrides the static switches:
// "0" or empty disables, "1" logs failures only, "2" logs everything.
type QueryHook struct {
	envName  string
	enabled  bool
	verbose  bool
	slowTime time.Duration
	writer   io.Writer
}

var _ bun.QueryHook = (*QueryHook)(nil)

// QueryHookOption configures a QueryHook.
type QueryHookOption func(*QueryHook)

func WithQueryHookEnabled(enabled bool) QueryHookOption {
	return func(h *QueryHook) { h.enabled = enabled }
}

func WithQueryHookVerbose(verbose bool) QueryHookOption {
	return func(h *QueryHook) { h.verbose = verbose }
}

func WithQueryHookEnv(name string) QueryHookOption {
	return func(h *QueryHook) { h.envName = name }
}

func WithSlowQueryTime(d time.Duration) QueryHookOption {
	return func(h *QueryHook) { h.slowTime = d }
}

func WithQueryHookWriter(w io.Writer) QueryHookOption {
	return func(h *QueryHook) { h.writer = w }
}

// NewQueryHook returns a hook writing to stdout, controlled by ROWKEEPER_SQL.
func NewQueryHook(opts ...QueryHookOption) *QueryHook {
	h := &QueryHook{envName: "ROWKEEPER_SQL", writer: os.Stdout}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *QueryHook) BeforeQuery(ctx context.Context, event *bun.QueryEvent) context.Context {
	return ctx
}

func (h *QueryHook) AfterQuery(ctx context.Context, event *bun.QueryEvent) {
	h.print("[BUN]", event.Operation(), event.Query, event.StartTime, event.Err)
}

// ObserveStatement receives one statement executed by a repository.
func (h *QueryHook) ObserveStatement(ctx context.Context, query string, start time.Time, err error) {
	h.print("[SQL]", statementOperation(query), query, start, err)
}

func (h *QueryHook) print(tag, operation, query string, start time.Time, err error) {
	if sqlSilentMode.Load() {
		return
	}
	dur := time.Since(start)
	if h.slowTime > 0 && err == nil && dur > h.slowTime {
		_, _ = fmt.Fprintln(h.writer,
			time.Now().Format("2006-01-02 15:04:05.000"),
			colorWrap(fmt.Sprintf("%-8s", tag+"SLOW"), ansiYellow),
			fmt.Sprintf("%12s", dur.Round(time.Microsecond)),
			" ", operationColor(operation, query, true),
		)
		return
	}

	enabled, verbose := h.enabled, h.verbose
	if h.envName != "" {
		if env, ok := os.LookupEnv(h.envName); ok {
			env = strings.TrimSpace(env)
			enabled = env != "" && env != "0"
			verbose = env == "2"
		}
	}
	if !enabled {
		return
	}
	if !verbose {
		switch {
		case err == nil, errors.Is(err, sql.ErrNoRows), errors.Is(err, sql.ErrTxDone):
			return
		}
	}

	args := []interface{}{
		time.Now().Format("2006-01-02 15:04:05.000"),
		colorWrap(fmt.Sprintf("%-8s", tag), ansiCyan),
		fmt.Sprintf("%12s", dur.Round(time.Microsecond)),
		" ", operationColor(operation, query, false),
	}
	if err != nil {
		typ := reflect.TypeOf(err).String()
		args = append(args, "\t", color.New(color.BgRed).Sprintf(" %s ", typ+": "+err.Error()))
	}
	_, _ = fmt.Fprintln(h.writer, args...)
}

func statementOperation(query string) string {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToUpper(fields[0])
}

func operationColor(operation, query string, background bool) string {
	var fg, bg string
	switch operation {
	case "SELECT":
		fg, bg = ansiGreen, ansiBGGreen
	case "INSERT":
		fg, bg = ansiBlue, ansiBGBlue
	case "UPDATE":
		fg, bg = ansiYellow, ansiBGYellow
	case "DELETE":
		fg, bg = ansiMagenta, ansiBGMagenta
	default:
		fg, bg = ansiRed, ansiBGRed
	}
	if background {
		return colorWrap(query, bg)
	}
	return colorWrap(query, fg)
}
