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
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeFile(t, filepath.Join(t.TempDir(), "config.yaml"), `
connection:
  type: PostgreSQL
  host: db.internal
  port: 5432
  username: app
  dbname: people
  slow_query_time: 250ms
migrate:
  enable_migrate_on_startup: false
repository:
  on_error: Return_Default
  batch_delete: per_row
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.ConnectionConfig.Type)
	assert.Equal(t, "db.internal", cfg.ConnectionConfig.Host)
	assert.Equal(t, 250*time.Millisecond, cfg.ConnectionConfig.SlowQueryTime)
	assert.Equal(t, 100, cfg.ConnectionConfig.MaxOpenConns, "defaults survive partial files")
	assert.False(t, cfg.DataMigrateConfig.EnableMigrateOnStartup)
	assert.Equal(t, "return_default", cfg.RepositoryConfig.OnError)
	assert.Equal(t, "per_row", cfg.RepositoryConfig.BatchDelete)
	assert.Equal(t, 500, cfg.RepositoryConfig.MaxBatchSize)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	path := writeFile(t, filepath.Join(t.TempDir(), "config.yaml"), `
connection:
  type: mysql
  host: localhost
  dbname: people
repository:
  on_error: propagate
`)
	t.Setenv("DB_TYPE", "sqlite3")
	t.Setenv("DB_NAME", "override")
	t.Setenv("REPO_ON_ERROR", "return_default")
	t.Setenv("REPO_MAX_BATCH_SIZE", "50")
	t.Setenv("DB_SLOW_QUERY_TIME", "1s")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.ConnectionConfig.Type)
	assert.Equal(t, "override", cfg.ConnectionConfig.DBName)
	assert.Equal(t, "return_default", cfg.RepositoryConfig.OnError)
	assert.Equal(t, 50, cfg.RepositoryConfig.MaxBatchSize)
	assert.Equal(t, time.Second, cfg.ConnectionConfig.SlowQueryTime)
}

func TestValidateConfig(t *testing.T) {
	valid := func() *Config {
		cfg := DefaultConfig()
		cfg.ConnectionConfig.Type = "sqlite"
		cfg.ConnectionConfig.DBName = "people"
		cfg.RepositoryConfig.OnError = "propagate"
		return cfg
	}
	require.NoError(t, ValidateConfig(valid()))

	cases := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"missing error policy", func(c *Config) { c.RepositoryConfig.OnError = "" }, "OnError"},
		{"unknown error policy", func(c *Config) { c.RepositoryConfig.OnError = "ignore" }, "OnError"},
		{"unknown batch mode", func(c *Config) { c.RepositoryConfig.BatchDelete = "concat" }, "BatchDelete"},
		{"unknown driver", func(c *Config) { c.ConnectionConfig.Type = "oracle" }, "Type"},
		{"mysql without host", func(c *Config) { c.ConnectionConfig.Type = "mysql" }, "Host"},
		{"missing dbname", func(c *Config) { c.ConnectionConfig.DBName = "" }, "DBName"},
		{"bad port", func(c *Config) { c.ConnectionConfig.Port = 70000 }, "Port"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(cfg)
			err := ValidateConfig(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.field)
		})
	}

	assert.Error(t, ValidateConfig(nil))
}

func TestDSN(t *testing.T) {
	cfg := DefaultConnectionConfig()
	cfg.Host, cfg.Port, cfg.Username, cfg.Password, cfg.DBName = "db", 3306, "app", "p@ss", "people"

	mysqlDSN := MySQLDSN(cfg)
	assert.True(t, strings.HasPrefix(mysqlDSN, "app:p@ss@tcp(db:3306)/people?"))
	assert.Contains(t, mysqlDSN, "parseTime=true")
	assert.Contains(t, mysqlDSN, "loc=UTC")

	cfg.Port = 5432
	pgDSN := PostgresDSN(cfg)
	assert.True(t, strings.HasPrefix(pgDSN, "postgres://app:p%40ss@db:5432/people?"), pgDSN)
	assert.Contains(t, pgDSN, "sslmode=disable")
	assert.Contains(t, pgDSN, "timezone=UTC")

	for in, want := range map[string]string{
		":memory:":         "file::memory:?cache=shared",
		"people":           "people.db",
		"/tmp/people.db":   "/tmp/people.db",
		"file:x.db?mode=ro": "file:x.db?mode=ro",
	} {
		assert.Equal(t, want, SQLiteDSN(&ConnectionConfig{DBName: in}))
	}
}
