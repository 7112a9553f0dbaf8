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
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/tomoncle/rowkeeper/utils"
)

var configValidator = validator.New(validator.WithRequiredStructEnabled())

// LoadConfig reads a YAML configuration file on top of DefaultConfig, applies
// environment overrides and validates the result.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}
	ApplyEnv(cfg)
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides configuration values from environment variables.
func ApplyEnv(cfg *Config) {
	conn := &cfg.ConnectionConfig
	if typ := os.Getenv("DB_TYPE"); typ != "" {
		conn.Type = typ
	}
	if host := os.Getenv("DB_HOST"); host != "" {
		conn.Host = host
	}
	if port := os.Getenv("DB_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			conn.Port = p
		}
	}
	if username := os.Getenv("DB_USERNAME"); username != "" {
		conn.Username = username
	}
	if password := os.Getenv("DB_PASSWORD"); password != "" {
		conn.Password = password
	}
	if dbname := os.Getenv("DB_NAME"); dbname != "" {
		conn.DBName = dbname
	}
	if sslmode := os.Getenv("DB_SSLMODE"); sslmode != "" {
		conn.SSLMode = sslmode
	}
	conn.ConnMaxLifetime = utils.EnvDefaultDuration("DB_CONN_MAX_LIFETIME", conn.ConnMaxLifetime)
	conn.SlowQueryTime = utils.EnvDefaultDuration("DB_SLOW_QUERY_TIME", conn.SlowQueryTime)
	conn.EnableQueryLog = utils.EnvDefaultBool("DB_ENABLE_QUERY_LOG", conn.EnableQueryLog)

	cfg.DataMigrateConfig.EnableMigrateOnStartup = utils.EnvDefaultBool("DB_MIGRATE_ON_STARTUP", cfg.DataMigrateConfig.EnableMigrateOnStartup)
	cfg.DataInitConfig.Environment = utils.EnvDefaultString("DB_INIT_ENVIRONMENT", cfg.DataInitConfig.Environment)

	repo := &cfg.RepositoryConfig
	repo.OnError = utils.EnvDefaultString("REPO_ON_ERROR", repo.OnError)
	repo.BatchDelete = utils.EnvDefaultString("REPO_BATCH_DELETE", repo.BatchDelete)
	if size := os.Getenv("REPO_MAX_BATCH_SIZE"); size != "" {
		if n, err := strconv.Atoi(size); err == nil {
			repo.MaxBatchSize = n
		}
	}
}

// ValidateConfig normalizes driver aliases and checks the struct tags.
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return errors.New("database configuration cannot be empty")
	}
	cfg.ConnectionConfig.Type = normalizeType(cfg.ConnectionConfig.Type)
	cfg.RepositoryConfig.OnError = strings.ToLower(strings.TrimSpace(cfg.RepositoryConfig.OnError))
	cfg.RepositoryConfig.BatchDelete = strings.ToLower(strings.TrimSpace(cfg.RepositoryConfig.BatchDelete))

	if err := configValidator.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed on '%s'", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func normalizeType(t string) string {
	switch strings.ToLower(strings.TrimSpace(t)) {
	case "postgresql", "pg":
		return "postgres"
	case "sqlite3":
		return "sqlite"
	default:
		return strings.ToLower(strings.TrimSpace(t))
	}
}
