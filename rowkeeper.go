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

// Package rowkeeper assembles the database connection and the entity
// repositories from one configuration.
package rowkeeper

import (
	"context"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/tomoncle/rowkeeper/database"
	"github.com/tomoncle/rowkeeper/person"
	"github.com/tomoncle/rowkeeper/repository"
)

// Store owns the database connection and the repositories built on it.
type Store struct {
	factory *database.BaseDatabaseFactory
	people  *person.Repository
	logger  database.Logger
}

// Option adjusts how Open assembles a Store.
type Option func(*storeOptions)

type storeOptions struct {
	logger database.Logger
}

// WithLogger routes database and repository logs to logger.
func WithLogger(logger database.Logger) Option {
	return func(o *storeOptions) { o.logger = logger }
}

// Open connects using cfg, creates the registered tables when enabled, and
// builds the repositories with the configured error policy.
func Open(ctx context.Context, cfg *database.Config, opts ...Option) (*Store, error) {
	if cfg == nil {
		return nil, errors.New("rowkeeper: nil config")
	}
	so := storeOptions{logger: database.GetLogger()}
	for _, opt := range opts {
		opt(&so)
	}

	// Repository options first: a missing error policy must fail before
	// anything touches the database.
	repoOpts, err := repository.OptionsFromConfig(cfg.RepositoryConfig)
	if err != nil {
		return nil, fmt.Errorf("rowkeeper: %w", err)
	}

	database.RegisteredModel(person.Model())
	factory, err := database.Open(ctx, cfg, so.logger)
	if err != nil {
		return nil, err
	}

	repoOpts.Logger = so.logger
	if hook := factory.GetManager().QueryHook(); hook != nil {
		repoOpts.Observer = hook
	}
	people, err := person.NewRepository(factory.GetDB(), repoOpts)
	if err != nil {
		_ = factory.Close()
		return nil, err
	}

	so.logger.Info("store ready",
		"type", cfg.ConnectionConfig.Type,
		"on_error", repoOpts.OnError.Name(),
		"batch_delete", repoOpts.BatchDelete.Name())
	return &Store{factory: factory, people: people, logger: so.logger}, nil
}

// People returns the person repository.
func (s *Store) People() *person.Repository { return s.people }

// DB returns the underlying bun database.
func (s *Store) DB() *bun.DB { return s.factory.GetDB() }

// Health pings the database and reports pool state.
func (s *Store) Health(ctx context.Context) *database.HealthStatus {
	return s.factory.GetHealthStatus(ctx)
}

// Stats reports connection pool statistics.
func (s *Store) Stats() *database.DBStats {
	return s.factory.GetStats()
}

// Close releases the connection. Repositories must not be used afterwards.
func (s *Store) Close() error {
	if s == nil || s.factory == nil {
		return nil
	}
	return s.factory.Close()
}
