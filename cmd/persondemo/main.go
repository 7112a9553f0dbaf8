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

// Command persondemo walks one person through save, find, count, update and
// delete against the configured database.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	// Loads .env from the working directory before flags are read.
	_ "github.com/joho/godotenv/autoload"
	"github.com/shopspring/decimal"

	"github.com/tomoncle/rowkeeper"
	"github.com/tomoncle/rowkeeper/database"
	"github.com/tomoncle/rowkeeper/person"
	"github.com/tomoncle/rowkeeper/utils"
)

func main() {
	configPath := flag.String("config", utils.EnvDefaultString("ROWKEEPER_CONFIG", ""), "path to a YAML config file")
	logLevel := flag.String("log-level", utils.EnvDefaultString("LOG_LEVEL", "info"), "log level")
	flag.Parse()

	utils.ConfigureLogLevel(*logLevel)
	logger := database.NewDefaultLogger("PERSONDEMO")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath, logger); err != nil {
		logger.Error("demo failed", "error", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string, logger database.Logger) error {
	cfg, err := database.LoadConfig(configPath)
	if err != nil {
		return err
	}
	store, err := rowkeeper.Open(ctx, cfg, rowkeeper.WithLogger(logger))
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("close failed", "error", err)
		}
	}()
	people := store.People()

	ada := person.New("Ada", "Lovelace", time.Date(1815, 12, 10, 0, 0, 0, 0, time.UTC))
	if _, err := people.Save(ctx, ada); err != nil {
		return err
	}
	logger.Info("saved", "person", ada.String())

	found, ok, err := people.FindByID(ctx, ada.ID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("person %d not found after save", ada.ID)
	}
	logger.Info("found", "person", found.String())

	count, err := people.Count(ctx)
	if err != nil {
		return err
	}
	logger.Info("counted", "count", count)

	ada.SetSalary(decimal.RequireFromString("100.00"))
	affected, err := people.Update(ctx, ada)
	if err != nil {
		return err
	}
	logger.Info("updated", "affected", affected)

	if found, ok, err = people.FindByID(ctx, ada.ID); err != nil {
		return err
	} else if ok {
		logger.Info("found", "person", found.String())
	}

	affected, err = people.Delete(ctx, ada)
	if err != nil {
		return err
	}
	logger.Info("deleted", "affected", affected)

	_, ok, err = people.FindByID(ctx, ada.ID)
	if err != nil {
		return err
	}
	count, err = people.Count(ctx)
	if err != nil {
		return err
	}
	logger.Info("after delete", "present", ok, "count", count)

	health := store.Health(ctx)
	logger.Info("database health", "healthy", health.Healthy, "response_time", health.ResponseTime.String())
	return nil
}
