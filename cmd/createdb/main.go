//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Copyright (C) 2025 Aaron Mathis aaron.mathis@gmail.com
//
// This file is part of GoETL.
//
// GoETL is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// GoETL is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with GoETL. If not, see https://www.gnu.org/licenses/.

// Command createdb recreates the source database from the raw CSV exports
// stored under raw/ in the configured bucket. Any existing database with the
// same name is dropped first.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/aaronlmathis/reviewetl/bootstrap"
	"github.com/aaronlmathis/reviewetl/config"
	"github.com/aaronlmathis/reviewetl/core"
	"github.com/aaronlmathis/reviewetl/logging"
	"github.com/aaronlmathis/reviewetl/readers"
	"github.com/aaronlmathis/reviewetl/storage"
)

func main() {
	envFile := flag.String("env", "", "path to the .env file (default "+config.DefaultEnvFile+")")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, *envFile)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "createdb: %v\n", err)
		if core.KindOf(err) == core.KindConfig {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, envFile string) error {
	path, required := envFile, true
	if path == "" {
		path, required = config.DefaultEnvFile, false
	}
	if err := config.LoadEnvFile(path, required); err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.ValidateBootstrap(); err != nil {
		return err
	}

	logger, cleanup, err := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, File: cfg.LogFile})
	if err != nil {
		return core.NewError(core.KindConfig, "cmd", "logging", err)
	}
	defer cleanup()
	zap.ReplaceGlobals(logger)

	store, err := storage.NewS3Store(ctx, cfg.S3Options(logger.Named("storage")))
	if err != nil {
		return core.NewError(core.KindConfig, "cmd", "s3", err)
	}

	admin, err := readers.OpenPostgresDB(ctx, cfg.DatabaseCreationURI)
	if err != nil {
		logger.Error("cannot reach administrative database", zap.Error(err))
		return core.NewError(core.KindConnectivity, "cmd", "connect_admin", err)
	}
	defer admin.Close()

	connect := func(ctx context.Context) (*sql.DB, error) {
		return readers.OpenPostgresDB(ctx, cfg.DatabaseServerURI)
	}
	b := bootstrap.New(admin, connect, store.Client(), store.Bucket(), cfg.NewDatabaseName,
		bootstrap.WithBootstrapLogger(logger.Named("bootstrap")))

	report, err := b.Run(ctx)
	if err != nil {
		return err
	}
	for _, t := range report.Tables {
		fmt.Printf("%-16s %-9s %d rows\n", t.Table, t.Status, t.Rows)
	}
	if report.Imported() == 0 {
		return bootstrap.ErrNoTables
	}
	fmt.Printf("database %s ready (%d/%d tables)\n", report.Database, report.Imported(), len(report.Tables))
	return nil
}
