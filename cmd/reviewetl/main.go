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

// Command reviewetl runs the review ETL pipeline: extract the relational
// source, stage it to bronze, transform and publish the clean reviews.
//
// Usage:
//
//	reviewetl [-env config/.env] [-replay 20250601_120000]
//
// With -replay the raw tables are read back from the bronze collections of
// the given run instead of the relational source, and nothing is restaged.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/aaronlmathis/reviewetl/config"
	"github.com/aaronlmathis/reviewetl/core"
	"github.com/aaronlmathis/reviewetl/extract"
	"github.com/aaronlmathis/reviewetl/load"
	"github.com/aaronlmathis/reviewetl/logging"
	"github.com/aaronlmathis/reviewetl/orchestrator"
	"github.com/aaronlmathis/reviewetl/readers"
	"github.com/aaronlmathis/reviewetl/staging"
	"github.com/aaronlmathis/reviewetl/storage"
	"github.com/aaronlmathis/reviewetl/transform"
	"github.com/aaronlmathis/reviewetl/writers"
)

func main() {
	envFile := flag.String("env", "", "path to the .env file (default "+config.DefaultEnvFile+")")
	replay := flag.String("replay", "", "replay the bronze data of this run id instead of extracting")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, *envFile, *replay)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "reviewetl: %v\n", err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	if core.KindOf(err) == core.KindConfig {
		return 2
	}
	return 1
}

func run(ctx context.Context, envFile, replay string) error {
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
	var replayID core.RunID
	if replay != "" {
		if replayID, err = core.ParseRunID(replay); err != nil {
			return core.NewError(core.KindConfig, "cmd", "parse_replay", err)
		}
		err = cfg.ValidateReplay()
	} else {
		err = cfg.ValidatePipeline()
	}
	if err != nil {
		return err
	}

	logger, cleanup, err := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, File: cfg.LogFile})
	if err != nil {
		return core.NewError(core.KindConfig, "cmd", "logging", err)
	}
	defer cleanup()
	zap.ReplaceGlobals(logger)

	mongoClient, err := readers.ConnectMongo(ctx, cfg.MongoURI, cfg.MongoTimeout)
	if err != nil {
		logger.Error("cannot reach document store", zap.Error(err))
		return core.NewError(core.KindConnectivity, "cmd", "connect_mongo", err)
	}
	defer func() {
		if err := mongoClient.Disconnect(context.Background()); err != nil {
			logger.Warn("mongo disconnect failed", zap.Error(err))
		}
	}()

	builder := orchestrator.NewRunner().WithLogger(logger.Named("orchestrator"))

	if replay != "" {
		source := &extract.BronzeSource{Client: mongoClient, Database: cfg.MongoDBName, RunID: replayID}
		builder.Extract(extract.NewExtractor(source,
			extract.WithAuditDir(cfg.AuditDir()),
			extract.WithAuditStage("replay"),
			extract.WithExtractLogger(logger.Named("replay"))))
		logger.Info("replaying bronze run", zap.String("replay_of", replayID.String()))
	} else {
		db, err := readers.OpenPostgresDB(ctx, cfg.DatabaseServerURI)
		if err != nil {
			logger.Error("cannot reach relational source", zap.Error(err))
			return core.NewError(core.KindConnectivity, "cmd", "connect_postgres", err)
		}
		defer db.Close()

		builder.Extract(extract.NewExtractor(&extract.PostgresSource{DB: db},
			extract.WithAuditDir(cfg.AuditDir()),
			extract.WithExtractLogger(logger.Named("extract"))))

		mongoWriter, err := writers.NewMongoWriter(mongoClient, cfg.MongoDBName)
		if err != nil {
			return core.NewError(core.KindConfig, "cmd", "mongo_writer", err)
		}
		builder.Stage(staging.NewStager(mongoWriter, staging.WithStagingLogger(logger.Named("staging"))))
	}

	builder.Transform(transform.NewEngine(transform.WithEngineLogger(logger.Named("transform"))))

	publishOpts := []load.PublisherOption{
		load.WithCleanedDir(cfg.CleanedDir()),
		load.WithRejectsDir(cfg.RejectsDir()),
		load.WithPublishLogger(logger.Named("load")),
	}
	s3Opts := cfg.S3Options(logger.Named("storage"))
	if s3Opts.Complete() {
		store, err := storage.NewS3Store(ctx, s3Opts)
		if err != nil {
			logger.Warn("object storage unavailable, uploads disabled", zap.Error(err))
		} else {
			publishOpts = append(publishOpts, load.WithStore(store))
		}
	} else {
		logger.Warn("object storage not configured, uploads disabled")
	}
	builder.Load(load.NewPublisher(publishOpts...))

	runner, err := builder.Build()
	if err != nil {
		return err
	}
	report, err := runner.Run(ctx)
	if err != nil {
		return err
	}

	printSummary(report)
	return nil
}

func printSummary(r *orchestrator.Report) {
	fmt.Printf("run %s finished in %s\n", r.RunID, r.Duration.Round(time.Millisecond))
	fmt.Printf("  tables extracted: %d (skipped %d)\n", r.TablesRead, r.TablesSkipped)
	if r.Staged != nil {
		fmt.Printf("  bronze documents: %d\n", r.Staged.Documents())
	}
	fmt.Printf("  clean reviews:    %d\n", r.Clean)
	fmt.Printf("  rejected reviews: %d\n", r.Rejected)
	fmt.Printf("  parquet file:     %s\n", r.Load.LocalPath)
	if r.Load.RemoteURI != "" {
		fmt.Printf("  uploaded to:      %s\n", r.Load.RemoteURI)
	}
	fmt.Printf("  load audit:       %s\n", r.Load.AuditPath)
}
