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

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/aaronlmathis/reviewetl/core"
	"github.com/aaronlmathis/reviewetl/storage"
)

// DefaultEnvFile is loaded when no -env flag is given.
const DefaultEnvFile = "config/.env"

// Config holds every setting the entry points need. Clients are built from
// it explicitly and injected into the stages.
type Config struct {
	// Relational source and bootstrap
	DatabaseServerURI   string
	DatabaseCreationURI string
	NewDatabaseName     string

	// Bronze document store
	MongoURI     string
	MongoDBName  string
	MongoTimeout time.Duration

	// Object storage
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	AWSRegion          string
	S3Bucket           string
	S3Endpoint         string
	S3ForcePathStyle   bool
	S3UploadRetries    int

	DatalakeDir string

	LogLevel  string
	LogFormat string
	LogFile   string
}

// AuditDir is where per-run extract audits go.
func (c *Config) AuditDir() string { return filepath.Join(c.DatalakeDir, "audit") }

// CleanedDir is where the clean Parquet files and load audits go.
func (c *Config) CleanedDir() string { return filepath.Join(c.DatalakeDir, "cleaned") }

// RejectsDir is where the per-run reject ledgers go.
func (c *Config) RejectsDir() string { return filepath.Join(c.DatalakeDir, "rejects") }

// S3Options maps the object storage settings onto storage options.
func (c *Config) S3Options(logger *zap.Logger) storage.S3Options {
	return storage.S3Options{
		Region:          c.AWSRegion,
		AccessKeyID:     c.AWSAccessKeyID,
		SecretAccessKey: c.AWSSecretAccessKey,
		Bucket:          c.S3Bucket,
		Endpoint:        c.S3Endpoint,
		ForcePathStyle:  c.S3ForcePathStyle,
		UploadRetries:   c.S3UploadRetries,
		Logger:          logger,
	}
}

// Load reads the configuration from the environment. Only malformed values
// fail here; required settings are checked by the Validate functions.
func Load() (*Config, error) {
	cfg := &Config{
		DatabaseServerURI:   getEnv("DATABASE_SERVER_URI", ""),
		DatabaseCreationURI: getEnv("DATABASE_CREATION_URI", ""),
		NewDatabaseName:     getEnv("NEW_DATABASE_NAME", ""),
		MongoURI:            getEnv("MONGO_URI", ""),
		MongoDBName:         getEnv("MONGO_DB_NAME", ""),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSRegion:           getEnv("AWS_REGION", ""),
		S3Bucket:            getEnv("S3_BUCKET", ""),
		S3Endpoint:          getEnv("S3_ENDPOINT", ""),
		DatalakeDir:         getEnv("DATALAKE_DIR", "datalake"),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		LogFormat:           getEnv("LOG_FORMAT", "console"),
		LogFile:             getEnv("LOG_FILE", filepath.Join("logs", "etl_pipeline.log")),
	}

	var err error
	if cfg.MongoTimeout, err = getEnvAsDuration("MONGO_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.S3ForcePathStyle, err = getEnvAsBool("S3_FORCE_PATH_STYLE", false); err != nil {
		return nil, err
	}
	if cfg.S3UploadRetries, err = getEnvAsInt("S3_UPLOAD_RETRIES", 2); err != nil {
		return nil, err
	}
	if cfg.S3UploadRetries < 0 {
		return nil, core.NewError(core.KindConfig, "config", "load",
			fmt.Errorf("S3_UPLOAD_RETRIES cannot be negative, got %d", cfg.S3UploadRetries))
	}
	return cfg, nil
}

// LoadEnvFile loads path into the environment without overriding variables
// that are already set. A missing file is only an error when required.
func LoadEnvFile(path string, required bool) error {
	err := godotenv.Load(path)
	if err == nil {
		return nil
	}
	if !required && errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return core.NewError(core.KindConfig, "config", "load_env", err)
}

// MissingError lists every required variable that is unset.
type MissingError struct {
	Vars []string
}

func (e *MissingError) Error() string {
	return "config: missing required variables: " + strings.Join(e.Vars, ", ")
}

// ValidatePipeline checks the settings of a normal pipeline run.
func (c *Config) ValidatePipeline() error {
	return requireVars(
		"DATABASE_SERVER_URI", c.DatabaseServerURI,
		"MONGO_URI", c.MongoURI,
		"MONGO_DB_NAME", c.MongoDBName,
	)
}

// ValidateReplay checks the settings of a run that replays bronze data.
func (c *Config) ValidateReplay() error {
	return requireVars(
		"MONGO_URI", c.MongoURI,
		"MONGO_DB_NAME", c.MongoDBName,
	)
}

// ValidateBootstrap checks the settings of the database bootstrap.
func (c *Config) ValidateBootstrap() error {
	return requireVars(
		"DATABASE_CREATION_URI", c.DatabaseCreationURI,
		"DATABASE_SERVER_URI", c.DatabaseServerURI,
		"NEW_DATABASE_NAME", c.NewDatabaseName,
		"AWS_REGION", c.AWSRegion,
		"S3_BUCKET", c.S3Bucket,
	)
}

// requireVars takes name/value pairs.
func requireVars(pairs ...string) error {
	var missing []string
	for i := 0; i+1 < len(pairs); i += 2 {
		if strings.TrimSpace(pairs[i+1]) == "" {
			missing = append(missing, pairs[i])
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return core.NewError(core.KindConfig, "config", "validate", &MissingError{Vars: missing})
}

func getEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, invalid(key, "an integer", valueStr)
	}
	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) (bool, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return false, invalid(key, "a boolean", valueStr)
	}
	return value, nil
}

// getEnvAsDuration accepts Go durations ("15s") or a bare number of seconds.
func getEnvAsDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	if secs, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return 0, invalid(key, "a duration", valueStr)
	}
	return value, nil
}

func invalid(key, want, got string) error {
	return core.NewError(core.KindConfig, "config", "load",
		fmt.Errorf("invalid value for %s: expected %s, got '%s'", key, want, got))
}
