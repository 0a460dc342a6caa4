// Copyright 2025, the QuickAI contributors
// SPDX-License-Identifier: AGPL-3.0-only

/*
Package database opens the PostgreSQL connection shared by the datastores.
*/
package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Options configure the connection pool.
type Options struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Open connects to PostgreSQL and checks the connection.
func Open(ctx context.Context, opts Options) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(opts.DSN), &gorm.Config{
		Logger:                 Logger{SlowThreshold: 200 * time.Millisecond},
		SkipDefaultTransaction: true,
		TranslateError:         true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(opts.ConnMaxLifetime)

	if err := Ping(ctx, db); err != nil {
		_ = sqlDB.Close()

		return nil, err
	}

	return db, nil
}

// Ping checks that the database answers.
func Ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("database handle: %w", err)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("pinging database: %w", err)
	}

	return nil
}

// Close releases the connection pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("database handle: %w", err)
	}

	return sqlDB.Close()
}

// Logger forwards gorm's logs to zerolog. Statements are logged at trace
// level, slow ones and failures at warn.
type Logger struct {
	SlowThreshold time.Duration
}

var _ logger.Interface = Logger{}

// LogMode implements logger.Interface. Levels are controlled by zerolog.
func (l Logger) LogMode(logger.LogLevel) logger.Interface {
	return l
}

func (l Logger) Info(ctx context.Context, msg string, args ...any) {
	log.Ctx(ctx).Info().Str("sys", "db").Msgf(msg, args...)
}

func (l Logger) Warn(ctx context.Context, msg string, args ...any) {
	log.Ctx(ctx).Warn().Str("sys", "db").Msgf(msg, args...)
}

func (l Logger) Error(ctx context.Context, msg string, args ...any) {
	log.Ctx(ctx).Error().Str("sys", "db").Msgf(msg, args...)
}

// Trace implements logger.Interface.
func (l Logger) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	elapsed := time.Since(begin)

	var event *zerolog.Event

	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		event = log.Ctx(ctx).Warn().Err(err)
	case l.SlowThreshold > 0 && elapsed > l.SlowThreshold:
		event = log.Ctx(ctx).Warn().Bool("slow", true)
	default:
		event = log.Ctx(ctx).Trace()
	}

	if !event.Enabled() {
		return
	}

	statement, rows := fc()

	event.
		Str("sys", "db").
		Str("sql", statement).
		Int64("rows", rows).
		Dur("dur", elapsed).
		Msg("SQL")
}
