package core

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type SQLiteReportStore struct {
	db *sql.DB
}

func NewSQLiteReportStore(db *sql.DB) *SQLiteReportStore {
	return &SQLiteReportStore{db: db}
}

func (s *SQLiteReportStore) AppendReport(ctx context.Context, input ReportInput) error {
	if err := input.Validate(); err != nil {
		return err
	}

	query := `
	INSERT INTO reports (reporter_id, target, target_id, room_id, reason, description, status, timestamp)
	VALUES (@reporter_id, @target, @target_id, @room_id, @reason, @description, @status, @timestamp)`
	_, err := s.db.ExecContext(ctx, query,
		sql.Named("reporter_id", input.ReporterID),
		sql.Named("target", string(input.Target)),
		sql.Named("target_id", input.TargetID),
		sql.Named("room_id", input.RoomID),
		sql.Named("reason", input.Reason),
		sql.Named("description", input.Description),
		sql.Named("status", string(ReportPending)),
		sql.Named("timestamp", time.Now().UTC()))
	if err != nil {
		return fmt.Errorf("ExecContext(insert report): %w", err)
	}
	return nil
}
