package submission

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"gradedesk/internal/adapters/storage"
	"gradedesk/internal/domain/grading"
	domain "gradedesk/internal/domain/submission"
)

const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db storage.SQLDB
}

// NewSQLiteStore creates a new SQLiteStore.
func NewSQLiteStore(db storage.SQLDB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// LoadAll retrieves the full collection in stored order.
// PRE: schema has been initialized
// POST: Returns the collection; damaged rows are repaired by defaulting
// (result dropped, unknown status coerced) rather than failing the load
func (s *SQLiteStore) LoadAll(ctx context.Context) ([]domain.Submission, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, file_name, image_payload, status, result_json, error_message, uploaded_at, rotation
		 FROM submission ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("load submissions: %w", err)
	}
	defer rows.Close()

	var subs []domain.Submission
	for rows.Next() {
		var sub domain.Submission
		var resultJSON, errorMessage sql.NullString
		var uploadedAt string
		if err := rows.Scan(&sub.ID, &sub.FileName, &sub.ImagePayload, &sub.Status,
			&resultJSON, &errorMessage, &uploadedAt, &sub.Rotation); err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		sub.UploadedAt, _ = time.Parse(timeLayout, uploadedAt)
		if errorMessage.Valid {
			sub.ErrorMessage = errorMessage.String
		}
		if resultJSON.Valid && resultJSON.String != "" {
			var r grading.Result
			if err := json.Unmarshal([]byte(resultJSON.String), &r); err != nil {
				slog.Warn("submission_result_unreadable", "submission_id", sub.ID, "error", err.Error())
			} else {
				sub.Result = &r
			}
		}
		repair(&sub)
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// ReplaceAll atomically replaces the stored collection.
// PRE: subs reflect the current in-memory collection in display order
// POST: The table holds exactly subs, positions 0..n-1, or the transaction
// is rolled back and the previous durable state survives
func (s *SQLiteStore) ReplaceAll(ctx context.Context, subs []domain.Submission) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM submission`); err != nil {
		return fmt.Errorf("clear submissions: %w", err)
	}
	for i, sub := range subs {
		var resultJSON any
		if sub.Result != nil {
			b, err := json.Marshal(sub.Result)
			if err != nil {
				return fmt.Errorf("marshal result for %s: %w", sub.ID, err)
			}
			resultJSON = string(b)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO submission (id, position, file_name, image_payload, status, result_json, error_message, uploaded_at, rotation)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			sub.ID, i, sub.FileName, sub.ImagePayload, sub.Status,
			resultJSON, nullStr(sub.ErrorMessage), sub.UploadedAt.Format(timeLayout), sub.Rotation); err != nil {
			return fmt.Errorf("insert submission %s: %w", sub.ID, err)
		}
	}
	return tx.Commit()
}

// Clear removes every stored submission.
// PRE: caller confirmed the irreversible reset
// POST: the table is empty
func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM submission`); err != nil {
		return fmt.Errorf("clear submissions: %w", err)
	}
	return nil
}

// repair coerces a loaded submission back to a consistent settled state.
// Unknown fields default rather than refusing to load; a row caught
// mid-grading by a crash goes back to idle or error.
func repair(sub *domain.Submission) {
	switch sub.Status {
	case domain.StatusSuccess:
		if sub.Result == nil {
			sub.Status = domain.StatusIdle
			sub.ErrorMessage = ""
		}
	case domain.StatusError:
		sub.Result = nil
		if sub.ErrorMessage == "" {
			sub.ErrorMessage = domain.GradingFailedMessage
		}
	case domain.StatusIdle:
		sub.Result = nil
		sub.ErrorMessage = ""
	default:
		// grading or unknown: no call can be in flight after a restart
		sub.Status = domain.StatusIdle
		sub.Result = nil
		sub.ErrorMessage = ""
	}
	if sub.Rotation%90 != 0 {
		sub.Rotation = 0
	}
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}
