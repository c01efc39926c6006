package session

import (
	"context"

	"github.com/kartikbazzad/bunbase/tabsync/internal/queue"
)

const (
	createPatientsTable = `CREATE TABLE IF NOT EXISTS patients (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		first_name TEXT NOT NULL,
		last_name TEXT NOT NULL,
		date_of_birth TEXT,
		phone TEXT,
		email TEXT,
		created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`
	createPatientsNameIndex = `CREATE INDEX IF NOT EXISTS idx_patients_last_name ON patients (last_name, first_name)`
)

// InitializePatientTable creates the patients table and its name index if
// they do not exist, then verifies the table answers a read. It reports
// success; failures are logged, not returned. Safe to run from every
// process; the statements are conditional and serialize through the queue
// like any other write.
func (s *Session) InitializePatientTable(ctx context.Context) bool {
	if _, err := s.ExecuteQuery(ctx, createPatientsTable, nil, queue.Options{EntityHint: "patients"}); err != nil {
		s.logger.Error("create patients table: %v", err)
		return false
	}
	if _, err := s.ExecuteQuery(ctx, createPatientsNameIndex, nil, queue.Options{EntityHint: "patients"}); err != nil {
		s.logger.Error("create patients index: %v", err)
		return false
	}
	if _, err := s.ExecuteQuery(ctx, "SELECT COUNT(*) FROM patients", nil, queue.Options{SkipQueue: true}); err != nil {
		s.logger.Error("verify patients table: %v", err)
		return false
	}
	return true
}
