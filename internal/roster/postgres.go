package roster

import (
	"context"
	"database/sql"
	"fmt"

	"kiosk/internal/attendance"
)

// PostgresSource reads classroom rosters from a students table. The
// table carries identity and display fields only; attendance lives in
// the ledger.
type PostgresSource struct {
	db *sql.DB
}

// NewPostgresSource creates a source over an open connection.
func NewPostgresSource(db *sql.DB) *PostgresSource {
	return &PostgresSource{db: db}
}

// Keys returns the distinct classroom keys present in the table.
func (s *PostgresSource) Keys() []string {
	rows, err := s.db.Query(`
		SELECT DISTINCT 'grade' || grade || '-' || lower(section)
		FROM students
		ORDER BY 1
	`)
	if err != nil {
		return nil
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return keys
		}
		keys = append(keys, key)
	}
	return keys
}

// Partition returns the students of one classroom key.
func (s *PostgresSource) Partition(ctx context.Context, key string) ([]attendance.Student, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT lrn, full_name, grade, section, phone, photo_url
		FROM students
		WHERE 'grade' || grade || '-' || lower(section) = $1
		ORDER BY full_name
	`, key)
	if err != nil {
		return nil, fmt.Errorf("roster: query %s failed: %w", key, err)
	}
	defer rows.Close()

	var students []attendance.Student
	for rows.Next() {
		var (
			st    attendance.Student
			photo sql.NullString
		)
		if err := rows.Scan(&st.LRN, &st.FullName, &st.Grade, &st.Section, &st.Phone, &photo); err != nil {
			return nil, fmt.Errorf("roster: scan %s failed: %w", key, err)
		}
		if photo.Valid {
			st.PhotoURL = photo.String
		}
		students = append(students, st)
	}
	return students, rows.Err()
}
