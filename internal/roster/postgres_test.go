package roster

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresSourcePartition(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"lrn", "full_name", "grade", "section", "phone", "photo_url"}).
		AddRow("123", "Ana Reyes", 7, "Tesla", "0917", "https://cdn.example/123.jpg").
		AddRow("124", "Ben Cruz", 7, "Tesla", "0918", nil)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT lrn, full_name, grade, section, phone, photo_url")).
		WithArgs("grade7-tesla").
		WillReturnRows(rows)

	src := NewPostgresSource(db)
	students, err := src.Partition(context.Background(), "grade7-tesla")
	require.NoError(t, err)
	require.Len(t, students, 2)
	assert.Equal(t, "Ana Reyes", students[0].FullName)
	assert.Equal(t, "https://cdn.example/123.jpg", students[0].PhotoURL)
	assert.Empty(t, students[1].PhotoURL)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSourceKeys(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT DISTINCT").
		WillReturnRows(sqlmock.NewRows([]string{"key"}).AddRow("grade7-tesla").AddRow("grade8-charles"))

	src := NewPostgresSource(db)
	assert.Equal(t, []string{"grade7-tesla", "grade8-charles"}, src.Keys())
	assert.NoError(t, mock.ExpectationsWereMet())
}
