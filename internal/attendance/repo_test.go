package attendance

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	repoNow  = time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	repoDay  = time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	attnCols = []string{"id", "student_id", "name", "lecture_id", "subject_id", "lecture_date", "status", "reason", "created_at", "updated_at"}
)

func newMockRepo(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return NewRepository(db), mock
}

func attendanceRow(rows *sqlmock.Rows, id, studentID string, status Status, reason string) *sqlmock.Rows {
	return rows.AddRow(id, studentID, "Alice", "lecture-1", "subject-1", repoDay, string(status), reason, repoNow, repoNow)
}

func claim() Attendance {
	return Attendance{
		ID:          "att-new",
		StudentID:   "alice",
		LectureID:   "lecture-1",
		SubjectID:   "subject-1",
		LectureDate: repoDay,
		Status:      StatusPending,
		CreatedAt:   repoNow,
		UpdatedAt:   repoNow,
	}
}

const (
	upsertSQL   = `INSERT INTO attendance .* ON CONFLICT \(student_id, lecture_id\) DO NOTHING`
	readBackSQL = `FROM attendance a JOIN users u ON u.id = a.student_id WHERE a.student_id = \$1 AND a.lecture_id = \$2`
)

func TestRepository_GetOrCreateAttendance_Created(t *testing.T) {
	repo, mock := newMockRepo(t)
	a := claim()

	mock.ExpectExec(upsertSQL).
		WithArgs(a.ID, a.StudentID, a.LectureID, a.SubjectID, sqlmock.AnyArg(), "pending", "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(readBackSQL).
		WithArgs(a.StudentID, a.LectureID).
		WillReturnRows(attendanceRow(sqlmock.NewRows(attnCols), a.ID, a.StudentID, StatusPending, ""))

	got, created, err := repo.GetOrCreateAttendance(context.Background(), a)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "att-new", got.ID)
	assert.Equal(t, "Alice", got.StudentName)
	assert.Equal(t, StatusPending, got.Status)
}

func TestRepository_GetOrCreateAttendance_Existing(t *testing.T) {
	repo, mock := newMockRepo(t)
	a := claim()

	mock.ExpectExec(upsertSQL).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(readBackSQL).
		WithArgs(a.StudentID, a.LectureID).
		WillReturnRows(attendanceRow(sqlmock.NewRows(attnCols), "att-old", a.StudentID, StatusApproved, ""))

	got, created, err := repo.GetOrCreateAttendance(context.Background(), a)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "att-old", got.ID)
	assert.Equal(t, StatusApproved, got.Status)
}

func TestRepository_GetOrCreateAttendance_Errors(t *testing.T) {
	t.Run("rows affected", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectExec(upsertSQL).WillReturnResult(sqlmock.NewErrorResult(errors.New("driver lost count")))

		_, created, err := repo.GetOrCreateAttendance(context.Background(), claim())
		assert.EqualError(t, err, "driver lost count")
		assert.False(t, created)
	})

	t.Run("row vanished", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectExec(upsertSQL).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(readBackSQL).WillReturnError(sql.ErrNoRows)

		_, _, err := repo.GetOrCreateAttendance(context.Background(), claim())
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("insert fails", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectExec(upsertSQL).WillReturnError(errors.New("connection reset"))

		_, _, err := repo.GetOrCreateAttendance(context.Background(), claim())
		assert.EqualError(t, err, "connection reset")
	})
}

func TestRepository_ApprovePending(t *testing.T) {
	repo, mock := newMockRepo(t)

	rows := sqlmock.NewRows(attnCols)
	attendanceRow(rows, "att-1", "alice", StatusApproved, "")
	attendanceRow(rows, "att-2", "bob", StatusApproved, "")
	mock.ExpectQuery(regexp.QuoteMeta(`WHERE lecture_id = $1 AND status = 'pending' RETURNING * ) SELECT c.id, c.student_id, u.name`)).
		WithArgs("lecture-1", repoNow).
		WillReturnRows(rows)

	got, err := repo.ApprovePending(context.Background(), "lecture-1", repoNow)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "att-1", got[0].ID)
	assert.Equal(t, "bob", got[1].StudentID)
	for _, a := range got {
		assert.Equal(t, StatusApproved, a.Status)
	}
}

func TestRepository_ListAttendance_Placeholders(t *testing.T) {
	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)

	t.Run("every filter", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectQuery(regexp.QuoteMeta(`WHERE a.student_id = $1 AND a.lecture_id = $2 AND a.subject_id = $3 AND a.status = $4 AND a.lecture_date >= $5::date AND a.lecture_date <= $6::date ORDER BY a.lecture_date, a.created_at`)).
			WithArgs("alice", "lecture-1", "subject-1", "pending", "2026-03-01", "2026-03-31").
			WillReturnRows(attendanceRow(sqlmock.NewRows(attnCols), "att-1", "alice", StatusPending, ""))

		got, err := repo.ListAttendance(context.Background(), AttendanceFilter{
			StudentID: "alice",
			LectureID: "lecture-1",
			SubjectID: "subject-1",
			Status:    StatusPending,
			From:      &from,
			To:        &to,
		})
		require.NoError(t, err)
		assert.Len(t, got, 1)
	})

	t.Run("sparse filter", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectQuery(regexp.QuoteMeta(`WHERE a.status = $1 AND a.lecture_date <= $2::date ORDER BY`)).
			WithArgs("rejected", "2026-03-31").
			WillReturnRows(sqlmock.NewRows(attnCols))

		got, err := repo.ListAttendance(context.Background(), AttendanceFilter{Status: StatusRejected, To: &to})
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("no filter", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectQuery(regexp.QuoteMeta(`JOIN users u ON u.id = a.student_id ORDER BY a.lecture_date, a.created_at`)).
			WithArgs().
			WillReturnRows(sqlmock.NewRows(attnCols))

		_, err := repo.ListAttendance(context.Background(), AttendanceFilter{})
		require.NoError(t, err)
	})
}

func TestRepository_ArchiveLecturesSendsPlainDate(t *testing.T) {
	repo, mock := newMockRepo(t)
	cutoff := time.Date(2021, 3, 11, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta(`l.date < $2::date AND NOT l.archived`)).
		WithArgs("teacher-1", "2021-03-11").
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := repo.ArchiveLectures(context.Background(), "teacher-1", cutoff)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
}

func TestRepository_SetAttendanceStatusMissing(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE attendance SET status = $2, reason = NULLIF($3, ''), updated_at = $4 WHERE id = $1`)).
		WithArgs("ghost", "rejected", "late", repoNow).
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := repo.SetAttendanceStatus(context.Background(), "ghost", StatusRejected, "late", repoNow)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRepository_LecturesOn(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery(regexp.QuoteMeta(`WHERE l.date = $1::date AND NOT l.archived AND EXISTS (SELECT 1 FROM qr_codes q WHERE q.lecture_id = l.id)`)).
		WithArgs("2026-03-10").
		WillReturnRows(sqlmock.NewRows([]string{"id", "subject_id", "date", "time", "archived", "created_at"}).
			AddRow("lecture-1", "subject-1", repoDay, "09:00", false, repoNow))

	got, err := repo.LecturesOn(context.Background(), repoDay)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "09:00", got[0].Time)
}
