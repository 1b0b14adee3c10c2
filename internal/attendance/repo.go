package attendance

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"qrattend/internal/auth"
)

// Repository persists attendance data in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

var _ Store = (*Repository)(nil)

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func missing(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return notFound(what)
	}
	return err
}

// -------- Users --------

const userCols = `id, name, email, password_hash, role, is_active, created_at`

func scanUser(row rowScanner) (User, error) {
	var u User
	var role string
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &role, &u.Active, &u.CreatedAt); err != nil {
		return User{}, err
	}
	r, err := auth.ParseRole(role)
	if err != nil {
		return User{}, err
	}
	u.Role = r
	return u, nil
}

// GetUser returns a user by id.
func (r *Repository) GetUser(ctx context.Context, id string) (User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE id = $1`, id))
	return u, missing(err, "user")
}

// GetUserByEmail returns a user by login email.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE lower(email) = lower($1)`, email))
	return u, missing(err, "user")
}

// -------- Courses, sessions, classes, subjects --------

// GetCourse returns a course by id.
func (r *Repository) GetCourse(ctx context.Context, id string) (Course, error) {
	var c Course
	err := r.db.QueryRowContext(ctx, `SELECT id, name FROM courses WHERE id = $1`, id).Scan(&c.ID, &c.Name)
	return c, missing(err, "course")
}

// ActiveSession returns the active academic session or nil when none is flagged.
func (r *Repository) ActiveSession(ctx context.Context) (*Session, error) {
	var s Session
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, start_date, end_date, is_active
		FROM academic_sessions WHERE is_active
		LIMIT 1
	`).Scan(&s.ID, &s.Name, &s.StartDate, &s.EndDate, &s.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// GetClass returns a class by id.
func (r *Repository) GetClass(ctx context.Context, id string) (Class, error) {
	var c Class
	err := r.db.QueryRowContext(ctx, `SELECT id, name, course_id, session_id FROM classes WHERE id = $1`, id).
		Scan(&c.ID, &c.Name, &c.CourseID, &c.SessionID)
	return c, missing(err, "class")
}

const subjectCols = `s.id, s.name, s.class_id, s.teacher_id`

func scanSubjects(rows *sql.Rows) ([]Subject, error) {
	defer rows.Close()
	var out []Subject
	for rows.Next() {
		var s Subject
		if err := rows.Scan(&s.ID, &s.Name, &s.ClassID, &s.TeacherID); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// GetSubject returns a subject by id.
func (r *Repository) GetSubject(ctx context.Context, id string) (Subject, error) {
	var s Subject
	err := r.db.QueryRowContext(ctx, `SELECT `+subjectCols+` FROM subjects s WHERE s.id = $1`, id).
		Scan(&s.ID, &s.Name, &s.ClassID, &s.TeacherID)
	return s, missing(err, "subject")
}

// StudentSubjects returns the subjects of the student's classes in a session.
func (r *Repository) StudentSubjects(ctx context.Context, studentID, sessionID string) ([]Subject, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+subjectCols+`
		FROM subjects s
		JOIN classes c ON c.id = s.class_id
		JOIN class_students cs ON cs.class_id = c.id
		WHERE cs.student_id = $1 AND c.session_id = $2
		ORDER BY s.name
	`, studentID, sessionID)
	if err != nil {
		return nil, err
	}
	return scanSubjects(rows)
}

// TeacherSubjects returns the teacher's subjects in a session.
func (r *Repository) TeacherSubjects(ctx context.Context, teacherID, sessionID string) ([]Subject, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+subjectCols+`
		FROM subjects s
		JOIN classes c ON c.id = s.class_id
		WHERE s.teacher_id = $1 AND c.session_id = $2
		ORDER BY s.name
	`, teacherID, sessionID)
	if err != nil {
		return nil, err
	}
	return scanSubjects(rows)
}

// -------- Roster --------

// IsEnrolled reports roster membership.
func (r *Repository) IsEnrolled(ctx context.Context, classID, studentID string) (bool, error) {
	var ok bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM class_students WHERE class_id = $1 AND student_id = $2)
	`, classID, studentID).Scan(&ok)
	return ok, err
}

// Roster lists the students of a class by name.
func (r *Repository) Roster(ctx context.Context, classID string) ([]User, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT u.id, u.name, u.email, u.password_hash, u.role, u.is_active, u.created_at
		FROM users u
		JOIN class_students cs ON cs.student_id = u.id
		WHERE cs.class_id = $1
		ORDER BY u.name
	`, classID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// Enroll adds a student to a class; enrolling twice is a no-op.
func (r *Repository) Enroll(ctx context.Context, classID, studentID string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO class_students (class_id, student_id)
		VALUES ($1, $2)
		ON CONFLICT (class_id, student_id) DO NOTHING
	`, classID, studentID)
	return err
}

// Unenroll removes a student from a class.
func (r *Repository) Unenroll(ctx context.Context, classID, studentID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM class_students WHERE class_id = $1 AND student_id = $2`, classID, studentID)
	return err
}

// -------- Lectures --------

const lectureCols = `id, subject_id, date, to_char(time, 'HH24:MI'), archived, created_at`

func scanLecture(row rowScanner) (Lecture, error) {
	var l Lecture
	err := row.Scan(&l.ID, &l.SubjectID, &l.Date, &l.Time, &l.Archived, &l.CreatedAt)
	return l, err
}

// GetLecture returns a lecture by id, archived or not.
func (r *Repository) GetLecture(ctx context.Context, id string) (Lecture, error) {
	l, err := scanLecture(r.db.QueryRowContext(ctx, `SELECT `+lectureCols+` FROM lectures WHERE id = $1`, id))
	return l, missing(err, "lecture")
}

// CreateLecture inserts a lecture.
func (r *Repository) CreateLecture(ctx context.Context, l Lecture) (Lecture, error) {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO lectures (id, subject_id, date, time, archived, created_at)
		VALUES ($1, $2, $3, $4::time, FALSE, $5)
	`, l.ID, l.SubjectID, l.Date, l.Time, l.CreatedAt)
	return l, err
}

// ListLectures returns a subject's lectures, newest first.
func (r *Repository) ListLectures(ctx context.Context, subjectID string, includeArchived bool) ([]Lecture, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+lectureCols+`
		FROM lectures
		WHERE subject_id = $1 AND ($2 OR NOT archived)
		ORDER BY date DESC, time DESC
	`, subjectID, includeArchived)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Lecture
	for rows.Next() {
		l, err := scanLecture(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// LecturesOn returns the day's unarchived lectures that had a QR code issued, by start time.
func (r *Repository) LecturesOn(ctx context.Context, day time.Time) ([]Lecture, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+lectureCols+`
		FROM lectures l
		WHERE l.date = $1::date AND NOT l.archived
			AND EXISTS (SELECT 1 FROM qr_codes q WHERE q.lecture_id = l.id)
		ORDER BY l.time, l.id
	`, day.Format(time.DateOnly))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Lecture
	for rows.Next() {
		l, err := scanLecture(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// CountLectures counts every lecture of a subject, archived included.
func (r *Repository) CountLectures(ctx context.Context, subjectID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM lectures WHERE subject_id = $1`, subjectID).Scan(&n)
	return n, err
}

// ArchiveLectures flags the teacher's lectures dated before cutoff.
func (r *Repository) ArchiveLectures(ctx context.Context, teacherID string, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE lectures l
		SET archived = TRUE
		FROM subjects s
		WHERE l.subject_id = s.id AND s.teacher_id = $1 AND l.date < $2::date AND NOT l.archived
	`, teacherID, cutoff.Format(time.DateOnly))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// -------- QR codes --------

const qrCols = `id, lecture_id, token, created_at, expires_at`

func scanQRCode(row rowScanner) (QRCode, error) {
	var q QRCode
	var lectureID sql.NullString
	if err := row.Scan(&q.ID, &lectureID, &q.Token, &q.CreatedAt, &q.ExpiresAt); err != nil {
		return QRCode{}, err
	}
	if lectureID.Valid {
		q.LectureID = &lectureID.String
	}
	return q, nil
}

// ActiveQRCode returns the lecture's unexpired token with the latest expiry.
func (r *Repository) ActiveQRCode(ctx context.Context, lectureID string, now time.Time) (*QRCode, error) {
	q, err := scanQRCode(r.db.QueryRowContext(ctx, `
		SELECT `+qrCols+`
		FROM qr_codes
		WHERE lecture_id = $1 AND expires_at > $2
		ORDER BY expires_at DESC
		LIMIT 1
	`, lectureID, now))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &q, nil
}

// CreateQRCode inserts a token.
func (r *Repository) CreateQRCode(ctx context.Context, q QRCode) (QRCode, error) {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO qr_codes (id, lecture_id, token, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
	`, q.ID, q.LectureID, q.Token, q.CreatedAt, q.ExpiresAt)
	return q, err
}

// GetQRCodeByToken looks a token up by its scanned value.
func (r *Repository) GetQRCodeByToken(ctx context.Context, token string) (QRCode, error) {
	q, err := scanQRCode(r.db.QueryRowContext(ctx, `SELECT `+qrCols+` FROM qr_codes WHERE token = $1`, token))
	return q, missing(err, "qr code")
}

// -------- Attendance --------

const attendanceCols = `a.id, a.student_id, u.name, a.lecture_id, a.subject_id, a.lecture_date, a.status, COALESCE(a.reason, ''), a.created_at, a.updated_at`

const attendanceFrom = ` FROM attendance a JOIN users u ON u.id = a.student_id`

// changedCols is attendanceCols over the "changed" CTE of ApprovePending.
const changedCols = `c.id, c.student_id, u.name, c.lecture_id, c.subject_id, c.lecture_date, c.status, COALESCE(c.reason, ''), c.created_at, c.updated_at`

func scanAttendance(row rowScanner) (Attendance, error) {
	var a Attendance
	var status string
	if err := row.Scan(&a.ID, &a.StudentID, &a.StudentName, &a.LectureID, &a.SubjectID, &a.LectureDate, &status, &a.Reason, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return Attendance{}, err
	}
	a.Status = Status(status)
	return a, nil
}

func collectAttendance(rows *sql.Rows) ([]Attendance, error) {
	defer rows.Close()
	var out []Attendance
	for rows.Next() {
		a, err := scanAttendance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// GetOrCreateAttendance relies on the (student_id, lecture_id) unique
// constraint so concurrent scans cannot both insert.
func (r *Repository) GetOrCreateAttendance(ctx context.Context, a Attendance) (Attendance, bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance (id, student_id, lecture_id, subject_id, lecture_date, status, reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $8)
		ON CONFLICT (student_id, lecture_id) DO NOTHING
	`, a.ID, a.StudentID, a.LectureID, a.SubjectID, a.LectureDate, string(a.Status), a.Reason, a.CreatedAt)
	if err != nil {
		return Attendance{}, false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Attendance{}, false, err
	}
	stored, err := scanAttendance(r.db.QueryRowContext(ctx, `SELECT `+attendanceCols+attendanceFrom+`
		WHERE a.student_id = $1 AND a.lecture_id = $2`, a.StudentID, a.LectureID))
	if err != nil {
		return Attendance{}, false, missing(err, "attendance")
	}
	return stored, n == 1, nil
}

// GetAttendance returns a claim by id.
func (r *Repository) GetAttendance(ctx context.Context, id string) (Attendance, error) {
	a, err := scanAttendance(r.db.QueryRowContext(ctx, `SELECT `+attendanceCols+attendanceFrom+` WHERE a.id = $1`, id))
	return a, missing(err, "attendance")
}

// SetAttendanceStatus overwrites status and reason of one claim.
func (r *Repository) SetAttendanceStatus(ctx context.Context, id string, status Status, reason string, at time.Time) (Attendance, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE attendance
		SET status = $2, reason = NULLIF($3, ''), updated_at = $4
		WHERE id = $1
	`, id, string(status), reason, at)
	if err != nil {
		return Attendance{}, err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return Attendance{}, notFound("attendance")
	}
	return r.GetAttendance(ctx, id)
}

// ApprovePending approves every pending claim of a lecture in one statement.
func (r *Repository) ApprovePending(ctx context.Context, lectureID string, at time.Time) ([]Attendance, error) {
	rows, err := r.db.QueryContext(ctx, `
		WITH changed AS (
			UPDATE attendance
			SET status = 'approved', reason = NULL, updated_at = $2
			WHERE lecture_id = $1 AND status = 'pending'
			RETURNING *
		)
		SELECT `+changedCols+`
		FROM changed c JOIN users u ON u.id = c.student_id
	`, lectureID, at)
	if err != nil {
		return nil, err
	}
	return collectAttendance(rows)
}

// ListAttendance returns claims matching the filter, oldest lecture first.
func (r *Repository) ListAttendance(ctx context.Context, f AttendanceFilter) ([]Attendance, error) {
	var clauses []string
	var args []any
	add := func(clause string, v any) {
		args = append(args, v)
		clauses = append(clauses, strings.ReplaceAll(clause, "?", "$"+strconv.Itoa(len(args))))
	}
	if f.StudentID != "" {
		add("a.student_id = ?", f.StudentID)
	}
	if f.LectureID != "" {
		add("a.lecture_id = ?", f.LectureID)
	}
	if f.SubjectID != "" {
		add("a.subject_id = ?", f.SubjectID)
	}
	if f.Status != "" {
		add("a.status = ?", string(f.Status))
	}
	// Dates travel as YYYY-MM-DD so the session time zone cannot shift them.
	if f.From != nil {
		add("a.lecture_date >= ?::date", f.From.Format(time.DateOnly))
	}
	if f.To != nil {
		add("a.lecture_date <= ?::date", f.To.Format(time.DateOnly))
	}

	query := `SELECT ` + attendanceCols + attendanceFrom
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY a.lecture_date, a.created_at"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectAttendance(rows)
}

// CountApproved counts a student's approved claims in a subject.
func (r *Repository) CountApproved(ctx context.Context, subjectID, studentID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM attendance
		WHERE subject_id = $1 AND student_id = $2 AND status = 'approved'
	`, subjectID, studentID).Scan(&n)
	return n, err
}
