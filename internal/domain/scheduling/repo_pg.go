package scheduling

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/akudahewa/doc-spot-connect-sub000/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func mapNotFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// =========== Schedule Repository ===========

type scheduleRepoPG struct{ pool *pgxpool.Pool }

func NewScheduleRepoPG(pool *pgxpool.Pool) ScheduleRepository { return &scheduleRepoPG{pool: pool} }

func (r *scheduleRepoPG) conn(ctx context.Context) queryable {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const sessionCols = `id, doctor_id, dispensary_id, weekday, start_time, end_time,
	max_patients, slot_minutes, created_at, updated_at`

func (r *scheduleRepoPG) scanSession(row pgx.Row) (*RecurringSession, error) {
	var s RecurringSession
	err := row.Scan(&s.ID, &s.DoctorID, &s.DispensaryID, &s.Weekday, &s.StartTime, &s.EndTime,
		&s.MaxPatients, &s.SlotMinutes, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return &s, nil
}

func (r *scheduleRepoPG) CreateSession(ctx context.Context, s *RecurringSession) error {
	s.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO recurring_session (id, doctor_id, dispensary_id, weekday,
			start_time, end_time, max_patients, slot_minutes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		s.ID, s.DoctorID, s.DispensaryID, s.Weekday,
		s.StartTime, s.EndTime, s.MaxPatients, s.SlotMinutes)
	if isUniqueViolation(err) {
		return ErrDuplicateSession
	}
	return err
}

func (r *scheduleRepoPG) GetSession(ctx context.Context, id uuid.UUID) (*RecurringSession, error) {
	return r.scanSession(r.conn(ctx).QueryRow(ctx, `SELECT `+sessionCols+` FROM recurring_session WHERE id = $1`, id))
}

func (r *scheduleRepoPG) GetSessionByWeekday(ctx context.Context, doctorID, dispensaryID uuid.UUID, weekday int) (*RecurringSession, error) {
	return r.scanSession(r.conn(ctx).QueryRow(ctx, `
		SELECT `+sessionCols+` FROM recurring_session
		WHERE doctor_id = $1 AND dispensary_id = $2 AND weekday = $3`,
		doctorID, dispensaryID, weekday))
}

func (r *scheduleRepoPG) UpdateSession(ctx context.Context, s *RecurringSession) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE recurring_session SET weekday=$2, start_time=$3, end_time=$4,
			max_patients=$5, slot_minutes=$6, updated_at=NOW()
		WHERE id = $1`,
		s.ID, s.Weekday, s.StartTime, s.EndTime, s.MaxPatients, s.SlotMinutes)
	if isUniqueViolation(err) {
		return ErrDuplicateSession
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *scheduleRepoPG) DeleteSession(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM recurring_session WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *scheduleRepoPG) ListSessions(ctx context.Context, doctorID, dispensaryID uuid.UUID) ([]*RecurringSession, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+sessionCols+` FROM recurring_session
		WHERE doctor_id = $1 AND dispensary_id = $2 ORDER BY weekday ASC`,
		doctorID, dispensaryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*RecurringSession
	for rows.Next() {
		s, err := r.scanSession(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, rows.Err()
}

const overrideCols = `id, doctor_id, dispensary_id, day, closed, start_time, end_time,
	max_patients, slot_minutes, note, created_at, updated_at`

func (r *scheduleRepoPG) scanOverride(row pgx.Row) (*ScheduleOverride, error) {
	var o ScheduleOverride
	err := row.Scan(&o.ID, &o.DoctorID, &o.DispensaryID, &o.Day, &o.Closed, &o.StartTime, &o.EndTime,
		&o.MaxPatients, &o.SlotMinutes, &o.Note, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return &o, nil
}

func (r *scheduleRepoPG) CreateOverride(ctx context.Context, o *ScheduleOverride) error {
	o.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO schedule_override (id, doctor_id, dispensary_id, day, closed,
			start_time, end_time, max_patients, slot_minutes, note)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		o.ID, o.DoctorID, o.DispensaryID, o.Day, o.Closed,
		o.StartTime, o.EndTime, o.MaxPatients, o.SlotMinutes, o.Note)
	if isUniqueViolation(err) {
		return ErrDuplicateOverride
	}
	return err
}

func (r *scheduleRepoPG) GetOverride(ctx context.Context, id uuid.UUID) (*ScheduleOverride, error) {
	return r.scanOverride(r.conn(ctx).QueryRow(ctx, `SELECT `+overrideCols+` FROM schedule_override WHERE id = $1`, id))
}

func (r *scheduleRepoPG) GetOverrideByDate(ctx context.Context, doctorID, dispensaryID uuid.UUID, day Date) (*ScheduleOverride, error) {
	return r.scanOverride(r.conn(ctx).QueryRow(ctx, `
		SELECT `+overrideCols+` FROM schedule_override
		WHERE doctor_id = $1 AND dispensary_id = $2 AND day = $3`,
		doctorID, dispensaryID, day))
}

func (r *scheduleRepoPG) DeleteOverride(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM schedule_override WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *scheduleRepoPG) ListOverrides(ctx context.Context, doctorID, dispensaryID uuid.UUID, from, to Date) ([]*ScheduleOverride, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+overrideCols+` FROM schedule_override
		WHERE doctor_id = $1 AND dispensary_id = $2 AND day BETWEEN $3 AND $4
		ORDER BY day ASC`,
		doctorID, dispensaryID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*ScheduleOverride
	for rows.Next() {
		o, err := r.scanOverride(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, o)
	}
	return items, rows.Err()
}

// =========== Booking Repository ===========

type bookingRepoPG struct{ pool *pgxpool.Pool }

func NewBookingRepoPG(pool *pgxpool.Pool) BookingRepository { return &bookingRepoPG{pool: pool} }

func (r *bookingRepoPG) conn(ctx context.Context) queryable {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const bookingCols = `id, doctor_id, dispensary_id, day, slot_number, start_time, end_time,
	patient_name, patient_phone, patient_email, status, note, created_at, updated_at`

func (r *bookingRepoPG) scanBooking(row pgx.Row) (*Booking, error) {
	var b Booking
	err := row.Scan(&b.ID, &b.DoctorID, &b.DispensaryID, &b.Day, &b.SlotNumber, &b.StartTime, &b.EndTime,
		&b.PatientName, &b.PatientPhone, &b.PatientEmail, &b.Status, &b.Note, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return &b, nil
}

// Insert relies on the partial unique index over active bookings; a losing
// concurrent writer gets ErrSlotTaken and the allocator retries with the
// next free number. The insert is a single statement, so an abandoned
// request never leaves a partial row.
func (r *bookingRepoPG) Insert(ctx context.Context, b *Booking) error {
	b.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO booking (id, doctor_id, dispensary_id, day, slot_number,
			start_time, end_time, patient_name, patient_phone, patient_email, status, note)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		b.ID, b.DoctorID, b.DispensaryID, b.Day, b.SlotNumber,
		b.StartTime, b.EndTime, b.PatientName, b.PatientPhone, b.PatientEmail, b.Status, b.Note)
	if isUniqueViolation(err) {
		return ErrSlotTaken
	}
	return err
}

func (r *bookingRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Booking, error) {
	return r.scanBooking(r.conn(ctx).QueryRow(ctx, `SELECT `+bookingCols+` FROM booking WHERE id = $1`, id))
}

// UpdateStatus persists a status change. Re-activating a cancelled row can
// collide with the booking that took over its slot number; the partial
// unique index fires on the update and is reported as ErrSlotTaken.
func (r *bookingRepoPG) UpdateStatus(ctx context.Context, b *Booking) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE booking SET status=$2, note=$3, updated_at=NOW()
		WHERE id = $1`,
		b.ID, b.Status, b.Note)
	if isUniqueViolation(err) {
		return ErrSlotTaken
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *bookingRepoPG) OccupiedSlots(ctx context.Context, doctorID, dispensaryID uuid.UUID, day Date) ([]int, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT slot_number FROM booking
		WHERE doctor_id = $1 AND dispensary_id = $2 AND day = $3 AND status <> $4
		ORDER BY slot_number ASC`,
		doctorID, dispensaryID, day, StatusCancelled)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var slots []int
	for rows.Next() {
		var n int
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		slots = append(slots, n)
	}
	return slots, rows.Err()
}

func (r *bookingRepoPG) ListByDay(ctx context.Context, doctorID, dispensaryID uuid.UUID, day Date, limit, offset int) ([]*Booking, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*) FROM booking
		WHERE doctor_id = $1 AND dispensary_id = $2 AND day = $3`,
		doctorID, dispensaryID, day).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+bookingCols+` FROM booking
		WHERE doctor_id = $1 AND dispensary_id = $2 AND day = $3
		ORDER BY slot_number ASC LIMIT $4 OFFSET $5`,
		doctorID, dispensaryID, day, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Booking
	for rows.Next() {
		b, err := r.scanBooking(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, b)
	}
	return items, total, rows.Err()
}
