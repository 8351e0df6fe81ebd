package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bengaluru-wedding-fraternity/event-registration/registration"
	"github.com/uptrace/bun"
)

var _ registration.Repository = &DB{}

const queryTimeout = time.Second

type attendeeModel struct {
	bun.BaseModel `bun:"table:attendees"`

	ID           int64     `bun:"id,pk,autoincrement"`
	Name         string    `bun:"name,notnull"`
	Company      string    `bun:"company,notnull"`
	Email        string    `bun:"email,notnull,unique"`
	Phone        string    `bun:"phone,notnull"`
	Role         string    `bun:"role,notnull"`
	Expectations *string   `bun:"expectations"`
	RegisteredAt time.Time `bun:"registered_at,notnull,default:current_timestamp"`
	IsPaid       bool      `bun:"is_paid,notnull,default:false"`
}

func (m attendeeModel) toAttendee() registration.Attendee {
	return registration.Attendee{
		ID:           m.ID,
		Name:         m.Name,
		Company:      m.Company,
		Email:        m.Email,
		Phone:        m.Phone,
		Role:         registration.Role(m.Role),
		Expectations: m.Expectations,
		RegisteredAt: m.RegisteredAt.UTC(),
		IsPaid:       m.IsPaid,
	}
}

func (d *DB) CreateAttendee(ctx context.Context, attendee registration.NewAttendee) (registration.Attendee, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	model := attendeeModel{
		Name:         attendee.Name,
		Company:      attendee.Company,
		Email:        registration.NormalizeEmail(attendee.Email),
		Phone:        attendee.Phone,
		Role:         string(attendee.Role),
		Expectations: attendee.Expectations,
		RegisteredAt: time.Now().UTC(),
		IsPaid:       false,
	}

	_, err := d.db.NewInsert().
		Model(&model).
		Returning("*").
		Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return registration.Attendee{}, registration.NewAttendeeAlreadyExistsError(fmt.Sprintf("Attendee with email %q already exists", model.Email), err)
		} else if errors.Is(err, context.DeadlineExceeded) {
			return registration.Attendee{}, registration.NewTimeoutError("CreateAttendee timed out")
		}
		return registration.Attendee{}, registration.NewFailedToWriteError("Failed to insert attendee", err)
	}

	return model.toAttendee(), nil
}

func (d *DB) GetAttendee(ctx context.Context, id int64) (registration.Attendee, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	return getAttendee(ctx, d.db, id)
}

func getAttendee(ctx context.Context, db bun.IDB, id int64) (registration.Attendee, error) {
	var model attendeeModel
	err := db.NewSelect().
		Model(&model).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		return registration.Attendee{}, fetchError(err, fmt.Sprintf("Attendee %d", id))
	}

	return model.toAttendee(), nil
}

func (d *DB) GetAttendeeByEmail(ctx context.Context, email string) (registration.Attendee, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	email = registration.NormalizeEmail(email)

	var model attendeeModel
	err := d.db.NewSelect().
		Model(&model).
		Where("email = ?", email).
		Scan(ctx)
	if err != nil {
		return registration.Attendee{}, fetchError(err, fmt.Sprintf("Attendee with email %q", email))
	}

	return model.toAttendee(), nil
}

func (d *DB) GetAllAttendees(ctx context.Context) ([]registration.Attendee, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var models []attendeeModel
	err := d.db.NewSelect().
		Model(&models).
		Order("id ASC").
		Scan(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, registration.NewTimeoutError("GetAllAttendees timed out")
		}
		return nil, registration.NewFailedToFetchError("Failed to list attendees", err)
	}

	attendees := make([]registration.Attendee, 0, len(models))
	for _, m := range models {
		attendees = append(attendees, m.toAttendee())
	}
	return attendees, nil
}

func (d *DB) GetAttendeesCount(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	count, err := d.db.NewSelect().
		Model((*attendeeModel)(nil)).
		Count(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return 0, registration.NewTimeoutError("GetAttendeesCount timed out")
		}
		return 0, registration.NewFailedToFetchError("Failed to count attendees", err)
	}

	return count, nil
}

func (d *DB) UpdateAttendeePaymentStatus(ctx context.Context, id int64, isPaid bool) (registration.Attendee, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var updated registration.Attendee
	err := d.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().
			Model((*attendeeModel)(nil)).
			Set("is_paid = ?", isPaid).
			Where("id = ?", id).
			Exec(ctx)
		if err != nil {
			return err
		}

		rows, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			return registration.NewAttendeeDoesNotExistError(fmt.Sprintf("Attendee %d does not exist", id), nil)
		}

		updated, err = getAttendee(ctx, tx, id)
		return err
	})
	if err != nil {
		var regErr *registration.Error
		if errors.As(err, &regErr) {
			return registration.Attendee{}, regErr
		} else if errors.Is(err, context.DeadlineExceeded) {
			return registration.Attendee{}, registration.NewTimeoutError("UpdateAttendeePaymentStatus timed out")
		}
		return registration.Attendee{}, registration.NewFailedToWriteError(fmt.Sprintf("Failed to update payment status of attendee %d", id), err)
	}

	return updated, nil
}

func (d *DB) MarkAttendeePaid(ctx context.Context, id int64) (registration.Attendee, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	// Only an unpaid row matches, so the affected row count says whether this
	// call did the flip.
	res, err := d.db.NewUpdate().
		Model((*attendeeModel)(nil)).
		Set("is_paid = ?", true).
		Where("id = ?", id).
		Where("is_paid = ?", false).
		Exec(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return registration.Attendee{}, false, registration.NewTimeoutError("MarkAttendeePaid timed out")
		}
		return registration.Attendee{}, false, registration.NewFailedToWriteError(fmt.Sprintf("Failed to mark attendee %d paid", id), err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return registration.Attendee{}, false, registration.NewFailedToWriteError(fmt.Sprintf("Failed to mark attendee %d paid", id), err)
	}

	attendee, err := getAttendee(ctx, d.db, id)
	if err != nil {
		return registration.Attendee{}, false, err
	}

	return attendee, rows == 1, nil
}

func fetchError(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return registration.NewAttendeeDoesNotExistError(what+" does not exist", nil)
	} else if errors.Is(err, context.DeadlineExceeded) {
		return registration.NewTimeoutError(fmt.Sprintf("Fetching %s timed out", what))
	}
	return registration.NewFailedToFetchError(fmt.Sprintf("Failed to fetch %s", what), err)
}

// isUniqueViolation matches the constraint error text of both SQLite drivers
// sqliteshim can pick.
func isUniqueViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "constraint failed: UNIQUE")
}
