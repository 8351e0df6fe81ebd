// Package registrationtest holds the behaviour every registration.Repository
// must share, so each store runs the same checks against its own backend.
package registrationtest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bengaluru-wedding-fraternity/event-registration/registration"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// RepositoryFactory returns an empty repository for a single subtest.
type RepositoryFactory func(t *testing.T) registration.Repository

func NewAttendee(email string) registration.NewAttendee {
	return registration.NewAttendee{
		Name:    "Asha Rao",
		Company: "Petal Studio",
		Email:   email,
		Phone:   "9876543210",
		Role:    registration.ROLE_PHOTOGRAPHER,
	}
}

func RunRepositoryTests(t *testing.T, newRepo RepositoryFactory) {
	t.Run("create then get returns an unpaid record", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		start := time.Now().Add(-time.Second)

		expectations := "meet planners"
		input := NewAttendee("asha@petal.studio")
		input.Expectations = &expectations

		created, err := repo.CreateAttendee(ctx, input)
		require.NoError(t, err)

		assert.NotZero(t, created.ID)
		assert.False(t, created.IsPaid)
		assert.False(t, created.RegisteredAt.Before(start))
		require.NotNil(t, created.Expectations)
		assert.Equal(t, "meet planners", *created.Expectations)

		fetched, err := repo.GetAttendee(ctx, created.ID)
		require.NoError(t, err)
		if diff := cmp.Diff(created, fetched, cmpopts.EquateApproxTime(time.Millisecond)); diff != "" {
			t.Errorf("fetched attendee mismatch (-created +fetched):\n%s", diff)
		}
	})

	t.Run("absent expectations are stored as null", func(t *testing.T) {
		repo := newRepo(t)

		created, err := repo.CreateAttendee(context.Background(), NewAttendee("asha@petal.studio"))
		require.NoError(t, err)

		fetched, err := repo.GetAttendee(context.Background(), created.ID)
		require.NoError(t, err)
		assert.Nil(t, fetched.Expectations)
	})

	t.Run("ids are unique and increasing", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		first, err := repo.CreateAttendee(ctx, NewAttendee("one@petal.studio"))
		require.NoError(t, err)
		second, err := repo.CreateAttendee(ctx, NewAttendee("two@petal.studio"))
		require.NoError(t, err)

		assert.Greater(t, second.ID, first.ID)
	})

	t.Run("duplicate email is a conflict", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		_, err := repo.CreateAttendee(ctx, NewAttendee("asha@petal.studio"))
		require.NoError(t, err)

		_, err = repo.CreateAttendee(ctx, NewAttendee("ASHA@petal.studio "))
		assert.True(t, registration.HasReason(err, registration.REASON_ATTENDEE_ALREADY_EXISTS), "got %v", err)

		count, err := repo.GetAttendeesCount(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("get by email", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		created, err := repo.CreateAttendee(ctx, NewAttendee("asha@petal.studio"))
		require.NoError(t, err)

		fetched, err := repo.GetAttendeeByEmail(ctx, "Asha@Petal.Studio")
		require.NoError(t, err)
		assert.Equal(t, created.ID, fetched.ID)

		_, err = repo.GetAttendeeByEmail(ctx, "nobody@petal.studio")
		assert.True(t, registration.HasReason(err, registration.REASON_ATTENDEE_DOES_NOT_EXIST), "got %v", err)
	})

	t.Run("missing attendee", func(t *testing.T) {
		repo := newRepo(t)

		_, err := repo.GetAttendee(context.Background(), 4242)
		assert.True(t, registration.HasReason(err, registration.REASON_ATTENDEE_DOES_NOT_EXIST), "got %v", err)

		_, err = repo.UpdateAttendeePaymentStatus(context.Background(), 4242, true)
		assert.True(t, registration.HasReason(err, registration.REASON_ATTENDEE_DOES_NOT_EXIST), "got %v", err)
	})

	t.Run("count is zero when empty and counts every registration", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		count, err := repo.GetAttendeesCount(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, count)

		var ids []int64
		for i := range 3 {
			a, err := repo.CreateAttendee(ctx, NewAttendee(fmt.Sprintf("guest%d@petal.studio", i)))
			require.NoError(t, err)
			ids = append(ids, a.ID)
		}
		_, err = repo.UpdateAttendeePaymentStatus(ctx, ids[0], true)
		require.NoError(t, err)

		count, err = repo.GetAttendeesCount(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, count)

		all, err := repo.GetAllAttendees(ctx)
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.ElementsMatch(t, ids, []int64{all[0].ID, all[1].ID, all[2].ID})
	})

	t.Run("payment update only changes the paid flag", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		created, err := repo.CreateAttendee(ctx, NewAttendee("asha@petal.studio"))
		require.NoError(t, err)

		updated, err := repo.UpdateAttendeePaymentStatus(ctx, created.ID, true)
		require.NoError(t, err)

		created.IsPaid = true
		if diff := cmp.Diff(created, updated, cmpopts.EquateApproxTime(time.Millisecond)); diff != "" {
			t.Errorf("updated attendee mismatch (-expected +updated):\n%s", diff)
		}
	})

	t.Run("payment update is idempotent", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		created, err := repo.CreateAttendee(ctx, NewAttendee("asha@petal.studio"))
		require.NoError(t, err)

		first, err := repo.UpdateAttendeePaymentStatus(ctx, created.ID, true)
		require.NoError(t, err)
		second, err := repo.UpdateAttendeePaymentStatus(ctx, created.ID, true)
		require.NoError(t, err)

		assert.True(t, first.IsPaid)
		assert.True(t, second.IsPaid)
		assert.Equal(t, first.ID, second.ID)

		count, err := repo.GetAttendeesCount(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("concurrent payment updates converge", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		created, err := repo.CreateAttendee(ctx, NewAttendee("asha@petal.studio"))
		require.NoError(t, err)

		g, gctx := errgroup.WithContext(ctx)
		for range 8 {
			g.Go(func() error {
				a, err := repo.UpdateAttendeePaymentStatus(gctx, created.ID, true)
				if err != nil {
					return err
				}
				if !a.IsPaid {
					return fmt.Errorf("attendee %d not paid after update", a.ID)
				}
				return nil
			})
		}
		require.NoError(t, g.Wait())

		fetched, err := repo.GetAttendee(ctx, created.ID)
		require.NoError(t, err)
		assert.True(t, fetched.IsPaid)
	})

	t.Run("mark paid reports the flip only once", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		created, err := repo.CreateAttendee(ctx, NewAttendee("asha@petal.studio"))
		require.NoError(t, err)

		first, changed, err := repo.MarkAttendeePaid(ctx, created.ID)
		require.NoError(t, err)
		assert.True(t, changed)
		assert.True(t, first.IsPaid)

		second, changed, err := repo.MarkAttendeePaid(ctx, created.ID)
		require.NoError(t, err)
		assert.False(t, changed)
		assert.True(t, second.IsPaid)

		created.IsPaid = true
		if diff := cmp.Diff(created, second, cmpopts.EquateApproxTime(time.Millisecond)); diff != "" {
			t.Errorf("paid attendee mismatch (-expected +second):\n%s", diff)
		}
	})

	t.Run("mark paid after a status update does not report a flip", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		created, err := repo.CreateAttendee(ctx, NewAttendee("asha@petal.studio"))
		require.NoError(t, err)
		_, err = repo.UpdateAttendeePaymentStatus(ctx, created.ID, true)
		require.NoError(t, err)

		_, changed, err := repo.MarkAttendeePaid(ctx, created.ID)
		require.NoError(t, err)
		assert.False(t, changed)
	})

	t.Run("mark paid on a missing attendee", func(t *testing.T) {
		repo := newRepo(t)

		_, changed, err := repo.MarkAttendeePaid(context.Background(), 4242)
		assert.False(t, changed)
		assert.True(t, registration.HasReason(err, registration.REASON_ATTENDEE_DOES_NOT_EXIST), "got %v", err)
	})

	t.Run("exactly one concurrent mark paid reports the flip", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		created, err := repo.CreateAttendee(ctx, NewAttendee("asha@petal.studio"))
		require.NoError(t, err)

		const callers = 8
		flips := make(chan bool, callers)
		g, gctx := errgroup.WithContext(ctx)
		for range callers {
			g.Go(func() error {
				a, changed, err := repo.MarkAttendeePaid(gctx, created.ID)
				if err != nil {
					return err
				}
				if !a.IsPaid {
					return fmt.Errorf("attendee %d not paid after mark", a.ID)
				}
				flips <- changed
				return nil
			})
		}
		require.NoError(t, g.Wait())
		close(flips)

		changedCount := 0
		for changed := range flips {
			if changed {
				changedCount++
			}
		}
		assert.Equal(t, 1, changedCount)
	})

	t.Run("concurrent registrations with one email create one record", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		results := make(chan error, 5)
		var g errgroup.Group
		for range 5 {
			g.Go(func() error {
				_, err := repo.CreateAttendee(ctx, NewAttendee("asha@petal.studio"))
				results <- err
				return nil
			})
		}
		require.NoError(t, g.Wait())
		close(results)

		succeeded := 0
		for err := range results {
			if err == nil {
				succeeded++
				continue
			}
			assert.True(t, registration.HasReason(err, registration.REASON_ATTENDEE_ALREADY_EXISTS), "got %v", err)
		}
		assert.Equal(t, 1, succeeded)
	})
}
