package attendance

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusApproved, true},
		{StatusPending, StatusRejected, true},
		{StatusApproved, StatusRejected, true},
		{StatusRejected, StatusApproved, true},
		{StatusApproved, StatusApproved, true},
		{StatusApproved, StatusPending, false},
		{StatusRejected, StatusPending, false},
		{Status("bogus"), StatusApproved, false},
		{StatusPending, Status("bogus"), false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, CanTransition(c.from, c.to), "%s -> %s", c.from, c.to)
	}
}

func TestPercentage(t *testing.T) {
	assert.Equal(t, 0, Percentage(0, 0))
	assert.Equal(t, 0, Percentage(3, 0))
	assert.Equal(t, 100, Percentage(4, 4))
	assert.Equal(t, 67, Percentage(2, 3))
	assert.Equal(t, 33, Percentage(1, 3))
	assert.Equal(t, 13, Percentage(1, 8)) // 12.5 rounds half away from zero
}

func TestErrorKinds(t *testing.T) {
	err := forbidden("You are not the teacher of %s", "Algorithms")
	assert.True(t, errors.Is(err, ErrAuthorization))
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, "You are not the teacher of Algorithms", err.Error())

	var e *Error
	assert.True(t, errors.As(notFound("lecture"), &e))
	assert.Equal(t, "lecture not found", e.Message)
}

func TestDateOf(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*3600)
	got := dateOf(time.Date(2026, 3, 10, 1, 30, 0, 0, loc))
	assert.Equal(t, time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), got)
}
