package model_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/unclebandit/courier-backend/internal/model"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to model.MessageStatus
		want     bool
	}{
		{model.StatusQueued, model.StatusSent, true},
		{model.StatusQueued, model.StatusDelivered, true},
		{model.StatusQueued, model.StatusRead, true},
		{model.StatusQueued, model.StatusFailed, true},
		{model.StatusSent, model.StatusDelivered, true},
		{model.StatusSent, model.StatusRead, true},
		{model.StatusSent, model.StatusFailed, true},
		{model.StatusDelivered, model.StatusRead, true},
		{model.StatusDelivered, model.StatusFailed, true},

		// No regressions.
		{model.StatusSent, model.StatusQueued, false},
		{model.StatusDelivered, model.StatusSent, false},
		{model.StatusRead, model.StatusDelivered, false},

		// Terminal states stay put.
		{model.StatusFailed, model.StatusSent, false},
		{model.StatusFailed, model.StatusDelivered, false},
		{model.StatusRead, model.StatusFailed, false},

		// Duplicates are no-ops.
		{model.StatusSent, model.StatusSent, false},
		{model.StatusFailed, model.StatusFailed, false},
	}

	for _, tc := range cases {
		got := model.CanTransition(tc.from, tc.to)
		assert.Equal(t, tc.want, got, "%s -> %s", tc.from, tc.to)
	}
}

// Applying any permutation of the same event set must land on the same final
// status.
func TestTransitionOrderIndependence(t *testing.T) {
	events := []model.MessageStatus{model.StatusSent, model.StatusDelivered, model.StatusRead}

	permutations := [][]int{
		{0, 1, 2}, {0, 2, 1}, {1, 0, 2}, {1, 2, 0}, {2, 0, 1}, {2, 1, 0},
	}

	for _, perm := range permutations {
		status := model.StatusQueued
		for _, idx := range perm {
			if model.CanTransition(status, events[idx]) {
				status = events[idx]
			}
		}
		assert.Equal(t, model.StatusRead, status, "permutation %v", perm)
	}
}

func TestTransitionFailedIsSticky(t *testing.T) {
	// Once failed, later success events cannot resurrect the message.
	status := model.StatusSent
	for _, ev := range []model.MessageStatus{model.StatusFailed, model.StatusDelivered, model.StatusRead} {
		if model.CanTransition(status, ev) {
			status = ev
		}
	}
	assert.Equal(t, model.StatusFailed, status)
}

func TestIsValid(t *testing.T) {
	for _, s := range []model.MessageStatus{
		model.StatusQueued, model.StatusSent, model.StatusDelivered, model.StatusRead, model.StatusFailed,
	} {
		assert.True(t, s.IsValid(), string(s))
	}
	assert.False(t, model.MessageStatus("bounced").IsValid())
}
