package domain

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTaskReminder(t *testing.T) {
	taskID := uuid.New()

	n, err := NewTaskReminder(taskID)
	require.NoError(t, err)

	assert.Equal(t, taskID, n.TaskID)
	assert.Equal(t, NotificationTypeTaskReminder, n.Type)
	assert.Equal(t, NotificationStatusPending, n.Status)
	assert.Equal(t, "Reminder for task "+taskID.String(), n.Message)
	assert.Nil(t, n.SentAt)
}

func TestNotificationValidate(t *testing.T) {
	valid := func() *Notification {
		return &Notification{
			ID:      uuid.New(),
			TaskID:  uuid.New(),
			Type:    NotificationTypeTaskReminder,
			Status:  NotificationStatusPending,
			Message: "hello",
		}
	}

	tests := []struct {
		name   string
		mutate func(n *Notification)
		want   error
	}{
		{"valid", func(n *Notification) {}, nil},
		{"missing id", func(n *Notification) { n.ID = uuid.Nil }, ErrEmptyNotificationID},
		{"missing task", func(n *Notification) { n.TaskID = uuid.Nil }, ErrEmptyNotificationTaskID},
		{"empty type", func(n *Notification) { n.Type = " " }, ErrEmptyNotificationType},
		{"long type", func(n *Notification) { n.Type = NotificationType(strings.Repeat("T", 51)) }, ErrInvalidNotificationField},
		{"empty message", func(n *Notification) { n.Message = "" }, ErrEmptyNotificationMessage},
		{"long message", func(n *Notification) { n.Message = strings.Repeat("m", 501) }, ErrInvalidNotificationField},
		{"unknown status", func(n *Notification) { n.Status = "READ" }, ErrInvalidNotificationStatus},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := valid()
			tt.mutate(n)
			err := n.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestNotificationApply(t *testing.T) {
	n, err := NewTaskReminder(uuid.New())
	require.NoError(t, err)

	sent := NotificationStatusSent
	at := time.Now()
	require.NoError(t, n.Apply(NotificationChanges{Status: &sent, SentAt: &at}))
	assert.Equal(t, NotificationStatusSent, n.Status)
	require.NotNil(t, n.SentAt)

	bad := NotificationStatus("LOST")
	assert.ErrorIs(t, n.Apply(NotificationChanges{Status: &bad}), ErrInvalidNotificationStatus)
}

func TestValidationError(t *testing.T) {
	err := NewValidationError("id", "has invalid format", ErrInvalidID)
	assert.Equal(t, "id has invalid format", err.Error())
	assert.ErrorIs(t, err, ErrInvalidID)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestIsValidationError(t *testing.T) {
	assert.True(t, IsValidationError(fmt.Errorf("create: %w", ErrEmptyTaskTitle)))
	assert.True(t, IsValidationError(ErrInvalidNotificationField))
	assert.True(t, IsValidationError(NewValidationError("title", "is required", nil)))
	assert.False(t, IsValidationError(ErrInvalidTransition))
	assert.False(t, IsValidationError(errors.New("boom")))
	assert.False(t, IsValidationError(nil))
}
