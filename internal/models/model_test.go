package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTableNames(t *testing.T) {
	require.Equal(t, "users", User{}.TableName())
	require.Equal(t, "courses", Course{}.TableName())
	require.Equal(t, "enrollments", Enrollment{}.TableName())
	require.Equal(t, "lesson_progress", LessonProgress{}.TableName())
	require.Equal(t, "user_tags", UserTag{}.TableName())
	require.Equal(t, "email_bounces", EmailBounce{}.TableName())
	require.Equal(t, "webhook_events", WebhookEvent{}.TableName())
	require.Equal(t, "webhook_reservations", WebhookReservation{}.TableName())
}

func TestUser_FirstNameOrEmpty(t *testing.T) {
	var nilUser *User
	require.Empty(t, nilUser.FirstNameOrEmpty())
	name := "Jane"
	require.Equal(t, "Jane", (&User{FirstName: &name}).FirstNameOrEmpty())
}
