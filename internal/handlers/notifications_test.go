package handlers_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/jasamarket/internal/handlers/testutil"
	"github.com/charlesng35/jasamarket/internal/models"
	"github.com/charlesng35/jasamarket/internal/services"
)

func TestNotificationHandlerListAndMarkRead(t *testing.T) {
	env := testutil.NewEnv(t)
	profile := env.CreateProfile("dana@example.com", "DanaPassword1", models.RoleUser)
	token := env.Login("dana@example.com", "DanaPassword1").Tokens.AccessToken

	ctx := context.Background()
	first, err := env.Notifications.Create(ctx, services.CreateNotificationInput{
		UserID:  profile.ID,
		Type:    "verification.approved",
		Title:   "Verification approved",
		Message: "You can now offer services",
	})
	require.NoError(t, err)
	_, err = env.Notifications.Create(ctx, services.CreateNotificationInput{
		UserID:  profile.ID,
		Type:    "verification.rejected",
		Title:   "Verification rejected",
		Message: "Please upload a clearer photo",
	})
	require.NoError(t, err)

	list := env.Request(http.MethodGet, "/api/notifications", nil, token)
	require.Equal(t, http.StatusOK, list.Code, list.Body.String())
	require.Equal(t, "2", list.Header().Get("X-Unread-Count"))
	var items []services.NotificationDTO
	testutil.DecodeInto(t, testutil.DecodeResponse(t, list).Data, &items)
	require.Len(t, items, 2)

	read := env.Request(http.MethodPost, "/api/notifications/"+first.ID+"/read", nil, token)
	require.Equal(t, http.StatusOK, read.Code, read.Body.String())
	var updated services.NotificationDTO
	testutil.DecodeInto(t, testutil.DecodeResponse(t, read).Data, &updated)
	require.True(t, updated.IsRead)

	unread := env.Request(http.MethodGet, "/api/notifications?unread=true", nil, token)
	require.Equal(t, "1", unread.Header().Get("X-Unread-Count"))
	testutil.DecodeInto(t, testutil.DecodeResponse(t, unread).Data, &items)
	require.Len(t, items, 1)
	require.NotEqual(t, first.ID, items[0].ID)

	all := env.Request(http.MethodPost, "/api/notifications/read-all", nil, token)
	require.Equal(t, http.StatusOK, all.Code)

	count, err := env.Notifications.UnreadCount(ctx, profile.ID)
	require.NoError(t, err)
	require.Zero(t, count)

	del := env.Request(http.MethodDelete, "/api/notifications/"+first.ID, nil, token)
	require.Equal(t, http.StatusOK, del.Code)

	gone := env.Request(http.MethodPost, "/api/notifications/"+first.ID+"/read", nil, token)
	require.Equal(t, http.StatusNotFound, gone.Code)
}

func TestNotificationHandlerScopesToOwner(t *testing.T) {
	env := testutil.NewEnv(t)
	owner := env.CreateProfile("owner@example.com", "OwnerPassword1", models.RoleUser)
	env.CreateProfile("other@example.com", "OtherPassword1", models.RoleUser)
	otherToken := env.Login("other@example.com", "OtherPassword1").Tokens.AccessToken

	notification, err := env.Notifications.Create(context.Background(), services.CreateNotificationInput{
		UserID:  owner.ID,
		Type:    "verification.approved",
		Title:   "Verification approved",
		Message: "Welcome aboard",
	})
	require.NoError(t, err)

	resp := env.Request(http.MethodDelete, "/api/notifications/"+notification.ID, nil, otherToken)
	require.Equal(t, http.StatusNotFound, resp.Code)

	resp = env.Request(http.MethodPost, "/api/notifications/not-a-uuid/read", nil, otherToken)
	require.Equal(t, http.StatusNotFound, resp.Code)

	resp = env.Request(http.MethodGet, "/api/notifications", nil, "")
	require.Equal(t, http.StatusUnauthorized, resp.Code)
}
