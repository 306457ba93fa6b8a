package notifications

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Mouaddiguoug/feetflight/internal/errors"
	"github.com/Mouaddiguoug/feetflight/internal/logging"
	"github.com/Mouaddiguoug/feetflight/internal/models"
	"github.com/Mouaddiguoug/feetflight/internal/services/servicetest"
)

type deviceRecorder struct {
	sent []string
}

func (d *deviceRecorder) SendToDevice(ctx context.Context, token models.DeviceToken, n models.Notification) error {
	d.sent = append(d.sent, token.Token)
	return nil
}

func TestNotifyStoresAndPushes(t *testing.T) {
	env := servicetest.New()
	buyer := env.Buyer(t, "u1")
	ctx := context.Background()
	require.NoError(t, env.Stores.Users.AddDeviceToken(ctx, buyer.User.ID, models.DeviceToken{Token: "tok", Platform: "ios"}))

	devices := &deviceRecorder{}
	svc := NewService(env.Stores.Notifications, env.Stores.Users, env.Hub, devices, logging.NewDiscard())

	require.NoError(t, svc.Notify(ctx, buyer.User.ID, models.Notification{Title: "Hello"}))

	notes, err := svc.List(ctx, buyer.User.ID)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.NotEmpty(t, notes[0].ID)
	assert.Equal(t, 1, env.Hub.Count(buyer.User.ID))
	assert.Equal(t, []string{"tok"}, devices.sent)

	pushed := env.Hub.Published[buyer.User.ID][0].(Event)
	assert.Equal(t, notes[0].ID, pushed.Notification.ID)
}

func TestNotifyUnknownUser(t *testing.T) {
	env := servicetest.New()
	svc := NewService(env.Stores.Notifications, env.Stores.Users, env.Hub, nil, logging.NewDiscard())

	err := svc.Notify(context.Background(), "ghost", models.Notification{Title: "x"})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))
	assert.Equal(t, 0, env.Hub.Count("ghost"))
}

func TestMarkReadAndDelete(t *testing.T) {
	env := servicetest.New()
	buyer := env.Buyer(t, "u1")
	ctx := context.Background()
	svc := NewService(env.Stores.Notifications, env.Stores.Users, nil, nil, logging.NewDiscard())

	require.NoError(t, svc.Notify(ctx, buyer.User.ID, models.Notification{ID: "n1", Title: "x"}))

	unread, err := svc.UnreadCount(ctx, buyer.User.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), unread)

	require.NoError(t, svc.MarkRead(ctx, buyer.User.ID, "n1"))
	unread, err = svc.UnreadCount(ctx, buyer.User.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), unread)

	// Another user's notification is not visible.
	assert.True(t, apperrors.IsCode(svc.Delete(ctx, "someone", "n1"), apperrors.CodeNotFound))
	require.NoError(t, svc.Delete(ctx, buyer.User.ID, "n1"))
	assert.True(t, apperrors.IsCode(svc.MarkRead(ctx, buyer.User.ID, "n1"), apperrors.CodeNotFound))
}
