package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mouaddiguoug/feetflight/internal/graphdb/graphdbtest"
	"github.com/Mouaddiguoug/feetflight/internal/models"
)

func newSub() models.NewSubscription {
	return models.NewSubscription{
		Subscription: models.Subscription{
			UserID: "u1", SellerID: "s1", PlanID: "pl1", PlanName: "Monthly",
			Price: 999, Period: models.PeriodMonth, ProviderSubscriptionID: "sub_1",
			ExpiresAt: time.Now().Add(30 * 24 * time.Hour),
		},
		Notification: models.Notification{Title: "New subscriber"},
	}
}

func TestSubscriptionCreateCreditsAndNotifies(t *testing.T) {
	runner := (&graphdbtest.Runner{}).
		Returns(graphdbtest.Result([]string{"created"}, []any{int64(1)})).
		Returns(graphdbtest.Result([]string{"w"}, []any{graphdbtest.Node("w", []string{"Wallet"}, map[string]interface{}{"id": "w1", "balance": int64(999)})})).
		Returns(graphdbtest.Result([]string{"id"}, []any{"n1"}))

	created, err := NewSubscriptionRepository(runner).Create(context.Background(), newSub())
	require.NoError(t, err)
	assert.True(t, created)
	require.Len(t, runner.Calls, 3)
	assert.Contains(t, runner.Calls[0].Query, "WHERE NOT EXISTS")
	assert.Equal(t, int64(999), runner.Calls[1].Params["amount"])
	assert.Equal(t, "s1", runner.Calls[2].Params["sellerId"])
}

func TestSubscriptionCreateDuplicateWritesNothingElse(t *testing.T) {
	runner := (&graphdbtest.Runner{}).Returns(graphdbtest.Result([]string{"created"}, []any{int64(0)}))

	created, err := NewSubscriptionRepository(runner).Create(context.Background(), newSub())
	require.NoError(t, err)
	assert.False(t, created)
	assert.Len(t, runner.Calls, 1)
}

func TestSubscriptionDeleteMissing(t *testing.T) {
	runner := (&graphdbtest.Runner{}).Returns(graphdbtest.Result([]string{"deleted"}, []any{int64(0)}))
	err := NewSubscriptionRepository(runner).Delete(context.Background(), "u1", "s1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSubscriptionListForUser(t *testing.T) {
	runner := (&graphdbtest.Runner{}).Returns(graphdbtest.Result([]string{"r", "userId", "sellerId"}, []any{
		map[string]interface{}{"planId": "pl1", "price": int64(999), "period": "month"}, "u1", "s1",
	}))

	subs, err := NewSubscriptionRepository(runner).ListForUser(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "s1", subs[0].SellerID)
	assert.Equal(t, int64(999), subs[0].Price)
}

func TestSubscriptionDeleteExpired(t *testing.T) {
	at := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	runner := (&graphdbtest.Runner{}).Returns(graphdbtest.Result([]string{"deleted"}, []any{int64(2)}))

	n, err := NewSubscriptionRepository(runner).DeleteExpired(context.Background(), at)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, at, runner.Last().Params["now"])
}
