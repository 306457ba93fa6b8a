package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mouaddiguoug/feetflight/internal/graphdb/graphdbtest"
	"github.com/Mouaddiguoug/feetflight/internal/models"
)

func TestCreateSellerAccountSingleTransaction(t *testing.T) {
	runner := &graphdbtest.Runner{}
	repo := NewUserRepository(runner)

	err := repo.CreateAccount(context.Background(), &models.Account{
		User:     models.User{ID: "u1", Email: "Ana@Example.com", Password: "hash"},
		Role:     models.RoleSeller,
		RoleID:   "s1",
		WalletID: "w1",
		Plans:    []models.Plan{{ID: "pl1", Name: "Monthly", Price: 999, Period: models.PeriodMonth}},
	})
	require.NoError(t, err)

	require.Len(t, runner.Calls, 3)
	for _, c := range runner.Calls {
		assert.True(t, c.InTx)
	}
	assert.Equal(t, 1, runner.Commits)
	props := runner.Calls[0].Params["props"].(map[string]interface{})
	assert.Equal(t, "ana@example.com", props["email"])
	assert.Contains(t, runner.Calls[1].Query, ":Wallet")
	assert.Equal(t, "w1", runner.Calls[1].Params["walletId"])
	assert.Len(t, runner.Calls[2].Params["plans"], 1)
}

func TestCreateBuyerAccountHasNoWallet(t *testing.T) {
	runner := &graphdbtest.Runner{}
	err := NewUserRepository(runner).CreateAccount(context.Background(), &models.Account{
		User:   models.User{ID: "u1", Email: "b@example.com"},
		Role:   models.RoleBuyer,
		RoleID: "b1",
	})
	require.NoError(t, err)
	require.Len(t, runner.Calls, 2)
	assert.False(t, runner.Ran(":Wallet"))
}

func TestCreateAccountUnknownRole(t *testing.T) {
	runner := &graphdbtest.Runner{}
	err := NewUserRepository(runner).CreateAccount(context.Background(), &models.Account{
		User: models.User{ID: "u1"},
		Role: "pirate",
	})
	assert.Error(t, err)
	assert.Equal(t, 1, runner.Rollbacks)
}

func TestFindUserWithRole(t *testing.T) {
	runner := (&graphdbtest.Runner{}).Returns(graphdbtest.Result([]string{"u", "role", "roleId"}, []any{
		graphdbtest.Node("e1", []string{"User"}, map[string]interface{}{"id": "u1", "email": "a@b.c", "password": "hash"}),
		"seller", "s1",
	}))

	u, err := NewUserRepository(runner).FindByEmail(context.Background(), "A@B.C")
	require.NoError(t, err)
	assert.Equal(t, "seller", u.Role)
	assert.Equal(t, "s1", u.RoleID)
	assert.Equal(t, "hash", u.Password)
	assert.Equal(t, "a@b.c", runner.Last().Params["email"])
}

func TestUpdateUserOnlyChangedFields(t *testing.T) {
	name := "Ana"
	runner := (&graphdbtest.Runner{}).
		Returns(graphdbtest.Result([]string{"id"}, []any{"u1"})).
		Returns(graphdbtest.Result([]string{"u", "role", "roleId"}, []any{
			graphdbtest.Node("e1", []string{"User"}, map[string]interface{}{"id": "u1", "name": "Ana"}), "buyer", "b1",
		}))

	u, err := NewUserRepository(runner).Update(context.Background(), "u1", models.UserUpdate{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Ana", u.Name)
	assert.Equal(t, map[string]interface{}{"name": "Ana"}, runner.Calls[0].Params["changes"])
}

func TestDeactivateMissingUser(t *testing.T) {
	runner := (&graphdbtest.Runner{}).Returns(graphdbtest.Result([]string{"id"}))
	err := NewUserRepository(runner).Deactivate(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, runner.Last().Query, "u.deactivated")
}
