package access

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tiplink/internal/ir"
	"github.com/roach88/tiplink/internal/store"
)

func initialized(t *testing.T) *store.Memory {
	t.Helper()
	s := store.NewMemory()
	require.NoError(t, s.Update(context.Background(), func(tx store.Tx) error {
		return Control{}.Initialize(context.Background(), tx, Params{
			Owner:        "owner.near",
			Oracle:       "oracle.near",
			MinimumStake: ir.AmountFrom64(10),
		})
	}))
	return s
}

func TestInitialize_WritesParams(t *testing.T) {
	ctx := context.Background()
	s := initialized(t)
	c := Control{}

	require.NoError(t, s.View(ctx, func(tx store.Tx) error {
		owner, err := c.Owner(ctx, tx)
		require.NoError(t, err)
		assert.Equal(t, ir.InternalAccount("owner.near"), owner)

		oracle, err := c.Oracle(ctx, tx)
		require.NoError(t, err)
		assert.Equal(t, ir.InternalAccount("oracle.near"), oracle)

		stake, err := c.MinimumStake(ctx, tx)
		require.NoError(t, err)
		assert.Equal(t, "10", stake.String())
		return nil
	}))
}

func TestInitialize_Twice(t *testing.T) {
	ctx := context.Background()
	s := initialized(t)

	err := s.Update(ctx, func(tx store.Tx) error {
		return Control{}.Initialize(ctx, tx, Params{Owner: "x", Oracle: "y"})
	})
	assert.ErrorIs(t, err, ir.ErrAlreadyInitialized)
}

func TestInitialize_RequiresRoles(t *testing.T) {
	ctx := context.Background()
	err := store.NewMemory().Update(ctx, func(tx store.Tx) error {
		return Control{}.Initialize(ctx, tx, Params{Owner: "x"})
	})
	assert.ErrorIs(t, err, ir.ErrInvalidArgument)
}

func TestReads_NotInitialized(t *testing.T) {
	ctx := context.Background()
	c := Control{}
	require.NoError(t, store.NewMemory().View(ctx, func(tx store.Tx) error {
		_, err := c.Owner(ctx, tx)
		assert.ErrorIs(t, err, ir.ErrNotInitialized)
		_, err = c.MinimumStake(ctx, tx)
		assert.ErrorIs(t, err, ir.ErrNotInitialized)

		// No oracle stored means nobody passes the check.
		assert.ErrorIs(t, c.RequireOracle(ctx, tx, ""), ir.ErrUnauthorized)
		return nil
	}))
}

func TestRequireRoles(t *testing.T) {
	ctx := context.Background()
	s := initialized(t)
	c := Control{}

	require.NoError(t, s.View(ctx, func(tx store.Tx) error {
		assert.NoError(t, c.RequireOracle(ctx, tx, "oracle.near"))
		assert.NoError(t, c.RequireOwner(ctx, tx, "owner.near"))

		err := c.RequireOracle(ctx, tx, "owner.near")
		assert.ErrorIs(t, err, ir.ErrUnauthorized)
		var ce *ir.ContractError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, "oracle", ce.Details["role"])

		assert.ErrorIs(t, c.RequireOwner(ctx, tx, "oracle.near"), ir.ErrUnauthorized)
		return nil
	}))
}

func TestSetters_OwnerOnly(t *testing.T) {
	ctx := context.Background()
	s := initialized(t)
	c := Control{}

	err := s.Update(ctx, func(tx store.Tx) error {
		return c.SetOracle(ctx, tx, "mallory", "mallory")
	})
	assert.ErrorIs(t, err, ir.ErrUnauthorized)

	require.NoError(t, s.Update(ctx, func(tx store.Tx) error {
		require.NoError(t, c.SetOracle(ctx, tx, "owner.near", "oracle2.near"))
		require.NoError(t, c.SetMinimumStake(ctx, tx, "owner.near", ir.AmountFrom64(99)))
		return c.SetOwner(ctx, tx, "owner.near", "owner2.near")
	}))

	require.NoError(t, s.View(ctx, func(tx store.Tx) error {
		oracle, err := c.Oracle(ctx, tx)
		require.NoError(t, err)
		assert.Equal(t, ir.InternalAccount("oracle2.near"), oracle)

		stake, err := c.MinimumStake(ctx, tx)
		require.NoError(t, err)
		assert.Equal(t, "99", stake.String())

		// The previous owner lost its rights.
		assert.ErrorIs(t, c.RequireOwner(ctx, tx, "owner.near"), ir.ErrUnauthorized)
		return nil
	}))
}

func TestSetters_RejectEmpty(t *testing.T) {
	ctx := context.Background()
	s := initialized(t)

	err := s.Update(ctx, func(tx store.Tx) error {
		return Control{}.SetOwner(ctx, tx, "owner.near", "")
	})
	assert.ErrorIs(t, err, ir.ErrInvalidArgument)
}
