package repotest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/nft-ticket-registry/internal/model"
	"github.com/iliyamo/nft-ticket-registry/internal/repository"
)

func TestRegistry_DuplicateKeepsFirstOwner(t *testing.T) {
	r := New()
	ctx := context.Background()

	require.NoError(t, r.Create(ctx, &model.TicketRecord{AssetUnit: "u1", MintTxHash: "tx1", OriginalOwnerWallet: "addr_first"}))
	err := r.Create(ctx, &model.TicketRecord{AssetUnit: "u1", MintTxHash: "tx2", OriginalOwnerWallet: "addr_second"})
	assert.ErrorIs(t, err, repository.ErrTicketExists)

	rec, err := r.FindByAssetUnit(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "addr_first", rec.OriginalOwnerWallet)
	assert.Equal(t, model.TicketValid, rec.Status)
}

func TestRegistry_CancelledIsTerminal(t *testing.T) {
	r := New()
	ctx := context.Background()
	require.NoError(t, r.Create(ctx, &model.TicketRecord{AssetUnit: "u1"}))

	require.NoError(t, r.UpdateStatus(ctx, "u1", model.TicketCancelled))
	require.NoError(t, r.UpdateStatus(ctx, "u1", model.TicketCancelled))
	assert.ErrorIs(t, r.UpdateStatus(ctx, "u1", model.TicketValid), repository.ErrInvalidTransition)
	assert.ErrorIs(t, r.UpdateStatus(ctx, "nope", model.TicketValid), repository.ErrTicketNotFound)
}
