package marketplace

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/marketplace-bulk-provisioner/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryMarketplace(t *testing.T) {
	market := NewMemoryMarketplace()
	ctx := context.Background()

	owner := &interfaces.Identity{Address: common.HexToAddress("0x00000000000000000000000000000000000000aa")}
	other := &interfaces.Identity{Address: common.HexToAddress("0x00000000000000000000000000000000000000bb")}

	session, err := market.NewSession(ctx, owner)
	require.NoError(t, err)

	app, err := session.RegisterApp(ctx, testAppSpec(owner.Address))
	require.NoError(t, err)
	dataset, err := session.RegisterDataset(ctx, testDatasetSpec(owner.Address))
	require.NoError(t, err)
	assert.NotEqual(t, app.Address, dataset.Address)
	assert.NotEqual(t, app.TxHash, dataset.TxHash)

	registered, ok := market.App(app.Address)
	require.True(t, ok)
	assert.Equal(t, owner.Address, registered.Owner)
	_, ok = market.Dataset(dataset.Address)
	require.True(t, ok)

	pushed, err := session.PushAppSecret(ctx, app.Address, "1234567890")
	require.NoError(t, err)
	assert.True(t, pushed)

	pushed, err = session.PushAppSecret(ctx, app.Address, "again")
	require.NoError(t, err)
	assert.False(t, pushed)

	secret, ok := market.Secret(app.Address)
	require.True(t, ok)
	assert.Equal(t, "1234567890", secret)

	// only the owner may set a secret
	intruder, err := market.NewSession(ctx, other)
	require.NoError(t, err)
	_, err = intruder.PushDatasetSecret(ctx, dataset.Address, "key")
	require.ErrorIs(t, err, interfaces.ErrSecret)

	_, err = session.PushDatasetSecret(ctx, app.Address, "key")
	require.ErrorIs(t, err, interfaces.ErrSecret, "an app is not a dataset")

	url, err := session.ResolveSMSURL(ctx)
	require.NoError(t, err)
	assert.Equal(t, "memory://sms", url)
}

func TestMemoryMarketplace_FailureHooks(t *testing.T) {
	market := NewMemoryMarketplace()
	market.FailRegisterApp = func(spec interfaces.AppSpec) error { return errors.New("out of gas") }
	market.FailRegisterDataset = func(spec interfaces.DatasetSpec) error { return errors.New("nonce too low") }

	owner := &interfaces.Identity{Address: common.Address{0xaa}}
	session, err := market.NewSession(context.Background(), owner)
	require.NoError(t, err)

	_, err = session.RegisterApp(context.Background(), testAppSpec(owner.Address))
	require.ErrorIs(t, err, interfaces.ErrProvision)
	_, err = session.RegisterDataset(context.Background(), testDatasetSpec(owner.Address))
	require.ErrorIs(t, err, interfaces.ErrProvision)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	market.FailRegisterApp = nil
	_, err = session.RegisterApp(ctx, testAppSpec(owner.Address))
	require.ErrorIs(t, err, interfaces.ErrProvision)
}

func TestMemoryMarketplace_PresetSecret(t *testing.T) {
	market := NewMemoryMarketplace()
	owner := &interfaces.Identity{Address: common.Address{0xaa}}
	session, err := market.NewSession(context.Background(), owner)
	require.NoError(t, err)

	dataset, err := session.RegisterDataset(context.Background(), testDatasetSpec(owner.Address))
	require.NoError(t, err)
	market.SetSecret(dataset.Address, "previous")

	pushed, err := session.PushDatasetSecret(context.Background(), dataset.Address, "new")
	require.NoError(t, err)
	assert.False(t, pushed)
}
