/*
Package marketplace is the client side of the computation marketplace.

It registers applications and datasets on the on-chain registries, pushes
their secrets to the Secret Management Service (or to Vault), and groups
both behind a per-identity session.

# Sessions

A session binds every operation to one identity: registrations are signed
by its key and the resulting resources are owned by its address. Secret
pushes are authorized by the same key signing a challenge over the
resource address and the secret value.

	market, err := marketplace.Dial(ctx, marketplace.DefaultChainConfig(), sms, log)
	session, err := market.NewSession(ctx, identity)
	app, err := session.RegisterApp(ctx, spec)
	pushed, err := session.PushAppSecret(ctx, app.Address, "secret")

Registrations wait for the transaction to be mined and read the new
resource address from the registry Transfer event. They are never
resubmitted.

# Dry runs

MemoryMarketplace implements the same contract in memory so that the
whole pipeline can run offline.
*/
package marketplace
