/*
Bulk-provisioner registers N application/dataset pairs on the computation
marketplace, one fresh identity per pair, and writes the outcome of every
unit to a JSON ledger.

Usage:

	bulk-provisioner [flags] [count]

Each unit creates an identity, registers an app from the app template, pushes
the app developer secret, publishes an encrypted dataset to IPFS (falling back
to a placeholder locator when publication cannot be verified), registers the
dataset and pushes its encryption key. A failing unit is recorded and the
batch moves on.

Examples:

	# Provision three pairs on the default chain
	bulk-provisioner 3

	# Exercise the pipeline offline and expose progress on :8090
	bulk-provisioner --dry-run --status-addr :8090 --count 5

	# Push secrets to Vault instead of the SMS
	VAULT_ADDR=https://vault:8200 VAULT_TOKEN=... bulk-provisioner --secret-backend vault
*/
package main
