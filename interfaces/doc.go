// Package interfaces defines the core types and contracts of the bulk provisioner.
//
// It separates the shapes exchanged between components from their
// implementations so that the orchestration core can be tested against
// in-memory fakes.
//
// # Types
//
//   - Identity: per-unit externally owned account (address, key, mnemonic)
//   - ContentArtifact: encrypted dataset plus its locator and checksum
//   - Resource: an app or dataset registered on the marketplace
//   - SecretOutcome: Pushed, AlreadyExists or Failed
//   - UnitRecord / Report: the persisted ledger
//
// # Contracts
//
//   - ContentStore: content-addressed publication (IPFS add)
//   - ContentFetcher: gateway read-back used for verification
//   - LedgerWriter: write-once persistence of a Report
//
// # Error Types
//
//   - ErrProvision: registration rejected, reverted or timed out
//   - ErrSecret: secret push failed for a reason other than pre-existence
//   - ErrSecretAlreadyExists: non-fatal secret pre-existence
//   - ErrPublicationDegraded: publication failed, placeholder used
//   - ErrVerificationMismatch: read-back bytes differ (is a degraded publication)
package interfaces
