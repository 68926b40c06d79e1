package interfaces

import (
	"context"
	"errors"
)

var (
	// ErrIdentity is returned when key material cannot be generated.
	ErrIdentity = errors.New("identity generation failed")

	// ErrProvision is returned when a resource registration transaction is
	// rejected, reverts, or is not mined in time.
	ErrProvision = errors.New("resource registration failed")

	// ErrSecret is returned when the secret management service rejects a
	// push for any reason other than the secret already existing.
	ErrSecret = errors.New("secret push failed")

	// ErrSecretAlreadyExists is returned by secret stores when a secret is
	// already set for the resource.
	ErrSecretAlreadyExists = errors.New("secret already exists")

	// ErrPublicationDegraded is returned when content could not be published
	// or verified. It is recovered by the publisher's placeholder fallback.
	ErrPublicationDegraded = errors.New("content publication degraded")

	// ErrVerificationMismatch is returned when the bytes fetched back from the
	// gateway differ from the published ciphertext.
	ErrVerificationMismatch = &mismatchError{}

	// ErrInvalidContentID is returned when a store answers with something that
	// does not parse as a content identifier.
	ErrInvalidContentID = errors.New("invalid content identifier")
)

type mismatchError struct{}

func (*mismatchError) Error() string { return "fetched content does not match published content" }

// Unwrap makes a mismatch classify as a degraded publication.
func (*mismatchError) Unwrap() error { return ErrPublicationDegraded }

// ContentStore publishes bytes to a content-addressed store.
type ContentStore interface {
	// Add stores data and returns its content identifier.
	Add(ctx context.Context, data []byte) (string, error)

	// Name returns identifier for logging.
	Name() string
}

// ContentFetcher reads published content back through a public gateway.
type ContentFetcher interface {
	// Fetch returns the body of url, or an error for any non-2xx response.
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// LedgerWriter persists a batch report.
type LedgerWriter interface {
	Write(report Report) error

	// Location returns where the ledger is written.
	Location() string
}
