// Package publisher encrypts dataset content, publishes it to a
// content-addressed store and verifies it through a public gateway.
package publisher

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ruteri/marketplace-bulk-provisioner/cryptoutils"
	"github.com/ruteri/marketplace-bulk-provisioner/interfaces"
	"github.com/ruteri/marketplace-bulk-provisioner/storage"
)

// FallbackLocator is registered in place of a real locator whenever
// publication or verification fails. It points at a well-known placeholder.
const FallbackLocator = "/ipfs/QmTJ41EuPEwiPTGrYVPbXgMGvmgzsRYWWMmw6krVDN94nh"

// Publisher implements the content publication pipeline:
// encrypt, checksum, add, read back, fall back.
type Publisher struct {
	store      interfaces.ContentStore
	fetcher    interfaces.ContentFetcher
	gatewayURL string
	log        *slog.Logger
}

// NewPublisher creates a publisher adding content to store and verifying it
// under gatewayURL with fetcher.
func NewPublisher(store interfaces.ContentStore, fetcher interfaces.ContentFetcher, gatewayURL string, log *slog.Logger) *Publisher {
	return &Publisher{
		store:      store,
		fetcher:    fetcher,
		gatewayURL: strings.TrimSuffix(gatewayURL, "/"),
		log:        log,
	}
}

// Publish never fails. The returned artifact always carries a key, a
// checksum, the ciphertext and a locator. When the content could not be
// published or verified the locator is FallbackLocator, Verified is false
// and PublishError explains why.
func (p *Publisher) Publish(ctx context.Context, content []byte, name string) *interfaces.ContentArtifact {
	start := time.Now()

	key, err := cryptoutils.GenerateEncryptionKey()
	if err != nil {
		// crypto/rand does not fail on supported platforms
		panic(fmt.Sprintf("publisher: %v", err))
	}
	ciphertext, err := cryptoutils.EncryptDataset(content, key)
	if err != nil {
		panic(fmt.Sprintf("publisher: %v", err))
	}

	artifact := &interfaces.ContentArtifact{
		Plaintext:     content,
		EncryptionKey: key,
		Ciphertext:    ciphertext,
		Checksum:      cryptoutils.ComputeEncryptedFileChecksum(ciphertext),
	}

	contentID, err := p.publish(ctx, ciphertext)
	if err != nil {
		p.log.Warn("Content publication degraded, using placeholder",
			slog.String("name", name),
			slog.String("store", p.store.Name()),
			"err", err)

		artifact.Locator = FallbackLocator
		artifact.PublicURL = p.gatewayURL + FallbackLocator
		artifact.PublishError = err.Error()
		return artifact
	}

	artifact.CID = contentID
	artifact.Locator = storage.Multiaddr(contentID)
	artifact.PublicURL = p.gatewayURL + artifact.Locator
	artifact.Verified = true

	p.log.Info("Published content",
		slog.String("name", name),
		slog.String("cid", contentID),
		slog.String("checksum", artifact.Checksum),
		slog.Duration("duration", time.Since(start)))

	return artifact
}

// publish adds ciphertext to the store and reads it back through the
// gateway. Every error it returns is a degraded publication.
func (p *Publisher) publish(ctx context.Context, ciphertext []byte) (string, error) {
	contentID, err := p.store.Add(ctx, ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: %v", interfaces.ErrPublicationDegraded, err)
	}

	url := p.gatewayURL + storage.Multiaddr(contentID)
	fetched, err := p.fetcher.Fetch(ctx, url)
	if err != nil {
		return "", fmt.Errorf("%w: verification of %s: %v", interfaces.ErrPublicationDegraded, contentID, err)
	}

	if !bytes.Equal(fetched, ciphertext) {
		return "", fmt.Errorf("%s: %w", contentID, interfaces.ErrVerificationMismatch)
	}

	return contentID, nil
}
