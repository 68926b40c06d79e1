package marketplace

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/hashicorp/vault/api"
	"github.com/ruteri/marketplace-bulk-provisioner/interfaces"
)

// VaultSecretStore keeps resource secrets in a Vault KV v2 mount instead of
// the marketplace SMS. It is meant for private deployments whose workers
// read secrets from the same Vault.
//
// Layout: <mount>/data/apps/<address>/<index> and <mount>/data/datasets/<address>.
type VaultSecretStore struct {
	client    *api.Client
	address   string
	mountPath string
	log       *slog.Logger
}

// NewVaultSecretStore creates a store authenticated with token.
func NewVaultSecretStore(address, token, mountPath string, timeout time.Duration, log *slog.Logger) (*VaultSecretStore, error) {
	config := api.DefaultConfig()
	config.Address = address
	if timeout > 0 {
		config.HttpClient = &http.Client{Timeout: timeout}
	}

	client, err := api.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}
	if token != "" {
		client.SetToken(token)
	}

	return &VaultSecretStore{
		client:    client,
		address:   address,
		mountPath: strings.Trim(mountPath, "/"),
		log:       log,
	}, nil
}

func (s *VaultSecretStore) URL() string {
	return fmt.Sprintf("vault://%s/%s", strings.TrimPrefix(strings.TrimPrefix(s.address, "https://"), "http://"), s.mountPath)
}

func (s *VaultSecretStore) PushAppSecret(ctx context.Context, signer *ecdsa.PrivateKey, app common.Address, value string) (bool, error) {
	return s.put(ctx, signer, fmt.Sprintf("%s/data/apps/%s/%s", s.mountPath, app.Hex(), AppSecretIndex), value)
}

func (s *VaultSecretStore) PushDatasetSecret(ctx context.Context, signer *ecdsa.PrivateKey, dataset common.Address, value string) (bool, error) {
	return s.put(ctx, signer, fmt.Sprintf("%s/data/datasets/%s", s.mountPath, dataset.Hex()), value)
}

// put writes value with check-and-set 0 so an existing secret is never
// overwritten.
func (s *VaultSecretStore) put(ctx context.Context, signer *ecdsa.PrivateKey, path, value string) (bool, error) {
	existing, err := s.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		return false, fmt.Errorf("%w: reading %s: %v", interfaces.ErrSecret, path, err)
	}
	if existing != nil && existing.Data["data"] != nil {
		s.log.Debug("Secret already set in Vault", slog.String("path", path))
		return false, nil
	}

	_, err = s.client.Logical().WriteWithContext(ctx, path, map[string]interface{}{
		"options": map[string]interface{}{"cas": 0},
		"data": map[string]interface{}{
			"value": value,
			"owner": crypto.PubkeyToAddress(signer.PublicKey).Hex(),
		},
	})
	if err != nil {
		if strings.Contains(err.Error(), "check-and-set") {
			return false, nil
		}
		return false, fmt.Errorf("%w: writing %s: %v", interfaces.ErrSecret, path, err)
	}

	return true, nil
}
