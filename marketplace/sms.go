package marketplace

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/ruteri/marketplace-bulk-provisioner/interfaces"
)

// AppSecretIndex is the slot the app developer secret is stored under.
const AppSecretIndex = "1"

var smsDomain = crypto.Keccak256([]byte("IEXEC_SMS_DOMAIN"))

// SecretStore stores resource secrets on behalf of the resource owner.
// Pushes return false when a secret is already set.
type SecretStore interface {
	PushAppSecret(ctx context.Context, signer *ecdsa.PrivateKey, app common.Address, value string) (bool, error)
	PushDatasetSecret(ctx context.Context, signer *ecdsa.PrivateKey, dataset common.Address, value string) (bool, error)
	URL() string
}

type SMSOpts struct {
	Timeout      time.Duration
	MaxAttempts  int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
}

// SMSClient talks to the Secret Management Service. Every push is
// authorized by the owner signing a challenge over the resource address and
// the secret value.
type SMSClient struct {
	baseURL string
	client  *retryablehttp.Client
	log     *slog.Logger
}

func NewSMSClient(baseURL string, opts SMSOpts, log *slog.Logger) *SMSClient {
	client := retryablehttp.NewClient()
	client.Logger = log
	client.RetryMax = max(opts.MaxAttempts-1, 0)
	if opts.RetryWaitMin > 0 {
		client.RetryWaitMin = opts.RetryWaitMin
	}
	if opts.RetryWaitMax > 0 {
		client.RetryWaitMax = opts.RetryWaitMax
	}
	if opts.Timeout > 0 {
		client.HTTPClient.Timeout = opts.Timeout
	}
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &SMSClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  client,
		log:     log,
	}
}

func (c *SMSClient) URL() string {
	return c.baseURL
}

func (c *SMSClient) appSecretURL(app common.Address) string {
	return fmt.Sprintf("%s/apps/%s/secrets/%s", c.baseURL, app.Hex(), AppSecretIndex)
}

func (c *SMSClient) web3SecretURL(address common.Address) string {
	return fmt.Sprintf("%s/secrets/web3?secretAddress=%s", c.baseURL, url.QueryEscape(address.Hex()))
}

// AppSecretExists reports whether the app developer secret is set.
func (c *SMSClient) AppSecretExists(ctx context.Context, app common.Address) (bool, error) {
	return c.exists(ctx, c.appSecretURL(app))
}

// DatasetSecretExists reports whether the dataset encryption key is set.
func (c *SMSClient) DatasetSecretExists(ctx context.Context, dataset common.Address) (bool, error) {
	return c.exists(ctx, c.web3SecretURL(dataset))
}

func (c *SMSClient) PushAppSecret(ctx context.Context, signer *ecdsa.PrivateKey, app common.Address, value string) (bool, error) {
	exists, err := c.AppSecretExists(ctx, app)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	signature, err := SignChallenge(signer, AppSecretChallenge(app, AppSecretIndex, value))
	if err != nil {
		return false, fmt.Errorf("%w: %v", interfaces.ErrSecret, err)
	}
	return c.push(ctx, c.appSecretURL(app), signature, value)
}

func (c *SMSClient) PushDatasetSecret(ctx context.Context, signer *ecdsa.PrivateKey, dataset common.Address, value string) (bool, error) {
	exists, err := c.DatasetSecretExists(ctx, dataset)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	signature, err := SignChallenge(signer, Web3SecretChallenge(dataset, value))
	if err != nil {
		return false, fmt.Errorf("%w: %v", interfaces.ErrSecret, err)
	}
	return c.push(ctx, c.web3SecretURL(dataset), signature, value)
}

func (c *SMSClient) exists(ctx context.Context, target string) (bool, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodHead, target, nil)
	if err != nil {
		return false, fmt.Errorf("%w: %v", interfaces.ErrSecret, err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("%w: checking %s: %v", interfaces.ErrSecret, target, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("%w: checking %s: HTTP %d", interfaces.ErrSecret, target, resp.StatusCode)
	}
}

func (c *SMSClient) push(ctx context.Context, target, signature, value string) (bool, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, target, []byte(value))
	if err != nil {
		return false, fmt.Errorf("%w: %v", interfaces.ErrSecret, err)
	}
	req.Header.Set("Authorization", signature)
	req.Header.Set("Content-Type", "text/plain")

	resp, err := c.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("%w: pushing to %s: %v", interfaces.ErrSecret, target, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return true, nil
	case resp.StatusCode == http.StatusConflict:
		// A retried push may land after the first one succeeded.
		return false, nil
	default:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return false, fmt.Errorf("%w: pushing to %s: HTTP %d %s", interfaces.ErrSecret, target, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
}

// AppSecretChallenge is the message an app owner signs to set a secret.
func AppSecretChallenge(app common.Address, index, value string) common.Hash {
	return crypto.Keccak256Hash(smsDomain, app.Bytes(), crypto.Keccak256([]byte(index)), crypto.Keccak256([]byte(value)))
}

// Web3SecretChallenge is the message a resource owner signs to set the
// secret bound to a resource address.
func Web3SecretChallenge(address common.Address, value string) common.Hash {
	return crypto.Keccak256Hash(smsDomain, address.Bytes(), crypto.Keccak256([]byte(value)))
}

// SignChallenge signs challenge as a personal message.
func SignChallenge(key *ecdsa.PrivateKey, challenge common.Hash) (string, error) {
	sig, err := crypto.Sign(accounts.TextHash(challenge.Bytes()), key)
	if err != nil {
		return "", fmt.Errorf("could not sign challenge: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig), nil
}

// RecoverChallengeSigner returns the address that produced signature.
func RecoverChallengeSigner(challenge common.Hash, signature string) (common.Address, error) {
	sig, err := hexutil.Decode(signature)
	if err != nil {
		return common.Address{}, fmt.Errorf("invalid signature: %w", err)
	}
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("invalid signature length %d", len(sig))
	}
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(accounts.TextHash(challenge.Bytes()), sig)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(*pub), nil
}
