package interfaces

import (
	"crypto/ecdsa"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// Identity is the externally owned account that funds and owns every
// resource of one provisioning unit.
type Identity struct {
	Address    common.Address
	PrivateKey *ecdsa.PrivateKey
	Mnemonic   string
}

// PrivateKeyHex returns the 0x-prefixed hex encoding of the private key.
func (id *Identity) PrivateKeyHex() string {
	if id == nil || id.PrivateKey == nil {
		return ""
	}
	return hexutil.Encode(crypto.FromECDSA(id.PrivateKey))
}

// LogValue keeps key material out of the logs.
func (id *Identity) LogValue() slog.Value {
	if id == nil {
		return slog.StringValue("<nil>")
	}
	return slog.StringValue(id.Address.Hex())
}

// ContentArtifact is the output of one publication: the encrypted dataset
// and where it can be fetched from.
type ContentArtifact struct {
	Plaintext     []byte
	EncryptionKey string
	Ciphertext    []byte
	// Checksum is 0x-prefixed sha256 of Ciphertext.
	Checksum string
	// Locator is /ipfs/<cid>, or FallbackLocator when publication failed.
	Locator   string
	PublicURL string
	CID       string
	Verified  bool

	PublishError string
}

// Degraded reports whether the placeholder locator was used.
func (a *ContentArtifact) Degraded() bool {
	return !a.Verified
}

// Resource is an application or dataset registered on the marketplace.
type Resource struct {
	Address common.Address
	TxHash  common.Hash
	Name    string
	Owner   common.Address
}

// MREnclave describes the trusted execution environment an app image runs in.
// It is passed through to the registry unchanged.
type MREnclave struct {
	Framework   string `json:"framework" yaml:"framework"`
	Version     string `json:"version" yaml:"version"`
	Entrypoint  string `json:"entrypoint" yaml:"entrypoint"`
	HeapSize    int64  `json:"heapSize" yaml:"heapSize"`
	Fingerprint string `json:"fingerprint" yaml:"fingerprint"`
}

// AppTemplate is the static metadata shared by every registered app.
type AppTemplate struct {
	Name      string    `json:"name" yaml:"name"`
	Type      string    `json:"type" yaml:"type"`
	Multiaddr string    `json:"multiaddr" yaml:"multiaddr"`
	Checksum  string    `json:"checksum" yaml:"checksum"`
	MREnclave MREnclave `json:"mrenclave" yaml:"mrenclave"`
}

// AppSpec is the registration request for one app.
type AppSpec struct {
	AppTemplate
	Owner common.Address
}

// DatasetSpec is the registration request for one dataset.
type DatasetSpec struct {
	Name      string
	Owner     common.Address
	Multiaddr string
	Checksum  string
}

// SecretOutcome is the result of pushing a secret to the secret management
// service.
type SecretOutcome int

const (
	SecretFailed SecretOutcome = iota
	SecretPushed
	SecretAlreadyExists
)

func (o SecretOutcome) String() string {
	switch o {
	case SecretPushed:
		return "pushed"
	case SecretAlreadyExists:
		return "already_exists"
	default:
		return "failed"
	}
}

// UnitStatusFailed marks a failure record in the ledger.
const UnitStatusFailed = "failed"

// UnitRecord is the ledger entry of one provisioning unit. Success records
// leave Status empty; failure records carry only UnitID, Status, FailedStage,
// Error and DeployedAt.
type UnitRecord struct {
	UnitID int `json:"app_id"`

	Status      string `json:"status,omitempty"`
	FailedStage string `json:"failed_stage,omitempty"`
	Error       string `json:"error,omitempty"`

	AppAddress string `json:"app_address,omitempty"`
	AppName    string `json:"app_name,omitempty"`
	AppTxHash  string `json:"app_tx_hash,omitempty"`
	AppSecret  string `json:"app_secret,omitempty"`

	DatasetAddress      string `json:"dataset_address,omitempty"`
	DatasetName         string `json:"dataset_name,omitempty"`
	DatasetTxHash       string `json:"dataset_tx_hash,omitempty"`
	DatasetURL          string `json:"dataset_ipfs,omitempty"`
	DatasetMultiaddr    string `json:"dataset_multiaddr,omitempty"`
	DatasetChecksum     string `json:"dataset_checksum,omitempty"`
	DatasetVerified     *bool  `json:"dataset_verified,omitempty"`
	DatasetPublishError string `json:"dataset_publish_error,omitempty"`
	DatasetSecret       string `json:"dataset_secret,omitempty"`

	WalletAddress    string `json:"wallet_address,omitempty"`
	WalletPrivateKey string `json:"wallet_private_key,omitempty"`
	WalletMnemonic   string `json:"wallet_mnemonic,omitempty"`

	DeployedAt time.Time `json:"deployed_at"`
}

// Failed reports whether the record describes a failed unit.
func (r *UnitRecord) Failed() bool {
	return r.Status == UnitStatusFailed
}

// Report is the ordered ledger of one batch run, one record per requested
// unit.
type Report []UnitRecord

// Counts returns the number of successful and failed units.
func (r Report) Counts() (succeeded, failed int) {
	for i := range r {
		if r[i].Failed() {
			failed++
		} else {
			succeeded++
		}
	}
	return succeeded, failed
}
