package marketplace

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ruteri/marketplace-bulk-provisioner/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeVault is a minimal KV v2 mount honoring cas=0.
type fakeVault struct {
	mu     sync.Mutex
	data   map[string]map[string]interface{}
	tokens []string
}

func (f *fakeVault) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens = append(f.tokens, r.Header.Get("X-Vault-Token"))
	w.Header().Set("Content-Type", "application/json")

	switch r.Method {
	case http.MethodGet:
		entry, ok := f.data[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"errors":[]}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]interface{}{"data": entry, "metadata": map[string]interface{}{"version": 1}},
		})
	case http.MethodPut, http.MethodPost:
		var body struct {
			Options map[string]interface{} `json:"options"`
			Data    map[string]interface{} `json:"data"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if _, exists := f.data[r.URL.Path]; exists && body.Options["cas"] == float64(0) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"errors":["check-and-set parameter did not match the current version"]}`))
			return
		}
		f.data[r.URL.Path] = body.Data
		_, _ = w.Write([]byte(`{"data":{"version":1}}`))
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func TestVaultSecretStore(t *testing.T) {
	fake := &fakeVault{data: map[string]map[string]interface{}{}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	store, err := NewVaultSecretStore(srv.URL, "root-token", "/secret/", time.Second, testLogger())
	require.NoError(t, err)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	app := common.HexToAddress("0x00000000000000000000000000000000000abcde")
	ctx := context.Background()

	pushed, err := store.PushAppSecret(ctx, key, app, "1234567890")
	require.NoError(t, err)
	assert.True(t, pushed)

	pushed, err = store.PushAppSecret(ctx, key, app, "changed")
	require.NoError(t, err)
	assert.False(t, pushed)

	pushed, err = store.PushDatasetSecret(ctx, key, app, "dataset-key")
	require.NoError(t, err)
	assert.True(t, pushed)

	fake.mu.Lock()
	defer fake.mu.Unlock()

	entry := fake.data["/v1/secret/data/apps/"+app.Hex()+"/1"]
	require.NotNil(t, entry)
	assert.Equal(t, "1234567890", entry["value"])
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey).Hex(), entry["owner"])
	assert.Contains(t, fake.data, "/v1/secret/data/datasets/"+app.Hex())
	for _, token := range fake.tokens {
		assert.Equal(t, "root-token", token)
	}
	assert.Contains(t, store.URL(), "/secret")
}

func TestVaultSecretStore_CASConflict(t *testing.T) {
	// a concurrent writer sets the secret between the read and the write
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"errors":[]}`))
			return
		}
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"errors":["check-and-set parameter did not match the current version"]}`))
	}))
	defer srv.Close()

	store, err := NewVaultSecretStore(srv.URL, "t", "secret", time.Second, testLogger())
	require.NoError(t, err)
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	pushed, err := store.PushDatasetSecret(context.Background(), key, common.Address{1}, "k")
	require.NoError(t, err)
	assert.False(t, pushed)
}

func TestVaultSecretStore_Unavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"errors":["permission denied"]}`))
	}))
	defer srv.Close()

	store, err := NewVaultSecretStore(srv.URL, "bad", "secret", time.Second, testLogger())
	require.NoError(t, err)
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	_, err = store.PushAppSecret(context.Background(), key, common.Address{1}, "v")
	require.ErrorIs(t, err, interfaces.ErrSecret)
}
