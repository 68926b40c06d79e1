package storage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ruteri/marketplace-bulk-provisioner/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCID = "QmTJ41EuPEwiPTGrYVPbXgMGvmgzsRYWWMmw6krVDN94nh"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ipfsAPI fakes an upload gateway that only exposes /api/v0/add.
type ipfsAPI struct {
	mu       sync.Mutex
	paths    []string
	pin      string
	received []byte
}

func newIPFSAPI(t *testing.T, status int, body string) (*httptest.Server, *ipfsAPI) {
	api := &ipfsAPI{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		api.mu.Lock()
		defer api.mu.Unlock()
		api.paths = append(api.paths, r.URL.Path)

		if r.URL.Path != "/api/v0/add" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		api.pin = r.URL.Query().Get("pin")
		reader, err := r.MultipartReader()
		if err == nil {
			if part, err := reader.NextPart(); err == nil {
				api.received, _ = io.ReadAll(part)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, api
}

func TestIPFSStore_Add(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		expectedCID string
		expectedErr error
		anyErr      bool
	}{
		{
			name:        "content added",
			status:      http.StatusOK,
			body:        `{"Name":"","Hash":"` + testCID + `","Size":"20"}`,
			expectedCID: testCID,
		},
		{
			name:   "node error",
			status: http.StatusInternalServerError,
			body:   `{"Message":"blockstore full","Code":0,"Type":"error"}`,
			anyErr: true,
		},
		{
			name:        "malformed cid",
			status:      http.StatusOK,
			body:        `{"Name":"","Hash":"not-a-cid","Size":"20"}`,
			expectedErr: interfaces.ErrInvalidContentID,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, api := newIPFSAPI(t, tt.status, tt.body)
			store := NewIPFSStore(srv.URL, 5*time.Second, testLogger())

			id, err := store.Add(context.Background(), []byte("ciphertext bytes"))
			switch {
			case tt.expectedErr != nil:
				require.ErrorIs(t, err, tt.expectedErr)
			case tt.anyErr:
				require.Error(t, err)
			default:
				require.NoError(t, err)
				assert.Equal(t, tt.expectedCID, id)
			}

			api.mu.Lock()
			defer api.mu.Unlock()
			assert.Equal(t, []string{"/api/v0/add"}, api.paths, "add must be the only request")
			assert.Equal(t, []byte("ciphertext bytes"), api.received)
			assert.Equal(t, "true", api.pin)
		})
	}
}

func TestIPFSStore_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	store := NewIPFSStore(url, time.Second, testLogger())
	_, err := store.Add(context.Background(), []byte("data"))
	require.Error(t, err)
}

func TestIPFSStore_Cancelled(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	store := NewIPFSStore(srv.URL, 0, testLogger())
	_, err := store.Add(ctx, []byte("data"))
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMultiaddr(t *testing.T) {
	assert.Equal(t, "/ipfs/"+testCID, Multiaddr(testCID))
}

func TestGatewayFetcher_Fetch(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		switch r.URL.Path {
		case "/ipfs/ok":
			w.Write([]byte("payload"))
		case "/ipfs/late":
			// not yet propagated on the first request
			if n == 1 {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.Write([]byte("late payload"))
		case "/ipfs/broken":
			w.WriteHeader(http.StatusBadGateway)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	fetcher := NewGatewayFetcher(GatewayOpts{
		Timeout:      time.Second,
		MaxAttempts:  2,
		RetryWaitMin: time.Millisecond,
		RetryWaitMax: 5 * time.Millisecond,
	}, testLogger())
	ctx := context.Background()

	data, err := fetcher.Fetch(ctx, srv.URL+"/ipfs/ok")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)

	calls.Store(0)
	data, err = fetcher.Fetch(ctx, srv.URL+"/ipfs/late")
	require.NoError(t, err)
	assert.Equal(t, []byte("late payload"), data)

	_, err = fetcher.Fetch(ctx, srv.URL+"/ipfs/broken")
	require.ErrorIs(t, err, interfaces.ErrPublicationDegraded)

	_, err = fetcher.Fetch(ctx, srv.URL+"/ipfs/missing")
	require.ErrorIs(t, err, interfaces.ErrPublicationDegraded)
	require.False(t, errors.Is(err, interfaces.ErrVerificationMismatch))
}

func TestFileLedger_Write(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out", "deployed_apps.json")
	ledger := NewFileLedger(path, testLogger())
	assert.Equal(t, path, ledger.Location())

	verified := true
	report := interfaces.Report{
		{UnitID: 1, AppAddress: "0x01", DatasetVerified: &verified, DeployedAt: time.Unix(0, 0).UTC()},
		{UnitID: 2, Status: interfaces.UnitStatusFailed, Error: "boom", DeployedAt: time.Unix(0, 0).UTC()},
	}
	require.NoError(t, ledger.Write(report))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "\n  {\n    \"app_id\": 1,")

	loaded, err := ReadLedger(path)
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, 2, loaded[1].UnitID)
	assert.True(t, loaded[1].Failed())
	assert.Empty(t, loaded[1].AppAddress)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file must not be left behind")
}

func TestFileLedger_EmptyReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")
	require.NoError(t, NewFileLedger(path, testLogger()).Write(nil))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "[]\n", string(raw))
}
