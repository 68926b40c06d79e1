package publisher

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ruteri/marketplace-bulk-provisioner/cryptoutils"
	"github.com/ruteri/marketplace-bulk-provisioner/interfaces"
	"github.com/ruteri/marketplace-bulk-provisioner/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testCID = "QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG"

type mockStore struct {
	mock.Mock
}

func (m *mockStore) Add(ctx context.Context, data []byte) (string, error) {
	args := m.Called(ctx, data)
	return args.String(0), args.Error(1)
}

func (m *mockStore) Name() string { return "mock-store" }

type fetcherFunc func(ctx context.Context, url string) ([]byte, error)

func (f fetcherFunc) Fetch(ctx context.Context, url string) ([]byte, error) { return f(ctx, url) }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPublish(t *testing.T) {
	content := []byte("test1 - 2025-01-01T00:00:00Z")

	// echo hands back exactly what was added
	var added []byte
	echo := fetcherFunc(func(ctx context.Context, url string) ([]byte, error) {
		return added, nil
	})

	tests := []struct {
		name       string
		storeErr   error
		fetcher    interfaces.ContentFetcher
		verified   bool
		wantErrIs  error
		wantLocate string
	}{
		{
			name:       "verified",
			fetcher:    echo,
			verified:   true,
			wantLocate: "/ipfs/" + testCID,
		},
		{
			name:       "store error",
			storeErr:   errors.New("upload refused"),
			fetcher:    echo,
			wantErrIs:  interfaces.ErrPublicationDegraded,
			wantLocate: FallbackLocator,
		},
		{
			name: "gateway error",
			fetcher: fetcherFunc(func(ctx context.Context, url string) ([]byte, error) {
				return nil, errors.New("404 Not Found")
			}),
			wantErrIs:  interfaces.ErrPublicationDegraded,
			wantLocate: FallbackLocator,
		},
		{
			name: "mismatch",
			fetcher: fetcherFunc(func(ctx context.Context, url string) ([]byte, error) {
				return []byte("something else"), nil
			}),
			wantErrIs:  interfaces.ErrVerificationMismatch,
			wantLocate: FallbackLocator,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &mockStore{}
			store.On("Add", mock.Anything, mock.Anything).
				Run(func(args mock.Arguments) { added = args.Get(1).([]byte) }).
				Return(testCID, tt.storeErr)

			p := NewPublisher(store, tt.fetcher, "https://gateway.example/", testLogger())
			artifact := p.Publish(context.Background(), content, "bulk-dataset-1")
			require.NotNil(t, artifact)

			// populated regardless of the publication outcome
			assert.NotEmpty(t, artifact.EncryptionKey)
			assert.Equal(t, cryptoutils.ComputeEncryptedFileChecksum(artifact.Ciphertext), artifact.Checksum)
			assert.Equal(t, content, artifact.Plaintext)
			assert.Equal(t, tt.verified, artifact.Verified)
			assert.Equal(t, tt.wantLocate, artifact.Locator)
			assert.Equal(t, "https://gateway.example"+tt.wantLocate, artifact.PublicURL)

			plaintext, err := cryptoutils.DecryptDataset(artifact.Ciphertext, artifact.EncryptionKey)
			require.NoError(t, err)
			assert.Equal(t, content, plaintext)

			if tt.verified {
				assert.Empty(t, artifact.PublishError)
				assert.Equal(t, testCID, artifact.CID)
				assert.Equal(t, artifact.Ciphertext, added)
			} else {
				assert.NotEmpty(t, artifact.PublishError)
				assert.True(t, artifact.Degraded())
			}
			store.AssertExpectations(t)
		})
	}
}

func TestPublish_ErrorClassification(t *testing.T) {
	store := &mockStore{}
	store.On("Add", mock.Anything, mock.Anything).Return(testCID, nil)
	p := NewPublisher(store, fetcherFunc(func(ctx context.Context, url string) ([]byte, error) {
		return []byte("tampered"), nil
	}), "https://gateway.example", testLogger())

	_, err := p.publish(context.Background(), []byte("ciphertext"))
	require.Error(t, err)
	assert.ErrorIs(t, err, interfaces.ErrVerificationMismatch)
	assert.ErrorIs(t, err, interfaces.ErrPublicationDegraded)
}

func TestPublish_FreshKeys(t *testing.T) {
	store := &mockStore{}
	store.On("Add", mock.Anything, mock.Anything).Return("", errors.New("offline"))
	p := NewPublisher(store, nil, "https://gateway.example", testLogger())

	a := p.Publish(context.Background(), []byte("same"), "a")
	b := p.Publish(context.Background(), []byte("same"), "b")
	assert.NotEqual(t, a.EncryptionKey, b.EncryptionKey)
	assert.NotEqual(t, a.Checksum, b.Checksum)
}

// fakeIPFS serves both the upload API and the gateway from one server.
type fakeIPFS struct {
	mu      sync.Mutex
	content []byte
	serve   bool
}

func (f *fakeIPFS) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v0/add", func(w http.ResponseWriter, r *http.Request) {
		reader, err := r.MultipartReader()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		part, err := reader.NextPart()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		data, _ := io.ReadAll(part)
		f.mu.Lock()
		f.content = data
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"Name":"file","Hash":"`+testCID+`","Size":"1"}`)
	})
	mux.HandleFunc("/ipfs/"+testCID, func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if !f.serve {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(f.content)
	})
	return mux
}

func TestPublish_EndToEnd(t *testing.T) {
	for _, serve := range []bool{true, false} {
		fake := &fakeIPFS{serve: serve}
		srv := httptest.NewServer(fake.handler())

		store := storage.NewIPFSStore(srv.URL, 5*time.Second, testLogger())
		fetcher := storage.NewGatewayFetcher(storage.GatewayOpts{
			Timeout:      time.Second,
			MaxAttempts:  2,
			RetryWaitMin: time.Millisecond,
			RetryWaitMax: 5 * time.Millisecond,
		}, testLogger())

		p := NewPublisher(store, fetcher, srv.URL, testLogger())
		artifact := p.Publish(context.Background(), []byte("test1"), "bulk-dataset-1")

		fake.mu.Lock()
		assert.Equal(t, artifact.Ciphertext, fake.content, "upload gateway receives the ciphertext")
		fake.mu.Unlock()

		if serve {
			require.True(t, artifact.Verified, artifact.PublishError)
			assert.Empty(t, artifact.PublishError)
			assert.Equal(t, testCID, artifact.CID)
			assert.Equal(t, "/ipfs/"+testCID, artifact.Locator)
			assert.Equal(t, srv.URL+"/ipfs/"+testCID, artifact.PublicURL)
		} else {
			assert.False(t, artifact.Verified)
			assert.Equal(t, FallbackLocator, artifact.Locator)
			assert.Equal(t, srv.URL+FallbackLocator, artifact.PublicURL)
			assert.NotEmpty(t, artifact.PublishError)
		}
		srv.Close()
	}
}
