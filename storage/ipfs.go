package storage

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	files "github.com/ipfs/boxo/files"
	"github.com/ipfs/go-cid"
	shell "github.com/ipfs/go-ipfs-api"
	"github.com/ruteri/marketplace-bulk-provisioner/interfaces"
)

// IPFSStore implements interfaces.ContentStore on top of the IPFS HTTP API.
// The API endpoint may be a local node or an upload gateway that only
// exposes /api/v0/add.
type IPFSStore struct {
	shell  *shell.Shell
	apiURL string
	log    *slog.Logger
}

// NewIPFSStore creates a store talking to the IPFS API at apiURL
// (e.g. https://ipfs-upload.example.org:443 or 127.0.0.1:5001).
func NewIPFSStore(apiURL string, timeout time.Duration, log *slog.Logger) *IPFSStore {
	sh := shell.NewShell(apiURL)
	if timeout > 0 {
		sh.SetTimeout(timeout)
	}

	return &IPFSStore{
		shell:  sh,
		apiURL: apiURL,
		log:    log,
	}
}

// Add pins data and returns its CID. The CID returned by the node is parsed
// so that a misbehaving gateway cannot hand back an arbitrary string.
//
// The request is built directly rather than through Shell.Add, which first
// queries /api/v0/version to pick a multipart encoding. Upload gateways do
// not serve that endpoint; nodes from 0.23 on expect the encoded form used
// here.
func (s *IPFSStore) Add(ctx context.Context, data []byte) (string, error) {
	start := time.Now()

	dir := files.NewSliceDirectory([]files.DirEntry{
		files.FileEntry("", files.NewReaderFile(bytes.NewReader(data))),
	})
	body := files.NewMultiFileReader(dir, true, false)

	var out struct {
		Hash string
	}
	err := s.shell.Request("add").
		Option("pin", true).
		Body(body).
		Exec(ctx, &out)
	if err != nil {
		s.log.Warn("Failed to add data to IPFS",
			slog.String("api", s.apiURL),
			"err", err,
			slog.Duration("duration", time.Since(start)))
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", fmt.Errorf("failed to add data to IPFS: %w", err)
	}

	parsed, err := cid.Decode(out.Hash)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", interfaces.ErrInvalidContentID, out.Hash, err)
	}

	s.log.Debug("Stored content in IPFS",
		slog.String("ipfsCID", parsed.String()),
		slog.Int("size", len(data)),
		slog.Duration("duration", time.Since(start)))

	return parsed.String(), nil
}

// Name returns a unique identifier for this store.
func (s *IPFSStore) Name() string {
	return fmt.Sprintf("ipfs-%s", s.apiURL)
}

// Multiaddr returns the registry form of a content locator.
func Multiaddr(contentID string) string {
	return "/ipfs/" + contentID
}
