package marketplace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppTemplate(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
		check   func(t *testing.T, err error, multiaddr, framework string)
	}{
		{
			name: "override image",
			content: `
type: DOCKER
multiaddr: docker.io/example/app:1.0.0
checksum: "0x0000000000000000000000000000000000000000000000000000000000000001"
`,
			check: func(t *testing.T, err error, multiaddr, framework string) {
				require.NoError(t, err)
				assert.Equal(t, "docker.io/example/app:1.0.0", multiaddr)
				assert.Equal(t, "SCONE", framework, "unset fields keep defaults")
			},
		},
		{
			name:    "json is yaml",
			content: `{"multiaddr":"docker.io/example/tee:2","mrenclave":{"framework":"GRAMINE","version":"v1","entrypoint":"/app","heapSize":1,"fingerprint":"ab"}}`,
			check: func(t *testing.T, err error, multiaddr, framework string) {
				require.NoError(t, err)
				assert.Equal(t, "docker.io/example/tee:2", multiaddr)
				assert.Equal(t, "GRAMINE", framework)
			},
		},
		{
			name:    "bad checksum",
			content: `checksum: "0x12"`,
			check: func(t *testing.T, err error, _, _ string) {
				require.Error(t, err)
			},
		},
		{
			name:    "malformed",
			content: "multiaddr: [",
			check: func(t *testing.T, err error, _, _ string) {
				require.Error(t, err)
			},
		},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, string(rune('a'+i))+".yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o600))
			template, err := LoadAppTemplate(path)
			tt.check(t, err, template.Multiaddr, template.MREnclave.Framework)
		})
	}

	_, err := LoadAppTemplate(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
}

func TestChainConfig_Validate(t *testing.T) {
	config := DefaultChainConfig()
	require.NoError(t, config.Validate())
	require.NoError(t, ValidateAppTemplate(DefaultAppTemplate))

	noRegistries := config
	noRegistries.AppRegistry = common.Address{}
	require.NoError(t, noRegistries.Validate(), "hub resolves missing registries")
	noRegistries.Hub = common.Address{}
	require.Error(t, noRegistries.Validate())

	badChain := config
	badChain.ChainID = 0
	require.Error(t, badChain.Validate())
}
