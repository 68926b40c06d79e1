package common

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetupLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	log := SetupLogger(&LoggingOpts{JSON: true, Service: "svc", Version: "v1", Output: &buf})
	log.Debug("hidden")
	log.Info("visible", "unit", 3)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "visible", entry["msg"])
	require.Equal(t, "svc", entry["service"])
	require.Equal(t, "v1", entry["version"])
	require.EqualValues(t, 3, entry["unit"])
}

func TestSetupLogger_Debug(t *testing.T) {
	var buf bytes.Buffer
	log := SetupLogger(&LoggingOpts{Debug: true, Output: &buf})
	log.Debug("stage detail")
	require.Contains(t, buf.String(), "stage detail")
}
