package bridge

import (
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/psantana5/renderhook/pkg/host"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientOverTLS(t *testing.T) {
	srv := httptest.NewTLSServer(NewServer(host.NewMemoryHost(bridgeSnapshot()), Options{}).Handler())
	defer srv.Close()

	caFile := filepath.Join(t.TempDir(), "ca.pem")
	data := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: srv.Certificate().Raw})
	require.NoError(t, os.WriteFile(caFile, data, 0o644))

	cfg, err := LoadClientTLS(caFile, "", "")
	require.NoError(t, err)

	client := host.NewClient(srv.URL)
	client.SetHTTPClient(&http.Client{Transport: &http.Transport{TLSClientConfig: cfg}})

	devices, err := client.Devices()
	require.NoError(t, err)
	assert.Len(t, devices, 3)
}

func TestLoadTLSErrors(t *testing.T) {
	_, err := LoadServerTLS("missing.pem", "missing.key", "")
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.pem")
	require.NoError(t, os.WriteFile(bad, []byte("not a cert"), 0o644))
	_, err = LoadClientTLS(bad, "", "")
	assert.Error(t, err)
}
