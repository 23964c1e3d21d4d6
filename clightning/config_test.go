package clightning

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/elementsproject/holdinvoice/hold"
	"github.com/elementsproject/holdinvoice/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOptions map[string]int

func (f fakeOptions) GetIntOption(name string) (int, error) {
	v, ok := f[name]
	if !ok {
		return -1, fmt.Errorf("Option '%s' not found", name)
	}
	return v, nil
}

func writeFile(t *testing.T, path, content string) {
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0700))
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
}

// newLightningDir returns a network dir below a fresh base dir.
func newLightningDir(t *testing.T) string {
	dir := filepath.Join(t.TempDir(), "regtest")
	require.NoError(t, os.MkdirAll(dir, 0700))
	return dir
}

func TestGetConfig_Defaults(t *testing.T) {
	dir := newLightningDir(t)

	c, err := GetConfig(dir, nil)
	require.NoError(t, err)
	assert.Equal(t, &Config{
		LightningDir:   dir,
		HoldinvoiceDir: filepath.Join(dir, "holdinvoice"),
		DbPath:         filepath.Join(dir, "holdinvoice", "holdinvoice.db"),
		CltvDelta:      hold.DefaultCltvDelta,
		PollInterval:   hold.DefaultPollInterval,
		FailurePolicy:  hold.FailOpen,
		Backend:        BackendDatastore,
		Namespace:      store.DefaultNamespace,
	}, c)
	assert.Equal(t, hold.DefaultParams(), c.Params())
}

func TestGetConfig_ClnConfigFile(t *testing.T) {
	dir := newLightningDir(t)
	writeFile(t, filepath.Join(filepath.Dir(dir), "config"), "cltv-delta=30\n")

	c, err := GetConfig(dir, nil)
	require.NoError(t, err)
	assert.Equal(t, uint32(30), c.CltvDelta)

	// The network config wins, unrelated lines are ignored.
	writeFile(t, filepath.Join(dir, "config"), `
# comment
network=regtest
log-level
 cltv-delta = 50
alias=hodl
`)
	c, err = GetConfig(dir, nil)
	require.NoError(t, err)
	assert.Equal(t, uint32(50), c.CltvDelta)
}

func TestGetConfig_MalformedCltvDelta(t *testing.T) {
	dir := newLightningDir(t)
	writeFile(t, filepath.Join(dir, "config"), "cltv-delta=forty\n")

	_, err := GetConfig(dir, nil)
	assert.ErrorContains(t, err, "malformed cltv-delta")
}

func TestGetConfig_PluginFile(t *testing.T) {
	dir := newLightningDir(t)
	writeFile(t, filepath.Join(dir, "config"), "cltv-delta=30\n")
	writeFile(t, filepath.Join(dir, "holdinvoice", "holdinvoice.conf"), `
cltvdelta=60
pollinterval="500ms"
failurepolicy="fail-closed"
backend="bbolt"
namespace="hodl"
dbpath="/tmp/hodl.db"
`)

	c, err := GetConfig(dir, nil)
	require.NoError(t, err)
	assert.Equal(t, uint32(60), c.CltvDelta)
	assert.Equal(t, 500*time.Millisecond, c.PollInterval)
	assert.Equal(t, hold.FailClosed, c.FailurePolicy)
	assert.Equal(t, BackendBbolt, c.Backend)
	assert.Equal(t, "hodl", c.Namespace)
	assert.Equal(t, "/tmp/hodl.db", c.DbPath)
}

func TestGetConfig_Option(t *testing.T) {
	dir := newLightningDir(t)
	writeFile(t, filepath.Join(dir, "holdinvoice", "holdinvoice.conf"), "cltvdelta=60\n")

	c, err := GetConfig(dir, fakeOptions{cltvDeltaOption: -1})
	require.NoError(t, err)
	assert.Equal(t, uint32(60), c.CltvDelta)

	c, err = GetConfig(dir, fakeOptions{cltvDeltaOption: 80})
	require.NoError(t, err)
	assert.Equal(t, uint32(80), c.CltvDelta)

	c, err = GetConfig(dir, fakeOptions{})
	require.NoError(t, err)
	assert.Equal(t, uint32(60), c.CltvDelta)

	_, err = GetConfig(dir, fakeOptions{cltvDeltaOption: 0})
	assert.Error(t, err)
}

func TestGetConfig_Invalid(t *testing.T) {
	tests := map[string]string{
		"poll interval":  `pollinterval="1ms"`,
		"bad duration":   `pollinterval="often"`,
		"policy":         `failurepolicy="fail-sometimes"`,
		"backend":        `backend="postgres"`,
		"zero delta":     `cltvdelta=0`,
		"malformed toml": `cltvdelta=`,
	}
	for name, conf := range tests {
		conf := conf
		t.Run(name, func(t *testing.T) {
			dir := newLightningDir(t)
			writeFile(t, filepath.Join(dir, "holdinvoice", "holdinvoice.conf"), conf)
			_, err := GetConfig(dir, nil)
			assert.Error(t, err)
		})
	}
}

func TestReloadHoldConfig(t *testing.T) {
	cl, _ := newTestClient(t)
	dir := newLightningDir(t)
	cl.lightningDir = dir
	config, err := GetConfig(dir, nil)
	require.NoError(t, err)
	cl.SetConfig(config)

	writeFile(t, filepath.Join(dir, "holdinvoice", "holdinvoice.conf"), `
cltvdelta=70
failurepolicy="fail-closed"
backend="bbolt"
`)
	res, err := (&ReloadHoldConfig{cl: cl}).Call()
	require.NoError(t, err)
	assert.Equal(t, `{"cltv-delta":70,"poll-interval":"3s","failure-policy":"fail-closed"}`, toJson(t, res))

	p := cl.Params()
	assert.Equal(t, uint32(70), p.CltvDelta)
	assert.Equal(t, hold.FailClosed, p.FailurePolicy)
	// The backend is only chosen on startup.
	assert.Equal(t, BackendDatastore, cl.currentConfig().Backend)

	res, err = (&GetDelta{cl: cl}).Call()
	require.NoError(t, err)
	assert.Equal(t, `{"cltv-delta":70}`, toJson(t, res))
}
