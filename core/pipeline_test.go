package core

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dev.hon.one/tcdconnect/common"
	"dev.hon.one/tcdconnect/connect"
	"dev.hon.one/tcdconnect/diag"
	"dev.hon.one/tcdconnect/registry"
	"dev.hon.one/tcdconnect/scan"
)

type fakeConnector struct {
	calls   []connect.Request
	session common.Document
	err     error
}

func (fake *fakeConnector) Connect(ctx context.Context, request connect.Request, sink diag.Sink) (common.Document, error) {
	fake.calls = append(fake.calls, request)
	sink.Print("negotiating", request.Login)
	sink.Print("done")
	if fake.err != nil {
		return nil, fake.err
	}
	if fake.session != nil {
		return fake.session, nil
	}
	return request.Device.Clone(), nil
}

type testEnv struct {
	pipeline *Pipeline
	console  *bytes.Buffer
	paths    common.Paths
}

func newTestEnv(t *testing.T, scanContent string, connector connect.Connector) testEnv {
	t.Helper()
	config := common.DefaultConfig()
	config.HomeDir = t.TempDir()
	paths := config.Paths()
	if scanContent != "" {
		require.NoError(t, os.MkdirAll(paths.DataDir, 0o755))
		require.NoError(t, os.WriteFile(paths.ScanFile, []byte(scanContent), 0o644))
	}
	console := &bytes.Buffer{}
	return testEnv{
		pipeline: NewPipeline(config, connector, console),
		console:  console,
		paths:    paths,
	}
}

func (env testEnv) logLines(t *testing.T) []string {
	t.Helper()
	dat, err := os.ReadFile(env.paths.ConnectLog)
	require.NoError(t, err)
	return strings.Split(strings.TrimSuffix(string(dat), "\n"), "\n")
}

func TestRunConnectsSelectedDevice(t *testing.T) {
	connector := &fakeConnector{}
	env := newTestEnv(t, `[{"id":"dev0"},{"id":"dev1"}]`, connector)

	result, err := env.pipeline.Run(context.Background(), Args{
		DeviceIndex: "1",
		Login:       "torizon",
		Password:    "s3cret",
		HostIP:      "10.0.0.2",
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeConnected, result.Outcome)
	assert.Equal(t, 1, result.DeviceIndex)
	assert.True(t, result.Attempted)
	assert.Equal(t, 1, result.RegistrySize)

	require.Len(t, connector.calls, 1)
	assert.JSONEq(t, `"dev1"`, string(connector.calls[0].Device["id"]))
	assert.Equal(t, "torizon", connector.calls[0].Login)
	assert.Equal(t, "s3cret", connector.calls[0].Password)
	assert.Equal(t, "10.0.0.2", connector.calls[0].HostIP)

	records, err := registry.New(env.paths.RegistryFile, false).Load()
	require.NoError(t, err)
	require.Len(t, records, 1)
	id, _ := records[0].String("id")
	assert.Equal(t, "dev1", id)
	password, _ := records[0].String(common.PasswordField)
	assert.Equal(t, "s3cret", password)

	assert.Empty(t, env.console.String())
	assert.Equal(t, []string{`["negotiating","torizon"]`, `["done"]`}, env.logLines(t))

	env.pipeline.Diagnostics.Print("control")
	assert.Equal(t, "control\n", env.console.String())
	assert.Len(t, env.logLines(t), 2)

	assert.Equal(t, ExitOK, Report(env.console, result, nil))
}

func TestRunNotFound(t *testing.T) {
	connector := &fakeConnector{}
	env := newTestEnv(t, `[{"id":"dev0"}]`, connector)

	result, err := env.pipeline.Run(context.Background(), Args{DeviceIndex: "5", Login: "a", Password: "b", HostIP: "c"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeNotFound, result.Outcome)
	assert.False(t, result.Attempted)
	assert.Empty(t, connector.calls)

	assert.NoFileExists(t, env.paths.RegistryFile)
	assert.NoFileExists(t, env.paths.ConnectLog)

	var out bytes.Buffer
	assert.Equal(t, ExitNotFound, Report(&out, result, nil))
	assert.Equal(t, "[]\n", out.String())
}

func TestRunCreatesRegistry(t *testing.T) {
	env := newTestEnv(t, `[{"id":"dev0"}]`, &fakeConnector{
		session: common.Document{"Hostname": []byte(`"board"`)},
	})
	require.NoFileExists(t, env.paths.RegistryFile)

	_, err := env.pipeline.Run(context.Background(), Args{DeviceIndex: "0", Password: "pw"})
	require.NoError(t, err)

	dat, err := os.ReadFile(env.paths.RegistryFile)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"Hostname":"board","__pass__":"pw"}]`, string(dat))
}

func TestRunAppendsToExistingRegistry(t *testing.T) {
	env := newTestEnv(t, `[{"id":"dev0"}]`, &fakeConnector{})
	require.NoError(t, os.WriteFile(env.paths.RegistryFile, []byte(`[{"id":"dev0","__pass__":"old"}]`), 0o644))

	for i := 0; i < 2; i++ {
		result, err := env.pipeline.Run(context.Background(), Args{DeviceIndex: "0", Password: "new"})
		require.NoError(t, err)
		assert.Equal(t, i+2, result.RegistrySize)
	}

	records, err := registry.New(env.paths.RegistryFile, false).Load()
	require.NoError(t, err)
	require.Len(t, records, 3)
	password, _ := records[2].String(common.PasswordField)
	assert.Equal(t, "new", password)
}

func TestRunConnectorFailure(t *testing.T) {
	env := newTestEnv(t, `[{"id":"dev0"}]`, &fakeConnector{err: errors.New("auth failed")})
	before := []byte(`[{"id":"dev0","__pass__":"old"}]`)
	require.NoError(t, os.WriteFile(env.paths.RegistryFile, before, 0o644))

	result, err := env.pipeline.Run(context.Background(), Args{DeviceIndex: "0", Password: "pw"})
	assert.True(t, errors.Is(err, connect.ErrConnectorFailure), "got %v", err)
	assert.True(t, result.Attempted)

	after, readErr := os.ReadFile(env.paths.RegistryFile)
	require.NoError(t, readErr)
	assert.Equal(t, before, after)

	// Diagnostics from the failed attempt are still archived, and the console is back
	assert.Equal(t, []string{`["negotiating",""]`, `["done"]`}, env.logLines(t))
	env.pipeline.Diagnostics.Print("control")
	assert.Equal(t, "control\n", env.console.String())

	code := Report(env.console, result, err)
	assert.Equal(t, ExitFailure, code)
	assert.NotEqual(t, ExitNotFound, code)
}

func TestRunLoadFailures(t *testing.T) {
	t.Run("missing scan", func(t *testing.T) {
		connector := &fakeConnector{}
		env := newTestEnv(t, "", connector)
		_, err := env.pipeline.Run(context.Background(), Args{DeviceIndex: "0"})
		assert.True(t, errors.Is(err, scan.ErrMissingScanFile))
		assert.Empty(t, connector.calls)
	})

	t.Run("malformed scan", func(t *testing.T) {
		connector := &fakeConnector{}
		env := newTestEnv(t, `{"id":"dev0"}`, connector)
		_, err := env.pipeline.Run(context.Background(), Args{DeviceIndex: "0"})
		assert.True(t, errors.Is(err, scan.ErrMalformedScanData))
		assert.Empty(t, connector.calls)
	})

	t.Run("malformed registry", func(t *testing.T) {
		env := newTestEnv(t, `[{"id":"dev0"}]`, &fakeConnector{})
		require.NoError(t, os.WriteFile(env.paths.RegistryFile, []byte(`{`), 0o644))
		_, err := env.pipeline.Run(context.Background(), Args{DeviceIndex: "0"})
		assert.True(t, errors.Is(err, registry.ErrMalformedRegistryData))
	})
}

func TestRunDiagnosticLogUnwritable(t *testing.T) {
	connector := &fakeConnector{}
	env := newTestEnv(t, `[{"id":"dev0"}]`, connector)
	require.NoError(t, os.Mkdir(env.paths.ConnectLog, 0o755))

	_, err := env.pipeline.Run(context.Background(), Args{DeviceIndex: "0"})
	assert.True(t, errors.Is(err, diag.ErrIOFailure), "got %v", err)
	assert.Empty(t, connector.calls)
	assert.NoFileExists(t, env.paths.RegistryFile)
}

func TestRunUsesRegistryPathOnly(t *testing.T) {
	env := newTestEnv(t, `[{"id":"dev0"}]`, &fakeConnector{})
	_, err := env.pipeline.Run(context.Background(), Args{DeviceIndex: "0"})
	require.NoError(t, err)

	entries, err := os.ReadDir(env.paths.DataDir)
	require.NoError(t, err)
	var names []string
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	assert.ElementsMatch(t, []string{"scan.json", "connect.log", "connected.json"}, names)
	assert.Equal(t, filepath.Join(env.paths.DataDir, "connected.json"), env.pipeline.Registry.Path())
}
