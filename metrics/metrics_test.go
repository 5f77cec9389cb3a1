package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dev.hon.one/tcdconnect/common"
)

func TestWriteTextfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "textfile", "tcdconnect.prom")
	attempt := Attempt{
		Entry: common.ConnectAttemptEntry{
			Time:        time.Unix(1700000000, 0),
			DeviceIndex: 1,
			Device:      "10.0.0.5",
			Duration:    1500 * time.Millisecond,
			Success:     true,
		},
		RegistrySize: 4,
	}

	require.NoError(t, WriteTextfile(path, attempt))

	dat, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(dat)
	assert.Contains(t, text, `tcdconnect_exporter_info{version="`+common.AppVersion+`"} 1`)
	assert.Contains(t, text, `tcdconnect_connect_success{device="10.0.0.5",device_index="1"} 1`)
	assert.Contains(t, text, `tcdconnect_connect_duration_seconds{device="10.0.0.5",device_index="1"} 1.5`)
	assert.Contains(t, text, `tcdconnect_connect_timestamp_seconds{device="10.0.0.5",device_index="1"} 1.7e+09`)
	assert.Contains(t, text, `tcdconnect_registry_sessions 4`)
}

func TestFailedAttemptHasNoRegistrySize(t *testing.T) {
	registry := NewRegistry(Attempt{Entry: common.ConnectAttemptEntry{DeviceIndex: 0}})
	families, err := registry.Gather()
	require.NoError(t, err)

	names := map[string]bool{}
	for _, family := range families {
		names[family.GetName()] = true
	}
	assert.True(t, names["tcdconnect_connect_success"])
	assert.False(t, names["tcdconnect_registry_sessions"])
}
