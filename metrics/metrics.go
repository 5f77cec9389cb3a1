// Package metrics writes a Prometheus textfile describing the last connection attempt,
// for pickup by the node exporter textfile collector.
package metrics

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"dev.hon.one/tcdconnect/common"
	"dev.hon.one/tcdconnect/util"
)

// Attempt - The values exported for one attempt.
type Attempt struct {
	Entry        common.ConnectAttemptEntry
	RegistrySize int
}

// NewRegistry - Build a registry holding the attempt metrics.
func NewRegistry(attempt Attempt) *prometheus.Registry {
	registry := prometheus.NewRegistry()
	util.NewExporterMetric(registry, common.PrometheusNamespace, common.AppVersion)

	entry := attempt.Entry
	labels := prometheus.Labels{
		"device_index": strconv.Itoa(entry.DeviceIndex),
		"device":       entry.Device,
	}
	success := 0.0
	if entry.Success {
		success = 1
	}
	util.NewGaugeVec(registry, common.PrometheusNamespace, "connect", "success", "Whether the last connection attempt succeeded.", nil, labels).With(labels).Set(success)
	util.NewGaugeVec(registry, common.PrometheusNamespace, "connect", "duration_seconds", "Duration of the last connection attempt.", nil, labels).With(labels).Set(entry.Duration.Seconds())
	util.NewGaugeVec(registry, common.PrometheusNamespace, "connect", "timestamp_seconds", "Start time of the last connection attempt.", nil, labels).With(labels).Set(float64(entry.Time.UnixNano()) / 1e9)
	if entry.Success {
		util.NewGauge(registry, common.PrometheusNamespace, "registry", "sessions", "Number of sessions in the session registry.", nil).Set(float64(attempt.RegistrySize))
	}
	return registry
}

// WriteTextfile - Write the attempt metrics to path, replacing the previous file.
func WriteTextfile(path string, attempt Attempt) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := prometheus.WriteToTextfile(path, NewRegistry(attempt)); err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"path": path,
	}).Debug("Wrote metrics textfile")
	return nil
}
