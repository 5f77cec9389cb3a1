package db

import (
	"context"
	"errors"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	log "github.com/sirupsen/logrus"

	"dev.hon.one/tcdconnect/common"
)

// WriteTimeout - Upper limit for storing an attempt.
const WriteTimeout = 5 * time.Second

// Client - InfluxDB attempt history.
type Client struct {
	client influxdb2.Client
	org    string
	bucket string
}

// NewClient - Create a client from the config. Returns nil if no InfluxDB URL is configured.
func NewClient(config common.Config) *Client {
	if config.InfluxDBURL == "" {
		return nil
	}
	return &Client{
		client: influxdb2.NewClient(config.InfluxDBURL, config.InfluxDBToken),
		org:    config.InfluxDBOrg,
		bucket: config.InfluxDBBucket,
	}
}

// Close - Close the underlying client. Safe on nil.
func (client *Client) Close() {
	if client == nil {
		return
	}
	client.client.Close()
}

// StoreConnectAttempt - Store a connection attempt. Safe on nil, then it does nothing.
func (client *Client) StoreConnectAttempt(ctx context.Context, entry common.ConnectAttemptEntry) error {
	log.WithFields(log.Fields{
		"device_index": entry.DeviceIndex,
		"device":       entry.Device,
		"time":         entry.Time,
		"duration":     entry.Duration,
		"success":      entry.Success,
	}).Trace("Connect attempt entry")

	if client == nil {
		return nil
	}
	if client.bucket == "" {
		return errors.New("InfluxDB bucket missing")
	}

	ctx, cancel := context.WithTimeout(ctx, WriteTimeout)
	defer cancel()

	point := influxdb2.NewPointWithMeasurement("connect_attempt").
		AddTag("device", entry.Device).
		AddField("device_index", entry.DeviceIndex).
		AddField("duration_seconds", float64(entry.Duration)/float64(time.Second)).
		AddField("success", entry.Success).
		SetTime(entry.Time)
	return client.client.WriteAPIBlocking(client.org, client.bucket).WritePoint(ctx, point)
}
