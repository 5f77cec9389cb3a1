// Package core runs one connection: pick a scanned device, connect to it and record the session.
package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	log "github.com/sirupsen/logrus"

	"dev.hon.one/tcdconnect/common"
	"dev.hon.one/tcdconnect/connect"
	"dev.hon.one/tcdconnect/diag"
	"dev.hon.one/tcdconnect/registry"
	"dev.hon.one/tcdconnect/scan"
)

// Exit statuses.
const (
	ExitOK       = 0
	ExitFailure  = 1
	ExitNotFound = 404
)

// Outcome - How a run ended, if it didn't fail.
type Outcome int

// Outcomes.
const (
	OutcomeConnected Outcome = iota
	OutcomeNotFound
)

// Args - Positional arguments of a run.
type Args struct {
	DeviceIndex string
	Login       string
	Password    string
	HostIP      string
}

// Result - What happened during a run.
type Result struct {
	Outcome       Outcome
	DeviceIndex   int
	DeviceAddress string
	Attempted     bool // The connector was called
	StartTime     time.Time
	Duration      time.Duration
	RegistrySize  int
}

// Pipeline - Everything a run needs, resolved once at startup.
type Pipeline struct {
	Paths       common.Paths
	Registry    *registry.Store
	Connector   connect.Connector
	Diagnostics *diag.Switch
}

// NewPipeline - Create a pipeline for the config.
func NewPipeline(config common.Config, connector connect.Connector, console io.Writer) *Pipeline {
	paths := config.Paths()
	return &Pipeline{
		Paths:       paths,
		Registry:    registry.New(paths.RegistryFile, config.AtomicRegistryWrites),
		Connector:   connector,
		Diagnostics: diag.NewSwitch(diag.NewConsoleSink(console)),
	}
}

// Run - Load the scan, select the device, connect and record the session.
// A device index matching nothing is not an error, it gives OutcomeNotFound.
// The registry is only written once the connector has succeeded.
func (pipeline *Pipeline) Run(ctx context.Context, args Args) (Result, error) {
	result := Result{DeviceIndex: -1}

	devices, err := scan.Load(pipeline.Paths.ScanFile)
	if err != nil {
		return result, err
	}

	device, index, err := scan.Select(devices, args.DeviceIndex)
	if errors.Is(err, scan.ErrNotFound) {
		log.WithFields(log.Fields{
			"requested_index": args.DeviceIndex,
			"device_count":    len(devices),
		}).Debug("No device at requested index")
		result.Outcome = OutcomeNotFound
		return result, nil
	}
	if err != nil {
		return result, err
	}
	result.DeviceIndex = index
	result.DeviceAddress, _ = connect.DeviceAddress(device)

	log.WithFields(log.Fields{
		"device_index":   index,
		"device_address": result.DeviceAddress,
	}).Debug("Connecting to device")

	request := connect.Request{
		Device:   device,
		Login:    args.Login,
		Password: args.Password,
		HostIP:   args.HostIP,
	}
	var session common.Document
	result.Attempted = true
	result.StartTime = time.Now()
	err = pipeline.Diagnostics.Redirect(pipeline.Paths.ConnectLog, func() error {
		var connectErr error
		session, connectErr = pipeline.Connector.Connect(ctx, request, pipeline.Diagnostics)
		return connectErr
	})
	result.Duration = time.Since(result.StartTime)
	if err != nil {
		if !errors.Is(err, connect.ErrConnectorFailure) && !errors.Is(err, diag.ErrIOFailure) {
			err = fmt.Errorf("%w: %v", connect.ErrConnectorFailure, err)
		}
		return result, err
	}
	if session == nil {
		return result, fmt.Errorf("%w: connector returned no session", connect.ErrConnectorFailure)
	}

	size, err := pipeline.Registry.Append(session, args.Password)
	if err != nil {
		return result, err
	}
	result.RegistrySize = size
	result.Outcome = OutcomeConnected

	log.WithFields(log.Fields{
		"device_index":  index,
		"duration":      result.Duration,
		"registry_size": size,
	}).Debug("Session recorded")
	return result, nil
}

// Report - Write the outcome to the console and return the exit status.
func Report(out io.Writer, result Result, err error) int {
	if err != nil {
		return ExitFailure
	}
	if result.Outcome == OutcomeNotFound {
		fmt.Fprintln(out, "[]")
		return ExitNotFound
	}
	return ExitOK
}
