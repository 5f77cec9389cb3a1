// Package scan reads the device list produced by a previous network scan and picks one device from it.
package scan

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"dev.hon.one/tcdconnect/common"
	"dev.hon.one/tcdconnect/util"
)

// Errors.
var (
	ErrMissingScanFile   = errors.New("scan file missing")
	ErrMalformedScanData = errors.New("malformed scan data")
	ErrNotFound          = errors.New("no device at requested index")
)

// Load - Read the scan file as an ordered list of device descriptors.
func Load(path string) ([]common.Document, error) {
	var devices []common.Document
	err := util.ParseJSONFile(&devices, path)
	if err != nil {
		var fileErr *util.FileError
		if errors.As(err, &fileErr) && fileErr.Op == util.FileOpParse {
			return nil, fmt.Errorf("%w: %v", ErrMalformedScanData, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrMissingScanFile, err)
	}
	// Only "null" leaves the slice nil
	if devices == nil {
		return nil, fmt.Errorf("%w: %v is not a list", ErrMalformedScanData, path)
	}

	log.WithFields(log.Fields{
		"path":         path,
		"device_count": len(devices),
	}).Debug("Loaded scan")
	return devices, nil
}

// Select - Find the device whose position equals the requested index.
// The index is a decimal integer, surrounding whitespace allowed. Anything else matches nothing.
func Select(devices []common.Document, requestedIndex string) (common.Document, int, error) {
	index, err := strconv.Atoi(strings.TrimSpace(requestedIndex))
	if err != nil {
		log.WithFields(log.Fields{
			"requested_index": requestedIndex,
		}).Debug("Device index is not a number")
		return nil, -1, ErrNotFound
	}

	for position, device := range devices {
		if position == index {
			return device, position, nil
		}
	}
	return nil, -1, ErrNotFound
}
