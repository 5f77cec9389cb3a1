package util

import (
	"encoding/json"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
)

// FileOp - Which step of reading a JSON file failed.
type FileOp string

// File operations.
const (
	FileOpRead  FileOp = "read"
	FileOpParse FileOp = "parse"
)

// FileError - Error from ParseJSONFile, telling reading and parsing apart.
type FileError struct {
	Op   FileOp
	Path string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("failed to %v file %v: %v", e.Op, e.Path, e.Err)
}

func (e *FileError) Unwrap() error {
	return e.Err
}

// ParseJSONFile reads a file and parses it as JSON, using the provided object.
func ParseJSONFile(destination interface{}, path string) error {
	log.WithFields(log.Fields{
		"datatype": fmt.Sprintf("%T", destination),
		"path":     path,
	}).Trace("Parsing JSON file")

	dat, err := os.ReadFile(path)
	if err != nil {
		return &FileError{Op: FileOpRead, Path: path, Err: err}
	}
	if err := json.Unmarshal(dat, destination); err != nil {
		return &FileError{Op: FileOpParse, Path: path, Err: err}
	}

	return nil
}
