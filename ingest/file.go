package ingest

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"bid-review/decision/lineitem"
	bierrors "bid-review/pkg/errors"
)

// Format is a supported input document format.
type Format string

const (
	FormatJSON  Format = "json"
	FormatExcel Format = "xlsx"
)

// DetectFormat infers the format from a file name.
func DetectFormat(name string) (Format, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json":
		return FormatJSON, nil
	case ".xlsx", ".xlsm":
		return FormatExcel, nil
	default:
		return "", bierrors.NewUnsupportedFormatError(name)
	}
}

// ReadItems reads line items from a named document.
func ReadItems(name string, r io.Reader) ([]lineitem.LineItem, error) {
	format, err := DetectFormat(name)
	if err != nil {
		return nil, err
	}
	source := filepath.Base(name)

	switch format {
	case FormatExcel:
		return ReadWorkbook(r, source)
	default:
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		return DecodeItems(bytes.TrimSpace(data), source)
	}
}

// LoadItems reads line items from a file on disk.
func LoadItems(path string) ([]lineitem.LineItem, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return ReadItems(path, f)
}

// LoadFindings reads an AI findings JSON file from disk.
func LoadFindings(path string) (lineitem.Finding, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return lineitem.Finding{}, fmt.Errorf("open %s: %w", path, err)
	}
	return DecodeFindings(data, filepath.Base(path))
}
