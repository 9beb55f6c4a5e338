// Package output renders scan results as indented JSON to a file or stdout.
package output

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"mailscan/pkg/domain"
	"mailscan/pkg/logger"
)

const indent = "  "

// Writer writes scan results.
type Writer struct {
	stdout io.Writer
}

// New constructs a Writer printing to stdout when no file is requested.
func New(stdout io.Writer) *Writer {
	return &Writer{stdout: stdout}
}

// Write stores result as JSON at path, creating missing parent directories.
// An empty path prints the document to stdout instead. Failures are logged
// and reported by returning false.
func (w *Writer) Write(ctx context.Context, result *domain.ScanResult, path string) bool {
	data, err := Marshal(result)
	if err != nil {
		logger.Error(ctx, "could not encode results", zap.Error(err))

		return false
	}

	if path == "" {
		if _, err := w.stdout.Write(data); err != nil {
			logger.Error(ctx, "could not print results", zap.Error(err))

			return false
		}

		return true
	}

	if err := writeFile(path, data); err != nil {
		logger.Error(ctx, "failed to save results", zap.String("path", path), zap.Error(err))

		return false
	}
	logger.Info(ctx, "results saved", zap.String("path", path), zap.String("size", humanize.Bytes(uint64(len(data)))))

	return true
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil { //nolint: gosec
			return fmt.Errorf("could not create directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil { //nolint: gosec
		return fmt.Errorf("could not write file: %w", err)
	}

	return nil
}

// Marshal encodes result with a two space indent and a trailing newline.
// Method outputs that cannot be encoded are replaced by their fmt.Sprint form
// so that one bad value does not lose the whole document.
func Marshal(result *domain.ScanResult) ([]byte, error) {
	data, err := json.MarshalIndent(result, "", indent)
	if err == nil {
		return append(data, '\n'), nil
	}

	safe := &domain.ScanResult{ScanInfo: result.ScanInfo, Results: make(map[domain.Method]any, len(result.Results))}
	for m, v := range result.Results {
		if _, err := json.Marshal(v); err != nil {
			safe.Results[m] = fmt.Sprint(v)

			continue
		}
		safe.Results[m] = v
	}

	data, err = json.MarshalIndent(safe, "", indent)
	if err != nil {
		return nil, fmt.Errorf("could not marshal scan result: %w", err)
	}

	return append(data, '\n'), nil
}
