package bulk

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

var (
	ErrMissingFile = errors.New("bulk: file is required")
	ErrNotCSV      = errors.New("bulk: only CSV files are accepted")
)

// CheckCSV accepts an upload only if it is named *.csv and its content sniffs as CSV or plain text.
// f is rewound to the start on success.
func CheckCSV(fileName string, f io.ReadSeeker) error {
	if f == nil || fileName == "" {
		return ErrMissingFile
	}
	if !strings.EqualFold(filepath.Ext(fileName), ".csv") {
		return fmt.Errorf("%w: %q", ErrNotCSV, fileName)
	}

	mt, err := mimetype.DetectReader(f)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotCSV, err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind upload: %w", err)
	}
	if !mt.Is("text/csv") && !mt.Is("text/plain") {
		return fmt.Errorf("%w: detected %s", ErrNotCSV, mt.String())
	}
	return nil
}
