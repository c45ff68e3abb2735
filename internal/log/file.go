package log

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// AddFileOutput makes logger write to both its current output and the log file inside dir. The
// returned closer closes the log file and must be called once logging is done.
func AddFileOutput(logger *logrus.Logger, dir string) (io.Closer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}

	logFile, err := os.OpenFile(filepath.Join(dir, LogFileName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}

	logger.SetOutput(io.MultiWriter(logger.Out, logFile))

	return logFile, nil
}
