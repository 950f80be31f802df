package common

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/arbor/models"
)

var (
	globalLogger arbor.ILogger
	loggerMutex  sync.RWMutex
)

func consoleWriter() models.WriterConfiguration {
	return models.WriterConfiguration{
		Type:             models.LogWriterTypeConsole,
		TimeFormat:       "15:04:05",
		TextOutput:       true,
		DisableTimestamp: false,
	}
}

// GetLogger returns the global logger, creating a console logger on first use
func GetLogger() arbor.ILogger {
	loggerMutex.RLock()
	if globalLogger != nil {
		loggerMutex.RUnlock()
		return globalLogger
	}
	loggerMutex.RUnlock()

	loggerMutex.Lock()
	defer loggerMutex.Unlock()

	if globalLogger == nil {
		globalLogger = arbor.NewLogger().WithConsoleWriter(consoleWriter())
	}
	return globalLogger
}

// InitLogger builds the run logger from the [logging] section and stores it globally.
// File output lands in logs/moverwatch.log next to the executable.
func InitLogger(config *Config) arbor.ILogger {
	loggerMutex.Lock()
	defer loggerMutex.Unlock()

	logger := arbor.NewLogger()

	toFile, toConsole := false, false
	for _, output := range config.Logging.Output {
		switch output {
		case "file":
			toFile = true
		case "stdout", "console":
			toConsole = true
		}
	}

	if toFile {
		if logsDir, err := logsDirectory(); err != nil {
			fmt.Printf("Warning: file logging disabled: %v\n", err)
			toConsole = true
		} else {
			logger = logger.WithFileWriter(models.WriterConfiguration{
				Type:             models.LogWriterTypeFile,
				FileName:         filepath.Join(logsDir, "moverwatch.log"),
				TimeFormat:       "15:04:05",
				MaxSize:          20 * 1024 * 1024,
				MaxBackups:       5,
				TextOutput:       true,
				DisableTimestamp: false,
			})
		}
	}

	// The daily run is usually watched from a terminal or a cron mail, never silent
	if toConsole || !toFile {
		logger = logger.WithConsoleWriter(consoleWriter())
	}

	logger = logger.WithLevelFromString(config.Logging.Level)
	globalLogger = logger

	return logger
}

func logsDirectory() (string, error) {
	execPath, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("failed to get executable path: %w", err)
	}
	dir := filepath.Join(filepath.Dir(execPath), "logs")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create logs directory: %w", err)
	}
	return dir, nil
}
