package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Init installs the global logger with two sinks: a human-readable console
// writer on stderr and a rotating JSON file under the data path.
func Init(verbose bool) {
	// Init runs before config.Load, so pull in .env beside the binary here
	// to make DATA_PATH / LOGS_FOLDER visible for sink resolution.
	if exePath, err := os.Executable(); err == nil {
		_ = godotenv.Load(filepath.Join(filepath.Dir(exePath), ".env"))
	}

	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	multi := zerolog.MultiLevelWriter(consoleSink(), fileSink(resolveLogDir()))
	log.Logger = zerolog.New(multi).With().Timestamp().Logger()
}

// consoleSink renders human-readable lines on stderr, colored only when
// stderr is attached to a terminal.
func consoleSink() io.Writer {
	isTerminal := isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())
	return zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
		NoColor:    !isTerminal,
	}
}

// fileSink writes rotating JSON logs to freightflow.log under dir. The
// directory must exist and be writable; Init exits otherwise.
func fileSink(dir string) io.Writer {
	if err := os.MkdirAll(dir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to create log directory %q: %v\n", dir, err)
		os.Exit(1)
	}

	probe := filepath.Join(dir, ".write-test")
	if err := os.WriteFile(probe, []byte("ok"), 0644); err != nil {
		fmt.Fprintf(os.Stderr, "Error: log directory %q is not writable: %v\n", dir, err)
		os.Exit(1)
	}
	_ = os.Remove(probe)

	return &lumberjack.Logger{
		Filename:   filepath.Join(dir, "freightflow.log"),
		MaxSize:    16, // megabytes
		MaxBackups: 32,
		MaxAge:     365, // days
		Compress:   true,
	}
}

// resolveLogDir prefers LOGS_FOLDER, then <DATA_PATH>/logs.
func resolveLogDir() string {
	if dir := os.Getenv("LOGS_FOLDER"); dir != "" {
		return dir
	}
	dataPath := os.Getenv("DATA_PATH")
	if dataPath == "" {
		dataPath = "./.freightflow"
	}
	return filepath.Join(dataPath, "logs")
}
