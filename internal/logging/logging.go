// Package logging configures the process-wide structured logger.
//
// It plays the role that small-frappuccino-discordcore's pkg/log plays for
// that repo: a single setup function producing a logger that tees to a
// rotated file and to the console. Here the underlying library is logrus
// (the stack anyotin-valley-pkg and encoredev-encore both depend on)
// rather than slog, and rotation is handled the same way discordcore
// handles it, via gopkg.in/natefinch/lumberjack.v2.
package logging

import (
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Setup builds a *logrus.Logger that writes human-readable text to stderr
// and JSON records to a lumberjack-rotated file under
// dataDir/logs/atomkv.log. dataDir is created if it does not exist.
func Setup(dataDir string) (*logrus.Logger, error) {
	logDir := filepath.Join(dataDir, "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, err
	}

	fileWriter := &lumberjack.Logger{
		Filename:   filepath.Join(logDir, "atomkv.log"),
		MaxSize:    50,
		MaxBackups: 3,
		MaxAge:     30,
		Compress:   true,
	}

	log := logrus.New()
	log.SetLevel(logrus.InfoLevel)
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	log.AddHook(&fileJSONHook{writer: fileWriter, formatter: &logrus.JSONFormatter{}})

	return log, nil
}

// fileJSONHook mirrors records to a rotated JSON file while the primary
// logger keeps emitting human-readable text to the console.
type fileJSONHook struct {
	writer    *lumberjack.Logger
	formatter logrus.Formatter
}

func (h *fileJSONHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *fileJSONHook) Fire(entry *logrus.Entry) error {
	b, err := h.formatter.Format(entry)
	if err != nil {
		return err
	}
	_, err = h.writer.Write(b)
	return err
}
