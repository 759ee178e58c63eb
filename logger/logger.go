package logger

import (
	"io"
	"os"
	"path/filepath"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

const logFileName = "yt-clip.log"

type Options struct {
	Dir    string
	Level  string
	Format string // "auto", "text" or "json"
}

// Setup configures the standard logrus logger to write to stdout and a
// rotating file under opts.Dir. The returned closer flushes the file.
func Setup(opts Options) (io.Closer, error) {
	return configure(logrus.StandardLogger(), opts, os.Stdout)
}

func configure(log *logrus.Logger, opts Options, stdout *os.File) (io.Closer, error) {
	if err := os.MkdirAll(opts.Dir, os.ModePerm); err != nil {
		return nil, err
	}

	logFile := &lumberjack.Logger{
		Filename:   filepath.Join(opts.Dir, logFileName),
		MaxSize:    10,
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
	}

	level, err := logrus.ParseLevel(opts.Level)
	if err != nil {
		level = logrus.InfoLevel
	}

	log.SetLevel(level)
	log.SetOutput(io.MultiWriter(stdout, logFile))
	log.SetFormatter(formatter(opts.Format, stdout))
	return logFile, nil
}

func formatter(format string, out *os.File) logrus.Formatter {
	useJSON := format == "json"
	if format == "auto" || format == "" {
		fd := out.Fd()
		useJSON = !isatty.IsTerminal(fd) && !isatty.IsCygwinTerminal(fd)
	}

	if useJSON {
		return &logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"}
	}
	return &logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	}
}
