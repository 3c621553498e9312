package logging

import (
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls the global logger setup.
type Options struct {
	// Level is the minimum level to log ("debug", "info", "warn", "error").
	Level string

	// Format selects "json" or "text" output.
	Format string

	// File, when set, additionally writes logs to this path with rotation.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Setup configures the shared logrus logger and returns the root entry the
// rest of the application derives its loggers from.
func Setup(opts Options) *logrus.Entry {
	log := logrus.StandardLogger()

	level, err := logrus.ParseLevel(strings.ToLower(opts.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	caller := func(f *runtime.Frame) (string, string) {
		return "", filepath.Base(f.File) + ":" + funcName(f)
	}

	if strings.EqualFold(opts.Format, "text") {
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:    true,
			CallerPrettyfier: caller,
		})
	} else {
		log.SetFormatter(&logrus.JSONFormatter{
			CallerPrettyfier: caller,
		})
	}
	log.SetReportCaller(level >= logrus.DebugLevel)

	var out io.Writer = os.Stdout
	if opts.File != "" {
		rotated := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    defaultInt(opts.MaxSizeMB, 50),
			MaxBackups: defaultInt(opts.MaxBackups, 5),
			MaxAge:     defaultInt(opts.MaxAgeDays, 28),
			Compress:   true,
		}
		out = io.MultiWriter(os.Stdout, rotated)
	}
	log.SetOutput(out)

	return logrus.NewEntry(log)
}

func funcName(f *runtime.Frame) string {
	name := f.Function
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	return name
}

func defaultInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
