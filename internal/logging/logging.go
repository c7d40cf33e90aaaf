package logging

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

const serviceName = "socialsync"

// global accessible logger
var (
	logger *logrus.Logger
	Log    *logrus.Entry
)

// init keeps Log usable in tests and tools that never call Init.
func init() {
	Init("info", "text")
}

// Init configures the shared logger. level is any logrus level name,
// format is "json" or "text".
func Init(level, format string) {
	logger = logrus.New()
	logger.SetOutput(os.Stderr)

	lvl, err := logrus.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)

	if strings.EqualFold(format, "json") {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	Log = logger.WithField("service", serviceName)
}

// For returns an entry tagged with a component name, e.g. "ReactionService".
func For(component string) *logrus.Entry {
	return Log.WithField("component", component)
}
