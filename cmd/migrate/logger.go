package migrate

import (
	"fmt"
	"strings"

	"github.com/gaze-network/dust-indexer/pkg/logger"
	"github.com/golang-migrate/migrate/v4"
)

var _ migrate.Logger = (*consoleLogger)(nil)

// consoleLogger forwards golang-migrate output to the application logger.
type consoleLogger struct {
	prefix  string
	verbose bool
}

func (l *consoleLogger) Printf(format string, v ...interface{}) {
	logger.Info(strings.TrimSpace(fmt.Sprintf(l.prefix+format, v...)), "package", "migrate")
}

func (l *consoleLogger) Verbose() bool {
	return l.verbose
}
