package observability

import (
	logs "github.com/danmuck/smplog"
	"github.com/rs/zerolog"
)

// NodeLogger derives the status server's request logger from the process
// logger so it follows the logging profile and env overrides.
func NodeLogger(app, node string) zerolog.Logger {
	return logs.With().Str("app", app).Str("node", node).Logger()
}
