package observability

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// NodeHeader names the station that served a status response.
const NodeHeader = "X-Mesh-Node"

// unmatchedRoute keeps arbitrary request paths out of the metric label space.
const unmatchedRoute = "unmatched"

// statusAccess counts and logs each status request against the node it
// describes. The log line carries the MAC counters as they stood when the
// response was written so a scrape can be matched to the loop's own report.
func statusAccess(node NodeStatus, logger zerolog.Logger) gin.HandlerFunc {
	label := node.Self().String()
	return func(c *gin.Context) {
		start := time.Now()
		c.Header(NodeHeader, label)
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		status := c.Writer.Status()
		elapsed := time.Since(start)
		RecordHTTPRequest(label, c.Request.Method, route, status, elapsed)

		// Scrapes arrive every few seconds; keep them out of info.
		event := logger.Debug()
		switch {
		case status >= 500:
			event = logger.Error()
		case status >= 400:
			event = logger.Warn()
		}
		snap := node.Stats()
		event.
			Str("method", c.Request.Method).
			Str("route", route).
			Int("status", status).
			Dur("duration", elapsed).
			Str("client_ip", c.ClientIP()).
			Uint64("num_sent", snap.NumSent).
			Uint64("num_ack", snap.NumAck).
			Uint64("num_recv", snap.NumRecv).
			Msg("observability.StatusServer request")
	}
}
