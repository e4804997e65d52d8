package api

import (
	"github.com/gin-gonic/gin"

	"github.com/AprilNEA/BYOKEY/internal/byokeyerr"
)

// writeError renders err as the JSON error body shape spec.md §7 requires,
// setting whatever extra headers the error's Kind carries (Retry-After for
// TransientAuthError). Non-domain errors (a bug, not a classified failure)
// are wrapped as InternalError rather than leaking a raw Go error string.
func writeError(c *gin.Context, err error) {
	be, ok := err.(*byokeyerr.Error)
	if !ok {
		be = byokeyerr.Wrap(byokeyerr.KindInternal, err, "unexpected error")
	}
	if be.CorrelationID == "" {
		be.CorrelationID = correlationID(c)
	}
	for k, v := range be.Headers() {
		c.Header(k, v)
	}
	c.JSON(be.HTTPStatus(), be.Body())
}
