package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/guttosm/dsepulse/internal/domain/dto"
	"github.com/guttosm/dsepulse/internal/logger"
	"github.com/guttosm/dsepulse/internal/scrape"
	"github.com/guttosm/dsepulse/internal/service"
	"github.com/guttosm/dsepulse/internal/upstream"
)

// ErrorHandler maps the typed core errors attached via c.Error() to HTTP
// statuses and the standard error envelope, so all endpoints share a single
// mapping. Handlers that already wrote a response are left alone.
//
// Mapping:
//   - service.ValidationError → 400
//   - upstream.Error, scrape.ParseError → 500
//   - anything else → 500 with a generic message
//
// Server-side failures carry only the stable message in the body; endpoint
// paths and transport error text stay in the logs.
func ErrorHandler(c *gin.Context) {
	c.Next()

	if len(c.Errors) == 0 || c.Writer.Written() {
		return
	}

	err := c.Errors.Last().Err
	status, message := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.L().Error().
			Err(err).
			Int("status", status).
			Str("path", c.Request.URL.Path).
			Msg("request failed")
		c.JSON(status, dto.NewErrorResponse(message, nil))
		return
	}
	c.JSON(status, dto.NewErrorResponse(message, err))
}

func statusFor(err error) (int, string) {
	var ve *service.ValidationError
	if errors.As(err, &ve) {
		return http.StatusBadRequest, ve.Message
	}

	var fe *upstream.Error
	if errors.As(err, &fe) {
		return http.StatusInternalServerError, "failed to fetch data from DSE"
	}

	var pe *scrape.ParseError
	if errors.As(err, &pe) {
		return http.StatusInternalServerError, "failed to parse DSE response"
	}

	return http.StatusInternalServerError, "internal server error"
}
