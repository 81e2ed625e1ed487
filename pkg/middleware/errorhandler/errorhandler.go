package errorhandler

import (
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/gaze-network/dust-indexer/common/errs"
	"github.com/gaze-network/dust-indexer/pkg/logger"
	"github.com/gaze-network/dust-indexer/pkg/logger/slogx"
	"github.com/gofiber/fiber/v2"
)

var kindStatuses = []struct {
	kind   error
	status int
}{
	{errs.NotFound, http.StatusNotFound},
	{errs.InvalidArgument, http.StatusBadRequest},
	{errs.Unavailable, http.StatusServiceUnavailable},
	{errs.Timeout, http.StatusGatewayTimeout},
}

// New setup error handler middleware
func New() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		err := ctx.Next()
		if err == nil {
			return nil
		}
		return handle(ctx, err)
	}
}

// NewHTTPErrorHandler returns the fiber application error handler. It handles
// errors that escaped the middleware stack, e.g. unknown routes.
func NewHTTPErrorHandler() fiber.ErrorHandler {
	return handle
}

func handle(ctx *fiber.Ctx, err error) error {
	if e := new(errs.PublicError); errors.As(err, &e) {
		return errors.WithStack(ctx.Status(http.StatusBadRequest).JSON(fiber.Map{
			"error": e.Message(),
		}))
	}
	if e := new(fiber.Error); errors.As(err, &e) {
		return errors.WithStack(ctx.Status(e.Code).JSON(fiber.Map{
			"error": e.Message,
		}))
	}
	for _, ks := range kindStatuses {
		if errors.Is(err, ks.kind) {
			return errors.WithStack(ctx.Status(ks.status).JSON(fiber.Map{
				"error": http.StatusText(ks.status),
			}))
		}
	}
	logger.ErrorContext(ctx.UserContext(), "Something went wrong, api error",
		slogx.String("event", "api_error"),
		slogx.Error(err),
	)
	return errors.WithStack(ctx.Status(http.StatusInternalServerError).JSON(fiber.Map{
		"error": "Internal Server Error",
	}))
}
