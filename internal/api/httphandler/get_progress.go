package httphandler

import (
	"github.com/cockroachdb/errors"
	"github.com/gaze-network/dust-indexer/common"
	"github.com/gaze-network/dust-indexer/common/errs"
	"github.com/gaze-network/dust-indexer/core/progress"
	"github.com/gofiber/fiber/v2"
)

type getProgressResponse = common.HttpResponse[progress.Snapshot]

func (h *HttpHandler) GetProgress(ctx *fiber.Ctx) (err error) {
	snapshot, ok := h.scanner.Progress()
	if !ok {
		return errs.NewPublicError("no range has been scanned yet")
	}
	return errors.WithStack(ctx.JSON(getProgressResponse{Result: &snapshot}))
}
