package httphandler

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gaze-network/dust-indexer/common"
	"github.com/gaze-network/dust-indexer/core/indexer"
	"github.com/gaze-network/dust-indexer/core/progress"
	"github.com/gofiber/fiber/v2"
)

type getStatusResult struct {
	Network      string             `json:"network,omitempty"`
	Mode         indexer.Mode       `json:"mode"`
	Running      bool               `json:"running"`
	Head         uint64             `json:"head"`
	NextPosition uint64             `json:"nextPosition"`
	Checkpoint   *uint64            `json:"checkpoint"`
	TotalRecords int                `json:"totalRecords"`
	LastError    string             `json:"lastError,omitempty"`
	UpdatedAt    time.Time          `json:"updatedAt"`
	Progress     *progress.Snapshot `json:"progress,omitempty"`
}

type getStatusResponse = common.HttpResponse[getStatusResult]

func (h *HttpHandler) GetStatus(ctx *fiber.Ctx) (err error) {
	status := h.indexer.Status()
	result := getStatusResult{
		Network:      h.network.String(),
		Mode:         status.Mode,
		Running:      status.Running,
		Head:         status.Head,
		NextPosition: status.NextPosition,
		TotalRecords: status.TotalRecords,
		LastError:    status.LastError,
		UpdatedAt:    status.UpdatedAt,
	}
	if position, ok := h.scanner.Checkpoint(); ok {
		result.Checkpoint = &position
	}
	if snapshot, ok := h.scanner.Progress(); ok {
		result.Progress = &snapshot
	}

	return errors.WithStack(ctx.JSON(getStatusResponse{Result: &result}))
}
