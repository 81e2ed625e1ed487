package httphandler

import (
	"github.com/gaze-network/dust-indexer/common"
	"github.com/gaze-network/dust-indexer/core/indexer"
	"github.com/gaze-network/dust-indexer/core/progress"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type IndexerStatus interface {
	Status() indexer.Status
}

type ScanState interface {
	Progress() (progress.Snapshot, bool)
	Checkpoint() (uint64, bool)
}

type HttpHandler struct {
	network  common.Network
	indexer  IndexerStatus
	scanner  ScanState
	gatherer prometheus.Gatherer
}

// New creates the http handler. A nil gatherer disables the `/metrics` route.
func New(network common.Network, indexer IndexerStatus, scanner ScanState, gatherer prometheus.Gatherer) *HttpHandler {
	return &HttpHandler{
		network:  network,
		indexer:  indexer,
		scanner:  scanner,
		gatherer: gatherer,
	}
}

func (h *HttpHandler) Mount(router fiber.Router) {
	r := router.Group("/v1")
	r.Get("/status", h.GetStatus)
	r.Get("/progress", h.GetProgress)

	if h.gatherer != nil {
		router.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})))
	}
}
