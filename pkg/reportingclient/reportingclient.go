package reportingclient

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gaze-network/dust-indexer/common"
	"github.com/gaze-network/dust-indexer/common/errs"
	"github.com/gaze-network/dust-indexer/pkg/httpclient"
	"github.com/gaze-network/dust-indexer/pkg/logger"
	"github.com/gaze-network/dust-indexer/pkg/logger/slogx"
)

type Config struct {
	Enabled bool          `mapstructure:"enabled"`
	BaseURL string        `mapstructure:"base_url"`
	Name    string        `mapstructure:"name"`
	Timeout time.Duration `mapstructure:"timeout"`
}

const defaultTimeout = 10 * time.Second

type ReportingClient struct {
	httpClient    *httpclient.Client
	config        Config
	clientVersion string
	network       common.Network
}

func New(config Config, clientVersion string, network common.Network) (*ReportingClient, error) {
	if config.BaseURL == "" {
		return nil, errors.Wrap(errs.InvalidArgument, "reporting.base_url config is required if reporting is enabled")
	}
	if config.Name == "" {
		return nil, errors.Wrap(errs.InvalidArgument, "reporting.name config is required if reporting is enabled")
	}
	if config.Timeout <= 0 {
		config.Timeout = defaultTimeout
	}
	httpClient, err := httpclient.New(config.BaseURL, httpclient.Config{Timeout: config.Timeout})
	if err != nil {
		return nil, errors.Wrap(err, "can't create http client")
	}
	return &ReportingClient{
		httpClient:    httpClient,
		config:        config,
		clientVersion: clientVersion,
		network:       network,
	}, nil
}

type SubmitBatchReportPayload struct {
	Name          string         `json:"name"`
	ClientVersion string         `json:"clientVersion"`
	Network       common.Network `json:"network,omitempty"`
	BatchStart    uint64         `json:"batchStart"`
	BatchEnd      uint64         `json:"batchEnd"`
	Records       int            `json:"records"`
	Unavailable   int            `json:"unavailable"`
	Checkpoint    uint64         `json:"checkpoint"`
}

// SubmitBatchReport posts a completed batch summary. Non-2xx responses are logged, not returned.
func (r *ReportingClient) SubmitBatchReport(ctx context.Context, payload SubmitBatchReportPayload) error {
	payload.Name = r.config.Name
	payload.ClientVersion = r.clientVersion
	payload.Network = r.network
	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "can't marshal payload")
	}
	resp, err := r.httpClient.Post(ctx, "/v1/report/batch", httpclient.RequestOptions{
		Body: body,
	})
	if err != nil {
		return errors.Wrap(err, "can't send request")
	}
	if !resp.IsSuccess() {
		logger.WarnContext(ctx, "failed to submit batch report", slogx.Any("payload", payload), slogx.Int("status", resp.StatusCode()), slogx.String("responseBody", string(resp.Body())))
		return nil
	}
	logger.DebugContext(ctx, "batch report submitted", slogx.Any("payload", payload))
	return nil
}

type SubmitNodeReportPayload struct {
	Name          string         `json:"name"`
	ClientVersion string         `json:"clientVersion"`
	Network       common.Network `json:"network,omitempty"`
	ChainID       uint64         `json:"chainId"`
}

// SubmitNodeReport announces the running indexer.
func (r *ReportingClient) SubmitNodeReport(ctx context.Context, chainID uint64) error {
	payload := SubmitNodeReportPayload{
		Name:          r.config.Name,
		ClientVersion: r.clientVersion,
		Network:       r.network,
		ChainID:       chainID,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "can't marshal payload")
	}
	resp, err := r.httpClient.Post(ctx, "/v1/report/node", httpclient.RequestOptions{
		Body: body,
	})
	if err != nil {
		return errors.Wrap(err, "can't send request")
	}
	if !resp.IsSuccess() {
		logger.WarnContext(ctx, "failed to submit node report", slogx.Any("payload", payload), slogx.Int("status", resp.StatusCode()), slogx.String("responseBody", string(resp.Body())))
		return nil
	}
	logger.InfoContext(ctx, "node report submitted", slogx.Any("payload", payload))
	return nil
}
