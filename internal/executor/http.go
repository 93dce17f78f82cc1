package executor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"ordercore/internal/errors"
	"ordercore/pkg/exception"

	"github.com/bytedance/sonic"
)

var (
	_ Executor = (*HTTP)(nil)
	_ Venue    = (*HTTP)(nil)
)

const (
	defaultHTTPTimeout = 15 * time.Second
	maxResponseBody    = 1 << 20

	pathOrders     = "/orders"
	pathMarginType = "/margin-type"
	pathLeverage   = "/leverage"
)

// HTTPConfig points at a broker bridge speaking JSON, such as a terminal-side
// gateway in front of the trading venue.
type HTTPConfig struct {
	Endpoint string
	Token    string
	Timeout  time.Duration
}

// HTTP forwards orders to a broker bridge.
type HTTP struct {
	client  *http.Client
	base    string
	token   string
	timeout time.Duration
	closed  atomic.Bool
}

func NewHTTP(client *http.Client, cfg HTTPConfig) (*HTTP, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	if base == "" {
		return nil, exception.ErrExecutorEndpoint
	}
	if client == nil {
		client = &http.Client{}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	return &HTTP{client: client, base: base, token: cfg.Token, timeout: timeout}, nil
}

type orderPayload struct {
	OrderID    string `json:"order_id"`
	Symbol     string `json:"symbol"`
	Side       string `json:"side"`
	Volume     string `json:"volume"`
	StopLoss   string `json:"sl,omitempty"`
	TakeProfit string `json:"tp,omitempty"`
}

type marginPayload struct {
	Symbol     string `json:"symbol"`
	MarginType string `json:"margin_type"`
}

type leveragePayload struct {
	Symbol   string `json:"symbol"`
	Leverage int    `json:"leverage"`
}

type bridgeResponse struct {
	OK      bool   `json:"ok"`
	Code    int    `json:"code"`
	Message string `json:"message"`
	OrderID string `json:"order_id"`
}

func (h *HTTP) Submit(ctx context.Context, req Request) Result {
	if err := req.Validate(); err != nil {
		return invalid(err)
	}

	payload := orderPayload{
		OrderID: req.OrderID,
		Symbol:  req.Symbol,
		Side:    string(req.Side.Normalize()),
		Volume:  req.Volume.String(),
	}
	if !req.StopLoss.IsZero() {
		payload.StopLoss = req.StopLoss.String()
	}
	if !req.TakeProfit.IsZero() {
		payload.TakeProfit = req.TakeProfit.String()
	}

	res := h.post(ctx, pathOrders, payload)
	if res.OK && res.BrokerOrderID == "" {
		return Failure(ReasonRejected, CodeInvalidParams, "bridge accepted order without order id")
	}
	return res
}

func (h *HTTP) SetMarginType(ctx context.Context, symbol, marginType string) Result {
	return h.post(ctx, pathMarginType, marginPayload{Symbol: symbol, MarginType: strings.ToUpper(marginType)})
}

func (h *HTTP) SetLeverage(ctx context.Context, symbol string, leverage int) Result {
	return h.post(ctx, pathLeverage, leveragePayload{Symbol: symbol, Leverage: leverage})
}

func (h *HTTP) Close() error {
	if h.closed.Swap(true) {
		return nil
	}
	h.client.CloseIdleConnections()
	return nil
}

func (h *HTTP) post(ctx context.Context, path string, payload any) Result {
	if h.closed.Load() {
		return Failure(ReasonConnectivity, CodeConnectivity, exception.ErrExecutorClosed.Error())
	}

	body, err := sonic.ConfigFastest.Marshal(payload)
	if err != nil {
		return invalid(errors.Wrap(err, "encode payload"))
	}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	r, err := http.NewRequestWithContext(ctx, http.MethodPost, h.base+path, bytes.NewReader(body))
	if err != nil {
		return invalid(errors.Wrap(err, "build request"))
	}
	r.Header.Set("Content-Type", "application/json")
	if h.token != "" {
		r.Header.Set("Authorization", "Bearer "+h.token)
	}

	resp, err := h.client.Do(r)
	if err != nil {
		return Failure(ReasonConnectivity, CodeConnectivity, err.Error())
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return Failure(ReasonConnectivity, CodeConnectivity, errors.Wrap(err, "read response").Error())
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return Failure(ReasonConnectivity, CodeConnectivity, fmt.Sprintf("bridge status %d", resp.StatusCode))
	}

	var br bridgeResponse
	if err := sonic.Unmarshal(raw, &br); err != nil {
		if resp.StatusCode >= http.StatusBadRequest {
			return Failure(ReasonRejected, CodeInvalidParams, fmt.Sprintf("bridge status %d", resp.StatusCode))
		}
		return Failure(ReasonConnectivity, CodeConnectivity,
			errors.Wrapf(err, "decode response, status: %d", resp.StatusCode).Error())
	}

	if resp.StatusCode >= http.StatusBadRequest || !br.OK {
		code := br.Code
		if code == CodeOK {
			code = CodeInvalidParams
		}
		reason := ReasonRejected
		if resp.StatusCode == http.StatusBadRequest && br.Code == CodeOK {
			reason = ReasonInvalidParams
		}
		return Failure(reason, code, br.Message)
	}

	return Accepted(br.OrderID)
}
