package execution

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"updown-trader/internal/position"
)

// Order sides.
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// Fill-confirmed order statuses.
const (
	statusMatched = "MATCHED"
	statusFilled  = "FILLED"
)

// OrderError is an application-level rejection from the venue. It
// unwraps to one of the position package sentinels so the state
// machine can classify it without parsing reasons.
type OrderError struct {
	Reason string
	kind   error
}

func (e *OrderError) Error() string {
	return fmt.Sprintf("order rejected: %s", e.Reason)
}

func (e *OrderError) Unwrap() error { return e.kind }

// newOrderError classifies a venue rejection reason. Balance and
// allowance rejections get their own sentinel so close attempts can
// walk the sizing ladder.
func newOrderError(reason string) *OrderError {
	kind := position.ErrRejected
	lower := strings.ToLower(reason)
	if strings.Contains(lower, "balance") || strings.Contains(lower, "allowance") {
		kind = position.ErrBalanceExceeded
	}
	return &OrderError{Reason: reason, kind: kind}
}

// orderRequest is the POST /order body.
type orderRequest struct {
	TokenID  string  `json:"tokenID"`
	Price    float64 `json:"price"`
	Size     float64 `json:"size"`
	Side     string  `json:"side"`
	ClientID string  `json:"clientID"`
}

// orderResponse is the POST /order reply. The venue has used both
// error field names.
type orderResponse struct {
	Success  bool   `json:"success"`
	OrderID  string `json:"orderID"`
	Error    string `json:"error"`
	ErrorMsg string `json:"errorMsg"`
}

func (r *orderResponse) reason() string {
	if r.Error != "" {
		return r.Error
	}
	if r.ErrorMsg != "" {
		return r.ErrorMsg
	}
	return "unknown reason"
}

// placeOrder submits one limit order. A venue rejection comes back as
// an *OrderError; transport failures as-is.
func (c *Client) placeOrder(ctx context.Context, req orderRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encoding order: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/order", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building order request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.http.Do(ctx, httpReq)
	if err != nil {
		return "", err
	}
	defer httpResp.Body.Close()

	var resp orderResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return "", fmt.Errorf("decoding order response: %w", err)
	}
	if !resp.Success {
		return "", newOrderError(resp.reason())
	}
	return resp.OrderID, nil
}

// orderStatusResponse mirrors GET /order/{id}.
type orderStatusResponse struct {
	Status      string `json:"status"`
	Price       string `json:"price"`
	SizeMatched string `json:"size_matched"`
}

// waitForFill polls an accepted order until it reports MATCHED or
// FILLED. An order still unconfirmed after the polling budget is a
// failure for the attempt; the caller must not re-place it blindly.
func (c *Client) waitForFill(ctx context.Context, orderID string, req orderRequest) (*position.Fill, error) {
	u := fmt.Sprintf("%s/order/%s", c.baseURL, orderID)

	for attempt := 0; attempt < c.fillPollAttempts; attempt++ {
		var resp orderStatusResponse
		err := c.http.GetJSON(ctx, u, &resp)
		if err == nil && (resp.Status == statusMatched || resp.Status == statusFilled) {
			return fillFrom(orderID, req, resp), nil
		}
		if err != nil {
			c.log.Debug().Err(err).Str("order_id", orderID).Msg("fill poll failed")
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.fillPollInterval):
		}
	}
	return nil, fmt.Errorf("order %s: %w", orderID, position.ErrFillTimeout)
}

// fillFrom prefers the venue-reported matched quantity and price,
// falling back to the requested values when absent.
func fillFrom(orderID string, req orderRequest, resp orderStatusResponse) *position.Fill {
	fill := &position.Fill{OrderID: orderID, Price: req.Price, Size: req.Size}
	if p, err := strconv.ParseFloat(resp.Price, 64); err == nil && p > 0 {
		fill.Price = p
	}
	if s, err := strconv.ParseFloat(resp.SizeMatched, 64); err == nil && s > 0 {
		fill.Size = s
	}
	return fill
}
