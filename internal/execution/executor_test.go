package execution

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"updown-trader/internal/httpx"
	"updown-trader/internal/position"
)

// fastRetry keeps executor tests quick.
func fastRetry() httpx.RetryPolicy {
	return httpx.RetryPolicy{
		MaxAttempts:     3,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		MaxElapsed:      time.Second,
	}
}

func newTestExecutor(t *testing.T, handler http.Handler, opts Options) *Executor {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	opts.BaseURL = srv.URL
	if opts.FillPollAttempts == 0 {
		opts.FillPollAttempts = 3
	}
	if opts.FillPollInterval == 0 {
		opts.FillPollInterval = time.Millisecond
	}
	client := NewClient(httpx.NewClient(httpx.Options{RequestsPerSec: 1000}), opts, zerolog.Nop())
	return NewExecutor(client, fastRetry(), zerolog.Nop())
}

func TestExecutor_BuyConfirmsFill(t *testing.T) {
	var placed orderRequest
	polls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/order", func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&placed)
		w.Write([]byte(`{"success":true,"orderID":"ord-1"}`))
	})
	mux.HandleFunc("/order/ord-1", func(w http.ResponseWriter, r *http.Request) {
		polls++
		if polls == 1 {
			w.Write([]byte(`{"status":"LIVE"}`))
			return
		}
		w.Write([]byte(`{"status":"MATCHED","price":"0.65","size_matched":"12.5"}`))
	})
	e := newTestExecutor(t, mux, Options{})

	fill, err := e.Buy(context.Background(), "token-up", 0.65, 15)
	if err != nil {
		t.Fatalf("Buy: %v", err)
	}
	if fill.OrderID != "ord-1" {
		t.Errorf("order id = %q", fill.OrderID)
	}
	if fill.Price != 0.65 || fill.Size != 12.5 {
		t.Errorf("fill = %v @ %v, want venue-reported 12.5 @ 0.65", fill.Size, fill.Price)
	}
	if placed.Side != SideBuy || placed.TokenID != "token-up" {
		t.Errorf("placed = %+v", placed)
	}
	if placed.ClientID == "" {
		t.Error("client order id must be set")
	}
}

func TestExecutor_RejectionIsNotRetried(t *testing.T) {
	posts := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/order", func(w http.ResponseWriter, r *http.Request) {
		posts++
		w.Write([]byte(`{"success":false,"error":"invalid price"}`))
	})
	e := newTestExecutor(t, mux, Options{})

	_, err := e.Sell(context.Background(), "token-up", 0.65, 10)
	if !errors.Is(err, position.ErrRejected) {
		t.Fatalf("err = %v, want ErrRejected", err)
	}
	if posts != 1 {
		t.Errorf("placement posted %d times, want 1 (rejections are terminal)", posts)
	}
}

func TestExecutor_BalanceRejectionKeepsSentinel(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/order", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":false,"error":"not enough balance / allowance"}`))
	})
	e := newTestExecutor(t, mux, Options{})

	_, err := e.Sell(context.Background(), "token-up", 0.65, 10)
	if !errors.Is(err, position.ErrBalanceExceeded) {
		t.Fatalf("err = %v, want ErrBalanceExceeded", err)
	}
}

func TestExecutor_TransientFailureRetries(t *testing.T) {
	posts := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/order", func(w http.ResponseWriter, r *http.Request) {
		posts++
		if posts == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"success":true,"orderID":"ord-2"}`))
	})
	mux.HandleFunc("/order/ord-2", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"FILLED"}`))
	})
	e := newTestExecutor(t, mux, Options{})

	fill, err := e.Buy(context.Background(), "token-up", 0.60, 10)
	if err != nil {
		t.Fatalf("Buy: %v", err)
	}
	if posts != 2 {
		t.Errorf("placement posted %d times, want 2", posts)
	}
	// Status carried no fill details, so the requested values stand.
	if fill.Price != 0.60 || fill.Size != 10 {
		t.Errorf("fill = %v @ %v, want requested 10 @ 0.60", fill.Size, fill.Price)
	}
}

func TestExecutor_UnconfirmedFillTimesOut(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/order", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":true,"orderID":"ord-3"}`))
	})
	mux.HandleFunc("/order/ord-3", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"LIVE"}`))
	})
	e := newTestExecutor(t, mux, Options{FillPollAttempts: 2})

	_, err := e.Buy(context.Background(), "token-up", 0.60, 10)
	if !errors.Is(err, position.ErrFillTimeout) {
		t.Fatalf("err = %v, want ErrFillTimeout", err)
	}
}

func TestExecutor_Holdings(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/balance-allowance", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"balance":"142857190"}`))
	})
	e := newTestExecutor(t, mux, Options{})

	raw, err := e.Holdings(context.Background(), "token-up")
	if err != nil {
		t.Fatalf("Holdings: %v", err)
	}
	if raw != 142857190 {
		t.Errorf("raw = %v, want 142857190", raw)
	}
}
