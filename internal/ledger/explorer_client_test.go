package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func TestExplorerClient_NewAddress(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/addresses", r.URL.Path)
			assert.Equal(t, "secret-key", r.Header.Get("X-API-Key"))

			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "merchant-1/order-1", body["label"])

			writeJSON(w, http.StatusOK, `{"address":"vly1qnewaddress"}`)
		}))
		defer server.Close()

		client := NewExplorerClient(server.URL, "secret-key", time.Second, slog.Default())
		addr, err := client.NewAddress(context.Background(), "merchant-1/order-1")
		require.NoError(t, err)
		assert.Equal(t, "vly1qnewaddress", addr)
	})

	t.Run("ServerError", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusServiceUnavailable, `{"error":"wallet locked"}`)
		}))
		defer server.Close()

		client := NewExplorerClient(server.URL, "", time.Second, slog.Default())
		_, err := client.NewAddress(context.Background(), "label")

		var provErr *ProvisioningError
		require.True(t, errors.As(err, &provErr))
		assert.Equal(t, "label", provErr.Label)
		assert.Contains(t, err.Error(), "503")
	})

	t.Run("EmptyAddress", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, `{"address":""}`)
		}))
		defer server.Close()

		client := NewExplorerClient(server.URL, "", time.Second, slog.Default())
		_, err := client.NewAddress(context.Background(), "label")

		var provErr *ProvisioningError
		assert.True(t, errors.As(err, &provErr))
	})
}

func TestExplorerClient_QueryAddress(t *testing.T) {
	t.Run("AggregatesOutputs", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/addresses/vly1qwatched/unspent", r.URL.Path)
			writeJSON(w, http.StatusOK, `[
				{"txid":"tx-a","amount":"1.00","confirmations":4},
				{"txid":"tx-b","amount":0.5,"confirmations":1}
			]`)
		}))
		defer server.Close()

		client := NewExplorerClient(server.URL, "", time.Second, slog.Default())
		obs, err := client.QueryAddress(context.Background(), "vly1qwatched")
		require.NoError(t, err)

		assert.True(t, obs.Amount.Equal(decimal.RequireFromString("1.5")))
		assert.Equal(t, int64(1), obs.Confirmations)
		assert.Equal(t, "tx-a", obs.TxID)
	})

	t.Run("NoOutputs", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, `[]`)
		}))
		defer server.Close()

		client := NewExplorerClient(server.URL, "", time.Second, slog.Default())
		obs, err := client.QueryAddress(context.Background(), "vly1qempty")
		require.NoError(t, err)
		assert.False(t, obs.HasFunds())
		assert.Equal(t, "", obs.TxID)
	})

	t.Run("ServerError", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusBadGateway, `{}`)
		}))
		defer server.Close()

		client := NewExplorerClient(server.URL, "", time.Second, slog.Default())
		_, err := client.QueryAddress(context.Background(), "vly1qbroken")

		var queryErr *QueryError
		require.True(t, errors.As(err, &queryErr))
		assert.Equal(t, "vly1qbroken", queryErr.Address)
	})

	t.Run("ContextDeadline", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			<-r.Context().Done()
		}))
		defer server.Close()

		client := NewExplorerClient(server.URL, "", 5*time.Second, slog.Default())
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		_, err := client.QueryAddress(ctx, "vly1qslow")
		var queryErr *QueryError
		assert.True(t, errors.As(err, &queryErr))
	})
}
