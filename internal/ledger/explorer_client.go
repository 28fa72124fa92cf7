package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"github.com/vly-payment-engine/internal/domain/payment"
)

// ExplorerClient implements Observer against a block explorer REST API:
//
//	POST /addresses                    {"label": "..."} -> {"address": "..."}
//	GET  /addresses/{address}/unspent  -> [{"txid": "...", "amount": "1.5", "confirmations": 2}]
type ExplorerClient struct {
	client *resty.Client
	logger *slog.Logger
}

type newAddressRequest struct {
	Label string `json:"label"`
}

type newAddressResponse struct {
	Address string `json:"address"`
}

type unspentOutput struct {
	TxID          string          `json:"txid"`
	Amount        decimal.Decimal `json:"amount"`
	Confirmations int64           `json:"confirmations"`
}

// NewExplorerClient creates an explorer-backed observer
func NewExplorerClient(baseURL, apiKey string, timeout time.Duration, logger *slog.Logger) *ExplorerClient {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	if apiKey != "" {
		client.SetHeader("X-API-Key", apiKey)
	}
	return &ExplorerClient{
		client: client,
		logger: logger,
	}
}

// NewAddress asks the explorer's wallet backend for a fresh address
func (c *ExplorerClient) NewAddress(ctx context.Context, label string) (string, error) {
	var out newAddressResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(newAddressRequest{Label: label}).
		SetResult(&out).
		Post("/addresses")
	if err != nil {
		return "", &ProvisioningError{Label: label, Err: err}
	}
	if resp.IsError() {
		return "", &ProvisioningError{Label: label, Err: fmt.Errorf("explorer returned status %d", resp.StatusCode())}
	}
	if out.Address == "" {
		return "", &ProvisioningError{Label: label, Err: fmt.Errorf("explorer returned an empty address")}
	}

	c.logger.Debug("Provisioned payment address", "label", label, "address", out.Address)
	return out.Address, nil
}

// QueryAddress sums the unspent outputs at address. Confirmations is the lowest
// count across outputs, so a payment split over several transactions is only as
// final as its newest part.
func (c *ExplorerClient) QueryAddress(ctx context.Context, address string) (payment.Observation, error) {
	var outputs []unspentOutput
	resp, err := c.client.R().
		SetContext(ctx).
		SetPathParam("address", address).
		SetResult(&outputs).
		Get("/addresses/{address}/unspent")
	if err != nil {
		return payment.Observation{}, &QueryError{Address: address, Err: err}
	}
	if resp.IsError() {
		return payment.Observation{}, &QueryError{Address: address, Err: fmt.Errorf("explorer returned status %d", resp.StatusCode())}
	}

	return aggregate(outputs), nil
}

// aggregate sums the outputs and reports the least confirmed one, so funds only
// count as confirmed once every output is.
func aggregate(outputs []unspentOutput) payment.Observation {
	obs := payment.Observation{Amount: decimal.Zero}
	for i, out := range outputs {
		obs.Amount = obs.Amount.Add(out.Amount)
		if i == 0 || out.Confirmations < obs.Confirmations {
			obs.Confirmations = out.Confirmations
		}
		if obs.TxID == "" {
			obs.TxID = out.TxID
		}
	}
	return obs
}
