// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package lnd

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/shockpay/shockpay/lib/netutil"
	"github.com/shockpay/shockpay/lib/secret"
)

const defaultPayTimeoutSeconds = 60

// ClientConfig holds the parameters for NewClient.
type ClientConfig struct {
	// RESTURL is the node's REST base URL, e.g. https://localhost:8080.
	RESTURL string

	// TLSCertPath is the node's tls.cert. Ignored when HTTPClient is
	// set.
	TLSCertPath string

	// MacaroonPath is the binary macaroon file.
	MacaroonPath string

	// HTTPClient overrides the pinned client built from TLSCertPath.
	HTTPClient *http.Client

	// Logger defaults to a discarding logger.
	Logger *slog.Logger
}

// Client talks to lnd's REST API. Safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	macaroon   *secret.Buffer
	logger     *slog.Logger
}

var (
	_ Gateway       = (*Client)(nil)
	_ InvoiceLookup = (*Client)(nil)
)

// NewClient reads the macaroon into protected memory and prepares the
// HTTP transport. Call Close to release the macaroon.
func NewClient(config ClientConfig) (*Client, error) {
	if config.RESTURL == "" {
		return nil, errors.New("lnd: RESTURL is required")
	}
	if _, err := url.Parse(config.RESTURL); err != nil {
		return nil, fmt.Errorf("lnd: invalid RESTURL %q: %w", config.RESTURL, err)
	}
	if config.MacaroonPath == "" {
		return nil, errors.New("lnd: MacaroonPath is required")
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		if config.TLSCertPath == "" {
			return nil, errors.New("lnd: TLSCertPath is required without an HTTPClient")
		}
		var err error
		// No client timeout: the payment stream stays open until the
		// payment settles. Callers bound requests with their context.
		httpClient, err = netutil.PinnedClientFromFile(config.TLSCertPath, 0)
		if err != nil {
			return nil, fmt.Errorf("lnd: loading %s: %w", config.TLSCertPath, err)
		}
	}

	raw, err := os.ReadFile(config.MacaroonPath)
	if err != nil {
		return nil, fmt.Errorf("lnd: reading macaroon: %w", err)
	}
	encoded := []byte(hex.EncodeToString(raw))
	secret.Zero(raw)
	macaroon, err := secret.NewFromBytes(encoded)
	if err != nil {
		return nil, fmt.Errorf("lnd: protecting macaroon: %w", err)
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Client{
		baseURL:    strings.TrimRight(config.RESTURL, "/"),
		httpClient: httpClient,
		macaroon:   macaroon,
		logger:     logger,
	}, nil
}

// Close releases the macaroon.
func (c *Client) Close() error {
	return c.macaroon.Close()
}

type addInvoiceRequest struct {
	Memo    string `json:"memo"`
	Value   int64  `json:"value,string"`
	Expiry  int64  `json:"expiry,string"`
	Private bool   `json:"private"`
}

type addInvoiceResponse struct {
	RHash          string `json:"r_hash"`
	PaymentRequest string `json:"payment_request"`
	AddIndex       uint64 `json:"add_index,string"`
}

func (c *Client) AddInvoice(ctx context.Context, request InvoiceRequest) (string, error) {
	var response addInvoiceResponse
	err := c.call(ctx, http.MethodPost, "/v1/invoices", addInvoiceRequest{
		Memo:    request.Memo,
		Value:   request.Value,
		Expiry:  request.Expiry,
		Private: request.Private,
	}, &response)
	if err != nil {
		return "", err
	}
	if response.PaymentRequest == "" {
		return "", &Error{Message: "add invoice returned no payment request"}
	}
	c.logger.Debug("invoice added", "value", request.Value, "add_index", response.AddIndex)
	return response.PaymentRequest, nil
}

type payReqResponse struct {
	Destination string `json:"destination"`
	PaymentHash string `json:"payment_hash"`
	NumSatoshis int64  `json:"num_satoshis,string"`
	Timestamp   int64  `json:"timestamp,string"`
	Expiry      int64  `json:"expiry,string"`
	Description string `json:"description"`
}

func (c *Client) DecodePayReq(ctx context.Context, paymentRequest string) (PayReq, error) {
	if paymentRequest == "" {
		return PayReq{}, &Error{Message: "empty payment request"}
	}
	var response payReqResponse
	if err := c.call(ctx, http.MethodGet, "/v1/payreq/"+url.PathEscape(paymentRequest), nil, &response); err != nil {
		return PayReq{}, err
	}
	return PayReq(response), nil
}

type sendPaymentRequest struct {
	PaymentRequest    string `json:"payment_request"`
	FeeLimitSat       int64  `json:"fee_limit_sat,string"`
	TimeoutSeconds    int32  `json:"timeout_seconds"`
	NoInflightUpdates bool   `json:"no_inflight_updates"`
}

type paymentUpdate struct {
	Result *struct {
		PaymentHash     string `json:"payment_hash"`
		PaymentPreimage string `json:"payment_preimage"`
		ValueSat        int64  `json:"value_sat,string"`
		FeeSat          int64  `json:"fee_sat,string"`
		PaymentIndex    uint64 `json:"payment_index,string"`
		Status          string `json:"status"`
		FailureReason   string `json:"failure_reason"`
	} `json:"result"`
	Error *Error `json:"error"`
}

// PayInvoice uses the router's streaming send call and returns on the
// first terminal status.
func (c *Client) PayInvoice(ctx context.Context, request PaymentRequest) (Payment, error) {
	timeout := request.TimeoutSeconds
	if timeout <= 0 {
		timeout = defaultPayTimeoutSeconds
	}
	body, err := c.open(ctx, http.MethodPost, "/v2/router/send", sendPaymentRequest{
		PaymentRequest:    request.PayReq,
		FeeLimitSat:       request.FeeLimit,
		TimeoutSeconds:    timeout,
		NoInflightUpdates: true,
	})
	if err != nil {
		return Payment{}, err
	}
	defer body.Close()

	decoder := json.NewDecoder(body)
	for {
		var update paymentUpdate
		if err := decoder.Decode(&update); err != nil {
			if errors.Is(err, io.EOF) {
				return Payment{}, &Error{Message: "payment stream ended without a final status"}
			}
			return Payment{}, &Error{Message: "reading payment stream", Err: err}
		}
		if update.Error != nil {
			update.Error.StatusCode = http.StatusOK
			return Payment{}, update.Error
		}
		if update.Result == nil {
			continue
		}
		switch update.Result.Status {
		case "SUCCEEDED":
			payment := Payment{
				PaymentHash:  update.Result.PaymentHash,
				PaymentIndex: update.Result.PaymentIndex,
				Preimage:     update.Result.PaymentPreimage,
				ValueSat:     update.Result.ValueSat,
				FeeSat:       update.Result.FeeSat,
			}
			c.logger.Info("payment settled",
				"payment_hash", payment.PaymentHash,
				"value_sat", payment.ValueSat,
				"fee_sat", payment.FeeSat,
			)
			return payment, nil
		case "FAILED":
			return Payment{}, &Error{Message: "payment failed: " + update.Result.FailureReason}
		}
	}
}

type invoiceResponse struct {
	Memo       string `json:"memo"`
	Value      int64  `json:"value,string"`
	Settled    bool   `json:"settled"`
	State      string `json:"state"`
	AmtPaidSat int64  `json:"amt_paid_sat,string"`
	SettleDate int64  `json:"settle_date,string"`
}

// LookupInvoice returns the state of an invoice this node issued.
// paymentHash is hex, as reported by DecodePayReq.
func (c *Client) LookupInvoice(ctx context.Context, paymentHash string) (Invoice, error) {
	if paymentHash == "" {
		return Invoice{}, &Error{Message: "empty payment hash"}
	}
	var response invoiceResponse
	if err := c.call(ctx, http.MethodGet, "/v1/invoice/"+url.PathEscape(paymentHash), nil, &response); err != nil {
		return Invoice{}, err
	}
	return Invoice{
		PaymentHash: paymentHash,
		Memo:        response.Memo,
		Value:       response.Value,
		Settled:     response.Settled || response.State == "SETTLED",
		State:       response.State,
		AmtPaidSat:  response.AmtPaidSat,
	}, nil
}

// GetInfo returns the node's identity.
func (c *Client) GetInfo(ctx context.Context) (Info, error) {
	var info Info
	if err := c.call(ctx, http.MethodGet, "/v1/getinfo", nil, &info); err != nil {
		return Info{}, err
	}
	return info, nil
}

// call performs a unary request and decodes the JSON response into v.
func (c *Client) call(ctx context.Context, method, path string, requestBody, v any) error {
	body, err := c.open(ctx, method, path, requestBody)
	if err != nil {
		return err
	}
	defer body.Close()
	if err := netutil.DecodeResponse(body, v); err != nil {
		return &Error{Message: fmt.Sprintf("decoding %s %s response", method, path), Err: err}
	}
	return nil
}

// open sends a request and returns the body of a 2xx response. Other
// statuses become an *Error carrying lnd's code and message.
func (c *Client) open(ctx context.Context, method, path string, requestBody any) (io.ReadCloser, error) {
	var bodyReader io.Reader
	if requestBody != nil {
		encoded, err := json.Marshal(requestBody)
		if err != nil {
			return nil, &Error{Message: "encoding request body", Err: err}
		}
		bodyReader = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, &Error{Message: "creating request", Err: err}
	}
	if requestBody != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	request.Header.Set("Grpc-Metadata-macaroon", c.macaroon.String())

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, &Error{Message: fmt.Sprintf("%s %s", method, path), Err: err}
	}
	if response.StatusCode >= 200 && response.StatusCode < 300 {
		return response.Body, nil
	}
	defer response.Body.Close()

	rpcErr := &Error{StatusCode: response.StatusCode}
	raw := netutil.ErrorBody(response.Body)
	if jsonErr := json.Unmarshal([]byte(raw), rpcErr); jsonErr != nil || rpcErr.Message == "" {
		rpcErr.Message = fmt.Sprintf("unexpected response from %s %s: %s", method, path, strings.TrimSpace(raw))
	}
	return nil, rpcErr
}
