// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package seed enrolls access tokens with the local torrent seed
// service. A peer that orders seed tokens from itself gets them
// directly from here instead of paying itself.
package seed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shockpay/shockpay/lib/netutil"
	"github.com/shockpay/shockpay/lib/secret"
)

// MaxTokens bounds one enrollment batch.
const MaxTokens = 100

// Info locates a seed service and the credential that enrolls tokens
// with it.
type Info struct {
	URL   string
	Token string
}

// Error is a failed enrollment.
type Error struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("seed: %s: %v", e.Message, e.Err)
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("seed: %s (http %d)", e.Message, e.StatusCode)
	}
	return "seed: " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Config holds the parameters for New. URL and TokenFile empty leaves
// the service unconfigured.
type Config struct {
	URL        string
	TokenFile  string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Service is the local seed provider.
type Service struct {
	url        string
	token      *secret.Buffer
	httpClient *http.Client
	logger     *slog.Logger
}

// New reads the seed token. A zero Config yields a Service whose
// SelfToken reports false.
func New(config Config) (*Service, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	service := &Service{
		url:        strings.TrimRight(config.URL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}
	if config.URL == "" && config.TokenFile == "" {
		return service, nil
	}
	if config.URL == "" || config.TokenFile == "" {
		return nil, errors.New("seed: URL and TokenFile must be set together")
	}
	token, err := secret.ReadFromPath(config.TokenFile)
	if err != nil {
		return nil, fmt.Errorf("seed: reading token: %w", err)
	}
	service.token = token
	return service, nil
}

// Close releases the seed token.
func (s *Service) Close() error {
	if s.token == nil {
		return nil
	}
	return s.token.Close()
}

// SelfToken returns the local seed service, if one is configured.
func (s *Service) SelfToken() (Info, bool) {
	if s.token == nil {
		return Info{}, false
	}
	return Info{URL: s.url, Token: s.token.String()}, true
}

type enrollRequest struct {
	SeedToken   string `json:"seed_token"`
	WalletToken string `json:"wallet_token"`
}

// EnrollTokens generates n fresh tokens and enrolls each with the seed
// service at info.URL. It fails on the first rejected token.
func (s *Service) EnrollTokens(ctx context.Context, n int, info Info) ([]string, error) {
	if n < 1 || n > MaxTokens {
		return nil, &Error{Message: fmt.Sprintf("token count %d out of range 1..%d", n, MaxTokens)}
	}
	endpoint := strings.TrimRight(info.URL, "/") + "/api/enroll_token"

	tokens := make([]string, 0, n)
	for range n {
		token := uuid.NewString()
		if err := s.enroll(ctx, endpoint, info.Token, token); err != nil {
			return nil, err
		}
		tokens = append(tokens, token)
	}
	s.logger.Info("seed tokens enrolled", "count", n, "seed_url", info.URL)
	return tokens, nil
}

func (s *Service) enroll(ctx context.Context, endpoint, seedToken, walletToken string) error {
	encoded, err := json.Marshal(enrollRequest{SeedToken: seedToken, WalletToken: walletToken})
	if err != nil {
		return &Error{Message: "encoding request", Err: err}
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return &Error{Message: "creating request", Err: err}
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Authorization", "Bearer "+seedToken)

	response, err := s.httpClient.Do(request)
	if err != nil {
		return &Error{Message: "enrolling token", Err: err}
	}
	defer response.Body.Close()
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return &Error{
			StatusCode: response.StatusCode,
			Message:    "enroll rejected: " + strings.TrimSpace(netutil.ErrorBody(response.Body)),
		}
	}
	return nil
}
