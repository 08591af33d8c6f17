package signer

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	application "notary/contexts/ledger-anchoring/record-anchoring-service/application"
	domainerrors "notary/contexts/ledger-anchoring/record-anchoring-service/domain/errors"
)

type RemoteConfig struct {
	BaseURL   string
	AuthToken string
	KeyID     string
	Timeout   time.Duration
}

// Remote delegates signing to a custodial HTTP service.
type Remote struct {
	baseURL   string
	authToken string
	keyID     string
	identity  string
	http      *http.Client
	logger    *slog.Logger
}

type signRequest struct {
	KeyID   string `json:"key_id,omitempty"`
	Payload string `json:"payload"`
}

type signResponse struct {
	Signature string `json:"signature"`
}

type identityResponse struct {
	Identity string `json:"identity"`
}

// NewRemote resolves the signer identity once; a signer that cannot identify
// itself is a startup error.
func NewRemote(ctx context.Context, cfg RemoteConfig, logger *slog.Logger) (*Remote, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("remote signer base url is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	r := &Remote{
		baseURL:   base,
		authToken: strings.TrimSpace(cfg.AuthToken),
		keyID:     strings.TrimSpace(cfg.KeyID),
		http:      &http.Client{Timeout: timeout},
		logger:    application.ResolveLogger(logger),
	}

	var out identityResponse
	path := "/v1/identity"
	if r.keyID != "" {
		path += "?key_id=" + url.QueryEscape(r.keyID)
	}
	if err := r.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, fmt.Errorf("resolve remote signer identity: %w", err)
	}
	if strings.TrimSpace(out.Identity) == "" {
		return nil, errors.New("remote signer returned empty identity")
	}
	r.identity = strings.TrimSpace(out.Identity)
	return r, nil
}

func (r *Remote) Sign(ctx context.Context, payload []byte) ([]byte, error) {
	var out signResponse
	err := r.do(ctx, http.MethodPost, "/v1/sign", signRequest{
		KeyID:   r.keyID,
		Payload: base64.StdEncoding.EncodeToString(payload),
	}, &out)
	if err != nil {
		return nil, err
	}
	signature, err := base64.StdEncoding.DecodeString(out.Signature)
	if err != nil || len(signature) == 0 {
		return nil, fmt.Errorf("%w: malformed signature from remote signer", domainerrors.ErrSignerFailure)
	}
	return signature, nil
}

func (r *Remote) PublicIdentity() string {
	return r.identity
}

func (r *Remote) do(ctx context.Context, method string, path string, in any, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%w: %v", domainerrors.ErrSignerFailure, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%w: %v", domainerrors.ErrSignerFailure, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+r.authToken)
	}

	resp, err := r.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", domainerrors.ErrSignerUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		r.logger.Warn("remote signer returned non-success status",
			"event", "remote_signer_http_status",
			"module", application.ModuleName,
			"layer", "adapter",
			"path", path,
			"status_code", resp.StatusCode,
		)
		return fmt.Errorf("%w: remote signer http %d", statusError(resp.StatusCode), resp.StatusCode)
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(out); err != nil {
		return fmt.Errorf("%w: decode remote signer response: %v", domainerrors.ErrSignerFailure, err)
	}
	return nil
}

// statusError maps a custodian status to a sentinel. Overload and outages are
// retried; any other rejection means the request itself is wrong.
func statusError(code int) error {
	switch {
	case code == http.StatusTooManyRequests, code == http.StatusRequestTimeout, code >= 500:
		return domainerrors.ErrSignerUnavailable
	default:
		return domainerrors.ErrSignerFailure
	}
}
