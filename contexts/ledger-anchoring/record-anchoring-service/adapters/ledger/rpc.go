package ledger

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	application "notary/contexts/ledger-anchoring/record-anchoring-service/application"
	domainerrors "notary/contexts/ledger-anchoring/record-anchoring-service/domain/errors"
	"notary/contexts/ledger-anchoring/record-anchoring-service/domain/services"
	"notary/contexts/ledger-anchoring/record-anchoring-service/ports"
)

const (
	MethodSubmit    = "anchor_submit"
	MethodGetStatus = "anchor_getStatus"

	// JSON-RPC codes that mean the request itself is wrong; resending it cannot help.
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	// CodeRejected is returned by the anchoring endpoint for a digest or
	// signature it refuses to accept.
	CodeRejected = -32010

	maxResponseBytes = 1 << 20
)

type RPCConfig struct {
	Endpoint  string
	AuthToken string
	Timeout   time.Duration
}

// RPCClient talks JSON-RPC 2.0 over HTTP to an anchoring endpoint.
type RPCClient struct {
	endpoint  string
	authToken string
	http      *http.Client
	logger    *slog.Logger
	nextID    atomic.Uint64
}

func NewRPCClient(cfg RPCConfig, logger *slog.Logger) (*RPCClient, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, errors.New("ledger rpc endpoint is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &RPCClient{
		endpoint:  endpoint,
		authToken: strings.TrimSpace(cfg.AuthToken),
		http:      &http.Client{Timeout: timeout},
		logger:    application.ResolveLogger(logger),
	}, nil
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("ledger rpc error %d: %s", e.Code, e.Message)
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

// SubmitParams is the single positional parameter of anchor_submit.
type SubmitParams struct {
	RecordID  string `json:"record_id"`
	Digest    string `json:"digest"`
	Signature string `json:"signature"`
	Signer    string `json:"signer"`
}

type submitResult struct {
	Signature string `json:"signature"`
}

type statusResult struct {
	Status string `json:"status"`
}

func (c *RPCClient) Submit(ctx context.Context, req ports.SubmitRequest) (string, error) {
	params := SubmitParams{
		RecordID:  req.RecordID,
		Digest:    "0x" + hex.EncodeToString(req.Digest),
		Signature: base64.StdEncoding.EncodeToString(req.Signature),
		Signer:    req.PublicIdentity,
	}
	var result submitResult
	if err := c.call(ctx, MethodSubmit, []any{params}, &result); err != nil {
		return "", err
	}
	signature := strings.TrimSpace(result.Signature)
	if signature == "" {
		return "", fmt.Errorf("%w: empty signature in submit result", domainerrors.ErrLedgerRetryable)
	}
	return signature, nil
}

func (c *RPCClient) CheckConfirmation(ctx context.Context, signatureID string) (services.ConfirmationState, error) {
	var result statusResult
	if err := c.call(ctx, MethodGetStatus, []any{signatureID}, &result); err != nil {
		return services.ConfirmationUnknown, err
	}
	return ParseStatus(result.Status), nil
}

// ParseStatus maps the endpoint's status vocabulary onto ConfirmationState.
func ParseStatus(raw string) services.ConfirmationState {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "confirmed", "finalized":
		return services.ConfirmationConfirmed
	case "pending", "processing", "processed":
		return services.ConfirmationPending
	default:
		return services.ConfirmationUnknown
	}
}

func (c *RPCClient) call(ctx context.Context, method string, params []any, out any) error {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("%w: encode %s: %v", domainerrors.ErrLedgerFatal, method, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: build %s request: %v", domainerrors.ErrLedgerFatal, method, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %s transport: %w", domainerrors.ErrLedgerRetryable, method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%w: read %s response: %w", domainerrors.ErrLedgerRetryable, method, err)
	}
	if err := classifyHTTPStatus(method, resp.StatusCode); err != nil {
		c.logger.Warn("ledger rpc returned non-success status",
			"event", "ledger_rpc_http_status",
			"module", application.ModuleName,
			"layer", "adapter",
			"method", method,
			"status_code", resp.StatusCode,
			"error", err.Error(),
		)
		return err
	}

	var decoded rpcResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return fmt.Errorf("%w: decode %s response: %v", domainerrors.ErrLedgerRetryable, method, err)
	}
	if decoded.Error != nil {
		return classifyRPCError(decoded.Error)
	}
	if len(decoded.Result) == 0 || string(decoded.Result) == "null" {
		return fmt.Errorf("%w: %s returned no result", domainerrors.ErrLedgerRetryable, method)
	}
	if err := json.Unmarshal(decoded.Result, out); err != nil {
		return fmt.Errorf("%w: decode %s result: %v", domainerrors.ErrLedgerRetryable, method, err)
	}
	return nil
}

func classifyHTTPStatus(method string, status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusTooManyRequests, status == http.StatusRequestTimeout, status >= 500:
		return fmt.Errorf("%w: %s http %d", domainerrors.ErrLedgerRetryable, method, status)
	default:
		return fmt.Errorf("%w: %s http %d", domainerrors.ErrLedgerFatal, method, status)
	}
}

func classifyRPCError(rpcErr *rpcError) error {
	switch rpcErr.Code {
	case codeInvalidRequest, codeMethodNotFound, codeInvalidParams, CodeRejected:
		return fmt.Errorf("%w: %w", domainerrors.ErrLedgerFatal, rpcErr)
	default:
		return fmt.Errorf("%w: %w", domainerrors.ErrLedgerRetryable, rpcErr)
	}
}
