package ledger

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	domainerrors "notary/contexts/ledger-anchoring/record-anchoring-service/domain/errors"
	"notary/contexts/ledger-anchoring/record-anchoring-service/domain/services"
	"notary/contexts/ledger-anchoring/record-anchoring-service/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedCall struct {
	Method string
	Auth   string
	Params json.RawMessage
}

func rpcServer(t *testing.T, status int, reply string) (*RPCClient, func() []capturedCall) {
	t.Helper()
	var (
		mu    sync.Mutex
		calls []capturedCall
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var req struct {
			Method string          `json:"method"`
			Params json.RawMessage `json:"params"`
		}
		_ = json.Unmarshal(raw, &req)
		mu.Lock()
		calls = append(calls, capturedCall{Method: req.Method, Auth: r.Header.Get("Authorization"), Params: req.Params})
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, reply)
	}))
	t.Cleanup(srv.Close)

	client, err := NewRPCClient(RPCConfig{Endpoint: srv.URL, AuthToken: "secret"}, nil)
	require.NoError(t, err)
	return client, func() []capturedCall {
		mu.Lock()
		defer mu.Unlock()
		return append([]capturedCall(nil), calls...)
	}
}

func submitRequest() ports.SubmitRequest {
	return ports.SubmitRequest{
		RecordID:       "rec-1",
		Digest:         []byte{0xde, 0xad, 0xbe, 0xef},
		Signature:      []byte("sig"),
		PublicIdentity: "ed25519:abcd",
	}
}

func TestRPCSubmitSuccess(t *testing.T) {
	client, calls := rpcServer(t, http.StatusOK, `{"jsonrpc":"2.0","id":1,"result":{"signature":"5xTx"}}`)

	signature, err := client.Submit(context.Background(), submitRequest())
	require.NoError(t, err)
	assert.Equal(t, "5xTx", signature)

	recorded := calls()
	require.Len(t, recorded, 1)
	assert.Equal(t, MethodSubmit, recorded[0].Method)
	assert.Equal(t, "Bearer secret", recorded[0].Auth)

	var params []SubmitParams
	require.NoError(t, json.Unmarshal(recorded[0].Params, &params))
	require.Len(t, params, 1)
	assert.Equal(t, "0xdeadbeef", params[0].Digest)
	assert.Equal(t, "c2ln", params[0].Signature)
	assert.Equal(t, "ed25519:abcd", params[0].Signer)
}

func TestRPCSubmitClassifiesFailures(t *testing.T) {
	cases := []struct {
		name   string
		status int
		reply  string
		want   error
	}{
		{"rate limited", http.StatusTooManyRequests, `{}`, domainerrors.ErrLedgerRetryable},
		{"unavailable", http.StatusServiceUnavailable, `{}`, domainerrors.ErrLedgerRetryable},
		{"bad request", http.StatusBadRequest, `{}`, domainerrors.ErrLedgerFatal},
		{"unauthorized", http.StatusUnauthorized, `{}`, domainerrors.ErrLedgerFatal},
		{"invalid params", http.StatusOK, `{"jsonrpc":"2.0","id":1,"error":{"code":-32602,"message":"bad digest"}}`, domainerrors.ErrLedgerFatal},
		{"rejected", http.StatusOK, `{"jsonrpc":"2.0","id":1,"error":{"code":-32010,"message":"signature rejected"}}`, domainerrors.ErrLedgerFatal},
		{"internal", http.StatusOK, `{"jsonrpc":"2.0","id":1,"error":{"code":-32603,"message":"node busy"}}`, domainerrors.ErrLedgerRetryable},
		{"garbage", http.StatusOK, `<html>`, domainerrors.ErrLedgerRetryable},
		{"null result", http.StatusOK, `{"jsonrpc":"2.0","id":1,"result":null}`, domainerrors.ErrLedgerRetryable},
		{"empty signature", http.StatusOK, `{"jsonrpc":"2.0","id":1,"result":{"signature":""}}`, domainerrors.ErrLedgerRetryable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client, _ := rpcServer(t, tc.status, tc.reply)
			_, err := client.Submit(context.Background(), submitRequest())
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestRPCSubmitTransportErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	endpoint := srv.URL
	srv.Close()

	client, err := NewRPCClient(RPCConfig{Endpoint: endpoint}, nil)
	require.NoError(t, err)
	_, err = client.Submit(context.Background(), submitRequest())
	assert.ErrorIs(t, err, domainerrors.ErrLedgerRetryable)
}

func TestRPCCheckConfirmation(t *testing.T) {
	client, calls := rpcServer(t, http.StatusOK, `{"jsonrpc":"2.0","id":1,"result":{"status":"finalized"}}`)

	state, err := client.CheckConfirmation(context.Background(), "5xTx")
	require.NoError(t, err)
	assert.Equal(t, services.ConfirmationConfirmed, state)

	recorded := calls()
	require.Len(t, recorded, 1)
	assert.Equal(t, MethodGetStatus, recorded[0].Method)
	assert.JSONEq(t, `["5xTx"]`, string(recorded[0].Params))
}

func TestParseStatus(t *testing.T) {
	assert.Equal(t, services.ConfirmationConfirmed, ParseStatus("Confirmed"))
	assert.Equal(t, services.ConfirmationConfirmed, ParseStatus("finalized"))
	assert.Equal(t, services.ConfirmationPending, ParseStatus("processed"))
	assert.Equal(t, services.ConfirmationPending, ParseStatus(" pending "))
	assert.Equal(t, services.ConfirmationUnknown, ParseStatus(""))
	assert.Equal(t, services.ConfirmationUnknown, ParseStatus("dropped"))
}

func TestNewRPCClientRequiresEndpoint(t *testing.T) {
	_, err := NewRPCClient(RPCConfig{Endpoint: "  "}, nil)
	assert.Error(t, err)
}
