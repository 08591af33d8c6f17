package httpserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	recordanchoring "notary/contexts/ledger-anchoring/record-anchoring-service"
	ledgeradapter "notary/contexts/ledger-anchoring/record-anchoring-service/adapters/ledger"
	signeradapter "notary/contexts/ledger-anchoring/record-anchoring-service/adapters/signer"
	anchoringhttp "notary/contexts/ledger-anchoring/record-anchoring-service/transport/http"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, opts ...Option) *Server {
	t.Helper()
	signer, err := signeradapter.NewLocal("")
	require.NoError(t, err)
	module := recordanchoring.NewInMemoryModule(nil, ledgeradapter.NewSimulated(1, nil), signer, nil, nil)
	return New(module, nil, ":0", opts...)
}

func do(t *testing.T, server *Server, method string, target string, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) anchoringhttp.ErrorResponse {
	t.Helper()
	var payload anchoringhttp.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	return payload
}

func TestCreateThenGetRecord(t *testing.T) {
	server := newTestServer(t)

	rec := do(t, server, http.MethodPost, "/v1/records", `{"content":{"invoice":"A-17","total":"19.99"}}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var created anchoringhttp.CreateRecordResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.NotEmpty(t, created.Item.RecordID)
	assert.Equal(t, "pending", created.Item.AnchoringStatus)
	assert.True(t, strings.HasPrefix(created.Item.Digest, "sha256:"))
	assert.JSONEq(t, `{"invoice":"A-17","total":"19.99"}`, string(created.Item.Content))

	rec = do(t, server, http.MethodGet, "/v1/records/"+created.Item.RecordID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got anchoringhttp.GetRecordResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, created.Item.Digest, got.Item.Digest)
	assert.Empty(t, got.Item.LedgerSignature)
}

func TestCreateRecordRejectsBadInput(t *testing.T) {
	server := newTestServer(t)

	rec := do(t, server, http.MethodPost, "/v1/records", `{"content":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_json", decodeError(t, rec).Code)

	rec = do(t, server, http.MethodPost, "/v1/records", `{"content":null}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_record_content", decodeError(t, rec).Code)

	rec = do(t, server, http.MethodPost, "/v1/records", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetUnknownRecord(t *testing.T) {
	rec := do(t, newTestServer(t), http.MethodGet, "/v1/records/does-not-exist", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "record_not_found", decodeError(t, rec).Code)
}

func TestListRecords(t *testing.T) {
	server := newTestServer(t)
	for _, body := range []string{`{"content":{"n":1}}`, `{"content":{"n":2}}`} {
		require.Equal(t, http.StatusCreated, do(t, server, http.MethodPost, "/v1/records", body).Code)
	}

	rec := do(t, server, http.MethodGet, "/v1/records?status=pending&limit=10", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list anchoringhttp.ListRecordsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list.Items, 2)

	rec = do(t, server, http.MethodGet, "/v1/records?status=archived", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_list_filter", decodeError(t, rec).Code)

	rec = do(t, server, http.MethodGet, "/v1/records?limit=ten", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_limit", decodeError(t, rec).Code)
}

func TestHealthAndSwagger(t *testing.T) {
	server := newTestServer(t)
	rec := do(t, server, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = do(t, server, http.MethodGet, "/swagger/doc.json", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/v1/records")

	rec = do(t, newTestServer(t, WithoutSwagger()), http.MethodGet, "/swagger/doc.json", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
