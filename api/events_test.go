package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backend_inventory/models"
	"backend_inventory/services"
)

func (s *testServer) postEvents(t *testing.T, body, secret string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/events/directory", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-Source", "hr-system")
	if secret != "" {
		req.Header.Set("X-Webhook-Secret", secret)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func TestRelayAPI_RequiresSecret(t *testing.T) {
	s := setupTestServer(t)

	w := s.postEvents(t, `{"type":"user_changed","user":{"id":"u-alice"}}`, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.postEvents(t, `{"type":"user_changed","user":{"id":"u-alice"}}`, "wrong")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRelayAPI_AppliesEventsAndRestampsListing(t *testing.T) {
	s := setupTestServer(t)
	laptop := s.createDevice(t, "laptops", "EV-1")
	w := s.do(t, http.MethodPost, fmt.Sprintf("/api/laptops/%d/assign", laptop.ID), jsonBody{"assignedTo": "u-alice"}, true)
	require.Equal(t, http.StatusOK, w.Code)

	// Прогреваем кэш списка
	s.do(t, http.MethodGet, "/api/laptops", nil, false)
	require.True(t, decodeEnvelope(t, s.do(t, http.MethodGet, "/api/laptops", nil, false)).Cached)

	body := `[
		{"type":"user_changed","user":{"id":"u-alice","email":"alice@example.com","displayName":"Alice Cooper","department":"Sales"}},
		{"type":"something_else"},
		{"type":"user_changed","user":{}}
	]`
	w = s.postEvents(t, body, testWebhookSecret)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	var resp struct {
		Status  string                 `json:"status"`
		Results []services.EventResult `json:"results"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 3)
	assert.Equal(t, services.EventApplied, resp.Results[0].Status)
	assert.Equal(t, int64(1), resp.Results[0].Affected)
	assert.Equal(t, services.EventIgnored, resp.Results[1].Status)
	assert.Equal(t, services.EventFailed, resp.Results[2].Status)

	// Список читается заново и показывает новое имя держателя
	w = s.do(t, http.MethodGet, "/api/laptops", nil, false)
	env := decodeEnvelope(t, w)
	assert.False(t, env.Cached)
	var items []models.Device
	require.NoError(t, json.Unmarshal(env.Data, &items))
	require.Len(t, items, 1)
	assert.Equal(t, "Alice Cooper", items[0].Holder.Name)
	assert.Equal(t, "Sales", items[0].Holder.Department)
}

func TestRelayAPI_RejectsMalformedBody(t *testing.T) {
	s := setupTestServer(t)

	for _, body := range []string{"", "   ", `"text"`, `{"type":`} {
		w := s.postEvents(t, body, testWebhookSecret)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}
}

func TestJSONArrayOrObject(t *testing.T) {
	isArray, err := jsonArrayOrObject([]byte("\n  [ ]"))
	require.NoError(t, err)
	assert.True(t, isArray)

	isArray, err = jsonArrayOrObject([]byte(`{"a":1}`))
	require.NoError(t, err)
	assert.False(t, isArray)

	_, err = jsonArrayOrObject([]byte("42"))
	assert.Error(t, err)
}

func TestRelayAPI_RejectsOversizedBody(t *testing.T) {
	s := setupTestServer(t)

	padding := strings.Repeat(" ", maxEventBodySize)
	w := s.postEvents(t, padding+`{"type":"user_changed","user":{"id":"u-alice"}}`, testWebhookSecret)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, "error", decodeEnvelope(t, w).Status)
}
