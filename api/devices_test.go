package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backend_inventory/models"
	"backend_inventory/services"
)

func (s *testServer) createDevice(t *testing.T, plural, serial string) services.DeviceView {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/"+plural, jsonBody{"name": "Device " + serial, "serial": serial}, true)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decodeView(t, w)
}

// jsonBody тело JSON запроса
type jsonBody = map[string]interface{}

func TestDevicesAPI_Lifecycle(t *testing.T) {
	s := setupTestServer(t)
	laptop := s.createDevice(t, "laptops", "API-1")
	base := fmt.Sprintf("/api/laptops/%d", laptop.ID)

	w := s.do(t, http.MethodPost, base+"/assign", jsonBody{"assignedTo": "u-alice", "reason": "onboarding"}, true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	view := decodeView(t, w)
	assert.Equal(t, models.StatusPendingDocumentation, view.Status)
	require.Len(t, view.History, 1)
	require.NotNil(t, view.History[0].User)
	assert.Equal(t, "Alice Smith", view.History[0].User.DisplayName)

	w = s.do(t, http.MethodPost, base+"/attach", jsonBody{"userId": s.alice.ID, "documentRef": "act-1.pdf"}, true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, models.StatusActive, decodeView(t, w).Status)

	// Документ от не-держателя отклоняется
	w = s.do(t, http.MethodPost, base+"/attach", jsonBody{"userId": "u-bob", "documentRef": "act-2.pdf"}, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, base+"/assign", jsonBody{"assignedTo": jsonBody{"email": "u-bob@example.com"}}, true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Len(t, decodeView(t, w).History, 2)

	w = s.do(t, http.MethodPost, base+"/revoke", jsonBody{"reasons": []string{"returned"}}, true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	view = decodeView(t, w)
	assert.Equal(t, models.StatusStandby, view.Status)
	assert.False(t, view.Holder.IsSet())

	w = s.do(t, http.MethodGet, base+"/history", nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	var history []services.HistoryEntry
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &history))
	require.Len(t, history, 2)
	assert.Equal(t, []string{"returned"}, []string(history[1].RevokedReason))

	w = s.do(t, http.MethodGet, base+"/audit", nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	var logs []models.DeviceAuditLog
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &logs))
	assert.NotEmpty(t, logs)
}

func TestDevicesAPI_WritesRequireToken(t *testing.T) {
	s := setupTestServer(t)
	laptop := s.createDevice(t, "laptops", "AUTH-1")

	w := s.do(t, http.MethodPost, "/api/laptops", jsonBody{"name": "x", "serial": "y"}, false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodPost, fmt.Sprintf("/api/laptops/%d/assign", laptop.ID), jsonBody{"assignedTo": "u-alice"}, false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Чтение доступно без токена
	w = s.do(t, http.MethodGet, fmt.Sprintf("/api/laptops/%d", laptop.ID), nil, false)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestDevicesAPI_ErrorMapping(t *testing.T) {
	s := setupTestServer(t)
	laptop := s.createDevice(t, "laptops", "ERR-1")
	base := fmt.Sprintf("/api/laptops/%d", laptop.ID)

	cases := []struct {
		name   string
		method string
		path   string
		body   interface{}
		want   int
	}{
		{"unknown device", http.MethodGet, "/api/laptops/9999", nil, http.StatusNotFound},
		{"device of another kind", http.MethodGet, fmt.Sprintf("/api/monitors/%d", laptop.ID), nil, http.StatusNotFound},
		{"bad id", http.MethodGet, "/api/laptops/abc", nil, http.StatusBadRequest},
		{"unknown user", http.MethodPost, base + "/assign", jsonBody{"assignedTo": "nobody"}, http.StatusNotFound},
		{"missing assignee", http.MethodPost, base + "/assign", jsonBody{}, http.StatusBadRequest},
		{"broken without reason", http.MethodPut, base + "/status", jsonBody{"status": "Broken"}, http.StatusBadRequest},
		{"derived status", http.MethodPut, base + "/status", jsonBody{"status": "Active"}, http.StatusBadRequest},
		{"duplicate serial", http.MethodPost, "/api/laptops", jsonBody{"name": "Copy", "serial": "ERR-1"}, http.StatusBadRequest},
		{"bad release year filter", http.MethodGet, "/api/laptops?releaseYear=abc", nil, http.StatusBadRequest},
		{"bad status filter", http.MethodGet, "/api/laptops?status=lost", nil, http.StatusBadRequest},
		{"handover without holder", http.MethodGet, base + "/handover-act.pdf", nil, http.StatusBadRequest},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := s.do(t, tc.method, tc.path, tc.body, true)
			assert.Equal(t, tc.want, w.Code, w.Body.String())
			if w.Code >= 400 {
				assert.Equal(t, "error", decodeEnvelope(t, w).Status)
			}
		})
	}
}

func TestDevicesAPI_StatusEndpoints(t *testing.T) {
	s := setupTestServer(t)
	tool := s.createDevice(t, "tools", "ST-1")
	base := fmt.Sprintf("/api/tools/%d", tool.ID)

	w := s.do(t, http.MethodPut, base+"/status", jsonBody{"status": "Broken", "brokenReason": "dead battery"}, true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	view := decodeView(t, w)
	assert.Equal(t, models.StatusBroken, view.Status)
	require.NotNil(t, view.BrokenReason)

	w = s.do(t, http.MethodDelete, base+"/status", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.StatusStandby, decodeView(t, w).Status)

	// Отзыв без тела и без держателя оставляет отметку
	w = s.do(t, http.MethodPost, base+"/revoke", nil, true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	view = decodeView(t, w)
	require.Len(t, view.History, 1)
	assert.True(t, view.History[0].IsRevocationMarker())
}

func TestDevicesAPI_ListAndCache(t *testing.T) {
	s := setupTestServer(t)
	s.createDevice(t, "monitors", "M-1")
	s.createDevice(t, "monitors", "M-2")
	s.createDevice(t, "printers", "PR-1")

	w := s.do(t, http.MethodGet, "/api/monitors?limit=1", nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	env := decodeEnvelope(t, w)
	assert.False(t, env.Cached)
	assert.Equal(t, int64(2), env.Pagination.Total)
	assert.Equal(t, 2, env.Pagination.Pages)

	w = s.do(t, http.MethodGet, "/api/monitors?limit=1", nil, false)
	assert.True(t, decodeEnvelope(t, w).Cached)

	w = s.do(t, http.MethodGet, "/api/monitors?search=m-2", nil, false)
	env = decodeEnvelope(t, w)
	assert.False(t, env.Cached)
	var items []models.Device
	require.NoError(t, json.Unmarshal(env.Data, &items))
	require.Len(t, items, 1)
	assert.Equal(t, "M-2", items[0].Serial)

	// Создание инвалидирует только свой тип
	s.createDevice(t, "monitors", "M-3")
	w = s.do(t, http.MethodGet, "/api/monitors?limit=1", nil, false)
	env = decodeEnvelope(t, w)
	assert.False(t, env.Cached)
	assert.Equal(t, int64(3), env.Pagination.Total)
}

func TestDevicesAPI_UpdateAndDelete(t *testing.T) {
	s := setupTestServer(t)
	printer := s.createDevice(t, "printers", "UP-1")
	base := fmt.Sprintf("/api/printers/%d", printer.ID)

	w := s.do(t, http.MethodPut, base, jsonBody{"manufacturer": "HP", "assigned": []string{"u-bob"}}, true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	view := decodeView(t, w)
	assert.Equal(t, "HP", view.Manufacturer)
	require.NotNil(t, view.Holder.UserID)
	assert.Equal(t, s.bob.ID, *view.Holder.UserID)

	w = s.do(t, http.MethodPut, base, jsonBody{"status": "PendingDocumentation"}, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, base+"/handover-act.pdf", nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))

	w = s.do(t, http.MethodGet, "/api/printers/export.xlsx", nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "printers.xlsx")

	w = s.do(t, http.MethodDelete, base, nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	w = s.do(t, http.MethodGet, base, nil, false)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDevicesAPI_UploadHandoverDocument(t *testing.T) {
	s := setupTestServer(t)
	laptop := s.createDevice(t, "laptops", "UPL-1")

	upload := func(userID, filename string) *httptest.ResponseRecorder {
		var body bytes.Buffer
		writer := multipart.NewWriter(&body)
		require.NoError(t, writer.WriteField("deviceId", fmt.Sprint(laptop.ID)))
		require.NoError(t, writer.WriteField("userId", userID))
		part, err := writer.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = part.Write([]byte("%PDF-1.4 test"))
		require.NoError(t, err)
		require.NoError(t, writer.Close())

		req := httptest.NewRequest(http.MethodPost, "/api/laptops/upload", &body)
		req.Header.Set("Content-Type", writer.FormDataContentType())
		req.Header.Set("Authorization", "Bearer "+s.token)
		w := httptest.NewRecorder()
		s.router.ServeHTTP(w, req)
		return w
	}

	// Нет держателя: файл отклоняется
	w := upload("u-alice", "act.pdf")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, fmt.Sprintf("/api/laptops/%d/assign", laptop.ID), jsonBody{"assignedTo": "u-alice"}, true)
	require.Equal(t, http.StatusOK, w.Code)

	w = upload("u-alice", "notes.txt")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = upload("u-alice", "act.pdf")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		DocumentRef string              `json:"document_ref"`
		Data        services.DeviceView `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, models.StatusActive, resp.Data.Status)

	w = s.do(t, http.MethodGet, "/api/documents/"+resp.DocumentRef, nil, false)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "%PDF-1.4")
}
