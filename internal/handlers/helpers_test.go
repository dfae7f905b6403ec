package handlers

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/gazette/internal/models"
)

func TestPathID(t *testing.T) {
	r := httptest.NewRequest("GET", "/api/tasks/task_1/status", nil)
	assert.Equal(t, "task_1", PathID(r, "/api/tasks/"))

	r = httptest.NewRequest("GET", "/api/tasks/task_2", nil)
	assert.Equal(t, "task_2", PathID(r, "/api/tasks/"))

	r = httptest.NewRequest("GET", "/api/tasks/", nil)
	assert.Equal(t, "", PathID(r, "/api/tasks/"))
}

func TestQueryBool(t *testing.T) {
	r := httptest.NewRequest("GET", "/api/tasks?is_active=true", nil)
	v := QueryBool(r, "is_active")
	require.NotNil(t, v)
	assert.True(t, *v)

	r = httptest.NewRequest("GET", "/api/tasks?is_active=0", nil)
	v = QueryBool(r, "is_active")
	require.NotNil(t, v)
	assert.False(t, *v)

	r = httptest.NewRequest("GET", "/api/tasks", nil)
	assert.Nil(t, QueryBool(r, "is_active"))

	r = httptest.NewRequest("GET", "/api/tasks?is_active=banana", nil)
	assert.Nil(t, QueryBool(r, "is_active"))
}

func TestQueryInt(t *testing.T) {
	r := httptest.NewRequest("GET", "/api/tasks?limit=5", nil)
	assert.Equal(t, 5, QueryInt(r, "limit", 20))
	assert.Equal(t, 20, QueryInt(r, "offset", 20))
}

func TestWriteResultStatusMapping(t *testing.T) {
	w := httptest.NewRecorder()
	WriteResult(w, &models.ServiceResult{Success: true, Message: "ok"})
	assert.Equal(t, 200, w.Code)

	w = httptest.NewRecorder()
	WriteResult(w, &models.ServiceResult{Success: false, Message: "資料驗證失敗: name"})
	assert.Equal(t, 400, w.Code)

	w = httptest.NewRecorder()
	WriteResult(w, &models.ServiceResult{Success: false, Message: "任務不存在: task_9"})
	assert.Equal(t, 404, w.Code)
}

func TestDecodeBody(t *testing.T) {
	r := httptest.NewRequest("POST", "/api/tasks", strings.NewReader(`{"name":"n","count":3}`))
	body, err := DecodeBody(r)
	require.NoError(t, err)
	assert.Equal(t, "n", body["name"])
	assert.Equal(t, float64(3), body["count"])

	r = httptest.NewRequest("POST", "/api/tasks", strings.NewReader(`{broken`))
	_, err = DecodeBody(r)
	require.Error(t, err)
}

func TestWriteResultBodyIsEnvelope(t *testing.T) {
	w := httptest.NewRecorder()
	WriteResult(w, &models.ServiceResult{Success: true, Message: "done", Payload: map[string]string{"id": "x"}})

	var decoded models.ServiceResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decoded))
	assert.True(t, decoded.Success)
	assert.Equal(t, "done", decoded.Message)
}
