package app

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finsight/internal/config"
	"finsight/internal/operations"
	"finsight/internal/shared/testutil"
	ws "finsight/internal/websocket"
)

func newTestApp(t *testing.T) (*Application, *httptest.Server) {
	t.Helper()
	root := t.TempDir()
	cfg := config.Default()
	cfg.Logging.Level = "error"
	cfg.Paths.DataDir = filepath.Join(root, "data")
	cfg.Paths.LogsDir = filepath.Join(root, "logs")
	cfg.Paths.CatalogFile = filepath.Join(root, "DATA_SOURCES.md")
	cfg.Paths.AnnotationFile = ""
	cfg.Preprocess.MinChars = 10

	application, err := NewApplication(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	application.startBackground(ctx)
	server := httptest.NewServer(application.Router)
	t.Cleanup(func() {
		server.Close()
		cancel()
		require.NoError(t, application.Stop(context.Background()))
	})
	return application, server
}

func getJSON(t *testing.T, url string) (int, map[string]interface{}) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func TestApplication_RunsPipelineJob(t *testing.T) {
	application, server := newTestApp(t)
	testutil.WriteFile(t, application.Paths.RawDir, "note.txt", "Quarterly revenue grew by eight percent year over year.")

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	resp, err := http.Post(server.URL+"/api/operations", "application/json", strings.NewReader(`{"step":"prepare"}`))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode, string(body))

	var job map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &job))
	pollURL := server.URL + job["poll_url"].(string)

	require.Eventually(t, func() bool {
		_, current := getJSON(t, pollURL)
		return current["is_complete"] == true
	}, 10*time.Second, 50*time.Millisecond)

	status, current := getJSON(t, pollURL)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, string(operations.JobStatusCompleted), current["status"])
	assert.True(t, config.FileExists(application.Paths.MergedDataset))
	assert.True(t, config.FileExists(application.Paths.PipelineSummary))

	// the client sees a connection message and then operation snapshots
	sawSnapshot := false
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for !sawSnapshot {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var msg ws.Message
		require.NoError(t, json.Unmarshal(data, &msg))
		sawSnapshot = msg.Type == operations.EventTypeOperationSnapshot
	}
}

func TestApplication_Routes(t *testing.T) {
	_, server := newTestApp(t)

	status, body := getJSON(t, server.URL+"/healthz")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])

	status, body = getJSON(t, server.URL+"/readyz")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ready", body["status"])

	status, body = getJSON(t, server.URL+"/api/operations/types")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(6), body["count"])
	var ids []string
	for _, item := range body["types"].([]interface{}) {
		ids = append(ids, item.(map[string]interface{})["id"].(string))
	}
	assert.ElementsMatch(t, []string{
		operations.StepIDPrepare,
		operations.StepIDPreprocess,
		operations.StepIDFeatures,
		operations.StepIDAugment,
		operations.StepIDNER,
		operations.FullPipeline,
	}, ids)

	status, body = getJSON(t, server.URL+"/api/datasets")
	assert.Equal(t, http.StatusNotFound, status)
	assert.NotEmpty(t, body["trace_id"])

	status, _ = getJSON(t, server.URL+"/api/nothing-here")
	assert.Equal(t, http.StatusNotFound, status)

	resp, err := http.Get(server.URL + "/metrics")
	require.NoError(t, err)
	metrics, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(metrics), "http_requests_total")
}
