package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acheong08/spr-behavior/internal/store"
	"github.com/acheong08/spr-behavior/pkg/models"
)

const analyzeBody = `{"process_id": 100, "process_name": "python", "calls": [{"api": "creat", "arguments": {"p0": "/tmp/a"}, "return_value": "3"}, {"api": "write", "arguments": {"p0": "3", "p1": "...", "p2": "10"}, "return_value": "10"}]}
{"process_id": 101, "process_name": "curl", "calls": [{"api": "connect", "arguments": {"p0": "6", "p1": ["AF_INET", "1.2.3.4", "80"], "p2": "16"}, "return_value": "-115"}]}
`

func newTestServer(t *testing.T, opts Options) *httptest.Server {
	t.Helper()
	srv, err := New(opts)
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func decodeReport(t *testing.T, resp *http.Response) ReportPayload {
	t.Helper()
	defer resp.Body.Close()
	var payload ReportPayload
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	return payload
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, Options{})
	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAnalyzeAndFetch(t *testing.T) {
	ts := newTestServer(t, Options{})

	resp, err := http.Post(ts.URL+"/analyze?collection=pkg", "application/x-ndjson", strings.NewReader(analyzeBody))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	report := decodeReport(t, resp)
	require.NotEmpty(t, report.ID)
	assert.Equal(t, "pkg", report.Result.Collection)
	assert.Equal(t, 2, report.Result.TotalEvents)
	assert.Equal(t, []string{"/tmp/a"}, report.Result.Summary.Files.WrittenFilenames)
	assert.Equal(t, []string{"1.2.3.4:80"}, report.Result.Summary.Network.ConnectedIPs)

	resp, err = http.Get(ts.URL + "/reports/" + report.ID)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	fetched := decodeReport(t, resp)
	assert.Equal(t, report.Result.Summary, fetched.Result.Summary)
}

func TestAnalyzeUnknownFormat(t *testing.T) {
	ts := newTestServer(t, Options{})
	resp, err := http.Post(ts.URL+"/analyze?format=pcap", "text/plain", strings.NewReader(""))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestReportNotFound(t *testing.T) {
	ts := newTestServer(t, Options{})
	resp, err := http.Get(ts.URL + "/reports/nope")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestReportsFallBackToStore(t *testing.T) {
	db, err := store.Open(filepath.Join(t.TempDir(), "behavior.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	first := newTestServer(t, Options{Store: db})
	resp, err := http.Post(first.URL+"/analyze", "application/x-ndjson", strings.NewReader(analyzeBody))
	require.NoError(t, err)
	report := decodeReport(t, resp)

	// a second server shares the store but not the cache
	second := newTestServer(t, Options{Store: db})
	resp, err = http.Get(second.URL + "/reports/" + report.ID)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	fetched := decodeReport(t, resp)
	assert.Equal(t, "default", fetched.Result.Collection)
	assert.Equal(t, []string{"/tmp/a"}, fetched.Result.Summary.Files.Opened.Created)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, Options{Registry: prometheus.NewRegistry()})

	resp, err := http.Post(ts.URL+"/analyze", "application/x-ndjson", strings.NewReader(analyzeBody))
	require.NoError(t, err)
	resp.Body.Close()

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `spr_behavior_events_total{category="process"} 2`)
	assert.Contains(t, string(body), "spr_behavior_reports_total 1")
}

func dialWs(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	return conn
}

func sendMessage(t *testing.T, conn *websocket.Conn, typ MessageType, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(Message{Type: typ, Payload: raw}))
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestWebSocketStream(t *testing.T) {
	ts := newTestServer(t, Options{})
	conn := dialWs(t, ts)

	sendMessage(t, conn, TypeEvent, models.Event{
		ProcessID:   7,
		ProcessName: "sh",
		Calls: []models.Call{
			{API: "openat", Arguments: map[string]models.Value{
				"p0": models.StringValue("AT_FDCWD"),
				"p1": models.StringValue("/etc/passwd"),
				"p2": models.StringValue("O_RDONLY"),
			}, ReturnValue: models.StringValue("5")},
			{API: "read", Arguments: map[string]models.Value{
				"p0": models.StringValue("5"),
			}, ReturnValue: models.StringValue("100")},
		},
	})
	require.NoError(t, conn.WriteJSON(Message{Type: TypeEvent, Payload: json.RawMessage(`"not an event"`)}))
	sendMessage(t, conn, TypeFinish, FinishPayload{Collection: "stream"})

	msg := readMessage(t, conn)
	assert.Equal(t, TypeError, msg.Type)

	msg = readMessage(t, conn)
	require.Equal(t, TypeReport, msg.Type)
	var report ReportPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &report))
	assert.Equal(t, "stream", report.Result.Collection)
	assert.Equal(t, 1, report.Result.TotalEvents)
	assert.Equal(t, []string{"/etc/passwd"}, report.Result.Summary.Files.ReadFilenames)
	assert.Equal(t, models.APIStats{"7": {"openat": 1, "read": 1}}, report.Result.Summary.APIStats)

	sendMessage(t, conn, TypeFetch, FetchPayload{ID: report.ID})
	msg = readMessage(t, conn)
	require.Equal(t, TypeReport, msg.Type)

	// a new stream starts empty
	sendMessage(t, conn, TypeFinish, FinishPayload{})
	msg = readMessage(t, conn)
	require.Equal(t, TypeReport, msg.Type)
	var empty ReportPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &empty))
	assert.Zero(t, empty.Result.TotalEvents)
	assert.NotEqual(t, report.ID, empty.ID)
}

func TestWebSocketUnknownAndPing(t *testing.T) {
	ts := newTestServer(t, Options{})
	conn := dialWs(t, ts)

	require.NoError(t, conn.WriteJSON(Message{Type: TypePing}))
	assert.Equal(t, TypePong, readMessage(t, conn).Type)

	require.NoError(t, conn.WriteJSON(Message{Type: "analyze"}))
	assert.Equal(t, TypeError, readMessage(t, conn).Type)

	sendMessage(t, conn, TypeFetch, FetchPayload{ID: "missing"})
	assert.Equal(t, TypeError, readMessage(t, conn).Type)
}
