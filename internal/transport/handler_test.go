package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/anime-shed/olive-inspector-go/internal/gateway"
	"github.com/anime-shed/olive-inspector-go/internal/observer"
	"github.com/anime-shed/olive-inspector-go/internal/repository"
	"github.com/anime-shed/olive-inspector-go/internal/service"
	"github.com/anime-shed/olive-inspector-go/internal/session"
	"github.com/anime-shed/olive-inspector-go/internal/settings"
	"github.com/anime-shed/olive-inspector-go/internal/storage"
	"github.com/anime-shed/olive-inspector-go/pkg/models"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type bytesLoader struct{}

func (bytesLoader) Load(ctx context.Context, ref string) ([]byte, error) {
	return []byte("jpeg-bytes"), nil
}

type testAPI struct {
	handler  http.Handler
	detector *httptest.Server
}

// newTestAPI wires the full stack against a fake detection server that
// answers with detectBody
func newTestAPI(t *testing.T, detectBody string) *testAPI {
	t.Helper()

	detector := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/detect" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, detectBody)
	}))
	t.Cleanup(detector.Close)

	store := storage.NewMemoryStore()
	queue := storage.NewKeyedQueue(0)
	t.Cleanup(queue.Close)

	settingsSvc := settings.NewService(repository.NewKVSettingsRepository(store), queue)
	tracker := session.NewTracker(repository.NewKVSessionRepository(store), queue)
	history := repository.NewKVHistoryRepository(store, queue)

	reg := prometheus.NewRegistry()
	metrics, err := observer.NewMetricsObserver(reg)
	if err != nil {
		t.Fatalf("NewMetricsObserver() error = %v", err)
	}
	publisher := observer.NewEventPublisher()
	publisher.Subscribe(metrics)

	gw := gateway.NewDetectionGateway(bytesLoader{}, 5*time.Second)
	detection := service.NewDetectionService(tracker, gw, history, settingsSvc, publisher, nil)
	detection.Start(context.Background())

	if _, err := settingsSvc.SetServerAddress(context.Background(), strings.TrimPrefix(detector.URL, "http://")); err != nil {
		t.Fatalf("SetServerAddress() error = %v", err)
	}

	handler := NewHandler(detection, settingsSvc, Options{
		MaxRequestBodySize: 1 << 20,
		Metrics:            promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	})
	return &testAPI{handler: handler, detector: detector}
}

func (a *testAPI) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	a.handler.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return v
}

const twoLeaves = `{"image":"cHJvY2Vzc2Vk","detection_info":{"leaf_count":2,"leaves":[{"class_name":"psylle","confidence":91},{"class_name":"en bonne etat","confidence":88}]}}`

func TestHealth(t *testing.T) {
	api := newTestAPI(t, twoLeaves)
	w := api.do(t, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if got := decode[map[string]string](t, w)["status"]; got != "available" {
		t.Errorf("status field = %q", got)
	}
}

func TestDetectionFlow(t *testing.T) {
	api := newTestAPI(t, twoLeaves)

	// analyze and save need an image first
	for _, path := range []string{"/api/session/analyze", "/api/session/save"} {
		w := api.do(t, http.MethodPost, path, "")
		if w.Code != http.StatusConflict {
			t.Errorf("%s without image: status = %d, want 409", path, w.Code)
		}
		if got := decode[models.ErrorResponse](t, w).Type; got != "precondition" {
			t.Errorf("%s error type = %q", path, got)
		}
	}

	w := api.do(t, http.MethodPut, "/api/session/image", `{"image_ref":"file:///photos/leaf.jpg"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("select image status = %d: %s", w.Code, w.Body.String())
	}
	sess := decode[models.SessionResponse](t, w)
	if sess.ImageRef == nil || *sess.ImageRef != "file:///photos/leaf.jpg" || sess.Result != nil {
		t.Errorf("session after select = %+v", sess)
	}

	w = api.do(t, http.MethodPost, "/api/session/analyze", "")
	if w.Code != http.StatusOK {
		t.Fatalf("analyze status = %d: %s", w.Code, w.Body.String())
	}
	analysis := decode[models.AnalysisResponse](t, w)
	if analysis.Status != models.OutcomeSuccess || analysis.LeafCount != 2 || len(analysis.Leaves) != 2 {
		t.Fatalf("analysis = %+v", analysis)
	}
	if analysis.Leaves[0].Number != 1 || analysis.Leaves[0].Disease != "psyllid" || analysis.Leaves[1].Disease != "healthy" {
		t.Errorf("leaves = %+v", analysis.Leaves)
	}

	w = api.do(t, http.MethodGet, "/api/session", "")
	sess = decode[models.SessionResponse](t, w)
	if sess.Result == nil || sess.Result.LeafCount != 2 {
		t.Errorf("session result = %+v", sess.Result)
	}

	w = api.do(t, http.MethodPost, "/api/session/save", "")
	if w.Code != http.StatusCreated {
		t.Fatalf("save status = %d: %s", w.Code, w.Body.String())
	}
	entry := decode[models.HistoryEntry](t, w)

	w = api.do(t, http.MethodGet, "/api/history", "")
	list := decode[models.HistoryListResponse](t, w)
	if list.Count != 1 || list.Entries[0].ID != entry.ID {
		t.Fatalf("history = %+v", list)
	}

	w = api.do(t, http.MethodGet, fmt.Sprintf("/api/history/%d", entry.ID), "")
	if w.Code != http.StatusOK {
		t.Errorf("get entry status = %d", w.Code)
	}

	w = api.do(t, http.MethodGet, "/api/history/12345", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("missing entry status = %d", w.Code)
	}

	w = api.do(t, http.MethodGet, "/api/history/abc", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad id status = %d", w.Code)
	}

	w = api.do(t, http.MethodDelete, fmt.Sprintf("/api/history/%d", entry.ID), "")
	if w.Code != http.StatusNoContent {
		t.Errorf("delete status = %d", w.Code)
	}
	if list := decode[models.HistoryListResponse](t, api.do(t, http.MethodGet, "/api/history", "")); list.Count != 0 {
		t.Errorf("history after delete = %+v", list)
	}

	w = api.do(t, http.MethodDelete, "/api/session", "")
	if w.Code != http.StatusNoContent {
		t.Errorf("reset status = %d", w.Code)
	}
	sess = decode[models.SessionResponse](t, api.do(t, http.MethodGet, "/api/session", ""))
	if sess.ImageRef != nil || sess.Result != nil {
		t.Errorf("session after reset = %+v", sess)
	}

	w = api.do(t, http.MethodDelete, "/api/history", "")
	if w.Code != http.StatusNoContent {
		t.Errorf("clear status = %d", w.Code)
	}

	w = api.do(t, http.MethodGet, "/metrics", "")
	if !strings.Contains(w.Body.String(), `olive_inspector_analyses_total{outcome="success"} 1`) {
		t.Errorf("metrics missing analysis counter:\n%s", w.Body.String())
	}
}

func TestAnalyzeNoDetection(t *testing.T) {
	api := newTestAPI(t, `{"image":"eA==","detection_info":{"leaf_count":0,"leaves":[]}}`)
	api.do(t, http.MethodPut, "/api/session/image", `{"image_ref":"leaf.jpg"}`)

	w := api.do(t, http.MethodPost, "/api/session/analyze", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if got := decode[models.AnalysisResponse](t, w).Status; got != models.OutcomeNoDetection {
		t.Errorf("status = %q", got)
	}
	if list := decode[models.HistoryListResponse](t, api.do(t, http.MethodGet, "/api/history", "")); list.Count != 0 {
		t.Errorf("no_detection must not touch history: %+v", list)
	}
}

func TestAnalyzeServerError(t *testing.T) {
	api := newTestAPI(t, `not json`)
	api.do(t, http.MethodPut, "/api/session/image", `{"image_ref":"leaf.jpg"}`)

	w := api.do(t, http.MethodPost, "/api/session/analyze", "")
	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if got := decode[models.ErrorResponse](t, w).Type; got != "server" {
		t.Errorf("type = %q", got)
	}
}

func TestSettingsEndpoints(t *testing.T) {
	api := newTestAPI(t, twoLeaves)

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
	}{
		{"valid server", http.MethodPut, "/api/settings/server", `{"server_address":"192.168.1.50:5000"}`, http.StatusOK},
		{"invalid server", http.MethodPut, "/api/settings/server", `{"server_address":"not-an-ip"}`, http.StatusBadRequest},
		{"missing field", http.MethodPut, "/api/settings/server", `{}`, http.StatusBadRequest},
		{"patch", http.MethodPatch, "/api/settings", `{"dark_mode":true,"language":"en"}`, http.StatusOK},
		{"bad language", http.MethodPatch, "/api/settings", `{"language":"xx"}`, http.StatusBadRequest},
		{"bad language with toggle", http.MethodPatch, "/api/settings", `{"dark_mode":false,"language":"xx"}`, http.StatusBadRequest},
		{"malformed", http.MethodPatch, "/api/settings", `{`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := api.do(t, tt.method, tt.path, tt.body)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d: %s", w.Code, tt.wantStatus, w.Body.String())
			}
		})
	}

	got := decode[models.Settings](t, api.do(t, http.MethodGet, "/api/settings", ""))
	if got.ServerAddress != "192.168.1.50:5000" || !got.DarkMode || got.Language != "en" || !got.Notifications {
		t.Errorf("settings = %+v", got)
	}
}
