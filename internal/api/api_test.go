package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/starford/segue/internal/assetservice"
	"github.com/starford/segue/internal/session"
	"github.com/starford/segue/internal/sse"
	"github.com/starford/segue/internal/testutil"
)

const comboPath = "hero/combo.anim.yaml"

// testEnv sets up a temp library, SQLite DB, service, session hub and router.
// An empty authToken means auth is disabled.
func testEnv(t *testing.T, authToken string) (*assetservice.Service, http.Handler) {
	t.Helper()
	return testEnvWithSSE(t, authToken != "", authToken, nil)
}

// testEnvWithSSE additionally mounts sseHandler at /events.
func testEnvWithSSE(t *testing.T, authEnabled bool, token string, sseHandler http.Handler) (*assetservice.Service, http.Handler) {
	t.Helper()
	_, store := testutil.TestLibrary(t)
	svc := assetservice.NewService(store, testutil.TestDB(t))

	broker := sse.NewBroker(10 * time.Millisecond)
	hub := session.NewHub(session.Config{}, svc, broker, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		broker.Close()
	})

	return svc, NewRouter(svc, hub, authEnabled, token, sseHandler)
}

func do(t *testing.T, router http.Handler, method, target string, body any, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	switch b := body.(type) {
	case nil:
		req = httptest.NewRequest(method, target, nil)
	case string:
		req = httptest.NewRequest(method, target, strings.NewReader(b))
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatal(err)
		}
		req = httptest.NewRequest(method, target, bytes.NewReader(data))
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return v
}

func createCombo(t *testing.T, router http.Handler) AssetDetail {
	t.Helper()
	w := do(t, router, http.MethodPost, "/assets", CreateAssetRequest{Path: comboPath, Content: testutil.ComboDoc})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", w.Code, w.Body.String())
	}
	return decode[AssetDetail](t, w)
}

func TestCreateAndGetAsset(t *testing.T) {
	_, router := testEnv(t, "")
	created := createCombo(t, router)
	if created.Name != "combo" || len(created.Sections) != 3 {
		t.Fatalf("created = %+v", created)
	}

	w := do(t, router, http.MethodGet, "/assets/"+comboPath, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	if etag := w.Header().Get("ETag"); etag != `"`+created.Checksum+`"` {
		t.Errorf("ETag = %q", etag)
	}
	got := decode[AssetDetail](t, w)
	if got.Checksum != created.Checksum || got.Content != testutil.ComboDoc {
		t.Errorf("get = %+v", got)
	}

	w = do(t, router, http.MethodGet, "/assets/hero%2Fcombo.anim.yaml", nil)
	if w.Code != http.StatusOK {
		t.Errorf("encoded path status = %d", w.Code)
	}
}

func TestCreateErrors(t *testing.T) {
	_, router := testEnv(t, "")
	createCombo(t, router)

	tests := []struct {
		name string
		body any
		want int
	}{
		{"duplicate", CreateAssetRequest{Path: comboPath, Content: testutil.ComboDoc}, http.StatusConflict},
		{"missing content", CreateAssetRequest{Path: "x.anim.yaml"}, http.StatusBadRequest},
		{"invalid document", CreateAssetRequest{Path: "x.anim.yaml", Content: "kind: montage\nlength: 1\n"}, http.StatusBadRequest},
		{"bad extension", CreateAssetRequest{Path: "x.txt", Content: testutil.WalkDoc}, http.StatusBadRequest},
		{"bad json", "{", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := do(t, router, http.MethodPost, "/assets", tt.body); w.Code != tt.want {
				t.Errorf("status = %d, want %d, body = %s", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestUpdateWithOptimisticLocking(t *testing.T) {
	_, router := testEnv(t, "")
	created := createCombo(t, router)
	edited := strings.Replace(testutil.ComboDoc, "length: 3", "length: 4", 1)

	w := do(t, router, http.MethodPut, "/assets/"+comboPath, edited, "If-Match", "stale")
	if w.Code != http.StatusConflict {
		t.Fatalf("stale update = %d, want 409", w.Code)
	}

	w = do(t, router, http.MethodPut, "/assets/"+comboPath, edited, "If-Match", `"`+created.Checksum+`"`)
	if w.Code != http.StatusOK {
		t.Fatalf("update = %d, body = %s", w.Code, w.Body.String())
	}
	if got := decode[AssetDetail](t, w); got.Length != 4 || got.Checksum == created.Checksum {
		t.Errorf("updated = %+v", got)
	}

	if w := do(t, router, http.MethodPut, "/assets/"+comboPath, edited); w.Code != http.StatusOK {
		t.Errorf("update without If-Match = %d", w.Code)
	}
	if w := do(t, router, http.MethodPut, "/assets/missing.anim.yaml", edited); w.Code != http.StatusNotFound {
		t.Errorf("update missing = %d, want 404", w.Code)
	}
}

func TestDeleteAsset(t *testing.T) {
	_, router := testEnv(t, "")
	createCombo(t, router)

	if w := do(t, router, http.MethodDelete, "/assets/"+comboPath, nil); w.Code != http.StatusNoContent {
		t.Fatalf("delete = %d", w.Code)
	}
	if w := do(t, router, http.MethodGet, "/assets/"+comboPath, nil); w.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d", w.Code)
	}
	if w := do(t, router, http.MethodDelete, "/assets/"+comboPath, nil); w.Code != http.StatusNotFound {
		t.Errorf("second delete = %d", w.Code)
	}
}

func TestListAndSearch(t *testing.T) {
	_, router := testEnv(t, "")
	createCombo(t, router)
	do(t, router, http.MethodPost, "/assets", CreateAssetRequest{Path: "walk.anim.yaml", Content: testutil.WalkDoc})

	list := decode[AssetListResponse](t, do(t, router, http.MethodGet, "/assets", nil))
	if list.Total != 2 || len(list.Assets) != 2 {
		t.Fatalf("list = %+v", list)
	}
	list = decode[AssetListResponse](t, do(t, router, http.MethodGet, "/assets?kind=montage", nil))
	if list.Total != 1 || list.Assets[0].Path != comboPath {
		t.Errorf("kind filter = %+v", list)
	}

	res := decode[SearchResponse](t, do(t, router, http.MethodGet, "/search?q=melee", nil))
	if len(res.Results) != 1 || res.Results[0].Path != comboPath {
		t.Errorf("search = %+v", res)
	}
	if w := do(t, router, http.MethodGet, "/search", nil); w.Code != http.StatusBadRequest {
		t.Errorf("search without q = %d", w.Code)
	}
}

func TestSectionEndpoints(t *testing.T) {
	_, router := testEnv(t, "")
	createCombo(t, router)
	do(t, router, http.MethodPost, "/assets", CreateAssetRequest{Path: "walk.anim.yaml", Content: testutil.WalkDoc})

	in := decode[assetservice.Inspection](t, do(t, router, http.MethodGet, "/sections/"+comboPath, nil))
	if len(in.Chains) != 1 || len(in.Chains[0]) != 3 {
		t.Fatalf("inspection = %+v", in)
	}

	w := do(t, router, http.MethodPost, "/sections/"+comboPath, SectionEditRequest{Op: "add", Name: "Taunt", Start: 2.5})
	if w.Code != http.StatusOK {
		t.Fatalf("add section = %d, body = %s", w.Code, w.Body.String())
	}
	if got := decode[AssetDetail](t, w); len(got.Sections) != 4 || got.Sections[3].Name != "Taunt" {
		t.Errorf("sections = %+v", got.Sections)
	}

	rows := decode[SectionMatchResponse](t, do(t, router, http.MethodGet, "/sections?name=Taunt", nil))
	if len(rows.Sections) != 1 {
		t.Errorf("find sections = %+v", rows)
	}

	if w := do(t, router, http.MethodPost, "/sections/"+comboPath, SectionEditRequest{Op: "add", Name: "Mid", Start: 1}); w.Code != http.StatusConflict {
		t.Errorf("duplicate section = %d", w.Code)
	}
	if w := do(t, router, http.MethodPost, "/sections/"+comboPath, SectionEditRequest{Op: "explode"}); w.Code != http.StatusBadRequest {
		t.Errorf("unknown op = %d", w.Code)
	}
	if w := do(t, router, http.MethodGet, "/sections/walk.anim.yaml", nil); w.Code != http.StatusUnprocessableEntity {
		t.Errorf("inspect sequence = %d", w.Code)
	}
}

func TestPreviewLifecycle(t *testing.T) {
	_, router := testEnv(t, "")
	createCombo(t, router)

	w := do(t, router, http.MethodPost, "/previews", OpenPreviewRequest{Path: comboPath})
	if w.Code != http.StatusCreated {
		t.Fatalf("open = %d, body = %s", w.Code, w.Body.String())
	}
	info := decode[PreviewInfo](t, w)
	base := "/previews/" + info.ID

	list := decode[PreviewListResponse](t, do(t, router, http.MethodGet, "/previews", nil))
	if len(list.Previews) != 1 {
		t.Fatalf("list = %+v", list)
	}

	w = do(t, router, http.MethodPost, base+"/commands", CommandRequest{Name: "jump_position", Time: 1.5})
	if w.Code != http.StatusOK {
		t.Fatalf("command = %d, body = %s", w.Code, w.Body.String())
	}
	if got := decode[PreviewInfo](t, w); got.State.SectionName != "Mid" {
		t.Errorf("section after jump = %q", got.State.SectionName)
	}
	if w := do(t, router, http.MethodPost, base+"/commands", CommandRequest{Name: "moonwalk"}); w.Code != http.StatusBadRequest {
		t.Errorf("unknown command = %d", w.Code)
	}

	w = do(t, router, http.MethodPut, base+"/modifiers/Root", map[string]any{
		"value": map[string]any{"translation": []float32{0, 2, 0}, "rotation": []float32{0, 0, 0, 1}, "scale": []float32{1, 1, 1}},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("set modifier = %d, body = %s", w.Code, w.Body.String())
	}
	if got := decode[PreviewInfo](t, w); len(got.Modifiers) != 1 {
		t.Errorf("modifiers = %+v", got.Modifiers)
	}

	w = do(t, router, http.MethodPost, base+"/key", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("key = %d, body = %s", w.Code, w.Body.String())
	}
	asset := decode[AssetDetail](t, do(t, router, http.MethodGet, "/assets/"+comboPath, nil))
	if !strings.Contains(asset.Content, "curves:") {
		t.Errorf("keyed document has no curves:\n%s", asset.Content)
	}

	if w := do(t, router, http.MethodDelete, base+"/modifiers", nil); w.Code != http.StatusOK {
		t.Errorf("reset modifiers = %d", w.Code)
	}
	if w := do(t, router, http.MethodDelete, base, nil); w.Code != http.StatusNoContent {
		t.Errorf("close = %d", w.Code)
	}
	if w := do(t, router, http.MethodGet, base, nil); w.Code != http.StatusNotFound {
		t.Errorf("get closed = %d", w.Code)
	}
}

func TestOpenPreview_NotFound(t *testing.T) {
	_, router := testEnv(t, "")
	if w := do(t, router, http.MethodPost, "/previews", OpenPreviewRequest{Path: "nope.anim.yaml"}); w.Code != http.StatusNotFound {
		t.Errorf("open missing = %d", w.Code)
	}
}

func TestAuthMiddleware(t *testing.T) {
	_, router := testEnv(t, "secret123")

	tests := []struct {
		name   string
		header []string
		want   int
	}{
		{"valid token", []string{"Authorization", "Bearer secret123"}, http.StatusOK},
		{"missing token", nil, http.StatusUnauthorized},
		{"wrong token", []string{"Authorization", "Bearer wrong"}, http.StatusUnauthorized},
		{"empty bearer", []string{"Authorization", "Bearer "}, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := do(t, router, http.MethodGet, "/assets", nil, tt.header...); w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestAuthMiddleware_QueryToken(t *testing.T) {
	_, router := testEnv(t, "secret123")
	if w := do(t, router, http.MethodGet, "/assets?access_token=secret123", nil); w.Code != http.StatusOK {
		t.Errorf("GET with query token = %d, want 200", w.Code)
	}
	w := do(t, router, http.MethodPost, "/assets?access_token=secret123", CreateAssetRequest{Path: comboPath, Content: testutil.ComboDoc})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("POST with query token = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	_, router := testEnv(t, "")
	if w := do(t, router, http.MethodGet, "/assets", nil); w.Code != http.StatusOK {
		t.Errorf("no auth = %d, want 200", w.Code)
	}
}

// blockingSSE writes headers and blocks until the request context is done.
var blockingSSE = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	<-r.Context().Done()
})

func TestSSEEvents_AuthProtected(t *testing.T) {
	_, router := testEnvWithSSE(t, true, "secret", blockingSSE)
	if w := do(t, router, http.MethodGet, "/events", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}
}

func TestSSEEvents_ValidToken(t *testing.T) {
	_, router := testEnvWithSSE(t, true, "tok", blockingSSE)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code == http.StatusUnauthorized {
		t.Error("SSE with valid token should not 401")
	}
}
