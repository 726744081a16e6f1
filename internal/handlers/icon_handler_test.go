package handlers

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"hash/crc32"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strconv"
	"strings"
	"testing"

	"github.com/koios/iconforge/internal/bundle"
	"go.uber.org/zap"
)

func setupRouter(t *testing.T) http.Handler {
	t.Helper()
	h := NewIconHandler(setupGenerator(t), zap.NewNop())
	return NewRouter(h, []string{"*"}, zap.NewNop())
}

func multipartRequest(t *testing.T, file []byte, contentType, platforms string) *http.Request {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	if file != nil {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", `form-data; name="file"; filename="icon.png"`)
		if contentType != "" {
			header.Set("Content-Type", contentType)
		}
		part, err := mw.CreatePart(header)
		if err != nil {
			t.Fatalf("CreatePart: %v", err)
		}
		part.Write(file)
	}
	if platforms != "" {
		mw.WriteField("platforms", platforms)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/generate-icons", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode error body: %v", err)
	}
	return resp
}

// --- Health endpoint ---

func TestHealth(t *testing.T) {
	router := setupRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	var resp map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}
	if resp["status"] != "healthy" {
		t.Errorf("Expected status=healthy, got %v", resp["status"])
	}
}

var _ CacheChecker = (*bundle.RedisCache)(nil)

type fakeCache struct {
	pingErr error
	count   int64
}

func (c *fakeCache) Ping(ctx context.Context) error {
	return c.pingErr
}

func (c *fakeCache) Stats(ctx context.Context) (int64, error) {
	return c.count, nil
}

func TestHealth_Cache(t *testing.T) {
	tests := []struct {
		name       string
		cache      *fakeCache
		wantStatus string
		wantCache  string
	}{
		{"disabled", nil, "healthy", "disabled"},
		{"reachable", &fakeCache{count: 3}, "healthy", "ok"},
		{"unreachable", &fakeCache{pingErr: errors.New("connection refused")}, "degraded", "unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewIconHandler(setupGenerator(t), zap.NewNop())
			if tt.cache != nil {
				h.WithCacheCheck(tt.cache)
			}
			router := NewRouter(h, []string{"*"}, zap.NewNop())

			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != http.StatusOK {
				t.Fatalf("Expected 200, got %d", w.Code)
			}

			var resp map[string]interface{}
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("Failed to decode: %v", err)
			}
			if resp["status"] != tt.wantStatus || resp["cache"] != tt.wantCache {
				t.Errorf("status=%v cache=%v, want %s/%s", resp["status"], resp["cache"], tt.wantStatus, tt.wantCache)
			}
			if tt.name == "reachable" && resp["cachedArchives"] != float64(3) {
				t.Errorf("cachedArchives = %v, want 3", resp["cachedArchives"])
			}
		})
	}
}

func TestHealth_WrongMethod(t *testing.T) {
	router := setupRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", w.Code)
	}
}

// --- API info and preflight ---

func TestInfo(t *testing.T) {
	router := setupRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/generate-icons", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	var resp struct {
		SupportedFormats []string `json:"supportedFormats"`
		MaxFileSize      string   `json:"maxFileSize"`
		Platforms        []struct {
			ID          string `json:"id"`
			IconCount   int    `json:"iconCount"`
			GenerateIco bool   `json:"generateIco"`
		} `json:"platforms"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}

	if len(resp.SupportedFormats) != 5 || resp.MaxFileSize != "10 MiB" {
		t.Errorf("unexpected formats/limit: %v %s", resp.SupportedFormats, resp.MaxFileSize)
	}
	if len(resp.Platforms) != 11 {
		t.Fatalf("Expected 11 platforms, got %d", len(resp.Platforms))
	}
	if resp.Platforms[2].ID != "web" || resp.Platforms[2].IconCount != 14 || !resp.Platforms[2].GenerateIco {
		t.Errorf("unexpected web summary %+v", resp.Platforms[2])
	}
}

func TestPreflight(t *testing.T) {
	router := setupRouter(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/generate-icons", nil)
	req.Header.Set("Origin", "https://example.com")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("Expected 204, got %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Allow-Origin = %q", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Methods"); got != "GET, POST, OPTIONS" {
		t.Errorf("Allow-Methods = %q", got)
	}
}

func TestCORS_AllowList(t *testing.T) {
	handler := CORS([]string{"https://app.example"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://app.example")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example" {
		t.Errorf("Allow-Origin = %q", got)
	}

	req.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("unlisted origin allowed: %q", got)
	}
}

// --- Generation ---

func TestGenerate_Success(t *testing.T) {
	router := setupRouter(t)

	req := multipartRequest(t, pngBytes(t, 48, 48), "image/png", `["web"]`)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if got := w.Header().Get("Content-Type"); got != "application/zip" {
		t.Errorf("Content-Type = %q", got)
	}
	if got := w.Header().Get("Content-Disposition"); !strings.HasPrefix(got, `attachment; filename="app-icons-web-`) {
		t.Errorf("Content-Disposition = %q", got)
	}
	if got := w.Header().Get(headerIconCount); got != "15" {
		t.Errorf("X-Icon-Count = %q, want 15", got)
	}
	if got := w.Header().Get(headerPlatforms); got != "web" {
		t.Errorf("X-Platforms = %q", got)
	}
	if got := w.Header().Get(headerWarning); !strings.Contains(got, "48x48") {
		t.Errorf("X-Warning = %q", got)
	}
	if w.Header().Get(headerGenerationID) == "" {
		t.Error("missing X-Generation-ID")
	}
	if got := w.Header().Get("Content-Length"); got != strconv.Itoa(w.Body.Len()) {
		t.Errorf("Content-Length = %s, body = %d", got, w.Body.Len())
	}

	zr, err := zip.NewReader(bytes.NewReader(w.Body.Bytes()), int64(w.Body.Len()))
	if err != nil {
		t.Fatalf("response is not a zip: %v", err)
	}
	if len(zr.File) != 15 {
		t.Errorf("archive has %d entries, want 15", len(zr.File))
	}
}

// pngHeaderOnly returns the signature and IHDR chunk of a w x h grayscale
// PNG. It is tiny on disk but declares the full pixel count.
func pngHeaderOnly(w, h uint32) []byte {
	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")

	chunk := make([]byte, 4+13)
	copy(chunk, "IHDR")
	binary.BigEndian.PutUint32(chunk[4:8], w)
	binary.BigEndian.PutUint32(chunk[8:12], h)
	chunk[12] = 8

	binary.Write(&buf, binary.BigEndian, uint32(13))
	buf.Write(chunk)
	binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(chunk))
	return buf.Bytes()
}

func TestGenerate_Rejections(t *testing.T) {
	router := setupRouter(t)
	valid := pngBytes(t, 16, 16)

	tests := []struct {
		name        string
		file        []byte
		contentType string
		platforms   string
		wantStatus  int
		wantCode    string
		wantMessage string
	}{
		{"missing file", nil, "", `["web"]`, http.StatusBadRequest, CodeMissingFile, "No file provided. Please upload an image file."},
		{"unsupported type", valid, "image/gif", `["web"]`, http.StatusBadRequest, CodeUnsupportedFormat, ""},
		{"malformed platforms", valid, "image/png", `web`, http.StatusBadRequest, CodeInvalidPlatforms, "Invalid platforms format. Expected a JSON array of platform IDs."},
		{"no platforms", valid, "image/png", `[]`, http.StatusBadRequest, CodeNoPlatforms, "No platforms selected. Please select at least one platform."},
		{"missing platforms field", valid, "image/png", "", http.StatusBadRequest, CodeNoPlatforms, ""},
		{"unknown platform", valid, "image/png", `["web","nonexistent"]`, http.StatusBadRequest, CodeUnknownPlatform, ""},
		{"corrupt image", []byte("\x89PNG\r\n\x1a\ngarbage"), "image/png", `["web"]`, http.StatusBadRequest, "invalid_image", msgUnreadableImage},
		{"too many pixels", pngHeaderOnly(17000, 17000), "image/png", `["web"]`, http.StatusBadRequest, "invalid_image", msgUnreadableImage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := multipartRequest(t, tt.file, tt.contentType, tt.platforms)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("Expected %d, got %d: %s", tt.wantStatus, w.Code, w.Body.String())
			}
			resp := decodeError(t, w)
			if resp.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", resp.Code, tt.wantCode)
			}
			if tt.wantMessage != "" && resp.Error != tt.wantMessage {
				t.Errorf("error = %q, want %q", resp.Error, tt.wantMessage)
			}
		})
	}
}

func TestGenerate_NotMultipart(t *testing.T) {
	router := setupRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/generate-icons", strings.NewReader(`{"platforms":["web"]}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", w.Code)
	}
	if resp := decodeError(t, w); resp.Code != CodeMissingFile {
		t.Errorf("code = %q", resp.Code)
	}
}
