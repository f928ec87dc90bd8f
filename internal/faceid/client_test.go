package faceid

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

func TestNewClient_ReturnsNonNil(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf)

	c := NewClient(http.DefaultClient, logger, "http://face.example.com", "test-key")
	if c == nil {
		t.Fatal("NewClient は nil を返してはならない")
	}
}

func TestClient_Verify_Match(t *testing.T) {
	// テスト用HTTPサーバー: 照合成功レスポンスを返す
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("HTTPメソッド = %s, want POST", r.Method)
		}
		if r.URL.Path != "/recognize" {
			t.Errorf("パス = %s, want /recognize", r.URL.Path)
		}
		if got := r.Header.Get("x-api-key"); got != "test-key" {
			t.Errorf("x-api-key ヘッダー = %s, want test-key", got)
		}
		if got := r.Header.Get("Content-Type"); got != "application/json" {
			t.Errorf("Content-Type ヘッダー = %s, want application/json", got)
		}

		var req struct {
			Image   string `json:"image"`
			Subject string `json:"subject"`
			Limit   int    `json:"limit"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("リクエストボディのデコードに失敗: %v", err)
		}
		if req.Image == "" {
			t.Error("リクエストボディに画像が含まれていない")
		}
		if req.Subject != "001" {
			t.Errorf("subject = %s, want 001", req.Subject)
		}
		if req.Limit != 1 {
			t.Errorf("limit = %d, want 1", req.Limit)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"result":[{"subject":"001","similarity":0.95}]}`))
	}))
	defer server.Close()

	var buf bytes.Buffer
	logger := newTestLogger(&buf)

	c := NewClient(server.Client(), logger, server.URL, "test-key")

	result, err := c.Verify(context.Background(), []byte("fake-jpeg-bytes"), "001")
	if err != nil {
		t.Fatalf("Verify がエラーを返した: %v", err)
	}

	if result.Subject != "001" {
		t.Errorf("Subject = %s, want 001", result.Subject)
	}
	if result.Similarity != 0.95 {
		t.Errorf("Similarity = %f, want 0.95", result.Similarity)
	}
}

func TestClient_Verify_NoCandidates(t *testing.T) {
	// 候補なしレスポンスはエラーではなくSimilarity 0として返る
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"result":[]}`))
	}))
	defer server.Close()

	var buf bytes.Buffer
	logger := newTestLogger(&buf)

	c := NewClient(server.Client(), logger, server.URL, "test-key")

	result, err := c.Verify(context.Background(), []byte("fake-jpeg-bytes"), "001")
	if err != nil {
		t.Fatalf("候補なしレスポンスでエラーが返された: %v", err)
	}

	if result.Subject != "" {
		t.Errorf("Subject = %s, want 空文字列", result.Subject)
	}
	if result.Similarity != 0 {
		t.Errorf("Similarity = %f, want 0", result.Similarity)
	}
}

func TestClient_Verify_EmptySample(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf)

	c := NewClient(http.DefaultClient, logger, "http://face.example.com", "test-key")

	_, err := c.Verify(context.Background(), nil, "001")
	if err == nil {
		t.Fatal("空サンプルでエラーが返されるべき")
	}
}

func TestClient_Verify_HTTPError(t *testing.T) {
	// テスト用HTTPサーバー: 500エラーを返す
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	var buf bytes.Buffer
	logger := newTestLogger(&buf)

	c := NewClient(server.Client(), logger, server.URL, "test-key")

	_, err := c.Verify(context.Background(), []byte("fake-jpeg-bytes"), "001")
	if err == nil {
		t.Fatal("HTTPエラー時にエラーが返されるべき")
	}
}

func TestClient_Verify_InvalidJSON(t *testing.T) {
	// テスト用HTTPサーバー: 不正なJSONを返す
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte("invalid json"))
	}))
	defer server.Close()

	var buf bytes.Buffer
	logger := newTestLogger(&buf)

	c := NewClient(server.Client(), logger, server.URL, "test-key")

	_, err := c.Verify(context.Background(), []byte("fake-jpeg-bytes"), "001")
	if err == nil {
		t.Fatal("不正JSONレスポンス時にエラーが返されるべき")
	}
}

func TestClient_Verify_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(5 * time.Second)
		w.Write([]byte(`{"result":[]}`))
	}))
	defer server.Close()

	var buf bytes.Buffer
	logger := newTestLogger(&buf)

	c := NewClient(server.Client(), logger, server.URL, "test-key")

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // 即座にキャンセル

	_, err := c.Verify(ctx, []byte("fake-jpeg-bytes"), "001")
	if err == nil {
		t.Fatal("キャンセルされたコンテキストでエラーが返されるべき")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("context.Canceled エラーであるべき: got %v", err)
	}
}

func TestClient_Verify_LogsError(t *testing.T) {
	// テスト用HTTPサーバー: 503エラーを返す
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	var buf bytes.Buffer
	logger := newTestLogger(&buf)

	c := NewClient(server.Client(), logger, server.URL, "test-key")

	_, _ = c.Verify(context.Background(), []byte("fake-jpeg-bytes"), "001")

	// エラーログが出力されていること
	logOutput := buf.String()
	if !strings.Contains(logOutput, "ERROR") {
		t.Errorf("APIエラー時にERRORレベルのログが記録されるべき: %s", logOutput)
	}
}

func TestClient_CheckEnrollment_Enrolled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("HTTPメソッド = %s, want GET", r.Method)
		}
		if r.URL.Path != "/subjects/001" {
			t.Errorf("パス = %s, want /subjects/001", r.URL.Path)
		}
		if got := r.Header.Get("x-api-key"); got != "test-key" {
			t.Errorf("x-api-key ヘッダー = %s, want test-key", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"subject":"001"}`))
	}))
	defer server.Close()

	var buf bytes.Buffer
	logger := newTestLogger(&buf)

	c := NewClient(server.Client(), logger, server.URL, "test-key")

	enrolled, err := c.CheckEnrollment(context.Background(), "001")
	if err != nil {
		t.Fatalf("CheckEnrollment がエラーを返した: %v", err)
	}
	if !enrolled {
		t.Error("登録済みユーザーに対して true が返るべき")
	}
}

func TestClient_CheckEnrollment_NotEnrolled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	var buf bytes.Buffer
	logger := newTestLogger(&buf)

	c := NewClient(server.Client(), logger, server.URL, "test-key")

	enrolled, err := c.CheckEnrollment(context.Background(), "999")
	if err != nil {
		t.Fatalf("404レスポンスはエラーではなく未登録として扱うべき: %v", err)
	}
	if enrolled {
		t.Error("未登録ユーザーに対して false が返るべき")
	}
}

func TestClient_CheckEnrollment_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	var buf bytes.Buffer
	logger := newTestLogger(&buf)

	c := NewClient(server.Client(), logger, server.URL, "test-key")

	_, err := c.CheckEnrollment(context.Background(), "001")
	if err == nil {
		t.Fatal("サーバーエラー時にエラーが返されるべき")
	}
}

func TestClient_CheckEnrollment_EscapesUserID(t *testing.T) {
	// ユーザーIDに記号が含まれてもパスとして安全に送られる
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	var buf bytes.Buffer
	logger := newTestLogger(&buf)

	c := NewClient(server.Client(), logger, server.URL, "test-key")

	_, err := c.CheckEnrollment(context.Background(), "a/b c")
	if err != nil {
		t.Fatalf("CheckEnrollment がエラーを返した: %v", err)
	}
	if strings.Contains(strings.TrimPrefix(gotPath, "/subjects/"), "/") {
		t.Errorf("ユーザーIDがパスエスケープされていない: %s", gotPath)
	}
}
