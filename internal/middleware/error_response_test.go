package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/carelink/internal/model"
)

// TestWriteErrorResponse_UnifiedFormat は統一エラーフォーマットで
// レスポンスが書き込まれることを検証する。
func TestWriteErrorResponse_UnifiedFormat(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteErrorResponse(rec, http.StatusConflict, model.NewDuplicateEmailError("taro@example.com"))

	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	var body ErrorResponseBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.Code != model.ErrCodeDuplicateEmail {
		t.Errorf("code = %q, want DUPLICATE_EMAIL", body.Code)
	}
	if body.Category != "validation" || body.Message == "" || body.Action == "" {
		t.Errorf("body = %+v, want category/message/action populated", body)
	}
}

// TestWriteInternalServerError_GenericMessage は内部エラーが詳細を漏らさない
// 一般的なメッセージで返ることを検証する。
func TestWriteInternalServerError_GenericMessage(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteInternalServerError(rec)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}

	var body ErrorResponseBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.Code != "INTERNAL_ERROR" || body.Category != "system" {
		t.Errorf("body = %+v", body)
	}
}
