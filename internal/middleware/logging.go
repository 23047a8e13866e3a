package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// statusRecorder はhttp.ResponseWriterをラップし、ステータスコードを記録する。
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

// WriteHeader はステータスコードを記録してから委譲する。
func (sr *statusRecorder) WriteHeader(code int) {
	if !sr.written {
		sr.statusCode = code
		sr.written = true
	}
	sr.ResponseWriter.WriteHeader(code)
}

// Write はデータを書き込む。WriteHeaderが未呼び出しの場合は200を記録する。
func (sr *statusRecorder) Write(b []byte) (int, error) {
	if !sr.written {
		sr.statusCode = http.StatusOK
		sr.written = true
	}
	return sr.ResponseWriter.Write(b)
}

// logEntry はロギングミドルウェアが先に仕込み、内側のミドルウェアが
// 追記するログ属性の入れ物。内側でr.WithContextにより派生したコンテキストは
// 外側のログ出力から見えないため、可変の入れ物越しに受け渡す。
type logEntry struct {
	mu     sync.Mutex
	userID string
}

func (e *logEntry) setUserID(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.userID = id
}

func (e *logEntry) getUserID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.userID
}

var logEntryContextKey = contextKey("log_entry")

// annotateLogUserID はリクエストログにユーザーIDを載せる。
// 認証ミドルウェアが検証成功時に呼び出す。ロギングミドルウェアが
// 外側に居ない場合は何もしない。
func annotateLogUserID(ctx context.Context, userID string) {
	if entry, ok := ctx.Value(logEntryContextKey).(*logEntry); ok {
		entry.setUserID(userID)
	}
}

// NewLoggingMiddleware はリクエストのJSON構造化ログを出力するミドルウェアを返す。
// ログにはmethod、path、status、duration_ms、user_id（認証済みの場合）を含む。
// ステータスコードに応じてログレベルを変える（5xx: Error、4xx: Warn）。
func NewLoggingMiddleware(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rec := &statusRecorder{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			entry := &logEntry{}
			r = r.WithContext(context.WithValue(r.Context(), logEntryContextKey, entry))

			next.ServeHTTP(rec, r)

			durationMs := float64(time.Since(start).Nanoseconds()) / float64(time.Millisecond)

			args := []any{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.statusCode),
				slog.Float64("duration_ms", durationMs),
			}
			userID := entry.getUserID()
			if userID == "" {
				// このミドルウェアより外側で認証済みの場合のフォールバック
				if id, err := UserIDFromContext(r.Context()); err == nil {
					userID = id
				}
			}
			if userID != "" {
				args = append(args, slog.String("user_id", userID))
			}

			level := slog.LevelInfo
			if rec.statusCode >= 500 {
				level = slog.LevelError
			} else if rec.statusCode >= 400 {
				level = slog.LevelWarn
			}

			logger.Log(r.Context(), level, "http_request", args...)
		})
	}
}
