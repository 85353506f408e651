package middleware

import (
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// responseRecorder はステータスコードと書き込んだバイト数を記録する。
type responseRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (rr *responseRecorder) WriteHeader(code int) {
	if rr.status == 0 {
		rr.status = code
	}
	rr.ResponseWriter.WriteHeader(code)
}

func (rr *responseRecorder) Write(b []byte) (int, error) {
	if rr.status == 0 {
		rr.status = http.StatusOK
	}
	n, err := rr.ResponseWriter.Write(b)
	rr.bytes += n
	return n, err
}

// Unwrap はhttp.ResponseControllerから元のResponseWriterを参照するために使われる。
func (rr *responseRecorder) Unwrap() http.ResponseWriter {
	return rr.ResponseWriter
}

// statusCode は何も書き込まれなかった場合に200を返す。
func (rr *responseRecorder) statusCode() int {
	if rr.status == 0 {
		return http.StatusOK
	}
	return rr.status
}

// HTTPMetricsRecorder はレスポンスのステータスと処理時間を記録するインターフェース。
type HTTPMetricsRecorder interface {
	RecordHTTPStatus(statusCode int)
	RecordHTTPLatency(duration time.Duration)
}

// NewLoggingMiddleware はリクエストのJSON構造化ログを出力するミドルウェアを返す。
// ログにはmethod、path、status、bytes、duration_ms、user_id（認証済みの場合）、
// redirect（リダイレクトの場合の遷移先パス）を含む。クエリはトークンを含みうるため出力しない。
// metricsがnilでなければステータスと処理時間も記録する。
func NewLoggingMiddleware(logger *slog.Logger, metrics HTTPMetricsRecorder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &responseRecorder{ResponseWriter: w}

			// セッションはハンドラーの内側で注入されるため、ポインタ越しに受け取る
			holder := &sessionHolder{}
			next.ServeHTTP(rec, r.WithContext(withSessionHolder(r.Context(), holder)))

			duration := time.Since(start)
			status := rec.statusCode()
			if metrics != nil {
				metrics.RecordHTTPStatus(status)
				metrics.RecordHTTPLatency(duration)
			}

			args := []any{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", status),
				slog.Int("bytes", rec.bytes),
				slog.Float64("duration_ms", float64(duration.Nanoseconds())/float64(time.Millisecond)),
			}
			if holder.userID != "" {
				args = append(args, slog.String("user_id", holder.userID))
			}
			if status >= 300 && status < 400 {
				args = append(args, slog.String("redirect", redirectTarget(rec.Header().Get("Location"))))
			}

			level := slog.LevelInfo
			if status >= 500 {
				level = slog.LevelError
			} else if status >= 400 {
				level = slog.LevelWarn
			}
			logger.Log(r.Context(), level, "http_request", args...)
		})
	}
}

// redirectTarget はLocationヘッダーからクエリとフラグメントを除いた遷移先を返す。
func redirectTarget(location string) string {
	u, err := url.Parse(location)
	if err != nil {
		return ""
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}
