package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

const healthTimeout = 3 * time.Second

// Pinger はデータベースの疎通確認を行うインターフェース。*sql.DBが実装する。
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Health はGET /healthを処理する。pingerがnilの場合は常にokを返す。
func Health(pinger Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if pinger != nil {
			ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
			defer cancel()
			if err := pinger.PingContext(ctx); err != nil {
				slog.Error("health check failed", slog.String("error", err.Error()))
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
