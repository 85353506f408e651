package middleware

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/uniconnect/internal/model"
)

// RateLimiterConfig はレート制限の設定を保持する。
type RateLimiterConfig struct {
	GeneralRate       rate.Limit    // API全般のレート（req/sec）
	GeneralBurst      int           // API全般のバーストサイズ
	ProfileWriteRate  rate.Limit    // プロフィール更新・アバターアップロードのレート（req/sec）
	ProfileWriteBurst int           // プロフィール更新のバーストサイズ
	CleanupInterval   time.Duration // 期限切れエントリのクリーンアップ間隔
}

// DefaultRateLimiterConfig はデフォルトのレート制限設定を返す。
// API全般 120 req/min/user、プロフィール更新 20 req/min/user。
func DefaultRateLimiterConfig() RateLimiterConfig {
	return NewRateLimiterConfig(120, 20)
}

// NewRateLimiterConfig は1分あたりのリクエスト数からレート制限設定を生成する。
func NewRateLimiterConfig(generalPerMinute, profileWritePerMinute int) RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:       rate.Limit(float64(generalPerMinute) / 60.0),
		GeneralBurst:      generalPerMinute,
		ProfileWriteRate:  rate.Limit(float64(profileWritePerMinute) / 60.0),
		ProfileWriteBurst: profileWritePerMinute,
		CleanupInterval:   5 * time.Minute,
	}
}

// userLimiter はユーザーごとのレートリミッターとアクセス時刻を保持する。
type userLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// limiterSet はユーザーIDごとのリミッターの集合。
type limiterSet struct {
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*userLimiter
}

func newLimiterSet(limit rate.Limit, burst int) *limiterSet {
	return &limiterSet{
		limit:    limit,
		burst:    burst,
		limiters: make(map[string]*userLimiter),
	}
}

// get はユーザーのリミッターを取得または作成し、最終アクセス時刻を更新する。
func (s *limiterSet) get(userID string, now time.Time) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	ul, ok := s.limiters[userID]
	if !ok {
		ul = &userLimiter{limiter: rate.NewLimiter(s.limit, s.burst)}
		s.limiters[userID] = ul
	}
	ul.lastAccess = now
	return ul.limiter
}

// evict は最終アクセスからttlを超えたエントリを削除する。
func (s *limiterSet) evict(now time.Time, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for userID, ul := range s.limiters {
		if now.Sub(ul.lastAccess) > ttl {
			delete(s.limiters, userID)
		}
	}
}

func (s *limiterSet) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.limiters)
}

// RateLimiter はユーザーごとのレート制限を管理する。
// API全般とプロフィール更新の2種類を独立に制限する。
type RateLimiter struct {
	config       RateLimiterConfig
	general      *limiterSet
	profileWrite *limiterSet

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewRateLimiter は新しいRateLimiterを生成する。
// バックグラウンドで期限切れエントリのクリーンアップを開始する。
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	rl := &RateLimiter{
		config:       config,
		general:      newLimiterSet(config.GeneralRate, config.GeneralBurst),
		profileWrite: newLimiterSet(config.ProfileWriteRate, config.ProfileWriteBurst),
		stopCh:       make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。複数回呼び出してもよい。
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// GeneralMiddleware はAPI全般のレート制限ミドルウェアを返す。
// SessionMiddlewareの後に配置する。
func (rl *RateLimiter) GeneralMiddleware() func(next http.Handler) http.Handler {
	return rl.middleware(rl.general, "general")
}

// ProfileWriteMiddleware はプロフィール更新専用のレート制限ミドルウェアを返す。
// API全般のレート制限とは独立に動作する。
func (rl *RateLimiter) ProfileWriteMiddleware() func(next http.Handler) http.Handler {
	return rl.middleware(rl.profileWrite, "profile_write")
}

func (rl *RateLimiter) middleware(set *limiterSet, limitType string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := UserIDFromContext(r.Context())
			if err != nil {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			if !set.get(userID, time.Now()).Allow() {
				writeRateLimitResponse(w, set.limit)
				slog.Warn("rate limit exceeded",
					slog.String("user_id", userID),
					slog.String("limit_type", limitType),
				)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// GeneralLimiterCount は現在管理されているAPI全般リミッターのエントリ数を返す。
func (rl *RateLimiter) GeneralLimiterCount() int {
	return rl.general.len()
}

// ProfileWriteLimiterCount は現在管理されているプロフィール更新リミッターのエントリ数を返す。
func (rl *RateLimiter) ProfileWriteLimiterCount() int {
	return rl.profileWrite.len()
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup(time.Now())
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup は最終アクセス時刻がCleanupIntervalの2倍を超えたエントリを削除する。
func (rl *RateLimiter) cleanup(now time.Time) {
	ttl := rl.config.CleanupInterval * 2
	rl.general.evict(now, ttl)
	rl.profileWrite.evict(now, ttl)
}

// writeRateLimitResponse は429 Too Many Requestsレスポンスを書き込む。
// Retry-Afterヘッダーにはトークンが1つ補充されるまでの推定秒数を設定する。
func writeRateLimitResponse(w http.ResponseWriter, r rate.Limit) {
	retryAfterSec := 1
	if r > 0 {
		retryAfterSec = int(math.Ceil(1.0 / float64(r)))
	}
	if retryAfterSec < 1 {
		retryAfterSec = 1
	}

	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))
	WriteErrorResponse(w, http.StatusTooManyRequests, &model.APIError{
		Code:     "RATE_LIMIT_EXCEEDED",
		Message:  "Demasiadas solicitudes.",
		Category: "system",
		Action:   "Espera unos segundos e inténtalo de nuevo.",
	})
}
