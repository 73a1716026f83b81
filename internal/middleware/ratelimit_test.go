package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/hitoshi/luny/internal/model"
	"golang.org/x/time/rate"
)

func testLimiterConfig(generalBurst, settingsBurst int) RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:     1,
		GeneralBurst:    generalBurst,
		SettingsRate:    rate.Limit(0.5),
		SettingsBurst:   settingsBurst,
		CleanupInterval: time.Minute,
	}
}

// requestAs はゲート通過済みのユーザーとしてリクエストを生成する。
func requestAs(method, target, userID string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	ctx := ContextWithSession(req.Context(), &model.SessionUser{ID: userID}, "tok-"+userID)
	return req.WithContext(ctx)
}

func statusOK() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
}

func TestRateLimitMiddleware_AllowsRequestsWithinBurst(t *testing.T) {
	rl := NewRateLimiter(testLimiterConfig(5, 1))
	defer rl.Stop()
	handler := rl.GeneralMiddleware()(statusOK())

	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, requestAs(http.MethodGet, "/api/guilds", "u1"))
		if w.Code != http.StatusOK {
			t.Errorf("request %d: status = %d", i, w.Code)
		}
	}
}

// TestRateLimitMiddleware_Returns429WithRetryAfter はバースト超過で429とRetry-Afterが返ることを検証する。
func TestRateLimitMiddleware_Returns429WithRetryAfter(t *testing.T) {
	rl := NewRateLimiter(testLimiterConfig(1, 1))
	defer rl.Stop()
	handler := rl.GeneralMiddleware()(statusOK())

	handler.ServeHTTP(httptest.NewRecorder(), requestAs(http.MethodGet, "/api/guilds", "u1"))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestAs(http.MethodGet, "/api/guilds", "u1"))

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	sec, err := strconv.Atoi(w.Header().Get("Retry-After"))
	if err != nil || sec < 1 {
		t.Errorf("Retry-After = %q", w.Header().Get("Retry-After"))
	}
	var body ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	if body.Code != model.ErrCodeRateLimitExceeded {
		t.Errorf("code = %q", body.Code)
	}
}

func TestRateLimitMiddleware_IsolatesUsers(t *testing.T) {
	rl := NewRateLimiter(testLimiterConfig(1, 1))
	defer rl.Stop()
	handler := rl.GeneralMiddleware()(statusOK())

	handler.ServeHTTP(httptest.NewRecorder(), requestAs(http.MethodGet, "/", "u1"))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestAs(http.MethodGet, "/", "u2"))
	if w.Code != http.StatusOK {
		t.Errorf("other user status = %d, want 200", w.Code)
	}
	if rl.GeneralLimiterCount() != 2 {
		t.Errorf("GeneralLimiterCount() = %d, want 2", rl.GeneralLimiterCount())
	}
}

func TestRateLimitMiddleware_NoSession_Returns401(t *testing.T) {
	rl := NewRateLimiter(testLimiterConfig(1, 1))
	defer rl.Stop()

	w := httptest.NewRecorder()
	rl.GeneralMiddleware()(statusOK()).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

// TestSettingsWriteRateLimit_IndependentFromGeneral は設定更新の制限が全般の制限と独立であることを検証する。
func TestSettingsWriteRateLimit_IndependentFromGeneral(t *testing.T) {
	rl := NewRateLimiter(testLimiterConfig(1, 2))
	defer rl.Stop()
	general := rl.GeneralMiddleware()(statusOK())
	settings := rl.SettingsWriteMiddleware()(statusOK())

	general.ServeHTTP(httptest.NewRecorder(), requestAs(http.MethodGet, "/", "u1"))

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		settings.ServeHTTP(w, requestAs(http.MethodPut, "/", "u1"))
		if w.Code != http.StatusOK {
			t.Errorf("settings request %d: status = %d", i, w.Code)
		}
	}
	w := httptest.NewRecorder()
	settings.ServeHTTP(w, requestAs(http.MethodPut, "/", "u1"))
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("third settings request status = %d, want 429", w.Code)
	}
	if got := w.Header().Get("Retry-After"); got != "2" {
		t.Errorf("Retry-After = %q, want 2", got)
	}
	if rl.SettingsLimiterCount() != 1 {
		t.Errorf("SettingsLimiterCount() = %d", rl.SettingsLimiterCount())
	}
}

func TestRateLimiter_CleanupRemovesExpiredEntries(t *testing.T) {
	rl := NewRateLimiter(testLimiterConfig(5, 5))
	defer rl.Stop()

	rl.GeneralMiddleware()(statusOK()).ServeHTTP(httptest.NewRecorder(), requestAs(http.MethodGet, "/", "u1"))
	rl.SettingsWriteMiddleware()(statusOK()).ServeHTTP(httptest.NewRecorder(), requestAs(http.MethodPut, "/", "u1"))

	rl.cleanup(time.Now())
	if rl.GeneralLimiterCount() != 1 {
		t.Fatal("fresh entries must survive cleanup")
	}

	rl.cleanup(time.Now().Add(3 * time.Minute))
	if rl.GeneralLimiterCount() != 0 || rl.SettingsLimiterCount() != 0 {
		t.Errorf("counts = %d/%d, want 0/0", rl.GeneralLimiterCount(), rl.SettingsLimiterCount())
	}
}

func TestRateLimiter_StopIsIdempotent(t *testing.T) {
	rl := NewRateLimiter(testLimiterConfig(1, 1))
	rl.Stop()
	rl.Stop()
}

func TestPerMinuteRateLimiterConfig(t *testing.T) {
	cfg := PerMinuteRateLimiterConfig(120, 20)
	if cfg.GeneralRate != rate.Limit(2) || cfg.GeneralBurst != 120 {
		t.Errorf("general = %v/%d", cfg.GeneralRate, cfg.GeneralBurst)
	}
	if cfg.SettingsBurst != 20 {
		t.Errorf("SettingsBurst = %d", cfg.SettingsBurst)
	}
	if DefaultRateLimiterConfig() != cfg {
		t.Error("DefaultRateLimiterConfig should be 120/20 per minute")
	}
}

func TestRateLimitMiddleware_ConcurrentUsers(t *testing.T) {
	rl := NewRateLimiter(testLimiterConfig(100, 1))
	defer rl.Stop()
	handler := rl.GeneralMiddleware()(statusOK())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func(n int) {
			defer func() { done <- struct{}{} }()
			handler.ServeHTTP(httptest.NewRecorder(), requestAs(http.MethodGet, "/", strconv.Itoa(n%3)))
		}(i)
	}
	for i := 0; i < 10; i++ {
		select {
		case <-done:
		case <-ctx.Done():
			t.Fatal("timed out")
		}
	}
	if rl.GeneralLimiterCount() != 3 {
		t.Errorf("GeneralLimiterCount() = %d, want 3", rl.GeneralLimiterCount())
	}
}
