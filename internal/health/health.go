// Package health отдаёт состояние сервиса для probe-запросов.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Status — состояние компонента.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

const defaultCheckTimeout = 2 * time.Second

// Check — результат проверки одного компонента.
type Check struct {
	Name       string `json:"name"`
	Status     Status `json:"status"`
	Critical   bool   `json:"critical"`
	Message    string `json:"message,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// Report — тело ответа /healthz.
type Report struct {
	Status        Status           `json:"status"`
	Timestamp     time.Time        `json:"timestamp"`
	Checks        map[string]Check `json:"checks,omitempty"`
	Version       string           `json:"version,omitempty"`
	UptimeSeconds int64            `json:"uptime_seconds"`
}

// Checker проверяет один компонент. Реализация должна уважать ctx.
type Checker interface {
	Check(ctx context.Context) Check
}

type registration struct {
	checker  Checker
	critical bool
}

// Handler собирает проверки и отдаёт отчёт.
type Handler struct {
	mu        sync.RWMutex
	checkers  map[string]registration
	version   string
	startTime time.Time
	timeout   time.Duration
	now       func() time.Time
}

// NewHandler создаёт handler с версией сборки в отчёте.
func NewHandler(version string) *Handler {
	return &Handler{
		checkers:  make(map[string]registration),
		version:   version,
		startTime: time.Now(),
		timeout:   defaultCheckTimeout,
		now:       time.Now,
	}
}

// SetTimeout задаёт общий таймаут на выполнение всех проверок.
func (h *Handler) SetTimeout(timeout time.Duration) {
	if timeout <= 0 {
		return
	}
	h.mu.Lock()
	h.timeout = timeout
	h.mu.Unlock()
}

// RegisterChecker регистрирует критичную проверку: её падение делает сервис неготовым.
func (h *Handler) RegisterChecker(name string, checker Checker) {
	h.register(name, checker, true)
}

// RegisterOptional регистрирует некритичную проверку: её падение даёт degraded.
func (h *Handler) RegisterOptional(name string, checker Checker) {
	h.register(name, checker, false)
}

func (h *Handler) register(name string, checker Checker, critical bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checkers[name] = registration{checker: checker, critical: critical}
}

// Run выполняет все проверки параллельно и сводит их в отчёт.
func (h *Handler) Run(ctx context.Context) Report {
	h.mu.RLock()
	regs := make(map[string]registration, len(h.checkers))
	for name, reg := range h.checkers {
		regs[name] = reg
	}
	timeout := h.timeout
	h.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		checks = make(map[string]Check, len(regs))
	)
	for name, reg := range regs {
		wg.Add(1)
		go func(name string, reg registration) {
			defer wg.Done()
			check := reg.checker.Check(ctx)
			check.Name = name
			check.Critical = reg.critical
			mu.Lock()
			checks[name] = check
			mu.Unlock()
		}(name, reg)
	}
	wg.Wait()

	overall := StatusHealthy
	for _, check := range checks {
		switch {
		case check.Status == StatusHealthy:
		case check.Critical:
			overall = StatusUnhealthy
		case overall == StatusHealthy:
			overall = StatusDegraded
		}
	}

	return Report{
		Status:        overall,
		Timestamp:     h.now().UTC(),
		Checks:        checks,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
	}
}

// ServeHTTP отдаёт JSON-отчёт; 503, если упала критичная проверка.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	report := h.Run(r.Context())

	statusCode := http.StatusOK
	if report.Status == StatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(report)
}

// LivenessHandler отвечает 200, пока процесс жив.
func LivenessHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// ReadinessHandler отвечает 503, пока не проходят критичные проверки.
func (h *Handler) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	if h.Run(r.Context()).Status == StatusUnhealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// FuncChecker оборачивает функцию проверки.
type FuncChecker func(ctx context.Context) error

// Check выполняет функцию и замеряет время.
func (f FuncChecker) Check(ctx context.Context) Check {
	start := time.Now()
	err := f(ctx)
	check := Check{Status: StatusHealthy, DurationMs: time.Since(start).Milliseconds()}
	if err != nil {
		check.Status = StatusUnhealthy
		check.Message = err.Error()
	}
	return check
}

// Pinger — зависимость, которую можно проверить пингом (например, *postgres.Store).
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingChecker проверяет зависимость через Ping.
func PingChecker(p Pinger) Checker {
	return FuncChecker(p.Ping)
}
