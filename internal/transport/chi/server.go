// Package chi is the HTTP transport: enforcement endpoints, administrative
// kill-switch and circuit controls, usage reports, health and metrics.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/spendgate/spendgate/internal/domain"
	killrepo "github.com/spendgate/spendgate/internal/repository/killswitch"
	breakeruc "github.com/spendgate/spendgate/internal/usecase/breaker"
	healthuc "github.com/spendgate/spendgate/internal/usecase/health"
	usageuc "github.com/spendgate/spendgate/internal/usecase/usage"
)

// Error codes for non-decision failures. Deny decisions reuse domain.Code.
const (
	codeBadRequest      = "BAD_REQUEST"
	codeUnauthorized    = "UNAUTHORIZED"
	codeInvalidProvider = "INVALID_PROVIDER"
	codeProviderError   = "PROVIDER_ERROR"
	codeInternalError   = "INTERNAL_ERROR"
)

// Guard runs the admission chain. See usecase/guard (ISP).
type Guard interface {
	Enforce(ctx context.Context, req domain.Request) (domain.Decision, error)
}

// UsageReporter builds per-org spend reports. See usecase/usage (ISP).
type UsageReporter interface {
	Report(ctx context.Context, orgID string) (usageuc.Report, error)
}

// KillSwitchAdmin is the administrative kill-switch surface. See
// usecase/killswitch (ISP).
type KillSwitchAdmin interface {
	Activate(ctx context.Context, scope, reason string)
	Reset(ctx context.Context, scope string)
	Flag(scope string) (killrepo.Flag, bool)
}

// CircuitRunner executes calls through per-target circuits and exposes the
// administrative surface. See usecase/breaker (ISP).
type CircuitRunner interface {
	Execute(ctx context.Context, target string, op func(context.Context) error, fallback func(error) error) error
	Snapshots() []breakeruc.Snapshot
	Reset(target string)
}

// HealthChecker aggregates component health. See usecase/health (ISP).
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server wires the enforcement services to HTTP handlers.
type Server struct {
	guard         Guard
	usage         UsageReporter
	kill          KillSwitchAdmin
	circuits      CircuitRunner
	callers       map[domain.Provider]domain.AgentCaller
	health        HealthChecker
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	guard Guard,
	usage UsageReporter,
	kill KillSwitchAdmin,
	circuits CircuitRunner,
	callers map[domain.Provider]domain.AgentCaller,
	health HealthChecker,
	logger *zap.Logger,
) *Server {
	s := &Server{
		guard:    guard,
		usage:    usage,
		kill:     kill,
		circuits: circuits,
		callers:  callers,
		health:   health,
		logger:   logger,
	}
	s.errorHandlers = []errorHandler{
		circuitOpenHandler,
		sentinelHandler(domain.ErrMissingOrg, http.StatusBadRequest, codeBadRequest),
		sentinelHandler(domain.ErrInvalidProvider, http.StatusBadRequest, codeInvalidProvider),
		sentinelHandler(domain.ErrStorageUnavailable,
			http.StatusServiceUnavailable, string(domain.CodeStorageUnavailable)),
		sentinelHandler(domain.ErrKillSwitchActive,
			http.StatusPaymentRequired, string(domain.CodeKillSwitchActive)),
		sentinelHandler(domain.ErrBudgetExceeded,
			http.StatusPaymentRequired, string(domain.CodeBudgetExceeded)),
		sentinelHandler(domain.ErrRateLimited,
			http.StatusTooManyRequests, string(domain.CodeRateLimited)),
		sentinelHandler(domain.ErrProviderError, http.StatusBadGateway, codeProviderError),
	}
	return s
}

// Routes mounts all handlers on r.
func (s *Server) Routes(r chi.Router) {
	r.Post("/v1/invoke", s.Invoke)
	r.Post("/v1/enforce", s.Enforce)
	r.Get("/v1/orgs/{orgID}/usage", s.GetUsage)
	r.Post("/v1/orgs/{orgID}/killswitch", s.ActivateKillSwitch)
	r.Delete("/v1/orgs/{orgID}/killswitch", s.ResetKillSwitch)
	r.Get("/v1/circuits", s.ListCircuits)
	r.Post("/v1/circuits/{target}/reset", s.ResetCircuit)
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
}

type enforceRequest struct {
	OrgID    string `json:"org_id"`
	AgentKey string `json:"agent_key"`
	Provider string `json:"provider,omitempty"`
	Tokens   int    `json:"tokens,omitempty"`
}

type invokeRequest struct {
	enforceRequest
	Input     string `json:"input"`
	MaxTokens int    `json:"max_tokens,omitempty"`
}

type decisionResponse struct {
	Allowed         bool    `json:"allowed"`
	EstCostEUR      float64 `json:"est_cost_eur"`
	Pct             float64 `json:"pct"`
	DailySpendEUR   float64 `json:"daily_spend_eur"`
	MonthlySpendEUR float64 `json:"monthly_spend_eur"`
	Status          string  `json:"status"`
}

type invokeResponse struct {
	Output   string           `json:"output"`
	Usage    usagePayload     `json:"usage"`
	Decision decisionResponse `json:"decision"`
}

type usagePayload struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Enforce handles POST /v1/enforce: admission decision without a downstream
// call.
func (s *Server) Enforce(w http.ResponseWriter, r *http.Request) {
	var req enforceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	d, err := s.enforce(w, r, req)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	if !d.Allowed {
		writeDeny(w, d)
		return
	}

	writeJSON(w, http.StatusOK, decisionFromDomain(d))
}

// Invoke handles POST /v1/invoke: admission chain, then the provider call
// through the circuit breaker.
func (s *Server) Invoke(w http.ResponseWriter, r *http.Request) {
	var req invokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Input == "" {
		writeError(w, http.StatusBadRequest, codeBadRequest, "input is required")
		return
	}

	d, err := s.enforce(w, r, req.enforceRequest)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	if !d.Allowed {
		writeDeny(w, d)
		return
	}

	provider := d.Estimate.Provider()
	caller, ok := s.callers[provider]
	if !ok {
		writeError(w, http.StatusBadRequest, codeInvalidProvider,
			fmt.Sprintf("no caller configured for provider %q", provider))
		return
	}

	var completion domain.Completion
	err = s.circuits.Execute(r.Context(), string(provider), func(ctx context.Context) error {
		var callErr error
		completion, callErr = caller.Invoke(ctx, domain.Invocation{
			AgentKey:  req.AgentKey,
			Input:     req.Input,
			MaxTokens: req.MaxTokens,
		})
		return callErr
	}, nil)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, invokeResponse{
		Output: completion.Output,
		Usage: usagePayload{
			PromptTokens:     completion.PromptTokens,
			CompletionTokens: completion.CompletionTokens,
			TotalTokens:      completion.TotalTokens,
		},
		Decision: decisionFromDomain(d),
	})
}

// enforce runs the guard and sets the budget headers shared by every
// enforcement response, allow or deny.
func (s *Server) enforce(w http.ResponseWriter, r *http.Request, req enforceRequest) (domain.Decision, error) {
	orgID := req.OrgID
	if orgID == "" {
		orgID = r.Header.Get("X-Org-ID")
	}

	d, err := s.guard.Enforce(r.Context(), domain.Request{
		OrgID:    orgID,
		AgentKey: req.AgentKey,
		Provider: domain.Provider(req.Provider),
		Tokens:   req.Tokens,
	})
	if err != nil {
		return domain.Decision{}, err
	}

	setBudgetHeaders(w, d)
	return d, nil
}

// GetUsage handles GET /v1/orgs/{orgID}/usage.
func (s *Server) GetUsage(w http.ResponseWriter, r *http.Request) {
	if p := r.URL.Query().Get("period"); p != "" && p != "day" && p != "month" {
		writeError(w, http.StatusBadRequest, codeBadRequest, "period must be day or month")
		return
	}

	report, err := s.usage.Report(r.Context(), chi.URLParam(r, "orgID"))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, report)
}

type killSwitchRequest struct {
	Reason string `json:"reason"`
}

type killSwitchResponse struct {
	Scope       string    `json:"scope"`
	Reason      string    `json:"reason"`
	ActivatedAt time.Time `json:"activated_at"`
}

// ActivateKillSwitch handles POST /v1/orgs/{orgID}/killswitch.
func (s *Server) ActivateKillSwitch(w http.ResponseWriter, r *http.Request) {
	var req killSwitchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Reason == "" {
		writeError(w, http.StatusBadRequest, codeBadRequest, "reason is required")
		return
	}

	scope := chi.URLParam(r, "orgID")
	s.kill.Activate(r.Context(), scope, req.Reason)

	f, _ := s.kill.Flag(scope)
	writeJSON(w, http.StatusOK, killSwitchResponse{
		Scope:       f.Scope,
		Reason:      f.Reason,
		ActivatedAt: f.ActivatedAt,
	})
}

// ResetKillSwitch handles DELETE /v1/orgs/{orgID}/killswitch.
func (s *Server) ResetKillSwitch(w http.ResponseWriter, r *http.Request) {
	s.kill.Reset(r.Context(), chi.URLParam(r, "orgID"))
	w.WriteHeader(http.StatusNoContent)
}

type circuitResponse struct {
	Target       string     `json:"target"`
	State        string     `json:"state"`
	FailureCount int        `json:"failure_count"`
	NextRetryAt  *time.Time `json:"next_retry_at,omitempty"`
}

// ListCircuits handles GET /v1/circuits.
func (s *Server) ListCircuits(w http.ResponseWriter, r *http.Request) {
	snaps := s.circuits.Snapshots()

	items := make([]circuitResponse, len(snaps))
	for i, snap := range snaps {
		items[i] = circuitResponse{
			Target:       snap.Target,
			State:        snap.State.String(),
			FailureCount: snap.FailureCount,
		}
		if !snap.NextRetryAt.IsZero() {
			t := snap.NextRetryAt
			items[i].NextRetryAt = &t
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// ResetCircuit handles POST /v1/circuits/{target}/reset.
func (s *Server) ResetCircuit(w http.ResponseWriter, r *http.Request) {
	s.circuits.Reset(chi.URLParam(r, "target"))
	w.WriteHeader(http.StatusNoContent)
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, map[string]any{
		"status": report.Status,
		"checks": report.Checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func decisionFromDomain(d domain.Decision) decisionResponse {
	return decisionResponse{
		Allowed:         d.Allowed,
		EstCostEUR:      d.Estimate.AmountEUR(),
		Pct:             d.Pct,
		DailySpendEUR:   d.DailySpend,
		MonthlySpendEUR: d.MonthSpend,
		Status:          string(d.Status),
	}
}

func setBudgetHeaders(w http.ResponseWriter, d domain.Decision) {
	w.Header().Set("X-Est-Cost-EUR", d.Estimate.AmountString())
	w.Header().Set("X-Budget-Pct", strconv.FormatFloat(d.Pct, 'f', 1, 64))
	w.Header().Set("X-Budget-Daily", strconv.FormatFloat(d.DailySpend, 'f', 4, 64))
	w.Header().Set("X-Budget-Monthly", strconv.FormatFloat(d.MonthSpend, 'f', 4, 64))
	w.Header().Set("X-Budget-Status", string(d.Status))
	if d.Code == domain.CodeKillSwitchActive {
		w.Header().Set("X-Kill-Switch", "active")
	} else {
		w.Header().Set("X-Kill-Switch", "inactive")
	}
}

// writeDeny maps a deny decision to its HTTP status with the shared payload
// shape.
func writeDeny(w http.ResponseWriter, d domain.Decision) {
	status := http.StatusPaymentRequired
	switch d.Code {
	case domain.CodeRateLimited:
		status = http.StatusTooManyRequests
	case domain.CodeCircuitOpen, domain.CodeStorageUnavailable:
		status = http.StatusServiceUnavailable
	}

	details := map[string]any{"pct": d.Pct}
	if d.RetryAfter > 0 {
		details["retry_after_ms"] = d.RetryAfter.Milliseconds()
		w.Header().Set("Retry-After", strconv.Itoa(int(d.RetryAfter.Seconds())+1))
	}

	writeJSON(w, status, map[string]any{
		"code":    d.Code,
		"message": denyMessage(d.Code),
		"details": details,
	})
}

func denyMessage(code domain.Code) string {
	switch code {
	case domain.CodeBudgetExceeded:
		return domain.ErrBudgetExceeded.Error()
	case domain.CodeKillSwitchActive:
		return domain.ErrKillSwitchActive.Error()
	case domain.CodeRateLimited:
		return domain.ErrRateLimited.Error()
	case domain.CodeCircuitOpen:
		return domain.ErrCircuitOpen.Error()
	case domain.CodeStorageUnavailable:
		return domain.ErrStorageUnavailable.Error()
	default:
		return "request denied"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"code":    code,
		"message": message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrMissingOrg,
		domain.ErrInvalidProvider,
		domain.ErrBudgetExceeded,
		domain.ErrKillSwitchActive,
		domain.ErrRateLimited,
		domain.ErrCircuitOpen,
		domain.ErrStorageUnavailable,
		domain.ErrProviderError,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

// circuitOpenHandler handles breaker rejections with a Retry-After header.
func circuitOpenHandler(w http.ResponseWriter, err error, msg string) bool {
	if !errors.Is(err, domain.ErrCircuitOpen) {
		return false
	}
	var openErr *breakeruc.OpenError
	if errors.As(err, &openErr) && openErr.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(openErr.RetryAfter.Seconds())+1))
	}
	writeError(w, http.StatusServiceUnavailable, string(domain.CodeCircuitOpen), msg)
	return true
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}
