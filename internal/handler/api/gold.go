package api

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"

	"CoinPull/internal/domain/models"
	drepo "CoinPull/internal/domain/repository"
	"CoinPull/internal/service/metrics"
	"CoinPull/internal/service/ratelimit"
	"CoinPull/internal/usecase"
	xhttp "CoinPull/pkg/http"
	applogger "CoinPull/pkg/logger"
	"CoinPull/pkg/util"

	"github.com/labstack/echo/v4"
)

// PipelineRunner triggers a full pipeline run.
type PipelineRunner interface {
	RunAll(ctx context.Context, fetch bool, coins []string) (usecase.RunReport, error)
}

// HealthChecker reports whether a dependency is reachable.
type HealthChecker func(ctx context.Context) error

// GoldHandler serves the published Gold table and the manual run trigger.
type GoldHandler struct {
	gold    drepo.GoldReader
	runner  PipelineRunner
	limiter *ratelimit.Limiter
	checks  map[string]HealthChecker
	l       *applogger.Logger
}

func NewGoldHandler(gold drepo.GoldReader, runner PipelineRunner, limiter *ratelimit.Limiter, l *applogger.Logger) *GoldHandler {
	metrics.Register()
	if l == nil {
		l = applogger.Nop()
	}
	return &GoldHandler{gold: gold, runner: runner, limiter: limiter, checks: make(map[string]HealthChecker), l: l}
}

// AddHealthCheck registers a dependency checked by /healthz.
func (h *GoldHandler) AddHealthCheck(name string, check HealthChecker) {
	h.checks[name] = check
}

func (h *GoldHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/gold", h.List)
	g.GET("/gold/latest", h.Latest)
	g.POST("/pipeline/run", h.Run)
	e.GET("/healthz", h.Health)
}

// List returns Gold rows newest first, filtered by coin and time range.
func (h *GoldHandler) List(c echo.Context) error {
	req := &models.GoldQueryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	filter := models.GoldFilter{AssetID: req.CoinID, Limit: req.Limit}
	var ok bool
	if req.From != "" {
		if filter.From, ok = util.ParseTime(req.From); !ok {
			return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("invalid from: %q", req.From))
		}
	}
	if req.To != "" {
		if filter.To, ok = util.ParseTime(req.To); !ok {
			return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("invalid to: %q", req.To))
		}
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.To.Before(filter.From) {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("to must not precede from"))
	}

	rows, err := h.gold.ReadGold(c.Request().Context())
	if err != nil {
		h.l.Error("gold read failed", applogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.ServiceUnavailableError("gold table unavailable").WithError(err))
	}
	models.SortPresentation(rows)
	out := filter.Apply(rows)
	metrics.GoldReadRows.WithLabelValues("list").Observe(float64(len(out)))
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	return xhttp.ListResponse(c, views(out), int64(len(out)))
}

// Latest returns the newest row per asset.
func (h *GoldHandler) Latest(c echo.Context) error {
	rows, err := h.gold.ReadGold(c.Request().Context())
	if err != nil {
		h.l.Error("gold read failed", applogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.ServiceUnavailableError("gold table unavailable").WithError(err))
	}
	out := models.Latest(rows)
	metrics.GoldReadRows.WithLabelValues("latest").Observe(float64(len(out)))
	return xhttp.ListResponse(c, views(out), int64(len(out)))
}

// Run triggers a pipeline run, limited per client address.
func (h *GoldHandler) Run(c echo.Context) error {
	key := c.RealIP()
	if !h.limiter.Allow(key) {
		wait := h.limiter.RetryAfter(key)
		c.Response().Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
		metrics.PipelineTriggers.WithLabelValues("rate_limited").Inc()
		h.l.Warn("pipeline trigger rate limited", applogger.String("remote", key))
		return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("too many pipeline runs").WithParam("retry_after_seconds", math.Ceil(wait.Seconds())))
	}

	req := &models.PipelineRunRequest{}
	if err := new(echo.DefaultBinder).BindQueryParams(c, req); err != nil {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("invalid query"))
	}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	rep, err := h.runner.RunAll(c.Request().Context(), req.Fetch, req.Coins)
	if err != nil {
		metrics.PipelineTriggers.WithLabelValues("error").Inc()
		h.l.Error("pipeline trigger failed", applogger.String("run_id", rep.RunID), applogger.Error(err))
		switch {
		case errors.Is(err, models.ErrLeaseUnavailable):
			return xhttp.AppErrorResponse(c, xhttp.ConflictError("another run holds the series lease").WithParam("run_id", rep.RunID))
		case errors.Is(err, models.ErrNoSeries):
			return xhttp.AppErrorResponse(c, xhttp.NotFoundError("no observations to analyze").WithParam("run_id", rep.RunID))
		case !models.IsRetryable(err):
			return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()).WithParam("run_id", rep.RunID))
		}
		return xhttp.AppErrorResponse(c, xhttp.ServiceUnavailableError("pipeline run failed").WithParam("run_id", rep.RunID))
	}
	metrics.PipelineTriggers.WithLabelValues("ok").Inc()
	return xhttp.SuccessResponse(c, rep)
}

// Health checks registered dependencies.
func (h *GoldHandler) Health(c echo.Context) error {
	status := map[string]string{}
	healthy := true
	for name, check := range h.checks {
		if err := check(c.Request().Context()); err != nil {
			status[name] = err.Error()
			healthy = false
			continue
		}
		status[name] = "ok"
	}
	if !healthy {
		return xhttp.DataResponse(c, http.StatusServiceUnavailable, status)
	}
	return xhttp.SuccessResponse(c, status)
}

func views(rows []models.AnalyticRow) []models.GoldRowView {
	out := make([]models.GoldRowView, len(rows))
	for i, r := range rows {
		out[i] = models.NewGoldRowView(r)
	}
	return out
}
