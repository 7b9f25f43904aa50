package api

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/p-blackswan/chatkeeper/internal/commands"
	"github.com/p-blackswan/chatkeeper/internal/dispatcher"
	cerrors "github.com/p-blackswan/chatkeeper/internal/errors"
	"github.com/p-blackswan/chatkeeper/internal/filter"
	"github.com/p-blackswan/chatkeeper/internal/health"
	"github.com/p-blackswan/chatkeeper/internal/metrics"
	"github.com/p-blackswan/chatkeeper/internal/store"
	"github.com/p-blackswan/chatkeeper/internal/strikes"
	"github.com/p-blackswan/chatkeeper/internal/users"
)

const apiActor = "api"

// Deps are the components the handlers operate on. Store and Checker may be
// nil.
type Deps struct {
	Directory  *users.Directory
	Router     *commands.Router
	Classifier *filter.Classifier
	Ledger     *strikes.Ledger
	Dispatcher *dispatcher.Dispatcher
	Store      *store.Store
	Checker    *health.Checker
	Metrics    *metrics.Metrics

	// Now defaults to time.Now.
	Now func() time.Time
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	dir        *users.Directory
	router     *commands.Router
	classifier *filter.Classifier
	ledger     *strikes.Ledger
	dispatcher *dispatcher.Dispatcher
	store      *store.Store
	checker    *health.Checker
	metrics    *metrics.Metrics
	now        func() time.Time
	logger     zerolog.Logger
	startTime  time.Time
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(deps Deps, logger zerolog.Logger) *Handlers {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Handlers{
		dir:        deps.Directory,
		router:     deps.Router,
		classifier: deps.Classifier,
		ledger:     deps.Ledger,
		dispatcher: deps.Dispatcher,
		store:      deps.Store,
		checker:    deps.Checker,
		metrics:    deps.Metrics,
		now:        now,
		logger:     logger.With().Str("component", "handlers").Logger(),
		startTime:  now(),
	}
}

// Liveness handles GET /healthz.
func (h *Handlers) Liveness(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// Readiness handles GET /readyz.
func (h *Handlers) Readiness(c *fiber.Ctx) error {
	if h.checker == nil {
		return c.JSON(health.Report{Status: "ready", Checks: map[string]health.Status{}})
	}
	report, ready := h.checker.Ready(c.UserContext())
	if !ready {
		return c.Status(fiber.StatusServiceUnavailable).JSON(report)
	}
	return c.JSON(report)
}

// HealthDetail handles GET /api/v1/health.
func (h *Handlers) HealthDetail(c *fiber.Ctx) error {
	resp := HealthDetailResponse{
		Status:   "ok",
		Uptime:   h.now().Sub(h.startTime).Truncate(time.Second).String(),
		Checks:   map[string]string{},
		Users:    h.dir.Len(),
		Commands: h.router.Table().Len(),
	}
	if h.checker != nil {
		for name, s := range h.checker.RunAll(c.UserContext()) {
			resp.Checks[name] = string(s)
			if s != health.StatusOK {
				resp.Status = string(health.StatusDegraded)
			}
		}
	}
	if h.store != nil {
		if size, err := h.store.DBSizeBytes(); err == nil {
			resp.DBSizeBytes = size
		}
	}
	return c.JSON(resp)
}

// ListPresent handles GET /api/v1/users.
func (h *Handlers) ListPresent(c *fiber.Ctx) error {
	present := h.dir.Present()
	if present == nil {
		present = []string{}
	}
	return c.JSON(UserListResponse{Users: present, Total: len(present)})
}

// GetUser handles GET /api/v1/users/:name.
func (h *Handlers) GetUser(c *fiber.Ctx) error {
	name := c.Params("name")
	info, err := h.dir.Info(name, h.now())
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(UserResponse{
		Name:          info.Name,
		CreatedAt:     info.CreatedAt,
		LastMessageAt: info.LastMessageAt,
		Present:       info.Present,
		ViewSeconds:   int64(info.ViewDuration / time.Second),
		Currency:      info.Currency,
		Strikes:       h.ledger.Strikes(name),
		Pardoned:      h.ledger.Pardoned(name),
	})
}

// GetRank handles GET /api/v1/users/:name/rank.
func (h *Handlers) GetRank(c *fiber.Ctx) error {
	metric, err := users.ParseMetric(c.Query("metric"))
	if err != nil {
		return errorResponse(c, err)
	}
	name := c.Params("name")
	rank, err := h.dir.Rank(name, metric, h.now())
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(RankResponse{User: name, Metric: metric.String(), Rank: rank})
}

// AdjustCurrency handles POST /api/v1/users/:name/currency.
func (h *Handlers) AdjustCurrency(c *fiber.Ctx) error {
	var req CurrencyRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c, err)
	}
	name := c.Params("name")
	balance, err := h.dir.AdjustCurrency(name, req.Delta)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(CurrencyResponse{User: name, Currency: balance})
}

// ListTop handles GET /api/v1/top.
func (h *Handlers) ListTop(c *fiber.Ctx) error {
	metric, err := users.ParseMetric(c.Query("metric"))
	if err != nil {
		return errorResponse(c, err)
	}
	n := c.QueryInt("n", 10)
	if n <= 0 || n > 100 {
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_argument", "Bad Request",
			"n must be between 1 and 100")
	}
	top := h.dir.Top(n, metric, h.now())
	if top == nil {
		top = []string{}
	}
	return c.JSON(UserListResponse{Users: top, Total: len(top)})
}

// ListActive handles GET /api/v1/active.
func (h *Handlers) ListActive(c *fiber.Ctx) error {
	minutes := c.QueryInt("minutes", 5)
	if minutes <= 0 {
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_argument", "Bad Request",
			"minutes must be positive")
	}
	active := h.dir.ActiveUsers(time.Duration(minutes)*time.Minute, h.now())
	if active == nil {
		active = []string{}
	}
	return c.JSON(UserListResponse{Users: active, Total: len(active)})
}

// ListCommands handles GET /api/v1/commands.
func (h *Handlers) ListCommands(c *fiber.Ctx) error {
	custom := h.router.Table().List()
	if custom == nil {
		custom = []commands.Definition{}
	}
	return c.JSON(CommandListResponse{Custom: custom, Builtin: h.router.Builtins()})
}

// CreateCommand handles POST /api/v1/commands.
func (h *Handlers) CreateCommand(c *fiber.Ctx) error {
	var req CommandRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c, err)
	}
	level, err := commands.ParseLevel(req.Level)
	if err != nil {
		return errorResponse(c, err)
	}
	def := commands.Definition{
		Name:            req.Name,
		Level:           level,
		Content:         req.Content,
		CooldownSeconds: req.CooldownSeconds,
		PointCost:       req.PointCost,
	}
	if err := h.router.Table().Add(def); err != nil {
		return errorResponse(c, err)
	}
	created, _ := h.router.Table().Get(req.Name)
	return c.Status(fiber.StatusCreated).JSON(created)
}

// DeleteCommand handles DELETE /api/v1/commands/:name.
func (h *Handlers) DeleteCommand(c *fiber.Ctx) error {
	if err := h.router.Table().Delete(c.Params("name")); err != nil {
		return errorResponse(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Invoke handles POST /api/v1/invoke.
func (h *Handlers) Invoke(c *fiber.Ctx) error {
	var req InvokeRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c, err)
	}
	if req.User == "" || strings.TrimSpace(req.Line) == "" {
		return problemResponse(c, fiber.StatusBadRequest,
			"missing_field", "Bad Request",
			"user and line are required")
	}
	level, err := commands.ParseLevel(req.Level)
	if err != nil {
		return errorResponse(c, err)
	}
	if level > roleOf(c).ChatLevel() {
		return errorResponse(c, cerrors.ErrInsufficientPermission)
	}
	res := h.dispatcher.Invoke(req.User, level, req.Line, h.now())
	if res.Err != nil {
		return errorResponse(c, res.Err)
	}
	return c.JSON(InvokeResponse{Command: res.Command, Response: res.Response})
}

// GetBlacklist handles GET /api/v1/blacklist.
func (h *Handlers) GetBlacklist(c *fiber.Ctx) error {
	return c.JSON(BlacklistResponse{Words: h.classifier.Blacklist().Words()})
}

// AddBlacklist handles POST /api/v1/blacklist.
func (h *Handlers) AddBlacklist(c *fiber.Ctx) error {
	var req BlacklistRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c, err)
	}
	if err := h.classifier.Blacklist().Add(req.Word); err != nil {
		return errorResponse(c, err)
	}
	h.audit(c, store.ModAction{
		Action: store.ActionBlacklist,
		Reason: "added " + req.Word,
	})
	return c.Status(fiber.StatusCreated).JSON(BlacklistResponse{Words: h.classifier.Blacklist().Words()})
}

// DeleteBlacklist handles DELETE /api/v1/blacklist/:word.
func (h *Handlers) DeleteBlacklist(c *fiber.Ctx) error {
	word := c.Params("word")
	if !h.classifier.Blacklist().Remove(word) {
		return problemResponse(c, fiber.StatusNotFound,
			"word_not_found", "Not Found",
			"Word is not blacklisted: "+word)
	}
	h.audit(c, store.ModAction{
		Action: store.ActionBlacklist,
		Reason: "removed " + word,
	})
	return c.SendStatus(fiber.StatusNoContent)
}

// Pardon handles POST /api/v1/pardons/:name.
func (h *Handlers) Pardon(c *fiber.Ctx) error {
	name := c.Params("name")
	granted := h.ledger.Pardon(name)
	if granted {
		h.audit(c, store.ModAction{User: name, Action: store.ActionPardon})
	}
	return c.JSON(PardonResponse{User: name, Granted: granted})
}

// ResetStrikes handles DELETE /api/v1/users/:name/strikes.
func (h *Handlers) ResetStrikes(c *fiber.Ctx) error {
	name := c.Params("name")
	if n := h.ledger.Strikes(name); n > 0 {
		h.ledger.Reset(name)
		h.audit(c, store.ModAction{
			User:   name,
			Action: store.ActionReset,
			Reason: fmt.Sprintf("cleared %d strikes", n),
		})
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ListModLog handles GET /api/v1/modlog.
func (h *Handlers) ListModLog(c *fiber.Ctx) error {
	if h.store == nil {
		return c.JSON(fiber.Map{"actions": []store.ModAction{}})
	}
	actions, err := h.store.RecentActions(c.UserContext(), c.Query("user"), c.QueryInt("limit", 50))
	if err != nil {
		return err
	}
	if actions == nil {
		actions = []store.ModAction{}
	}
	return c.JSON(fiber.Map{"actions": actions})
}

// GetConfig handles GET /api/v1/config.
func (h *Handlers) GetConfig(c *fiber.Ctx) error {
	return c.JSON(ConfigResponse{
		Filter:  h.classifier.Config(),
		Strikes: h.ledger.Config(),
	})
}

// PatchConfig handles PATCH /api/v1/config. Both halves are validated
// before either is applied.
func (h *Handlers) PatchConfig(c *fiber.Ctx) error {
	var patch ConfigPatch
	if err := c.BodyParser(&patch); err != nil {
		return invalidBody(c, err)
	}

	fc := h.classifier.Config()
	if patch.CheckCaps != nil {
		fc.CheckCaps = *patch.CheckCaps
	}
	if patch.CheckLinks != nil {
		fc.CheckLinks = *patch.CheckLinks
	}
	if patch.CheckBlacklist != nil {
		fc.CheckBlacklist = *patch.CheckBlacklist
	}
	if patch.CapsMinLength != nil {
		fc.CapsMinLength = *patch.CapsMinLength
	}
	if patch.CapsRatio != nil {
		fc.CapsRatio = *patch.CapsRatio
	}

	sc := h.ledger.Config()
	if patch.StrikeThreshold != nil {
		sc.Threshold = *patch.StrikeThreshold
	}
	if patch.TimeoutSeconds != nil {
		sc.TimeoutSeconds = *patch.TimeoutSeconds
	}
	if patch.AllowPardons != nil {
		sc.AllowPardons = *patch.AllowPardons
	}
	if patch.TimeoutOnStrikes != nil {
		sc.TimeoutOnStrikes = *patch.TimeoutOnStrikes
	}

	if err := fc.Validate(); err != nil {
		return errorResponse(c, err)
	}
	if err := sc.Validate(); err != nil {
		return errorResponse(c, err)
	}
	if err := h.classifier.SetConfig(fc); err != nil {
		return errorResponse(c, err)
	}
	if err := h.ledger.SetConfig(sc); err != nil {
		return errorResponse(c, err)
	}

	h.logger.Info().
		Interface("filter", fc).
		Interface("strikes", sc).
		Msg("moderation config updated")

	return h.GetConfig(c)
}

// audit records a moderation action attributed to the caller's role.
func (h *Handlers) audit(c *fiber.Ctx, a store.ModAction) {
	if h.store == nil {
		return
	}
	a.Actor = apiActor + ":" + roleOf(c).String()
	a.CreatedAt = h.now()
	if err := h.store.RecordAction(c.UserContext(), a); err != nil {
		h.logger.Warn().Err(err).Str("action", a.Action).Msg("failed to record moderation action")
	}
}

func invalidBody(c *fiber.Ctx, err error) error {
	return problemResponse(c, fiber.StatusBadRequest,
		"invalid_body", "Bad Request",
		"Invalid request body: "+err.Error())
}

// errorResponse maps domain errors to problem responses. Unmapped errors go
// to the server error handler.
func errorResponse(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, cerrors.ErrNoSuchUser):
		return problemResponse(c, fiber.StatusNotFound, "no_such_user", "Not Found", err.Error())
	case errors.Is(err, cerrors.ErrNoSuchCommand):
		return problemResponse(c, fiber.StatusNotFound, "no_such_command", "Not Found", err.Error())
	case errors.Is(err, cerrors.ErrOnCooldown):
		return problemResponse(c, fiber.StatusTooManyRequests, "on_cooldown", "Too Many Requests", err.Error())
	case errors.Is(err, cerrors.ErrInsufficientPermission):
		return problemResponse(c, fiber.StatusForbidden, "insufficient_permission", "Forbidden", err.Error())
	case errors.Is(err, cerrors.ErrInsufficientPoints):
		return problemResponse(c, fiber.StatusPaymentRequired, "insufficient_points", "Payment Required", err.Error())
	case errors.Is(err, cerrors.ErrCommandExists):
		return problemResponse(c, fiber.StatusConflict, "command_exists", "Conflict", err.Error())
	case errors.Is(err, cerrors.ErrInvalidConfiguration):
		return problemResponse(c, fiber.StatusBadRequest, "invalid_configuration", "Bad Request", err.Error())
	case errors.Is(err, cerrors.ErrInvalidArgument):
		return problemResponse(c, fiber.StatusBadRequest, "invalid_argument", "Bad Request", err.Error())
	}
	return err
}
