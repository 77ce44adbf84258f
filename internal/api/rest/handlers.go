package rest

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/riskcore/transaction-risk-engine/internal/api/middleware"
	"github.com/riskcore/transaction-risk-engine/internal/domain/errors"
	"github.com/riskcore/transaction-risk-engine/internal/domain/transaction"
	"github.com/riskcore/transaction-risk-engine/internal/domain/values"
	"github.com/riskcore/transaction-risk-engine/internal/metrics"
	"github.com/riskcore/transaction-risk-engine/internal/service/risk"
	"github.com/riskcore/transaction-risk-engine/internal/service/velocity"
)

const maxBodySize = 1 << 20 // 1MB

// Handler serves the risk assessment API.
type Handler struct {
	aggregator *risk.Aggregator
	engine     risk.ComplianceService
	monitor    *velocity.Monitor
	registry   *metrics.Registry
	validate   *validator.Validate
	tracer     trace.Tracer
	logger     *slog.Logger
	version    string
	started    time.Time
}

// NewHandler wires the services into the HTTP surface.
func NewHandler(
	aggregator *risk.Aggregator,
	engine risk.ComplianceService,
	monitor *velocity.Monitor,
	registry *metrics.Registry,
	logger *slog.Logger,
	version string,
) *Handler {
	return &Handler{
		aggregator: aggregator,
		engine:     engine,
		monitor:    monitor,
		registry:   registry,
		validate:   validator.New(),
		tracer:     otel.Tracer("api.rest"),
		logger:     logger,
		version:    version,
		started:    time.Now(),
	}
}

// Assess handles POST /api/v1/assess: record, evaluate, combine, decide.
func (h *Handler) Assess(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "handler.assess")
	defer span.End()
	start := time.Now()

	var req AssessRequest
	if !h.decode(w, r, &req) {
		return
	}

	tx, err := h.buildEvent(req.TransactionID, req.EntityID, req.Amount, req.Currency,
		req.Timestamp, req.MerchantCategory, req.Location, req.CustomerName, req.MerchantName)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	result, err := h.aggregator.Assess(ctx, tx, req.FraudProbability)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	span.SetAttributes(
		attribute.String("risk.action", string(result.RecommendedAction)),
		attribute.Float64("risk.combined_score", result.CombinedScore),
	)
	if h.registry != nil {
		h.registry.RecordAssessment(ctx, durationMS(start),
			string(result.RecommendedAction), result.RiskLevel.String(), result.Flags)
	}
	h.writeSuccess(ctx, w, http.StatusOK, result)
}

// ComplianceCheck handles POST /api/v1/compliance/check: a read-only rule
// evaluation against the entity's current activity, nothing is recorded.
func (h *Handler) ComplianceCheck(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "handler.compliance_check")
	defer span.End()
	start := time.Now()

	var req ComplianceCheckRequest
	if !h.decode(w, r, &req) {
		return
	}

	tx, err := h.buildEvent(req.TransactionID, req.EntityID, req.Amount, req.Currency,
		req.Timestamp, req.MerchantCategory, req.Location, req.CustomerName, req.MerchantName)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	assessment := h.engine.Evaluate(tx, h.monitor.Summary(req.EntityID))

	status := "PASS"
	if assessment.RequiresManualReview || assessment.RiskLevel == values.RiskLevelHigh {
		status = "REVIEW_REQUIRED"
	}
	if h.registry != nil {
		h.registry.RecordComplianceCheck(ctx, durationMS(start), assessment.RequiresManualReview)
	}
	h.writeSuccess(ctx, w, http.StatusOK, ComplianceCheckResponse{
		TransactionID: req.TransactionID,
		EntityID:      req.EntityID,
		Status:        status,
		Assessment:    assessment,
	})
}

// VelocitySummary handles GET /api/v1/velocity/{entity}. Unknown entities get
// a zero summary, not an error.
func (h *Handler) VelocitySummary(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "handler.velocity_summary")
	defer span.End()

	entityID := r.PathValue("entity")
	if entityID == "" {
		h.writeError(ctx, w, errors.ErrMissingEntityID)
		return
	}
	h.writeSuccess(ctx, w, http.StatusOK, h.monitor.Summary(entityID))
}

// Health handles GET /healthz.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(r.Context(), w, http.StatusOK, HealthStatus{
		Status:  "healthy",
		Version: h.version,
		Uptime:  time.Since(h.started).Round(time.Second).String(),
		Now:     time.Now().UTC(),
	})
}

func (h *Handler) buildEvent(
	txID, entityID string,
	amount float64, currency string,
	ts time.Time,
	merchantCategory, location, customerName, merchantName string,
) (*transaction.Event, error) {
	if currency == "" {
		currency = values.USD
	}
	money, err := values.NewMoneyFromFloat(amount, currency)
	if err != nil {
		return nil, err
	}

	tx, err := transaction.NewEvent(entityID, money, ts)
	if err != nil {
		return nil, err
	}
	if txID != "" {
		id, err := uuid.Parse(txID)
		if err != nil {
			return nil, errors.NewValidationError("INVALID_TRANSACTION_ID", "transaction id must be a UUID")
		}
		tx.ID = id
	}
	return tx.WithMetadata(merchantCategory, location, customerName, merchantName), nil
}

// decode reads, unmarshals, and validates the request body. On failure it
// writes the error response and returns false.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		h.writeError(r.Context(), w, errors.NewValidationError("UNREADABLE_BODY", "could not read request body"))
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		h.writeError(r.Context(), w, errors.NewValidationError("MALFORMED_JSON", "request body is not valid JSON"))
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		h.writeValidationError(r.Context(), w, err)
		return false
	}
	return true
}

func (h *Handler) writeSuccess(ctx context.Context, w http.ResponseWriter, status int, data interface{}) {
	h.writeEnvelope(ctx, w, status, ResponseEnvelope{
		Success: true,
		Data:    data,
	})
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	status := errors.GetStatusCode(err)
	resp := &ErrorResponse{Code: "INTERNAL_ERROR", Message: "internal server error"}

	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		resp.Code = appErr.Code
		resp.Message = appErr.Message
	}
	if status >= 500 {
		h.logger.ErrorContext(ctx, "request failed", "error", err)
	} else if h.registry != nil {
		h.registry.RecordValidationFailure(ctx, resp.Code)
	}
	h.writeEnvelope(ctx, w, status, ResponseEnvelope{
		Success: false,
		Error:   resp,
	})
}

func (h *Handler) writeValidationError(ctx context.Context, w http.ResponseWriter, err error) {
	resp := &ErrorResponse{
		Code:    "VALIDATION_FAILED",
		Message: "request validation failed",
	}

	var verrs validator.ValidationErrors
	if stderrors.As(err, &verrs) {
		resp.Fields = make(map[string][]string, len(verrs))
		for _, fe := range verrs {
			resp.Fields[fe.Field()] = append(resp.Fields[fe.Field()], fe.Tag())
		}
	}
	if h.registry != nil {
		h.registry.RecordValidationFailure(ctx, resp.Code)
	}
	h.writeEnvelope(ctx, w, http.StatusBadRequest, ResponseEnvelope{
		Success: false,
		Error:   resp,
	})
}

func (h *Handler) writeEnvelope(ctx context.Context, w http.ResponseWriter, status int, env ResponseEnvelope) {
	env.Meta = ResponseMeta{
		RequestID: middleware.RequestIDFrom(ctx),
		Timestamp: time.Now().UTC(),
		Version:   h.version,
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(env); err != nil {
		h.logger.ErrorContext(ctx, "encoding response", "error", err)
	}
}

func durationMS(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}
