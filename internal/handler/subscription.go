package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/pressplay/payments/internal/domain"
	"github.com/pressplay/payments/internal/logging"
	"github.com/pressplay/payments/internal/money"
	"github.com/pressplay/payments/internal/service/subscription"
)

type subscriptionService interface {
	Create(ctx context.Context, req subscription.CreateRequest) (*domain.PaymentSubscription, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.PaymentSubscription, error)
	Swap(ctx context.Context, id uuid.UUID, newPlanID string, newAmount int64) (*subscription.SwapResult, error)
	Cancel(ctx context.Context, id uuid.UUID, immediate bool) (*domain.PaymentSubscription, error)
	Resume(ctx context.Context, id uuid.UUID, paymentMethodID string) (*domain.PaymentSubscription, error)
}

type SubscriptionHandler struct {
	subs subscriptionService
}

func NewSubscriptionHandler(subs subscriptionService) *SubscriptionHandler {
	return &SubscriptionHandler{subs: subs}
}

type createSubscriptionRequest struct {
	SubscriberID    string `json:"subscriber_id"`
	CreatorID       string `json:"creator_id"`
	PlanID          string `json:"plan_id"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
	Interval        string `json:"interval"`
	IntervalCount   int    `json:"interval_count,omitempty"`
	TrialDays       int    `json:"trial_days,omitempty"`
	PaymentMethodID string `json:"payment_method_id"`
	Gateway         string `json:"gateway,omitempty"`
}

func (r createSubscriptionRequest) Validate() []FieldError {
	var errs []FieldError

	if _, err := uuid.Parse(r.SubscriberID); err != nil {
		errs = append(errs, FieldError{Field: "subscriber_id", Message: "must be a valid UUID"})
	}
	if _, err := uuid.Parse(r.CreatorID); err != nil {
		errs = append(errs, FieldError{Field: "creator_id", Message: "must be a valid UUID"})
	}
	if r.PlanID == "" {
		errs = append(errs, FieldError{Field: "plan_id", Message: "required"})
	}
	if r.Amount <= 0 {
		errs = append(errs, FieldError{Field: "amount", Message: "must be greater than 0"})
	}
	if !money.Supported(money.Currency(r.Currency)) {
		errs = append(errs, FieldError{Field: "currency", Message: "must be USD, EUR, or GBP"})
	}
	switch domain.BillingInterval(r.Interval) {
	case domain.IntervalDay, domain.IntervalWeek, domain.IntervalMonth, domain.IntervalYear:
	default:
		errs = append(errs, FieldError{Field: "interval", Message: "must be day, week, month, or year"})
	}
	if r.TrialDays < 0 {
		errs = append(errs, FieldError{Field: "trial_days", Message: "must not be negative"})
	}

	return errs
}

type subscriptionDTO struct {
	ID                 uuid.UUID  `json:"id"`
	SubscriberID       uuid.UUID  `json:"subscriber_id"`
	CreatorID          uuid.UUID  `json:"creator_id"`
	PlanID             string     `json:"plan_id"`
	Amount             int64      `json:"amount"`
	Currency           string     `json:"currency"`
	Interval           string     `json:"interval"`
	IntervalCount      int        `json:"interval_count"`
	Status             string     `json:"status"`
	AutoRenews         bool       `json:"auto_renews"`
	TrialEndsAt        *time.Time `json:"trial_ends_at,omitempty"`
	EndsAt             *time.Time `json:"ends_at,omitempty"`
	GraceEndsAt        *time.Time `json:"grace_ends_at,omitempty"`
	CurrentPeriodStart time.Time  `json:"current_period_start"`
	CurrentPeriodEnd   time.Time  `json:"current_period_end"`
	CreatedAt          time.Time  `json:"created_at"`
}

func toSubscriptionDTO(s *domain.PaymentSubscription) subscriptionDTO {
	return subscriptionDTO{
		ID:                 s.ID,
		SubscriberID:       s.SubscriberID,
		CreatorID:          s.CreatorID,
		PlanID:             s.PlanID,
		Amount:             s.Amount,
		Currency:           string(s.Currency),
		Interval:           string(s.Interval),
		IntervalCount:      s.IntervalCount,
		Status:             string(s.Status),
		AutoRenews:         s.AutoRenews,
		TrialEndsAt:        s.TrialEndsAt,
		EndsAt:             s.EndsAt,
		GraceEndsAt:        s.GraceEndsAt,
		CurrentPeriodStart: s.CurrentPeriodStart,
		CurrentPeriodEnd:   s.CurrentPeriodEnd,
		CreatedAt:          s.CreatedAt,
	}
}

func (h *SubscriptionHandler) Create(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req createSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}
	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	sub, err := h.subs.Create(r.Context(), subscription.CreateRequest{
		SubscriberID:    uuid.MustParse(req.SubscriberID),
		CreatorID:       uuid.MustParse(req.CreatorID),
		PlanID:          req.PlanID,
		Amount:          req.Amount,
		Currency:        money.Currency(req.Currency),
		Interval:        domain.BillingInterval(req.Interval),
		IntervalCount:   req.IntervalCount,
		TrialDays:       req.TrialDays,
		PaymentMethodID: req.PaymentMethodID,
		Gateway:         req.Gateway,
	})
	if err != nil {
		log.Warn("subscription creation failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusCreated, toSubscriptionDTO(sub))
}

func (h *SubscriptionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}

	sub, err := h.subs.Get(r.Context(), id)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toSubscriptionDTO(sub))
}

type swapRequest struct {
	PlanID string `json:"plan_id"`
	Amount int64  `json:"amount"`
}

type swapDTO struct {
	Subscription subscriptionDTO `json:"subscription"`
	Credit       int64           `json:"credit"`
	AmountDue    int64           `json:"amount_due"`
}

func (h *SubscriptionHandler) Swap(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}

	var req swapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}
	if req.PlanID == "" || req.Amount <= 0 {
		RespondValidationError(w, []FieldError{
			{Field: "plan_id", Message: "required"},
			{Field: "amount", Message: "must be greater than 0"},
		})
		return
	}

	result, err := h.subs.Swap(r.Context(), id, req.PlanID, req.Amount)
	if err != nil {
		log.Warn("subscription swap failed", "subscription_id", id, "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, swapDTO{
		Subscription: toSubscriptionDTO(result.Subscription),
		Credit:       result.Credit.Amount(),
		AmountDue:    result.AmountDue.Amount(),
	})
}

type cancelRequest struct {
	Immediate bool `json:"immediate"`
}

func (h *SubscriptionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}

	var req cancelRequest
	if r.Body != http.NoBody {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			RespondAppError(w, ErrInvalidRequest, nil)
			return
		}
	}

	sub, err := h.subs.Cancel(r.Context(), id, req.Immediate)
	if err != nil {
		log.Warn("subscription cancellation failed", "subscription_id", id, "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toSubscriptionDTO(sub))
}

type resumeRequest struct {
	PaymentMethodID string `json:"payment_method_id"`
}

func (h *SubscriptionHandler) Resume(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}

	var req resumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}
	if req.PaymentMethodID == "" {
		RespondValidationError(w, []FieldError{{Field: "payment_method_id", Message: "required"}})
		return
	}

	sub, err := h.subs.Resume(r.Context(), id, req.PaymentMethodID)
	if err != nil {
		log.Warn("subscription resume failed", "subscription_id", id, "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toSubscriptionDTO(sub))
}
