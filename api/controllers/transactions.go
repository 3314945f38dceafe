package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/forkpoint/loyalty-backend/api/responses"
	"github.com/forkpoint/loyalty-backend/api/validators"
	"github.com/forkpoint/loyalty-backend/internal/settlement"
	pkgerrors "github.com/forkpoint/loyalty-backend/pkg/errors"
	"github.com/forkpoint/loyalty-backend/pkg/logger"
)

type settleLineItem struct {
	ProductID      uuid.UUID  `json:"productId" validate:"required"`
	Quantity       int        `json:"quantity" validate:"required,min=1"`
	UnitPriceCents int64      `json:"unitPriceCents" validate:"gte=0"`
	TotalCents     int64      `json:"totalCents" validate:"gte=0"`
	IsFree         bool       `json:"isFree"`
	CampaignID     *uuid.UUID `json:"campaignId,omitempty"`
}

type settleAppliedCampaign struct {
	CampaignID    uuid.UUID   `json:"campaignId" validate:"required"`
	DiscountCents int64       `json:"discountCents" validate:"gte=0"`
	PointsEarned  int         `json:"pointsEarned" validate:"gte=0"`
	FreeItems     []uuid.UUID `json:"freeItems,omitempty"`
}

type settleRequest struct {
	RestaurantID     uuid.UUID               `json:"restaurantId" validate:"required"`
	CustomerID       uuid.UUID               `json:"customerId" validate:"required"`
	OrderNumber      string                  `json:"orderNumber" validate:"required,min=1,max=64"`
	Items            []settleLineItem        `json:"items" validate:"dive"`
	TotalCents       int64                   `json:"totalCents" validate:"gte=0"`
	DiscountCents    int64                   `json:"discountCents" validate:"gte=0"`
	FinalCents       int64                   `json:"finalCents" validate:"gte=0"`
	PointsUsed       int                     `json:"pointsUsed" validate:"gte=0"`
	PaymentMethod    *string                 `json:"paymentMethod,omitempty"`
	Notes            *string                 `json:"notes,omitempty"`
	AppliedCampaigns []settleAppliedCampaign `json:"appliedCampaigns" validate:"dive"`
}

// SettleTransaction records a completed purchase and runs the full loyalty
// pipeline: points, campaign usage, milestones, tier check.
func SettleTransaction(svc settlement.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "settlement service unavailable"))
			return
		}

		var req settleRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := settlement.SettleInput{
			RestaurantID:  req.RestaurantID,
			CustomerID:    req.CustomerID,
			OrderNumber:   strings.TrimSpace(req.OrderNumber),
			TotalCents:    req.TotalCents,
			DiscountCents: req.DiscountCents,
			FinalCents:    req.FinalCents,
			PointsUsed:    req.PointsUsed,
			PaymentMethod: req.PaymentMethod,
			Notes:         req.Notes,
		}
		for _, item := range req.Items {
			input.Items = append(input.Items, settlement.LineItem{
				ProductID:      item.ProductID,
				Quantity:       item.Quantity,
				UnitPriceCents: item.UnitPriceCents,
				TotalCents:     item.TotalCents,
				IsFree:         item.IsFree,
				CampaignID:     item.CampaignID,
			})
		}
		for _, applied := range req.AppliedCampaigns {
			input.AppliedCampaigns = append(input.AppliedCampaigns, settlement.AppliedCampaign{
				CampaignID:    applied.CampaignID,
				DiscountCents: applied.DiscountCents,
				PointsEarned:  applied.PointsEarned,
				FreeItems:     applied.FreeItems,
			})
		}

		result, err := svc.Settle(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

type cancelRequest struct {
	Reason           string `json:"reason" validate:"required,min=1,max=500"`
	ReversePoints    *bool  `json:"reversePoints,omitempty"`
	ReverseCampaigns *bool  `json:"reverseCampaigns,omitempty"`
	ReverseStamps    *bool  `json:"reverseStamps,omitempty"`
	ReverseRewards   *bool  `json:"reverseRewards,omitempty"`
	CheckTier        *bool  `json:"checkTier,omitempty"`
}

// CancelTransaction reverses a settled transaction. Reversal categories
// default to on and can be individually disabled.
func CancelTransaction(svc settlement.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "settlement service unavailable"))
			return
		}

		transactionID, err := parseUUIDParam(r, "transactionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req cancelRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		options := settlement.DefaultCancelOptions()
		if req.ReversePoints != nil {
			options.ReversePoints = *req.ReversePoints
		}
		if req.ReverseCampaigns != nil {
			options.ReverseCampaigns = *req.ReverseCampaigns
		}
		if req.ReverseStamps != nil {
			options.ReverseStamps = *req.ReverseStamps
		}
		if req.ReverseRewards != nil {
			options.ReverseRewards = *req.ReverseRewards
		}
		if req.CheckTier != nil {
			options.CheckTier = *req.CheckTier
		}

		result, err := svc.Cancel(r.Context(), settlement.CancelInput{
			TransactionID: transactionID,
			Reason:        strings.TrimSpace(req.Reason),
			Options:       options,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func parseUUIDParam(r *http.Request, name string) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, name))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, name+" is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+name)
	}
	return id, nil
}
