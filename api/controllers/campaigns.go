package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/forkpoint/loyalty-backend/api/responses"
	"github.com/forkpoint/loyalty-backend/api/validators"
	"github.com/forkpoint/loyalty-backend/internal/campaigns"
	pkgerrors "github.com/forkpoint/loyalty-backend/pkg/errors"
	"github.com/forkpoint/loyalty-backend/pkg/logger"
)

type quoteRequest struct {
	RestaurantID uuid.UUID `json:"restaurantId" validate:"required"`
	CustomerID   uuid.UUID `json:"customerId" validate:"required"`
	OrderCents   int64     `json:"orderCents" validate:"gte=0"`
}

type quoteEvaluation struct {
	CampaignID    uuid.UUID   `json:"campaignId"`
	IsValid       bool        `json:"isValid"`
	DiscountCents int64       `json:"discountCents"`
	FreeProducts  []uuid.UUID `json:"freeProducts,omitempty"`
	PointsEarned  int         `json:"pointsEarned"`
	Message       string      `json:"message,omitempty"`
}

type quoteResponse struct {
	Evaluations []quoteEvaluation `json:"evaluations"`
}

// QuoteCampaigns evaluates every active campaign against a prospective order
// without writing anything.
func QuoteCampaigns(svc campaigns.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "campaigns service unavailable"))
			return
		}

		var req quoteRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		evaluations, err := svc.Quote(r.Context(), campaigns.QuoteInput{
			RestaurantID: req.RestaurantID,
			CustomerID:   req.CustomerID,
			OrderCents:   req.OrderCents,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out := quoteResponse{Evaluations: make([]quoteEvaluation, 0, len(evaluations))}
		for _, ev := range evaluations {
			out.Evaluations = append(out.Evaluations, quoteEvaluation{
				CampaignID:    ev.CampaignID,
				IsValid:       ev.IsValid,
				DiscountCents: ev.DiscountCents,
				FreeProducts:  ev.FreeProducts,
				PointsEarned:  ev.PointsEarned,
				Message:       ev.Message,
			})
		}
		responses.WriteSuccess(w, out)
	}
}
