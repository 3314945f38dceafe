package controllers

import (
	"net/http"

	"github.com/forkpoint/loyalty-backend/api/responses"
	"github.com/forkpoint/loyalty-backend/internal/rewards"
	pkgerrors "github.com/forkpoint/loyalty-backend/pkg/errors"
	"github.com/forkpoint/loyalty-backend/pkg/logger"
)

// RedeemReward marks a granted reward as redeemed.
func RedeemReward(svc rewards.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "rewards service unavailable"))
			return
		}

		grantID, err := parseUUIDParam(r, "grantId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		grant, err := svc.Redeem(r.Context(), grantID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, grant)
	}
}
