package controllers

import (
	"errors"
	"net/http"

	"gorm.io/gorm"

	"github.com/forkpoint/loyalty-backend/api/responses"
	"github.com/forkpoint/loyalty-backend/api/validators"
	"github.com/forkpoint/loyalty-backend/internal/customers"
	"github.com/forkpoint/loyalty-backend/internal/ledger"
	"github.com/forkpoint/loyalty-backend/pkg/db/models"
	pkgerrors "github.com/forkpoint/loyalty-backend/pkg/errors"
	"github.com/forkpoint/loyalty-backend/pkg/logger"
	"github.com/forkpoint/loyalty-backend/pkg/pagination"
)

// GetCustomer returns a single customer with loyalty aggregates and tier.
func GetCustomer(repo customers.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repo == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "customers repository unavailable"))
			return
		}

		customerID, err := parseUUIDParam(r, "customerId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		customer, err := repo.Get(r.Context(), customerID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "customer not found"))
				return
			}
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "get customer"))
			return
		}
		responses.WriteSuccess(w, customer)
	}
}

type pointHistoryResponse struct {
	Items  []models.PointHistory `json:"items"`
	Cursor string                `json:"cursor"`
}

// ListPointHistory returns the customer's point ledger, newest first.
func ListPointHistory(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}

		customerID, err := parseUUIDParam(r, "customerId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		entries, cursor, err := svc.ListByCustomer(r.Context(), customerID, pagination.Params{
			Limit:  limit,
			Cursor: r.URL.Query().Get("cursor"),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if entries == nil {
			entries = []models.PointHistory{}
		}
		responses.WriteSuccess(w, pointHistoryResponse{Items: entries, Cursor: cursor})
	}
}
