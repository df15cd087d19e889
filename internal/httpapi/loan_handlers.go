package httpapi

import (
	"net/http"
	"time"

	"qarzhy.org/internal/apperr"
	"qarzhy.org/internal/audit"
	"qarzhy.org/internal/auth"
	"qarzhy.org/internal/loan"
	"qarzhy.org/internal/obs"
	"qarzhy.org/internal/sequence"
)

type createLoanRequest struct {
	CustomerName string `json:"customer_name"`
	Amount       int64  `json:"amount"`
	Kind         string `json:"kind"`
}

type loanResponse struct {
	ID           string    `json:"id"`
	TenantID     string    `json:"tenant_id"`
	Number       string    `json:"number"`
	CustomerName string    `json:"customer_name"`
	Amount       int64     `json:"amount"`
	Kind         string    `json:"kind"`
	CreatedBy    string    `json:"created_by"`
	CreatedAt    time.Time `json:"created_at"`
}

func toLoanResponse(l *loan.Loan) loanResponse {
	return loanResponse{
		ID:           l.ID,
		TenantID:     l.TenantID,
		Number:       l.Number,
		CustomerName: l.CustomerName,
		Amount:       l.Amount,
		Kind:         string(l.Kind),
		CreatedBy:    l.CreatedBy,
		CreatedAt:    l.CreatedAt,
	}
}

func (a *API) handleCreateLoan(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFromContext(r.Context())
	tenantID, ok := auth.TenantFromContext(r.Context())
	if !ok {
		// SUPER_ADMIN reaches here unbound; loan creation is tenant work.
		writeErr(w, r, apperr.Validation("tenant scope is required for loan creation"))
		return
	}

	var req createLoanRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeErr(w, r, err)
		return
	}
	created, err := a.loans.Create(r.Context(), tenantID, principal.UserID, loan.CreateInput{
		CustomerName: req.CustomerName,
		Amount:       req.Amount,
		Kind:         sequence.Kind(req.Kind),
	})
	if err != nil {
		writeErr(w, r, err)
		return
	}
	obs.IncSequenceAllocation(string(created.Kind))
	_ = audit.LogEvent(r.Context(), "loan.created", map[string]any{
		"loan_id": created.ID,
		"number":  created.Number,
	})
	writeData(w, http.StatusCreated, toLoanResponse(created))
}

func (a *API) handleListLoans(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := auth.TenantFromContext(r.Context())
	if !ok {
		writeErr(w, r, apperr.Validation("tenant scope is required"))
		return
	}
	loans, err := a.loans.List(r.Context(), tenantID, 100)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	out := make([]loanResponse, 0, len(loans))
	for _, l := range loans {
		out = append(out, toLoanResponse(l))
	}
	writeData(w, http.StatusOK, out)
}
