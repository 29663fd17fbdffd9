package handler

import (
	"net/http"

	"github.com/fintrack/fintrack-api/internal/domain"
	"github.com/fintrack/fintrack-api/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ============================================================
// Bank account handlers
// ============================================================

func listAccountsHandler(svc *service.EntityService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /accounts")
		defer span.End()
		accounts, err := svc.ListAccounts(ctx, UserIDFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, accounts)
	}
}

func getAccountHandler(svc *service.EntityService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /accounts/{accountId}")
		defer span.End()
		account, err := svc.GetAccount(ctx, UserIDFromContext(ctx), chi.URLParam(r, "accountId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, account)
	}
}

func createAccountHandler(svc *service.EntityService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /accounts")
		defer span.End()
		var account domain.BankAccount
		if !decodeBody(w, r, &account) {
			return
		}
		account.UserID = UserIDFromContext(ctx)
		created, err := svc.CreateAccount(ctx, &account)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	}
}

func updateAccountHandler(svc *service.EntityService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /accounts/{accountId}")
		defer span.End()
		var account domain.BankAccount
		if !decodeBody(w, r, &account) {
			return
		}
		account.ID = chi.URLParam(r, "accountId")
		account.UserID = UserIDFromContext(ctx)
		updated, err := svc.UpdateAccount(ctx, &account)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	}
}

func deleteAccountHandler(svc *service.EntityService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /accounts/{accountId}")
		defer span.End()
		if err := svc.DeleteAccount(ctx, UserIDFromContext(ctx), chi.URLParam(r, "accountId")); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// ============================================================
// Credit card handlers
// ============================================================

func listCardsHandler(svc *service.EntityService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /cards")
		defer span.End()
		cards, err := svc.ListCards(ctx, UserIDFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, cards)
	}
}

func getCardHandler(svc *service.EntityService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /cards/{cardId}")
		defer span.End()
		card, err := svc.GetCard(ctx, UserIDFromContext(ctx), chi.URLParam(r, "cardId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, card)
	}
}

func createCardHandler(svc *service.EntityService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /cards")
		defer span.End()
		var card domain.CreditCard
		if !decodeBody(w, r, &card) {
			return
		}
		card.UserID = UserIDFromContext(ctx)
		created, err := svc.CreateCard(ctx, &card)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	}
}

func updateCardHandler(svc *service.EntityService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /cards/{cardId}")
		defer span.End()
		var card domain.CreditCard
		if !decodeBody(w, r, &card) {
			return
		}
		card.ID = chi.URLParam(r, "cardId")
		card.UserID = UserIDFromContext(ctx)
		updated, err := svc.UpdateCard(ctx, &card)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	}
}

func deleteCardHandler(svc *service.EntityService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /cards/{cardId}")
		defer span.End()
		if err := svc.DeleteCard(ctx, UserIDFromContext(ctx), chi.URLParam(r, "cardId")); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// ============================================================
// Loan handlers
// ============================================================

func listLoansHandler(svc *service.EntityService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /loans")
		defer span.End()
		loans, err := svc.ListLoans(ctx, UserIDFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, loans)
	}
}

func getLoanHandler(svc *service.EntityService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /loans/{loanId}")
		defer span.End()
		loan, err := svc.GetLoan(ctx, UserIDFromContext(ctx), chi.URLParam(r, "loanId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, loan)
	}
}

func createLoanHandler(svc *service.EntityService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /loans")
		defer span.End()
		var loan domain.Loan
		if !decodeBody(w, r, &loan) {
			return
		}
		loan.UserID = UserIDFromContext(ctx)
		created, err := svc.CreateLoan(ctx, &loan)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	}
}

func updateLoanHandler(svc *service.EntityService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /loans/{loanId}")
		defer span.End()
		var loan domain.Loan
		if !decodeBody(w, r, &loan) {
			return
		}
		loan.ID = chi.URLParam(r, "loanId")
		loan.UserID = UserIDFromContext(ctx)
		updated, err := svc.UpdateLoan(ctx, &loan)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	}
}

func deleteLoanHandler(svc *service.EntityService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /loans/{loanId}")
		defer span.End()
		if err := svc.DeleteLoan(ctx, UserIDFromContext(ctx), chi.URLParam(r, "loanId")); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// ============================================================
// Reserved fund handlers
// ============================================================

func listFundsHandler(svc *service.EntityService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /funds")
		defer span.End()
		funds, err := svc.ListFunds(ctx, UserIDFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, funds)
	}
}

func getFundHandler(svc *service.EntityService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /funds/{fundId}")
		defer span.End()
		fund, err := svc.GetFund(ctx, UserIDFromContext(ctx), chi.URLParam(r, "fundId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, fund)
	}
}

func createFundHandler(svc *service.EntityService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /funds")
		defer span.End()
		var fund domain.ReservedFund
		if !decodeBody(w, r, &fund) {
			return
		}
		fund.UserID = UserIDFromContext(ctx)
		created, err := svc.CreateFund(ctx, &fund)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	}
}

func updateFundHandler(svc *service.EntityService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /funds/{fundId}")
		defer span.End()
		var fund domain.ReservedFund
		if !decodeBody(w, r, &fund) {
			return
		}
		fund.ID = chi.URLParam(r, "fundId")
		fund.UserID = UserIDFromContext(ctx)
		updated, err := svc.UpdateFund(ctx, &fund)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	}
}

func deleteFundHandler(svc *service.EntityService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /funds/{fundId}")
		defer span.End()
		if err := svc.DeleteFund(ctx, UserIDFromContext(ctx), chi.URLParam(r, "fundId")); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// ============================================================
// Cash handlers
// ============================================================

func getCashHandler(svc *service.EntityService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /cash")
		defer span.End()
		userID := UserIDFromContext(ctx)
		pool, err := svc.GetCash(ctx, userID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		total, err := svc.AvailableCash(ctx, userID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"balance":         pool.Balance,
			"available_total": total,
		})
	}
}

func adjustCashHandler(svc *service.EntityService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /cash/adjust")
		defer span.End()
		var req domain.CashAdjustRequest
		if !decodeBody(w, r, &req) {
			return
		}
		pool, err := svc.AdjustCash(ctx, UserIDFromContext(ctx), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, pool)
	}
}

// ============================================================
// Alert settings handlers
// ============================================================

func getAlertSettingsHandler(svc *service.EntityService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /settings/alerts")
		defer span.End()
		settings, err := svc.GetAlertSettings(ctx, UserIDFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, settings)
	}
}

func updateAlertSettingsHandler(svc *service.EntityService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /settings/alerts")
		defer span.End()
		var settings domain.AlertSettings
		if !decodeBody(w, r, &settings) {
			return
		}
		settings.UserID = UserIDFromContext(ctx)
		updated, err := svc.UpdateAlertSettings(ctx, &settings)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	}
}
