package handler

import (
	"net/http"
	"time"

	"github.com/fintrack/fintrack-api/internal/domain"
	"github.com/fintrack/fintrack-api/internal/infra/observability"
	"github.com/fintrack/fintrack-api/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

// NewRouter creates the HTTP router with all routes and middleware.
// Every /v1 route requires a bearer token; the user id comes from the
// token subject, never from the request body.
func NewRouter(entitySvc *service.EntityService, ledgerSvc *service.LedgerService, backupSvc *service.BackupService, jwtSecret []byte, metrics *observability.Metrics, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(entitySvc, logger))
	r.Get("/readyz", readyzHandler())
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {
		r.Use(JWTAuthMiddleware(jwtSecret, logger))

		// =============================================
		// Bank accounts
		// =============================================
		r.Get("/accounts", listAccountsHandler(entitySvc, logger))
		r.Post("/accounts", createAccountHandler(entitySvc, logger))
		r.Get("/accounts/{accountId}", getAccountHandler(entitySvc, logger))
		r.Put("/accounts/{accountId}", updateAccountHandler(entitySvc, logger))
		r.Delete("/accounts/{accountId}", deleteAccountHandler(entitySvc, logger))

		// =============================================
		// Credit cards
		// =============================================
		r.Get("/cards", listCardsHandler(entitySvc, logger))
		r.Post("/cards", createCardHandler(entitySvc, logger))
		r.Get("/cards/{cardId}", getCardHandler(entitySvc, logger))
		r.Put("/cards/{cardId}", updateCardHandler(entitySvc, logger))
		r.Delete("/cards/{cardId}", deleteCardHandler(entitySvc, logger))

		// =============================================
		// Loans
		// =============================================
		r.Get("/loans", listLoansHandler(entitySvc, logger))
		r.Post("/loans", createLoanHandler(entitySvc, logger))
		r.Get("/loans/{loanId}", getLoanHandler(entitySvc, logger))
		r.Put("/loans/{loanId}", updateLoanHandler(entitySvc, logger))
		r.Delete("/loans/{loanId}", deleteLoanHandler(entitySvc, logger))

		// =============================================
		// Reserved funds
		// =============================================
		r.Get("/funds", listFundsHandler(entitySvc, logger))
		r.Post("/funds", createFundHandler(entitySvc, logger))
		r.Get("/funds/{fundId}", getFundHandler(entitySvc, logger))
		r.Put("/funds/{fundId}", updateFundHandler(entitySvc, logger))
		r.Delete("/funds/{fundId}", deleteFundHandler(entitySvc, logger))

		// =============================================
		// Cash in hand
		// =============================================
		r.Get("/cash", getCashHandler(entitySvc, logger))
		r.Post("/cash/adjust", adjustCashHandler(entitySvc, logger))

		// =============================================
		// Alert settings
		// =============================================
		r.Get("/settings/alerts", getAlertSettingsHandler(entitySvc, logger))
		r.Put("/settings/alerts", updateAlertSettingsHandler(entitySvc, logger))

		// =============================================
		// Ledger postings
		// =============================================
		r.Post("/ledger/expenses", postExpenseHandler(ledgerSvc, logger))
		r.Post("/ledger/incomes", postIncomeHandler(ledgerSvc, logger))
		r.Post("/ledger/payments", postPaymentHandler(ledgerSvc, logger))

		// =============================================
		// Transactions & reversal
		// =============================================
		r.Get("/ledger/transactions", listTransactionsHandler(ledgerSvc, logger))
		r.Get("/ledger/transactions/{transactionId}", getTransactionHandler(ledgerSvc, logger))
		r.Post("/ledger/transactions/{transactionId}/undo", undoTransactionHandler(ledgerSvc, logger))
		r.Delete("/ledger/transactions/{transactionId}", deleteTransactionHandler(ledgerSvc, logger))

		// =============================================
		// Activity log
		// =============================================
		r.Get("/activity", listActivityHandler(ledgerSvc, logger))
		r.Post("/activity/{activityId}/undo", undoActivityHandler(ledgerSvc, logger))

		// =============================================
		// Obligations & recurring
		// =============================================
		r.Get("/obligations/upcoming", upcomingObligationsHandler(ledgerSvc, logger))
		r.Post("/autopay/run", runAutoPayHandler(ledgerSvc, logger))
		r.Get("/schedules", listSchedulesHandler(ledgerSvc, logger))
		r.Post("/schedules", createScheduleHandler(ledgerSvc, logger))
		r.Get("/schedules/{scheduleId}", getScheduleHandler(ledgerSvc, logger))
		r.Delete("/schedules/{scheduleId}", deleteScheduleHandler(ledgerSvc, logger))
		r.Post("/schedules/process", processSchedulesHandler(ledgerSvc, logger))

		// =============================================
		// Backup
		// =============================================
		r.Get("/backup/export", exportBackupHandler(backupSvc, logger))
		r.Post("/backup/import", importBackupHandler(backupSvc, logger))

		// =============================================
		// Metrics snapshot
		// =============================================
		r.Get("/metrics/ledger", ledgerMetricsHandler(metrics))
	})

	return r
}

func healthzHandler(entitySvc *service.EntityService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		now := time.Now().Format(time.RFC3339)

		services := []domain.ServiceHealth{
			{Name: "fintrack-api", Status: "healthy", LatencyMs: 0, UptimePercent: 99.99, LastChecked: now},
		}

		if entitySvc != nil {
			start := time.Now()
			_, err := entitySvc.ListAccounts(ctx, "health-check")
			latency := time.Since(start).Milliseconds()
			status := "healthy"
			if err != nil {
				status = "degraded"
			}
			services = append(services, domain.ServiceHealth{
				Name: "supabase", Status: status, LatencyMs: latency,
				UptimePercent: 99.9, LastChecked: now,
			})
		}

		overallStatus := "healthy"
		for _, s := range services {
			if s.Status == "unhealthy" {
				overallStatus = "unhealthy"
				break
			}
			if s.Status == "degraded" {
				overallStatus = "degraded"
			}
		}

		writeJSON(w, http.StatusOK, domain.HealthStatus{
			Status:   overallStatus,
			Services: services,
		})
	}
}

func readyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}
