package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fintrack/fintrack-api/internal/domain"
	"github.com/fintrack/fintrack-api/internal/infra/observability"
	"github.com/fintrack/fintrack-api/internal/infra/resilience"
	"github.com/fintrack/fintrack-api/internal/money"
	"github.com/fintrack/fintrack-api/internal/port"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var backupTracer = otel.Tracer("service/backup")

// importConcurrency bounds parallel writes during an import so a large
// backup cannot flood the record store.
const importConcurrency = 4

// exportPageSize is the page size used when draining transactions and
// activity for an export.
const exportPageSize = 200

// BackupService snapshots a user's full ledger into a single document
// and replays such a document back in.
type BackupService struct {
	store    port.LedgerStore
	bulkhead *resilience.Bulkhead
	metrics  *observability.Metrics
	logger   *zap.Logger
	now      func() time.Time
}

// NewBackupService creates the backup service.
func NewBackupService(store port.LedgerStore, metrics *observability.Metrics, logger *zap.Logger) *BackupService {
	return &BackupService{
		store:    store,
		bulkhead: resilience.NewBulkhead(importConcurrency),
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
}

// Export gathers every record the user owns. The independent reads fan
// out concurrently; any failure aborts the export rather than emitting
// a partial document.
func (s *BackupService) Export(ctx context.Context, userID string) (*domain.ExportDocument, error) {
	ctx, span := backupTracer.Start(ctx, "BackupService.Export")
	defer span.End()

	start := s.now()
	defer func() { s.metrics.RecordRequestDuration("backup_export", time.Since(start)) }()

	doc := &domain.ExportDocument{ExportedAt: s.now().UTC()}
	var cash *domain.CashPool

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		accounts, err := s.store.ListAccounts(gCtx, userID)
		if err != nil {
			return err
		}
		doc.Accounts = accounts
		return nil
	})
	g.Go(func() error {
		cards, err := s.store.ListCards(gCtx, userID)
		if err != nil {
			return err
		}
		doc.Cards = cards
		return nil
	})
	g.Go(func() error {
		loans, err := s.store.ListLoans(gCtx, userID)
		if err != nil {
			return err
		}
		doc.Loans = loans
		return nil
	})
	g.Go(func() error {
		funds, err := s.store.ListFunds(gCtx, userID)
		if err != nil {
			return err
		}
		doc.Funds = funds
		return nil
	})
	g.Go(func() error {
		txs, err := s.drainTransactions(gCtx, userID)
		if err != nil {
			return err
		}
		doc.Transactions = txs
		return nil
	})
	g.Go(func() error {
		activity, err := s.drainActivity(gCtx, userID)
		if err != nil {
			return err
		}
		doc.Activity = activity
		return nil
	})
	g.Go(func() error {
		scheds, err := s.store.ListSchedules(gCtx, userID)
		if err != nil {
			return err
		}
		doc.Schedules = scheds
		return nil
	})
	g.Go(func() error {
		pool, err := s.store.GetCashPool(gCtx, userID)
		if err != nil {
			return err
		}
		cash = pool
		return nil
	})
	g.Go(func() error {
		settings, err := s.store.GetAlertSettings(gCtx, userID)
		if err != nil {
			return err
		}
		doc.AlertSettings = settings
		return nil
	})

	if err := g.Wait(); err != nil {
		s.logger.Error("backup export failed", zap.String("user_id", userID), zap.Error(err))
		return nil, err
	}

	doc.AvailableCash = cash.Balance
	for _, a := range doc.Accounts {
		doc.AvailableCash = money.Add(doc.AvailableCash, a.Balance)
	}

	s.logger.Info("backup exported",
		zap.String("user_id", userID),
		zap.Int("accounts", len(doc.Accounts)),
		zap.Int("transactions", len(doc.Transactions)),
	)
	return doc, nil
}

func (s *BackupService) drainTransactions(ctx context.Context, userID string) ([]domain.Transaction, error) {
	all := []domain.Transaction{}
	for page := 1; ; page++ {
		batch, err := s.store.ListTransactions(ctx, userID, page, exportPageSize)
		if err != nil {
			return nil, err
		}
		all = append(all, batch...)
		if len(batch) < exportPageSize {
			return all, nil
		}
	}
}

func (s *BackupService) drainActivity(ctx context.Context, userID string) ([]domain.ActivityRecord, error) {
	all := []domain.ActivityRecord{}
	for page := 1; ; page++ {
		batch, err := s.store.ListActivity(ctx, userID, page, exportPageSize)
		if err != nil {
			return nil, err
		}
		all = append(all, batch...)
		if len(batch) < exportPageSize {
			return all, nil
		}
	}
}

// Import replays an export document into the store, rebinding every
// record to the importing user. Records keep their ids and the store's
// put semantics overwrite any existing row, so the document's value
// wins for every id it carries.
func (s *BackupService) Import(ctx context.Context, userID string, doc *domain.ExportDocument) (*domain.ImportResult, error) {
	ctx, span := backupTracer.Start(ctx, "BackupService.Import")
	defer span.End()

	start := s.now()
	defer func() { s.metrics.RecordRequestDuration("backup_import", time.Since(start)) }()

	if doc == nil {
		return nil, &domain.ErrValidation{Field: "document", Message: "import document is required"}
	}

	var writes []func(context.Context) error

	for i := range doc.Accounts {
		account := doc.Accounts[i]
		account.UserID = userID
		writes = append(writes, func(ctx context.Context) error {
			_, err := s.store.CreateAccount(ctx, &account)
			return err
		})
	}
	for i := range doc.Cards {
		card := doc.Cards[i]
		card.UserID = userID
		writes = append(writes, func(ctx context.Context) error {
			_, err := s.store.CreateCard(ctx, &card)
			return err
		})
	}
	for i := range doc.Loans {
		loan := doc.Loans[i]
		loan.UserID = userID
		writes = append(writes, func(ctx context.Context) error {
			_, err := s.store.CreateLoan(ctx, &loan)
			return err
		})
	}
	for i := range doc.Funds {
		fund := doc.Funds[i]
		fund.UserID = userID
		writes = append(writes, func(ctx context.Context) error {
			_, err := s.store.CreateFund(ctx, &fund)
			return err
		})
	}
	for i := range doc.Transactions {
		tx := doc.Transactions[i]
		tx.UserID = userID
		writes = append(writes, func(ctx context.Context) error {
			_, err := s.store.CreateTransaction(ctx, &tx)
			return err
		})
	}
	for i := range doc.Activity {
		rec := doc.Activity[i]
		rec.UserID = userID
		writes = append(writes, func(ctx context.Context) error {
			_, err := s.store.AppendActivity(ctx, &rec)
			return err
		})
	}
	for i := range doc.Schedules {
		sched := doc.Schedules[i]
		sched.UserID = userID
		writes = append(writes, func(ctx context.Context) error {
			_, err := s.store.CreateSchedule(ctx, &sched)
			return err
		})
	}

	// Writes fan out but the bulkhead caps how many run at once. A
	// failed record is skipped, not fatal, so a half-good document
	// imports what it can.
	var imported atomic.Int64
	var wg sync.WaitGroup
	for _, write := range writes {
		wg.Add(1)
		go func(write func(context.Context) error) {
			defer wg.Done()
			if err := s.bulkhead.Acquire(ctx); err != nil {
				return
			}
			defer s.bulkhead.Release()
			if err := write(ctx); err != nil {
				s.logger.Warn("import: record skipped", zap.Error(err))
				return
			}
			imported.Add(1)
		}(write)
	}
	wg.Wait()

	if doc.AlertSettings != nil {
		settings, err := s.store.GetAlertSettings(ctx, userID)
		if err == nil {
			settings.UrgentWindow = doc.AlertSettings.UrgentWindow
			settings.UpcomingWindow = doc.AlertSettings.UpcomingWindow
			if _, err := s.store.UpdateAlertSettings(ctx, settings, settings.Revision); err == nil {
				imported.Add(1)
			}
		}
	}

	total := int(imported.Load())
	s.logger.Info("backup imported",
		zap.String("user_id", userID),
		zap.Int("imported", total),
	)
	return &domain.ImportResult{Imported: total}, nil
}
