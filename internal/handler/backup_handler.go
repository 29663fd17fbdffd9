package handler

import (
	"net/http"

	"github.com/fintrack/fintrack-api/internal/domain"
	"github.com/fintrack/fintrack-api/internal/service"

	"go.uber.org/zap"
)

func exportBackupHandler(svc *service.BackupService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /backup/export")
		defer span.End()
		doc, err := svc.Export(ctx, UserIDFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		w.Header().Set("Content-Disposition", `attachment; filename="fintrack-backup.json"`)
		writeJSON(w, http.StatusOK, doc)
	}
}

func importBackupHandler(svc *service.BackupService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /backup/import")
		defer span.End()
		var doc domain.ExportDocument
		if !decodeBody(w, r, &doc) {
			return
		}
		result, err := svc.Import(ctx, UserIDFromContext(ctx), &doc)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}
