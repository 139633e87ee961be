package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/smartattend/integrity-api/internal/models"
	"github.com/smartattend/integrity-api/pkg/config"
	appErrors "github.com/smartattend/integrity-api/pkg/errors"
	"github.com/smartattend/integrity-api/pkg/export"
	"github.com/smartattend/integrity-api/pkg/storage"
)

type trailSource interface {
	QueryByScope(ctx context.Context, q models.LedgerScopeQuery, actor *models.JWTClaims) ([]models.LedgerEntry, *models.Pagination, error)
}

type artifactStore interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

const (
	// exportPageSize stays within the ledger read clamp so every page
	// request is honoured verbatim.
	exportPageSize   = 100
	maxExportEntries = 10000
)

// TrailExport describes a generated artifact and its signed download link.
type TrailExport struct {
	ID         string              `json:"id"`
	Token      string              `json:"token"`
	URL        string              `json:"url"`
	Format     models.ExportFormat `json:"format"`
	EntryCount int                 `json:"entryCount"`
	ExpiresAt  time.Time           `json:"expiresAt"`
}

// TrailDownload is an opened artifact ready to stream to the client.
type TrailDownload struct {
	File      *os.File
	Filename  string
	SizeBytes int64
	MimeType  string
}

// ExportService renders scope queries of the audit ledger into downloadable
// CSV or PDF artifacts. Generation is synchronous: exports are capped at
// maxExportEntries entries, so no job queue sits between request and file.
// Download links are HMAC-signed and expire with the artifact itself.
type ExportService struct {
	trail        trailSource
	store        artifactStore
	signer       *storage.SignedURLSigner
	csv          csvRenderer
	pdf          pdfRenderer
	apiPrefix    string
	resultTTL    time.Duration
	cleanupEvery time.Duration
	logger       *zap.Logger
}

// NewExportService constructs the service. Nil renderers fall back to the
// built-in CSV and PDF exporters.
func NewExportService(cfg config.ExportsConfig, apiPrefix string, trail trailSource, store artifactStore, signer *storage.SignedURLSigner, csv csvRenderer, pdf pdfRenderer, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	ttl := cfg.SignedURLTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &ExportService{
		trail:        trail,
		store:        store,
		signer:       signer,
		csv:          csv,
		pdf:          pdf,
		apiPrefix:    apiPrefix,
		resultTTL:    ttl,
		cleanupEvery: cfg.CleanupInterval,
		logger:       logger,
	}
}

// GenerateTrail renders the entries matching the scope query into an
// artifact and returns a signed download link. Read authorization is the
// ledger service's: whatever the actor may query, they may export.
func (s *ExportService) GenerateTrail(ctx context.Context, q models.LedgerScopeQuery, format models.ExportFormat, actor *models.JWTClaims) (*TrailExport, error) {
	if actor == nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "")
	}
	if !format.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported export format")
	}
	if s.trail == nil || s.store == nil || s.signer == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "export storage not configured")
	}

	entries, err := s.collect(ctx, q, actor)
	if err != nil {
		return nil, err
	}

	dataset := buildTrailDataset(entries)
	title := fmt.Sprintf("Audit Trail %s", q.Scope)

	var payload []byte
	switch format {
	case models.ExportFormatCSV:
		payload, err = s.csv.Render(dataset)
	case models.ExportFormatPDF:
		payload, err = s.pdf.Render(dataset, title)
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	exportID := uuid.NewString()
	filename := fmt.Sprintf("trails/trail_%s_%s_%s.%s",
		strings.ToLower(string(q.Scope)),
		time.Now().UTC().Format("20060102_150405"),
		exportID[:8],
		format,
	)
	relPath, err := s.store.Save(filename, payload)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store export artifact")
	}

	token, expiresAt, err := s.signer.Generate(exportID, relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download link")
	}

	prefix := strings.TrimRight(s.apiPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}

	s.logger.Info("audit trail exported",
		zap.String("export_id", exportID),
		zap.String("scope", string(q.Scope)),
		zap.String("format", string(format)),
		zap.Int("entries", len(entries)),
	)

	return &TrailExport{
		ID:         exportID,
		Token:      token,
		URL:        fmt.Sprintf("%s/export/%s", prefix, token),
		Format:     format,
		EntryCount: len(entries),
		ExpiresAt:  expiresAt,
	}, nil
}

// ResolveDownload validates a download token and opens the artifact it
// references. The token is the sole credential: links are minted only for
// actors the ledger already authorized.
func (s *ExportService) ResolveDownload(ctx context.Context, token string) (*TrailDownload, error) {
	if s.signer == nil || s.store == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "export storage not configured")
	}
	_, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrPermissionDenied, "invalid or expired download token")
	}
	file, err := s.store.Open(relPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "export artifact expired or removed")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open export artifact")
	}
	info, err := file.Stat()
	if err != nil {
		file.Close() //nolint:errcheck
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to stat export artifact")
	}
	mime := "text/csv"
	if strings.HasSuffix(relPath, ".pdf") {
		mime = "application/pdf"
	}
	return &TrailDownload{
		File:      file,
		Filename:  filepath.Base(relPath),
		SizeBytes: info.Size(),
		MimeType:  mime,
	}, nil
}

// StartCleanup boots a goroutine that purges artifacts older than the
// signed-link TTL. A zero interval disables it.
func (s *ExportService) StartCleanup(ctx context.Context) {
	if s == nil || s.cleanupEvery <= 0 || s.store == nil {
		return
	}
	ticker := time.NewTicker(s.cleanupEvery)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				deleted, err := s.store.CleanupOlderThan(s.resultTTL)
				if err != nil {
					s.logger.Warn("export cleanup failed", zap.Error(err))
					continue
				}
				if len(deleted) > 0 {
					s.logger.Info("expired exports purged", zap.Int("count", len(deleted)))
				}
			}
		}
	}()
}

// collect pages through the scope query until the window is exhausted.
// Authorization runs inside the ledger service on every page.
func (s *ExportService) collect(ctx context.Context, q models.LedgerScopeQuery, actor *models.JWTClaims) ([]models.LedgerEntry, error) {
	q.Page = 1
	q.PageSize = exportPageSize
	var all []models.LedgerEntry
	for {
		entries, pagination, err := s.trail.QueryByScope(ctx, q, actor)
		if err != nil {
			return nil, err
		}
		if pagination != nil && pagination.TotalCount > maxExportEntries {
			return nil, appErrors.Clone(appErrors.ErrValidation, "export window too large, narrow the time range")
		}
		all = append(all, entries...)
		if len(entries) < exportPageSize {
			return all, nil
		}
		if pagination != nil && len(all) >= pagination.TotalCount {
			return all, nil
		}
		q.Page++
	}
}

func buildTrailDataset(entries []models.LedgerEntry) export.Dataset {
	headers := []string{"Occurred At", "Scope", "Action", "Actor", "Resource", "Reason", "Checksum"}
	rows := make([]map[string]string, 0, len(entries))
	for _, entry := range entries {
		rows = append(rows, map[string]string{
			"Occurred At": entry.OccurredAt.UTC().Format(time.RFC3339),
			"Scope":       string(entry.Scope),
			"Action":      string(entry.ActionType),
			"Actor":       deref(entry.ActorID),
			"Resource":    entry.ResourceType + "/" + entry.ResourceID,
			"Reason":      entry.Reason,
			"Checksum":    entry.Checksum,
		})
	}
	return export.Dataset{Headers: headers, Rows: rows}
}

func deref(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
