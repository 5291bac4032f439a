package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/quantpulse/pulsebot/internal/domain"
)

// ---------------------------------------------------------------------------
// Narrow store interfaces required by the archiver.
//
// The archiver only needs time-ranged read access, not the full domain store
// interfaces. The Postgres stores satisfy these through their ListBefore
// methods.
// ---------------------------------------------------------------------------

// DecisionArchiveStore provides read access to decisions for archival.
type DecisionArchiveStore interface {
	// ListBefore returns all decisions created strictly before the cutoff.
	ListBefore(ctx context.Context, before time.Time) ([]domain.TradeDecision, error)
}

// TradeArchiveStore provides read access to settled trades for archival.
type TradeArchiveStore interface {
	// ListBefore returns all settled trades with a settlement timestamp
	// strictly before the cutoff. Open trades are never returned.
	ListBefore(ctx context.Context, before time.Time) ([]domain.Trade, error)
}

// OutcomeArchiveStore provides read access to outcome reports for archival.
type OutcomeArchiveStore interface {
	// ListBefore returns all outcome reports settled strictly before the
	// cutoff.
	ListBefore(ctx context.Context, before time.Time) ([]domain.OutcomeReport, error)
}

// ---------------------------------------------------------------------------
// ArchiveImpl
// ---------------------------------------------------------------------------

// ArchiveImpl implements domain.Archiver by querying the domain stores for
// aged records, serializing them to JSONL, and uploading the result to S3.
//
// Deletion of the archived records from the primary store is intentionally
// NOT performed here -- that is a separate, explicit step to be executed
// after the archive has been verified.
type ArchiveImpl struct {
	writer    domain.BlobWriter
	decisions DecisionArchiveStore
	trades    TradeArchiveStore
	outcomes  OutcomeArchiveStore
	audit     domain.AuditStore
}

// NewArchiver creates a new ArchiveImpl.
func NewArchiver(
	writer domain.BlobWriter,
	decisions DecisionArchiveStore,
	trades TradeArchiveStore,
	outcomes OutcomeArchiveStore,
	audit domain.AuditStore,
) *ArchiveImpl {
	return &ArchiveImpl{
		writer:    writer,
		decisions: decisions,
		trades:    trades,
		outcomes:  outcomes,
		audit:     audit,
	}
}

// ArchiveDecisions queries all decisions before the cutoff, serializes them
// to JSONL, and uploads the file to S3 at archive/decisions/YYYY-MM.jsonl.
// The archival event is recorded in the audit log and the count of archived
// records is returned.
func (a *ArchiveImpl) ArchiveDecisions(ctx context.Context, before time.Time) (int64, error) {
	decisions, err := a.decisions.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive decisions query: %w", err)
	}
	if len(decisions) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(decisions)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive decisions marshal: %w", err)
	}

	path := archivePath("decisions", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive decisions upload: %w", err)
	}

	count := int64(len(decisions))

	if err := a.audit.Log(ctx, "archive.decisions", map[string]any{
		"path":   path,
		"count":  count,
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive decisions audit log: %w", err)
	}

	return count, nil
}

// ArchiveTrades queries all settled trades before the cutoff, serializes
// them to JSONL, and uploads the file to S3 at archive/trades/YYYY-MM.jsonl.
// The archival event is recorded in the audit log and the count of archived
// records is returned.
func (a *ArchiveImpl) ArchiveTrades(ctx context.Context, before time.Time) (int64, error) {
	trades, err := a.trades.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades query: %w", err)
	}
	if len(trades) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(trades)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades marshal: %w", err)
	}

	path := archivePath("trades", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive trades upload: %w", err)
	}

	count := int64(len(trades))

	if err := a.audit.Log(ctx, "archive.trades", map[string]any{
		"path":   path,
		"count":  count,
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive trades audit log: %w", err)
	}

	return count, nil
}

// ArchiveOutcomes queries all outcome reports before the cutoff, serializes
// them to JSONL, and uploads the file to S3 at archive/outcomes/YYYY-MM.jsonl.
// The archival event is recorded in the audit log and the count of archived
// records is returned.
func (a *ArchiveImpl) ArchiveOutcomes(ctx context.Context, before time.Time) (int64, error) {
	outcomes, err := a.outcomes.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive outcomes query: %w", err)
	}
	if len(outcomes) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(outcomes)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive outcomes marshal: %w", err)
	}

	path := archivePath("outcomes", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive outcomes upload: %w", err)
	}

	count := int64(len(outcomes))

	if err := a.audit.Log(ctx, "archive.outcomes", map[string]any{
		"path":   path,
		"count":  count,
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive outcomes audit log: %w", err)
	}

	return count, nil
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

// archivePath builds the S3 key for an archive file, partitioned by the
// year-month of the cutoff time.
//
//	archive/decisions/2025-01.jsonl
//	archive/trades/2025-01.jsonl
//	archive/outcomes/2025-01.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON (JSONL).
// Each element is marshalled as a single compact JSON line followed by '\n'.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

var _ domain.Archiver = (*ArchiveImpl)(nil)
