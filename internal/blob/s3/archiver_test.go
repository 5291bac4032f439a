package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantpulse/pulsebot/internal/domain"
)

var archiveCutoff = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

type memBlobWriter struct {
	path        string
	contentType string
	data        []byte
	putErr      error
}

func (w *memBlobWriter) Put(_ context.Context, path string, data io.Reader, contentType string) error {
	if w.putErr != nil {
		return w.putErr
	}
	buf, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	w.path = path
	w.contentType = contentType
	w.data = buf
	return nil
}

func (w *memBlobWriter) PutMultipart(_ context.Context, path string, data io.Reader, _ int64) error {
	return w.Put(context.Background(), path, data, "")
}

type stubDecisionArchive struct {
	decisions []domain.TradeDecision
	err       error
}

func (s *stubDecisionArchive) ListBefore(context.Context, time.Time) ([]domain.TradeDecision, error) {
	return s.decisions, s.err
}

type stubTradeArchive struct {
	trades []domain.Trade
	err    error
}

func (s *stubTradeArchive) ListBefore(context.Context, time.Time) ([]domain.Trade, error) {
	return s.trades, s.err
}

type stubOutcomeArchive struct {
	outcomes []domain.OutcomeReport
	err      error
}

func (s *stubOutcomeArchive) ListBefore(context.Context, time.Time) ([]domain.OutcomeReport, error) {
	return s.outcomes, s.err
}

type memAudit struct {
	events []string
	detail map[string]any
	err    error
}

func (a *memAudit) Log(_ context.Context, event string, detail map[string]any) error {
	if a.err != nil {
		return a.err
	}
	a.events = append(a.events, event)
	a.detail = detail
	return nil
}

func (a *memAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

func settledTrade(id string, pnl float64) domain.Trade {
	return domain.Trade{
		ID:        id,
		Asset:     "BTC",
		Direction: domain.DirectionUp,
		Status:    domain.TradeStatusSettled,
		Result:    domain.OutcomeWin,
		PnL:       pnl,
		SettledAt: &archiveCutoff,
	}
}

// jsonlLines splits a JSONL payload and unmarshals each line into a map.
func jsonlLines(t *testing.T, data []byte) []map[string]any {
	t.Helper()
	var lines []map[string]any
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		var m map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &m))
		lines = append(lines, m)
	}
	require.NoError(t, scanner.Err())
	return lines
}

func TestArchiveTradesUploadsMonthlyJSONL(t *testing.T) {
	writer := &memBlobWriter{}
	audit := &memAudit{}
	trades := &stubTradeArchive{trades: []domain.Trade{
		settledTrade("t-1", 15),
		settledTrade("t-2", -10),
	}}
	arch := NewArchiver(writer, &stubDecisionArchive{}, trades, &stubOutcomeArchive{}, audit)

	count, err := arch.ArchiveTrades(context.Background(), archiveCutoff)

	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
	assert.Equal(t, "archive/trades/2025-06.jsonl", writer.path)
	assert.Equal(t, "application/x-ndjson", writer.contentType)

	lines := jsonlLines(t, writer.data)
	require.Len(t, lines, 2)
	assert.Equal(t, "t-1", lines[0]["ID"])
	assert.Equal(t, "t-2", lines[1]["ID"])

	require.Equal(t, []string{"archive.trades"}, audit.events)
	assert.Equal(t, int64(2), audit.detail["count"])
}

func TestArchiveDecisionsSkipsUploadWhenEmpty(t *testing.T) {
	writer := &memBlobWriter{}
	audit := &memAudit{}
	arch := NewArchiver(writer, &stubDecisionArchive{}, &stubTradeArchive{}, &stubOutcomeArchive{}, audit)

	count, err := arch.ArchiveDecisions(context.Background(), archiveCutoff)

	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Empty(t, writer.path)
	assert.Empty(t, audit.events)
}

func TestArchiveOutcomesSurfacesUploadFailure(t *testing.T) {
	writer := &memBlobWriter{putErr: assert.AnError}
	audit := &memAudit{}
	outcomes := &stubOutcomeArchive{outcomes: []domain.OutcomeReport{
		{TradeID: "t-1", Asset: "BTC", Result: domain.OutcomeWin, PnL: 15, SettledAt: archiveCutoff},
	}}
	arch := NewArchiver(writer, &stubDecisionArchive{}, &stubTradeArchive{}, outcomes, audit)

	count, err := arch.ArchiveOutcomes(context.Background(), archiveCutoff)

	require.ErrorIs(t, err, assert.AnError)
	assert.Zero(t, count)
	assert.Empty(t, audit.events)
}

func TestArchiveTradesReturnsCountEvenWhenAuditFails(t *testing.T) {
	writer := &memBlobWriter{}
	audit := &memAudit{err: assert.AnError}
	trades := &stubTradeArchive{trades: []domain.Trade{settledTrade("t-1", 15)}}
	arch := NewArchiver(writer, &stubDecisionArchive{}, trades, &stubOutcomeArchive{}, audit)

	count, err := arch.ArchiveTrades(context.Background(), archiveCutoff)

	require.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, int64(1), count)
	assert.Equal(t, "archive/trades/2025-06.jsonl", writer.path)
}

func TestArchivePathPartitionsByMonth(t *testing.T) {
	before := time.Date(2025, 1, 15, 3, 0, 0, 0, time.UTC)
	assert.Equal(t, "archive/decisions/2025-01.jsonl", archivePath("decisions", before))
}
