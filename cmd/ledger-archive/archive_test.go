package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/oolio-settle/internal/domain/ledger"
)

// --- Mock implementations ---

type fakeStore struct {
	records []ledger.ClosedTicket
}

func (s *fakeStore) Each(_ context.Context, fn func(*ledger.ClosedTicket) error) error {
	for i := range s.records {
		if err := fn(&s.records[i]); err != nil {
			return err
		}
	}
	return nil
}

func (s *fakeStore) Get(_ context.Context, id string) (*ledger.ClosedTicket, error) {
	for i := range s.records {
		if s.records[i].ID == id {
			t := s.records[i]
			return &t, nil
		}
	}
	return nil, ledger.ErrNotFound
}

func (s *fakeStore) Append(_ context.Context, t *ledger.ClosedTicket) error {
	if _, err := s.Get(context.Background(), t.ID); err == nil {
		return ledger.ErrDuplicate
	}
	s.records = append(s.records, *t)
	return nil
}

// --- Helpers ---

func newRecord(id, number string, total int64) ledger.ClosedTicket {
	return ledger.ClosedTicket{
		ID:            id,
		TicketID:      number,
		OrderID:       "o-" + id,
		Total:         decimal.NewFromInt(total),
		Subtotal:      decimal.NewFromInt(total),
		Tax:           decimal.Zero,
		PaymentMethod: ledger.PaymentCash,
		DocumentType:  ledger.DocTicket,
		ClosedAt:      time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC),
	}
}

// --- Tests ---

func TestExportRestore(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	src := &fakeStore{records: []ledger.ClosedTicket{
		newRecord("a", "000001", 10),
		newRecord("b", "000002", 20),
		newRecord("c", "R000001", 5),
	}}
	path := filepath.Join(dir, "ledger.jsonl.gz")

	n, err := export(ctx, src, path)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// The destination already holds one of the records.
	dst := &fakeStore{records: []ledger.ClosedTicket{newRecord("b", "000002", 20)}}
	st, err := restore(ctx, dst, []string{path})
	require.NoError(t, err)
	assert.Equal(t, importStats{read: 3, appended: 2, skipped: 1}, st)

	require.Len(t, dst.records, 3)
	assert.Equal(t, "b", dst.records[0].ID)
	assert.Equal(t, "a", dst.records[1].ID)
	assert.Equal(t, "c", dst.records[2].ID)
	assert.True(t, decimal.NewFromInt(5).Equal(dst.records[2].Total))
	assert.True(t, src.records[0].ClosedAt.Equal(dst.records[1].ClosedAt))

	// Restoring the same archive again is a no-op.
	st, err = restore(ctx, dst, []string{path})
	require.NoError(t, err)
	assert.Equal(t, 0, st.appended)
	assert.Equal(t, 3, st.skipped)
}

func TestRestore_MultipleArchivesInOrder(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	first := filepath.Join(dir, "2024-01.jsonl.gz")
	second := filepath.Join(dir, "2024-02.jsonl.gz")
	_, err := export(ctx, &fakeStore{records: []ledger.ClosedTicket{newRecord("a", "000001", 1)}}, first)
	require.NoError(t, err)
	_, err = export(ctx, &fakeStore{records: []ledger.ClosedTicket{newRecord("b", "000002", 2), newRecord("a", "000001", 1)}}, second)
	require.NoError(t, err)

	dst := &fakeStore{}
	st, err := restore(ctx, dst, []string{first, second})
	require.NoError(t, err)
	assert.Equal(t, importStats{read: 3, appended: 2, skipped: 1}, st)
	require.Len(t, dst.records, 2)
	assert.Equal(t, "a", dst.records[0].ID)
	assert.Equal(t, "b", dst.records[1].ID)
}

func TestRestore_MissingFile(t *testing.T) {
	_, err := restore(context.Background(), &fakeStore{}, []string{filepath.Join(t.TempDir(), "missing.gz")})
	require.Error(t, err)
}
