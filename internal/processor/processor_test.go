package processor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/insightdelivered/statement-reconciler/internal/models"
	"github.com/insightdelivered/statement-reconciler/internal/pipeline"
	"github.com/insightdelivered/statement-reconciler/internal/store"
	"github.com/insightdelivered/statement-reconciler/internal/worker"
)

const statementCSV = `HDFC Bank Statement
Account No: 50100234567890
Opening Balance,1000.00
Date,Narration,Ref No,Withdrawal Amt,Deposit Amt,Closing Balance
02/01/2025,UPI-COFFEE,UPI001,45.00,,955.00
05/01/2025,SALARY JAN,NEFT002,,2000.00,2955.00
09/01/2025,ATM CASH,ATM003,500.00,,2400.00
Closing Balance,,,,,2455.00
`

func setup(t *testing.T, content string) (*Processor, *store.BoltDB, *models.Statement) {
	t.Helper()
	dir := t.TempDir()
	db, err := store.NewBoltDB(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("NewBoltDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	path := filepath.Join(dir, "hdfc_jan.csv")
	if content != "" {
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	s := &models.Statement{FileName: "hdfc_jan.csv", FilePath: path}
	if err := db.CreateStatement(s); err != nil {
		t.Fatalf("CreateStatement: %v", err)
	}
	return New(db, pipeline.New(), zerolog.Nop()), db, s
}

func TestProcessRecordsOutcome(t *testing.T) {
	p, db, s := setup(t, statementCSV)

	if err := p.Process(context.Background(), s.ID); err != nil {
		t.Fatalf("Process: %v", err)
	}

	got, err := db.GetStatement(s.ID)
	if err != nil {
		t.Fatal(err)
	}
	// the last row's stated balance is wrong, so the statement fails validation
	if got.Status != models.StatementFailed {
		t.Errorf("got status %s, want failed", got.Status)
	}
	if got.IsValid {
		t.Error("expected invalid statement")
	}
	if got.TransactionCount != 3 || got.ParserUsed != "generic_parser" || got.Format != models.FormatTabular {
		t.Errorf("got %+v", got)
	}
	if got.Metadata.AccountNumber != "50100234567890" {
		t.Errorf("got account %q", got.Metadata.AccountNumber)
	}
	if got.ProcessedAt == nil {
		t.Error("expected processed time")
	}

	txns, err := db.Transactions(s.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(txns) != 3 {
		t.Fatalf("got %d stored transactions", len(txns))
	}

	verified, err := p.Verified(s.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(verified) != 2 {
		t.Errorf("got %d verified transactions, want 2", len(verified))
	}
}

func TestProcessIsRepeatable(t *testing.T) {
	p, db, s := setup(t, statementCSV)

	for i := 0; i < 2; i++ {
		if err := p.Process(context.Background(), s.ID); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}
	txns, err := db.Transactions(s.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(txns) != 3 {
		t.Errorf("got %d transactions after two runs, want 3", len(txns))
	}
}

func TestProcessMissingFile(t *testing.T) {
	p, db, s := setup(t, "")

	err := p.Process(context.Background(), s.ID)
	var se *models.SourceError
	if !errors.As(err, &se) {
		t.Fatalf("got %v, want *models.SourceError", err)
	}

	got, _ := db.GetStatement(s.ID)
	if got.Status != models.StatementFailed || got.ErrorMessage == "" || got.RetryCount != 1 {
		t.Errorf("got status %s, message %q, retries %d", got.Status, got.ErrorMessage, got.RetryCount)
	}
}

func TestHandlePermanence(t *testing.T) {
	p, _, s := setup(t, "")

	// a missing file may appear later
	if err := p.Handle(context.Background(), &worker.Job{StatementID: s.ID}); err == nil || worker.IsPermanent(err) {
		t.Errorf("missing source: got %v, want retryable error", err)
	}

	if err := p.Handle(context.Background(), &worker.Job{StatementID: 999}); !worker.IsPermanent(err) {
		t.Errorf("unknown statement: got %v, want permanent error", err)
	}

	if err := os.WriteFile(s.FilePath, []byte{0x00, 0x01, 0x02, 0xff}, 0o644); err != nil {
		t.Fatal(err)
	}
	err := p.Handle(context.Background(), &worker.Job{StatementID: s.ID})
	if !worker.IsPermanent(err) || !errors.Is(err, models.ErrUnsupportedFormat) {
		t.Errorf("unsupported file: got %v", err)
	}
}

func TestVerifyAfterCorrection(t *testing.T) {
	p, db, s := setup(t, statementCSV)
	if err := p.Process(context.Background(), s.ID); err != nil {
		t.Fatalf("Process: %v", err)
	}

	txns, err := db.Transactions(s.ID)
	if err != nil {
		t.Fatal(err)
	}
	last := txns[len(txns)-1]
	last.Balance = decimal.NewNullDecimal(decimal.RequireFromString("2455.00"))
	if err := db.UpdateTransactions(s.ID, []models.Transaction{last}); err != nil {
		t.Fatalf("UpdateTransactions: %v", err)
	}

	res, err := p.Verify(context.Background(), s.ID)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !res.IsValid {
		t.Errorf("expected valid statement after correction, errors: %v", res.Errors)
	}
	got, _ := db.GetStatement(s.ID)
	if got.Status != models.StatementValidated || got.ErrorMessage != "" {
		t.Errorf("got status %s, message %q", got.Status, got.ErrorMessage)
	}
	verified, _ := p.Verified(s.ID)
	if len(verified) != 3 {
		t.Errorf("got %d verified transactions, want 3", len(verified))
	}
}

func TestResume(t *testing.T) {
	p, db, s := setup(t, statementCSV)
	done := &models.Statement{FileName: "done.csv", Status: models.StatementValidated}
	if err := db.CreateStatement(done); err != nil {
		t.Fatal(err)
	}

	var submitted []uint64
	n, err := p.Resume(context.Background(), func(ctx context.Context, id uint64) (string, error) {
		submitted = append(submitted, id)
		return "job", nil
	})
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if n != 1 || len(submitted) != 1 || submitted[0] != s.ID {
		t.Errorf("got %d resumed: %v", n, submitted)
	}
}
