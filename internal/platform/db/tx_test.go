package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ehr/clinic/internal/platform/apperr"
)

func TestTxScope(t *testing.T) {
	ctx := context.Background()
	if HasTxScope(ctx) {
		t.Error("expected no tx scope on a bare context")
	}
	if !HasTxScope(MarkTxScope(ctx)) {
		t.Error("expected tx scope after MarkTxScope")
	}
}

func TestPoolTxRunner_NoPoolNoConn(t *testing.T) {
	r := NewPoolTxRunner(nil, 0)
	called := false
	err := r.InTx(context.Background(), func(ctx context.Context) error {
		called = true
		return nil
	})
	if err == nil {
		t.Fatal("expected error without pool or request connection")
	}
	if called {
		t.Error("fn must not run when the transaction cannot begin")
	}
}

func TestClassify(t *testing.T) {
	pg := func(code string) error {
		return fmt.Errorf("exec: %w", &pgconn.PgError{Code: code, ConstraintName: "inventory_sku_key"})
	}
	tests := []struct {
		name string
		err  error
		want apperr.Kind
	}{
		{"no rows", pgx.ErrNoRows, apperr.KindNotFound},
		{"unique", pg("23505"), apperr.KindConflict},
		{"foreign key", pg("23503"), apperr.KindInvalidState},
		{"check", pg("23514"), apperr.KindInvalidState},
		{"lock timeout", pg("55P03"), apperr.KindUnavailable},
		{"deadlock", pg("40P01"), apperr.KindUnavailable},
		{"serialization", pg("40001"), apperr.KindUnavailable},
		{"deadline", context.DeadlineExceeded, apperr.KindUnavailable},
		{"other pg", pg("42P01"), apperr.KindInternal},
		{"plain", errors.New("boom"), apperr.KindInternal},
		{"already classified", apperr.NotFound("Patient not found"), apperr.KindNotFound},
		{"stock", &apperr.StockError{Available: 1, Required: 2}, apperr.KindInsufficientStock},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := apperr.KindOf(Classify(tt.err)); got != tt.want {
				t.Errorf("Classify() kind = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClassify_Nil(t *testing.T) {
	if Classify(nil) != nil {
		t.Error("expected nil")
	}
}

func TestClassify_KeepsCause(t *testing.T) {
	cause := &pgconn.PgError{Code: "23505", ConstraintName: "clinicians_user_id_key"}
	err := Classify(cause)
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		t.Fatal("expected pg error to stay reachable")
	}
	if ConstraintName(err) != "clinicians_user_id_key" {
		t.Errorf("unexpected constraint %q", ConstraintName(err))
	}
}
