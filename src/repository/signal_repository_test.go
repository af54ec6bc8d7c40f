package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"autotrader/src/model"
)

func TestSignalRepositoryTransitionStatus(t *testing.T) {
	t.Run("writes the transition and its audit entry in one transaction", func(t *testing.T) {
		mockDB, mock := newMockDB(t)
		repo := NewSignalRepository(mockDB)

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE "signals" SET "status"=$1,"updated_at"=$2 WHERE id = $3 AND status = $4`)).
			WithArgs(model.SignalStatusApproved, sqlmock.AnyArg(), uint(5), model.SignalStatusPendingApproval).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "audit_log" ("timestamp","entity","entity_id","from_status","to_status","actor","detail") VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING "id"`)).
			WithArgs(sqlmock.AnyArg(), "signal", uint(5),
				model.SignalStatusPendingApproval, model.SignalStatusApproved,
				model.ActorApprover, "approved via telegram").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
		mock.ExpectCommit()

		err := repo.TransitionStatus(context.Background(), 5,
			model.SignalStatusPendingApproval, model.SignalStatusApproved,
			model.ActorApprover, "approved via telegram")
		if err != nil {
			t.Fatalf("unexpected error transitioning signal: %v", err)
		}

		if err := mock.ExpectationsWereMet(); err != nil {
			t.Fatalf("unmet sqlmock expectations: %v", err)
		}
	})

	t.Run("rolls back when the signal already moved on", func(t *testing.T) {
		mockDB, mock := newMockDB(t)
		repo := NewSignalRepository(mockDB)

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE "signals" SET "status"=$1,"updated_at"=$2 WHERE id = $3 AND status = $4`)).
			WithArgs(model.SignalStatusExpired, sqlmock.AnyArg(), uint(5), model.SignalStatusPendingApproval).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		err := repo.TransitionStatus(context.Background(), 5,
			model.SignalStatusPendingApproval, model.SignalStatusExpired,
			model.ActorEngine, "approval deadline passed")
		if !errors.Is(err, ErrStaleTransition) {
			t.Fatalf("expected ErrStaleTransition, got %v", err)
		}

		if err := mock.ExpectationsWereMet(); err != nil {
			t.Fatalf("unmet sqlmock expectations: %v", err)
		}
	})
}

func TestSignalRepositoryMarkExecuting(t *testing.T) {
	t.Run("persists the client order id with the status change", func(t *testing.T) {
		mockDB, mock := newMockDB(t)
		repo := NewSignalRepository(mockDB)

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE "signals" SET "client_order_id"=$1,"status"=$2,"updated_at"=$3 WHERE id = $4 AND status = $5`)).
			WithArgs("order-abc", model.SignalStatusExecuting, sqlmock.AnyArg(), uint(9), model.SignalStatusApproved).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "audit_log" ("timestamp","entity","entity_id","from_status","to_status","actor","detail") VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING "id"`)).
			WithArgs(sqlmock.AnyArg(), "signal", uint(9),
				model.SignalStatusApproved, model.SignalStatusExecuting,
				model.ActorEngine, "order order-abc").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(2))
		mock.ExpectCommit()

		if err := repo.MarkExecuting(context.Background(), 9, "order-abc"); err != nil {
			t.Fatalf("unexpected error marking signal executing: %v", err)
		}

		if err := mock.ExpectationsWereMet(); err != nil {
			t.Fatalf("unmet sqlmock expectations: %v", err)
		}
	})

	t.Run("refuses a signal that is not approved", func(t *testing.T) {
		mockDB, mock := newMockDB(t)
		repo := NewSignalRepository(mockDB)

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE "signals" SET "client_order_id"=$1,"status"=$2,"updated_at"=$3 WHERE id = $4 AND status = $5`)).
			WithArgs("order-abc", model.SignalStatusExecuting, sqlmock.AnyArg(), uint(9), model.SignalStatusApproved).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		err := repo.MarkExecuting(context.Background(), 9, "order-abc")
		if !errors.Is(err, ErrStaleTransition) {
			t.Fatalf("expected ErrStaleTransition, got %v", err)
		}

		if err := mock.ExpectationsWereMet(); err != nil {
			t.Fatalf("unmet sqlmock expectations: %v", err)
		}
	})
}

func TestSignalRepositoryFindByApprovalID(t *testing.T) {
	mockDB, mock := newMockDB(t)
	repo := NewSignalRepository(mockDB)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "signals" WHERE approval_id = $1 ORDER BY "signals"."id" LIMIT $2`)).
		WithArgs("missing-request", 1).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	signal, err := repo.FindByApprovalID(context.Background(), "missing-request")
	if err != nil {
		t.Fatalf("unexpected error for unknown approval id: %v", err)
	}
	if signal != nil {
		t.Fatalf("expected nil signal for unknown approval id, got %+v", signal)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sqlmock expectations: %v", err)
	}
}

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}

	dialector := postgres.New(postgres.Config{
		DSN:                  "sqlmock_db_0",
		Conn:                 sqlDB,
		PreferSimpleProtocol: true,
	})

	gdb, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		sqlDB.Close()
		t.Fatalf("failed to open gorm DB with sqlmock: %v", err)
	}

	return gdb, mock
}
