package repository_test

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"workflowengine/src/model"
	"workflowengine/src/repository"
)

func setupDBMock(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Info),
	})
	require.NoError(t, err)

	return gormDB, mock
}

func TestLimitOrderRepository_FindAllOpen_ExcludesTerminalRows(t *testing.T) {
	db, mock := setupDBMock(t)
	repo := (&repository.LimitOrderRepository{}).WithDB(db)

	rows := sqlmock.NewRows([]string{
		"id", "user_id", "workflow_id", "review_result_id", "order_id", "symbol", "token", "side", "price", "quantity", "status", "cancellation_reason",
	}).
		AddRow(uint(1), uint(2), uint(1), uint(10), "a", "BTCUSDT", "BTC", "BUY", 99.9, 0.5, model.LimitOrderStatusOpen, "").
		AddRow(uint(2), uint(2), uint(1), uint(10), "b", "ETHUSDT", "ETH", "SELL", 3100.0, 1.0, model.LimitOrderStatusOpen, "")

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "limit_orders" WHERE status = $1 ORDER BY user_id, symbol`)).
		WithArgs(model.LimitOrderStatusOpen).
		WillReturnRows(rows)

	orders, err := repo.FindAllOpen(context.Background())
	require.NoError(t, err)
	require.Len(t, orders, 2)
	require.Equal(t, "a", orders[0].OrderID)
	require.Equal(t, "BTCUSDT", orders[0].Symbol)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLimitOrderRepository_FindOpenByWorkflow(t *testing.T) {
	db, mock := setupDBMock(t)
	repo := (&repository.LimitOrderRepository{}).WithDB(db)

	rows := sqlmock.NewRows([]string{"id", "workflow_id", "order_id", "symbol", "status"}).
		AddRow(uint(1), uint(7), "a", "BTCUSDT", model.LimitOrderStatusOpen)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "limit_orders" WHERE workflow_id = $1 AND status = $2`)).
		WithArgs(uint(7), model.LimitOrderStatusOpen).
		WillReturnRows(rows)

	orders, err := repo.FindOpenByWorkflow(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	require.Equal(t, uint(7), orders[0].WorkflowID)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLimitOrderRepository_MarkCanceled_WritesReason(t *testing.T) {
	db, mock := setupDBMock(t)
	repo := (&repository.LimitOrderRepository{}).WithDB(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "limit_orders" SET`)).
		WithArgs(model.CancelReasonPriceDivergence, model.LimitOrderStatusCanceled, sqlmock.AnyArg(), uint(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.MarkCanceled(context.Background(), 5, model.CancelReasonPriceDivergence)
	require.NoError(t, err)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLimitOrderRepository_MarkFilled_OmitsReason(t *testing.T) {
	db, mock := setupDBMock(t)
	repo := (&repository.LimitOrderRepository{}).WithDB(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "limit_orders" SET`)).
		WithArgs(model.LimitOrderStatusFilled, sqlmock.AnyArg(), uint(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.MarkFilled(context.Background(), 5)
	require.NoError(t, err)

	require.NoError(t, mock.ExpectationsWereMet())
}
