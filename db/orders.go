package db

import (
	"context"
	"database/sql"
	"errors"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"github.com/micropay-ai/micropay.go/common"
	"github.com/micropay-ai/micropay.go/db/models"
	"github.com/micropay-ai/micropay.go/lib/service"
)

// OrderStore is the bun-backed implementation of the order repository.
type OrderStore struct {
	DB *bun.DB
}

func terminalStates() []common.OrderState {
	states := []common.OrderState{}
	for _, state := range common.OrderStates {
		if state.Terminal() {
			states = append(states, state)
		}
	}
	return states
}

func (s *OrderStore) CreateOrder(ctx context.Context, order *models.Order) error {
	_, err := s.DB.NewInsert().Model(order).Exec(ctx)
	return err
}

func (s *OrderStore) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	order := &models.Order{}
	err := s.DB.NewSelect().Model(order).Where("id = ?", id).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, service.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (s *OrderStore) GetOrderByPaymentHash(ctx context.Context, paymentHash string) (*models.Order, error) {
	order := &models.Order{}
	err := s.DB.NewSelect().Model(order).Where("payment_hash = ?", paymentHash).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, service.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return order, nil
}

// UpdateState is a no-op on orders that already reached a terminal
// state, so sealed orders can never move again.
func (s *OrderStore) UpdateState(ctx context.Context, id string, state common.OrderState) (bool, error) {
	res, err := s.DB.NewUpdate().
		Model((*models.Order)(nil)).
		Set("state = ?", state).
		Set("updated_at = current_timestamp").
		Where("id = ?", id).
		Where("state NOT IN (?)", bun.In(terminalStates())).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// SaveResults writes the result URLs at most once. The condition makes
// concurrent pipeline runs for the same order race safely: exactly one
// write applies, every other caller sees rows == 0.
func (s *OrderStore) SaveResults(ctx context.Context, id string, results []string) (bool, error) {
	res, err := s.DB.NewUpdate().
		Model((*models.Order)(nil)).
		Set("results = ?", pgdialect.Array(results)).
		Set("updated_at = current_timestamp").
		Where("id = ?", id).
		Where("(results IS NULL OR cardinality(results) = 0)").
		Where("state NOT IN (?)", bun.In(terminalStates())).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func (s *OrderStore) SetRefundRequest(ctx context.Context, paymentHash string, refundRequest string) error {
	_, err := s.DB.NewUpdate().
		Model((*models.Order)(nil)).
		Set("refund_request = ?", refundRequest).
		Set("updated_at = current_timestamp").
		Where("payment_hash = ?", paymentHash).
		Exec(ctx)
	return err
}

func (s *OrderStore) SetFeedback(ctx context.Context, id string, rating int, feedback string) error {
	_, err := s.DB.NewUpdate().
		Model((*models.Order)(nil)).
		Set("rating = ?", rating).
		Set("feedback = ?", feedback).
		Set("updated_at = current_timestamp").
		Where("id = ?", id).
		Exec(ctx)
	return err
}

func (s *OrderStore) ListUnfinishedOrders(ctx context.Context) ([]models.Order, error) {
	orders := []models.Order{}
	err := s.DB.NewSelect().
		Model(&orders).
		Where("state NOT IN (?)", bun.In(terminalStates())).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return orders, nil
}
