package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"livraria/backend/internal/domain"
	"livraria/backend/internal/store"
	"livraria/backend/internal/validation"
)

// RecordMovement applies one stock movement and appends its audit row. An
// outbound movement larger than the quantity on hand is rejected before any
// write.
func (s *Service) RecordMovement(ctx context.Context, req domain.StockMovementRequest) (domain.StockMovementResponse, error) {
	if err := validation.Struct(req); err != nil {
		return domain.StockMovementResponse{}, err
	}

	book, err := s.repo.Books().Get(ctx, req.BookID)
	if err != nil {
		return domain.StockMovementResponse{}, err
	}
	if req.Direction == domain.DirectionOut && req.Quantity > book.Quantity {
		return domain.StockMovementResponse{}, fmt.Errorf("%w: book %s has %d, requested %d", store.ErrInsufficientStock, book.ID, book.Quantity, req.Quantity)
	}

	movement, qty, err := s.moveStock(ctx, book.ID, req.Direction, req.Quantity, req.Reason, req.Note)
	if err != nil && !errors.Is(err, errMovementNotLogged) {
		return domain.StockMovementResponse{}, err
	}
	book.Quantity = qty

	s.logAudit(ctx, "stock_"+req.Direction, "book", book.ID, fmt.Sprintf("qty=%d,reason=%s,on_hand=%d", req.Quantity, req.Reason, qty))
	s.invalidateDashboard(ctx)
	return domain.StockMovementResponse{Book: *book, Movement: movement}, nil
}

var errMovementNotLogged = errors.New("stock movement not logged")

// moveStock updates the quantity and appends the movement row. The two writes
// are independent: a failed movement insert after a successful update is
// logged and reported as errMovementNotLogged, never rolled back.
func (s *Service) moveStock(ctx context.Context, bookID string, direction string, quantity int, reason string, note string) (domain.StockMovement, int, error) {
	delta := quantity
	if direction == domain.DirectionOut {
		delta = -quantity
	}

	qty, err := s.repo.IncrementBookQuantity(ctx, bookID, delta)
	if err != nil {
		return domain.StockMovement{}, 0, err
	}

	movement, err := s.repo.AppendStockMovement(ctx, domain.StockMovement{
		BookID:    bookID,
		Direction: direction,
		Quantity:  quantity,
		Reason:    reason,
		Note:      note,
		Actor:     actorName(ctx),
	})
	if err != nil {
		log.Printf("[stock] WARN: quantity of book=%s changed by %d but movement insert failed: %v", bookID, delta, err)
		return domain.StockMovement{}, qty, errMovementNotLogged
	}
	return *movement, qty, nil
}

// AdjustInventory reconciles counted quantities with the system quantities,
// issuing one adjustment movement per line that differs.
func (s *Service) AdjustInventory(ctx context.Context, req domain.InventoryCountRequest) (domain.InventoryAdjustmentResponse, error) {
	if err := validation.Struct(req); err != nil {
		return domain.InventoryAdjustmentResponse{}, err
	}

	resp := domain.InventoryAdjustmentResponse{
		Lines:     make([]domain.InventoryAdjustmentLine, 0, len(req.Items)),
		CreatedAt: s.now().Format(time.RFC3339),
	}

	for _, item := range req.Items {
		line := domain.InventoryAdjustmentLine{BookID: item.BookID, CountedQty: item.CountedQty}

		book, err := s.repo.Books().Get(ctx, item.BookID)
		if err != nil {
			line.Error = err.Error()
			resp.Lines = append(resp.Lines, line)
			continue
		}
		line.SystemQty = book.Quantity
		line.DeltaQty = item.CountedQty - book.Quantity

		switch {
		case line.DeltaQty > 0:
			resp.Increases++
		case line.DeltaQty < 0:
			resp.Decreases++
		default:
			resp.Lines = append(resp.Lines, line)
			continue
		}
		resp.NetDelta += line.DeltaQty

		direction, qty := domain.DirectionIn, line.DeltaQty
		if qty < 0 {
			direction, qty = domain.DirectionOut, -qty
		}
		note := defaultString(req.Note, "inventory count")
		if _, _, err := s.moveStock(ctx, book.ID, direction, qty, domain.ReasonAdjustment, note); err != nil {
			if !errors.Is(err, errMovementNotLogged) {
				log.Printf("[stock] WARN: inventory adjustment failed book=%s: %v", book.ID, err)
			}
			line.Error = err.Error()
		}
		resp.Lines = append(resp.Lines, line)
	}

	s.logAudit(ctx, "inventory_adjust", "inventory", "-", fmt.Sprintf("lines=%d,increases=%d,decreases=%d,net=%d", len(req.Items), resp.Increases, resp.Decreases, resp.NetDelta))
	s.invalidateDashboard(ctx)
	return resp, nil
}

func (s *Service) BookMovements(ctx context.Context, bookID string, q store.Query) ([]domain.StockMovement, error) {
	if _, err := s.repo.Books().Get(ctx, bookID); err != nil {
		return nil, err
	}
	return s.repo.ListStockMovements(ctx, q.Where("book_id", bookID))
}

func (s *Service) StockMovements(ctx context.Context, q store.Query) ([]domain.StockMovement, error) {
	return s.repo.ListStockMovements(ctx, q)
}
