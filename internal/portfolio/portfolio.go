// Package portfolio maintains mark-to-market valuations for user positions
// and the aggregate portfolio records behind the dashboard summary.
package portfolio

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/quantdesk/quantdesk-api/internal/market"
	"github.com/quantdesk/quantdesk-api/internal/types"
)

// Service computes portfolio aggregates from positions and market prices.
type Service struct {
	db     *Database
	market *market.Service
}

func NewService(gormDB *gorm.DB, marketSvc *market.Service) *Service {
	return &Service{
		db:     NewDatabase(gormDB),
		market: marketSvc,
	}
}

// Summary is the portfolio response payload.
type Summary struct {
	Portfolio *types.Portfolio `json:"portfolio"`
	Positions []types.Position `json:"positions"`
}

// GetSummary re-marks the user's open positions against current prices and
// returns the refreshed aggregate.
func (s *Service) GetSummary(ctx context.Context, userID string) (*Summary, error) {
	positions, err := s.db.ListOpenPositions(userID)
	if err != nil {
		return nil, err
	}

	if len(positions) > 0 {
		symbols := uniqueSymbols(positions)
		tickers, err := s.market.GetPrices(ctx, symbols)
		if err != nil {
			return nil, err
		}
		prices := make(map[string]float64, len(tickers))
		for _, t := range tickers {
			prices[t.Symbol] = t.Price
		}

		for i := range positions {
			if price, ok := prices[positions[i].Symbol]; ok {
				markPosition(&positions[i], price)
				if err := s.db.UpdatePosition(&positions[i]); err != nil {
					return nil, err
				}
			}
		}
	}

	portfolio, err := s.refreshAggregate(userID, positions)
	if err != nil {
		return nil, err
	}

	return &Summary{Portfolio: portfolio, Positions: positions}, nil
}

// RefreshUser re-marks one user's positions without returning a payload; used
// by the background refresher.
func (s *Service) RefreshUser(ctx context.Context, userID string) error {
	_, err := s.GetSummary(ctx, userID)
	return err
}

// ActiveUserIDs lists users with open positions.
func (s *Service) ActiveUserIDs() ([]string, error) {
	return s.db.ActiveUserIDs()
}

// markPosition updates the mark price and unrealized P&L of one position.
// Aggregate money math goes through decimals to keep cents exact.
func markPosition(p *types.Position, price float64) {
	p.MarkPrice = price

	entry := decimal.NewFromFloat(p.EntryPrice)
	mark := decimal.NewFromFloat(price)
	qty := decimal.NewFromFloat(p.Quantity)

	diff := mark.Sub(entry)
	if p.Side == "SHORT" {
		diff = entry.Sub(mark)
	}
	p.UnrealizedPnL, _ = diff.Mul(qty).Round(8).Float64()
}

// refreshAggregate recomputes and persists the user's portfolio record.
func (s *Service) refreshAggregate(userID string, positions []types.Position) (*types.Portfolio, error) {
	portfolio, err := s.db.GetPortfolio(userID)
	if err != nil {
		return nil, err
	}
	if portfolio == nil {
		portfolio = &types.Portfolio{
			PortfolioID: uuid.New().String(),
			UserID:      userID,
		}
	}

	unrealized := decimal.Zero
	value := decimal.Zero
	for _, p := range positions {
		unrealized = unrealized.Add(decimal.NewFromFloat(p.UnrealizedPnL))
		value = value.Add(decimal.NewFromFloat(p.MarkPrice).Mul(decimal.NewFromFloat(p.Quantity)))
	}

	realized, err := s.db.SumRealizedPnL(userID)
	if err != nil {
		return nil, err
	}

	portfolio.UnrealizedPnL, _ = unrealized.Round(8).Float64()
	portfolio.RealizedPnL = realized
	portfolio.TotalValue, _ = value.Add(decimal.NewFromFloat(portfolio.CashBalance)).Round(8).Float64()
	portfolio.UpdatedAt = time.Now()

	if err := s.db.UpsertPortfolio(portfolio); err != nil {
		return nil, err
	}
	return portfolio, nil
}

func uniqueSymbols(positions []types.Position) []string {
	seen := make(map[string]bool, len(positions))
	var symbols []string
	for _, p := range positions {
		if !seen[p.Symbol] {
			seen[p.Symbol] = true
			symbols = append(symbols, p.Symbol)
		}
	}
	return symbols
}
