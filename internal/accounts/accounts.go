package accounts

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/quantdesk/quantdesk-api/internal/types"
)

var (
	ErrAccountNotFound = errors.New("trading account not found")
	ErrInvalidBroker   = errors.New("unknown broker")
)

var supportedBrokers = map[string]bool{
	types.BrokerBinance:     true,
	types.BrokerBybit:       true,
	types.BrokerTradovate:   true,
	types.BrokerNinjaTrader: true,
	types.BrokerDemo:        true,
}

// Service manages a user's linked trading accounts.
type Service struct {
	db *Database
}

func NewService(gormDB *gorm.DB) *Service {
	return &Service{db: NewDatabase(gormDB)}
}

// CreateParams is the input for linking a new trading account.
type CreateParams struct {
	Broker    string
	Label     string
	APIKey    string
	APISecret string
	DemoMode  bool
	Currency  string
}

// Create links a broker account to the user. Accounts without credentials are
// forced into demo mode.
func (s *Service) Create(userID string, p CreateParams) (*types.TradingAccount, error) {
	if !supportedBrokers[p.Broker] {
		return nil, ErrInvalidBroker
	}
	if p.Broker == types.BrokerDemo {
		p.DemoMode = true
	}
	if p.APIKey == "" || (p.APISecret == "" && p.Broker != types.BrokerNinjaTrader) {
		p.DemoMode = true
	}
	if p.Currency == "" {
		p.Currency = "USDT"
	}

	account := &types.TradingAccount{
		AccountID: uuid.New().String(),
		UserID:    userID,
		Broker:    p.Broker,
		Label:     p.Label,
		APIKey:    p.APIKey,
		APISecret: p.APISecret,
		DemoMode:  p.DemoMode,
		Currency:  p.Currency,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := s.db.CreateAccount(account); err != nil {
		return nil, err
	}
	return account, nil
}

// List returns all accounts owned by the user.
func (s *Service) List(userID string) ([]types.TradingAccount, error) {
	return s.db.ListAccounts(userID)
}

// Get returns one account, scoped to the owning user.
func (s *Service) Get(userID, accountID string) (*types.TradingAccount, error) {
	account, err := s.db.GetAccount(userID, accountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, ErrAccountNotFound
	}
	return account, nil
}

// Delete unlinks an account.
func (s *Service) Delete(userID, accountID string) error {
	account, err := s.Get(userID, accountID)
	if err != nil {
		return err
	}
	return s.db.DeleteAccount(account)
}
