package wallet

import (
	"errors"
	"time"
)

// Reservation states.
const (
	StatusReserved   = "reserved"
	StatusCommitted  = "committed"
	StatusRolledBack = "rolled_back"
)

// Ledger operations.
const (
	OpDeposit  = "deposit"
	OpReserve  = "reserve"
	OpCommit   = "commit"
	OpRake     = "rake"
	OpRollback = "rollback"
)

var (
	ErrAccountNotFound   = errors.New("wallet: account not found")
	ErrInsufficientFunds = errors.New("wallet: insufficient funds")
	ErrCurrencyMismatch  = errors.New("wallet: currency mismatch")
	ErrInvalidAmount     = errors.New("wallet: invalid amount")
	ErrReservation       = errors.New("wallet: reservation mismatch")
)

// Account holds a balance in one currency. Player accounts are keyed by
// player id; house accounts use the "house:" prefix.
type Account struct {
	ID        string    `gorm:"type:varchar(64);primaryKey" json:"id"`
	Currency  string    `gorm:"type:varchar(8);not null" json:"currency"`
	Balance   int64     `gorm:"not null" json:"balance"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Account) TableName() string { return "wallet_accounts" }

// Reservation is chips held from a player for one settlement batch.
type Reservation struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Ref       string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_reservation_ref_player" json:"ref"`
	PlayerID  string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_reservation_ref_player" json:"player_id"`
	Amount    int64     `gorm:"not null" json:"amount"`
	Currency  string    `gorm:"type:varchar(8);not null" json:"currency"`
	Status    string    `gorm:"type:varchar(16);not null;index" json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Reservation) TableName() string { return "wallet_reservations" }

// Entry is one side of a balanced ledger movement.
type Entry struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Ref       string    `gorm:"type:varchar(64);not null;index" json:"ref"`
	Op        string    `gorm:"type:varchar(16);not null" json:"op"`
	AccountID string    `gorm:"type:varchar(64);not null;index" json:"account_id"`
	Amount    int64     `gorm:"not null" json:"amount"`
	Currency  string    `gorm:"type:varchar(8);not null" json:"currency"`
	CreatedAt time.Time `json:"created_at"`
}

func (Entry) TableName() string { return "wallet_entries" }

func houseAccount(kind, currency string) string {
	return "house:" + kind + ":" + currency
}
