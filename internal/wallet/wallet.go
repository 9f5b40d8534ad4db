// Package wallet is a gorm-backed ledger that accepts settled hands. Every
// operation runs in a single database transaction and records balanced
// entries, so a failed call leaves no partial movement behind.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// Wallet implements settlement.Wallet on top of a gorm database.
type Wallet struct {
	db     *gorm.DB
	logger zerolog.Logger
}

// Open opens (or creates) a sqlite wallet database at dsn.
func Open(dsn string, logger zerolog.Logger) (*Wallet, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("wallet: open %s: %w", dsn, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// sqlite has a single writer.
	sqlDB.SetMaxOpenConns(1)
	return New(db, logger)
}

// New migrates the wallet tables in db.
func New(db *gorm.DB, logger zerolog.Logger) (*Wallet, error) {
	if err := db.AutoMigrate(&Account{}, &Reservation{}, &Entry{}); err != nil {
		return nil, fmt.Errorf("wallet: migrate: %w", err)
	}
	return &Wallet{
		db:     db,
		logger: logger.With().Str("component", "wallet").Logger(),
	}, nil
}

// Close releases the underlying connection pool.
func (w *Wallet) Close() error {
	sqlDB, err := w.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Deposit credits a player account, creating it on first use.
func (w *Wallet) Deposit(ctx context.Context, playerID string, amount int64, ref, currency string) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	return w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := account(tx, playerID, currency, true); err != nil {
			return err
		}
		return credit(tx, ref, OpDeposit, playerID, amount, currency)
	})
}

// Balance returns the balance of an account.
func (w *Wallet) Balance(ctx context.Context, accountID string) (int64, error) {
	var acct Account
	if err := w.db.WithContext(ctx).First(&acct, "id = ?", accountID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrAccountNotFound
		}
		return 0, fmt.Errorf("wallet: balance %s: %w", accountID, err)
	}
	return acct.Balance, nil
}

// HouseBalance returns the balance of a house account ("reserve", "prize" or
// "rake") in currency.
func (w *Wallet) HouseBalance(ctx context.Context, kind, currency string) (int64, error) {
	return w.Balance(ctx, houseAccount(kind, currency))
}

// Reservations lists the reservations made under ref.
func (w *Wallet) Reservations(ctx context.Context, ref string) ([]Reservation, error) {
	var out []Reservation
	err := w.db.WithContext(ctx).Where("ref = ?", ref).Order("id").Find(&out).Error
	return out, err
}

// Reserve moves amount from the player into the house reserve under ref.
// Reserving the same player and amount under the same ref twice is a no-op.
func (w *Wallet) Reserve(ctx context.Context, playerID string, amount int64, ref, currency string) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	err := w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing Reservation
		err := tx.Where("ref = ? AND player_id = ?", ref, playerID).First(&existing).Error
		switch {
		case err == nil:
			if existing.Amount == amount && existing.Status == StatusReserved {
				return nil
			}
			return fmt.Errorf("%w: %s already holds %d (%s) under %s", ErrReservation, playerID, existing.Amount, existing.Status, ref)
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return fmt.Errorf("wallet: find reservation: %w", err)
		}

		acct, err := account(tx, playerID, currency, false)
		if err != nil {
			return err
		}
		if acct.Balance < amount {
			return fmt.Errorf("%w: %s has %d, needs %d", ErrInsufficientFunds, playerID, acct.Balance, amount)
		}
		if err := transfer(tx, ref, OpReserve, playerID, houseAccount("reserve", currency), amount, currency); err != nil {
			return err
		}
		return tx.Create(&Reservation{
			Ref:      ref,
			PlayerID: playerID,
			Amount:   amount,
			Currency: currency,
			Status:   StatusReserved,
		}).Error
	})
	if err != nil {
		return err
	}
	w.logger.Debug().Str("ref", ref).Str("player_id", playerID).Int64("amount", amount).Msg("Reserved")
	return nil
}

// Commit moves every open reservation under ref from the reserve into the
// prize pool, less rake. total must equal the sum of those reservations.
// Committing an already committed batch is a no-op.
func (w *Wallet) Commit(ctx context.Context, ref string, total, rake int64, currency string) error {
	if total <= 0 || rake < 0 || rake > total {
		return ErrInvalidAmount
	}
	committed := false
	err := w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var open []Reservation
		if err := tx.Where("ref = ? AND status = ?", ref, StatusReserved).Find(&open).Error; err != nil {
			return fmt.Errorf("wallet: load reservations: %w", err)
		}
		if len(open) == 0 {
			var done int64
			if err := tx.Model(&Reservation{}).Where("ref = ? AND status = ?", ref, StatusCommitted).Count(&done).Error; err != nil {
				return err
			}
			if done > 0 {
				return nil
			}
			return fmt.Errorf("%w: nothing reserved under %s", ErrReservation, ref)
		}

		var sum int64
		for _, r := range open {
			if r.Currency != currency {
				return fmt.Errorf("%w: reservation in %s, commit in %s", ErrCurrencyMismatch, r.Currency, currency)
			}
			sum += r.Amount
		}
		if sum != total {
			return fmt.Errorf("%w: reserved %d under %s, commit of %d", ErrReservation, sum, ref, total)
		}

		reserve := houseAccount("reserve", currency)
		if err := transfer(tx, ref, OpCommit, reserve, houseAccount("prize", currency), total-rake, currency); err != nil {
			return err
		}
		if rake > 0 {
			if err := transfer(tx, ref, OpRake, reserve, houseAccount("rake", currency), rake, currency); err != nil {
				return err
			}
		}
		committed = true
		return tx.Model(&Reservation{}).
			Where("ref = ? AND status = ?", ref, StatusReserved).
			Update("status", StatusCommitted).Error
	})
	if err != nil {
		return err
	}
	if committed {
		w.logger.Info().Str("ref", ref).Int64("total", total).Int64("rake", rake).Msg("Settlement committed")
	}
	return nil
}

// Rollback returns every open reservation under ref to its owner.
func (w *Wallet) Rollback(ctx context.Context, ref string) error {
	var n int
	err := w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var open []Reservation
		if err := tx.Where("ref = ? AND status = ?", ref, StatusReserved).Order("id").Find(&open).Error; err != nil {
			return fmt.Errorf("wallet: load reservations: %w", err)
		}
		for _, r := range open {
			if err := transfer(tx, ref, OpRollback, houseAccount("reserve", r.Currency), r.PlayerID, r.Amount, r.Currency); err != nil {
				return err
			}
			if err := tx.Model(&r).Update("status", StatusRolledBack).Error; err != nil {
				return err
			}
		}
		n = len(open)
		return nil
	})
	if err != nil {
		return err
	}
	if n > 0 {
		w.logger.Warn().Str("ref", ref).Int("reservations", n).Msg("Settlement rolled back")
	}
	return nil
}

// account loads and row-locks an account. House accounts and, when create
// is set, player accounts are created empty on first use.
func account(tx *gorm.DB, id, currency string, create bool) (Account, error) {
	var acct Account
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&acct, "id = ?", id).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		if !create {
			return acct, fmt.Errorf("%w: %s", ErrAccountNotFound, id)
		}
		acct = Account{ID: id, Currency: currency}
		if err := tx.Create(&acct).Error; err != nil {
			return acct, fmt.Errorf("wallet: create account %s: %w", id, err)
		}
	case err != nil:
		return acct, fmt.Errorf("wallet: lock account %s: %w", id, err)
	}
	if acct.Currency != currency {
		return acct, fmt.Errorf("%w: %s holds %s, not %s", ErrCurrencyMismatch, id, acct.Currency, currency)
	}
	return acct, nil
}

func credit(tx *gorm.DB, ref, op, id string, amount int64, currency string) error {
	res := tx.Model(&Account{}).Where("id = ?", id).Update("balance", gorm.Expr("balance + ?", amount))
	if res.Error != nil {
		return fmt.Errorf("wallet: update %s: %w", id, res.Error)
	}
	if res.RowsAffected != 1 {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, id)
	}
	return tx.Create(&Entry{Ref: ref, Op: op, AccountID: id, Amount: amount, Currency: currency}).Error
}

// transfer moves amount between two accounts with a pair of ledger entries.
func transfer(tx *gorm.DB, ref, op, from, to string, amount int64, currency string) error {
	for _, id := range []string{from, to} {
		if _, err := account(tx, id, currency, isHouse(id)); err != nil {
			return err
		}
	}
	if err := credit(tx, ref, op, from, -amount, currency); err != nil {
		return err
	}
	return credit(tx, ref, op, to, amount, currency)
}

func isHouse(id string) bool {
	return strings.HasPrefix(id, "house:")
}
