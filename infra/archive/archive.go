// Package archive keeps a queryable copy of the trade tape in SQLite.
package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"matchbook/domain/orderbook"
)

// Trade is one archived fill. Decimals are stored as text so no precision
// is lost in the database.
type Trade struct {
	TxID         string    `gorm:"primaryKey;size:64"`
	ExecutedAt   time.Time `gorm:"index"`
	Price        string    `gorm:"not null"`
	Quantity     string    `gorm:"not null"`
	MakerOrderID string    `gorm:"index;size:64"`
	MakerSide    string    `gorm:"size:8"`
	TakerOrderID string    `gorm:"index;size:64"`
	TakerSide    string    `gorm:"size:8"`
}

func (Trade) TableName() string { return "trades" }

func fromRecord(tx orderbook.TransactionRecord) Trade {
	return Trade{
		TxID:         tx.TxID,
		ExecutedAt:   tx.Time,
		Price:        tx.Price.String(),
		Quantity:     tx.Quantity.String(),
		MakerOrderID: tx.Maker.OrderID,
		MakerSide:    tx.Maker.Side.String(),
		TakerOrderID: tx.Taker.OrderID,
		TakerSide:    tx.Taker.Side.String(),
	}
}

// Record converts the row back into the book's trade type.
func (t Trade) Record() (orderbook.TransactionRecord, error) {
	price, err := decimal.NewFromString(t.Price)
	if err != nil {
		return orderbook.TransactionRecord{}, fmt.Errorf("trade %s price: %w", t.TxID, err)
	}
	qty, err := decimal.NewFromString(t.Quantity)
	if err != nil {
		return orderbook.TransactionRecord{}, fmt.Errorf("trade %s quantity: %w", t.TxID, err)
	}
	return orderbook.TransactionRecord{
		TxID:     t.TxID,
		Time:     t.ExecutedAt.UTC(),
		Price:    price,
		Quantity: qty,
		Maker: orderbook.Party{
			OrderID:  t.MakerOrderID,
			Side:     orderbook.ParseSide(t.MakerSide),
			Price:    price,
			Quantity: qty,
		},
		Taker: orderbook.Party{
			OrderID: t.TakerOrderID,
			Side:    orderbook.ParseSide(t.TakerSide),
		},
	}, nil
}

type Archive struct {
	db *gorm.DB
}

// Open connects to the SQLite file at path (":memory:" works too) and
// migrates the schema.
func Open(path string) (*Archive, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create archive directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	if err := db.AutoMigrate(&Trade{}); err != nil {
		return nil, fmt.Errorf("failed to migrate archive: %w", err)
	}
	return &Archive{db: db}, nil
}

func (a *Archive) Close() error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Save inserts trades. Tx ids already archived are skipped, which keeps
// journal replay from duplicating rows.
func (a *Archive) Save(ctx context.Context, trades []orderbook.TransactionRecord) error {
	if len(trades) == 0 {
		return nil
	}
	rows := make([]Trade, len(trades))
	for i, tx := range trades {
		rows[i] = fromRecord(tx)
	}
	return a.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&rows).Error
}

// Recent returns up to n trades, newest first.
func (a *Archive) Recent(ctx context.Context, n int) ([]orderbook.TransactionRecord, error) {
	var rows []Trade
	err := a.db.WithContext(ctx).
		Order("executed_at DESC").Order("tx_id DESC").
		Limit(n).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return toRecords(rows)
}

// ByOrder returns every trade the order took part in, oldest first.
func (a *Archive) ByOrder(ctx context.Context, orderID string) ([]orderbook.TransactionRecord, error) {
	var rows []Trade
	err := a.db.WithContext(ctx).
		Where("maker_order_id = ? OR taker_order_id = ?", orderID, orderID).
		Order("executed_at ASC").Order("tx_id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return toRecords(rows)
}

func (a *Archive) Count(ctx context.Context) (int64, error) {
	var n int64
	err := a.db.WithContext(ctx).Model(&Trade{}).Count(&n).Error
	return n, err
}

func toRecords(rows []Trade) ([]orderbook.TransactionRecord, error) {
	out := make([]orderbook.TransactionRecord, 0, len(rows))
	for _, r := range rows {
		tx, err := r.Record()
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, nil
}
