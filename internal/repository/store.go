package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound is returned by every repository lookup that matches no row.
var ErrNotFound = errors.New("record not found")

// Store 持有数据库连接，提供原子工作单元
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store { return &Store{db: db} }

func (s *Store) DB() *gorm.DB { return s.db }

// Tx is the unit of work handed to engine components. Every repository in a Tx
// shares one database transaction (or none, for Store.Reader).
type Tx struct {
	Catalog   CatalogRepository
	Discounts DiscountRepository
	Users     UserRepository
	Addresses AddressRepository
	Carts     CartRepository
	Settings  SettingRepository
	Orders    OrderRepository
	Payments  PaymentRepository
	Outbox    OutboxRepository
}

func newTx(db *gorm.DB) *Tx {
	return &Tx{
		Catalog:   NewCatalogRepository(db),
		Discounts: NewDiscountRepository(db),
		Users:     NewUserRepository(db),
		Addresses: NewAddressRepository(db),
		Carts:     NewCartRepository(db),
		Settings:  NewSettingRepository(db),
		Orders:    NewOrderRepository(db),
		Payments:  NewPaymentRepository(db),
		Outbox:    NewOutboxRepository(db),
	}
}

// Atomic runs fn in one transaction. A non-nil error from fn rolls back every
// write made through tx; nil commits them together.
func (s *Store) Atomic(ctx context.Context, fn func(tx *Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		return fn(newTx(db))
	})
}

// Reader returns repositories outside any transaction, for plain reads.
func (s *Store) Reader() *Tx { return newTx(s.db) }

// forUpdate acquires row locks until the enclosing transaction ends.
func forUpdate(db *gorm.DB) *gorm.DB {
	return db.Clauses(clause.Locking{Strength: "UPDATE"})
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
