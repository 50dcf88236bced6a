package storage

import (
	"encoding/json"
	"strconv"
	"sync/atomic"

	"github.com/tidwall/buntdb"

	"github.com/aricooperman/golean/model"
	"github.com/aricooperman/golean/tools/log"
)

// Bunt stores orders as JSON documents in buntdb, indexed by update time.
type Bunt struct {
	lastID int64
	db     *buntdb.DB
}

// FromMemory opens a throwaway in-memory store.
func FromMemory() (Storage, error) {
	return newBunt(":memory:")
}

// FromFile opens or creates a file-backed store.
func FromFile(file string) (Storage, error) {
	return newBunt(file)
}

func newBunt(sourceFile string) (Storage, error) {
	db, err := buntdb.Open(sourceFile)
	if err != nil {
		return nil, err
	}

	err = db.CreateIndex("update_index", "*", buntdb.IndexJSON("updated_at"))
	if err != nil {
		return nil, err
	}

	return &Bunt{db: db}, nil
}

func (b *Bunt) getID() int64 {
	return atomic.AddInt64(&b.lastID, 1)
}

func (b *Bunt) CreateOrder(order *model.Order) error {
	return b.db.Update(func(tx *buntdb.Tx) error {
		order.ID = b.getID()
		content, err := json.Marshal(order)
		if err != nil {
			return err
		}
		_, _, err = tx.Set(strconv.FormatInt(order.ID, 10), string(content), nil)
		return err
	})
}

func (b *Bunt) UpdateOrder(order *model.Order) error {
	return b.db.Update(func(tx *buntdb.Tx) error {
		content, err := json.Marshal(order)
		if err != nil {
			return err
		}
		_, _, err = tx.Set(strconv.FormatInt(order.ID, 10), string(content), nil)
		return err
	})
}

func (b *Bunt) Orders(filters ...OrderFilter) ([]*model.Order, error) {
	orders := make([]*model.Order, 0)
	err := b.db.View(func(tx *buntdb.Tx) error {
		return tx.Ascend("update_index", func(key, value string) bool {
			var order model.Order
			if err := json.Unmarshal([]byte(value), &order); err != nil {
				log.Error(err)
				return true
			}
			for _, filter := range filters {
				if !filter(order) {
					return true
				}
			}
			orders = append(orders, &order)
			return true
		})
	})
	if err != nil {
		return nil, err
	}
	return orders, nil
}
