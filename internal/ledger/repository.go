package ledger

import (
	"context"

	"github.com/shopledger/shopledger/internal/platform/jsonstore"
)

// Collection document names. Each maps to one JSON document in the store.
const (
	goodsCollection        = "goods"
	transactionsCollection = "transactions"
	debtsCollection        = "debts"
)

// StorePort abstracts the document store backing the ledger collections, so
// tests can substitute an in-memory implementation.
type StorePort interface {
	Load(ctx context.Context, name string, v any) error
	Commit(ctx context.Context, docs ...jsonstore.Document) error
}

// goodsDoc is the persisted shape of the goods collection: an object keyed by
// the case-folded product name.
type goodsDoc map[string]Product

// salesDoc is the persisted shape of the transactions collection. The wrapper
// object is canonical; bare lists are not read.
type salesDoc struct {
	Sales []Transaction `json:"sales"`
}

// debtsDoc is the persisted shape of the debts collection.
type debtsDoc struct {
	Debts []Debt `json:"debts"`
}

func loadGoods(ctx context.Context, store StorePort) (goodsDoc, error) {
	goods := make(goodsDoc)
	if err := store.Load(ctx, goodsCollection, &goods); err != nil {
		return nil, &PersistenceError{Collection: goodsCollection, Op: "load", Err: err}
	}
	return goods, nil
}

func loadSales(ctx context.Context, store StorePort) (salesDoc, error) {
	var sales salesDoc
	if err := store.Load(ctx, transactionsCollection, &sales); err != nil {
		return salesDoc{}, &PersistenceError{Collection: transactionsCollection, Op: "load", Err: err}
	}
	return sales, nil
}

func loadDebts(ctx context.Context, store StorePort) (debtsDoc, error) {
	var debts debtsDoc
	if err := store.Load(ctx, debtsCollection, &debts); err != nil {
		return debtsDoc{}, &PersistenceError{Collection: debtsCollection, Op: "load", Err: err}
	}
	return debts, nil
}

func commit(ctx context.Context, store StorePort, docs ...jsonstore.Document) error {
	if err := store.Commit(ctx, docs...); err != nil {
		name := "ledger"
		if len(docs) == 1 {
			name = docs[0].Name
		}
		return &PersistenceError{Collection: name, Op: "commit", Err: err}
	}
	return nil
}
