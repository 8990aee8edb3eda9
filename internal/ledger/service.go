package ledger

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/cases"

	"github.com/shopledger/shopledger/internal/platform/jsonstore"
)

// Service is the single authority over the goods, transactions and debts
// collections. Every operation is a full read-modify-write cycle against the
// store under one mutex, which is the mutual-exclusion boundary that keeps
// concurrent HTTP callers from interleaving their cycles. Nothing is cached
// between calls.
type Service struct {
	mu    sync.Mutex
	store StorePort
	now   func() time.Time
}

// NewService builds a Service on top of the given store.
func NewService(store StorePort) *Service {
	return &Service{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// foldKey canonicalizes a product or buyer name for case-insensitive matching.
func foldKey(name string) string {
	return cases.Fold().String(strings.TrimSpace(name))
}

// AddOrRestockProduct creates a product or, when the name already exists under
// case-insensitive match, adds stock and overwrites the price. Either path
// appends exactly one history entry.
func (s *Service) AddOrRestockProduct(ctx context.Context, input AddProductInput) (Product, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return Product{}, invalidf("name", "must not be empty")
	}
	if input.Price <= 0 {
		return Product{}, invalidf("price", "must be greater than zero, got %g", input.Price)
	}
	if input.Quantity <= 0 {
		return Product{}, invalidf("quantity", "must be greater than zero, got %d", input.Quantity)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	goods, err := loadGoods(ctx, s.store)
	if err != nil {
		return Product{}, err
	}

	now := s.now()
	key := foldKey(name)
	product, exists := goods[key]
	if exists {
		oldQty := product.Quantity
		oldPrice := product.Price
		product.Quantity += input.Quantity
		product.Price = input.Price
		if desc := strings.TrimSpace(input.Description); desc != "" {
			product.Description = desc
		}
		product.History = append(product.History, RestockEvent{
			Date:     now,
			Action:   RestockActionRestock,
			Quantity: input.Quantity,
			Price:    input.Price,
			Note:     fmt.Sprintf("%d→%d, price %g→%g", oldQty, product.Quantity, oldPrice, input.Price),
		})
	} else {
		product = Product{
			Name:        name,
			Price:       input.Price,
			Quantity:    input.Quantity,
			Description: strings.TrimSpace(input.Description),
			History: []RestockEvent{{
				Date:     now,
				Action:   RestockActionAdd,
				Quantity: input.Quantity,
				Price:    input.Price,
				Note:     "initial addition",
			}},
		}
	}
	goods[key] = product

	if err := commit(ctx, s.store, jsonstore.Document{Name: goodsCollection, Value: goods}); err != nil {
		return Product{}, err
	}
	return product, nil
}

// RecordSale decrements stock, appends an immutable transaction and, when the
// payment falls short, opens a debt seeded with the sale-time payment. The
// three collections are committed together; a failure leaves all of them
// unchanged.
func (s *Service) RecordSale(ctx context.Context, input RecordSaleInput) (Transaction, error) {
	buyer := strings.TrimSpace(input.Buyer)
	if buyer == "" {
		return Transaction{}, invalidf("buyer", "must not be empty")
	}
	productName := strings.TrimSpace(input.Product)
	if productName == "" {
		return Transaction{}, invalidf("product", "must not be empty")
	}
	if input.Quantity <= 0 {
		return Transaction{}, invalidf("quantity", "must be greater than zero, got %d", input.Quantity)
	}
	if input.AmountPaid < 0 {
		return Transaction{}, invalidf("amount_paid", "must not be negative, got %g", input.AmountPaid)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	goods, err := loadGoods(ctx, s.store)
	if err != nil {
		return Transaction{}, err
	}
	sales, err := loadSales(ctx, s.store)
	if err != nil {
		return Transaction{}, err
	}
	debts, err := loadDebts(ctx, s.store)
	if err != nil {
		return Transaction{}, err
	}

	key := foldKey(productName)
	product, ok := goods[key]
	if !ok {
		return Transaction{}, fmt.Errorf("%w %q", ErrProductNotFound, productName)
	}
	if product.Quantity < input.Quantity {
		return Transaction{}, fmt.Errorf("%w: %q has %d on hand, want %d",
			ErrInsufficientStock, product.Name, product.Quantity, input.Quantity)
	}

	now := s.now()
	total := product.Price * float64(input.Quantity)
	owed := total - input.AmountPaid
	if owed < 0 {
		owed = 0
	}

	product.Quantity -= input.Quantity
	goods[key] = product

	txn := Transaction{
		ID:         uuid.NewString(),
		Buyer:      buyer,
		Product:    product.Name,
		Quantity:   input.Quantity,
		UnitPrice:  product.Price,
		TotalPrice: total,
		AmountPaid: input.AmountPaid,
		Debt:       owed,
		Date:       now,
	}
	sales.Sales = append(sales.Sales, txn)

	if owed > 0 {
		debts.Debts = append(debts.Debts, Debt{
			ID:         uuid.NewString(),
			Buyer:      buyer,
			Product:    product.Name,
			Quantity:   input.Quantity,
			TotalPrice: total,
			AmountPaid: input.AmountPaid,
			Debt:       owed,
			Date:       now,
			History:    []PaymentEvent{{Date: now, Paid: input.AmountPaid}},
		})
	}

	// Commit order: the sale record publishes before the stock decrement, so a
	// crash between renames can never leave stock reduced without its sale.
	err = commit(ctx, s.store,
		jsonstore.Document{Name: transactionsCollection, Value: sales},
		jsonstore.Document{Name: debtsCollection, Value: debts},
		jsonstore.Document{Name: goodsCollection, Value: goods},
	)
	if err != nil {
		return Transaction{}, err
	}
	return txn, nil
}

// ApplyDebtPayment reduces the first matching unsettled debt, flooring at
// zero, and appends a payment event. A fully settled debt leaves the active
// set. Buyer and product match case-insensitively.
func (s *Service) ApplyDebtPayment(ctx context.Context, input DebtPaymentInput) (Debt, error) {
	buyer := strings.TrimSpace(input.Buyer)
	if buyer == "" {
		return Debt{}, invalidf("buyer", "must not be empty")
	}
	productName := strings.TrimSpace(input.Product)
	if productName == "" {
		return Debt{}, invalidf("product", "must not be empty")
	}
	if input.Amount <= 0 {
		return Debt{}, invalidf("amount", "must be greater than zero, got %g", input.Amount)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	debts, err := loadDebts(ctx, s.store)
	if err != nil {
		return Debt{}, err
	}

	buyerKey := foldKey(buyer)
	productKey := foldKey(productName)
	idx := -1
	for i, d := range debts.Debts {
		if d.Debt > 0 && foldKey(d.Buyer) == buyerKey && foldKey(d.Product) == productKey {
			idx = i
			break
		}
	}
	if idx < 0 {
		return Debt{}, fmt.Errorf("%w for %q on %q", ErrDebtNotFound, buyer, productName)
	}

	settled := debts.Debts[idx]
	settled.Debt -= input.Amount
	if settled.Debt < 0 {
		settled.Debt = 0
	}
	settled.History = append(settled.History, PaymentEvent{Date: s.now(), Paid: input.Amount})

	if settled.Debt == 0 {
		debts.Debts = append(debts.Debts[:idx], debts.Debts[idx+1:]...)
	} else {
		debts.Debts[idx] = settled
	}

	if err := commit(ctx, s.store, jsonstore.Document{Name: debtsCollection, Value: debts}); err != nil {
		return Debt{}, err
	}
	return settled, nil
}

// ListUnsettledDebts returns every debt still above zero, optionally filtered
// by a case-insensitive substring of the buyer name.
func (s *Service) ListUnsettledDebts(ctx context.Context, buyerFilter string) ([]Debt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	debts, err := loadDebts(ctx, s.store)
	if err != nil {
		return nil, err
	}

	filter := foldKey(buyerFilter)
	out := make([]Debt, 0, len(debts.Debts))
	for _, d := range debts.Debts {
		if d.Debt <= 0 {
			continue
		}
		if filter != "" && !strings.Contains(foldKey(d.Buyer), filter) {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

// ListTransactions returns sales matching the filter, most recent first.
func (s *Service) ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sales, err := loadSales(ctx, s.store)
	if err != nil {
		return nil, err
	}

	productFilter := foldKey(filter.Product)
	dateFilter := strings.TrimSpace(filter.Date)
	out := make([]Transaction, 0, len(sales.Sales))
	for i := len(sales.Sales) - 1; i >= 0; i-- {
		txn := sales.Sales[i]
		if productFilter != "" && !strings.Contains(foldKey(txn.Product), productFilter) {
			continue
		}
		if dateFilter != "" && !strings.Contains(txn.Date.Format(time.RFC3339), dateFilter) {
			continue
		}
		out = append(out, txn)
	}
	return out, nil
}

// GetTransaction returns one sale by id.
func (s *Service) GetTransaction(ctx context.Context, id string) (Transaction, error) {
	if strings.TrimSpace(id) == "" {
		return Transaction{}, invalidf("id", "must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sales, err := loadSales(ctx, s.store)
	if err != nil {
		return Transaction{}, err
	}
	for _, txn := range sales.Sales {
		if txn.ID == id {
			return txn, nil
		}
	}
	return Transaction{}, fmt.Errorf("%w %q", ErrTransactionNotFound, id)
}

// GetProductHistory returns a product's restock log, most recent first.
func (s *Service) GetProductHistory(ctx context.Context, name string) ([]RestockEvent, error) {
	product, err := s.GetProduct(ctx, name)
	if err != nil {
		return nil, err
	}
	out := make([]RestockEvent, 0, len(product.History))
	for i := len(product.History) - 1; i >= 0; i-- {
		out = append(out, product.History[i])
	}
	return out, nil
}

// GetProduct returns one product under case-insensitive name match.
func (s *Service) GetProduct(ctx context.Context, name string) (Product, error) {
	if strings.TrimSpace(name) == "" {
		return Product{}, invalidf("name", "must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	goods, err := loadGoods(ctx, s.store)
	if err != nil {
		return Product{}, err
	}
	product, ok := goods[foldKey(name)]
	if !ok {
		return Product{}, fmt.Errorf("%w %q", ErrProductNotFound, name)
	}
	return product, nil
}

// ListGoods returns every product sorted by display name.
func (s *Service) ListGoods(ctx context.Context) ([]Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	goods, err := loadGoods(ctx, s.store)
	if err != nil {
		return nil, err
	}
	out := make([]Product, 0, len(goods))
	for _, p := range goods {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		return foldKey(out[i].Name) < foldKey(out[j].Name)
	})
	return out, nil
}

// SetProductImage stores an opaque image path on a product. The ledger never
// interprets the path; the presentation layer owns the file itself.
func (s *Service) SetProductImage(ctx context.Context, name, path string) (Product, error) {
	if strings.TrimSpace(name) == "" {
		return Product{}, invalidf("name", "must not be empty")
	}
	return s.updateProduct(ctx, name, func(p *Product) {
		p.ImagePath = strings.TrimSpace(path)
	})
}

// UpdateProductDescription replaces a product's description. An empty string
// clears it.
func (s *Service) UpdateProductDescription(ctx context.Context, name, description string) (Product, error) {
	if strings.TrimSpace(name) == "" {
		return Product{}, invalidf("name", "must not be empty")
	}
	return s.updateProduct(ctx, name, func(p *Product) {
		p.Description = strings.TrimSpace(description)
	})
}

func (s *Service) updateProduct(ctx context.Context, name string, mutate func(*Product)) (Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	goods, err := loadGoods(ctx, s.store)
	if err != nil {
		return Product{}, err
	}
	key := foldKey(name)
	product, ok := goods[key]
	if !ok {
		return Product{}, fmt.Errorf("%w %q", ErrProductNotFound, name)
	}
	mutate(&product)
	goods[key] = product

	if err := commit(ctx, s.store, jsonstore.Document{Name: goodsCollection, Value: goods}); err != nil {
		return Product{}, err
	}
	return product, nil
}
