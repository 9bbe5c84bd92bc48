package storage

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tarigateway/reconciler/internal/engineerr"
	"github.com/tarigateway/reconciler/internal/persistence"
	"github.com/tarigateway/reconciler/internal/tari"
)

// mongoPage turns a Pagination into find options with a default page
// size of 50.
func mongoPage(page persistence.Pagination) *options.FindOptions {
	limit := int64(page.Limit)
	if limit <= 0 {
		limit = 50
	}
	offset := int64(page.Offset)
	if offset < 0 {
		offset = 0
	}
	return options.Find().SetLimit(limit).SetSkip(offset)
}

// ListOrdersByFilter implements persistence.QueryStore.
func (s *MongoStore) ListOrdersByFilter(ctx context.Context, filter persistence.OrderFilter, page persistence.Pagination) ([]tari.Order, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	query := bson.M{}
	if filter.Memo != "" {
		query["memo"] = filter.Memo
	}
	if filter.CustomerID != "" {
		query["customer_id"] = filter.CustomerID
	}
	if filter.Currency != "" {
		query["currency"] = filter.Currency
	}
	if filter.Status != "" {
		query["status"] = string(filter.Status)
	}
	if !filter.CreatedAfter.IsZero() || !filter.CreatedBefore.IsZero() {
		createdAt := bson.M{}
		if !filter.CreatedAfter.IsZero() {
			createdAt["$gte"] = filter.CreatedAfter
		}
		if !filter.CreatedBefore.IsZero() {
			createdAt["$lt"] = filter.CreatedBefore
		}
		query["created_at"] = createdAt
	}

	opts := mongoPage(page).SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "seq_id", Value: 1}})
	cursor, err := s.orders.Find(ctx, query, opts)
	if err != nil {
		return nil, engineerr.DatabaseError(err.Error())
	}
	defer cursor.Close(ctx)

	var out []tari.Order
	for cursor.Next(ctx) {
		var doc orderDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, engineerr.DatabaseError(err.Error())
		}
		out = append(out, doc.toOrder())
	}
	return out, cursor.Err()
}

// ListOrdersForAddress implements persistence.QueryStore.
func (s *MongoStore) ListOrdersForAddress(ctx context.Context, address tari.Address, page persistence.Pagination) ([]tari.Order, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	customerIDs, err := s.customerLinks.Distinct(ctx, "customer_id", bson.M{"address": address.String()})
	if err != nil {
		return nil, engineerr.DatabaseError(err.Error())
	}
	if len(customerIDs) == 0 {
		return nil, nil
	}

	opts := mongoPage(page).SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "seq_id", Value: 1}})
	cursor, err := s.orders.Find(ctx, bson.M{"customer_id": bson.M{"$in": customerIDs}}, opts)
	if err != nil {
		return nil, engineerr.DatabaseError(err.Error())
	}
	defer cursor.Close(ctx)

	var out []tari.Order
	for cursor.Next(ctx) {
		var doc orderDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, engineerr.DatabaseError(err.Error())
		}
		out = append(out, doc.toOrder())
	}
	return out, cursor.Err()
}

// ListPaymentsForAddress implements persistence.QueryStore.
func (s *MongoStore) ListPaymentsForAddress(ctx context.Context, address tari.Address, page persistence.Pagination) ([]tari.Payment, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	opts := mongoPage(page).SetSort(bson.D{{Key: "created_at", Value: 1}})
	cursor, err := s.payments.Find(ctx, bson.M{"sender": address.String()}, opts)
	if err != nil {
		return nil, engineerr.DatabaseError(err.Error())
	}
	defer cursor.Close(ctx)

	var out []tari.Payment
	for cursor.Next(ctx) {
		var doc paymentDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, engineerr.DatabaseError(err.Error())
		}
		payment, err := doc.toPayment()
		if err != nil {
			return nil, engineerr.DatabaseError(err.Error())
		}
		out = append(out, payment)
	}
	return out, cursor.Err()
}

// ListCreditors implements persistence.QueryStore.
func (s *MongoStore) ListCreditors(ctx context.Context, page persistence.Pagination) ([]tari.AddressBalance, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	opts := mongoPage(page).SetSort(bson.D{{Key: "current_balance", Value: -1}})
	cursor, err := s.balances.Find(ctx, bson.M{"current_balance": bson.M{"$gt": 0}}, opts)
	if err != nil {
		return nil, engineerr.DatabaseError(err.Error())
	}
	defer cursor.Close(ctx)

	var out []tari.AddressBalance
	for cursor.Next(ctx) {
		var doc balanceDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, engineerr.DatabaseError(err.Error())
		}
		addr, err := tari.ParseAddress(doc.Address)
		if err != nil {
			return nil, engineerr.DatabaseError(err.Error())
		}
		out = append(out, tari.AddressBalance{
			Address:        addr,
			TotalReceived:  tari.MicroTari(doc.TotalReceived),
			CurrentBalance: tari.MicroTari(doc.CurrentBalance),
			LastUpdate:     doc.LastUpdate,
		})
	}
	return out, cursor.Err()
}

// ListCustomerIDs implements persistence.QueryStore.
func (s *MongoStore) ListCustomerIDs(ctx context.Context, page persistence.Pagination) ([]string, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	raw, err := s.orders.Distinct(ctx, "customer_id", bson.M{})
	if err != nil {
		return nil, engineerr.DatabaseError(err.Error())
	}
	ids := make([]string, 0, len(raw))
	for _, v := range raw {
		if id, ok := v.(string); ok {
			ids = append(ids, id)
		}
	}
	sortStrings(ids)
	return paginateSlice(ids, page), nil
}

// ListAddresses implements persistence.QueryStore.
func (s *MongoStore) ListAddresses(ctx context.Context, page persistence.Pagination) ([]tari.Address, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	raw, err := s.customerLinks.Distinct(ctx, "address", bson.M{})
	if err != nil {
		return nil, engineerr.DatabaseError(err.Error())
	}
	addrs := make([]tari.Address, 0, len(raw))
	for _, v := range raw {
		addrStr, ok := v.(string)
		if !ok {
			continue
		}
		addr, err := tari.ParseAddress(addrStr)
		if err != nil {
			continue
		}
		addrs = append(addrs, addr)
	}
	sortAddresses(addrs)
	return paginateSlice(addrs, page), nil
}

// CustomerOrderBalance implements persistence.QueryStore.
func (s *MongoStore) CustomerOrderBalance(ctx context.Context, customerID string) (tari.CustomerOrderBalance, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	cursor, err := s.orders.Find(ctx, bson.M{
		"customer_id": customerID,
		"status":      bson.M{"$nin": []string{string(tari.OrderPaid), string(tari.OrderCancelled), string(tari.OrderExpired)}},
	})
	if err != nil {
		return tari.CustomerOrderBalance{}, engineerr.DatabaseError(err.Error())
	}
	defer cursor.Close(ctx)

	var total int64
	for cursor.Next(ctx) {
		var doc orderDoc
		if err := cursor.Decode(&doc); err != nil {
			return tari.CustomerOrderBalance{}, engineerr.DatabaseError(err.Error())
		}
		total += doc.TotalPrice
	}
	if err := cursor.Err(); err != nil {
		return tari.CustomerOrderBalance{}, engineerr.DatabaseError(err.Error())
	}
	return tari.CustomerOrderBalance{CustomerID: customerID, Balance: tari.MicroTari(total)}, nil
}

// OrderHistory implements persistence.QueryStore.
func (s *MongoStore) OrderHistory(ctx context.Context, orderID string) (persistence.OrderHistory, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	order, err := s.FetchOrderByID(ctx, orderID)
	if err != nil {
		return persistence.OrderHistory{}, err
	}

	pCursor, err := s.payments.Find(ctx, bson.M{"order_id": orderID}, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return persistence.OrderHistory{}, engineerr.DatabaseError(err.Error())
	}
	defer pCursor.Close(ctx)

	var payments []tari.Payment
	for pCursor.Next(ctx) {
		var doc paymentDoc
		if err := pCursor.Decode(&doc); err != nil {
			return persistence.OrderHistory{}, engineerr.DatabaseError(err.Error())
		}
		payment, err := doc.toPayment()
		if err != nil {
			return persistence.OrderHistory{}, engineerr.DatabaseError(err.Error())
		}
		payments = append(payments, payment)
	}
	if err := pCursor.Err(); err != nil {
		return persistence.OrderHistory{}, engineerr.DatabaseError(err.Error())
	}

	sCursor, err := s.settlements.Find(ctx, bson.M{"order_id": orderID}, options.Find().SetSort(bson.D{{Key: "seq_id", Value: 1}}))
	if err != nil {
		return persistence.OrderHistory{}, engineerr.DatabaseError(err.Error())
	}
	defer sCursor.Close(ctx)

	var settlements []tari.SettlementJournalEntry
	for sCursor.Next(ctx) {
		var doc struct {
			ID             int64     `bson:"seq_id"`
			OrderID        string    `bson:"order_id"`
			PaymentAddress string    `bson:"payment_address"`
			Amount         int64     `bson:"amount"`
			SettlementType string    `bson:"settlement_type"`
			CreatedAt      time.Time `bson:"created_at"`
		}
		if err := sCursor.Decode(&doc); err != nil {
			return persistence.OrderHistory{}, engineerr.DatabaseError(err.Error())
		}
		addr, err := tari.ParseAddress(doc.PaymentAddress)
		if err != nil {
			return persistence.OrderHistory{}, engineerr.DatabaseError(err.Error())
		}
		settlements = append(settlements, tari.SettlementJournalEntry{
			ID:             doc.ID,
			OrderID:        doc.OrderID,
			PaymentAddress: addr,
			Amount:         tari.MicroTari(doc.Amount),
			SettlementType: tari.SettlementType(doc.SettlementType),
			CreatedAt:      doc.CreatedAt,
		})
	}
	if err := sCursor.Err(); err != nil {
		return persistence.OrderHistory{}, engineerr.DatabaseError(err.Error())
	}

	return persistence.OrderHistory{Order: order, Payments: payments, Settlements: settlements}, nil
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j] < s[j-1]; j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}

func sortAddresses(a []tari.Address) {
	for i := 1; i < len(a); i++ {
		for j := i; j > 0 && a[j].String() < a[j-1].String(); j-- {
			a[j], a[j-1] = a[j-1], a[j]
		}
	}
}

func paginateSlice[T any](items []T, page persistence.Pagination) []T {
	limit := page.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := page.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return nil
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}
