package storage

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/tarigateway/reconciler/internal/dummyaddr"
	"github.com/tarigateway/reconciler/internal/engineerr"
	"github.com/tarigateway/reconciler/internal/metrics"
	"github.com/tarigateway/reconciler/internal/persistence"
	"github.com/tarigateway/reconciler/internal/tari"
)

// MongoStore implements persistence.Store using go.mongodb.org/mongo-driver:
// mongo.Connect + Ping at construction, one *mongo.Collection per entity,
// unique indexes standing in for the replay-defense unique constraints
// Postgres gets from table constraints. Composite operations (settlement
// debiting a balance, crediting a note while linking an address) run
// inside a session.WithTransaction so a partial failure leaves no side
// effect, since Mongo has no equivalent of a Postgres trigger to fold
// these projections automatically.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database

	orders        *mongo.Collection
	payments      *mongo.Collection
	settlements   *mongo.Collection
	balances      *mongo.Collection
	customerLinks *mongo.Collection
	authLogs      *mongo.Collection
	walletAuths   *mongo.Collection
	roles         *mongo.Collection
	exchangeRates *mongo.Collection

	network byte
	metrics *metrics.Metrics
}

// NewMongoStore connects to connectionString and bootstraps indexes.
func NewMongoStore(connectionString, database string, names tableNames) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(connectionString))
	if err != nil {
		return nil, fmt.Errorf("storage: connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("storage: ping mongodb: %w", err)
	}

	db := client.Database(database)
	store := &MongoStore{
		client:        client,
		db:            db,
		orders:        db.Collection(names.Orders),
		payments:      db.Collection(names.Payments),
		settlements:   db.Collection(names.Settlements),
		balances:      db.Collection(names.Balances),
		customerLinks: db.Collection(names.CustomerLinks),
		authLogs:      db.Collection(names.AuthLogs),
		walletAuths:   db.Collection(names.WalletAuths),
		roles:         db.Collection(names.Roles),
		exchangeRates: db.Collection(names.ExchangeRates),
		network:       tari.NetworkMainNet,
	}

	if err := store.createIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return store, nil
}

// SetMetrics attaches a collector for query timings.
func (s *MongoStore) SetMetrics(m *metrics.Metrics) { s.metrics = m }

func (s *MongoStore) measure(operation string) func() {
	return metrics.MeasureDBQuery(s.metrics, operation, "mongodb")
}

func (s *MongoStore) createIndexes(ctx context.Context) error {
	if _, err := s.orders.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "order_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "customer_id", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "updated_at", Value: 1}}},
	}); err != nil {
		return fmt.Errorf("storage: create order indexes: %w", err)
	}
	if _, err := s.payments.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "txid", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "order_id", Value: 1}}},
	}); err != nil {
		return fmt.Errorf("storage: create payment indexes: %w", err)
	}
	if _, err := s.customerLinks.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "address", Value: 1}, {Key: "customer_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("storage: create customer link indexes: %w", err)
	}
	if _, err := s.walletAuths.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "address", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("storage: create wallet auth indexes: %w", err)
	}
	if _, err := s.exchangeRates.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "currency", Value: 1}, {Key: "updated_at", Value: -1}},
	}); err != nil {
		return fmt.Errorf("storage: create exchange rate indexes: %w", err)
	}
	return nil
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultQueryTimeout)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// --- document shapes ---

type orderDoc struct {
	ID         int64     `bson:"seq_id"`
	OrderID    string    `bson:"order_id"`
	CustomerID string    `bson:"customer_id"`
	Memo       string    `bson:"memo"`
	TotalPrice int64     `bson:"total_price"`
	Currency   string    `bson:"currency"`
	Status     string    `bson:"status"`
	CreatedAt  time.Time `bson:"created_at"`
	UpdatedAt  time.Time `bson:"updated_at"`
}

func (d orderDoc) toOrder() tari.Order {
	return tari.Order{
		ID:         d.ID,
		OrderID:    d.OrderID,
		CustomerID: d.CustomerID,
		Memo:       d.Memo,
		TotalPrice: tari.MicroTari(d.TotalPrice),
		Currency:   d.Currency,
		Status:     tari.OrderStatus(d.Status),
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
	}
}

type paymentDoc struct {
	TxID        string    `bson:"txid"`
	Sender      string    `bson:"sender"`
	Amount      int64     `bson:"amount"`
	Memo        string    `bson:"memo"`
	OrderID     string    `bson:"order_id"`
	PaymentType string    `bson:"payment_type"`
	Status      string    `bson:"status"`
	CreatedAt   time.Time `bson:"created_at"`
	UpdatedAt   time.Time `bson:"updated_at"`
}

func (d paymentDoc) toPayment() (tari.Payment, error) {
	addr, err := tari.ParseAddress(d.Sender)
	if err != nil {
		return tari.Payment{}, err
	}
	return tari.Payment{
		TxID:        d.TxID,
		Sender:      addr,
		Amount:      tari.MicroTari(d.Amount),
		Memo:        d.Memo,
		OrderID:     d.OrderID,
		PaymentType: tari.PaymentType(d.PaymentType),
		Status:      tari.PaymentStatus(d.Status),
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}, nil
}

type balanceDoc struct {
	Address       string    `bson:"_id"`
	TotalReceived int64     `bson:"total_received"`
	CurrentBalance int64    `bson:"current_balance"`
	LastUpdate    time.Time `bson:"last_update"`
}

// --- Orders ---

func (s *MongoStore) InsertOrder(ctx context.Context, in persistence.NewOrder) (tari.Order, bool, error) {
	defer s.measure("insert_order")()
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	now := time.Now()
	doc := orderDoc{
		ID:         now.UnixNano(),
		OrderID:    in.OrderID,
		CustomerID: in.CustomerID,
		Memo:       in.Memo,
		TotalPrice: int64(in.TotalPrice),
		Currency:   in.Currency,
		Status:     string(tari.OrderUnclaimed),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	_, err := s.orders.InsertOne(ctx, doc)
	if mongo.IsDuplicateKeyError(err) {
		existing, ferr := s.FetchOrderByID(ctx, in.OrderID)
		if ferr != nil {
			return tari.Order{}, false, ferr
		}
		return existing, false, nil
	}
	if err != nil {
		return tari.Order{}, false, engineerr.DatabaseError(err.Error())
	}
	return doc.toOrder(), true, nil
}

func (s *MongoStore) FetchOrderByID(ctx context.Context, orderID string) (tari.Order, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	var doc orderDoc
	err := s.orders.FindOne(ctx, bson.M{"order_id": orderID}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return tari.Order{}, engineerr.OrderNotFound(orderID)
	}
	if err != nil {
		return tari.Order{}, engineerr.DatabaseError(err.Error())
	}
	return doc.toOrder(), nil
}

func (s *MongoStore) UpdateOrderStatus(ctx context.Context, orderID string, status tari.OrderStatus) (tari.Order, error) {
	defer s.measure("update_order_status")()
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	var doc orderDoc
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	update := bson.M{"$set": bson.M{"status": string(status), "updated_at": time.Now()}}
	err := s.orders.FindOneAndUpdate(ctx, bson.M{"order_id": orderID}, update, opts).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return tari.Order{}, engineerr.OrderNotFound(orderID)
	}
	if err != nil {
		return tari.Order{}, engineerr.DatabaseError(err.Error())
	}
	return doc.toOrder(), nil
}

func (s *MongoStore) ModifyOrder(ctx context.Context, orderID string, patch tari.OrderPatch) (tari.Order, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	set := bson.M{"updated_at": time.Now()}
	if patch.Memo != nil {
		set["memo"] = *patch.Memo
	}
	if patch.TotalPrice != nil {
		set["total_price"] = int64(*patch.TotalPrice)
	}
	if patch.Currency != nil {
		set["currency"] = *patch.Currency
	}
	if patch.Status != nil {
		set["status"] = string(*patch.Status)
	}
	if patch.CustomerID != nil {
		set["customer_id"] = *patch.CustomerID
	}

	var doc orderDoc
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	err := s.orders.FindOneAndUpdate(ctx, bson.M{"order_id": orderID}, bson.M{"$set": set}, opts).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return tari.Order{}, engineerr.OrderNotFound(orderID)
	}
	if err != nil {
		return tari.Order{}, engineerr.DatabaseError(err.Error())
	}
	return doc.toOrder(), nil
}

// --- Payments ---

func (s *MongoStore) InsertPayment(ctx context.Context, in persistence.NewPayment) (tari.Payment, error) {
	defer s.measure("insert_payment")()
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	now := time.Now()
	doc := paymentDoc{
		TxID:        in.TxID,
		Sender:      in.Sender.String(),
		Amount:      int64(in.Amount),
		Memo:        in.Memo,
		OrderID:     in.OrderID,
		PaymentType: string(in.PaymentType),
		Status:      string(tari.PaymentReceived),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	_, err := s.payments.InsertOne(ctx, doc)
	if mongo.IsDuplicateKeyError(err) {
		existing, ferr := s.FetchPaymentByTxID(ctx, in.TxID)
		if ferr != nil {
			return tari.Payment{}, ferr
		}
		return existing, engineerr.PaymentAlreadyExists(in.TxID)
	}
	if err != nil {
		return tari.Payment{}, engineerr.DatabaseError(err.Error())
	}
	payment, err := doc.toPayment()
	if err != nil {
		return tari.Payment{}, engineerr.DatabaseError(err.Error())
	}
	return payment, nil
}

func (s *MongoStore) FetchPaymentByTxID(ctx context.Context, txid string) (tari.Payment, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	var doc paymentDoc
	err := s.payments.FindOne(ctx, bson.M{"txid": txid}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return tari.Payment{}, engineerr.PaymentNotFound(txid)
	}
	if err != nil {
		return tari.Payment{}, engineerr.DatabaseError(err.Error())
	}
	return doc.toPayment()
}

func (s *MongoStore) UpdatePaymentStatus(ctx context.Context, txid string, status tari.PaymentStatus) (tari.Payment, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	var doc paymentDoc
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	filter := bson.M{"txid": txid, "status": string(tari.PaymentReceived)}
	update := bson.M{"$set": bson.M{"status": string(status), "updated_at": time.Now()}}
	err := s.payments.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if err == nil {
		return doc.toPayment()
	}
	if err != mongo.ErrNoDocuments {
		return tari.Payment{}, engineerr.DatabaseError(err.Error())
	}

	existing, ferr := s.FetchPaymentByTxID(ctx, txid)
	if ferr != nil {
		return tari.Payment{}, ferr
	}
	if !existing.CanTransitionTo(status) {
		return tari.Payment{}, engineerr.New(engineerr.CodePaymentStatusUpdate, "payment status transition not permitted")
	}
	return existing, nil
}

// CreditNote inserts a Manual/Confirmed payment and credits its balance
// inside a single multi-document transaction.
func (s *MongoStore) CreditNote(ctx context.Context, customerID string, amount tari.MicroTari, reason string) (tari.Payment, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	addr, err := dummyaddr.Derive(customerID, s.network)
	if err != nil {
		return tari.Payment{}, engineerr.BackendError(err.Error())
	}

	session, err := s.client.StartSession()
	if err != nil {
		return tari.Payment{}, engineerr.DatabaseError(err.Error())
	}
	defer session.EndSession(ctx)

	result, err := session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		if _, err := s.customerLinks.UpdateOne(sc,
			bson.M{"address": addr.String(), "customer_id": customerID},
			bson.M{"$setOnInsert": bson.M{"address": addr.String(), "customer_id": customerID, "created_at": time.Now()}},
			options.Update().SetUpsert(true),
		); err != nil {
			return nil, err
		}

		now := time.Now()
		txid := fmt.Sprintf("credit:%s:%s:%d", customerID, reason, now.UnixNano())
		doc := paymentDoc{
			TxID:        txid,
			Sender:      addr.String(),
			Amount:      int64(amount),
			Memo:        reason,
			PaymentType: string(tari.PaymentManual),
			Status:      string(tari.PaymentConfirmed),
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if _, err := s.payments.InsertOne(sc, doc); err != nil {
			return nil, err
		}

		if err := s.creditBalance(sc, addr, amount); err != nil {
			return nil, err
		}
		return doc, nil
	})
	if err != nil {
		return tari.Payment{}, engineerr.DatabaseError(err.Error())
	}
	return result.(paymentDoc).toPayment()
}

// --- Address/customer linkage ---

func (s *MongoStore) LinkAddressToCustomer(ctx context.Context, address tari.Address, customerID string) error {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	_, err := s.customerLinks.UpdateOne(ctx,
		bson.M{"address": address.String(), "customer_id": customerID},
		bson.M{"$setOnInsert": bson.M{"address": address.String(), "customer_id": customerID, "created_at": time.Now()}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return engineerr.DatabaseError(err.Error())
	}
	return nil
}

func (s *MongoStore) LinkAddressToOrder(ctx context.Context, orderID string, address tari.Address) error {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	order, err := s.FetchOrderByID(ctx, orderID)
	if err != nil {
		return err
	}
	return s.LinkAddressToCustomer(ctx, address, order.CustomerID)
}

func (s *MongoStore) CustomersForAddress(ctx context.Context, address tari.Address) ([]string, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	customerIDs, err := s.customerLinks.Distinct(ctx, "customer_id", bson.M{"address": address.String()})
	if err != nil {
		return nil, engineerr.DatabaseError(err.Error())
	}

	customers := make([]string, 0, len(customerIDs))
	for _, id := range customerIDs {
		if c, ok := id.(string); ok {
			customers = append(customers, c)
		}
	}
	sort.Strings(customers)
	return customers, nil
}

func (s *MongoStore) FetchPayableOrdersForAddress(ctx context.Context, address tari.Address) ([]tari.Order, error) {
	defer s.measure("fetch_payable_orders")()
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	customerIDs, err := s.customerLinks.Distinct(ctx, "customer_id", bson.M{"address": address.String()})
	if err != nil {
		return nil, engineerr.DatabaseError(err.Error())
	}
	if len(customerIDs) == 0 {
		return nil, nil
	}
	if len(customerIDs) > 1 {
		return nil, engineerr.New(engineerr.CodeAmbiguousCustomerLink, "address linked to multiple customers")
	}

	cursor, err := s.orders.Find(ctx,
		bson.M{"customer_id": customerIDs[0], "status": string(tari.OrderNew)},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}),
	)
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

// --- Balances and settlement ---

// creditBalance applies a credit to address's projection, creating the
// row if absent. Must run inside the caller's session for transactional
// composite operations.
func (s *MongoStore) creditBalance(ctx context.Context, address tari.Address, amount tari.MicroTari) error {
	_, err := s.balances.UpdateOne(ctx,
		bson.M{"_id": address.String()},
		bson.M{
			"$inc": bson.M{"total_received": int64(amount), "current_balance": int64(amount)},
			"$set": bson.M{"last_update": time.Now()},
		},
		options.Update().SetUpsert(true),
	)
	return err
}

func (s *MongoStore) CreditBalance(ctx context.Context, address tari.Address, amount tari.MicroTari) (tari.AddressBalance, error) {
	defer s.measure("credit_balance")()
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	if err := s.creditBalance(ctx, address, amount); err != nil {
		return tari.AddressBalance{}, engineerr.DatabaseError(err.Error())
	}
	return s.FetchAddressBalance(ctx, address)
}

func (s *MongoStore) InsertSettlement(ctx context.Context, entry tari.SettlementJournalEntry) (tari.SettlementJournalEntry, error) {
	defer s.measure("insert_settlement")()
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	session, err := s.client.StartSession()
	if err != nil {
		return tari.SettlementJournalEntry{}, engineerr.DatabaseError(err.Error())
	}
	defer session.EndSession(ctx)

	result, err := session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		entry.ID = time.Now().UnixNano()
		entry.CreatedAt = time.Now()
		if _, err := s.settlements.InsertOne(sc, bson.M{
			"seq_id":          entry.ID,
			"order_id":        entry.OrderID,
			"payment_address": entry.PaymentAddress.String(),
			"amount":          int64(entry.Amount),
			"settlement_type": string(entry.SettlementType),
			"created_at":      entry.CreatedAt,
		}); err != nil {
			return nil, err
		}
		_, err := s.balances.UpdateOne(sc,
			bson.M{"_id": entry.PaymentAddress.String()},
			bson.M{"$inc": bson.M{"current_balance": -int64(entry.Amount)}, "$set": bson.M{"last_update": time.Now()}},
			options.Update().SetUpsert(true),
		)
		return entry, err
	})
	if err != nil {
		return tari.SettlementJournalEntry{}, engineerr.DatabaseError(err.Error())
	}
	return result.(tari.SettlementJournalEntry), nil
}

func (s *MongoStore) FetchAddressBalance(ctx context.Context, address tari.Address) (tari.AddressBalance, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	var doc balanceDoc
	err := s.balances.FindOne(ctx, bson.M{"_id": address.String()}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return tari.AddressBalance{Address: address}, nil
	}
	if err != nil {
		return tari.AddressBalance{}, engineerr.DatabaseError(err.Error())
	}
	return tari.AddressBalance{
		Address:        address,
		TotalReceived:  tari.MicroTari(doc.TotalReceived),
		CurrentBalance: tari.MicroTari(doc.CurrentBalance),
		LastUpdate:     doc.LastUpdate,
	}, nil
}

func (s *MongoStore) BalancesForCustomerID(ctx context.Context, customerID string) ([]tari.AddressBalance, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	addresses, err := s.customerLinks.Distinct(ctx, "address", bson.M{"customer_id": customerID})
	if err != nil {
		return nil, engineerr.DatabaseError(err.Error())
	}

	out := make([]tari.AddressBalance, 0, len(addresses))
	for _, raw := range addresses {
		addrStr, _ := raw.(string)
		addr, err := tari.ParseAddress(addrStr)
		if err != nil {
			continue
		}
		bal, err := s.FetchAddressBalance(ctx, addr)
		if err != nil {
			return nil, err
		}
		out = append(out, bal)
	}
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].CurrentBalance > out[i].CurrentBalance {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out, nil
}

// --- Expiry ---

func (s *MongoStore) ExpireOrders(ctx context.Context, fromStatus tari.OrderStatus, olderThan time.Duration) ([]tari.Order, error) {
	defer s.measure("expire_orders")()
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	cutoff := time.Now().Add(-olderThan)
	filter := bson.M{"status": string(fromStatus), "updated_at": bson.M{"$lt": cutoff}}

	cursor, err := s.orders.Find(ctx, filter)
	if err != nil {
		return nil, engineerr.DatabaseError(err.Error())
	}
	var candidates []orderDoc
	if err := cursor.All(ctx, &candidates); err != nil {
		return nil, engineerr.DatabaseError(err.Error())
	}

	var expired []tari.Order
	for _, c := range candidates {
		now := time.Now()
		if _, err := s.orders.UpdateOne(ctx,
			bson.M{"order_id": c.OrderID},
			bson.M{"$set": bson.M{"status": string(tari.OrderExpired), "updated_at": now}},
		); err != nil {
			return nil, engineerr.DatabaseError(err.Error())
		}
		c.Status = string(tari.OrderExpired)
		c.UpdatedAt = now
		expired = append(expired, c.toOrder())
	}
	return expired, nil
}

// --- Auth / wallet-auth ---

func (s *MongoStore) AuthLogUpsert(ctx context.Context, address tari.Address, nonce int64) error {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	res, err := s.authLogs.UpdateOne(ctx,
		bson.M{"_id": address.String(), "last_nonce": bson.M{"$lt": nonce}},
		bson.M{"$set": bson.M{"last_nonce": nonce}},
	)
	if err != nil {
		return engineerr.DatabaseError(err.Error())
	}
	if res.MatchedCount > 0 {
		return nil
	}

	var existing bson.M
	err = s.authLogs.FindOne(ctx, bson.M{"_id": address.String()}).Decode(&existing)
	if err == mongo.ErrNoDocuments {
		if _, err := s.authLogs.InsertOne(ctx, bson.M{"_id": address.String(), "last_nonce": nonce}); err != nil {
			return engineerr.DatabaseError(err.Error())
		}
		return nil
	}
	if err != nil {
		return engineerr.DatabaseError(err.Error())
	}
	return engineerr.New(engineerr.CodeInvalidNonce, "nonce must strictly increase")
}

func (s *MongoStore) RegisterWallet(ctx context.Context, address tari.Address, ipAddress string, initialNonce int64) (tari.WalletAuth, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	_, err := s.walletAuths.UpdateOne(ctx,
		bson.M{"_id": address.String()},
		bson.M{"$set": bson.M{"ip_address": ipAddress, "last_nonce": initialNonce}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return tari.WalletAuth{}, engineerr.DatabaseError(err.Error())
	}
	return tari.WalletAuth{Address: address, IPAddress: ipAddress, LastNonce: initialNonce}, nil
}

func (s *MongoStore) DeregisterWallet(ctx context.Context, address tari.Address) error {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	if _, err := s.walletAuths.DeleteOne(ctx, bson.M{"_id": address.String()}); err != nil {
		return engineerr.DatabaseError(err.Error())
	}
	return nil
}

func (s *MongoStore) WalletAuthLookup(ctx context.Context, address tari.Address) (tari.WalletAuth, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	var doc struct {
		IPAddress string `bson:"ip_address"`
		LastNonce int64  `bson:"last_nonce"`
	}
	err := s.walletAuths.FindOne(ctx, bson.M{"_id": address.String()}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return tari.WalletAuth{}, engineerr.New(engineerr.CodeWalletNotFound, "wallet not registered")
	}
	if err != nil {
		return tari.WalletAuth{}, engineerr.DatabaseError(err.Error())
	}
	return tari.WalletAuth{Address: address, IPAddress: doc.IPAddress, LastNonce: doc.LastNonce}, nil
}

func (s *MongoStore) WalletNonceUpdate(ctx context.Context, address tari.Address, nonce int64) error {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	res, err := s.walletAuths.UpdateOne(ctx,
		bson.M{"_id": address.String(), "last_nonce": bson.M{"$lt": nonce}},
		bson.M{"$set": bson.M{"last_nonce": nonce}},
	)
	if err != nil {
		return engineerr.DatabaseError(err.Error())
	}
	if res.MatchedCount > 0 {
		return nil
	}
	if _, err := s.WalletAuthLookup(ctx, address); err != nil {
		return err
	}
	return engineerr.New(engineerr.CodeInvalidNonce, "nonce must strictly increase")
}

// --- Roles ---

func (s *MongoStore) roleSetFetch(ctx context.Context, address tari.Address) (tari.RoleSet, error) {
	cursor, err := s.roles.Find(ctx, bson.M{"address": address.String()})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	set := tari.RoleSet{}
	for cursor.Next(ctx) {
		var doc struct {
			Role string `bson:"role"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		set = set.Add(tari.Role(doc.Role))
	}
	return set, cursor.Err()
}

func (s *MongoStore) RoleSetAssign(ctx context.Context, address tari.Address, roles ...tari.Role) (tari.RoleSet, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	for _, r := range roles {
		if _, err := s.roles.UpdateOne(ctx,
			bson.M{"address": address.String(), "role": string(r)},
			bson.M{"$setOnInsert": bson.M{"address": address.String(), "role": string(r)}},
			options.Update().SetUpsert(true),
		); err != nil {
			return nil, engineerr.DatabaseError(err.Error())
		}
	}
	set, err := s.roleSetFetch(ctx, address)
	if err != nil {
		return nil, engineerr.DatabaseError(err.Error())
	}
	return set, nil
}

func (s *MongoStore) RoleSetRemove(ctx context.Context, address tari.Address, roles ...tari.Role) (tari.RoleSet, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	for _, r := range roles {
		if _, err := s.roles.DeleteOne(ctx, bson.M{"address": address.String(), "role": string(r)}); err != nil {
			return nil, engineerr.DatabaseError(err.Error())
		}
	}
	set, err := s.roleSetFetch(ctx, address)
	if err != nil {
		return nil, engineerr.DatabaseError(err.Error())
	}
	return set, nil
}

func (s *MongoStore) RoleSetFetch(ctx context.Context, address tari.Address) (tari.RoleSet, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	set, err := s.roleSetFetch(ctx, address)
	if err != nil {
		return nil, engineerr.DatabaseError(err.Error())
	}
	return set, nil
}

// --- Exchange rates ---

func (s *MongoStore) SetExchangeRate(ctx context.Context, currency string, rate int64) (tari.ExchangeRate, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	er := tari.ExchangeRate{BaseCurrency: currency, Rate: rate, UpdatedAt: time.Now()}
	_, err := s.exchangeRates.InsertOne(ctx, bson.M{
		"currency":   er.BaseCurrency,
		"rate":       er.Rate,
		"updated_at": er.UpdatedAt,
	})
	if err != nil {
		return tari.ExchangeRate{}, engineerr.DatabaseError(err.Error())
	}
	return er, nil
}

func (s *MongoStore) LatestExchangeRate(ctx context.Context, currency string) (tari.ExchangeRate, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	var doc struct {
		Rate      int64     `bson:"rate"`
		UpdatedAt time.Time `bson:"updated_at"`
	}
	opts := options.FindOne().SetSort(bson.D{{Key: "updated_at", Value: -1}})
	err := s.exchangeRates.FindOne(ctx, bson.M{"currency": currency}, opts).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return tari.ExchangeRate{}, engineerr.New(engineerr.CodeUnsupportedCurrency, "no rate for currency "+currency)
	}
	if err != nil {
		return tari.ExchangeRate{}, engineerr.DatabaseError(err.Error())
	}
	return tari.ExchangeRate{BaseCurrency: currency, Rate: doc.Rate, UpdatedAt: doc.UpdatedAt}, nil
}
