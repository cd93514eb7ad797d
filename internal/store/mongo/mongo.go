// Package mongo stores the shop document as one collection per kind, the
// layout used by the original Mongoose models.
package mongo

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"barbershop/backend/internal/domain"
	"barbershop/backend/internal/store"
	"barbershop/backend/internal/xid"
)

const (
	colSales        = "sales"
	colExpenses     = "expenses"
	colFixed        = "fixed_expenses"
	colServices     = "services"
	colBarbers      = "barbers"
	colAppointments = "appointments"
	colSettings     = "settings"

	settingsID = "shop"
)

type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

func New(ctx context.Context, uri string, database string) (*Store, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	s := &Store{client: client, db: client.Database(database)}
	_, err = s.db.Collection(colAppointments).Indexes().CreateOne(connectCtx, mongo.IndexModel{
		Keys: bson.D{{Key: "phone", Value: 1}, {Key: "startTime", Value: 1}},
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

type saleDoc struct {
	ID            int64                `bson:"_id"`
	Time          string               `bson:"time"`
	Date          string               `bson:"date"`
	Role          string               `bson:"role"`
	Total         primitive.Decimal128 `bson:"total"`
	Items         string               `bson:"items"`
	PaymentMethod string               `bson:"paymentMethod,omitempty"`
}

type expenseDoc struct {
	ID     int64                `bson:"_id"`
	Date   string               `bson:"date"`
	Amount primitive.Decimal128 `bson:"amount"`
	Note   string               `bson:"note"`
}

type fixedDoc struct {
	ID       int64                `bson:"_id"`
	Position int                  `bson:"position"`
	Name     string               `bson:"name"`
	Amount   primitive.Decimal128 `bson:"amount"`
}

type serviceDoc struct {
	Position int                  `bson:"_id"`
	Name     string               `bson:"name"`
	Price    primitive.Decimal128 `bson:"price"`
	Duration int                  `bson:"duration,omitempty"`
}

type barberDoc struct {
	ID       string `bson:"_id"`
	Position int    `bson:"position"`
	Name     string `bson:"name"`
	Role     string `bson:"role"`
}

type appointmentDoc struct {
	ID        string               `bson:"_id"`
	Seq       int64                `bson:"seq"`
	Name      string               `bson:"name"`
	Phone     string               `bson:"phone"`
	Service   string               `bson:"service"`
	Price     primitive.Decimal128 `bson:"price"`
	StartTime time.Time            `bson:"startTime"`
	EndTime   time.Time            `bson:"endTime"`
	Status    string               `bson:"status"`
	CreatedAt time.Time            `bson:"date"`
}

type settingsDoc struct {
	ID        string `bson:"_id"`
	OpenTime  string `bson:"openTime"`
	CloseTime string `bson:"closeTime"`
}

func toDecimal128(d decimal.Decimal) primitive.Decimal128 {
	v, err := primitive.ParseDecimal128(d.String())
	if err != nil {
		return primitive.NewDecimal128(0, 0)
	}
	return v
}

func fromDecimal128(v primitive.Decimal128) decimal.Decimal {
	d, err := decimal.NewFromString(v.String())
	if err != nil {
		return decimal.Zero
	}
	return d
}

func newAppointmentDoc(appt domain.Appointment, seq int64) appointmentDoc {
	return appointmentDoc{
		ID:        appt.ID,
		Seq:       seq,
		Name:      appt.Name,
		Phone:     appt.Phone,
		Service:   appt.Service,
		Price:     toDecimal128(appt.Price),
		StartTime: appt.StartTime.UTC(),
		EndTime:   appt.EndTime.UTC(),
		Status:    appt.Status,
		CreatedAt: appt.CreatedAt.UTC(),
	}
}

func (d appointmentDoc) toDomain() domain.Appointment {
	return domain.Appointment{
		ID:        d.ID,
		Name:      d.Name,
		Phone:     d.Phone,
		Service:   d.Service,
		Price:     fromDecimal128(d.Price),
		StartTime: d.StartTime.UTC(),
		EndTime:   d.EndTime.UTC(),
		Status:    d.Status,
		CreatedAt: d.CreatedAt.UTC(),
	}
}

func findAll[T any](ctx context.Context, col *mongo.Collection, sortKey string) ([]T, error) {
	cur, err := col.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: sortKey, Value: 1}}))
	if err != nil {
		return nil, err
	}
	docs := make([]T, 0, 16)
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

func (s *Store) LoadState(ctx context.Context) (domain.State, error) {
	var state domain.State

	sales, err := findAll[saleDoc](ctx, s.db.Collection(colSales), "_id")
	if err != nil {
		return domain.State{}, err
	}
	for _, d := range sales {
		state.History = append(state.History, domain.Sale{
			ID: d.ID, Time: d.Time, Date: d.Date, Role: d.Role,
			Total: fromDecimal128(d.Total), Items: d.Items, PaymentMethod: d.PaymentMethod,
		})
	}

	expenses, err := findAll[expenseDoc](ctx, s.db.Collection(colExpenses), "_id")
	if err != nil {
		return domain.State{}, err
	}
	for _, d := range expenses {
		state.Expenses = append(state.Expenses, domain.Expense{ID: d.ID, Date: d.Date, Amount: fromDecimal128(d.Amount), Note: d.Note})
	}

	fixed, err := findAll[fixedDoc](ctx, s.db.Collection(colFixed), "position")
	if err != nil {
		return domain.State{}, err
	}
	for _, d := range fixed {
		state.FixedExpenses = append(state.FixedExpenses, domain.FixedExpense{ID: d.ID, Name: d.Name, Amount: fromDecimal128(d.Amount)})
	}

	services, err := findAll[serviceDoc](ctx, s.db.Collection(colServices), "_id")
	if err != nil {
		return domain.State{}, err
	}
	for _, d := range services {
		state.Services = append(state.Services, domain.Service{Name: d.Name, Price: fromDecimal128(d.Price), Duration: d.Duration})
	}

	barbers, err := findAll[barberDoc](ctx, s.db.Collection(colBarbers), "position")
	if err != nil {
		return domain.State{}, err
	}
	for _, d := range barbers {
		state.Barbers = append(state.Barbers, domain.Barber{ID: d.ID, Name: d.Name, Role: d.Role})
	}

	if state.Appointments, err = s.ListAppointments(ctx); err != nil {
		return domain.State{}, err
	}

	var settings settingsDoc
	err = s.db.Collection(colSettings).FindOne(ctx, bson.M{"_id": settingsID}).Decode(&settings)
	if err != nil && !errors.Is(err, mongo.ErrNoDocuments) {
		return domain.State{}, err
	}
	state.Settings = domain.Settings{OpenTime: settings.OpenTime, CloseTime: settings.CloseTime}

	return state.Normalized(), nil
}

// replaceAll swaps the contents of a collection. Standalone servers have no
// multi-document transactions, so a concurrent reader may briefly see it empty.
func replaceAll(ctx context.Context, col *mongo.Collection, docs []any) error {
	if _, err := col.DeleteMany(ctx, bson.D{}); err != nil {
		return err
	}
	if len(docs) == 0 {
		return nil
	}
	_, err := col.InsertMany(ctx, docs)
	return err
}

func (s *Store) ApplyPatch(ctx context.Context, patch domain.StatePatch) error {
	if patch.History != nil {
		for _, sale := range *patch.History {
			if err := s.UpsertSale(ctx, sale); err != nil {
				return err
			}
		}
	}
	if patch.Expenses != nil {
		for _, expense := range *patch.Expenses {
			if err := s.UpsertExpense(ctx, expense); err != nil {
				return err
			}
		}
	}
	if patch.FixedExpenses != nil {
		docs := make([]any, 0, len(*patch.FixedExpenses))
		for i, f := range *patch.FixedExpenses {
			docs = append(docs, fixedDoc{ID: f.ID, Position: i, Name: f.Name, Amount: toDecimal128(f.Amount)})
		}
		if err := replaceAll(ctx, s.db.Collection(colFixed), docs); err != nil {
			return err
		}
	}
	if patch.Services != nil {
		docs := make([]any, 0, len(*patch.Services))
		for i, svc := range *patch.Services {
			docs = append(docs, serviceDoc{Position: i, Name: svc.Name, Price: toDecimal128(svc.Price), Duration: svc.Duration})
		}
		if err := replaceAll(ctx, s.db.Collection(colServices), docs); err != nil {
			return err
		}
	}
	if patch.Barbers != nil {
		docs := make([]any, 0, len(*patch.Barbers))
		for i, b := range *patch.Barbers {
			docs = append(docs, barberDoc{ID: b.ID, Position: i, Name: b.Name, Role: b.Role})
		}
		if err := replaceAll(ctx, s.db.Collection(colBarbers), docs); err != nil {
			return err
		}
	}
	if patch.Appointments != nil {
		base := time.Now().UnixNano()
		docs := make([]any, 0, len(*patch.Appointments))
		for i, appt := range *patch.Appointments {
			if appt.ID == "" {
				appt.ID = xid.New("appt")
			}
			if appt.Status == "" {
				appt.Status = domain.StatusPending
			}
			docs = append(docs, newAppointmentDoc(appt, base+int64(i)))
		}
		if err := replaceAll(ctx, s.db.Collection(colAppointments), docs); err != nil {
			return err
		}
	}
	if patch.Settings != nil {
		settings := patch.Settings.WithDefaults()
		_, err := s.db.Collection(colSettings).ReplaceOne(ctx, bson.M{"_id": settingsID},
			settingsDoc{ID: settingsID, OpenTime: settings.OpenTime, CloseTime: settings.CloseTime},
			options.Replace().SetUpsert(true))
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) UpsertSale(ctx context.Context, sale domain.Sale) error {
	if sale.ID == 0 {
		return store.ErrInvalidInput
	}
	doc := saleDoc{
		ID: sale.ID, Time: sale.Time, Date: sale.Date, Role: sale.Role,
		Total: toDecimal128(sale.Total), Items: sale.Items, PaymentMethod: sale.PaymentMethod,
	}
	_, err := s.db.Collection(colSales).ReplaceOne(ctx, bson.M{"_id": sale.ID}, doc, options.Replace().SetUpsert(true))
	return err
}

func (s *Store) DeleteSale(ctx context.Context, id int64) error {
	return deleteOne(ctx, s.db.Collection(colSales), id)
}

func (s *Store) UpsertExpense(ctx context.Context, expense domain.Expense) error {
	if expense.ID == 0 {
		return store.ErrInvalidInput
	}
	doc := expenseDoc{ID: expense.ID, Date: expense.Date, Amount: toDecimal128(expense.Amount), Note: expense.Note}
	_, err := s.db.Collection(colExpenses).ReplaceOne(ctx, bson.M{"_id": expense.ID}, doc, options.Replace().SetUpsert(true))
	return err
}

func (s *Store) DeleteExpense(ctx context.Context, id int64) error {
	return deleteOne(ctx, s.db.Collection(colExpenses), id)
}

func (s *Store) ResetLedger(ctx context.Context) error {
	for _, name := range []string{colSales, colExpenses, colFixed} {
		if _, err := s.db.Collection(name).DeleteMany(ctx, bson.D{}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) ListAppointments(ctx context.Context) ([]domain.Appointment, error) {
	docs, err := findAll[appointmentDoc](ctx, s.db.Collection(colAppointments), "seq")
	if err != nil {
		return nil, err
	}
	appts := make([]domain.Appointment, 0, len(docs))
	for _, d := range docs {
		appts = append(appts, d.toDomain())
	}
	return appts, nil
}

func (s *Store) CreateAppointment(ctx context.Context, appt domain.Appointment) (*domain.Appointment, error) {
	if appt.Name == "" || appt.Phone == "" || !appt.EndTime.After(appt.StartTime) {
		return nil, store.ErrInvalidInput
	}
	if appt.ID == "" {
		appt.ID = xid.New("appt")
	}
	if appt.Status == "" {
		appt.Status = domain.StatusPending
	}
	if appt.CreatedAt.IsZero() {
		appt.CreatedAt = time.Now().UTC()
	}

	doc := newAppointmentDoc(appt, time.Now().UnixNano())
	if _, err := s.db.Collection(colAppointments).InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}
	created := doc.toDomain()
	return &created, nil
}

func (s *Store) UpdateAppointmentStatus(ctx context.Context, id string, status string) (*domain.Appointment, error) {
	var doc appointmentDoc
	err := s.db.Collection(colAppointments).FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"status": status}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	updated := doc.toDomain()
	return &updated, nil
}

func (s *Store) DeleteAppointment(ctx context.Context, id string) error {
	return deleteOne(ctx, s.db.Collection(colAppointments), id)
}

func (s *Store) DeletePendingBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.Collection(colAppointments).DeleteMany(ctx, bson.M{
		"status":    bson.M{"$ne": domain.StatusConfirmed},
		"startTime": bson.M{"$lt": cutoff.UTC()},
	})
	if err != nil {
		return 0, err
	}
	return int(res.DeletedCount), nil
}

func deleteOne(ctx context.Context, col *mongo.Collection, id any) error {
	res, err := col.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}
