package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"barbershop/backend/internal/domain"
	"barbershop/backend/internal/store"
	"barbershop/backend/internal/xid"
)

//go:embed schema.sql
var schema string

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(4)
	db.SetMaxOpenConns(16)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) LoadState(ctx context.Context) (domain.State, error) {
	var state domain.State
	var err error

	if state.History, err = listSales(ctx, s.db); err != nil {
		return domain.State{}, err
	}
	if state.Expenses, err = listExpenses(ctx, s.db); err != nil {
		return domain.State{}, err
	}
	if state.FixedExpenses, err = listFixedExpenses(ctx, s.db); err != nil {
		return domain.State{}, err
	}
	if state.Services, err = listServices(ctx, s.db); err != nil {
		return domain.State{}, err
	}
	if state.Barbers, err = listBarbers(ctx, s.db); err != nil {
		return domain.State{}, err
	}
	if state.Appointments, err = listAppointments(ctx, s.db); err != nil {
		return domain.State{}, err
	}

	err = s.db.QueryRowContext(ctx, `SELECT open_time, close_time FROM shop_settings WHERE id = 1`).
		Scan(&state.Settings.OpenTime, &state.Settings.CloseTime)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return domain.State{}, err
	}

	return state.Normalized(), nil
}

func (s *Store) ApplyPatch(ctx context.Context, patch domain.StatePatch) error {
	if patch.Empty() {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if patch.History != nil {
		for _, sale := range *patch.History {
			if err := upsertSale(ctx, tx, sale); err != nil {
				return err
			}
		}
	}
	if patch.Expenses != nil {
		for _, expense := range *patch.Expenses {
			if err := upsertExpense(ctx, tx, expense); err != nil {
				return err
			}
		}
	}
	if patch.FixedExpenses != nil {
		if _, err := tx.ExecContext(ctx, `DELETE FROM fixed_expenses`); err != nil {
			return err
		}
		for i, fixed := range *patch.FixedExpenses {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO fixed_expenses (id, position, name, amount) VALUES ($1,$2,$3,$4)
			`, fixed.ID, i, fixed.Name, fixed.Amount); err != nil {
				return mapWriteError(err)
			}
		}
	}
	if patch.Services != nil {
		if _, err := tx.ExecContext(ctx, `DELETE FROM services`); err != nil {
			return err
		}
		for i, svc := range *patch.Services {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO services (position, name, price, duration) VALUES ($1,$2,$3,$4)
			`, i, svc.Name, svc.Price, svc.Duration); err != nil {
				return err
			}
		}
	}
	if patch.Barbers != nil {
		if _, err := tx.ExecContext(ctx, `DELETE FROM barbers`); err != nil {
			return err
		}
		for i, barber := range *patch.Barbers {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO barbers (id, position, name, role) VALUES ($1,$2,$3,$4)
			`, barber.ID, i, barber.Name, barber.Role); err != nil {
				return mapWriteError(err)
			}
		}
	}
	if patch.Appointments != nil {
		if _, err := tx.ExecContext(ctx, `DELETE FROM appointments`); err != nil {
			return err
		}
		for _, appt := range *patch.Appointments {
			if appt.ID == "" {
				appt.ID = xid.New("appt")
			}
			if err := insertAppointment(ctx, tx, appt); err != nil {
				return err
			}
		}
	}
	if patch.Settings != nil {
		settings := patch.Settings.WithDefaults()
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO shop_settings (id, open_time, close_time) VALUES (1, $1, $2)
			ON CONFLICT (id) DO UPDATE SET open_time = EXCLUDED.open_time, close_time = EXCLUDED.close_time
		`, settings.OpenTime, settings.CloseTime); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *Store) UpsertSale(ctx context.Context, sale domain.Sale) error {
	if sale.ID == 0 {
		return store.ErrInvalidInput
	}
	return upsertSale(ctx, s.db, sale)
}

func (s *Store) DeleteSale(ctx context.Context, id int64) error {
	return deleteByID(ctx, s.db, `DELETE FROM sales WHERE id = $1`, id)
}

func (s *Store) UpsertExpense(ctx context.Context, expense domain.Expense) error {
	if expense.ID == 0 {
		return store.ErrInvalidInput
	}
	return upsertExpense(ctx, s.db, expense)
}

func (s *Store) DeleteExpense(ctx context.Context, id int64) error {
	return deleteByID(ctx, s.db, `DELETE FROM expenses WHERE id = $1`, id)
}

func (s *Store) ResetLedger(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `TRUNCATE sales, expenses, fixed_expenses`)
	return err
}

func (s *Store) ListAppointments(ctx context.Context) ([]domain.Appointment, error) {
	return listAppointments(ctx, s.db)
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

	if err := insertAppointment(ctx, s.db, appt); err != nil {
		return nil, err
	}
	created := appt
	return &created, nil
}

func (s *Store) UpdateAppointmentStatus(ctx context.Context, id string, status string) (*domain.Appointment, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE appointments SET status = $2 WHERE id = $1
		RETURNING id, name, phone, service, price, start_time, end_time, status, created_at
	`, id, status)
	appt, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &appt, nil
}

func (s *Store) DeleteAppointment(ctx context.Context, id string) error {
	return deleteByID(ctx, s.db, `DELETE FROM appointments WHERE id = $1`, id)
}

func (s *Store) DeletePendingBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM appointments WHERE status <> $1 AND start_time < $2
	`, domain.StatusConfirmed, cutoff)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

func upsertSale(ctx context.Context, q queryer, sale domain.Sale) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO sales (id, sale_time, sale_date, role, total, items, payment_method)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (id) DO UPDATE SET
			sale_time = EXCLUDED.sale_time,
			sale_date = EXCLUDED.sale_date,
			role = EXCLUDED.role,
			total = EXCLUDED.total,
			items = EXCLUDED.items,
			payment_method = EXCLUDED.payment_method
	`, sale.ID, sale.Time, sale.Date, sale.Role, sale.Total, sale.Items, sale.PaymentMethod)
	return err
}

func upsertExpense(ctx context.Context, q queryer, expense domain.Expense) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO expenses (id, expense_date, amount, note)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (id) DO UPDATE SET
			expense_date = EXCLUDED.expense_date,
			amount = EXCLUDED.amount,
			note = EXCLUDED.note
	`, expense.ID, expense.Date, expense.Amount, expense.Note)
	return err
}

func insertAppointment(ctx context.Context, q queryer, appt domain.Appointment) error {
	if appt.CreatedAt.IsZero() {
		appt.CreatedAt = time.Now().UTC()
	}
	if appt.Status == "" {
		appt.Status = domain.StatusPending
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO appointments (id, name, phone, service, price, start_time, end_time, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, appt.ID, appt.Name, appt.Phone, appt.Service, appt.Price, appt.StartTime, appt.EndTime, appt.Status, appt.CreatedAt)
	return mapWriteError(err)
}

func deleteByID(ctx context.Context, q queryer, query string, id any) error {
	res, err := q.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func listSales(ctx context.Context, q queryer) ([]domain.Sale, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, sale_time, sale_date, role, total, items, payment_method
		FROM sales
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, 64)
	for rows.Next() {
		var sale domain.Sale
		if err := rows.Scan(&sale.ID, &sale.Time, &sale.Date, &sale.Role, &sale.Total, &sale.Items, &sale.PaymentMethod); err != nil {
			return nil, err
		}
		sales = append(sales, sale)
	}
	return sales, rows.Err()
}

func listExpenses(ctx context.Context, q queryer) ([]domain.Expense, error) {
	rows, err := q.QueryContext(ctx, `SELECT id, expense_date, amount, note FROM expenses ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	expenses := make([]domain.Expense, 0, 16)
	for rows.Next() {
		var expense domain.Expense
		if err := rows.Scan(&expense.ID, &expense.Date, &expense.Amount, &expense.Note); err != nil {
			return nil, err
		}
		expenses = append(expenses, expense)
	}
	return expenses, rows.Err()
}

func listFixedExpenses(ctx context.Context, q queryer) ([]domain.FixedExpense, error) {
	rows, err := q.QueryContext(ctx, `SELECT id, name, amount FROM fixed_expenses ORDER BY position`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fixed := make([]domain.FixedExpense, 0, 8)
	for rows.Next() {
		var f domain.FixedExpense
		if err := rows.Scan(&f.ID, &f.Name, &f.Amount); err != nil {
			return nil, err
		}
		fixed = append(fixed, f)
	}
	return fixed, rows.Err()
}

func listServices(ctx context.Context, q queryer) ([]domain.Service, error) {
	rows, err := q.QueryContext(ctx, `SELECT name, price, duration FROM services ORDER BY position`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	services := make([]domain.Service, 0, 16)
	for rows.Next() {
		var svc domain.Service
		if err := rows.Scan(&svc.Name, &svc.Price, &svc.Duration); err != nil {
			return nil, err
		}
		services = append(services, svc)
	}
	return services, rows.Err()
}

func listBarbers(ctx context.Context, q queryer) ([]domain.Barber, error) {
	rows, err := q.QueryContext(ctx, `SELECT id, name, role FROM barbers ORDER BY position`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	barbers := make([]domain.Barber, 0, 8)
	for rows.Next() {
		var b domain.Barber
		if err := rows.Scan(&b.ID, &b.Name, &b.Role); err != nil {
			return nil, err
		}
		barbers = append(barbers, b)
	}
	return barbers, rows.Err()
}

func listAppointments(ctx context.Context, q queryer) ([]domain.Appointment, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, name, phone, service, price, start_time, end_time, status, created_at
		FROM appointments
		ORDER BY seq
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	appts := make([]domain.Appointment, 0, 32)
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, appt)
	}
	return appts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAppointment(row rowScanner) (domain.Appointment, error) {
	var appt domain.Appointment
	err := row.Scan(&appt.ID, &appt.Name, &appt.Phone, &appt.Service, &appt.Price,
		&appt.StartTime, &appt.EndTime, &appt.Status, &appt.CreatedAt)
	if err != nil {
		return domain.Appointment{}, err
	}
	appt.StartTime = appt.StartTime.UTC()
	appt.EndTime = appt.EndTime.UTC()
	appt.CreatedAt = appt.CreatedAt.UTC()
	return appt, nil
}

func mapWriteError(err error) error {
	if isUniqueViolation(err) {
		return store.ErrInvalidInput
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
