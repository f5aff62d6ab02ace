package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/iurnickita/posprint/internal/model"
	"github.com/iurnickita/posprint/internal/store/config"
)

type Store interface {
	OrderPost(ctx context.Context, order model.Order) error
	OrderPutPrint(ctx context.Context, order model.Order) error
	OrderPutStatus(ctx context.Context, number string, from string, to string, updatedAt time.Time) error
	OrderGet(ctx context.Context, number string) (model.Order, error)
	OrderList(ctx context.Context, filter model.OrderFilter) ([]model.Order, error)
	MenuGet(ctx context.Context) (model.Menu, error)
	MenuPut(ctx context.Context, menu model.Menu) error
	Close() error
}

var (
	ErrNoRows        = errors.New("no rows")
	ErrAlreadyExists = errors.New("already exists")
)

const orderColumns = "number, items, subtotal, customer_notes, phone_number, status," +
	" print_status, print_task_id, printed_at, created_at, updated_at"

type store struct {
	database *sql.DB
}

func NewStore(cfg config.Config) (Store, error) {
	db, err := sql.Open("pgx", cfg.DBDsn)
	if err != nil {
		return nil, err
	}

	// Таблица заказов.
	// Одна строка на заказ, позиции хранятся документом. После печати меняется print_status.
	_, err = db.Exec(
		"CREATE TABLE IF NOT EXISTS orders (" +
			" number VARCHAR (32) PRIMARY KEY," +
			" items JSONB NOT NULL," +
			" subtotal NUMERIC (12, 2) NOT NULL," +
			" customer_notes TEXT NOT NULL DEFAULT ''," +
			" phone_number VARCHAR (32) NOT NULL DEFAULT ''," +
			" status VARCHAR (16) NOT NULL," +
			" print_status VARCHAR (16) NOT NULL," +
			" print_task_id VARCHAR (64) NOT NULL DEFAULT ''," +
			" printed_at TIMESTAMPTZ," +
			" created_at TIMESTAMPTZ NOT NULL," +
			" updated_at TIMESTAMPTZ NOT NULL" +
			" );")
	if err != nil {
		db.Close()
		return nil, err
	}
	_, err = db.Exec("CREATE INDEX IF NOT EXISTS orders_created_at_idx ON orders (created_at DESC);")
	if err != nil {
		db.Close()
		return nil, err
	}

	// Меню - единственный документ с id = 1
	_, err = db.Exec(
		"CREATE TABLE IF NOT EXISTS menu (" +
			" id INTEGER PRIMARY KEY," +
			" categories JSONB NOT NULL," +
			" last_updated TIMESTAMPTZ NOT NULL" +
			" );")
	if err != nil {
		db.Close()
		return nil, err
	}

	return &store{
		database: db,
	}, nil
}

func (store *store) Close() error {
	return store.database.Close()
}

func (store *store) OrderPost(ctx context.Context, order model.Order) error {
	items, err := json.Marshal(order.Data.Items)
	if err != nil {
		return err
	}

	//Запись нового заказа
	_, err = store.database.ExecContext(ctx,
		"INSERT INTO orders ("+orderColumns+")"+
			" VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)",
		order.Number,
		items,
		order.Data.Subtotal,
		order.Data.CustomerNotes,
		order.Data.PhoneNumber,
		order.Data.Status,
		order.Data.PrintStatus,
		order.Data.PrintTaskID,
		order.Data.PrintedAt,
		order.Data.CreatedAt,
		order.Data.UpdatedAt)
	if err != nil {
		// Проверка: номер уже занят
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrAlreadyExists
		}
		return err
	}
	return nil
}

func (store *store) OrderPutPrint(ctx context.Context, order model.Order) error {
	//Обновление результата печати. Позиции и сумма не меняются.
	res, err := store.database.ExecContext(ctx,
		"UPDATE orders"+
			" SET print_status = $1, print_task_id = $2, printed_at = $3, updated_at = $4"+
			" WHERE number = $5",
		order.Data.PrintStatus,
		order.Data.PrintTaskID,
		order.Data.PrintedAt,
		order.Data.UpdatedAt,
		order.Number)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

// OrderPutStatus меняет статус, только если текущий статус равен from. Иначе ErrNoRows.
func (store *store) OrderPutStatus(ctx context.Context, number string, from string, to string, updatedAt time.Time) error {
	res, err := store.database.ExecContext(ctx,
		"UPDATE orders"+
			" SET status = $1, updated_at = $2"+
			" WHERE number = $3 AND status = $4",
		to,
		updatedAt,
		number,
		from)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

func (store *store) OrderGet(ctx context.Context, number string) (model.Order, error) {
	row := store.database.QueryRowContext(ctx,
		"SELECT "+orderColumns+
			" FROM orders"+
			" WHERE number = $1",
		number)
	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Order{}, ErrNoRows
		}
		return model.Order{}, err
	}
	return order, nil
}

func (store *store) OrderList(ctx context.Context, filter model.OrderFilter) ([]model.Order, error) {
	var (
		where []string
		args  []any
	)
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, "status = $"+strconv.Itoa(len(args)))
	}
	if !filter.StartDate.IsZero() {
		args = append(args, filter.StartDate)
		where = append(where, "created_at >= $"+strconv.Itoa(len(args)))
	}
	if !filter.EndDate.IsZero() {
		args = append(args, filter.EndDate)
		where = append(where, "created_at <= $"+strconv.Itoa(len(args)))
	}

	query := "SELECT " + orderColumns + " FROM orders"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"

	//Получение заказов
	rows, err := store.database.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var orders []model.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}

	return orders, rows.Err()
}

func (store *store) MenuGet(ctx context.Context) (model.Menu, error) {
	row := store.database.QueryRowContext(ctx,
		"SELECT categories, last_updated FROM menu WHERE id = 1")

	var (
		menu       model.Menu
		categories []byte
	)
	err := row.Scan(&categories, &menu.LastUpdated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Menu{}, ErrNoRows
		}
		return model.Menu{}, err
	}
	if err := json.Unmarshal(categories, &menu.Categories); err != nil {
		return model.Menu{}, err
	}
	return menu, nil
}

func (store *store) MenuPut(ctx context.Context, menu model.Menu) error {
	if menu.Categories == nil {
		menu.Categories = []model.MenuCategory{}
	}
	categories, err := json.Marshal(menu.Categories)
	if err != nil {
		return err
	}

	_, err = store.database.ExecContext(ctx,
		"INSERT INTO menu (id, categories, last_updated)"+
			" VALUES (1, $1, $2)"+
			" ON CONFLICT (id) DO UPDATE"+
			" SET categories = EXCLUDED.categories, last_updated = EXCLUDED.last_updated",
		categories,
		menu.LastUpdated)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOrder(row scanner) (model.Order, error) {
	var (
		order     model.Order
		items     []byte
		printedAt sql.NullTime
	)
	err := row.Scan(&order.Number,
		&items,
		&order.Data.Subtotal,
		&order.Data.CustomerNotes,
		&order.Data.PhoneNumber,
		&order.Data.Status,
		&order.Data.PrintStatus,
		&order.Data.PrintTaskID,
		&printedAt,
		&order.Data.CreatedAt,
		&order.Data.UpdatedAt)
	if err != nil {
		return model.Order{}, err
	}
	if err := json.Unmarshal(items, &order.Data.Items); err != nil {
		return model.Order{}, err
	}
	if printedAt.Valid {
		t := printedAt.Time
		order.Data.PrintedAt = &t
	}
	return order, nil
}

func checkAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNoRows
	}
	return nil
}
