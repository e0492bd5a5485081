package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/sells-group/catalog-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// Prices are stored as TEXT so no precision is lost to REAL.
const sqliteMigration = `
CREATE TABLE IF NOT EXISTS items (
	id          TEXT PRIMARY KEY,
	owner_id    TEXT NOT NULL DEFAULT '',
	name        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	category    TEXT NOT NULL DEFAULT '',
	base_price  TEXT NOT NULL DEFAULT '0',
	currency    TEXT NOT NULL DEFAULT 'USD',
	active      INTEGER NOT NULL DEFAULT 1,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS item_price_tiers (
	item_id      TEXT NOT NULL REFERENCES items(id) ON DELETE CASCADE,
	min_quantity INTEGER NOT NULL,
	max_quantity INTEGER,
	unit_price   TEXT NOT NULL,
	PRIMARY KEY (item_id, min_quantity)
);

CREATE TABLE IF NOT EXISTS item_specifications (
	item_id    TEXT NOT NULL REFERENCES items(id) ON DELETE CASCADE,
	name       TEXT NOT NULL,
	value      TEXT NOT NULL,
	unit       TEXT NOT NULL DEFAULT '',
	sort_order INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS item_images (
	item_id    TEXT NOT NULL REFERENCES items(id) ON DELETE CASCADE,
	url        TEXT NOT NULL,
	object_key TEXT NOT NULL DEFAULT '',
	is_primary INTEGER NOT NULL DEFAULT 0,
	sort_order INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS task_archive (
	id               TEXT PRIMARY KEY,
	item_id          TEXT NOT NULL,
	status           TEXT NOT NULL,
	progress_percent INTEGER NOT NULL DEFAULT 0,
	operations       TEXT NOT NULL,
	error            TEXT NOT NULL DEFAULT '',
	attempts         INTEGER NOT NULL DEFAULT 0,
	started_at       DATETIME NOT NULL,
	finished_at      DATETIME,
	archived_at      DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_items_owner_id ON items(owner_id);
CREATE INDEX IF NOT EXISTS idx_items_category ON items(category);
CREATE INDEX IF NOT EXISTS idx_item_specifications_item_id ON item_specifications(item_id);
CREATE INDEX IF NOT EXISTS idx_item_images_item_id ON item_images(item_id);
CREATE INDEX IF NOT EXISTS idx_task_archive_item_id ON task_archive(item_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateItem(ctx context.Context, fields model.ItemFields) (*model.Item, error) {
	if err := validateFields(fields); err != nil {
		return nil, err
	}
	item := newItem(uuid.New().String(), fields)
	now := time.Now().UTC()
	item.CreatedAt = now
	item.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO items (id, owner_id, name, description, category, base_price, currency, active, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.OwnerID, item.Name, item.Description, item.Category, item.BasePrice.String(), item.Currency, item.Active, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert item")
	}
	return &item, nil
}

func (s *SQLiteStore) UpdateItem(ctx context.Context, id string, patch model.ItemPatch) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		current, err := scanSQLiteItem(tx.QueryRowContext(ctx,
			`SELECT id, owner_id, name, description, category, base_price, currency, active, created_at, updated_at FROM items WHERE id = ?`, id))
		if errors.Is(err, sql.ErrNoRows) {
			return eris.Wrapf(ErrNotFound, "item %s", id)
		}
		if err != nil {
			return eris.Wrapf(err, "sqlite: load item %s", id)
		}

		next, err := applyPatch(*current, patch)
		if err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx,
			`UPDATE items SET name = ?, description = ?, category = ?, base_price = ?, currency = ?, active = ?, updated_at = ? WHERE id = ?`,
			next.Name, next.Description, next.Category, next.BasePrice.String(), next.Currency, next.Active, time.Now().UTC(), id,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: update item %s", id)
		}
		return checkRowsAffected(res, "item", id)
	})
}

func (s *SQLiteStore) GetItem(ctx context.Context, id string) (*model.Item, error) {
	item, err := scanSQLiteItem(s.db.QueryRowContext(ctx,
		`SELECT id, owner_id, name, description, category, base_price, currency, active, created_at, updated_at FROM items WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "item %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get item %s", id)
	}
	return item, nil
}

func (s *SQLiteStore) ListItems(ctx context.Context, filter ItemFilter) ([]model.Item, error) {
	query := `SELECT id, owner_id, name, description, category, base_price, currency, active, created_at, updated_at FROM items WHERE 1=1`
	var args []any

	if filter.OwnerID != "" {
		query += ` AND owner_id = ?`
		args = append(args, filter.OwnerID)
	}
	if filter.Category != "" {
		query += ` AND category = ?`
		args = append(args, filter.Category)
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list items")
	}
	defer rows.Close() //nolint:errcheck

	var items []model.Item
	for rows.Next() {
		item, err := scanSQLiteItem(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan item")
		}
		items = append(items, *item)
	}
	return items, eris.Wrap(rows.Err(), "sqlite: list items iterate")
}

func (s *SQLiteStore) ReplaceTiers(ctx context.Context, itemID string, tiers []model.PriceTier) error {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM item_price_tiers WHERE item_id = ?`, itemID); err != nil {
			return eris.Wrap(err, "delete tiers")
		}
		for _, t := range tiers {
			var maxQty sql.NullInt64
			if t.MaxQuantity != nil {
				maxQty = sql.NullInt64{Int64: *t.MaxQuantity, Valid: true}
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO item_price_tiers (item_id, min_quantity, max_quantity, unit_price) VALUES (?, ?, ?, ?)`,
				itemID, t.MinQuantity, maxQty, t.UnitPrice.String(),
			); err != nil {
				return eris.Wrapf(err, "insert tier %s", t.RangeLabel())
			}
		}
		return nil
	})
	return eris.Wrapf(err, "sqlite: replace tiers for item %s", itemID)
}

func (s *SQLiteStore) ListTiers(ctx context.Context, itemID string) ([]model.PriceTier, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT min_quantity, max_quantity, unit_price FROM item_price_tiers WHERE item_id = ? ORDER BY min_quantity`, itemID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list tiers for item %s", itemID)
	}
	defer rows.Close() //nolint:errcheck

	tiers := []model.PriceTier{}
	for rows.Next() {
		var t model.PriceTier
		var maxQty sql.NullInt64
		var price string
		if err := rows.Scan(&t.MinQuantity, &maxQty, &price); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan tier")
		}
		if maxQty.Valid {
			t.MaxQuantity = model.Int64Ptr(maxQty.Int64)
		}
		if t.UnitPrice, err = decimal.NewFromString(price); err != nil {
			return nil, eris.Wrap(err, "sqlite: parse tier price")
		}
		tiers = append(tiers, t)
	}
	return tiers, eris.Wrap(rows.Err(), "sqlite: list tiers iterate")
}

func (s *SQLiteStore) ReplaceSpecifications(ctx context.Context, itemID string, specs []model.Specification) error {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM item_specifications WHERE item_id = ?`, itemID); err != nil {
			return eris.Wrap(err, "delete specifications")
		}
		for _, sp := range specs {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO item_specifications (item_id, name, value, unit, sort_order) VALUES (?, ?, ?, ?, ?)`,
				itemID, sp.Name, sp.Value, sp.Unit, sp.SortOrder,
			); err != nil {
				return eris.Wrapf(err, "insert specification %q", sp.Name)
			}
		}
		return nil
	})
	return eris.Wrapf(err, "sqlite: replace specifications for item %s", itemID)
}

func (s *SQLiteStore) ListSpecifications(ctx context.Context, itemID string) ([]model.Specification, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, value, unit, sort_order FROM item_specifications WHERE item_id = ? ORDER BY sort_order, name`, itemID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list specifications for item %s", itemID)
	}
	defer rows.Close() //nolint:errcheck

	specs := []model.Specification{}
	for rows.Next() {
		var sp model.Specification
		if err := rows.Scan(&sp.Name, &sp.Value, &sp.Unit, &sp.SortOrder); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan specification")
		}
		specs = append(specs, sp)
	}
	return specs, eris.Wrap(rows.Err(), "sqlite: list specifications iterate")
}

func (s *SQLiteStore) ReplaceImages(ctx context.Context, itemID string, images []model.ItemImage) error {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM item_images WHERE item_id = ?`, itemID); err != nil {
			return eris.Wrap(err, "delete images")
		}
		for _, img := range images {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO item_images (item_id, url, object_key, is_primary, sort_order) VALUES (?, ?, ?, ?, ?)`,
				itemID, img.URL, img.ObjectKey, img.IsPrimary, img.SortOrder,
			); err != nil {
				return eris.Wrapf(err, "insert image %s", img.URL)
			}
		}
		return nil
	})
	return eris.Wrapf(err, "sqlite: replace images for item %s", itemID)
}

func (s *SQLiteStore) ListImages(ctx context.Context, itemID string) ([]model.ItemImage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT item_id, url, object_key, is_primary, sort_order FROM item_images WHERE item_id = ? ORDER BY sort_order`, itemID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list images for item %s", itemID)
	}
	defer rows.Close() //nolint:errcheck

	images := []model.ItemImage{}
	for rows.Next() {
		var img model.ItemImage
		if err := rows.Scan(&img.ItemID, &img.URL, &img.ObjectKey, &img.IsPrimary, &img.SortOrder); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan image")
		}
		images = append(images, img)
	}
	return images, eris.Wrap(rows.Err(), "sqlite: list images iterate")
}

func (s *SQLiteStore) ArchiveTask(ctx context.Context, task *model.BackgroundTask) error {
	ops, err := marshalOperations(task.Operations)
	if err != nil {
		return err
	}

	var finished sql.NullTime
	if at := task.FinishedAt(); at != nil {
		finished = sql.NullTime{Time: at.UTC(), Valid: true}
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO task_archive (id, item_id, status, progress_percent, operations, error, attempts, started_at, finished_at, archived_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), task.ItemID, string(task.Status), task.ProgressPercent, string(ops), task.Error,
		task.Attempts, task.StartTime.UTC(), finished, time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: archive task for item %s", task.ItemID)
}

func (s *SQLiteStore) ListArchivedTasks(ctx context.Context, itemID string) ([]model.BackgroundTask, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT item_id, status, progress_percent, operations, error, attempts, started_at, finished_at FROM task_archive WHERE item_id = ? ORDER BY archived_at DESC`, itemID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list archived tasks for item %s", itemID)
	}
	defer rows.Close() //nolint:errcheck

	var tasks []model.BackgroundTask
	for rows.Next() {
		var t model.BackgroundTask
		var status, ops string
		var finished sql.NullTime
		if err := rows.Scan(&t.ItemID, &status, &t.ProgressPercent, &ops, &t.Error, &t.Attempts, &t.StartTime, &finished); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan archived task")
		}
		t.Status = model.TaskStatus(status)
		if t.Operations, err = unmarshalOperations([]byte(ops)); err != nil {
			return nil, err
		}
		if finished.Valid {
			setFinished(&t, &finished.Time)
		}
		tasks = append(tasks, t)
	}
	return tasks, eris.Wrap(rows.Err(), "sqlite: list archived tasks iterate")
}

func (s *SQLiteStore) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	if err := fn(tx); err != nil {
		tx.Rollback() //nolint:errcheck
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

func scanSQLiteItem(row scannable) (*model.Item, error) {
	var item model.Item
	var price string
	if err := row.Scan(&item.ID, &item.OwnerID, &item.Name, &item.Description, &item.Category,
		&price, &item.Currency, &item.Active, &item.CreatedAt, &item.UpdatedAt); err != nil {
		return nil, err
	}
	p, err := decimal.NewFromString(price)
	if err != nil {
		return nil, eris.Wrap(err, "parse base price")
	}
	item.BasePrice = p
	return &item, nil
}
