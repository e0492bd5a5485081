package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/sells-group/catalog-cli/internal/db"
	"github.com/sells-group/catalog-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS items (
	id          TEXT PRIMARY KEY,
	owner_id    TEXT NOT NULL DEFAULT '',
	name        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	category    TEXT NOT NULL DEFAULT '',
	base_price  NUMERIC(18,4) NOT NULL DEFAULT 0,
	currency    TEXT NOT NULL DEFAULT 'USD',
	active      BOOLEAN NOT NULL DEFAULT true,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_items_owner_id ON items(owner_id);
CREATE INDEX IF NOT EXISTS idx_items_category ON items(category);

CREATE TABLE IF NOT EXISTS item_price_tiers (
	item_id      TEXT NOT NULL REFERENCES items(id) ON DELETE CASCADE,
	min_quantity BIGINT NOT NULL CHECK (min_quantity > 0),
	max_quantity BIGINT,
	unit_price   NUMERIC NOT NULL CHECK (unit_price > 0),
	PRIMARY KEY (item_id, min_quantity)
);

-- Unit prices are stored exactly; older schemas used NUMERIC(18,4).
ALTER TABLE item_price_tiers ALTER COLUMN unit_price TYPE NUMERIC;

CREATE TABLE IF NOT EXISTS item_specifications (
	item_id    TEXT NOT NULL REFERENCES items(id) ON DELETE CASCADE,
	name       TEXT NOT NULL,
	value      TEXT NOT NULL,
	unit       TEXT NOT NULL DEFAULT '',
	sort_order INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_item_specifications_item_id ON item_specifications(item_id);

CREATE TABLE IF NOT EXISTS item_images (
	item_id    TEXT NOT NULL REFERENCES items(id) ON DELETE CASCADE,
	url        TEXT NOT NULL,
	object_key TEXT NOT NULL DEFAULT '',
	is_primary BOOLEAN NOT NULL DEFAULT false,
	sort_order INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_item_images_item_id ON item_images(item_id);

CREATE TABLE IF NOT EXISTS task_archive (
	id               TEXT PRIMARY KEY,
	item_id          TEXT NOT NULL,
	status           TEXT NOT NULL,
	progress_percent INTEGER NOT NULL DEFAULT 0,
	operations       JSONB NOT NULL,
	error            TEXT NOT NULL DEFAULT '',
	attempts         INTEGER NOT NULL DEFAULT 0,
	started_at       TIMESTAMPTZ NOT NULL,
	finished_at      TIMESTAMPTZ,
	archived_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_task_archive_item_id ON task_archive(item_id);
`

// Ping verifies the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateItem(ctx context.Context, fields model.ItemFields) (*model.Item, error) {
	if err := validateFields(fields); err != nil {
		return nil, err
	}
	item := newItem(uuid.New().String(), fields)
	now := time.Now().UTC()
	item.CreatedAt = now
	item.UpdatedAt = now

	_, err := s.pool.Exec(ctx,
		`INSERT INTO items (id, owner_id, name, description, category, base_price, currency, active, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		item.ID, item.OwnerID, item.Name, item.Description, item.Category, numeric(item.BasePrice), item.Currency, item.Active, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert item")
	}
	return &item, nil
}

func (s *PostgresStore) UpdateItem(ctx context.Context, id string, patch model.ItemPatch) error {
	if _, err := applyPatch(model.Item{}, patch); err != nil {
		return err
	}

	var sets []string
	var args []any
	argIdx := 1
	add := func(col string, v any) {
		sets = append(sets, fmt.Sprintf("%s = $%d", col, argIdx))
		args = append(args, v)
		argIdx++
	}
	if patch.Name != nil {
		add("name", *patch.Name)
	}
	if patch.Description != nil {
		add("description", *patch.Description)
	}
	if patch.Category != nil {
		add("category", *patch.Category)
	}
	if patch.BasePrice != nil {
		add("base_price", numeric(*patch.BasePrice))
	}
	if patch.Currency != nil {
		add("currency", *patch.Currency)
	}
	if patch.Active != nil {
		add("active", *patch.Active)
	}
	add("updated_at", time.Now().UTC())

	query := fmt.Sprintf(`UPDATE items SET %s WHERE id = $%d`, strings.Join(sets, ", "), argIdx)
	args = append(args, id)

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return eris.Wrapf(err, "postgres: update item %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "item %s", id)
	}
	return nil
}

func (s *PostgresStore) GetItem(ctx context.Context, id string) (*model.Item, error) {
	item, err := scanPgItem(s.pool.QueryRow(ctx,
		`SELECT id, owner_id, name, description, category, base_price::text, currency, active, created_at, updated_at FROM items WHERE id = $1`,
		id,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "item %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get item %s", id)
	}
	return item, nil
}

func (s *PostgresStore) ListItems(ctx context.Context, filter ItemFilter) ([]model.Item, error) {
	query := `SELECT id, owner_id, name, description, category, base_price::text, currency, active, created_at, updated_at FROM items WHERE true`
	args := []any{}
	argIdx := 1

	if filter.OwnerID != "" {
		query += fmt.Sprintf(` AND owner_id = $%d`, argIdx)
		args = append(args, filter.OwnerID)
		argIdx++
	}
	if filter.Category != "" {
		query += fmt.Sprintf(` AND category = $%d`, argIdx)
		args = append(args, filter.Category)
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list items")
	}
	defer rows.Close()

	var items []model.Item
	for rows.Next() {
		item, err := scanPgItem(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan item")
		}
		items = append(items, *item)
	}
	return items, eris.Wrap(rows.Err(), "postgres: list items iterate")
}

func (s *PostgresStore) ReplaceTiers(ctx context.Context, itemID string, tiers []model.PriceTier) error {
	rows := make([][]any, 0, len(tiers))
	for _, t := range tiers {
		rows = append(rows, []any{itemID, t.MinQuantity, t.MaxQuantity, numeric(t.UnitPrice)})
	}

	err := db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM item_price_tiers WHERE item_id = $1`, itemID); err != nil {
			return eris.Wrap(err, "delete tiers")
		}
		_, err := db.CopyFrom(ctx, tx, "item_price_tiers",
			[]string{"item_id", "min_quantity", "max_quantity", "unit_price"}, rows)
		return err
	})
	return eris.Wrapf(err, "postgres: replace tiers for item %s", itemID)
}

func (s *PostgresStore) ListTiers(ctx context.Context, itemID string) ([]model.PriceTier, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT min_quantity, max_quantity, unit_price::text FROM item_price_tiers WHERE item_id = $1 ORDER BY min_quantity`,
		itemID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list tiers for item %s", itemID)
	}
	defer rows.Close()

	tiers := []model.PriceTier{}
	for rows.Next() {
		var t model.PriceTier
		var price string
		if err := rows.Scan(&t.MinQuantity, &t.MaxQuantity, &price); err != nil {
			return nil, eris.Wrap(err, "postgres: scan tier")
		}
		if t.UnitPrice, err = decimal.NewFromString(price); err != nil {
			return nil, eris.Wrap(err, "postgres: parse tier price")
		}
		tiers = append(tiers, t)
	}
	return tiers, eris.Wrap(rows.Err(), "postgres: list tiers iterate")
}

func (s *PostgresStore) ReplaceSpecifications(ctx context.Context, itemID string, specs []model.Specification) error {
	rows := make([][]any, 0, len(specs))
	for _, sp := range specs {
		rows = append(rows, []any{itemID, sp.Name, sp.Value, sp.Unit, int32(sp.SortOrder)})
	}

	err := db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM item_specifications WHERE item_id = $1`, itemID); err != nil {
			return eris.Wrap(err, "delete specifications")
		}
		_, err := db.CopyFrom(ctx, tx, "item_specifications",
			[]string{"item_id", "name", "value", "unit", "sort_order"}, rows)
		return err
	})
	return eris.Wrapf(err, "postgres: replace specifications for item %s", itemID)
}

func (s *PostgresStore) ListSpecifications(ctx context.Context, itemID string) ([]model.Specification, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT name, value, unit, sort_order FROM item_specifications WHERE item_id = $1 ORDER BY sort_order, name`,
		itemID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list specifications for item %s", itemID)
	}
	defer rows.Close()

	specs := []model.Specification{}
	for rows.Next() {
		var sp model.Specification
		if err := rows.Scan(&sp.Name, &sp.Value, &sp.Unit, &sp.SortOrder); err != nil {
			return nil, eris.Wrap(err, "postgres: scan specification")
		}
		specs = append(specs, sp)
	}
	return specs, eris.Wrap(rows.Err(), "postgres: list specifications iterate")
}

func (s *PostgresStore) ReplaceImages(ctx context.Context, itemID string, images []model.ItemImage) error {
	rows := make([][]any, 0, len(images))
	for _, img := range images {
		rows = append(rows, []any{itemID, img.URL, img.ObjectKey, img.IsPrimary, int32(img.SortOrder)})
	}

	err := db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM item_images WHERE item_id = $1`, itemID); err != nil {
			return eris.Wrap(err, "delete images")
		}
		_, err := db.CopyFrom(ctx, tx, "item_images",
			[]string{"item_id", "url", "object_key", "is_primary", "sort_order"}, rows)
		return err
	})
	return eris.Wrapf(err, "postgres: replace images for item %s", itemID)
}

func (s *PostgresStore) ListImages(ctx context.Context, itemID string) ([]model.ItemImage, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT item_id, url, object_key, is_primary, sort_order FROM item_images WHERE item_id = $1 ORDER BY sort_order`,
		itemID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list images for item %s", itemID)
	}
	defer rows.Close()

	images := []model.ItemImage{}
	for rows.Next() {
		var img model.ItemImage
		if err := rows.Scan(&img.ItemID, &img.URL, &img.ObjectKey, &img.IsPrimary, &img.SortOrder); err != nil {
			return nil, eris.Wrap(err, "postgres: scan image")
		}
		images = append(images, img)
	}
	return images, eris.Wrap(rows.Err(), "postgres: list images iterate")
}

func (s *PostgresStore) ArchiveTask(ctx context.Context, task *model.BackgroundTask) error {
	ops, err := marshalOperations(task.Operations)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO task_archive (id, item_id, status, progress_percent, operations, error, attempts, started_at, finished_at, archived_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		uuid.New().String(), task.ItemID, string(task.Status), task.ProgressPercent, ops, task.Error,
		task.Attempts, task.StartTime, task.FinishedAt(), time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: archive task for item %s", task.ItemID)
}

func (s *PostgresStore) ListArchivedTasks(ctx context.Context, itemID string) ([]model.BackgroundTask, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT item_id, status, progress_percent, operations, error, attempts, started_at, finished_at FROM task_archive WHERE item_id = $1 ORDER BY archived_at DESC`,
		itemID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list archived tasks for item %s", itemID)
	}
	defer rows.Close()

	var tasks []model.BackgroundTask
	for rows.Next() {
		var t model.BackgroundTask
		var status string
		var ops []byte
		var finished *time.Time
		if err := rows.Scan(&t.ItemID, &status, &t.ProgressPercent, &ops, &t.Error, &t.Attempts, &t.StartTime, &finished); err != nil {
			return nil, eris.Wrap(err, "postgres: scan archived task")
		}
		t.Status = model.TaskStatus(status)
		if t.Operations, err = unmarshalOperations(ops); err != nil {
			return nil, err
		}
		setFinished(&t, finished)
		tasks = append(tasks, t)
	}
	return tasks, eris.Wrap(rows.Err(), "postgres: list archived tasks iterate")
}

// numeric converts a decimal to the pgtype representation so it can be sent
// in binary format, including through COPY.
func numeric(d decimal.Decimal) pgtype.Numeric {
	return pgtype.Numeric{Int: d.Coefficient(), Exp: d.Exponent(), Valid: true}
}

type scannable interface {
	Scan(dest ...any) error
}

func scanPgItem(row scannable) (*model.Item, error) {
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

// setFinished places an archived finish time on the field matching the
// task's terminal status.
func setFinished(t *model.BackgroundTask, finished *time.Time) {
	if finished == nil {
		return
	}
	switch t.Status {
	case model.TaskStatusCompleted:
		t.CompletedAt = finished
	case model.TaskStatusFailed:
		t.FailedAt = finished
	case model.TaskStatusCancelled:
		t.CancelledAt = finished
	}
}
