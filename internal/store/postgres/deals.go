package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/oshri1997/Deal-Hunter/internal/db"
	"github.com/oshri1997/Deal-Hunter/internal/model"
)

const gameColumns = "id, title, aliases, created_at, updated_at"

const dealColumns = `id, game_id, region, price, list_price, currency, discount_percent,
	source_url, opened_at, last_seen_at, closed_at`

func scanGame(row pgx.Row) (model.Game, error) {
	var g model.Game
	if err := row.Scan(&g.ID, &g.Title, &g.Aliases, &g.CreatedAt, &g.UpdatedAt); err != nil {
		return model.Game{}, err
	}
	if g.Aliases == nil {
		g.Aliases = []string{}
	}
	return g, nil
}

func scanDeal(row pgx.Row, extra ...any) (model.ActiveDeal, error) {
	var d model.ActiveDeal
	dest := []any{&d.ID, &d.GameID, &d.Region, &d.Price, &d.ListPrice, &d.Currency,
		&d.DiscountPercent, &d.SourceURL, &d.OpenedAt, &d.LastSeenAt, &d.ClosedAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return model.ActiveDeal{}, err
	}
	d.OpenedAt = d.OpenedAt.UTC()
	d.LastSeenAt = d.LastSeenAt.UTC()
	return d, nil
}

// --------------------------------------------------------------------------
// Games
// --------------------------------------------------------------------------

func (s *Store) ListGames(ctx context.Context) ([]model.Game, error) {
	rows, err := s.pool.Query(ctx, "SELECT "+gameColumns+" FROM games ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list games: %w", err)
	}
	defer rows.Close()

	var out []model.Game
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, fmt.Errorf("scan game: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// CreateGame inserts a game, returning the existing row if another writer
// created the same normalised title first.
func (s *Store) CreateGame(ctx context.Context, title, folded string, at time.Time) (model.Game, error) {
	g, err := scanGame(s.pool.QueryRow(ctx, `
		INSERT INTO games (title, normalized_title, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (normalized_title) DO NOTHING
		RETURNING `+gameColumns, title, folded, at))
	if err == nil {
		return g, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return model.Game{}, fmt.Errorf("create game: %w", err)
	}
	g, err = scanGame(s.pool.QueryRow(ctx,
		"SELECT "+gameColumns+" FROM games WHERE normalized_title = $1", folded))
	if err != nil {
		return model.Game{}, notFound(err, "load game "+folded)
	}
	return g, nil
}

func (s *Store) SaveAliases(ctx context.Context, gameID int64, aliases []string, at time.Time) error {
	if aliases == nil {
		aliases = []string{}
	}
	tag, err := s.pool.Exec(ctx,
		"UPDATE games SET aliases = $2, updated_at = $3 WHERE id = $1", gameID, aliases, at)
	if err != nil {
		return fmt.Errorf("save aliases: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return notFound(pgx.ErrNoRows, fmt.Sprintf("game %d", gameID))
	}
	return nil
}

func (s *Store) GetGame(ctx context.Context, id int64) (model.Game, error) {
	g, err := scanGame(s.pool.QueryRow(ctx, "SELECT "+gameColumns+" FROM games WHERE id = $1", id))
	if err != nil {
		return model.Game{}, notFound(err, fmt.Sprintf("game %d", id))
	}
	return g, nil
}

// --------------------------------------------------------------------------
// Deals
// --------------------------------------------------------------------------

func (s *Store) OpenDeals(ctx context.Context, region string) ([]model.ActiveDeal, error) {
	rows, err := s.pool.Query(ctx, db.StmtOpenDeals, region)
	if err != nil {
		return nil, fmt.Errorf("open deals: %w", err)
	}
	defer rows.Close()

	var out []model.ActiveDeal
	for rows.Next() {
		var d model.ActiveDeal
		if err := rows.Scan(&d.ID, &d.GameID, &d.Region, &d.Price, &d.ListPrice, &d.Currency,
			&d.DiscountPercent, &d.SourceURL, &d.OpenedAt, &d.LastSeenAt); err != nil {
			return nil, fmt.Errorf("scan deal: %w", err)
		}
		d.OpenedAt = d.OpenedAt.UTC()
		d.LastSeenAt = d.LastSeenAt.UTC()
		out = append(out, d)
	}
	return out, rows.Err()
}

// Apply records the observation and performs the deal transition in one
// transaction.
func (s *Store) Apply(ctx context.Context, t model.Transition) (model.ActiveDeal, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return model.ActiveDeal{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if o := t.Observation; o != nil {
		if _, err := tx.Exec(ctx, `
			INSERT INTO price_observations
				(game_id, region, price, list_price, currency, discount_percent, source_url, observed_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (game_id, region, observed_at) DO NOTHING`,
			o.GameID, o.Region, o.Price, o.ListPrice, o.Currency, o.DiscountPercent, o.SourceURL, o.ObservedAt,
		); err != nil {
			return model.ActiveDeal{}, fmt.Errorf("insert observation: %w", err)
		}
	}

	var out model.ActiveDeal
	d := t.Deal
	switch t.Kind {
	case "":
	case model.EventOpened:
		out, err = scanDeal(tx.QueryRow(ctx, `
			INSERT INTO active_deals
				(game_id, region, price, list_price, currency, discount_percent, source_url, opened_at, last_seen_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING `+dealColumns,
			d.GameID, d.Region, d.Price, d.ListPrice, d.Currency, d.DiscountPercent, d.SourceURL, d.OpenedAt, d.LastSeenAt))
		if err != nil {
			return model.ActiveDeal{}, fmt.Errorf("open deal: %w", err)
		}
	case model.EventPriceChanged:
		out, err = scanDeal(tx.QueryRow(ctx, `
			UPDATE active_deals
			SET price = $2, list_price = $3, discount_percent = $4, source_url = $5, last_seen_at = $6
			WHERE id = $1 AND closed_at IS NULL
			RETURNING `+dealColumns,
			d.ID, d.Price, d.ListPrice, d.DiscountPercent, d.SourceURL, d.LastSeenAt))
		if err != nil {
			return model.ActiveDeal{}, notFound(err, fmt.Sprintf("update deal %d", d.ID))
		}
	case model.EventUnchanged:
		out, err = scanDeal(tx.QueryRow(ctx, `
			UPDATE active_deals SET last_seen_at = GREATEST(last_seen_at, $2)
			WHERE id = $1 AND closed_at IS NULL
			RETURNING `+dealColumns, d.ID, d.LastSeenAt))
		if err != nil {
			return model.ActiveDeal{}, notFound(err, fmt.Sprintf("touch deal %d", d.ID))
		}
	case model.EventClosed:
		closedAt := d.LastSeenAt
		if d.ClosedAt != nil {
			closedAt = *d.ClosedAt
		}
		out, err = scanDeal(tx.QueryRow(ctx, `
			UPDATE active_deals SET last_seen_at = $2, closed_at = $3
			WHERE id = $1 AND closed_at IS NULL
			RETURNING `+dealColumns, d.ID, d.LastSeenAt, closedAt))
		if err != nil {
			return model.ActiveDeal{}, notFound(err, fmt.Sprintf("close deal %d", d.ID))
		}
	default:
		return model.ActiveDeal{}, fmt.Errorf("unknown transition %q", t.Kind)
	}

	if err := tx.Commit(ctx); err != nil {
		return model.ActiveDeal{}, fmt.Errorf("commit: %w", err)
	}
	return out, nil
}

func (s *Store) CloseStale(ctx context.Context, region string, cutoff time.Time, keep []int64, closedAt time.Time) ([]model.ActiveDeal, error) {
	if keep == nil {
		keep = []int64{}
	}
	rows, err := s.pool.Query(ctx, `
		UPDATE active_deals SET closed_at = $4
		WHERE region = $1 AND closed_at IS NULL AND last_seen_at < $2 AND NOT (id = ANY($3))
		RETURNING `+dealColumns, region, cutoff, keep, closedAt)
	if err != nil {
		return nil, fmt.Errorf("close stale deals: %w", err)
	}
	return collectDeals(rows)
}

// ListDeals pages through open deals of the given regions, newest first.
func (s *Store) ListDeals(ctx context.Context, regions []string, offset, limit int) ([]model.DealView, int, error) {
	var total int
	if err := s.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM active_deals WHERE region = ANY($1) AND closed_at IS NULL", regions,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count deals: %w", err)
	}
	rows, err := s.pool.Query(ctx, `
		SELECT d.id, d.game_id, d.region, d.price, d.list_price, d.currency, d.discount_percent,
			d.source_url, d.opened_at, d.last_seen_at, d.closed_at, g.title
		FROM active_deals d JOIN games g ON g.id = d.game_id
		WHERE d.region = ANY($1) AND d.closed_at IS NULL
		ORDER BY d.opened_at DESC, d.id DESC
		OFFSET $2 LIMIT $3`, regions, offset, limitArg(limit))
	if err != nil {
		return nil, 0, fmt.Errorf("list deals: %w", err)
	}
	views, err := collectViews(rows)
	return views, total, err
}

// GameDeals returns the open deals of a game across regions.
func (s *Store) GameDeals(ctx context.Context, gameID int64) ([]model.DealView, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT d.id, d.game_id, d.region, d.price, d.list_price, d.currency, d.discount_percent,
			d.source_url, d.opened_at, d.last_seen_at, d.closed_at, g.title
		FROM active_deals d JOIN games g ON g.id = d.game_id
		WHERE d.game_id = $1 AND d.closed_at IS NULL
		ORDER BY d.region`, gameID)
	if err != nil {
		return nil, fmt.Errorf("game deals: %w", err)
	}
	return collectViews(rows)
}

func (s *Store) Deal(ctx context.Context, id int64) (model.ActiveDeal, error) {
	d, err := scanDeal(s.pool.QueryRow(ctx, "SELECT "+dealColumns+" FROM active_deals WHERE id = $1", id))
	if err != nil {
		return model.ActiveDeal{}, notFound(err, fmt.Sprintf("deal %d", id))
	}
	return d, nil
}

// PriceHistory returns the latest observations of a game in a region,
// oldest first.
func (s *Store) PriceHistory(ctx context.Context, gameID int64, region string, limit int) ([]model.PriceObservation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT game_id, region, price, list_price, currency, discount_percent, source_url, observed_at
		FROM price_observations WHERE game_id = $1 AND region = $2
		ORDER BY observed_at DESC LIMIT $3`, gameID, region, limitArg(limit))
	if err != nil {
		return nil, fmt.Errorf("price history: %w", err)
	}
	defer rows.Close()

	var out []model.PriceObservation
	for rows.Next() {
		var o model.PriceObservation
		if err := rows.Scan(&o.GameID, &o.Region, &o.Price, &o.ListPrice, &o.Currency,
			&o.DiscountPercent, &o.SourceURL, &o.ObservedAt); err != nil {
			return nil, fmt.Errorf("scan observation: %w", err)
		}
		o.ObservedAt = o.ObservedAt.UTC()
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *Store) PurgeObservations(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, "DELETE FROM price_observations WHERE observed_at < $1", before)
	if err != nil {
		return 0, fmt.Errorf("purge observations: %w", err)
	}
	return tag.RowsAffected(), nil
}

func collectDeals(rows pgx.Rows) ([]model.ActiveDeal, error) {
	defer rows.Close()
	var out []model.ActiveDeal
	for rows.Next() {
		d, err := scanDeal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan deal: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func collectViews(rows pgx.Rows) ([]model.DealView, error) {
	defer rows.Close()
	var out []model.DealView
	for rows.Next() {
		var v model.DealView
		d, err := scanDeal(rows, &v.Title)
		if err != nil {
			return nil, fmt.Errorf("scan deal: %w", err)
		}
		v.ActiveDeal = d
		out = append(out, v)
	}
	return out, rows.Err()
}
