package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/oshri1997/Deal-Hunter/internal/db"
	"github.com/oshri1997/Deal-Hunter/internal/model"
	"github.com/oshri1997/Deal-Hunter/internal/tier"
)

const userColumns = "id, username, tier, cadence, premium_expires_at, created_at"

const ruleColumns = "id, user_id, game_id, COALESCE(region, ''), kind, threshold, created_at, fired_at, excursion"

func scanUser(row pgx.Row) (model.User, error) {
	var (
		u      model.User
		t, cad string
	)
	if err := row.Scan(&u.ID, &u.Username, &t, &cad, &u.PremiumExpiresAt, &u.CreatedAt); err != nil {
		return model.User{}, err
	}
	u.Tier = model.Tier(t)
	u.Cadence = model.Cadence(cad)
	return u, nil
}

func scanRule(row pgx.Row) (model.AlertRule, error) {
	var (
		r    model.AlertRule
		kind string
	)
	if err := row.Scan(&r.ID, &r.UserID, &r.GameID, &r.Region, &kind, &r.Threshold,
		&r.CreatedAt, &r.FiredAt, &r.Excursion); err != nil {
		return model.AlertRule{}, err
	}
	r.Kind = model.AlertKind(kind)
	return r, nil
}

// --------------------------------------------------------------------------
// Users
// --------------------------------------------------------------------------

// UpsertUser creates a free user or updates the username of an existing one.
func (s *Store) UpsertUser(ctx context.Context, id int64, username string, at time.Time) (model.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, `
		INSERT INTO users (id, username, created_at) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET username = CASE
			WHEN EXCLUDED.username <> '' THEN EXCLUDED.username ELSE users.username END
		RETURNING `+userColumns, id, username, at))
	if err != nil {
		return model.User{}, fmt.Errorf("upsert user %d: %w", id, err)
	}
	return u, nil
}

func (s *Store) GetUser(ctx context.Context, id int64) (model.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, db.StmtGetUser, id))
	if err != nil {
		return model.User{}, notFound(err, fmt.Sprintf("user %d", id))
	}
	return u, nil
}

func (s *Store) GetUsers(ctx context.Context, ids []int64) (map[int64]model.User, error) {
	out := make(map[int64]model.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := s.pool.Query(ctx, "SELECT "+userColumns+" FROM users WHERE id = ANY($1)", ids)
	if err != nil {
		return nil, fmt.Errorf("get users: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out[u.ID] = u
	}
	return out, rows.Err()
}

func (s *Store) SetTier(ctx context.Context, id int64, t model.Tier, expires *time.Time) error {
	return s.updateUser(ctx, id, "UPDATE users SET tier = $2, premium_expires_at = $3 WHERE id = $1", string(t), expires)
}

func (s *Store) SetCadence(ctx context.Context, id int64, c model.Cadence) error {
	return s.updateUser(ctx, id, "UPDATE users SET cadence = $2 WHERE id = $1", string(c))
}

func (s *Store) updateUser(ctx context.Context, id int64, sql string, args ...any) error {
	tag, err := s.pool.Exec(ctx, sql, append([]any{id}, args...)...)
	if err != nil {
		return fmt.Errorf("update user %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return notFound(pgx.ErrNoRows, fmt.Sprintf("user %d", id))
	}
	return nil
}

func (s *Store) Usage(ctx context.Context, id int64) (tier.Usage, error) {
	var u tier.Usage
	err := s.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM user_regions WHERE user_id = $1),
			(SELECT COUNT(*) FROM user_wishlist WHERE user_id = $1),
			(SELECT COUNT(*) FROM price_alert_rules WHERE user_id = $1)`, id,
	).Scan(&u.Regions, &u.Wishlist, &u.Alerts)
	if err != nil {
		return tier.Usage{}, fmt.Errorf("usage for %d: %w", id, err)
	}
	return u, nil
}

// --------------------------------------------------------------------------
// Regions
// --------------------------------------------------------------------------

func (s *Store) UserRegions(ctx context.Context, id int64) ([]string, error) {
	rows, err := s.pool.Query(ctx, db.StmtUserRegions, id)
	if err != nil {
		return nil, fmt.Errorf("user regions: %w", err)
	}
	codes, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan user regions: %w", err)
	}
	if codes == nil {
		codes = []string{}
	}
	return codes, nil
}

func (s *Store) AddUserRegion(ctx context.Context, id int64, code string, at time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO user_regions (user_id, region, added_at) VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING`, id, code, at)
	if err != nil {
		return false, notFound(err, fmt.Sprintf("add region %s for user %d", code, id))
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) RemoveUserRegion(ctx context.Context, id int64, code string) (bool, error) {
	tag, err := s.pool.Exec(ctx, "DELETE FROM user_regions WHERE user_id = $1 AND region = $2", id, code)
	if err != nil {
		return false, fmt.Errorf("remove region: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// --------------------------------------------------------------------------
// Wishlist
// --------------------------------------------------------------------------

func (s *Store) Wishlist(ctx context.Context, id int64) ([]model.WishlistEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT g.id, g.title, g.aliases, g.created_at, g.updated_at, w.added_at
		FROM user_wishlist w JOIN games g ON g.id = w.game_id
		WHERE w.user_id = $1 ORDER BY w.added_at, g.id`, id)
	if err != nil {
		return nil, fmt.Errorf("wishlist: %w", err)
	}
	defer rows.Close()

	var out []model.WishlistEntry
	for rows.Next() {
		var e model.WishlistEntry
		if err := rows.Scan(&e.Game.ID, &e.Game.Title, &e.Game.Aliases, &e.Game.CreatedAt,
			&e.Game.UpdatedAt, &e.AddedAt); err != nil {
			return nil, fmt.Errorf("scan wishlist: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) AddWishlist(ctx context.Context, id, gameID int64, at time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO user_wishlist (user_id, game_id, added_at) VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING`, id, gameID, at)
	if err != nil {
		return false, notFound(err, fmt.Sprintf("add game %d to wishlist of %d", gameID, id))
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) RemoveWishlist(ctx context.Context, id, gameID int64) (bool, error) {
	tag, err := s.pool.Exec(ctx, "DELETE FROM user_wishlist WHERE user_id = $1 AND game_id = $2", id, gameID)
	if err != nil {
		return false, fmt.Errorf("remove wishlist: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) WishlistWatchers(ctx context.Context, gameID int64, region string) ([]int64, error) {
	rows, err := s.pool.Query(ctx, db.StmtWishlistWatchers, gameID, region)
	if err != nil {
		return nil, fmt.Errorf("wishlist watchers: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("scan watchers: %w", err)
	}
	return ids, nil
}

// --------------------------------------------------------------------------
// Alert rules
// --------------------------------------------------------------------------

func (s *Store) AlertRules(ctx context.Context, userID int64) ([]model.AlertRule, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT "+ruleColumns+" FROM price_alert_rules WHERE user_id = $1 ORDER BY created_at, id", userID)
	if err != nil {
		return nil, fmt.Errorf("alert rules: %w", err)
	}
	return collectRules(rows)
}

// AddAlertRules inserts rules atomically; an all-regions expansion either
// lands completely or not at all.
func (s *Store) AddAlertRules(ctx context.Context, rules []model.AlertRule) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, r := range rules {
		var region any
		if r.Region != "" {
			region = r.Region
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO price_alert_rules (id, user_id, game_id, region, kind, threshold, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			r.ID, r.UserID, r.GameID, region, string(r.Kind), r.Threshold, r.CreatedAt,
		); err != nil {
			return notFound(err, "insert alert rule")
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *Store) DeleteAlertRule(ctx context.Context, userID int64, ruleID string) (bool, error) {
	tag, err := s.pool.Exec(ctx, "DELETE FROM price_alert_rules WHERE id = $1 AND user_id = $2", ruleID, userID)
	if err != nil {
		return false, fmt.Errorf("delete alert rule: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) RulesForDeal(ctx context.Context, gameID int64, region string) ([]model.AlertRule, error) {
	rows, err := s.pool.Query(ctx, db.StmtRulesForDeal, gameID, region)
	if err != nil {
		return nil, fmt.Errorf("rules for deal: %w", err)
	}
	return collectRules(rows)
}

func (s *Store) MarkRuleFired(ctx context.Context, ruleID string, at time.Time) error {
	if _, err := s.pool.Exec(ctx,
		"UPDATE price_alert_rules SET fired_at = $2 WHERE id = $1 AND fired_at IS NULL", ruleID, at,
	); err != nil {
		return fmt.Errorf("mark rule fired: %w", err)
	}
	return nil
}

func (s *Store) RearmRule(ctx context.Context, ruleID string) error {
	if _, err := s.pool.Exec(ctx, `
		UPDATE price_alert_rules SET fired_at = NULL, excursion = excursion + 1
		WHERE id = $1 AND fired_at IS NOT NULL`, ruleID,
	); err != nil {
		return fmt.Errorf("rearm rule: %w", err)
	}
	return nil
}

func collectRules(rows pgx.Rows) ([]model.AlertRule, error) {
	defer rows.Close()
	var out []model.AlertRule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
