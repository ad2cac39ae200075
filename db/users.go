package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// searchLimit caps SearchUsers results.
const searchLimit = 50

// ListedUser is one row of the friends or undesirables list.
type ListedUser struct {
	Identity  string    `json:"identity"`
	Reason    string    `json:"reason,omitempty"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
	AddedAt   time.Time `json:"added_at"`
}

// UserMatch is a search hit with its list membership.
type UserMatch struct {
	Identity    string    `json:"identity"`
	FirstSeen   time.Time `json:"first_seen"`
	LastSeen    time.Time `json:"last_seen"`
	Friend      bool      `json:"is_friend"`
	Undesirable bool      `json:"is_undesirable"`
	Reason      string    `json:"reason,omitempty"`
}

// UserLists stores the operator's friends and undesirables for one channel.
// An identity is on at most one of the two lists; adding it to one removes
// it from the other.
type UserLists struct {
	db      *sql.DB
	channel string
}

// NewUserLists returns the lists scoped to channel.
func NewUserLists(db *sql.DB, channel string) *UserLists {
	return &UserLists{db: db, channel: channel}
}

// ensureUser upserts the identity and refreshes last_seen.
func (u *UserLists) ensureUser(ctx context.Context, tx *sql.Tx, identity string) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx,
		`INSERT INTO chat_users (channel, identity) VALUES ($1, $2)
		 ON CONFLICT (channel, identity) DO UPDATE SET last_seen = NOW()
		 RETURNING id`, u.channel, identity).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert chat user: %w", err)
	}
	return id, nil
}

// AddFriend puts identity on the friends list. It reports false when the
// identity was already a friend.
func (u *UserLists) AddFriend(ctx context.Context, identity string) (bool, error) {
	return u.add(ctx, identity, "friends", "undesirables", `INSERT INTO friends (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`)
}

// AddUndesirable puts identity on the undesirables list with an optional
// reason. It reports false when the identity was already listed.
func (u *UserLists) AddUndesirable(ctx context.Context, identity, reason string) (bool, error) {
	return u.add(ctx, identity, "undesirables", "friends", `INSERT INTO undesirables (user_id, reason) VALUES ($1, $2) ON CONFLICT (user_id) DO NOTHING`, reason)
}

func (u *UserLists) add(ctx context.Context, identity, list, other, insert string, extra ...any) (added bool, err error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return false, errors.New("db: empty identity")
	}
	tx, err := u.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin %s tx: %w", list, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	id, err := u.ensureUser(ctx, tx, identity)
	if err != nil {
		return false, err
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM `+other+` WHERE user_id = $1`, id); err != nil {
		return false, fmt.Errorf("remove from %s: %w", other, err)
	}
	res, err := tx.ExecContext(ctx, insert, append([]any{id}, extra...)...)
	if err != nil {
		return false, fmt.Errorf("insert into %s: %w", list, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert into %s: %w", list, err)
	}
	if err = tx.Commit(); err != nil {
		return false, fmt.Errorf("commit %s tx: %w", list, err)
	}
	return n > 0, nil
}

// RemoveFriend drops identity from the friends list. It reports whether a
// row was removed.
func (u *UserLists) RemoveFriend(ctx context.Context, identity string) (bool, error) {
	return u.remove(ctx, "friends", identity)
}

// RemoveUndesirable drops identity from the undesirables list.
func (u *UserLists) RemoveUndesirable(ctx context.Context, identity string) (bool, error) {
	return u.remove(ctx, "undesirables", identity)
}

func (u *UserLists) remove(ctx context.Context, list, identity string) (bool, error) {
	res, err := u.db.ExecContext(ctx,
		`DELETE FROM `+list+` WHERE user_id = (SELECT id FROM chat_users WHERE channel = $1 AND identity = $2)`,
		u.channel, identity)
	if err != nil {
		return false, fmt.Errorf("delete from %s: %w", list, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete from %s: %w", list, err)
	}
	return n > 0, nil
}

// Undesirable reports whether identity is on the undesirables list and the
// reason recorded with it. It implements pipeline.UserDirectory.
func (u *UserLists) Undesirable(ctx context.Context, identity string) (string, bool, error) {
	var reason string
	err := u.db.QueryRowContext(ctx,
		`SELECT ud.reason FROM undesirables ud JOIN chat_users cu ON ud.user_id = cu.id
		 WHERE cu.channel = $1 AND cu.identity = $2`, u.channel, identity).Scan(&reason)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("lookup undesirable: %w", err)
	}
	return reason, true, nil
}

// Friends lists the friends, most recently added first.
func (u *UserLists) Friends(ctx context.Context) ([]ListedUser, error) {
	return u.list(ctx, "friends", `''`)
}

// Undesirables lists the undesirables, most recently added first.
func (u *UserLists) Undesirables(ctx context.Context) ([]ListedUser, error) {
	return u.list(ctx, "undesirables", "l.reason")
}

func (u *UserLists) list(ctx context.Context, list, reasonCol string) ([]ListedUser, error) {
	rows, err := u.db.QueryContext(ctx,
		`SELECT cu.identity, `+reasonCol+`, cu.first_seen, cu.last_seen, l.added_at
		 FROM `+list+` l JOIN chat_users cu ON l.user_id = cu.id
		 WHERE cu.channel = $1
		 ORDER BY l.added_at DESC`, u.channel)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", list, err)
	}
	defer rows.Close()

	out := []ListedUser{}
	for rows.Next() {
		var lu ListedUser
		if err := rows.Scan(&lu.Identity, &lu.Reason, &lu.FirstSeen, &lu.LastSeen, &lu.AddedAt); err != nil {
			return nil, fmt.Errorf("scan %s: %w", list, err)
		}
		out = append(out, lu)
	}
	return out, rows.Err()
}

// SearchUsers returns up to 50 known identities containing query, most
// recently seen first.
func (u *UserLists) SearchUsers(ctx context.Context, query string) ([]UserMatch, error) {
	rows, err := u.db.QueryContext(ctx,
		`SELECT cu.identity, cu.first_seen, cu.last_seen,
		        f.id IS NOT NULL, ud.id IS NOT NULL, COALESCE(ud.reason, '')
		 FROM chat_users cu
		 LEFT JOIN friends f ON f.user_id = cu.id
		 LEFT JOIN undesirables ud ON ud.user_id = cu.id
		 WHERE cu.channel = $1 AND cu.identity ILIKE '%' || $2 || '%'
		 ORDER BY cu.last_seen DESC
		 LIMIT $3`, u.channel, escapeLike(query), searchLimit)
	if err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}
	defer rows.Close()

	out := []UserMatch{}
	for rows.Next() {
		var m UserMatch
		if err := rows.Scan(&m.Identity, &m.FirstSeen, &m.LastSeen, &m.Friend, &m.Undesirable, &m.Reason); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }
