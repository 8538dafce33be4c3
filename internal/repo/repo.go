package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

type Repo struct {
	DB  *sql.DB
	Now func() time.Time
}

var ErrNotFound = errors.New("not found")

func (r Repo) now() string {
	if r.Now == nil {
		return time.Now().UTC().Format(time.RFC3339Nano)
	}
	return r.Now().UTC().Format(time.RFC3339Nano)
}

// KV returns the session storage view of the repo.
func (r Repo) KV() KV {
	return KV{repo: r}
}

// KV implements session storage over the session_kv table.
type KV struct {
	repo Repo
}

func (k KV) Get(key string) (string, bool, error) {
	var v string
	err := k.repo.DB.QueryRowContext(context.Background(), `SELECT value FROM session_kv WHERE key=?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (k KV) Set(key, value string) error {
	_, err := k.repo.DB.ExecContext(context.Background(), `INSERT INTO session_kv(key,value,updated_at) VALUES (?,?,?)
ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`, key, value, k.repo.now())
	return err
}

// Delete removes keys in one transaction.
func (k KV) Delete(keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	ctx := context.Background()
	tx, err := k.repo.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, key := range keys {
		if _, err := tx.ExecContext(ctx, `DELETE FROM session_kv WHERE key=?`, key); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Replace deletes clear and writes values in one transaction.
func (k KV) Replace(clear []string, values map[string]string) error {
	ctx := context.Background()
	tx, err := k.repo.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, key := range clear {
		if _, err := tx.ExecContext(ctx, `DELETE FROM session_kv WHERE key=?`, key); err != nil {
			return err
		}
	}
	now := k.repo.now()
	for key, value := range values {
		if _, err := tx.ExecContext(ctx, `INSERT INTO session_kv(key,value,updated_at) VALUES (?,?,?)
ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`, key, value, now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// CompareAndDelete removes keys only while key holds expected ("" matches an absent
// or empty value). The check and the delete are one statement, so two processes
// sharing the workspace cannot both win.
func (k KV) CompareAndDelete(key, expected string, keys ...string) (bool, error) {
	if len(keys) == 0 {
		return false, nil
	}
	ctx := context.Background()
	marks := strings.TrimSuffix(strings.Repeat("?,", len(keys)), ",")
	args := make([]any, 0, len(keys)+2)
	for _, k := range keys {
		args = append(args, k)
	}
	args = append(args, key, expected)
	if expected == "" {
		res, err := k.repo.DB.ExecContext(ctx, `DELETE FROM session_kv WHERE key IN (`+marks+`)
AND NOT EXISTS (SELECT 1 FROM session_kv WHERE key=? AND value<>?)`, args...)
		if err != nil {
			return false, err
		}
		_, err = res.RowsAffected()
		return err == nil, err
	}
	res, err := k.repo.DB.ExecContext(ctx, `DELETE FROM session_kv WHERE key IN (`+marks+`)
AND EXISTS (SELECT 1 FROM session_kv WHERE key=? AND value=?)`, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
