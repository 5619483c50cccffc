package postgres

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/unkn0wn-root/dictcache/backend"
	"github.com/unkn0wn-root/dictcache/model"
)

const userJSON = `json_build_object(
	'snowflake', u.snowflake,
	'email', u.email,
	'username', u.username,
	'bookmarks', json_build_object(
		'words', coalesce(json_agg(b.bookmark) FILTER (WHERE b.type = 0), '[]'::json),
		'kanji', coalesce(json_agg(b.bookmark) FILTER (WHERE b.type = 1), '[]'::json),
		'sentences', coalesce(json_agg(b.bookmark) FILTER (WHERE b.type = 2), '[]'::json)))`

func userQuery(where sq.Sqlizer) sq.SelectBuilder {
	return qb().Select(userJSON).
		From("users u").
		LeftJoin("bookmarks b ON b.snowflake = u.snowflake").
		Where(where).
		GroupBy("u.snowflake")
}

func (s *Source) User(ctx context.Context, id model.Snowflake) (model.User, bool, error) {
	return jsonOne[model.User](s, ctx, "User", userQuery(sq.Eq{"u.snowflake": int64(id)}))
}

func (s *Source) UserExists(ctx context.Context, email string) (bool, error) {
	q := qb().Select("1").From("users").Where(sq.Eq{"email": email}).
		Prefix("SELECT EXISTS (").Suffix(")")
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return false, fmt.Errorf("UserExists: build: %w", err)
	}
	s.logSQL("UserExists", sqlStr, args)

	var ok bool
	if err := s.db.QueryRow(ctx, sqlStr, args...).Scan(&ok); err != nil {
		return false, fmt.Errorf("UserExists: %w", err)
	}
	return ok, nil
}

func createUserQuery(id model.Snowflake, spec model.CreateUserSpec) sq.InsertBuilder {
	return qb().Insert("users").
		Columns("snowflake", "email", "hash", "username").
		Values(int64(id), spec.Email, sq.Expr("crypt(?, gen_salt('md5'))", spec.Password), spec.Username).
		Suffix("ON CONFLICT (email) DO NOTHING RETURNING snowflake")
}

// CreateUser inserts the user with a fresh snowflake. A concurrent insert of
// the same email loses the ON CONFLICT race and gets ErrUserExists.
func (s *Source) CreateUser(ctx context.Context, spec model.CreateUserSpec) (model.Snowflake, error) {
	if s.ids == nil {
		return 0, errors.New("CreateUser: no snowflake generator configured")
	}
	sqlStr, args, err := createUserQuery(s.ids.Next(), spec).ToSql()
	if err != nil {
		return 0, fmt.Errorf("CreateUser: build: %w", err)
	}
	s.logSQL("CreateUser", sqlStr, args)

	var id int64
	if err := s.db.QueryRow(ctx, sqlStr, args...).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, backend.ErrUserExists
		}
		return 0, fmt.Errorf("CreateUser: %w", err)
	}
	return model.Snowflake(id), nil
}

func (s *Source) CheckCredentials(ctx context.Context, email, password string) (model.User, bool, error) {
	q := userQuery(sq.And{
		sq.Eq{"u.email": email},
		sq.Expr("u.hash = crypt(?, u.hash)", password),
	})
	return jsonOne[model.User](s, ctx, "CheckCredentials", q)
}

func (s *Source) AddBookmark(ctx context.Context, user model.Snowflake, kind model.BookmarkKind, id int) error {
	if !kind.Valid() {
		return fmt.Errorf("AddBookmark: invalid kind %d", kind)
	}
	q := qb().Insert("bookmarks").
		Columns("snowflake", "type", "bookmark").
		Values(int64(user), int(kind), id).
		Suffix("ON CONFLICT DO NOTHING")
	_, err := s.exec(ctx, "AddBookmark", q)
	return err
}

func (s *Source) RemoveBookmark(ctx context.Context, user model.Snowflake, kind model.BookmarkKind, id int) error {
	q := qb().Delete("bookmarks").Where(sq.Eq{
		"snowflake": int64(user),
		"type":      int(kind),
		"bookmark":  id,
	})
	_, err := s.exec(ctx, "RemoveBookmark", q)
	return err
}
