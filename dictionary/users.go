package dictionary

import (
	"context"
	"errors"
	"fmt"

	"github.com/unkn0wn-root/dictcache"
	"github.com/unkn0wn-root/dictcache/model"
)

// User is cached under users_<snowflake>_0.
func (a *Accessor) User(ctx context.Context, id model.Snowflake) (model.User, bool, error) {
	return a.users.LookupOne(ctx, id.String(), 0,
		func(ctx context.Context, _ string, _ int) (model.User, bool, error) {
			return a.src.User(ctx, id)
		})
}

// CreateUser returns ErrUserExists when the email is taken.
func (a *Accessor) CreateUser(ctx context.Context, spec model.CreateUserSpec) (model.Snowflake, error) {
	if spec.Email == "" || spec.Password == "" {
		return 0, fmt.Errorf("create user: email and password are required")
	}
	exists, err := a.src.UserExists(ctx, spec.Email)
	if err != nil {
		return 0, &dictcache.BackendError{Function: FnUsers, Err: err}
	}
	if exists {
		return 0, ErrUserExists
	}
	id, err := a.src.CreateUser(ctx, spec)
	if err != nil {
		if errors.Is(err, ErrUserExists) {
			return 0, err
		}
		return 0, &dictcache.BackendError{Function: FnUsers, Err: err}
	}
	a.log.Info("user created", dictcache.Fields{"snowflake": id})
	return id, nil
}

// CheckCredentials is not cached.
func (a *Accessor) CheckCredentials(ctx context.Context, email, password string) (model.User, bool, error) {
	u, ok, err := a.src.CheckCredentials(ctx, email, password)
	if err != nil {
		return model.User{}, false, &dictcache.BackendError{Function: FnUsers, Err: err}
	}
	return u, ok, nil
}

// Token returns the user's live session token or issues a new one.
func (a *Accessor) Token(ctx context.Context, u model.User) (model.Token, error) {
	return a.sessions.Issue(ctx, int64(u.Snowflake))
}

// Login checks credentials and hands out a token. ok=false means the
// credentials did not match.
func (a *Accessor) Login(ctx context.Context, email, password string) (model.Token, bool, error) {
	u, ok, err := a.CheckCredentials(ctx, email, password)
	if err != nil || !ok {
		return model.Token{}, false, err
	}
	tok, err := a.Token(ctx, u)
	if err != nil {
		return model.Token{}, false, err
	}
	return tok, true, nil
}

func (a *Accessor) CheckToken(ctx context.Context, value string) (model.Token, bool) {
	return a.sessions.Validate(ctx, value)
}

// Me resolves a token to its user. ErrInvalidToken when the token is not
// live; ok=false when the token is live but the user no longer exists.
func (a *Accessor) Me(ctx context.Context, value string) (model.User, bool, error) {
	tok, ok := a.sessions.Validate(ctx, value)
	if !ok {
		return model.User{}, false, ErrInvalidToken
	}
	return a.User(ctx, model.Snowflake(tok.Snowflake))
}

func (a *Accessor) Logout(ctx context.Context, value string) error {
	return a.sessions.Revoke(ctx, value)
}

// AddBookmark and RemoveBookmark change the token owner's bookmarks and drop
// the cached user so the next Me reflects the change.
func (a *Accessor) AddBookmark(ctx context.Context, value string, kind model.BookmarkKind, id int) error {
	return a.bookmark(ctx, value, func(ctx context.Context, user model.Snowflake) error {
		return a.src.AddBookmark(ctx, user, kind, id)
	})
}

func (a *Accessor) RemoveBookmark(ctx context.Context, value string, kind model.BookmarkKind, id int) error {
	return a.bookmark(ctx, value, func(ctx context.Context, user model.Snowflake) error {
		return a.src.RemoveBookmark(ctx, user, kind, id)
	})
}

func (a *Accessor) bookmark(ctx context.Context, value string, change func(context.Context, model.Snowflake) error) error {
	tok, ok := a.sessions.Validate(ctx, value)
	if !ok {
		return ErrInvalidToken
	}
	user := model.Snowflake(tok.Snowflake)
	if err := change(ctx, user); err != nil {
		return &dictcache.BackendError{Function: FnUsers, Err: err}
	}
	if err := a.users.Forget(ctx, user.String(), 0); err != nil {
		// the change is committed; Me may serve the old bookmarks until the entry expires
		a.log.Error("cached user not invalidated", dictcache.Fields{"snowflake": user, "err": err})
	}
	return nil
}
