// Package session keeps login tokens in the cache store, which is their
// only home: a token that expires or is evicted is gone.
//
// Layout, both written with the session TTL:
//
//	tokens_<value>_0     -> Token record (JSON)
//	sessions_<userID>_0  -> <value>
//
// Validation is one read by value. Issuing follows the per-user pointer so a
// user holding a live token gets the same token back.
package session

import (
	"context"
	"encoding/base64"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/unkn0wn-root/dictcache"
	"github.com/unkn0wn-root/dictcache/codec"
	"github.com/unkn0wn-root/dictcache/internal/util"
	"github.com/unkn0wn-root/dictcache/model"
	pr "github.com/unkn0wn-root/dictcache/provider"
)

const (
	TokensFunction   = "tokens"
	SessionsFunction = "sessions"
)

type Config struct {
	Provider pr.Provider
	TTL      time.Duration // 0 => dictcache.SessionTTL
	Logger   dictcache.Logger
	Hooks    dictcache.Hooks
	// NewValue mints token values. Default: base64 of a random UUID string.
	NewValue func() string
}

type Store struct {
	tokens   *dictcache.Family[model.Token]
	owners   *dictcache.Family[string]
	batch    pr.Batcher // nil when the provider cannot write atomically
	ttl      time.Duration
	log      dictcache.Logger
	hooks    dictcache.Hooks
	newValue func() string
}

// NewValue returns base64(uuid-v4 string), the format issued by the
// original service and still accepted by clients.
func NewValue() string {
	return base64.StdEncoding.EncodeToString([]byte(uuid.NewString()))
}

func New(cfg Config) (*Store, error) {
	if cfg.Provider == nil {
		return nil, errors.New("session: provider is required")
	}
	s := &Store{
		ttl:      cfg.TTL,
		log:      dictcache.With(cfg.Logger, dictcache.Fields{"component": "session"}),
		hooks:    cfg.Hooks,
		newValue: cfg.NewValue,
	}
	if s.ttl <= 0 {
		s.ttl = dictcache.SessionTTL
	}
	if s.hooks == nil {
		s.hooks = dictcache.NopHooks{}
	}
	if s.newValue == nil {
		s.newValue = NewValue
	}
	if b, ok := cfg.Provider.(pr.Batcher); ok {
		s.batch = b
	}

	var err error
	s.tokens, err = dictcache.NewFamily[model.Token](dictcache.Options[model.Token]{
		Function: TokensFunction,
		Provider: cfg.Provider,
		Codec:    codec.JSON[model.Token]{},
		TTL:      s.ttl,
		Logger:   s.log,
		Hooks:    s.hooks,
	})
	if err != nil {
		return nil, err
	}
	s.owners, err = dictcache.NewFamily[string](dictcache.Options[string]{
		Function: SessionsFunction,
		Provider: cfg.Provider,
		Codec:    codec.String{},
		TTL:      s.ttl,
		Logger:   s.log,
		Hooks:    s.hooks,
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) TTL() time.Duration { return s.ttl }

// Issue returns the user's live token, or mints and stores a new one.
func (s *Store) Issue(ctx context.Context, userID int64) (model.Token, error) {
	uid := strconv.FormatInt(userID, 10)

	value, ok, err := s.owners.LookupOne(ctx, uid, 0, nil)
	if err != nil {
		return model.Token{}, err
	}
	if ok {
		tok, live, err := s.tokens.LookupOne(ctx, value, 0, nil)
		if err != nil && !errors.Is(err, dictcache.ErrSerialization) {
			return model.Token{}, err
		}
		if live && tok.Snowflake == userID {
			s.hooks.TokenIssued(userID, true)
			return tok, nil
		}
		// pointer outlived its record or was overwritten; replace both
		s.log.Debug("stale session pointer", dictcache.Fields{"user": userID, "token": util.Fingerprint(value)})
	}

	tok := model.Token{
		Snowflake: userID,
		Token:     s.newValue(),
		Expiry:    int64(s.ttl / time.Second),
	}
	if err := s.write(ctx, uid, tok); err != nil {
		return model.Token{}, err
	}
	s.hooks.TokenIssued(userID, false)
	return tok, nil
}

func (s *Store) write(ctx context.Context, uid string, tok model.Token) error {
	rec, err := s.tokens.Entry(tok.Token, 0, tok)
	if err != nil {
		return err
	}
	ptr, err := s.owners.Entry(uid, 0, tok.Token)
	if err != nil {
		return err
	}

	if s.batch != nil {
		if err := s.batch.SetMany(ctx, []pr.Item{rec, ptr}, s.ttl); err != nil {
			s.hooks.StoreError(rec.Key, "set", err)
			return &dictcache.StoreError{Op: "set", Key: rec.Key, Err: err}
		}
		return nil
	}

	// record first: a lone record is harmless, a lone pointer is not
	if err := s.tokens.Store(ctx, tok.Token, 0, tok); err != nil {
		return err
	}
	if err := s.owners.Store(ctx, uid, 0, tok.Token); err != nil {
		if derr := s.tokens.Forget(ctx, tok.Token, 0); derr != nil {
			s.log.Error("orphaned token record", dictcache.Fields{"user": tok.Snowflake, "err": derr})
		}
		return &dictcache.TokenIssuanceError{UserID: tok.Snowflake, Key: ptr.Key, Err: err}
	}
	return nil
}

// Validate looks a token up by value. It never fails: an unknown, expired,
// or unreadable token is simply absent.
func (s *Store) Validate(ctx context.Context, value string) (model.Token, bool) {
	if value == "" {
		return model.Token{}, false
	}
	tok, ok, err := s.tokens.LookupOne(ctx, value, 0, nil)
	if err != nil {
		s.log.Warn("token lookup failed", dictcache.Fields{"token": util.Fingerprint(value), "err": err})
		return model.Token{}, false
	}
	return tok, ok
}

// Revoke deletes the token and, if it is still the user's current token,
// the user's pointer to it.
func (s *Store) Revoke(ctx context.Context, value string) error {
	if value == "" {
		return nil
	}
	tok, ok := s.Validate(ctx, value)
	if err := s.tokens.Forget(ctx, value, 0); err != nil {
		return err
	}
	if !ok {
		return nil
	}
	uid := strconv.FormatInt(tok.Snowflake, 10)
	cur, found, err := s.owners.LookupOne(ctx, uid, 0, nil)
	if err != nil {
		return err
	}
	if found && cur == value {
		return s.owners.Forget(ctx, uid, 0)
	}
	return nil
}
