package devserver

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/base32"
	"errors"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

var errRecordNotFound = errors.New("record not found")

func openDB(dsn string) (*bun.DB, error) {
	if dsn == "" {
		dsn = "file::memory:?cache=shared"
	}

	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to open database")
	}
	// The in-memory database disappears when its last connection closes.
	sqldb.SetMaxIdleConns(1)

	return bun.NewDB(sqldb, sqlitedialect.New()), nil
}

func createSchema(ctx context.Context, db *bun.DB) error {
	models := []any{(*User)(nil), (*Token)(nil)}
	for _, model := range models {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create schema")
		}
	}
	return nil
}

func (s *Server) userByEmail(ctx context.Context, email string) (*User, error) {
	user := &User{}
	err := s.db.NewSelect().Model(user).Where("email = ?", email).Limit(1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errRecordNotFound
		}
		return nil, err
	}
	return user, nil
}

func (s *Server) userByUsername(ctx context.Context, username string) (*User, error) {
	user := &User{}
	err := s.db.NewSelect().Model(user).Where("username = ?", username).Limit(1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errRecordNotFound
		}
		return nil, err
	}
	return user, nil
}

func (s *Server) userByID(ctx context.Context, id int64) (*User, error) {
	user := &User{}
	err := s.db.NewSelect().Model(user).Where("usr.id = ?", id).Limit(1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errRecordNotFound
		}
		return nil, err
	}
	return user, nil
}

// newToken mints an opaque 26-character token, stores its hash, and returns
// the plaintext alongside the row.
func (s *Server) newToken(ctx context.Context, userID int64, ttl time.Duration, scope string) (string, *Token, error) {
	plaintext, err := generateOpaqueToken()
	if err != nil {
		return "", nil, err
	}

	hash := sha256.Sum256([]byte(plaintext))
	token := &Token{
		Hash:   hash[:],
		UserID: userID,
		Scope:  scope,
		Expiry: time.Now().Add(ttl),
	}

	if _, err := s.db.NewInsert().Model(token).Exec(ctx); err != nil {
		return "", nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to store token")
	}
	return plaintext, token, nil
}

// userForToken resolves a live token of the given scope to its user.
func (s *Server) userForToken(ctx context.Context, scope, plaintext string) (*User, error) {
	hash := sha256.Sum256([]byte(plaintext))

	token := &Token{}
	err := s.db.NewSelect().Model(token).
		Where("hash = ?", hash[:]).
		Where("scope = ?", scope).
		Where("expiry > ?", time.Now()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errRecordNotFound
		}
		return nil, err
	}

	return s.userByID(ctx, token.UserID)
}

func (s *Server) deleteTokenByPlaintext(ctx context.Context, plaintext string) error {
	hash := sha256.Sum256([]byte(plaintext))
	_, err := s.db.NewDelete().Model((*Token)(nil)).Where("hash = ?", hash[:]).Exec(ctx)
	return err
}

func (s *Server) deleteAllTokensForUser(ctx context.Context, scope string, userID int64) error {
	_, err := s.db.NewDelete().Model((*Token)(nil)).
		Where("scope = ?", scope).
		Where("user_id = ?", userID).
		Exec(ctx)
	return err
}

func (s *Server) deleteAllTokensForUserExcept(ctx context.Context, scope string, userID int64, keep string) error {
	hash := sha256.Sum256([]byte(keep))
	_, err := s.db.NewDelete().Model((*Token)(nil)).
		Where("scope = ?", scope).
		Where("user_id = ?", userID).
		Where("hash != ?", hash[:]).
		Exec(ctx)
	return err
}

// generateOpaqueToken returns 16 random bytes as unpadded base32, the same
// 26-character shape the production server issues.
func generateOpaqueToken() (string, error) {
	raw := make([]byte, 16)
	if _, err := rand.Read(raw); err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate token")
	}
	return strings.ToUpper(base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(raw)), nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique")
}
