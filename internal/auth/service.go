package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"backend-carbonsaver/internal/db"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

const (
	accessTokenTTL  = 15 * time.Minute
	refreshTokenTTL = 30 * 24 * time.Hour
	minPasswordLen  = 8
	uniqueViolation = "23505"
)

var (
	ErrMissingFields      = errors.New("email, username and password are required")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
	ErrInvalidUsername    = errors.New("username must not contain @")
	ErrUserExists         = errors.New("email or username already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = errors.New("user not found")
	ErrTokenInvalid       = errors.New("token invalid")
	ErrRefreshInvalid     = errors.New("refresh token invalid")
)

var (
	hashPasswordFn = bcrypt.GenerateFromPassword
	nowFn          = time.Now
)

// AccountOpener creates the points account of a freshly registered user on q,
// the registration transaction.
type AccountOpener func(ctx context.Context, q db.Querier, userID string) error

type Service struct {
	secret      []byte
	db          db.TxQuerier
	openAccount AccountOpener
}

func NewService(secret string, db db.TxQuerier, openAccount AccountOpener) *Service {
	return &Service{secret: []byte(secret), db: db, openAccount: openAccount}
}

// Register stores the user, opens their account with zero totals and issues tokens.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (Session, error) {
	email := normalizeEmail(req.Email)
	username := strings.TrimSpace(req.Username)
	if email == "" || username == "" || req.Password == "" {
		return Session{}, ErrMissingFields
	}
	if strings.Contains(username, "@") {
		return Session{}, ErrInvalidUsername
	}
	if len(req.Password) < minPasswordLen {
		return Session{}, ErrWeakPassword
	}
	hash, err := hashPasswordFn([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return Session{}, err
	}

	user := User{
		ID:           uuid.NewString(),
		Email:        email,
		Username:     username,
		DisplayName:  strings.TrimSpace(req.DisplayName),
		PasswordHash: string(hash),
	}
	if user.DisplayName == "" {
		user.DisplayName = username
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return Session{}, err
	}
	tokens, err := s.createUser(ctx, tx, &user)
	if err != nil {
		_ = tx.Rollback(ctx)
		return Session{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Session{}, err
	}
	log.Info().Str("user_id", user.ID).Msg("user registered")
	return Session{User: user, Tokens: tokens}, nil
}

// createUser inserts the user, opens the account and stores the first refresh
// token, all on tx.
func (s *Service) createUser(ctx context.Context, tx pgx.Tx, user *User) (TokenPair, error) {
	err := tx.QueryRow(ctx, `
		INSERT INTO users (id, email, username, password_hash, display_name)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING created_at, updated_at
	`, user.ID, user.Email, user.Username, user.PasswordHash, user.DisplayName).Scan(&user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return TokenPair{}, ErrUserExists
		}
		return TokenPair{}, err
	}
	if s.openAccount != nil {
		if err := s.openAccount(ctx, tx, user.ID); err != nil {
			return TokenPair{}, fmt.Errorf("open account: %w", err)
		}
	}
	return s.issueTokens(ctx, tx, user.ID)
}

// Login accepts the email or the username together with the password. A login
// containing @ is an email; usernames never contain one.
func (s *Service) Login(ctx context.Context, req LoginRequest) (Session, error) {
	login := strings.TrimSpace(req.Login)
	if login == "" || req.Password == "" {
		return Session{}, ErrInvalidCredentials
	}
	where, arg := `WHERE username = $1`, login
	if strings.Contains(login, "@") {
		where, arg = `WHERE email = $1`, normalizeEmail(login)
	}
	user, err := s.findUser(ctx, where, arg)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return Session{}, ErrInvalidCredentials
	}

	tokens, err := s.issueTokens(ctx, s.db, user.ID)
	if err != nil {
		return Session{}, err
	}
	return Session{User: user, Tokens: tokens}, nil
}

func (s *Service) Me(ctx context.Context, userID string) (User, error) {
	return s.findUser(ctx, `WHERE id = $1`, userID)
}

// Refresh rotates a refresh token: the presented token is revoked and a new
// pair is issued in the same transaction.
func (s *Service) Refresh(ctx context.Context, token string) (TokenPair, error) {
	claims, err := parseToken(s.secret, token, useRefresh)
	if err != nil {
		return TokenPair{}, ErrRefreshInvalid
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return TokenPair{}, err
	}
	tokens, err := s.rotate(ctx, tx, token, claims.UserID)
	if err != nil {
		_ = tx.Rollback(ctx)
		return TokenPair{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return TokenPair{}, err
	}
	return tokens, nil
}

func (s *Service) rotate(ctx context.Context, tx pgx.Tx, token, userID string) (TokenPair, error) {
	var owner string
	err := tx.QueryRow(ctx, `
		UPDATE refresh_tokens SET revoked_at = $2
		WHERE token = $1 AND revoked_at IS NULL AND expires_at > $2
		RETURNING user_id
	`, token, nowFn()).Scan(&owner)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return TokenPair{}, ErrRefreshInvalid
		}
		return TokenPair{}, err
	}
	if owner != userID {
		return TokenPair{}, ErrRefreshInvalid
	}
	return s.issueTokens(ctx, tx, owner)
}

// Revoke marks a refresh token as no longer usable.
func (s *Service) Revoke(ctx context.Context, token string) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE refresh_tokens SET revoked_at = $2
		WHERE token = $1 AND revoked_at IS NULL
	`, token, nowFn())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRefreshInvalid
	}
	return nil
}

func (s *Service) ValidateAccessToken(token string) (string, error) {
	claims, err := parseToken(s.secret, token, useAccess)
	if err != nil {
		return "", err
	}
	return claims.UserID, nil
}

func (s *Service) issueTokens(ctx context.Context, q db.Querier, userID string) (TokenPair, error) {
	now := nowFn()
	access, err := signToken(s.secret, userID, useAccess, accessTokenTTL, now)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := signToken(s.secret, userID, useRefresh, refreshTokenTTL, now)
	if err != nil {
		return TokenPair{}, err
	}

	if _, err := q.Exec(ctx, `
		INSERT INTO refresh_tokens (id, user_id, token, expires_at)
		VALUES ($1,$2,$3,$4)
	`, uuid.NewString(), userID, refresh, now.Add(refreshTokenTTL)); err != nil {
		return TokenPair{}, err
	}

	return TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(accessTokenTTL.Seconds()),
	}, nil
}

func (s *Service) findUser(ctx context.Context, where string, args ...any) (User, error) {
	var u User
	err := s.db.QueryRow(ctx, `
		SELECT id, email, username, display_name, password_hash, created_at, updated_at
		FROM users `+where, args...).
		Scan(&u.ID, &u.Email, &u.Username, &u.DisplayName, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, err
	}
	return u, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
