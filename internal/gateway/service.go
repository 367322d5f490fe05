package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"termfolio/internal/credential"
	"termfolio/internal/logging"
)

// Session is what a successful signup, login or refresh hands back.
type Session struct {
	User         UserRecord
	Token        string
	RefreshToken string
}

// Options configures a Service. Zero values fall back to defaults.
type Options struct {
	RefreshTTL  time.Duration
	BcryptCost  int
	Revocations RevocationList
	Logger      *log.Logger
	Now         func() time.Time
}

const defaultRefreshTTL = 30 * 24 * time.Hour

// Service implements account operations on top of the repositories.
type Service struct {
	users       UserStore
	refresh     RefreshStore
	tokens      *TokenIssuer
	revocations RevocationList
	refreshTTL  time.Duration
	cost        int
	logger      *log.Logger
	now         func() time.Time

	// dummyHash keeps login timing similar for unknown accounts.
	dummyHash []byte
}

func NewService(users UserStore, refresh RefreshStore, tokens *TokenIssuer, opts Options) (*Service, error) {
	if users == nil || refresh == nil || tokens == nil {
		return nil, errors.New("gateway: stores and token issuer are required")
	}
	if opts.RefreshTTL <= 0 {
		opts.RefreshTTL = defaultRefreshTTL
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	if opts.BcryptCost < bcrypt.MinCost || opts.BcryptCost > bcrypt.MaxCost {
		return nil, fmt.Errorf("gateway: bcrypt cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Revocations == nil {
		opts.Revocations = NewMemoryRevocations(opts.Now)
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte(uuid.NewString()), opts.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("gateway: prepare password hasher: %w", err)
	}
	return &Service{
		users:       users,
		refresh:     refresh,
		tokens:      tokens,
		revocations: opts.Revocations,
		refreshTTL:  opts.RefreshTTL,
		cost:        opts.BcryptCost,
		logger:      logging.OrDefault(opts.Logger),
		now:         opts.Now,
		dummyHash:   dummy,
	}, nil
}

func (s *Service) Signup(ctx context.Context, req credential.SignupRequest) (Session, error) {
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	if fields := credential.ValidateSignup(req); len(fields) > 0 {
		return Session{}, &ValidationError{Fields: fields}
	}

	if taken, err := s.users.UsernameTaken(ctx, req.Username); err != nil {
		return Session{}, err
	} else if taken {
		return Session{}, ErrUsernameTaken
	}
	if taken, err := s.users.EmailTaken(ctx, req.Email); err != nil {
		return Session{}, err
	} else if taken {
		return Session{}, ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return Session{}, fmt.Errorf("hash password: %w", err)
	}
	user := UserRecord{
		ID:           uuid.NewString(),
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: string(hash),
		CreatedAt:    s.now().UTC(),
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return Session{}, err
	}
	s.logger.Info("account created", "event", "account_created", "user_id", user.ID)
	return s.issueSession(ctx, user)
}

// Login accepts either the email or the username.
func (s *Service) Login(ctx context.Context, req credential.LoginRequest) (Session, error) {
	req.EmailOrUsername = strings.TrimSpace(req.EmailOrUsername)
	if fields := credential.ValidateLogin(req); len(fields) > 0 {
		return Session{}, &ValidationError{Fields: fields}
	}

	user, err := s.users.UserByLogin(ctx, req.EmailOrUsername)
	if errors.Is(err, ErrUserNotFound) {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(req.Password))
		return Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		s.logger.Warn("login rejected", "event", "login_rejected", "user_id", user.ID)
		return Session{}, ErrInvalidCredentials
	}
	return s.issueSession(ctx, user)
}

// Logout revokes the access token's id until its expiry and, when given, the
// refresh token. It never fails from the caller's point of view.
func (s *Service) Logout(ctx context.Context, accessToken, refreshToken string) {
	if claims, err := s.tokens.Parse(accessToken); err == nil {
		s.revocations.Revoke(claims.ID, claims.ExpiresAt.Time)
		s.logger.Info("access token revoked", "event", "access_token_revoked", "user_id", claims.Subject)
	}
	if refreshToken == "" {
		return
	}
	if err := s.refresh.RevokeRefresh(ctx, s.tokens.tokenHash(refreshToken), s.now()); err != nil {
		s.logger.Warn("refresh revoke failed", "event", "refresh_revoke_failed", "token_ref", s.tokens.tokenRef(refreshToken), "error", err)
	}
}

// Me resolves the account behind a valid, unrevoked access token.
func (s *Service) Me(ctx context.Context, accessToken string) (UserRecord, error) {
	claims, err := s.tokens.Parse(accessToken)
	if err != nil {
		return UserRecord{}, err
	}
	if s.revocations.Revoked(claims.ID) {
		return UserRecord{}, fmt.Errorf("%w: revoked", ErrInvalidToken)
	}
	user, err := s.users.UserByID(ctx, claims.Subject)
	if errors.Is(err, ErrUserNotFound) {
		return UserRecord{}, ErrInvalidToken
	}
	return user, err
}

// Refresh rotates a refresh token: the presented one is revoked and a new
// access and refresh pair is issued.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	if refreshToken == "" {
		return Session{}, ErrInvalidToken
	}
	hash := s.tokens.tokenHash(refreshToken)
	record, err := s.refresh.RefreshByHash(ctx, hash)
	if err != nil {
		return Session{}, err
	}
	now := s.now()
	if record.Revoked() || !record.ExpiresAt.After(now) {
		s.logger.Warn("refresh rejected", "event", "refresh_rejected", "token_ref", s.tokens.tokenRef(refreshToken), "revoked", record.Revoked())
		return Session{}, ErrInvalidToken
	}
	user, err := s.users.UserByID(ctx, record.UserID)
	if errors.Is(err, ErrUserNotFound) {
		return Session{}, ErrInvalidToken
	}
	if err != nil {
		return Session{}, err
	}
	if err := s.refresh.RevokeRefresh(ctx, hash, now); err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

// PurgeExpired deletes refresh tokens past their expiry.
func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	return s.refresh.DeleteExpiredRefresh(ctx, s.now())
}

func (s *Service) issueSession(ctx context.Context, user UserRecord) (Session, error) {
	access, _, err := s.tokens.Issue(user)
	if err != nil {
		return Session{}, err
	}
	refresh, err := NewRefreshToken()
	if err != nil {
		return Session{}, err
	}
	if err := s.refresh.SaveRefresh(ctx, RefreshRecord{
		TokenHash: s.tokens.tokenHash(refresh),
		UserID:    user.ID,
		ExpiresAt: s.now().Add(s.refreshTTL),
	}); err != nil {
		return Session{}, err
	}
	return Session{User: user, Token: access, RefreshToken: refresh}, nil
}
