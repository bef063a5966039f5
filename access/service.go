package access

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mortasa/storefront/storage"
)

const (
	// DefaultMasterCode is used when no master code is configured.
	DefaultMasterCode = "ZXCVBNMLL22"
	// MasterLabel is the fixed label of the bootstrapped master code.
	MasterLabel = "المدير الرئيسي"
)

// LoginResult is returned by a successful login.
type LoginResult struct {
	Token    string
	IsMaster bool
	Label    string
}

// Deletion describes the outcome of deleting an access code.
type Deletion struct {
	Code            storage.AccessCode
	SessionsRevoked int
}

// Service coordinates the access code store and the session registry.
type Service struct {
	codes      storage.AccessCodeStore
	sessions   *SessionRegistry
	masterCode string
	logger     *slog.Logger

	bootstrapMu sync.Mutex
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithMasterCode sets the secret used when the master code is bootstrapped.
// An empty value keeps DefaultMasterCode.
func WithMasterCode(code string) ServiceOption {
	return func(s *Service) {
		if code != "" {
			s.masterCode = code
		}
	}
}

// WithLogger sets the logger used for bootstrap and store diagnostics.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

// NewService returns a Service backed by codes and sessions.
func NewService(codes storage.AccessCodeStore, sessions *SessionRegistry, opts ...ServiceOption) *Service {
	s := &Service{
		codes:      codes,
		sessions:   sessions,
		masterCode: DefaultMasterCode,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "access")
	return s
}

// Sessions returns the registry the service issues into.
func (s *Service) Sessions() *SessionRegistry { return s.sessions }

// Login exchanges a presented access code for a new session. The code is
// compared exactly; whitespace is significant.
func (s *Service) Login(ctx context.Context, presented string) (LoginResult, error) {
	if presented == "" {
		return LoginResult{}, ErrMissingCode
	}
	s.sessions.Sweep()

	code, err := s.codes.FindAccessCode(ctx, presented)
	if errors.Is(err, storage.ErrNotFound) {
		return LoginResult{}, ErrInvalidCode
	}
	if err != nil {
		return LoginResult{}, fmt.Errorf("looking up access code: %w", err)
	}

	token, err := s.sessions.Issue(code.Code, code.IsMaster, code.Label)
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{Token: token, IsMaster: code.IsMaster, Label: code.Label}, nil
}

// Authenticate resolves token to a live session and re-validates that the
// session's access code still exists. A session whose code is gone is
// revoked and reported with ErrCodeDeleted; every later use of its token
// gets ErrRevoked.
//
// The store lookup runs without the registry lock held.
func (s *Service) Authenticate(ctx context.Context, token string) (Session, error) {
	if token == "" {
		return Session{}, ErrNoCredentials
	}
	session, ok := s.sessions.Resolve(token)
	if !ok {
		if s.sessions.IsRevoked(token) {
			return Session{}, ErrRevoked
		}
		s.sessions.Revoke(token)
		return Session{}, ErrSessionExpired
	}

	_, err := s.codes.FindAccessCode(ctx, session.Code)
	if errors.Is(err, storage.ErrNotFound) {
		s.sessions.Invalidate(token)
		return Session{}, ErrCodeDeleted
	}
	if err != nil {
		s.logger.Warn("access code revalidation failed", "error", err)
		return Session{}, fmt.Errorf("revalidating session: %w", err)
	}
	return session, nil
}

// RequireMaster reports ErrMasterRequired unless session holds master
// privilege. It never consults the store.
func RequireMaster(session Session) error {
	if !session.IsMaster {
		return ErrMasterRequired
	}
	return nil
}

// Logout revokes the given session token.
func (s *Service) Logout(token string) {
	s.sessions.Revoke(token)
}

// ListCodes returns every access code, including secret values. Callers must
// restrict it to master sessions.
func (s *Service) ListCodes(ctx context.Context) ([]storage.AccessCode, error) {
	codes, err := s.codes.ListAccessCodes(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing access codes: %w", err)
	}
	return codes, nil
}

// CreateCode stores a new non-master access code.
func (s *Service) CreateCode(ctx context.Context, code, label string) (storage.AccessCode, error) {
	label = storage.NormalizeText(label)
	if code == "" || label == "" {
		return storage.AccessCode{}, ErrMissingFields
	}
	created, err := s.codes.CreateAccessCode(ctx, storage.AccessCode{
		Code:     code,
		Label:    label,
		IsMaster: false,
	})
	if errors.Is(err, storage.ErrDuplicateCode) {
		return storage.AccessCode{}, ErrDuplicateCode
	}
	if err != nil {
		return storage.AccessCode{}, fmt.Errorf("creating access code: %w", err)
	}
	return created, nil
}

// DeleteCode removes the access code with the given id and revokes every
// session that was authenticated against its value. The master code cannot
// be deleted. When DeleteCode returns successfully no request on a revoked
// session can succeed.
func (s *Service) DeleteCode(ctx context.Context, id string) (Deletion, error) {
	code, err := s.codes.GetAccessCode(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return Deletion{}, ErrCodeNotFound
	}
	if err != nil {
		return Deletion{}, fmt.Errorf("loading access code: %w", err)
	}
	if code.IsMaster {
		return Deletion{}, ErrMasterProtected
	}

	if err := s.codes.DeleteAccessCode(ctx, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Deletion{}, ErrCodeNotFound
		}
		return Deletion{}, fmt.Errorf("deleting access code: %w", err)
	}
	revoked := s.sessions.RevokeAllForCode(code.Code)
	return Deletion{Code: code, SessionsRevoked: revoked}, nil
}

// EnsureMaster creates the master access code if none exists. It reports
// whether a code was created. Calls are serialized within the process;
// across processes the store's uniqueness constraint resolves the race.
func (s *Service) EnsureMaster(ctx context.Context) (bool, error) {
	s.bootstrapMu.Lock()
	defer s.bootstrapMu.Unlock()

	_, err := s.codes.FindMasterCode(ctx)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return false, fmt.Errorf("looking up master code: %w", err)
	}

	_, err = s.codes.CreateAccessCode(ctx, storage.AccessCode{
		Code:     s.masterCode,
		Label:    MasterLabel,
		IsMaster: true,
	})
	if errors.Is(err, storage.ErrDuplicateCode) {
		// Another process may have won the race.
		if _, ferr := s.codes.FindMasterCode(ctx); ferr == nil {
			return false, nil
		}
		return false, fmt.Errorf("master code value is held by a non-master code: %w", err)
	}
	if err != nil {
		return false, fmt.Errorf("creating master code: %w", err)
	}
	s.logger.Info("master access code created")
	return true, nil
}
