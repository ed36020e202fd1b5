package identity

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	dErrors "certportal/pkg/domain-errors"
)

// Provider is the identity-provider surface consumed by the transport layer.
// Production deployments plug in the corporate IdP; the memory provider below
// backs development and tests.
type Provider interface {
	Authenticate(ctx context.Context, username, password string) (string, error)
}

type memoryAccount struct {
	principal    Principal
	passwordHash []byte
}

// MemoryProvider authenticates against an in-memory account table with
// bcrypt-hashed passwords and issues signed session tokens.
type MemoryProvider struct {
	mu       sync.RWMutex
	accounts map[string]memoryAccount
	verifier *Verifier
	tokenTTL time.Duration
}

// NewMemoryProvider creates an empty provider issuing tokens via the verifier.
func NewMemoryProvider(verifier *Verifier, tokenTTL time.Duration) *MemoryProvider {
	return &MemoryProvider{
		accounts: make(map[string]memoryAccount),
		verifier: verifier,
		tokenTTL: tokenTTL,
	}
}

// Register adds an account. The cleartext password is hashed and discarded.
func (p *MemoryProvider) Register(username, password string, principal Principal) error {
	if err := principal.Validate(); err != nil && !dErrors.HasCode(err, dErrors.CodeForbidden) {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return dErrors.New(dErrors.CodeValidation, "password exceeds maximum length")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash password")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.accounts[username]; exists {
		return dErrors.New(dErrors.CodeConflict, "username already registered")
	}
	p.accounts[username] = memoryAccount{principal: principal, passwordHash: hash}
	return nil
}

// Authenticate checks credentials and returns a signed session token.
// Failures are deliberately indistinguishable between unknown user and wrong
// password.
func (p *MemoryProvider) Authenticate(_ context.Context, username, password string) (string, error) {
	p.mu.RLock()
	account, ok := p.accounts[username]
	p.mu.RUnlock()

	if !ok {
		return "", dErrors.New(dErrors.CodeUnauthorized, "invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword(account.passwordHash, []byte(password)); err != nil {
		return "", dErrors.New(dErrors.CodeUnauthorized, "invalid credentials")
	}
	if account.principal.AccountStatus == AccountBlocked {
		return "", dErrors.New(dErrors.CodeForbidden, "account is blocked")
	}

	token, err := p.verifier.Issue(account.principal, p.tokenTTL)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue session token")
	}
	return token, nil
}
