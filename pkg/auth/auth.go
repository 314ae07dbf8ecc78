// Package auth authenticates the applications that call the data
// management API. Every mutation is attributed to an "agent ID" string
// (SPEC_FULL.md §4.3); this package is how a caller proves it is
// entitled to act as one. It borrows the teacher's own
// authentication shape — hand-rolled HS256 JWTs, bcrypt-hashed
// secrets, lockout after repeated failures, pluggable audit hook — and
// drops its human-facing concepts (usernames, multi-role RBAC) that
// have no counterpart in an application-provenance model: a caller
// either is a registered agent or it isn't, there are no viewer/editor/
// admin tiers to check.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrAgentNotFound      = errors.New("agent not registered")
	ErrAgentExists        = errors.New("agent already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("agent locked out after too many failed attempts")
	ErrSecretTooShort     = errors.New("secret does not meet minimum length requirement")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrSessionExpired     = errors.New("token expired")
	ErrDisabled           = errors.New("agent disabled")
	ErrMissingSecret      = errors.New("JWT signing secret not configured")
)

// Agent is a registered application identity: the same agent ID this
// package authenticates is the "app" string passed to every
// datamanagement mutation.
type Agent struct {
	ID           string
	SecretHash   string `json:"-"`
	CreatedAt    time.Time
	LastAuth     time.Time
	FailedLogins int `json:"-"`
	LockedUntil  time.Time `json:"-"`
	Disabled     bool
}

// Claims is the payload of an agent's JWT: just enough to recover its
// agent ID on every request without a round trip to the registry.
type Claims struct {
	Sub string `json:"sub"` // agent ID
	Iat int64  `json:"iat"`
	Exp int64  `json:"exp,omitempty"` // 0 = never expires
}

// TokenResponse mirrors the OAuth 2.0 RFC 6749 token response shape,
// matching the transport the teacher's own HTTP layer expects.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in,omitempty"`
}

// Config holds authenticator tuning.
type Config struct {
	MinSecretLength int
	BcryptCost      int
	JWTSecret       []byte
	TokenExpiry     time.Duration // 0 = never expire
	MaxFailedLogins int
	LockoutDuration time.Duration
}

// DefaultConfig returns sane defaults; callers must still set JWTSecret.
func DefaultConfig() Config {
	return Config{
		MinSecretLength: 16,
		BcryptCost:      bcrypt.DefaultCost,
		TokenExpiry:     0,
		MaxFailedLogins: 5,
		LockoutDuration: 15 * time.Minute,
	}
}

// AuditEvent describes one authentication-relevant occurrence, handed
// to the optional audit hook.
type AuditEvent struct {
	EventType string // "agent_register", "agent_auth", "agent_lockout"
	AgentID   string
	Success   bool
	Details   string
	Timestamp time.Time
}

// Authenticator registers agents and issues/validates their tokens.
type Authenticator struct {
	mu     sync.RWMutex
	agents map[string]*Agent
	config Config

	auditLog func(AuditEvent)
}

// New builds an Authenticator. JWTSecret must be non-empty.
func New(config Config) (*Authenticator, error) {
	if len(config.JWTSecret) == 0 {
		return nil, ErrMissingSecret
	}
	if config.BcryptCost == 0 {
		config.BcryptCost = bcrypt.DefaultCost
	}
	if config.MinSecretLength == 0 {
		config.MinSecretLength = 16
	}
	if config.MaxFailedLogins == 0 {
		config.MaxFailedLogins = 5
	}
	if config.LockoutDuration == 0 {
		config.LockoutDuration = 15 * time.Minute
	}
	return &Authenticator{agents: make(map[string]*Agent), config: config}, nil
}

// SetAuditLogger installs fn as the audit sink.
func (a *Authenticator) SetAuditLogger(fn func(AuditEvent)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.auditLog = fn
}

func (a *Authenticator) logAudit(event AuditEvent) {
	if a.auditLog != nil {
		event.Timestamp = time.Now()
		a.auditLog(event)
	}
}

// RegisterAgent registers a new agent ID with a plaintext secret,
// immediately hashed and never stored or returned in the clear.
func (a *Authenticator) RegisterAgent(id, secret string) (*Agent, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if id == "" {
		return nil, fmt.Errorf("%w: agent ID must not be empty", ErrInvalidCredentials)
	}
	if _, exists := a.agents[id]; exists {
		a.logAudit(AuditEvent{EventType: "agent_register", AgentID: id, Success: false, Details: "already registered"})
		return nil, ErrAgentExists
	}
	if len(secret) < a.config.MinSecretLength {
		return nil, fmt.Errorf("%w: minimum %d characters required", ErrSecretTooShort, a.config.MinSecretLength)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), a.config.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash secret: %w", err)
	}

	agent := &Agent{ID: id, SecretHash: string(hash), CreatedAt: time.Now()}
	a.agents[id] = agent
	a.logAudit(AuditEvent{EventType: "agent_register", AgentID: id, Success: true})
	return copyAgentSafe(agent), nil
}

// Authenticate verifies id/secret and, on success, issues a token.
func (a *Authenticator) Authenticate(id, secret string) (*TokenResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	agent, exists := a.agents[id]
	if !exists {
		a.logAudit(AuditEvent{EventType: "agent_auth", AgentID: id, Success: false, Details: "unknown agent"})
		return nil, ErrInvalidCredentials
	}
	if agent.Disabled {
		return nil, ErrDisabled
	}
	if !agent.LockedUntil.IsZero() && time.Now().Before(agent.LockedUntil) {
		a.logAudit(AuditEvent{EventType: "agent_auth", AgentID: id, Success: false, Details: "locked out"})
		return nil, ErrAccountLocked
	}

	if err := bcrypt.CompareHashAndPassword([]byte(agent.SecretHash), []byte(secret)); err != nil {
		agent.FailedLogins++
		if agent.FailedLogins >= a.config.MaxFailedLogins {
			agent.LockedUntil = time.Now().Add(a.config.LockoutDuration)
			a.logAudit(AuditEvent{EventType: "agent_lockout", AgentID: id, Success: false, Details: "too many failed attempts"})
		}
		a.logAudit(AuditEvent{EventType: "agent_auth", AgentID: id, Success: false, Details: "bad secret"})
		return nil, ErrInvalidCredentials
	}

	agent.FailedLogins = 0
	agent.LockedUntil = time.Time{}
	agent.LastAuth = time.Now()

	token, err := a.generateJWT(agent)
	if err != nil {
		return nil, err
	}
	a.logAudit(AuditEvent{EventType: "agent_auth", AgentID: id, Success: true})

	resp := &TokenResponse{AccessToken: token, TokenType: "Bearer"}
	if a.config.TokenExpiry > 0 {
		resp.ExpiresIn = int64(a.config.TokenExpiry.Seconds())
	}
	return resp, nil
}

// ValidateToken verifies token and returns its claims.
func (a *Authenticator) ValidateToken(token string) (*Claims, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.verifyJWT(token)
}

// AgentID resolves a bearer token straight to the agent ID callers
// should pass as the mutation API's app parameter.
func (a *Authenticator) AgentID(token string) (string, error) {
	claims, err := a.ValidateToken(token)
	if err != nil {
		return "", err
	}
	return claims.Sub, nil
}

// DisableAgent/EnableAgent suspend or restore an agent without
// deleting its registration.
func (a *Authenticator) DisableAgent(id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	agent, ok := a.agents[id]
	if !ok {
		return ErrAgentNotFound
	}
	agent.Disabled = true
	return nil
}

func (a *Authenticator) EnableAgent(id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	agent, ok := a.agents[id]
	if !ok {
		return ErrAgentNotFound
	}
	agent.Disabled = false
	agent.FailedLogins = 0
	agent.LockedUntil = time.Time{}
	return nil
}

// RotateSecret replaces an agent's secret in place.
func (a *Authenticator) RotateSecret(id, newSecret string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	agent, ok := a.agents[id]
	if !ok {
		return ErrAgentNotFound
	}
	if len(newSecret) < a.config.MinSecretLength {
		return ErrSecretTooShort
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newSecret), a.config.BcryptCost)
	if err != nil {
		return fmt.Errorf("hash secret: %w", err)
	}
	agent.SecretHash = string(hash)
	return nil
}

// ListAgents returns every registered agent, without secrets.
func (a *Authenticator) ListAgents() []*Agent {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]*Agent, 0, len(a.agents))
	for _, ag := range a.agents {
		out = append(out, copyAgentSafe(ag))
	}
	return out
}

func (a *Authenticator) generateJWT(agent *Agent) (string, error) {
	if len(a.config.JWTSecret) == 0 {
		return "", ErrMissingSecret
	}
	now := time.Now().Unix()
	claims := Claims{Sub: agent.ID, Iat: now}
	if a.config.TokenExpiry > 0 {
		claims.Exp = now + int64(a.config.TokenExpiry.Seconds())
	}

	header := map[string]string{"alg": "HS256", "typ": "JWT"}
	headerJSON, _ := json.Marshal(header)
	claimsJSON, _ := json.Marshal(claims)

	headerB64 := base64.RawURLEncoding.EncodeToString(headerJSON)
	claimsB64 := base64.RawURLEncoding.EncodeToString(claimsJSON)

	message := headerB64 + "." + claimsB64
	mac := hmac.New(sha256.New, a.config.JWTSecret)
	mac.Write([]byte(message))
	signature := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))

	return message + "." + signature, nil
}

func (a *Authenticator) verifyJWT(token string) (*Claims, error) {
	if len(a.config.JWTSecret) == 0 {
		return nil, ErrMissingSecret
	}
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, ErrInvalidToken
	}

	message := parts[0] + "." + parts[1]
	mac := hmac.New(sha256.New, a.config.JWTSecret)
	mac.Write([]byte(message))
	expectedSig := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))

	if !SecureCompare(parts[2], expectedSig) {
		return nil, ErrInvalidToken
	}

	claimsJSON, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, ErrInvalidToken
	}
	var claims Claims
	if err := json.Unmarshal(claimsJSON, &claims); err != nil {
		return nil, ErrInvalidToken
	}
	if claims.Exp > 0 && time.Now().Unix() > claims.Exp {
		return nil, ErrSessionExpired
	}
	return &claims, nil
}

func copyAgentSafe(ag *Agent) *Agent {
	cp := *ag
	cp.SecretHash = ""
	return &cp
}

// SecureCompare performs a constant-time string comparison, used for
// JWT signature checks to avoid timing side-channels.
func SecureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// HasCredentials reports whether any credential source carried a value.
func HasCredentials(authHeader, apiKeyHeader, queryToken string) bool {
	return authHeader != "" || apiKeyHeader != "" || queryToken != ""
}

// ExtractToken pulls a bearer token out of the usual HTTP carriers, in
// priority order: Authorization header, X-API-Key, then query param
// (for transports that can't set headers).
func ExtractToken(authHeader, apiKeyHeader, queryToken string) string {
	if authHeader != "" {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	if apiKeyHeader != "" {
		return apiKeyHeader
	}
	return queryToken
}
