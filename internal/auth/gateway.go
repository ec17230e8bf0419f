package auth

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
)

// Principal identifies the authenticated caller of a gated endpoint.
type Principal struct {
	KeyID  string
	Name   string
	Method string
}

// Credential method labels surfaced in logs and rate-limit identities.
const (
	MethodBearer = "bearer"
	MethodAPIKey = "apikey"
)

// APIKeyHeader is the legacy raw-credential header accepted next to bearer
// tokens. Raw keys carry no expiry, which is why the bearer path is preferred.
const APIKeyHeader = "X-Api-Key"

// AdminSecretHeader gates the privileged create-key endpoint.
const AdminSecretHeader = "X-Admin-Secret"

// verifier inspects a request for one credential form. It returns ok=false
// when the form is not present at all, letting the next verifier run; any
// error is terminal for the whole chain.
type verifier func(ctx context.Context, r *http.Request) (Principal, bool, error)

// Gateway evaluates an ordered chain of credential verifiers: the bearer
// token first, then the raw API key. The first applicable form decides; a
// request presenting neither fails with ErrMissingCredential.
type Gateway struct {
	tokens      *TokenService
	registry    *KeyRegistry
	adminSecret []byte
	chain       []verifier
}

// NewGateway assembles the verifier chain around the token service and key
// registry.
func NewGateway(tokens *TokenService, registry *KeyRegistry, adminSecret string) *Gateway {
	g := &Gateway{
		tokens:      tokens,
		registry:    registry,
		adminSecret: []byte(adminSecret),
	}
	g.chain = []verifier{g.verifyBearer, g.verifyRawKey}
	return g
}

// Authenticate resolves the caller's principal or reports why it could not.
func (g *Gateway) Authenticate(ctx context.Context, r *http.Request) (Principal, error) {
	for _, verify := range g.chain {
		principal, ok, err := verify(ctx, r)
		if err != nil {
			return Principal{}, err
		}
		if ok {
			return principal, nil
		}
	}
	return Principal{}, ErrMissingCredential
}

// CheckAdmin compares the request's admin secret against the configured one
// in constant time.
func (g *Gateway) CheckAdmin(r *http.Request) error {
	presented := []byte(strings.TrimSpace(r.Header.Get(AdminSecretHeader)))
	if len(presented) == 0 {
		return ErrAdminForbidden
	}
	if subtle.ConstantTimeCompare(presented, g.adminSecret) != 1 {
		return ErrAdminForbidden
	}
	return nil
}

func (g *Gateway) verifyBearer(_ context.Context, r *http.Request) (Principal, bool, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return Principal{}, false, nil
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return Principal{}, false, nil
	}
	raw := strings.TrimSpace(parts[1])
	if raw == "" {
		return Principal{}, false, nil
	}

	claims, err := g.tokens.VerifyToken(raw)
	if err != nil {
		return Principal{}, false, err
	}
	return Principal{KeyID: claims.Subject, Name: claims.Name, Method: MethodBearer}, true, nil
}

func (g *Gateway) verifyRawKey(ctx context.Context, r *http.Request) (Principal, bool, error) {
	id := strings.TrimSpace(r.Header.Get(APIKeyHeader))
	if id == "" {
		return Principal{}, false, nil
	}

	record, ok, err := g.registry.GetAPIKeyRecord(ctx, id)
	if err != nil {
		return Principal{}, false, err
	}
	if !ok {
		return Principal{}, false, ErrInvalidKey
	}
	return Principal{KeyID: record.ID, Name: record.Name, Method: MethodAPIKey}, true, nil
}
