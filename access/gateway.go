package access

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Gdheubs/Video-streaming-platform/entitlement"
	"github.com/Gdheubs/Video-streaming-platform/models"
)

// Denial reasons. ReasonNotFound is deliberately indistinguishable from a
// nonexistent video so moderation state never leaks to viewers.
const (
	ReasonNotFound              = "not-found"
	ReasonSubscriptionRequired  = "subscription-required"
	ReasonPrivate               = "private"
	ReasonCredentialUnavailable = "credential-unavailable"
)

// DefaultCredentialTTL bounds how long a minted stream credential lives.
const DefaultCredentialTTL = 6 * time.Hour

// Credential is a time-boxed signed token scoped to exactly one video's
// stream paths. It is computed per request and never persisted.
type Credential struct {
	Token      string    `json:"token"`
	PathPrefix string    `json:"path_prefix"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Grant is the outcome of one authorization decision.
type Grant struct {
	Granted    bool        `json:"granted"`
	Reason     string      `json:"reason,omitempty"`
	Credential *Credential `json:"credential,omitempty"`
}

func denied(reason string) *Grant {
	return &Grant{Granted: false, Reason: reason}
}

// StreamClaims are the claims carried by a stream credential.
type StreamClaims struct {
	VideoID    string `json:"video_id"`
	PathPrefix string `json:"path_prefix"`
	jwt.RegisteredClaims
}

// Gateway decides whether a viewer may fetch a video's stream and mints the
// signed credential gating premium and private content.
type Gateway struct {
	entitlements entitlement.Checker
	secret       []byte
	ttl          time.Duration
}

func NewGateway(entitlements entitlement.Checker, signingSecret string) *Gateway {
	return &Gateway{
		entitlements: entitlements,
		secret:       []byte(signingSecret),
		ttl:          DefaultCredentialTTL,
	}
}

// Authorize evaluates the decision table in order. The decision is a pure
// function of the video's visibility and servable-ness, the viewer identity,
// and the entitlement check result; identical inputs yield identical output.
// viewerID is empty for anonymous requests.
func (g *Gateway) Authorize(ctx context.Context, video *models.Video, viewerID string) (*Grant, error) {
	if video == nil || !video.Servable() {
		return denied(ReasonNotFound), nil
	}

	if video.Visibility == models.VisibilityPublic {
		return &Grant{Granted: true}, nil
	}

	if viewerID != "" && viewerID == video.CreatorID {
		return g.grantWithCredential(video)
	}

	switch video.Visibility {
	case models.VisibilityPremium:
		entitled, err := g.entitlements.IsEntitled(ctx, viewerID, video.CreatorID)
		if err != nil {
			return nil, fmt.Errorf("access: entitlement check failed: %w", err)
		}
		if !entitled {
			return denied(ReasonSubscriptionRequired), nil
		}
		return g.grantWithCredential(video)
	case models.VisibilityPrivate:
		return denied(ReasonPrivate), nil
	default:
		return denied(ReasonNotFound), nil
	}
}

// grantWithCredential mints the stream-scoped credential. Minting failure
// degrades to Denied, never to an unsigned pass-through.
func (g *Gateway) grantWithCredential(video *models.Video) (*Grant, error) {
	cred, err := g.mint(video)
	if err != nil {
		return denied(ReasonCredentialUnavailable), nil
	}
	return &Grant{Granted: true, Credential: cred}, nil
}

func (g *Gateway) mint(video *models.Video) (*Credential, error) {
	if len(g.secret) == 0 {
		return nil, errors.New("access: no signing key material")
	}

	expiresAt := time.Now().Add(g.ttl)
	claims := StreamClaims{
		VideoID:    video.ID,
		PathPrefix: video.StreamPrefix(),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(g.secret)
	if err != nil {
		return nil, err
	}

	return &Credential{
		Token:      token,
		PathPrefix: claims.PathPrefix,
		ExpiresAt:  expiresAt,
	}, nil
}

// VerifyCredential checks a credential against a requested object path. The
// path must fall under the credential's prefix; a credential for one video
// opens nothing else.
func (g *Gateway) VerifyCredential(tokenString, requestPath string) (*StreamClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &StreamClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return g.secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*StreamClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid stream credential")
	}
	if !strings.HasPrefix(requestPath, claims.PathPrefix) {
		return nil, errors.New("credential does not cover requested path")
	}
	return claims, nil
}

// SetCredentialTTL overrides the credential lifetime. Mainly for tests.
func (g *Gateway) SetCredentialTTL(ttl time.Duration) {
	g.ttl = ttl
}
