package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// ErrUnverifiable 覆盖所有校验失败的情况，具体原因只写日志。
var ErrUnverifiable = errors.New("invalid or unverifiable token")

var allowedMethods = []string{"RS256", "RS512"}

// Claims 是通过校验的令牌内容。
type Claims struct {
	Subject string
	Role    string
	Raw     jwt.MapClaims
}

// Identity 是挂在请求上下文里的调用者身份。
type Identity struct {
	ID   string
	Role string
}

func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

// KeySource 为 issuer 提供 jwt.Keyfunc。
type KeySource interface {
	Keyfunc(issuer string) (jwt.Keyfunc, error)
}

// Keyfunc 让 KeySetCache 满足 KeySource。
func (c *KeySetCache) Keyfunc(issuer string) (jwt.Keyfunc, error) {
	jwks, err := c.Get(issuer)
	if err != nil {
		return nil, err
	}
	return jwks.Keyfunc, nil
}

// Verifier 校验签名、算法、issuer 与过期时间，不校验 audience。
type Verifier struct {
	issuer string
	keys   KeySource
	leeway time.Duration
	log    zerolog.Logger
}

func NewVerifier(issuer string, keys KeySource, log zerolog.Logger) *Verifier {
	return &Verifier{issuer: issuer, keys: keys, log: log}
}

// WithLeeway 设置 exp/nbf 的时钟偏差容忍度。
func (v *Verifier) WithLeeway(d time.Duration) *Verifier {
	v.leeway = d
	return v
}

func (v *Verifier) Verify(ctx context.Context, raw string) (*Claims, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrUnverifiable
	}

	keyfunc, err := v.keys.Keyfunc(v.issuer)
	if err != nil {
		v.log.Error().Err(err).Msg("key set unavailable")
		return nil, ErrUnverifiable
	}

	claims := jwt.MapClaims{}
	_, err = jwt.ParseWithClaims(raw, claims, keyfunc,
		jwt.WithValidMethods(allowedMethods),
		jwt.WithIssuer(v.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
	)
	if err != nil {
		v.log.Debug().Err(err).Msg("token rejected")
		return nil, ErrUnverifiable
	}

	subject := subjectOf(claims)
	if subject == "" {
		v.log.Debug().Msg("token has no subject")
		return nil, ErrUnverifiable
	}

	return &Claims{Subject: subject, Role: ResolveRole(claims), Raw: claims}, nil
}

// ResolveRole 依次读取 public_metadata.role、role，缺省为 user。
func ResolveRole(claims jwt.MapClaims) string {
	if meta, ok := claims["public_metadata"].(map[string]any); ok {
		if role := stringClaim(meta["role"]); role != "" {
			return role
		}
	}
	if role := stringClaim(claims["role"]); role != "" {
		return role
	}
	return RoleUser
}

func subjectOf(claims jwt.MapClaims) string {
	if sub := stringClaim(claims["sub"]); sub != "" {
		return sub
	}
	return stringClaim(claims["userid"])
}

func stringClaim(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}
