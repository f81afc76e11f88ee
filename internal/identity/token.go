// Package identity は署名済みIDトークンの発行と検証を提供する。
// トークンにはロールクレームが埋め込まれ、認可判定の正とする。
package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/accessportal/internal/model"
)

// signingMethod はトークン署名アルゴリズム。
var signingMethod = jwt.SigningMethodHS256

// ErrInvalidToken はトークンの検証に失敗したことを示す。
var ErrInvalidToken = errors.New("invalid identity token")

// tokenClaims はIDトークンのペイロード。
type tokenClaims struct {
	jwt.RegisteredClaims
	Email      string  `json:"email"`
	Name       string  `json:"name"`
	IsAdmin    bool    `json:"isAdmin"`
	IsTechLead bool    `json:"isTechLead"`
	TeamID     *string `json:"teamId"`
}

// TokenConfig はTokenServiceの設定。
type TokenConfig struct {
	SigningKey []byte
	Issuer     string
	TTL        time.Duration
	Leeway     time.Duration
}

// TokenService はIDトークンの発行と検証を行う。
type TokenService struct {
	cfg TokenConfig
	now func() time.Time
}

// NewTokenService はTokenServiceを生成する。
func NewTokenService(cfg TokenConfig) *TokenService {
	return &TokenService{cfg: cfg, now: time.Now}
}

// Mint はidentityの現在のクレームを埋め込んだトークンを発行する。
// 戻り値の時刻はトークンの有効期限。
func (s *TokenService) Mint(ident *model.Identity) (string, time.Time, error) {
	issuedAt := s.now()
	expiresAt := issuedAt.Add(s.cfg.TTL)

	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   ident.ID,
			Issuer:    s.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Email:      ident.Email,
		Name:       ident.DisplayName,
		IsAdmin:    ident.Claims.IsAdmin,
		IsTechLead: ident.Claims.IsTechLead,
		TeamID:     ident.Claims.TeamID,
	}

	signed, err := jwt.NewWithClaims(signingMethod, claims).SignedString(s.cfg.SigningKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign identity token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify はトークンの署名、発行者、有効期限を検証し、呼び出し元を復元する。
func (s *TokenService) Verify(tokenString string) (*model.Caller, error) {
	claims := &tokenClaims{}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(s.cfg.Leeway),
		jwt.WithTimeFunc(s.now),
	}
	if s.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.cfg.Issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return s.cfg.SigningKey, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	return &model.Caller{
		UID:   subject,
		Email: claims.Email,
		Name:  claims.Name,
		Claims: model.RoleClaims{
			IsAdmin:    claims.IsAdmin,
			IsTechLead: claims.IsTechLead,
			TeamID:     claims.TeamID,
		},
	}, nil
}
