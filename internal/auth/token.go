package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	tokenIssuer           = "eliteeight"
	audienceSession       = "session"
	audienceDeleteConfirm = "delete-confirmation"
)

// sessionError はセッションが無効であることを示すエラー。
// 認証ゲートは通常の未認証として扱う。
type sessionError string

func (e sessionError) Error() string { return string(e) }

// SessionGone はエラーが未認証状態を表すことを示す。
func (sessionError) SessionGone() bool { return true }

var (
	// ErrInvalidToken はトークンの署名・期限・用途のいずれかが不正な場合に返される。
	ErrInvalidToken error = sessionError("auth: invalid token")
	// ErrConfirmationMismatch は削除確認トークンの対象が一致しない場合に返される。
	ErrConfirmationMismatch = errors.New("auth: confirmation does not match target")
)

// SessionClaims はセッションCookieに格納するJWTのクレーム。
// SIDはサーバー側セッション行のID。
type SessionClaims struct {
	SID string `json:"sid"`
	jwt.RegisteredClaims
}

// DeleteConfirmationClaims は削除確認トークンのクレーム。
type DeleteConfirmationClaims struct {
	Collection string `json:"col"`
	DocumentID string `json:"doc"`
	jwt.RegisteredClaims
}

// TokenIssuer はHS256で署名したトークンを発行・検証する。
type TokenIssuer struct {
	secret []byte
	now    func() time.Time
}

// NewTokenIssuer はTokenIssuerを生成する。
func NewTokenIssuer(secret string) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), now: time.Now}
}

// IssueSession はセッションIDを埋め込んだトークンを発行する。
func (t *TokenIssuer) IssueSession(sessionID, userID string, expiresAt time.Time) (string, error) {
	claims := SessionClaims{
		SID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   userID,
			Audience:  jwt.ClaimStrings{audienceSession},
			IssuedAt:  jwt.NewNumericDate(t.now()),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, nil
}

// ParseSession はセッショントークンを検証してクレームを返す。
func (t *TokenIssuer) ParseSession(token string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	if err := t.parse(token, claims, audienceSession); err != nil {
		return nil, err
	}
	if claims.SID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// IssueDeleteConfirmation は指定ドキュメントの削除を1回分承認するトークンを発行する。
func (t *TokenIssuer) IssueDeleteConfirmation(userID, collection, id string, ttl time.Duration) (string, time.Time, error) {
	now := t.now()
	expiresAt := now.Add(ttl)
	claims := DeleteConfirmationClaims{
		Collection: collection,
		DocumentID: id,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   userID,
			Audience:  jwt.ClaimStrings{audienceDeleteConfirm},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign confirmation token: %w", err)
	}
	return signed, expiresAt, nil
}

// VerifyDeleteConfirmation は削除確認トークンが同じユーザー・コレクション・ドキュメントに対して
// 発行されたものか検証する。
func (t *TokenIssuer) VerifyDeleteConfirmation(token, userID, collection, id string) error {
	claims := &DeleteConfirmationClaims{}
	if err := t.parse(token, claims, audienceDeleteConfirm); err != nil {
		return err
	}
	if claims.Subject != userID || claims.Collection != collection || claims.DocumentID != id {
		return ErrConfirmationMismatch
	}
	return nil
}

func (t *TokenIssuer) parse(token string, claims jwt.Claims, audience string) error {
	if token == "" {
		return ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(tok *jwt.Token) (any, error) {
			if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
			}
			return t.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil || !parsed.Valid {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return nil
}
