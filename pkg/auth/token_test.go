package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/angelmondragon/roomguard/pkg/config"
	"github.com/golang-jwt/jwt/v5"
)

func TestMintAndParseAccessToken(t *testing.T) {
	cfg := config.JWTConfig{
		Secret:            "secret",
		Issuer:            "roomguard",
		ExpirationMinutes: 30,
	}
	now := time.Now().UTC()
	payload := AccessTokenPayload{
		UserID: "@alice:example.org",
		JTI:    "access-1",
	}

	token, err := MintAccessToken(cfg, now, payload)
	if err != nil {
		t.Fatalf("mint access token: %v", err)
	}

	claims, err := ParseAccessToken(cfg, token)
	if err != nil {
		t.Fatalf("parse access token: %v", err)
	}

	if claims.UserID != payload.UserID {
		t.Fatalf("expected user_id %s, got %s", payload.UserID, claims.UserID)
	}
	if claims.Subject != payload.UserID {
		t.Fatalf("expected subject %s, got %s", payload.UserID, claims.Subject)
	}
	if claims.ID != "access-1" {
		t.Fatalf("expected jti access-1, got %s", claims.ID)
	}
	if claims.Issuer != cfg.Issuer {
		t.Fatalf("expected issuer %s, got %s", cfg.Issuer, claims.Issuer)
	}

	exp := now.Add(time.Duration(cfg.ExpirationMinutes) * time.Minute)
	diff := claims.ExpiresAt.Sub(exp)
	if diff < 0 {
		diff = -diff
	}
	if diff >= time.Second {
		t.Fatalf("expected exp roughly %v, got %v (diff %v)", exp.UTC(), claims.ExpiresAt.UTC(), diff)
	}
}

func TestMintAccessTokenGeneratesJTI(t *testing.T) {
	cfg := config.JWTConfig{Secret: "secret", Issuer: "roomguard", ExpirationMinutes: 5}
	token, err := MintAccessToken(cfg, time.Now(), AccessTokenPayload{UserID: "@bob:example.org"})
	if err != nil {
		t.Fatalf("mint access token: %v", err)
	}
	claims, err := ParseAccessToken(cfg, token)
	if err != nil {
		t.Fatalf("parse access token: %v", err)
	}
	if claims.ID == "" {
		t.Fatal("expected generated jti")
	}
}

func TestParseAccessTokenInvalidSignature(t *testing.T) {
	cfg := config.JWTConfig{
		Secret:            "secret",
		Issuer:            "roomguard",
		ExpirationMinutes: 10,
	}
	token, err := MintAccessToken(cfg, time.Now(), AccessTokenPayload{UserID: "@alice:example.org"})
	if err != nil {
		t.Fatalf("mint access token: %v", err)
	}

	if _, err := ParseAccessToken(cfg, token+"x"); err == nil {
		t.Fatal("expected invalid signature error")
	}

	other := cfg
	other.Secret = "other"
	if _, err := ParseAccessToken(other, token); err == nil {
		t.Fatal("expected error for mismatched secret")
	}
}

func TestParseAccessTokenWrongIssuer(t *testing.T) {
	cfg := config.JWTConfig{Secret: "secret", Issuer: "roomguard", ExpirationMinutes: 10}
	token, err := MintAccessToken(cfg, time.Now(), AccessTokenPayload{UserID: "@alice:example.org"})
	if err != nil {
		t.Fatalf("mint access token: %v", err)
	}
	other := cfg
	other.Issuer = "someone-else"
	if _, err := ParseAccessToken(other, token); err == nil {
		t.Fatal("expected issuer mismatch error")
	}
}

func TestParseAccessTokenExpired(t *testing.T) {
	cfg := config.JWTConfig{
		Secret:            "secret",
		Issuer:            "roomguard",
		ExpirationMinutes: 15,
	}
	now := time.Now().Add(-time.Hour)

	token, err := MintAccessToken(cfg, now, AccessTokenPayload{UserID: "@alice:example.org"})
	if err != nil {
		t.Fatalf("mint access token: %v", err)
	}

	_, err = ParseAccessToken(cfg, token)
	if err == nil {
		t.Fatal("expected expiration error")
	}
	if !strings.Contains(err.Error(), "expired") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestMintAccessTokenInvalidUserID(t *testing.T) {
	cfg := config.JWTConfig{
		Secret:            "secret",
		Issuer:            "roomguard",
		ExpirationMinutes: 5,
	}
	for _, userID := range []string{"", "alice", "@alice", "!room:example.org"} {
		if _, err := MintAccessToken(cfg, time.Now(), AccessTokenPayload{UserID: userID}); err == nil {
			t.Fatalf("expected invalid user id error for %q", userID)
		}
	}
}

func signRaw(t *testing.T, secret string, claims AccessTokenClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return token
}

func TestParseAccessTokenRequiresJTIAndMatchingSubject(t *testing.T) {
	cfg := config.JWTConfig{Secret: "secret", Issuer: "roomguard", ExpirationMinutes: 5}
	now := time.Now()
	base := jwt.RegisteredClaims{
		Issuer:    cfg.Issuer,
		Subject:   "@alice:example.org",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
	}

	noJTI := signRaw(t, cfg.Secret, AccessTokenClaims{RegisteredClaims: base})
	if _, err := ParseAccessToken(cfg, noJTI); !errors.Is(err, ErrMissingJTI) {
		t.Fatalf("expected ErrMissingJTI, got %v", err)
	}

	withJTI := base
	withJTI.ID = "access-2"
	mismatch := signRaw(t, cfg.Secret, AccessTokenClaims{UserID: "@mallory:example.org", RegisteredClaims: withJTI})
	if _, err := ParseAccessToken(cfg, mismatch); !errors.Is(err, ErrSubjectMismatch) {
		t.Fatalf("expected ErrSubjectMismatch, got %v", err)
	}

	subjectOnly := signRaw(t, cfg.Secret, AccessTokenClaims{RegisteredClaims: withJTI})
	claims, err := ParseAccessToken(cfg, subjectOnly)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.UserID != "@alice:example.org" {
		t.Fatalf("expected user id from subject, got %s", claims.UserID)
	}
}

func TestParseAccessTokenRequiresExpiry(t *testing.T) {
	cfg := config.JWTConfig{Secret: "secret", Issuer: "roomguard", ExpirationMinutes: 5}
	token := signRaw(t, cfg.Secret, AccessTokenClaims{RegisteredClaims: jwt.RegisteredClaims{
		Issuer:  cfg.Issuer,
		Subject: "@alice:example.org",
		ID:      "forever",
	}})
	if _, err := ParseAccessToken(cfg, token); err == nil {
		t.Fatal("expected a token without exp to be rejected")
	}
}
