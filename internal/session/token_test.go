package session

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-jwt-secret-that-is-long-enough"

func signToken(t *testing.T, secret, userID, email string, expiresAt time.Time) string {
	t.Helper()
	claims := &Claims{
		Email: email,
		Role:  "authenticated",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(expiresAt.Add(-time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func TestVerify_ValidToken(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	v := NewVerifier(testSecret, func() time.Time { return now })

	claims, err := v.Verify(signToken(t, testSecret, "u1", "a@example.com", now.Add(time.Hour)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if claims.Subject != "u1" || claims.Email != "a@example.com" {
		t.Errorf("unexpected claims: %+v", claims)
	}
}

func TestVerify_Expired(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	v := NewVerifier(testSecret, func() time.Time { return now })

	_, err := v.Verify(signToken(t, testSecret, "u1", "a@example.com", now.Add(-time.Minute)))
	if !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestVerify_WrongSecret(t *testing.T) {
	now := time.Now()
	v := NewVerifier(testSecret, nil)

	_, err := v.Verify(signToken(t, "some-other-secret-value", "u1", "a@example.com", now.Add(time.Hour)))
	if err == nil {
		t.Fatal("expected error for wrong secret")
	}
	if errors.Is(err, ErrTokenExpired) {
		t.Error("wrong secret must not be reported as expiry")
	}
}

func TestVerify_RejectsNoneAlgorithm(t *testing.T) {
	claims := &Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "u1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	if _, err := NewVerifier(testSecret, nil).Verify(token); err == nil {
		t.Fatal("expected error for alg none")
	}
}

func TestVerify_RequiresExpiry(t *testing.T) {
	claims := &Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "u1"}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	if _, err := NewVerifier(testSecret, nil).Verify(token); err == nil {
		t.Fatal("expected error for token without exp")
	}
}
