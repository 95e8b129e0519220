package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const secret = "test-secret"

func TestTokenRoundTrip(t *testing.T) {
	id := uuid.New()
	tok, err := GenerateToken(id, "alice", secret, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	claims, err := ParseToken(tok, secret)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if claims.UserID != id || claims.Username != "alice" {
		t.Fatalf("claims = %+v", claims)
	}
}

func TestParseTokenRejects(t *testing.T) {
	id := uuid.New()

	expired, err := GenerateToken(id, "alice", secret, -time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	good, err := GenerateToken(id, "alice", secret, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: id}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		token  string
		secret string
	}{
		{"expired", expired, secret},
		{"wrong secret", good, "other-secret"},
		{"alg none", none, secret},
		{"garbage", "not.a.token", secret},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseToken(tt.token, tt.secret); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
