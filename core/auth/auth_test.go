package auth

import (
	"errors"
	"testing"
	"time"
)

func TestTokenRoundTrip(t *testing.T) {
	tok, err := GenerateToken("s3cret", "booth", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	claims, err := ParseToken("s3cret", tok)
	if err != nil {
		t.Fatal(err)
	}
	if claims.Operator != "booth" || claims.Subject != "booth" || claims.ExpiresAt == nil {
		t.Fatalf("claims = %+v", claims)
	}
}

func TestParseTokenRejects(t *testing.T) {
	good, err := GenerateToken("s3cret", "booth", 0)
	if err != nil {
		t.Fatal(err)
	}
	expired, err := GenerateToken("s3cret", "booth", -time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name, secret, token string
	}{
		{"wrong secret", "other", good},
		{"garbage", "s3cret", "not-a-token"},
		{"expired", "s3cret", expired},
	}
	for _, tc := range cases {
		if _, err := ParseToken(tc.secret, tc.token); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}

	if _, err := ParseToken("", good); !errors.Is(err, ErrNoSecret) {
		t.Fatalf("empty secret: %v", err)
	}
	if _, err := GenerateToken("", "booth", 0); !errors.Is(err, ErrNoSecret) {
		t.Fatalf("empty secret: %v", err)
	}
}
