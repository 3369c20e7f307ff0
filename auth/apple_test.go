package auth

import (
	"bytes"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/heartbeatlive/go-heartbeat/core"
)

func TestGenerateNonce_LengthAndCharset(t *testing.T) {
	for range 20 {
		nonce, err := GenerateNonce()
		if err != nil {
			t.Fatalf("generate nonce: %v", err)
		}
		if len(nonce) != NonceLength {
			t.Fatalf("expected %d characters, got %d", NonceLength, len(nonce))
		}
		for _, r := range nonce {
			if !strings.ContainsRune(NonceCharset, r) {
				t.Fatalf("nonce %q contains %q outside the charset", nonce, r)
			}
		}
	}
}

func TestGenerateNonce_Independent(t *testing.T) {
	seen := map[string]struct{}{}
	prefixes := map[string]struct{}{}
	for range 50 {
		nonce, err := GenerateNonce()
		if err != nil {
			t.Fatalf("generate nonce: %v", err)
		}
		if _, dup := seen[nonce]; dup {
			t.Fatalf("duplicate nonce %q", nonce)
		}
		seen[nonce] = struct{}{}
		prefixes[nonce[:4]] = struct{}{}
	}
	if len(prefixes) < 40 {
		t.Fatalf("expected varied prefixes, got %d distinct out of 50", len(prefixes))
	}
}

func TestNonceGenerator_DiscardsOutOfRangeBytes(t *testing.T) {
	// 0xFF and 0x40 are outside the 64 character range and must be skipped.
	source := bytes.Repeat([]byte{0xFF, 0x00, 0x40, 0x3F}, 16)
	nonce, err := NonceGenerator{Reader: bytes.NewReader(source)}.Generate(6)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	want := strings.Repeat(string(NonceCharset[0])+string(NonceCharset[63]), 3)
	if nonce != want {
		t.Fatalf("expected %q, got %q", want, nonce)
	}
}

func TestNonceGenerator_RejectsNonPositiveLength(t *testing.T) {
	if _, err := (NonceGenerator{}).Generate(0); err == nil {
		t.Fatalf("expected error for zero length")
	}
}

func TestHashNonce(t *testing.T) {
	got := HashNonce("abc")
	want := "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestNewAppleRequest_HashesRawNonce(t *testing.T) {
	request, err := NewAppleRequest()
	if err != nil {
		t.Fatalf("new apple request: %v", err)
	}
	if len(request.RawNonce) != NonceLength {
		t.Fatalf("unexpected raw nonce length %d", len(request.RawNonce))
	}
	if request.HashedNonce != HashNonce(request.RawNonce) {
		t.Fatalf("hashed nonce does not match raw nonce")
	}
	credential := request.Credential(" token ")
	if credential.Provider != AppleProvider || credential.IDToken != "token" || credential.RawNonce != request.RawNonce {
		t.Fatalf("unexpected credential %#v", credential)
	}
}

func TestVerifyIdentityTokenNonce(t *testing.T) {
	request, err := NewAppleRequest()
	if err != nil {
		t.Fatalf("new apple request: %v", err)
	}
	token := signTestToken(t, jwt.MapClaims{
		"iss":   "https://appleid.apple.com",
		"sub":   "001234.apple",
		"email": "runner@example.com",
		"nonce": request.HashedNonce,
	})

	claims, err := VerifyIdentityTokenNonce(token, request.HashedNonce)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Subject != "001234.apple" || claims.Email != "runner@example.com" {
		t.Fatalf("unexpected claims %#v", claims)
	}

	if _, err := VerifyIdentityTokenNonce(token, HashNonce("other")); !core.HasTextCode(err, core.ErrorAuthFailed) {
		t.Fatalf("expected auth failure for mismatched nonce, got %v", err)
	}
}

func TestVerifyIdentityTokenNonce_RejectsMalformedToken(t *testing.T) {
	if _, err := VerifyIdentityTokenNonce("not-a-jwt", HashNonce("n")); !core.HasTextCode(err, core.ErrorAuthFailed) {
		t.Fatalf("expected auth failure, got %v", err)
	}
}

func TestVerifyIdentityTokenNonce_AcceptsTokenWithoutNonceClaim(t *testing.T) {
	token := signTestToken(t, jwt.MapClaims{"sub": "001234.apple", "email": " runner@example.com "})
	claims, err := VerifyIdentityTokenNonce(token, HashNonce("n"))
	if err != nil {
		t.Fatalf("expected token without nonce claim to pass, got %v", err)
	}
	if claims.Subject != "001234.apple" || claims.Email != "runner@example.com" || claims.Nonce != "" {
		t.Fatalf("unexpected claims %#v", claims)
	}
}

func TestVerifyIdentityTokenNonce_RequiresRequestNonceWhenClaimPresent(t *testing.T) {
	token := signTestToken(t, jwt.MapClaims{"sub": "x", "nonce": HashNonce("n")})
	if _, err := VerifyIdentityTokenNonce(token, " "); !core.HasTextCode(err, core.ErrorAuthFailed) {
		t.Fatalf("expected auth failure without request nonce, got %v", err)
	}
}

func signTestToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}
