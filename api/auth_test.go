package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"voice-notes/domain"

	"github.com/dgrijalva/jwt-go"
)

func idToken(t *testing.T, secret, name, email string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, IdentityClaims{
		Name:  name,
		Email: email,
		StandardClaims: jwt.StandardClaims{
			ExpiresAt: time.Now().Add(time.Minute).Unix(),
		},
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatal(err)
	}
	return signed
}

func TestLoginFindsOrCreatesProfile(t *testing.T) {
	s := newTestServer(t)

	type output struct {
		JWT     string
		Profile domain.Profile
	}

	first := do(t, s, http.MethodPost, "/login", "", map[string]string{"IDToken": idToken(t, "identity-secret", "Ada", "Ada@Example.com")})
	if first.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", first.Code, first.Body)
	}
	var out1 output
	decode(t, first, &out1)
	if out1.JWT == "" || out1.Profile.Email != "ada@example.com" || out1.Profile.Name != "Ada" {
		t.Fatalf("login output = %+v", out1)
	}

	second := do(t, s, http.MethodPost, "/login", "", map[string]string{"IDToken": idToken(t, "identity-secret", "Ada L.", "ada@example.com")})
	var out2 output
	decode(t, second, &out2)
	if out2.Profile.ID != out1.Profile.ID {
		t.Errorf("second login created profile %d, want %d", out2.Profile.ID, out1.Profile.ID)
	}

	me := do(t, s, http.MethodGet, "/me", out2.JWT, nil)
	if me.Code != http.StatusOK {
		t.Fatalf("/me status = %d", me.Code)
	}
	var profile domain.Profile
	decode(t, me, &profile)
	if profile.ID != out1.Profile.ID {
		t.Errorf("/me = %+v", profile)
	}
}

func TestLoginRejectsBadIDTokens(t *testing.T) {
	s := newTestServer(t)

	tests := map[string]string{
		"wrong secret": idToken(t, "someone-else", "Eve", "eve@example.com"),
		"no email":     idToken(t, "identity-secret", "Nobody", ""),
		"garbage":      "not-a-token",
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			rec := do(t, s, http.MethodPost, "/login", "", map[string]string{"IDToken": token})
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", rec.Code)
			}
		})
	}

	if rec := do(t, s, http.MethodPost, "/login", "", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("empty body status = %d, want 400", rec.Code)
	}
}

func TestValidate(t *testing.T) {
	s := newTestServer(t)
	profile, token := createProfile(t, s, "val@example.com")

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Id:             profile.ID,
		StandardClaims: jwt.StandardClaims{ExpiresAt: time.Now().Add(-time.Minute).Unix()},
	})
	expiredString, _ := expired.SignedString([]byte("access-secret"))

	tests := []struct {
		name  string
		token string
		want  int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"garbage", "abc.def.ghi", http.StatusUnauthorized},
		{"expired", expiredString, http.StatusUnauthorized},
		{"valid", token, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, http.MethodGet, "/notes", tt.token, nil)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
			if tt.want == http.StatusOK && !strings.HasPrefix(rec.Header().Get("Authorization"), "Bearer ") {
				t.Error("missing refreshed token")
			}
		})
	}
}

func TestValidateAcceptsQueryToken(t *testing.T) {
	s := newTestServer(t)
	_, token := createProfile(t, s, "query@example.com")

	req := httptest.NewRequest(http.MethodGet, "/notes?access_token="+token, nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}
