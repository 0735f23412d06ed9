package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"voice-notes/domain"

	"github.com/dgrijalva/jwt-go"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog/log"
)

const tokenIssuer = "voice-notes"

type ctxKey string

const profileKey ctxKey = "id"

type Claims struct {
	Id uint
	jwt.StandardClaims
}

// IdentityClaims are carried by the identity provider's ID token.
type IdentityClaims struct {
	Name  string
	Email string
	jwt.StandardClaims
}

// ProfileID returns the authenticated profile stored by Validate.
func ProfileID(ctx context.Context) uint {
	id, _ := ctx.Value(profileKey).(uint)
	return id
}

func (s *Server) HandleLogin() httprouter.Handle {

	type Input struct {
		IDToken string
	}

	type Output struct {
		JWT     string
		Profile *domain.Profile
	}

	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		input := &Input{}

		err := s.Decode(w, r, input)
		if err != nil {
			s.Response(
				w, r,
				s.Error(http.StatusBadRequest, err.Error(), "HandleLogin", nil),
				http.StatusBadRequest,
			)
			return
		}

		identity := &IdentityClaims{}
		_, err = jwt.ParseWithClaims(input.IDToken, identity, s.hmacKey(s.Config.IdentitySecret))
		if err != nil || identity.Email == "" {
			msg := "ID token has no email."
			if err != nil {
				msg = err.Error()
			}
			s.Response(
				w, r,
				s.Error(http.StatusUnauthorized, msg, "HandleLogin", nil),
				http.StatusUnauthorized,
			)
			return
		}

		email := strings.ToLower(identity.Email)
		profile := &domain.Profile{}
		db := s.Db.WithContext(r.Context()).
			Where(&domain.Profile{Email: email}).
			Attrs(&domain.Profile{Name: identity.Name}).
			FirstOrCreate(profile)
		if db.Error != nil {
			s.Response(
				w, r,
				s.Error(http.StatusInternalServerError, db.Error.Error(), "HandleLogin", email),
				http.StatusInternalServerError,
			)
			return
		}

		accessString, err := s.issueToken(profile.ID)
		if err != nil {
			s.Response(
				w, r,
				s.Error(http.StatusInternalServerError, err.Error(), "HandleLogin", email),
				http.StatusInternalServerError,
			)
			return
		}

		log.Info().Uint("profile", profile.ID).Msg("profile logged in")
		s.Response(w, r, &Output{JWT: accessString, Profile: profile}, http.StatusOK)
	}
}

func (s *Server) HandleMe() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		profile := &domain.Profile{}
		db := s.Db.WithContext(r.Context()).First(profile, ProfileID(r.Context()))
		if db.Error != nil {
			s.Response(
				w, r,
				s.Error(http.StatusUnauthorized, "Profile no longer exists.", "HandleMe", nil),
				http.StatusUnauthorized,
			)
			return
		}
		s.Response(w, r, profile, http.StatusOK)
	}
}

// Validate requires a valid access token, from the Authorization header or
// the access_token query parameter, and hands a refreshed token back in the
// Authorization response header.
func (s *Server) Validate(h httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		token := bearerToken(r)
		if token == "" {
			s.Response(
				w, r,
				s.Error(http.StatusUnauthorized, "Bad Authorization header.", "Validate", nil),
				http.StatusUnauthorized,
			)
			return
		}

		claims := &Claims{}
		parsed, err := jwt.ParseWithClaims(token, claims, s.hmacKey(s.Config.AccessKey))
		if err != nil || !parsed.Valid {
			msg := "Invalid token."
			if err != nil {
				msg = err.Error()
			}
			s.Response(
				w, r,
				s.Error(http.StatusUnauthorized, msg, "Validate", nil),
				http.StatusUnauthorized,
			)
			return
		}

		accessString, err := s.issueToken(claims.Id)
		if err != nil {
			s.Response(
				w, r,
				s.Error(http.StatusInternalServerError, err.Error(), "Validate", nil),
				http.StatusInternalServerError,
			)
			return
		}

		w.Header().Set("Authorization", "Bearer "+accessString)

		ctx := context.WithValue(r.Context(), profileKey, claims.Id)
		r = r.WithContext(ctx)

		h(w, r, p)
	}
}

func (s *Server) issueToken(profileID uint) (string, error) {
	if s.Config.AccessKey == "" {
		return "", errors.New("ACCESS_KEY is not configured")
	}
	ttl := s.Config.TokenTTL
	if ttl <= 0 {
		ttl = 60 * time.Minute
	}
	accessToken := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Id: profileID,
		StandardClaims: jwt.StandardClaims{
			ExpiresAt: time.Now().Add(ttl).Unix(),
			IssuedAt:  time.Now().Unix(),
			Issuer:    tokenIssuer,
		},
	})
	return accessToken.SignedString([]byte(s.Config.AccessKey))
}

func (s *Server) hmacKey(secret string) jwt.Keyfunc {
	return func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("Unexpected signing method: %v", token.Header["alg"])
		}
		if secret == "" {
			return nil, errors.New("signing secret is not configured")
		}
		return []byte(secret), nil
	}
}

func bearerToken(r *http.Request) string {
	authHeader := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(authHeader) == 2 && strings.EqualFold(authHeader[0], "bearer") {
		return strings.TrimSpace(authHeader[1])
	}
	return r.URL.Query().Get("access_token")
}
