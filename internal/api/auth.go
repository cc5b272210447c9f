package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt"
	"golang.org/x/crypto/bcrypt"

	"github.com/carelink/carelink-server/internal/database"
	"github.com/carelink/carelink-server/internal/types"
)

const (
	defaultJwtExpiration = time.Hour * 24
	tokenCookieKey       = "token"
	subjectIdClaim       = "subject-id"
	expClaim             = "exp"
)

type contextKey string

const identityKey contextKey = "identity"

func WithIdentity(ctx context.Context, ident types.Identity) context.Context {
	return context.WithValue(ctx, identityKey, ident)
}

// CallerIdentity returns the verified identity assertion attached by
// the auth middleware.
func CallerIdentity(ctx context.Context) (types.Identity, bool) {
	ident, ok := ctx.Value(identityKey).(types.Identity)
	return ident, ok
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Email       string     `json:"email"`
	DisplayName string     `json:"display_name"`
	Password    string     `json:"password"`
	Role        types.Role `json:"role"`
	ProviderId  string     `json:"provider_id,omitempty"`
}

func (s *CareLinkApp) extractSubjectIdFromToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		return s.signingKey, nil
	})
	if err != nil {
		return "", fmt.Errorf("parse token: %w", err)
	}

	if !token.Valid {
		return "", fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("invalid token claims")
	}

	subjectId, ok := claims[subjectIdClaim].(string)
	if !ok {
		return "", fmt.Errorf("invalid subject id claim")
	}

	return subjectId, nil
}

// identityFromRequest resolves the request's JWT cookie into the
// identity assertion the core components consume.
func (s *CareLinkApp) identityFromRequest(r *http.Request) (types.Identity, error) {
	tokenCookie, err := r.Cookie(tokenCookieKey)
	if err != nil {
		return types.Identity{}, fmt.Errorf("get cookie: %w", err)
	}

	subjectId, err := s.extractSubjectIdFromToken(tokenCookie.Value)
	if err != nil {
		return types.Identity{}, err
	}

	subject, err := s.db.GetSubjectById(subjectId)
	if err != nil {
		return types.Identity{}, fmt.Errorf("load subject: %w", err)
	}

	return identityFor(subject), nil
}

func identityFor(subject database.Subject) types.Identity {
	return types.Identity{
		SubjectId:        subject.Id,
		Role:             types.Role(subject.Role),
		LinkedProviderId: subject.LinkedProviderId,
		DisplayName:      subject.DisplayName,
	}
}

func (s *CareLinkApp) createAccount(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.Email == "" || req.DisplayName == "" || req.Password == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.Role != types.RolePatient && req.Role != types.RoleDoctor {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.Role != types.RoleDoctor && req.ProviderId != "" {
		// only doctor logins may link a provider profile
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	pwdHash, err := hashPassword(req.Password)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	subject, err := s.db.CreateSubject(database.CreateSubjectParams{
		EmailAddress:     req.Email,
		DisplayName:      req.DisplayName,
		Role:             string(req.Role),
		LinkedProviderId: req.ProviderId,
		PasswordHash:     pwdHash,
	})
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, database.ErrDuplicate) {
			errResp = &ApiError{StatusCode: http.StatusConflict, Message: "account already exists"}
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusCreated, toSubject(subject))
}

func (s *CareLinkApp) login(w http.ResponseWriter, r *http.Request) {
	var lr LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&lr); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if lr.Email == "" || lr.Password == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	subject, err := s.db.GetSubjectByEmail(lr.Email)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewUnauthorizedError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if !verifyPassword(subject.PasswordHash, lr.Password) {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	token, err := s.createJwtForSession(subject.Id, defaultJwtExpiration)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	http.SetCookie(w, createJwtCookie(token, defaultJwtExpiration))

	s.writeJson(w, http.StatusOK, toSubject(subject))
}

func (s *CareLinkApp) session(w http.ResponseWriter, r *http.Request) {
	ident, ok := CallerIdentity(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, ident)
}

func (s *CareLinkApp) logout(w http.ResponseWriter, _ *http.Request) {
	// instruct browser to delete cookie by overwriting it with an expired token
	http.SetCookie(w, createJwtCookie("", time.Duration(time.Unix(0, 0).Unix())))
	w.WriteHeader(http.StatusNoContent)
}

func createJwtCookie(tokenString string, exp time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     tokenCookieKey,
		Value:    tokenString,
		Path:     "/",
		Expires:  time.Now().Add(exp),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	}
}

func hashPassword(passwd string) (string, error) {
	passwdHash, err := bcrypt.GenerateFromPassword([]byte(passwd), bcrypt.DefaultCost)
	return string(passwdHash), err
}

func verifyPassword(passwdHash, passwd string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(passwdHash), []byte(passwd))
	return err == nil
}

func (s *CareLinkApp) createJwtForSession(subjectId string, exp time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		subjectIdClaim: subjectId,
		expClaim:       time.Now().Add(exp).Unix(),
	})

	return token.SignedString(s.signingKey)
}

func toSubject(row database.Subject) types.Subject {
	return types.Subject{
		Id:               row.Id,
		EmailAddress:     row.EmailAddress,
		DisplayName:      row.DisplayName,
		Role:             types.Role(row.Role),
		LinkedProviderId: row.LinkedProviderId,
		CreatedAt:        row.CreatedAt,
	}
}
