package auth

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iurnickita/posprint/internal/auth/config"
	"github.com/iurnickita/posprint/internal/token"
)

type Auth interface {
	Login(w http.ResponseWriter, r *http.Request)
	Middleware(h http.HandlerFunc) http.HandlerFunc
}

const (
	StaffKey         = "X-Staff"
	cookieStaffToken = "posprintStaffToken"
	defaultTokenTTL  = 12 * time.Hour
)

var (
	ErrNoSession = errors.New("staff session required")
	ErrWrongPIN  = errors.New("wrong PIN")
)

type auth struct {
	cfg    config.Config
	zaplog *zap.Logger
}

func NewAuth(cfg config.Config, zaplog *zap.Logger) Auth {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = defaultTokenTTL
	}
	// без заданного секрета токены живут до перезапуска
	if cfg.TokenSecret == "" {
		cfg.TokenSecret = uuid.NewString()
	}
	if zaplog == nil {
		zaplog = zap.NewNop()
	}
	return &auth{cfg: cfg, zaplog: zaplog}
}

type loginJSONRequest struct {
	PIN   string `json:"pin"`
	Staff string `json:"staff"`
}

type loginJSONResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (a *auth) Login(w http.ResponseWriter, r *http.Request) {
	var req loginJSONRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, loginJSONResponse{Error: err.Error()})
		return
	}

	if a.cfg.StaffPIN == "" {
		// вход не настроен, сессия не нужна
		writeJSON(w, http.StatusOK, loginJSONResponse{Success: true})
		return
	}
	if subtle.ConstantTimeCompare([]byte(req.PIN), []byte(a.cfg.StaffPIN)) != 1 {
		a.zaplog.Warn("staff login rejected", zap.String("remote", r.RemoteAddr))
		writeJSON(w, http.StatusUnauthorized, loginJSONResponse{Error: ErrWrongPIN.Error()})
		return
	}

	staff := strings.TrimSpace(req.Staff)
	if staff == "" {
		staff = "staff"
	}
	tokenString, err := token.BuildJWTString(a.cfg.TokenSecret, staff, a.cfg.TokenTTL)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, loginJSONResponse{Error: err.Error()})
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     cookieStaffToken,
		Value:    tokenString,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Now().Add(a.cfg.TokenTTL),
	})
	writeJSON(w, http.StatusOK, loginJSONResponse{Success: true, Token: tokenString})
}

func (a *auth) Middleware(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if a.cfg.StaffPIN == "" {
			h.ServeHTTP(w, r)
			return
		}

		// получение сотрудника
		staff, err := a.getStaff(r)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, loginJSONResponse{Error: ErrNoSession.Error()})
			return
		}

		// записываем
		r.Header.Set(StaffKey, staff)

		// передаём управление хендлеру
		h.ServeHTTP(w, r)
	}
}

// Токен берется из cookie или заголовка Authorization: Bearer
func (a *auth) getStaff(r *http.Request) (string, error) {
	var tokenString string
	if tokenCookie, err := r.Cookie(cookieStaffToken); err == nil {
		tokenString = tokenCookie.Value
	} else if bearer, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		tokenString = bearer
	}
	if tokenString == "" {
		return "", ErrNoSession
	}
	return token.GetStaff(a.cfg.TokenSecret, tokenString)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
