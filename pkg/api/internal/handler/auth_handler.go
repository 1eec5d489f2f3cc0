package handler

import (
	"errors"
	"net"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/UnAfraid/wg-gateway/pkg/auth"
	"github.com/UnAfraid/wg-gateway/pkg/user"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type tokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int    `json:"expiresIn"`
}

type AuthHandler struct {
	sessionService auth.SessionService
}

func NewAuthHandler(sessionService auth.SessionService) *AuthHandler {
	return &AuthHandler{
		sessionService: sessionService,
	}
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	request, err := decodeBody[loginRequest](w, r)
	if err != nil {
		writeMessage(w, http.StatusUnauthorized, "Invalid credentials", "")
		return
	}

	tokenPair, err := h.sessionService.Login(r.Context(), request.Username, request.Password, remoteHost(r))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, toTokenResponse(tokenPair))
	case errors.Is(err, auth.ErrRateLimited):
		w.Header().Set("Retry-After", "60")
		writeMessage(w, http.StatusTooManyRequests, "Too many login attempts. Try again later.", "")
	case errors.Is(err, user.ErrInvalidCredentials), errors.Is(err, auth.ErrCredentialsRequired):
		writeMessage(w, http.StatusUnauthorized, "Invalid credentials", "")
	default:
		logrus.
			WithError(err).
			Error("login failed")
		writeMessage(w, http.StatusInternalServerError, "internal error", "")
	}
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	request, err := decodeBody[refreshRequest](w, r)
	if err != nil {
		writeMessage(w, http.StatusUnauthorized, "Refresh token is required", "")
		return
	}

	tokenPair, err := h.sessionService.Refresh(r.Context(), request.RefreshToken)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, toTokenResponse(tokenPair))
	case errors.Is(err, auth.ErrRefreshTokenRequired):
		writeMessage(w, http.StatusUnauthorized, "Refresh token is required", "")
	case errors.Is(err, auth.ErrInvalidRefreshToken):
		writeMessage(w, http.StatusUnauthorized, "Invalid or expired refresh token", "")
	default:
		logrus.
			WithError(err).
			Error("token refresh failed")
		writeMessage(w, http.StatusInternalServerError, "internal error", "")
	}
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	request, err := decodeBody[refreshRequest](w, r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "Refresh token is required", "")
		return
	}

	err = h.sessionService.Logout(r.Context(), request.RefreshToken)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusOK)
	case errors.Is(err, auth.ErrRefreshTokenRequired):
		writeMessage(w, http.StatusBadRequest, "Refresh token is required", "")
	default:
		logrus.
			WithError(err).
			Error("logout failed")
		writeMessage(w, http.StatusInternalServerError, "internal error", "")
	}
}

func toTokenResponse(tokenPair *auth.TokenPair) *tokenResponse {
	return &tokenResponse{
		AccessToken:  tokenPair.AccessToken,
		RefreshToken: tokenPair.RefreshToken,
		ExpiresIn:    int(tokenPair.ExpiresIn.Seconds()),
	}
}

// remoteHost strips the port from RemoteAddr. With the RealIP middleware in
// front it may already be a bare address.
func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
