package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/whatsassist/gateway/internal/middleware"
	"github.com/whatsassist/gateway/internal/models"
	"github.com/whatsassist/gateway/internal/service"
)

type AuthHandlers struct {
	credentials   *service.CredentialService
	otpService    *service.OTPService
	jwtService    *service.JWTService
	notifier      service.Notifier
	secureCookies bool
	logger        *logrus.Logger
}

func NewAuthHandlers(
	credentials *service.CredentialService,
	otpService *service.OTPService,
	jwtService *service.JWTService,
	notifier service.Notifier,
	secureCookies bool,
	logger *logrus.Logger,
) *AuthHandlers {
	return &AuthHandlers{
		credentials:   credentials,
		otpService:    otpService,
		jwtService:    jwtService,
		notifier:      notifier,
		secureCookies: secureCookies,
		logger:        logger,
	}
}

type LoginRequest struct {
	Password string   `json:"password"`
	OTP      OTPValue `json:"otp"`
}

// OTPValue is the otp member of a login body. Absent, null, "", 0 and false
// all mean "send me a code". Any other value is a submitted code, and only a
// JSON string can ever match one.
type OTPValue struct {
	Code      string
	Submitted bool
}

func (v *OTPValue) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	switch val := raw.(type) {
	case nil:
		*v = OTPValue{}
	case string:
		*v = OTPValue{Code: val, Submitted: val != ""}
	case bool:
		*v = OTPValue{Submitted: val}
	case float64:
		*v = OTPValue{Submitted: val != 0}
	default:
		*v = OTPValue{Submitted: true}
	}
	return nil
}

type LoginResponse struct {
	Message string `json:"message"`
	Token   string `json:"token,omitempty"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

// Login runs both steps of sign-in. Without an otp it issues and mails a
// code; with one it verifies the code and sets the session cookie.
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	identity, err := h.credentials.Authenticate(req.Password)
	if err != nil {
		h.logger.WithError(err).WithField("remote", r.RemoteAddr).Warn("Login rejected")
		respondWithMessage(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	if !req.OTP.Submitted {
		h.sendCode(w, r, identity)
		return
	}

	if req.OTP.Code == "" {
		h.logger.WithField("remote", r.RemoteAddr).Info("Login rejected: OTP is not a string")
		respondWithMessage(w, http.StatusUnauthorized, "Invalid OTP")
		return
	}

	if err := h.otpService.Verify(r.Context(), identity, req.OTP.Code); err != nil {
		h.logger.WithError(err).Info("Login rejected: OTP verification failed")
		respondWithMessage(w, http.StatusUnauthorized, "Invalid OTP")
		return
	}

	token, expiresAt, err := h.jwtService.Mint(identity)
	if err != nil {
		h.logger.WithError(err).Error("Failed to mint session token")
		respondWithMessage(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	http.SetCookie(w, h.sessionCookie(token, expiresAt))
	h.logger.WithField("identity", identity).Info("Login successful")

	respondWithJSON(w, http.StatusOK, LoginResponse{
		Message: "Login successful",
		Token:   token,
	})
}

func (h *AuthHandlers) sendCode(w http.ResponseWriter, r *http.Request, identity string) {
	code, err := h.otpService.Issue(r.Context(), identity)
	if err != nil {
		h.logger.WithError(err).Error("Failed to issue OTP")
		respondWithMessage(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	// The code stays stored if delivery fails; the next request replaces it.
	if err := h.notifier.SendOTP(r.Context(), identity, code); err != nil {
		h.logger.WithError(err).Error("Failed to deliver OTP")
		respondWithMessage(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	respondWithMessage(w, http.StatusOK, "OTP sent successfully")
}

// Logout removes the cookie. The token itself stays valid until it expires.
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.AuthCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteStrictMode,
	})

	respondWithMessage(w, http.StatusOK, "Logged out successfully")
}

func (h *AuthHandlers) Session(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		respondWithMessage(w, http.StatusUnauthorized, "Invalid token")
		return
	}

	session := models.Session{Email: claims.Email}
	if claims.IssuedAt != nil {
		session.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		session.ExpiresAt = claims.ExpiresAt.Time
	}
	respondWithJSON(w, http.StatusOK, session)
}

func (h *AuthHandlers) sessionCookie(token string, expiresAt time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     middleware.AuthCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.jwtService.Expiry().Seconds()),
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteStrictMode,
	}
}

func respondWithJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func respondWithMessage(w http.ResponseWriter, status int, message string) {
	respondWithJSON(w, status, MessageResponse{Message: message})
}
