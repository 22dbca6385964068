package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/mail"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
)

const (
	maxJSONBodyBytes  = 1 << 20
	minPasswordLength = 6
	maxPasswordBytes  = 72
	maxNameLength     = 100
)

// OutcomeRecorder counts auth operations by result. observability.Metrics
// satisfies it.
type OutcomeRecorder interface {
	ObserveAuth(operation, outcome string)
}

type nopRecorder struct{}

func (nopRecorder) ObserveAuth(string, string) {}

type Handler struct {
	service  *Service
	recorder OutcomeRecorder
}

func NewHandler(service *Service, recorder OutcomeRecorder) *Handler {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Handler{service: service, recorder: recorder}
}

// Register mounts the auth routes. Credential endpoints sit behind limiter
// when one is given; change-password requires a bearer access token.
func (h *Handler) Register(mux *http.ServeMux, signer TokenSigner, limiter *LoginRateLimiter) {
	limited := func(next http.HandlerFunc) http.Handler {
		if limiter == nil {
			return next
		}
		return limiter.Middleware(next)
	}

	mux.HandleFunc("POST /auth/signup", h.SignUp)
	mux.Handle("POST /auth/login", limited(h.Login))
	mux.HandleFunc("POST /auth/refresh", h.Refresh)
	mux.Handle("PUT /auth/change-password", Middleware(signer, http.HandlerFunc(h.ChangePassword)))
	mux.Handle("POST /auth/forgot-password", limited(h.ForgotPassword))
	mux.HandleFunc("POST /auth/reset-password", h.ResetPassword)
}

type signupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	Token string `json:"token"`
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	ResetToken string `json:"resetToken"`
	Password   string `json:"password"`
}

func (h *Handler) SignUp(w http.ResponseWriter, r *http.Request) {
	var body signupRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	body.Name = strings.TrimSpace(body.Name)
	if body.Name == "" || utf8.RuneCountInString(body.Name) > maxNameLength {
		writeError(w, http.StatusBadRequest, "name is required and must be at most 100 characters")
		return
	}
	if !validEmail(body.Email) {
		writeError(w, http.StatusBadRequest, "email format is invalid")
		return
	}
	if msg, ok := validatePassword(body.Password); !ok {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	msg, err := h.service.SignUp(r.Context(), body.Email, body.Name, body.Password)
	if err != nil {
		h.fail(w, "signup", err)
		return
	}

	h.recorder.ObserveAuth("signup", "success")
	writeJSON(w, http.StatusCreated, msg)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var body loginRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	if !validEmail(body.Email) {
		writeError(w, http.StatusBadRequest, "email format is invalid")
		return
	}
	if body.Password == "" {
		writeError(w, http.StatusBadRequest, "password is required")
		return
	}

	tokens, err := h.service.Login(r.Context(), body.Email, body.Password)
	if err != nil {
		h.fail(w, "login", err)
		return
	}

	h.recorder.ObserveAuth("login", "success")
	writeJSON(w, http.StatusOK, tokens)
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var body refreshRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	body.Token = strings.TrimSpace(body.Token)
	if _, err := uuid.Parse(body.Token); err != nil {
		writeError(w, http.StatusBadRequest, "token must be a UUID")
		return
	}

	tokens, err := h.service.RefreshTokens(r.Context(), body.Token)
	if err != nil {
		h.fail(w, "refresh", err)
		return
	}

	h.recorder.ObserveAuth("refresh", "success")
	writeJSON(w, http.StatusOK, tokens)
}

func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Invalid Token.")
		return
	}

	var body changePasswordRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	if body.OldPassword == "" {
		writeError(w, http.StatusBadRequest, "oldPassword is required")
		return
	}
	if msg, ok := validatePassword(body.NewPassword); !ok {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	msg, err := h.service.ChangePassword(r.Context(), userID, body.OldPassword, body.NewPassword)
	if err != nil {
		h.fail(w, "change_password", err)
		return
	}

	h.recorder.ObserveAuth("change_password", "success")
	writeJSON(w, http.StatusOK, msg)
}

func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var body forgotPasswordRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	if !validEmail(body.Email) {
		writeError(w, http.StatusBadRequest, "email format is invalid")
		return
	}

	msg, err := h.service.ForgotPassword(r.Context(), body.Email)
	if err != nil {
		h.fail(w, "forgot_password", err)
		return
	}

	h.recorder.ObserveAuth("forgot_password", "success")
	writeJSON(w, http.StatusOK, msg)
}

func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var body resetPasswordRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	body.ResetToken = strings.TrimSpace(body.ResetToken)
	if body.ResetToken == "" {
		writeError(w, http.StatusBadRequest, "resetToken is required")
		return
	}
	if msg, ok := validatePassword(body.Password); !ok {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	msg, err := h.service.ResetPassword(r.Context(), body.ResetToken, body.Password)
	if err != nil {
		h.fail(w, "reset_password", err)
		return
	}

	h.recorder.ObserveAuth("reset_password", "success")
	writeJSON(w, http.StatusOK, msg)
}

func (h *Handler) fail(w http.ResponseWriter, operation string, err error) {
	status, message := errorResponse(err)
	if status == http.StatusInternalServerError {
		sentry.CaptureException(err)
		h.recorder.ObserveAuth(operation, "error")
	} else {
		h.recorder.ObserveAuth(operation, "rejected")
	}
	writeError(w, status, message)
}

func errorResponse(err error) (int, string) {
	switch {
	case errors.Is(err, ErrDuplicateEmail):
		return http.StatusBadRequest, "Email already in use"
	case errors.Is(err, ErrInvalidCredentials):
		return http.StatusUnauthorized, "Wrong credentials given."
	case errors.Is(err, ErrInvalidRefreshToken):
		return http.StatusUnauthorized, "Invalid refresh token."
	case errors.Is(err, ErrInvalidResetToken):
		return http.StatusUnauthorized, "Invalid reset token"
	case errors.Is(err, ErrInvalidToken):
		return http.StatusUnauthorized, "Invalid Token."
	case errors.Is(err, ErrUserNotFound):
		return http.StatusNotFound, "User not found"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return false
	}
	return true
}

func validEmail(email string) bool {
	email = strings.TrimSpace(email)
	if email == "" {
		return false
	}
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

func validatePassword(password string) (string, bool) {
	if utf8.RuneCountInString(password) < minPasswordLength {
		return "password must be at least 6 characters", false
	}
	if len(password) > maxPasswordBytes {
		return "password must be at most 72 bytes", false
	}
	if !strings.ContainsFunc(password, unicode.IsDigit) {
		return "password must contain at least one number", false
	}
	return "", true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
