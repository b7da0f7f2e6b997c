package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"go-identity-service/internal/middleware"
	"go-identity-service/internal/model"
	"go-identity-service/internal/otp"
	"go-identity-service/internal/service"
	"go-identity-service/pkg/apierror"
)

type AuthHandler struct {
	credentials *service.CredentialService
	engine      *otp.Engine
}

func NewAuthHandler(credentials *service.CredentialService, engine *otp.Engine) *AuthHandler {
	return &AuthHandler{credentials: credentials, engine: engine}
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var payload model.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, apierror.New("BAD_REQUEST", "invalid JSON body", "", http.StatusBadRequest))
		return
	}

	// Self-registration ignores the requested role; only the admin surface
	// may assign one.
	user, err := h.credentials.Register(r.Context(), service.RegisterInput{
		Username:  payload.Username,
		Email:     payload.Email,
		Password:  payload.Password,
		FirstName: payload.FirstName,
		LastName:  payload.LastName,
		Role:      model.RoleUser,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusCreated, user)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var payload model.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, apierror.New("BAD_REQUEST", "invalid JSON body", "", http.StatusBadRequest))
		return
	}

	tokens, err := h.credentials.Login(r.Context(), payload.UsernameOrEmail, payload.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, tokens)
}

// GenerateOTP re-sends the email verification code. It refuses while an
// unexpired code exists, so it cannot be driven to flood an inbox.
func (h *AuthHandler) GenerateOTP(w http.ResponseWriter, r *http.Request) {
	email, ok := decodeEmail(w, r)
	if !ok {
		return
	}

	if err := h.engine.Regenerate(r.Context(), email, otp.PurposeVerifyEmail); err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, map[string]any{"sent": true})
}

func (h *AuthHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	payload, ok := decodeVerify(w, r)
	if !ok {
		return
	}

	verified, err := h.engine.Verify(r.Context(), payload.Email, otp.PurposeVerifyEmail, payload.Code)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, model.VerificationResult{Verified: verified})
}

func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	email, ok := decodeEmail(w, r)
	if !ok {
		return
	}

	if err := h.engine.Issue(r.Context(), email, otp.PurposeResetPassword); err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, map[string]any{"sent": true})
}

// VerifyResetOTP reports whether a reset code is currently valid without
// consuming it; only the password update clears the code.
func (h *AuthHandler) VerifyResetOTP(w http.ResponseWriter, r *http.Request) {
	payload, ok := decodeVerify(w, r)
	if !ok {
		return
	}

	valid, err := h.engine.Verify(r.Context(), payload.Email, otp.PurposeResetPassword, payload.Code)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, model.ResetOTPResult{Valid: valid})
}

func (h *AuthHandler) UpdatePassword(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var payload model.UpdatePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, apierror.New("BAD_REQUEST", "invalid JSON body", "", http.StatusBadRequest))
		return
	}

	updated, err := h.credentials.UpdatePasswordWithOTP(r.Context(), payload.Email, payload.Code, payload.NewPassword)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, model.PasswordUpdateResult{Updated: updated})
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, apierror.New("UNAUTHORIZED", "authentication required", "", http.StatusUnauthorized))
		return
	}

	profile, err := h.credentials.Profile(r.Context(), identity.Subject)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, profile)
}

func decodeEmail(w http.ResponseWriter, r *http.Request) (string, bool) {
	defer r.Body.Close()

	var payload model.OTPRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, apierror.New("BAD_REQUEST", "invalid JSON body", "", http.StatusBadRequest))
		return "", false
	}

	email := strings.TrimSpace(payload.Email)
	if email == "" {
		writeError(w, apierror.New("BAD_REQUEST", "email is required", "email", http.StatusBadRequest))
		return "", false
	}
	return email, true
}

func decodeVerify(w http.ResponseWriter, r *http.Request) (model.VerifyOTPRequest, bool) {
	defer r.Body.Close()

	var payload model.VerifyOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, apierror.New("BAD_REQUEST", "invalid JSON body", "", http.StatusBadRequest))
		return model.VerifyOTPRequest{}, false
	}

	payload.Email = strings.TrimSpace(payload.Email)
	payload.Code = strings.TrimSpace(payload.Code)
	if payload.Email == "" || payload.Code == "" {
		writeError(w, apierror.New("BAD_REQUEST", "email and code are required", "", http.StatusBadRequest))
		return model.VerifyOTPRequest{}, false
	}
	return payload, true
}
