package handler

import (
	"encoding/json"
	"net/http"

	"go-identity-service/internal/model"
	"go-identity-service/internal/service"
	"go-identity-service/pkg/apierror"
)

// AdminHandler serves the role-restricted management surface.
type AdminHandler struct {
	credentials *service.CredentialService
}

func NewAdminHandler(credentials *service.CredentialService) *AdminHandler {
	return &AdminHandler{credentials: credentials}
}

func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.credentials.ListUsers(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, users)
}

// CreateUser is the admin-driven registration; unlike the public route it
// honors the requested role. The account still starts unverified and goes
// through the normal email confirmation.
func (h *AdminHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var payload model.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, apierror.New("BAD_REQUEST", "invalid JSON body", "", http.StatusBadRequest))
		return
	}

	role, err := model.ParseRole(payload.Role)
	if err != nil {
		writeError(w, err)
		return
	}

	user, err := h.credentials.Register(r.Context(), service.RegisterInput{
		Username:  payload.Username,
		Email:     payload.Email,
		Password:  payload.Password,
		FirstName: payload.FirstName,
		LastName:  payload.LastName,
		Role:      role,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusCreated, user)
}
