package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"

	"chessonline/internal/auth"
	"chessonline/internal/database"
	"chessonline/internal/models"
)

// UsersAPI bundles the user endpoints' collaborators.
type UsersAPI struct {
	Store *database.UserStore
	Log   *logrus.Logger
}

type createUserRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Username string `json:"username"`
}

// CreateUserHandler handles POST /user/create.
func CreateUserHandler(api *UsersAPI) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createUserRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid payload")
			return
		}
		if req.Email == "" || req.Password == "" {
			respondError(w, http.StatusBadRequest, "email and password are required")
			return
		}

		user := models.User{
			Email:    req.Email,
			Password: req.Password,
			Username: req.Username,
		}
		if err := api.Store.CreateUser(r.Context(), &user); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				respondError(w, http.StatusConflict, "email already exists")
				return
			}
			api.Log.WithError(err).Error("user creation failed")
			respondError(w, http.StatusInternalServerError, "error creating user")
			return
		}

		user.Password = ""
		respondCreated(w, "User created", user)
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginHandler handles POST /user/login. On success the session token is
// returned in the body and set as the auth_token cookie.
func LoginHandler(api *UsersAPI) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request payload")
			return
		}

		token, err := api.Store.AuthenticateUser(r.Context(), req.Email, req.Password)
		if err != nil {
			api.Log.WithError(err).Info("failed login attempt")
			respondError(w, http.StatusForbidden, "authentication failed")
			return
		}

		http.SetCookie(w, &http.Cookie{
			Name:     "auth_token",
			Value:    token,
			HttpOnly: true,
			Path:     "/",
			MaxAge:   auth.TokenExpireSec,
		})
		respondOK(w, "Login successful", map[string]string{"token": token})
	}
}

// MeHandler handles GET /user/me.
func MeHandler(api *UsersAPI) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r)
		if !ok {
			return
		}
		user, err := api.Store.GetUserByID(r.Context(), userID)
		if err != nil {
			respondError(w, http.StatusNotFound, "user not found")
			return
		}
		user.Password = ""
		respondOK(w, "Profile retrieved", user)
	}
}

type updateProfileRequest struct {
	Username  string `json:"username"`
	AvatarURL string `json:"avatar_url"`
}

// UpdateProfileHandler handles POST /user/profile.
func UpdateProfileHandler(api *UsersAPI) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r)
		if !ok {
			return
		}
		var req updateProfileRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid payload")
			return
		}
		if err := api.Store.UpdateProfile(r.Context(), userID, req.Username, req.AvatarURL); err != nil {
			api.Log.WithError(err).Error("profile update failed")
			respondError(w, http.StatusInternalServerError, "error updating profile")
			return
		}
		respondOK(w, "Profile updated", nil)
	}
}
