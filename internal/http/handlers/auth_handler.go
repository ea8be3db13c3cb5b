// Auth HTTP handlers.
//
//   - POST /auth/login   (login+password or card id → bearer token)
//   - POST /auth/logout  (revoke the presented token)
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/room-access-backend/internal/http/middleware"
	"github.com/tbourn/room-access-backend/internal/services"
)

// CredentialsRequest identifies an account by login+password or by card.
type CredentialsRequest struct {
	Login    string `json:"login,omitempty"    example:"carl"`
	Password string `json:"password,omitempty" example:"front-desk-pass"`
	CardID   string `json:"card_id,omitempty"  example:"CARD-0042"`
}

func (r CredentialsRequest) credentials() services.Credentials {
	return services.Credentials{Login: r.Login, Password: r.Password, CardID: r.CardID}
}

// TokenResponse carries a bearer token.
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Login godoc
// @ID          login
// @Summary     Obtain a bearer token
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.CredentialsRequest  true  "Credentials"
// @Success     200   {object}  handlers.TokenResponse
// @Failure     400   {object}  handlers.ErrorResponse  "Bad request"
// @Failure     403   {object}  handlers.ErrorResponse  "Invalid credentials"
// @Router      /auth/login [post]
func (h *Handlers) Login(c *gin.Context) {
	var req CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "credentials required")
		return
	}
	token, exp, err := h.svc.Auth.Login(c.Request.Context(), req.credentials())
	if err != nil {
		respondError(c, err)
		return
	}
	middleware.NoStore(c)
	ok(c, http.StatusOK, TokenResponse{Token: token, ExpiresAt: exp})
}

// Logout godoc
// @ID          logout
// @Summary     Revoke the current bearer token
// @Tags        Auth
// @Security    BearerAuth
// @Success     204
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Router      /auth/logout [post]
func (h *Handlers) Logout(c *gin.Context) {
	if err := h.svc.Auth.Revoke(c.Request.Context(), middleware.BearerToken(c)); err != nil {
		respondError(c, err)
		return
	}
	noContent(c)
}
