// User and note HTTP handlers.
//
//   - POST /users                     (admin)
//   - POST /guests                    (concierge)
//   - GET  /users/{id}, GET /users/{id}/devices
//   - GET|POST /users/{id}/notes, GET|POST /devices/{code}/notes
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/room-access-backend/internal/services"
)

// NoteRequest is the body of a new note.
type NoteRequest struct {
	Body string `json:"body" binding:"required" example:"Returned with a cracked tag"`
}

// CreateAccount godoc
// @ID          createAccount
// @Summary     Register a user account
// @Tags        Users
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body      services.NewAccount  true  "Account"
// @Success     201   {object}  domain.User
// @Failure     400   {object}  handlers.ErrorResponse  "Bad request"
// @Failure     409   {object}  handlers.ErrorResponse  "Login or card taken"
// @Router      /users [post]
func (h *Handlers) CreateAccount(c *gin.Context) {
	var req services.NewAccount
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid account body")
		return
	}
	u, err := h.svc.Users.CreateAccount(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, http.StatusCreated, u)
}

// CreateGuest godoc
// @ID          createGuest
// @Summary     Register a guest borrower
// @Tags        Users
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body      services.NewGuest  true  "Guest"
// @Success     201   {object}  domain.User
// @Failure     400   {object}  handlers.ErrorResponse  "Bad request"
// @Router      /guests [post]
func (h *Handlers) CreateGuest(c *gin.Context) {
	var req services.NewGuest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid guest body")
		return
	}
	u, err := h.svc.Users.CreateGuest(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, http.StatusCreated, u)
}

// GetUser godoc
// @ID          getUser
// @Summary     Get a borrower
// @Tags        Users
// @Produce     json
// @Security    BearerAuth
// @Param       id   path      int  true  "User ID"
// @Success     200  {object}  domain.User
// @Failure     404  {object}  handlers.ErrorResponse  "User not found"
// @Router      /users/{id} [get]
func (h *Handlers) GetUser(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	b, err := h.svc.Users.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, http.StatusOK, userView(b))
}

// HeldDevices godoc
// @ID          heldDevices
// @Summary     Devices a user currently holds
// @Description The latest take of every device whose most recent operation was taken by this user.
// @Tags        Users
// @Produce     json
// @Security    BearerAuth
// @Param       id   path      int  true  "User ID"
// @Success     200  {array}   domain.DeviceOperation
// @Failure     404  {object}  handlers.ErrorResponse  "User not found"
// @Router      /users/{id}/devices [get]
func (h *Handlers) HeldDevices(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	ctx := c.Request.Context()
	if _, err := h.svc.Users.Get(ctx, id); err != nil {
		respondError(c, err)
		return
	}
	ops, err := h.svc.History.ListHeldBy(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, http.StatusOK, ops)
}

// ListUserNotes godoc
// @ID          listUserNotes
// @Summary     Notes attached to a user
// @Tags        Notes
// @Produce     json
// @Security    BearerAuth
// @Param       id   path      int  true  "User ID"
// @Success     200  {array}   domain.UserNote
// @Failure     404  {object}  handlers.ErrorResponse  "User not found"
// @Router      /users/{id}/notes [get]
func (h *Handlers) ListUserNotes(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	notes, err := h.svc.Notes.ListUserNotes(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, http.StatusOK, notes)
}

// AddUserNote godoc
// @ID          addUserNote
// @Summary     Attach a note to a user
// @Tags        Notes
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id    path      int                      true  "User ID"
// @Param       body  body      handlers.NoteRequest     true  "Note"
// @Success     201   {object}  domain.UserNote
// @Failure     400   {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404   {object}  handlers.ErrorResponse  "User not found"
// @Router      /users/{id}/notes [post]
func (h *Handlers) AddUserNote(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	var req NoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "body required")
		return
	}
	author := actor(c)
	n, err := h.svc.Notes.AddUserNote(c.Request.Context(), id, &author, req.Body)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, http.StatusCreated, n)
}

// ListDeviceNotes godoc
// @ID          listDeviceNotes
// @Summary     Notes attached to a device
// @Tags        Notes
// @Produce     json
// @Security    BearerAuth
// @Param       code  path      string  true  "Device code"
// @Success     200   {array}   domain.DeviceNote
// @Failure     404   {object}  handlers.ErrorResponse  "Device not found"
// @Router      /devices/{code}/notes [get]
func (h *Handlers) ListDeviceNotes(c *gin.Context) {
	notes, err := h.svc.Notes.ListDeviceNotes(c.Request.Context(), c.Param("code"))
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, http.StatusOK, notes)
}

// AddDeviceNote godoc
// @ID          addDeviceNote
// @Summary     Attach a note to a device
// @Tags        Notes
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       code  path      string                true  "Device code"
// @Param       body  body      handlers.NoteRequest  true  "Note"
// @Success     201   {object}  domain.DeviceNote
// @Failure     400   {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404   {object}  handlers.ErrorResponse  "Device not found"
// @Router      /devices/{code}/notes [post]
func (h *Handlers) AddDeviceNote(c *gin.Context) {
	var req NoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "body required")
		return
	}
	author := actor(c)
	n, err := h.svc.Notes.AddDeviceNote(c.Request.Context(), c.Param("code"), &author, req.Body)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, http.StatusCreated, n)
}

