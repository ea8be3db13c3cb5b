package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/room-access-backend/internal/services"
	"github.com/tbourn/room-access-backend/internal/utils"
)

// GrantRequest reserves a room for a user over [starts_at, ends_at).
type GrantRequest struct {
	UserID   uint      `json:"user_id"   binding:"required" example:"7"`
	RoomID   uint      `json:"room_id"   binding:"required" example:"3"`
	StartsAt time.Time `json:"starts_at" binding:"required" example:"2026-03-10T08:00:00Z"`
	EndsAt   time.Time `json:"ends_at"   binding:"required" example:"2026-03-10T10:00:00Z"`
}

// ListPermissions godoc
// @ID          listPermissions
// @Summary     List room permissions
// @Description date selects permissions starting on that civil date in the site time zone; time selects those active at that instant.
// @Tags        Permissions
// @Produce     json
// @Security    BearerAuth
// @Param       user_id  query     int     false  "User ID"
// @Param       room_id  query     int     false  "Room ID"
// @Param       date     query     string  false  "YYYY-MM-DD"
// @Param       time     query     string  false  "RFC 3339 instant"
// @Success     200      {array}   repo.PermissionRow
// @Failure     400      {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404      {object}  handlers.ErrorResponse  "No permissions match"
// @Router      /permissions [get]
func (h *Handlers) ListPermissions(c *gin.Context) {
	var f services.PermissionFilter
	if v := c.Query("user_id"); v != "" {
		id, valid := utils.ParseID(v)
		if !valid {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "user_id must be a positive integer")
			return
		}
		f.UserID = &id
	}
	if v := c.Query("room_id"); v != "" {
		id, valid := utils.ParseID(v)
		if !valid {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "room_id must be a positive integer")
			return
		}
		f.RoomID = &id
	}
	if v := c.Query("date"); v != "" {
		d, err := time.ParseInLocation(time.DateOnly, v, h.svc.Permissions.Location())
		if err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "date must be YYYY-MM-DD")
			return
		}
		f.Date = &d
	}
	if v := c.Query("time"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "time must be RFC 3339")
			return
		}
		f.Time = &t
	}

	rows, err := h.svc.Permissions.List(c.Request.Context(), f)
	if err != nil {
		respondError(c, err)
		return
	}
	if len(rows) == 0 {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "no permissions match")
		return
	}
	ok(c, http.StatusOK, rows)
}

// GrantPermission godoc
// @ID          grantPermission
// @Summary     Grant a room permission
// @Tags        Permissions
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body      handlers.GrantRequest  true  "Permission"
// @Success     201   {object}  domain.Permission
// @Failure     400   {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404   {object}  handlers.ErrorResponse  "User or room not found"
// @Failure     409   {object}  handlers.ErrorResponse  "Overlapping permission"
// @Router      /permissions [post]
func (h *Handlers) GrantPermission(c *gin.Context) {
	var req GrantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "user_id, room_id, starts_at and ends_at required")
		return
	}
	p, err := h.svc.Permissions.Grant(c.Request.Context(), req.UserID, req.RoomID, req.StartsAt, req.EndsAt)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, http.StatusCreated, p)
}

// RevokePermission godoc
// @ID          revokePermission
// @Summary     Revoke a room permission
// @Tags        Permissions
// @Security    BearerAuth
// @Param       id   path  int  true  "Permission ID"
// @Success     204
// @Failure     404  {object}  handlers.ErrorResponse  "Permission not found"
// @Router      /permissions/{id} [delete]
func (h *Handlers) RevokePermission(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	if err := h.svc.Permissions.Revoke(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	noContent(c)
}
