// Room and device HTTP handlers.
//
//   - POST /rooms, GET /rooms, GET /rooms/{number}
//   - POST /devices, GET /devices (ETag), GET /devices/{code}
//   - GET  /devices/{code}/history
package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/room-access-backend/internal/domain"
	"github.com/tbourn/room-access-backend/internal/repo"
	"github.com/tbourn/room-access-backend/internal/services"
)

// CreateRoomRequest registers a room.
type CreateRoomRequest struct {
	Number string `json:"number" binding:"required" example:"B12"`
}

// CreateDeviceRequest registers a device in a room.
type CreateDeviceRequest struct {
	Code       string               `json:"code"        binding:"required" example:"KEY-101"`
	RoomNumber string               `json:"room_number" binding:"required" example:"101"`
	Type       domain.DeviceType    `json:"type"        binding:"required" example:"key"`
	Version    domain.DeviceVersion `json:"version"     example:"primary"`
}

// ListDevicesResponse is the composite device listing.
type ListDevicesResponse struct {
	Devices []repo.DeviceRow `json:"devices"`
}

// DeviceHistoryResponse is a page of a device's audit trail.
type DeviceHistoryResponse struct {
	Operations []domain.DeviceOperation `json:"operations"`
	Pagination Pagination               `json:"pagination"`
}

// CreateRoom godoc
// @ID          createRoom
// @Summary     Register a room
// @Tags        Rooms
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body      handlers.CreateRoomRequest  true  "Room"
// @Success     201   {object}  domain.Room
// @Failure     400   {object}  handlers.ErrorResponse  "Bad request"
// @Failure     409   {object}  handlers.ErrorResponse  "Room exists"
// @Router      /rooms [post]
func (h *Handlers) CreateRoom(c *gin.Context) {
	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "number required")
		return
	}
	room, err := h.svc.Registry.CreateRoom(c.Request.Context(), req.Number)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, http.StatusCreated, room)
}

// ListRooms godoc
// @ID          listRooms
// @Summary     List rooms in natural order
// @Tags        Rooms
// @Produce     json
// @Security    BearerAuth
// @Success     200  {array}   domain.Room
// @Router      /rooms [get]
func (h *Handlers) ListRooms(c *gin.Context) {
	rooms, err := h.svc.Registry.ListRooms(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, http.StatusOK, rooms)
}

// GetRoom godoc
// @ID          getRoom
// @Summary     Get a room by number
// @Tags        Rooms
// @Produce     json
// @Security    BearerAuth
// @Param       number  path      string  true  "Room number"
// @Success     200     {object}  domain.Room
// @Failure     404     {object}  handlers.ErrorResponse  "Room not found"
// @Router      /rooms/{number} [get]
func (h *Handlers) GetRoom(c *gin.Context) {
	room, err := h.svc.Registry.GetRoomByNumber(c.Request.Context(), c.Param("number"))
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, http.StatusOK, room)
}

// CreateDevice godoc
// @ID          createDevice
// @Summary     Register a device
// @Tags        Devices
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body      handlers.CreateDeviceRequest  true  "Device"
// @Success     201   {object}  domain.Device
// @Failure     400   {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404   {object}  handlers.ErrorResponse  "Room not found"
// @Failure     409   {object}  handlers.ErrorResponse  "Device exists"
// @Router      /devices [post]
func (h *Handlers) CreateDevice(c *gin.Context) {
	var req CreateDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "code, room_number and type required")
		return
	}
	if req.Version == "" {
		req.Version = domain.VersionPrimary
	}
	dev, err := h.svc.Registry.CreateDevice(c.Request.Context(), req.Code, req.RoomNumber, req.Type, req.Version)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, http.StatusCreated, dev)
}

// ListDevices godoc
// @ID          listDevices
// @Summary     List devices with their state
// @Description Ordered by natural room number, then type, then version. Supports If-None-Match.
// @Tags        Devices
// @Produce     json
// @Security    BearerAuth
// @Param       room  query     string  false  "Room number"
// @Param       type  query     string  false  "Device type"  Enums(key, microphone, remote)
// @Success     200   {object}  handlers.ListDevicesResponse
// @Success     304
// @Failure     400   {object}  handlers.ErrorResponse  "Bad request"
// @Router      /devices [get]
func (h *Handlers) ListDevices(c *gin.Context) {
	ctx := c.Request.Context()
	f := services.DeviceFilter{RoomNumber: c.Query("room"), Type: domain.DeviceType(c.Query("type"))}

	// ETag pre-check (best effort).
	if n, stamp, err := h.svc.Registry.Stats(ctx); err == nil {
		etag := fmt.Sprintf(`W/"devices:%d:%s:%s:%s"`, n, stamp, f.RoomNumber, f.Type)
		c.Header("ETag", etag)
		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	rows, err := h.svc.Registry.ListDevices(ctx, f)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, http.StatusOK, ListDevicesResponse{Devices: rows})
}

// GetDevice godoc
// @ID          getDevice
// @Summary     Get a device by code
// @Tags        Devices
// @Produce     json
// @Security    BearerAuth
// @Param       code  path      string  true  "Device code"
// @Success     200   {object}  domain.Device
// @Failure     404   {object}  handlers.ErrorResponse  "Device not found"
// @Router      /devices/{code} [get]
func (h *Handlers) GetDevice(c *gin.Context) {
	dev, err := h.svc.Registry.GetDevice(c.Request.Context(), c.Param("code"))
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, http.StatusOK, dev)
}

// DeviceHistory godoc
// @ID          deviceHistory
// @Summary     A device's approved operations, newest first
// @Tags        Devices
// @Produce     json
// @Security    BearerAuth
// @Param       code       path      string  true   "Device code"
// @Param       page       query     int     false  "Page number"     minimum(1) default(1)
// @Param       page_size  query     int     false  "Items per page"  minimum(1) maximum(100) default(20)
// @Success     200        {object}  handlers.DeviceHistoryResponse
// @Failure     404        {object}  handlers.ErrorResponse  "Device not found"
// @Router      /devices/{code}/history [get]
func (h *Handlers) DeviceHistory(c *gin.Context) {
	ctx := c.Request.Context()
	dev, err := h.svc.Registry.GetDevice(ctx, c.Param("code"))
	if err != nil {
		respondError(c, err)
		return
	}
	page, pageSize := clampPagination(c)
	ops, total, err := h.svc.History.ListForDevice(ctx, dev.ID, page, pageSize)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, http.StatusOK, DeviceHistoryResponse{Operations: ops, Pagination: newPagination(page, pageSize, total)})
}
