// Session HTTP handlers.
//
//   - POST /sessions                       (open for a borrower)
//   - GET  /sessions, GET /sessions/{id}
//   - POST /sessions/{id}/operations       (scan; Idempotency-Key aware)
//   - GET  /sessions/{id}/operations       (pending ledger)
//   - POST /sessions/{id}/approve, POST /sessions/{id}/reject
//   - GET  /sessions/{id}/history
package handlers

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/room-access-backend/internal/domain"
	"github.com/tbourn/room-access-backend/internal/http/middleware"
	"github.com/tbourn/room-access-backend/internal/services"
	"github.com/tbourn/room-access-backend/internal/utils"
)

// HeaderReplayed marks a response served from the idempotency store.
const HeaderReplayed = "Idempotency-Replayed"

// ProposeRequest is one device scan.
type ProposeRequest struct {
	DeviceCode string `json:"device_code" binding:"required" example:"KEY-101"`
	Force      bool   `json:"force"       example:"false"`
}

// fingerprint identifies the scan a request asks for, so that a reused
// Idempotency-Key can be told apart from a genuine retry.
func (r ProposeRequest) fingerprint() string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(r.DeviceCode) + "|" + strconv.FormatBool(r.Force)))
	return hex.EncodeToString(sum[:])
}

// ListSessionsResponse is a page of sessions.
type ListSessionsResponse struct {
	Sessions   []domain.Session `json:"sessions"`
	Pagination Pagination       `json:"pagination"`
}

// RejectResponse reports how many staged operations were discarded.
type RejectResponse struct {
	Deleted int64 `json:"deleted"`
}

// OpenSession godoc
// @ID          openSession
// @Summary     Open a session for a borrower
// @Description Exactly one of user_id, login or card_id identifies the borrower. The caller supervises the session.
// @Tags        Sessions
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body      services.BorrowerRef  true  "Borrower"
// @Success     201   {object}  domain.Session
// @Failure     400   {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404   {object}  handlers.ErrorResponse  "Borrower not found"
// @Router      /sessions [post]
func (h *Handlers) OpenSession(c *gin.Context) {
	var ref services.BorrowerRef
	if err := c.ShouldBindJSON(&ref); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "borrower reference required")
		return
	}
	s, err := h.svc.Sessions.OpenFor(c.Request.Context(), ref, actor(c))
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, http.StatusCreated, s)
}

// ListSessions godoc
// @ID          listSessions
// @Summary     List sessions, newest first
// @Tags        Sessions
// @Produce     json
// @Security    BearerAuth
// @Param       status        query     string  false  "Status"  Enums(in_progress, approved, rejected)
// @Param       user_id       query     int     false  "Borrower ID"
// @Param       concierge_id  query     int     false  "Concierge ID"
// @Param       page          query     int     false  "Page number"     minimum(1) default(1)
// @Param       page_size     query     int     false  "Items per page"  minimum(1) maximum(100) default(20)
// @Success     200           {object}  handlers.ListSessionsResponse
// @Failure     400           {object}  handlers.ErrorResponse  "Bad request"
// @Router      /sessions [get]
func (h *Handlers) ListSessions(c *gin.Context) {
	f := services.SessionFilter{Status: domain.SessionStatus(c.Query("status"))}
	for name, dst := range map[string]*uint{"user_id": &f.UserID, "concierge_id": &f.ConciergeID} {
		v := c.Query(name)
		if v == "" {
			continue
		}
		id, valid := utils.ParseID(v)
		if !valid {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, name+" must be a positive integer")
			return
		}
		*dst = id
	}
	page, pageSize := clampPagination(c)
	list, total, err := h.svc.Sessions.List(c.Request.Context(), f, page, pageSize)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, http.StatusOK, ListSessionsResponse{Sessions: list, Pagination: newPagination(page, pageSize, total)})
}

// GetSession godoc
// @ID          getSession
// @Summary     Get a session
// @Tags        Sessions
// @Produce     json
// @Security    BearerAuth
// @Param       id   path      int  true  "Session ID"
// @Success     200  {object}  domain.Session
// @Failure     404  {object}  handlers.ErrorResponse  "Session not found"
// @Router      /sessions/{id} [get]
func (h *Handlers) GetSession(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	s, err := h.svc.Sessions.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, http.StatusOK, s)
}

// ProposeOperation godoc
// @ID          proposeOperation
// @Summary     Scan a device within a session
// @Description Stages the device's next operation (201) or, when it was already scanned in this session, cancels the staged row (200).
// @Description A retry carrying the same Idempotency-Key is answered with the stored response.
// @Description Reusing a key for a different scan, or while the first request is running, is a 409.
// @Tags        Sessions
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id               path      int                      true   "Session ID"
// @Param       Idempotency-Key  header    string                   false  "Idempotency key"
// @Param       body             body      handlers.ProposeRequest  true   "Scan"
// @Success     200              {object}  services.ProposalResult  "Cancelled"
// @Success     201              {object}  services.ProposalResult  "Staged"
// @Failure     400              {object}  handlers.ErrorResponse   "Bad request"
// @Failure     403              {object}  handlers.ErrorResponse   "Not entitled"
// @Failure     404              {object}  handlers.ErrorResponse   "Session or device not found"
// @Failure     409              {object}  handlers.ErrorResponse   "Session closed or key conflict"
// @Router      /sessions/{id}/operations [post]
func (h *Handlers) ProposeOperation(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	var req ProposeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "device_code required")
		return
	}

	ctx := c.Request.Context()
	key, hasKey := middleware.GetIdempotencyKey(c)
	store := h.svc.Idempotency
	if !hasKey {
		store = nil
	}
	scope := middleware.IdempotencyScope(c)

	if store != nil {
		rec, err := store.Begin(ctx, actor(c), scope, key, req.fingerprint())
		if err != nil {
			respondError(c, err)
			return
		}
		if rec != nil {
			c.Header(HeaderReplayed, "true")
			c.Data(rec.Status, "application/json; charset=utf-8", rec.Body)
			return
		}
	}

	res, err := h.svc.Admission.Propose(ctx, req.DeviceCode, id, req.Force)
	if err != nil {
		if store != nil {
			if rerr := store.Release(ctx, actor(c), scope, key); rerr != nil {
				middleware.LoggerFrom(c).Warn().Err(rerr).Msg("idempotency release failed")
			}
		}
		respondError(c, err)
		return
	}

	status := http.StatusCreated
	if res.Cancelled {
		status = http.StatusOK
	}
	if store == nil {
		ok(c, status, res)
		return
	}
	body, err := json.Marshal(res)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := store.Finish(ctx, actor(c), scope, key, status, body); err != nil {
		// The scan is committed; the key stays reserved until it expires.
		middleware.LoggerFrom(c).Warn().Err(err).Msg("idempotency save failed")
	}
	c.Data(status, "application/json; charset=utf-8", body)
}

// ListPending godoc
// @ID          listPending
// @Summary     Operations staged in a session
// @Tags        Sessions
// @Produce     json
// @Security    BearerAuth
// @Param       id   path      int  true  "Session ID"
// @Success     200  {array}   domain.UnapprovedOperation
// @Failure     404  {object}  handlers.ErrorResponse  "Session not found"
// @Router      /sessions/{id}/operations [get]
func (h *Handlers) ListPending(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	ops, err := h.svc.Admission.ListPending(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, http.StatusOK, ops)
}

// ApproveSession godoc
// @ID          approveSession
// @Summary     Approve a session
// @Description A concierge confirms with login+password or card. Every staged operation is committed to history atomically.
// @Tags        Sessions
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id    path      int                          true  "Session ID"
// @Param       body  body      handlers.CredentialsRequest  true  "Concierge credentials"
// @Success     200   {array}   domain.DeviceOperation
// @Failure     403   {object}  handlers.ErrorResponse  "Bad credentials or role"
// @Failure     404   {object}  handlers.ErrorResponse  "Session not found or nothing staged"
// @Failure     409   {object}  handlers.ErrorResponse  "Session closed or stale operation"
// @Router      /sessions/{id}/approve [post]
func (h *Handlers) ApproveSession(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	var req CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "credentials required")
		return
	}
	ops, err := h.svc.Approval.Approve(c.Request.Context(), id, req.credentials())
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, http.StatusOK, ops)
}

// RejectSession godoc
// @ID          rejectSession
// @Summary     Reject a session
// @Description Discards every staged operation and closes the session.
// @Tags        Sessions
// @Produce     json
// @Security    BearerAuth
// @Param       id   path      int  true  "Session ID"
// @Success     200  {object}  handlers.RejectResponse
// @Failure     404  {object}  handlers.ErrorResponse  "Session not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Session closed"
// @Router      /sessions/{id}/reject [post]
func (h *Handlers) RejectSession(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	n, err := h.svc.Approval.Reject(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, http.StatusOK, RejectResponse{Deleted: n})
}

// SessionHistory godoc
// @ID          sessionHistory
// @Summary     Operations committed by a session
// @Tags        Sessions
// @Produce     json
// @Security    BearerAuth
// @Param       id   path      int  true  "Session ID"
// @Success     200  {array}   domain.DeviceOperation
// @Failure     404  {object}  handlers.ErrorResponse  "Session not found"
// @Router      /sessions/{id}/history [get]
func (h *Handlers) SessionHistory(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	ctx := c.Request.Context()
	if _, err := h.svc.Sessions.Get(ctx, id); err != nil {
		respondError(c, err)
		return
	}
	ops, err := h.svc.History.ListForSession(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, http.StatusOK, ops)
}
