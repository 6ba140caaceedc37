package conversations

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/ruangobrol/backend/internal/auth"
	"github.com/ruangobrol/backend/internal/delivery"
	"github.com/ruangobrol/backend/internal/httpx"
	"github.com/ruangobrol/backend/internal/store"
	"github.com/ruangobrol/backend/internal/unread"
	"github.com/ruangobrol/backend/internal/utils"
)

type Service struct {
	Store     *store.Store
	Engine    *delivery.Engine
	Counter   *unread.Counter
	NearbyTTL time.Duration
}

type privateReq struct {
	OtherUserID int64 `json:"other_user_id" binding:"required"`
}

type groupReq struct {
	Name        string  `json:"name" binding:"required"`
	Description string  `json:"description"`
	MemberIDs   []int64 `json:"member_ids" binding:"required"`
}

type addMembersReq struct {
	MemberIDs []int64 `json:"member_ids" binding:"required"`
}

type nearbyReq struct {
	OtherUserID int64 `json:"other_user_id" binding:"required"`
	TTLHours    int   `json:"ttl_hours"`
}

func Register(rg *gin.RouterGroup, s Service) {
	rg.POST("/private", s.createPrivate)
	rg.POST("/group", s.createGroup)
	rg.POST("/group/:id/members", s.addMembers)
	rg.POST("/nearby", s.createNearby)

	rg.GET("", s.listPrivate)
	rg.GET("/groups", s.listGroups)
	rg.GET("/archived", s.listArchived)
	rg.GET("/nearby", s.listNearby)

	rg.PATCH("/:id/archive", s.toggleArchive)
	rg.POST("/:id/clear-my-history", s.clearHistory)
}

func (s Service) createPrivate(c *gin.Context) {
	uid := auth.MustUserID(c)
	var req privateReq
	if err := c.ShouldBindJSON(&req); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			httpx.Err(c, http.StatusBadRequest, utils.ValidationErr(validationErrors))
			return
		}
		httpx.Err(c, http.StatusBadRequest, err.Error())
		return
	}

	id, created, err := s.Store.CreateDirect(c.Request.Context(), uid, req.OtherUserID)
	if errors.Is(err, store.ErrSelfConversation) {
		httpx.Err(c, http.StatusBadRequest, "cannot start a chat with yourself")
		return
	}
	if err != nil {
		httpx.Err(c, http.StatusBadRequest, "create failed")
		return
	}
	httpx.OK(c, gin.H{"conversation_id": id, "created": created})
}

func (s Service) createGroup(c *gin.Context) {
	uid := auth.MustUserID(c)
	var req groupReq
	if err := c.ShouldBindJSON(&req); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			httpx.Err(c, http.StatusBadRequest, utils.ValidationErr(validationErrors))
			return
		}
		httpx.Err(c, http.StatusBadRequest, err.Error())
		return
	}

	id, err := s.Store.CreateGroup(c.Request.Context(), uid, req.Name, req.Description, req.MemberIDs)
	if err != nil {
		httpx.Err(c, http.StatusBadRequest, "create failed")
		return
	}
	httpx.OK(c, gin.H{"conversation_id": id})
}

func (s Service) addMembers(c *gin.Context) {
	uid := auth.MustUserID(c)
	cid, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		httpx.Err(c, http.StatusBadRequest, "invalid conversation id")
		return
	}

	var req addMembersReq
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.Err(c, http.StatusBadRequest, err.Error())
		return
	}

	err = s.Store.AddMembers(c.Request.Context(), cid, uid, req.MemberIDs)
	if errors.Is(err, store.ErrNotAMember) {
		httpx.Err(c, http.StatusForbidden, "only admin can add members")
		return
	}
	if err != nil {
		httpx.Err(c, http.StatusBadRequest, "add failed")
		return
	}
	httpx.OK(c, gin.H{"ok": true})
}

func (s Service) createNearby(c *gin.Context) {
	uid := auth.MustUserID(c)
	var req nearbyReq
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.Err(c, http.StatusBadRequest, err.Error())
		return
	}

	ttl := s.NearbyTTL
	if req.TTLHours > 0 {
		ttl = time.Duration(req.TTLHours) * time.Hour
	}
	id, err := s.Store.CreateNearby(c.Request.Context(), uid, req.OtherUserID, time.Now().Add(ttl))
	if errors.Is(err, store.ErrSelfConversation) {
		httpx.Err(c, http.StatusBadRequest, "cannot start a chat with yourself")
		return
	}
	if err != nil {
		httpx.Err(c, http.StatusBadRequest, "create failed")
		return
	}
	httpx.OK(c, gin.H{"conversation_id": id})
}

func (s Service) listPrivate(c *gin.Context) {
	s.list(c, store.KindPrivate, false)
}

func (s Service) listGroups(c *gin.Context) {
	s.list(c, store.KindGroup, false)
}

func (s Service) listNearby(c *gin.Context) {
	s.list(c, store.KindNearby, false)
}

func (s Service) listArchived(c *gin.Context) {
	s.list(c, "", true)
}

func (s Service) list(c *gin.Context, kind string, archived bool) {
	uid := auth.MustUserID(c)
	loc := delivery.Location(c.Query("timezone"))

	items, err := s.Engine.Inbox(c.Request.Context(), uid, kind, archived, loc)
	if err != nil {
		httpx.Err(c, http.StatusInternalServerError, "failed to fetch conversations")
		return
	}
	httpx.OK(c, gin.H{"conversations": items})
}

func (s Service) toggleArchive(c *gin.Context) {
	uid := auth.MustUserID(c)
	cid, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		httpx.Err(c, http.StatusBadRequest, "invalid conversation id")
		return
	}

	archived, err := s.Store.ToggleArchive(c.Request.Context(), cid, uid)
	if errors.Is(err, store.ErrNotAMember) {
		httpx.Err(c, http.StatusForbidden, "not a member")
		return
	}
	if err != nil {
		httpx.Err(c, http.StatusBadRequest, "toggle failed")
		return
	}
	httpx.OK(c, gin.H{"archived": archived})
}

func (s Service) clearHistory(c *gin.Context) {
	uid := auth.MustUserID(c)
	cid, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		httpx.Err(c, http.StatusBadRequest, "invalid conversation id")
		return
	}

	err = s.Store.ClearHistory(c.Request.Context(), cid, uid, time.Now())
	if errors.Is(err, store.ErrNotAMember) {
		httpx.Err(c, http.StatusForbidden, "not a member")
		return
	}
	if err != nil {
		httpx.Err(c, http.StatusBadRequest, "clear failed")
		return
	}

	// the cursor moved, so the cached counter is stale
	if _, err := s.Counter.Refresh(c.Request.Context(), uid, cid); err != nil {
		httpx.Err(c, http.StatusInternalServerError, "refresh failed")
		return
	}
	httpx.OK(c, gin.H{"ok": true})
}
