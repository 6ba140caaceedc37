package messages

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/ruangobrol/backend/internal/auth"
	"github.com/ruangobrol/backend/internal/delivery"
	"github.com/ruangobrol/backend/internal/httpx"
	"github.com/ruangobrol/backend/internal/media"
	"github.com/ruangobrol/backend/internal/store"
	"github.com/ruangobrol/backend/internal/utils"
)

type Service struct {
	Engine   *delivery.Engine
	Uploader media.Uploader
}

type sendReq struct {
	Content string `json:"content" binding:"required"`
	Type    string `json:"type"`
}

type pageReq struct {
	Limit  int `form:"limit"`
	Offset int `form:"offset"`
}

func Register(rg *gin.RouterGroup, s Service) {
	rg.POST("/:id/messages", s.send)
	rg.GET("/:id/messages", s.history)
	rg.POST("/image", s.uploadImage)
}

func (s Service) send(c *gin.Context) {
	uid := auth.MustUserID(c)
	cid, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		httpx.Err(c, http.StatusBadRequest, "invalid conversation id")
		return
	}

	var req sendReq
	if err := c.ShouldBindJSON(&req); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			httpx.Err(c, http.StatusBadRequest, utils.ValidationErr(validationErrors))
			return
		}
		httpx.Err(c, http.StatusBadRequest, err.Error())
		return
	}
	msgType := req.Type
	if msgType == "" {
		msgType = store.TypeText
	}
	if msgType != store.TypeText && msgType != store.TypeImage {
		httpx.Err(c, http.StatusBadRequest, "unknown message type")
		return
	}

	loc := delivery.Location(c.Query("timezone"))
	msg, err := s.Engine.SendMessage(c.Request.Context(), uid, cid, req.Content, msgType, loc)
	switch {
	case errors.Is(err, store.ErrNotAMember):
		httpx.Err(c, http.StatusForbidden, "you are not a member of this chat")
		return
	case errors.Is(err, store.ErrNotFound):
		httpx.Err(c, http.StatusNotFound, "conversation not found")
		return
	case err != nil && msg == nil:
		httpx.Err(c, http.StatusInternalServerError, "send failed")
		return
	}

	httpx.OK(c, gin.H{"message": delivery.NewMessagePayload(msg, loc)})
}

func (s Service) history(c *gin.Context) {
	uid := auth.MustUserID(c)
	cid, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		httpx.Err(c, http.StatusBadRequest, "invalid conversation id")
		return
	}

	var q pageReq
	_ = c.BindQuery(&q)
	if q.Limit <= 0 {
		q.Limit = 50
	}
	loc := delivery.Location(c.Query("timezone"))

	groups, err := s.Engine.History(c.Request.Context(), uid, cid, q.Limit, q.Offset, loc)
	if errors.Is(err, store.ErrNotAMember) {
		httpx.Err(c, http.StatusForbidden, "you are not a member of this chat")
		return
	}
	if err != nil {
		httpx.Err(c, http.StatusInternalServerError, "db error")
		return
	}
	httpx.OK(c, gin.H{"messages": groups})
}

func (s Service) uploadImage(c *gin.Context) {
	file, header, err := c.Request.FormFile("image")
	if err != nil {
		httpx.Err(c, http.StatusBadRequest, "image file is required")
		return
	}
	defer file.Close()

	url, err := s.Uploader.Upload(c.Request.Context(), "chat", header.Filename, file)
	if err != nil {
		httpx.Err(c, http.StatusInternalServerError, "upload failed")
		return
	}
	httpx.OK(c, gin.H{"url": url})
}
