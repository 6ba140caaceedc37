package users

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/ruangobrol/backend/internal/auth"
	"github.com/ruangobrol/backend/internal/config"
	"github.com/ruangobrol/backend/internal/httpx"
	"github.com/ruangobrol/backend/internal/store"
	"github.com/ruangobrol/backend/internal/utils"
	"golang.org/x/crypto/bcrypt"
)

type Service struct {
	Store     *store.Store
	JWTSecret string
	JWTTTLMin int
}

type registerReq struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required,min=8"`
}

type loginReq struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type pushTokenReq struct {
	Token string `json:"token" binding:"required"`
}

func RegisterPublic(rg *gin.RouterGroup, st *store.Store, cfg config.Config) {
	s := Service{
		Store:     st,
		JWTSecret: cfg.JWTSecret,
		JWTTTLMin: cfg.JWTTTLMin,
	}
	rg.POST("/register", s.register)
	rg.POST("/login", s.login)
}

func RegisterProtected(rg *gin.RouterGroup, st *store.Store) {
	s := Service{Store: st}
	rg.PUT("/push-token", s.setPushToken)
}

func (s Service) register(c *gin.Context) {
	var req registerReq
	if err := c.ShouldBindJSON(&req); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			httpx.Err(c, http.StatusBadRequest, utils.ValidationErr(validationErrors))
			return
		}
		httpx.Err(c, http.StatusBadRequest, err.Error())
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		httpx.Err(c, http.StatusInternalServerError, "hash failed")
		return
	}

	uid, err := s.Store.CreateUser(c.Request.Context(), req.Username, string(hash))
	if err != nil {
		httpx.Err(c, http.StatusBadRequest, "username taken")
		return
	}

	token, err := auth.NewToken(s.JWTSecret, uid, s.JWTTTLMin)
	if err != nil {
		httpx.Err(c, http.StatusInternalServerError, "token failed")
		return
	}
	httpx.OK(c, gin.H{"user_id": uid, "token": token})
}

func (s Service) login(c *gin.Context) {
	var req loginReq
	if err := c.ShouldBindJSON(&req); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			httpx.Err(c, http.StatusBadRequest, utils.ValidationErr(validationErrors))
			return
		}
		httpx.Err(c, http.StatusBadRequest, err.Error())
		return
	}

	u, hash, err := s.Store.UserByUsername(c.Request.Context(), req.Username)
	if errors.Is(err, store.ErrNotFound) {
		httpx.Err(c, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err != nil {
		httpx.Err(c, http.StatusInternalServerError, "db error")
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(req.Password)) != nil {
		httpx.Err(c, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := auth.NewToken(s.JWTSecret, u.ID, s.JWTTTLMin)
	if err != nil {
		httpx.Err(c, http.StatusInternalServerError, "token failed")
		return
	}
	httpx.OK(c, gin.H{"user_id": u.ID, "token": token})
}

func (s Service) setPushToken(c *gin.Context) {
	uid := auth.MustUserID(c)
	var req pushTokenReq
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.Err(c, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.Store.SetPushToken(c.Request.Context(), uid, req.Token); err != nil {
		httpx.Err(c, http.StatusBadRequest, "update failed")
		return
	}
	httpx.OK(c, gin.H{"ok": true})
}
