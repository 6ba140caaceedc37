package httpx

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// OK and Err are the only two response shapes the API emits: a plain
// body on success, {"error": ...} otherwise.
func OK(c *gin.Context, v any) {
	c.JSON(http.StatusOK, v)
}

func Err(c *gin.Context, code int, msg any) {
	c.JSON(code, gin.H{"error": msg})
}
