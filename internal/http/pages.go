package http

import (
	_ "embed"
	"net/http"

	"github.com/gin-gonic/gin"
)

var (
	//go:embed pages/login.html
	loginHTML []byte
	//go:embed pages/tasks.html
	tasksHTML []byte
)

func (h *Handler) loginPage(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", loginHTML)
}

func (h *Handler) tasksPage(c *gin.Context) {
	if _, ok := h.currentIdentity(c); !ok {
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", tasksHTML)
}
