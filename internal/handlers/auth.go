package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/srhthu/GPU-Calendar-Monitor/internal/middleware"
)

// AuthHandlers implements the browser login flow against the shared
// secret.
type AuthHandlers struct {
	auth *middleware.AuthService
}

func NewAuthHandlers(auth *middleware.AuthService) *AuthHandlers {
	return &AuthHandlers{auth: auth}
}

const loginPage = `<!DOCTYPE html>
<html>
<head><title>GPU Cluster Monitor</title></head>
<body>
<h3>GPU Cluster Monitor</h3>
<form method="post" action="/login">
  <input type="password" name="secret" placeholder="Access secret" autofocus>
  <button type="submit">Enter</button>
</form>
</body>
</html>`

// LoginGET serves the login form.
func (h *AuthHandlers) LoginGET(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(loginPage))
}

// LoginPOST checks the secret and sets the session cookie. Accepts both
// form posts from the login page and JSON from scripts.
func (h *AuthHandlers) LoginPOST(c *gin.Context) {
	secret := c.PostForm("secret")
	if secret == "" {
		var body struct {
			Secret string `json:"secret"`
		}
		if err := c.ShouldBindJSON(&body); err == nil {
			secret = body.Secret
		}
	}

	token, err := h.auth.Login(c.ClientIP(), secret)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	c.SetCookie(middleware.CookieName, token, int(middleware.TokenExpiry.Seconds()), "/", "", false, true)
	c.Redirect(http.StatusFound, "/")
}

// Logout clears the session cookie.
func (h *AuthHandlers) Logout(c *gin.Context) {
	c.SetCookie(middleware.CookieName, "", -1, "/", "", false, true)
	c.Redirect(http.StatusFound, "/login")
}
