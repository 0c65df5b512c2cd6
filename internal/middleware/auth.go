package middleware

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const (
	// TokenExpiry bounds a browser session issued after a successful
	// secret check.
	TokenExpiry = 24 * time.Hour
	CookieName  = "monitor_token"

	maxFailures     = 5
	lockoutDuration = 5 * time.Minute
)

// Claims is the JWT payload for a browser session.
type Claims struct {
	jwt.RegisteredClaims
}

// AuthService validates the cluster shared secret and issues session
// tokens for the web UI. The signing key is generated per process, so
// sessions do not survive a restart; the shared secret does.
type AuthService struct {
	secret     string
	secretHash string
	signingKey []byte

	mu       sync.Mutex
	failures map[string]*authFailure
}

type authFailure struct {
	count        int
	lockoutUntil time.Time
}

// NewAuthService builds an AuthService from the configured shared secret.
// secretHash, when non-empty, is a bcrypt hash and takes precedence over
// the plain secret.
func NewAuthService(secret, secretHash string) *AuthService {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		panic(fmt.Sprintf("auth: generate signing key: %v", err))
	}
	return &AuthService{
		secret:     secret,
		secretHash: secretHash,
		signingKey: key,
		failures:   make(map[string]*authFailure),
	}
}

// CheckSecret reports whether the presented secret matches the configured
// one. With no secret configured, access is open (trusted-network mode).
func (a *AuthService) CheckSecret(presented string) bool {
	if a.secretHash != "" {
		return bcrypt.CompareHashAndPassword([]byte(a.secretHash), []byte(presented)) == nil
	}
	if a.secret == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(a.secret), []byte(presented)) == 1
}

// GenerateToken issues a signed session token.
func (a *AuthService) GenerateToken() (string, error) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(TokenExpiry)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Subject:   "monitor",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.signingKey)
}

// ValidateToken parses and verifies a session token.
func (a *AuthService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.signingKey, nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, fmt.Errorf("invalid token")
}

// recordFailure tracks failed secret checks per client.
func (a *AuthService) recordFailure(clientIP string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	f := a.failures[clientIP]
	if f == nil {
		f = &authFailure{}
		a.failures[clientIP] = f
	}
	f.count++
	if f.count >= maxFailures {
		f.lockoutUntil = time.Now().Add(lockoutDuration)
		f.count = 0
	}
}

func (a *AuthService) lockedOut(clientIP string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	f := a.failures[clientIP]
	return f != nil && time.Now().Before(f.lockoutUntil)
}

func (a *AuthService) clearFailures(clientIP string) {
	a.mu.Lock()
	delete(a.failures, clientIP)
	a.mu.Unlock()
}

// Login checks the presented secret with lockout tracking and returns a
// session token on success.
func (a *AuthService) Login(clientIP, presented string) (string, error) {
	if a.lockedOut(clientIP) {
		return "", fmt.Errorf("too many failed attempts; try again later")
	}
	if !a.CheckSecret(presented) {
		a.recordFailure(clientIP)
		return "", fmt.Errorf("wrong secret")
	}
	a.clearFailures(clientIP)
	return a.GenerateToken()
}

// RequireAuth guards browser routes with the session cookie.
func (a *AuthService) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie(CookieName)
		if err != nil {
			c.Redirect(http.StatusFound, "/login")
			c.Abort()
			return
		}
		if _, err := a.ValidateToken(token); err != nil {
			c.Redirect(http.StatusFound, "/login")
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireAPIAuth guards API routes. Accepted credentials: the shared
// secret or a session token as Bearer, or a valid session cookie.
func (a *AuthService) RequireAPIAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if strings.HasPrefix(header, "Bearer ") {
			presented := strings.TrimPrefix(header, "Bearer ")
			if a.CheckSecret(presented) {
				c.Next()
				return
			}
			if _, err := a.ValidateToken(presented); err == nil {
				c.Next()
				return
			}
		}
		if token, err := c.Cookie(CookieName); err == nil {
			if _, err := a.ValidateToken(token); err == nil {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
	}
}
