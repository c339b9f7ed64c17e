package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Cheikh27/back-signalement-citoyen-sub000/internal/service"
)

// AuthMiddleware valide le jeton Bearer et injecte userID (int64) et
// typeUser dans le contexte Gin. Le code aval branche sur la variante
// type_user, jamais sur une introspection de type.
func AuthMiddleware(authService service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			c.Abort()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header format"})
			c.Abort()
			return
		}

		claims, err := authService.ValidateToken(parts[1])
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			c.Abort()
			return
		}

		// Les claims numériques JSON arrivent en float64.
		if sub, ok := (*claims)["sub"].(float64); ok {
			c.Set("userID", int64(sub))
		}
		if typeUser, ok := (*claims)["type"].(string); ok {
			c.Set("typeUser", typeUser)
		}

		c.Next()
	}
}

// UserID extrait l'identifiant utilisateur injecté par AuthMiddleware.
func UserID(c *gin.Context) (int64, bool) {
	v, exists := c.Get("userID")
	if !exists {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok
}
