package apihandlers

import (
	"log/slog"
	"net/http"
	"time"

	mw "github.com/dsi-icl/acacia-sub002/pkg/apihelpers/middlewares"
	jwthandling "github.com/dsi-icl/acacia-sub002/pkg/jwt-handling"
	"github.com/dsi-icl/acacia-sub002/pkg/utils"
	"github.com/gin-gonic/gin"
)

func (h *HttpEndpoints) AddDataAuthAPI(rg *gin.RouterGroup) {
	auth := rg.Group("/auth")
	auth.POST("/signin-with-idp", mw.RequirePayload(), h.signInWithIdP)
	auth.GET("/renew-token", mw.GetAndValidateManagementUserJWT(h.tokenSignKey), h.getRenewToken)
}

// SignInRequest is the request body for the signin-with-idp endpoint. The
// identity provider sits in front of this service and asserts sub and roles.
type SignInRequest struct {
	Sub   string   `json:"sub"`
	Roles []string `json:"roles"`
	Name  string   `json:"name"`
	Email string   `json:"email"`
}

// signInWithIdP exchanges an IdP-asserted identity for a service token.
func (h *HttpEndpoints) signInWithIdP(c *gin.Context) {
	var req SignInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.Error("signInWithIdP: bad payload", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.Sub == "" {
		slog.Warn("signInWithIdP: no sub")
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing sub"})
		return
	}

	isAdmin := utils.ContainsString(req.Roles, "admin")

	token, err := jwthandling.GenerateNewManagementUserToken(
		h.tokenExpiresIn,
		req.Sub,
		isAdmin,
		map[string]string{},
		h.tokenSignKey,
	)
	if err != nil {
		slog.Error("signInWithIdP: token generation failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	slog.Info("user signed in", slog.String("sub", req.Sub), slog.Bool("isAdmin", isAdmin))

	c.JSON(http.StatusOK, gin.H{
		"accessToken": token,
		"expiresAt":   time.Now().Add(h.tokenExpiresIn).Unix(),
		"isAdmin":     isAdmin,
	})
}

// getRenewToken issues a fresh token for a still-valid session.
func (h *HttpEndpoints) getRenewToken(c *gin.Context) {
	token := c.MustGet("validatedToken").(*jwthandling.ManagementUserClaims)

	newToken, err := jwthandling.GenerateNewManagementUserToken(
		h.tokenExpiresIn,
		token.ID,
		token.IsAdmin,
		token.Payload,
		h.tokenSignKey,
	)
	if err != nil {
		slog.Error("getRenewToken: token generation failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"accessToken": newToken,
		"expiresAt":   time.Now().Add(h.tokenExpiresIn).Unix(),
	})
}
