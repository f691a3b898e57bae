package httputil

import "github.com/gin-gonic/gin"

// RouteHandler mounts one resource under Root in each access tier. Public
// routes are open; private and admin routes require the operator token.
type RouteHandler interface {
	Root() string
	SetRoutes(pub *gin.RouterGroup, private *gin.RouterGroup, admin *gin.RouterGroup)
}
