package handlers

import (
	"github.com/agroc/backend/internal/middleware"
	"github.com/agroc/backend/internal/services"
	"github.com/agroc/backend/internal/store"
	"github.com/gin-gonic/gin"
)

// pathID reads a numeric path parameter. Anything that is not a valid id
// is treated like an id that does not exist.
func pathID(c *gin.Context, name string) (uint, bool) {
	return store.ParseID(c.Param(name))
}

func actorOf(c *gin.Context) services.Actor {
	return services.Actor{ID: middleware.GetUserID(c), Role: middleware.GetRole(c)}
}
