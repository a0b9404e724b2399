package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/platformbuilds/mcp-federation-broker/internal/brokererr"
)

type queryRequest struct {
	SQL string `json:"sql" binding:"required"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleListServers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"servers": s.broker.ListServers()})
}

func (s *Server) handleListResources(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"resources": s.broker.ListResources()})
}

func (s *Server) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.broker.Stats())
}

func (s *Server) handleDetachServer(c *gin.Context) {
	alias := c.Param("alias")
	if err := s.broker.DetachServer(alias); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"detached": alias})
}

func (s *Server) handleForceResetServer(c *gin.Context) {
	alias := c.Param("alias")
	killSubprocess := c.Query("kill") == "true"
	if err := s.broker.ForceResetServer(alias, killSubprocess); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reset": alias})
}

func (s *Server) handleQuery(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rows, err := s.broker.Query(c.Request.Context(), req.SQL)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rows": rows})
}

func (s *Server) handleDropVirtualTable(c *gin.Context) {
	name := c.Param("name")
	if err := s.broker.DropVirtualTable(name); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"dropped": name})
}

func (s *Server) handleRefreshVirtualTable(c *gin.Context) {
	name := c.Param("name")
	if err := s.broker.RefreshVirtualTable(c.Request.Context(), name); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"refreshed": name})
}

func (s *Server) handleClearCache(c *gin.Context) {
	s.broker.ClearCache(c.Query("alias"))
	c.JSON(http.StatusOK, gin.H{"cleared": true})
}

// writeError maps the broker's typed errors to an HTTP status that
// reflects the failure kind rather than a blanket 500.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch err.(type) {
	case *brokererr.ReferenceUnresolved, *brokererr.AlreadyDetachedError:
		status = http.StatusNotFound
	case *brokererr.ConfigError:
		status = http.StatusBadRequest
	case *brokererr.PoolExhaustedError, *brokererr.TimeoutError:
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
