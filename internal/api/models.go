package api

import "github.com/gin-gonic/gin"

// handleListModels serves GET /v1/models: every enabled, non-excluded
// model name, OpenAI-shaped.
func (s *Server) handleListModels(c *gin.Context) {
	names := s.dispatcher.ListModels()
	data := make([]gin.H, 0, len(names))
	for _, name := range names {
		data = append(data, gin.H{"id": name, "object": "model", "owned_by": "byokey"})
	}
	c.JSON(200, gin.H{"object": "list", "data": data})
}
