package main

import (
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func setupRouter(reg *Registry, srv *Server) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	router.Use(gin.LoggerWithWriter(os.Stdout))

	router.Use(gin.Recovery())

	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.POST("/api/room", func(c *gin.Context) {
		room := reg.CreateRoom()
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"roomId":  room.ID,
			"hostId":  room.HostID,
			"joinUrl": "/room/" + room.ID,
		})
	})

	router.GET("/api/room/:roomId", func(c *gin.Context) {
		snap, ok := reg.Snapshot(c.Param("roomId"), "")
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "Room not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "room": snap})
	})

	// WebSocket route
	router.GET("/ws", srv.wsHandler)

	return router
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "3000"
	}

	reg := NewRegistry()
	srv := NewServer(reg)
	NewScheduler(reg, srv)

	log.Printf("🚀 Starting server on port %s\n", port)

	router := setupRouter(reg, srv)

	if err := router.Run(":" + port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
