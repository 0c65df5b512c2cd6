// Command gpu-agent runs on each GPU node and reports local GPU, process
// and network status to the monitor on request.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/srhthu/GPU-Calendar-Monitor/internal/agent"
	"github.com/srhthu/GPU-Calendar-Monitor/internal/config"
	"github.com/srhthu/GPU-Calendar-Monitor/internal/handlers"
	"github.com/srhthu/GPU-Calendar-Monitor/internal/middleware"
	"github.com/srhthu/GPU-Calendar-Monitor/internal/version"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to the TOML config file")
	flag.Parse()

	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	ag := agent.New(cfg.Agent)
	ag.Start()

	auth := middleware.NewAuthService(cfg.Agent.Secret, cfg.Agent.SecretHash)
	agentHandlers := handlers.NewAgentHandlers(ag, auth)

	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "version": version.String()})
	})
	r.POST("/get-status", agentHandlers.GetStatus)

	srv := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Agent.Port),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("Starting agent on port %d", cfg.Agent.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Agent failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down agent...")

	ag.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Agent forced to shutdown:", err)
	}
	log.Println("Agent exited")
}
