// Command gpu-monitor runs the cluster aggregation daemon: it polls node
// agents and calendar sources, reconciles bookings against quota rules and
// serves the resulting cluster snapshot.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/srhthu/GPU-Calendar-Monitor/internal/cluster"
	"github.com/srhthu/GPU-Calendar-Monitor/internal/config"
	"github.com/srhthu/GPU-Calendar-Monitor/internal/handlers"
	"github.com/srhthu/GPU-Calendar-Monitor/internal/metrics"
	"github.com/srhthu/GPU-Calendar-Monitor/internal/middleware"
	"github.com/srhthu/GPU-Calendar-Monitor/internal/nodeclient"
	"github.com/srhthu/GPU-Calendar-Monitor/internal/notify"
	"github.com/srhthu/GPU-Calendar-Monitor/internal/teamup"
	"github.com/srhthu/GPU-Calendar-Monitor/internal/utils"
	"github.com/srhthu/GPU-Calendar-Monitor/internal/version"
)

// App bundles the long-lived services of the monitor process.
type App struct {
	cfg         config.MonitorConfig
	cluster     *cluster.Cluster
	authService *middleware.AuthService
	wsHub       *middleware.Hub
	rateLimiter *middleware.RateLimiter
	notifier    *notify.Notifier
	logger      *utils.Logger
}

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
	mon := cfg.Monitor

	logger := utils.NewLogger(mon.LogFile)
	defer logger.Close()
	logger.Write("gpu-monitor " + version.String() + " starting")

	nodes := nodeclient.New(mon.AgentPort, mon.Secret)
	bookings := teamup.NewClient(teamup.TranslateNeXT)
	cl := cluster.New(mon, nodes, bookings)

	app := &App{
		cfg:         mon,
		cluster:     cl,
		authService: middleware.NewAuthService(mon.Secret, mon.SecretHash),
		wsHub:       middleware.NewHub(logger),
		rateLimiter: middleware.NewRateLimiter(rate.Every(time.Minute/300), 20),
		notifier:    notify.New(mon.DiscordWebhook),
		logger:      logger,
	}

	cl.Start()
	go app.wsHub.Run()
	go app.broadcastSnapshots()

	if mon.EnableNAT {
		go app.managePortForwarding()
	}

	srv := &http.Server{
		Addr:           ":" + strconv.Itoa(mon.Port),
		Handler:        app.setupRouter(),
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		log.Printf("Starting monitor on port %d", mon.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down monitor...")

	cl.Stop()
	app.rateLimiter.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}
	log.Println("Monitor exited")
}

func (app *App) setupRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS())
	r.Use(app.rateLimiter.Middleware())

	monitorHandlers := handlers.NewMonitorHandlers(app.cluster, app.authService, app.cfg.WebDir)
	authHandlers := handlers.NewAuthHandlers(app.authService)

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "version": version.String()})
	})
	r.GET("/metrics", metrics.Handler())

	r.GET("/login", authHandlers.LoginGET)
	r.POST("/login", authHandlers.LoginPOST)
	r.GET("/logout", authHandlers.Logout)

	protected := r.Group("/")
	protected.Use(app.authService.RequireAuth())
	{
		protected.GET("/", monitorHandlers.Home)
		protected.Static("/web", app.cfg.WebDir)
	}

	api := r.Group("/")
	api.Use(app.authService.RequireAPIAuth())
	{
		api.GET("/get-status", monitorHandlers.GetStatus)
		api.GET("/bookings", monitorHandlers.Bookings)
		api.GET("/users", monitorHandlers.Users)
		api.GET("/refresh-user", monitorHandlers.RefreshUsers)
	}

	r.GET("/ws", app.wsHub.HandleWebSocket())
	return r
}

// broadcastSnapshots pushes each newly assembled snapshot to websocket
// clients so dashboards update without polling.
func (app *App) broadcastSnapshots() {
	ticker := time.NewTicker(app.cfg.Reconcile())
	defer ticker.Stop()
	var last time.Time
	for range ticker.C {
		snap := app.cluster.GetSnapshot()
		if snap == nil || !snap.AssembledAt.After(last) {
			continue
		}
		last = snap.AssembledAt
		if err := app.notifier.Observe(snap); err != nil {
			app.logger.Write("discord alert failed: " + err.Error())
		}
		if app.wsHub.GetClientCount() == 0 {
			continue
		}
		payload, err := json.Marshal(snap)
		if err != nil {
			continue
		}
		app.wsHub.Broadcast(payload)
	}
}

// managePortForwarding keeps a UPnP mapping for the monitor port alive so
// the dashboard stays reachable from outside a home-lab NAT.
func (app *App) managePortForwarding() {
	const lifetime = 30 * time.Minute
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		external, err := utils.AddOrRefreshMapping(ctx, "tcp", app.cfg.Port, "gpu-monitor", lifetime)
		cancel()
		if err != nil {
			app.logger.Write("NAT mapping failed: " + err.Error())
		} else if external != 0 {
			log.Printf("NAT mapping active: external port %d", external)
		}
		time.Sleep(lifetime / 2)
	}
}
