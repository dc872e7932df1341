package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"chamada/internal/auth"
	"chamada/internal/call"
	"chamada/internal/classify"
	"chamada/internal/config"
	"chamada/internal/httpmiddleware"
	"chamada/internal/metrics"
	"chamada/internal/sophia"
	"chamada/internal/store"
	"chamada/internal/students"
)

func main() {
	cfg := config.Load()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := run(cfg); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}

func run(cfg config.App) error {
	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Printf("warning: db not reachable, call events held in memory: %v", err)
	}
	defer func() {
		if db != nil {
			_ = db.Close()
		}
	}()

	redisClient := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})

	classifier := classify.New(cfg.IgnoreClassPrefix)

	sophiaClient := sophia.New(cfg.SophiaBaseURL())
	var tokenStore sophia.TokenStore = sophia.NewRedisTokenStore(redisClient)
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Printf("warning: redis not reachable, token cache held in memory: %v", err)
		tokenStore = &sophia.MemoryTokenStore{}
	}
	tokens := sophia.NewTokenCache(sophiaClient,
		sophia.Credentials{User: cfg.SophiaUser, Password: cfg.SophiaPassword},
		tokenStore, cfg.TokenTTL, cfg.TokenMargin)

	searchSvc := students.NewService(sophiaClient, tokens, classifier, cfg.PhotoConcurrency, cfg.PhotoTimeout)

	var callRepo call.Repository = call.NewMemoryRepository()
	if db != nil {
		callRepo = call.NewPostgresRepository(db.Client)
	}
	callSvc := call.NewService(callRepo, classifier, cfg.CallRetention)

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	sweeper := call.NewSweeper(callRepo, cfg.SweepInterval, cfg.CallRetention, cfg.SweepBatch)
	go sweeper.Run(sweepCtx)

	google := auth.NewGoogle(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.OAuthRedirectURL,
		cfg.AllowedEmailDomain, cfg.SessionSigningKey, cfg.SessionTTL)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewRateLimiter(cfg.RateLimitPerMin).Middleware())

	r.LoadHTMLGlob("web/templates/*.html")

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", func(c *gin.Context) {
		redisHealthy := redisClient.Ping(c.Request.Context()).Err() == nil
		dbHealthy := db != nil && db.Client.PingContext(c.Request.Context()) == nil
		status := http.StatusOK
		if !redisHealthy || !dbHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "db": dbHealthy})
	})

	// Login flow and public pages.
	r.GET("/", func(c *gin.Context) {
		if _, err := c.Cookie(auth.SessionCookie); err == nil {
			c.Redirect(http.StatusFound, "/terminal")
			return
		}
		c.Redirect(http.StatusFound, "/login")
	})
	r.GET("/login", func(c *gin.Context) {
		c.HTML(http.StatusOK, "login.html", nil)
	})
	r.GET("/entrar-google", google.Login)
	r.GET("/google-auth", google.Callback)
	r.GET("/logout", google.Logout)

	// Display panels are public: they run unattended on hallway screens.
	r.GET("/painel", func(c *gin.Context) {
		c.HTML(http.StatusOK, "painel.html", gin.H{"collection": classify.BucketDefault})
	})
	r.GET("/painel-infantil", panelPage(classify.BucketInfantil))
	r.GET("/painel-fundamental", panelPage(classify.BucketFundamental))
	r.GET("/painel-1anos", panelPage(classify.BucketPrimeiroAno))

	r.GET("/terminal", auth.RequireSession(cfg.SessionSigningKey, false), func(c *gin.Context) {
		claims := c.MustGet("user").(auth.Claims)
		c.HTML(http.StatusOK, "terminal.html", gin.H{"name": claims.Name, "email": claims.Email})
	})

	api := r.Group("/api", auth.RequireSession(cfg.SessionSigningKey, true))

	api.GET("/buscar-aluno", func(c *gin.Context) {
		parteNome := strings.TrimSpace(c.Query("parteNome"))
		grupo := strings.ToUpper(c.DefaultQuery("grupo", "todos"))

		result, err := searchSvc.Search(c.Request.Context(), parteNome, grupo)
		if err != nil {
			log.Printf("student search failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"erro": "Erro interno ao buscar alunos"})
			return
		}
		metrics.Searches.Inc()

		for i := range result {
			count, err := callSvc.CountToday(c.Request.Context(), result[i].ID, result[i].Turma)
			if err != nil {
				log.Printf("call count failed for %s: %v", result[i].ID, err)
				continue
			}
			result[i].ChamadosHoje = count
		}
		if result == nil {
			result = []students.Student{}
		}
		c.JSON(http.StatusOK, result)
	})

	api.GET("/buscar-por-id", func(c *gin.Context) {
		codigo := strings.TrimSpace(c.Query("codigo"))
		if codigo == "" {
			c.JSON(http.StatusBadRequest, gin.H{"erro": "Código do aluno não fornecido"})
			return
		}

		student, err := searchSvc.GetByCode(c.Request.Context(), codigo)
		if errors.Is(err, students.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"erro": "Aluno não encontrado ou não elegível para chamada"})
			return
		}
		if err != nil {
			log.Printf("student lookup failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"erro": "Erro interno ao buscar aluno"})
			return
		}

		if count, err := callSvc.CountToday(c.Request.Context(), student.ID, student.Turma); err == nil {
			student.ChamadosHoje = count
		}
		c.JSON(http.StatusOK, student)
	})

	api.POST("/chamar-aluno", func(c *gin.Context) {
		var req struct {
			ID           any    `json:"id"`
			NomeCompleto string `json:"nomeCompleto"`
			Turma        string `json:"turma"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"erro": "Dados inválidos"})
			return
		}

		id := coerceID(req.ID)
		if id == "" || req.NomeCompleto == "" {
			c.JSON(http.StatusBadRequest, gin.H{"erro": "Dados inválidos"})
			return
		}

		count, err := callSvc.Record(c.Request.Context(), id, req.NomeCompleto, req.Turma)
		if err != nil {
			log.Printf("call record failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"erro": "Falha ao registrar chamada"})
			return
		}
		metrics.Calls.Inc()
		c.JSON(http.StatusOK, gin.H{"sucesso": true, "nova_contagem": count})
	})

	api.POST("/limpar-paineis", func(c *gin.Context) {
		if err := callSvc.ClearAll(c.Request.Context()); err != nil {
			log.Printf("panel clear failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"erro": "Falha ao limpar painéis"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"sucesso": true})
	})

	// The panel pages poll this for live events.
	r.GET("/api/chamados", func(c *gin.Context) {
		events, err := callSvc.ListPanel(c.Request.Context(), c.Query("painel"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"erro": "Painel desconhecido"})
			return
		}
		if events == nil {
			events = []call.Event{}
		}
		c.JSON(http.StatusOK, events)
	})

	// Guardian lookups for the terminal, same session rules as /api.
	guarded := r.Group("/", auth.RequireSession(cfg.SessionSigningKey, true))
	guarded.GET("/aluno/:id/responsaveis", func(c *gin.Context) {
		guardians, err := searchSvc.Guardians(c.Request.Context(), c.Param("id"))
		if err != nil {
			log.Printf("guardian lookup failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"erro": "Erro interno ao buscar responsáveis"})
			return
		}
		c.JSON(http.StatusOK, guardians)
	})
	guarded.GET("/responsavel/:id/foto", func(c *gin.Context) {
		data, mime, err := searchSvc.GuardianPhoto(c.Request.Context(), c.Param("id"))
		if err != nil {
			log.Printf("guardian photo failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"erro": "Erro interno ao buscar foto"})
			return
		}
		if len(data) == 0 {
			c.JSON(http.StatusNotFound, gin.H{"erro": "Foto não encontrada"})
			return
		}
		c.Data(http.StatusOK, mime, data)
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down server...")
	stopSweep()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server forced shutdown: %v", err)
	}

	log.Println("server exited")
	return nil
}

func panelPage(bucket classify.Bucket) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.HTML(http.StatusOK, "painel_base.html", gin.H{"collection": string(bucket)})
	}
}

// coerceID turns whatever the client sent as the student id into its
// canonical string form, so later count lookups never miss on type.
func coerceID(v any) string {
	switch id := v.(type) {
	case string:
		return strings.TrimSpace(id)
	case json.Number:
		return id.String()
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	default:
		return ""
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// securityHeaders hardens responses for the browser-facing pages.
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		c.Next()
	}
}
