// Package httpapi serves the diagnostic form, the JSON API and operational
// endpoints over gin.
package httpapi

import (
	"context"
	"embed"
	"html/template"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Skufu/smarthealth/internal/health"
	"github.com/Skufu/smarthealth/internal/metrics"
	"github.com/Skufu/smarthealth/internal/predictor"
	"github.com/Skufu/smarthealth/internal/store"
	"github.com/Skufu/smarthealth/internal/version"
)

//go:embed templates/*.html
var templatesFS embed.FS

// About is shown in the form sidebar.
const About = "This app uses a machine learning model to predict possible diagnoses based on " +
	"selected symptoms. It is not a substitute for professional medical advice."

// TallyReader lists anonymous prediction counts.
type TallyReader interface {
	Tallies(ctx context.Context) ([]store.Tally, error)
}

// Options configures the router.
type Options struct {
	Logger       *zap.Logger
	AllowOrigins []string
	MaxBodyBytes int64
	// Tallies is nil when the database is disabled.
	Tallies TallyReader
}

type handler struct {
	svc     *predictor.Service
	health  *health.Service
	tallies TallyReader
}

// NewRouter wires every route.
func NewRouter(svc *predictor.Service, hs *health.Service, opts Options) *gin.Engine {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20
	}
	if len(opts.AllowOrigins) == 0 {
		opts.AllowOrigins = []string{"*"}
	}

	router := gin.New()
	router.Use(
		requestLogger(opts.Logger),
		jsonRecovery(opts.Logger),
		metrics.Middleware(),
		limitBodySize(opts.MaxBodyBytes),
		cors.New(cors.Config{
			AllowOrigins: opts.AllowOrigins,
			AllowMethods: []string{"GET", "POST", "OPTIONS"},
			AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
			MaxAge:       12 * time.Hour,
		}),
	)
	router.SetHTMLTemplate(template.Must(template.New("").ParseFS(templatesFS, "templates/*.html")))

	h := &handler{svc: svc, health: hs, tallies: opts.Tallies}

	router.GET("/", h.form)
	router.POST("/predict", h.formPredict)
	router.POST("/report", h.formReport)

	api := router.Group("/api")
	api.POST("/predict", h.apiPredict)
	api.POST("/report", h.apiReport)
	api.GET("/symptoms", h.symptoms)
	api.GET("/labels", h.labels)
	api.GET("/stats", h.stats)

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "version": version.Version})
	})
	router.GET("/readyz", h.readyz)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return router
}

func (h *handler) readyz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	report := h.health.Check(ctx)
	status := http.StatusOK
	if report.Status != health.Healthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, report)
}

func (h *handler) symptoms(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"symptoms": h.svc.Schema().Symptoms()})
}

func (h *handler) labels(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"labels": h.svc.Labels().Entries()})
}

func (h *handler) stats(c *gin.Context) {
	if h.tallies == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": store.ErrDisabled.Error()})
		return
	}
	tallies, err := h.tallies.Tallies(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "stats unavailable"})
		return
	}
	if tallies == nil {
		tallies = []store.Tally{}
	}
	c.JSON(http.StatusOK, gin.H{"tallies": tallies})
}
