package api

import (
	"net/http"

	"beehive/internal/config"
	bhmiddleware "beehive/internal/middleware"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// StaticPrefix 是上传文件的公开访问路径前缀。
const StaticPrefix = "/static/uploads/"

// RouterDeps 汇总路由需要的处理器与中间件依赖，处理器为 nil 时不注册对应路由。
type RouterDeps struct {
	Verifier  bhmiddleware.TokenVerifier
	RateStore bhmiddleware.CounterStore
	Logger    zerolog.Logger

	// Static 公开读取已上传文件，仅本地存储时提供。
	Static http.Handler

	Uploads  *UploadHandler
	Analysis *AnalysisHandler
	Chat     *ChatHandler
	Admin    *AdminHandler
}

// NewRouter 构建 HTTP 路由，集中注册所有对外服务的端点。
func NewRouter(cfg *config.Config, deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(bhmiddleware.RequestLogger(deps.Logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(bhmiddleware.CORS(cfg.CORSAllowedOrigins))
	r.Use(bhmiddleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow, deps.RateStore, deps.Logger))
	r.Use(bhmiddleware.Metrics())

	// 健康检查不需要鉴权
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
	})

	// Prometheus 指标端点
	r.Handle("/metrics", promhttp.Handler())

	if deps.Static != nil {
		r.Handle(StaticPrefix+"*", http.StripPrefix(StaticPrefix, deps.Static))
	}

	r.Group(func(r chi.Router) {
		r.Use(bhmiddleware.Authenticate(deps.Verifier, deps.Logger))

		if deps.Uploads != nil {
			deps.Uploads.RegisterRoutes(r)
		}
		if deps.Analysis != nil {
			deps.Analysis.RegisterRoutes(r)
		}
		if deps.Chat != nil {
			deps.Chat.RegisterRoutes(r)
		}
		if deps.Admin != nil {
			r.Group(func(r chi.Router) {
				r.Use(bhmiddleware.RequireAdmin(deps.Logger))
				deps.Admin.RegisterRoutes(r)
			})
		}
	})

	return r
}
