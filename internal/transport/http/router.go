package http

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Shubhamkumarpatel70/ridemitra-payout-service/internal/balance"
	"github.com/Shubhamkumarpatel70/ridemitra-payout-service/internal/config"
	"github.com/Shubhamkumarpatel70/ridemitra-payout-service/internal/service"
)

func NewRouter(svc *service.WithdrawalService, bal balance.Source, rl config.RateLimitConfig, log *zap.SugaredLogger) *gin.Engine {
	r := gin.New()
	r.Use(LoggingMiddleware(log))
	r.Use(RateLimitMiddleware(rl.RPS, rl.Burst))
	RegisterHandlers(r, svc, bal)
	return r
}
