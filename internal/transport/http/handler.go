package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/Shubhamkumarpatel70/ridemitra-payout-service/internal/balance"
	"github.com/Shubhamkumarpatel70/ridemitra-payout-service/internal/model"
	"github.com/Shubhamkumarpatel70/ridemitra-payout-service/internal/repo"
	"github.com/Shubhamkumarpatel70/ridemitra-payout-service/internal/service"
)

func RegisterHandlers(r *gin.Engine, svc *service.WithdrawalService, bal balance.Source) {
	v1 := r.Group("/v1")
	{
		v1.POST("/withdrawals", createHandler(svc, bal))
		v1.PATCH("/withdrawals/:id/disposition", dispositionHandler(svc))
		v1.POST("/withdrawals/:id/settle", settleHandler(svc))
		v1.GET("/withdrawals/:id", getHandler(svc))
		v1.GET("/withdrawals", listHandler(svc))
	}
}

type createReq struct {
	DriverID          string `json:"driver_id" binding:"required"`
	RequestingUserID  string `json:"requesting_user_id" binding:"required"`
	Amount            string `json:"amount" binding:"required"`
	AccountNumber     string `json:"account_number" binding:"required"`
	AccountHolderName string `json:"account_holder_name" binding:"required"`
	RoutingCode       string `json:"routing_code" binding:"required"`
}

func createHandler(svc *service.WithdrawalService, bal balance.Source) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		amt, err := decimal.NewFromString(req.Amount)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount"})
			return
		}
		avail, err := bal.Available(c, req.DriverID)
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		w, err := svc.Create(c, service.CreateInput{
			DriverID:          req.DriverID,
			RequestingUserID:  req.RequestingUserID,
			Amount:            amt,
			AvailableBalance:  avail,
			AccountNumber:     req.AccountNumber,
			AccountHolderName: req.AccountHolderName,
			RoutingCode:       req.RoutingCode,
		})
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, w)
	}
}

type dispositionReq struct {
	Decision string `json:"decision" binding:"required,oneof=approve reject"`
	Remark   string `json:"remark"`
}

func dispositionHandler(svc *service.WithdrawalService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req dispositionReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		w, err := svc.Disposition(c, c.Param("id"), service.Decision(req.Decision), req.Remark)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, w)
	}
}

type settleReq struct {
	SettlementReference string `json:"settlement_reference" binding:"required"`
	Remark              string `json:"remark"`
}

func settleHandler(svc *service.WithdrawalService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req settleReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		w, err := svc.Settle(c, c.Param("id"), req.SettlementReference, req.Remark)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, w)
	}
}

func getHandler(svc *service.WithdrawalService) gin.HandlerFunc {
	return func(c *gin.Context) {
		w, err := svc.Get(c, c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, w)
	}
}

func listHandler(svc *service.WithdrawalService) gin.HandlerFunc {
	return func(c *gin.Context) {
		f := repo.ListFilter{
			Status:   model.WithdrawalStatus(c.Query("status")),
			DriverID: c.Query("driver_id"),
		}
		if f.Status != "" && !f.Status.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status"})
			return
		}
		if from := c.Query("from"); from != "" {
			ts, err := time.Parse(time.RFC3339, from)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from"})
				return
			}
			f.From = ts
		}
		if to := c.Query("to"); to != "" {
			ts, err := time.Parse(time.RFC3339, to)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to"})
				return
			}
			f.To = ts
		}
		f.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))
		f.Offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))

		ws, err := svc.List(c, f)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, ws)
	}
}

// writeError maps the service error taxonomy to HTTP statuses. Messages are
// surfaced verbatim.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrInvalidAmount),
		errors.Is(err, service.ErrInvalidPayoutDetails),
		errors.Is(err, service.ErrInvalidDecision),
		errors.Is(err, service.ErrMissingSettlementReference):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrInvalidTransition),
		errors.Is(err, repo.ErrDuplicateTransactionID):
		status = http.StatusConflict
	case errors.Is(err, service.ErrStorageUnavailable):
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
