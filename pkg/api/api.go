package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"companioncare/pkg/lifecycle"
	"companioncare/pkg/models"
	"companioncare/service"
	"companioncare/storage"
)

// NewRouter builds the HTTP surface over the service layer.
func NewRouter(svc service.IServiceManager) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	// CORS
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	{
		registerRequestRoutes(api, svc)
		registerClaimRoutes(api, svc)
		registerPartyRoutes(api, svc)
	}

	return r
}

func RunServer(svc service.IServiceManager, port int) error {
	return NewRouter(svc).Run(fmt.Sprintf(":%d", port))
}

type createRequestBody struct {
	RequesterID    string        `json:"requester_id" binding:"required"`
	Category       string        `json:"category" binding:"required"`
	AdditionalInfo string        `json:"additional_info"`
	ScheduledStart time.Time     `json:"scheduled_start" binding:"required"`
	Duration       int           `json:"duration" binding:"required"`
	Origin         models.LatLng `json:"origin"`
	OriginText     string        `json:"origin_text"`
}

type actorBody struct {
	PartyID string `json:"party_id" binding:"required"`
}

type locationBody struct {
	PartyID   string  `json:"party_id" binding:"required"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func registerRequestRoutes(api *gin.RouterGroup, svc service.IServiceManager) {
	api.POST("/requests", func(c *gin.Context) {
		var body createRequestBody
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		req, err := svc.Request().Create(c.Request.Context(), service.CreateRequestParams{
			RequesterID:    body.RequesterID,
			Category:       models.Category(body.Category),
			AdditionalInfo: body.AdditionalInfo,
			ScheduledStart: body.ScheduledStart,
			Duration:       body.Duration,
			Origin:         body.Origin,
			OriginText:     body.OriginText,
		})
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusCreated, req)
	})

	api.GET("/requests/:id", func(c *gin.Context) {
		req, err := svc.Request().GetByID(c.Request.Context(), c.Param("id"))
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, req)
	})

	api.GET("/requesters/:id/requests", func(c *gin.Context) {
		reqs, err := svc.Request().ListForRequester(c.Request.Context(), c.Param("id"))
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, reqs)
	})

	api.GET("/companions/:id/candidates", func(c *gin.Context) {
		reqs, err := svc.Request().CandidatesFor(c.Request.Context(), c.Param("id"))
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, reqs)
	})

	api.GET("/companions/:id/requests", func(c *gin.Context) {
		reqs, err := svc.Request().ListForCompanion(c.Request.Context(), c.Param("id"))
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, reqs)
	})

	api.GET("/companions/:id/payments", func(c *gin.Context) {
		from, err := parseTimeQuery(c, "from", time.Time{})
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		to, err := parseTimeQuery(c, "to", time.Now())
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		total, reqs, err := svc.Request().PaymentsFor(c.Request.Context(), c.Param("id"), from, to)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"total": total, "services": reqs})
	})

	api.POST("/requests/:id/dismiss", func(c *gin.Context) {
		var body actorBody
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := svc.Request().Dismiss(c.Request.Context(), body.PartyID, c.Param("id")); err != nil {
			abortWithError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	api.POST("/requests/:id/accept", func(c *gin.Context) {
		var body actorBody
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		req, err := svc.Request().Accept(c.Request.Context(), c.Param("id"), body.PartyID)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, req)
	})

	api.POST("/requests/:id/cancel", func(c *gin.Context) {
		var body actorBody
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := svc.Request().Cancel(c.Request.Context(), c.Param("id"), body.PartyID); err != nil {
			abortWithError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	api.POST("/requests/:id/checkin", func(c *gin.Context) {
		var body actorBody
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		req, err := svc.Request().CheckIn(c.Request.Context(), c.Param("id"), body.PartyID)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, req)
	})

	api.POST("/requests/:id/checkout", func(c *gin.Context) {
		var body actorBody
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		req, err := svc.Request().CheckOut(c.Request.Context(), c.Param("id"), body.PartyID)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, req)
	})

	api.POST("/requests/:id/confirm", func(c *gin.Context) {
		var body actorBody
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := svc.Request().Confirm(c.Request.Context(), c.Param("id"), body.PartyID); err != nil {
			abortWithError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	api.POST("/requests/:id/location", func(c *gin.Context) {
		var body locationBody
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		loc := models.LatLng{Latitude: body.Latitude, Longitude: body.Longitude}
		if err := svc.Request().UpdateLiveLocation(c.Request.Context(), c.Param("id"), body.PartyID, loc); err != nil {
			abortWithError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	api.POST("/requests/:id/tracking/start", func(c *gin.Context) {
		var body actorBody
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := svc.Request().StartTracking(c.Param("id"), body.PartyID); err != nil {
			abortWithError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	api.POST("/requests/:id/tracking/stop", func(c *gin.Context) {
		var body actorBody
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		svc.Request().StopTracking(c.Param("id"), body.PartyID)
		c.Status(http.StatusNoContent)
	})

	api.GET("/quote", func(c *gin.Context) {
		var q struct {
			Duration int `form:"duration" binding:"required"`
		}
		if err := c.ShouldBindQuery(&q); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, svc.Request().Quote(q.Duration))
	})
}

type openClaimBody struct {
	ServiceID   string `json:"service_id" binding:"required"`
	RequesterID string `json:"requester_id" binding:"required"`
	Reason      string `json:"reason" binding:"required"`
	Description string `json:"description"`
}

type settleClaimBody struct {
	Response string `json:"response"`
}

func registerClaimRoutes(api *gin.RouterGroup, svc service.IServiceManager) {
	api.POST("/claims", func(c *gin.Context) {
		var body openClaimBody
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		claim, err := svc.Claim().Open(c.Request.Context(), service.OpenClaimParams{
			ServiceID:   body.ServiceID,
			RequesterID: body.RequesterID,
			Reason:      body.Reason,
			Description: body.Description,
		})
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusCreated, claim)
	})

	api.GET("/claims/:id", func(c *gin.Context) {
		claim, err := svc.Claim().GetByID(c.Request.Context(), c.Param("id"))
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, claim)
	})

	api.GET("/requesters/:id/claims", func(c *gin.Context) {
		includeDeleted := c.Query("include_deleted") == "true"
		claims, err := svc.Claim().ListForRequester(c.Request.Context(), c.Param("id"), includeDeleted)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, claims)
	})

	api.POST("/claims/:id/resolve", func(c *gin.Context) {
		var body settleClaimBody
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := svc.Claim().Resolve(c.Request.Context(), c.Param("id"), body.Response); err != nil {
			abortWithError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	api.POST("/claims/:id/reject", func(c *gin.Context) {
		var body settleClaimBody
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := svc.Claim().Reject(c.Request.Context(), c.Param("id"), body.Response); err != nil {
			abortWithError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	api.DELETE("/claims/:id", func(c *gin.Context) {
		var body actorBody
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := svc.Claim().Delete(c.Request.Context(), c.Param("id"), body.PartyID); err != nil {
			abortWithError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})
}

type registerPartyBody struct {
	Role         string        `json:"role" binding:"required"`
	Name         string        `json:"name" binding:"required"`
	ChatID       int64         `json:"chat_id"`
	Home         models.LatLng `json:"home"`
	LocationText string        `json:"location_text"`
}

type reviewBody struct {
	ServiceID  string `json:"service_id" binding:"required"`
	ReviewerID string `json:"reviewer_id" binding:"required"`
	Rating     int    `json:"rating" binding:"required"`
	Comment    string `json:"comment"`
}

func registerPartyRoutes(api *gin.RouterGroup, svc service.IServiceManager) {
	api.POST("/parties", func(c *gin.Context) {
		var body registerPartyBody
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		party, err := svc.Party().Register(c.Request.Context(), service.RegisterPartyParams{
			Role:         models.Role(body.Role),
			Name:         body.Name,
			ChatID:       body.ChatID,
			Home:         body.Home,
			LocationText: body.LocationText,
		})
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusCreated, party)
	})

	api.GET("/parties/:id", func(c *gin.Context) {
		profile, err := svc.Party().Profile(c.Request.Context(), c.Param("id"))
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, profile)
	})

	api.POST("/reviews", func(c *gin.Context) {
		var body reviewBody
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		review, err := svc.Party().AddReview(c.Request.Context(), service.AddReviewParams{
			ServiceID:  body.ServiceID,
			ReviewerID: body.ReviewerID,
			Rating:     body.Rating,
			Comment:    body.Comment,
		})
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusCreated, review)
	})

	api.GET("/parties/:id/reviews", func(c *gin.Context) {
		reviews, err := svc.Party().ReviewsFor(c.Request.Context(), c.Param("id"))
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, reviews)
	})
}

// abortWithError maps domain errors onto HTTP statuses.
func abortWithError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, storage.ErrAlreadyTaken):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrValidation),
		errors.Is(err, lifecycle.ErrInvalidTransition),
		errors.Is(err, lifecycle.ErrWrongActor),
		errors.Is(err, lifecycle.ErrTooEarly),
		errors.Is(err, lifecycle.ErrOutOfRange):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func parseTimeQuery(c *gin.Context, key string, fallback time.Time) (time.Time, error) {
	raw := c.Query(key)
	if raw == "" {
		return fallback, nil
	}
	return time.Parse(time.RFC3339, raw)
}
