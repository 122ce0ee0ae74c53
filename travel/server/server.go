// Package server exposes the travel tools over HTTP: flight search and
// weather forecasts as POST endpoints consumed by the chat frontend.
package server

import (
	"context"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"magellan/travel"
)

// FlightRequest is the /get_flight payload.
type FlightRequest struct {
	DepartureLocation    string `json:"departure_location" binding:"required"`
	ArrivalLocation      string `json:"arrival_location" binding:"required"`
	DepartureDateAndTime string `json:"departure_date_and_time" binding:"required"`
	ReturnDate           string `json:"return_date"`
}

// WeatherRequest is the /get_weather payload.
type WeatherRequest struct {
	Destination string `json:"destination" binding:"required"`
	StartDate   string `json:"startDate" binding:"required"`
	EndDate     string `json:"endDate" binding:"required"`
}

// FlightSearcher is the flight tool the handler calls.
type FlightSearcher interface {
	Search(ctx context.Context, q travel.FlightQuery) (string, error)
}

// WeatherForecaster is the weather tool the handler calls.
type WeatherForecaster interface {
	Forecast(ctx context.Context, destination, startDate, endDate string) (*travel.WeatherReport, error)
}

// Handler serves the travel tool endpoints.
type Handler struct {
	flights FlightSearcher
	weather WeatherForecaster
	logger  *zap.Logger
}

// NewHandler creates a handler over the given tool clients.
func NewHandler(flights FlightSearcher, weather WeatherForecaster, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{flights: flights, weather: weather, logger: logger}
}

// RegisterRoutes mounts the endpoints on the engine.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.POST("/get_flight", h.getFlight)
	r.POST("/get_weather", h.getWeather)
}

// NewRouter builds a gin engine with CORS and the travel routes mounted.
func NewRouter(h *Handler) *gin.Engine {
	r := gin.Default()

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))

	h.RegisterRoutes(r)
	return r
}

func (h *Handler) getFlight(c *gin.Context) {
	var req FlightRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.flights.Search(c.Request.Context(), travel.FlightQuery{
		Departure:     req.DepartureLocation,
		Arrival:       req.ArrivalLocation,
		DepartureDate: req.DepartureDateAndTime,
		ReturnDate:    req.ReturnDate,
	})
	if err != nil {
		h.logger.Error("flight search failed",
			zap.String("departure", req.DepartureLocation),
			zap.String("arrival", req.ArrivalLocation),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *Handler) getWeather(c *gin.Context) {
	var req WeatherRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	report, err := h.weather.Forecast(c.Request.Context(), req.Destination, req.StartDate, req.EndDate)
	if err != nil {
		h.logger.Error("weather lookup failed",
			zap.String("destination", req.Destination),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, report)
}
