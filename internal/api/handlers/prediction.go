package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"stockcast/internal/forecast"
	"stockcast/internal/marketdata"
	"stockcast/internal/models"
	"stockcast/internal/modelstore"
	"stockcast/internal/services"
	"stockcast/internal/utils"
	"stockcast/internal/worker"
)

type PredictionHandler struct {
	service    *services.ForecastService
	store      *modelstore.Store
	provider   marketdata.Provider
	serverless bool
	logger     *logrus.Logger
}

func NewPredictionHandler(
	service *services.ForecastService,
	store *modelstore.Store,
	provider marketdata.Provider,
	serverless bool,
	logger *logrus.Logger,
) *PredictionHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &PredictionHandler{
		service:    service,
		store:      store,
		provider:   provider,
		serverless: serverless,
		logger:     logger,
	}
}

// ForecastResponse is the wire shape of a forecast reply.
type ForecastResponse struct {
	Symbol              string                 `json:"symbol"`
	RequestedAt         time.Time              `json:"requestedAt"`
	HorizonDays         int                    `json:"horizonDays"`
	Points              []models.ForecastPoint `json:"points"`
	ModelTier           models.ModelTier       `json:"modelTier"`
	AccuracyEstimate    float64                `json:"accuracyEstimate"`
	TechnicalIndicators *IndicatorBlock        `json:"technicalIndicators,omitempty"`
	Cached              bool                   `json:"cached"`
}

// IndicatorBlock reports the latest indicator values. A nil field means the
// history was too short for that indicator and it is omitted from the body.
type IndicatorBlock struct {
	SMA        *float64 `json:"sma,omitempty"`
	RSI        *float64 `json:"rsi,omitempty"`
	MACD       *float64 `json:"macd,omitempty"`
	MACDSignal *float64 `json:"macdSignal,omitempty"`
}

// GetForecast handles GET /predictions/:symbol?startDate=&exchange=&days=.
func (h *PredictionHandler) GetForecast(c *gin.Context) {
	symbol := c.Param("symbol")

	days := 7
	if raw := c.Query("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "days must be a positive integer"})
			return
		}
		days = parsed
	}

	var startDate time.Time
	if raw := c.Query("startDate"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "startDate must be YYYY-MM-DD"})
			return
		}
		startDate = parsed
	}

	resp, err := h.service.Forecast(c.Request.Context(), services.ForecastRequest{
		Symbol:       symbol,
		ExchangeHint: c.Query("exchange"),
		StartDate:    startDate,
		HorizonDays:  days,
		UserID:       c.Query("userId"),
	})
	if err != nil {
		h.writeForecastError(c, err)
		return
	}

	out := ForecastResponse{
		Symbol:           resp.Result.Symbol,
		RequestedAt:      resp.Result.RequestedAt,
		HorizonDays:      resp.Result.HorizonDays,
		Points:           resp.Result.Points,
		ModelTier:        resp.Result.ModelTier,
		AccuracyEstimate: resp.Result.AccuracyEstimate,
		Cached:           resp.Cached,
	}
	if resp.Indicators != nil {
		out.TechnicalIndicators = &IndicatorBlock{
			SMA:        resp.Indicators.SMA,
			RSI:        resp.Indicators.RSI,
			MACD:       resp.Indicators.MACD,
			MACDSignal: resp.Indicators.MACDSignal,
		}
	}
	c.JSON(http.StatusOK, out)
}

// TrainRequest carries the tunables for an explicit training run.
type TrainRequest struct {
	Period         string  `json:"period"`
	Epochs         int     `json:"epochs"`
	SequenceLength int     `json:"sequenceLength"`
	TestSize       float64 `json:"testSize"`
}

// Train handles POST /predictions/train/:symbol. Unlike the fallback chain,
// worker failures here are surfaced verbatim: training is an intentional,
// observable operation.
func (h *PredictionHandler) Train(c *gin.Context) {
	if h.serverless {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "training is disabled in serverless deployments"})
		return
	}

	// An empty or malformed body is fine; defaults apply.
	var req TrainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		req = TrainRequest{}
	}

	symbol := h.service.Normalize(c.Param("symbol"), c.Query("exchange"))

	// Validate the symbol against the provider before spending a training run.
	if _, err := h.provider.GetQuote(c.Request.Context(), symbol); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol cannot be validated: " + err.Error()})
		return
	}

	record, err := h.store.Train(c.Request.Context(), symbol, modelstore.TrainOptions{
		Period:         req.Period,
		Epochs:         req.Epochs,
		SequenceLength: req.SequenceLength,
		TestSize:       req.TestSize,
	})
	if err != nil {
		h.logger.WithFields(logrus.Fields{"symbol": symbol}).Errorf("Training failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, record)
}

// ListModels handles GET /predictions/models.
func (h *PredictionHandler) ListModels(c *gin.Context) {
	records, err := h.store.ListModels(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if records == nil {
		records = []models.TrainedModelRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"models": records, "total": len(records)})
}

// GetModel handles GET /predictions/models/:symbol.
func (h *PredictionHandler) GetModel(c *gin.Context) {
	symbol := h.service.Normalize(c.Param("symbol"), c.Query("exchange"))
	record, err := h.store.GetModel(c.Request.Context(), symbol)
	if errors.Is(err, modelstore.ErrNoTrainedModel) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no trained model for " + symbol})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, record)
}

// DeleteModel handles DELETE /predictions/models/:symbol.
func (h *PredictionHandler) DeleteModel(c *gin.Context) {
	symbol := h.service.Normalize(c.Param("symbol"), c.Query("exchange"))
	deleted, err := h.store.DeleteModel(c.Request.Context(), symbol)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, gin.H{"error": "no trained model for " + symbol})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": symbol})
}

// PredictTrained handles GET /predictions/lstm/:symbol?days=, forcing the
// trained-model tier directly and bypassing the rest of the chain.
func (h *PredictionHandler) PredictTrained(c *gin.Context) {
	symbol := h.service.Normalize(c.Param("symbol"), c.Query("exchange"))

	days := 7
	if raw := c.Query("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "days must be a positive integer"})
			return
		}
		days = parsed
	}

	predictions, err := h.store.Predict(c.Request.Context(), symbol, days)
	if errors.Is(err, modelstore.ErrNoTrainedModel) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no trained model for " + symbol})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	points, err := forecast.BandedPoints(&models.PriceSeries{Symbol: symbol}, predictions, days, 0.05)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, ForecastResponse{
		Symbol:      symbol,
		RequestedAt: time.Now(),
		HorizonDays: days,
		Points:      points,
		ModelTier:   models.TierTrainedNeuralSequence,
	})
}

func (h *PredictionHandler) writeForecastError(c *gin.Context, err error) {
	var insufficient *utils.InsufficientHistoryError
	if errors.As(err, &insufficient) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":          insufficient.Error(),
			"requiredPoints": insufficient.Required,
		})
		return
	}
	var invalid *marketdata.InvalidSymbolError
	if errors.As(err, &invalid) {
		c.JSON(http.StatusBadRequest, gin.H{"error": invalid.Error()})
		return
	}
	var workerErr *worker.Error
	if errors.As(err, &workerErr) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": workerErr.Error()})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
