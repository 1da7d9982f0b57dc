package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tenantops/platform-core/internal/pricing"
)

type VolumeQuoteRequest struct {
	UnitPrice float64 `json:"unit_price" binding:"required,gt=0"`
	Quantity  int     `json:"quantity" binding:"required,min=1"`
}

type TaxRequest struct {
	Amount     float64 `json:"amount" binding:"required,gt=0"`
	Country    string  `json:"country" binding:"required,len=2"`
	IsBusiness bool    `json:"is_business"`
	VATNumber  string  `json:"vat_number"`
}

type RegionalPriceRequest struct {
	USDPrice float64 `json:"usd_price" binding:"required,gt=0"`
	Currency string  `json:"currency" binding:"required,len=3"`
}

type ConvertRequest struct {
	Amount float64 `json:"amount" binding:"required,gt=0"`
	From   string  `json:"from" binding:"required,len=3"`
	To     string  `json:"to" binding:"required,len=3"`
	Date   string  `json:"date"`
}

func (h *Handler) VolumeQuote(c *gin.Context) {
	var req VolumeQuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, pricing.CalculatePrice(req.UnitPrice, req.Quantity))
}

func (h *Handler) CalculateTax(c *gin.Context) {
	var req TaxRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, h.tax.CalculateTax(req.Amount, req.Country, req.IsBusiness, req.VATNumber))
}

func (h *Handler) RegionalPrice(c *gin.Context) {
	var req RegionalPriceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	price := h.regional.Price(c.Request.Context(), req.USDPrice, req.Currency, time.Now())
	c.JSON(http.StatusOK, gin.H{
		"usd_price": req.USDPrice,
		"currency":  req.Currency,
		"price":     price,
	})
}

func (h *Handler) ConvertCurrency(c *gin.Context) {
	var req ConvertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	date := time.Now()
	if req.Date != "" {
		parsed, err := time.Parse("2006-01-02", req.Date)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Date must be YYYY-MM-DD"})
			return
		}
		date = parsed
	}

	converted := h.currency.Convert(c.Request.Context(), req.Amount, req.From, req.To, date)
	c.JSON(http.StatusOK, gin.H{
		"amount":    req.Amount,
		"from":      req.From,
		"to":        req.To,
		"converted": converted,
	})
}
