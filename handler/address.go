package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ikonrealty/closingdesk/model"
	"github.com/ikonrealty/closingdesk/service"
)

type selectAddressRequest struct {
	Candidate model.GeocodeCandidate `json:"candidate"`
}

// SelectAddress locks a geocoder candidate in as the upload address
func SelectAddress(c *gin.Context) {
	var req selectAddressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	addr, err := service.SelectAddress(req.Candidate)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"address": addr,
		"label":   addr.Label(),
		"lock":    addr.Lock(),
	})
}

type candidatesRequest struct {
	Query      string                   `json:"query"`
	Candidates []model.GeocodeCandidate `json:"candidates"`
}

// Candidates keeps the geocoder results an agent may pick. Queries shorter
// than the search minimum yield nothing.
func Candidates(c *gin.Context) {
	var req candidatesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if !service.ShouldSearch(req.Query) {
		c.JSON(http.StatusOK, gin.H{"addresses": []model.Address{}, "search": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"addresses": service.SelectableAddresses(req.Candidates),
		"search":    true,
	})
}
