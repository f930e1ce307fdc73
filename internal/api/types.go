package api

import (
	"github.com/redalert-desktop/redalert/internal/alerts"
	"github.com/redalert-desktop/redalert/internal/database"
)

// LoginRequest is the body of POST /auth/login
type LoginRequest struct {
	Username string `json:"username" validate:"required,max=64"`
	Password string `json:"password" validate:"required,max=256"`
}

// LoginResponse is returned on successful login
type LoginResponse struct {
	Token     string `json:"token"`
	Username  string `json:"username"`
	ExpiresIn int    `json:"expires_in"` // seconds
}

// AlertsResponse wraps a list of alerts
type AlertsResponse struct {
	Alerts []alerts.Alert `json:"alerts"`
	Count  int            `json:"count"`
}

// HistoryResponse wraps stored history records
type HistoryResponse struct {
	Records []database.AlertRecord `json:"records"`
	Count   int                    `json:"count"`
}
