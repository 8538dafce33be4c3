package server

import "ticketline/internal/domain"

type LoginRequest struct {
	Email    string `json:"email" example:"admin@ticketline.local"`
	Password string `json:"password" example:"change-me-now"`
}

type SessionResponse struct {
	Token string        `json:"token,omitempty"`
	User  domain.Record `json:"user"`
}

type ExistsResponse struct {
	Exists bool `json:"exists"`
}

type recordPath struct {
	ID string `path:"id"`
}

type recordBody struct {
	Body domain.Record `json:"body"`
}

type recordItem struct {
	ID   string        `path:"id"`
	Body domain.Record `json:"body"`
}

type recordResponse struct {
	Body domain.Record `json:"body"`
}

type listResponse struct {
	Body []domain.Record `json:"body"`
}

type healthResponse struct {
	Body struct {
		Status  string         `json:"status" example:"ok"`
		Records map[string]int `json:"records"`
	}
}
