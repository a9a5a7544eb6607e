package dto

type ChatRequest struct {
	Query string `json:"query"`
}
