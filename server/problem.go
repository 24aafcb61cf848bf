package server

import (
	"encoding/json"
	"net/http"
)

// problem is a minimal problem+json error body.
type problem struct {
	Title  string `json:"title"`
	Detail string `json:"detail,omitempty"`
	Status int    `json:"status"`
}

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set(headerContentType, mimeTypeProblem)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(problem{Title: title, Detail: detail, Status: status})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set(headerContentType, mimeTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
