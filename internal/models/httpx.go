package models

import (
	"encoding/json"
	"net/http"
)

// Problem представляет ответ об ошибке в стиле RFC 7807.
type Problem struct {
	Type     string `json:"type,omitempty"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
	Extra    any    `json:"extra,omitempty"` // произвольные поля (reqid, error в dev-режиме)
}

// WriteProblemAt пишет problem+json; instance обычно путь запроса.
func WriteProblemAt(w http.ResponseWriter, status int, title, detail, instance string, extra any) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Problem{
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: instance,
		Extra:    extra,
	})
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
