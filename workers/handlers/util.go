package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	log "github.com/sirupsen/logrus"
)

func responseJSON(w http.ResponseWriter, data interface{}, code int) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(data)
}

func responseError(w http.ResponseWriter, field, message string, code int) {
	responseJSON(w, &APIResponse{
		Status:  "error",
		Field:   field,
		Message: message,
	}, code)
}

// readJSON decodes and validates the request body, answering 400 itself on failure
func (a *API) readJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		log.Printf("Error reading request body: %s", err.Error())
		responseError(w, "", "Error reading request body", http.StatusBadRequest)
		return false
	}

	if err := json.Unmarshal(body, v); err != nil {
		log.Printf("Error unmarshalling request body: %s", err.Error())
		responseError(w, "", "Cannot unmarshal input JSON", http.StatusBadRequest)
		return false
	}

	if err := a.validate.Struct(v); err != nil {
		responseError(w, "", err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}
