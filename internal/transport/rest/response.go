package rest

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"condobill/internal/service"
)

type APIResponse struct {
	Code    string      `json:"code"`
	Status  string      `json:"status"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

func Response(w http.ResponseWriter, message string, data interface{}, code string, status string, httpStatus int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)

	response := APIResponse{
		Code:    code,
		Status:  status,
		Message: message,
		Data:    data,
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Printf("[HTTP] write response error: %v", err)
	}
}

func Success(w http.ResponseWriter, message string, data interface{}) {
	Response(w, message, data, "ok", "success", http.StatusOK)
}

func SuccessCreated(w http.ResponseWriter, message string, data interface{}) {
	Response(w, message, data, "ok", "success", http.StatusCreated)
}

func Error(w http.ResponseWriter, message string, code string, httpStatus int) {
	Response(w, message, nil, code, "error", httpStatus)
}

func ErrorBadRequest(w http.ResponseWriter, message string) {
	Error(w, message, "validation", http.StatusBadRequest)
}

func ErrorUnauthorized(w http.ResponseWriter, message string) {
	Error(w, message, "unauthorized", http.StatusUnauthorized)
}

func ErrorInternal(w http.ResponseWriter, message string) {
	Error(w, message, "internal", http.StatusInternalServerError)
}

// domainStatus maps stable machine codes to HTTP statuses. Ownership
// mismatches are folded into obligation_not_found upstream, so 404 is the
// only absence status exposed here.
func domainStatus(code string) int {
	switch code {
	case "obligation_not_found", "payment_not_found":
		return http.StatusNotFound
	case "conflict_retry":
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

// ErrorFromService renders a domain error with its stable code, or a
// generic 500 for anything unexpected.
func ErrorFromService(w http.ResponseWriter, err error) {
	var domainErr *service.DomainError
	if errors.As(err, &domainErr) {
		Error(w, domainErr.Message, domainErr.Code, domainStatus(domainErr.Code))
		return
	}
	log.Printf("[HTTP] internal error: %v", err)
	ErrorInternal(w, "internal error")
}
