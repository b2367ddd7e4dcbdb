package proxy

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// ErrorBody is the JSON body returned when the upstream call fails.
type ErrorBody struct {
	Error   bool   `json:"error"`
	Status  int    `json:"status"`
	Message string `json:"message"`
}

const healthBody = "Catalog Proxy OK"

func setCORS(h http.Header) {
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "*")
}

func writePreflight(w http.ResponseWriter) {
	setCORS(w.Header())
	w.WriteHeader(http.StatusNoContent)
}

func writeHealth(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Content-Type", "text/plain")
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Content-Length", strconv.Itoa(len(healthBody)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(healthBody))
}

func errorJSON(status int, message string) []byte {
	body, err := json.Marshal(ErrorBody{Error: true, Status: status, Message: message})
	if err != nil {
		// ErrorBody always marshals.
		panic(err)
	}
	return body
}

func writeError(w http.ResponseWriter, status int, message string) {
	body := errorJSON(status, message)
	h := w.Header()
	h.Set("Content-Type", "application/json")
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
