package api

import (
	"encoding/json"
	"net/http"
)

type successBody struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data any    `json:"data"`
}

type errorBody struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Err  string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func jsonSuccess(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, successBody{Code: http.StatusOK, Msg: "success", Data: data})
}

func jsonError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorBody{Code: status, Msg: http.StatusText(status), Err: err.Error()})
}
