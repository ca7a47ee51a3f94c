// Package api 通过 HTTP 暴露会话、命令、profile 和探测操作。
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/wentf9/routerctl/pkg/config"
	"github.com/wentf9/routerctl/pkg/logger"
	"github.com/wentf9/routerctl/pkg/service"
	"github.com/wentf9/routerctl/pkg/transport"
)

// RequestIDHeader 请求 ID, 调用方未提供时生成
const RequestIDHeader = "X-Request-ID"

// StatusClientClosedRequest 调用方取消请求, 沿用 nginx 的 499
const StatusClientClosedRequest = 499

const maxBodyBytes = 1 << 20

type handler struct {
	svc *service.Service
	log *slog.Logger
}

// Router 注册全部路由
func Router(svc *service.Service, log *slog.Logger) http.Handler {
	h := &handler{svc: svc, log: logger.Or(log)}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.health)
	mux.HandleFunc("GET /api/routers", h.listRouters)
	mux.HandleFunc("GET /api/profiles", h.listProfiles)
	mux.HandleFunc("POST /api/session", h.runSession)
	mux.HandleFunc("POST /api/routers/{name}/profiles/{profile}", h.runProfile)
	mux.HandleFunc("POST /api/command", h.runCommand)
	mux.HandleFunc("GET /api/routers/{name}/probe", h.probe)

	return h.withRequestID(mux)
}

type ctxKey struct{}

func (h *handler) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		log := h.log.With("request_id", id)
		started := time.Now()
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, log)))
		log.Info("request", "method", r.Method, "path", r.URL.Path, "elapsed", time.Since(started))
	})
}

func (h *handler) logger(r *http.Request) *slog.Logger {
	if l, ok := r.Context().Value(ctxKey{}).(*slog.Logger); ok {
		return l
	}
	return h.log
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, http.StatusOK, map[string]any{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *handler) listRouters(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, http.StatusOK, map[string]any{"routers": h.svc.ListRouters()})
}

func (h *handler) listProfiles(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, http.StatusOK, map[string]any{"profiles": h.svc.Profiles()})
}

func (h *handler) runSession(w http.ResponseWriter, r *http.Request) {
	var req service.SessionRequest
	if !h.decode(w, r, &req) {
		return
	}
	resp, err := h.svc.RunSession(r.Context(), req)
	h.writeResponse(w, r, resp, err)
}

func (h *handler) runProfile(w http.ResponseWriter, r *http.Request) {
	req := service.ProfileRequest{}
	// body 可选, 用于覆盖接口列表和静默时间
	if !h.decodeOptional(w, r, &req) {
		return
	}
	req.Router = r.PathValue("name")
	req.Profile = r.PathValue("profile")
	resp, err := h.svc.RunProfile(r.Context(), req)
	h.writeResponse(w, r, resp, err)
}

func (h *handler) runCommand(w http.ResponseWriter, r *http.Request) {
	var req service.CommandRequest
	if !h.decode(w, r, &req) {
		return
	}
	resp, err := h.svc.RunCommand(r.Context(), req)
	h.writeResponse(w, r, resp, err)
}

func (h *handler) probe(w http.ResponseWriter, r *http.Request) {
	rep, err := h.svc.Probe(r.Context(), r.PathValue("name"))
	if err != nil {
		h.writeJSON(w, r, StatusFor(err), transport.Response{Error: err.Error(), Kind: transport.KindOf(err)})
		return
	}
	h.writeJSON(w, r, http.StatusOK, rep)
}

func (h *handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	return h.decodeBody(w, r, v, false)
}

// decodeOptional 空 body (包括长度未知的 chunked 空 body) 视为没有参数
func (h *handler) decodeOptional(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.ContentLength == 0 {
		return true
	}
	return h.decodeBody(w, r, v, true)
}

func (h *handler) decodeBody(w http.ResponseWriter, r *http.Request, v any, optional bool) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return true
		}
		h.logger(r).Warn("invalid request body", "path", r.URL.Path, "error", err)
		h.writeJSON(w, r, http.StatusBadRequest, transport.Response{Error: "invalid request body: " + err.Error(), Kind: transport.KindInvalid})
		return false
	}
	return true
}

func (h *handler) writeResponse(w http.ResponseWriter, r *http.Request, resp transport.Response, err error) {
	status := StatusFor(err)
	if err != nil {
		h.logger(r).Warn("operation failed", "path", r.URL.Path, "kind", resp.Kind, "error", err)
	}
	h.writeJSON(w, r, status, resp)
}

func (h *handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger(r).Error("failed to encode response", "error", err)
	}
}

// StatusFor 错误类别到 HTTP 状态码
func StatusFor(err error) int {
	if err == nil {
		return http.StatusOK
	}
	if errors.Is(err, config.ErrRouterNotFound) || errors.Is(err, config.ErrProfileNotFound) {
		return http.StatusNotFound
	}
	switch transport.KindOf(err) {
	case transport.KindInvalid:
		return http.StatusBadRequest
	case transport.KindTimeout:
		return http.StatusGatewayTimeout
	case transport.KindCanceled:
		return StatusClientClosedRequest
	case transport.KindConnection, transport.KindChannel, transport.KindRemoteCommand:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
