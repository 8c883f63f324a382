package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/MKhiriev/go-note-keeper/internal/config"
	"github.com/MKhiriev/go-note-keeper/internal/logger"
	"github.com/MKhiriev/go-note-keeper/internal/utils"
	"github.com/MKhiriev/go-note-keeper/models"
)

type httpServerAdapter struct {
	client *utils.HTTPClient

	mu    sync.RWMutex
	token string

	logger *logger.Logger
}

// NewHTTPServerAdapter constructs the HTTP/REST [ServerAdapter]. It
// normalises adapterCfg.HTTPAddress, configures the request timeout and
// initialises the HMAC hasher pool used for push integrity hashes.
func NewHTTPServerAdapter(adapterCfg config.Adapter, appCfg config.App, logger *logger.Logger) (ServerAdapter, error) {
	baseURL, err := normalizeBaseURL(adapterCfg.HTTPAddress)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidAddress, err)
	}

	utils.InitHasherPool(appCfg.HashKey)

	return &httpServerAdapter{
		client: utils.NewHTTPClient(baseURL, adapterCfg.RequestTimeout),
		logger: logger,
	}, nil
}

func normalizeBaseURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("empty address")
	}

	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("address must include host and scheme")
	}

	return strings.TrimRight(u.String(), "/"), nil
}

func (h *httpServerAdapter) SetToken(token string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.token = strings.TrimSpace(token)
}

func (h *httpServerAdapter) Token() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.token
}

// Pull implements [ServerAdapter]: GET /api/sync/{collection}?cursor=...
func (h *httpServerAdapter) Pull(ctx context.Context, collection, cursorToken string) (models.PullResponse, error) {
	var pulled models.PullResponse

	req := h.authedRequest(ctx).
		SetPathParam("collection", collection).
		SetResult(&pulled)
	if cursorToken != "" {
		req.SetQueryParam("cursor", cursorToken)
	}

	resp, err := req.Get("/api/sync/{collection}")
	if err != nil {
		return models.PullResponse{}, mapTransportError("pull", err)
	}
	if err = mapHTTPError(resp); err != nil {
		logger.FromContext(ctx).Err(err).Str("func", "httpServerAdapter.Pull").Str("collection", collection).Msg("pull rejected")
		return models.PullResponse{}, err
	}

	return pulled, nil
}

// Push implements [ServerAdapter]: POST /api/sync/{collection}. Hash is the
// HMAC of the JSON encoded entries.
func (h *httpServerAdapter) Push(ctx context.Context, collection string, entries []models.OutboxEntry) (models.PushResponse, error) {
	body := models.PushRequest{
		Entries: entries,
		Length:  len(entries),
		Hash:    computeTransportHash(entries),
	}

	var pushed models.PushResponse
	resp, err := h.authedRequest(ctx).
		SetPathParam("collection", collection).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		SetResult(&pushed).
		Post("/api/sync/{collection}")
	if err != nil {
		return models.PushResponse{}, mapTransportError("push", err)
	}
	if err = mapHTTPError(resp); err != nil {
		logger.FromContext(ctx).Err(err).Str("func", "httpServerAdapter.Push").Str("collection", collection).Msg("push rejected")
		return models.PushResponse{}, err
	}

	return pushed, nil
}

type timeResponse struct {
	ServerTime int64 `json:"serverTime"`
}

// ServerTime implements [ServerAdapter]: GET /api/time.
func (h *httpServerAdapter) ServerTime(ctx context.Context) (time.Time, error) {
	var result timeResponse

	resp, err := h.client.R().
		SetContext(ctx).
		SetResult(&result).
		Get("/api/time")
	if err != nil {
		return time.Time{}, mapTransportError("server time", err)
	}
	if err = mapHTTPError(resp); err != nil {
		return time.Time{}, err
	}
	if result.ServerTime <= 0 {
		return time.Time{}, fmt.Errorf("decode server time: missing serverTime in %q", resp.String())
	}

	return time.UnixMilli(result.ServerTime), nil
}

// RefreshToken implements [ServerAdapter]: POST /api/auth/refresh. The new
// token comes back in the Authorization header.
func (h *httpServerAdapter) RefreshToken(ctx context.Context) (string, error) {
	resp, err := h.authedRequest(ctx).Post("/api/auth/refresh")
	if err != nil {
		return "", mapTransportError("refresh token", err)
	}
	if err = mapHTTPError(resp); err != nil {
		return "", err
	}

	token, err := utils.ParseBearerToken(resp.Header().Get("Authorization"))
	if err != nil {
		return "", fmt.Errorf("refresh token parse bearer token: %w", err)
	}

	h.SetToken(token)
	return token, nil
}

// FetchUser implements [ServerAdapter]: GET /api/user.
func (h *httpServerAdapter) FetchUser(ctx context.Context) (models.User, error) {
	resp, err := h.authedRequest(ctx).Get("/api/user")
	if err != nil {
		return models.User{}, mapTransportError("fetch user", err)
	}
	if err = mapHTTPError(resp); err != nil {
		return models.User{}, err
	}

	var user models.User
	if err = json.Unmarshal(resp.Body(), &user); err != nil {
		return models.User{}, fmt.Errorf("decode user response: %w", err)
	}

	return user, nil
}

func (h *httpServerAdapter) authedRequest(ctx context.Context) *resty.Request {
	req := h.client.R().SetContext(ctx)
	if token := h.Token(); token != "" {
		req.SetHeader("Authorization", "Bearer "+token)
	}
	return req
}

func computeTransportHash(v any) string {
	payload, err := json.Marshal(v)
	if err != nil {
		return ""
	}

	return utils.HashHex(payload)
}
