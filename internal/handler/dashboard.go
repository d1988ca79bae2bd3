package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/sakif/comment-autoreply/internal/apperror"
	"github.com/sakif/comment-autoreply/internal/model"
)

// The services the dashboard endpoints call. The service package's concrete
// types satisfy them; tests substitute stubs.
type (
	ProfileService interface {
		GetProfile(ctx context.Context, userID string) (*model.User, error)
		SaveProfile(ctx context.Context, userID, name string) (*model.User, error)
	}

	CredentialService interface {
		GetCredentials(ctx context.Context, userID string) (*model.Credentials, error)
		ValidateCredentials(ctx context.Context, userID, igUserID, pageID, accessToken string) (*model.Credentials, error)
	}

	SettingsService interface {
		GetAutomationSettings(ctx context.Context, userID string) (*model.AutomationSettings, error)
		UpdateAutomationSettings(ctx context.Context, userID, keyword, message string, enabled bool) (*model.AutomationSettings, error)
	}

	ReplyLogService interface {
		ListReplyLogs(ctx context.Context, userID, status string, limit, offset int) ([]model.ReplyLog, error)
	}
)

// DashboardHandler serves the authenticated /api routes. Every route runs
// behind auth.RequireAuth and only ever touches the session user's data.
type DashboardHandler struct {
	profiles    ProfileService
	credentials CredentialService
	settings    SettingsService
	logs        ReplyLogService
	logger      *slog.Logger
}

func NewDashboardHandler(
	profiles ProfileService,
	credentials CredentialService,
	settings SettingsService,
	logs ReplyLogService,
	logger *slog.Logger,
) *DashboardHandler {
	return &DashboardHandler{
		profiles:    profiles,
		credentials: credentials,
		settings:    settings,
		logs:        logs,
		logger:      logger,
	}
}

// HandleGetProfile answers 404 until the setup flow saved a profile.
//
// HTTP: GET /api/profile
func (h *DashboardHandler) HandleGetProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	user, err := h.profiles.GetProfile(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

type saveProfileRequest struct {
	Name string `json:"name"`
}

// HandleSaveProfile creates or renames the profile.
//
// HTTP: PUT /api/profile
// REQUEST BODY: {"name": "Ana"}
func (h *DashboardHandler) HandleSaveProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req saveProfileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.profiles.SaveProfile(r.Context(), userID, req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// HandleGetCredentials returns the connection state. The access token is
// never included.
//
// HTTP: GET /api/credentials
func (h *DashboardHandler) HandleGetCredentials(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	creds, err := h.credentials.GetCredentials(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, creds)
}

type validateCredentialsRequest struct {
	IGUserID    string `json:"igUserId"`
	PageID      string `json:"pageId"`
	AccessToken string `json:"accessToken"`
}

// HandleValidateCredentials checks the submitted token against Instagram and
// stores it only if the check passes.
//
// HTTP: POST /api/credentials/validate
// REQUEST BODY: {"igUserId": "...", "pageId": "...", "accessToken": "..."}
func (h *DashboardHandler) HandleValidateCredentials(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req validateCredentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	creds, err := h.credentials.ValidateCredentials(r.Context(), userID, req.IGUserID, req.PageID, req.AccessToken)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, creds)
}

// HandleGetAutomation returns the rule, or 404 when none is configured.
//
// HTTP: GET /api/automation
func (h *DashboardHandler) HandleGetAutomation(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	settings, err := h.settings.GetAutomationSettings(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

type updateAutomationRequest struct {
	Keyword          string `json:"keyword"`
	AutoReplyMessage string `json:"autoReplyMessage"`
	Enabled          bool   `json:"automationEnabled"`
}

// HandleUpdateAutomation replaces the rule.
//
// HTTP: PUT /api/automation
// REQUEST BODY: {"keyword": "link", "autoReplyMessage": "DM sent!", "automationEnabled": true}
func (h *DashboardHandler) HandleUpdateAutomation(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req updateAutomationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	settings, err := h.settings.UpdateAutomationSettings(r.Context(), userID, req.Keyword, req.AutoReplyMessage, req.Enabled)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// HandleListLogs returns reply log entries, newest first.
//
// HTTP: GET /api/logs?status=all|success|failure&limit=50&offset=0
func (h *DashboardHandler) HandleListLogs(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	limit, err := intParam(q.Get("limit"), "limit")
	if err != nil {
		writeError(w, err)
		return
	}
	offset, err := intParam(q.Get("offset"), "offset")
	if err != nil {
		writeError(w, err)
		return
	}

	logs, err := h.logs.ListReplyLogs(r.Context(), userID, q.Get("status"), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

func intParam(raw, name string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperror.ValidationFailed(name, name+" must be a non-negative integer")
	}
	return n, nil
}
