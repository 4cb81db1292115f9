package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/reelguard/reelguard/internal/config"
	"github.com/reelguard/reelguard/internal/database"
	"github.com/reelguard/reelguard/internal/models"
	"github.com/reelguard/reelguard/internal/reporter"
	"github.com/reelguard/reelguard/internal/service"
	"github.com/reelguard/reelguard/pkg/utils"
)

const (
	defaultActionLimit = 50
	maxActionLimit     = 500
	statusErrorLimit   = 5
)

// Store is the repository surface the API uses
type Store interface {
	reporter.Source
	SetPackageEnabled(name string, enabled bool) error
	GetRecentActions(limit int) ([]*models.ActionLog, error)
	GetLatestAction() (*models.ActionLog, error)
	GetRecentErrors(limit int) ([]*models.ErrorLog, error)
}

// StatusFunc reports the in-process detection service
type StatusFunc func() service.Status

type Handler struct {
	config   *config.Config
	repo     Store
	reporter *reporter.Reporter
	status   StatusFunc
}

func NewHandler(cfg *config.Config, repo Store, status StatusFunc) *Handler {
	return &Handler{
		config:   cfg,
		repo:     repo,
		reporter: reporter.New(cfg, repo),
		status:   status,
	}
}

func (h *Handler) SetupRoutes(r chi.Router) {
	r.Get("/health", h.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", h.handleStatus)
		r.Get("/packages", h.handlePackages)
		r.Put("/packages/{name}", h.handleSetPackage)
		r.Get("/report", h.handleReport)
		r.Get("/actions", h.handleActions)
	})

	r.Get("/", h.handleIndex)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"running":       false,
		"platform":      h.config.Platform.Name,
		"cooldown":      h.config.Engine.Cooldown.String(),
		"database_path": h.config.Database.Path,
	}

	if h.status != nil {
		s := h.status()
		status["running"] = s.Running
		status["service"] = s
	}

	if latest, err := h.repo.GetLatestAction(); err == nil && latest != nil {
		status["latest_action"] = map[string]interface{}{
			"package_name": latest.PackageName,
			"action":       latest.Action,
			"success":      latest.Success,
			"timestamp":    latest.Timestamp,
		}
	}

	if errs, err := h.repo.GetRecentErrors(statusErrorLimit); err == nil {
		recent := make([]map[string]interface{}, 0, len(errs))
		for _, e := range errs {
			recent = append(recent, map[string]interface{}{
				"component": e.Component,
				"error":     e.ErrorMsg,
				"timestamp": e.Timestamp,
			})
		}
		status["recent_errors"] = recent
	}

	respondJSON(w, http.StatusOK, status)
}

func (h *Handler) handlePackages(w http.ResponseWriter, r *http.Request) {
	pkgs, err := h.repo.ListTrackedPackages()
	if err != nil {
		respondError(w, http.StatusInternalServerError, fmt.Errorf("failed to list packages: %w", err))
		return
	}
	if pkgs == nil {
		pkgs = []models.TrackedPackage{}
	}
	respondJSON(w, http.StatusOK, pkgs)
}

func (h *Handler) handleSetPackage(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var req struct {
		Enabled *bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, fmt.Errorf("invalid body: %w", err))
		return
	}
	if req.Enabled == nil {
		respondError(w, http.StatusBadRequest, errors.New(`missing "enabled"`))
		return
	}

	if err := h.repo.SetPackageEnabled(name, *req.Enabled); err != nil {
		if errors.Is(err, database.ErrPackageNotFound) {
			respondError(w, http.StatusNotFound, fmt.Errorf("package %s is not tracked", name))
			return
		}
		respondError(w, http.StatusInternalServerError, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"package_name": name,
		"enabled":      *req.Enabled,
	})
}

func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	periodType := r.URL.Query().Get("period")
	if periodType == "" {
		periodType = "day"
	}

	if _, err := reporter.Period(periodType, time.Now()); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	report, err := h.reporter.GenerateReport(periodType)
	if err != nil {
		respondError(w, http.StatusInternalServerError, fmt.Errorf("failed to generate report: %w", err))
		return
	}

	if r.Header.Get("HX-Request") == "true" {
		h.respondReportHTML(w, report)
		return
	}

	respondJSON(w, http.StatusOK, report)
}

func (h *Handler) respondReportHTML(w http.ResponseWriter, report *models.Report) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	if len(report.Packages) == 0 {
		w.Write([]byte(`<div class="loading">Nothing redirected</div>`))
		return
	}

	var b strings.Builder
	b.WriteString(`<div class="listing">`)
	now := time.Now()
	for _, p := range report.Packages {
		name := p.PackageName
		if p.Label != "" {
			name = p.Label
		}
		fmt.Fprintf(&b, `
		<div class="app-item" style="--bar-width: %.1f%%">
			<span class="app-name">%s</span>
			<div>
				<span class="app-count">%d</span>
				<span class="app-last">%s</span>
			</div>
		</div>`, p.Percentage, html.EscapeString(name), p.TriggerCount, utils.FormatAgo(p.LastTriggered, now))
	}
	b.WriteString(`</div>`)
	fmt.Fprintf(&b, `<div class="total">Total: %d</div>`, report.TotalTriggers)

	w.Write([]byte(b.String()))
}

func (h *Handler) handleActions(w http.ResponseWriter, r *http.Request) {
	limit := defaultActionLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		l, err := strconv.Atoi(s)
		if err != nil || l < 1 {
			respondError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", s))
			return
		}
		limit = min(l, maxActionLimit)
	}

	actions, err := h.repo.GetRecentActions(limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, fmt.Errorf("failed to fetch actions: %w", err))
		return
	}
	if actions == nil {
		actions = []*models.ActionLog{}
	}
	respondJSON(w, http.StatusOK, actions)
}

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(indexHTML))
}

const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>ReelGuard</title>
    <script src="https://unpkg.com/htmx.org@1.9.10"></script>
    <style>
        body { font-family: -apple-system, 'Segoe UI', Roboto, sans-serif; background: #f5f5f5; padding: 20px; color: #333; }
        .dashboard { display: flex; gap: 20px; flex-wrap: wrap; }
        .report-box { flex: 1; min-width: 300px; background: white; border-radius: 8px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); padding: 24px; }
        .report-box h2 { color: #2c3e50; border-bottom: 2px solid #3498db; padding-bottom: 10px; }
        .app-item { display: flex; justify-content: space-between; padding: 12px 8px; border-bottom: 1px solid #eee; }
        .app-count { color: #3498db; font-weight: 600; }
        .app-last { color: #7f8c8d; margin-left: 10px; }
        .loading { color: #7f8c8d; font-style: italic; }
        .total { margin-top: 20px; font-weight: 600; color: #2c3e50; }
    </style>
</head>
<body>
    <h1>Short-form video redirected</h1>
    <div class="dashboard">
        <div class="report-box">
            <h2>Today</h2>
            <div hx-get="/api/report?period=day" hx-trigger="load, every 30s" hx-swap="innerHTML">
                <div class="loading">Loading...</div>
            </div>
        </div>
        <div class="report-box">
            <h2>This Week</h2>
            <div hx-get="/api/report?period=week" hx-trigger="load, every 30s" hx-swap="innerHTML">
                <div class="loading">Loading...</div>
            </div>
        </div>
        <div class="report-box">
            <h2>This Month</h2>
            <div hx-get="/api/report?period=month" hx-trigger="load, every 30s" hx-swap="innerHTML">
                <div class="loading">Loading...</div>
            </div>
        </div>
    </div>
</body>
</html>`

func respondJSON(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, PUT, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	w.WriteHeader(code)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Error encoding JSON: %v", err)
	}
}

func respondError(w http.ResponseWriter, code int, err error) {
	respondJSON(w, code, map[string]string{"error": err.Error()})
}
