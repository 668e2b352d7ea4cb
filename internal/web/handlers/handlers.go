package handlers

import (
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/saltyorg/cartridges/internal/backup"
	"github.com/saltyorg/cartridges/internal/database"
	"github.com/saltyorg/cartridges/internal/web/sse"
)

// VersionInfo holds application version information
type VersionInfo struct {
	Version string
	Commit  string
	Date    string // formatted for display
}

// Handlers contains all HTTP handlers
type Handlers struct {
	db            *database.DB
	templates     map[string]*template.Template
	backupMgr     *backup.Manager
	events        *sse.Broker
	logFilePath   string
	secureCookies bool
	versionInfo   VersionInfo
	versionMu     sync.RWMutex
	now           func() time.Time
}

// New creates a new Handlers instance. backupMgr and events may be nil.
func New(db *database.DB, templates map[string]*template.Template, backupMgr *backup.Manager, events *sse.Broker) *Handlers {
	return &Handlers{
		db:        db,
		templates: templates,
		backupMgr: backupMgr,
		events:    events,
		now:       time.Now,
	}
}

// SetLogFilePath sets the file that logging settings apply to
func (h *Handlers) SetLogFilePath(path string) {
	h.logFilePath = path
}

// SetSecureCookies marks flash cookies Secure, for deployments behind TLS
func (h *Handlers) SetSecureCookies(secure bool) {
	h.secureCookies = secure
}

// SetVersionInfo sets the application version information
func (h *Handlers) SetVersionInfo(version, commit, date string) {
	formattedDate := date
	if t, err := time.Parse(time.RFC3339, date); err == nil {
		formattedDate = t.Format("January 2, 2006")
	}

	h.versionMu.Lock()
	h.versionInfo = VersionInfo{Version: version, Commit: commit, Date: formattedDate}
	h.versionMu.Unlock()
}

func (h *Handlers) getVersionInfo() VersionInfo {
	h.versionMu.RLock()
	defer h.versionMu.RUnlock()
	return h.versionInfo
}

// PageData contains common data for all pages
type PageData struct {
	Title    string
	Nav      string // active navigation entry
	Flash    string
	FlashErr string
	Dialect  database.Dialect
	Target   string // redacted connection string
	Content  any
	Version  VersionInfo
}

// render renders a page template with common data
func (h *Handlers) render(w http.ResponseWriter, r *http.Request, name, nav string, data any) {
	pageData := PageData{
		Title:   "Cartridges",
		Nav:     nav,
		Dialect: h.db.Dialect(),
		Target:  h.db.Target().Redacted(),
		Content: data,
		Version: h.getVersionInfo(),
	}
	pageData.Flash = h.takeFlash(w, r, "flash")
	pageData.FlashErr = h.takeFlash(w, r, "flash_err")

	tmpl, ok := h.templates[name]
	if !ok {
		log.Error().Str("template", name).Msg("Template not found")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, "base", pageData); err != nil {
		log.Error().Err(err).Str("template", name).Msg("Failed to render template")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// renderPartial renders a named block of a page template
func (h *Handlers) renderPartial(w http.ResponseWriter, pageTemplate string, partialName string, data any) {
	tmpl, ok := h.templates[pageTemplate]
	if !ok {
		log.Error().Str("template", pageTemplate).Msg("Template not found for partial")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, partialName, data); err != nil {
		log.Error().Err(err).Str("partial", partialName).Msg("Failed to render partial")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// takeFlash reads and clears a flash cookie
func (h *Handlers) takeFlash(w http.ResponseWriter, r *http.Request, name string) string {
	cookie, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	h.setCookie(w, &http.Cookie{Name: name, MaxAge: -1, Path: "/"})

	msg, err := url.QueryUnescape(cookie.Value)
	if err != nil {
		return cookie.Value
	}
	return msg
}

// flash sets a flash message
func (h *Handlers) flash(w http.ResponseWriter, message string) {
	h.setCookie(w, &http.Cookie{
		Name:     "flash",
		Value:    url.QueryEscape(clip(message)),
		Path:     "/",
		MaxAge:   60,
		HttpOnly: true,
	})
}

// flashErr sets an error flash message
func (h *Handlers) flashErr(w http.ResponseWriter, message string) {
	h.setCookie(w, &http.Cookie{
		Name:     "flash_err",
		Value:    url.QueryEscape(clip(message)),
		Path:     "/",
		MaxAge:   60,
		HttpOnly: true,
	})
}

// maxFlashLen keeps escaped flash values under the browser cookie limit
const maxFlashLen = 1000

func clip(message string) string {
	if len(message) <= maxFlashLen {
		return message
	}
	return message[:maxFlashLen] + "..."
}

func (h *Handlers) setCookie(w http.ResponseWriter, c *http.Cookie) {
	c.SameSite = http.SameSiteLaxMode
	c.Secure = h.secureCookies
	http.SetCookie(w, c)
}

// fail logs err, flashes its classified description and redirects
func (h *Handlers) fail(w http.ResponseWriter, r *http.Request, to, action string, err error) {
	event := log.Error()
	switch database.Classify(err) {
	case database.KindInvalidInput, database.KindReferentialGuard, database.KindNotFound:
		event = log.Warn()
	}
	event.Err(err).Str("action", action).Msg("Request failed")

	h.flashErr(w, database.Describe(err))
	h.redirect(w, r, to)
}

// redirect redirects to a URL
func (h *Handlers) redirect(w http.ResponseWriter, r *http.Request, to string) {
	http.Redirect(w, r, to, http.StatusSeeOther)
}

// safeReturn returns the form's "return" path when it is a local path,
// otherwise fallback.
func safeReturn(r *http.Request, fallback string) string {
	ret := r.FormValue("return")
	if ret == "" || !strings.HasPrefix(ret, "/") || strings.HasPrefix(ret, "//") || strings.Contains(ret, "\\") {
		return fallback
	}
	return ret
}

// statusForError maps an error onto an HTTP status for JSON endpoints
func statusForError(err error) int {
	switch database.Classify(err) {
	case database.KindInvalidInput:
		return http.StatusBadRequest
	case database.KindNotFound:
		return http.StatusNotFound
	case database.KindReferentialGuard:
		return http.StatusConflict
	case database.KindConnectivity:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// jsonResponse writes v as JSON with the given status
func (h *Handlers) jsonResponse(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil && !errors.Is(err, http.ErrHandlerTimeout) {
		log.Debug().Err(err).Msg("Failed to write JSON response")
	}
}

// jsonError sends a JSON error response
func (h *Handlers) jsonError(w http.ResponseWriter, err error) {
	kind := database.Classify(err)
	h.jsonResponse(w, statusForError(err), map[string]string{
		"error": err.Error(),
		"kind":  kind.String(),
	})
}

// notify broadcasts an inventory change to dashboard clients
func (h *Handlers) notify(entity, action string, id int64) {
	if h.events != nil {
		h.events.InventoryChanged(entity, action, id)
	}
}
