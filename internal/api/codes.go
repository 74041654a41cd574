// Package api exposes the code ledger read-only over HTTP and MCP.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/codewatch/internal/storage"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// CodeReader is the read side of the event store.
type CodeReader interface {
	GetCode(payload string) (storage.CodeEvent, error)
	ListCodes(limit, offset int) ([]storage.CodeEvent, error)
	ListRecentCodes(limit int) ([]storage.CodeEvent, error)
	ListDuplicates(payload string, limit int) ([]storage.DuplicateObservation, error)
	CountCodes() (int, error)
}

type AppDeps struct {
	Store CodeReader
	// ArchiveDir is where archived frames are served from. Empty disables /archive.
	ArchiveDir string
	Token      string
}

func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Get("/codes", handleListCodes(deps))
		r.Get("/codes/{payload}", handleGetCode(deps))
		r.Get("/duplicates", handleListDuplicates(deps))
		r.Get("/archive/{name}", handleArchive(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func handleListCodes(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", defaultPageSize, maxPageSize)
		offset := parseIntParam(r, "offset", 0, 0)

		codes, err := deps.Store.ListCodes(limit, offset)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list codes: %v", err)
			return
		}
		if total, err := deps.Store.CountCodes(); err == nil {
			w.Header().Set("X-Total-Count", strconv.Itoa(total))
		}

		if codes == nil {
			codes = []storage.CodeEvent{}
		}
		writeJSON(w, codes)
	}
}

func handleGetCode(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload := chi.URLParam(r, "payload")
		if p, err := url.PathUnescape(payload); err == nil {
			payload = p
		}

		code, err := deps.Store.GetCode(payload)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "code not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get code: %v", err)
			return
		}
		writeJSON(w, code)
	}
}

func handleListDuplicates(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", defaultPageSize, maxPageSize)
		payload := r.URL.Query().Get("payload")

		dups, err := deps.Store.ListDuplicates(payload, limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list duplicates: %v", err)
			return
		}
		if dups == nil {
			dups = []storage.DuplicateObservation{}
		}
		writeJSON(w, dups)
	}
}

func handleArchive(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.ArchiveDir == "" {
			httpError(w, http.StatusNotFound, "not_found", "archive not configured")
			return
		}
		name := chi.URLParam(r, "name")
		if !validArchiveName(name) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid archive file name %q", name)
			return
		}

		f, err := os.Open(filepath.Join(deps.ArchiveDir, name))
		if errors.Is(err, os.ErrNotExist) {
			httpError(w, http.StatusNotFound, "not_found", "archived frame not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to open archived frame: %v", err)
			return
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to stat archived frame: %v", err)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		http.ServeContent(w, r, name, info.ModTime(), f)
	}
}

// validArchiveName accepts plain file names with a .jpg extension only.
func validArchiveName(name string) bool {
	if name == "" || strings.HasPrefix(name, ".") {
		return false
	}
	if strings.ContainsAny(name, `/\`) || filepath.Base(name) != name {
		return false
	}
	return strings.HasSuffix(name, ".jpg") && len(name) > len(".jpg")
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
