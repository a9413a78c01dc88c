package dashboard

import (
	"encoding/json"
	"slices"
	"sync"
	"time"

	locsync "github.com/steveyegge/locsync/internal/sync"
)

// PassData describes a finished pass.
type PassData struct {
	Project          string            `json:"project"`
	Summary          string            `json:"summary"`
	Created          int               `json:"created"`
	Updated          int               `json:"updated"`
	Obsoleted        int               `json:"obsoleted"`
	Pulled           int               `json:"pulled"`
	Pushed           int               `json:"pushed"`
	Commits          int               `json:"commits"`
	FailedLocales    map[string]string `json:"failed_locales,omitempty"`
	SkippedResources []string          `json:"skipped_resources,omitempty"`
	DurationMS       int64             `json:"duration_ms"`
	DryRun           bool              `json:"dry_run,omitempty"`
}

// FailureData describes an aborted pass.
type FailureData struct {
	Project string `json:"project"`
	Error   string `json:"error"`
}

// HelloData is sent to new clients: the last pass of every project.
type HelloData struct {
	Projects []string             `json:"projects"`
	Last     map[string]*PassData `json:"last,omitempty"`
}

// Handler turns pass results into dashboard messages and remembers the
// last result of each project for newly connected clients.
type Handler struct {
	server *Server

	mu       sync.Mutex
	projects []string
	last     map[string]*PassData
}

// NewHandler creates a handler broadcasting through server. projects
// lists the watched projects.
func NewHandler(server *Server, projects []string) *Handler {
	return &Handler{
		server:   server,
		projects: slices.Sorted(slices.Values(projects)),
		last:     make(map[string]*PassData),
	}
}

// Hello returns the data of the message new clients receive.
func (h *Handler) Hello() any {
	h.mu.Lock()
	defer h.mu.Unlock()
	data := &HelloData{Projects: h.projects, Last: make(map[string]*PassData, len(h.last))}
	for slug, p := range h.last {
		data.Last[slug] = p
	}
	return data
}

// OnPass broadcasts the result of a pass. No-op passes are not broadcast.
func (h *Handler) OnPass(slug string, report *locsync.Report, err error) {
	if err != nil {
		h.send(MessageTypePassFailed, FailureData{Project: slug, Error: err.Error()})
		return
	}
	if report.NoOp {
		return
	}

	data := NewPassData(report)
	h.mu.Lock()
	h.last[slug] = data
	h.mu.Unlock()
	h.send(MessageTypePass, data)
}

func (h *Handler) send(typ MessageType, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		h.server.logger.Printf("Failed to marshal %s data: %v", typ, err)
		return
	}
	h.server.Broadcast(Message{Type: typ, Timestamp: time.Now().UTC(), Data: raw})
}

// NewPassData summarizes a report.
func NewPassData(r *locsync.Report) *PassData {
	pulled, pushed, commits := r.Totals()
	data := &PassData{
		Project:          r.Project,
		Summary:          r.Summary(),
		Created:          r.Entities.Created + r.Entities.Revived,
		Updated:          r.Entities.Updated,
		Obsoleted:        r.Entities.Obsoleted,
		Pulled:           pulled,
		Pushed:           pushed,
		Commits:          commits,
		SkippedResources: r.SkippedResources,
		DurationMS:       r.Duration.Milliseconds(),
		DryRun:           r.DryRun,
	}
	if len(r.FailedLocales) > 0 {
		data.FailedLocales = make(map[string]string, len(r.FailedLocales))
		for code, err := range r.FailedLocales {
			data.FailedLocales[code] = err.Error()
		}
	}
	return data
}
