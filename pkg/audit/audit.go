// Package audit writes an append-only, one-JSON-object-per-line trail
// of every mutation the data management model performs, so "which
// application touched this resource, and when" is always answerable
// after the fact — the same question SPEC_FULL.md's provenance graphs
// answer for the live store, kept as a durable log instead of live
// queryable state.
package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/nepomuk-go/datacore/pkg/pool"
)

// EventType classifies one logged occurrence.
type EventType string

const (
	EventAddProperty            EventType = "ADD_PROPERTY"
	EventSetProperty            EventType = "SET_PROPERTY"
	EventRemoveProperty         EventType = "REMOVE_PROPERTY"
	EventCreateResource         EventType = "CREATE_RESOURCE"
	EventRemoveResources        EventType = "REMOVE_RESOURCES"
	EventRemoveDataByApp        EventType = "REMOVE_DATA_BY_APPLICATION"
	EventStoreResources         EventType = "STORE_RESOURCES"
	EventMergeResources         EventType = "MERGE_RESOURCES"
	EventOntologyImport         EventType = "ONTOLOGY_IMPORT"
	EventAgentAuth              EventType = "AGENT_AUTH"
	EventAgentAuthFailed        EventType = "AGENT_AUTH_FAILED"
	EventRejected               EventType = "MUTATION_REJECTED"
)

// Event is one immutable audit log entry.
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`

	// Agent is the calling application's identifier (SPEC_FULL.md
	// §4.3's "app" parameter).
	Agent string `json:"agent,omitempty"`

	// Resources named by the operation, when small enough to log in
	// full; for bulk operations this may be a count instead (see
	// ResourceCount).
	Resources     []string `json:"resources,omitempty"`
	ResourceCount int      `json:"resource_count,omitempty"`
	Property      string   `json:"property,omitempty"`
	Graph         string   `json:"graph,omitempty"`

	Success bool   `json:"success"`
	Reason  string `json:"reason,omitempty"`

	Metadata map[string]string `json:"metadata,omitempty"`
}

// Config configures the logger.
type Config struct {
	Enabled    bool
	LogPath    string
	SyncWrites bool
	// AlertOnEvents triggers the alert callback for matching types.
	AlertOnEvents []EventType
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:       true,
		LogPath:       "./logs/audit.log",
		SyncWrites:    true,
		AlertOnEvents: []EventType{EventRejected, EventAgentAuthFailed},
	}
}

// Logger appends Events to a JSON-lines file.
type Logger struct {
	mu       sync.Mutex
	writer   io.Writer
	file     *os.File
	config   Config
	sequence uint64
	closed   bool

	alertCallback func(Event)
}

// NewLogger opens (creating if necessary) the configured log file. If
// logging is disabled, returns a no-op logger.
func NewLogger(config Config) (*Logger, error) {
	if !config.Enabled {
		return &Logger{config: config}, nil
	}

	dir := filepath.Dir(config.LogPath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("creating audit log directory: %w", err)
	}
	file, err := os.OpenFile(config.LogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0640)
	if err != nil {
		return nil, fmt.Errorf("opening audit log file: %w", err)
	}
	return &Logger{writer: file, file: file, config: config}, nil
}

// NewLoggerWithWriter builds a logger around an arbitrary writer, for
// tests and in-memory audit trails.
func NewLoggerWithWriter(writer io.Writer, config Config) *Logger {
	config.Enabled = true
	return &Logger{writer: writer, config: config}
}

// SetAlertCallback installs fn, invoked synchronously whenever a
// logged event's Type is in config.AlertOnEvents.
func (l *Logger) SetAlertCallback(fn func(Event)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.alertCallback = fn
}

// Log appends event to the trail, stamping Timestamp/ID if unset.
func (l *Logger) Log(event Event) error {
	if !l.config.Enabled {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return fmt.Errorf("audit logger is closed")
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.ID == "" {
		l.sequence++
		event.ID = fmt.Sprintf("audit-%d-%d", event.Timestamp.UnixNano(), l.sequence)
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling audit event: %w", err)
	}
	line := pool.GetByteBuffer()
	line = append(line, data...)
	line = append(line, '\n')
	_, writeErr := l.writer.Write(line)
	pool.PutByteBuffer(line)
	if writeErr != nil {
		return fmt.Errorf("writing audit event: %w", writeErr)
	}
	if l.config.SyncWrites && l.file != nil {
		if err := l.file.Sync(); err != nil {
			return fmt.Errorf("syncing audit log: %w", err)
		}
	}

	if l.alertCallback != nil {
		for _, t := range l.config.AlertOnEvents {
			if event.Type == t {
				l.alertCallback(event)
				break
			}
		}
	}
	return nil
}

// LogMutation is the convenience entry point the data management model
// calls after every operation: one Event per call, whether it
// succeeded or was rejected.
func (l *Logger) LogMutation(eventType EventType, agent string, resources []string, property string, success bool, reason string) error {
	ev := Event{Type: eventType, Agent: agent, Property: property, Success: success, Reason: reason}
	if len(resources) <= 8 {
		ev.Resources = resources
	} else {
		ev.ResourceCount = len(resources)
	}
	return l.Log(ev)
}

// LogAgentAuth logs an authentication attempt against pkg/auth.
func (l *Logger) LogAgentAuth(agent string, success bool, reason string) error {
	t := EventAgentAuth
	if !success {
		t = EventAgentAuthFailed
	}
	return l.Log(Event{Type: t, Agent: agent, Success: success, Reason: reason})
}

// Close flushes and closes the underlying file, if any.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// Query filters Reader.Scan results.
type Query struct {
	Agent string
	Types []EventType
	Start time.Time
	End   time.Time
}

func (q Query) matches(e Event) bool {
	if q.Agent != "" && e.Agent != q.Agent {
		return false
	}
	if len(q.Types) > 0 {
		found := false
		for _, t := range q.Types {
			if e.Type == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if !q.Start.IsZero() && e.Timestamp.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && e.Timestamp.After(q.End) {
		return false
	}
	return true
}

// Reader replays a JSON-lines audit log for reporting.
type Reader struct {
	path string
}

// NewReader opens path for replay.
func NewReader(path string) *Reader {
	return &Reader{path: path}
}

// Query returns every event in the log matching q, in file order.
func (r *Reader) Query(q Query) ([]Event, error) {
	f, err := os.Open(r.path)
	if err != nil {
		return nil, fmt.Errorf("opening audit log: %w", err)
	}
	defer f.Close()

	var out []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var ev Event
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			continue
		}
		if q.matches(ev) {
			out = append(out, ev)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading audit log: %w", err)
	}
	return out, nil
}

// AgentActivity reports every event attributed to agent.
func (r *Reader) AgentActivity(agent string, start, end time.Time) ([]Event, error) {
	return r.Query(Query{Agent: agent, Start: start, End: end})
}
