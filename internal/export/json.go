package export

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/sadopc/tempo/internal/store"
)

// DocumentVersion is written into every export. Imports accept any version
// with the same major number.
const DocumentVersion = "1.0"

var ErrUnsupportedVersion = errors.New("unsupported export version")

// Document is the JSON export of the local state.
type Document struct {
	Version                 string            `json:"version"`
	ExportedAt              time.Time         `json:"exportedAt"`
	Tasks                   []store.Task      `json:"tasks"`
	Sessions                []store.Session   `json:"sessions"`
	ActiveTask              *store.ActiveTask `json:"activeTask"`
	ActiveSession           *store.Session    `json:"activeSession"`
	CurrentSessionTaskIndex int               `json:"currentSessionTaskIndex"`
	Timer                   *store.TimerState `json:"timer,omitempty"`
}

func NewDocument(st store.State, now time.Time) Document {
	doc := Document{
		Version:                 DocumentVersion,
		ExportedAt:              now.UTC(),
		Tasks:                   st.Tasks,
		Sessions:                st.Sessions,
		ActiveTask:              st.ActiveTask,
		ActiveSession:           st.ActiveSession,
		CurrentSessionTaskIndex: st.CurrentSessionTaskIndex,
	}
	if doc.Tasks == nil {
		doc.Tasks = []store.Task{}
	}
	if doc.Sessions == nil {
		doc.Sessions = []store.Session{}
	}
	if st.ActiveTask != nil {
		timer := st.Timer
		timer.Running = false
		doc.Timer = &timer
	}
	return doc
}

// State converts the document back into engine state.
func (d Document) State() store.State {
	st := store.State{
		Tasks:                   d.Tasks,
		Sessions:                d.Sessions,
		ActiveTask:              d.ActiveTask,
		ActiveSession:           d.ActiveSession,
		CurrentSessionTaskIndex: d.CurrentSessionTaskIndex,
	}
	if d.Timer != nil {
		st.Timer = *d.Timer
		st.Timer.Running = false
	}
	return st
}

func WriteJSON(w io.Writer, st store.State, now time.Time) error {
	data, err := json.MarshalIndent(NewDocument(st, now), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write json: %w", err)
	}
	return nil
}

func ToJSON(st store.State, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create json file: %w", err)
	}
	if err := WriteJSON(f, st, time.Now()); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadJSON parses an export. Missing optional fields are left zero.
func ReadJSON(r io.Reader) (Document, error) {
	var doc Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return Document{}, fmt.Errorf("decode json: %w", err)
	}
	if doc.Version != "" {
		major, _, _ := strings.Cut(doc.Version, ".")
		if want, _, _ := strings.Cut(DocumentVersion, "."); major != want {
			return Document{}, fmt.Errorf("%w: %s", ErrUnsupportedVersion, doc.Version)
		}
	}
	if doc.ActiveSession != nil && doc.ActiveTask == nil {
		doc.ActiveSession = nil
	}
	return doc, nil
}

func FromJSON(path string) (Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return Document{}, fmt.Errorf("open json file: %w", err)
	}
	defer f.Close()
	return ReadJSON(f)
}
