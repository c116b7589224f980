// Package bus defines the request/response envelope exchanged between the
// daemon and its clients (CLI, page agents) and a small action router.
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"focuser/internal/models"
)

// Actions understood by the background controller.
const (
	ActionGetStatus      = "getStatus"
	ActionGetSettings    = "getSettings"
	ActionUpdateSettings = "updateSettings"

	ActionToggleBlocking     = "toggleBlocking"
	ActionUpdateBlockedSites = "updateBlockedSites"
	ActionAddBlockedSite     = "addBlockedSite"
	ActionRemoveBlockedSite  = "removeBlockedSite"
	ActionCheckURL           = "checkUrl"
	ActionTabUpdated         = "tabUpdated"
	ActionTemporaryUnblock   = "temporaryUnblock"
	ActionLogBypassRequest   = "logBypassRequest"
	ActionGetBypassRequests  = "getBypassRequests"

	ActionStartPomodoro  = "startPomodoro"
	ActionPausePomodoro  = "pausePomodoro"
	ActionResumePomodoro = "resumePomodoro"
	ActionStopPomodoro   = "stopPomodoro"
	ActionSkipSession    = "skipSession"
	ActionGetTimerStatus = "getTimerStatus"

	ActionAddTask      = "addTask"
	ActionUpdateTask   = "updateTask"
	ActionDeleteTask   = "deleteTask"
	ActionGetTasks     = "getTasks"
	ActionGetTask      = "getTask"
	ActionStartTask    = "startTask"
	ActionCompleteTask = "completeTask"
	ActionGetTaskStats = "getTaskStats"
	ActionExportTasks  = "exportTasks"
	ActionImportTasks  = "importTasks"

	ActionGetStatistics      = "getStatistics"
	ActionResetStatistics    = "resetStatistics"
	ActionSetStatistics      = "setStatistics"
	ActionGetPomodoroHistory = "getPomodoroHistory"
	ActionExportData         = "exportData"
	ActionImportData         = "importData"
	ActionResetAllData       = "resetAllData"

	ActionNotificationClicked = "notificationClicked"
)

const unknownAction = "Unknown action"

var ErrUnknownAction = errors.New(unknownAction)

// Message is a request on the bus. Only the fields an action reads need
// to be set.
type Message struct {
	Action string   `json:"action"`
	Sites  []string `json:"sites,omitempty"`
	Site   string   `json:"site,omitempty"`
	// Duration is minutes for startPomodoro and milliseconds for
	// temporaryUnblock.
	Duration float64            `json:"duration,omitempty"`
	TaskID   string             `json:"taskId,omitempty"`
	Task     *models.NewTask    `json:"task,omitempty"`
	Updates  *models.TaskUpdate `json:"updates,omitempty"`
	Filter   *models.TaskFilter `json:"filter,omitempty"`
	URL      string             `json:"url,omitempty"`
	TabID    string             `json:"tabId,omitempty"`
	Reason   string             `json:"reason,omitempty"`
	// Settings is a partial settings document.
	Settings json.RawMessage `json:"settings,omitempty"`
	// Data carries import payloads and setStatistics counters.
	Data           json.RawMessage `json:"data,omitempty"`
	NotificationID string          `json:"notificationId,omitempty"`
	ButtonIndex    *int            `json:"buttonIndex,omitempty"`
	Limit          int             `json:"limit,omitempty"`
}

type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func OK(data any) Response {
	return Response{Success: true, Data: data}
}

func Fail(err error) Response {
	return Response{Success: false, Error: err.Error()}
}

// Decode unmarshals a successful response's data into v.
func (r Response) Decode(v any) error {
	if !r.Success {
		return errors.New(r.Error)
	}
	if r.Data == nil {
		return nil
	}
	raw, ok := r.Data.(json.RawMessage)
	if !ok {
		var err error
		if raw, err = json.Marshal(r.Data); err != nil {
			return fmt.Errorf("encode response data: %w", err)
		}
	}
	return json.Unmarshal(raw, v)
}

// RawResponse is Response with undecoded data, as read by clients.
type RawResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

func (r RawResponse) Response() Response {
	resp := Response{Success: r.Success, Error: r.Error}
	if len(r.Data) > 0 {
		resp.Data = r.Data
	}
	return resp
}

// Handler serves one action. A returned error becomes a failed Response.
type Handler func(ctx context.Context, msg Message) (any, error)

// Router maps actions to handlers.
type Router struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRouter() *Router {
	return &Router{handlers: make(map[string]Handler)}
}

func (r *Router) Handle(action string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[action] = h
}

// Actions lists the registered actions in order.
func (r *Router) Actions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	actions := make([]string, 0, len(r.handlers))
	for a := range r.handlers {
		actions = append(actions, a)
	}
	sort.Strings(actions)
	return actions
}

func (r *Router) Dispatch(ctx context.Context, msg Message) Response {
	r.mu.RLock()
	h, ok := r.handlers[msg.Action]
	r.mu.RUnlock()
	if !ok {
		return Fail(ErrUnknownAction)
	}

	data, err := h(ctx, msg)
	if err != nil {
		return Fail(err)
	}
	return OK(data)
}
