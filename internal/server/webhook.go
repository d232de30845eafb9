package server

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/MMOzz/OSTKanBridge/internal/bridge"
	"github.com/MMOzz/OSTKanBridge/internal/idgen"
	"github.com/MMOzz/OSTKanBridge/internal/model"
	"github.com/MMOzz/OSTKanBridge/internal/syncerr"
)

// maxWebhookBody caps the size of a webhook delivery.
const maxWebhookBody = 1 << 20

// Kanboard webhook event names the bridge acts on.
const (
	eventMoveColumn = "task.move.column"
	eventUpdate     = "task.update"
)

type webhookPayload struct {
	EventName string         `json:"event_name"`
	EventData map[string]any `json:"event_data"`
}

// handleWebhook handles POST /webhook?token=<secret>.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if err := s.authorize(r); err != nil {
		writeSyncError(w, err)
		return
	}
	p, err := decodeDelivery(w, r)
	if err != nil {
		writeSyncError(w, err)
		return
	}

	id := idgen.WebhookID()
	ctx := bridge.WithRunID(r.Context(), id)
	log := s.log.With("run_id", id, "event_name", p.EventName)
	s.bridge.RecordWebhook(ctx, model.EventWebhookReceived, p.EventName)

	taskID := intField(p.EventData, "task_id")
	projectID := intField(p.EventData, "project_id")

	switch p.EventName {
	case eventMoveColumn:
		column := stringField(p.EventData, "column_name")
		if taskID == 0 || column == "" {
			log.Debug("move event without task id or column")
			writeOK(w, "ignored")
			return
		}
		result, _ := s.bridge.HandleColumnChange(ctx, bridge.ColumnChange{TargetID: taskID, ContainerID: projectID, Column: column})
		writeOK(w, result.String())

	case eventUpdate:
		if taskID == 0 {
			log.Debug("update event without task id")
			writeOK(w, "ignored")
			return
		}
		ch, err := s.bridge.ResolveTaskColumn(ctx, taskID, projectID)
		if err != nil {
			s.bridge.RecordWebhook(ctx, model.EventWebhookError, fmt.Sprintf("KB task #%d: %v", taskID, err))
			writeOK(w, "error")
			return
		}
		result, _ := s.bridge.HandleColumnChange(ctx, ch)
		writeOK(w, result.String())

	default:
		log.Debug("event not handled")
		writeOK(w, "ignored")
	}
}

// authorize checks the delivery token. An empty secret rejects everything.
func (s *Server) authorize(r *http.Request) error {
	token := r.URL.Query().Get("token")
	if s.secret == "" || subtle.ConstantTimeCompare([]byte(token), []byte(s.secret)) != 1 {
		return syncerr.E(syncerr.Auth, "webhook.authorize", errors.New("forbidden"))
	}
	return nil
}

func decodeDelivery(w http.ResponseWriter, r *http.Request) (webhookPayload, error) {
	const op = "webhook.decode"
	var p webhookPayload
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		return p, syncerr.E(syncerr.Validation, op, errors.New("request body too large or unreadable"))
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&p); err != nil || strings.TrimSpace(p.EventName) == "" {
		return p, syncerr.E(syncerr.Validation, op, errors.New("payload must be a JSON object with event_name"))
	}
	return p, nil
}

// httpStatus maps an error kind to the response code of a rejected delivery.
func httpStatus(err error) int {
	switch syncerr.KindOf(err) {
	case syncerr.Auth:
		return http.StatusForbidden
	case syncerr.Validation:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeSyncError(w http.ResponseWriter, err error) {
	msg := err.Error()
	var e *syncerr.Error
	if errors.As(err, &e) && e.Err != nil {
		msg = e.Err.Error()
	}
	writeError(w, httpStatus(err), msg)
}

func writeOK(w http.ResponseWriter, result string) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "result": result})
}

// intField reads a Kanboard id that may arrive as a number or a numeric string.
func intField(data map[string]any, key string) int64 {
	switch v := data[key].(type) {
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0
		}
		return n
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0
		}
		return n
	}
	return 0
}

func stringField(data map[string]any, key string) string {
	switch v := data[key].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	}
	return ""
}
