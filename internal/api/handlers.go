package api

import (
	"encoding/json"
	"errors"
	"log"
	"mime"
	"net/http"

	"github.com/susu3304/piebot/internal/commands"
	"github.com/susu3304/piebot/internal/pie"
)

// commandRequest mirrors a Slack slash command payload.
type commandRequest struct {
	Command   string `json:"command"`
	Text      string `json:"text"`
	UserName  string `json:"user_name"`
	ChannelID string `json:"channel_id"`
}

type commandResponse struct {
	ResponseType string `json:"response_type"`
	Text         string `json:"text"`
	Error        string `json:"error,omitempty"`
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := a.store.Ping(r.Context()); err != nil {
		log.Printf("api: health check failed: %v", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{
			"status":  "unavailable",
			"message": pie.UserMessage(err),
		})
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (a *API) handleCommand(w http.ResponseWriter, r *http.Request) {
	req, err := decodeCommand(r)
	if err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Command == "" {
		http.Error(w, "missing command", http.StatusBadRequest)
		return
	}
	if req.UserName == "" {
		if c := claimsFrom(r.Context()); c != nil {
			req.UserName = c.Username
		}
	}

	resp := a.dispatcher.Dispatch(r.Context(), commands.Command{
		Name:    req.Command,
		Args:    req.Text,
		User:    req.UserName,
		Channel: req.ChannelID,
	})

	status := http.StatusOK
	out := commandResponse{ResponseType: "in_channel", Text: resp.Text}
	if resp.Err != nil {
		out.ResponseType = "ephemeral"
		out.Error = resp.Err.Error()
		if errors.Is(resp.Err, pie.ErrUnrecognizedCommand) {
			status = http.StatusNotFound
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(out)
}

func decodeCommand(r *http.Request) (commandRequest, error) {
	var req commandRequest
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		err := json.NewDecoder(r.Body).Decode(&req)
		return req, err
	}
	if err := r.ParseForm(); err != nil {
		return req, err
	}
	req.Command = r.PostForm.Get("command")
	req.Text = r.PostForm.Get("text")
	req.UserName = r.PostForm.Get("user_name")
	req.ChannelID = r.PostForm.Get("channel_id")
	return req, nil
}

func (a *API) handleReport(w http.ResponseWriter, r *http.Request) {
	resp := a.dispatcher.Dispatch(r.Context(), commands.Command{Name: "report"})
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if resp.Err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	w.Write([]byte(resp.Text))
}
