package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/mediacut/highlightd/internal/types"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// wsRequest is one client message: start a job or cancel one.
type wsRequest struct {
	Type string `json:"type"`
	Data struct {
		Videos          []string `json:"videos"`
		Text            string   `json:"text"`
		CaptionEnabled  bool     `json:"captionEnabled"`
		TransferEnabled bool     `json:"transferEnabled"`
		TaskID          string   `json:"taskId"`
	} `json:"data"`
}

// wsEvent is one server push message.
type wsEvent struct {
	Type string            `json:"type"`
	Data map[string]string `json:"data"`
}

// wsConn serializes writes through one channel; gorilla allows only a
// single concurrent writer per connection.
type wsConn struct {
	out  chan wsEvent
	quit chan struct{} // closed when the reader loop ends
	dead chan struct{} // closed when the writer goroutine ends
}

// send queues an event unless the connection is going away, reporting
// whether the event was accepted.
func (w *wsConn) send(ev wsEvent) bool {
	select {
	case w.out <- ev:
		return true
	case <-w.quit:
		return false
	case <-w.dead:
		return false
	}
}

// serveWS upgrades the connection and handles start/cancel messages.
// Each started job's notifications are streamed back until the terminal
// event; the connection itself stays open for further requests.
func (s *Server) serveWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	w := &wsConn{
		out:  make(chan wsEvent, subscriberBuffer),
		quit: make(chan struct{}),
		dead: make(chan struct{}),
	}
	defer close(w.quit)

	go func() {
		defer close(w.dead)
		for {
			select {
			case ev := <-w.out:
				if err := conn.WriteJSON(ev); err != nil {
					return
				}
			case <-w.quit:
				return
			}
		}
	}()

	for {
		var req wsRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		switch req.Type {
		case "start":
			s.handleStart(req, w)
		case "cancel":
			ok := s.jobs.Cancel(req.Data.TaskID)
			w.send(wsEvent{Type: "cancelAck", Data: map[string]string{
				"taskId":   req.Data.TaskID,
				"accepted": strconv.FormatBool(ok),
			}})
		default:
			w.send(wsEvent{Type: "error", Data: map[string]string{
				"message": "unknown message type: " + req.Type,
			}})
		}
	}
}

func (s *Server) handleStart(req wsRequest, w *wsConn) {
	payload, err := s.resolvePayload(processRequest{
		Videos:          req.Data.Videos,
		Text:            req.Data.Text,
		CaptionEnabled:  req.Data.CaptionEnabled,
		TransferEnabled: req.Data.TransferEnabled,
	})
	if err != nil {
		w.send(wsEvent{Type: "error", Data: map[string]string{"message": err.Error()}})
		return
	}

	job, err := s.jobs.Submit(payload)
	if err != nil {
		w.send(wsEvent{Type: "error", Data: map[string]string{"message": err.Error()}})
		return
	}

	// subscribe before acknowledging so no notification is missed
	events, cancel := s.hub.Subscribe(job.ID)
	w.send(wsEvent{Type: "submitted", Data: map[string]string{"taskId": job.ID}})

	// a job that fails within milliseconds can reach its terminal status
	// before the subscription existed; the hub has already dropped the
	// job then and would never close the channel, so replay the terminal
	// event from the record instead
	if cur, ok := s.jobs.Status(job.ID); ok && cur.Status.Terminal() {
		cancel()
		w.send(terminalEvent(cur))
		return
	}

	go func() {
		defer cancel()
		for n := range events {
			if !w.send(toEvent(n)) {
				return
			}
		}
	}()
}

// terminalEvent rebuilds a job's terminal push message from its stored
// record, for subscribers that arrived after the live one went out.
func terminalEvent(job types.Job) wsEvent {
	data := map[string]string{"taskId": job.ID, "final": "true"}
	switch job.Status {
	case types.JobStatusCompleted:
		data["message"] = "processing complete"
		data["outputDir"] = job.OutputDir
		if p := job.Progress["caption"]; strings.HasSuffix(p, ".mp4") {
			data["outputPath"] = p
		} else if p := job.Progress["merge_video"]; p != "" {
			data["outputPath"] = p
		}
		return wsEvent{Type: string(types.EventComplete), Data: data}
	case types.JobStatusCancelled:
		data["message"] = "processing cancelled"
		return wsEvent{Type: string(types.EventCancelled), Data: data}
	default:
		msg := job.Error
		if msg == "" {
			msg = "processing failed"
		}
		data["message"] = msg
		return wsEvent{Type: string(types.EventError), Data: data}
	}
}

func toEvent(n types.Notification) wsEvent {
	data := map[string]string{"taskId": n.JobID, "message": n.Message}
	for k, v := range n.Extras {
		data[k] = v
	}
	return wsEvent{Type: string(n.Type), Data: data}
}
