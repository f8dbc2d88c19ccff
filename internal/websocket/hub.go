package websocket

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/artistamplifier/api/internal/model"
)

// Hub fans analysis progress out to the clients watching a job. Events for
// jobs nobody watches are dropped, and a subscriber that stops reading is
// cut loose rather than allowed to stall the queue.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]map[*subscriber]struct{}
	events      chan event
}

type subscriber struct {
	jobID string
	send  chan []byte
}

type event struct {
	jobID   string
	payload []byte
}

// NewHub creates an empty hub. Call Run on its own goroutine to start it.
func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[string]map[*subscriber]struct{}),
		events:      make(chan event, 256),
	}
}

// Run drains the event queue and delivers each event to the subscribers of
// its job.
func (h *Hub) Run() {
	for ev := range h.events {
		var stale []*subscriber

		h.mu.RLock()
		for sub := range h.subscribers[ev.jobID] {
			select {
			case sub.send <- ev.payload:
			default:
				stale = append(stale, sub)
			}
		}
		h.mu.RUnlock()

		for _, sub := range stale {
			h.unsubscribe(sub)
		}
	}
}

func (h *Hub) subscribe(jobID string) *subscriber {
	sub := &subscriber{jobID: jobID, send: make(chan []byte, 64)}

	h.mu.Lock()
	if h.subscribers[jobID] == nil {
		h.subscribers[jobID] = make(map[*subscriber]struct{})
	}
	h.subscribers[jobID][sub] = struct{}{}
	h.mu.Unlock()

	log.Printf("[Feed] subscriber joined job %s", jobID)
	return sub
}

func (h *Hub) unsubscribe(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs := h.subscribers[sub.jobID]
	if _, ok := subs[sub]; !ok {
		return
	}
	delete(subs, sub)
	close(sub.send)
	if len(subs) == 0 {
		delete(h.subscribers, sub.jobID)
	}
	log.Printf("[Feed] subscriber left job %s", sub.jobID)
}

// BroadcastProgress publishes a progress update for a job.
func (h *Hub) BroadcastProgress(jobID string, progress int, status model.JobStatus, step string) {
	h.publish(jobID, model.AnalysisProgress{
		Type:        model.FeedEventProgress,
		JobID:       jobID,
		Progress:    progress,
		Status:      status,
		CurrentStep: step,
	})
}

// BroadcastComplete publishes the finished analysis result for a job.
func (h *Hub) BroadcastComplete(jobID string, result *model.AnalysisResult) {
	h.publish(jobID, model.AnalysisComplete{
		Type:   model.FeedEventComplete,
		JobID:  jobID,
		Result: result,
	})
}

// BroadcastError publishes the terminal failure of a job.
func (h *Hub) BroadcastError(jobID, code, message string) {
	h.publish(jobID, model.AnalysisFailed{
		Type:  model.FeedEventError,
		JobID: jobID,
		Error: &model.JobError{Code: code, Message: message},
	})
}

func (h *Hub) publish(jobID string, msg interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("[Feed] failed to marshal event for job %s: %v", jobID, err)
		return
	}

	select {
	case h.events <- event{jobID: jobID, payload: data}:
	default:
		log.Printf("[Feed] event queue full, dropping update for job %s", jobID)
	}
}

// HandleConnection serves one WebSocket subscriber until it disconnects.
func (h *Hub) HandleConnection(c *websocket.Conn, jobID string) {
	sub := h.subscribe(jobID)
	defer h.unsubscribe(sub)

	// Writer: delivers events and keeps the connection alive
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case payload, ok := <-sub.send:
				if !ok {
					c.WriteMessage(websocket.CloseMessage, []byte{})
					return
				}
				if err := c.WriteMessage(websocket.TextMessage, payload); err != nil {
					return
				}
			case <-ticker.C:
				if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	// Reader: only application-level pings are expected from the client
	for {
		_, raw, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[Feed] connection error on job %s: %v", jobID, err)
			}
			return
		}

		var ev model.FeedEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			continue
		}
		if ev.Type == model.FeedEventPing {
			pong, _ := json.Marshal(model.FeedEvent{Type: model.FeedEventPong})
			sub.send <- pong
		}
	}
}
