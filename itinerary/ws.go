package itinerary

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"

	"tourdoc/jobs"
	"tourdoc/logging"
	"tourdoc/utils"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	defaultStatusPoll = 2 * time.Second
)

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

// GET /ws/jobs/:id
//
// Streams the job's status as JSON text frames and closes once the job is done
// or failed. Updates arrive from the local runner; the status store is also
// polled so jobs run by another instance, or updates this socket was too slow
// to take, still reach the client.
func (h *Handlers) JobSocket(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	jobID := ps.ByName("id")

	// Subscribe before reading the status so no transition falls in between.
	updates, unsubscribe := h.Jobs.Subscribe(jobID)
	defer unsubscribe()

	st, err := h.lookupJob(r, userID, jobID)
	if err != nil {
		utils.RespondWithAppError(w, r, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	go readPump(conn, unsubscribe)

	if err := writeStatus(conn, st); err != nil || st.State.Terminal() {
		closeNormal(conn)
		return
	}

	last := st
	// send writes st unless the client already has it and reports whether the
	// socket is finished.
	send := func(st jobs.Status) bool {
		if sameStatus(st, last) {
			return false
		}
		last = st
		if err := writeStatus(conn, st); err != nil {
			return true
		}
		if st.State.Terminal() {
			closeNormal(conn)
			return true
		}
		return false
	}
	refresh := func() bool {
		ctx, cancel := context.WithTimeout(context.Background(), writeWait)
		defer cancel()
		st, err := h.Jobs.Status(ctx, jobID)
		if err != nil {
			logging.Ctx(r.Context()).Debug().Err(err).Str("job_id", jobID).Msg("job status refresh failed")
			return false
		}
		return send(st)
	}

	poll := time.NewTicker(h.statusPoll())
	defer poll.Stop()
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	for {
		select {
		case st, ok := <-updates:
			if !ok {
				// The runner dropped this subscriber or the job finished;
				// the store has the last word either way.
				updates = nil
				if refresh() {
					return
				}
				continue
			}
			if send(st) {
				return
			}
		case <-poll.C:
			if refresh() {
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Handlers) statusPoll() time.Duration {
	if h.StatusPoll > 0 {
		return h.StatusPoll
	}
	return defaultStatusPoll
}

func sameStatus(a, b jobs.Status) bool {
	return a.State == b.State && a.Stage == b.Stage && a.UpdatedAt.Equal(b.UpdatedAt)
}

// readPump drains control frames and ends the subscription when the client goes away.
func readPump(conn *websocket.Conn, unsubscribe func()) {
	defer unsubscribe()
	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func writeStatus(conn *websocket.Conn, st jobs.Status) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(viewOf(st))
}

func closeNormal(conn *websocket.Conn) {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "job finished"))
}
