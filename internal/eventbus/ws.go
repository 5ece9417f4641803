package eventbus

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// upgrader is deliberately permissive about origin, matching the teacher's
// ws.UpgradeHTTP (an admin-facing endpoint reachable only by operators who
// already hold a session, not a public API).
var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

// ServeWS upgrades r to a websocket connection and streams every Event
// published to hub as JSON until the client disconnects or ctxDone fires.
// This is the push half of spec.md §3's Subscription object: IPP itself
// only defines a pull model (Get-Notifications), so push delivery to an
// admin/monitoring client rides over a websocket the same way the
// teacher's agent streams status updates to its own UI, per the teacher's
// common/ws.Conn (upgrade once, serialize writes, ping to detect death).
func ServeWS(hub *Hub, w http.ResponseWriter, r *http.Request, ctxDone <-chan struct{}) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	id := r.RemoteAddr + "-" + time.Now().Format("150405.000000000")
	ch := make(chan Event, 32)
	hub.Register(id, ch)
	defer hub.Unregister(id)

	var writeMu sync.Mutex
	writeJSON := func(v interface{}) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		return conn.WriteJSON(v)
	}

	ping := time.NewTicker(30 * time.Second)
	defer ping.Stop()

	// Drain client reads in the background purely to notice disconnects;
	// ippd's event stream is server-to-client only.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctxDone:
			return nil
		case <-closed:
			return nil
		case evt := <-ch:
			if err := writeJSON(evt); err != nil {
				return err
			}
		case <-ping.C:
			writeMu.Lock()
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			writeMu.Unlock()
			if err != nil {
				return err
			}
		}
	}
}
