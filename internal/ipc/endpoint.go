package ipc

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/ostreedev/rpmostreed-core/internal/txn"
)

// upgrader accepts any origin: this endpoint is reached at a private,
// unguessable per-transaction address already gated by InvokeMethod's
// access control, not by browser same-origin policy.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// TransactionLookup resolves a private endpoint address to its
// Transaction, letting PrivateEndpointHandler stay decoupled from how
// transactions are tracked (coordinator, a map, ...).
type TransactionLookup func(address string) (*txn.Transaction, bool)

// clientMessage is the small control protocol a connected client speaks:
// {"type":"start"} to begin a WAITING_START transaction, {"type":"cancel"}
// to cancel it.
type clientMessage struct {
	Type string `json:"type"`
}

// PrivateEndpointHandler serves the per-transaction websocket described in
// §6 ("private endpoint address"): it streams every ProgressEvent until
// Finished, and accepts start/cancel control frames.
type PrivateEndpointHandler struct {
	lookup TransactionLookup
}

func NewPrivateEndpointHandler(lookup TransactionLookup) *PrivateEndpointHandler {
	return &PrivateEndpointHandler{lookup: lookup}
}

// Serve upgrades r to a websocket and pumps tx's progress to it. address
// is the path component identifying the transaction, extracted by the
// caller's router.
func (h *PrivateEndpointHandler) Serve(w http.ResponseWriter, r *http.Request, address string) {
	tx, ok := h.lookup(address)
	if !ok {
		http.Error(w, "unknown transaction", http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	obs := tx.Subscribe()
	defer tx.Unsubscribe(obs)

	go h.readControlFrames(conn, tx)

	for ev := range obs {
		if conn.WriteJSON(ev) != nil {
			return
		}
		if ev.Kind == txn.EventFinished {
			return
		}
	}
}

func (h *PrivateEndpointHandler) readControlFrames(conn *websocket.Conn, tx *txn.Transaction) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg clientMessage
		if json.Unmarshal(data, &msg) != nil {
			continue
		}
		switch msg.Type {
		case "start":
			tx.Start()
		case "cancel":
			tx.Cancel()
		}
	}
}
