package broadcast

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPumpWritesFramesUntilUnsubscribed(t *testing.T) {
	t.Parallel()

	h := NewHub(zerolog.New(io.Discard), HubConfig{})
	sub := h.Subscribe("t1", "A")
	pumped := make(chan error, 1)

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			pumped <- err
			return
		}
		defer conn.Close()
		pumped <- Pump(context.Background(), conn, sub)
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	h.Publish("t1", 7, dealtState())
	var f Frame
	require.NoError(t, conn.ReadJSON(&f))
	assert.Equal(t, 7, f.Index)
	assert.Equal(t, "A", f.State.Viewer)
	assert.Len(t, f.State.Players[0].HoleCards, 2)

	h.Unsubscribe(sub)
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
	assert.NoError(t, <-pumped)
}
