package homeconnect

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/bkremser/homeconnect-bridge/internal/models"
)

type recordingListener struct {
	haID       string
	events     chan Event
	reconnects chan struct{}
}

func newRecordingListener(haID string) *recordingListener {
	return &recordingListener{
		haID:       haID,
		events:     make(chan Event, 16),
		reconnects: make(chan struct{}, 16),
	}
}

func (l *recordingListener) HaID() string        { return l.haID }
func (l *recordingListener) OnEvent(event Event) { l.events <- event }
func (l *recordingListener) OnReconnect()        { l.reconnects <- struct{}{} }

func (l *recordingListener) waitForEvent(t *testing.T) Event {
	t.Helper()
	select {
	case event := <-l.events:
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func (l *recordingListener) waitForReconnect(t *testing.T) {
	t.Helper()
	select {
	case <-l.reconnects:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reconnect callback")
	}
}

func newStreamingClient(serverURL string) *client {
	hc := NewClient(models.HomeConnectConfig{
		ClientID:     "client-id",
		RefreshToken: "refresh-1",
		APIServer:    serverURL,
	}, false).(*client)
	hc.initialBackoff = 5 * time.Millisecond
	return hc
}

func eventsPath(haID string) string {
	return fmt.Sprintf("/api/homeappliances/%s/events", haID)
}

func Test_EventStreamDelivery(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case tokenPath:
			fmt.Fprint(w, tokenResponse)
		case eventsPath("haid-1"):
			assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
			assert.Equal(t, "Bearer access-1", r.Header.Get("Authorization"))
			w.Header().Set("Content-Type", "text/event-stream")
			flusher := w.(http.Flusher)
			fmt.Fprint(w, "event:KEEP-ALIVE\ndata:\n\n")
			fmt.Fprint(w, "event:NOTIFY\ndata:{\"items\":[{\"key\":\"BSH.Common.Status.DoorState\",\"value\":\"BSH.Common.EnumType.DoorState.Open\"}]}\n\n")
			flusher.Flush()
			<-r.Context().Done()
		default:
			t.Errorf("unexpected request to %s", r.URL.Path)
		}
	}))
	defer server.Close()

	hc := newStreamingClient(server.URL)
	defer hc.Dispose()
	listener := newRecordingListener("haid-1")
	assert.NoError(t, hc.RegisterEventListener(listener))

	event := listener.waitForEvent(t)
	assert.Equal(t, StatusDoorState, event.Key)
	assert.Equal(t, DoorStateOpen, event.Value.ValueOrZero())
}

func Test_EventStreamFanOutByAppliance(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == tokenPath {
			fmt.Fprint(w, tokenResponse)
			return
		}
		parts := strings.Split(r.URL.Path, "/")
		haID := parts[3]
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprintf(w, "event:NOTIFY\ndata:{\"items\":[{\"key\":\"BSH.Common.Status.OperationState\",\"value\":\"%s\"}]}\n\n", haID)
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer server.Close()

	hc := newStreamingClient(server.URL)
	defer hc.Dispose()
	first := newRecordingListener("haid-1")
	second := newRecordingListener("haid-2")
	assert.NoError(t, hc.RegisterEventListener(first))
	assert.NoError(t, hc.RegisterEventListener(second))

	assert.Equal(t, "haid-1", first.waitForEvent(t).Value.ValueOrZero())
	assert.Equal(t, "haid-2", second.waitForEvent(t).Value.ValueOrZero())
	assert.Len(t, first.events, 0)
	assert.Len(t, second.events, 0)
}

func Test_EventStreamReconnect(t *testing.T) {
	var connections int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == tokenPath {
			fmt.Fprint(w, tokenResponse)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		if atomic.AddInt32(&connections, 1) == 1 {
			fmt.Fprint(w, "event:NOTIFY\ndata:{\"items\":[{\"key\":\"BSH.Common.Option.ProgramProgress\",\"value\":10,\"unit\":\"%\"}]}\n\n")
			w.(http.Flusher).Flush()
			return
		}
		fmt.Fprint(w, "event:NOTIFY\ndata:{\"items\":[{\"key\":\"BSH.Common.Option.ProgramProgress\",\"value\":20,\"unit\":\"%\"}]}\n\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer server.Close()

	hc := newStreamingClient(server.URL)
	defer hc.Dispose()
	listener := newRecordingListener("haid-1")
	assert.NoError(t, hc.RegisterEventListener(listener))

	assert.Equal(t, 10, listener.waitForEvent(t).ValueAsInt())
	listener.waitForReconnect(t)
	assert.Equal(t, 20, listener.waitForEvent(t).ValueAsInt())
}

func Test_EventStreamRetryAfterOnRateLimit(t *testing.T) {
	var connections int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == tokenPath {
			fmt.Fprint(w, tokenResponse)
			return
		}
		if atomic.AddInt32(&connections, 1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprint(w, `{"error":{"key":"429","description":"The rate limit was exceeded"}}`)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event:NOTIFY\ndata:{\"items\":[{\"key\":\"BSH.Common.Status.DoorState\",\"value\":\"BSH.Common.EnumType.DoorState.Open\"}]}\n\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer server.Close()

	hc := newStreamingClient(server.URL)
	// The backoff alone would outlast the test, only the Retry-After header
	// can drive the reconnect.
	hc.initialBackoff = time.Minute
	defer hc.Dispose()
	listener := newRecordingListener("haid-1")
	assert.NoError(t, hc.RegisterEventListener(listener))

	event := listener.waitForEvent(t)
	assert.Equal(t, StatusDoorState, event.Key)
	assert.Equal(t, int32(2), atomic.LoadInt32(&connections))
}

func Test_EventStreamAuthRefreshOnUnauthorized(t *testing.T) {
	var tokenRequests int32
	var mu sync.Mutex
	var bearers []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == tokenPath {
			n := atomic.AddInt32(&tokenRequests, 1)
			fmt.Fprintf(w, `{"access_token":"access-%d","refresh_token":"refresh-2","expires_in":86400}`, n)
			return
		}
		mu.Lock()
		bearers = append(bearers, r.Header.Get("Authorization"))
		connection := len(bearers)
		mu.Unlock()
		if connection == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event:NOTIFY\ndata:{\"items\":[{\"key\":\"BSH.Common.Status.DoorState\",\"value\":\"BSH.Common.EnumType.DoorState.Closed\"}]}\n\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer server.Close()

	hc := newStreamingClient(server.URL)
	defer hc.Dispose()
	listener := newRecordingListener("haid-1")
	assert.NoError(t, hc.RegisterEventListener(listener))

	listener.waitForEvent(t)
	assert.Equal(t, int32(2), atomic.LoadInt32(&tokenRequests))
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"Bearer access-1", "Bearer access-2"}, bearers)
}

func Test_EventStreamClosedOnUnregister(t *testing.T) {
	streamEnded := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == tokenPath {
			fmt.Fprint(w, tokenResponse)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event:NOTIFY\ndata:{\"items\":[{\"key\":\"BSH.Common.Status.DoorState\",\"value\":\"BSH.Common.EnumType.DoorState.Closed\"}]}\n\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
		close(streamEnded)
	}))
	defer server.Close()

	hc := newStreamingClient(server.URL)
	listener := newRecordingListener("haid-1")
	assert.NoError(t, hc.RegisterEventListener(listener))
	listener.waitForEvent(t)

	hc.UnregisterEventListener(listener)
	select {
	case <-streamEnded:
	case <-time.After(2 * time.Second):
		t.Fatal("stream connection was not closed on unregister")
	}
	hc.sseMu.Lock()
	assert.Len(t, hc.streams, 0)
	hc.sseMu.Unlock()
}

func Test_ReadEventStreamParsing(t *testing.T) {
	listener := newRecordingListener("haid-1")
	hc := &client{listeners: []EventListener{listener}, streams: map[string]*eventStream{}}
	stream := &eventStream{haID: "haid-1", done: make(chan struct{})}
	frames := "retry: 250\n" +
		"\n" +
		": keep the connection warm\n" +
		"event:KEEP-ALIVE\ndata:\n\n" +
		"event:NOTIFY\nid:haid-1\ndata:{\"items\":[{\"key\":\"BSH.Common.Option.ProgramProgress\",\"value\":42,\"unit\":\"%\"}]}\n\n"

	delay := hc.readEventStream(stream, strings.NewReader(frames))
	assert.Equal(t, 250*time.Millisecond, delay)
	assert.Len(t, listener.events, 1)
	event := <-listener.events
	assert.Equal(t, OptionProgramProgress, event.Key)
	assert.Equal(t, 42, event.ValueAsInt())
	assert.Equal(t, "%", event.Unit.ValueOrZero())
}

func Test_ConnectionEventFrames(t *testing.T) {
	listener := newRecordingListener("haid-1")
	hc := &client{listeners: []EventListener{listener}, streams: map[string]*eventStream{}}
	stream := &eventStream{haID: "haid-1", done: make(chan struct{})}
	// The simulator sends the frames bare, production attaches a single
	// event object.
	frames := "event:DISCONNECTED\ndata:\n\n" +
		"event:CONNECTED\ndata:{\"haId\":\"haid-1\",\"key\":\"BSH.Common.Appliance.Connected\",\"value\":true}\n\n"

	hc.readEventStream(stream, strings.NewReader(frames))
	assert.Len(t, listener.events, 2)
	assert.Equal(t, EventApplianceDisconnected, (<-listener.events).Key)
	connected := <-listener.events
	assert.Equal(t, EventApplianceConnected, connected.Key)
	assert.Equal(t, "true", connected.Value.ValueOrZero())
}

type closeRecorder struct {
	closes int32
}

func (c *closeRecorder) Close() error {
	atomic.AddInt32(&c.closes, 1)
	return nil
}

func Test_SetBodyAfterStop(t *testing.T) {
	stream := &eventStream{haID: "haid-1", done: make(chan struct{})}
	first := &closeRecorder{}
	assert.True(t, stream.setBody(first))

	stream.stop()
	assert.Equal(t, int32(1), atomic.LoadInt32(&first.closes))

	late := &closeRecorder{}
	assert.False(t, stream.setBody(late))
	assert.Equal(t, int32(1), atomic.LoadInt32(&late.closes))
}
