package homeconnect

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// EventListener receives the server sent events of a single appliance.
// OnReconnect fires after a dropped stream came back so listeners can poll
// for state changed during the gap.
type EventListener interface {
	HaID() string
	OnEvent(event Event)
	OnReconnect()
}

type eventStream struct {
	haID string
	done chan struct{}

	mu   sync.Mutex
	body io.Closer
}

// setBody installs the connection body for stop to close. When the stream
// was stopped while connecting, the body is closed here and false returned.
func (s *eventStream) setBody(body io.Closer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped() {
		body.Close()
		return false
	}
	s.body = body
	return true
}

// stop ends the stream goroutine. Closing the body unblocks a read that is
// waiting on the wire.
func (s *eventStream) stop() {
	close(s.done)
	s.mu.Lock()
	if s.body != nil {
		s.body.Close()
	}
	s.mu.Unlock()
}

func (s *eventStream) stopped() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// RegisterEventListener subscribes the listener to the event stream of its
// appliance. The first listener for an appliance opens the stream, further
// listeners share it.
func (c *client) RegisterEventListener(listener EventListener) error {
	c.sseMu.Lock()
	defer c.sseMu.Unlock()
	c.listeners = append(c.listeners, listener)
	if _, ok := c.streams[listener.HaID()]; !ok {
		stream := &eventStream{haID: listener.HaID(), done: make(chan struct{})}
		c.streams[listener.HaID()] = stream
		go c.runEventStream(stream)
	}
	return nil
}

// UnregisterEventListener removes the listener and closes the appliance's
// stream once nobody listens to it anymore.
func (c *client) UnregisterEventListener(listener EventListener) {
	c.sseMu.Lock()
	defer c.sseMu.Unlock()
	for i, registered := range c.listeners {
		if registered == listener {
			c.listeners = append(c.listeners[:i], c.listeners[i+1:]...)
			break
		}
	}
	for _, registered := range c.listeners {
		if registered.HaID() == listener.HaID() {
			return
		}
	}
	if stream, ok := c.streams[listener.HaID()]; ok {
		delete(c.streams, listener.HaID())
		stream.stop()
	}
}

func (c *client) closeEventStreams() {
	c.sseMu.Lock()
	defer c.sseMu.Unlock()
	for haID, stream := range c.streams {
		delete(c.streams, haID)
		stream.stop()
	}
	c.listeners = nil
}

func (c *client) runEventStream(stream *eventStream) {
	backoff := c.initialBackoff
	connected := false
	for {
		if stream.stopped() {
			return
		}
		resp, err := c.openEventStream(stream.haID)
		if err != nil {
			log.Printf("Event stream for %s failed to connect: %s", stream.haID, err)
			delay := backoff
			var apiErr *APIError
			if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
				delay = time.Duration(apiErr.RetryAfter) * time.Second
			}
			if !waitOrDone(stream.done, delay) {
				return
			}
			backoff = nextBackoff(backoff, c.maxBackoff)
			continue
		}
		if connected {
			log.Printf("Event stream for %s reconnected", stream.haID)
			c.notifyReconnect(stream.haID)
		}
		connected = true
		backoff = c.initialBackoff
		if !stream.setBody(resp.Body) {
			return
		}
		retryDelay := c.readEventStream(stream, resp.Body)
		resp.Body.Close()
		if stream.stopped() {
			return
		}
		log.Printf("Event stream for %s closed, reconnecting", stream.haID)
		wait := backoff
		if retryDelay > 0 {
			wait = retryDelay
		}
		if !waitOrDone(stream.done, wait) {
			return
		}
	}
}

func (c *client) openEventStream(haID string) (*http.Response, error) {
	if err := c.checkCredentials(); err != nil {
		return nil, err
	}
	req, err := http.NewRequest(http.MethodGet, fmt.Sprintf("%s%s/%s/events", c.apiURL, apiBasePath, haID), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken())
	req.Header.Set("Accept", "text/event-stream")
	if c.config.EventLanguage != "" {
		req.Header.Set("Accept-Language", c.config.EventLanguage)
	}
	resp, err := c.sseClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()
		c.invalidateToken()
		return nil, apiError(http.StatusUnauthorized, nil, "")
	}
	if resp.StatusCode != http.StatusOK {
		payload, _ := ioutil.ReadAll(resp.Body)
		retryAfter := resp.Header.Get("Retry-After")
		resp.Body.Close()
		return nil, apiError(resp.StatusCode, payload, retryAfter)
	}
	return resp, nil
}

// readEventStream consumes one connection worth of events. It returns the
// reconnect delay the server asked for via retry fields, if any.
func (c *client) readEventStream(stream *eventStream, body io.Reader) time.Duration {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	eventName := ""
	var data []string
	var retryDelay time.Duration
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			c.dispatchEvent(stream.haID, eventName, strings.Join(data, "\n"))
			eventName = ""
			data = data[:0]
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		field, value := splitField(line)
		switch field {
		case "event":
			eventName = value
		case "data":
			data = append(data, value)
		case "retry":
			if ms, err := strconv.Atoi(value); err == nil && ms > 0 {
				retryDelay = time.Duration(ms) * time.Millisecond
			}
		}
	}
	if err := scanner.Err(); err != nil && !stream.stopped() {
		log.Printf("Event stream for %s read error: %s", stream.haID, err)
	}
	return retryDelay
}

func splitField(line string) (string, string) {
	parts := strings.SplitN(line, ":", 2)
	if len(parts) == 1 {
		return parts[0], ""
	}
	return parts[0], strings.TrimPrefix(parts[1], " ")
}

// dispatchEvent fans one event payload out to the appliance's listeners.
// KEEP-ALIVE frames and frames without payload are dropped here.
func (c *client) dispatchEvent(haID, name, data string) {
	switch name {
	case "CONNECTED", "DISCONNECTED":
		c.dispatchConnectionEvent(haID, name, data)
		return
	}
	if name == "KEEP-ALIVE" || data == "" {
		if c.debug && name != "" {
			log.Printf("Dropping %s frame for %s", name, haID)
		}
		return
	}
	var payload eventPayload
	if err := json.Unmarshal([]byte(data), &payload); err != nil {
		log.Printf("Unable to decode event payload for %s: %s", haID, err)
		return
	}
	for _, listener := range c.listenersFor(haID) {
		for _, event := range payload.Items {
			listener.OnEvent(event)
		}
	}
}

// CONNECTED and DISCONNECTED frames carry a single event object instead of
// an items envelope, and the simulator sends them without any payload.
func (c *client) dispatchConnectionEvent(haID, name, data string) {
	key := EventApplianceConnected
	if name == "DISCONNECTED" {
		key = EventApplianceDisconnected
	}
	event := Event{Key: key}
	if data != "" {
		if err := json.Unmarshal([]byte(data), &event); err != nil || event.Key == "" {
			event = Event{Key: key}
		}
	}
	for _, listener := range c.listenersFor(haID) {
		listener.OnEvent(event)
	}
}

func (c *client) listenersFor(haID string) []EventListener {
	c.sseMu.Lock()
	defer c.sseMu.Unlock()
	matched := make([]EventListener, 0, len(c.listeners))
	for _, listener := range c.listeners {
		if listener.HaID() == haID {
			matched = append(matched, listener)
		}
	}
	return matched
}

func (c *client) notifyReconnect(haID string) {
	for _, listener := range c.listenersFor(haID) {
		listener.OnReconnect()
	}
}

func waitOrDone(done chan struct{}, delay time.Duration) bool {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-done:
		return false
	case <-timer.C:
		return true
	}
}

func nextBackoff(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max {
		return max
	}
	return next
}
