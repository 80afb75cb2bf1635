package livefeed

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/medrec/medrec/internal/platform/events"
)

func mustEvent(t *testing.T, typ string, data map[string]string) events.Event {
	t.Helper()
	evt, err := events.New(typ, "subject-1", data)
	if err != nil {
		t.Fatal(err)
	}
	return evt
}

func TestTopics(t *testing.T) {
	evt := mustEvent(t, events.EncounterCreated, map[string]string{"patientId": "p1", "encounterId": "e1"})
	got := strings.Join(Topics(evt), ",")
	want := "*,encounter.created,patient:p1,encounter:e1"
	if got != want {
		t.Errorf("Topics = %s, want %s", got, want)
	}

	evt = mustEvent(t, events.AttachmentUploaded, nil)
	if got := Topics(evt); len(got) != 2 {
		t.Errorf("expected only the wildcard and type topics, got %v", got)
	}
}

func TestHub_RegisterAndUnregister(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	c := NewClient("c1", "patient:p1")
	hub.Register(c)

	if hub.ClientCount() != 1 || hub.TopicCount("patient:p1") != 1 {
		t.Fatalf("unexpected counts: clients=%d topic=%d", hub.ClientCount(), hub.TopicCount("patient:p1"))
	}

	hub.Unregister(c)
	hub.Unregister(c)
	if hub.ClientCount() != 0 || hub.TopicCount("patient:p1") != 0 {
		t.Errorf("expected empty hub after unregister")
	}
	if _, ok := <-c.Send; ok {
		t.Error("expected Send to be closed")
	}
}

func TestHub_PublishRoutesByTopic(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	patientSub := NewClient("a", "patient:p1")
	otherPatient := NewClient("b", "patient:p2")
	typeSub := NewClient("c", events.EncounterCreated, "patient:p1")
	hub.Register(patientSub)
	hub.Register(otherPatient)
	hub.Register(typeSub)

	evt := mustEvent(t, events.EncounterCreated, map[string]string{"patientId": "p1"})
	if err := hub.Publish(context.Background(), evt); err != nil {
		t.Fatal(err)
	}

	if len(patientSub.Send) != 1 {
		t.Errorf("patient subscriber: expected 1 message, got %d", len(patientSub.Send))
	}
	if len(otherPatient.Send) != 0 {
		t.Errorf("other patient: expected nothing, got %d", len(otherPatient.Send))
	}
	if len(typeSub.Send) != 1 {
		t.Errorf("client matching two topics should receive the event once, got %d", len(typeSub.Send))
	}

	var got events.Event
	if err := json.Unmarshal(<-patientSub.Send, &got); err != nil || got.ID != evt.ID {
		t.Errorf("unexpected payload %+v (%v)", got, err)
	}
}

func TestHub_SubscribeAndUnsubscribe(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	c := NewClient("c1")
	hub.Register(c)

	hub.ProcessMessage(c, ClientMessage{Action: "subscribe", Topics: []string{"encounter:e1", ""}})
	if hub.TopicCount("encounter:e1") != 1 {
		t.Fatalf("expected subscription")
	}
	hub.ProcessMessage(c, ClientMessage{Action: "unsubscribe", Topics: []string{"encounter:e1"}})
	if hub.TopicCount("encounter:e1") != 0 {
		t.Errorf("expected unsubscribe to remove the topic")
	}
	hub.ProcessMessage(c, ClientMessage{Action: "bogus", Topics: []string{"x"}})
	if hub.TopicCount("x") != 0 {
		t.Errorf("unknown actions must be ignored")
	}
}

func TestHub_DropsWhenClientBufferFull(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	c := NewClient("slow", TopicAll)
	hub.Register(c)

	evt := mustEvent(t, events.PredictionCreated, nil)
	for i := 0; i < sendBufSize+5; i++ {
		if err := hub.Publish(context.Background(), evt); err != nil {
			t.Fatal(err)
		}
	}
	if len(c.Send) != sendBufSize {
		t.Errorf("expected buffer to cap at %d, got %d", sendBufSize, len(c.Send))
	}
}

func dialLive(t *testing.T, hub *Hub, query string) *gorillawebsocket.Conn {
	t.Helper()
	e := echo.New()
	NewHandler(hub, []string{"http://localhost:3000"}).RegisterRoutes(e.Group("/api"))
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/live" + query
	ws, _, err := gorillawebsocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func waitForTopic(t *testing.T, hub *Hub, topic string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.TopicCount(topic) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("no subscriber on %q", topic)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func readEvent(t *testing.T, ws *gorillawebsocket.Conn) events.Event {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got events.Event
	if err := ws.ReadJSON(&got); err != nil {
		t.Fatalf("read: %v", err)
	}
	return got
}

func TestHandler_NoTopicSubscribesToEverything(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	ws := dialLive(t, hub, "")
	waitForTopic(t, hub, TopicAll)

	evt := mustEvent(t, events.EncounterCreated, map[string]string{"patientId": "p1"})
	if err := hub.Publish(context.Background(), evt); err != nil {
		t.Fatal(err)
	}
	if got := readEvent(t, ws); got.ID != evt.ID {
		t.Errorf("unexpected event %+v", got)
	}
}

func TestHandler_SubscribeFrameWithSingleTopic(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	ws := dialLive(t, hub, "?topic=prediction.created")
	waitForTopic(t, hub, "prediction.created")

	if err := ws.WriteMessage(gorillawebsocket.TextMessage, []byte(`{"action":"subscribe","topic":"patient:p9"}`)); err != nil {
		t.Fatal(err)
	}
	waitForTopic(t, hub, "patient:p9")

	evt := mustEvent(t, events.EncounterCreated, map[string]string{"patientId": "p9"})
	if err := hub.Publish(context.Background(), evt); err != nil {
		t.Fatal(err)
	}
	if got := readEvent(t, ws); got.ID != evt.ID {
		t.Errorf("unexpected event %+v", got)
	}

	if err := ws.WriteMessage(gorillawebsocket.TextMessage, []byte(`{"action":"unsubscribe","topic":"patient:p9"}`)); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for hub.TopicCount("patient:p9") != 0 {
		if time.Now().After(deadline) {
			t.Fatal("unsubscribe frame was ignored")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestClientMessage_MergesTopicForms(t *testing.T) {
	var msg ClientMessage
	if err := json.Unmarshal([]byte(`{"action":"subscribe","topic":"a","topics":["b","c"]}`), &msg); err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(msg.topics(), ","); got != "a,b,c" {
		t.Errorf("topics: got %s", got)
	}
}

func TestHandler_StreamsEvents(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	e := echo.New()
	NewHandler(hub, []string{"http://localhost:3000"}).RegisterRoutes(e.Group("/api"))
	srv := httptest.NewServer(e)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/live?topic=patient:p1"
	ws, _, err := gorillawebsocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.TopicCount("patient:p1") == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	evt := mustEvent(t, events.EncounterCreated, map[string]string{"patientId": "p1"})
	if err := hub.Publish(context.Background(), evt); err != nil {
		t.Fatal(err)
	}

	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got events.Event
	if err := ws.ReadJSON(&got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.ID != evt.ID || got.Type != events.EncounterCreated {
		t.Errorf("unexpected event %+v", got)
	}
}

func TestHandler_RejectsForeignOrigin(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	e := echo.New()
	NewHandler(hub, []string{"http://localhost:3000"}).RegisterRoutes(e.Group("/api"))
	srv := httptest.NewServer(e)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/live"
	header := map[string][]string{"Origin": {"http://evil.example"}}
	_, resp, err := gorillawebsocket.DefaultDialer.Dial(url, header)
	if err == nil {
		t.Fatal("expected the upgrade to be refused")
	}
	if resp == nil || resp.StatusCode != 403 {
		t.Errorf("expected 403, got %v", resp)
	}
	if hub.ClientCount() != 0 {
		t.Errorf("no client should be registered")
	}
}
