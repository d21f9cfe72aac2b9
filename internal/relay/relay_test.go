package relay

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
)

type fakeSource struct {
	chunks []string
	err    error
	// trace records chunk requests so ordering with the sink can be checked
	trace *[]string
}

func (f *fakeSource) Recv() (string, error) {
	if len(f.chunks) == 0 {
		if f.err != nil {
			return "", f.err
		}
		return "", io.EOF
	}
	c := f.chunks[0]
	f.chunks = f.chunks[1:]
	if f.trace != nil {
		*f.trace = append(*f.trace, "recv:"+c)
	}
	return c, nil
}

type recordSink struct {
	events  []string
	failAt  int
	trace   *[]string
	written int
}

func (r *recordSink) Open() error {
	r.events = append(r.events, "open")
	return nil
}

func (r *recordSink) Chunk(text string) error {
	r.written++
	if r.failAt > 0 && r.written >= r.failAt {
		return errors.New("broken pipe")
	}
	r.events = append(r.events, "chunk:"+text)
	if r.trace != nil {
		*r.trace = append(*r.trace, "send:"+text)
	}
	return nil
}

func (r *recordSink) Done() error {
	r.events = append(r.events, "done")
	return nil
}

func (r *recordSink) Fail(err error) error {
	r.events = append(r.events, "fail:"+err.Error())
	return nil
}

func TestRelay(t *testing.T) {
	var trace []string
	src := &fakeSource{chunks: []string{"a", "b", "c"}, trace: &trace}
	sink := &recordSink{trace: &trace}
	res, err := Relay(context.Background(), src, sink)
	if err != nil {
		t.Fatal(err)
	}
	if res.Text != "abc" || res.State != Done || res.Chunks != 3 {
		t.Errorf("unexpected result %+v", res)
	}
	want := []string{"open", "chunk:a", "chunk:b", "chunk:c", "done"}
	if !reflect.DeepEqual(sink.events, want) {
		t.Errorf("events = %v, want %v", sink.events, want)
	}
	// Each chunk is sent before the next one is requested
	wantTrace := []string{"recv:a", "send:a", "recv:b", "send:b", "recv:c", "send:c"}
	if !reflect.DeepEqual(trace, wantTrace) {
		t.Errorf("trace = %v, want %v", trace, wantTrace)
	}
}

func TestRelayEmpty(t *testing.T) {
	sink := &recordSink{}
	res, err := Relay(context.Background(), &fakeSource{}, sink)
	if err != nil {
		t.Fatal(err)
	}
	if res.Text != "" || res.State != Done {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestRelaySourceError(t *testing.T) {
	sink := &recordSink{}
	src := &fakeSource{chunks: []string{"partial"}, err: errors.New("upstream reset")}
	res, err := Relay(context.Background(), src, sink)
	if err == nil {
		t.Fatal("expected error")
	}
	if res.Text != "partial" || res.State != Failed {
		t.Errorf("unexpected result %+v", res)
	}
	if last := sink.events[len(sink.events)-1]; !strings.HasPrefix(last, "fail:") {
		t.Errorf("last event = %q, want fail", last)
	}
}

func TestRelaySinkError(t *testing.T) {
	sink := &recordSink{failAt: 2}
	src := &fakeSource{chunks: []string{"a", "b", "c"}}
	res, err := Relay(context.Background(), src, sink)
	if err == nil {
		t.Fatal("expected error")
	}
	// The chunk that couldn't be delivered is still accumulated
	if res.Text != "ab" || res.State != Failed {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestRelayCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := Relay(ctx, &fakeSource{chunks: []string{"a"}}, &recordSink{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
	if res.State != Failed {
		t.Errorf("state = %v, want failed", res.State)
	}
}

func TestSSE(t *testing.T) {
	rec := httptest.NewRecorder()
	src := &fakeSource{chunks: []string{"hé", "llo\n"}}
	if _, err := Relay(context.Background(), src, NewSSE(rec)); err != nil {
		t.Fatal(err)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}
	want := "data: {\"chunk\":\"hé\"}\n\n" +
		"data: {\"chunk\":\"llo\\n\"}\n\n" +
		"event: done\ndata: {}\n\n"
	if got := rec.Body.String(); got != want {
		t.Errorf("body = %q, want %q", got, want)
	}
}

func TestSSEFail(t *testing.T) {
	rec := httptest.NewRecorder()
	src := &fakeSource{err: errors.New("boom")}
	if _, err := Relay(context.Background(), src, NewSSE(rec)); err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(rec.Body.String(), "event: error\ndata: {\"error\":\"boom\"}\n\n") {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestWebSocket(t *testing.T) {
	upgrader := websocket.Upgrader{}
	errc := make(chan error, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			errc <- err
			return
		}
		defer conn.Close()
		src := &fakeSource{chunks: []string{"one", "two"}}
		_, err = Relay(r.Context(), src, NewWebSocket(conn))
		errc <- err
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	var got []Frame
	for {
		var f Frame
		if err := conn.ReadJSON(&f); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				t.Fatalf("unexpected read error: %v", err)
			}
			break
		}
		got = append(got, f)
	}
	want := []Frame{{Chunk: "one"}, {Chunk: "two"}, {Done: true}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("frames = %+v, want %+v", got, want)
	}
	if err := <-errc; err != nil {
		t.Errorf("relay error: %v", err)
	}
}
