package bus

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

type recorder struct {
	mu     sync.Mutex
	frames [][]byte
	err    error
}

func (r *recorder) Send(ctx context.Context, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, data)
	return r.err
}

func (r *recorder) last(t *testing.T) Message {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.frames) == 0 {
		t.Fatal("no frames sent")
	}
	msg, err := Decode(r.frames[len(r.frames)-1])
	if err != nil {
		t.Fatalf("decode sent frame: %v", err)
	}
	return msg
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

func mustEncode(t *testing.T, typ, id string, payload any) []byte {
	t.Helper()
	b, err := Encode(typ, id, payload)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return b
}

func waitDone(t *testing.T, c *Call) {
	t.Helper()
	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("call did not resolve")
	}
}

type questionsPayload struct {
	Questions []string `json:"questions"`
}

func TestRequestResponseRoundTrip(t *testing.T) {
	host, peer := Connect()
	host.OnRequest(GenerateQuestions, func(ctx context.Context, req Message) (any, error) {
		var in struct {
			Count int `json:"count"`
		}
		if err := req.Bind(&in); err != nil {
			return nil, err
		}
		out := make([]string, in.Count)
		for i := range out {
			out[i] = "q"
		}
		return questionsPayload{Questions: out}, nil
	})

	msg, err := peer.SendRequest(context.Background(), GenerateQuestions, map[string]any{"count": 3}, time.Second)
	if err != nil {
		t.Fatalf("SendRequest: %v", err)
	}
	if msg.Type != "QUESTIONS_GENERATED" {
		t.Fatalf("expected QUESTIONS_GENERATED, got %s", msg.Type)
	}
	var out questionsPayload
	if err := msg.Bind(&out); err != nil {
		t.Fatalf("bind: %v", err)
	}
	if len(out.Questions) != 3 {
		t.Fatalf("expected 3 questions, got %d", len(out.Questions))
	}
	if peer.Pending() != 0 {
		t.Fatalf("expected no pending requests, got %d", peer.Pending())
	}
}

func TestHandlerErrorBecomesFailedMessage(t *testing.T) {
	host, peer := Connect()
	host.OnRequest(GenerateQuestions, func(ctx context.Context, req Message) (any, error) {
		return nil, errors.New("backend down")
	})

	msg, err := peer.SendRequest(context.Background(), GenerateQuestions, nil, time.Second)
	var remote *RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("expected RemoteError, got %v", err)
	}
	if remote.Type != "QUESTIONS_ERROR" || remote.Message != "backend down" {
		t.Fatalf("unexpected remote error %+v", remote)
	}
	if msg.RequestID == "" {
		t.Fatal("failed message should carry the request id")
	}
}

func TestHandlerPanicIsContained(t *testing.T) {
	host, peer := Connect()
	host.OnRequest(RequestLLM, func(ctx context.Context, req Message) (any, error) {
		panic("boom")
	})

	_, err := peer.SendRequest(context.Background(), RequestLLM, map[string]string{"prompt": "hi"}, time.Second)
	var remote *RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("expected RemoteError after panic, got %v", err)
	}
	if remote.Type != "LLM_RESPONSE" {
		t.Fatalf("expected LLM_RESPONSE failure, got %s", remote.Type)
	}

	// the bus keeps serving after a panic
	host.OnRequest(RequestLLM, func(ctx context.Context, req Message) (any, error) {
		return map[string]string{"response": "ok"}, nil
	})
	msg, err := peer.SendRequest(context.Background(), RequestLLM, nil, time.Second)
	if err != nil {
		t.Fatalf("second request failed: %v", err)
	}
	var out struct {
		Response string `json:"response"`
	}
	_ = msg.Bind(&out)
	if out.Response != "ok" {
		t.Fatalf("expected ok, got %q", out.Response)
	}
}

func TestLegacyAliasIsRouted(t *testing.T) {
	rec := &recorder{}
	b := New(rec)
	b.OnRequest(GenerateQuestions, func(ctx context.Context, req Message) (any, error) {
		return questionsPayload{Questions: []string{"a"}}, nil
	})
	b.Deliver(mustEncode(t, "GENERATE_QUESTIONS", "legacy-1", map[string]int{"count": 1}))

	deadline := time.Now().Add(2 * time.Second)
	for rec.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	msg := rec.last(t)
	if msg.Type != "QUESTIONS_GENERATED" || msg.RequestID != "legacy-1" {
		t.Fatalf("unexpected response %s/%s", msg.Type, msg.RequestID)
	}
}

func TestTimeoutIsTerminalAndExact(t *testing.T) {
	fc := clockwork.NewFakeClock()
	rec := &recorder{}
	b := New(rec, WithClock(fc))

	c := b.Go(context.Background(), GenerateQuestions, nil, 30*time.Second)
	if rec.count() != 1 {
		t.Fatalf("expected request to be sent once, got %d", rec.count())
	}

	fc.Advance(30*time.Second - time.Millisecond)
	select {
	case <-c.Done():
		t.Fatal("call resolved before its deadline")
	case <-time.After(20 * time.Millisecond):
	}

	fc.Advance(time.Millisecond)
	waitDone(t, c)
	if _, err := c.Result(); !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if elapsed := fc.Since(c.Created); elapsed != 30*time.Second {
		t.Fatalf("expected resolution at 30s, got %s", elapsed)
	}
	if rec.count() != 1 {
		t.Fatal("timeouts must not retry")
	}

	// a late response for the expired id is dropped
	b.Deliver(mustEncode(t, "QUESTIONS_GENERATED", c.ID, questionsPayload{}))
	if b.Pending() != 0 {
		t.Fatalf("expected empty registry, got %d", b.Pending())
	}
}

func TestSendFailureSurfacesAsTimeout(t *testing.T) {
	fc := clockwork.NewFakeClock()
	b := New(&recorder{err: errors.New("channel gone")}, WithClock(fc))

	c := b.Go(context.Background(), RequestLLM, nil, time.Second)
	fc.Advance(time.Second)
	waitDone(t, c)
	if _, err := c.Result(); !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestDuplicateResponsesResolveOnce(t *testing.T) {
	rec := &recorder{}
	b := New(rec)
	c := b.Go(context.Background(), GenerateQuestions, nil, time.Minute)

	b.Deliver(mustEncode(t, "QUESTIONS_GENERATED", c.ID, questionsPayload{Questions: []string{"first"}}))
	b.Deliver(mustEncode(t, "QUESTIONS_GENERATED", c.ID, questionsPayload{Questions: []string{"second"}}))
	b.Deliver(mustEncode(t, "QUESTIONS_ERROR", c.ID, failure{Error: "late"}))

	msg, err := c.Result()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var out questionsPayload
	_ = msg.Bind(&out)
	if len(out.Questions) != 1 || out.Questions[0] != "first" {
		t.Fatalf("expected first response to win, got %v", out.Questions)
	}
}

func TestMismatchedResponseTypeIsIgnored(t *testing.T) {
	fc := clockwork.NewFakeClock()
	b := New(&recorder{}, WithClock(fc))
	c := b.Go(context.Background(), GenerateQuestions, nil, time.Second)

	b.Deliver(mustEncode(t, "LLM_RESPONSE", c.ID, map[string]string{"response": "spoof"}))
	if b.Pending() != 1 {
		t.Fatal("a response of another kind must not resolve the call")
	}
	fc.Advance(time.Second)
	waitDone(t, c)
	if _, err := c.Result(); !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestLLMResponseErrorField(t *testing.T) {
	b := New(&recorder{})
	c := b.Go(context.Background(), RequestLLM, nil, time.Minute)
	b.Deliver(mustEncode(t, "LLM_RESPONSE", c.ID, map[string]string{"error": "Failed to process LLM request"}))

	_, err := c.Result()
	var remote *RemoteError
	if !errors.As(err, &remote) || remote.Message != "Failed to process LLM request" {
		t.Fatalf("expected remote error, got %v", err)
	}
}

func TestUnknownAndMalformedFramesAreDropped(t *testing.T) {
	b := New(&recorder{})
	var notified int32
	b.OnNotify(TypeGameStatus, func(Message) { atomic.AddInt32(&notified, 1) })

	for _, frame := range [][]byte{
		nil,
		[]byte("not json"),
		[]byte(`[1,2,3]`),
		[]byte(`{"requestId":"x"}`),
		[]byte(`{"type":42}`),
		[]byte(`{"type":"SOMETHING_NEW","data":{}}`),
		[]byte(`{"type":"QUESTIONS_GENERATED","requestId":"nobody"}`),
	} {
		b.Deliver(frame)
	}
	if atomic.LoadInt32(&notified) != 0 {
		t.Fatal("no listener should fire for unrelated frames")
	}

	b.Deliver([]byte(`{"type":"GAME_STATUS","stats":{"questionsAttempted":2}}`))
	if atomic.LoadInt32(&notified) != 1 {
		t.Fatal("GAME_STATUS listener should fire once")
	}
}

func TestNotifyCarriesPayloadWithoutRequestID(t *testing.T) {
	host, peer := Connect()
	got := make(chan Message, 1)
	peer.OnNotify(TypeGameClosing, func(m Message) { got <- m })

	if err := host.Notify(context.Background(), TypeGameClosing, nil); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	select {
	case m := <-got:
		if m.RequestID != "" {
			t.Fatalf("notifications carry no request id, got %q", m.RequestID)
		}
	case <-time.After(time.Second):
		t.Fatal("notification not delivered")
	}
}

func TestCloseResolvesPending(t *testing.T) {
	b := New(&recorder{})
	c := b.Go(context.Background(), GenerateQuestions, nil, time.Minute)
	b.Close()
	if _, err := c.Result(); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	late := b.Go(context.Background(), GenerateQuestions, nil, time.Minute)
	if _, err := late.Result(); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed after close, got %v", err)
	}
	if err := b.Notify(context.Background(), TypeGameClosing, nil); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed from Notify, got %v", err)
	}
	b.Close()
}

func TestSendRequestHonorsContext(t *testing.T) {
	b := New(&recorder{})
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	if _, err := b.SendRequest(ctx, GenerateQuestions, nil, time.Minute); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if b.Pending() != 0 {
		t.Fatal("cancelled request should leave the registry")
	}
}

// Responses race the timeout; whichever removes the call first resolves it and
// the other path becomes a no-op. A double resolution would panic on close.
func TestResponseTimeoutRaceResolvesExactlyOnce(t *testing.T) {
	b := New(&recorder{})
	var wg sync.WaitGroup
	var timeouts, answered int32
	for i := 0; i < 200; i++ {
		c := b.Go(context.Background(), GenerateQuestions, nil, time.Millisecond)
		frame := mustEncode(t, "QUESTIONS_GENERATED", c.ID, questionsPayload{})
		wg.Add(1)
		go func(delay time.Duration) {
			defer wg.Done()
			time.Sleep(delay)
			b.Deliver(frame)
			b.Deliver(frame)
		}(time.Duration(rand.Intn(2000)) * time.Microsecond)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Result(); errors.Is(err, ErrTimeout) {
				atomic.AddInt32(&timeouts, 1)
			} else if err == nil {
				atomic.AddInt32(&answered, 1)
			}
		}()
	}
	wg.Wait()
	if got := timeouts + answered; got != 200 {
		t.Fatalf("expected 200 resolutions, got %d", got)
	}
	if b.Pending() != 0 {
		t.Fatalf("expected empty registry, got %d", b.Pending())
	}
}
