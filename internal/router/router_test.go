package router

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/haverford/chatcore/internal/auth"
	"github.com/haverford/chatcore/internal/protocol"
	"github.com/haverford/chatcore/internal/room"
	"github.com/haverford/chatcore/internal/session"
	"github.com/haverford/chatcore/internal/store"
)

// errMockTransportClosed mirrors wsTransport's errTransportClosed: once a
// mockTransport is closed, Send fails instead of recording anything, so a
// test can tell a "notify after close" bug from a real notification.
var errMockTransportClosed = errors.New("mock transport closed")

// mockTransport records every value passed to Send for later inspection.
type mockTransport struct {
	mu     sync.Mutex
	sent   []any
	closed bool
}

func (m *mockTransport) Send(v any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errMockTransportClosed
	}
	m.sent = append(m.sent, v)
	return nil
}

func (m *mockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockTransport) envelopes() []protocol.Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []protocol.Envelope
	for _, v := range m.sent {
		if env, ok := v.(protocol.Envelope); ok {
			out = append(out, env)
		}
	}
	return out
}

func (m *mockTransport) raw() []any {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]any, len(m.sent))
	copy(out, m.sent)
	return out
}

func newTestRouter(t *testing.T) *Router {
	t.Helper()
	st, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return New(st, &auth.Hasher{Iterations: 10}, session.NewRegistry(), room.NewRegistry())
}

func newTestConn() (*Connection, *mockTransport) {
	tr := &mockTransport{}
	return NewConnection(tr), tr
}

func send(rt *Router, conn *Connection, raw string) {
	rt.HandleFrame(context.Background(), conn, []byte(raw))
}

// marshalsAsJSON verifies a value round-trips through JSON without panicking,
// since router.HandleFrame hands raw Go values (protocol.Envelope, maps) to
// Connection.Send and a real transport always serializes them.
func marshalsAsJSON(t *testing.T, v any) {
	t.Helper()
	if _, err := json.Marshal(v); err != nil {
		t.Fatalf("value does not marshal to JSON: %v", err)
	}
}

// --- S1: register then contacts ---------------------------------------

func TestScenarioRegisterThenContacts(t *testing.T) {
	rt := newTestRouter(t)
	conn, tr := newTestConn()

	send(rt, conn, `{"type":"register","username":"alice","password":"hunter2hunter","email":"a@x"}`)

	envs := tr.envelopes()
	if len(envs) != 1 {
		t.Fatalf("expected 1 envelope, got %d", len(envs))
	}
	if envs[0].Type != protocol.TypeAuthSuccess || envs[0].Status != protocol.StatusSuccess {
		t.Fatalf("expected auth_success/success, got %+v", envs[0])
	}
	data, ok := envs[0].Data.(protocol.UserPublic)
	if !ok {
		t.Fatalf("expected UserPublic data, got %T", envs[0].Data)
	}
	if data.ID != 1 || data.Username != "alice" {
		t.Fatalf("unexpected user data: %+v", data)
	}
	marshalsAsJSON(t, envs[0])

	send(rt, conn, `{"type":"get_user_contacts"}`)
	envs = tr.envelopes()
	if len(envs) != 2 {
		t.Fatalf("expected 2 envelopes, got %d", len(envs))
	}
	contacts, ok := envs[1].Data.(protocol.UserContactsData)
	if !ok {
		t.Fatalf("expected UserContactsData, got %T", envs[1].Data)
	}
	if len(contacts.Contacts) != 0 || len(contacts.Groups) != 0 {
		t.Fatalf("expected empty contacts/groups for a fresh user, got %+v", contacts)
	}
}

// --- S2 / S3: private message delivered live vs stored undelivered ----

func registerUser(t *testing.T, rt *Router, conn *Connection, username, password, email string) int64 {
	t.Helper()
	send(rt, conn, `{"type":"register","username":"`+username+`","password":"`+password+`","email":"`+email+`"}`)
	tr := conn.transport.(*mockTransport)
	envs := tr.envelopes()
	data := envs[len(envs)-1].Data.(protocol.UserPublic)
	return data.ID
}

func TestScenarioPrivateMessageLiveDelivered(t *testing.T) {
	rt := newTestRouter(t)

	aliceConn, aliceTr := newTestConn()
	aliceID := registerUser(t, rt, aliceConn, "alice", "hunter2hunter", "a@x")

	bobConn, bobTr := newTestConn()
	bobID := registerUser(t, rt, bobConn, "bob", "hunter2hunter", "b@x")

	aliceTr.sent = nil
	bobTr.sent = nil

	frame := `{"type":"private_message","sender_id":` + itoa(aliceID) + `,"receiver_id":` + itoa(bobID) + `,"content":"hi"}`
	send(rt, aliceConn, frame)

	bobEnvs := bobTr.envelopes()
	if len(bobEnvs) != 1 || bobEnvs[0].Type != protocol.TypePrivateMessage {
		t.Fatalf("expected Bob to receive exactly one private_message, got %+v", bobEnvs)
	}
	pm := bobEnvs[0].Data.(protocol.PrivateMessageData)
	if pm.SenderID != aliceID || pm.ReceiverID != bobID || pm.Content != "hi" {
		t.Fatalf("unexpected private message payload: %+v", pm)
	}

	aliceEnvs := aliceTr.envelopes()
	if len(aliceEnvs) != 1 || aliceEnvs[0].Type != protocol.TypeMessageSent {
		t.Fatalf("expected Alice to receive message_sent, got %+v", aliceEnvs)
	}

	msg, err := rt.store.GetMessage(context.Background(), pm.ID)
	if err != nil {
		t.Fatalf("GetMessage: %v", err)
	}
	if !msg.IsDelivered {
		t.Errorf("expected is_delivered=true for a live delivery")
	}
}

func TestScenarioPrivateMessageStoredUndelivered(t *testing.T) {
	rt := newTestRouter(t)

	aliceConn, aliceTr := newTestConn()
	aliceID := registerUser(t, rt, aliceConn, "alice", "hunter2hunter", "a@x")
	aliceTr.sent = nil

	frame := `{"type":"private_message","sender_id":` + itoa(aliceID) + `,"receiver_id":999,"content":"hi"}`
	send(rt, aliceConn, frame)

	envs := aliceTr.envelopes()
	if len(envs) != 1 || envs[0].Type != protocol.TypeMessageSent {
		t.Fatalf("expected Alice to receive message_sent even though Bob is offline, got %+v", envs)
	}

	pm := envs[0].Data.(protocol.PrivateMessageData)
	msg, err := rt.store.GetMessage(context.Background(), pm.ID)
	if err != nil {
		t.Fatalf("GetMessage: %v", err)
	}
	if msg.IsDelivered {
		t.Errorf("expected is_delivered=false when the receiver is offline")
	}
}

// --- S5: unauthorized frame ---------------------------------------------

func TestScenarioUnauthorizedFrame(t *testing.T) {
	rt := newTestRouter(t)
	conn, tr := newTestConn()

	send(rt, conn, `{"type":"private_message","sender_id":1,"receiver_id":2,"content":"x"}`)

	envs := tr.envelopes()
	if len(envs) != 1 {
		t.Fatalf("expected exactly one error frame, got %d", len(envs))
	}
	if envs[0].Type != protocol.TypeError || !strings.Contains(envs[0].Message, "Unauthorized") {
		t.Fatalf("expected Unauthorized error, got %+v", envs[0])
	}
	if conn.State() == StateClosed {
		t.Errorf("connection must remain open after an Unauthorized frame")
	}
}

// --- S6: invalid schema --------------------------------------------------

func TestScenarioInvalidSchema(t *testing.T) {
	rt := newTestRouter(t)
	conn, tr := newTestConn()
	conn.authorize(0) // HandleFrame validates before the auth gate, so the validation error is reported either way

	send(rt, conn, `{"type":"register","username":"ab"}`)

	envs := tr.envelopes()
	if len(envs) != 1 || envs[0].Type != protocol.TypeError {
		t.Fatalf("expected a single error frame, got %+v", envs)
	}
	if !strings.Contains(envs[0].Message, "Validation error") {
		t.Fatalf("expected a validation error message, got %q", envs[0].Message)
	}
}

// --- Invariant: hash non-disclosure --------------------------------------

func TestInvariantNoSecretsInOutboundFrames(t *testing.T) {
	rt := newTestRouter(t)
	conn, tr := newTestConn()
	registerUser(t, rt, conn, "alice", "hunter2hunter", "a@x")

	for _, v := range tr.raw() {
		b, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		if strings.Contains(string(b), "password_hash") || strings.Contains(string(b), "\"salt\"") {
			t.Fatalf("outbound frame leaked a secret field: %s", b)
		}
	}
}

// --- Invariant: round-trip credentials -----------------------------------

func TestInvariantRoundTripCredentials(t *testing.T) {
	rt := newTestRouter(t)

	regConn, _ := newTestConn()
	registerUser(t, rt, regConn, "alice", "hunter2hunter", "a@x")

	loginConn, loginTr := newTestConn()
	send(rt, loginConn, `{"type":"login","username":"alice","password":"hunter2hunter"}`)
	envs := loginTr.envelopes()
	if len(envs) != 1 || envs[0].Type != protocol.TypeAuthSuccess {
		t.Fatalf("expected login to succeed with the correct password, got %+v", envs)
	}

	badConn, badTr := newTestConn()
	send(rt, badConn, `{"type":"login","username":"alice","password":"wrongpassword"}`)
	envs = badTr.envelopes()
	if len(envs) != 1 || envs[0].Type != protocol.TypeError || !strings.Contains(envs[0].Message, "Invalid credentials") {
		t.Fatalf("expected login to fail with a non-discriminating error, got %+v", envs)
	}
}

// --- Duplicate login eviction policy --------------------------------------

func TestDuplicateLoginEvictsOldConnection(t *testing.T) {
	rt := newTestRouter(t)

	firstConn, _ := newTestConn()
	registerUser(t, rt, firstConn, "alice", "hunter2hunter", "a@x")

	secondConn, secondTr := newTestConn()
	send(rt, secondConn, `{"type":"login","username":"alice","password":"hunter2hunter"}`)

	firstTr := firstConn.transport.(*mockTransport)
	if !firstTr.closed {
		t.Errorf("expected the first connection to be closed on duplicate login")
	}
	// The eviction notice must have reached the old transport while it was
	// still open — mockTransport.Send fails once closed, so a notice
	// recorded here proves the ordering, not just that Close ran. The first
	// envelope is the auth_success from registration.
	firstEnvs := firstTr.envelopes()
	if len(firstEnvs) != 2 || firstEnvs[1].Type != protocol.TypeError {
		t.Fatalf("expected the first connection to receive an eviction notice before being closed, got %+v", firstEnvs)
	}

	envs := secondTr.envelopes()
	if len(envs) != 1 || envs[0].Type != protocol.TypeAuthSuccess {
		t.Fatalf("expected the new connection to authenticate successfully, got %+v", envs)
	}
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
