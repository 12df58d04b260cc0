package speech

import (
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"HealthAI/internal/geminiservice"
	"HealthAI/internal/i18n"
	"HealthAI/internal/utility"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTranslator(t *testing.T) *i18n.Translator {
	t.Helper()
	tr, err := i18n.New("en")
	require.NoError(t, err)
	return tr
}

func TestNarrate(t *testing.T) {
	tr := testTranslator(t)
	d := &geminiservice.DiagnosisResult{
		PossibleCauses: []geminiservice.PossibleCause{
			{Cause: "Common cold", SuggestedTreatment: "Rest and fluids"},
			{Cause: "Flu", SuggestedTreatment: "Antivirals if early"},
		},
		HomeCareTips: []string{"Drink tea", "Sleep"},
	}

	got := Narrate(d, "en", tr)
	assert.Equal(t, "Possible Causes. Common cold. Rest and fluids. Flu. Antivirals if early. Home Care Tips. Drink tea. Sleep", got)

	es := Narrate(d, "es", tr)
	assert.False(t, strings.HasPrefix(es, "Possible Causes"), "headings are localized")

	assert.Empty(t, Narrate(nil, "en", tr))
}

type fixedLanguage string

func (f fixedLanguage) Language(_ echo.Context, override string) string {
	if override != "" {
		return override
	}
	return string(f)
}

type memorySink struct {
	mu    sync.Mutex
	flows map[string]string
	fail  error
}

func (m *memorySink) Exists(flowID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.flows[flowID]
	return ok
}

func (m *memorySink) Transcribe(flowID, text string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return "", m.fail
	}
	m.flows[flowID] = strings.TrimSpace(m.flows[flowID] + " " + text)
	return m.flows[flowID], nil
}

func startDictation(t *testing.T, sink *memorySink) (*httptest.Server, *utility.Hub) {
	t.Helper()
	hub := utility.NewHub()
	h := NewDictationHandler(hub, sink, testTranslator(t), fixedLanguage("en"))

	e := echo.New()
	e.GET("/symptoms/flows/:flow_id/dictation", h.ServeWS)
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return srv, hub
}

func dial(t *testing.T, srv *httptest.Server, flowID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/symptoms/flows/" + flowID + "/dictation"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func TestDictation_Session(t *testing.T) {
	sink := &memorySink{flows: map[string]string{"f1": "I feel"}}
	srv, hub := startDictation(t, sink)
	conn := dial(t, srv, "f1")

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: MsgStart, Language: "en"}))
	require.NoError(t, conn.WriteJSON(ClientMessage{Type: MsgPartial, Text: "dizz"}))

	var reply Reply
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, Reply{Type: ReplyPartial, Text: "dizz"}, reply)

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: MsgFinal, Text: "dizzy"}))
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, Reply{Type: ReplyTranscript, Text: "I feel dizzy"}, reply)
	assert.True(t, hub.Connected("f1"))

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: MsgStop}))
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, ReplyStopped, reply.Type)

	assert.Eventually(t, func() bool { return !hub.Connected("f1") }, time.Second, 10*time.Millisecond)
}

func TestDictation_ErrorsAreNotFatal(t *testing.T) {
	sink := &memorySink{flows: map[string]string{"f1": ""}, fail: errors.New("operation not allowed at this stage")}
	srv, _ := startDictation(t, sink)
	conn := dial(t, srv, "f1")

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: MsgFinal, Text: "cough"}))
	var reply Reply
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, ReplyError, reply.Type)
	assert.Contains(t, reply.Error, "Speech recognition error: operation not allowed at this stage")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, ReplyError, reply.Type)

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: "shout"}))
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, ReplyError, reply.Type)

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: MsgPartial, Text: "still here"}))
	reply = Reply{}
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, Reply{Type: ReplyPartial, Text: "still here"}, reply)
}

func TestDictation_UnknownFlow(t *testing.T) {
	srv, _ := startDictation(t, &memorySink{flows: map[string]string{}})

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/symptoms/flows/nope/dictation"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 404, resp.StatusCode)
}

func TestDictation_FlowEventsShareTheSocket(t *testing.T) {
	sink := &memorySink{flows: map[string]string{"f1": ""}}
	srv, hub := startDictation(t, sink)
	conn := dial(t, srv, "f1")

	assert.Eventually(t, func() bool { return hub.Connected("f1") }, time.Second, 10*time.Millisecond)
	require.NoError(t, hub.Send("f1", map[string]string{"type": "flow"}))

	var msg map[string]string
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "flow", msg["type"])
}
