package speech

import (
	"encoding/json"
	"net/http"
	"time"

	"HealthAI/internal/utility"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const (
	maxMessageSize = 16 * 1024
	readWait       = 2 * time.Minute
)

// Client message types.
const (
	MsgStart   = "start"
	MsgPartial = "partial"
	MsgFinal   = "final"
	MsgStop    = "stop"
)

// Server reply types.
const (
	ReplyTranscript = "transcript"
	ReplyPartial    = "partial"
	ReplyError      = "error"
	ReplyStopped    = "stopped"
)

// ClientMessage is one recognizer event from the browser.
type ClientMessage struct {
	Type     string `json:"type"`
	Text     string `json:"text"`
	Language string `json:"language"`
}

type Reply struct {
	Type  string `json:"type"`
	Text  string `json:"text,omitempty"`
	Error string `json:"error,omitempty"`
}

// TranscriptSink receives the finished dictation segments of a flow.
type TranscriptSink interface {
	Exists(flowID string) bool
	// Transcribe appends text and returns the flow's full symptom text.
	Transcribe(flowID, text string) (string, error)
}

// DictationHandler streams browser speech recognition results into a flow.
type DictationHandler struct {
	hub  *utility.Hub
	sink TranscriptSink
	tr   utility.Translator
	lang utility.LanguageResolver
}

func NewDictationHandler(hub *utility.Hub, sink TranscriptSink, tr utility.Translator, lang utility.LanguageResolver) *DictationHandler {
	return &DictationHandler{hub: hub, sink: sink, tr: tr, lang: lang}
}

// ServeWS handles GET /symptoms/flows/:flow_id/dictation
func (h *DictationHandler) ServeWS(c echo.Context) error {
	flowID := c.Param("flow_id")
	lang := h.lang.Language(c, c.QueryParam("language"))
	logger := utility.GetLogger(c)

	// 1. The flow must exist before we upgrade.
	if !h.sink.Exists(flowID) {
		return utility.ErrorJSON(c, http.StatusNotFound, h.tr.T(lang, "symptomChecker.error.notFound", nil))
	}

	// 2. Upgrade HTTP to WebSocket
	ws, err := h.hub.Upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer ws.Close()

	// 3. Register; flow updates are pushed on the same connection.
	h.hub.Register(flowID, ws)
	defer h.hub.Unregister(flowID, ws)

	ws.SetReadLimit(maxMessageSize)

	// 4. Read loop
	for {
		_ = ws.SetReadDeadline(time.Now().Add(readWait))

		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn().Err(err).Str("flow_id", flowID).Msg("Dictation socket closed unexpectedly")
			}
			return nil
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			_ = h.reply(flowID, Reply{Type: ReplyError, Error: h.micError(lang, "bad-message")})
			continue
		}

		switch msg.Type {
		case MsgStart:
			if msg.Language != "" {
				lang = h.lang.Language(c, msg.Language)
			}
		case MsgPartial:
			_ = h.reply(flowID, Reply{Type: ReplyPartial, Text: msg.Text})
		case MsgFinal:
			text, err := h.sink.Transcribe(flowID, msg.Text)
			if err != nil {
				logger.Warn().Err(err).Str("flow_id", flowID).Msg("Dictation segment rejected")
				_ = h.reply(flowID, Reply{Type: ReplyError, Error: h.micError(lang, err.Error())})
				continue
			}
			_ = h.reply(flowID, Reply{Type: ReplyTranscript, Text: text})
		case MsgStop:
			_ = h.reply(flowID, Reply{Type: ReplyStopped})
			_ = ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return nil
		default:
			_ = h.reply(flowID, Reply{Type: ReplyError, Error: h.micError(lang, "unknown message type")})
		}
	}
}

func (h *DictationHandler) reply(flowID string, r Reply) error {
	return h.hub.Send(flowID, r)
}

func (h *DictationHandler) micError(lang, detail string) string {
	return h.tr.T(lang, "symptomChecker.mic.error", map[string]string{"error": detail})
}
