// Package snmpagent implements spec.md §4.7: the subagent protocol
// engine. It speaks the framed binary subagent wire protocol over a
// request/response queue layered on a TCP client, registers an OID
// subtree with a master, and answers Get/GetNext against an ordered
// value registry.
package snmpagent

import (
	"net"
	"time"

	"github.com/stardog-union/rocksnmp/internal/reactor"
	"github.com/stardog-union/rocksnmp/internal/readerwriter"
	"github.com/stardog-union/rocksnmp/internal/reqresp"
	"github.com/stardog-union/rocksnmp/internal/rlog"
	"github.com/stardog-union/rocksnmp/internal/snmpval"
	"github.com/stardog-union/rocksnmp/internal/snmpwire"
	"github.com/stardog-union/rocksnmp/internal/statemachine"
	"github.com/stardog-union/rocksnmp/internal/tcpclient"
)

// Edge space for this layer, base 500.
const layerBase = 500

const (
	EdgeOpened statemachine.Edge = layerBase + iota
	EdgeRegistered
)

// Agent-level node identifiers (spec.md §4.7's CLOSED/OPENED/REGISTERED,
// plus CONNECTING for the gap between ESTABLISHED and the Open
// response — distinct from tcpclient's own transport-level states).
const (
	StateClosed = iota
	StateConnecting
	StateOpened
	StateRegistered
)

// DefaultMasterPort is the default subagent master endpoint (spec.md
// §6): 127.0.0.1:705.
const DefaultMasterPort = 705

// Config parameterizes an Agent.
type Config struct {
	MasterIP          net.IP
	MasterPort        int
	AgentPrefix       snmpval.OID
	AgentName         string
	ReconnectInterval time.Duration
}

// DefaultConfig returns a Config pointed at the default master
// endpoint with the spec's 30-second reconnect interval (spec.md §9
// "recommended but not required" config knob).
func DefaultConfig() Config {
	return Config{
		MasterIP:          net.ParseIP("127.0.0.1"),
		MasterPort:        DefaultMasterPort,
		ReconnectInterval: 30 * time.Second,
	}
}

// Agent is the spec.md §4.7 subagent engine. It embeds *reqresp.Queue
// for the Open/Register handshake, which genuinely is a FIFO of two
// sequential self-initiated requests (spec.md §4.6 applies exactly).
// Once REGISTERED, the agent switches the connection over to a single
// long-lived inbound frame reader and issues further writes directly
// on the underlying reader/writer (through promotion), bypassing the
// queue's request-tracking — steady-state Get/GetNext traffic is
// master-initiated, not request/response pairs this agent sent.
type Agent struct {
	*reqresp.Queue
	sm *statemachine.StateMachine

	cfg      Config
	registry *snmpval.Registry

	sessionID      uint32
	transactionSeq uint32
	packetSeq      uint32

	openBuf     *readerwriter.Bytes
	registerBuf *readerwriter.Bytes

	current *frameBuffer

	reconnectTimer *reconnectTimer
}

// New constructs an Agent bound to registry. The registry's values are
// responsible for their own serialization, including polling a live
// store where they need to (snmpval.LiveCounter64) — the agent never
// touches storage.Source directly. Attach it to a reactor with
// reactor.Attach to start the connection.
func New(cfg Config, registry *snmpval.Registry) *Agent {
	a := &Agent{cfg: cfg, registry: registry}
	a.Queue = reqresp.New(a)
	a.sm = statemachine.New(statemachine.NopWatcher{})
	a.reconnectTimer = &reconnectTimer{agent: a}
	a.reconnectTimer.Interval = cfg.ReconnectInterval
	return a
}

// StateMachine returns the agent's own node/edge tracking, shadowing
// the promoted Queue.StateMachine (spec.md §9 capability stack: each
// layer's edges are its own, not its embedded layer's).
func (a *Agent) StateMachine() *statemachine.StateMachine { return a.sm }

// ThreadInit implements reactor.Handler: configures the endpoint,
// delegates to the embedded TCPClient to begin connecting, and attaches
// the reconnect timer handler (gated to act only while disconnected).
func (a *Agent) ThreadInit(r *reactor.Reactor) {
	a.Queue.TCPClient.SetEndpoint(a.cfg.MasterIP, a.cfg.MasterPort)
	a.Queue.ThreadInit(r)
	r.Attach(a.reconnectTimer)
}

// OnEdge implements statemachine.Watcher, receiving every edge bubbled
// from the embedded Queue (and, for the handshake buffers specifically,
// reqresp.EdgeRequestDone via AddCompletion rather than this bubble
// path).
func (a *Agent) OnEdge(edge statemachine.Edge, source *statemachine.StateMachine, pre bool) bool {
	switch edge {
	case tcpclient.EdgeConnected:
		a.onConnected()
	case reqresp.EdgeRequestDone:
		a.onRequestDone(source)
	case readerwriter.EdgeReadDone:
		a.onFrameReadDone()
	case tcpclient.EdgeCloseRequest, readerwriter.EdgeError, readerwriter.EdgeTimeout, readerwriter.EdgeHangup:
		a.onClosed()
	}
	return true
}

func (a *Agent) onConnected() {
	a.sm.SetState(StateConnecting)

	payload := snmpwire.AppendSubtreePayload(nil, 0, 0, 0, a.cfg.AgentPrefix, a.cfg.AgentName)
	hdr := snmpwire.Header{
		Version:       1,
		Type:          snmpwire.TypeOpen,
		PacketID:      snmpwire.WithRequestTag(a.nextPacketID(), snmpwire.TypeOpen),
		TransactionID: a.nextTransactionID(),
		PayloadLength: uint32(len(payload)),
	}
	frame := make([]byte, snmpwire.HeaderLen, snmpwire.HeaderLen+len(payload))
	hdr.Encode(frame)
	frame = append(frame, payload...)

	a.openBuf = readerwriter.NewWriteBytes(frame)
	a.openBuf.StateMachine().AddCompletion(a)
	// Wrapped so the response read waits for a full header-plus-payload
	// frame; the wrapper shares openBuf's storage and StateMachine.
	a.Queue.Enqueue(&frameBuffer{Bytes: a.openBuf})
}

func (a *Agent) onRequestDone(source *statemachine.StateMachine) {
	switch {
	case a.openBuf != nil && source == a.openBuf.StateMachine():
		a.handleOpenResponse(a.openBuf)
	case a.registerBuf != nil && source == a.registerBuf.StateMachine():
		a.handleRegisterResponse(a.registerBuf)
	}
}

func (a *Agent) handleOpenResponse(buf *readerwriter.Bytes) {
	hdr, _, ok := a.parseResponse(buf, snmpwire.TypeOpen)
	if !ok {
		return
	}
	a.sessionID = hdr.SessionID
	a.sm.SetState(StateOpened)
	a.sm.SendEdge(EdgeOpened, true)

	// The original sets priority=127 for Register specifically (Open
	// uses 0 via memset); snmp_registerpdu.cpp.
	payloadBytes := snmpwire.AppendSubtreePayload(nil, 0, 127, 0, a.cfg.AgentPrefix, "")
	regHdr := snmpwire.Header{
		Version:       1,
		Type:          snmpwire.TypeRegister,
		SessionID:     a.sessionID,
		PacketID:      snmpwire.WithRequestTag(a.nextPacketID(), snmpwire.TypeRegister),
		TransactionID: a.nextTransactionID(),
		PayloadLength: uint32(len(payloadBytes)),
	}
	frame := make([]byte, snmpwire.HeaderLen, snmpwire.HeaderLen+len(payloadBytes))
	regHdr.Encode(frame)
	frame = append(frame, payloadBytes...)

	a.registerBuf = readerwriter.NewWriteBytes(frame)
	a.registerBuf.StateMachine().AddCompletion(a)
	a.Queue.Enqueue(&frameBuffer{Bytes: a.registerBuf})
}

func (a *Agent) handleRegisterResponse(buf *readerwriter.Bytes) {
	_, _, ok := a.parseResponse(buf, snmpwire.TypeRegister)
	if !ok {
		return
	}
	a.sm.SetState(StateRegistered)
	a.sm.SendEdge(EdgeRegistered, true)

	a.current = newFrameBuffer()
	a.Queue.Read(a.current)
}

// parseResponse decodes buf as a Response frame, verifying its
// repurposed packet_id tag matches wantTag and its error code is
// noError (spec.md §4.7 "Response dispatch"; §7 "Any Error != 0 in the
// response body is logged").
func (a *Agent) parseResponse(buf *readerwriter.Bytes, wantTag uint8) (snmpwire.Header, []byte, bool) {
	data := buf.ReadData()
	if len(data) < snmpwire.HeaderLen {
		rlog.Error("snmpagent: short response frame")
		return snmpwire.Header{}, nil, false
	}
	hdr, err := snmpwire.DecodeHeader(data[:snmpwire.HeaderLen])
	if err != nil {
		rlog.Error("snmpagent: failed to decode response header", "err", err)
		return snmpwire.Header{}, nil, false
	}
	if hdr.Type != snmpwire.TypeResponse || snmpwire.RequestTag(hdr.PacketID) != wantTag {
		rlog.Error("snmpagent: unexpected response frame", "type", hdr.Type, "tag", snmpwire.RequestTag(hdr.PacketID))
		return snmpwire.Header{}, nil, false
	}
	payload := data[snmpwire.HeaderLen:]
	errCode, _, rest, err := snmpwire.DecodeResponseHeader(payload)
	if err != nil {
		rlog.Error("snmpagent: failed to decode response body", "err", err)
		return snmpwire.Header{}, nil, false
	}
	if errCode != snmpwire.ErrNone {
		rlog.Error("snmpagent: master returned error", "errCode", errCode)
		return snmpwire.Header{}, nil, false
	}
	return hdr, rest, true
}

func (a *Agent) onFrameReadDone() {
	if a.current == nil {
		return
	}
	if a.current.BytesRead() < a.current.RequiredMinimum() {
		return
	}

	data := a.current.ReadData()
	hdr, err := snmpwire.DecodeHeader(data[:snmpwire.HeaderLen])
	if err == nil {
		payload := data[snmpwire.HeaderLen:]
		a.dispatchInbound(hdr, payload)
	} else {
		rlog.Error("snmpagent: failed to decode inbound frame header", "err", err)
	}

	a.current = newFrameBuffer()
	a.Queue.Read(a.current)
}

func (a *Agent) dispatchInbound(hdr snmpwire.Header, payload []byte) {
	switch hdr.Type {
	case snmpwire.TypeGet:
		a.handleLookup(hdr, payload, false)
	case snmpwire.TypeGetNext:
		a.handleLookup(hdr, payload, true)
	case snmpwire.TypeResponse:
		rlog.Warn("snmpagent: unexpected response while registered", "tag", snmpwire.RequestTag(hdr.PacketID))
	default:
		rlog.Warn("snmpagent: unknown inbound packet type", "type", hdr.Type)
	}
}

// handleLookup implements spec.md §4.7's "Request dispatch (REGISTERED
// state)": walk the payload's OID ranges, answering each with the
// registered value or a noSuchObject/endOfMibView binding.
func (a *Agent) handleLookup(req snmpwire.Header, payload []byte, getNext bool) {
	if req.Flags&snmpwire.FlagNonDefaultContext != 0 {
		a.sendResponse(req, snmpwire.ErrUnsupportedContext, nil)
		return
	}

	// Every binding in this request answers against the same snapshot,
	// so a value registered mid-dispatch can't affect an answer already
	// in flight (spec.md §4.7 "the answer uses the snapshot at dispatch
	// time").
	snap := a.registry.Snapshot()

	var bindings []byte
	offset := 0
	for offset < len(payload) {
		startSub, _, n1, err := snmpwire.DecodeOID(payload[offset:])
		if err != nil {
			break
		}
		offset += n1

		var endSub []uint32
		if offset < len(payload) {
			var n2 int
			endSub, _, n2, err = snmpwire.DecodeOID(payload[offset:])
			if err != nil {
				break
			}
			offset += n2
		}

		start := snmpval.OID(startSub)
		end := snmpval.OID(endSub)

		v, ok := snmpval.LookupSnapshot(snap, start, end, getNext)
		switch {
		case ok:
			bindings = v.AppendBinding(bindings)
		case getNext:
			bindings = snmpval.AppendErrorBinding(bindings, snmpwire.VarEndOfMibView, start)
		default:
			bindings = snmpval.AppendErrorBinding(bindings, snmpwire.VarNoSuchObject, start)
		}
	}

	a.sendResponse(req, snmpwire.ErrNone, bindings)
}

func (a *Agent) sendResponse(req snmpwire.Header, errCode uint16, bindings []byte) {
	body := snmpwire.AppendResponseHeader(nil, errCode, 0)
	body = append(body, bindings...)

	hdr := snmpwire.Header{
		Version:       req.Version,
		Type:          snmpwire.TypeResponse,
		SessionID:     a.sessionID,
		TransactionID: req.TransactionID,
		PacketID:      req.PacketID,
		PayloadLength: uint32(len(body)),
	}
	frame := make([]byte, snmpwire.HeaderLen, snmpwire.HeaderLen+len(body))
	hdr.Encode(frame)
	frame = append(frame, body...)

	a.Queue.Write(readerwriter.NewWriteBytes(frame))
}

func (a *Agent) onClosed() {
	a.sm.SetState(StateClosed)
	a.sessionID = 0
	a.openBuf = nil
	a.registerBuf = nil
	a.current = nil
}

func (a *Agent) nextPacketID() uint32 {
	a.packetSeq++
	return a.packetSeq
}

func (a *Agent) nextTransactionID() uint32 {
	a.transactionSeq++
	return a.transactionSeq
}

// frameBuffer is a readerwriter.Buffer whose RequiredMinimum grows
// from snmpwire.HeaderLen to HeaderLen+payload_length once the header
// bytes have arrived (spec.md §4.7 "Header parser").
type frameBuffer struct {
	*readerwriter.Bytes
}

func newFrameBuffer() *frameBuffer {
	return &frameBuffer{Bytes: readerwriter.NewReadBytes(snmpwire.HeaderLen)}
}

func (f *frameBuffer) RequiredMinimum() int {
	if f.BytesRead() < snmpwire.HeaderLen {
		return snmpwire.HeaderLen
	}
	hdr, err := snmpwire.DecodeHeader(f.Data()[:snmpwire.HeaderLen])
	if err != nil {
		return snmpwire.HeaderLen
	}
	need := snmpwire.HeaderLen + int(hdr.PayloadLength)
	f.Grow(need)
	return need
}

// reconnectTimer is a standalone reactor.Base handler for the spec.md
// §4.7 "arm a 30-second timer whose callback reattempts connect"
// behavior, kept separate from readerwriter.ReaderWriter.OnTimer (which
// always closes) per the design note in readerwriter.go.
type reconnectTimer struct {
	reactor.Base
	agent *Agent
}

func (t *reconnectTimer) ThreadInit(r *reactor.Reactor) {
	t.Base.ThreadInit(r)
	r.Schedule(t)
}

func (t *reconnectTimer) OnTimer() bool {
	if t.R != nil {
		t.R.Reschedule(t)
	}
	if t.agent.sm.CurrentNode() == StateClosed {
		// Close released the client's reactor link; restore it before
		// redialing.
		t.agent.Queue.TCPClient.Base.R = t.R
		t.agent.Queue.TCPClient.Connect(t.agent.cfg.MasterIP, t.agent.cfg.MasterPort)
	}
	return true
}
