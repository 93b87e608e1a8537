// Copyright (C) 2024 Coredrive, Inc.
// See LICENSE for copying information.

// Package eventstream implements the long-polled action-packet processor:
// parsing the `/wsc` response, suppressing packets this session
// originated, and advancing the server sequence number only once a batch's
// trailing `sn` is observed.
package eventstream

import (
	"encoding/json"

	"github.com/zeebo/errs"
)

// Error is the eventstream error class.
var Error = errs.Class("eventstream")

// State is the processor's position in its request/apply cycle.
type State int

// States.
const (
	StateIdle State = iota
	StateInFlight
	StateParsing
	StateApplying
	StateCommitted
	StateStopped
)

// Tag is the short "a" discriminator on an action packet.
type Tag string

// Packet tags.
const (
	TagNewNode          Tag = "t"
	TagNodeUpdate       Tag = "u"
	TagSubtreeDelete    Tag = "d"
	TagShareAdd         Tag = "s"
	TagShareUpdate      Tag = "s2"
	TagKeyDistribution  Tag = "k"
	TagContact          Tag = "c"
	TagFileAttr         Tag = "fa"
	TagUserAttr         Tag = "ua"
	TagIncomingPCR      Tag = "ipc"
	TagOutgoingPCR      Tag = "opc"
	TagUpdateIncomingPC Tag = "upci"
	TagUpdateOutgoingPC Tag = "upco"
	TagPublicLink       Tag = "ph"
	TagEmailChanged     Tag = "se"
	TagPurchase         Tag = "psts"
	TagPurchaseSession  Tag = "pses"
	TagAlertsAck        Tag = "la"
	TagBusinessStatus   Tag = "ub"
)

// Packet is one element of the `a` array in a `/wsc` response.
type Packet struct {
	Tag     Tag             `json:"a"`
	Origin  string          `json:"ou,omitempty"`
	Payload json.RawMessage `json:"-"`
}

// rawPacket lets Payload capture the full object alongside the typed Tag
// and Origin fields, since handlers need the tag-specific remaining keys.
type rawPacket struct {
	Tag    Tag    `json:"a"`
	Origin string `json:"ou,omitempty"`
}

// Response is the decoded `/wsc` body: `{a:[…], sn:"…"}`.
type Response struct {
	Packets []Packet
	SN      string
}

// ParseResponse decodes a raw `/wsc` body. A bare `"0"` keep-alive
// response decodes to a zero-packet Response with an empty SN.
func ParseResponse(body []byte) (Response, error) {
	var keepAlive int
	if err := json.Unmarshal(body, &keepAlive); err == nil {
		return Response{}, nil
	}

	var wire struct {
		A  []json.RawMessage `json:"a"`
		SN string            `json:"sn"`
	}
	if err := json.Unmarshal(body, &wire); err != nil {
		return Response{}, Error.Wrap(err)
	}

	packets := make([]Packet, 0, len(wire.A))
	for _, raw := range wire.A {
		var rp rawPacket
		if err := json.Unmarshal(raw, &rp); err != nil {
			// A malformed element is skipped; a single bad element
			// never aborts the batch.
			continue
		}
		packets = append(packets, Packet{Tag: rp.Tag, Origin: rp.Origin, Payload: raw})
	}

	return Response{Packets: packets, SN: wire.SN}, nil
}

// Handler applies one packet's effect to the node graph / account state.
// Handlers are looked up by Tag; a tag with no registered handler is
// ignored, keeping forward compatibility with server tags the core does
// not model (chat).
type Handler func(p Packet) error

// Processor drives the apply state machine and the origin-suppression
// rule.
type Processor struct {
	state      State
	sessionTag string
	sn         string
	handlers   map[Tag]Handler
}

// New returns an idle Processor. sessionTag is the per-session random
// marker placed in the request's `i` field, used to recognize and suppress
// this session's own packets.
func New(sessionTag string) *Processor {
	return &Processor{sessionTag: sessionTag, handlers: make(map[Tag]Handler)}
}

// Handle registers fn for tag, replacing any previous registration.
func (p *Processor) Handle(tag Tag, fn Handler) {
	p.handlers[tag] = fn
}

// SN returns the last-committed server sequence number.
func (p *Processor) SN() string { return p.sn }

// State returns the processor's current state.
func (p *Processor) State() State { return p.state }

// SetSN seeds the starting sequence number, e.g. from persistence on
// restart, which resumes the stream without a full reload.
func (p *Processor) SetSN(sn string) { p.sn = sn }

// Apply runs one `/wsc` response through {parsing → applying → committed},
// applying packets in order and suppressing any whose origin matches this
// session. The sequence number only
// advances after every packet in the batch is applied without a fatal
// protocol violation; a crash mid-batch forces re-delivery of the whole
// batch on reconnect, since sn was never persisted.
func (p *Processor) Apply(resp Response) error {
	p.state = StateParsing
	p.state = StateApplying

	for _, packet := range resp.Packets {
		if packet.Origin != "" && packet.Origin == p.sessionTag {
			continue
		}
		handler, ok := p.handlers[packet.Tag]
		if !ok {
			continue
		}
		if err := handler(packet); err != nil {
			p.state = StateIdle
			return Error.Wrap(err)
		}
	}

	if resp.SN != "" {
		p.sn = resp.SN
	}
	p.state = StateCommitted
	p.state = StateIdle
	return nil
}

// Stop marks the processor permanently stopped, on ESID or repeated
// failures; the only recovery is a fresh login and full fetch.
func (p *Processor) Stop() { p.state = StateStopped }

// Stopped reports whether Stop has been called.
func (p *Processor) Stopped() bool { return p.state == StateStopped }
