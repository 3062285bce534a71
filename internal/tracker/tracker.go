// Package tracker merges decoded Mode S messages into a per-ICAO aircraft
// state table, resolves CPR position pairs, and fans out update events to
// subscribers. The map and every field of every AircraftState are owned
// exclusively by the tracker and mutated only under its mutex.
package tracker

import (
	"sync"
	"time"

	"go1090/internal/adsb"
	"go1090/internal/geo"
)

const (
	aircraftTimeout    = adsb.AircraftTimeoutSec * time.Second
	maxPositionHistory = adsb.MaxPositionHistory
	cprMaxAge          = adsb.CPRFrameMaxAgeSec * time.Second
	emaOldWeight       = adsb.SignalEMAOldWeight
	emaNewWeight       = adsb.SignalEMANewWeight
)

// PositionFix is one entry of an aircraft's position history ring buffer.
type PositionFix struct {
	Lat, Lon float64
	AltFt    int
	At       time.Time
}

// EHSFields mirrors adsb.EHS with each value retained independently
// (a later BDS register overlays only the fields it carries).
type EHSFields struct {
	SelectedAltitude *int
	Roll             *float64
	MagneticHeading  *float64
	IAS              *int
}

// AircraftState is the tracker's live record for one ICAO address.
type AircraftState struct {
	ICAO uint32

	Callsign string

	HasPosition bool
	Lat, Lon    float64
	Altitude    int

	HasVelocity  bool
	GroundSpeed  int
	Heading      float64
	VerticalRate int

	Squawk string

	EHS EHSFields

	SignalStrength float64
	HasSignal      bool

	LastSeen time.Time
	Messages uint64

	History []PositionFix

	evenFrame    *adsb.CPRFrame
	oddFrame     *adsb.CPRFrame
	lastHistSave time.Time
}

// Snapshot is the externally visible, copy-safe view of an AircraftState:
// no CPR slots, and a distance field populated only when a receiver
// anchor is configured.
type Snapshot struct {
	ICAO     string
	Callsign string

	Lat, Lon    *float64
	Altitude    *int
	GroundSpeed *int
	Heading     *float64
	VerticalRate *int
	Squawk      *string

	SelectedAltitude *int
	Roll             *float64
	MagneticHeading  *float64
	IAS              *int

	SignalStrength *float64
	DistanceNM      *float64

	LastSeen time.Time
	Messages uint64
}

// Event is published to subscribers whenever an aircraft's state changes.
type Event struct {
	ICAO     uint32
	Snapshot Snapshot
}

// Anchor is the receiver's own position, used for range gating and the
// snapshot distance field.
type Anchor struct {
	Lat, Lon float64
	Set      bool
}

// Tracker owns the aircraft map and fans out update events through
// bounded per-subscriber channels, dropping the oldest queued event if a
// subscriber falls behind.
type Tracker struct {
	mu        sync.Mutex
	aircraft  map[uint32]*AircraftState
	anchor    Anchor
	maxRangeNM float64

	subMu sync.Mutex
	subs  map[int]chan Event
	nextSub int

	onSighting func(AircraftState)
}

// New creates an empty Tracker. anchor.Set controls whether range gating
// and distance reporting are active; maxRangeNM is ignored when unset.
func New(anchor Anchor, maxRangeNM float64) *Tracker {
	return &Tracker{
		aircraft:   make(map[uint32]*AircraftState),
		anchor:     anchor,
		maxRangeNM: maxRangeNM,
		subs:       make(map[int]chan Event),
	}
}

// OnSighting registers a callback invoked (outside the tracker lock) with a
// copy of an aircraft's state on the first Update for that aircraft and then
// at most once per HistorySaveIntervalSec, whatever kind of message triggers
// it, for the history store's periodic save path to hook into. Only one
// callback is supported.
func (t *Tracker) OnSighting(fn func(AircraftState)) {
	t.mu.Lock()
	t.onSighting = fn
	t.mu.Unlock()
}

// Subscribe registers a new event subscriber with the given buffer depth
// and returns the channel plus an unsubscribe function.
func (t *Tracker) Subscribe(buffer int) (<-chan Event, func()) {
	t.subMu.Lock()
	defer t.subMu.Unlock()

	id := t.nextSub
	t.nextSub++
	ch := make(chan Event, buffer)
	t.subs[id] = ch

	return ch, func() {
		t.subMu.Lock()
		defer t.subMu.Unlock()
		delete(t.subs, id)
		close(ch)
	}
}

func (t *Tracker) publish(ev Event) {
	t.subMu.Lock()
	defer t.subMu.Unlock()
	for _, ch := range t.subs {
		select {
		case ch <- ev:
		default:
			// Drop-oldest: make room by discarding one queued event.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- ev:
			default:
			}
		}
	}
}

// Update merges a decoded message into the tracker. Messages with
// crc_valid = false must never reach here; callers gate on that upstream.
func (t *Tracker) Update(msg *adsb.Message) {
	if !msg.CRCValid || msg.ICAO == 0 {
		return
	}

	t.mu.Lock()

	state, ok := t.aircraft[msg.ICAO]
	if !ok {
		state = &AircraftState{ICAO: msg.ICAO}
		t.aircraft[msg.ICAO] = state
	}

	state.LastSeen = msg.ReceivedAt
	state.Messages++
	t.updateSignal(state, msg.Signal)

	var sightingCopy *AircraftState

	// ME (DF17/18) or MB (DF20/21) payload: frame bits [32:88), byte-aligned.
	var payload [7]byte
	copy(payload[:], msg.Raw[4:11])

	switch {
	case msg.IsIdentification():
		id := adsb.ParseIdentification(payload)
		state.Callsign = id.Callsign

	default:
		if surface, ok := msg.IsPosition(); ok {
			pos := adsb.ParseAirbornePosition(payload, surface)
			state.Altitude = pos.Altitude
			t.mergePosition(state, pos, msg.ReceivedAt)
		} else if msg.IsVelocity() {
			v := adsb.ParseVelocity(payload)
			state.HasVelocity = true
			state.GroundSpeed = v.Speed
			if v.HeadingValid {
				state.Heading = v.Heading
			}
			state.VerticalRate = v.VerticalRate
		}
	}

	// Identity reply and Comm-B/EHS both arrive on DF20/21 and are
	// independent fields of the same frame, not alternatives.
	if msg.IsIdentityReply() {
		reply := adsb.ParseIdentityReply(msg.Raw[:])
		state.Squawk = reply.Squawk
	}
	if msg.IsCommB() {
		if ehs, ok := adsb.DecodeEHS(payload); ok {
			t.overlayEHS(state, ehs)
		}
	}

	if t.onSighting != nil && time.Since(state.lastHistSave) >= adsb.HistorySaveIntervalSec*time.Second {
		state.lastHistSave = msg.ReceivedAt
		clone := *state
		sightingCopy = &clone
	}

	snap := t.snapshotLocked(state)
	t.mu.Unlock()

	t.publish(Event{ICAO: msg.ICAO, Snapshot: snap})

	if sightingCopy != nil {
		t.onSighting(*sightingCopy)
	}
}

func (t *Tracker) updateSignal(state *AircraftState, sample float64) {
	if !state.HasSignal {
		state.SignalStrength = sample
		state.HasSignal = true
		return
	}
	state.SignalStrength = round6(emaOldWeight*state.SignalStrength + emaNewWeight*sample)
}

func round6(v float64) float64 {
	const scale = 1e6
	return float64(int64(v*scale+0.5)) / scale
}

func (t *Tracker) mergePosition(state *AircraftState, pos adsb.PositionReport, at time.Time) {
	frame := adsb.CPRFrame{LatCPR: pos.LatCPR, LonCPR: pos.LonCPR, Timestamp: at}
	if pos.OddFlag == 1 {
		state.oddFrame = &frame
	} else {
		state.evenFrame = &frame
	}

	if state.evenFrame == nil || state.oddFrame == nil {
		return
	}
	if absDuration(state.evenFrame.Timestamp, state.oddFrame.Timestamp) > cprMaxAge {
		return
	}

	lat, lon, ok := adsb.GlobalDecode(*state.evenFrame, *state.oddFrame)
	if !ok {
		return
	}

	if t.anchor.Set && t.maxRangeNM > 0 {
		if geo.HaversineNM(t.anchor.Lat, t.anchor.Lon, lat, lon) > t.maxRangeNM {
			return
		}
	}

	state.HasPosition = true
	state.Lat, state.Lon = lat, lon

	state.History = append(state.History, PositionFix{Lat: lat, Lon: lon, AltFt: state.Altitude, At: at})
	if len(state.History) > maxPositionHistory {
		state.History = state.History[len(state.History)-maxPositionHistory:]
	}
}

func absDuration(a, b time.Time) time.Duration {
	d := a.Sub(b)
	if d < 0 {
		return -d
	}
	return d
}

func (t *Tracker) overlayEHS(state *AircraftState, ehs adsb.EHS) {
	if ehs.SelectedAltitude != nil {
		state.EHS.SelectedAltitude = ehs.SelectedAltitude
	}
	if ehs.Roll != nil {
		state.EHS.Roll = ehs.Roll
	}
	if ehs.MagneticHeading != nil {
		state.EHS.MagneticHeading = ehs.MagneticHeading
	}
	if ehs.IAS != nil {
		state.EHS.IAS = ehs.IAS
	}
}

func (t *Tracker) snapshotLocked(state *AircraftState) Snapshot {
	snap := Snapshot{
		ICAO:     hexICAO(state.ICAO),
		Callsign: state.Callsign,
		LastSeen: state.LastSeen,
		Messages: state.Messages,
	}
	if state.HasPosition {
		lat, lon := state.Lat, state.Lon
		snap.Lat, snap.Lon = &lat, &lon
		alt := state.Altitude
		snap.Altitude = &alt
		if t.anchor.Set {
			d := geo.HaversineNM(t.anchor.Lat, t.anchor.Lon, lat, lon)
			snap.DistanceNM = &d
		}
	}
	if state.HasVelocity {
		gs, hdg, vr := state.GroundSpeed, state.Heading, state.VerticalRate
		snap.GroundSpeed, snap.Heading, snap.VerticalRate = &gs, &hdg, &vr
	}
	if state.Squawk != "" {
		sq := state.Squawk
		snap.Squawk = &sq
	}
	if state.HasSignal {
		s := state.SignalStrength
		snap.SignalStrength = &s
	}
	snap.SelectedAltitude = state.EHS.SelectedAltitude
	snap.Roll = state.EHS.Roll
	snap.MagneticHeading = state.EHS.MagneticHeading
	snap.IAS = state.EHS.IAS
	return snap
}

func hexICAO(v uint32) string {
	const hex = "0123456789ABCDEF"
	var b [6]byte
	for i := 5; i >= 0; i-- {
		b[i] = hex[v&0xF]
		v >>= 4
	}
	return string(b[:])
}

// Sweep removes aircraft that have not been seen within the timeout and
// returns the full current snapshot list. Reads invoke this, so expiry is
// lazy rather than driven by a background timer.
func (t *Tracker) Sweep(now time.Time) []Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	for icao, state := range t.aircraft {
		if now.Sub(state.LastSeen) > aircraftTimeout {
			delete(t.aircraft, icao)
		}
	}

	out := make([]Snapshot, 0, len(t.aircraft))
	for _, state := range t.aircraft {
		out = append(out, t.snapshotLocked(state))
	}
	return out
}

// Candidates returns the ICAO addresses currently tracked in-memory, for
// use as the base of a short-frame recovery candidate set.
func (t *Tracker) Candidates() []uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]uint32, 0, len(t.aircraft))
	for icao := range t.aircraft {
		out = append(out, icao)
	}
	return out
}
