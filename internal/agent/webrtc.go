package agent

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/pion/webrtc/v3"

	"skyfleet/internal/core/domain"
)

// webrtcSessions owns the agent's peer connections, one per server-side
// viewer session. The agent is the offering side: the server asks for an
// offer, the agent answers with SDP and trickles ICE candidates.
type webrtcSessions struct {
	agent *Agent

	mu    sync.Mutex
	peers map[string]*webrtc.PeerConnection
}

func newWebRTCSessions(a *Agent) *webrtcSessions {
	return &webrtcSessions{
		agent: a,
		peers: make(map[string]*webrtc.PeerConnection),
	}
}

func (w *webrtcSessions) closeAll() {
	w.mu.Lock()
	peers := w.peers
	w.peers = make(map[string]*webrtc.PeerConnection)
	w.mu.Unlock()

	for id, pc := range peers {
		if err := pc.Close(); err != nil {
			w.agent.logger.Debugw("peer connection close failed", "session_id", id, "error", err)
		}
	}
}

func (a *Agent) handleWebRTCRequestOffer(payload json.RawMessage) {
	var req domain.WebRTCOfferRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		a.logger.Warnw("malformed webrtc offer request", "error", err)
		return
	}
	if req.SessionID == "" {
		a.logger.Warn("webrtc offer request missing session id")
		return
	}

	if err := a.webrtc.createOffer(req.SessionID); err != nil {
		a.logger.Warnw("webrtc offer failed", "session_id", req.SessionID, "error", err)
	}
}

func (w *webrtcSessions) createOffer(sessionID string) error {
	config := webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
		},
	}

	pc, err := webrtc.NewPeerConnection(config)
	if err != nil {
		return err
	}

	// The agent sends video only.
	if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo,
		webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionSendonly}); err != nil {
		pc.Close()
		return err
	}

	sendStart := domain.TimestampMillis(time.Now())
	w.agent.trackPending(domain.CategoryWebRTC, sendStart, 0)

	pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil {
			return
		}
		init := candidate.ToJSON()
		payload := domain.WebRTCICEPayload{
			DroneID:   w.agent.cfg.AgentID,
			SessionID: sessionID,
			Candidate: domain.ICECandidate{
				Candidate: init.Candidate,
				SDPMid:    derefString(init.SDPMid),
			},
		}
		if init.SDPMLineIndex != nil {
			payload.Candidate.SDPMLineIndex = *init.SDPMLineIndex
		}
		w.agent.emit(domain.EventWebRTCICECandidate, payload)
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		w.agent.logger.Debugw("webrtc connection state", "session_id", sessionID, "state", state)
		if state == webrtc.PeerConnectionStateConnected {
			w.agent.recordAck(domain.CategoryWebRTC, sendStart)
		}
	})

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		pc.Close()
		return err
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		pc.Close()
		return err
	}

	w.mu.Lock()
	if old, ok := w.peers[sessionID]; ok {
		old.Close()
	}
	w.peers[sessionID] = pc
	w.mu.Unlock()

	return w.agent.emit(domain.EventWebRTCOffer, domain.WebRTCOfferPayload{
		DroneID:   w.agent.cfg.AgentID,
		SessionID: sessionID,
		Offer: domain.SessionDescription{
			Type: offer.Type.String(),
			SDP:  offer.SDP,
		},
	})
}

func (a *Agent) handleWebRTCAnswer(payload json.RawMessage) {
	var ans domain.WebRTCAnswerPayload
	if err := json.Unmarshal(payload, &ans); err != nil {
		a.logger.Warnw("malformed webrtc answer", "error", err)
		return
	}

	a.webrtc.mu.Lock()
	pc := a.webrtc.peers[ans.SessionID]
	a.webrtc.mu.Unlock()
	if pc == nil {
		a.logger.Warnw("webrtc answer for unknown session", "session_id", ans.SessionID)
		return
	}

	desc := webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  ans.Answer.SDP,
	}
	if err := pc.SetRemoteDescription(desc); err != nil {
		a.logger.Warnw("set remote description failed", "session_id", ans.SessionID, "error", err)
	}
}

func (a *Agent) handleWebRTCICECandidate(payload json.RawMessage) {
	var ice domain.WebRTCICEPayload
	if err := json.Unmarshal(payload, &ice); err != nil {
		a.logger.Warnw("malformed ice candidate", "error", err)
		return
	}

	a.webrtc.mu.Lock()
	pc := a.webrtc.peers[ice.SessionID]
	a.webrtc.mu.Unlock()
	if pc == nil {
		return
	}

	mid := ice.Candidate.SDPMid
	idx := ice.Candidate.SDPMLineIndex
	init := webrtc.ICECandidateInit{
		Candidate:     ice.Candidate.Candidate,
		SDPMid:        &mid,
		SDPMLineIndex: &idx,
	}
	if err := pc.AddICECandidate(init); err != nil {
		a.logger.Warnw("add ice candidate failed", "session_id", ice.SessionID, "error", err)
		return
	}
	a.logger.Debugw("ice candidate added", "session_id", ice.SessionID)
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
