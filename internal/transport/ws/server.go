package ws

import (
	"encoding/json"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"neurogel.ai/internal/mind"
	"neurogel.ai/internal/protocol"
	"neurogel.ai/internal/sim/gel"
)

// Server streams per-step substrate frames to viz clients and accepts
// POKE messages that stimulate a region. It consumes the core only
// through the coordinator's boundary calls.
type Server struct {
	gel      *gel.Gel
	concepts *mind.Concepts
	mood     *mind.Mood
	log      *log.Logger

	stepRateHz int

	upgrader websocket.Upgrader
	nextID   atomic.Uint64

	mu   sync.Mutex
	subs map[uint64]*subscriber
}

type subscriber struct {
	out chan []byte

	mu   sync.Mutex
	view protocol.SubscribeMsg
}

func NewServer(g *gel.Gel, concepts *mind.Concepts, mood *mind.Mood, stepRateHz int, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	s := &Server{
		gel:        g,
		concepts:   concepts,
		mood:       mood,
		log:        logger,
		stepRateHz: stepRateHz,
		subs:       map[uint64]*subscriber{},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
	// Frames ride the step barrier: one broadcast per completed step.
	g.OnStep(s.broadcast)
	return s
}

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		b, _ := s.gel.Bounds()
		resp := protocol.BootstrapResponse{
			ProtocolVersion: protocol.Version,
			Step:            s.gel.StepCount(),
			Live:            s.gel.LiveCount(),
			Bounds:          boundsState(b),
			StepRateHz:      s.stepRateHz,
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var sub protocol.SubscribeMsg
		if err := json.Unmarshal(msg, &sub); err != nil || sub.Type != protocol.TypeSubscribe || sub.ProtocolVersion != protocol.Version {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected SUBSCRIBE"),
				time.Now().Add(time.Second))
			return
		}
		normalizeSubscribe(&sub)

		id := s.nextID.Add(1)
		sc := &subscriber{out: make(chan []byte, 16), view: sub}
		s.mu.Lock()
		s.subs[id] = sc
		s.mu.Unlock()
		defer func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		}()

		done := make(chan struct{})
		writeErr := make(chan error, 1)
		go func() {
			for {
				select {
				case <-done:
					writeErr <- nil
					return
				case b, ok := <-sc.out:
					if !ok {
						writeErr <- nil
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						writeErr <- err
						return
					}
				}
			}
		}()

		// Reader loop: SUBSCRIBE updates and POKEs.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil {
				continue
			}
			switch base.Type {
			case protocol.TypeSubscribe:
				var upd protocol.SubscribeMsg
				if err := json.Unmarshal(msg, &upd); err != nil || upd.ProtocolVersion != protocol.Version {
					continue
				}
				normalizeSubscribe(&upd)
				sc.mu.Lock()
				sc.view = upd
				sc.mu.Unlock()
			case protocol.TypePoke:
				var poke protocol.PokeMsg
				if err := json.Unmarshal(msg, &poke); err != nil || poke.ProtocolVersion != protocol.Version {
					s.sendError(sc, protocol.ErrProtoBadRequest, "bad poke")
					continue
				}
				if poke.Radius < 0 || poke.Radius > 32 {
					s.sendError(sc, protocol.ErrProtoBadRequest, "poke radius out of range")
					continue
				}
				if err := s.gel.StimulateRegion(gel.Coord{X: poke.X, Y: poke.Y}, poke.Radius, poke.Amount, poke.Valence); err != nil {
					s.sendError(sc, protocol.ErrNotBooted, err.Error())
				}
			}
		}

		close(done)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"),
			time.Now().Add(time.Second))
		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func (s *Server) sendError(sc *subscriber, code, detail string) {
	b, _ := json.Marshal(protocol.ErrorMsg{
		Type:            protocol.TypeError,
		ProtocolVersion: protocol.Version,
		Code:            code,
		Detail:          detail,
	})
	select {
	case sc.out <- b:
	default:
	}
}

// broadcast composes one frame per subscriber viewport. Slow clients drop
// frames rather than stalling the step loop.
func (s *Server) broadcast(step uint64, stats gel.StepStats) {
	s.mu.Lock()
	subs := make([]*subscriber, 0, len(s.subs))
	for _, sc := range s.subs {
		subs = append(subs, sc)
	}
	s.mu.Unlock()
	if len(subs) == 0 {
		return
	}

	bounds, _ := s.gel.Bounds()
	var moodState *protocol.MoodState
	var hint string
	var hotTags []string
	if s.mood != nil {
		m := s.mood.State()
		moodState = &protocol.MoodState{Energy: m.Energy, Tone: m.Tone}
		if s.concepts != nil {
			d := mind.Hint(m, s.concepts.ChargeAll())
			hint = d.Label
			hotTags = d.Concepts
		}
	}

	charges := s.gel.Charges()
	for _, sc := range subs {
		sc.mu.Lock()
		view := sc.view
		sc.mu.Unlock()

		frame := protocol.FrameMsg{
			Type:            protocol.TypeFrame,
			ProtocolVersion: protocol.Version,
			Step:            step,
			Live:            stats.Live,
			Bounds:          boundsState(bounds),
			Mood:            moodState,
			Hint:            hint,
			HotTags:         hotTags,
		}
		for coord := range charges {
			if !inView(view, coord) {
				continue
			}
			snap, ok := s.gel.GetState(coord)
			if !ok {
				continue
			}
			crystal := 0
			for _, e := range snap.Neighbors {
				if e.Crystallized {
					crystal++
				}
			}
			frame.Cells = append(frame.Cells, protocol.CellState{
				X:            coord.X,
				Y:            coord.Y,
				Charge:       snap.Charge,
				Valence:      snap.Valence,
				Kind:         string(snap.Kind),
				CrystalEdges: crystal,
			})
			if len(frame.Cells) >= view.MaxCells {
				break
			}
		}
		b, err := json.Marshal(frame)
		if err != nil {
			continue
		}
		select {
		case sc.out <- b:
		default:
			// Client is behind; skip this frame.
		}
	}
}

func inView(v protocol.SubscribeMsg, c gel.Coord) bool {
	if v.MinX == 0 && v.MaxX == 0 && v.MinY == 0 && v.MaxY == 0 {
		return true
	}
	return c.X >= v.MinX && c.X <= v.MaxX && c.Y >= v.MinY && c.Y <= v.MaxY
}

func normalizeSubscribe(sub *protocol.SubscribeMsg) {
	if sub.MaxCells <= 0 {
		sub.MaxCells = 4096
	}
	if sub.MaxCells > 65536 {
		sub.MaxCells = 65536
	}
}

func boundsState(b gel.Bounds) protocol.BoundsState {
	return protocol.BoundsState{MinX: b.MinX, MinY: b.MinY, MaxX: b.MaxX, MaxY: b.MaxY}
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
