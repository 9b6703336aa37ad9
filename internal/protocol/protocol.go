package protocol

import "encoding/json"

// Version is the viz/observer wire protocol version.
const Version = "0.2"

// Message types.
const (
	TypeSubscribe = "SUBSCRIBE"
	TypeFrame     = "FRAME"
	TypePoke      = "POKE"
	TypeError     = "ERROR"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}

// Client -> Server. First message on the viz WS connection; can be re-sent
// to move the viewport.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`

	// Viewport, inclusive. A zero box means "everything within bounds".
	MinX int `json:"min_x"`
	MinY int `json:"min_y"`
	MaxX int `json:"max_x"`
	MaxY int `json:"max_y"`

	MaxCells int `json:"max_cells"`
}

// Client -> Server. Stimulates a disc of the substrate.
type PokeMsg struct {
	Type            string  `json:"type"`
	ProtocolVersion string  `json:"protocol_version"`
	X               int     `json:"x"`
	Y               int     `json:"y"`
	Radius          int     `json:"radius"`
	Amount          float64 `json:"amount"`
	Valence         float64 `json:"valence"`
}

// Server -> Client. Sent every step.
type FrameMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Step            uint64 `json:"step"`

	Live    int         `json:"live"`
	Bounds  BoundsState `json:"bounds"`
	Cells   []CellState `json:"cells"`
	Mood    *MoodState  `json:"mood,omitempty"`
	Hint    string      `json:"hint,omitempty"`
	HotTags []string    `json:"hot_tags,omitempty"`
}

type BoundsState struct {
	MinX int `json:"min_x"`
	MinY int `json:"min_y"`
	MaxX int `json:"max_x"`
	MaxY int `json:"max_y"`
}

type CellState struct {
	X            int     `json:"x"`
	Y            int     `json:"y"`
	Charge       float64 `json:"charge"`
	Valence      float64 `json:"valence"`
	Kind         string  `json:"kind"`
	CrystalEdges int     `json:"crystal_edges,omitempty"`
}

type MoodState struct {
	Energy float64 `json:"energy"`
	Tone   float64 `json:"tone"`
}

// HTTP response for GET /v1/viz/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string      `json:"protocol_version"`
	Step            uint64      `json:"step"`
	Live            int         `json:"live"`
	Bounds          BoundsState `json:"bounds"`
	StepRateHz      int         `json:"step_rate_hz"`
}

// ErrorMsg reports a rejected client message with a code from errors.go.
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code"`
	Detail          string `json:"detail,omitempty"`
}
