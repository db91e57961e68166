package input

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Message is the JSON shape clients send over the WebSocket transport.
//
//	{"type":"keyboard","keys":[{"code":"KeyA","direction":1}]}
//	{"type":"mouse","moves":[{"x":4,"y":-2}],"buttons":[{"button":"left","direction":1}]}
type Message struct {
	Type    string          `json:"type"`
	Keys    []keyMessage    `json:"keys,omitempty"`
	Moves   []moveMessage   `json:"moves,omitempty"`
	Buttons []buttonMessage `json:"buttons,omitempty"`
}

type keyMessage struct {
	Code      string    `json:"code"`
	Direction Direction `json:"direction"`
}

type moveMessage struct {
	X     int32 `json:"x"`
	Y     int32 `json:"y"`
	Wheel int32 `json:"wheel"`
}

type buttonMessage struct {
	Button    string    `json:"button"`
	Direction Direction `json:"direction"`
}

// DecodeMessage parses a client JSON message into a batch. Unknown key or
// button names fail the whole message with ErrUnknownKey.
func DecodeMessage(data []byte) (Event, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decode input message: %w", err)
	}
	switch msg.Type {
	case "keyboard":
		batch := KeyboardBatch{Keys: make([]KeyEvent, 0, len(msg.Keys))}
		for _, k := range msg.Keys {
			ev, err := NewKeyEvent(k.Code, k.Direction)
			if err != nil {
				return nil, err
			}
			batch.Keys = append(batch.Keys, ev)
		}
		return batch, nil
	case "mouse":
		batch := MouseBatch{Moves: make([]MouseMove, 0, len(msg.Moves))}
		for _, m := range msg.Moves {
			batch.Moves = append(batch.Moves, MouseMove(m))
		}
		for _, b := range msg.Buttons {
			if !b.Direction.valid() {
				return nil, fmt.Errorf("invalid button direction %d", b.Direction)
			}
			code, err := ButtonCode(b.Button)
			if err != nil {
				return nil, err
			}
			batch.Buttons = append(batch.Buttons, MouseButton{Code: code, Direction: b.Direction})
		}
		return batch, nil
	case "":
		return nil, errors.New("input message missing type")
	default:
		return nil, fmt.Errorf("unsupported input message type %q", msg.Type)
	}
}
