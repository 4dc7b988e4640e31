// Package control implements the control-plane wire protocol, server,
// and client described in spec.md §4.5/§4.6/§6: a line-delimited JSON
// tagged-union command sent over a local Unix stream socket, answered
// by a single JSON response.
package control

import (
	"encoding/json"
	"fmt"
)

// Command is one of RestartCommand, ConnectCommand, StopCommand, or
// PingCommand -- the tagged union in spec.md §6's grammar.
type Command interface {
	commandTag() string
}

// RestartCommand asks the daemon to restart a process, identified by
// an explicit ProcessName (nil means "the app's default process") and
// the Directory used to locate the owning app.
type RestartCommand struct {
	ProcessName *string `json:"process_name"`
	Directory   string  `json:"directory"`
}

// ConnectCommand asks for ConnectionDetails so the client can attach
// its terminal multiplexer to the named process's session.
type ConnectCommand struct {
	ProcessName *string `json:"process_name"`
	Directory   string  `json:"directory"`
}

// StopCommand asks the daemon to stop and deregister an app, found
// either by explicit AppName or by Directory prefix.
type StopCommand struct {
	AppName   *string `json:"app_name"`
	Directory string  `json:"directory"`
}

// PingCommand is the liveness check; it carries no fields and is
// encoded as the bare JSON string "Ping", not an object.
type PingCommand struct{}

func (RestartCommand) commandTag() string { return "Restart" }
func (ConnectCommand) commandTag() string { return "Connect" }
func (StopCommand) commandTag() string    { return "Stop" }
func (PingCommand) commandTag() string    { return "Ping" }

// EncodeCommand serializes c per spec.md §6's grammar: unit variants
// (PingCommand) as a bare JSON string, struct variants as a
// single-key object wrapping the variant's fields.
func EncodeCommand(c Command) ([]byte, error) {
	switch v := c.(type) {
	case PingCommand:
		return json.Marshal(v.commandTag())
	case RestartCommand:
		return json.Marshal(map[string]RestartCommand{v.commandTag(): v})
	case ConnectCommand:
		return json.Marshal(map[string]ConnectCommand{v.commandTag(): v})
	case StopCommand:
		return json.Marshal(map[string]StopCommand{v.commandTag(): v})
	default:
		return nil, fmt.Errorf("control: unknown command type %T", c)
	}
}

// DecodeCommand parses a line of JSON into a concrete Command.
func DecodeCommand(data []byte) (Command, error) {
	var tag string
	if err := json.Unmarshal(data, &tag); err == nil {
		if tag == "Ping" {
			return PingCommand{}, nil
		}
		return nil, fmt.Errorf("control: unknown command %q", tag)
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("control: invalid command JSON: %w", err)
	}
	if len(envelope) != 1 {
		return nil, fmt.Errorf("control: command envelope must have exactly one key, got %d", len(envelope))
	}

	for tag, raw := range envelope {
		switch tag {
		case "Restart":
			var c RestartCommand
			if err := json.Unmarshal(raw, &c); err != nil {
				return nil, fmt.Errorf("control: decode Restart: %w", err)
			}
			return c, nil
		case "Connect":
			var c ConnectCommand
			if err := json.Unmarshal(raw, &c); err != nil {
				return nil, fmt.Errorf("control: decode Connect: %w", err)
			}
			return c, nil
		case "Stop":
			var c StopCommand
			if err := json.Unmarshal(raw, &c); err != nil {
				return nil, fmt.Errorf("control: decode Stop: %w", err)
			}
			return c, nil
		default:
			return nil, fmt.Errorf("control: unknown command tag %q", tag)
		}
	}
	panic("unreachable")
}

// Response is one of NotFoundResponse, ConnectionDetailsResponse, or
// StatusResponse -- the tagged union in spec.md §6's grammar. The raw
// "pong" bytes answering PingCommand are not part of this union; they
// are written directly by Server/read directly by Client.
type Response interface {
	responseTag() string
}

// NotFoundResponse reports a resolution miss (no such app/process).
type NotFoundResponse struct {
	Message string
}

// ConnectionDetailsResponse carries the app and tmux identifiers a
// client needs to attach to a process's session.
type ConnectionDetailsResponse struct {
	AppName     string `json:"app_name"`
	TmuxSocket  string `json:"tmux_socket"`
	TmuxSession string `json:"tmux_session"`
}

// StatusResponse carries a human-readable confirmation message.
type StatusResponse struct {
	Message string
}

func (NotFoundResponse) responseTag() string          { return "NotFound" }
func (ConnectionDetailsResponse) responseTag() string { return "ConnectionDetails" }
func (StatusResponse) responseTag() string            { return "Status" }

// EncodeResponse serializes r as a single-key object, per spec.md §6.
// NotFound and Status wrap a bare string; ConnectionDetails wraps an object.
func EncodeResponse(r Response) ([]byte, error) {
	switch v := r.(type) {
	case NotFoundResponse:
		return json.Marshal(map[string]string{v.responseTag(): v.Message})
	case StatusResponse:
		return json.Marshal(map[string]string{v.responseTag(): v.Message})
	case ConnectionDetailsResponse:
		return json.Marshal(map[string]ConnectionDetailsResponse{v.responseTag(): v})
	default:
		return nil, fmt.Errorf("control: unknown response type %T", r)
	}
}

// DecodeResponse parses a server reply into a concrete Response.
func DecodeResponse(data []byte) (Response, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("control: invalid response JSON: %w", err)
	}
	if len(envelope) != 1 {
		return nil, fmt.Errorf("control: response envelope must have exactly one key, got %d", len(envelope))
	}

	for tag, raw := range envelope {
		switch tag {
		case "NotFound":
			var msg string
			if err := json.Unmarshal(raw, &msg); err != nil {
				return nil, fmt.Errorf("control: decode NotFound: %w", err)
			}
			return NotFoundResponse{Message: msg}, nil
		case "Status":
			var msg string
			if err := json.Unmarshal(raw, &msg); err != nil {
				return nil, fmt.Errorf("control: decode Status: %w", err)
			}
			return StatusResponse{Message: msg}, nil
		case "ConnectionDetails":
			var cd ConnectionDetailsResponse
			if err := json.Unmarshal(raw, &cd); err != nil {
				return nil, fmt.Errorf("control: decode ConnectionDetails: %w", err)
			}
			return cd, nil
		default:
			return nil, fmt.Errorf("control: unknown response tag %q", tag)
		}
	}
	panic("unreachable")
}
