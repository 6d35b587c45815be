package message

import (
	"fmt"

	"wdbg/packet"
	"wdbg/wire"
)

// ListenIdentifier names the subscribe-to-namespace notification sent to
// the game to start receiving pushes for a namespace.
var ListenIdentifier = NewIdentifier(wire.StringUTF8("BIND"))

// AssembleListen builds the packet that subscribes to namespace ns.
func AssembleListen(ns Namespace) *packet.Packet {
	return packet.New().
		Append(wire.StringUTF8("BIND")).
		Append(wire.StringUTF8(string(ns)))
}

// ReloadScriptsIdentifier names the fire-and-forget "recompile scripts now"
// notification.
var ReloadScriptsIdentifier = NewIdentifier(
	wire.StringUTF8(string(NamespaceScripts)),
	wire.StringUTF8("reload"),
)

// AssembleReloadScripts builds the reload-scripts notification. It has no
// body.
func AssembleReloadScripts() *packet.Packet {
	return packet.New().
		Append(wire.StringUTF8(string(NamespaceScripts))).
		Append(wire.StringUTF8("reload"))
}

// ReloadProgressKind distinguishes the variants of a ScriptsReloadProgress
// push.
type ReloadProgressKind int

const (
	ReloadProgressStarted ReloadProgressKind = iota
	ReloadProgressLog
	ReloadProgressWarn
	ReloadProgressError
	ReloadProgressFinished
)

// ReloadProgress is one push notification in a script-recompilation run.
// Only the fields relevant to Kind are populated.
type ReloadProgress struct {
	Kind       ReloadProgressKind
	Message    string
	Line       uint32
	ScriptPath string
	Success    bool
}

// ScriptsReloadProgressIdentifier names the push notification a client
// receives while scripts are being recompiled.
var ScriptsReloadProgressIdentifier = NewIdentifier(
	wire.StringUTF8(string(NamespaceScriptCompiler)),
)

// DisassembleReloadProgress parses a ScriptsReloadProgress packet. It
// checks the identifier prefix (ScriptCompiler namespace), then consumes
// the variant tag and its fields.
func DisassembleReloadProgress(p *packet.Packet) (ReloadProgress, error) {
	c := newCursor(p.Payload)
	if err := c.expectStringUTF8("namespace", string(NamespaceScriptCompiler)); err != nil {
		return ReloadProgress{}, err
	}

	kind, err := c.popStringUTF8("kind")
	if err != nil {
		return ReloadProgress{}, err
	}

	switch kind {
	case "started":
		if _, err := c.popInt8("started::unknown0"); err != nil {
			return ReloadProgress{}, err
		}
		if _, err := c.popInt8("started::unknown1"); err != nil {
			return ReloadProgress{}, err
		}
		return ReloadProgress{Kind: ReloadProgressStarted}, nil
	case "log":
		msg, err := c.popStringUTF16("log::message")
		if err != nil {
			return ReloadProgress{}, err
		}
		return ReloadProgress{Kind: ReloadProgressLog, Message: msg}, nil
	case "warn", "error":
		line, err := c.popUInt32(kind + "::line")
		if err != nil {
			return ReloadProgress{}, err
		}
		path, err := c.popStringUTF16(kind + "::local_script_path")
		if err != nil {
			return ReloadProgress{}, err
		}
		msg, err := c.popStringUTF16(kind + "::message")
		if err != nil {
			return ReloadProgress{}, err
		}
		k := ReloadProgressWarn
		if kind == "error" {
			k = ReloadProgressError
		}
		return ReloadProgress{Kind: k, Line: line, ScriptPath: path, Message: msg}, nil
	case "finished":
		// On the wire 0 means success and any other value means failure:
		// the inversion is the game's own convention, not ours.
		code, err := c.popInt8("finished::return_code")
		if err != nil {
			return ReloadProgress{}, err
		}
		return ReloadProgress{Kind: ReloadProgressFinished, Success: code == 0}, nil
	default:
		return ReloadProgress{}, fmt.Errorf("message: unknown reload progress kind %q", kind)
	}
}
