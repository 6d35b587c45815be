package message

import (
	"strings"

	"wdbg/packet"
	"wdbg/wire"
)

// --- ScriptsRootPath -------------------------------------------------------

// ScriptsRootPathRequestIdentifier names the "where are scripts rooted"
// request.
var ScriptsRootPathRequestIdentifier = NewIdentifier(
	wire.StringUTF8(string(NamespaceScriptCompiler)),
	wire.StringUTF8("RootPath"),
)

// ScriptsRootPathResponseIdentifier names its response.
var ScriptsRootPathResponseIdentifier = NewIdentifier(
	wire.StringUTF8(string(NamespaceScriptCompiler)),
	wire.StringUTF8("RootPathConfirm"),
)

// AssembleScriptsRootPathRequest builds the request packet. It has no body.
func AssembleScriptsRootPathRequest() *packet.Packet {
	return packet.New().
		Append(wire.StringUTF8(string(NamespaceScriptCompiler))).
		Append(wire.StringUTF8("RootPath"))
}

// DisassembleScriptsRootPathResponse parses the response body: the absolute
// path to the content's scripts root.
func DisassembleScriptsRootPathResponse(p *packet.Packet) (string, error) {
	c := newCursor(p.Payload)
	if err := c.expectStringUTF8("namespace", string(NamespaceScriptCompiler)); err != nil {
		return "", err
	}
	if err := c.expectStringUTF8("kind", "RootPathConfirm"); err != nil {
		return "", err
	}
	return c.popStringUTF16("abs_path")
}

// --- ExecuteCommand ---------------------------------------------------------

// execCommandMagic0/1 are the fixed magic numbers that follow the Remote
// namespace in the ExecuteCommand request identifier and open its response
// identifier. Their values come straight from observed traces; they carry
// no known meaning.
const (
	execCommandMagic0 = int32(0x12345678)
	execCommandMagic1 = int32(-0x7EE9FFF8) // 0x81160008 as a two's-complement int32
)

// ExecuteCommandRequestIdentifier names a console-command execution request.
var ExecuteCommandRequestIdentifier = NewIdentifier(
	wire.StringUTF8(string(NamespaceRemote)),
	wire.Int32(execCommandMagic0),
	wire.Int32(execCommandMagic1),
)

// ExecuteCommandResponseIdentifier names its response.
var ExecuteCommandResponseIdentifier = NewIdentifier(
	wire.Int32(execCommandMagic0),
	wire.Int32(execCommandMagic1),
)

const (
	execCommandFailText = "Warn: Failed to process command"
	execCommandSpamText = "Spam: Command executed without errors"
)

// ExecuteCommandResult is the outcome of running a console command.
// Failed means the game rejected or could not process the command.
// LogOutput is nil when the command produced no scripts-log lines (the
// game reports this with a fixed sentinel string rather than an empty
// body); a non-nil, possibly single-element slice means it did.
type ExecuteCommandResult struct {
	Failed    bool
	LogOutput []string
}

// AssembleExecuteCommandRequest builds the request packet for cmd.
func AssembleExecuteCommandRequest(cmd string) *packet.Packet {
	return packet.New().
		Append(wire.StringUTF8(string(NamespaceRemote))).
		Append(wire.Int32(execCommandMagic0)).
		Append(wire.Int32(execCommandMagic1)).
		Append(wire.StringUTF8(cmd))
}

// DisassembleExecuteCommandRequest parses a request body back to its
// command string, used by a mock server replaying captured traffic.
func DisassembleExecuteCommandRequest(p *packet.Packet) (string, error) {
	c := newCursor(p.Payload)
	if err := c.expectStringUTF8("namespace", string(NamespaceRemote)); err != nil {
		return "", err
	}
	if err := c.expectInt32("magic0", execCommandMagic0); err != nil {
		return "", err
	}
	if err := c.expectInt32("magic1", execCommandMagic1); err != nil {
		return "", err
	}
	return c.popStringUTF8("cmd")
}

// AssembleExecuteCommandResponse builds the response packet for result.
func AssembleExecuteCommandResponse(result ExecuteCommandResult) *packet.Packet {
	var text string
	switch {
	case result.Failed:
		text = execCommandFailText
	case result.LogOutput == nil:
		text = execCommandSpamText
	default:
		text = strings.Join(result.LogOutput, "\n")
	}

	return packet.New().
		Append(wire.Int32(execCommandMagic0)).
		Append(wire.Int32(execCommandMagic1)).
		Append(wire.StringUTF8(text))
}

// DisassembleExecuteCommandResponse parses the response body.
func DisassembleExecuteCommandResponse(p *packet.Packet) (ExecuteCommandResult, error) {
	c := newCursor(p.Payload)
	if err := c.expectInt32("magic0", execCommandMagic0); err != nil {
		return ExecuteCommandResult{}, err
	}
	if err := c.expectInt32("magic1", execCommandMagic1); err != nil {
		return ExecuteCommandResult{}, err
	}
	text, err := c.popStringUTF8("output")
	if err != nil {
		return ExecuteCommandResult{}, err
	}

	switch text {
	case execCommandFailText:
		return ExecuteCommandResult{Failed: true}, nil
	case execCommandSpamText:
		return ExecuteCommandResult{LogOutput: nil}, nil
	default:
		return ExecuteCommandResult{LogOutput: strings.Split(text, "\n")}, nil
	}
}

// --- ScriptPackages -----------------------------------------------------

// ScriptPackagesRequestIdentifier names the "list loaded mod packages"
// request.
var ScriptPackagesRequestIdentifier = NewIdentifier(
	wire.StringUTF8(string(NamespaceScripts)),
	wire.StringUTF8("pkgSync"),
)

// ScriptPackagesResponseIdentifier names its response.
var ScriptPackagesResponseIdentifier = NewIdentifier(
	wire.StringUTF8(string(NamespaceScripts)),
	wire.StringUTF8("pkgSyncListing"),
)

// ScriptPackage is one package entry in a ScriptPackages response.
type ScriptPackage struct {
	Name             string
	AbsScriptsRootPath string
}

// AssembleScriptPackagesRequest builds the request packet. It has no body.
func AssembleScriptPackagesRequest() *packet.Packet {
	return packet.New().
		Append(wire.StringUTF8(string(NamespaceScripts))).
		Append(wire.StringUTF8("pkgSync"))
}

// AssembleScriptPackagesResponse builds the response packet listing packages.
func AssembleScriptPackagesResponse(packages []ScriptPackage) *packet.Packet {
	p := packet.New().
		Append(wire.StringUTF8(string(NamespaceScripts))).
		Append(wire.StringUTF8("pkgSyncListing")).
		Append(wire.Int32(int32(len(packages))))
	for _, pkg := range packages {
		p.Append(wire.StringUTF16(pkg.Name)).
			Append(wire.StringUTF16(pkg.AbsScriptsRootPath))
	}
	return p
}

// DisassembleScriptPackagesResponse parses the response body.
func DisassembleScriptPackagesResponse(p *packet.Packet) ([]ScriptPackage, error) {
	c := newCursor(p.Payload)
	if err := c.expectStringUTF8("namespace", string(NamespaceScripts)); err != nil {
		return nil, err
	}
	if err := c.expectStringUTF8("kind", "pkgSyncListing"); err != nil {
		return nil, err
	}
	count, err := c.popInt32("package_count")
	if err != nil {
		return nil, err
	}

	packages := make([]ScriptPackage, 0, count)
	for i := int32(0); i < count; i++ {
		name, err := c.popStringUTF16("package_name")
		if err != nil {
			return nil, err
		}
		rootPath, err := c.popStringUTF16("abs_scripts_root_path")
		if err != nil {
			return nil, err
		}
		packages = append(packages, ScriptPackage{Name: name, AbsScriptsRootPath: rootPath})
	}
	return packages, nil
}

// --- Opcodes --------------------------------------------------------------

// OpcodesRequestIdentifier names the opcode-breakdown request.
var OpcodesRequestIdentifier = NewIdentifier(
	wire.StringUTF8(string(NamespaceScriptDebugger)),
	wire.StringUTF8("OpcodeBreakdownRequest"),
)

// OpcodesResponseIdentifier names its response.
var OpcodesResponseIdentifier = NewIdentifier(
	wire.StringUTF8(string(NamespaceScriptDebugger)),
	wire.StringUTF8("OpcodeBreakdownResponse"),
)

// OpcodesQuery selects the function whose compiled opcodes to break down.
// ClassName is empty for a free (non-member) function.
type OpcodesQuery struct {
	FuncName  string
	ClassName string
}

// OpcodeBreakdown is the opcodes compiled for one source line.
type OpcodeBreakdown struct {
	Line    int32
	Opcodes []string
}

// AssembleOpcodesRequest builds the request packet for q.
func AssembleOpcodesRequest(q OpcodesQuery) *packet.Packet {
	p := packet.New().
		Append(wire.StringUTF8(string(NamespaceScriptDebugger))).
		Append(wire.StringUTF8("OpcodeBreakdownRequest")).
		Append(wire.StringUTF16(q.FuncName))

	if q.ClassName != "" {
		p.Append(wire.Int8(1)).Append(wire.StringUTF16(q.ClassName))
	} else {
		p.Append(wire.Int8(0))
	}
	return p
}

// DisassembleOpcodesRequest parses a request body, used by a mock server.
func DisassembleOpcodesRequest(p *packet.Packet) (OpcodesQuery, error) {
	c := newCursor(p.Payload)
	if err := c.expectStringUTF8("namespace", string(NamespaceScriptDebugger)); err != nil {
		return OpcodesQuery{}, err
	}
	if err := c.expectStringUTF8("kind", "OpcodeBreakdownRequest"); err != nil {
		return OpcodesQuery{}, err
	}
	funcName, err := c.popStringUTF16("func_name")
	if err != nil {
		return OpcodesQuery{}, err
	}
	hasClass, err := c.popInt8("has_class_name")
	if err != nil {
		return OpcodesQuery{}, err
	}
	var className string
	if hasClass == 1 {
		className, err = c.popStringUTF16("class_name")
		if err != nil {
			return OpcodesQuery{}, err
		}
	}
	return OpcodesQuery{FuncName: funcName, ClassName: className}, nil
}

// AssembleOpcodesResponse builds the response packet. The leading int32(1)
// and empty UTF-16 string before the breakdown count are carried verbatim
// from observed traces; neither field's purpose is documented anywhere the
// game exposes.
func AssembleOpcodesResponse(breakdowns []OpcodeBreakdown) *packet.Packet {
	p := packet.New().
		Append(wire.StringUTF8(string(NamespaceScriptDebugger))).
		Append(wire.StringUTF8("OpcodeBreakdownResponse")).
		Append(wire.Int32(1)).
		Append(wire.StringUTF16("")).
		Append(wire.Int32(int32(len(breakdowns))))
	for _, b := range breakdowns {
		p.Append(wire.Int32(b.Line)).Append(wire.StringUTF16(strings.Join(b.Opcodes, "\n")))
	}
	return p
}

// DisassembleOpcodesResponse parses the response body.
func DisassembleOpcodesResponse(p *packet.Packet) ([]OpcodeBreakdown, error) {
	c := newCursor(p.Payload)
	if err := c.expectStringUTF8("namespace", string(NamespaceScriptDebugger)); err != nil {
		return nil, err
	}
	if err := c.expectStringUTF8("kind", "OpcodeBreakdownResponse"); err != nil {
		return nil, err
	}
	if _, err := c.popInt32("unknown0"); err != nil {
		return nil, err
	}
	if _, err := c.popStringUTF16("unknown1"); err != nil {
		return nil, err
	}
	count, err := c.popInt32("breakdown_count")
	if err != nil {
		return nil, err
	}

	breakdowns := make([]OpcodeBreakdown, 0, count)
	for i := int32(0); i < count; i++ {
		line, err := c.popInt32("line")
		if err != nil {
			return nil, err
		}
		opcodesLine, err := c.popStringUTF16("opcodes")
		if err != nil {
			return nil, err
		}
		breakdowns = append(breakdowns, OpcodeBreakdown{Line: line, Opcodes: strings.Split(opcodesLine, "\n")})
	}
	return breakdowns, nil
}

// --- ConfigVars -------------------------------------------------------------

// configVarsMagic is the fixed magic number in the ConfigVars identifiers.
const configVarsMagic = int32(-0x33FF3400) // 0xCC00CC00 as a two's-complement int32

// ConfigVarsRequestIdentifier names the config-variable listing request.
var ConfigVarsRequestIdentifier = NewIdentifier(
	wire.StringUTF8(string(NamespaceConfig)),
	wire.Int32(configVarsMagic),
	wire.StringUTF8("list"),
)

// ConfigVarsResponseIdentifier names its response.
var ConfigVarsResponseIdentifier = NewIdentifier(
	wire.Int32(configVarsMagic),
	wire.StringUTF8("vars"),
)

// ConfigVarsQuery filters the variables returned by a ConfigVars request.
// An empty filter matches everything.
type ConfigVarsQuery struct {
	SectionFilter string
	NameFilter    string
}

// ConfigVarDataType identifies the scalar type of a config variable's
// value, as reported by the game.
type ConfigVarDataType int8

const (
	ConfigVarBool   ConfigVarDataType = 1
	ConfigVarInt    ConfigVarDataType = 2
	ConfigVarFloat  ConfigVarDataType = 3
	ConfigVarString ConfigVarDataType = 4
)

// ConfigVar is one entry in a ConfigVars response.
type ConfigVar struct {
	Section   string
	Name      string
	Value     string
	DataType  ConfigVarDataType
	unknown0  int8
}

// AssembleConfigVarsRequest builds the request packet for q.
func AssembleConfigVarsRequest(q ConfigVarsQuery) *packet.Packet {
	return packet.New().
		Append(wire.StringUTF8(string(NamespaceConfig))).
		Append(wire.Int32(configVarsMagic)).
		Append(wire.StringUTF8("list")).
		Append(wire.StringUTF8(q.SectionFilter)).
		Append(wire.StringUTF8(q.NameFilter))
}

// DisassembleConfigVarsRequest parses a request body, used by a mock server.
func DisassembleConfigVarsRequest(p *packet.Packet) (ConfigVarsQuery, error) {
	c := newCursor(p.Payload)
	if err := c.expectStringUTF8("namespace", string(NamespaceConfig)); err != nil {
		return ConfigVarsQuery{}, err
	}
	if err := c.expectInt32("magic", configVarsMagic); err != nil {
		return ConfigVarsQuery{}, err
	}
	if err := c.expectStringUTF8("kind", "list"); err != nil {
		return ConfigVarsQuery{}, err
	}
	section, err := c.popStringUTF8("section_filter")
	if err != nil {
		return ConfigVarsQuery{}, err
	}
	name, err := c.popStringUTF8("name_filter")
	if err != nil {
		return ConfigVarsQuery{}, err
	}
	return ConfigVarsQuery{SectionFilter: section, NameFilter: name}, nil
}

// AssembleConfigVarsResponse builds the response packet listing vars. The
// list is terminated by a trailing int8(0) sentinel data-type value rather
// than a count prefix.
func AssembleConfigVarsResponse(vars []ConfigVar) *packet.Packet {
	p := packet.New().
		Append(wire.Int32(configVarsMagic)).
		Append(wire.StringUTF8("vars"))
	for _, v := range vars {
		p.Append(wire.Int8(int8(v.DataType))).
			Append(wire.Int8(v.unknown0)).
			Append(wire.StringUTF8(v.Name)).
			Append(wire.StringUTF8(v.Section)).
			Append(wire.StringUTF8(v.Value))
	}
	return p.Append(wire.Int8(0))
}

// DisassembleConfigVarsResponse parses the response body.
func DisassembleConfigVarsResponse(p *packet.Packet) ([]ConfigVar, error) {
	c := newCursor(p.Payload)
	if err := c.expectInt32("magic", configVarsMagic); err != nil {
		return nil, err
	}
	if err := c.expectStringUTF8("kind", "vars"); err != nil {
		return nil, err
	}

	var vars []ConfigVar
	for {
		dataType, err := c.popInt8("data_type")
		if err != nil {
			return nil, err
		}
		if dataType == 0 {
			break
		}

		unknown0, err := c.popInt8("unknown0")
		if err != nil {
			return nil, err
		}
		name, err := c.popStringUTF8("name")
		if err != nil {
			return nil, err
		}
		section, err := c.popStringUTF8("section")
		if err != nil {
			return nil, err
		}
		value, err := c.popStringUTF8("value")
		if err != nil {
			return nil, err
		}

		vars = append(vars, ConfigVar{
			Section:  section,
			Name:     name,
			Value:    value,
			DataType: ConfigVarDataType(dataType),
			unknown0: unknown0,
		})
	}
	return vars, nil
}
