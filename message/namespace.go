package message

// Namespace is one of the game's debug-protocol namespaces, carried on the
// wire as a UTF-8 string.
type Namespace string

// Known namespaces, lifted from traces of the game's own dispatcher.
const (
	NamespaceScriptDebugger  Namespace = "ScriptDebugger"
	NamespaceScriptProfiler  Namespace = "ScriptProfiler"
	NamespaceScriptCompiler  Namespace = "ScriptCompiler"
	NamespaceScripts         Namespace = "scripts"
	NamespaceRemote          Namespace = "Remote"
	NamespaceUtility         Namespace = "Utility"
	NamespaceConfig          Namespace = "Config"
)
