package stages

import "github.com/roach88/capsule/internal/diag"

// Parse failures. The failing job is dropped.
var (
	MsgCSSParse = &diag.MessageType{
		Code: "CSS_PARSE_ERROR", Level: diag.LevelError,
		Format: "%s",
	}
	MsgJSParse = &diag.MessageType{
		Code: "JS_PARSE_ERROR", Level: diag.LevelError,
		Format: "%s",
	}
	MsgJSUnsupported = &diag.MessageType{
		Code: "JS_UNSUPPORTED", Level: diag.LevelError,
		Format: "%s",
	}
	MsgHTMLParse = &diag.MessageType{
		Code: "HTML_PARSE_ERROR", Level: diag.LevelError,
		Format: "%s",
	}
)

var (
	MsgMalformedEnvelope = &diag.MessageType{
		Code: "PIPELINE_MALFORMED_ENVELOPE", Level: diag.LevelFatal,
		Format: "%s",
	}
	MsgMultipleHTML = &diag.MessageType{
		Code: "PIPELINE_MULTIPLE_HTML", Level: diag.LevelError,
		Format: "bundle has %d HTML documents; at most one is supported",
	}
	MsgUnabsorbedHTML = &diag.MessageType{
		Code: "PIPELINE_UNABSORBED_HTML", Level: diag.LevelFatal,
		Format: "HTML document %s was never compiled",
	}
	MsgBadNamespace = &diag.MessageType{
		Code: "PIPELINE_BAD_NAMESPACE", Level: diag.LevelError,
		Format: "namespace %q is not a valid identifier",
	}
)

var (
	MsgCacheFailed = &diag.MessageType{
		Code: "CACHE_UNAVAILABLE", Level: diag.LevelWarning,
		Format: "cache %s failed: %v",
	}
	MsgCacheHit = &diag.MessageType{
		Code: "CACHE_HIT", Level: diag.LevelLog,
		Format: "reused %d cached jobs",
	}
)

var (
	MsgLoadFailed = &diag.MessageType{
		Code: "URI_LOAD_FAILED", Level: diag.LevelWarning,
		Format: "could not load %s: %v",
	}
	MsgImportDepth = &diag.MessageType{
		Code: "CSS_IMPORT_DEPTH", Level: diag.LevelWarning,
		Format: "@import of %s is nested deeper than %d",
	}
	MsgImportCycle = &diag.MessageType{
		Code: "CSS_IMPORT_CYCLE", Level: diag.LevelWarning,
		Format: "@import cycle through %s",
	}
	MsgImportSkipped = &diag.MessageType{
		Code: "CSS_IMPORT_SKIPPED", Level: diag.LevelWarning,
		Format: "%s dropped from media-restricted @import of %s",
	}
)

var (
	MsgUnknownElement = &diag.MessageType{
		Code: "HTML_UNKNOWN_ELEMENT", Level: diag.LevelWarning,
		Format: "element <%s> removed, content kept",
	}
	MsgUnknownAttribute = &diag.MessageType{
		Code: "HTML_UNKNOWN_ATTRIBUTE", Level: diag.LevelWarning,
		Format: "attribute %s removed from <%s>",
	}
	MsgDisallowedURI = &diag.MessageType{
		Code: "HTML_DISALLOWED_URI", Level: diag.LevelError,
		Format: "URI %q in %s is not allowed",
	}
	MsgScriptType = &diag.MessageType{
		Code: "HTML_SCRIPT_TYPE", Level: diag.LevelWarning,
		Format: "script of type %q removed",
	}
	MsgMissingReference = &diag.MessageType{
		Code: "HTML_MISSING_REFERENCE", Level: diag.LevelWarning,
		Format: "<%s> without %s removed",
	}
)
