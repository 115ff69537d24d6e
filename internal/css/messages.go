package css

import "github.com/roach88/capsule/internal/diag"

var (
	MsgBadIdentifier = &diag.MessageType{
		Code: "CSS_BAD_IDENTIFIER", Level: diag.LevelError,
		Format: "%s %q is not a valid identifier",
	}
	MsgUnknownProperty = &diag.MessageType{
		Code: "CSS_UNKNOWN_PROPERTY", Level: diag.LevelWarning,
		Format: "unknown property %q",
	}
	MsgUnknownElement = &diag.MessageType{
		Code: "CSS_UNKNOWN_ELEMENT", Level: diag.LevelWarning,
		Format: "unknown element %q",
	}
	MsgDisallowedProperty = &diag.MessageType{
		Code: "CSS_DISALLOWED_PROPERTY", Level: diag.LevelError,
		Format: "property %q is not allowed",
	}
	MsgDisallowedPseudo = &diag.MessageType{
		Code: "CSS_DISALLOWED_PSEUDO", Level: diag.LevelError,
		Format: "pseudo-selector %q is not allowed",
	}
	MsgDisallowedFunction = &diag.MessageType{
		Code: "CSS_DISALLOWED_FUNCTION", Level: diag.LevelError,
		Format: "function %s() is not allowed",
	}
	MsgDisallowedURI = &diag.MessageType{
		Code: "CSS_DISALLOWED_URI", Level: diag.LevelError,
		Format: "URI %q is not allowed",
	}
	MsgDisallowedAtRule = &diag.MessageType{
		Code: "CSS_DISALLOWED_AT_RULE", Level: diag.LevelError,
		Format: "at-rule %s is not allowed",
	}
	MsgUnresolvedImport = &diag.MessageType{
		Code: "CSS_UNRESOLVED_IMPORT", Level: diag.LevelError,
		Format: "@import was not inlined",
	}
	MsgRemoved = &diag.MessageType{
		Code: "CSS_REMOVED", Level: diag.LevelLint,
		Format: "removed %s",
	}
	MsgQuotedWords = &diag.MessageType{
		Code: "CSS_QUOTED_WORDS", Level: diag.LevelLog,
		Format: "quoted %q",
	}
)
