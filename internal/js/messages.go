package js

import "github.com/roach88/capsule/internal/diag"

var (
	MsgReservedName = &diag.MessageType{
		Code: "JS_RESERVED_NAME", Level: diag.LevelFatal,
		Format: "%q is a reserved name",
	}
	MsgProtectedMember = &diag.MessageType{
		Code: "JS_PROTECTED_MEMBER", Level: diag.LevelFatal,
		Format: "member %q can only be used on this",
	}
	MsgPrototypeRead = &diag.MessageType{
		Code: "JS_PROTOTYPE_READ", Level: diag.LevelFatal,
		Format: ".prototype may only be assigned",
	}
	MsgWith = &diag.MessageType{
		Code: "JS_WITH", Level: diag.LevelError,
		Format: "with statements are not allowed",
	}
	MsgForInTarget = &diag.MessageType{
		Code: "JS_FOR_IN_TARGET", Level: diag.LevelError,
		Format: "for-in target must be a variable",
	}
)
