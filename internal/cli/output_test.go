package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/capsule/internal/diag"
	"github.com/roach88/capsule/internal/tree"
)

// ============================================================================
// Responses
// ============================================================================

func TestOutputFormatter_Responses(t *testing.T) {
	result := ClearResult{Path: "/tmp/capsule.db", Removed: 3}

	tests := []struct {
		name    string
		format  string
		verbose bool
		write   func(f *OutputFormatter) error
		want    []string
	}{
		{
			name:   "json success",
			format: "json",
			write:  func(f *OutputFormatter) error { return f.Success(result) },
			want:   []string{`"status":"ok"`, `"removed":3`, `"path":"/tmp/capsule.db"`},
		},
		{
			name:   "json error with details",
			format: "json",
			write: func(f *OutputFormatter) error {
				return f.Error(ErrCodeCache, "cache not found", map[string]string{"path": "/tmp/x.db"})
			},
			want: []string{`"status":"error"`, `"code":"E006"`, `"message":"cache not found"`, `"details":{"path":"/tmp/x.db"}`},
		},
		{
			name:   "text success",
			format: "text",
			write:  func(f *OutputFormatter) error { return f.Success("capsule dev") },
			want:   []string{"capsule dev\n"},
		},
		{
			name:   "text error hides details",
			format: "text",
			write: func(f *OutputFormatter) error {
				return f.Error(ErrCodeReadFailed, "notes.txt: unknown content type", "ext .txt")
			},
			want: []string{"Error [E004]: notes.txt: unknown content type\n"},
		},
		{
			name:    "verbose text error shows details",
			format:  "text",
			verbose: true,
			write: func(f *OutputFormatter) error {
				return f.Error(ErrCodeReadFailed, "notes.txt: unknown content type", "ext .txt")
			},
			want: []string{"Error [E004]", "Details: ext .txt"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			f := &OutputFormatter{Format: tt.format, Writer: buf, Verbose: tt.verbose}

			require.NoError(t, tt.write(f))
			for _, w := range tt.want {
				assert.Contains(t, buf.String(), w)
			}
			if tt.format == "json" {
				var resp CLIResponse
				require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
			}
			if tt.format == "text" && !tt.verbose {
				assert.NotContains(t, buf.String(), "Details:")
			}
		})
	}
}

func TestOutputFormatter_VerboseLogUsesErrWriter(t *testing.T) {
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	f := &OutputFormatter{Format: "json", Writer: out, ErrWriter: errOut}

	f.VerboseLog("Read %d input file(s)", 2)
	assert.Empty(t, errOut.String())

	f.Verbose = true
	f.VerboseLog("Read %d input file(s)", 2)
	assert.Equal(t, "Read 2 input file(s)\n", errOut.String())
	assert.Empty(t, out.String(), "verbose lines never corrupt JSON output")
}

// ============================================================================
// Diagnostics
// ============================================================================

var msgUnsafe = &diag.MessageType{Code: "TEST_UNSAFE", Level: diag.LevelError, Format: "%s is not allowed"}

var msgNote = &diag.MessageType{Code: "TEST_NOTE", Level: diag.LevelLog, Format: "note"}

func testMessages() []diag.Message {
	return []diag.Message{
		diag.New(msgNote, tree.Span{}),
		diag.New(msgUnsafe, tree.Span{File: "a.css", StartLine: 3, EndLine: 3}, "content"),
	}
}

func TestOutputFormatter_TextDiagnostics(t *testing.T) {
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: out, ErrWriter: errOut}

	formatter.Diagnostics(testMessages())

	assert.Empty(t, out.String())
	assert.Equal(t, "a.css:3: ERROR TEST_UNSAFE: content is not allowed\n", errOut.String())
}

func TestOutputFormatter_VerboseDiagnosticsIncludeLogs(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf, Verbose: true}

	formatter.Diagnostics(testMessages())

	assert.Contains(t, buf.String(), "LOG TEST_NOTE: note")
	assert.Contains(t, buf.String(), "TEST_UNSAFE")
}

func TestOutputFormatter_JSONDiagnosticsStayInResponse(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	formatter.Diagnostics(testMessages())
	assert.Empty(t, buf.String())
}

func TestNewDiagnostics(t *testing.T) {
	got := NewDiagnostics(testMessages())
	require.Len(t, got, 2)
	assert.Equal(t, Diagnostic{
		Level:   "ERROR",
		Code:    "TEST_UNSAFE",
		Message: "content is not allowed",
		File:    "a.css",
		Line:    3,
	}, got[1])
	assert.Equal(t, "LOG", got[0].Level)
}

// ============================================================================
// Exit codes
// ============================================================================

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitCommandError, GetExitCode(WrapExitError(ExitCommandError, "E006", os.ErrNotExist)))
	assert.Equal(t, ExitFailure, GetExitCode(NewExitError(ExitFailure, "rejected")))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))

	err := WrapExitError(ExitCommandError, "E004", os.ErrNotExist)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Equal(t, "E004: file does not exist", err.Error())
}
