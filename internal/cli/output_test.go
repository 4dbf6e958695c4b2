package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "bad flag")))
	assert.Equal(t, ExitFailure, GetExitCode(WrapExitError(ExitFailure, "run failed", errors.New("cause"))))

	// Wrapped ExitErrors still carry their code.
	wrapped := fmt.Errorf("outer: %w", NewExitError(ExitCommandError, "inner"))
	assert.Equal(t, ExitCommandError, GetExitCode(wrapped))
}

func TestExitErrorMessage(t *testing.T) {
	assert.Equal(t, "bad flag", NewExitError(2, "bad flag").Error())

	err := WrapExitError(1, "run failed", errors.New("pipe closed"))
	assert.Equal(t, "run failed: pipe closed", err.Error())
	assert.EqualError(t, errors.Unwrap(err), "pipe closed")
}

func TestFormatterSuccessText(t *testing.T) {
	var buf bytes.Buffer
	f := &OutputFormatter{Format: "text", Writer: &buf}

	require.NoError(t, f.Success("all good"))
	assert.Equal(t, "all good\n", buf.String())
}

func TestFormatterSuccessJSON(t *testing.T) {
	var buf bytes.Buffer
	f := &OutputFormatter{Format: "json", Writer: &buf}

	require.NoError(t, f.Success(map[string]int{"cases": 3}))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, map[string]any{"cases": float64(3)}, resp.Data)
}

func TestFormatterErrorText(t *testing.T) {
	var buf bytes.Buffer
	f := &OutputFormatter{Format: "text", Writer: &buf}

	require.NoError(t, f.Error("E_SUITE", "schema violation", nil))
	assert.Equal(t, "Error [E_SUITE]: schema violation\n", buf.String())
}

func TestFormatterErrorJSON(t *testing.T) {
	var buf bytes.Buffer
	f := &OutputFormatter{Format: "json", Writer: &buf}

	require.NoError(t, f.Error("E_CASE", "bad yaml", "line 3"))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E_CASE", resp.Error.Code)
	assert.Equal(t, "bad yaml", resp.Error.Message)
	assert.Equal(t, "line 3", resp.Error.Details)
}

func TestVerboseLog(t *testing.T) {
	var out, errOut bytes.Buffer

	f := &OutputFormatter{Format: "json", Writer: &out, ErrWriter: &errOut, Verbose: true}
	f.VerboseLog("loaded %d cases", 7)
	assert.Empty(t, out.String())
	assert.Equal(t, "loaded 7 cases\n", errOut.String())

	quiet := &OutputFormatter{Format: "text", Writer: &out}
	quiet.VerboseLog("never shown")
	assert.Empty(t, out.String())
}
