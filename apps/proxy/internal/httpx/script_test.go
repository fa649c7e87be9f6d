package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stonebraker/provenance/sdks/go/pkg/prov/issue"
	"github.com/stonebraker/provenance/sdks/go/pkg/prov/sign"
)

type scriptResult struct {
	Classes   []string       `json:"classes"`
	Label     string         `json:"label"`
	Errors    []string       `json:"errors"`
	Listeners map[string]int `json:"listeners"`
	Uncaught  string         `json:"uncaught"`
}

// runScript executes assets/script.js under node with a stubbed DOM.
func runScript(t *testing.T, env ...string) scriptResult {
	t.Helper()
	node, err := exec.LookPath("node")
	if err != nil {
		t.Skip("node not installed")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, node, filepath.Join("testdata", "script_harness.js"), filepath.Join("assets", "script.js"))
	cmd.Env = append(os.Environ(), env...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	require.NoError(t, err, stderr.String())

	var res scriptResult
	require.NoError(t, json.Unmarshal(out, &res), string(out))
	return res
}

func wrappedRecord(t *testing.T, content string) string {
	t.Helper()
	p, err := issue.New(sign.New(sign.PlaceholderPrivateKey), "").Issue(context.Background(), "https://example.com/notes.md", time.Now(), content)
	require.NoError(t, err)
	rec, err := p.Header()
	require.NoError(t, err)
	return rec
}

func TestScript_VerifiesWrappedContent(t *testing.T) {
	content := "# Notes\n\n<b>not a tag</b> & more\n"
	res := runScript(t, "RECORD="+wrappedRecord(t, content), "CONTENT="+content)

	assert.Empty(t, res.Uncaught)
	assert.Contains(t, res.Classes, "verified")
	assert.Equal(t, "Verified Content", res.Label)
	assert.Empty(t, res.Errors)
}

func TestScript_HashFailureMarksBadgeFailed(t *testing.T) {
	content := "plain text\n"
	res := runScript(t, "RECORD="+wrappedRecord(t, content), "CONTENT="+content, "CRYPTO=none")

	assert.Empty(t, res.Uncaught)
	assert.Contains(t, res.Classes, "failed")
	assert.NotContains(t, res.Classes, "verifying")
	assert.Equal(t, "Verification Failed", res.Label)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "Error during verification: ")

	// page actions are installed even when verification fails
	assert.GreaterOrEqual(t, res.Listeners["click"], 1)
	assert.GreaterOrEqual(t, res.Listeners["mouseup"], 1)
}

func TestScript_TamperedContent(t *testing.T) {
	res := runScript(t, "RECORD="+wrappedRecord(t, "original\n"), "CONTENT=changed\n")

	assert.Contains(t, res.Classes, "failed")
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "Error: Verification failed: Content hash mismatch.", res.Errors[0])
}

func TestScript_NoRecord(t *testing.T) {
	res := runScript(t, "CONTENT=x")

	assert.Contains(t, res.Classes, "failed")
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "Error: No verification data found", res.Errors[0])
}
