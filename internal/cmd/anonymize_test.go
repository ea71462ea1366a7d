package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dativo-io/piiguard/internal/engine"
	"github.com/dativo-io/piiguard/internal/testutil"
)

func TestAnonymizeCmd_DefaultReplace(t *testing.T) {
	out, err := execute(t, "", "anonymize", testutil.JohnSmithText)
	require.NoError(t, err)
	assert.Equal(t, "My name is John Smith and my email is <EMAIL_ADDRESS>.\n", out)
}

func TestAnonymizeCmd_JSON(t *testing.T) {
	out, err := execute(t, "", "anonymize", "--json", testutil.JohnSmithText)
	require.NoError(t, err)

	var resp engine.AnonymizeResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "My name is John Smith and my email is <EMAIL_ADDRESS>.", resp.Text)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "EMAIL_ADDRESS", resp.Items[0].EntityType)
	assert.Contains(t, out, "<EMAIL_ADDRESS>", "HTML escaping is disabled")
}

func TestAnonymizeDeanonymize_ManifestRoundTrip(t *testing.T) {
	dir := t.TempDir()
	ops := filepath.Join(dir, "operators.yaml")
	require.NoError(t, os.WriteFile(ops, []byte("operators:\n  EMAIL_ADDRESS:\n    type: encrypt\n"), 0o600))
	manifest := filepath.Join(dir, "manifest.json")
	t.Setenv("PIIGUARD_OPERATOR_FILE", ops)
	t.Setenv("PIIGUARD_ENCRYPTION_KEY", testutil.TestEncryptionKeyHex)

	out, err := execute(t, "", "anonymize", "--manifest", manifest, testutil.JohnSmithText)
	require.NoError(t, err)
	assert.NotContains(t, out, "john@example.com")

	info, err := os.Stat(manifest)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	out, err = execute(t, "", "deanonymize", "-f", manifest)
	require.NoError(t, err)
	assert.Equal(t, testutil.JohnSmithText+"\n", out)
}

func TestDeanonymizeCmd_WithoutKey(t *testing.T) {
	_, err := execute(t, `{"text":"x","items":[]}`, "deanonymize")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deanonymize")
}

func TestReadDeanonymizeRequest(t *testing.T) {
	req, err := readDeanonymizeRequest(strings.NewReader(`{"text":"hello <X>","items":[{"entity_type":"X","start":6,"end":9}]}`), "")
	require.NoError(t, err)
	assert.Equal(t, "hello <X>", req.Text)
	require.Len(t, req.Items, 1)

	_, err = readDeanonymizeRequest(strings.NewReader("not json"), "-")
	assert.Error(t, err)

	_, err = readDeanonymizeRequest(strings.NewReader(""), filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
