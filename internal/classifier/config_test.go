package classifier

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRecognizerFile(t *testing.T) {
	yaml := `
recognizers:
  - name: "Test Email"
    supported_entity: "EMAIL_ADDRESS"
    enabled: true
    patterns:
      - name: "basic email"
        regex: '\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b'
        score: 0.85
    context: [email, mail]
  - name: "Test Phone"
    supported_entity: "PHONE_NUMBER"
    patterns:
      - name: "intl phone"
        regex: '\+[1-9]\d{6,14}\b'
        score: 0.7
`
	rf, err := ParseRecognizerFile([]byte(yaml))
	require.NoError(t, err)
	require.Len(t, rf.Recognizers, 2)

	assert.Equal(t, "Test Email", rf.Recognizers[0].Name)
	assert.Equal(t, "EMAIL_ADDRESS", rf.Recognizers[0].SupportedEntity)
	assert.True(t, rf.Recognizers[0].isEnabled())
	assert.Len(t, rf.Recognizers[0].Patterns, 1)
	assert.Equal(t, []string{"email", "mail"}, rf.Recognizers[0].Context)

	assert.Equal(t, "Test Phone", rf.Recognizers[1].Name)
	assert.True(t, rf.Recognizers[1].isEnabled(), "nil Enabled should default to true")
}

func TestParseRecognizerFileInvalidYAML(t *testing.T) {
	_, err := ParseRecognizerFile([]byte(`{{{invalid`))
	require.ErrorIs(t, err, ErrConfiguration)
	assert.Contains(t, err.Error(), "parsing YAML")
}

func TestLoadRecognizerFileMissing(t *testing.T) {
	rf, err := LoadRecognizerFile("/nonexistent/file.yaml")
	require.NoError(t, err, "missing file should not return error")
	assert.Nil(t, rf, "missing file should return nil")
}

func TestLoadRecognizerFileFromDisk(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	yaml := `
recognizers:
  - name: "Custom Pattern"
    supported_entity: "EMPLOYEE_ID"
    patterns:
      - name: "emp id"
        regex: '\bEMP-\d{6}\b'
        score: 0.95
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	rf, err := LoadRecognizerFile(path)
	require.NoError(t, err)
	require.NotNil(t, rf)
	require.Len(t, rf.Recognizers, 1)
	assert.Equal(t, "Custom Pattern", rf.Recognizers[0].Name)
}

func TestMergeRecognizers(t *testing.T) {
	enabled := true
	disabled := false

	defaults := []*RecognizerConfig{
		{Name: "Email", SupportedEntity: "EMAIL_ADDRESS", Enabled: &enabled},
		{Name: "Phone", SupportedEntity: "PHONE_NUMBER", Enabled: &enabled},
	}

	// Global override: disable Phone, add custom
	global := []*RecognizerConfig{
		{Name: "Phone", SupportedEntity: "PHONE_NUMBER", Enabled: &disabled},
		{Name: "Custom ID", SupportedEntity: "EMPLOYEE_ID", Enabled: &enabled},
	}

	// Programmatic layer: add another custom
	agent := []*RecognizerConfig{
		{Name: "Agent Custom", SupportedEntity: "AGENT_ID", Enabled: &enabled},
	}

	merged := MergeRecognizers(defaults, global, agent)
	require.Len(t, merged, 4)

	// Email: from defaults, unchanged
	assert.Equal(t, "Email", merged[0].Name)
	assert.True(t, merged[0].isEnabled())

	// Phone: overridden by global to disabled
	assert.Equal(t, "Phone", merged[1].Name)
	assert.False(t, merged[1].isEnabled())

	// Custom ID: added by global
	assert.Equal(t, "Custom ID", merged[2].Name)

	// Agent Custom: added by the programmatic layer
	assert.Equal(t, "Agent Custom", merged[3].Name)
}

func TestMergeRecognizersLastWins(t *testing.T) {
	defaults := []*RecognizerConfig{
		{Name: "IP Address", SupportedEntity: "IP_ADDRESS", SupportedLanguage: "en"},
	}
	override := []*RecognizerConfig{
		{Name: "IP Address", SupportedEntity: "IP_ADDRESS", SupportedLanguage: "override"},
	}

	merged := MergeRecognizers(defaults, override)
	require.Len(t, merged, 1)
	assert.Equal(t, "override", merged[0].SupportedLanguage, "later layer should replace the whole entry")
}

func TestFilterByEntitiesWhitelist(t *testing.T) {
	recognizers := []RecognizerConfig{
		{Name: "Email", SupportedEntity: "EMAIL_ADDRESS"},
		{Name: "Phone", SupportedEntity: "PHONE_NUMBER"},
		{Name: "IBAN", SupportedEntity: "IBAN_CODE"},
	}

	filtered := FilterByEntities(recognizers, []string{"EMAIL_ADDRESS", "IBAN_CODE"}, nil)
	require.Len(t, filtered, 2)
	assert.Equal(t, "Email", filtered[0].Name)
	assert.Equal(t, "IBAN", filtered[1].Name)
}

func TestFilterByEntitiesBlacklist(t *testing.T) {
	recognizers := []RecognizerConfig{
		{Name: "Email", SupportedEntity: "EMAIL_ADDRESS"},
		{Name: "Phone", SupportedEntity: "PHONE_NUMBER"},
		{Name: "IBAN", SupportedEntity: "IBAN_CODE"},
	}

	filtered := FilterByEntities(recognizers, nil, []string{"PHONE_NUMBER"})
	require.Len(t, filtered, 2)
	assert.Equal(t, "Email", filtered[0].Name)
	assert.Equal(t, "IBAN", filtered[1].Name)
}

func TestFilterByEntitiesBothWhitelistAndBlacklist(t *testing.T) {
	recognizers := []RecognizerConfig{
		{Name: "Email", SupportedEntity: "EMAIL_ADDRESS"},
		{Name: "Phone", SupportedEntity: "PHONE_NUMBER"},
		{Name: "IBAN", SupportedEntity: "IBAN_CODE"},
	}

	filtered := FilterByEntities(recognizers, []string{"EMAIL_ADDRESS", "PHONE_NUMBER"}, []string{"PHONE_NUMBER"})
	require.Len(t, filtered, 1)
	assert.Equal(t, "Email", filtered[0].Name)
}

func TestFilterByEntitiesEmptyFilters(t *testing.T) {
	recognizers := []RecognizerConfig{
		{Name: "Email", SupportedEntity: "EMAIL_ADDRESS"},
		{Name: "Phone", SupportedEntity: "PHONE_NUMBER"},
	}

	filtered := FilterByEntities(recognizers, nil, nil)
	require.Len(t, filtered, 2, "no filters should return all")
}

func TestBuildRecognizers(t *testing.T) {
	enabled := true
	disabled := false

	recognizers := []RecognizerConfig{
		{
			Name:            "Email",
			SupportedEntity: "EMAIL_ADDRESS",
			Enabled:         &enabled,
			Patterns: []PatternConfig{
				{Name: "basic", Regex: `\b[a-z]+@[a-z]+\.[a-z]+\b`, Score: 0.8},
			},
			Context: []string{"email"},
		},
		{
			Name:            "Disabled Pattern",
			SupportedEntity: "DISABLED_THING",
			Enabled:         &disabled,
			Patterns: []PatternConfig{
				{Name: "never compiled", Regex: `abc`, Score: 0.5},
			},
		},
	}

	compiled, err := BuildRecognizers(recognizers)
	require.NoError(t, err)
	require.Len(t, compiled, 1, "disabled recognizer should be skipped")

	assert.Equal(t, "Email", compiled[0].Name())
	assert.Equal(t, DefaultLanguage, compiled[0].Language())
	assert.Equal(t, []string{"EMAIL_ADDRESS"}, compiled[0].SupportedEntities())
	assert.Equal(t, []string{"email"}, compiled[0].ContextWords())
}

func TestBuildRecognizersPerLanguage(t *testing.T) {
	recognizers := []RecognizerConfig{{
		Name:            "Phone",
		SupportedEntity: "PHONE_NUMBER",
		Patterns:        []PatternConfig{{Name: "intl", Regex: `\+\d{10,14}`, Score: 0.5}},
		SupportedLanguages: []LanguageContext{
			{Language: "en", Context: []string{"phone"}},
			{Language: "de", Context: []string{"telefon"}},
		},
	}}

	compiled, err := BuildRecognizers(recognizers)
	require.NoError(t, err)
	require.Len(t, compiled, 2)
	assert.Equal(t, "en", compiled[0].Language())
	assert.Equal(t, []string{"phone"}, compiled[0].ContextWords())
	assert.Equal(t, "de", compiled[1].Language())
	assert.Equal(t, []string{"telefon"}, compiled[1].ContextWords())
}

func TestBuildRecognizersInvalidRegex(t *testing.T) {
	recognizers := []RecognizerConfig{
		{
			Name:            "Bad Regex",
			SupportedEntity: "BAD",
			Patterns: []PatternConfig{
				{Name: "invalid", Regex: `[invalid`, Score: 0.5},
			},
		},
	}

	_, err := BuildRecognizers(recognizers)
	require.ErrorIs(t, err, ErrConfiguration)
	assert.Contains(t, err.Error(), "compiling pattern")
}

func TestBuildRecognizersUnknownValidator(t *testing.T) {
	_, err := BuildRecognizers([]RecognizerConfig{{
		Name:            "NL",
		SupportedEntity: "NL_BSN",
		Patterns:        []PatternConfig{{Name: "bsn", Regex: `\d{9}`, Score: 0.5}},
		Validate:        "bsn",
	}})
	require.ErrorIs(t, err, ErrConfiguration)
}

func TestBuildRecognizersDenyList(t *testing.T) {
	compiled, err := BuildRecognizers([]RecognizerConfig{{
		Name:            "Titles",
		SupportedEntity: "TITLE",
		DenyList:        []string{"Mr.", "Dr", "Señora"},
	}})
	require.NoError(t, err)
	require.Len(t, compiled, 1)

	txt := NewText("Dr Who met señora Díaz and Mr. Bean; Drew left.")
	got := compiled[0].Analyze(txt)
	require.Len(t, got, 3)
	assert.Equal(t, "Dr", txt.Slice(got[0].Start, got[0].End))
	assert.Equal(t, "señora", txt.Slice(got[1].Start, got[1].End))
	assert.Equal(t, "Mr.", txt.Slice(got[2].Start, got[2].End))
	for _, d := range got {
		assert.Equal(t, DefaultDenyListScore, d.Score)
	}
}

func TestBuildRecognizersDenyListScore(t *testing.T) {
	tests := []struct {
		name string
		line string
		want float64
	}{
		{"unset uses default", "", DefaultDenyListScore},
		{"explicit zero", "    deny_list_score: 0\n", 0},
		{"explicit value", "    deny_list_score: 0.6\n", 0.6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rf, err := ParseRecognizerFile([]byte("recognizers:\n  - name: Titles\n    supported_entity: TITLE\n    deny_list: [Dr]\n" + tt.line))
			require.NoError(t, err)
			compiled, err := BuildRecognizers(rf.Recognizers)
			require.NoError(t, err)
			require.Len(t, compiled, 1)

			got := compiled[0].Analyze(NewText("Dr Who"))
			require.Len(t, got, 1)
			assert.Equal(t, tt.want, got[0].Score)
		})
	}
}

func TestParseRecognizerFileSchemaErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing entity", `
recognizers:
  - name: x
    patterns: [{name: p, regex: 'a', score: 0.5}]
`},
		{"lowercase entity", `
recognizers:
  - name: x
    supported_entity: email
    patterns: [{name: p, regex: 'a', score: 0.5}]
`},
		{"score out of range", `
recognizers:
  - name: x
    supported_entity: X
    patterns: [{name: p, regex: 'a', score: 1.5}]
`},
		{"unknown validator", `
recognizers:
  - name: x
    supported_entity: X
    validate: bsn
    patterns: [{name: p, regex: 'a', score: 0.5}]
`},
		{"neither patterns nor deny list", `
recognizers:
  - name: x
    supported_entity: X
`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRecognizerFile([]byte(tt.yaml))
			require.ErrorIs(t, err, ErrConfiguration)
		})
	}
}

func TestDefaultRecognizers(t *testing.T) {
	recs, err := DefaultRecognizers()
	require.NoError(t, err)
	assert.Greater(t, len(recs), 0, "should have default recognizers loaded from embedded YAML")

	entities := make(map[string]bool)
	for _, r := range recs {
		entities[r.SupportedEntity] = true
	}
	for _, e := range []string{
		"EMAIL_ADDRESS", "PHONE_NUMBER", "CREDIT_CARD", "IBAN_CODE", "IP_ADDRESS", "US_SSN",
		"IN_PAN", "IN_AADHAAR", "IN_PASSPORT", "IN_UPI_ID", "DATE_TIME",
	} {
		assert.True(t, entities[e], "should include %s", e)
	}

	_, err = BuildRecognizers(recs)
	require.NoError(t, err, "embedded recognizers must compile")
}
