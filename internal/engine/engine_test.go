package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dativo-io/piiguard/internal/anonymizer"
	"github.com/dativo-io/piiguard/internal/classifier"
	"github.com/dativo-io/piiguard/internal/config"
	"github.com/dativo-io/piiguard/internal/testutil"
)

func testConfig(t *testing.T, set map[string]any) *config.Config {
	t.Helper()
	v := viper.New()
	config.SetDefaults(v)
	v.Set(config.KeyNERCacheTTL, "0s")
	for k, val := range set {
		v.Set(k, val)
	}
	cfg, err := config.LoadFrom(v)
	require.NoError(t, err)
	return cfg
}

func newEngine(t *testing.T, set map[string]any, opts ...Option) *Engine {
	t.Helper()
	e, err := New(testConfig(t, set), opts...)
	require.NoError(t, err)
	t.Cleanup(e.Close)
	return e
}

func writeOperators(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "operators.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestAnalyze_JohnSmith(t *testing.T) {
	e := newEngine(t, nil, WithNERModel(testutil.JohnSmithNER(), "fake"))

	resp, err := e.Analyze(context.Background(), AnalyzeRequest{Text: testutil.JohnSmithText})
	require.NoError(t, err)

	require.Equal(t, 2, resp.Count)
	require.Len(t, resp.Entities, 2)
	assert.NotEmpty(t, resp.RequestID)
	assert.Equal(t, "en", resp.Language)
	assert.False(t, resp.Degraded)

	person, email := resp.Entities[0], resp.Entities[1]
	assert.Equal(t, "PERSON", person.EntityType)
	assert.Equal(t, "John Smith", person.Text)
	assert.Equal(t, nerRecognizerName, person.Recognizer)
	assert.Equal(t, "EMAIL_ADDRESS", email.EntityType)
	assert.Equal(t, "john@example.com", email.Text)
	assert.Equal(t, 38, email.Start)
	assert.Equal(t, 54, email.End)
	assert.InDelta(t, 1.0, email.Score, 1e-9, "email context word boosts the score")
}

func TestAnonymize_JohnSmith(t *testing.T) {
	e := newEngine(t, nil, WithNERModel(testutil.JohnSmithNER(), "fake"))

	resp, err := e.Anonymize(context.Background(), AnalyzeRequest{Text: testutil.JohnSmithText})
	require.NoError(t, err)

	assert.Equal(t, "My name is <PERSON> and my email is <EMAIL_ADDRESS>.", resp.Text)
	assert.Equal(t, 2, resp.Count)
	require.Len(t, resp.Items, 2)
	assert.Equal(t, anonymizer.Item{
		EntityType: "PERSON", Start: 11, End: 21, OutputStart: 11, OutputEnd: 19,
		Score: 0.85, Operator: anonymizer.OperatorReplace, NewValue: "<PERSON>",
	}, resp.Items[0])
	assert.Equal(t, 36, resp.Items[1].OutputStart)
	assert.Equal(t, 51, resp.Items[1].OutputEnd)
}

func TestAnonymize_NoPII(t *testing.T) {
	e := newEngine(t, nil)

	const text = "The weather is lovely today."
	resp, err := e.Anonymize(context.Background(), AnalyzeRequest{Text: text})
	require.NoError(t, err)
	assert.Equal(t, text, resp.Text)
	assert.Empty(t, resp.Items)
	assert.NotNil(t, resp.Items)
	assert.Zero(t, resp.Count)
}

func TestAnalyze_RequestOptions(t *testing.T) {
	e := newEngine(t, nil, WithNERModel(testutil.JohnSmithNER(), "fake"))
	ctx := context.Background()

	resp, err := e.Analyze(ctx, AnalyzeRequest{Text: testutil.JohnSmithText, Entities: []string{"PERSON"}})
	require.NoError(t, err)
	require.Len(t, resp.Entities, 1)
	assert.Equal(t, "PERSON", resp.Entities[0].EntityType)

	resp, err = e.Analyze(ctx, AnalyzeRequest{Text: testutil.JohnSmithText, AllowList: []string{"john@example.com"}})
	require.NoError(t, err)
	require.Len(t, resp.Entities, 1)
	assert.Equal(t, "PERSON", resp.Entities[0].EntityType)

	high := 0.9
	resp, err = e.Analyze(ctx, AnalyzeRequest{Text: testutil.JohnSmithText, ScoreThreshold: &high})
	require.NoError(t, err)
	require.Len(t, resp.Entities, 1)
	assert.Equal(t, "EMAIL_ADDRESS", resp.Entities[0].EntityType)
}

func TestAnalyze_Errors(t *testing.T) {
	e := newEngine(t, map[string]any{config.KeyMaxTextBytes: 16})
	ctx := context.Background()

	_, err := e.Analyze(ctx, AnalyzeRequest{Text: "short", Language: "xx"})
	assert.ErrorIs(t, err, classifier.ErrUnsupportedLanguage)

	bad := 1.5
	_, err = e.Analyze(ctx, AnalyzeRequest{Text: "short", ScoreThreshold: &bad})
	assert.ErrorIs(t, err, classifier.ErrInvalidInput)

	_, err = e.Anonymize(ctx, AnalyzeRequest{Text: strings.Repeat("a", 17)})
	assert.ErrorIs(t, err, classifier.ErrInvalidInput)
}

func TestAnalyze_NERDegraded(t *testing.T) {
	model := &testutil.FakeNERModel{Err: classifier.ErrModelUnavailable}
	e := newEngine(t, nil, WithNERModel(model, "fake"))

	resp, err := e.Anonymize(context.Background(), AnalyzeRequest{Text: testutil.JohnSmithText})
	require.NoError(t, err)
	assert.True(t, resp.Degraded)
	require.Len(t, resp.Failures, 1)
	assert.Equal(t, nerRecognizerName, resp.Failures[0].Recognizer)
	assert.Equal(t, "My name is John Smith and my email is <EMAIL_ADDRESS>.", resp.Text)
}

func TestAnalyze_NERFailPolicy(t *testing.T) {
	model := &testutil.FakeNERModel{Block: true}
	e := newEngine(t, map[string]any{
		config.KeyNERPolicy:  "fail",
		config.KeyNERTimeout: "20ms",
	}, WithNERModel(model, "fake"))

	_, err := e.Analyze(context.Background(), AnalyzeRequest{Text: testutil.JohnSmithText})
	require.Error(t, err)
	assert.True(t, errors.Is(err, classifier.ErrModelTimeout))
}

func TestNERCache(t *testing.T) {
	model := testutil.JohnSmithNER()
	e := newEngine(t, map[string]any{config.KeyNERCacheTTL: time.Minute}, WithNERModel(model, "fake"))

	for i := 0; i < 3; i++ {
		resp, err := e.Analyze(context.Background(), AnalyzeRequest{Text: testutil.JohnSmithText})
		require.NoError(t, err)
		require.Equal(t, 2, resp.Count)
	}
	assert.Equal(t, 1, model.Calls())
}

func TestSidecarBackend(t *testing.T) {
	srv := testutil.NewSidecarServer([]testutil.SidecarEntity{
		{Label: "PER", Start: 11, End: 21, Score: 0.9},
	}, 0)
	t.Cleanup(srv.Close)

	e := newEngine(t, map[string]any{
		config.KeyNERBackend: config.NERBackendSidecar,
		config.KeyNERURL:     srv.URL,
	})

	resp, err := e.Anonymize(context.Background(), AnalyzeRequest{Text: testutil.JohnSmithText})
	require.NoError(t, err)
	assert.Equal(t, "My name is <PERSON> and my email is <EMAIL_ADDRESS>.", resp.Text)
	assert.Equal(t, "en", srv.LastLanguage.Load())

	h := e.Health(context.Background())
	assert.Equal(t, "ok", h.Status)
	assert.Equal(t, config.NERBackendSidecar, h.NER.Backend)
	assert.Equal(t, "ok", h.NER.Status)
	assert.Contains(t, h.EntitiesSupported, "PERSON")
}

func TestHealth(t *testing.T) {
	t.Run("no ner", func(t *testing.T) {
		e := newEngine(t, nil)
		h := e.Health(context.Background())
		assert.Equal(t, "ok", h.Status)
		assert.Equal(t, "disabled", h.NER.Status)
		assert.NotContains(t, h.EntitiesSupported, "PERSON")
		assert.Contains(t, h.EntitiesSupported, "IN_UPI_ID")
		assert.Equal(t, []string{"en"}, h.Languages)
		assert.False(t, h.EncryptionEnabled)
	})

	t.Run("sidecar down", func(t *testing.T) {
		srv := testutil.NewSidecarServer(nil, 0)
		url := srv.URL
		srv.Close()

		e := newEngine(t, map[string]any{
			config.KeyNERBackend: config.NERBackendSidecar,
			config.KeyNERURL:     url,
		})
		h := e.Health(context.Background())
		assert.Equal(t, "degraded", h.Status)
		assert.Equal(t, "unavailable", h.NER.Status)
		assert.NotEmpty(t, h.NER.Error)
	})
}

func TestDeanonymize_RoundTrip(t *testing.T) {
	path := writeOperators(t, `
operators:
  EMAIL_ADDRESS:
    type: encrypt
  PERSON:
    type: mask
    masking_char: "*"
    chars_to_mask: 4
`)
	e := newEngine(t, map[string]any{
		config.KeyOperatorFile:  path,
		config.KeyEncryptionKey: testutil.TestEncryptionKey,
	}, WithNERModel(testutil.JohnSmithNER(), "fake"))
	ctx := context.Background()

	anon, err := e.Anonymize(ctx, AnalyzeRequest{Text: testutil.JohnSmithText})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(anon.Text, "My name is **** Smith and my email is "))
	assert.NotContains(t, anon.Text, "john@example.com")

	restored, err := e.Deanonymize(ctx, DeanonymizeRequest{Text: anon.Text, Items: anon.Items})
	require.NoError(t, err)
	assert.Equal(t, "My name is **** Smith and my email is john@example.com.", restored.Text)
	assert.Equal(t, 1, restored.Count)
	assert.Equal(t, "john@example.com", restored.Items[0].NewValue)
}

func TestDeanonymize_NoKey(t *testing.T) {
	e := newEngine(t, nil)
	_, err := e.Deanonymize(context.Background(), DeanonymizeRequest{Text: "x"})
	assert.ErrorIs(t, err, classifier.ErrConfiguration)
}

func TestNew_EncryptWithoutKey(t *testing.T) {
	path := writeOperators(t, "operators:\n  EMAIL_ADDRESS:\n    type: encrypt\n")
	_, err := New(testConfig(t, map[string]any{config.KeyOperatorFile: path}))
	assert.ErrorIs(t, err, classifier.ErrConfiguration)
}

func TestEntities(t *testing.T) {
	path := writeOperators(t, "operators:\n  IN_PAN:\n    type: redact\n")
	e := newEngine(t, map[string]any{config.KeyOperatorFile: path}, WithNERModel(testutil.JohnSmithNER(), "fake"))

	entities := e.Entities("")
	byType := map[string]EntityConfig{}
	for i, ec := range entities {
		if i > 0 {
			assert.Less(t, entities[i-1].EntityType, ec.EntityType)
		}
		byType[ec.EntityType] = ec
	}
	assert.Equal(t, anonymizer.OperatorRedact, byType["IN_PAN"].Operator.Type)
	assert.Equal(t, []string{"InPanRecognizer"}, byType["IN_PAN"].Recognizers)
	assert.Equal(t, []string{nerRecognizerName}, byType["PERSON"].Recognizers)
	assert.Contains(t, byType["DATE_TIME"].Recognizers, nerRecognizerName)
	assert.Contains(t, byType["DATE_TIME"].Recognizers, "DateRecognizer")
	assert.Equal(t, anonymizer.OperatorReplace, byType["EMAIL_ADDRESS"].Operator.Type)
	assert.Equal(t, "<EMAIL_ADDRESS>", byType["EMAIL_ADDRESS"].Operator.NewValue)
	assert.True(t, byType["IN_PAN"].Explicit)
	assert.False(t, byType["EMAIL_ADDRESS"].Explicit)
}

func TestEnabledEntities(t *testing.T) {
	e := newEngine(t, map[string]any{config.KeyEnabledEntities: []string{"EMAIL_ADDRESS"}},
		WithNERModel(testutil.JohnSmithNER(), "fake"))

	assert.Equal(t, []string{"EMAIL_ADDRESS"}, e.SupportedEntities("en"))
	resp, err := e.Anonymize(context.Background(), AnalyzeRequest{Text: testutil.JohnSmithText})
	require.NoError(t, err)
	assert.Equal(t, "My name is John Smith and my email is <EMAIL_ADDRESS>.", resp.Text)
}
