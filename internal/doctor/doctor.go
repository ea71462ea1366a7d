// Package doctor provides preflight checks for piiguard configuration and
// the NER backend. Used by `piiguard doctor`.
package doctor

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/dativo-io/piiguard/internal/anonymizer"
	"github.com/dativo-io/piiguard/internal/classifier"
	"github.com/dativo-io/piiguard/internal/config"
	"github.com/dativo-io/piiguard/internal/engine"
)

// CheckResult is a single doctor check outcome.
type CheckResult struct {
	Name     string `json:"name"`
	Category string `json:"category"`
	Status   string `json:"status"` // pass, warn, fail
	Message  string `json:"message"`
	Fix      string `json:"fix,omitempty"`
}

// Summary tallies pass/warn/fail counts.
type Summary struct {
	Pass int `json:"pass"`
	Warn int `json:"warn"`
	Fail int `json:"fail"`
}

// Report is the complete doctor output.
type Report struct {
	Status  string        `json:"status"` // worst of all checks
	Checks  []CheckResult `json:"checks"`
	Summary Summary       `json:"summary"`
}

// Options controls which check categories to run.
type Options struct {
	Config  *config.Config  // nil loads from Viper
	Engine  []engine.Option // passed to engine.New
	SkipNER bool            // skip the NER probe (for CI/offline)
}

// probeText is analyzed to measure NER latency.
const probeText = "Contact Jane Doe in Berlin at jane.doe@example.com."

// Run executes all doctor checks and returns a report.
func Run(ctx context.Context, opts Options) *Report {
	report := &Report{}

	cfg := opts.Config
	if cfg == nil {
		var err error
		cfg, err = config.Load()
		if err != nil {
			report.Checks = append(report.Checks, CheckResult{
				Name: "config_load", Category: "config", Status: "fail",
				Message: fmt.Sprintf("Cannot load config: %v", err),
				Fix:     "Check PIIGUARD_* env vars and piiguard.config.yaml",
			})
		}
	}
	if cfg != nil {
		report.Checks = append(report.Checks, CheckResult{
			Name: "config_load", Category: "config", Status: "pass",
			Message: fmt.Sprintf("language %s, threshold %.2f", cfg.DefaultLanguage, cfg.ScoreThreshold),
		})
		report.Checks = append(report.Checks, checkFiles(cfg)...)
		report.Checks = append(report.Checks, checkEncryptionKey(cfg))
		report.Checks = append(report.Checks, checkEngine(ctx, cfg, opts)...)
	}
	report.Checks = append(report.Checks, checkSystem()...)

	for _, c := range report.Checks {
		switch c.Status {
		case "pass":
			report.Summary.Pass++
		case "warn":
			report.Summary.Warn++
		case "fail":
			report.Summary.Fail++
		}
	}

	report.Status = "pass"
	if report.Summary.Warn > 0 {
		report.Status = "warn"
	}
	if report.Summary.Fail > 0 {
		report.Status = "fail"
	}
	return report
}

func checkFiles(cfg *config.Config) []CheckResult {
	var results []CheckResult
	if cfg.RecognizerFile != "" {
		results = append(results, checkRecognizerFile(cfg.RecognizerFile))
	}
	if cfg.OperatorFile != "" {
		results = append(results, checkOperatorFile(cfg.OperatorFile))
	}
	return results
}

func checkRecognizerFile(path string) CheckResult {
	rf, err := classifier.LoadRecognizerFile(path)
	if err != nil {
		return CheckResult{
			Name: "recognizer_file", Category: "config", Status: "fail",
			Message: err.Error(),
			Fix:     "Run 'piiguard validate --recognizers " + path + "' for details",
		}
	}
	if rf == nil {
		return CheckResult{
			Name: "recognizer_file", Category: "config", Status: "warn",
			Message: path + " not found; using embedded defaults only",
		}
	}
	if _, err := classifier.BuildRecognizers(rf.Recognizers); err != nil {
		return CheckResult{
			Name: "recognizer_file", Category: "config", Status: "fail",
			Message: err.Error(),
		}
	}
	return CheckResult{
		Name: "recognizer_file", Category: "config", Status: "pass",
		Message: fmt.Sprintf("%s (%d recognizers)", path, len(rf.Recognizers)),
	}
}

func checkOperatorFile(path string) CheckResult {
	f, err := anonymizer.LoadOperatorFile(path)
	if err != nil {
		return CheckResult{
			Name: "operator_file", Category: "config", Status: "fail",
			Message: err.Error(),
			Fix:     "Run 'piiguard validate --operators " + path + "' for details",
		}
	}
	if f == nil {
		return CheckResult{
			Name: "operator_file", Category: "config", Status: "warn",
			Message: path + " not found; every entity is replaced with <ENTITY>",
		}
	}
	return CheckResult{
		Name: "operator_file", Category: "config", Status: "pass",
		Message: fmt.Sprintf("%s (%d operators)", path, len(f.Operators)),
	}
}

func checkEncryptionKey(cfg *config.Config) CheckResult {
	if cfg.EncryptionKey == "" {
		return CheckResult{
			Name: "encryption_key", Category: "config", Status: "warn",
			Message: "Not set; encrypt operators and deanonymize are unavailable",
			Fix:     "Set PIIGUARD_ENCRYPTION_KEY to 32 bytes or 64 hex characters",
		}
	}
	return CheckResult{Name: "encryption_key", Category: "config", Status: "pass", Message: "Configured"}
}

func checkEngine(ctx context.Context, cfg *config.Config, opts Options) []CheckResult {
	eng, err := engine.New(cfg, opts.Engine...)
	if err != nil {
		return []CheckResult{{
			Name: "engine_build", Category: "engine", Status: "fail",
			Message: err.Error(),
			Fix:     "Fix the recognizer or operator configuration reported above",
		}}
	}
	defer eng.Close()

	results := []CheckResult{{
		Name: "engine_build", Category: "engine", Status: "pass",
		Message: fmt.Sprintf("%d entity types across %v", len(eng.SupportedEntities("")), eng.Registry().Languages()),
	}}
	if eng.NERBackend() == config.NERBackendNone {
		results = append(results, CheckResult{
			Name: "ner_backend", Category: "ner", Status: "warn",
			Message: "Disabled; PERSON, LOCATION and ORGANIZATION are not detected",
			Fix:     "Set PIIGUARD_NER_BACKEND=sidecar or llm",
		})
		return results
	}
	if opts.SkipNER {
		return results
	}
	return append(results, checkNER(ctx, eng)...)
}

func checkNER(ctx context.Context, eng *engine.Engine) []CheckResult {
	backend := eng.NERBackend()
	h := eng.Health(ctx)
	if h.NER.Status != "ok" {
		return []CheckResult{{
			Name: "ner_backend", Category: "ner", Status: "fail",
			Message: fmt.Sprintf("%s: %s", backend, h.NER.Error),
			Fix:     "Check ner_url and that the NER service is running",
		}}
	}

	start := time.Now()
	resp, err := eng.Analyze(ctx, engine.AnalyzeRequest{Text: probeText})
	latency := time.Since(start)
	if err == nil && resp.Degraded {
		err = resp.Failures[0].Err()
	}
	if err != nil {
		return []CheckResult{{
			Name: "ner_backend", Category: "ner", Status: "fail",
			Message: fmt.Sprintf("%s: probe failed: %v", backend, err),
			Fix:     "Check ner_url, ner_api_key and ner_timeout",
		}}
	}
	results := []CheckResult{{
		Name: "ner_backend", Category: "ner", Status: "pass",
		Message: fmt.Sprintf("%s, %d entities in probe, %dms", backend, resp.Count, latency.Milliseconds()),
	}}
	if latency > 2*time.Second {
		results = append(results, CheckResult{
			Name: "ner_latency", Category: "ner", Status: "warn",
			Message: fmt.Sprintf("%.1fs (> 2s threshold)", latency.Seconds()),
			Fix:     "Enable ner_cache_ttl or run the NER sidecar closer to piiguard",
		})
	}
	return results
}

func checkSystem() []CheckResult {
	return []CheckResult{{
		Name: "runtime", Category: "system", Status: "pass",
		Message: fmt.Sprintf("%s, %d CPUs", runtime.Version(), runtime.NumCPU()),
	}}
}
