package runner

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Verbosity controls how much exchange detail is printed
type Verbosity int

const (
	// VerbosityQuiet prints only the per-case status lines
	VerbosityQuiet Verbosity = iota
	// VerbosityOnFailure prints the exchanges of failed cases
	VerbosityOnFailure
	// VerbosityAlways prints the exchanges of every case
	VerbosityAlways
)

// TestRunner executes conformance cases against one endpoint
type TestRunner struct {
	cfg        Config
	out        io.Writer
	log        zerolog.Logger
	verbosity  Verbosity
	httpClient *http.Client
}

// Option customizes a TestRunner
type Option func(*TestRunner)

// WithLogger sets the structured logger; the default discards everything
func WithLogger(log zerolog.Logger) Option {
	return func(tr *TestRunner) { tr.log = log }
}

// WithVerbosity sets how much exchange detail is printed
func WithVerbosity(v Verbosity) Option {
	return func(tr *TestRunner) { tr.verbosity = v }
}

// WithHTTPClient overrides the HTTP client shared by the per-case clients
func WithHTTPClient(c *http.Client) Option {
	return func(tr *TestRunner) { tr.httpClient = c }
}

// NewTestRunner creates a runner that reports to out
func NewTestRunner(cfg Config, out io.Writer, opts ...Option) (*TestRunner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	tr := &TestRunner{
		cfg: cfg,
		out: out,
		log: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(tr)
	}
	tr.log = tr.log.With().Str("run_id", uuid.NewString()).Str("url", cfg.BaseURL).Logger()
	return tr, nil
}

// Run executes the cases in order. Assertion failures are recorded and the
// run continues; a transport failure stops the run and the remaining cases
// are counted as not run.
func (tr *TestRunner) Run(ctx context.Context, cases []Case) RunResult {
	result := RunResult{TotalCases: len(cases)}

	for i, c := range cases {
		cr := tr.runCase(ctx, c)
		result.Results = append(result.Results, cr)
		tr.report(cr)

		if cr.Passed {
			result.Passed++
			continue
		}
		result.Failed++

		if IsTransport(cr.Err) {
			result.Aborted = cr.Err
			for _, skipped := range cases[i+1:] {
				result.Results = append(result.Results, CaseResult{Name: skipped.Name})
				result.NotRun++
			}
			tr.log.Warn().Err(cr.Err).Int("not_run", result.NotRun).Msg("Aborting run, endpoint unreachable")
			fmt.Fprintf(tr.out, "Aborting: %v\n", cr.Err)
			break
		}
	}

	tr.printSummary(result)
	return result
}

// runCase executes a single case with its own client
func (tr *TestRunner) runCase(ctx context.Context, c Case) (cr CaseResult) {
	client := NewClient(ClientConfig{
		URL:             tr.cfg.BaseURL,
		Timeout:         tr.cfg.Timeout,
		ProtocolVersion: tr.cfg.ProtocolVersion,
		HTTPClient:      tr.httpClient,
		Logger:          tr.log.With().Str("case", c.Name).Logger(),
	})
	cr = CaseResult{Name: c.Name, Ran: true}

	defer func() {
		cr.Exchanges = client.Exchanges()
		if r := recover(); r != nil {
			cr.Passed = false
			cr.Err = fmt.Errorf("panic: %v", r)
			cr.Message = cr.Err.Error()
		}
	}()

	err := c.Run(ctx, &Env{Config: tr.cfg, Client: client})
	switch {
	case err == nil:
		cr.Passed = true
	case IsTransport(err):
		cr.Err = err
		cr.Message = "transport failure: " + err.Error()
	default:
		cr.Err = err
		cr.Message = err.Error()
	}
	return cr
}

func (tr *TestRunner) report(cr CaseResult) {
	if cr.Passed {
		fmt.Fprintf(tr.out, "[PASS] %s\n", cr.Name)
	} else {
		fmt.Fprintf(tr.out, "[FAIL] %s: %s\n", cr.Name, cr.Message)
	}

	if tr.verbosity == VerbosityAlways || (tr.verbosity == VerbosityOnFailure && !cr.Passed) {
		for _, ex := range cr.Exchanges {
			printExchange(tr.out, ex)
		}
	}
}

func printExchange(w io.Writer, ex Exchange) {
	label := ex.Method
	if label == "" {
		label = "raw body"
	}
	fmt.Fprintf(w, "      --> %s: %s\n", label, ex.RequestBody)
	if ex.StatusCode == 0 {
		fmt.Fprintf(w, "      <-- no response\n")
		return
	}
	body := ex.ResponseBody
	if body == "" {
		body = "(empty body)"
	}
	fmt.Fprintf(w, "      <-- HTTP %d: %s\n", ex.StatusCode, strings.TrimSpace(body))
}

func (tr *TestRunner) printSummary(result RunResult) {
	fmt.Fprintln(tr.out)
	if result.NotRun > 0 {
		fmt.Fprintf(tr.out, "Summary: %d passed, %d failed, %d not run\n", result.Passed, result.Failed, result.NotRun)
		return
	}
	fmt.Fprintf(tr.out, "Summary: %d passed, %d failed\n", result.Passed, result.Failed)
}
