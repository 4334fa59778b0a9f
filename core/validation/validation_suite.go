package validation

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
)

// ValidationStep represents a single validation step with its status.
type ValidationStep struct {
	Name    string
	Status  StepStatus
	Message string
	Error   error
	Latency time.Duration
}

// StepStatus represents the status of a validation step.
type StepStatus int

const (
	StepPending StepStatus = iota
	StepRunning
	StepPassed
	StepFailed
	StepWarning
	StepSkipped
)

// String returns the string representation of a step status.
func (s StepStatus) String() string {
	switch s {
	case StepPending:
		return "pending"
	case StepRunning:
		return "running"
	case StepPassed:
		return "passed"
	case StepFailed:
		return "failed"
	case StepWarning:
		return "warning"
	case StepSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// SuiteResult represents the complete result of validation suite execution.
type SuiteResult struct {
	Steps       []ValidationStep
	TotalSteps  int
	PassedSteps int
	FailedSteps int
	Warnings    int
	Duration    time.Duration
	Success     bool
}

type check struct {
	name string
	fn   func() ValidationResult
}

// ValidationSuite runs the startup checks in order and prints a colored progress report.
type ValidationSuite struct {
	output          io.Writer
	configValidator *ConfigValidator
	showProgress    bool
	failFast        bool
}

// NewValidationSuite creates a new ValidationSuite with default settings.
func NewValidationSuite() *ValidationSuite {
	return &ValidationSuite{
		output:          os.Stdout,
		configValidator: NewConfigValidator(),
		showProgress:    true,
	}
}

// WithOutput sets the output writer for progress messages.
func (s *ValidationSuite) WithOutput(w io.Writer) *ValidationSuite {
	s.output = w
	return s
}

// WithShowProgress enables or disables progress output.
func (s *ValidationSuite) WithShowProgress(show bool) *ValidationSuite {
	s.showProgress = show
	return s
}

// WithFailFast stops validation on first failure if enabled.
func (s *ValidationSuite) WithFailFast(failFast bool) *ValidationSuite {
	s.failFast = failFast
	return s
}

// WithEnvPath sets a custom path for the .env file.
func (s *ValidationSuite) WithEnvPath(path string) *ValidationSuite {
	s.configValidator.WithEnvPath(path)
	return s
}

// Validate runs every startup check. The disk space check is skipped when
// the data directory itself is unusable.
func (s *ValidationSuite) Validate() SuiteResult {
	startTime := time.Now()

	if s.showProgress {
		s.printHeader("Product Studio Configuration Validation")
	}

	checks := []check{
		{"Environment File", s.configValidator.CheckEnvFile},
		{"Gemini Credentials", s.configValidator.CheckGeminiKey},
		{"Text-to-Image Provider", s.configValidator.CheckTextProvider},
		{"Admin Credential", s.configValidator.CheckAdminCredential},
		{"Data Directory", s.configValidator.CheckDataDir},
	}

	steps := make([]ValidationStep, 0, len(checks)+1)
	for _, c := range checks {
		step := s.runStep(c.name, c.fn)
		steps = append(steps, step)
		if s.failFast && step.Status == StepFailed {
			return s.finish(steps, startTime)
		}
	}

	if steps[len(steps)-1].Status == StepFailed {
		step := ValidationStep{
			Name:    "Disk Space",
			Status:  StepSkipped,
			Message: "Skipped due to data directory errors",
		}
		if s.showProgress {
			s.printStep(step)
		}
		steps = append(steps, step)
	} else {
		steps = append(steps, s.runStep("Disk Space", s.configValidator.CheckDiskSpace))
	}

	return s.finish(steps, startTime)
}

func (s *ValidationSuite) finish(steps []ValidationStep, startTime time.Time) SuiteResult {
	result := s.buildResult(steps, startTime)
	if s.showProgress {
		s.printSummary(result)
	}
	return result
}

// runStep executes a validation step with timing and progress output.
func (s *ValidationSuite) runStep(name string, fn func() ValidationResult) ValidationStep {
	step := ValidationStep{Name: name, Status: StepRunning}

	if s.showProgress {
		s.printStepStart(name)
	}

	startTime := time.Now()
	res := fn()
	step.Latency = time.Since(startTime)
	step.Message = res.Message
	step.Error = res.Error

	switch {
	case !res.Valid:
		step.Status = StepFailed
	case res.Warning:
		step.Status = StepWarning
	default:
		step.Status = StepPassed
	}

	if s.showProgress {
		s.printStep(step)
	}

	return step
}

// buildResult creates a SuiteResult from completed steps.
func (s *ValidationSuite) buildResult(steps []ValidationStep, startTime time.Time) SuiteResult {
	result := SuiteResult{
		Steps:      steps,
		TotalSteps: len(steps),
		Duration:   time.Since(startTime),
		Success:    true,
	}

	for _, step := range steps {
		switch step.Status {
		case StepPassed:
			result.PassedSteps++
		case StepFailed:
			result.FailedSteps++
			result.Success = false
		case StepWarning:
			result.Warnings++
		}
	}

	return result
}

func (s *ValidationSuite) printHeader(title string) {
	fmt.Fprintln(s.output)
	color.New(color.FgCyan, color.Bold).Fprintf(s.output, "━━━ %s ━━━\n", title)
	fmt.Fprintln(s.output)
}

func (s *ValidationSuite) printStepStart(name string) {
	fmt.Fprintf(s.output, "  ◌ %s...", name)
}

// stepStyles maps a finished status to its report icon and color.
var stepStyles = map[StepStatus]struct {
	icon  string
	color color.Attribute
}{
	StepPassed:  {"✓", color.FgGreen},
	StepFailed:  {"✗", color.FgRed},
	StepWarning: {"!", color.FgYellow},
	StepSkipped: {"○", color.FgHiBlack},
}

func (s *ValidationSuite) printStep(step ValidationStep) {
	style, ok := stepStyles[step.Status]
	if !ok {
		style.icon, style.color = "?", color.FgWhite
	}
	muted := color.New(color.FgHiBlack)

	fmt.Fprint(s.output, "\r")
	color.New(style.color).Fprintf(s.output, "  %s %s", style.icon, step.Name)
	if step.Message != "" {
		muted.Fprintf(s.output, " - %s", step.Message)
	}
	fmt.Fprintln(s.output)

	if step.Status == StepFailed && step.Error != nil {
		color.New(color.FgRed).Fprintf(s.output, "    └─ %v\n", step.Error)
	}
}

func (s *ValidationSuite) printSummary(result SuiteResult) {
	title, detail := "Validation Passed", fmt.Sprintf("(%d/%d checks passed, %d warnings)",
		result.PassedSteps, result.TotalSteps, result.Warnings)
	banner := color.New(color.FgGreen, color.Bold)
	if !result.Success {
		title, detail = "Validation Failed", fmt.Sprintf("(%d passed, %d failed)",
			result.PassedSteps, result.FailedSteps)
		banner = color.New(color.FgRed, color.Bold)
	}

	fmt.Fprintln(s.output)
	banner.Fprintf(s.output, "━━━ %s ", title)
	color.New(color.FgHiBlack).Fprint(s.output, detail)
	banner.Fprintln(s.output, " ━━━")
	fmt.Fprintln(s.output)
}

// GetFirstError returns the first error from failed steps, or nil if none failed.
func (r SuiteResult) GetFirstError() error {
	for _, step := range r.Steps {
		if step.Status == StepFailed && step.Error != nil {
			return step.Error
		}
	}
	return nil
}

// Summary returns a human-readable summary string.
func (r SuiteResult) Summary() string {
	var sb strings.Builder
	if r.Success {
		sb.WriteString("Validation Passed: ")
	} else {
		sb.WriteString("Validation Failed: ")
	}
	fmt.Fprintf(&sb, "%d/%d checks passed", r.PassedSteps, r.TotalSteps)
	if r.FailedSteps > 0 {
		fmt.Fprintf(&sb, ", %d failed", r.FailedSteps)
	}
	if r.Warnings > 0 {
		fmt.Fprintf(&sb, ", %d warnings", r.Warnings)
	}
	fmt.Fprintf(&sb, " (took %v)", r.Duration.Round(time.Millisecond))
	return sb.String()
}
