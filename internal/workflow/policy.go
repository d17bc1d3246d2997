package workflow

import (
	"fmt"
	"regexp"
	"strings"
)

// Kind classifies a step by the role it plays in the job.
type Kind int

const (
	KindOther Kind = iota
	KindCheckout
	KindSetup
	KindInstall
	KindRun
	KindCleanup
)

var kindNames = [...]string{"other", "checkout", "setup", "install", "run", "cleanup"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Policy is what a workflow must look like for one runtime.
type Policy struct {
	Name            string
	Branch          string
	SetupAction     string            // action reference without version, e.g. actions/setup-go
	SetupWith       map[string]string // required inputs of the setup action
	InstallCommands []string          // in order; the last one installs the manifest
	RunCommand      string
	Secrets         []string
	CleanupFile     string
}

// Secrets passed to the mapping job.
var jobSecrets = []string{"GOOGLE_API_KEY", "YT_USERNAME", "YT_PASSWORD"}

// CookiesFile is the session file the job must remove.
const CookiesFile = "YOUTUBE_COOKIES.txt"

// GoPolicy matches this repository's workflow.
func GoPolicy() Policy {
	return Policy{
		Name:            "go",
		Branch:          "main",
		SetupAction:     "actions/setup-go",
		SetupWith:       map[string]string{"go-version-file": "go.mod"},
		InstallCommands: []string{"go mod download", "go mod verify"},
		RunCommand:      "go run .",
		Secrets:         jobSecrets,
		CleanupFile:     CookiesFile,
	}
}

// PythonPolicy matches the workflow that ran youtube_meeting_map.py.
func PythonPolicy() Policy {
	return Policy{
		Name:            "python",
		Branch:          "main",
		SetupAction:     "actions/setup-python",
		SetupWith:       map[string]string{"python-version": "3.10"},
		InstallCommands: []string{"pip install --upgrade pip", "pip install -r requirements.txt"},
		RunCommand:      "python youtube_meeting_map.py",
		Secrets:         jobSecrets,
		CleanupFile:     CookiesFile,
	}
}

// PolicyByName resolves the -policy flag.
func PolicyByName(name string) (Policy, error) {
	switch strings.ToLower(name) {
	case "", "go":
		return GoPolicy(), nil
	case "python":
		return PythonPolicy(), nil
	default:
		return Policy{}, fmt.Errorf("unknown policy %q (want go or python)", name)
	}
}

// Check identifies which structural property a violation breaks.
type Check int

const (
	CheckTriggers Check = iota + 1
	CheckSecrets
	CheckInstall
	CheckCleanup
	CheckOrder
	CheckSetup
)

var checkNames = map[Check]string{
	CheckTriggers: "triggers",
	CheckSecrets:  "secrets",
	CheckInstall:  "install",
	CheckCleanup:  "cleanup",
	CheckOrder:    "order",
	CheckSetup:    "setup",
}

func (c Check) String() string { return checkNames[c] }

// Violation is one failed check.
type Violation struct {
	Check   Check
	Step    string
	Message string
}

func (v Violation) String() string {
	if v.Step != "" {
		return fmt.Sprintf("%s: step %q: %s", v.Check, v.Step, v.Message)
	}
	return fmt.Sprintf("%s: %s", v.Check, v.Message)
}

// Classify returns the role of s under p.
func (p Policy) Classify(s Step) Kind {
	if s.Uses != "" {
		action, _, _ := strings.Cut(s.Uses, "@")
		switch action {
		case "actions/checkout":
			return KindCheckout
		case p.SetupAction:
			return KindSetup
		}
		return KindOther
	}
	lines := s.Lines()
	switch {
	case containsLine(lines, func(l string) bool { return removesFile(l, p.CleanupFile) != rmNone }):
		return KindCleanup
	case containsLine(lines, func(l string) bool { return sameCommand(l, p.RunCommand) }):
		return KindRun
	case len(p.InstallCommands) > 0 && containsLine(lines, func(l string) bool { return sameCommand(l, p.manifestCommand()) }):
		return KindInstall
	}
	return KindOther
}

func (p Policy) manifestCommand() string { return p.InstallCommands[len(p.InstallCommands)-1] }

// Validate checks w against p and returns every violation found. An empty
// result means the workflow is acceptable.
func Validate(w *Workflow, p Policy) []Violation {
	var vs []Violation
	vs = append(vs, checkTriggers(w, p)...)

	if len(w.Jobs) != 1 {
		vs = append(vs, Violation{Check: CheckOrder, Message: fmt.Sprintf("want exactly one job, got %d", len(w.Jobs))})
	}
	for _, name := range w.JobNames() {
		job := w.Jobs[name]
		steps := job.Steps
		kinds := make([]Kind, len(steps))
		for i, s := range steps {
			kinds[i] = p.Classify(s)
		}
		vs = append(vs, checkSecrets(steps, kinds, p, w.Env, job.Env)...)
		vs = append(vs, checkInstall(steps, kinds, p)...)
		vs = append(vs, checkSetup(steps, kinds, p)...)
		vs = append(vs, checkCleanup(steps, kinds, p)...)
		vs = append(vs, checkOrder(steps, kinds)...)
	}
	return vs
}

func checkTriggers(w *Workflow, p Policy) []Violation {
	var vs []Violation
	bad := func(format string, args ...any) {
		vs = append(vs, Violation{Check: CheckTriggers, Message: fmt.Sprintf(format, args...)})
	}
	for _, tr := range w.On {
		switch tr.Event {
		case "push":
			if len(tr.Branches) != 1 || tr.Branches[0] != p.Branch {
				bad("push must be limited to branch %q, got %v", p.Branch, tr.Branches)
			}
			if len(tr.Filters) > 0 {
				bad("push has extra filters %v", tr.Filters)
			}
		case "workflow_dispatch":
			if len(tr.Inputs) > 0 {
				bad("workflow_dispatch declares inputs %v", tr.Inputs)
			}
		default:
			bad("unexpected trigger %q", tr.Event)
		}
	}
	for _, want := range []string{"push", "workflow_dispatch"} {
		if _, ok := w.On.Event(want); !ok {
			bad("missing trigger %q", want)
		}
	}
	return vs
}

var secretRefRe = regexp.MustCompile(`^\$\{\{\s*secrets\.([A-Za-z_][A-Za-z0-9_]*)\s*\}\}$`)

// checkSecrets resolves env the way the runner does: step over job over
// workflow.
func checkSecrets(steps []Step, kinds []Kind, p Policy, scopes ...map[string]string) []Violation {
	idx := indexOf(kinds, KindRun)
	if idx < 0 {
		return []Violation{{Check: CheckSecrets, Message: fmt.Sprintf("no step runs %q", p.RunCommand)}}
	}
	step := steps[idx]
	env := map[string]string{}
	for _, scope := range append(scopes, step.Env) {
		for k, v := range scope {
			env[k] = v
		}
	}
	var vs []Violation
	for _, name := range p.Secrets {
		val, ok := env[name]
		if !ok {
			vs = append(vs, Violation{Check: CheckSecrets, Step: step.Label(), Message: fmt.Sprintf("env %s is not set", name)})
			continue
		}
		m := secretRefRe.FindStringSubmatch(strings.TrimSpace(val))
		switch {
		case m == nil:
			vs = append(vs, Violation{Check: CheckSecrets, Step: step.Label(), Message: fmt.Sprintf("env %s must come from a secret, not a literal", name)})
		case m[1] != name:
			vs = append(vs, Violation{Check: CheckSecrets, Step: step.Label(), Message: fmt.Sprintf("env %s is bound to secrets.%s", name, m[1])})
		}
	}
	return vs
}

func checkInstall(steps []Step, kinds []Kind, p Policy) []Violation {
	idx := indexOf(kinds, KindInstall)
	if idx < 0 {
		return []Violation{{Check: CheckInstall, Message: fmt.Sprintf("no step runs %q", p.manifestCommand())}}
	}
	step := steps[idx]
	lines := step.Lines()
	pos := 0
	for _, cmd := range p.InstallCommands {
		found := -1
		for i := pos; i < len(lines); i++ {
			if sameCommand(lines[i], cmd) {
				found = i
				break
			}
		}
		if found < 0 {
			return []Violation{{Check: CheckInstall, Step: step.Label(), Message: fmt.Sprintf("%q missing or out of order", cmd)}}
		}
		pos = found + 1
	}
	return nil
}

func checkSetup(steps []Step, kinds []Kind, p Policy) []Violation {
	idx := indexOf(kinds, KindSetup)
	if idx < 0 {
		return nil // reported by checkOrder
	}
	var vs []Violation
	for k, want := range p.SetupWith {
		if got := steps[idx].With[k]; got != want {
			vs = append(vs, Violation{Check: CheckSetup, Step: steps[idx].Label(), Message: fmt.Sprintf("with.%s = %q, want %q", k, got, want)})
		}
	}
	return vs
}

func checkCleanup(steps []Step, kinds []Kind, p Policy) []Violation {
	for i, s := range steps {
		if kinds[i] != KindCleanup {
			continue
		}
		if s.continuesOnError() {
			return nil
		}
		for _, l := range s.Lines() {
			if removesFile(l, p.CleanupFile) == rmNoForce {
				return []Violation{{Check: CheckCleanup, Step: s.Label(), Message: fmt.Sprintf("removing %s without -f fails when the file is absent", p.CleanupFile)}}
			}
		}
		return nil
	}
	return []Violation{{Check: CheckCleanup, Message: fmt.Sprintf("no step removes %s", p.CleanupFile)}}
}

var stepOrder = []Kind{KindCheckout, KindSetup, KindInstall, KindRun, KindCleanup}

func checkOrder(steps []Step, kinds []Kind) []Violation {
	var vs []Violation
	last, lastKind := -1, KindOther
	for _, k := range stepOrder {
		idx := indexOf(kinds, k)
		if idx < 0 {
			vs = append(vs, Violation{Check: CheckOrder, Message: fmt.Sprintf("missing %s step", k)})
			continue
		}
		if n := countKind(kinds, k); n > 1 {
			vs = append(vs, Violation{Check: CheckOrder, Message: fmt.Sprintf("%d %s steps, want 1", n, k)})
		}
		if idx < last {
			vs = append(vs, Violation{Check: CheckOrder, Step: steps[idx].Label(), Message: fmt.Sprintf("%s step runs before %s step", k, lastKind)})
		}
		last, lastKind = idx, k
	}
	return vs
}

type rmResult int

const (
	rmNone rmResult = iota
	rmNoForce
	rmForce
)

// removesFile reports whether the shell line deletes file and whether it
// can fail the step. "rm x || true" is treated like a forced removal.
func removesFile(line, file string) rmResult {
	cmd, fallback, tolerant := strings.Cut(line, "||")
	tolerant = tolerant && strings.TrimSpace(fallback) != ""
	fields := strings.Fields(cmd)
	if len(fields) < 2 || fields[0] != "rm" {
		return rmNone
	}
	force, target := false, false
	for _, f := range fields[1:] {
		switch {
		case f == "--force":
			force = true
		case strings.HasPrefix(f, "-") && !strings.HasPrefix(f, "--"):
			if strings.Contains(f, "f") {
				force = true
			}
		case strings.Trim(f, `"'`) == file || strings.HasSuffix(strings.Trim(f, `"'`), "/"+file):
			target = true
		}
	}
	switch {
	case !target:
		return rmNone
	case force || tolerant:
		return rmForce
	default:
		return rmNoForce
	}
}

// sameCommand compares shell commands ignoring repeated whitespace and a
// leading "python -m" on pip.
func sameCommand(line, cmd string) bool {
	norm := func(s string) string {
		s = strings.Join(strings.Fields(s), " ")
		for _, prefix := range []string{"python -m ", "python3 -m "} {
			s = strings.TrimPrefix(s, prefix)
		}
		return s
	}
	return norm(line) == norm(cmd)
}

func containsLine(lines []string, match func(string) bool) bool {
	for _, l := range lines {
		if match(l) {
			return true
		}
	}
	return false
}

func indexOf(kinds []Kind, k Kind) int {
	for i, kk := range kinds {
		if kk == k {
			return i
		}
	}
	return -1
}

func countKind(kinds []Kind, k Kind) int {
	n := 0
	for _, kk := range kinds {
		if kk == k {
			n++
		}
	}
	return n
}
