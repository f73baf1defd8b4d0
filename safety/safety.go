// Package safety classifies shell commands and patches against the active
// approval policy.
package safety

import (
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	ai "github.com/spetersoncode/tandem"
)

// Classifier decides whether a native tool call may run without confirmation.
type Classifier interface {
	ClassifyCommand(cmd []string, workdir string, policy ai.ApprovalPolicy, writableRoots, exemptCommands []string) ai.SafetyAssessment
	ClassifyPatch(patch *ai.Patch, workdir string, policy ai.ApprovalPolicy, writableRoots []string) ai.SafetyAssessment
}

var readOnlyCommands = map[string]struct{}{
	"cat":    {},
	"echo":   {},
	"find":   {},
	"grep":   {},
	"head":   {},
	"ls":     {},
	"pwd":    {},
	"rg":     {},
	"sed":    {},
	"stat":   {},
	"tail":   {},
	"wc":     {},
	"which":  {},
	"printf": {},
	"tree":   {},
	"true":   {},
	"nl":     {},
	"cut":    {},
	"file":   {},
}

var readOnlyGitCommands = map[string]struct{}{
	"status": {},
	"log":    {},
	"diff":   {},
	"show":   {},
	"branch": {},
	"blame":  {},
}

// Default is the built-in classifier.
//
// Suggest asks for everything that is not exempt. AutoEdit auto-approves
// read-only commands and patches inside the writable roots. FullAuto
// auto-approves every command, running anything that is not read-only
// inside the sandbox.
type Default struct {
	readOnly map[string]struct{}
}

var _ Classifier = (*Default)(nil)

// Option configures the Default classifier.
type Option func(*Default)

// WithReadOnlyCommands adds program names treated as read-only.
func WithReadOnlyCommands(names ...string) Option {
	return func(d *Default) {
		for _, n := range names {
			d.readOnly[n] = struct{}{}
		}
	}
}

// New creates the Default classifier.
func New(opts ...Option) *Default {
	d := &Default{readOnly: make(map[string]struct{}, len(readOnlyCommands))}
	for k := range readOnlyCommands {
		d.readOnly[k] = struct{}{}
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ClassifyCommand implements Classifier.
func (d *Default) ClassifyCommand(cmd []string, workdir string, policy ai.ApprovalPolicy, writableRoots, exemptCommands []string) ai.SafetyAssessment {
	if len(cmd) == 0 {
		return ai.SafetyAssessment{Kind: ai.AssessReject, Reason: "empty command"}
	}
	if reason, bad := destructive(cmd); bad {
		return ai.SafetyAssessment{Kind: ai.AssessReject, Reason: reason}
	}
	if MatchesAny(cmd, exemptCommands) {
		return ai.SafetyAssessment{Kind: ai.AssessAutoApprove, Reason: "exempt command"}
	}

	readOnly := d.IsReadOnly(cmd)
	switch policy {
	case ai.PolicyFullAuto:
		if readOnly {
			return ai.SafetyAssessment{Kind: ai.AssessAutoApprove, Reason: "read-only command"}
		}
		return ai.SafetyAssessment{Kind: ai.AssessAutoApprove, RunInSandbox: true, Reason: "full-auto policy"}
	case ai.PolicyAutoEdit:
		if readOnly {
			return ai.SafetyAssessment{Kind: ai.AssessAutoApprove, Reason: "read-only command"}
		}
	}
	return ai.SafetyAssessment{Kind: ai.AssessAskUser, Reason: "requires approval"}
}

// ClassifyPatch implements Classifier.
func (d *Default) ClassifyPatch(patch *ai.Patch, workdir string, policy ai.ApprovalPolicy, writableRoots []string) ai.SafetyAssessment {
	if patch == nil || len(patch.Files) == 0 {
		return ai.SafetyAssessment{Kind: ai.AssessReject, Reason: "empty patch"}
	}
	if policy == ai.PolicySuggest {
		return ai.SafetyAssessment{Kind: ai.AssessAskUser, Reason: "requires approval"}
	}
	roots := writableRoots
	if len(roots) == 0 && workdir != "" {
		roots = []string{workdir}
	}
	for _, f := range patch.Files {
		if !Writable(resolve(workdir, f.Path), workdir, roots) {
			return ai.SafetyAssessment{Kind: ai.AssessAskUser, Reason: "writes outside writable roots: " + f.Path}
		}
	}
	return ai.SafetyAssessment{Kind: ai.AssessAutoApprove, RunInSandbox: policy == ai.PolicyFullAuto, Reason: "patch inside writable roots"}
}

// IsReadOnly reports whether cmd is known not to modify anything. Programs
// on the allowlist that can still write files or run other programs are
// only read-only when none of those arguments are present.
func (d *Default) IsReadOnly(cmd []string) bool {
	if len(cmd) == 0 {
		return false
	}
	prog, args := filepath.Base(cmd[0]), cmd[1:]
	switch prog {
	case "git":
		return gitReadOnly(args)
	case "sed":
		return sedReadOnly(args)
	case "find":
		return !slices.ContainsFunc(args, func(a string) bool {
			_, bad := findActions[a]
			return bad
		})
	case "tree":
		return !slices.ContainsFunc(args, func(a string) bool {
			return shortFlag(a, "oR") || strings.HasPrefix(a, "--output")
		})
	case "rg":
		return !slices.ContainsFunc(args, func(a string) bool {
			return a == "--pre" || strings.HasPrefix(a, "--pre=")
		})
	case "file":
		return !slices.ContainsFunc(args, func(a string) bool {
			return a == "--compile" || shortFlag(a, "C")
		})
	}
	_, ok := d.readOnly[prog]
	return ok
}

// findActions are the find primaries that delete, write or execute.
var findActions = map[string]struct{}{
	"-delete":  {},
	"-exec":    {},
	"-execdir": {},
	"-ok":      {},
	"-okdir":   {},
	"-fprint":  {},
	"-fprint0": {},
	"-fprintf": {},
	"-fls":     {},
}

// shortFlag reports whether a is a single-dash option cluster containing
// any of letters.
func shortFlag(a, letters string) bool {
	return len(a) > 1 && a[0] == '-' && a[1] != '-' && strings.ContainsAny(a[1:], letters)
}

func gitReadOnly(args []string) bool {
	if len(args) == 0 {
		return false
	}
	sub, rest := args[0], args[1:]
	if _, ok := readOnlyGitCommands[sub]; !ok {
		return false
	}
	if slices.ContainsFunc(rest, func(a string) bool { return strings.HasPrefix(a, "--output") }) {
		return false
	}
	if sub == "branch" {
		// Any name or other flag creates, renames or deletes a branch.
		return !slices.ContainsFunc(rest, func(a string) bool {
			_, ok := gitBranchListFlags[a]
			return !ok
		})
	}
	return true
}

var gitBranchListFlags = map[string]struct{}{
	"-a": {}, "--all": {}, "-r": {}, "--remotes": {}, "-l": {}, "--list": {},
	"-v": {}, "-vv": {}, "--verbose": {}, "--show-current": {},
	"--no-color": {}, "--color": {},
}

// sedOptions are the sed flags that take no argument and change nothing
// on disk.
const sedOptions = "nErsuz"

var sedLongOptions = map[string]struct{}{
	"--quiet": {}, "--silent": {}, "--regexp-extended": {}, "--separate": {},
	"--unbuffered": {}, "--null-data": {}, "--posix": {}, "--sandbox": {}, "--debug": {},
}

// sedReadOnly accepts sed invocations whose scripts only print, substitute
// or delete in the output stream. In-place editing, script files and any
// command or flag that writes files or runs programs make it not read-only.
func sedReadOnly(args []string) bool {
	var scripts []string
	var operands []string
	for i := 0; i < len(args); i++ {
		a := args[i]
		switch {
		case a == "--":
			operands = append(operands, args[i+1:]...)
			i = len(args)
		case a == "--expression":
			if i+1 >= len(args) {
				return false
			}
			i++
			scripts = append(scripts, args[i])
		case strings.HasPrefix(a, "--expression="):
			scripts = append(scripts, strings.TrimPrefix(a, "--expression="))
		case strings.HasPrefix(a, "--"):
			if _, ok := sedLongOptions[a]; !ok {
				return false
			}
		case len(a) > 1 && a[0] == '-':
			flags, script, hasScript := strings.Cut(a[1:], "e")
			for _, c := range flags {
				if !strings.ContainsRune(sedOptions, c) {
					return false
				}
			}
			if !hasScript {
				continue
			}
			if script == "" {
				if i+1 >= len(args) {
					return false
				}
				i++
				script = args[i]
			}
			scripts = append(scripts, script)
		default:
			operands = append(operands, a)
		}
	}
	if len(scripts) == 0 {
		if len(operands) == 0 {
			return false
		}
		scripts = operands[:1]
	}
	for _, script := range scripts {
		if !sedScriptReadOnly(script) {
			return false
		}
	}
	return true
}

// sedScriptReadOnly scans a sed script command by command. Unknown commands
// and anything it cannot parse count as writing.
func sedScriptReadOnly(script string) bool {
	sc := sedScanner{s: script}
	for {
		sc.skip(" \t\n;}")
		if sc.done() {
			return true
		}
		if !sc.address() {
			return false
		}
		sc.skip(" \t")
		if sc.peek() == '!' {
			sc.i++
			sc.skip(" \t")
		}
		if sc.done() {
			return false
		}
		c := sc.s[sc.i]
		sc.i++
		switch c {
		case '{':
		case 'p', 'P', 'd', 'D', 'n', 'N', 'g', 'G', 'h', 'H', 'x', 'z', '=', 'F':
		case 'q', 'Q', 'l', 'L':
			sc.skip(" \t0123456789")
		case ':', 'b', 't', 'T':
			sc.until(";\n")
		case 'a', 'i', 'c':
			sc.text()
		case 'y':
			if !sc.delimited(2) {
				return false
			}
		case 's':
			if !sc.delimited(2) {
				return false
			}
			for !sc.done() && !strings.ContainsRune(" \t\n;}", rune(sc.peek())) {
				if !strings.ContainsRune("gpiImM0123456789", rune(sc.peek())) {
					return false
				}
				sc.i++
			}
		default:
			return false
		}
	}
}

type sedScanner struct {
	s string
	i int
}

func (sc *sedScanner) done() bool { return sc.i >= len(sc.s) }

func (sc *sedScanner) peek() byte {
	if sc.done() {
		return 0
	}
	return sc.s[sc.i]
}

func (sc *sedScanner) skip(set string) {
	for !sc.done() && strings.IndexByte(set, sc.s[sc.i]) >= 0 {
		sc.i++
	}
}

func (sc *sedScanner) until(set string) {
	for !sc.done() && strings.IndexByte(set, sc.s[sc.i]) < 0 {
		sc.i++
	}
}

// text skips the argument of a, i or c, which runs to an unescaped newline.
func (sc *sedScanner) text() {
	for !sc.done() {
		switch sc.s[sc.i] {
		case '\\':
			sc.i += 2
			continue
		case '\n':
			return
		}
		sc.i++
	}
}

// address skips an optional address or address range.
func (sc *sedScanner) address() bool {
	if !sc.single() {
		return false
	}
	if sc.peek() != ',' {
		return true
	}
	sc.i++
	if c := sc.peek(); c == '+' || c == '~' {
		sc.i++
		sc.skip("0123456789")
		return true
	}
	return sc.single()
}

func (sc *sedScanner) single() bool {
	switch c := sc.peek(); {
	case c >= '0' && c <= '9':
		sc.skip("0123456789~")
	case c == '$':
		sc.i++
	case c == '/':
		sc.i++
		if !sc.through('/') {
			return false
		}
		sc.skip("IM")
	case c == '\\':
		if sc.i+1 >= len(sc.s) {
			return false
		}
		delim := sc.s[sc.i+1]
		sc.i += 2
		if !sc.through(delim) {
			return false
		}
		sc.skip("IM")
	}
	return true
}

// delimited reads n parts separated by the delimiter at the cursor, as in
// s/re/repl/ and y/abc/xyz/.
func (sc *sedScanner) delimited(n int) bool {
	if sc.done() {
		return false
	}
	delim := sc.s[sc.i]
	if delim == '\\' || delim == '\n' {
		return false
	}
	sc.i++
	for range n {
		if !sc.through(delim) {
			return false
		}
	}
	return true
}

// through advances past the next unescaped delim.
func (sc *sedScanner) through(delim byte) bool {
	for !sc.done() {
		switch sc.s[sc.i] {
		case '\\':
			sc.i += 2
			continue
		case delim:
			sc.i++
			return true
		}
		sc.i++
	}
	return false
}

// MatchesAny reports whether the command line matches any glob pattern.
// Patterns are matched against the space-joined argv, so "git *" matches
// every git invocation whose arguments contain no slash.
func MatchesAny(cmd []string, patterns []string) bool {
	line := strings.Join(cmd, " ")
	for _, p := range patterns {
		if p == line {
			return true
		}
		if ok, err := doublestar.Match(p, line); err == nil && ok {
			return true
		}
	}
	return false
}

// Writable reports whether path falls under one of roots. Roots may be
// directories or doublestar patterns; relative roots resolve against workdir.
func Writable(path, workdir string, roots []string) bool {
	for _, root := range roots {
		r := resolve(workdir, root)
		if strings.ContainsAny(root, "*?[{") {
			if ok, err := doublestar.PathMatch(r, path); err == nil && ok {
				return true
			}
			continue
		}
		if hasPathPrefix(r, path) {
			return true
		}
	}
	return false
}

func resolve(workdir, p string) string {
	if filepath.IsAbs(p) || workdir == "" {
		return filepath.Clean(p)
	}
	return filepath.Join(workdir, p)
}

func hasPathPrefix(root, candidate string) bool {
	rel, err := filepath.Rel(root, candidate)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func destructive(cmd []string) (string, bool) {
	if filepath.Base(cmd[0]) != "rm" {
		return "", false
	}
	recursive := false
	for _, a := range cmd[1:] {
		if strings.HasPrefix(a, "-") && !strings.HasPrefix(a, "--") && strings.ContainsAny(a, "rR") {
			recursive = true
		}
		if a == "--recursive" {
			recursive = true
		}
	}
	if !recursive {
		return "", false
	}
	for _, a := range cmd[1:] {
		switch a {
		case "/", "/*", "~", "~/", "$HOME":
			return "refusing to recursively remove " + a, true
		}
	}
	return "", false
}
