package tandem

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// ApprovalPolicy governs which commands run without human confirmation.
type ApprovalPolicy string

const (
	// PolicySuggest asks before every command and patch.
	PolicySuggest ApprovalPolicy = "suggest"
	// PolicyAutoEdit auto-approves read-only commands and patches inside writable roots.
	PolicyAutoEdit ApprovalPolicy = "auto-edit"
	// PolicyFullAuto auto-approves everything, run inside the sandbox.
	PolicyFullAuto ApprovalPolicy = "full-auto"
)

// Valid reports whether p is a known policy.
func (p ApprovalPolicy) Valid() bool {
	switch p {
	case PolicySuggest, PolicyAutoEdit, PolicyFullAuto:
		return true
	}
	return false
}

// ParseApprovalPolicy parses a policy name, accepting a few spellings.
func ParseApprovalPolicy(s string) (ApprovalPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "suggest":
		return PolicySuggest, nil
	case "auto-edit", "autoedit", "auto_edit":
		return PolicyAutoEdit, nil
	case "full-auto", "fullauto", "full_auto":
		return PolicyFullAuto, nil
	}
	return "", fmt.Errorf("unknown approval policy %q", s)
}

// ReviewDecision is the outcome of automatic classification or human confirmation.
type ReviewDecision string

const (
	DecisionApprove ReviewDecision = "approve"
	DecisionDeny    ReviewDecision = "deny"
	// DecisionExplain asks for an explanation before deciding again.
	DecisionExplain ReviewDecision = "explain"
	// DecisionNoContinue denies the call and halts the turn loop.
	DecisionNoContinue ReviewDecision = "no_continue"
	// DecisionAlways approves the call and remembers the command for the session.
	DecisionAlways ReviewDecision = "always"
)

// AssessmentKind is the classifier's verdict for a command.
type AssessmentKind string

const (
	AssessAutoApprove AssessmentKind = "auto-approve"
	AssessAskUser     AssessmentKind = "ask-user"
	AssessReject      AssessmentKind = "reject"
)

// SafetyAssessment is produced by a safety classifier.
type SafetyAssessment struct {
	Kind         AssessmentKind
	RunInSandbox bool
	Reason       string
}

// PatchOp is a single file operation kind.
type PatchOp string

const (
	PatchAdd    PatchOp = "add"
	PatchUpdate PatchOp = "update"
	PatchDelete PatchOp = "delete"
)

// FileChange is one file operation of a patch. Content is the full new
// content for add and update.
type FileChange struct {
	Path    string  `json:"path"`
	Op      PatchOp `json:"op"`
	Content string  `json:"content,omitempty"`
}

// Patch is an ordered list of file operations.
type Patch struct {
	Files []FileChange `json:"files"`
}

// Paths returns the paths touched by the patch, in order.
func (p *Patch) Paths() []string {
	paths := make([]string, len(p.Files))
	for i, f := range p.Files {
		paths[i] = f.Path
	}
	return paths
}

// ParsePatchArgs decodes and validates apply_patch arguments.
func ParsePatchArgs(raw string) (*Patch, error) {
	var p Patch
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	if len(p.Files) == 0 {
		return nil, fmt.Errorf("%w: files must not be empty", ErrInvalidArguments)
	}
	for i, f := range p.Files {
		if f.Path == "" {
			return nil, fmt.Errorf("%w: files[%d].path is required", ErrInvalidArguments, i)
		}
		if strings.ContainsRune(f.Path, 0) {
			return nil, fmt.Errorf("%w: files[%d].path is invalid", ErrInvalidArguments, i)
		}
		switch f.Op {
		case PatchAdd, PatchUpdate, PatchDelete:
		default:
			return nil, fmt.Errorf("%w: files[%d].op %q", ErrInvalidArguments, i, f.Op)
		}
	}
	return &p, nil
}

// CommandConfirmation is the result of an interactive confirmation request.
type CommandConfirmation struct {
	Decision ReviewDecision
	// Patch optionally replaces the proposed patch with an edited one.
	Patch             *Patch
	CustomDenyMessage string
	Explanation       string
}

// ConfirmRequest describes a command or patch awaiting confirmation.
type ConfirmRequest struct {
	ToolCallID string
	Command    []string
	Workdir    string
	Patch      *Patch
	// Preview is a unified diff of Patch against the files on disk.
	Preview string
	// Explanation is set when the user previously asked for one.
	Explanation string
}

// ConfirmFunc asks the user to confirm a command or patch.
type ConfirmFunc func(ctx context.Context, req ConfirmRequest) (CommandConfirmation, error)
