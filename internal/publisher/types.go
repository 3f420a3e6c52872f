// internal/publisher/types.go
package publisher

import (
	"encoding/json"
	"fmt"

	"go.uber.org/zap/zapcore"

	"github.com/xkilldash9x/scribe-cli/internal/observability"
)

// Stage names recorded in StageOutcome.Stage.
const (
	StageAuthentication = "authentication"
	StageDiscovery      = "discovery"
	StageSelection      = "selection"
	StageSubmission     = "submission"
)

// Credentials identify the platform account. They live for a single call
// and are never logged or persisted; every rendering masks them.
type Credentials struct {
	Identity string
	Secret   string
}

func (c Credentials) String() string {
	return fmt.Sprintf("Credentials{Identity: %s, Secret: ****}", observability.MaskIdentity(c.Identity))
}

// GoString keeps %#v from printing the secret.
func (c Credentials) GoString() string { return c.String() }

// MarshalLogObject renders only the masked identity.
func (c Credentials) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("identity", observability.MaskIdentity(c.Identity))
	return nil
}

// MarshalJSON renders only the masked identity.
func (c Credentials) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Identity string `json:"identity"`
	}{observability.MaskIdentity(c.Identity)})
}

// Content is one chapter to publish.
type Content struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// TargetRef names the work a chapter belongs to. An empty ID targets
// whatever work the platform opens by default.
type TargetRef struct {
	ID    string `json:"id,omitempty"`
	Title string `json:"title,omitempty"`
}

// Work is an existing work found on the platform.
type Work struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	URL   string `json:"url,omitempty"`
}

// StageOutcome records how one stage of a workflow went.
type StageOutcome struct {
	Stage     string `json:"stage"`
	Succeeded bool   `json:"succeeded"`
	Skipped   bool   `json:"skipped,omitempty"`
	// MatchedIndex is the position of the locator candidate that decided the
	// stage, when one did.
	MatchedIndex *int   `json:"matched_index,omitempty"`
	Diagnostic   string `json:"diagnostic,omitempty"`
}

// PublishState is what the submission stage managed to do with the content.
type PublishState string

const (
	// StatePublished means a publish control was clicked and a success indicator appeared.
	StatePublished PublishState = "published"
	// StatePublishAttempted means a publish control was clicked but no indicator confirmed it.
	StatePublishAttempted PublishState = "publish_attempted"
	// StateSavedDraft means no publish control was found; the content exists only as the platform's autosaved draft.
	StateSavedDraft PublishState = "saved_draft"
)

// WorkflowResult is returned by every submission, including failed ones.
type WorkflowResult struct {
	RunID         string         `json:"run_id"`
	Success       bool           `json:"success"`
	Message       string         `json:"message"`
	Stages        []StageOutcome `json:"stages"`
	ContentLength int            `json:"content_length"`
	Published     PublishState   `json:"published,omitempty"`
	Verified      bool           `json:"verified"`
	Warnings      []string       `json:"warnings,omitempty"`
}

func (r *WorkflowResult) record(o StageOutcome) { r.Stages = append(r.Stages, o) }

func (r *WorkflowResult) warn(msg string) { r.Warnings = append(r.Warnings, msg) }

func intPtr(i int) *int { return &i }
