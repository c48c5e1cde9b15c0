package transport

import (
	"context"
	"fmt"

	"github.com/christopherdebeer/dygram/pkg/execution"
)

// Recording is the persisted shape of one fingerprinted LLM exchange.
// pkg/persistence owns reading and writing these to the recordings
// directory; this package only needs the shape to round-trip through a
// RecordingStore.
type Recording struct {
	Fingerprint  string
	Model        string
	SystemPrompt string
	Conversation []execution.Message
	Tools        []execution.ToolDefinition
	Response     Response
}

// RecordingStore is the persistence-side dependency recording and playback
// transports need. pkg/persistence implements this against the on-disk
// recordings directory; keeping the interface here (rather than importing
// pkg/persistence) keeps pkg/transport a leaf package.
type RecordingStore interface {
	Load(fingerprint string) (Recording, bool, error)
	Save(rec Recording) error
}

// RecordingTransport wraps a live transport, persisting every response it
// gets back under its request fingerprint before returning it.
type RecordingTransport struct {
	live  LLMTransport
	store RecordingStore
}

func NewRecordingTransport(live LLMTransport, store RecordingStore) *RecordingTransport {
	return &RecordingTransport{live: live, store: store}
}

func (t *RecordingTransport) InvokeWithTools(ctx context.Context, conversation []execution.Message, tools []execution.ToolDefinition, opts Options) (Response, error) {
	resp, err := t.live.InvokeWithTools(ctx, conversation, tools, opts)
	if err != nil {
		return Response{}, err
	}
	fp := execution.Fingerprint(opts.Model, conversation, tools, opts.SystemPrompt)
	_ = t.store.Save(Recording{Fingerprint: fp, Model: opts.Model, SystemPrompt: opts.SystemPrompt, Conversation: conversation, Tools: tools, Response: resp})
	return resp, nil
}

// PlaybackTransport never touches the network: every call must hit the
// store or it fails outright, matching the turn loop's playback mode,
// which is meant to replay a prior run exactly, not degrade into a live
// one when a recording is missing.
type PlaybackTransport struct {
	store RecordingStore
}

func NewPlaybackTransport(store RecordingStore) *PlaybackTransport {
	return &PlaybackTransport{store: store}
}

// ErrRecordingMissing is returned when playback finds no recording for the
// requested fingerprint, corresponding to the runtime's recording_missing
// failure kind.
var ErrRecordingMissing = fmt.Errorf("recording_missing")

func (t *PlaybackTransport) InvokeWithTools(ctx context.Context, conversation []execution.Message, tools []execution.ToolDefinition, opts Options) (Response, error) {
	fp := execution.Fingerprint(opts.Model, conversation, tools, opts.SystemPrompt)
	rec, ok, err := t.store.Load(fp)
	if err != nil {
		return Response{}, fmt.Errorf("playback: %w", err)
	}
	if !ok {
		return Response{}, ErrRecordingMissing
	}
	return rec.Response, nil
}
