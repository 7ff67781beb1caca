// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package transcript reconstructs per-session narratives from raw turn
// events for human review inside an audit package.
//
// Events arrive in any order; narrative order is strictly by sequence
// number, never by wall-clock time, so timestamp skew between recording
// hosts cannot reorder a session. Protected content is opened through
// the Decryptor capability. Annotations overlay onto turns by
// (session id, sequence number); an annotation referencing a turn that
// does not exist is a recorded warning, never an error.
package transcript

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"
)

// Phase is the position of a turn in the agent's loop.
type Phase string

const (
	PhaseInput   Phase = "input"
	PhaseThought Phase = "thought"
	PhaseAction  Phase = "action"
	PhaseOutcome Phase = "outcome"
)

// IsKnown reports whether p is one of the defined Phase values.
func (p Phase) IsKnown() bool {
	switch p {
	case PhaseInput, PhaseThought, PhaseAction, PhaseOutcome:
		return true
	}
	return false
}

// Event is one raw turn record from the session event store.
type Event struct {
	SessionID  string `json:"session_id"`
	SequenceNo int    `json:"sequence_no"`
	Phase      Phase  `json:"phase"`

	// Content is the turn payload. Empty when the payload is
	// protected.
	Content string `json:"content,omitempty"`

	// Protected is a vault-sealed payload replacing Content for turns
	// that carry sensitive material. Opened via the Decryptor during
	// reconstruction.
	Protected []byte `json:"protected,omitempty"`
}

// Annotation is reviewer metadata attached to a single turn,
// referenced by (session id, sequence number).
type Annotation struct {
	SessionID  string `json:"session_id"`
	SequenceNo int    `json:"sequence_no"`
	Label      string `json:"label"`
	Author     string `json:"author"`
	Note       string `json:"note,omitempty"`

	// CreatedAt is an RFC 3339 UTC timestamp, validated at intake.
	CreatedAt string `json:"created_at"`
}

// Turn is one reconstructed step of a session narrative.
type Turn struct {
	SequenceNo  int          `json:"sequence_no"`
	Phase       Phase        `json:"phase"`
	Content     string       `json:"content"`
	Annotations []Annotation `json:"annotations,omitempty"`
}

// Transcript is the ordered narrative of one session.
type Transcript struct {
	SessionID string `json:"session_id"`
	Turns     []Turn `json:"turns"`
}

// Decryptor opens protected turn payloads. Implementations wrap their
// failures in the error types the job classifier understands; the
// reconstruction layer only propagates them.
type Decryptor interface {
	Open(ctx context.Context, sessionID string, sealed []byte) ([]byte, error)
}

// Reconstruct groups raw events into per-session transcripts.
//
// Returned transcripts are sorted by session id, turns by sequence
// number, and annotations within a turn by creation time then author.
// Warnings report annotations that matched no turn; they are part of
// the audit record, not errors. A duplicate (session, sequence) pair
// is an error: intake rejects it, so seeing one here means the caller
// bypassed validation.
func Reconstruct(ctx context.Context, events []Event, annotations []Annotation, decryptor Decryptor) ([]Transcript, []string, error) {
	type turnKey struct {
		sessionID  string
		sequenceNo int
	}

	sessions := make(map[string][]Turn)
	seen := make(map[turnKey]bool)

	for _, event := range events {
		key := turnKey{event.SessionID, event.SequenceNo}
		if seen[key] {
			return nil, nil, fmt.Errorf("duplicate turn %d in session %s", event.SequenceNo, event.SessionID)
		}
		seen[key] = true

		content := event.Content
		if len(event.Protected) > 0 {
			if decryptor == nil {
				return nil, nil, fmt.Errorf("session %s turn %d carries protected content but no decryptor is configured", event.SessionID, event.SequenceNo)
			}
			plaintext, err := decryptor.Open(ctx, event.SessionID, event.Protected)
			if err != nil {
				return nil, nil, fmt.Errorf("opening protected content for session %s turn %d: %w", event.SessionID, event.SequenceNo, err)
			}
			content = string(plaintext)
		}

		sessions[event.SessionID] = append(sessions[event.SessionID], Turn{
			SequenceNo: event.SequenceNo,
			Phase:      event.Phase,
			Content:    content,
		})
	}

	// Overlay annotations in a deterministic order so warning order
	// is stable across runs.
	sortedAnnotations := slices.Clone(annotations)
	slices.SortFunc(sortedAnnotations, compareAnnotations)

	var warnings []string
	annotated := make(map[turnKey][]Annotation)
	for _, annotation := range sortedAnnotations {
		key := turnKey{annotation.SessionID, annotation.SequenceNo}
		if !seen[key] {
			warnings = append(warnings, fmt.Sprintf(
				"annotation %q by %s references unknown turn %d in session %s",
				annotation.Label, annotation.Author, annotation.SequenceNo, annotation.SessionID))
			continue
		}
		annotated[key] = append(annotated[key], annotation)
	}

	transcripts := make([]Transcript, 0, len(sessions))
	for sessionID, turns := range sessions {
		slices.SortFunc(turns, func(a, b Turn) int {
			return a.SequenceNo - b.SequenceNo
		})
		for i := range turns {
			turns[i].Annotations = annotated[turnKey{sessionID, turns[i].SequenceNo}]
		}
		transcripts = append(transcripts, Transcript{SessionID: sessionID, Turns: turns})
	}
	slices.SortFunc(transcripts, func(a, b Transcript) int {
		return strings.Compare(a.SessionID, b.SessionID)
	})

	return transcripts, warnings, nil
}

// compareAnnotations orders annotations by session, sequence, creation
// time, then author. Annotation overlay and warning emission follow
// this order.
func compareAnnotations(a, b Annotation) int {
	if c := strings.Compare(a.SessionID, b.SessionID); c != 0 {
		return c
	}
	if c := a.SequenceNo - b.SequenceNo; c != 0 {
		return c
	}
	ta, _ := time.Parse(time.RFC3339Nano, a.CreatedAt)
	tb, _ := time.Parse(time.RFC3339Nano, b.CreatedAt)
	if c := ta.Compare(tb); c != 0 {
		return c
	}
	return strings.Compare(a.Author, b.Author)
}
