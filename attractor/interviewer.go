// ABOUTME: Interviewer capability for human-in-the-loop gates, with typed questions and answers.
// ABOUTME: Ships AutoApprove, Callback, Queue, and Recording implementations for automation and testing.
package attractor

import (
	"context"
	"fmt"
	"sync"
)

// QuestionType discriminates interview questions.
type QuestionType string

const (
	QuestionYesNo          QuestionType = "yes_no"
	QuestionConfirmation   QuestionType = "confirmation"
	QuestionMultipleChoice QuestionType = "multiple_choice"
	QuestionFreeform       QuestionType = "freeform"
)

// Question is a structured prompt for a human.
type Question struct {
	ID      string
	Type    QuestionType
	Text    string
	Options []string // multiple_choice only
	Default string   // answer assumed on timeout, if any
	NodeID  string
}

// AnswerValue discriminates interview answers.
type AnswerValue string

const (
	AnswerYes     AnswerValue = "yes"
	AnswerNo      AnswerValue = "no"
	AnswerSkipped AnswerValue = "skipped"
)

// Answer is a human's reply. For multiple choice, SelectedOption holds the
// chosen option text; for freeform, Text carries the custom string and
// becomes the preferred label. Value is recorded in context as given.
type Answer struct {
	Value          AnswerValue
	SelectedOption string
	Text           string
}

// Interviewer is the abstraction for human interaction. Any frontend (CLI,
// HTTP, programmatic) implements this interface.
type Interviewer interface {
	Ask(ctx context.Context, q Question) (Answer, error)
}

// AutoApproveInterviewer answers every question affirmatively, picking the
// first option for multiple choice. Intended for unattended runs and tests.
type AutoApproveInterviewer struct{}

func (a *AutoApproveInterviewer) Ask(ctx context.Context, q Question) (Answer, error) {
	if err := ctx.Err(); err != nil {
		return Answer{}, err
	}
	if q.Type == QuestionMultipleChoice && len(q.Options) > 0 {
		return Answer{Value: AnswerYes, SelectedOption: q.Options[0]}, nil
	}
	return Answer{Value: AnswerYes}, nil
}

// CallbackInterviewer delegates to a provided function, for integrating
// external frontends.
type CallbackInterviewer struct {
	Fn func(ctx context.Context, q Question) (Answer, error)
}

func (c *CallbackInterviewer) Ask(ctx context.Context, q Question) (Answer, error) {
	return c.Fn(ctx, q)
}

// QueueInterviewer replays answers from a pre-filled FIFO queue, for
// deterministic tests.
type QueueInterviewer struct {
	mu      sync.Mutex
	answers []Answer
}

// NewQueueInterviewer creates a QueueInterviewer pre-loaded with answers.
func NewQueueInterviewer(answers ...Answer) *QueueInterviewer {
	return &QueueInterviewer{answers: append([]Answer(nil), answers...)}
}

func (q *QueueInterviewer) Ask(ctx context.Context, question Question) (Answer, error) {
	if err := ctx.Err(); err != nil {
		return Answer{}, err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.answers) == 0 {
		return Answer{}, fmt.Errorf("answer queue exhausted for question %q", question.Text)
	}
	answer := q.answers[0]
	q.answers = q.answers[1:]
	return answer, nil
}

// QAPair records one question-answer exchange.
type QAPair struct {
	Question Question
	Answer   Answer
}

// RecordingInterviewer wraps another Interviewer and records every exchange.
type RecordingInterviewer struct {
	Inner Interviewer

	mu       sync.Mutex
	recorded []QAPair
}

func (r *RecordingInterviewer) Ask(ctx context.Context, q Question) (Answer, error) {
	answer, err := r.Inner.Ask(ctx, q)
	if err == nil {
		r.mu.Lock()
		r.recorded = append(r.recorded, QAPair{Question: q, Answer: answer})
		r.mu.Unlock()
	}
	return answer, err
}

// Recorded returns a copy of the recorded exchanges.
func (r *RecordingInterviewer) Recorded() []QAPair {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]QAPair(nil), r.recorded...)
}
