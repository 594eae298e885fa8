// ABOUTME: Human gate handler presenting outgoing-edge choices through the Interviewer capability.
// ABOUTME: Maps answers to preferred labels and emits interview lifecycle events.
package attractor

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// WaitForHumanHandler handles human gate nodes (shape=hexagon). Choices are
// derived from the node's outgoing edge labels; the human's answer becomes
// the outcome's preferred label for edge selection.
type WaitForHumanHandler struct{}

func (h *WaitForHumanHandler) Type() string { return "wait.human" }

func (h *WaitForHumanHandler) Execute(ctx context.Context, node *GraphNode, pctx *Context, svc *Services) (*Outcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if svc == nil || svc.Interviewer == nil {
		return &Outcome{
			Status:        StatusFail,
			FailureReason: "no interviewer available for human gate " + node.ID,
		}, nil
	}

	var options []string
	if svc.Graph != nil {
		for _, e := range svc.Graph.OutgoingEdges(node.ID) {
			label := e.Label
			if label == "" {
				label = e.To
			}
			options = append(options, label)
		}
	}

	question := Question{
		ID:     node.ID,
		Type:   questionTypeFor(node, options),
		Text:   questionText(node),
		NodeID: node.ID,
	}
	if question.Type == QuestionMultipleChoice {
		question.Options = options
	}
	question.Default = node.Attrs["default_choice"]

	askCtx := ctx
	var cancel context.CancelFunc
	var timeout time.Duration
	if ms := parseDurationText(node.Attrs["interview_timeout"]); ms != nil && *ms > 0 {
		timeout = time.Duration(*ms) * time.Millisecond
		askCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	svc.emit(Event{Type: EventInterviewStarted, NodeID: node.ID, Data: map[string]any{
		"question": question.Text,
		"options":  options,
	}})

	answer, err := svc.Interviewer.Ask(askCtx, question)
	if err != nil {
		// Our own deadline, not the parent's: fall back to the default choice.
		if errors.Is(askCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			svc.emit(Event{Type: EventInterviewTimeout, NodeID: node.ID})
			if question.Default != "" {
				return humanOutcome(node, Answer{Value: AnswerSkipped, SelectedOption: question.Default}), nil
			}
			return &Outcome{
				Status:        StatusFail,
				FailureReason: fmt.Sprintf("human gate %q timed out after %s with no default_choice", node.ID, timeout),
			}, nil
		}
		return nil, err
	}

	svc.emit(Event{Type: EventInterviewCompleted, NodeID: node.ID, Data: map[string]any{
		"answer":          string(answer.Value),
		"selected_option": answer.SelectedOption,
	}})

	return humanOutcome(node, answer), nil
}

func questionTypeFor(node *GraphNode, options []string) QuestionType {
	if t := node.Attrs["question_type"]; t != "" {
		return QuestionType(t)
	}
	if len(options) > 0 {
		return QuestionMultipleChoice
	}
	return QuestionFreeform
}

func questionText(node *GraphNode) string {
	if q := node.Attrs["question"]; q != "" {
		return q
	}
	if node.Label != "" {
		return node.Label
	}
	return "Select an option:"
}

// humanOutcome maps an interview answer to an outcome. The preferred label
// carries the selection so edge selection picks the matching edge.
func humanOutcome(node *GraphNode, answer Answer) *Outcome {
	preferred := answer.SelectedOption
	if preferred == "" {
		switch answer.Value {
		case AnswerYes:
			preferred = "yes"
		case AnswerNo:
			preferred = "no"
		default:
			preferred = answer.Text
		}
	}

	status := StatusSuccess
	if answer.Value == AnswerSkipped && answer.SelectedOption == "" && answer.Text == "" {
		status = StatusSkipped
	}

	return &Outcome{
		Status:         status,
		PreferredLabel: preferred,
		ContextUpdates: map[string]any{
			"last_stage":            node.ID,
			"human." + node.ID:      string(answer.Value),
			"human.selected_option": answer.SelectedOption,
		},
	}
}
