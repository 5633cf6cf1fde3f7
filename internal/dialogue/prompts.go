package dialogue

import (
	"fmt"
	"strings"

	"politerm/internal/prompt"
	"politerm/internal/protocol"
)

// CancelNotice is written to both agents when a run is interrupted.
const CancelNotice = "# Orchestrator: the user cancelled this task. Stop the current work and wait for new instructions."

// RoundID is the block id expected for the Executer's report of a round.
func RoundID(taskID string, round int) string {
	return fmt.Sprintf("%s-R%d", taskID, round)
}

// The prompts describe the block format in words. The only literal block a
// prompt carries is the quoted message it relays, whose type the receiving
// side never waits for.

// render fills the named template, falling back to the built-in one when an
// override fails on this data.
func (e *Engine) render(name string, data prompt.Data) string {
	text, err := e.prompts.Render(name, data)
	if err == nil {
		return text
	}
	e.logger.Warn("prompt override failed", map[string]string{
		"prompt": name,
		"source": e.prompts.Source(name),
		"error":  err.Error(),
	})
	text, err = prompt.Default().Render(name, data)
	if err != nil {
		panic(fmt.Sprintf("built-in prompt %s: %v", name, err))
	}
	return text
}

func (e *Engine) openingPrompt(taskID, request string) string {
	return e.render(prompt.Opening, prompt.Data{TaskID: taskID, Request: strings.TrimSpace(request)})
}

func (e *Engine) onceOpeningPrompt(taskID, request string) string {
	return e.render(prompt.OnceOpening, prompt.Data{TaskID: taskID, Request: strings.TrimSpace(request)})
}

func (e *Engine) executionPrompt(taskID string, round int, msg protocol.Message) string {
	subject := "instruction"
	if msg.Kind == protocol.KindPlan {
		subject = "plan"
	}
	return e.render(prompt.Execution, prompt.Data{
		TaskID:  taskID,
		Round:   round,
		Kind:    string(msg.Kind),
		Subject: subject,
		Quoted:  protocol.Quote(msg),
		ReplyID: RoundID(taskID, round),
	})
}

func (e *Engine) reviewPrompt(taskID, request string, round int, msg protocol.Message) string {
	return e.render(prompt.Review, prompt.Data{
		TaskID:    taskID,
		Request:   strings.TrimSpace(request),
		Round:     round,
		MaxRounds: e.maxRounds,
		Quoted:    protocol.Quote(msg),
		ReplyID:   RoundID(taskID, round+1),
	})
}

func (e *Engine) summaryPrompt(taskID string) string {
	return e.render(prompt.Summary, prompt.Data{TaskID: taskID})
}

func (e *Engine) onceSummaryPrompt(taskID string, msg protocol.Message) string {
	return e.render(prompt.OnceSummary, prompt.Data{TaskID: taskID, Quoted: protocol.Quote(msg)})
}
