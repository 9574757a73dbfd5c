package invoker

import (
	"fmt"
	"strings"

	"github.com/hupe1980/agora/core"
	"github.com/hupe1980/agora/internal/util"
	"github.com/hupe1980/agora/model"
)

// DefaultHistoryWindow is the number of recent statements placed into a prompt.
const DefaultHistoryWindow = 8

// RequestProcessor contributes one part of a completion request.
type RequestProcessor interface {
	// Name returns the processor's identifier.
	Name() string
	// ProcessRequest modifies the model request before it is sent.
	ProcessRequest(req Request, mreq *model.Request) error
}

var phaseInstructions = map[core.Phase]string{
	core.PhaseInitialization:       "Introduce yourself briefly and say what matters most to you about the topic.",
	core.PhaseInitialPositions:     "State your initial position clearly in a few sentences.",
	core.PhaseEvidencePresentation: "Support your position with concrete evidence, data or examples. Cite sources where you can.",
	core.PhaseSocraticQuestioning:  "Ask a probing question that tests an assumption another participant made, or answer one put to you.",
	core.PhaseCoalitionBuilding:    "Look for common ground. Say explicitly whom you agree with and on what.",
	core.PhaseSynthesis:            "Propose a synthesis that reconciles the strongest points made so far.",
	core.PhaseCompleted:            "The debate is over. Give a one sentence closing remark.",
}

// PhaseInstruction returns the behavioral instruction for a phase.
func PhaseInstruction(p core.Phase) string {
	return phaseInstructions[p]
}

const instructionsTemplate = `You are {{.Name}}, a participant in a structured debate on "{{.Topic}}".
{{- if .Persona}}
{{.Persona}}
{{- end}}
{{- if .Expertise}}
Your expertise: {{join ", " .Expertise}}.
{{- end}}
{{- if .Characteristics}}
Your characteristics: {{join ", " .Characteristics}}.
{{- end}}

Current phase: {{.Phase}}. {{.PhaseInstruction}}
{{- if .Peers}}
Other participants: {{join ", " .Peers}}.
{{- end}}
{{- if .History}}

Recent discussion:
{{- range .History}}
{{.}}
{{- end}}
{{- end}}
{{- if .Memory}}

Your earlier contributions:
{{.Memory}}
{{- end}}

Answer in character, in at most 120 words. Do not prefix your answer with your name.`

type instructionsData struct {
	Name             string
	Topic            string
	Persona          string
	Expertise        []string
	Characteristics  []string
	Phase            core.Phase
	PhaseInstruction string
	Peers            []string
	History          []string
	Memory           string
}

// InstructionsProcessor renders the system prompt: persona, phase
// instructions, peer roster, recent history and memory digest.
type InstructionsProcessor struct {
	Window int
}

// NewInstructionsProcessor creates an instructions processor.
func NewInstructionsProcessor() *InstructionsProcessor {
	return &InstructionsProcessor{Window: DefaultHistoryWindow}
}

// Name returns the processor's identifier.
func (p *InstructionsProcessor) Name() string { return "instructions" }

// ProcessRequest sets mreq.Instructions.
func (p *InstructionsProcessor) ProcessRequest(req Request, mreq *model.Request) error {
	snap := req.Snapshot
	data := instructionsData{
		Name:             req.Participant.DisplayName(),
		Topic:            snap.Topic,
		Persona:          req.Participant.Persona,
		Expertise:        req.Participant.Expertise,
		Characteristics:  req.Participant.Characteristics,
		Phase:            snap.Phase,
		PhaseInstruction: PhaseInstruction(snap.Phase),
		Memory:           req.MemoryDigest,
	}
	for _, peer := range snap.Participants {
		if peer.ID != req.Participant.ID {
			data.Peers = append(data.Peers, peer.DisplayName())
		}
	}
	for _, st := range recent(snap.Statements, p.Window) {
		data.History = append(data.History, fmt.Sprintf("- %s: %s", speakerName(snap, st.ParticipantID), st.Content))
	}

	out, err := util.RenderTemplate(instructionsTemplate, data)
	if err != nil {
		return fmt.Errorf("failed to render instructions: %w", err)
	}
	mreq.Instructions = out
	return nil
}

// ContentsProcessor converts recent statements into messages and appends the
// closing "your turn" directive.
type ContentsProcessor struct {
	Window int
}

// NewContentsProcessor creates a contents processor.
func NewContentsProcessor() *ContentsProcessor {
	return &ContentsProcessor{Window: DefaultHistoryWindow}
}

// Name returns the processor's identifier.
func (p *ContentsProcessor) Name() string { return "contents" }

// ProcessRequest sets mreq.Messages.
func (p *ContentsProcessor) ProcessRequest(req Request, mreq *model.Request) error {
	snap := req.Snapshot
	var msgs []model.Message
	for _, st := range recent(snap.Statements, p.Window) {
		role := model.RoleUser
		if st.ParticipantID == req.Participant.ID {
			role = model.RoleAssistant
		}
		msgs = append(msgs, model.Message{
			Role:    role,
			Name:    speakerName(snap, st.ParticipantID),
			Content: st.Content,
		})
	}
	msgs = append(msgs, model.Message{
		Role:    model.RoleUser,
		Content: fmt.Sprintf("It is your turn, %s. %s", req.Participant.DisplayName(), PhaseInstruction(snap.Phase)),
	})
	mreq.Messages = msgs
	return nil
}

// BuildRequest runs processors in order over an empty model request.
func BuildRequest(req Request, processors ...RequestProcessor) (model.Request, error) {
	var mreq model.Request
	for _, p := range processors {
		if err := p.ProcessRequest(req, &mreq); err != nil {
			return model.Request{}, fmt.Errorf("processor %s: %w", p.Name(), err)
		}
	}
	return mreq, nil
}

func recent(statements []core.Statement, window int) []core.Statement {
	if window <= 0 || len(statements) <= window {
		return statements
	}
	return statements[len(statements)-window:]
}

func speakerName(snap core.Snapshot, id string) string {
	if id == core.ModeratorID {
		return "Moderator"
	}
	if p, ok := snap.Participant(id); ok {
		return p.DisplayName()
	}
	return id
}

// transcript renders recent statements as plain lines for delegate payloads.
func transcript(snap core.Snapshot, window int) []model.Message {
	var msgs []model.Message
	for _, st := range recent(snap.Statements, window) {
		msgs = append(msgs, model.Message{Role: model.RoleUser, Name: speakerName(snap, st.ParticipantID), Content: strings.TrimSpace(st.Content)})
	}
	return msgs
}
