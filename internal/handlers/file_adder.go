package handlers

import (
	"context"
	"errors"
	"fmt"

	"preflight/internal/agent"
	"preflight/internal/confirm"
	"preflight/internal/conversation"
	"preflight/internal/logging"
	"preflight/internal/reflection"
	"preflight/internal/types"
	"preflight/internal/ux"
	"preflight/internal/world"
)

type fileAdderOptions struct {
	commonOptions `mapstructure:",squash"`
}

// FileAdder asks an auxiliary agent which workspace files the request needs
// and adds the ones the user confirms.
type FileAdder struct {
	binding   agent.Binding
	rounds    int
	gate      *confirm.Gate
	out       ux.Output
	workspace *world.Workspace
}

func newFileAdder(ctx context.Context, opts map[string]interface{}, deps Deps) (Handler, error) {
	var o fileAdderOptions
	if err := decodeOptions("file-adder", opts, &o); err != nil {
		return nil, err
	}
	if deps.Workspace == nil || deps.Gate == nil || deps.Agents == nil {
		return nil, errors.New("file-adder needs a workspace, a confirmation gate and an agent")
	}
	binding, err := deps.Agents.Resolve(o.Model)
	if err != nil {
		return nil, err
	}
	return &FileAdder{
		binding:   binding,
		rounds:    o.rounds(deps),
		gate:      deps.Gate,
		out:       deps.output(),
		workspace: deps.Workspace,
	}, nil
}

// Handle runs one reflection session over snapshot.
func (h *FileAdder) Handle(ctx context.Context, snapshot []types.Message) (types.Delta, error) {
	h.out.Output("file-adder: checking for needed files...")

	inChat := make(map[string]bool)
	for _, p := range conversation.Files(snapshot) {
		inChat[p] = true
	}
	strategy := &fileAdderStrategy{h: h, inChat: inChat, skipped: make(map[string]bool)}

	session := reflection.New(reflection.Config{
		Handler:   "file-adder",
		Agent:     h.binding.Client,
		AgentName: h.binding.Name,
		MaxRounds: h.rounds,
		Reminder:  h.binding.Config.GetReminderMode(),
		Out:       h.out,
	}, strategy)
	return session.Run(ctx, snapshot)
}

type fileAdderStrategy struct {
	h       *FileAdder
	inChat  map[string]bool // files already in the context or added this session
	skipped map[string]bool // mentions that do not name a workspace file
}

func (s *fileAdderStrategy) Prompts() reflection.Prompts {
	return reflection.Prompts{System: fileAdderSystem, Reminder: fileAdderReminder}
}

func (s *fileAdderStrategy) Evaluate(ctx context.Context, reply *types.Message) (reflection.Evaluation, error) {
	if reflection.HasSentinel(reply.Content) {
		return reflection.Evaluation{Continue: true}, nil
	}

	var ev reflection.Evaluation
	for _, mention := range reflection.ParseFileMentions(reply.Content) {
		if s.skipped[mention] {
			continue
		}
		_, rel, err := s.h.workspace.Resolve(mention)
		if err != nil || !s.h.workspace.Exists(rel) {
			s.skipped[mention] = true
			s.h.out.Warning(fmt.Sprintf("Skipping %s: not a file in the workspace", mention))
			continue
		}
		if s.inChat[rel] {
			continue
		}
		ev.Items = append(ev.Items, reflection.Item{Key: "file:" + rel, Label: rel, Value: rel})
	}
	return ev, nil
}

func (s *fileAdderStrategy) Apply(ctx context.Context, reply *types.Message, items []reflection.Item) (reflection.Effect, error) {
	subjects := make([]confirm.Subject, 0, len(items))
	for _, it := range items {
		subjects = append(subjects, confirm.Subject{Key: it.Key, Label: it.Label})
	}
	decision, err := s.h.gate.Review(ctx, confirm.Group{Question: "Add file to the chat?", Subjects: subjects})
	if err != nil {
		return reflection.Effect{}, err
	}

	var eff reflection.Effect
	for _, subj := range decision.Approved {
		content, rel, err := s.h.workspace.Read(subj.Label)
		if err != nil {
			s.h.out.Warning(fmt.Sprintf("Unable to read %s: %v", subj.Label, err))
			logging.Get(logging.CategoryHandlers).Warn("file-adder: read %s: %v", subj.Label, err)
			continue
		}
		eff.Delta = append(eff.Delta, conversation.FileMessage(rel, content))
		s.inChat[rel] = true
		s.h.out.Output(fmt.Sprintf("Added %s to the chat", rel))
	}

	if len(eff.Delta) > 0 {
		eff.Turns = []types.Message{types.UserMessage(filesAdded)}
	} else {
		eff.Turns = []types.Message{types.UserMessage(filesNotAdded)}
	}
	return eff, nil
}
