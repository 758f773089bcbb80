package generator

import (
	"context"
	"errors"

	perrors "wooden_dutch/errors"
	"wooden_dutch/persona"
)

// Agent runs each editorial task against the LLM and validates the result.
type Agent struct {
	llm LLMClient
}

func NewAgent(llm LLMClient) (*Agent, error) {
	if llm == nil {
		return nil, errors.New("llm client is required")
	}
	return &Agent{llm: llm}, nil
}

// upstream wraps transport failures; coded errors pass through untouched.
func upstream(err error) error {
	if perrors.CodeOf(err) != "" {
		return err
	}
	return perrors.NewUpstream("llm", err)
}

func (a *Agent) structured(ctx context.Context, prompt Prompt, contract Contract, v validator) error {
	raw, err := a.llm.CompleteStructured(ctx, prompt, contract)
	if err != nil {
		return upstream(err)
	}
	return decodeStrict(contract, raw, v)
}

// Brainstorm produces exactly CandidateCount topic candidates.
func (a *Agent) Brainstorm(ctx context.Context, headlines, usedTopics []string, hint string) ([]Topic, error) {
	prompt, err := BuildBrainstormPrompt(headlines, usedTopics, hint)
	if err != nil {
		return nil, err
	}
	var out TopicCandidates
	if err := a.structured(ctx, prompt, TopicCandidatesContract, &out); err != nil {
		return nil, err
	}
	return out.Candidates, nil
}

// SelectTopic asks for one index into candidates. Out-of-range indices are
// contract violations, never clamped.
func (a *Agent) SelectTopic(ctx context.Context, candidates []Topic, usedTopics []string) (Topic, TopicSelection, error) {
	prompt, err := BuildSelectPrompt(candidates, usedTopics)
	if err != nil {
		return Topic{}, TopicSelection{}, err
	}
	var sel TopicSelection
	if err := a.structured(ctx, prompt, TopicSelectionContract, &sel); err != nil {
		return Topic{}, TopicSelection{}, err
	}
	if sel.SelectedIndex >= len(candidates) {
		return Topic{}, sel, perrors.NewContractViolation(TopicSelectionContract.Name, "invalid selection index")
	}
	return candidates[sel.SelectedIndex], sel, nil
}

// AssignAuthor picks a persona from the registry for topic.
func (a *Agent) AssignAuthor(ctx context.Context, topic Topic, reg *persona.Registry, recent []string) (persona.Persona, AuthorAssignment, error) {
	prompt, err := BuildAssignPrompt(topic, reg.Roster(), reg.RenderRecent(recent))
	if err != nil {
		return persona.Persona{}, AuthorAssignment{}, err
	}
	var asg AuthorAssignment
	if err := a.structured(ctx, prompt, AuthorAssignmentContract(reg.IDs()), &asg); err != nil {
		return persona.Persona{}, AuthorAssignment{}, err
	}
	p, err := reg.Get(asg.AuthorID)
	if err != nil {
		return persona.Persona{}, asg, err
	}
	return p, asg, nil
}

// Write produces the first HTML draft in the persona's voice.
func (a *Agent) Write(ctx context.Context, topic Topic, p persona.Persona) (string, error) {
	prompt, err := BuildArticlePrompt(topic, p)
	if err != nil {
		return "", err
	}
	return a.body(ctx, "Write", prompt)
}

// Review scores html against tone, length, satire and markup rules.
func (a *Agent) Review(ctx context.Context, topic Topic, p persona.Persona, html string) (Review, error) {
	prompt, err := BuildReviewPrompt(topic, p, html)
	if err != nil {
		return Review{}, err
	}
	var r Review
	if err := a.structured(ctx, prompt, ReviewContract, &r); err != nil {
		return Review{}, err
	}
	return r, nil
}

// Revise rewrites html to address the review. history carries earlier
// drafts and reviews of the same piece, oldest first.
func (a *Agent) Revise(ctx context.Context, topic Topic, p persona.Persona, html string, review Review, history ...Message) (string, error) {
	prompt, err := BuildRevisionPrompt(topic, p, html, review)
	if err != nil {
		return "", err
	}
	prompt.History = history
	return a.body(ctx, "Revise", prompt)
}

func (a *Agent) body(ctx context.Context, stage string, prompt Prompt) (string, error) {
	raw, err := a.llm.Complete(ctx, prompt)
	if err != nil {
		return "", upstream(err)
	}
	if err := checkBody(stage, raw); err != nil {
		return "", err
	}
	return raw, nil
}
