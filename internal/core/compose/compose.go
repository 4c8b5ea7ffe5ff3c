// Package compose turns a task spec plus gathered evidence into a finished
// evaluation item, either through the LLM or a deterministic template.
package compose

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"queryforge/internal/core/evidence"
	"queryforge/internal/core/search"
	"queryforge/internal/fault"
	"queryforge/internal/logger"
	"queryforge/internal/persona"
	"queryforge/internal/spec"
	"queryforge/prompts"
)

// ChatModel is the slice of the eino model surface the composer needs.
type ChatModel interface {
	Generate(ctx context.Context, in []*schema.Message, opts ...model.Option) (*schema.Message, error)
}

// Options tune the composition loop.
type Options struct {
	// MaxRetries is the number of LLM attempts per task before giving up
	// or falling back to the template.
	MaxRetries int
	// Timeout bounds a single LLM call.
	Timeout time.Duration
	// TemplateFallback builds a deterministic payload when the LLM fails.
	TemplateFallback bool
}

// Service drives task composition.
type Service struct {
	model ChatModel
	opts  Options
	log   *logger.Logger

	backoff func(attempt int) time.Duration
}

// NewService wires a chat model into a composer.
func NewService(chatModel ChatModel, opts Options) *Service {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Minute
	}
	return &Service{
		model: chatModel,
		opts:  opts,
		log:   logger.New("Compose"),
		backoff: func(attempt int) time.Duration {
			seconds := 10 * (attempt + 1)
			if seconds > 60 {
				seconds = 60
			}
			return time.Duration(seconds) * time.Second
		},
	}
}

// Input bundles everything composition needs for one task.
type Input struct {
	Spec          *spec.TaskSpec
	Context       prompts.TaskContext
	ContextBlocks []prompts.ContextBlock
	Bundle        evidence.Bundle
	CacheMeta     map[string]any
	Results       []search.Result
}

// Compose builds one task. The LLM is retried on transient failures and bad
// output; when every attempt fails and the template fallback is enabled a
// deterministic payload is produced instead.
func (s *Service) Compose(ctx context.Context, in Input) (*Task, error) {
	if in.Spec == nil {
		return nil, fault.Structuralf("compose called without a spec")
	}

	messages, err := prompts.BuildMessages(in.Spec, in.Context, in.Bundle, in.ContextBlocks)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt < s.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, s.backoff(attempt-1)); err != nil {
				return nil, err
			}
		}

		task, err := s.generateOnce(ctx, messages)
		if err != nil {
			lastErr = err
			if fault.Classify(err) == fault.KindFatal {
				return nil, err
			}
			s.log.LogWarnf("composition attempt %d/%d failed for %s: %v",
				attempt+1, s.opts.MaxRetries, in.Spec.QueryID, err)
			continue
		}

		task.Provenance = ProvenanceLLM
		if err := s.postProcess(task, in); err != nil {
			return nil, err
		}
		return task, nil
	}

	if s.opts.TemplateFallback {
		s.log.LogWarnf("falling back to template output for %s: %v", in.Spec.QueryID, lastErr)
		task, err := s.templateTask(in)
		if err != nil {
			return nil, err
		}
		if err := s.postProcess(task, in); err != nil {
			return nil, err
		}
		return task, nil
	}
	return nil, fault.Transient(fmt.Errorf("composition failed for %s after %d attempts: %w",
		in.Spec.QueryID, s.opts.MaxRetries, lastErr))
}

func (s *Service) generateOnce(ctx context.Context, messages []*schema.Message) (*Task, error) {
	if s.model == nil {
		return nil, fault.Fatalf("chat model not configured")
	}

	callCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	response, err := s.model.Generate(callCtx, messages)
	if err != nil {
		return nil, err
	}
	return decodeTask(response.Content)
}

// decodeTask parses a chat completion into a Task, tolerating markdown code
// fences around the JSON body.
func decodeTask(content string) (*Task, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var task Task
	if err := json.Unmarshal([]byte(content), &task); err != nil {
		return nil, fault.Structuralf("invalid JSON in model response: %v", err)
	}
	if err := task.validate(); err != nil {
		return nil, err
	}
	return &task, nil
}

// ContextFromPersona builds the business framing handed to the authoring
// model when the spec does not carry one of its own.
func ContextFromPersona(rec persona.Record, s *spec.TaskSpec) prompts.TaskContext {
	statement := strings.TrimSpace(s.Scenario)
	if statement == "" {
		statement = "需要在有限时间内完成任务并通过评估。"
	}
	description := rec.Summary
	if description == "" {
		description = statement
	}
	return prompts.TaskContext{
		Persona: prompts.Persona{
			ID:          rec.PersonaID,
			Name:        rec.Title,
			Seniority:   rec.Seniority,
			Description: description,
			Motivations: rec.Motivations,
			PainPoints:  rec.PainPoints,
		},
		UserStatement: statement,
		Constraints: []string{
			"匹配任务描述的交付粒度，避免开放式探索。",
			"引用的任何资料必须可验证、可追溯。",
		},
		AvailableAssets: []string{
			"提供的参考资料（对外字段仅称‘参考资料/提供的资料’）",
		},
		SuccessMetrics: []string{
			"产出需覆盖任务描述的关键要求。",
			"所有结论需可复核。",
		},
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
