package main

import (
	"context"
	"fmt"

	"github.com/mkarlin/mailpilot/internal/auth"
	"github.com/mkarlin/mailpilot/internal/calendar"
	"github.com/mkarlin/mailpilot/internal/gmail"
	"github.com/mkarlin/mailpilot/internal/llm"
	"github.com/mkarlin/mailpilot/internal/pipeline"
	"github.com/mkarlin/mailpilot/internal/search"
	"github.com/mkarlin/mailpilot/internal/slack"
)

// buildProcessor wires the configured collaborators into a pipeline. Slack,
// calendar and search are optional; Gmail and the LLM are not.
func buildProcessor(ctx context.Context) (*pipeline.Processor, error) {
	session, err := auth.NewSession(ctx, cfg.CredentialsPath, cfg.TokenPath)
	if err != nil {
		return nil, fmt.Errorf("google auth: %w", err)
	}

	mail, err := gmail.New(ctx, session)
	if err != nil {
		return nil, err
	}

	if cfg.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("openai_api_key is not set")
	}
	analyzer := llm.New(cfg.OpenAIAPIKey, cfg.OpenAIModel)

	var notifier pipeline.Notifier
	if cfg.SlackConfigured() {
		notifier = slack.New(cfg.SlackBotToken, cfg.SlackChannel)
	} else {
		log.Warn("slack not configured, notifications disabled")
	}

	var cal pipeline.Calendar
	if c, err := calendar.New(ctx, session, cfg.CalendarID); err != nil {
		log.Warn("calendar unavailable", "err", err)
	} else {
		cal = c
	}

	searcher := search.New(cfg.SearchAPIKey, cfg.SearchCX)

	return pipeline.New(cfg, st, mail, analyzer, notifier, cal, searcher, log), nil
}

// buildCalendar wires just the calendar collaborator, for commands that do
// not need the rest of the pipeline.
func buildCalendar(ctx context.Context) (*calendar.Service, error) {
	session, err := auth.NewSession(ctx, cfg.CredentialsPath, cfg.TokenPath)
	if err != nil {
		return nil, fmt.Errorf("google auth: %w", err)
	}
	return calendar.New(ctx, session, cfg.CalendarID)
}
