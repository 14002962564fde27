// Package schedule fires configured prompts on cron schedules, feeding them
// into the bot as if a user had posted them in the target channel.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	robcron "github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Entry is one scheduled prompt.
type Entry struct {
	Name     string `yaml:"name"`
	Expr     string `yaml:"cron"`
	Timezone string `yaml:"timezone,omitempty"`
	Channel  string `yaml:"channel"`
	Prompt   string `yaml:"prompt"`
}

func (e Entry) validate() error {
	if strings.TrimSpace(e.Name) == "" {
		return errors.New("name is required")
	}
	if strings.TrimSpace(e.Expr) == "" {
		return errors.New("cron is required")
	}
	if strings.TrimSpace(e.Channel) == "" {
		return errors.New("channel is required")
	}
	if strings.TrimSpace(e.Prompt) == "" {
		return errors.New("prompt is required")
	}
	return nil
}

// FireFunc delivers one scheduled prompt. The runner does not retry; a
// failing delivery is logged and waits for the next tick.
type FireFunc func(ctx context.Context, entry Entry) error

type Runner struct {
	cron   *robcron.Cron
	logger *zap.Logger
	fire   FireFunc
}

func NewRunner(entries []Entry, fire FireFunc, logger *zap.Logger) (*Runner, error) {
	if fire == nil {
		return nil, errors.New("fire callback is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	parser := robcron.NewParser(robcron.Minute | robcron.Hour | robcron.Dom | robcron.Month | robcron.Dow | robcron.Descriptor)
	c := robcron.New(robcron.WithParser(parser))
	r := &Runner{cron: c, logger: logger, fire: fire}

	for _, entry := range entries {
		if err := entry.validate(); err != nil {
			return nil, fmt.Errorf("schedule %q: %w", entry.Name, err)
		}
		schedule, err := parseWithTimezone(parser, entry.Expr, entry.Timezone)
		if err != nil {
			return nil, fmt.Errorf("schedule %q: %w", entry.Name, err)
		}
		entry := entry
		c.Schedule(schedule, robcron.FuncJob(func() { r.run(entry) }))
	}
	return r, nil
}

func parseWithTimezone(parser robcron.Parser, expr, tz string) (robcron.Schedule, error) {
	expr = strings.TrimSpace(expr)
	tz = strings.TrimSpace(tz)
	if tz != "" && !strings.HasPrefix(expr, "TZ=") && !strings.HasPrefix(expr, "@") {
		if _, err := time.LoadLocation(tz); err != nil {
			return nil, fmt.Errorf("load location %q: %w", tz, err)
		}
		expr = "TZ=" + tz + " " + expr
	}
	schedule, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("parse cron expr: %w", err)
	}
	return schedule, nil
}

func (r *Runner) run(entry Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := r.fire(ctx, entry); err != nil {
		r.logger.Warn("scheduled prompt failed",
			zap.String("name", entry.Name),
			zap.String("channel", entry.Channel),
			zap.Error(err))
		return
	}
	r.logger.Info("scheduled prompt fired", zap.String("name", entry.Name))
}

func (r *Runner) Start() {
	if r == nil || r.cron == nil {
		return
	}
	r.cron.Start()
}

// Stop halts scheduling and waits for in-flight jobs.
func (r *Runner) Stop() {
	if r == nil || r.cron == nil {
		return
	}
	<-r.cron.Stop().Done()
}
