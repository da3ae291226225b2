package command

import (
	"context"
	"fmt"
	"strings"

	"cronbot/internal/job"
	"cronbot/internal/notify"
	"cronbot/internal/scheduler"
)

// Scheduler is the part of scheduler.Service the chat commands use.
type Scheduler interface {
	AddJob(ctx context.Context, cronText string, payload job.Payload, alias string) (job.Job, error)
	ListJobs(ctx context.Context, alias string) ([]scheduler.Summary, error)
	RemoveJob(ctx context.Context, id string) (bool, error)
	PauseJob(ctx context.Context, id string) (bool, error)
	ResumeJob(ctx context.Context, id string) (bool, error)
	Stores() []string
}

var _ Scheduler = (*scheduler.Service)(nil)

// RegisterCron installs the job management commands and help.
func RegisterCron(r *Router, s Scheduler) {
	r.Handle(Route{
		Name:    "add job",
		Pattern: `add job(?: in (?P<store>[\w.-]+))? "(?P<schedule>[^"]+)" (?P<body>.+)`,
		Usage:   `add job [in <store>] "<cron>" <message>`,
		Help:    "schedule a message",
		Access:  AccessOwnerOnly,
		Handle: func(ctx context.Context, req *Request) error {
			payload := job.Payload{
				Message: strings.TrimSpace(req.Match["body"]),
				Extra: map[string]any{
					notify.ExtraChatID: req.Chat.ChatID,
				},
			}
			if req.Chat.ThreadID != 0 {
				payload.Extra[notify.ExtraThreadID] = req.Chat.ThreadID
			}
			j, err := s.AddJob(ctx, req.Match["schedule"], payload, req.Match["store"])
			if err != nil {
				return req.Reply(ctx, "Could not create job: "+err.Error())
			}
			return req.Reply(ctx, fmt.Sprintf("Job %s created.", j.ID))
		},
	})

	r.Handle(Route{
		Name:    "list jobs",
		Pattern: `list jobs(?: in (?P<store>[\w.-]+))?`,
		Usage:   "list jobs [in <store>]",
		Help:    "show scheduled jobs",
		Handle: func(ctx context.Context, req *Request) error {
			jobs, err := s.ListJobs(ctx, req.Match["store"])
			if err != nil {
				return err
			}
			if len(jobs) == 0 {
				return req.Reply(ctx, "No jobs.")
			}
			lines := make([]string, 0, len(jobs))
			for _, j := range jobs {
				lines = append(lines, j.String())
			}
			return req.Reply(ctx, strings.Join(lines, "\n"))
		},
	})

	r.Handle(Route{
		Name:    "list stores",
		Pattern: `list stores`,
		Usage:   "list stores",
		Help:    "show job store aliases",
		Handle: func(ctx context.Context, req *Request) error {
			return req.Reply(ctx, strings.Join(s.Stores(), "\n"))
		},
	})

	byID := func(name, verb string, op func(context.Context, string) (bool, error)) Route {
		return Route{
			Name:    name,
			Pattern: name + ` (?P<id>\S+)`,
			Usage:   name + " <id>",
			Help:    verb + " a job",
			Access:  AccessOwnerOnly,
			Handle: func(ctx context.Context, req *Request) error {
				id := req.Match["id"]
				ok, err := op(ctx, id)
				if err != nil {
					return err
				}
				if !ok {
					return req.Reply(ctx, fmt.Sprintf("Job %s not found.", id))
				}
				return req.Reply(ctx, fmt.Sprintf("Job %s %sd.", id, verb))
			},
		}
	}
	r.Handle(byID("remove job", "remove", s.RemoveJob))
	r.Handle(byID("delete job", "remove", s.RemoveJob))
	r.Handle(byID("pause job", "pause", s.PauseJob))
	r.Handle(byID("resume job", "resume", s.ResumeJob))

	r.Handle(Route{
		Name:    "help",
		Pattern: `help|start`,
		Usage:   "help",
		Help:    "show this message",
		Handle: func(ctx context.Context, req *Request) error {
			return req.Reply(ctx, helpText(r.Routes()))
		},
	})
}

func helpText(routes []Route) string {
	var b strings.Builder
	b.WriteString("Commands:")
	for _, rt := range routes {
		if rt.Usage == "" {
			continue
		}
		fmt.Fprintf(&b, "\n  %s - %s", rt.Usage, rt.Help)
		if rt.Access == AccessOwnerOnly {
			b.WriteString(" (owner)")
		}
	}
	return b.String()
}
