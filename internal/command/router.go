package command

import (
	"context"
	"regexp"
	"runtime"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	rtsup "cronbot/internal/runtime/supervisor"
	kit "cronbot/internal/transport"
	logx "cronbot/pkg/logx"
)

type Access int

const (
	AccessEveryone Access = iota
	AccessOwnerOnly
)

const defaultTimeout = 15 * time.Second

// Route binds a pattern to a handler. The pattern must match the whole
// message (it is anchored automatically) and is case-insensitive.
type Route struct {
	Name    string
	Pattern string
	Usage   string
	Help    string
	Access  Access
	Timeout time.Duration
	Handle  HandlerFunc

	re *regexp.Regexp
}

// Request is one matched chat message.
type Request struct {
	Message kit.Message
	Chat    kit.ChatTarget
	Command string
	Match   map[string]string
	ReqID   string
	Logger  logx.Logger

	out kit.Sender
}

// Reply sends text back to the chat (and thread) the command came from.
func (r *Request) Reply(ctx context.Context, text string) error {
	_, err := r.out.SendText(ctx, r.Chat, text, &kit.SendOptions{DisablePreview: true})
	return err
}

// Router matches chat messages against routes in registration order.
type Router struct {
	log logx.Logger
	out kit.Sender

	mu     sync.RWMutex
	routes []Route
	owners []int64

	jobs chan func()
}

func NewRouter(log logx.Logger, out kit.Sender, owners []int64) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Router{
		log:    log.With(logx.String("comp", "command")),
		out:    out,
		owners: slices.Clone(owners),
		jobs:   make(chan func(), 256),
	}
}

// Handle registers a route. It panics on an invalid pattern, which is a
// programming error.
func (r *Router) Handle(rt Route) {
	rt.re = regexp.MustCompile(`(?is)^(?:` + rt.Pattern + `)$`)
	if rt.Timeout <= 0 {
		rt.Timeout = defaultTimeout
	}
	r.mu.Lock()
	r.routes = append(r.routes, rt)
	r.mu.Unlock()
}

// Routes returns the registered routes in order.
func (r *Router) Routes() []Route {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.routes)
}

// SetOwners updates the owner list used for AccessOwnerOnly checks.
// An empty list lets everyone through. Safe to call during hot-reload.
func (r *Router) SetOwners(owners []int64) {
	r.mu.Lock()
	r.owners = slices.Clone(owners)
	r.mu.Unlock()
}

func (r *Router) allowed(rt Route, from int64) bool {
	if rt.Access != AccessOwnerOnly {
		return true
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.owners) == 0 || slices.Contains(r.owners, from)
}

// match finds the first route matching text.
func (r *Router) match(text string) (Route, map[string]string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rt := range r.routes {
		sub := rt.re.FindStringSubmatch(text)
		if sub == nil {
			continue
		}
		groups := map[string]string{}
		for i, name := range rt.re.SubexpNames() {
			if name != "" && i < len(sub) {
				groups[name] = sub[i]
			}
		}
		return rt, groups, true
	}
	return Route{}, nil, false
}

// normalize strips a leading slash and a trailing @botname from the first word.
func normalize(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "/")
	head, rest, _ := strings.Cut(text, " ")
	if i := strings.IndexByte(head, '@'); i > 0 {
		head = head[:i]
	}
	if rest == "" {
		return head
	}
	return head + " " + rest
}

// Dispatch runs the route matching msg synchronously. It reports whether
// any route matched.
func (r *Router) Dispatch(ctx context.Context, msg kit.Message) bool {
	raw := strings.TrimSpace(msg.Text)
	text := normalize(raw)
	chat := kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}

	rt, groups, ok := r.match(text)
	if !ok {
		if strings.HasPrefix(raw, "/") {
			_, _ = r.out.SendText(ctx, chat, "unknown command, try help", nil)
		}
		return false
	}
	if !r.allowed(rt, msg.FromID) {
		_, _ = r.out.SendText(ctx, chat, "unauthorized", nil)
		return true
	}

	rid := newReqID()
	req := &Request{
		Message: msg,
		Chat:    chat,
		Command: rt.Name,
		Match:   groups,
		ReqID:   rid,
		Logger: r.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", msg.ChatID),
			logx.Int64("from_id", msg.FromID),
			logx.String("cmd", rt.Name),
		),
		out: r.out,
	}
	final := Chain(
		rt.Handle,
		MWPanicRecover(r.log),
		MWRequestLog(r.log),
		MWTimeout(rt.Timeout),
	)
	if err := final(ctx, req); err != nil {
		_ = req.Reply(ctx, "error: "+err.Error())
	}
	return true
}

// DispatchLoop feeds messages to a bounded worker pool until ctx is done or
// msgs is closed.
func (r *Router) DispatchLoop(ctx context.Context, msgs <-chan kit.Message) error {
	workers := max(runtime.NumCPU(), 2)

	sup := rtsup.New(ctx,
		rtsup.WithLogger(r.log),
		rtsup.WithCancelOnError(false),
	)
	r.log.Info("command dispatcher started", logx.Int("workers", workers), logx.Int("job_queue_cap", cap(r.jobs)))

	for i := 0; i < workers; i++ {
		idx := i
		sup.GoRestart("command.worker."+strconv.Itoa(idx), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job := <-r.jobs:
					job()
				}
			}
		},
			rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second),
			rtsup.WithPublishFirstError(true),
			rtsup.WithStopOnCleanExit(true),
		)
	}

	defer func() {
		// Wait briefly for workers to finish the command at hand.
		sup.Cancel()
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		r.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			select {
			case r.jobs <- func() { r.Dispatch(ctx, msg) }:
			default:
				_, _ = r.out.SendText(ctx, kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}, "busy, try again", nil)
			}
		}
	}
}
