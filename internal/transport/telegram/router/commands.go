package router

import (
	"context"
	"runtime"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"planbot/internal/eventbus"
	kit "planbot/internal/transport"
	logx "planbot/pkg/logx"
)

type Access int

const (
	AccessEveryone Access = iota
	AccessOwnerOnly
)

type Command struct {
	// Route is a space-separated command path, e.g. "list" or "digest on".
	Route       string
	Aliases     []string // root-level aliases, e.g. ["ls"]
	Description string
	Usage       string
	Access      Access

	Timeout time.Duration // optional per-command override
	Handle  HandlerFunc
}

type CallbackHandlerFunc func(ctx context.Context, req *Request, payload string) error

// CallbackAccess controls who may trigger an inline-button callback. The
// default is owner-only; public UI callbacks opt in explicitly.
type CallbackAccess int

const (
	CallbackAccessOwnerOnly CallbackAccess = iota
	CallbackAccessEveryone
)

type CallbackRoute struct {
	Scope   string
	Action  string
	Access  CallbackAccess
	Timeout time.Duration
	Handle  CallbackHandlerFunc
}

type Request struct {
	Update  kit.Update
	Chat    kit.ChatTarget
	FromID  int64
	Path    []string // matched command path tokens
	Command string   // route, or "cb:scope:action" for callbacks
	Args    []string // tokens after the matched path
	Payload string   // raw callback payload
	ReqID   string

	Adapter     kit.Adapter
	Config      *Config
	Logger      logx.Logger
	Services    *Services
	OwnerUserID []int64
}

// Services is everything the handlers may reach through a Request.
type Services struct {
	Planner PlannerPort
	Digest  DigestPort
	Bus     eventbus.Bus

	// AppSupervisor is set by the app once started; nil in tests.
	AppSupervisor *Supervisor

	// RuntimeSupervisors exposes subsystem supervisors for /status.
	// Best-effort: entries may be missing in minimal environments.
	RuntimeSupervisors *SupervisorRegistry

	StartedAt time.Time
}

type CommandManager struct {
	mu sync.RWMutex

	root  *cmdNode
	alias map[string]*cmdNode // alias -> leaf node

	cbMu      sync.RWMutex
	callbacks map[string]map[string]CallbackRoute // scope -> action -> route

	owners []int64

	log     logx.Logger
	adapter kit.Adapter
	cfgm    *ConfigManager
	serv    *Services

	runMu   sync.Mutex
	running bool
	sup     *Supervisor

	jobs chan func()
}

func NewCommandManager(log logx.Logger, adapter kit.Adapter, cfgm *ConfigManager, serv *Services, owners []int64) *CommandManager {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &CommandManager{
		root:      newRoot(),
		alias:     map[string]*cmdNode{},
		callbacks: map[string]map[string]CallbackRoute{},
		log:       log,
		adapter:   adapter,
		cfgm:      cfgm,
		serv:      serv,
		owners:    append([]int64(nil), owners...),
		jobs:      make(chan func(), 256),
	}
}

// Supervisor returns the dispatcher's internal supervisor, nil when stopped.
func (m *CommandManager) Supervisor() *Supervisor {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if !m.running {
		return nil
	}
	return m.sup
}

func (m *CommandManager) setSupervisor(sup *Supervisor, running bool) {
	m.runMu.Lock()
	m.sup = sup
	m.running = running
	m.runMu.Unlock()
}

// tryEnqueue is panic-safe against the jobs channel being closed mid-stop.
func (m *CommandManager) tryEnqueue(fn func()) (ok bool) {
	if fn == nil {
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	select {
	case m.jobs <- fn:
		return true
	default:
		return false
	}
}

// SetOwners swaps the owner list used for AccessOwnerOnly checks. Safe during
// hot reload.
func (m *CommandManager) SetOwners(owners []int64) {
	cp := append([]int64(nil), owners...)
	m.mu.Lock()
	m.owners = cp
	m.mu.Unlock()
}

func (m *CommandManager) ownersSnapshot() []int64 {
	m.mu.RLock()
	cp := append([]int64(nil), m.owners...)
	m.mu.RUnlock()
	return cp
}

// SetRegistry installs the command tree and callback routes, injecting /help,
// and pushes the flattened list to the Telegram menu in the background.
func (m *CommandManager) SetRegistry(cmds []Command, cbs []CallbackRoute) {
	helper := Command{
		Route:       "help",
		Aliases:     []string{"h"},
		Description: "show help",
		Usage:       "/help [cmd] [sub...]",
		Access:      AccessEveryone,
		Handle: func(ctx context.Context, req *Request) error {
			text := m.helpText(req.Args)
			_, _ = req.Adapter.SendText(ctx, req.Chat, text, &kit.SendOptions{DisablePreview: true, ParseMode: "HTML"})
			return nil
		},
	}
	cmds = append(cmds, helper)

	root := newRoot()
	alias := map[string]*cmdNode{}
	menuCandidates := make([]Command, 0, len(cmds))

	for _, c := range cmds {
		route := splitRoute(c.Route)
		if len(route) == 0 || c.Handle == nil {
			continue
		}
		cc := c
		root.add(route, cc)
		menuCandidates = append(menuCandidates, cc)

		leaf := root.find(route)
		if leaf == nil {
			continue
		}
		// Auto-alias multi-token routes so Telegram autocomplete works
		// ("/digest_now" -> "digest now"). The canonical single-token name
		// itself must NOT go into the alias map: an alias hit would
		// short-circuit subcommand traversal and "/digest on" would never
		// reach the "digest on" route.
		if menu, ok := telegramCommandNameFromRoute(route); ok {
			if len(route) > 1 || menu != route[0] {
				if _, exists := alias[menu]; !exists {
					alias[menu] = leaf
				}
			}
		}
		for _, a := range c.Aliases {
			a = strings.TrimSpace(a)
			if a == "" || strings.Contains(a, " ") {
				continue
			}
			alias[a] = leaf
			if sa := sanitizeTelegramCommand(a); sa != "" {
				if _, exists := alias[sa]; !exists {
					alias[sa] = leaf
				}
			}
		}
	}

	cb := map[string]map[string]CallbackRoute{}
	for _, r := range cbs {
		scope := strings.TrimSpace(r.Scope)
		action := strings.TrimSpace(r.Action)
		if scope == "" || action == "" || r.Handle == nil {
			continue
		}
		if cb[scope] == nil {
			cb[scope] = map[string]CallbackRoute{}
		}
		cb[scope][action] = r
	}

	m.mu.Lock()
	m.root = root
	m.alias = alias
	m.mu.Unlock()

	m.cbMu.Lock()
	m.callbacks = cb
	m.cbMu.Unlock()

	if up, ok := m.adapter.(kit.CommandMenuUpdater); ok {
		menu := buildTelegramMenuCommands(root, menuCandidates)
		run := func(parent context.Context) {
			ctx, cancel := context.WithTimeout(parent, 5*time.Second)
			defer cancel()
			_ = up.UpdateMenuCommands(ctx, menu)
		}
		if m.serv != nil && m.serv.AppSupervisor != nil {
			m.serv.AppSupervisor.Go("telegram.menu.update", func(ctx context.Context) error {
				run(ctx)
				return nil
			})
		} else {
			go run(context.Background())
		}
	}
}

// DispatchLoop consumes adapter updates until ctx ends or the channel closes.
// Handlers run on a bounded worker pool so one slow command cannot stall the
// stream.
func (m *CommandManager) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	workers := runtime.NumCPU()
	if workers < 2 {
		workers = 2
	}

	sup := NewSupervisor(ctx,
		WithLogger(m.log.With(logx.String("comp", "telegram.router"))),
		WithCancelOnError(false),
	)
	m.setSupervisor(sup, true)
	if m.serv != nil && m.serv.RuntimeSupervisors != nil {
		m.serv.RuntimeSupervisors.Set("telegram.router", sup)
	}

	m.log.Info("command dispatcher started", logx.Int("workers", workers), logx.Int("job_queue_cap", cap(m.jobs)))

	var closeOnce sync.Once
	closeJobs := func() {
		closeOnce.Do(func() {
			// Flip running first so tryEnqueue degrades instead of panicking.
			m.setSupervisor(sup, false)
			close(m.jobs)
		})
	}

	for i := 0; i < workers; i++ {
		idx := i
		name := "command.worker." + strconv.Itoa(idx)
		sup.GoRestart(name, func(c context.Context) error {
			m.log.Debug("command worker started", logx.Int("worker", idx))
			defer m.log.Debug("command worker stopped", logx.Int("worker", idx))
			for {
				select {
				case <-c.Done():
					return nil
				case job, ok := <-m.jobs:
					if !ok {
						return nil
					}
					if job == nil {
						continue
					}
					// Middleware already recovers; this keeps the worker
					// alive if a job panics outside the chain.
					func() {
						defer func() {
							if r := recover(); r != nil {
								m.log.Error("panic in command job", logx.Int("worker", idx), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
							}
						}()
						job()
					}()
				}
			}
		},
			WithRestartBackoff(200*time.Millisecond, 5*time.Second),
			WithPublishFirstError(true),
			WithStopOnCleanExit(true),
		)
	}

	defer func() {
		closeJobs()
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		if m.serv != nil && m.serv.RuntimeSupervisors != nil {
			m.serv.RuntimeSupervisors.Delete("telegram.router")
		}
		m.setSupervisor(nil, false)
		m.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				m.log.Info("updates channel closed")
				return nil
			}
			m.routeUpdate(ctx, up)
		}
	}
}

func (m *CommandManager) routeUpdate(root context.Context, up kit.Update) {
	switch up.Kind {
	case kit.UpdateMessage:
		m.routeMessage(root, up)
	case kit.UpdateCallback:
		m.routeCallback(root, up)
	}
}

func (m *CommandManager) routeMessage(root context.Context, up kit.Update) {
	if up.Message == nil {
		return
	}
	msg := up.Message
	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, "/") {
		return
	}

	parts := tokenizeCommandLine(text)
	if len(parts) == 0 {
		return
	}
	word := strings.TrimPrefix(parts[0], "/")
	// Strip the bot mention ("/add@planbot").
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}
	var args []string
	if len(parts) > 1 {
		args = parts[1:]
	}

	m.mu.RLock()
	rootNode := m.root
	aliasMap := m.alias
	m.mu.RUnlock()

	if leaf, ok := aliasMap[word]; ok && leaf != nil && leaf.cmd != nil {
		cmd := *leaf.cmd
		m.enqueueCommand(root, up, cmd, splitRoute(cmd.Route), args)
		return
	}

	cur, ok := rootNode.child(word)
	if !ok {
		_, _ = m.adapter.SendText(root, kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}, "Unknown command. Try /help.", nil)
		return
	}
	path := []string{word}
	for len(args) > 0 {
		child, ok := cur.child(args[0])
		if !ok {
			break
		}
		cur = child
		path = append(path, args[0])
		args = args[1:]
	}

	// A container without its own handler answers with its help section.
	if cur.cmd == nil {
		txt := m.helpText(path)
		_, _ = m.adapter.SendText(root, kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}, txt, &kit.SendOptions{DisablePreview: true, ParseMode: "HTML"})
		return
	}

	m.enqueueCommand(root, up, *cur.cmd, path, args)
}

func (m *CommandManager) enqueueCommand(root context.Context, up kit.Update, cmd Command, path, args []string) {
	msg := up.Message
	if msg == nil {
		return
	}

	owners := m.ownersSnapshot()
	if cmd.Access == AccessOwnerOnly && !isOwner(msg.FromID, owners) {
		_, _ = m.adapter.SendText(root, kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}, "unauthorized", nil)
		return
	}

	rid := newReqID()
	reqLog := m.log.With(
		logx.String("rid", rid),
		logx.Int64("chat_id", msg.ChatID),
		logx.Int("thread_id", msg.ThreadID),
		logx.Int64("from_id", msg.FromID),
		logx.String("cmd", cmd.Route),
	)

	req := &Request{
		Update:      up,
		Chat:        kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID},
		FromID:      msg.FromID,
		Path:        path,
		Command:     cmd.Route,
		Args:        args,
		ReqID:       rid,
		Adapter:     m.adapter,
		Logger:      reqLog,
		Services:    m.serv,
		OwnerUserID: owners,
	}
	if m.cfgm != nil {
		req.Config = m.cfgm.Get()
	}

	final := Chain(
		cmd.Handle,
		MWPanicRecover(m.log),
		MWRequestLog(m.log),
		MWTimeout(cmd.Timeout),
	)

	if !m.tryEnqueue(func() { _ = final(root, req) }) {
		_, _ = m.adapter.SendText(root, req.Chat, "busy, try again", nil)
	}
}

func (m *CommandManager) routeCallback(root context.Context, up kit.Update) {
	if up.Callback == nil {
		return
	}
	cb := up.Callback
	parts := strings.SplitN(strings.TrimSpace(cb.Data), ":", 3)
	if len(parts) < 2 {
		return
	}
	scope, action := parts[0], parts[1]
	payload := ""
	if len(parts) == 3 {
		payload = parts[2]
	}

	m.cbMu.RLock()
	route, ok := m.callbacks[scope][action]
	m.cbMu.RUnlock()
	if !ok {
		return
	}

	owners := m.ownersSnapshot()
	if route.Access == CallbackAccessOwnerOnly && !isOwner(cb.FromID, owners) {
		_ = m.adapter.AnswerCallback(root, cb.ID, "forbidden")
		return
	}

	rid := newReqID()
	reqLog := m.log.With(
		logx.String("rid", rid),
		logx.Int64("chat_id", cb.ChatID),
		logx.Int("thread_id", cb.ThreadID),
		logx.Int64("from_id", cb.FromID),
		logx.String("cmd", "cb:"+scope+":"+action),
	)
	req := &Request{
		Update:      up,
		Chat:        kit.ChatTarget{ChatID: cb.ChatID, ThreadID: cb.ThreadID},
		FromID:      cb.FromID,
		Command:     "cb:" + scope + ":" + action,
		Payload:     payload,
		ReqID:       rid,
		Adapter:     m.adapter,
		Logger:      reqLog,
		Services:    m.serv,
		OwnerUserID: owners,
	}
	if m.cfgm != nil {
		req.Config = m.cfgm.Get()
	}

	h := func(ctx context.Context, r *Request) error { return route.Handle(ctx, r, payload) }
	final := Chain(
		h,
		MWPanicRecover(m.log),
		MWRequestLog(m.log),
		MWTimeout(route.Timeout),
	)

	if !m.tryEnqueue(func() {
		_ = final(root, req)
		// Best-effort: stop the client's loading spinner.
		_ = m.adapter.AnswerCallback(root, cb.ID, "")
	}) {
		_ = m.adapter.AnswerCallback(root, cb.ID, "busy")
	}
}

func isOwner(id int64, owners []int64) bool {
	for _, o := range owners {
		if o == id {
			return true
		}
	}
	return false
}
