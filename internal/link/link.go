// Package link implements the AniDB UDP API link layer: a paced,
// tag-multiplexed, auto-authenticating request pipe over one socket.
//
// One sender goroutine owns all transmissions and one receiver goroutine
// owns all socket reads. They meet only at the outbound queue, the
// in-flight table, and the session state machine; commands are handed
// over whole, never shared while mutable.
package link

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"strconv"
	"sync"
	"time"

	"dev.c0redev.anidb/internal/wire"
)

var (
	ErrClosed                = errors.New("link closed")
	ErrTimeout               = errors.New("request timed out")
	ErrMustAuth              = errors.New("command requires a session")
	ErrEncryptionUnsupported = errors.New("server demanded encryption, which is not supported")
	ErrRetriesExhausted      = errors.New("retries exhausted")
	ErrTagSpaceFull          = errors.New("no free correlation tags")
)

// Config for a Link. Zero values get the documented defaults.
type Config struct {
	Username string
	Password string

	Host      string // default api.anidb.net
	Port      int    // default 9000
	LocalPort int    // default 0 (kernel-assigned)

	// Timeout bounds both the per-request reply wait and the socket
	// read deadline that drives the expiry sweep. Default 20s.
	Timeout time.Duration

	// Registered client identity sent with AUTH.
	Client        string // default adbb
	ClientVersion int    // default 2
	ProtoVersion  int    // default 3

	// MaxRetries caps automatic priority retries (session-expired and
	// ban recovery) per command. Default 2.
	MaxRetries int

	Logger *log.Logger // default log.Default()
}

func (c *Config) applyDefaults() {
	if c.Host == "" {
		c.Host = "api.anidb.net"
	}
	if c.Port == 0 {
		c.Port = 9000
	}
	if c.Timeout == 0 {
		c.Timeout = 20 * time.Second
	}
	if c.Client == "" {
		c.Client = "adbb"
	}
	if c.ClientVersion == 0 {
		c.ClientVersion = 2
	}
	if c.ProtoVersion == 0 {
		c.ProtoVersion = 3
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 2
	}
	if c.Logger == nil {
		c.Logger = log.Default()
	}
}

// Link is one client instance: socket, queue, session, and the two
// loops. Construct with New, stop with Close.
type Link struct {
	cfg      Config
	conn     *net.UDPConn
	server   *net.UDPAddr
	queue    *sendQueue
	inflight *inflightTable
	tags     *tagAllocator
	session  *session
	pace     *pacer
	bans     *banState
	log      *log.Logger

	done         chan struct{}
	stopped      chan struct{} // sender and receiver both exited
	shutdownOnce sync.Once
}

// New resolves the server, binds the local socket, and starts the
// sender and receiver loops. Authentication happens lazily on the first
// command that needs it.
func New(cfg Config) (*Link, error) {
	cfg.applyDefaults()
	server, err := net.ResolveUDPAddr("udp", net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)))
	if err != nil {
		return nil, fmt.Errorf("resolve server: %w", err)
	}
	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: cfg.LocalPort})
	if err != nil {
		return nil, fmt.Errorf("bind local port: %w", err)
	}
	l := &Link{
		cfg:      cfg,
		conn:     conn,
		server:   server,
		queue:    newSendQueue(),
		inflight: newInflightTable(),
		tags:     &tagAllocator{},
		session:  newSession(),
		pace:     &pacer{},
		bans:     &banState{},
		log:      cfg.Logger,
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	go l.run()
	return l, nil
}

// stop tears the link down: wakes every blocked path and closes the
// socket so both loops exit. Idempotent.
func (l *Link) stop() {
	l.shutdownOnce.Do(func() {
		close(l.done)
		l.session.close()
		l.queue.close()
		l.conn.Close()
	})
}

func (l *Link) run() {
	recvDone := make(chan struct{})
	go func() {
		l.recvLoop()
		close(recvDone)
	}()
	l.sendLoop()
	<-recvDone
	for _, c := range l.queue.drain() {
		l.fail(c, ErrClosed)
	}
	for _, c := range l.inflight.drain() {
		l.fail(c, ErrClosed)
	}
	close(l.stopped)
}

// Send enqueues a command. prio puts it ahead of normal traffic. The
// command's callback (or expiry handler) fires exactly once, from the
// receiver goroutine. Ban recovery can delay completion for hours; see
// the package docs.
func (l *Link) Send(cmd *wire.Command, prio bool) error {
	select {
	case <-l.done:
		return ErrClosed
	default:
	}
	if cmd.Name == wire.CmdAuth {
		return errors.New("AUTH is issued by the link itself")
	}
	tag := l.tags.allocate(l.inflight.has)
	if tag == "" {
		return ErrTagSpaceFull
	}
	cmd.Tag = tag
	l.queue.push(cmd, prio)
	return nil
}

type result struct {
	resp *wire.Response
	err  error
}

// Do sends cmd and blocks until it resolves. The context only abandons
// the wait; an already-transmitted command is not recalled.
func (l *Link) Do(ctx context.Context, cmd *wire.Command) (*wire.Response, error) {
	ch := make(chan result, 1)
	cmd.Callback = func(r *wire.Response, err error) { ch <- result{r, err} }
	cmd.OnExpire = func(*wire.Command) { ch <- result{nil, ErrTimeout} }
	if err := l.Send(cmd, false); err != nil {
		return nil, err
	}
	select {
	case r := <-ch:
		return r.resp, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close logs out if a session is live, then stops both loops. Safe to
// call more than once.
func (l *Link) Close() error {
	select {
	case <-l.done:
		<-l.stopped
		return nil
	default:
	}
	if l.session.ready() {
		done := make(chan struct{})
		logout := wire.Logout()
		logout.Callback = func(*wire.Response, error) { close(done) }
		logout.OnExpire = func(*wire.Command) { close(done) }
		if err := l.Send(logout, false); err == nil {
			select {
			case <-done:
			case <-time.After(2 * l.cfg.Timeout):
				l.log.Println("logout not confirmed, closing anyway")
			case <-l.done:
			}
		}
	}
	l.stop()
	<-l.stopped
	return nil
}

// sendLoop pops, gates on the session, paces, and transmits. It is the
// only writer to the socket. A popped command that needs a session goes
// back to the head of its class while authentication runs, so priority
// retries enqueued meanwhile are still served first.
func (l *Link) sendLoop() {
	for {
		cmd, prio, ok := l.queue.pop()
		if !ok {
			return
		}
		var key string
		if cmd.NeedsSession() {
			// Read the key once. The receiver may invalidate it at any
			// moment; an empty key means wait for reauth, never fail.
			if key = l.session.currentKey(); key == "" {
				l.queue.requeue(cmd, prio)
				if err := l.awaitSession(); err != nil {
					continue // closed; next pop reports it
				}
				continue
			}
		}
		if err := l.transmit(cmd, key); err != nil {
			if !errors.Is(err, ErrClosed) {
				l.fail(cmd, err)
			} else {
				l.queue.requeue(cmd, prio) // drained and failed in run
			}
			continue
		}
		if cmd.Name == wire.CmdLogout {
			return
		}
	}
}

// awaitSession blocks until the session is authenticated, issuing the
// AUTH request itself when it wins the unauthed->authing transition.
// AUTH bypasses the queue: nothing else may precede it on the wire.
func (l *Link) awaitSession() error {
	for {
		state, _, changed := l.session.snapshot()
		switch state {
		case stateAuthed:
			return nil
		case stateClosed:
			return ErrClosed
		case stateUnauthed:
			if l.session.beginAuth() {
				if err := l.transmit(l.authCommand(), ""); err != nil {
					l.session.authExpired()
					if errors.Is(err, ErrClosed) {
						return err
					}
					l.log.Println("auth send:", err)
				}
				continue
			}
		}
		select {
		case <-changed:
		case <-l.done:
			return ErrClosed
		}
	}
}

func (l *Link) authCommand() *wire.Command {
	cmd := wire.Auth(wire.AuthArgs{
		Username:      l.cfg.Username,
		Password:      l.cfg.Password,
		Client:        l.cfg.Client,
		ClientVersion: l.cfg.ClientVersion,
		ProtoVersion:  l.cfg.ProtoVersion,
	})
	cmd.Tag = l.tags.allocate(l.inflight.has)
	cmd.Callback = func(resp *wire.Response, err error) {
		if err != nil {
			l.log.Println("auth:", err)
		}
	}
	return cmd
}

// transmit serves any pending ban backoff, paces, stamps, authorizes,
// sends, and registers the command in the in-flight table.
func (l *Link) transmit(cmd *wire.Command, session string) error {
	if d, banned := l.bans.takePending(); banned {
		l.log.Printf("banned, suspending sends for %s", d)
		if !l.sleep(d) {
			return ErrClosed
		}
		l.log.Println("ban backoff elapsed, resuming")
	}
	if d := l.pace.delay(time.Now()); d > 0 {
		if !l.sleep(d) {
			return ErrClosed
		}
	}
	select {
	case <-l.done:
		return ErrClosed
	default:
	}
	if cmd.NeedsSession() && session == "" {
		// Ordering bug in the caller, not a transport failure.
		return ErrMustAuth
	}
	if cmd.Tag == "" || !l.inflight.insert(cmd) {
		cmd.Tag = l.tags.allocate(l.inflight.has)
		if cmd.Tag == "" || !l.inflight.insert(cmd) {
			return ErrTagSpaceFull
		}
	}
	now := time.Now()
	cmd.Started = now
	l.pace.recordSend(now)
	data := cmd.Encode(session)
	if cmd.Name == wire.CmdAuth {
		l.log.Printf("netio > AUTH tag=%s (credentials not logged)", cmd.Tag)
	} else {
		l.log.Printf("netio > %s", data)
	}
	if _, err := l.conn.WriteToUDP(data, l.server); err != nil {
		l.inflight.take(cmd.Tag)
		return fmt.Errorf("send %s: %w", cmd.Name, err)
	}
	return nil
}

// sleep waits d unless the link shuts down first.
func (l *Link) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-l.done:
		return false
	}
}

func (l *Link) fail(cmd *wire.Command, err error) {
	if cmd.Callback != nil {
		cmd.Callback(nil, err)
	}
}
