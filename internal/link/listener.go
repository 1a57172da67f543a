package link

import (
	"errors"
	"fmt"
	"net"
	"time"

	"dev.c0redev.anidb/internal/wire"
)

// recvLoop reads replies, drives the expiry sweep off the read timeout,
// and routes each datagram by tag and response code. Malformed traffic
// is logged and dropped; it never stops the loop.
func (l *Link) recvLoop() {
	buf := make([]byte, 8192)
	for {
		l.conn.SetReadDeadline(time.Now().Add(l.cfg.Timeout))
		n, _, err := l.conn.ReadFromUDP(buf)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				l.sweep(time.Now())
				continue
			}
			select {
			case <-l.done:
			default:
				if !errors.Is(err, net.ErrClosed) {
					l.log.Println("socket read:", err)
				}
			}
			return
		}
		l.handlePacket(buf[:n])
	}
}

func (l *Link) handlePacket(data []byte) {
	plain, err := wire.Inflate(data)
	if err != nil {
		l.log.Println("dropping packet, inflate failed")
		return
	}
	resp, err := wire.ParseResponse(plain)
	if err != nil {
		l.log.Printf("dropping unparseable packet (%d bytes)", len(plain))
		return
	}
	l.log.Printf("netio < %s", plain)
	cmd, ok := l.inflight.take(resp.Tag)
	if !ok {
		// Stale, duplicate, or never-requested reply.
		l.log.Printf("discarding reply with unknown tag %q (code %d)", resp.Tag, resp.Code)
		return
	}
	l.route(cmd, resp)
}

// route classifies the response code and resolves the command: install
// the session, recover the session, back off from a ban, stop the link,
// or deliver to the caller.
func (l *Link) route(cmd *wire.Command, resp *wire.Response) {
	switch {
	case wire.IsAuthOK(resp.Code):
		key := resp.SessionKey()
		if key == "" {
			l.log.Println("auth reply without session key")
			l.fail(cmd, wire.ErrCorrupted)
			return
		}
		l.bans.reset()
		l.session.setKey(key)
		l.deliver(cmd, resp)
	case resp.Code == wire.CodeEncryptionEnabled:
		l.fail(cmd, ErrEncryptionUnsupported)
	case wire.NeedsReauth(resp.Code):
		if cmd.Name == wire.CmdAuth {
			l.dropRejectedAuth(resp)
			return
		}
		l.session.invalidate()
		l.retry(cmd, resp)
	case wire.IsBan(resp.Code):
		n := l.bans.strike()
		l.log.Printf("banned (%d consecutive): %s", n, resp.Reason())
		if cmd.Name == wire.CmdAuth {
			l.dropRejectedAuth(resp)
			return
		}
		l.session.invalidate()
		l.retry(cmd, resp)
	case wire.IsShutdown(resp.Code):
		l.deliver(cmd, resp)
		l.log.Printf("server ended the session (code %d), closing link", resp.Code)
		l.stop()
	default:
		l.deliver(cmd, resp)
	}
}

// dropRejectedAuth discards an AUTH the server refused with a
// recoverable code. AUTH is never re-enqueued: resetting the state
// machine makes the sender's gate issue the replacement, so exactly one
// AUTH is ever outstanding.
func (l *Link) dropRejectedAuth(resp *wire.Response) {
	l.log.Printf("auth rejected (code %d), reissuing", resp.Code)
	l.session.authExpired()
}

// retry re-enqueues with priority and a fresh tag, bounded so a
// persistently failing session cannot loop forever.
func (l *Link) retry(cmd *wire.Command, resp *wire.Response) {
	cmd.Retries++
	if cmd.Retries > l.cfg.MaxRetries {
		l.fail(cmd, fmt.Errorf("%w: %s kept failing with code %d", ErrRetriesExhausted, cmd.Name, resp.Code))
		return
	}
	cmd.Started = time.Time{}
	cmd.Tag = l.tags.allocate(l.inflight.has)
	if cmd.Tag == "" {
		l.fail(cmd, ErrTagSpaceFull)
		return
	}
	l.queue.push(cmd, true)
}

// sweep expires in-flight commands with no reply inside the timeout.
// An expired AUTH also resets the session so the sender reissues it.
func (l *Link) sweep(now time.Time) {
	for _, cmd := range l.inflight.expire(now, l.cfg.Timeout) {
		l.log.Printf("%s %s timed out after %s", cmd.Name, cmd.Tag, l.cfg.Timeout)
		if cmd.Name == wire.CmdAuth {
			l.session.authExpired()
		}
		if cmd.OnExpire != nil {
			cmd.OnExpire(cmd)
		} else {
			l.fail(cmd, ErrTimeout)
		}
	}
}

func (l *Link) deliver(cmd *wire.Command, resp *wire.Response) {
	if cmd.Callback != nil {
		cmd.Callback(resp, nil)
	}
}
