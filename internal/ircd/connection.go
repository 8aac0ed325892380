package ircd

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc"

	"github.com/boxcat/ircd/internal/config"
	"github.com/boxcat/ircd/internal/wire"
)

// Connection is a single socket's state machine (§3.4, §4.F): it starts
// Registering, buffering NICK/USER fields until all are present, then
// becomes a Client with an owned identifier. It owns exactly one Sink,
// whose drain side is its writer goroutine.
type Connection struct {
	reg  *Registry
	cfg  *config.Config
	sock *netConn
	sink *Sink
	log  *logrus.Entry

	registered bool
	id         UserIdentifier

	// Registering-state scratch fields.
	regNick     string
	regUser     string
	regRealname string

	pingSent bool
}

// NewConnection wraps an accepted socket for the state machine. The
// caller (the accept loop, §4.H) is responsible for calling Run.
func NewConnection(conn net.Conn, reg *Registry, cfg *config.Config, log *logrus.Entry) *Connection {
	sink := NewSink(cfg.ConnectionMessageQueueLength)
	return &Connection{
		reg:  reg,
		cfg:  cfg,
		sock: newNetConn(conn, cfg.DeadTime, log),
		sink: sink,
		log:  log,
	}
}

// Run drives the connection until its socket closes, it quits, or it
// hits a fatal protocol error (§4.F terminal transitions). It blocks
// until teardown is complete, so the accept loop can safely account for
// one goroutine (or goroutine pair) per connection and know it has
// fully exited when Run returns.
func (c *Connection) Run() {
	var wg conc.WaitGroup
	wg.Go(c.writeLoop)

	c.readLoop()

	c.sink.Close()
	wg.Wait()

	if c.registered {
		c.reg.Quit(c.id.Nickname, "Connection closed")
	}
	_ = c.sock.Close()
}

// writeLoop drains the sink and serializes each Message to the socket.
// It is the connection's only writer; a write error closes the socket
// so readLoop's blocking read unblocks and Run can proceed to teardown.
func (c *Connection) writeLoop() {
	for m := range c.sink.C() {
		if err := c.sock.writeMessage(m); err != nil {
			c.log.WithError(err).Debug("write error, closing socket")
			_ = c.sock.Close()
			return
		}
	}
}

// readLoop processes inbound lines in arrival order (§5 ordering
// guarantee) and implements the idle/ping/dead timeout policy: a read
// timing out with no PING yet sent triggers one; a second timeout with
// a PING outstanding is a dead connection.
func (c *Connection) readLoop() {
	for {
		if err := c.sock.setReadDeadline(c.cfg.PingTime); err != nil {
			return
		}

		line, err := c.sock.readLine()
		if err != nil {
			if isTimeout(err) {
				if !c.pingSent {
					c.pingSent = true
					c.sink.Send(wire.Message{Command: "PING", Params: []string{c.cfg.ServerName}})
					continue
				}
				c.log.Debug("ping timeout")
				return
			}
			return
		}

		c.pingSent = false

		if line == "" {
			continue
		}

		m, err := wire.Decode(line)
		if err != nil {
			c.handleParseError(err)
			continue
		}

		if c.dispatch(m) {
			return
		}
	}
}

func isTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}

func (c *Connection) handleParseError(err error) {
	switch e := err.(type) {
	case wire.NeedMoreParamsError:
		c.reply(wire.ErrNeedMoreParams, e.Command, "Not enough parameters")
	case wire.UnrecognizedCommandError:
		c.reply(wire.ErrUnknownCommand, e.Command, "Unknown command")
	default:
		c.log.WithError(err).Debug("dropping unparsable line")
	}
}

// dispatch handles one decoded Message and reports whether the
// connection should terminate.
func (c *Connection) dispatch(m wire.Message) (terminate bool) {
	switch m.Command {
	case "NICK":
		c.handleNick(m)
	case "USER":
		c.handleUser(m)
	case "PASS":
		// Accepted and ignored pre-registration; no operator password
		// flow is modeled beyond OPER itself.
	case "PING":
		c.reply2("PONG", c.cfg.ServerName, firstParam(m))
	case "PONG":
		c.pingSent = false
	case "QUIT":
		c.handleQuit(m)
		return true
	case "JOIN":
		c.requireRegistered(m, c.handleJoin)
	case "PART":
		c.requireRegistered(m, c.handlePart)
	case "PRIVMSG":
		c.requireRegistered(m, func(m wire.Message) { c.handleSend(m, false) })
	case "NOTICE":
		c.requireRegistered(m, func(m wire.Message) { c.handleSend(m, true) })
	case "TOPIC":
		c.requireRegistered(m, c.handleTopic)
	case "MODE":
		c.requireRegistered(m, c.handleMode)
	case "WHOIS":
		c.requireRegistered(m, c.handleWhois)
	case "WHO":
		c.requireRegistered(m, c.handleWho)
	case "LUSERS":
		c.requireRegistered(m, func(wire.Message) { c.handleLusers() })
	case "MOTD":
		c.requireRegistered(m, func(wire.Message) { c.handleMotd() })
	case "OPER":
		c.requireRegistered(m, c.handleOper)
	default:
		c.reply(wire.ErrUnknownCommand, m.Command, "Unknown command")
	}
	return false
}

func (c *Connection) requireRegistered(m wire.Message, f func(wire.Message)) {
	if !c.registered {
		c.replyUnregistered()
		return
	}
	f(m)
}

func (c *Connection) replyUnregistered() {
	c.sink.Send(wire.New(wire.ErrNotRegistered, c.cfg.ServerName, "*", "You have not registered"))
}

// reply sends a numeric reply whose recipient is the caller's own
// current nick (or "*" pre-registration).
func (c *Connection) reply(code string, rest ...string) {
	nick := "*"
	if c.registered {
		nick = c.id.Nickname
	}
	c.sink.Send(wire.New(code, c.cfg.ServerName, nick, rest...))
}

func (c *Connection) reply2(command, prefix string, params ...string) {
	c.sink.Send(wire.Message{Prefix: prefix, Command: command, Params: params})
}

func firstParam(m wire.Message) string {
	if len(m.Params) == 0 {
		return ""
	}
	return m.Params[0]
}

// handleNick implements the NICK half of registration (§4.F) as well
// as post-registration renames.
func (c *Connection) handleNick(m wire.Message) {
	if len(m.Params) < 1 || m.Params[0] == "" {
		c.reply(wire.ErrNoNicknameGiven, "No nickname given")
		return
	}
	nick := m.Params[0]
	if !IsValidNick(nick) {
		c.reply(wire.ErrErroneousNickname, nick, "Erroneous nickname")
		return
	}

	if c.registered {
		channels, err := c.reg.ReplaceNick(c.id.Nickname, UserIdentifier{
			Nickname: nick, Username: c.id.Username, Realname: c.id.Realname, Hostname: c.id.Hostname,
		})
		if err != nil {
			c.reply(wire.ErrNicknameInUse, nick, "Nickname is already in use")
			return
		}
		oldPrefix := c.id.AsPrefix()
		c.id.Nickname = nick
		nickMsg := wire.Message{Prefix: oldPrefix, Command: "NICK", Params: []string{nick}}
		c.sink.Send(nickMsg)
		for _, chName := range channels {
			if ch, ok := c.reg.LookupChannel(string(chName)); ok {
				for _, s := range ch.Sinks() {
					s.Send(nickMsg)
				}
			}
		}
		return
	}

	c.regNick = nick
	c.tryCompleteRegistration()
}

// handleUser implements the USER half of registration and the
// already-registered rejection (§4.F).
func (c *Connection) handleUser(m wire.Message) {
	if c.registered {
		c.reply(wire.ErrAlreadyRegistred, "You may not reregister")
		return
	}
	if len(m.Params) < 4 {
		c.reply(wire.ErrNeedMoreParams, "USER", "Not enough parameters")
		return
	}
	if !IsValidUser(m.Params[0]) {
		return
	}
	c.regUser = m.Params[0]
	c.regRealname = m.Params[3]
	c.tryCompleteRegistration()
}

// tryCompleteRegistration transitions Registering -> Client the first
// instant both NICK and USER have been seen, in either order (§8
// property 7). On a nickname collision at this point, the nickname
// slot is cleared so the client may retry with a different NICK.
func (c *Connection) tryCompleteRegistration() {
	if c.regNick == "" || c.regUser == "" {
		return
	}

	hostname := "localhost"
	if h, _, err := net.SplitHostPort(c.sock.RemoteAddr().String()); err == nil {
		hostname = h
	}

	id := UserIdentifier{
		Nickname: c.regNick,
		Username: c.regUser,
		Realname: c.regRealname,
		Hostname: hostname,
	}

	if err := c.reg.AddUser(id, c.sink); err != nil {
		c.reply(wire.ErrNicknameInUse, c.regNick, "Nickname is already in use")
		c.regNick = ""
		return
	}

	c.registered = true
	c.id = id

	for _, msg := range WelcomeMessages(c.cfg.ServerName, c.cfg.Version, c.cfg.Network, id.Nickname, time.Now()) {
		c.sink.Send(msg)
	}
	c.handleLusers()
	c.handleMotd()
}

// handleJoin dispatches to the registry and, for every successful
// channel, emits the JOIN-echo/topic/names sequence to the joiner's own
// sink (§4.F JOIN rule).
func (c *Connection) handleJoin(m wire.Message) {
	partAll, targets, err := wire.ParseJoin(m.Params)
	if err != nil {
		c.reply(wire.ErrNeedMoreParams, "JOIN", "Not enough parameters")
		return
	}

	if partAll {
		var names []string
		for _, ch := range c.userChannels() {
			names = append(names, string(ch.Name()))
		}
		if len(names) > 0 {
			c.handlePart(wire.Message{Command: "PART", Params: []string{strings.Join(names, ",")}})
		}
		return
	}

	valid := make([]wire.JoinTarget, 0, len(targets))
	for _, t := range targets {
		if !IsValidChannel(t.Channel) {
			c.reply(wire.ErrNoSuchChannel, t.Channel, "No such channel")
			continue
		}
		valid = append(valid, t)
	}

	results := c.reg.Join(c.id, c.sink, valid)
	for _, r := range results {
		if r.Err != nil {
			switch r.Err {
			case ErrWrongKey:
				c.reply(wire.ErrBadChannelKey, string(r.Channel), "Cannot join channel (+k)")
			case ErrAlreadyIn:
				// Idempotent: nothing to do.
			default:
				c.reply(wire.ErrNoSuchChannel, string(r.Channel), "No such channel")
			}
			continue
		}

		ch, ok := c.reg.LookupChannel(string(r.Channel))
		if !ok {
			continue
		}

		c.sendNamesAndTopic(ch)
	}
}

func (c *Connection) sendNamesAndTopic(ch *Channel) {
	if topic, ok := ch.Topic(); ok {
		c.reply(wire.ReplyTopic, string(ch.Name()), topic)
	} else {
		c.reply(wire.ReplyNoTopic, string(ch.Name()), "No topic is set")
	}

	names := ch.Names()
	c.reply(wire.ReplyNamReply, "=", string(ch.Name()), strings.Join(names, " "))
	c.reply(wire.ReplyEndOfNames, string(ch.Name()), "End of /NAMES list")
}

// userChannels returns the channels the connection's own user currently
// belongs to, by asking the registry (there is no connection-local
// channel list: per Design Note "Circular references user<->channel",
// the registry is the sole owner).
func (c *Connection) userChannels() []*Channel {
	var out []*Channel
	for _, ch := range c.reg.Channels() {
		if ch.HasUser(c.id.Nickname) {
			out = append(out, ch)
		}
	}
	return out
}

func (c *Connection) handlePart(m wire.Message) {
	if len(m.Params) < 1 {
		c.reply(wire.ErrNeedMoreParams, "PART", "Not enough parameters")
		return
	}
	channels, err := wire.SplitCommaList(m.Params[0])
	if err != nil {
		c.reply(wire.ErrNeedMoreParams, "PART", "Not enough parameters")
		return
	}
	message := c.id.Nickname
	if len(m.Params) > 1 {
		message = m.Params[1]
	}

	results := c.reg.Part(c.id, channels, message)
	for _, r := range results {
		if r.Err == ErrNoSuchChannel {
			c.reply(wire.ErrNoSuchChannel, string(r.Channel), "No such channel")
		} else if r.Err == ErrNotOnChannel {
			c.reply(wire.ErrNotOnChannel, string(r.Channel), "You're not on that channel")
		}
	}
}

func (c *Connection) handleSend(m wire.Message, notice bool) {
	if len(m.Params) < 1 {
		c.reply(wire.ErrNoRecipient, "No recipient given")
		return
	}
	if len(m.Params) < 2 || m.Params[1] == "" {
		c.reply(wire.ErrNoTextToSend, "No text to send")
		return
	}

	targets, err := wire.SplitCommaList(m.Params[0])
	if err != nil {
		c.reply(wire.ErrNoRecipient, "No recipient given")
		return
	}

	results := c.reg.Send(c.id, targets, m.Params[1], notice)
	if notice {
		return // NOTICE never elicits an automatic error reply, per RFC.
	}
	for _, r := range results {
		switch r.Err {
		case nil:
		case ErrNoSuchChannel:
			c.reply(wire.ErrCannotSendToChan, r.Target, "Cannot send to channel")
		case ErrNoSuchNick:
			c.reply(wire.ErrNoSuchNick, r.Target, "No such nick/channel")
		}
	}
}

func (c *Connection) handleTopic(m wire.Message) {
	if len(m.Params) < 1 {
		c.reply(wire.ErrNeedMoreParams, "TOPIC", "Not enough parameters")
		return
	}
	ch, ok := c.reg.LookupChannel(m.Params[0])
	if !ok {
		c.reply(wire.ErrNoSuchChannel, m.Params[0], "No such channel")
		return
	}
	if !ch.HasUser(c.id.Nickname) {
		c.reply(wire.ErrNotOnChannel, m.Params[0], "You're not on that channel")
		return
	}

	if len(m.Params) == 1 {
		c.replyCurrentTopic(ch)
		return
	}

	ch.SetTopic(c.id.Nickname, m.Params[1])
	msg := wire.Message{Prefix: c.id.AsPrefix(), Command: "TOPIC", Params: []string{m.Params[0], m.Params[1]}}
	for _, s := range ch.Sinks() {
		s.Send(msg)
	}
}

func (c *Connection) replyCurrentTopic(ch *Channel) {
	if topic, ok := ch.Topic(); ok {
		c.reply(wire.ReplyTopic, string(ch.Name()), topic)
	} else {
		c.reply(wire.ReplyNoTopic, string(ch.Name()), "No topic is set")
	}
}

var channelTakesArg = map[byte]bool{'k': true, 'o': true, 'b': true}

func (c *Connection) handleMode(m wire.Message) {
	if len(m.Params) < 1 {
		c.reply(wire.ErrNeedMoreParams, "MODE", "Not enough parameters")
		return
	}
	target := m.Params[0]

	if IsValidChannel(target) {
		c.handleChannelMode(m, target)
		return
	}

	c.handleUserMode(m, target)
}

func (c *Connection) handleChannelMode(m wire.Message, target string) {
	ch, ok := c.reg.LookupChannel(target)
	if !ok {
		c.reply(wire.ErrNoSuchChannel, target, "No such channel")
		return
	}

	if len(m.Params) == 1 {
		c.reply(wire.ReplyChannelModeIs, target, ch.ModesString())
		return
	}

	changes, err := wire.ParseModeChanges(m.Params[1], m.Params[2:], channelTakesArg)
	if err != nil {
		c.reply(wire.ErrUModeUnknownFlag, "Unknown MODE flag")
		return
	}

	applied := ch.ApplyModeChanges(changes)
	msg := wire.Message{Prefix: c.id.AsPrefix(), Command: "MODE", Params: []string{target, applied}}
	for _, s := range ch.Sinks() {
		s.Send(msg)
	}
}

func (c *Connection) handleUserMode(m wire.Message, target string) {
	if canonicalizeNick(target) != canonicalizeNick(c.id.Nickname) {
		c.reply(wire.ErrUsersDontMatch, "Cannot change mode for other users")
		return
	}
	if len(m.Params) == 1 {
		modes, _ := c.reg.UserModes(c.id.Nickname)
		s := "+"
		for ch := range modes {
			s += string(ch)
		}
		c.reply(wire.ReplyUModeIs, s)
		return
	}

	modeStr := m.Params[1]
	add := true
	for i := 0; i < len(modeStr); i++ {
		switch modeStr[i] {
		case '+':
			add = true
		case '-':
			add = false
		default:
			if err := c.reg.SetUserMode(c.id.Nickname, add, modeStr[i]); err != nil {
				c.reply(wire.ErrUModeUnknownFlag, "Unknown MODE flag")
				return
			}
		}
	}
	c.sink.Send(wire.Message{Prefix: c.id.AsPrefix(), Command: "MODE", Params: []string{c.id.Nickname, modeStr}})
}

func (c *Connection) handleWhois(m wire.Message) {
	nick := m.Params[0]
	id, _, ok := c.reg.LookupUser(nick)
	if !ok {
		c.reply(wire.ErrNoSuchNick, nick, "No such nick/channel")
		return
	}
	c.reply(wire.ReplyWhoisUser, id.Nickname, id.Username, id.Hostname, "*", id.Realname)
	c.reply(wire.ReplyWhoisServer, id.Nickname, c.cfg.ServerName, c.cfg.Network)
	c.reply(wire.ReplyEndOfWhois, id.Nickname, "End of /WHOIS list")
}

func (c *Connection) handleWho(m wire.Message) {
	mask := ""
	if len(m.Params) > 0 {
		mask = m.Params[0]
	}

	if ch, ok := c.reg.LookupChannel(mask); ok {
		for _, nick := range ch.Names() {
			id, _, ok := c.reg.LookupUser(nick)
			if !ok {
				continue
			}
			c.reply(wire.ReplyWhoReply, mask, id.Username, id.Hostname, c.cfg.ServerName,
				id.Nickname, "H", "0 "+id.Realname)
		}
	}
	c.reply(wire.ReplyEndOfWho, mask, "End of /WHO list")
}

func (c *Connection) handleLusers() {
	stats := c.reg.Stats()
	for _, msg := range LusersMessages(c.cfg.ServerName, c.id.Nickname, stats) {
		c.sink.Send(msg)
	}
}

func (c *Connection) handleMotd() {
	c.reply(wire.ReplyMotdStart, fmt.Sprintf("- %s Message of the day -", c.cfg.ServerName))
	c.reply(wire.ReplyMotd, "- "+c.cfg.MOTD)
	c.reply(wire.ReplyEndOfMotd, "End of /MOTD command")
}

func (c *Connection) handleOper(m wire.Message) {
	if len(m.Params) < 2 {
		c.reply(wire.ErrNeedMoreParams, "OPER", "Not enough parameters")
		return
	}
	name, password := m.Params[0], m.Params[1]
	want, ok := c.cfg.Opers[name]
	if !ok || want != password {
		c.reply(wire.ErrPasswdMismatch, "Password incorrect")
		return
	}
	if err := c.reg.SetUserMode(c.id.Nickname, true, 'o'); err != nil {
		return
	}
	c.reply(wire.ReplyYoureOper, "You are now an IRC operator")
}

func (c *Connection) handleQuit(m wire.Message) {
	reason := "Client Quit"
	if len(m.Params) > 0 && m.Params[0] != "" {
		reason = m.Params[0]
	}
	if c.registered {
		c.reg.Quit(c.id.Nickname, reason)
		c.registered = false
	}
}
