// Package dispatch runs the per-connection command loop of the fortune
// protocol.
//
// A connection moves between awaiting a line and processing it until the peer
// sends EXIT, closes the stream, or an I/O or framing error occurs. Every
// outbound line, including replies, goes through the session's queue so that
// replies and messages pushed by other connections never interleave mid-line.
package dispatch

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync/atomic"
	"unicode"

	"github.com/fortune-cookie/server/internal/fortune"
	"github.com/fortune-cookie/server/internal/session"
	"github.com/fortune-cookie/server/internal/upload"
	"github.com/pkg/errors"
	"github.com/rs/xid"
	"github.com/rs/zerolog"
)

const (
	CmdGetFortune = "GET_FORTUNE"
	CmdSend       = "SEND"
	CmdUpload     = "UPLOAD"
	CmdExit       = "EXIT"
)

// FortunePrefix marks the fortune text line. Clients key their history off it.
const FortunePrefix = "Fortune: "

const luckyNumberCount = 3

const usageHint = "Type 'GET_FORTUNE [category]' to see your future, 'SEND <ID> <msg>' to send a message to a client, " +
	"'UPLOAD' to upload a new fortune file to the fortune pool or 'EXIT' to quit."

const (
	replySendFormat   = "ERROR: Use format 'SEND <ID> <Message>'"
	replySendNotFound = "ERROR: Target ID not found."
)

// errExit ends the loop without being reported as a failure.
var errExit = errors.New("client requested exit")

// Stats counts served requests since start.
type Stats struct {
	Connections int64 `json:"connections"`
	Fortunes    int64 `json:"fortunes"`
	Messages    int64 `json:"messages"`
	Uploads     int64 `json:"uploads"`
	Uploaded    int64 `json:"uploadedRecords"`
}

type Dispatcher struct {
	registry *session.Registry
	catalog  *fortune.Catalog
	selector *fortune.Selector
	framer   *upload.Framer
	rnd      fortune.Rand
	log      zerolog.Logger

	connections atomic.Int64
	fortunes    atomic.Int64
	messages    atomic.Int64
	uploads     atomic.Int64
	uploaded    atomic.Int64
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithRand sets the random source used for selection and lucky numbers.
func WithRand(rnd fortune.Rand) Option {
	return func(d *Dispatcher) {
		d.rnd = rnd
	}
}

// WithFramer sets the upload framer.
func WithFramer(f *upload.Framer) Option {
	return func(d *Dispatcher) {
		d.framer = f
	}
}

func New(registry *session.Registry, catalog *fortune.Catalog, log zerolog.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry: registry,
		catalog:  catalog,
		rnd:      fortune.GlobalRand,
		log:      log,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.framer == nil {
		d.framer = upload.NewFramer(0)
	}
	d.selector = fortune.NewSelector(catalog, d.rnd)
	return d
}

func (d *Dispatcher) Stats() Stats {
	return Stats{
		Connections: d.connections.Load(),
		Fortunes:    d.fortunes.Load(),
		Messages:    d.messages.Load(),
		Uploads:     d.uploads.Load(),
		Uploaded:    d.uploaded.Load(),
	}
}

// conn is the state of one connection's loop.
type conn struct {
	d    *Dispatcher
	sess *session.Session
	r    *bufio.Reader
	log  zerolog.Logger
}

// Serve runs the command loop for c and closes c before returning.
func (d *Dispatcher) Serve(c net.Conn) {
	d.connections.Add(1)
	sess := d.registry.Register(c)
	h := &conn{
		d:    d,
		sess: sess,
		r:    bufio.NewReader(c),
		log: d.log.With().
			Int("session", sess.ID).
			Str("remote", remoteAddr(c)).
			Str("conn", xid.New().String()).
			Logger(),
	}
	h.log.Info().Msg("client connected")

	err := h.run()

	d.registry.Unregister(sess.ID)
	if err == nil || errors.Is(err, errExit) || errors.Is(err, upload.ErrFrameTooLarge) {
		// Let queued replies reach a peer that is still reading.
		<-sess.Done()
		c.Close()
	} else {
		c.Close()
		<-sess.Done()
	}

	switch {
	case err == nil:
		h.log.Info().Msg("client disconnected")
	case errors.Is(err, errExit):
		h.log.Info().Msg("client exited")
	default:
		h.log.Warn().Stack().Err(err).Msg("client connection closed with error")
	}
}

func (h *conn) run() error {
	if err := h.reply(fmt.Sprintf("--- Welcome to the Fortune Cookie Network! Your ID is: %d ---", h.sess.ID)); err != nil {
		return err
	}
	if err := h.reply(usageHint); err != nil {
		return err
	}

	for {
		line, readErr := h.r.ReadString('\n')
		if line = strings.TrimSpace(line); line != "" {
			if err := h.handle(line); err != nil {
				return err
			}
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return errors.Wrap(readErr, "read command failed")
		}
	}
}

func (h *conn) handle(line string) error {
	verb, rest := cutToken(line)
	switch strings.ToUpper(verb) {
	case CmdGetFortune:
		category, _ := cutToken(rest)
		return h.getFortune(category)
	case CmdSend:
		return h.send(rest)
	case CmdUpload:
		return h.upload()
	case CmdExit:
		return errExit
	default:
		h.log.Debug().Str("verb", verb).Msg("unknown command")
		return h.reply(fmt.Sprintf("ERROR: Unknown command '%s'.", verb))
	}
}

func (h *conn) getFortune(category string) error {
	pick := h.d.selector.Select(category)
	f := pick.Fortune

	nums := fortune.LuckyNumbers(h.d.rnd, luckyNumberCount)
	lucky := make([]string, len(nums))
	for i, n := range nums {
		lucky[i] = strconv.Itoa(n)
	}

	lines := []string{
		fmt.Sprintf("%s[%s] Category:%s", fortune.Icon(f.Category), strings.ToUpper(f.Rarity.String()), f.Category),
		FortunePrefix + f.Text,
		"Lucky Numbers: " + strings.Join(lucky, ","),
	}
	for _, l := range lines {
		if err := h.reply(l); err != nil {
			return err
		}
	}

	h.d.fortunes.Add(1)
	h.log.Info().
		Str("rolled", pick.Rolled.String()).
		Str("rarity", f.Rarity.String()).
		Str("category", f.Category).
		Str("requested", category).
		Msg("fortune sent")
	return nil
}

func (h *conn) send(args string) error {
	idStr, msg := cutToken(args)
	if idStr == "" || msg == "" {
		return h.reply(replySendFormat)
	}
	target, err := strconv.Atoi(idStr)
	if err != nil {
		return h.reply(replySendFormat)
	}

	err = h.d.registry.Deliver(target, fmt.Sprintf("📩 [MESSAGE FROM ID %d]: %s", h.sess.ID, msg))
	switch {
	case err == nil:
		h.d.messages.Add(1)
		h.log.Debug().Int("target", target).Msg("message delivered")
		return h.reply(fmt.Sprintf("SUCCESS: Message delivered to ID %d.", target))
	case errors.Is(err, session.ErrSessionNotFound):
		return h.reply(replySendNotFound)
	default:
		h.log.Warn().Err(err).Int("target", target).Msg("message not delivered")
		return h.reply(fmt.Sprintf("ERROR: Target ID %d is not accepting messages right now.", target))
	}
}

func (h *conn) upload() error {
	h.log.Info().Msg("upload started")
	records, err := h.d.framer.Receive(h.r)
	if err != nil {
		var sizeErr *upload.FrameSizeError
		if errors.As(err, &sizeErr) {
			// The payload is still in the stream, so the connection cannot continue.
			_ = h.reply(fmt.Sprintf("ERROR: Upload of %d bytes exceeds the %d byte limit.", sizeErr.Size, sizeErr.Limit))
		}
		return errors.Wrap(err, "receive upload failed")
	}

	size := h.d.catalog.Append(records)
	h.d.uploads.Add(1)
	h.d.uploaded.Add(int64(len(records)))
	h.log.Info().Int("records", len(records)).Int("catalog", size).Msg("upload applied")
	return h.reply(fmt.Sprintf("SUCCESS: %d new fortunes added!", len(records)))
}

// reply queues a line for this connection, waiting while the queue is full.
// A peer that stops reading stalls only its own command loop.
func (h *conn) reply(line string) error {
	if err := h.sess.Write(line); err != nil {
		return errors.Wrap(err, "queue reply failed")
	}
	return nil
}

// cutToken splits s at the first run of whitespace.
func cutToken(s string) (token, rest string) {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)
	i := strings.IndexFunc(s, unicode.IsSpace)
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimLeftFunc(s[i:], unicode.IsSpace)
}

func remoteAddr(c net.Conn) string {
	if addr := c.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}
