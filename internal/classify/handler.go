package classify

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"bytematch/internal/metrics"
	"bytematch/internal/rules"
	"bytematch/pkg/matcher"
)

// ErrNoRuleSet is returned until the first rule set compiles.
var ErrNoRuleSet = errors.New("no rule set loaded")

type Result struct {
	Action   string `json:"action"`
	By       string `json:"by"`
	Rule     int    `json:"rule"`
	Binding  string `json:"binding,omitempty"`
	Captured []byte `json:"captured,omitempty"`
	Consumed int    `json:"consumed"`
}

// Line renders the result as the one-line reply used by the TCP and UDP
// servers.
func (r Result) Line() string {
	if r.Binding == "" {
		return r.Action + "\n"
	}
	return r.Action + " " + r.Binding + "=" + strconv.Quote(string(r.Captured)) + "\n"
}

type Handler struct {
	Verbose     bool
	ReadTimeout time.Duration
	live        atomic.Pointer[compiledSet]
}

// compiledSet keeps a trie with the fold its input needs so both swap
// together.
type compiledSet struct {
	trie *matcher.Trie[string]
	set  rules.Set
}

func NewHandler(verbose bool, readTimeout time.Duration) *Handler {
	return &Handler{
		Verbose:     verbose,
		ReadTimeout: readTimeout,
	}
}

// Update compiles rs and swaps it in. On error the live rule set is kept.
func (h *Handler) Update(rs rules.Set) error {
	t, err := matcher.Compile(rs.Rules, matcher.WithLogger(log.Logger))
	if err != nil {
		metrics.CompileTotal.WithLabelValues(metrics.CompileFailed).Inc()
		return fmt.Errorf("compile rule set: %w", err)
	}
	metrics.CompileTotal.WithLabelValues(metrics.CompileOK).Inc()

	st := t.Stats()
	metrics.Rules.WithLabelValues("entries").Set(float64(st.Entries))
	metrics.Rules.WithLabelValues("nodes").Set(float64(st.Nodes))
	metrics.Rules.WithLabelValues("shadowed").Set(float64(len(t.Shadowed())))

	h.live.Store(&compiledSet{trie: t, set: rs})
	if h.Verbose {
		log.Info().Int("entries", st.Entries).Int("nodes", st.Nodes).Msg("Rule set updated successfully")
	}
	return nil
}

// Trie returns the live rule set, or nil before the first Update.
func (h *Handler) Trie() *matcher.Trie[string] {
	if live := h.live.Load(); live != nil {
		return live.trie
	}
	return nil
}

// Classify runs one match of src against the live rule set, folding the
// input the way the set's literals were folded.
func (h *Handler) Classify(src io.ByteScanner, proto string) (Result, error) {
	live := h.live.Load()
	if live == nil {
		return Result{}, ErrNoRuleSet
	}

	start := time.Now()
	s, err := live.trie.Match(live.set.Input(src))
	metrics.MatchDuration.WithLabelValues(proto).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.SourceFailures.WithLabelValues(proto).Inc()
		return Result{}, err
	}
	metrics.MatchesTotal.WithLabelValues(proto, s.By.String()).Inc()

	return Result{
		Action:   s.Action,
		By:       s.By.String(),
		Rule:     s.Rule,
		Binding:  s.Binding,
		Captured: s.Captured,
		Consumed: s.Consumed,
	}, nil
}

func (h *Handler) HandleUDP(serverConn *net.UDPConn, clientAddr *net.UDPAddr, payload []byte) {
	res, err := h.Classify(bytes.NewReader(payload), "udp")
	if err != nil {
		log.Err(err).Msgf("[UDP] %s: classification failed", clientAddr)
		return
	}

	if h.Verbose {
		log.Info().Msgf("[UDP] %s -> %s (%s)", clientAddr, res.Action, res.By)
	}

	if _, err := serverConn.WriteToUDP([]byte(res.Line()), clientAddr); err != nil {
		metrics.ErrorsTotal.WithLabelValues(metrics.ErrorTypeClientWrite, "udp").Inc()
		log.Err(err).Msg("Failed to send result to client")
	}
}

// HandleTCP classifies the connection's byte stream. The client ends the
// input by half-closing its side; the reply is one line.
func (h *Handler) HandleTCP(clientConn net.Conn) {
	defer clientConn.Close()

	if h.ReadTimeout > 0 {
		_ = clientConn.SetReadDeadline(time.Now().Add(h.ReadTimeout))
	}

	res, err := h.Classify(bufio.NewReader(clientConn), "tcp")
	if err != nil {
		log.Err(err).Msgf("[TCP] %s: classification failed", clientConn.RemoteAddr())
		return
	}

	if h.Verbose {
		log.Info().Msgf("[TCP] %s -> %s (%s, %d bytes)", clientConn.RemoteAddr(), res.Action, res.By, res.Consumed)
	}

	if _, err := io.WriteString(clientConn, res.Line()); err != nil {
		metrics.ErrorsTotal.WithLabelValues(metrics.ErrorTypeClientWrite, "tcp").Inc()
		log.Err(err).Msg("Failed to send result to client")
	}
}
