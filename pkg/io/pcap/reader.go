// Package pcap turns captured ad-server HTTP traffic into click events.
package pcap

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"net"
	"net/http"
	"os"
	"strings"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/rotisserie/eris"

	"github.com/SohaFarhana05/AD-Click-Fraud-Detection/pkg/clicks"
	"github.com/SohaFarhana05/AD-Click-Fraud-Detection/pkg/enrich"
	clickio "github.com/SohaFarhana05/AD-Click-Fraud-Detection/pkg/io"
)

// Default request path prefixes.
const (
	DefaultClickPrefix      = "/click"
	DefaultImpressionPrefix = "/impression"
)

// Reader reads a capture file and emits one event per tracked HTTP request. A request
// starting with the click prefix counts one click, the impression prefix one impression.
type Reader struct {
	file             *os.File
	source           *pcapgo.Reader
	clickPrefix      string
	impressionPrefix string
	forwardedFor     bool
	enricher         *enrich.Enricher
}

// Option configures a Reader.
type Option func(*Reader)

// WithClickPrefix sets the request path prefix counted as a click.
func WithClickPrefix(p string) Option {
	return func(r *Reader) {
		r.clickPrefix = p
	}
}

// WithImpressionPrefix sets the request path prefix counted as an impression.
func WithImpressionPrefix(p string) Option {
	return func(r *Reader) {
		r.impressionPrefix = p
	}
}

// WithForwardedFor takes the client address from the first X-Forwarded-For entry when
// the capture was taken behind a proxy.
func WithForwardedFor(enabled bool) Option {
	return func(r *Reader) {
		r.forwardedFor = enabled
	}
}

// WithEnricher sets the enricher used for device and country. The default derives the
// device from the user agent and leaves country empty.
func WithEnricher(e *enrich.Enricher) Option {
	return func(r *Reader) {
		r.enricher = e
	}
}

// NewFileReader opens a pcap capture file.
func NewFileReader(filename string, opts ...Option) (*Reader, error) {
	file, err := os.Open(filename)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, eris.Wrapf(clicks.ErrSourceNotFound, "pcap: %s", filename)
		}
		return nil, eris.Wrapf(err, "pcap: open %s", filename)
	}

	source, err := pcapgo.NewReader(bufio.NewReader(file))
	if err != nil {
		file.Close()
		return nil, eris.Wrapf(err, "pcap: read header of %s", filename)
	}

	r := &Reader{
		file:             file,
		source:           source,
		clickPrefix:      DefaultClickPrefix,
		impressionPrefix: DefaultImpressionPrefix,
		enricher:         enrich.New(nil),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

var _ clickio.Reader = (*Reader)(nil)

// Read decodes every packet. Packets that do not start a tracked HTTP request are skipped.
func (r *Reader) Read(ctx context.Context) ([]clicks.Event, error) {
	if r.source == nil {
		return nil, eris.New("pcap: reader not initialized")
	}

	packets := gopacket.NewPacketSource(r.source, r.source.LinkType())
	packets.DecodeOptions = gopacket.DecodeOptions{Lazy: true, NoCopy: true}

	var events []clicks.Event
	for {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "pcap: read")
		}
		packet, err := packets.NextPacket()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "pcap: next packet")
		}
		if ev, ok := r.extract(packet); ok {
			events = append(events, ev)
		}
	}
	return events, nil
}

// extract converts a packet to an event when its TCP payload starts a tracked request.
func (r *Reader) extract(packet gopacket.Packet) (clicks.Event, bool) {
	tcpLayer := packet.Layer(layers.LayerTypeTCP)
	if tcpLayer == nil {
		return clicks.Event{}, false
	}
	payload := tcpLayer.(*layers.TCP).Payload
	if len(payload) == 0 {
		return clicks.Event{}, false
	}

	req, err := http.ReadRequest(bufio.NewReader(bytes.NewReader(payload)))
	if err != nil {
		return clicks.Event{}, false
	}

	var ev clicks.Event
	switch path := req.URL.Path; {
	case strings.HasPrefix(path, r.clickPrefix):
		ev.Clicks = 1
	case strings.HasPrefix(path, r.impressionPrefix):
		ev.Impressions = 1
	default:
		return clicks.Event{}, false
	}

	ev.IP = sourceIP(packet)
	if r.forwardedFor {
		if fwd := firstForwarded(req.Header.Get("X-Forwarded-For")); fwd != "" {
			ev.IP = fwd
		}
	}
	ev.Timestamp = packet.Metadata().Timestamp.UTC()
	ev.UserAgent = req.UserAgent()
	r.enricher.Fill(&ev)
	return ev, true
}

func sourceIP(packet gopacket.Packet) string {
	if l := packet.Layer(layers.LayerTypeIPv4); l != nil {
		return l.(*layers.IPv4).SrcIP.String()
	}
	if l := packet.Layer(layers.LayerTypeIPv6); l != nil {
		return l.(*layers.IPv6).SrcIP.String()
	}
	return ""
}

func firstForwarded(header string) string {
	first, _, _ := strings.Cut(header, ",")
	first = strings.TrimSpace(first)
	if net.ParseIP(first) == nil {
		return ""
	}
	return first
}

// Close releases resources.
func (r *Reader) Close() error {
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}
