package insteon

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/GoAethereal/cancel"
)

// Session owns the transport, the pacer and the device registry for one
// PLM connection, and exposes the command verbs of spec.md §4.5 as
// concrete methods (the explicit-façade re-architecture of spec.md §9's
// dynamic attribute forwarding).
//
// Grounded on GoAethereal-modbus/client.go's Client: a central Request
// method that encodes, paces, writes and awaits a matching reply, with
// typed verb methods built on top of it.
type Session struct {
	cfg Config
	log *log.Logger

	registry *Registry
	bucket   *TokenBucket

	conn        connection
	dec         Decoder
	listenStop  context.CancelFunc
	listenDone  <-chan struct{}

	ready     chan struct{}
	readyOnce sync.Once

	closed    chan struct{}
	closeOnce sync.Once
	closeErr  error
	onClose   func(error)

	reqMu   mutex
	pendMu  sync.Mutex
	pending chan Frame

	allLinkMu sync.Mutex
	allLink   chan AllLinkRecord
}

// NewSession constructs a Session from a verified Config. logger may be
// nil, in which case log records are discarded (matching
// GoAethereal-modbus's own optional-logger convention).
func NewSession(cfg Config, logger *log.Logger) (*Session, error) {
	if err := cfg.Verify(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.New(discardWriter{}, "", 0)
	}
	return &Session{
		cfg:      cfg,
		log:      logger,
		registry: &Registry{},
		bucket:   NewTokenBucket(cfg.TokenRate, cfg.BucketSize, cfg.TokenCost, true),
		ready:    make(chan struct{}),
		closed:   make(chan struct{}),
		reqMu:    newMutex(),
	}, nil
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

// Start dials the configured transport, attaches the frame decoder to
// the byte stream and starts the pacer's writer loop. Start returns once
// the transport is dialed; callers await actual protocol readiness via
// Ready().
func (s *Session) Start(ctx context.Context) error {
	cctx, ccancel := cancel.Promote(ctx)
	defer ccancel()
	conn, err := s.cfg.dial(cctx)
	if err != nil {
		return err
	}
	s.conn = conn

	stop, done := conn.listen(ctx, s.onChunk)
	s.listenStop = stop
	s.listenDone = done

	go conn.read(ctx, make([]byte, 256))
	go s.writeLoop(ctx)
	s.bucket.Resume()
	s.markReady()
	return nil
}

// Ready returns a channel closed once the decoder has successfully
// attached to the byte stream (spec.md §4.5).
func (s *Session) Ready() <-chan struct{} {
	return s.ready
}

// Closed returns a channel closed once the session has torn down
// following a TransportError.
func (s *Session) Closed() <-chan struct{} {
	return s.closed
}

// Err returns the error that caused the session to close, if any.
func (s *Session) Err() error {
	return s.closeErr
}

// OnClosed registers a callback invoked exactly once when the session
// tears down (spec.md §7's "explicit on_closed callback").
func (s *Session) OnClosed(fn func(error)) {
	s.onClose = fn
}

// Device returns the per-address handle for addr, creating it on first
// use (spec.md §6: "session.device(address)").
func (s *Session) Device(addr Address) *Device {
	return s.registry.GetOrCreate(addr)
}

// Close tears the session down: stops the listener, closes the
// transport and fails every waiter in the pacer.
func (s *Session) Close() error {
	s.fail(nil)
	if s.listenStop != nil {
		s.listenStop()
	}
	s.bucket.Close()
	if s.conn != nil {
		return s.conn.close()
	}
	return nil
}

func (s *Session) fail(err error) {
	s.closeOnce.Do(func() {
		s.closeErr = err
		close(s.closed)
		s.bucket.Pause()
		if s.onClose != nil {
			s.onClose(err)
		}
	})
}

func (s *Session) markReady() {
	s.readyOnce.Do(func() {
		close(s.ready)
	})
}

func (s *Session) awaitReady(ctx context.Context) error {
	select {
	case <-s.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.closed:
		if s.closeErr != nil {
			return s.closeErr
		}
		return ErrNotReady
	}
}

// writeLoop pulls paced items off the bucket and writes them to the
// transport, implementing the C3→C6 leg of spec.md §2's outbound data
// flow.
func (s *Session) writeLoop(ctx context.Context) {
	for {
		item, err := s.bucket.Get(ctx)
		if err != nil {
			return
		}
		if err := s.conn.write(ctx, item.([]byte)); err != nil {
			s.fail(&TransportError{Err: err})
			return
		}
	}
}

// onChunk is the connection listener callback: it feeds raw bytes to the
// decoder and dispatches every complete frame produced.
func (s *Session) onChunk(chunk []byte, err error) (quit bool) {
	if err != nil {
		s.fail(&TransportError{Err: err})
		return true
	}
	frames, ferr := s.dec.Feed(chunk)
	if ferr != nil {
		s.log.Printf("insteon: %v", ferr)
	}
	for _, f := range frames {
		s.dispatch(f)
	}
	return false
}

// dispatch routes one decoded frame: host-echoes resolve the in-flight
// Request, device reports update the registry, matching spec.md §2's
// inbound data flow and §4.4's dispatch table.
func (s *Session) dispatch(f Frame) {
	switch v := f.(type) {
	case SendEcho:
		if v.Ack && v.Cmd1 == 0x19 {
			dev := s.registry.GetOrCreate(v.To)
			if _, err := dev.Arm(Expectation{Flags: v.Flags, Cmd1: v.Cmd1, Cmd2: v.Cmd2}, s.cfg.expectationTimeout()); err != nil {
				s.log.Printf("insteon: %v", err)
			}
		}
		s.resolvePending(v)

	case IMInfo:
		s.resolvePending(v)

	case AllLinkRecordEcho:
		s.resolvePending(v)

	case AllLinkRecord:
		s.deliverAllLink(v)

	case ReceiveStandard:
		dev := s.registry.GetOrCreate(v.From)
		report := dev.Dispatch(v.To, v.Flags, v.Cmd1, v.Cmd2, nil)
		s.logReport(v.From, report)

	case ReceiveExtended:
		dev := s.registry.GetOrCreate(v.From)
		report := dev.Dispatch(v.To, v.Flags, v.Cmd1, v.Cmd2, v.UserData[:])
		s.logReport(v.From, report)
	}
}

func (s *Session) logReport(from Address, report DeviceReport) {
	switch report.Kind {
	case ReportGroupOn:
		s.log.Printf("insteon: %s: group %d on", from, report.Group)
	case ReportGroupOnCleanup:
		s.log.Printf("insteon: %s: group %d on (cleanup)", from, report.Group)
	case ReportGroupOff:
		s.log.Printf("insteon: %s: group %d off", from, report.Group)
	case ReportGroupOffCleanup:
		s.log.Printf("insteon: %s: group %d off (cleanup)", from, report.Group)
	case ReportSetButtonPressed:
		s.log.Printf("insteon: %s: set-button pressed, category %02x.%02x.%02x", from, report.Category, report.Subcategory, report.Firmware)
	case ReportProductData:
		s.log.Printf("insteon: %s: product data %02x.%02x.%02x", from, report.Category, report.Subcategory, report.Firmware)
	case ReportStatus:
		s.log.Printf("insteon: %s: status db_delta=%#02x level=%d%%", from, report.DBDelta, report.Percent)
	}
}

func (s *Session) setPending(ch chan Frame) {
	s.pendMu.Lock()
	s.pending = ch
	s.pendMu.Unlock()
}

func (s *Session) clearPending() {
	s.pendMu.Lock()
	s.pending = nil
	s.pendMu.Unlock()
}

func (s *Session) resolvePending(f Frame) {
	s.pendMu.Lock()
	ch := s.pending
	s.pendMu.Unlock()
	if ch == nil {
		return
	}
	select {
	case ch <- f:
	default:
	}
}

func (s *Session) setAllLinkChan(ch chan AllLinkRecord) {
	s.allLinkMu.Lock()
	s.allLink = ch
	s.allLinkMu.Unlock()
}

func (s *Session) clearAllLinkChan() {
	s.allLinkMu.Lock()
	s.allLink = nil
	s.allLinkMu.Unlock()
}

func (s *Session) deliverAllLink(rec AllLinkRecord) {
	s.allLinkMu.Lock()
	ch := s.allLink
	s.allLinkMu.Unlock()
	if ch == nil {
		return
	}
	select {
	case ch <- rec:
	default:
	}
}

// Request encodes f, admits it to the pacer, and blocks for the matching
// PLM echo. Only one Request is in flight on the wire at a time: the
// PLM itself has no concurrent command pipeline, so submissions are
// serialized with reqMu (spec.md §5's single-outstanding-expectation
// rule extended to the echo round-trip itself).
func (s *Session) Request(ctx context.Context, f Frame) (Frame, error) {
	if err := s.awaitReady(ctx); err != nil {
		return nil, err
	}
	if err := s.reqMu.lock(ctx); err != nil {
		return nil, err
	}
	defer s.reqMu.unlock()

	encoded, err := Encode(f)
	if err != nil {
		return nil, err
	}

	replyCh := make(chan Frame, 1)
	s.setPending(replyCh)
	defer s.clearPending()

	if err := s.bucket.Put(ctx, encoded); err != nil {
		return nil, err
	}

	select {
	case reply := <-replyCh:
		return reply, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.closed:
		if s.closeErr != nil {
			return nil, s.closeErr
		}
		return nil, ErrNotReady
	}
}

func (s *Session) sendStandard(ctx context.Context, addr Address, flags MessageFlags, cmd1, cmd2 byte) (SendEcho, error) {
	reply, err := s.Request(ctx, SendStandard{To: addr, Flags: flags, Cmd1: cmd1, Cmd2: cmd2})
	if err != nil {
		return SendEcho{}, err
	}
	echo, ok := reply.(SendEcho)
	if !ok {
		return SendEcho{}, &TransportError{Err: fmt.Errorf("unexpected reply frame %T for send", reply)}
	}
	if !echo.Ack {
		return echo, &PlmNakError{Cmd1: cmd1}
	}
	return echo, nil
}

// resolveFlags returns flags if non-nil, else spec.md §4.5's default
// flags (Direct, max hops 3, hops left 3, not extended).
func resolveFlags(flags *MessageFlags) MessageFlags {
	if flags != nil {
		return *flags
	}
	return DefaultFlags()
}

// SendOn sends an On command. level is the requested brightness (0xff
// for full on); flags may be nil to use spec.md §4.5's defaults.
func (s *Session) SendOn(ctx context.Context, addr Address, level byte, flags *MessageFlags) error {
	_, err := s.sendStandard(ctx, addr, resolveFlags(flags), 0x11, level)
	return err
}

// SendOff sends an Off command.
func (s *Session) SendOff(ctx context.Context, addr Address, flags *MessageFlags) error {
	_, err := s.sendStandard(ctx, addr, resolveFlags(flags), 0x13, 0x00)
	return err
}

// SendFastOff sends a Fast Off command.
func (s *Session) SendFastOff(ctx context.Context, addr Address, flags *MessageFlags) error {
	_, err := s.sendStandard(ctx, addr, resolveFlags(flags), 0x14, 0x00)
	return err
}

// SendBright sends a (single-step) Brighten command.
func (s *Session) SendBright(ctx context.Context, addr Address, flags *MessageFlags) error {
	_, err := s.sendStandard(ctx, addr, resolveFlags(flags), 0x15, 0x00)
	return err
}

// SendDim sends a (single-step) Dim command.
func (s *Session) SendDim(ctx context.Context, addr Address, flags *MessageFlags) error {
	_, err := s.sendStandard(ctx, addr, resolveFlags(flags), 0x16, 0x00)
	return err
}

// SendStartManualChange begins a manual brighten (bright=true) or dim
// (bright=false) ramp.
func (s *Session) SendStartManualChange(ctx context.Context, addr Address, bright bool, flags *MessageFlags) error {
	cmd2 := byte(0x00)
	if bright {
		cmd2 = 0x01
	}
	_, err := s.sendStandard(ctx, addr, resolveFlags(flags), 0x17, cmd2)
	return err
}

// SendStopManualChange ends a manual brighten/dim ramp.
func (s *Session) SendStopManualChange(ctx context.Context, addr Address, flags *MessageFlags) error {
	_, err := s.sendStandard(ctx, addr, resolveFlags(flags), 0x18, 0x00)
	return err
}

// SendStatusRequest requests a device's current on-level. It blocks for
// the echo and, if the PLM acknowledges, for the asynchronous ACK of
// Direct that actually carries the status (spec.md §4.4's 0x19 case),
// returning its DeviceReport. It returns an EncodingError without sending
// if the device already has an outstanding expectation. kplLed selects
// the KeypadLinc LED-state
// variant of the request (cmd2=0x01) over the plain variant (cmd2=0x00).
func (s *Session) SendStatusRequest(ctx context.Context, addr Address, kplLed bool) (DeviceReport, error) {
	cmd2 := byte(0x00)
	if kplLed {
		cmd2 = 0x01
	}
	dev := s.registry.GetOrCreate(addr)
	if _, busy := dev.Pending(); busy {
		return DeviceReport{}, &EncodingError{Reason: "expectation already outstanding for " + addr.String()}
	}
	if _, err := s.sendStandard(ctx, addr, DefaultFlags(), 0x19, cmd2); err != nil {
		return DeviceReport{}, err
	}
	resolved, ok := dev.Pending()
	if !ok {
		return DeviceReport{}, &EncodingError{Reason: "status expectation not armed for " + addr.String()}
	}
	select {
	case res := <-resolved:
		return res.Report, res.Err
	case <-ctx.Done():
		return DeviceReport{}, ctx.Err()
	case <-s.closed:
		if s.closeErr != nil {
			return DeviceReport{}, s.closeErr
		}
		return DeviceReport{}, ErrNotReady
	}
}

// SendIDRequest asks a device to broadcast its Set Button Pressed
// identity message.
func (s *Session) SendIDRequest(ctx context.Context, addr Address, flags *MessageFlags) error {
	_, err := s.sendStandard(ctx, addr, resolveFlags(flags), 0x10, 0x00)
	return err
}

// SendPing pings a device.
func (s *Session) SendPing(ctx context.Context, addr Address, flags *MessageFlags) error {
	_, err := s.sendStandard(ctx, addr, resolveFlags(flags), 0x0f, 0x00)
	return err
}

// SendGetEngineVersion requests a device's Insteon engine version.
func (s *Session) SendGetEngineVersion(ctx context.Context, addr Address, flags *MessageFlags) error {
	_, err := s.sendStandard(ctx, addr, resolveFlags(flags), 0x0d, 0x00)
	return err
}

// SendProductDataRequest asks a device to reply with its extended
// product data (category/subcategory/firmware), handled by
// Device.Dispatch's cmd1=0x03/cmd2=0x00 case.
func (s *Session) SendProductDataRequest(ctx context.Context, addr Address, flags *MessageFlags) error {
	_, err := s.sendStandard(ctx, addr, resolveFlags(flags), 0x03, 0x00)
	return err
}

// SendFxNameRequest asks a device to reply with its FX username string.
func (s *Session) SendFxNameRequest(ctx context.Context, addr Address, flags *MessageFlags) error {
	_, err := s.sendStandard(ctx, addr, resolveFlags(flags), 0x03, 0x01)
	return err
}

// SendDeviceTextStringRequest asks a device to reply with its text
// string.
func (s *Session) SendDeviceTextStringRequest(ctx context.Context, addr Address, flags *MessageFlags) error {
	_, err := s.sendStandard(ctx, addr, resolveFlags(flags), 0x03, 0x02)
	return err
}

// SendGetIMInfo requests the PLM's own identity.
func (s *Session) SendGetIMInfo(ctx context.Context) (IMInfo, error) {
	reply, err := s.Request(ctx, GetIMInfo{})
	if err != nil {
		return IMInfo{}, err
	}
	info, ok := reply.(IMInfo)
	if !ok {
		return IMInfo{}, &TransportError{Err: fmt.Errorf("unexpected reply frame %T for GetIMInfo", reply)}
	}
	if !info.Ack {
		return info, &PlmNakError{Cmd1: 0x60}
	}
	return info, nil
}

// GetAllLinkDatabase walks the PLM's all-link database: GetFirstAllLink,
// then GetNextAllLink once per returned AllLinkRecord, until the PLM
// NAKs a GetNextAllLink, at which point the accumulated records are
// returned with a nil error (an empty or short table is not a fault).
//
// Grounded on original_source/insteon/__init__.py's
// receiveAllLinkRecordEcho/receiveAllLinkRecord walk, restored per
// SPEC_FULL.md §4.5.
func (s *Session) GetAllLinkDatabase(ctx context.Context) ([]AllLinkRecord, error) {
	if err := s.reqMu.lock(ctx); err != nil {
		return nil, err
	}
	defer s.reqMu.unlock()

	recCh := make(chan AllLinkRecord, 1)
	s.setAllLinkChan(recCh)
	defer s.clearAllLinkChan()

	echo, err := s.requestAllLink(ctx, GetFirstAllLink{})
	if err != nil {
		return nil, err
	}

	var records []AllLinkRecord
	for echo.Ack {
		select {
		case rec := <-recCh:
			records = append(records, rec)
		case <-ctx.Done():
			return records, ctx.Err()
		case <-s.closed:
			if s.closeErr != nil {
				return records, s.closeErr
			}
			return records, ErrNotReady
		}
		echo, err = s.requestAllLink(ctx, GetNextAllLink{})
		if err != nil {
			return records, err
		}
	}
	return records, nil
}

// requestAllLink submits a GetFirstAllLink/GetNextAllLink frame without
// going through Request's reqMu (the caller, GetAllLinkDatabase, already
// holds it for the whole walk).
func (s *Session) requestAllLink(ctx context.Context, f Frame) (AllLinkRecordEcho, error) {
	if err := s.awaitReady(ctx); err != nil {
		return AllLinkRecordEcho{}, err
	}
	encoded, err := Encode(f)
	if err != nil {
		return AllLinkRecordEcho{}, err
	}
	replyCh := make(chan Frame, 1)
	s.setPending(replyCh)
	defer s.clearPending()

	if err := s.bucket.Put(ctx, encoded); err != nil {
		return AllLinkRecordEcho{}, err
	}

	select {
	case reply := <-replyCh:
		echo, ok := reply.(AllLinkRecordEcho)
		if !ok {
			return AllLinkRecordEcho{}, &TransportError{Err: fmt.Errorf("unexpected reply frame %T for all-link walk", reply)}
		}
		return echo, nil
	case <-ctx.Done():
		return AllLinkRecordEcho{}, ctx.Err()
	case <-s.closed:
		if s.closeErr != nil {
			return AllLinkRecordEcho{}, s.closeErr
		}
		return AllLinkRecordEcho{}, ErrNotReady
	}
}
