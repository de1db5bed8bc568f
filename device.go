package insteon

import (
	"sync"
	"time"
)

// Expectation is the per-device record of a send awaiting its matching
// direct ACK (spec.md §3).
type Expectation struct {
	Flags    MessageFlags
	Cmd1     byte
	Cmd2     byte
	UserData []byte
}

// Device holds per-address state: identity learned from broadcasts and
// product-data replies, plus at most one in-flight Expectation.
type Device struct {
	Address Address

	mu          sync.Mutex
	category    *byte
	subcategory *byte
	firmware    *byte

	expectation *Expectation
	timer       *time.Timer
	resolved    chan ExpectationResult // non-nil while an expectation is armed
}

// ExpectationResult is delivered on the channel returned by Device.Arm:
// either the DeviceReport produced by the matching ACK, or a non-nil Err
// if the expectation timed out first.
type ExpectationResult struct {
	Report DeviceReport
	Err    error
}

// Identity returns the device's learned category, subcategory and
// firmware revision, if any has been reported yet.
func (d *Device) Identity() (category, subcategory, firmware byte, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.category == nil || d.subcategory == nil || d.firmware == nil {
		return 0, 0, 0, false
	}
	return *d.category, *d.subcategory, *d.firmware, true
}

// Arm records an outstanding expectation for this device and starts its
// timeout. It fails (Open Question (b)) if an expectation is already
// outstanding: the session serializes requests per device rather than
// queuing a second one.
func (d *Device) Arm(e Expectation, timeout time.Duration) (<-chan ExpectationResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.expectation != nil {
		return nil, &EncodingError{Reason: "expectation already outstanding for " + d.Address.String()}
	}
	d.expectation = &e
	resolved := make(chan ExpectationResult, 1)
	d.resolved = resolved
	d.timer = time.AfterFunc(timeout, func() {
		d.timeoutExpectation(resolved)
	})
	return resolved, nil
}

func (d *Device) timeoutExpectation(resolved chan ExpectationResult) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.resolved != resolved {
		return // already resolved by a matching ACK
	}
	d.expectation = nil
	d.resolved = nil
	select {
	case resolved <- ExpectationResult{Err: &Timeout{Address: d.Address}}:
	default:
	}
}

// clearExpectation resolves the outstanding expectation (if any) with the
// given report, matching spec.md §4.4's "cleared on matching ACK" rule.
func (d *Device) clearExpectation(report DeviceReport) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.resolved == nil {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	select {
	case d.resolved <- ExpectationResult{Report: report}:
	default:
	}
	d.expectation = nil
	d.resolved = nil
}

// Pending returns the channel of the currently-armed expectation, if
// any, so a caller that triggered the arming (via a status-request echo)
// can await its resolution.
func (d *Device) Pending() (<-chan ExpectationResult, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.resolved == nil {
		return nil, false
	}
	return d.resolved, true
}

// expectationCmd1 returns the cmd1 of the currently armed expectation and
// whether one is armed, used by Dispatch to decide whether an ACK of
// Direct should be interpreted as a status reply (expected cmd1=0x19).
func (d *Device) expectationCmd1() (byte, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.expectation == nil {
		return 0, false
	}
	return d.expectation.Cmd1, true
}

// DeviceReport is the decoded, human-meaningful result of dispatching an
// inbound message to a device, per the table in spec.md §4.4. Fields are
// populated only for the cases that apply; callers should switch on
// Kind.
type DeviceReport struct {
	Kind        DeviceReportKind
	Group       byte
	Percent     int
	DBDelta     byte
	Category    byte
	Subcategory byte
	Firmware    byte
}

type DeviceReportKind int

const (
	ReportNone DeviceReportKind = iota
	ReportSetButtonPressed
	ReportGroupOn
	ReportGroupOnCleanup
	ReportGroupOff
	ReportGroupOffCleanup
	ReportStatus
	ReportProductData
)

// Dispatch interprets an inbound (message_type, cmd1, cmd2, user_data)
// tuple per the dispatch table in spec.md §4.4, updating device state and
// resolving any matching outstanding expectation.
//
// Grounded on original_source/src/txHA/insteon/__init__.py's
// _InsteonDevice.processReceivedMessage.
func (d *Device) Dispatch(to Address, flags MessageFlags, cmd1, cmd2 byte, userData []byte) DeviceReport {
	mt := flags.MessageType()
	switch {
	case mt == Broadcast && cmd1 == 0x01 && cmd2 == 0x00:
		cat, sub, fw := to.High(), to.Middle(), to.Low()
		d.mu.Lock()
		d.category, d.subcategory, d.firmware = &cat, &sub, &fw
		d.mu.Unlock()
		return DeviceReport{Kind: ReportSetButtonPressed, Category: cat, Subcategory: sub, Firmware: fw}

	case mt == GroupBroadcast && cmd1 == 0x11 && cmd2 == 0x00:
		return DeviceReport{Kind: ReportGroupOn, Group: to.Low()}

	case mt == GroupCleanupDirect && cmd1 == 0x11 && cmd2 == 0x01:
		return DeviceReport{Kind: ReportGroupOnCleanup, Group: to.Low()}

	case mt == GroupBroadcast && cmd1 == 0x13 && cmd2 == 0x00:
		return DeviceReport{Kind: ReportGroupOff, Group: to.Low()}

	case mt == GroupCleanupDirect && cmd1 == 0x13 && (cmd2 == 0x00 || cmd2 == 0x01):
		return DeviceReport{Kind: ReportGroupOffCleanup, Group: to.Low()}

	case mt == AckOfDirect:
		if expected, ok := d.expectationCmd1(); ok && expected == 0x19 {
			percent := int((int(cmd2)*100 + 127) / 255)
			report := DeviceReport{Kind: ReportStatus, DBDelta: cmd1, Percent: percent}
			d.clearExpectation(report)
			return report
		}
		d.clearExpectation(DeviceReport{Kind: ReportNone})
		return DeviceReport{Kind: ReportNone}

	case cmd1 == 0x03 && cmd2 == 0x00 && flags.Extended() && len(userData) >= 7:
		cat, sub, fw := userData[4], userData[5], userData[6]
		d.mu.Lock()
		d.category, d.subcategory, d.firmware = &cat, &sub, &fw
		d.mu.Unlock()
		return DeviceReport{Kind: ReportProductData, Category: cat, Subcategory: sub, Firmware: fw}

	default:
		return DeviceReport{Kind: ReportNone}
	}
}
