package insteon

import "sync"

// Registry maps Address to Device. Devices are created lazily on first
// mention and are never destroyed during a session's lifetime. Grounded
// on pascaldekloe-part5/track/track.go's sync.Map-backed registry.
type Registry struct {
	devices sync.Map // Address -> *Device
}

// GetOrCreate is idempotent: it returns the same *Device on every
// subsequent call with an equal Address.
func (r *Registry) GetOrCreate(addr Address) *Device {
	if v, ok := r.devices.Load(addr); ok {
		return v.(*Device)
	}
	d := &Device{Address: addr}
	actual, _ := r.devices.LoadOrStore(addr, d)
	return actual.(*Device)
}

// Lookup returns the device for addr, if one has been created.
func (r *Registry) Lookup(addr Address) (*Device, bool) {
	v, ok := r.devices.Load(addr)
	if !ok {
		return nil, false
	}
	return v.(*Device), true
}
