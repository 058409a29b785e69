package adapter

// Store is the external key-value facility the bridge forwards to.
//
// Positional access through Length and Key follows whatever order the
// store natively reports. Any error from SetItem is treated as a generic
// write failure, quota exhaustion included.
type Store interface {
	SetItem(key, value string) error
	GetItem(key string) (value string, ok bool)
	RemoveItem(key string)
	Length() int
	Key(index int) (key string, ok bool)
	Close() error
}

// KeyLister is implemented by stores that can enumerate every key in one
// call. The result must match walking Key(0) .. Key(Length()-1).
type KeyLister interface {
	Keys() []string
}

// Capability reports whether the underlying store exists on this host.
type Capability interface {
	Available() bool
}

type CapabilityFunc func() bool

func (f CapabilityFunc) Available() bool {
	return f()
}

// Dispatcher delivers an envelope to whoever is waiting on callbackID.
// Implementations must not block the caller on delivery.
type Dispatcher interface {
	PerformCallback(callbackID string, env Envelope)
}
