package bridge

import (
	"github.com/cryguy/webbridge/internal/core"
	"github.com/cryguy/webbridge/internal/handle"
)

var bridges = handle.NewTable[Bridge]()

// Register stores b and returns the opaque handle foreign code refers to it by.
func Register(b *Bridge) handle.ID {
	return bridges.Put(b)
}

// Lookup resolves a handle returned by Register.
func Lookup(id handle.ID) (*Bridge, error) {
	b, err := bridges.Get(id)
	if err != nil {
		return nil, core.ErrBridgeNotInitialized
	}
	return b, nil
}

// Unregister invalidates id. It returns ErrBridgeNotInitialized when id is
// unknown or already released.
func Unregister(id handle.ID) error {
	if _, err := bridges.Delete(id); err != nil {
		return core.ErrBridgeNotInitialized
	}
	return nil
}
