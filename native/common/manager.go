package common

import (
	"errors"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

var (
	ErrCallerIsNotManager        = errors.New("caller is not manager")
	ErrCallerIsNotPendingManager = errors.New("caller is not pending manager")
)

// ManagerHandover is the two-phase admin transfer: the manager proposes a
// successor, which only takes over once it accepts.
type ManagerHandover struct {
	Manager ethcommon.Address
	Pending ethcommon.Address
}

// Authorize fails unless caller is the current manager.
func (m *ManagerHandover) Authorize(caller ethcommon.Address) error {
	if m == nil || caller != m.Manager {
		return ErrCallerIsNotManager
	}
	return nil
}

// Propose records next as the pending manager.
func (m *ManagerHandover) Propose(caller, next ethcommon.Address) error {
	if err := m.Authorize(caller); err != nil {
		return err
	}
	m.Pending = next
	return nil
}

// Accept promotes the pending manager. The caller must be that manager.
func (m *ManagerHandover) Accept(caller ethcommon.Address) error {
	if m == nil || m.Pending == (ethcommon.Address{}) || caller != m.Pending {
		return ErrCallerIsNotPendingManager
	}
	m.Manager = m.Pending
	m.Pending = ethcommon.Address{}
	return nil
}
