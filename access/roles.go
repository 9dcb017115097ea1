// Package access holds the capability model of the oracle. Components never
// decide who may call an admin setter themselves: they ask an injected
// Authorizer.
package access

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Role names a capability.
type Role string

const (
	ManageMembersAndQuorumRole  Role = "MANAGE_MEMBERS_AND_QUORUM_ROLE"
	DisableConsensusRole        Role = "DISABLE_CONSENSUS_ROLE"
	ManageFrameConfigRole       Role = "MANAGE_FRAME_CONFIG_ROLE"
	ManageFastLaneConfigRole    Role = "MANAGE_FAST_LANE_CONFIG_ROLE"
	ManageReportProcessorRole   Role = "MANAGE_REPORT_PROCESSOR_ROLE"
	ManageConsensusContractRole Role = "MANAGE_CONSENSUS_CONTRACT_ROLE"
	ManageConsensusVersionRole  Role = "MANAGE_CONSENSUS_VERSION_ROLE"
	SubmitDataRole              Role = "SUBMIT_DATA_ROLE"
)

// AllRoles lists every role in a stable order.
func AllRoles() []Role {
	return []Role{
		ManageMembersAndQuorumRole,
		DisableConsensusRole,
		ManageFrameConfigRole,
		ManageFastLaneConfigRole,
		ManageReportProcessorRole,
		ManageConsensusContractRole,
		ManageConsensusVersionRole,
		SubmitDataRole,
	}
}

var ErrAccessDenied = errors.New("access denied")

// Authorizer answers capability questions.
type Authorizer interface {
	HasRole(role Role, account common.Address) bool
}

// Check returns ErrAccessDenied, annotated with the role and account, unless
// account holds role.
func Check(auth Authorizer, role Role, account common.Address) error {
	if auth != nil && auth.HasRole(role, account) {
		return nil
	}
	return fmt.Errorf("%w: %s lacks %s", ErrAccessDenied, account.Hex(), role)
}

// RoleTable is an in-memory access control list.
type RoleTable struct {
	mu    sync.RWMutex
	roles map[Role]map[common.Address]struct{}
}

func NewRoleTable() *RoleTable {
	return &RoleTable{roles: make(map[Role]map[common.Address]struct{})}
}

// NewAdminTable grants every role to admin.
func NewAdminTable(admin common.Address) *RoleTable {
	t := NewRoleTable()
	for _, role := range AllRoles() {
		t.Grant(role, admin)
	}
	return t
}

func (t *RoleTable) Grant(role Role, account common.Address) {
	t.mu.Lock()
	defer t.mu.Unlock()
	holders, ok := t.roles[role]
	if !ok {
		holders = make(map[common.Address]struct{})
		t.roles[role] = holders
	}
	holders[account] = struct{}{}
}

func (t *RoleTable) Revoke(role Role, account common.Address) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.roles[role], account)
}

func (t *RoleTable) HasRole(role Role, account common.Address) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.roles[role][account]
	return ok
}

// Holders returns the accounts holding role, sorted.
func (t *RoleTable) Holders(role Role) []common.Address {
	t.mu.RLock()
	defer t.mu.RUnlock()
	res := make([]common.Address, 0, len(t.roles[role]))
	for addr := range t.roles[role] {
		res = append(res, addr)
	}
	sort.Slice(res, func(i, j int) bool {
		return bytes.Compare(res[i][:], res[j][:]) < 0
	})
	return res
}
