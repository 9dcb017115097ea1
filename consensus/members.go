package consensus

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/rony4d/go-accounting-oracle/access"
	"github.com/rony4d/go-accounting-oracle/events"
)

func (c *HashConsensus) IsMember(addr common.Address) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.st.memberIndex(addr) >= 0
}

// Members returns member addresses in insertion order.
func (c *HashConsensus) Members() []common.Address {
	c.mu.Lock()
	defer c.mu.Unlock()
	res := make([]common.Address, len(c.st.members))
	for i, m := range c.st.members {
		res[i] = m.addr
	}
	return res
}

// FastLaneMembers returns the members allowed to vote at the start of the
// current frame.
func (c *HashConsensus) FastLaneMembers() ([]common.Address, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	f, err := c.schedule().FrameAt(c.time.Now())
	if err != nil {
		return nil, err
	}
	var res []common.Address
	for i, m := range c.st.members {
		if c.isFastLaneLocked(i, f.Index) {
			res = append(res, m.addr)
		}
	}
	return res, nil
}

// IsFastLaneMember is false for everyone before the initial epoch.
func (c *HashConsensus) IsFastLaneMember(addr common.Address) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.st.memberIndex(addr)
	if i < 0 {
		return false
	}
	f, err := c.schedule().FrameAt(c.time.Now())
	if err != nil {
		return false
	}
	return c.isFastLaneLocked(i, f.Index)
}

func (c *HashConsensus) isFastLaneLocked(index int, frameIndex uint64) bool {
	return isFastLane(uint64(index), frameIndex, uint64(len(c.st.members)), c.st.quorum)
}

// AddMember appends a member and sets the quorum in one step.
func (c *HashConsensus) AddMember(caller, addr common.Address, quorum uint64) error {
	if err := access.Check(c.auth, access.ManageMembersAndQuorumRole, caller); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if addr == (common.Address{}) {
		return ErrAddressCannotBeZero
	}
	if c.st.memberIndex(addr) >= 0 {
		return ErrDuplicateMember
	}

	saved := c.st.copy()
	var batch events.Batch
	c.st.members = append(c.st.members, member{addr: addr})
	batch.Add(events.MemberAdded{Member: addr, TotalMembers: uint64(len(c.st.members)), Quorum: quorum})
	if err := c.setQuorumAndCheckConsensus(quorum, &batch); err != nil {
		c.st = saved
		return err
	}

	c.log.Info("Member added", "member", addr, "total", len(c.st.members), "quorum", quorum)
	batch.EmitTo(c.sink)
	return nil
}

// RemoveMember drops a member and its vote in the current report frame.
// Remaining members keep their order.
func (c *HashConsensus) RemoveMember(caller, addr common.Address, quorum uint64) error {
	if err := access.Check(c.auth, access.ManageMembersAndQuorumRole, caller); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.st.memberIndex(addr)
	if i < 0 {
		return ErrNonMember
	}

	saved := c.st.copy()
	var batch events.Batch
	if m := c.st.members[i]; c.st.votedFor(m) {
		c.st.variants[m.vote.variant].Support--
	}
	c.st.members = append(c.st.members[:i:i], c.st.members[i+1:]...)
	batch.Add(events.MemberRemoved{Member: addr, TotalMembers: uint64(len(c.st.members)), Quorum: quorum})
	if err := c.setQuorumAndCheckConsensus(quorum, &batch); err != nil {
		c.st = saved
		return err
	}

	c.log.Info("Member removed", "member", addr, "total", len(c.st.members), "quorum", quorum)
	batch.EmitTo(c.sink)
	return nil
}

// SetQuorum accepts any value, including one above the member count, which
// simply makes consensus unreachable until members are added.
func (c *HashConsensus) SetQuorum(caller common.Address, quorum uint64) error {
	role := access.ManageMembersAndQuorumRole
	if quorum == UnreachableQuorum {
		role = access.DisableConsensusRole
	}
	if err := access.Check(c.auth, role, caller); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	saved := c.st.copy()
	var batch events.Batch
	if err := c.setQuorumAndCheckConsensus(quorum, &batch); err != nil {
		c.st = saved
		return err
	}
	batch.EmitTo(c.sink)
	return nil
}

// DisableConsensus sets the quorum to UnreachableQuorum.
func (c *HashConsensus) DisableConsensus(caller common.Address) error {
	return c.SetQuorum(caller, UnreachableQuorum)
}

func (c *HashConsensus) setQuorumAndCheckConsensus(quorum uint64, batch *events.Batch) error {
	if prev := c.st.quorum; quorum != prev {
		c.st.quorum = quorum
		batch.Add(events.QuorumSet{NewQuorum: quorum, TotalMembers: uint64(len(c.st.members)), PrevQuorum: prev})
	}
	return c.checkConsensus(batch)
}
