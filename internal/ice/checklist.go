package ice

import (
	"context"
	"encoding/binary"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/lanikai/icecore/internal/metrics"
)

// Checklist is the pair manager: it owns the candidate-pair table, the
// Frozen/Waiting/InProgress/Succeeded/Failed state machine, and the
// connectivity-check scheduler. See [RFC8445 §6.1].
type Checklist struct {
	state checklistState

	// Checklist state listeners, each with a unique id.
	listeners      map[int]chan checklistState
	nextListenerID int

	// ICE credentials.
	username       string
	localPassword  string
	remotePassword string

	// controlling is this agent's current ICE role [RFC8445 §6.1.2.1-2].
	// tieBreaker is the 64-bit random value compared against the remote
	// agent's own ICE-CONTROLLING/ICE-CONTROLLED tie-breaker on a role
	// conflict. nominating guards against issuing more than one
	// USE-CANDIDATE check while a nomination is already in flight.
	controlling bool
	tieBreaker  uint64
	nominating  bool

	// ID for next candidate pair to be added.
	nextPairID int

	pairs []*CandidatePair

	triggeredQueue []*CandidatePair

	// Valid list.
	valid []*CandidatePair

	// Selected candidate pair.
	selected *CandidatePair

	// Mutex guarding every field above.
	mutex sync.Mutex

	// Index of the next candidate pair to be checked, for round-robin scans.
	nextToCheck int

	// Consecutive failed-check counters, keyed by pair id, for the RTO
	// schedule and failure cutover.
	attempts map[string]int
}

type checklistState int

const (
	checklistRunning checklistState = iota
	checklistCompleted
	checklistFailed
)

// retransmitSchedule is the STUN retransmission timer from [RFC8445 §14.3]:
// 500ms, doubling on each retry, capped at 8s, with a final wait before the
// 7th and last attempt is declared failed.
var retransmitSchedule = []time.Duration{
	500 * time.Millisecond,
	1000 * time.Millisecond,
	2000 * time.Millisecond,
	4000 * time.Millisecond,
	8000 * time.Millisecond,
	8000 * time.Millisecond,
	8000 * time.Millisecond,
}

// Pair up local candidates with remote candidates, and add them to the
// checklist. Then re-sort, re-prune, and unfreeze the top pair per
// foundation.
func (cl *Checklist) addCandidatePairs(locals, remotes []Candidate) {
	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	for _, local := range locals {
		for _, remote := range remotes {
			if canBePaired(local, remote) {
				p := newCandidatePair(cl.nextPairID, local, remote)
				p.controlling = cl.controlling
				cl.nextPairID++
				log.Debug("Adding candidate pair %s", p)
				cl.pairs = append(cl.pairs, p)
			}
		}
	}

	cl.pairs = sortAndPrune(cl.pairs)
	unfreezeHighestPerFoundation(cl.pairs)
}

// Only pair candidates for the same component. Their transport addresses
// must be compatible (protocol, family, link-local scope).
func canBePaired(local, remote Candidate) bool {
	return local.component == remote.component &&
		local.address.protocol == remote.address.protocol &&
		local.address.family == remote.address.family &&
		local.address.linkLocal == remote.address.linkLocal
}

// sortAndPrune sorts the candidate pairs from highest to lowest priority,
// then prunes any redundant pairs.
func sortAndPrune(pairs []*CandidatePair) []*CandidatePair {
	// [RFC8445 §6.1.2.3] Sort pairs from highest to lowest priority.
	sort.Slice(pairs, func(i, j int) bool {
		return pairs[i].Priority() > pairs[j].Priority()
	})

	// [RFC8445 §6.1.2.4] Prune redundant pairs.
	for i := 0; i < len(pairs); i++ {
		p := pairs[i]
		// [draft-ietf-ice-trickle-21 §10] Preserve pairs for which checks are in flight.
		switch p.state {
		case InProgress, Succeeded, Failed:
			continue
		}
		for j := 0; j < i; j++ {
			if isRedundant(p, pairs[j]) {
				log.Debug("Pruning %s in favor of %s", p.id, pairs[j].id)
				pairs = append(pairs[:i], pairs[i+1:]...)
				i--
				break
			}
		}
	}

	return pairs
}

// [RFC8445 §6.1.2.4] Two candidate pairs are redundant if they have the
// same remote candidate and the same local base.
func isRedundant(p1, p2 *CandidatePair) bool {
	return p1.remote.address == p2.remote.address && p1.local.base.address == p2.local.base.address
}

// unfreezeHighestPerFoundation promotes the single highest-priority Frozen
// pair for each foundation to Waiting, per [RFC8445 §6.1.2.6]; every other
// pair sharing that foundation stays Frozen until its sibling finishes.
func unfreezeHighestPerFoundation(pairs []*CandidatePair) {
	seen := make(map[string]bool)
	for _, p := range pairs {
		if p.state != Frozen {
			seen[p.foundation] = true
			continue
		}
		if !seen[p.foundation] {
			p.state = Waiting
			seen[p.foundation] = true
		}
	}
}

func (cl *Checklist) run(ctx context.Context) {
	lid, stateCh := cl.addListener()
	defer cl.removeListener(lid)

	Ta := time.NewTicker(50 * time.Millisecond)
	defer Ta.Stop()

	Tr := time.NewTicker(30 * time.Second)
	defer Tr.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case newState := <-stateCh:
			log.Debug("Checklist state: %d", newState)
			if newState == checklistCompleted {
				Ta.Stop()
			}

		case <-Ta.C:
			if p := cl.nextPair(); p != nil {
				log.Debug("Next candidate pair to check: %s\n", p)
				if err := cl.sendCheck(p, false); err != nil {
					log.Warn("Failed to send connectivity check: %s", err)
				}
			}

		case <-Tr.C:
			if p := cl.selected; p != nil {
				if err := p.local.base.sendStun(newStunBindingIndication(), p.remote.address.netAddr(), nil); err != nil {
					log.Warn("%s: keepalive send failed: %s", p.id, err)
					cl.handleSendFailure(p)
				}
			}
		}
	}
}

// [RFC8445 §7.3] Respond to a STUN binding request by sending a success
// response, adopting a peer-reflexive candidate and/or nominating the pair
// as directed by USE-CANDIDATE.
func (cl *Checklist) handleStunRequest(req *stunMessage, raddr net.Addr, base *Base) {
	if !req.verifyFingerprint() || !req.verifyMessageIntegrity(cl.localPassword) {
		log.Debug("Dropping STUN request from %s: integrity check failed", raddr)
		return
	}

	if conflict, resp := cl.resolveRoleConflict(req); conflict {
		log.Debug("Role conflict with %s; responding 487", raddr)
		if err := base.sendStun(resp, raddr, nil); err != nil {
			log.Warn("Failed to send role-conflict response: %s", err)
		}
		return
	}

	p := cl.findPair(base, raddr)
	if p == nil {
		p = cl.adoptPeerReflexiveCandidate(base, raddr, req.getPriority())
	}
	if req.hasUseCandidate() && !p.nominated {
		log.Debug("Nominating %s\n", p.id)
		cl.nominate(p)
	}

	resp := newStunBindingResponse(req.transactionID, raddr, cl.localPassword)
	log.Debug("Sending response %s -> %s: %s\n", base.LocalAddr(), raddr, resp)
	if err := base.sendStun(resp, raddr, nil); err != nil {
		log.Warn("Failed to send STUN response: %s", err)
	}

	cl.triggerCheck(p)
}

// resolveRoleConflict implements [RFC8445 §7.3.1.1]: if the inbound
// request claims the same role as this agent, the smaller tie-breaker
// switches role; a losing peer is told so with ERROR-CODE 487. Returns
// true (with the 487 response to send) when this agent must reject the
// request rather than process it further.
func (cl *Checklist) resolveRoleConflict(req *stunMessage) (bool, *stunMessage) {
	var remoteTB uint64
	var remoteControlling bool
	switch {
	case req.getAttribute(stunAttrIceControlling) != nil:
		remoteControlling = true
		remoteTB = binary.BigEndian.Uint64(req.getAttribute(stunAttrIceControlling).Value)
	case req.getAttribute(stunAttrIceControlled) != nil:
		remoteControlling = false
		remoteTB = binary.BigEndian.Uint64(req.getAttribute(stunAttrIceControlled).Value)
	default:
		return false, nil
	}

	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	if remoteControlling != cl.controlling {
		// No conflict: one side controls, the other is controlled.
		return false, nil
	}

	if cl.tieBreaker >= remoteTB {
		return true, newStunRoleConflictResponse(req.transactionID, cl.localPassword)
	}

	cl.controlling = !cl.controlling
	log.Info("Switching ICE role to controlling=%v after role conflict", cl.controlling)
	for _, p := range cl.pairs {
		if p.state == InProgress {
			p.state = Waiting
		}
	}
	return false, nil
}

// [RFC8445 §7.3.1.3-4] Create a peer-reflexive candidate and pair it with
// the base that received the request.
func (cl *Checklist) adoptPeerReflexiveCandidate(base *Base, raddr net.Addr, priority uint32) *CandidatePair {
	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	local := makeHostCandidate(base.sdpMid, base)
	remote := makePeerReflexiveCandidate(base.sdpMid, raddr, base, priority)
	log.Debug("New peer-reflexive %s", remote)

	p := newCandidatePair(cl.nextPairID, local, remote)
	p.state = Waiting
	p.controlling = cl.controlling
	cl.pairs = append(cl.pairs, p)
	cl.nextPairID++

	cl.pairs = sortAndPrune(cl.pairs)
	return p
}

// nextPair returns the next candidate pair to check: a triggered check
// takes priority over the round-robin scan of Waiting pairs.
func (cl *Checklist) nextPair() *CandidatePair {
	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	if len(cl.triggeredQueue) > 0 {
		p := cl.triggeredQueue[0]
		cl.triggeredQueue = cl.triggeredQueue[1:]
		return p
	}

	n := len(cl.pairs)
	for i := 0; i < n; i++ {
		k := (cl.nextToCheck + i) % n
		p := cl.pairs[k]
		if p.state == Waiting {
			cl.nextToCheck = (k + 1) % n
			return p
		}
	}

	return nil
}

// sendCheck builds and sends a connectivity-check Binding request for p. If
// nominate is set, the request carries USE-CANDIDATE and, on success, the
// pair is nominated [RFC8445 §7.1.1 / §8.1.1].
func (cl *Checklist) sendCheck(p *CandidatePair, nominate bool) error {
	req := newStunBindingRequest("")
	req.addAttribute(stunAttrUsername, []byte(cl.username))
	req.addRoleAttribute(cl)
	req.addPriority(p.local.peerPriority())
	if nominate {
		req.addAttribute(stunAttrUseCandidate, nil)
	}
	req.addMessageIntegrity(cl.remotePassword)
	req.addFingerprint()
	p.state = InProgress

	attempt := cl.attemptFor(p.id)
	retransmit := time.AfterFunc(cl.rto(attempt), func() {
		cl.onCheckTimeout(p)
	})

	metrics.Default.Incr("ice.checks_sent", 1)
	sentAt := time.Now()
	log.Debug("%s: Sending to %s from %s: %s\n", p.id, p.remote.address, p.local.address, req)
	err := p.local.base.sendStun(req, p.remote.address.netAddr(), func(resp *stunMessage, raddr net.Addr, base *Base) {
		retransmit.Stop()
		cl.clearAttempts(p.id)
		metrics.Default.Since("ice.check_round_trip", sentAt)
		cl.processResponse(p, resp, raddr, nominate)
	})
	if err != nil {
		retransmit.Stop()
		cl.handleSendFailure(p)
	}
	return err
}

// addRoleAttribute carries this agent's current role and tie-breaker on an
// outbound Binding request, per [RFC8445 §7.1.1].
func (req *stunMessage) addRoleAttribute(cl *Checklist) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], cl.tieBreaker)
	cl.mutex.Lock()
	controlling := cl.controlling
	cl.mutex.Unlock()
	if controlling {
		req.addAttribute(stunAttrIceControlling, buf[:])
	} else {
		req.addAttribute(stunAttrIceControlled, buf[:])
	}
}

// onCheckTimeout handles a retransmission deadline firing: retry while
// attempts remain in retransmitSchedule, otherwise mark the pair Failed.
func (cl *Checklist) onCheckTimeout(p *CandidatePair) {
	cl.mutex.Lock()
	attempt := cl.attempts[p.id]
	cl.mutex.Unlock()

	if attempt+1 >= len(retransmitSchedule) {
		cl.mutex.Lock()
		p.state = Failed
		delete(cl.attempts, p.id)
		cl.mutex.Unlock()
		metrics.Default.Incr("ice.checks_failed", 1)
		cl.updateState()
		return
	}

	cl.mutex.Lock()
	cl.attempts[p.id] = attempt + 1
	p.state = Waiting
	cl.mutex.Unlock()
}

func (cl *Checklist) attemptFor(id string) int {
	cl.mutex.Lock()
	defer cl.mutex.Unlock()
	if cl.attempts == nil {
		cl.attempts = make(map[string]int)
	}
	return cl.attempts[id]
}

func (cl *Checklist) clearAttempts(id string) {
	cl.mutex.Lock()
	delete(cl.attempts, id)
	cl.mutex.Unlock()
}

// rto returns the retransmission timeout for the given attempt index
// (0-based), per the fixed schedule in [RFC8445 §14.3].
func (cl *Checklist) rto(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt >= len(retransmitSchedule) {
		attempt = len(retransmitSchedule) - 1
	}
	return retransmitSchedule[attempt]
}

// processResponse handles the outcome of a connectivity check: a
// successful binding response, a role-conflict error that must retry with
// the toggled role [RFC8445 §7.2.5.2.1], or any other failure. nominate
// indicates the originating request carried USE-CANDIDATE.
func (cl *Checklist) processResponse(p *CandidatePair, resp *stunMessage, raddr net.Addr, nominate bool) {
	if !resp.verifyFingerprint() || !resp.verifyMessageIntegrity(cl.remotePassword) {
		log.Debug("Dropping STUN response for %s: integrity check failed", p.id)
		return
	}

	if p.state != InProgress {
		log.Debug("Received unexpected STUN response for %s:\n%s\n", p, resp)
		return
	}

	switch resp.class {
	case stunSuccessResponse:
		log.Debug("%s: Successful connectivity check", p.id)
		p.state = Succeeded
		if nominate {
			p.nominated = true
		}
		cl.mutex.Lock()
		cl.valid = append(cl.valid, p)
		if nominate {
			cl.nominating = false
		}
		cl.mutex.Unlock()
	case stunErrorResponse:
		if resp.getErrorCode() == stunErrorRoleConflict {
			cl.mutex.Lock()
			cl.controlling = !cl.controlling
			cl.nominating = false
			cl.mutex.Unlock()
			log.Info("Switching ICE role after role-conflict response for %s", p.id)
			p.state = Waiting
		} else {
			p.state = Failed
		}
	default:
		log.Warn("Unexpected STUN class %d in response for %s", resp.class, p.id)
	}

	cl.updateState()
}

func (cl *Checklist) nominate(p *CandidatePair) {
	if p.state == Frozen {
		p.state = Waiting
	}
	p.nominated = true
	cl.updateState()
}

func (cl *Checklist) updateState() {
	cl.mutex.Lock()

	if cl.state != checklistRunning {
		cl.mutex.Unlock()
		return
	}

	for _, p := range cl.valid {
		if p.nominated {
			log.Info("Selected %s", p)
			cl.selected = p
			cl.state = checklistCompleted
			metrics.Default.Incr("ice.pairs_selected", 1)
			break
		}
	}

	if cl.state == checklistRunning && cl.allPairsFailed() {
		cl.state = checklistFailed
	}

	// The controlling agent picks a nominee as soon as it has a valid
	// pair and isn't already nominating one, per [RFC8445 §8.1.1]'s
	// "regular nomination" — the highest-priority valid pair wins.
	var toNominate *CandidatePair
	if cl.state == checklistRunning && cl.controlling && !cl.nominating && len(cl.valid) > 0 {
		toNominate = highestPriorityValid(cl.valid)
		if toNominate != nil {
			cl.nominating = true
		}
	}

	for _, ch := range cl.listeners {
		select {
		case ch <- cl.state:
		default:
		}
	}
	cl.mutex.Unlock()

	if toNominate != nil {
		log.Debug("Nominating %s as controlling agent", toNominate.id)
		if err := cl.sendCheck(toNominate, true); err != nil {
			log.Warn("Failed to send nominating check for %s: %s", toNominate.id, err)
			cl.mutex.Lock()
			cl.nominating = false
			cl.mutex.Unlock()
		}
	}
}

// handleSendFailure demotes p to Failed after a socket write to it fails.
// If p was the selected pair, the next highest-priority remaining
// Succeeded pair is reselected; if none remain, the checklist reopens for
// checking (or fails outright if every pair is now Failed).
func (cl *Checklist) handleSendFailure(p *CandidatePair) {
	cl.mutex.Lock()
	p.state = Failed

	kept := cl.valid[:0]
	for _, v := range cl.valid {
		if v != p {
			kept = append(kept, v)
		}
	}
	cl.valid = kept

	wasSelected := cl.selected == p
	if wasSelected {
		cl.selected = nil
		if next := highestPriorityValid(cl.valid); next != nil {
			log.Info("Send failure on selected pair %s; reselecting %s", p.id, next.id)
			cl.selected = next
			cl.state = checklistCompleted
		} else if cl.allPairsFailed() {
			cl.state = checklistFailed
		} else {
			cl.state = checklistRunning
		}
	}

	for _, ch := range cl.listeners {
		select {
		case ch <- cl.state:
		default:
		}
	}
	cl.mutex.Unlock()
}

// highestPriorityValid returns the valid (Succeeded) pair with the
// greatest pair-priority.
func highestPriorityValid(valid []*CandidatePair) *CandidatePair {
	var best *CandidatePair
	for _, p := range valid {
		if best == nil || p.Priority() > best.Priority() {
			best = p
		}
	}
	return best
}

func (cl *Checklist) allPairsFailed() bool {
	if len(cl.pairs) == 0 {
		return false
	}
	for _, p := range cl.pairs {
		if p.state != Failed {
			return false
		}
	}
	return true
}

func (cl *Checklist) addListener() (int, <-chan checklistState) {
	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	id := cl.nextListenerID
	ch := make(chan checklistState, 1)
	if cl.listeners == nil {
		cl.listeners = make(map[int]chan checklistState)
	}
	cl.listeners[id] = ch
	cl.nextListenerID++
	return id, ch
}

func (cl *Checklist) removeListener(id int) {
	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	delete(cl.listeners, id)
}

// findPair returns the first candidate pair matching the base and remote address.
func (cl *Checklist) findPair(base *Base, raddr net.Addr) *CandidatePair {
	remoteAddress := makeTransportAddress(raddr)

	for _, p := range cl.pairs {
		if p.local.address == base.address && p.remote.address == remoteAddress {
			return p
		}
	}

	return nil
}

func (cl *Checklist) triggerCheck(p *CandidatePair) {
	if p.state == Frozen || p.state == Waiting {
		cl.mutex.Lock()
		cl.triggeredQueue = append(cl.triggeredQueue, p)
		cl.mutex.Unlock()
	}
}
