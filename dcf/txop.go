package dcf

// txop.go holds Txop, which contends for the medium on behalf of one queue of
// frames and drives each frame through the low MAC once access is granted:
// RTS protection, fragmentation, retries with a growing contention window,
// and giving up.  A QoS (EDCA) txop differs from a plain (DCA) one in how its
// State counts backoff slots and in finishing group addressed frames as soon
// as they are handed to the low MAC.

import (
	"github.com/iti/pktdcf/packet"
	"go.uber.org/zap"
)

// Txop contends for the medium for one queue of frames
type Txop struct {
	Name string

	qos      bool
	state    *State
	manager  *Manager
	low      MacLow
	stations StationManager
	txMiddle *SequenceCounter
	rng      Random
	queue    *MacQueue

	currentPacket  *packet.Packet
	currentHdr     MacHeader
	fragmentNumber uint32
	params         TransmissionParams

	txOk     func(hdr MacHeader)
	txFailed func(hdr MacHeader)
}

// CreateTxop is a constructor.  The txop's State is registered with manager,
// so txops created first have priority
func CreateTxop(name string, qos bool, manager *Manager, low MacLow, stations StationManager,
	txMiddle *SequenceCounter, rng Random) *Txop {
	txop := new(Txop)
	txop.Name = name
	txop.qos = qos
	txop.manager = manager
	txop.low = low
	txop.stations = stations
	txop.txMiddle = txMiddle
	txop.rng = rng
	txop.queue = CreateMacQueue(0)
	txop.state = CreateState(manager.sched, txop)
	txop.state.SetQoS(qos)
	txop.state.SetAifsn(2)
	txop.state.SetCwMin(15)
	txop.state.SetCwMax(1023)
	manager.Add(txop.state)
	return txop
}

// Initialize draws the initial backoff
func (txop *Txop) Initialize() {
	txop.state.ResetCw()
	txop.state.StartBackoffNow(txop.rng.Integer(0, txop.state.Cw()))
}

// State returns the txop's access requestor
func (txop *Txop) State() *State {
	return txop.state
}

// Queue returns the frames waiting for the medium
func (txop *Txop) Queue() *MacQueue {
	return txop.queue
}

// IsQoS reports whether the txop is an EDCA txop
func (txop *Txop) IsQoS() bool {
	return txop.qos
}

func (txop *Txop) SetAifsn(aifsn uint32) { txop.state.SetAifsn(aifsn) }
func (txop *Txop) SetMinCw(cwMin uint32) { txop.state.SetCwMin(cwMin) }
func (txop *Txop) SetMaxCw(cwMax uint32) { txop.state.SetCwMax(cwMax) }

// SetTxOkCallback names a function to call with the header of each frame delivered
func (txop *Txop) SetTxOkCallback(fn func(hdr MacHeader)) {
	txop.txOk = fn
}

// SetTxFailedCallback names a function to call with the header of each frame given up on
func (txop *Txop) SetTxFailedCallback(fn func(hdr MacHeader)) {
	txop.txFailed = fn
}

// Current returns the frame being sent, if any
func (txop *Txop) Current() (*packet.Packet, MacHeader, bool) {
	return txop.currentPacket, txop.currentHdr, txop.currentPacket != nil
}

// Enqueue queues p for transmission under hdr and asks for access if the txop is idle
func (txop *Txop) Enqueue(p *packet.Packet, hdr MacHeader) {
	txop.queue.Enqueue(p, hdr)
	txop.startAccessIfNeeded()
}

// restartAccessIfNeeded asks for access if there is anything to send, including a frame in progress
func (txop *Txop) restartAccessIfNeeded() {
	if (txop.currentPacket != nil || !txop.queue.IsEmpty()) && !txop.state.IsAccessRequested() {
		txop.manager.RequestAccess(txop.state)
	}
}

// startAccessIfNeeded asks for access if a queued frame is waiting and none is in progress
func (txop *Txop) startAccessIfNeeded() {
	if txop.currentPacket == nil && !txop.queue.IsEmpty() && !txop.state.IsAccessRequested() {
		txop.manager.RequestAccess(txop.state)
	}
}

// newBackoff draws a backoff from the current contention window
func (txop *Txop) newBackoff() {
	txop.state.StartBackoffNow(txop.rng.Integer(0, txop.state.Cw()))
}

func (txop *Txop) needFragmentation() bool {
	return txop.stations.NeedFragmentation(&txop.currentHdr, txop.currentPacket)
}

func (txop *Txop) isLastFragment() bool {
	return txop.stations.IsLastFragment(&txop.currentHdr, txop.currentPacket, txop.fragmentNumber)
}

func (txop *Txop) nextFragmentSize() uint32 {
	return txop.stations.FragmentSize(&txop.currentHdr, txop.currentPacket, txop.fragmentNumber+1)
}

// fragment cuts the current fragment out of the current packet, with its header
func (txop *Txop) fragment() (*packet.Packet, MacHeader) {
	hdr := txop.currentHdr
	hdr.Fragment = uint8(txop.fragmentNumber)
	hdr.MoreFrag = !txop.isLastFragment()
	offset := txop.stations.FragmentOffset(&txop.currentHdr, txop.currentPacket, txop.fragmentNumber)
	size := txop.stations.FragmentSize(&txop.currentHdr, txop.currentPacket, txop.fragmentNumber)
	return txop.currentPacket.CreateFragment(offset, size), hdr
}

// NotifyAccessGranted starts sending the frame in progress, or the next queued one
func (txop *Txop) NotifyAccessGranted() {
	if txop.currentPacket == nil {
		if txop.queue.IsEmpty() {
			logger.Debug("access granted to an empty queue", zap.String("txop", txop.Name))
			return
		}
		item := txop.queue.Dequeue()
		txop.currentPacket = item.Packet
		txop.currentHdr = item.Header
		txop.currentHdr.SetSequenceNumber(txop.txMiddle.NextFor(&txop.currentHdr))
		txop.currentHdr.Fragment = 0
		txop.currentHdr.MoreFrag = false
		txop.currentHdr.Retry = false
		txop.fragmentNumber = 0
		logger.Debug("dequeued",
			zap.String("txop", txop.Name),
			zap.Uint32("size", txop.currentPacket.Size()),
			zap.Stringer("to", txop.currentHdr.Addr1),
			zap.Uint16("seq", txop.currentHdr.Sequence))
	}

	if txop.currentHdr.Addr1.IsGroup() {
		txop.params = TransmissionParams{}
		logger.Debug("tx group addressed", zap.String("txop", txop.Name))
		hdr := txop.currentHdr
		txop.low.StartTransmission(txop.currentPacket, &hdr, txop.params, txop)
		if txop.qos {
			// no acknowledgement will come, so the frame is done with
			txop.currentPacket = nil
			txop.state.ResetCw()
			txop.newBackoff()
			txop.startAccessIfNeeded()
		}
		return
	}

	txop.params = TransmissionParams{Ack: true}
	if txop.currentHdr.Type == FrameQosData && txop.currentHdr.QosNoAck {
		txop.params.Ack = false
	}
	if txop.needFragmentation() {
		frag, hdr := txop.fragment()
		if !txop.isLastFragment() {
			txop.params.NextSize = txop.nextFragmentSize()
		}
		logger.Debug("tx fragment", zap.String("txop", txop.Name), zap.Uint32("size", frag.Size()))
		txop.low.StartTransmission(frag, &hdr, txop.params, txop)
		return
	}
	txop.params.Rts = txop.stations.NeedRts(&txop.currentHdr, txop.currentPacket)
	hdr := txop.currentHdr
	txop.low.StartTransmission(txop.currentPacket, &hdr, txop.params, txop)
}

// NotifyInternalCollision is handled as a collision on the medium
func (txop *Txop) NotifyInternalCollision() {
	txop.NotifyCollision()
}

// NotifyCollision draws a new backoff and asks for access again
func (txop *Txop) NotifyCollision() {
	txop.newBackoff()
	txop.restartAccessIfNeeded()
}

// NotifyChannelSwitching drops everything queued or in progress
func (txop *Txop) NotifyChannelSwitching() {
	txop.queue.Flush()
	txop.currentPacket = nil
}

// NotifySleep puts the frame in progress back at the head of the queue
func (txop *Txop) NotifySleep() {
	if txop.currentPacket != nil {
		txop.queue.PushFront(txop.currentPacket, txop.currentHdr)
		txop.currentPacket = nil
	}
}

// NotifyWakeUp asks for access if there is anything to send
func (txop *Txop) NotifyWakeUp() {
	txop.restartAccessIfNeeded()
}

// NotifyOff drops everything queued or in progress
func (txop *Txop) NotifyOff() {
	txop.queue.Flush()
	txop.currentPacket = nil
}

// NotifyOn asks for access if there is anything queued
func (txop *Txop) NotifyOn() {
	txop.startAccessIfNeeded()
}

// GotCts needs no action; the low MAC goes on to send the data frame
func (txop *Txop) GotCts() {
	logger.Debug("got cts", zap.String("txop", txop.Name))
}

// MissedCts retries the RTS with a larger contention window, or gives up on the frame
func (txop *Txop) MissedCts() {
	logger.Debug("missed cts", zap.String("txop", txop.Name))
	if !txop.stations.NeedRtsRetransmission(&txop.currentHdr, txop.currentPacket) {
		txop.stations.ReportFinalRtsFailed(&txop.currentHdr)
		if txop.txFailed != nil {
			txop.txFailed(txop.currentHdr)
		}
		txop.currentPacket = nil
		txop.state.ResetCw()
	} else {
		txop.state.UpdateFailedCw()
	}
	txop.newBackoff()
	txop.restartAccessIfNeeded()
}

// GotAck finishes the frame unless fragments of it remain to be sent
func (txop *Txop) GotAck() {
	if txop.needFragmentation() && !txop.isLastFragment() {
		logger.Debug("got ack, fragments remain", zap.String("txop", txop.Name))
		return
	}
	logger.Debug("got ack, tx done", zap.String("txop", txop.Name))
	if txop.txOk != nil {
		txop.txOk(txop.currentHdr)
	}
	txop.currentPacket = nil
	txop.state.ResetCw()
	txop.newBackoff()
	txop.restartAccessIfNeeded()
}

// MissedAck retries the frame with a larger contention window, or gives up on it
func (txop *Txop) MissedAck() {
	logger.Debug("missed ack", zap.String("txop", txop.Name))
	if !txop.stations.NeedDataRetransmission(&txop.currentHdr, txop.currentPacket) {
		txop.stations.ReportFinalDataFailed(&txop.currentHdr)
		if txop.txFailed != nil {
			txop.txFailed(txop.currentHdr)
		}
		txop.currentPacket = nil
		txop.state.ResetCw()
	} else {
		txop.currentHdr.Retry = true
		txop.state.UpdateFailedCw()
	}
	txop.newBackoff()
	txop.restartAccessIfNeeded()
}

// StartNext sends the next fragment, SIFS after the previous one was acknowledged
func (txop *Txop) StartNext() {
	txop.fragmentNumber++
	frag, hdr := txop.fragment()
	txop.params = TransmissionParams{Ack: true}
	if !txop.isLastFragment() {
		txop.params.NextSize = txop.nextFragmentSize()
	}
	txop.low.StartTransmission(frag, &hdr, txop.params, txop)
}

// Cancel is called when the low MAC abandons an exchange in favour of another
func (txop *Txop) Cancel() {
	logger.Debug("transmission cancelled", zap.String("txop", txop.Name))
}

// EndTxNoAck finishes a frame that needed no acknowledgement
func (txop *Txop) EndTxNoAck() {
	logger.Debug("tx without ack done", zap.String("txop", txop.Name))
	hdr := txop.currentHdr
	txop.currentPacket = nil
	txop.state.ResetCw()
	txop.newBackoff()
	if txop.txOk != nil {
		txop.txOk(hdr)
	}
	txop.startAccessIfNeeded()
}
