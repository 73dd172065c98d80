// Copyright 2021 Edgecast Inc

package icmpping

import (
	"fmt"
	"time"
)

// Run is the SessionLoop.
// It returns after count cycles, or after the cycle in flight when the
// Canceler is cancelled once, and prints the summary in both cases.
// A second cancel returns ErrForcedExit without a summary.
// Fatal errors return at once. The socket is closed on every path.
func (s *Session) Run() (summary Summary, err error) {

	defer s.Transport.Close()

	watchDone := make(chan struct{})
	defer close(watchDone)
	go s.interruptOnForce(watchDone)

	if s.DebugLevel > 10 {
		s.Log.Info(fmt.Sprintf("Pinger [%s] started \t id:%d \t count:%d \t interval:%s \t strictness:%s", s.Target(), s.ID, s.Config.Count, s.Config.Interval.String(), s.Config.Strictness))
	}

	s.state = StateRunning
	s.Reporter.Start(s.Host, s.Target(), s.Config.PayloadSize)

	for s.state == StateRunning {

		if s.Canceler.Forced() {
			return s.forcedExit()
		}
		if s.finished() {
			s.state = StateStopping
			continue
		}

		if err = s.Cycle(); err != nil {
			s.state = StateTerminated
			s.Log.Error("Pinger cycle failed", "target", s.Target(), "error", err)
			return s.stats.Summary(), err
		}

		if s.Canceler.Forced() {
			return s.forcedExit()
		}
		// no sleep when the loop is about to stop
		if s.finished() {
			continue
		}
		s.Sleep()
	}

	summary = s.stats.Summary()
	s.Reporter.Summary(s.Host, summary)
	s.state = StateTerminated

	if s.DebugLevel > 10 {
		s.Log.Info(fmt.Sprintf("Pinger [%s] \ttransmitted:%d \treceived:%d \tloss:%.1f%%", s.Target(), summary.Transmitted, summary.Received, summary.LossPercent))
	}
	return summary, nil
}

// Cycle runs one probe: build, send, wait for the reply, match and record.
// Datagrams that are not the reply are dropped and the wait goes on until the
// reply timeout, unless Strictness makes them fatal.
func (s *Session) Cycle() error {

	seq := s.nextSeq
	s.nextSeq++
	s.stats.Transmit()
	s.Metrics.transmitted()

	wb := BuildICMPEchoRequest(s.ID, seq, s.Config.PayloadSize)

	send := s.now()
	if err := s.Transport.Send(wb); err != nil {
		return err
	}

	want := Expectation{
		ID:  s.ID,
		Seq: seq,
		// datagram ICMP sockets rewrite the identifier, the kernel filters for us
		CheckID:  s.Transport.HeaderIncluded,
		CheckSeq: s.Config.Strictness.CheckSeq(),
	}

	expiry := send.Add(s.Config.Timeout)
	for {
		if s.Canceler.Forced() {
			return nil
		}
		remaining := expiry.Sub(s.now())
		if remaining <= 0 {
			break
		}

		dg, err := s.Transport.ReceiveWithin(remaining)
		if err != nil {
			return err
		}
		if dg == nil {
			break
		}

		er, verdict := MatchICMPEchoReply(dg.Bytes, dg.Source, s.Transport.HeaderIncluded, want)
		if verdict == VerdictMatch {
			rtt := dg.Received.Sub(send)
			s.stats.RecordDuration(rtt)
			s.Metrics.received(rtt)
			s.Reporter.Reply(er, DurationToMillis(rtt))
			if s.DebugLevel > 100 {
				s.Log.Info(fmt.Sprintf("Pinger [%s] \t seq:%d \t RTT:%s", s.Target(), seq, rtt.String()))
			}
			return nil
		}

		s.Metrics.dropped(verdict)
		if s.Config.Strictness.IsFatal(verdict) {
			return rejected(verdict, er, dg)
		}
		s.logDrop(verdict, er, dg, seq)
	}

	// an interrupted wait is not a timeout
	if s.Canceler.Forced() {
		return nil
	}
	s.Metrics.timeout()
	if s.DebugLevel > 10 {
		s.Log.Info(fmt.Sprintf("Pinger [%s] \t seq:%d \t Expired/Timed-out after:%s", s.Target(), seq, s.Config.Timeout.String()))
	}
	return nil
}

// Sleep waits the configured interval, or less if a cancel arrives
func (s *Session) Sleep() {
	if s.Config.Interval <= 0 {
		return
	}
	select {
	case <-time.After(s.Config.Interval):
	case <-s.Canceler.StopCh():
		if s.DebugLevel > 10 {
			s.Log.Info(fmt.Sprintf("Pinger [%s] sleep cut short by cancel", s.Target()))
		}
		// NO DEFAULT - This is a BLOCKING select
	}
}

func (s *Session) finished() bool {
	if s.Canceler.Stopping() {
		return true
	}
	return s.Config.Count != CountUnbounded && s.stats.Transmitted >= uint64(s.Config.Count)
}

func (s *Session) forcedExit() (Summary, error) {
	s.state = StateTerminated
	s.Log.Warn("Pinger forced exit, no summary", "target", s.Target())
	return s.stats.Summary(), ErrForcedExit
}

// interruptOnForce unblocks a pending receive on the second cancel
func (s *Session) interruptOnForce(done <-chan struct{}) {
	select {
	case <-s.Canceler.ForceCh():
		s.Transport.Interrupt()
	case <-done:
	}
}

func (s *Session) logDrop(v Verdict, er *ICMPEchoReply, dg *Datagram, seq Sequence) {
	switch v {
	case VerdictSeqMismatch:
		s.Log.Warn("Pinger dropped reply with unexpected sequence", "from", dg.Source.String(), "want", seq, "got", er.Seq)
	case VerdictIDMismatch:
		s.Log.Debug("Pinger dropped reply for another identifier", "from", dg.Source.String(), "id", er.Identifier)
	case VerdictNotEchoReply:
		s.Log.Debug("Pinger dropped non echo reply", "from", dg.Source.String(), "type", er.Type, "code", er.Code)
	default:
		s.Log.Debug("Pinger dropped datagram", "from", dg.Source.String(), "verdict", v.String(), "len", len(dg.Bytes))
	}
}

// rejected builds the error for a fatal verdict
func rejected(v Verdict, er *ICMPEchoReply, dg *Datagram) error {
	switch v {
	case VerdictTooShort:
		return fmt.Errorf("%w (%d bytes) from %s", ErrMessageTooShort, len(dg.Bytes), dg.Source.String())
	case VerdictMalformed:
		return fmt.Errorf("%w: malformed packet (%d bytes) from %s", ErrReplyRejected, len(dg.Bytes), dg.Source.String())
	case VerdictIDMismatch:
		return fmt.Errorf("%w: received wrong id, id=%d from %s", ErrReplyRejected, er.Identifier, dg.Source.String())
	case VerdictSeqMismatch:
		return fmt.Errorf("%w: received wrong sequence, icmp_seq=%d from %s", ErrReplyRejected, er.Seq, dg.Source.String())
	}
	return fmt.Errorf("%w: %s from %s", ErrReplyRejected, v, dg.Source.String())
}
