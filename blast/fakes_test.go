package blast

import (
	"context"
	"sync"

	"github.com/pure-golang/mailblast/mail"
)

var errDisconnect = mail.NewError(mail.ErrDisconnected, "data", nil)

// fakeDialer scripts dial and send results. Scripts are consumed in call
// order across all sessions; calls past the end of a script succeed.
type fakeDialer struct {
	mx sync.Mutex

	dialScript []error
	sendScript []error
	failFor    map[string]error // dial error per account address

	// onSend runs inside Send with the 1-based global send number.
	onSend func(n int)

	dials    int
	sends    int
	payloads []string
	open     int
	maxOpen  int
	closes   int
}

func (d *fakeDialer) Dial(_ context.Context, account mail.Account) (mail.Session, error) {
	d.mx.Lock()
	defer d.mx.Unlock()

	i := d.dials
	d.dials++
	if err, ok := d.failFor[account.Address]; ok {
		return nil, err
	}
	if i < len(d.dialScript) && d.dialScript[i] != nil {
		return nil, d.dialScript[i]
	}

	d.open++
	d.maxOpen = max(d.maxOpen, d.open)
	return &fakeSession{dialer: d}, nil
}

func (d *fakeDialer) dialCount() int {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.dials
}

func (d *fakeDialer) sentPayloads() []string {
	d.mx.Lock()
	defer d.mx.Unlock()
	return append([]string(nil), d.payloads...)
}

func (d *fakeDialer) openCount() int {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.open
}

type fakeSession struct {
	dialer *fakeDialer
	closed bool
}

func (s *fakeSession) Send(_ context.Context, _ string, _ []string, payload []byte) error {
	d := s.dialer

	d.mx.Lock()
	i := d.sends
	d.sends++
	var err error
	if i < len(d.sendScript) {
		err = d.sendScript[i]
	}
	onSend := d.onSend
	d.mx.Unlock()

	if onSend != nil {
		onSend(i + 1)
	}
	if err != nil {
		return err
	}

	d.mx.Lock()
	d.payloads = append(d.payloads, string(payload))
	d.mx.Unlock()
	return nil
}

func (s *fakeSession) Close() error {
	d := s.dialer
	d.mx.Lock()
	defer d.mx.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	d.open--
	d.closes++
	return nil
}

// recordingSink counts progress calls.
type recordingSink struct {
	mx        sync.Mutex
	sent      map[int]int
	total     int
	completes int
	success   bool
	info      *ErrorInfo
	runID     string
	runTotal  int
}

func newRecordingSink() *recordingSink {
	return &recordingSink{sent: make(map[int]int)}
}

func (s *recordingSink) OnStart(runID string, total int) {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.runID = runID
	s.runTotal = total
}

func (s *recordingSink) OnSent(worker int) {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.sent[worker]++
	s.total++
}

func (s *recordingSink) OnComplete(success bool, info *ErrorInfo) {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.completes++
	s.success = success
	s.info = info
}

func (s *recordingSink) sentTotal() int {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.total
}
