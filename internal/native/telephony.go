package native

import (
	"errors"
	"sync"
	"time"
)

// SIMField names one asynchronous telephony query.
type SIMField int

const (
	SIMICCID SIMField = iota
	SIMMSISDN
	SIMSPN
	SIMIMSI
	SIMOperatorName
)

func (f SIMField) String() string {
	switch f {
	case SIMICCID:
		return "iccid"
	case SIMMSISDN:
		return "msisdn"
	case SIMSPN:
		return "spn"
	case SIMIMSI:
		return "imsi"
	case SIMOperatorName:
		return "operatorName"
	}
	return "unknown"
}

// ErrSIMUnavailable is reported when no SIM card is inserted.
var ErrSIMUnavailable = errors.New("tapi: sim not available")

// Telephony issues asynchronous SIM queries; cb runs on a platform goroutine.
type Telephony interface {
	RequestSIM(field SIMField, cb func(value string, err error))
}

// TapiService is an in-process Telephony answering from a fixed record.
type TapiService struct {
	Latency time.Duration

	mu      sync.Mutex
	present bool
	record  map[SIMField]string
	calls   int
}

func NewTapiService(record map[SIMField]string) *TapiService {
	t := &TapiService{present: record != nil, record: make(map[SIMField]string)}
	for k, v := range record {
		t.record[k] = v
	}
	return t
}

func (t *TapiService) SetPresent(present bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.present = present
}

// Calls counts the requests issued so far.
func (t *TapiService) Calls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls
}

func (t *TapiService) RequestSIM(field SIMField, cb func(string, error)) {
	t.mu.Lock()
	t.calls++
	present := t.present
	value := t.record[field]
	latency := t.Latency
	t.mu.Unlock()

	go func() {
		if latency > 0 {
			time.Sleep(latency)
		}
		if !present {
			cb("", ErrSIMUnavailable)
			return
		}
		cb(value, nil)
	}()
}
