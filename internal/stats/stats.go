package stats

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// These are the types of statistics that we can add. The value is the JSON key
// that will be used for serialization.
type StatType string

const (
	BridgeInvocations StatType = "bridge_invocations"
	BridgeSuccesses   StatType = "bridge_successes"
	BridgeErrors      StatType = "bridge_errors"
	BridgeTimeouts    StatType = "bridge_timeouts"
	GuestKeysIssued   StatType = "guest_keys_issued"
	AuthProbes        StatType = "auth_probes"
	AuthErrors        StatType = "auth_errors"
	NativeScrapes     StatType = "native_scrapes"
	NativeTweets      StatType = "native_returned_tweets"
	NativeErrors      StatType = "native_errors"
)

// AddStat is the message sent to the collector goroutine.
type AddStat struct {
	Type     StatType
	Identity string
	Num      uint
}

// Stats holds counters per identity.
type Stats struct {
	BootTimeUnix      int64                        `json:"boot_time"`
	LastOperationUnix int64                        `json:"last_operation_time"`
	CurrentTimeUnix   int64                        `json:"current_time"`
	Stats             map[string]map[StatType]uint `json:"stats"`
	sync.Mutex
}

// StatsCollector aggregates counters off a channel so hot paths never block
// on the mutex.
type StatsCollector struct {
	Stats *Stats
	Chan  chan AddStat
}

// StartCollector starts a goroutine that listens to a channel for AddStat
// messages and updates the stats accordingly.
func StartCollector(bufSize uint) *StatsCollector {
	logrus.Info("Starting stats collector")

	s := Stats{
		BootTimeUnix: time.Now().Unix(),
		Stats:        make(map[string]map[StatType]uint),
	}

	ch := make(chan AddStat, bufSize)

	go func(s *Stats, ch chan AddStat) {
		for stat := range ch {
			s.Lock()
			s.LastOperationUnix = time.Now().Unix()
			if _, ok := s.Stats[stat.Identity]; !ok {
				s.Stats[stat.Identity] = make(map[StatType]uint)
			}
			s.Stats[stat.Identity][stat.Type] += stat.Num
			s.Unlock()
			logrus.Debugf("Added %d to stat %s for %s", stat.Num, stat.Type, stat.Identity)
		}
	}(&s, ch)

	return &StatsCollector{Stats: &s, Chan: ch}
}

// Json returns the current statistics as a JSON byte array.
func (s *StatsCollector) Json() ([]byte, error) {
	s.Stats.Lock()
	defer s.Stats.Unlock()
	s.Stats.CurrentTimeUnix = time.Now().Unix()
	return json.Marshal(s.Stats)
}

// Add records a counter increment. Safe to call on a nil collector so callers
// never have to guard the instrumentation.
func (s *StatsCollector) Add(identity string, typ StatType, num uint) {
	if s == nil {
		return
	}
	s.Chan <- AddStat{Identity: identity, Type: typ, Num: num}
}
