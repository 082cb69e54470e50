package persist

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/balance-lab/forceplate/internal/monitoring"
)

// Channels is the number of slots in one bank, one per corner sensor.
const Channels = 4

// RecordSize is the encoded size of Settings: an IEEE-754 float64 factor
// followed by an int64 offset, both little endian. There is no version
// field; changing Settings invalidates stored images.
const RecordSize = 16

// Settings is the persisted calibration state of one channel.
type Settings struct {
	CalibrationFactor float64 `json:"calibration_factor"`
	ZeroOffset        int64   `json:"zero_offset"`
}

// Identity is used whenever stored settings cannot be read.
var Identity = Settings{CalibrationFactor: 1.0, ZeroOffset: 0}

// Plausible reports whether s can be used to convert raw readings: the
// factor must be finite and positive. An erased EEPROM cell decodes as NaN.
func (s Settings) Plausible() bool {
	return PlausibleFactor(s.CalibrationFactor)
}

// PlausibleFactor reports whether f is finite and positive.
func PlausibleFactor(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0) && f > 0
}

// Encode returns the fixed-size record for s.
func (s Settings) Encode() []byte {
	b := make([]byte, RecordSize)
	binary.LittleEndian.PutUint64(b[0:8], math.Float64bits(s.CalibrationFactor))
	binary.LittleEndian.PutUint64(b[8:16], uint64(s.ZeroOffset))
	return b
}

// DecodeSettings is the inverse of Encode.
func DecodeSettings(b []byte) (Settings, error) {
	if len(b) != RecordSize {
		return Settings{}, fmt.Errorf("settings record is %d bytes, want %d", len(b), RecordSize)
	}
	return Settings{
		CalibrationFactor: math.Float64frombits(binary.LittleEndian.Uint64(b[0:8])),
		ZeroOffset:        int64(binary.LittleEndian.Uint64(b[8:16])),
	}, nil
}

// Manager maps channel slots onto a Store. A slot of a given bank lives at
// bank*Channels*RecordSize + slot*RecordSize, so a single-bank layout is
// simply slot*RecordSize.
type Manager struct {
	store  Store
	copies int
}

// MaxCopies is the number of whole banks that fit in size bytes.
func MaxCopies(size int) int {
	return size / (Channels * RecordSize)
}

// NewManager returns a Manager writing copies redundant banks (minimum 1).
// When store reports its size, copies is clamped to the banks that fit.
func NewManager(store Store, copies int) *Manager {
	if copies < 1 {
		copies = 1
	}
	if s, ok := store.(Sizer); ok {
		if fit := MaxCopies(s.Size()); fit >= 1 && copies > fit {
			monitoring.Logf("persist: %d copies do not fit in %d bytes, using %d", copies, s.Size(), fit)
			copies = fit
		}
	}
	return &Manager{store: store, copies: copies}
}

// Copies returns the number of redundant banks.
func (m *Manager) Copies() int { return m.copies }

// SlotAddress returns the base address of slot in the given bank.
func SlotAddress(bank, slot int) int {
	return bank*Channels*RecordSize + slot*RecordSize
}

func checkSlot(slot int) error {
	if slot < 0 || slot >= Channels {
		return fmt.Errorf("%w: slot %d", ErrOutOfRange, slot)
	}
	return nil
}

// Save writes s into slot in every bank. Other slots are not touched.
func (m *Manager) Save(slot int, s Settings) error {
	if err := checkSlot(slot); err != nil {
		return err
	}
	if !s.Plausible() {
		return fmt.Errorf("refusing to store calibration factor %v", s.CalibrationFactor)
	}
	rec := s.Encode()
	for k := 0; k < m.copies; k++ {
		if err := m.store.Write(SlotAddress(k, slot), rec); err != nil {
			return fmt.Errorf("failed to write slot %d copy %d: %w", slot, k, err)
		}
	}
	return nil
}

// Load reads slot. When no bank holds a plausible record it returns Identity
// and false. With several banks the value held by most plausible copies wins,
// ties going to the lowest bank.
func (m *Manager) Load(slot int) (Settings, bool) {
	if err := checkSlot(slot); err != nil {
		monitoring.Logf("persist: %v", err)
		return Identity, false
	}

	var candidates []Settings
	for k := 0; k < m.copies; k++ {
		b, err := m.store.Read(SlotAddress(k, slot), RecordSize)
		if err != nil {
			monitoring.Logf("persist: slot %d copy %d unreadable: %v", slot, k, err)
			continue
		}
		s, err := DecodeSettings(b)
		if err != nil || !s.Plausible() {
			continue
		}
		candidates = append(candidates, s)
	}
	if len(candidates) == 0 {
		return Identity, false
	}

	best, bestVotes := candidates[0], 0
	for _, c := range candidates {
		votes := 0
		for _, o := range candidates {
			if o == c {
				votes++
			}
		}
		if votes > bestVotes {
			best, bestVotes = c, votes
		}
	}
	if bestVotes < len(candidates) {
		monitoring.Logf("persist: slot %d copies disagree, using value held by %d of %d", slot, bestVotes, len(candidates))
	}
	return best, true
}
