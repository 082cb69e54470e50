package db

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/balance-lab/forceplate/internal/calibration"
	"github.com/balance-lab/forceplate/internal/cop"
	"github.com/balance-lab/forceplate/internal/monitoring"
	"github.com/balance-lab/forceplate/internal/persist"
)

func init() {
	monitoring.SetLogger(nil)
}

func newTestDB(t *testing.T) *DB {
	t.Helper()
	d, err := NewDB(filepath.Join(t.TempDir(), "plate.db"))
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d
}

func TestMigrations(t *testing.T) {
	t.Parallel()
	d, err := OpenDB(filepath.Join(t.TempDir(), "m.db"))
	require.NoError(t, err)
	defer d.Close()

	v, dirty, err := d.MigrateVersion(MigrationsFS())
	require.NoError(t, err)
	assert.Equal(t, uint(0), v)
	assert.False(t, dirty)

	require.NoError(t, d.MigrateUp(MigrationsFS()))
	require.NoError(t, d.MigrateUp(MigrationsFS()), "second run is a no-op")
	v, _, err = d.MigrateVersion(MigrationsFS())
	require.NoError(t, err)
	assert.Equal(t, uint(1), v)

	for _, table := range []string{"eeprom_bytes", "calibration_events", "recordings", "samples"} {
		var name string
		err := d.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		assert.NoError(t, err, table)
	}

	require.NoError(t, d.MigrateDown(MigrationsFS()))
	var n int
	require.NoError(t, d.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE name = 'samples'`).Scan(&n))
	assert.Zero(t, n)
}

func TestEEPROM_ErasedAndRoundTrip(t *testing.T) {
	t.Parallel()
	e := NewEEPROM(newTestDB(t), 0)

	got, err := e.Read(0, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF, 0xFF, 0xFF, 0xFF}, got)

	require.NoError(t, e.Write(2, []byte{0x00, 0x7F, 0x80}))
	require.NoError(t, e.Write(3, []byte{0x01}))
	got, err = e.Read(0, 6)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF, 0xFF, 0x00, 0x01, 0x80, 0xFF}, got)

	require.NoError(t, e.Erase())
	got, err = e.Read(2, 3)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF, 0xFF, 0xFF}, got)
}

func TestEEPROM_Bounds(t *testing.T) {
	t.Parallel()
	e := NewEEPROM(newTestDB(t), 64)

	_, err := e.Read(60, 8)
	assert.ErrorIs(t, err, persist.ErrOutOfRange)
	assert.ErrorIs(t, e.Write(-1, []byte{1}), persist.ErrOutOfRange)
	assert.ErrorIs(t, e.Write(64, []byte{1}), persist.ErrOutOfRange)
}

func TestEEPROM_BacksManager(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "plate.db")
	want := persist.Settings{CalibrationFactor: 21.75, ZeroOffset: 8_123_456}

	d, err := NewDB(path)
	require.NoError(t, err)
	m := persist.NewManager(NewEEPROM(d, 0), 2)
	require.NoError(t, m.Save(3, want))
	require.NoError(t, d.Close())

	d, err = NewDB(path)
	require.NoError(t, err)
	defer d.Close()
	got, ok := persist.NewManager(NewEEPROM(d, 0), 2).Load(3)
	assert.True(t, ok)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("settings mismatch after reopen (-want +got):\n%s", diff)
	}

	_, ok = persist.NewManager(NewEEPROM(d, 0), 2).Load(0)
	assert.False(t, ok, "untouched slot reads as erased")
}

func TestCalibrationEvents(t *testing.T) {
	t.Parallel()
	d := newTestDB(t)
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	var _ calibration.Recorder = d
	require.NoError(t, d.RecordCalibration(calibration.Result{
		KnownWeight: 100, Factors: [4]float64{40, 40.4, 39.6, 40.2}, Factor: 40.05, At: base,
	}))
	require.NoError(t, d.RecordCalibration(calibration.Result{
		KnownWeight: 50, Factors: [4]float64{41, 41, 41, 41}, Factor: 41, At: base.Add(time.Hour),
	}))

	events, err := d.CalibrationEvents(0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, 41.0, events[0].Factor, "newest first")
	assert.Equal(t, [4]float64{40, 40.4, 39.6, 40.2}, events[1].Factors)
	assert.True(t, base.Equal(events[1].At))

	events, err = d.CalibrationEvents(1)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestRecordings(t *testing.T) {
	t.Parallel()
	d := newTestDB(t)
	start := time.Date(2026, 5, 6, 7, 8, 9, 0, time.UTC)

	rec, err := d.StartRecording(KindWeights, "eyes closed", start)
	require.NoError(t, err)
	assert.Len(t, rec.ID, 36)

	samples := []Sample{
		{At: start, Weights: &[4]float64{10, 20, 30, 40}, CoP: cop.Coordinate{X: 0, Y: 0.4}},
		{At: start.Add(50 * time.Millisecond), Weights: &[4]float64{1, 1, 1, 1}},
	}
	require.NoError(t, d.AddSamples(rec.ID, samples[:1]))
	require.NoError(t, d.AddSamples(rec.ID, samples[1:]))

	got, err := d.Samples(rec.ID)
	require.NoError(t, err)
	if diff := cmp.Diff(samples, got); diff != "" {
		t.Errorf("samples mismatch (-want +got):\n%s", diff)
	}

	copRec, err := d.StartRecording(KindCoP, "", start.Add(time.Minute))
	require.NoError(t, err)
	require.NoError(t, d.AddSamples(copRec.ID, []Sample{{At: start, CoP: cop.Coordinate{X: -0.1, Y: 0.2}}}))
	got, err = d.Samples(copRec.ID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Nil(t, got[0].Weights)

	list, err := d.Recordings()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, copRec.ID, list[0].ID)
	assert.Equal(t, 2, list[1].Samples)
	assert.Equal(t, "eyes closed", list[1].Note)

	one, err := d.GetRecording(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, KindWeights, one.Kind)
	assert.True(t, start.Equal(one.StartedAt))

	require.NoError(t, d.DeleteRecording(rec.ID))
	_, err = d.GetRecording(rec.ID)
	assert.ErrorIs(t, err, ErrRecordingNotFound)
	assert.ErrorIs(t, d.DeleteRecording(rec.ID), ErrRecordingNotFound)
	left, err := d.Samples(rec.ID)
	require.NoError(t, err)
	assert.Empty(t, left, "samples cascade with the recording")
}

func TestStartRecording_UnknownKind(t *testing.T) {
	t.Parallel()
	_, err := newTestDB(t).StartRecording("raw", "", time.Now())
	assert.Error(t, err)
}
