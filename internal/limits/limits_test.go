package limits

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeIdentityOnEmptyOverrides(t *testing.T) {
	got := Merge(&Spec{})
	assert.Equal(t, Defaults, got)

	got = Merge(nil)
	assert.Equal(t, Defaults, got)
}

func TestMergeDerivesRealTimeFromCPUTime(t *testing.T) {
	cpu := 10
	got := Merge(&Spec{CPUTimeS: &cpu})
	require.NotNil(t, got.RealTimeS)
	assert.Equal(t, cpu*CPUToRealTimeFactor, *got.RealTimeS)
}

func TestMergeHonorsExplicitRealTime(t *testing.T) {
	cpu, realtime := 10, 2
	got := Merge(&Spec{CPUTimeS: &cpu, RealTimeS: &realtime})
	require.NotNil(t, got.RealTimeS)
	assert.Equal(t, realtime, *got.RealTimeS)
}

func TestMergeOverridesOnlySuppliedFields(t *testing.T) {
	mem := 256
	got := Merge(&Spec{MemoryMB: &mem})
	require.NotNil(t, got.CPUTimeS)
	assert.Equal(t, *Defaults.CPUTimeS, *got.CPUTimeS)
	require.NotNil(t, got.MemoryMB)
	assert.Equal(t, mem, *got.MemoryMB)
}

func TestUlimitsCPUAndFileSize(t *testing.T) {
	cpu := 3
	fsize := int64(1024)
	s := Spec{CPUTimeS: &cpu, FileSizeBytes: &fsize}
	ulimits := s.Ulimits()
	require.Len(t, ulimits, 2)
	assert.Equal(t, "cpu", ulimits[0].Name)
	assert.EqualValues(t, 3, ulimits[0].Soft)
	assert.EqualValues(t, 3, ulimits[0].Hard)
	assert.Equal(t, "fsize", ulimits[1].Name)
	assert.EqualValues(t, 1024, ulimits[1].Soft)
}

func TestUlimitsEmptyWhenUnset(t *testing.T) {
	assert.Nil(t, Spec{}.Ulimits())
}

func TestMemoryBytes(t *testing.T) {
	mem := 64
	s := Spec{MemoryMB: &mem}
	assert.EqualValues(t, 64*1024*1024, s.MemoryBytes())
	assert.EqualValues(t, 0, Spec{}.MemoryBytes())
}

func TestPidsLimit(t *testing.T) {
	assert.Nil(t, Spec{}.PidsLimit())

	unlimited := Unlimited
	s := Spec{Processes: &unlimited}
	require.NotNil(t, s.PidsLimit())
	assert.EqualValues(t, -1, *s.PidsLimit())
}
