package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
# host configuration
[auto_offset]
probe: tap_probe
sensor = bed_sensor
park_x: 175.0
probe_samples: 5
enable_heating: off

[auto_offset]
park_y: 350  # inline comment
`

func TestLoadString(t *testing.T) {
	cfg, err := LoadString(sample)
	require.NoError(t, err)

	assert.True(t, cfg.HasSection("auto_offset"))
	assert.Equal(t, []string{"auto_offset"}, cfg.SectionNames())

	sec, err := cfg.Section("auto_offset")
	require.NoError(t, err)

	v, err := sec.Get("probe")
	require.NoError(t, err)
	assert.Equal(t, "tap_probe", v)

	// '=' separator and duplicate section merging both work.
	v, err = sec.Get("sensor")
	require.NoError(t, err)
	assert.Equal(t, "bed_sensor", v)
	f, err := sec.GetFloat("park_y")
	require.NoError(t, err)
	assert.Equal(t, 350.0, f)
}

func TestTypedGetters(t *testing.T) {
	cfg, err := LoadString(sample)
	require.NoError(t, err)
	sec, _ := cfg.Section("auto_offset")

	n, err := sec.GetInt("probe_samples")
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	b, err := sec.GetBool("enable_heating")
	require.NoError(t, err)
	assert.False(t, b)

	f, err := sec.GetFloatMin("park_x", 0)
	require.NoError(t, err)
	assert.Equal(t, 175.0, f)

	_, err = sec.GetFloatMin("park_x", 200)
	assert.Error(t, err)
}

func TestFallbacks(t *testing.T) {
	cfg, err := LoadString(sample)
	require.NoError(t, err)
	sec, _ := cfg.Section("auto_offset")

	v, err := sec.Get("missing", "default")
	require.NoError(t, err)
	assert.Equal(t, "default", v)

	n, err := sec.GetInt("missing", 3)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = sec.Get("missing")
	require.Error(t, err)
	var cerr *Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "missing", cerr.Option)
}

func TestInvalidValues(t *testing.T) {
	cfg, err := LoadString("[s]\nnum: abc\nflag: maybe\n")
	require.NoError(t, err)
	sec, _ := cfg.Section("s")

	_, err = sec.GetInt("num")
	assert.Error(t, err)
	_, err = sec.GetFloat("num")
	assert.Error(t, err)
	_, err = sec.GetBool("flag")
	assert.Error(t, err)
}

func TestMissingSection(t *testing.T) {
	cfg, err := LoadString(sample)
	require.NoError(t, err)

	_, err = cfg.Section("nope")
	assert.Error(t, err)
	assert.Nil(t, cfg.SectionOptional("nope"))
}

func TestCaseInsensitiveOptions(t *testing.T) {
	cfg, err := LoadString("[s]\nPark_X: 1.5\n")
	require.NoError(t, err)
	sec, _ := cfg.Section("s")

	f, err := sec.GetFloat("park_x")
	require.NoError(t, err)
	assert.Equal(t, 1.5, f)
	assert.True(t, sec.HasOption("PARK_X"))
}
