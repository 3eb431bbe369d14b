// internal/core/config_test.go
package core

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuilderHappyPath(t *testing.T) {
	cfg, err := NewConfigBuilder("entrada").
		Source(SourceFrigate, "http://frigate:5000/", "entrada", 30).
		Crop(&CropRegion{X0: 0, Y0: 0, X1: 640, Y1: 360}).
		Calibration(&Range{Min: 10, Max: 90}, nil).
		EmitRawImage(true).
		Build()
	require.NoError(t, err)

	require.Equal(t, "entrada", cfg.SourceID)
	require.Equal(t, SourceFrigate, cfg.Kind)
	require.Equal(t, "http://frigate:5000", cfg.BaseURL) // barra final removida
	require.Equal(t, 30, cfg.PollIntervalSeconds)
	require.NotNil(t, cfg.Crop)
	require.NotNil(t, cfg.BrightnessRange)
	require.Nil(t, cfg.ColorRange)
	require.True(t, cfg.EmitRawImage)
}

func TestBuilderValidation(t *testing.T) {
	cases := []struct {
		name  string
		build func() (SourceConfig, error)
		field string
	}{
		{
			"empty source id",
			func() (SourceConfig, error) {
				return NewConfigBuilder(" ").Source(SourceFrigate, "http://x", "c", 60).Build()
			},
			"source_id",
		},
		{
			"unknown source type",
			func() (SourceConfig, error) {
				return NewConfigBuilder("s").Source(SourceKind("rtsp"), "http://x", "c", 60).Build()
			},
			"source_type",
		},
		{
			"missing base url",
			func() (SourceConfig, error) {
				return NewConfigBuilder("s").Source(SourceFrigate, "", "c", 60).Build()
			},
			"base_url",
		},
		{
			"non http url",
			func() (SourceConfig, error) {
				return NewConfigBuilder("s").Source(SourceSnapshot, "ftp://x/y.jpg", "", 60).Build()
			},
			"base_url",
		},
		{
			"frigate requires camera",
			func() (SourceConfig, error) {
				return NewConfigBuilder("s").Source(SourceFrigate, "http://x", "", 60).Build()
			},
			"camera",
		},
		{
			"interval below floor",
			func() (SourceConfig, error) {
				return NewConfigBuilder("s").Source(SourceFrigate, "http://x", "c", 4).Build()
			},
			"scan_interval",
		},
		{
			"inverted crop x",
			func() (SourceConfig, error) {
				return NewConfigBuilder("s").
					Source(SourceFrigate, "http://x", "c", 60).
					Crop(&CropRegion{X0: 10, Y0: 0, X1: 5, Y1: 10}).Build()
			},
			"bottom_right_x",
		},
		{
			"inverted crop y",
			func() (SourceConfig, error) {
				return NewConfigBuilder("s").
					Source(SourceFrigate, "http://x", "c", 60).
					Crop(&CropRegion{X0: 0, Y0: 10, X1: 5, Y1: 10}).Build()
			},
			"bottom_right_y",
		},
		{
			"negative crop origin",
			func() (SourceConfig, error) {
				return NewConfigBuilder("s").
					Source(SourceFrigate, "http://x", "c", 60).
					Crop(&CropRegion{X0: -1, Y0: 0, X1: 5, Y1: 10}).Build()
			},
			"top_left",
		},
		{
			"brightness range inverted",
			func() (SourceConfig, error) {
				return NewConfigBuilder("s").
					Source(SourceFrigate, "http://x", "c", 60).
					Calibration(&Range{Min: 80, Max: 20}, nil).Build()
			},
			"brightness_range",
		},
		{
			"brightness range out of bounds",
			func() (SourceConfig, error) {
				return NewConfigBuilder("s").
					Source(SourceFrigate, "http://x", "c", 60).
					Calibration(&Range{Min: 0, Max: 120}, nil).Build()
			},
			"brightness_range",
		},
		{
			"color range inverted channel",
			func() (SourceConfig, error) {
				return NewConfigBuilder("s").
					Source(SourceFrigate, "http://x", "c", 60).
					Calibration(nil, &ColorRange{
						R: Range{Min: 0, Max: 255},
						G: Range{Min: 200, Max: 100},
						B: Range{Min: 0, Max: 255},
					}).Build()
			},
			"color_range.g",
		},
		{
			"skipped source step",
			func() (SourceConfig, error) {
				return NewConfigBuilder("s").Build()
			},
			"source_type",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.build()
			var cerr *ConfigError
			require.ErrorAs(t, err, &cerr)
			require.Equal(t, tc.field, cerr.Field)
		})
	}
}

func TestIntervalDefaultsWhenZero(t *testing.T) {
	cfg, err := NewConfigBuilder("s").
		Source(SourceSnapshot, "http://cam/snap.jpg", "", 0).
		Build()
	require.NoError(t, err)
	require.Equal(t, DefaultPollIntervalSeconds, cfg.PollIntervalSeconds)
}

func TestMergeOptionsOverrideData(t *testing.T) {
	data := map[string]interface{}{"a": 1, "b": 2}
	options := map[string]interface{}{"b": 3, "c": 4}

	merged := Merge(data, options)
	require.Equal(t, 1, merged["a"])
	require.Equal(t, 3, merged["b"]) // options vence
	require.Equal(t, 4, merged["c"])

	// originais intactos
	require.Equal(t, 2, data["b"])
}

func TestParseSourcePayload(t *testing.T) {
	payload := []byte(`{
		"data": {
			"source_type": "frigate",
			"base_url": "http://frigate:5000",
			"camera": "entrada",
			"scan_interval": 60
		},
		"options": {
			"scan_interval": 15,
			"top_left_x": 10, "top_left_y": 20,
			"bottom_right_x": 300, "bottom_right_y": 200,
			"enable_brightness_adjustment": true,
			"min_brightness": 20, "max_brightness": 80,
			"enable_image_entity": true
		}
	}`)

	cfg, err := ParseSourcePayload("entrada", payload)
	require.NoError(t, err)

	require.Equal(t, SourceFrigate, cfg.Kind)
	require.Equal(t, 15, cfg.PollIntervalSeconds) // options sobrescreve data
	require.Equal(t, &CropRegion{X0: 10, Y0: 20, X1: 300, Y1: 200}, cfg.Crop)
	require.Equal(t, &Range{Min: 20, Max: 80}, cfg.BrightnessRange)
	require.Nil(t, cfg.ColorRange)
	require.True(t, cfg.EmitRawImage)
}

func TestParseSourcePayloadDefaults(t *testing.T) {
	payload := []byte(`{"data": {"base_url": "http://frigate:5000", "camera": "quintal"}}`)

	cfg, err := ParseSourcePayload("quintal", payload)
	require.NoError(t, err)

	require.Equal(t, SourceFrigate, cfg.Kind) // default
	require.Equal(t, DefaultPollIntervalSeconds, cfg.PollIntervalSeconds)
	require.Nil(t, cfg.Crop)
	require.False(t, cfg.EmitRawImage)
}

func TestParseSourcePayloadBrightnessDefaults(t *testing.T) {
	payload := []byte(`{"data": {
		"source_type": "snapshot",
		"base_url": "http://cam/snap.jpg",
		"enable_brightness_adjustment": true,
		"enable_color_adjustment": true,
		"min_color_r": 30, "max_color_r": 220
	}}`)

	cfg, err := ParseSourcePayload("cam", payload)
	require.NoError(t, err)

	require.Equal(t, &Range{Min: 0, Max: 100}, cfg.BrightnessRange)
	require.Equal(t, Range{Min: 30, Max: 220}, cfg.ColorRange.R)
	require.Equal(t, Range{Min: 0, Max: 255}, cfg.ColorRange.G) // default por canal
}

func TestParseSourcePayloadSnapshotURLCompat(t *testing.T) {
	payload := []byte(`{"data": {
		"source_type": "snapshot",
		"base_url": "http://frigate:5000",
		"snapshot_url": "http://cam.local/snap.jpg"
	}}`)

	cfg, err := ParseSourcePayload("cam", payload)
	require.NoError(t, err)
	require.Equal(t, "http://cam.local/snap.jpg", cfg.BaseURL)
}

func TestParseSourcePayloadRejectsInvalid(t *testing.T) {
	cases := [][]byte{
		[]byte(`not json`),
		[]byte(`{"data": {"source_type": "frigate", "base_url": "http://x", "camera": "c", "scan_interval": 2}}`),
		[]byte(`{"data": {
			"source_type": "frigate", "base_url": "http://x", "camera": "c",
			"top_left_x": 100, "top_left_y": 0, "bottom_right_x": 50, "bottom_right_y": 50
		}}`),
	}

	for _, payload := range cases {
		_, err := ParseSourcePayload("s", payload)
		var cerr *ConfigError
		require.ErrorAs(t, err, &cerr)
	}
}

func TestConfigEqual(t *testing.T) {
	base, err := NewConfigBuilder("s").
		Source(SourceFrigate, "http://x", "c", 60).
		Crop(&CropRegion{X0: 0, Y0: 0, X1: 10, Y1: 10}).
		Build()
	require.NoError(t, err)

	same := base
	same.Crop = &CropRegion{X0: 0, Y0: 0, X1: 10, Y1: 10} // ponteiro diferente, valor igual
	require.True(t, ConfigEqual(base, same))

	changed := base
	changed.PollIntervalSeconds = 30
	require.False(t, ConfigEqual(base, changed))

	noCrop := base
	noCrop.Crop = nil
	require.False(t, ConfigEqual(base, noCrop))

	otherRange := base
	otherRange.BrightnessRange = &Range{Min: 0, Max: 50}
	require.False(t, ConfigEqual(base, otherRange))
}
