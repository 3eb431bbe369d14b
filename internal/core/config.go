// internal/core/config.go
package core

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	DefaultPollIntervalSeconds = 60
	MinPollIntervalSeconds     = 5
)

// ConfigError é erro de validação na montagem da SourceConfig.
// Acontece SEMPRE no build (wizard), nunca dentro do pipeline.
type ConfigError struct {
	Step   string
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: step %s, field %s: %s", e.Step, e.Field, e.Reason)
}

// Merge aplica a regra options-sobrescreve-data uma única vez,
// no momento da construção (não a cada acesso).
func Merge(data, options map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(data)+len(options))
	for k, v := range data {
		out[k] = v
	}
	for k, v := range options {
		out[k] = v
	}
	return out
}

// ConfigBuilder monta uma SourceConfig em etapas ordenadas, cada etapa
// validando sua fatia. A config só existe depois do Build() sem erro.
//
//	cfg, err := core.NewConfigBuilder("entrada").
//		Source(core.SourceFrigate, "http://frigate:5000", "entrada", 60).
//		Crop(&core.CropRegion{X0: 0, Y0: 0, X1: 640, Y1: 360}).
//		Calibration(nil, nil).
//		Build()
type ConfigBuilder struct {
	cfg SourceConfig
	err error
}

func NewConfigBuilder(sourceID string) *ConfigBuilder {
	b := &ConfigBuilder{}
	b.cfg.SourceID = strings.TrimSpace(sourceID)
	if b.cfg.SourceID == "" {
		b.err = &ConfigError{Step: "source", Field: "source_id", Reason: "obrigatório"}
	}
	return b
}

// Source é a primeira etapa: tipo da fonte, URL e intervalo.
func (b *ConfigBuilder) Source(kind SourceKind, baseURL, cameraID string, intervalSeconds int) *ConfigBuilder {
	if b.err != nil {
		return b
	}

	switch kind {
	case SourceFrigate, SourceSnapshot:
	default:
		b.err = &ConfigError{Step: "source", Field: "source_type", Reason: fmt.Sprintf("tipo desconhecido %q", kind)}
		return b
	}

	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		b.err = &ConfigError{Step: "source", Field: "base_url", Reason: "obrigatório"}
		return b
	}
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		b.err = &ConfigError{Step: "source", Field: "base_url", Reason: "precisa ser http:// ou https://"}
		return b
	}

	cameraID = strings.TrimSpace(cameraID)
	if kind == SourceFrigate && cameraID == "" {
		b.err = &ConfigError{Step: "source", Field: "camera", Reason: "obrigatório para fonte frigate"}
		return b
	}

	if intervalSeconds == 0 {
		intervalSeconds = DefaultPollIntervalSeconds
	}
	if intervalSeconds < MinPollIntervalSeconds {
		b.err = &ConfigError{
			Step:   "source",
			Field:  "scan_interval",
			Reason: fmt.Sprintf("mínimo é %ds, recebido %ds", MinPollIntervalSeconds, intervalSeconds),
		}
		return b
	}

	b.cfg.Kind = kind
	b.cfg.BaseURL = strings.TrimSuffix(baseURL, "/")
	if kind == SourceSnapshot {
		// snapshot usa a URL verbatim
		b.cfg.BaseURL = baseURL
	}
	b.cfg.CameraID = cameraID
	b.cfg.PollIntervalSeconds = intervalSeconds
	return b
}

// Crop é a segunda etapa (opcional, nil = frame inteiro).
func (b *ConfigBuilder) Crop(crop *CropRegion) *ConfigBuilder {
	if b.err != nil || crop == nil {
		return b
	}

	if crop.X0 < 0 || crop.Y0 < 0 {
		b.err = &ConfigError{Step: "crop", Field: "top_left", Reason: "coordenadas não podem ser negativas"}
		return b
	}
	if crop.X0 >= crop.X1 {
		b.err = &ConfigError{Step: "crop", Field: "bottom_right_x", Reason: "exige top_left_x < bottom_right_x"}
		return b
	}
	if crop.Y0 >= crop.Y1 {
		b.err = &ConfigError{Step: "crop", Field: "bottom_right_y", Reason: "exige top_left_y < bottom_right_y"}
		return b
	}

	c := *crop
	b.cfg.Crop = &c
	return b
}

// Calibration é a etapa final de faixas lineares (ambas opcionais).
func (b *ConfigBuilder) Calibration(brightness *Range, color *ColorRange) *ConfigBuilder {
	if b.err != nil {
		return b
	}

	if brightness != nil {
		if err := validateRange("brightness_range", *brightness, 0, 100); err != nil {
			b.err = err
			return b
		}
		r := *brightness
		b.cfg.BrightnessRange = &r
	}

	if color != nil {
		for _, ch := range []struct {
			name string
			r    Range
		}{
			{"color_range.r", color.R},
			{"color_range.g", color.G},
			{"color_range.b", color.B},
		} {
			if err := validateRange(ch.name, ch.r, 0, 255); err != nil {
				b.err = err
				return b
			}
		}
		c := *color
		b.cfg.ColorRange = &c
	}

	return b
}

// EmitRawImage liga o re-encode do frame analisado (entidade de imagem).
func (b *ConfigBuilder) EmitRawImage(enabled bool) *ConfigBuilder {
	if b.err != nil {
		return b
	}
	b.cfg.EmitRawImage = enabled
	return b
}

func (b *ConfigBuilder) Build() (SourceConfig, error) {
	if b.err != nil {
		return SourceConfig{}, b.err
	}
	if b.cfg.Kind == "" {
		return SourceConfig{}, &ConfigError{Step: "source", Field: "source_type", Reason: "etapa source não executada"}
	}
	return b.cfg, nil
}

func validateRange(field string, r Range, lo, hi float64) error {
	if r.Min < lo || r.Max > hi {
		return &ConfigError{
			Step:   "calibration",
			Field:  field,
			Reason: fmt.Sprintf("faixa precisa estar em [%g,%g]", lo, hi),
		}
	}
	if r.Min >= r.Max {
		return &ConfigError{Step: "calibration", Field: field, Reason: "exige min < max"}
	}
	return nil
}

// ----------------------------------
// Payload de config via MQTT
// ----------------------------------

// sourcePayload é o envelope que chega no tópico retained de config:
// {"data": {...}, "options": {...}} — options sobrescreve data.
type sourcePayload struct {
	Data    map[string]interface{} `json:"data"`
	Options map[string]interface{} `json:"options"`
}

// sourceSettings é a forma achatada depois do merge, com as mesmas
// chaves que o wizard original grava.
type sourceSettings struct {
	SourceType   string `json:"source_type"`
	BaseURL      string `json:"base_url"`
	SnapshotURL  string `json:"snapshot_url"`
	Camera       string `json:"camera"`
	ScanInterval int    `json:"scan_interval"`

	TopLeftX     *int `json:"top_left_x"`
	TopLeftY     *int `json:"top_left_y"`
	BottomRightX *int `json:"bottom_right_x"`
	BottomRightY *int `json:"bottom_right_y"`

	EnableBrightnessAdjustment bool     `json:"enable_brightness_adjustment"`
	MinBrightness              *float64 `json:"min_brightness"`
	MaxBrightness              *float64 `json:"max_brightness"`

	EnableColorAdjustment bool     `json:"enable_color_adjustment"`
	MinColorR             *float64 `json:"min_color_r"`
	MinColorG             *float64 `json:"min_color_g"`
	MinColorB             *float64 `json:"min_color_b"`
	MaxColorR             *float64 `json:"max_color_r"`
	MaxColorG             *float64 `json:"max_color_g"`
	MaxColorB             *float64 `json:"max_color_b"`

	EnableImageEntity bool `json:"enable_image_entity"`
}

// ParseSourcePayload decodifica o envelope data/options, aplica o merge
// e passa tudo pelo builder. Qualquer invariante quebrada volta como
// ConfigError — o pipeline nunca vê config inválida.
func ParseSourcePayload(sourceID string, payload []byte) (SourceConfig, error) {
	var env sourcePayload
	if err := json.Unmarshal(payload, &env); err != nil {
		return SourceConfig{}, &ConfigError{Step: "source", Field: "payload", Reason: err.Error()}
	}

	merged, err := json.Marshal(Merge(env.Data, env.Options))
	if err != nil {
		return SourceConfig{}, &ConfigError{Step: "source", Field: "payload", Reason: err.Error()}
	}

	var s sourceSettings
	if err := json.Unmarshal(merged, &s); err != nil {
		return SourceConfig{}, &ConfigError{Step: "source", Field: "payload", Reason: err.Error()}
	}

	kind := SourceKind(strings.ToLower(strings.TrimSpace(s.SourceType)))
	if kind == "" {
		kind = SourceFrigate
	}

	baseURL := s.BaseURL
	if kind == SourceSnapshot && strings.TrimSpace(s.SnapshotURL) != "" {
		// compat: o wizard antigo gravava a URL direta em snapshot_url
		baseURL = s.SnapshotURL
	}

	b := NewConfigBuilder(sourceID).
		Source(kind, baseURL, s.Camera, s.ScanInterval)

	if s.TopLeftX != nil && s.TopLeftY != nil && s.BottomRightX != nil && s.BottomRightY != nil {
		b.Crop(&CropRegion{
			X0: *s.TopLeftX,
			Y0: *s.TopLeftY,
			X1: *s.BottomRightX,
			Y1: *s.BottomRightY,
		})
	}

	var br *Range
	if s.EnableBrightnessAdjustment {
		br = &Range{Min: 0, Max: 100}
		if s.MinBrightness != nil {
			br.Min = *s.MinBrightness
		}
		if s.MaxBrightness != nil {
			br.Max = *s.MaxBrightness
		}
	}

	var cr *ColorRange
	if s.EnableColorAdjustment {
		cr = &ColorRange{
			R: Range{Min: 0, Max: 255},
			G: Range{Min: 0, Max: 255},
			B: Range{Min: 0, Max: 255},
		}
		if s.MinColorR != nil {
			cr.R.Min = *s.MinColorR
		}
		if s.MaxColorR != nil {
			cr.R.Max = *s.MaxColorR
		}
		if s.MinColorG != nil {
			cr.G.Min = *s.MinColorG
		}
		if s.MaxColorG != nil {
			cr.G.Max = *s.MaxColorG
		}
		if s.MinColorB != nil {
			cr.B.Min = *s.MinColorB
		}
		if s.MaxColorB != nil {
			cr.B.Max = *s.MaxColorB
		}
	}

	return b.Calibration(br, cr).
		EmitRawImage(s.EnableImageEntity).
		Build()
}

// ConfigEqual compara duas configs para decidir se o worker precisa
// ser reiniciado quando chega update no tópico retained.
func ConfigEqual(a, b SourceConfig) bool {
	if a.SourceID != b.SourceID ||
		a.Kind != b.Kind ||
		a.BaseURL != b.BaseURL ||
		a.CameraID != b.CameraID ||
		a.PollIntervalSeconds != b.PollIntervalSeconds ||
		a.EmitRawImage != b.EmitRawImage {
		return false
	}
	if (a.Crop == nil) != (b.Crop == nil) || (a.Crop != nil && *a.Crop != *b.Crop) {
		return false
	}
	if (a.BrightnessRange == nil) != (b.BrightnessRange == nil) ||
		(a.BrightnessRange != nil && *a.BrightnessRange != *b.BrightnessRange) {
		return false
	}
	if (a.ColorRange == nil) != (b.ColorRange == nil) ||
		(a.ColorRange != nil && *a.ColorRange != *b.ColorRange) {
		return false
	}
	return true
}
