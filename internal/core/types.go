// internal/core/types.go
package core

import "time"

type SourceKind string

const (
	SourceFrigate  SourceKind = "frigate"
	SourceSnapshot SourceKind = "snapshot"
)

// CropRegion é o retângulo (em pixels) usado para limitar a amostragem.
// Invariante (garantida no build da config): X0 < X1 e Y0 < Y1.
type CropRegion struct {
	X0 int `json:"top_left_x"`
	Y0 int `json:"top_left_y"`
	X1 int `json:"bottom_right_x"`
	Y1 int `json:"bottom_right_y"`
}

// Range é uma faixa linear (min,max) de calibração. Invariante: Min < Max.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// ColorRange guarda uma faixa por canal, aplicada de forma independente.
type ColorRange struct {
	R Range `json:"r"`
	G Range `json:"g"`
	B Range `json:"b"`
}

// SourceConfig é a configuração imutável de uma fonte de luz (câmera).
// Criada apenas pelo ConfigBuilder; o pipeline nunca revalida as invariantes.
type SourceConfig struct {
	SourceID string     `json:"source_id"`
	Kind     SourceKind `json:"source_type"`

	// Para frigate: raiz do NVR (http://frigate:5000). Para snapshot: URL completa da imagem.
	BaseURL  string `json:"base_url"`
	CameraID string `json:"camera"`

	PollIntervalSeconds int `json:"scan_interval"`

	Crop            *CropRegion `json:"crop,omitempty"`
	BrightnessRange *Range      `json:"brightness_range,omitempty"`
	ColorRange      *ColorRange `json:"color_range,omitempty"`

	// Se true, o frame re-encodado (JPEG q85) acompanha o resultado
	// e é enviado pro MinIO quando houver store configurado.
	EmitRawImage bool `json:"emit_raw_image"`
}

func (c SourceConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// Analysis é o resultado de um ciclo de poll bem-sucedido.
// Imutável depois de publicado: cada ciclo produz uma instância nova.
type Analysis struct {
	Brightness float64 `json:"brightness"`
	R          int     `json:"r"`
	G          int     `json:"g"`
	B          int     `json:"b"`
	RGBString  string  `json:"rgb_string"`

	Cropped            bool `json:"cropped"`
	BrightnessAdjusted bool `json:"brightness_adjusted"`
	ColorAdjusted      bool `json:"color_adjusted"`

	SourceID   string     `json:"source_id,omitempty"`
	SourceType SourceKind `json:"source_type,omitempty"`
	Timestamp  time.Time  `json:"timestamp,omitempty"`

	// URL pública do frame no MinIO (quando EmitRawImage e store disponível).
	FrameURL string `json:"frame_url,omitempty"`

	// Bytes crus do frame re-encodado em memória (NÃO vai pro JSON / MQTT).
	RawFrame []byte `json:"-"`
}
