// internal/analyzer/analyzer.go
package analyzer

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"math"
	"time"

	_ "image/gif"
	_ "image/png"

	"github.com/sua-org/lux-bus/internal/core"
)

// Coeficientes de luma ITU-R BT.709.
const (
	lumaR = 0.2126
	lumaG = 0.7152
	lumaB = 0.0722
)

// Qualidade fixa do re-encode JPEG do frame analisado.
const jpegQuality = 85

const (
	ReasonUnparseable      = "unparseable"
	ReasonDegenerateRegion = "degenerate_region"
)

// DecodeError é fatal só para o ciclo corrente: o poller registra a
// falha e espera o próximo tick, nunca derruba o processo.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("decode (%s)", e.Reason)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Process decodifica o frame e calcula RGB médio + brilho percentual.
// Função pura: mesmo buffer + mesma config => mesmo resultado.
//
// O brilho é SEMPRE derivado do RGB médio sem ajuste; as faixas de
// brilho e de cor são remapeamentos independentes sobre os mesmos
// valores médios, não encadeados.
func Process(data []byte, cfg core.SourceConfig) (core.Analysis, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return core.Analysis{}, &DecodeError{Reason: ReasonUnparseable, Err: err}
	}

	region := img.Bounds()
	cropped := false
	if cfg.Crop != nil {
		// Retângulo fora dos limites do frame é recortado para a
		// interseção; interseção vazia é região degenerada.
		want := image.Rect(cfg.Crop.X0, cfg.Crop.Y0, cfg.Crop.X1, cfg.Crop.Y1).
			Add(img.Bounds().Min)
		region = want.Intersect(img.Bounds())
		cropped = true
	}

	totalPixels := region.Dx() * region.Dy()
	if totalPixels < 1 {
		return core.Analysis{}, &DecodeError{
			Reason: ReasonDegenerateRegion,
			Err:    fmt.Errorf("crop %v fora do frame %v", cfg.Crop, img.Bounds()),
		}
	}

	// Força representação em 3 canais: RGBA() entrega 16 bits por canal
	// para qualquer modelo de cor (YCbCr de JPEG, paletado de PNG, etc.).
	var sumR, sumG, sumB uint64
	for y := region.Min.Y; y < region.Max.Y; y++ {
		for x := region.Min.X; x < region.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			sumR += uint64(r >> 8)
			sumG += uint64(g >> 8)
			sumB += uint64(b >> 8)
		}
	}

	avgR := float64(sumR) / float64(totalPixels)
	avgG := float64(sumG) / float64(totalPixels)
	avgB := float64(sumB) / float64(totalPixels)

	lumaY := lumaR*avgR + lumaG*avgG + lumaB*avgB
	brightness := lumaY / 255 * 100

	brightnessAdjusted := false
	if cfg.BrightnessRange != nil {
		span := cfg.BrightnessRange.Max - cfg.BrightnessRange.Min
		brightness = clamp((brightness-cfg.BrightnessRange.Min)/span*100, 0, 100)
		brightnessAdjusted = true
	}

	colorAdjusted := false
	if cfg.ColorRange != nil {
		avgR = rescaleChannel(avgR, cfg.ColorRange.R)
		avgG = rescaleChannel(avgG, cfg.ColorRange.G)
		avgB = rescaleChannel(avgB, cfg.ColorRange.B)
		colorAdjusted = true
	}

	r := int(math.Round(avgR))
	g := int(math.Round(avgG))
	b := int(math.Round(avgB))

	result := core.Analysis{
		Brightness:         round2(brightness),
		R:                  r,
		G:                  g,
		B:                  b,
		RGBString:          fmt.Sprintf("%d, %d, %d", r, g, b),
		Cropped:            cropped,
		BrightnessAdjusted: brightnessAdjusted,
		ColorAdjusted:      colorAdjusted,
		SourceID:           cfg.SourceID,
		SourceType:         cfg.Kind,
		Timestamp:          time.Now().UTC(),
	}

	if cfg.EmitRawImage {
		frame, err := encodeRegion(img, region)
		if err != nil {
			return core.Analysis{}, &DecodeError{Reason: ReasonUnparseable, Err: err}
		}
		result.RawFrame = frame
	}

	return result, nil
}

// rescaleChannel aplica a faixa linear de um canal: abaixo de min vira 0,
// acima de max vira 255, no meio interpola. Trunca como o wizard original.
func rescaleChannel(v float64, r core.Range) float64 {
	span := r.Max - r.Min
	return clamp(math.Trunc((v-r.Min)/span*255), 0, 255)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// encodeRegion re-encoda a região analisada como JPEG q85.
func encodeRegion(img image.Image, region image.Rectangle) ([]byte, error) {
	var src image.Image = img
	if region != img.Bounds() {
		rgba := image.NewRGBA(image.Rect(0, 0, region.Dx(), region.Dy()))
		draw.Draw(rgba, rgba.Bounds(), img, region.Min, draw.Src)
		src = rgba
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, src, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("re-encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
