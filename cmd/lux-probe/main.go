// cmd/lux-probe/main.go
//
// Ferramenta de teste: busca UM frame da fonte, roda a análise e
// imprime a leitura em JSON. Útil pra calibrar crop e faixas sem
// subir o serviço inteiro.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/sua-org/lux-bus/internal/analyzer"
	"github.com/sua-org/lux-bus/internal/core"
	"github.com/sua-org/lux-bus/internal/fetcher"
)

func main() {
	var (
		kind     = flag.String("type", "frigate", "tipo da fonte: frigate ou snapshot")
		baseURL  = flag.String("url", "", "base URL (frigate) ou URL direta da imagem (snapshot)")
		camera   = flag.String("camera", "", "nome da câmera no Frigate")
		crop     = flag.String("crop", "", "retângulo x0,y0,x1,y1 (opcional)")
		emit     = flag.Bool("emit-frame", false, "re-encoda o frame analisado")
		out      = flag.String("out", "", "salva o frame re-encodado nesse arquivo (implica -emit-frame)")
		interval = flag.Int("interval", 60, "scan_interval usado só pra validação")
	)
	flag.Parse()

	_ = godotenv.Load()

	if *baseURL == "" {
		log.Fatalf("uso: lux-probe -type frigate -url http://frigate:5000 -camera entrada")
	}

	var cropRegion *core.CropRegion
	if *crop != "" {
		var r core.CropRegion
		if _, err := fmt.Sscanf(*crop, "%d,%d,%d,%d", &r.X0, &r.Y0, &r.X1, &r.Y1); err != nil {
			log.Fatalf("crop inválido %q: %v", *crop, err)
		}
		cropRegion = &r
	}

	cfg, err := core.NewConfigBuilder("lux-probe").
		Source(core.SourceKind(*kind), *baseURL, *camera, *interval).
		Crop(cropRegion).
		Calibration(nil, nil).
		EmitRawImage(*emit || *out != "").
		Build()
	if err != nil {
		log.Fatalf("config inválida: %v", err)
	}

	ff, err := fetcher.New(cfg)
	if err != nil {
		log.Fatalf("erro ao criar fetcher: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), fetcher.Timeout)
	defer cancel()

	log.Printf("[probe] fetching frame from %s", ff.URL())
	data, err := ff.Fetch(ctx)
	if err != nil {
		log.Fatalf("fetch falhou: %v", err)
	}
	log.Printf("[probe] frame recebido: %d bytes", len(data))

	result, err := analyzer.Process(data, cfg)
	if err != nil {
		log.Fatalf("análise falhou: %v", err)
	}

	pretty, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(pretty))

	if *out != "" && len(result.RawFrame) > 0 {
		if err := os.WriteFile(*out, result.RawFrame, 0o644); err != nil {
			log.Fatalf("erro ao salvar frame em %s: %v", *out, err)
		}
		log.Printf("[probe] frame re-encodado salvo em: %s", *out)
	}
}
