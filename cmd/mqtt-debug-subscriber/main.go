// cmd/mqtt-debug-subscriber/main.go
package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/sua-org/lux-bus/internal/mqttclient"
)

func main() {
	_ = godotenv.Load()

	baseTopic := getenv("MQTT_BASE_TOPIC", "lux/cameras")

	// Só leituras: base/<source_id>/reading
	defaultDebugTopic := baseTopic + "/+/reading"
	subscribeTopic := getenv("MQTT_DEBUG_TOPIC", defaultDebugTopic)

	mqttCli, err := mqttclient.NewClientFromEnv("lux-bus-debug-subscriber")
	if err != nil {
		log.Fatalf("erro ao conectar no MQTT: %v", err)
	}
	defer mqttCli.Close()

	log.Printf("[debug] subscribed to topic: %s", subscribeTopic)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	if err := mqttCli.Subscribe(subscribeTopic, 1,
		func(topic string, payload []byte) {
			handleMessage(topic, payload)
		},
	); err != nil {
		log.Fatalf("erro ao assinar tópico %s: %v", subscribeTopic, err)
	}

	go func() {
		<-sig
		log.Println("[debug] sinal recebido, encerrando subscriber...")
		cancel()
	}()

	<-ctx.Done()
	time.Sleep(500 * time.Millisecond)
}

func handleMessage(topic string, payload []byte) {
	log.Printf("\n[debug] leitura recebida no tópico: %s", topic)

	var raw map[string]interface{}
	if err := json.Unmarshal(payload, &raw); err != nil {
		log.Printf("[debug] erro ao fazer unmarshal do JSON: %v", err)
		log.Printf("[debug] payload como string: %s", string(payload))
		return
	}

	// Mostra JSON bonitinho
	pretty, _ := json.MarshalIndent(raw, "", "  ")
	log.Printf("[debug] JSON decodificado:\n%s", string(pretty))

	log.Printf("[READING] source=%v brightness=%v%% rgb=%v cropped=%v",
		raw["source_id"], raw["brightness"], raw["rgb_string"], raw["cropped"])

	if url, ok := raw["frame_url"].(string); ok && url != "" {
		log.Printf("[READING] frame disponível em: %s", url)
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
