// cmd/lux-bus/main.go
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/sua-org/lux-bus/internal/mqttclient"
	"github.com/sua-org/lux-bus/internal/storage"
	"github.com/sua-org/lux-bus/internal/supervisor"
)

func main() {
	// Carrega .env na raiz (se não existir, só loga aviso)
	if err := godotenv.Load(); err != nil {
		log.Printf("[main] aviso: não foi possível carregar .env: %v", err)
	} else {
		log.Printf("[main] .env carregado com sucesso")
	}

	baseTopic := getenv("MQTT_BASE_TOPIC", "lux/cameras")

	// Inicializa MinIO (opcional; se falhar, continua sem entidade de imagem)
	var store storage.FrameStore
	if s, err := storage.NewMinioStoreFromEnv(); err != nil {
		log.Printf("[main] aviso: MinIO não inicializado: %v", err)
	} else {
		store = s
	}

	mqttCli, err := mqttclient.NewClient(mqttclient.Config{
		Host:        getenv("MQTT_HOST", "localhost"),
		Port:        getenvInt("MQTT_PORT", 1883),
		Username:    os.Getenv("MQTT_USERNAME"),
		Password:    os.Getenv("MQTT_PASSWORD"),
		ClientID:    getenv("MQTT_CLIENT_ID", "lux-bus"),
		WillTopic:   baseTopic + "/collector/availability",
		WillPayload: "offline",
	})
	if err != nil {
		log.Fatalf("erro ao conectar no MQTT: %v", err)
	}
	defer mqttCli.Close()

	sup := supervisor.New(mqttCli, baseTopic, store)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	go func() {
		if err := sup.Run(ctx); err != nil {
			log.Printf("[main] supervisor terminou com erro: %v", err)
		}
	}()

	<-sig
	log.Println("[main] sinal recebido, encerrando...")
	cancel()
	time.Sleep(1 * time.Second)
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if x, err := strconv.Atoi(v); err == nil && x > 0 {
			return x
		}
	}
	return def
}
