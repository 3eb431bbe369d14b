// internal/supervisor/supervisor.go
package supervisor

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"github.com/sua-org/lux-bus/internal/analyzer"
	"github.com/sua-org/lux-bus/internal/core"
	"github.com/sua-org/lux-bus/internal/fetcher"
	"github.com/sua-org/lux-bus/internal/mqttclient"
	"github.com/sua-org/lux-bus/internal/poller"
	"github.com/sua-org/lux-bus/internal/storage"
)

// Supervisor gerencia o ciclo de vida das fontes de luz: assina os
// tópicos retained de config, mantém um poller por fonte e publica
// leituras, status e discovery do Home Assistant.
type Supervisor struct {
	mqtt      *mqttclient.Client
	baseTopic string
	store     storage.FrameStore // pode ser nil (sem entidade de imagem)

	mu             sync.Mutex
	workers        map[string]*sourceWorker
	statusInterval time.Duration
	proc           *process.Process // processo do lux-bus para métricas
}

type sourceWorker struct {
	cfg       core.SourceConfig
	cancel    context.CancelFunc
	poller    *poller.Poller
	fetchURL  string
	startedAt time.Time
}

type workerSnapshot struct {
	Cfg       core.SourceConfig
	FetchURL  string
	StartedAt time.Time
	Poll      poller.Snapshot
}

func New(mqtt *mqttclient.Client, baseTopic string, store storage.FrameStore) *Supervisor {
	baseTopic = strings.TrimSuffix(baseTopic, "/")

	statusInterval := envDurationSeconds("LUXBUS_STATUS_INTERVAL_SECONDS", 30*time.Second)

	var procHandle *process.Process
	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		procHandle = p
	}

	return &Supervisor{
		mqtt:           mqtt,
		baseTopic:      baseTopic,
		store:          store,
		workers:        make(map[string]*sourceWorker),
		statusInterval: statusInterval,
		proc:           procHandle,
	}
}

func envDurationSeconds(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	sec, err := strconv.Atoi(v)
	if err != nil || sec <= 0 {
		log.Printf("[supervisor] valor inválido em %s=%q, usando default %s", key, v, def)
		return def
	}
	return time.Duration(sec) * time.Second
}

// Run assina os tópicos de config e gerencia as fontes até o ctx cair.
func (s *Supervisor) Run(ctx context.Context) error {
	configTopic := fmt.Sprintf("%s/+/config", s.baseTopic) // lux/cameras/<source_id>/config
	log.Printf("[supervisor] subscribing to config topic: %s", configTopic)

	if err := s.mqtt.Subscribe(configTopic, 1, s.handleConfigMessage); err != nil {
		return fmt.Errorf("subscribe error: %w", err)
	}

	// Availability: online agora, offline via LWT (ou no shutdown).
	if err := s.mqtt.Publish(s.AvailabilityTopic(), 1, true, []byte("online")); err != nil {
		log.Printf("[supervisor] erro ao publicar availability: %v", err)
	}

	if s.statusInterval > 0 {
		go s.runStatusLoop(ctx)
	}

	<-ctx.Done()
	log.Printf("[supervisor] context canceled, stopping all workers")
	s.stopAll()

	if err := s.mqtt.Publish(s.AvailabilityTopic(), 1, true, []byte("offline")); err != nil {
		log.Printf("[supervisor] erro ao publicar availability offline: %v", err)
	}
	return nil
}

// handleConfigMessage processa um update de config (ou tombstone) de
// uma fonte. Payload inválido é logado e ignorado: o pipeline só vê
// config que passou inteira pelo builder.
func (s *Supervisor) handleConfigMessage(topic string, payload []byte) {
	sourceID, ok := s.sourceIDFromTopic(topic)
	if !ok {
		log.Printf("[supervisor] invalid config topic: %s", topic)
		return
	}

	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		log.Printf("[supervisor] source %s removed via tombstone", sourceID)
		s.stopSource(sourceID)
		return
	}

	cfg, err := core.ParseSourcePayload(sourceID, payload)
	if err != nil {
		log.Printf("[supervisor] invalid config on %s: %v", topic, err)
		return
	}

	s.startOrUpdateSource(cfg)
}

func (s *Supervisor) sourceIDFromTopic(topic string) (string, bool) {
	parts := strings.Split(topic, "/")
	baseParts := strings.Split(s.baseTopic, "/")

	if len(parts) != len(baseParts)+2 || parts[len(parts)-1] != "config" {
		return "", false
	}
	// o prefixo tem que ser exatamente o baseTopic: handler compartilhado
	// não pode aceitar config de namespace alheio
	for i, b := range baseParts {
		if parts[i] != b {
			return "", false
		}
	}
	id := parts[len(baseParts)]
	if id == "" || id == "collector" {
		return "", false
	}
	return id, true
}

func (s *Supervisor) startOrUpdateSource(cfg core.SourceConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if w, ok := s.workers[cfg.SourceID]; ok {
		if core.ConfigEqual(w.cfg, cfg) {
			log.Printf("[supervisor] source %s already running with same config, ignoring update", cfg.SourceID)
			return
		}
		log.Printf("[supervisor] source %s config changed, restarting worker", cfg.SourceID)
		w.cancel()
		delete(s.workers, cfg.SourceID)
	}

	ff, err := fetcher.New(cfg)
	if err != nil {
		log.Printf("[supervisor] no fetcher for source %s: %v", cfg.SourceID, err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())

	p := poller.New(
		cfg.SourceID,
		cfg.PollInterval(),
		ff.Fetch,
		s.processFunc(cfg),
		s.publishFunc(cfg),
	)

	worker := &sourceWorker{
		cfg:       cfg,
		cancel:    cancel,
		poller:    p,
		fetchURL:  ff.URL(),
		startedAt: time.Now().UTC(),
	}
	s.workers[cfg.SourceID] = worker

	log.Printf("[supervisor] starting source worker %s (%s, interval=%s, url=%s)",
		cfg.SourceID, cfg.Kind, cfg.PollInterval(), ff.URL())

	if err := s.publishHADiscovery(cfg); err != nil {
		log.Printf("[supervisor] erro ao publicar discovery para %s: %v", cfg.SourceID, err)
	}

	go p.Run(ctx)
}

// processFunc compõe o analyzer com o upload opcional do frame: o
// upload roda dentro do ciclo (fora do laço do timer), e falha de
// storage degrada pra log, nunca derruba o ciclo.
func (s *Supervisor) processFunc(cfg core.SourceConfig) poller.ProcessFunc {
	return func(ctx context.Context, data []byte) (core.Analysis, error) {
		result, err := analyzer.Process(data, cfg)
		if err != nil {
			return core.Analysis{}, err
		}

		if cfg.EmitRawImage && s.store != nil && len(result.RawFrame) > 0 {
			ctxUp, cancelUp := context.WithTimeout(ctx, 5*time.Second)
			url, err := s.store.SaveFrame(ctxUp, cfg.SourceID, result.RawFrame, result.Timestamp)
			cancelUp()
			if err != nil {
				log.Printf("[supervisor] erro ao salvar frame de %s no MinIO: %v", cfg.SourceID, err)
			} else {
				result.FrameURL = url
			}
		}

		return result, nil
	}
}

func (s *Supervisor) publishFunc(cfg core.SourceConfig) func(core.Analysis) {
	topic := s.ReadingTopic(cfg.SourceID)
	return func(result core.Analysis) {
		// retain=true: consumidor novo recebe a última leitura na hora
		if err := s.mqtt.PublishJSON(topic, 1, true, result); err != nil {
			log.Printf("[worker %s] error publishing reading to %s: %v", cfg.SourceID, topic, err)
			return
		}
		log.Printf("[worker %s] published reading to %s (brightness=%.2f%% rgb=%s)",
			cfg.SourceID, topic, result.Brightness, result.RGBString)
	}
}

func (s *Supervisor) stopSource(sourceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.workers[sourceID]
	if !ok {
		return
	}

	log.Printf("[supervisor] stopping source worker %s", sourceID)
	w.cancel()
	delete(s.workers, sourceID)
}

func (s *Supervisor) stopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, w := range s.workers {
		w.cancel()
		delete(s.workers, id)
	}
}

func (s *Supervisor) snapshotWorkers() []workerSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]workerSnapshot, 0, len(s.workers))
	for _, w := range s.workers {
		out = append(out, workerSnapshot{
			Cfg:       w.cfg,
			FetchURL:  w.fetchURL,
			StartedAt: w.startedAt,
			Poll:      w.poller.Snapshot(),
		})
	}
	return out
}

// ----------------------------------
// Status loop
// ----------------------------------

func (s *Supervisor) runStatusLoop(ctx context.Context) {
	hostname, _ := os.Hostname()
	ticker := time.NewTicker(s.statusInterval)
	defer ticker.Stop()

	log.Printf("[supervisor] status loop iniciado (intervalo=%s)", s.statusInterval)

	for {
		select {
		case <-ctx.Done():
			log.Printf("[supervisor] status loop encerrado (context canceled)")
			return
		case t := <-ticker.C:
			s.publishStatuses(hostname, t)
		}
	}
}

func (s *Supervisor) publishStatuses(hostname string, now time.Time) {
	workers := s.snapshotWorkers()

	// Métricas de CPU/memória do processo lux-bus
	var (
		cpuPercent  float64
		memPercent  float64
		memRSSBytes uint64
	)
	if s.proc != nil {
		if cpu, err := s.proc.CPUPercent(); err == nil {
			cpuPercent = cpu
		}
		if memInfo, err := s.proc.MemoryInfo(); err == nil {
			memRSSBytes = memInfo.RSS
		}
		if memP, err := s.proc.MemoryPercent(); err == nil {
			memPercent = float64(memP)
		}
	}

	for _, w := range workers {
		if err := s.publishSourceStatus(w, now); err != nil {
			log.Printf("[status] erro ao publicar status da fonte %s: %v", w.Cfg.SourceID, err)
		}
	}

	payload := map[string]interface{}{
		"collector":        "lux-bus",
		"status":           "online",
		"timestamp":        now.UTC().Format(time.RFC3339),
		"hostname":         hostname,
		"sources":          len(workers),
		"cpu_percent":      cpuPercent,
		"memory_percent":   memPercent,
		"memory_rss_bytes": memRSSBytes,
	}
	if err := s.mqtt.PublishJSON(s.CollectorStatusTopic(), 1, true, payload); err != nil {
		log.Printf("[status] erro ao publicar status do collector: %v", err)
	}
}

func (s *Supervisor) publishSourceStatus(snap workerSnapshot, now time.Time) error {
	payload := map[string]interface{}{
		"source_id":     snap.Cfg.SourceID,
		"source_type":   string(snap.Cfg.Kind),
		"image_url":     snap.FetchURL,
		"scan_interval": snap.Cfg.PollIntervalSeconds,
		"state":         string(snap.Poll.State),
		"last_success":  snap.Poll.LastSuccess,
		"timestamp":     now.UTC().Format(time.RFC3339),
	}

	if snap.Poll.LastErr != nil {
		payload["last_error"] = snap.Poll.LastErr.Error()
	}
	if !snap.Poll.LastCycleAt.IsZero() {
		payload["last_cycle_at"] = snap.Poll.LastCycleAt.UTC().Format(time.RFC3339)
	}
	if !snap.StartedAt.IsZero() {
		payload["started_at"] = snap.StartedAt.UTC().Format(time.RFC3339)
	}
	if snap.Cfg.Crop != nil {
		payload["crop"] = snap.Cfg.Crop
	}
	if snap.Cfg.BrightnessRange != nil {
		payload["brightness_range"] = snap.Cfg.BrightnessRange
	}
	if snap.Cfg.ColorRange != nil {
		payload["color_range"] = snap.Cfg.ColorRange
	}

	return s.mqtt.PublishJSON(s.StatusTopic(snap.Cfg.SourceID), 1, true, payload)
}

// ----------------------------------
// Home Assistant MQTT discovery
// ----------------------------------

// publishHADiscovery anuncia as entidades da fonte: sensor de brilho,
// sensor de RGB e (quando houver frame no MinIO) entidade de imagem.
// retain=true para o HA "lembrar" das entidades mesmo se o lux-bus reiniciar.
func (s *Supervisor) publishHADiscovery(cfg core.SourceConfig) error {
	slug := slugForSource(cfg.SourceID)
	readingTopic := s.ReadingTopic(cfg.SourceID)

	model := "Snapshot Analyzer"
	if cfg.Kind == core.SourceFrigate {
		model = "Frigate Camera Analyzer"
	}

	deviceObj := map[string]interface{}{
		"identifiers":  []string{slug},
		"name":         fmt.Sprintf("Lux %s", cfg.SourceID),
		"manufacturer": "lux-bus",
		"model":        model,
	}
	originObj := map[string]interface{}{
		"name": "lux-bus",
	}

	brightnessCfg := map[string]interface{}{
		"name":                  fmt.Sprintf("Sun Brightness %s", cfg.SourceID),
		"unique_id":             slug + "_brightness",
		"state_topic":           readingTopic,
		"value_template":        "{{ value_json.brightness }}",
		"unit_of_measurement":   "%",
		"state_class":           "measurement",
		"icon":                  "mdi:brightness-percent",
		"availability_topic":    s.AvailabilityTopic(),
		"json_attributes_topic": readingTopic,
		"device":                deviceObj,
		"origin":                originObj,
	}
	if err := s.publishDiscoveryConfig("sensor", slug+"_brightness", brightnessCfg); err != nil {
		return err
	}

	rgbCfg := map[string]interface{}{
		"name":                  fmt.Sprintf("Sun RGB %s", cfg.SourceID),
		"unique_id":             slug + "_rgb",
		"state_topic":           readingTopic,
		"value_template":        "{{ value_json.rgb_string }}",
		"icon":                  "mdi:palette",
		"availability_topic":    s.AvailabilityTopic(),
		"json_attributes_topic": readingTopic,
		"device":                deviceObj,
		"origin":                originObj,
	}
	if err := s.publishDiscoveryConfig("sensor", slug+"_rgb", rgbCfg); err != nil {
		return err
	}

	if cfg.EmitRawImage && s.store != nil {
		imgCfg := map[string]interface{}{
			"name":         fmt.Sprintf("Sun Frame %s", cfg.SourceID),
			"unique_id":    slug + "_frame",
			"url_topic":    readingTopic,
			"url_template": "{{ value_json.frame_url }}",
			"device":       deviceObj,
			"origin":       originObj,
		}
		if err := s.publishDiscoveryConfig("image", slug+"_frame", imgCfg); err != nil {
			return err
		}
	}

	return nil
}

func (s *Supervisor) publishDiscoveryConfig(component, objectID string, cfg map[string]interface{}) error {
	topic := fmt.Sprintf("homeassistant/%s/%s/config", component, objectID)
	if err := s.mqtt.PublishJSON(topic, 1, true, cfg); err != nil {
		return fmt.Errorf("publish discovery %s: %w", topic, err)
	}
	log.Printf("[supervisor] published HA discovery for %s: %s", component, topic)
	return nil
}

func slugForSource(sourceID string) string {
	slug := strings.ToLower(strings.TrimSpace(sourceID))
	slug = strings.ReplaceAll(slug, " ", "_")
	slug = strings.ReplaceAll(slug, "-", "_")
	return "lux_" + slug
}

// ----------------------------------
// Tópicos
// ----------------------------------

func (s *Supervisor) ReadingTopic(sourceID string) string {
	return fmt.Sprintf("%s/%s/reading", s.baseTopic, sourceID)
}

func (s *Supervisor) StatusTopic(sourceID string) string {
	return fmt.Sprintf("%s/%s/status", s.baseTopic, sourceID)
}

func (s *Supervisor) CollectorStatusTopic() string {
	return fmt.Sprintf("%s/collector/status", s.baseTopic)
}

func (s *Supervisor) AvailabilityTopic() string {
	return fmt.Sprintf("%s/collector/availability", s.baseTopic)
}
