// ============================================================================
// meinDENKWERK (mDW) - speechrec
// ============================================================================
//
// Package:     cmd
// Description: record command: capture, segment and publish
// Created:     2026-10-13
// License:     MIT
// ============================================================================

package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/msto63/speechrec/internal/eventhub"
	"github.com/msto63/speechrec/internal/recorder"
	"github.com/msto63/speechrec/internal/segment"
	"github.com/msto63/speechrec/internal/segmentstore"
	"github.com/msto63/speechrec/internal/tui/meter"
	"github.com/msto63/speechrec/pkg/audio/capture"
	"github.com/msto63/speechrec/pkg/audio/vad"
	"github.com/msto63/speechrec/pkg/core/config"
	"github.com/msto63/speechrec/pkg/core/health"
	"github.com/msto63/speechrec/pkg/core/logging"
	"github.com/msto63/speechrec/pkg/core/version"
)

var (
	recDevice          string
	recInput           string
	recSampleRate      int
	recFramesPerBuffer int
	recChannels        int
	recChannelID       int
	recSpeaking        int
	recSilence         int
	recPadding         int
	recHighWaterMark   int
	recLevel           int
	recClassifier      string
	recEnergyThreshold float64
	recTriggers        []string
	recOutDir          string
	recDB              string
	recListen          string
	recTUI             bool
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Startet die Aufnahme und Segmentierung",
	Long: `Startet die Aufnahme und zerlegt den Stream in Sprachabschnitte.

Quelle ist standardmäßig das Standard-Eingabegerät. Mit --input kann
stattdessen eine WAV-Datei, eine Datei mit rohem s16le-PCM oder "-" für
stdin verwendet werden.

Beispiele:
  speechrec record
  speechrec record --device 2 --trigger pause=10 --out ./segments
  speechrec record --input aufnahme.wav --db ./data/segments.db
  arecord -f S16_LE -r 16000 -c 1 -t raw | speechrec record --input -
  speechrec record --listen :8090 --tui`,
	RunE: runRecord,
}

func init() {
	f := recordCmd.Flags()
	f.StringVarP(&recDevice, "device", "d", "", "Eingabegerät (any, Index oder Name)")
	f.StringVarP(&recInput, "input", "i", "", "Eingabedatei (.wav, rohes PCM oder - für stdin)")
	f.IntVar(&recSampleRate, "sample-rate", 16000, "Abtastrate in Hz (8000, 16000, 32000, 48000)")
	f.IntVar(&recFramesPerBuffer, "frames-per-buffer", 320, "Samples pro Frame")
	f.IntVar(&recChannels, "channels", 1, "Anzahl der Kanäle im Stream")
	f.IntVar(&recChannelID, "channel-id", 0, "Ausgewerteter Kanal (ab 0)")
	f.IntVar(&recSpeaking, "speaking-threshold", 5, "Sprach-Frames bis zum Chunk-Start")
	f.IntVar(&recSilence, "silence-threshold", 30, "Stille-Frames bis zum Chunk-Ende")
	f.IntVar(&recPadding, "leading-padding", 30, "Frames Vorlauf vor dem Chunk-Start")
	f.IntVar(&recHighWaterMark, "high-water-mark", 64000, "Puffergrenze der Aufnahme in Bytes")
	f.IntVar(&recLevel, "level", 3, "VAD-Aggressivität (0-3)")
	f.StringVar(&recClassifier, "classifier", "webrtc", "Klassifikator (webrtc, energy)")
	f.Float64Var(&recEnergyThreshold, "energy-threshold", 0.02, "RMS-Schwelle für den energy-Klassifikator")
	f.StringSliceVarP(&recTriggers, "trigger", "t", nil, "Trigger als id=schwelle (mehrfach möglich)")
	f.StringVarP(&recOutDir, "out", "o", "", "Verzeichnis für WAV-Segmente")
	f.StringVar(&recDB, "db", "", "SQLite-Journal für Segmente")
	f.StringVar(&recListen, "listen", "", "Adresse für den WebSocket-Event-Server (z.B. :8090)")
	f.BoolVar(&recTUI, "tui", false, "Live-Anzeige im Terminal")
	rootCmd.AddCommand(recordCmd)
}

// applyRecordFlags overrides config values with explicitly set flags
func applyRecordFlags(cmd *cobra.Command, cfg *config.Config) error {
	f := cmd.Flags()
	r := &cfg.Recorder

	if f.Changed("device") {
		r.Device = recDevice
	}
	if f.Changed("sample-rate") {
		r.SampleRate = recSampleRate
	}
	if f.Changed("frames-per-buffer") {
		r.FramesPerBuffer = recFramesPerBuffer
	}
	if f.Changed("channels") {
		r.ChannelNumber = recChannels
	}
	if f.Changed("channel-id") {
		r.ChannelID = recChannelID
	}
	if f.Changed("speaking-threshold") {
		r.SpeakingThreshold = recSpeaking
	}
	if f.Changed("silence-threshold") {
		r.SilenceThreshold = recSilence
	}
	if f.Changed("leading-padding") {
		r.LeadingPadding = recPadding
	}
	if f.Changed("high-water-mark") {
		r.HighWaterMark = recHighWaterMark
	}
	if f.Changed("level") {
		r.Level = recLevel
	}
	if f.Changed("classifier") {
		r.Classifier = recClassifier
	}
	if f.Changed("energy-threshold") {
		r.EnergyThreshold = recEnergyThreshold
	}
	if f.Changed("out") {
		cfg.Output.WAVDir = recOutDir
	}
	if f.Changed("db") {
		cfg.Output.Database = recDB
	}
	if f.Changed("listen") {
		cfg.Server.Listen = recListen
	}

	for _, arg := range recTriggers {
		t, err := parseTrigger(arg)
		if err != nil {
			return err
		}
		cfg.Triggers = append(cfg.Triggers, t)
	}

	return cfg.Validate()
}

// parseTrigger parses "id=threshold"
func parseTrigger(arg string) (config.TriggerConfig, error) {
	id, value, ok := strings.Cut(arg, "=")
	if !ok || strings.TrimSpace(id) == "" {
		return config.TriggerConfig{}, fmt.Errorf("invalid trigger %q, expected id=threshold", arg)
	}
	threshold, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return config.TriggerConfig{}, fmt.Errorf("invalid trigger threshold in %q: %w", arg, err)
	}
	return config.TriggerConfig{ID: strings.TrimSpace(id), Threshold: threshold}, nil
}

// recorderOptions maps the config onto recorder options
func recorderOptions(cfg *config.Config) recorder.Options {
	r := cfg.Recorder
	opts := recorder.Options{
		SampleRate:        r.SampleRate,
		FramesPerBuffer:   r.FramesPerBuffer,
		ChannelNumber:     r.ChannelNumber,
		ChannelID:         r.ChannelID,
		SpeakingThreshold: r.SpeakingThreshold,
		SilenceThreshold:  r.SilenceThreshold,
		LeadingPadding:    r.LeadingPadding,
		HighWaterMark:     r.HighWaterMark,
		Level:             r.Level,
	}
	for _, t := range cfg.Triggers {
		opts.Triggers = append(opts.Triggers, recorder.Trigger{ID: t.ID, Threshold: t.Threshold})
	}
	return opts
}

// sourceFactory picks the audio source for --input
func sourceFactory(input string, logger *logging.Logger) recorder.SourceFactory {
	switch {
	case input == "":
		return func(cfg capture.Config) (capture.Source, error) {
			return capture.NewPortAudio(cfg, logger), nil
		}
	case input == "-":
		return func(cfg capture.Config) (capture.Source, error) {
			return capture.NewReader(os.Stdin, cfg, logger), nil
		}
	case strings.EqualFold(filepath.Ext(input), ".wav"):
		return func(cfg capture.Config) (capture.Source, error) {
			return capture.NewWAVFile(input, cfg, logger), nil
		}
	default:
		return func(cfg capture.Config) (capture.Source, error) {
			f, err := os.Open(input)
			if err != nil {
				return nil, fmt.Errorf("failed to open %s: %w", input, err)
			}
			return capture.NewReader(f, cfg, logger), nil
		}
	}
}

// recordSession holds everything wired around one recorder run
type recordSession struct {
	cfg       *config.Config
	logger    *logging.Logger
	rec       *recorder.Recorder
	collector *segment.Collector
	wav       *segment.WAVSink
	store     *segmentstore.Store
	hub       *eventhub.Hub
	server    *http.Server
	program   *tea.Program
	done      chan struct{}
}

func newRecordSession(cfg *config.Config, logger *logging.Logger) (*recordSession, error) {
	s := &recordSession{
		cfg:    cfg,
		logger: logger,
		done:   make(chan struct{}),
	}

	opts := recorderOptions(cfg)
	opts.OnError = s.onError

	deps := []recorder.Option{
		recorder.WithLogger(logger),
		recorder.WithSourceFactory(sourceFactory(recInput, logger)),
	}
	if cfg.Recorder.Classifier == "energy" {
		deps = append(deps, recorder.WithClassifier(vad.NewEnergy(cfg.Recorder.EnergyThreshold)))
	}

	rec, err := recorder.New(opts, deps...)
	if err != nil {
		return nil, err
	}
	s.rec = rec

	// Segments hold the analysed channel only
	s.collector = segment.NewCollector(cfg.Recorder.SampleRate)
	s.collector.OnSegment = s.onSegment
	s.collector.OnTrigger = s.onTrigger

	if cfg.Output.WAVDir != "" {
		if s.wav, err = segment.NewWAVSink(cfg.Output.WAVDir); err != nil {
			return nil, err
		}
	}

	if cfg.Output.Database != "" {
		if s.store, err = segmentstore.Open(segmentstore.Config{Path: cfg.Output.Database}); err != nil {
			return nil, err
		}
		if ret := cfg.Output.Retention.Duration; ret > 0 {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			n, err := s.store.Prune(ctx, ret)
			cancel()
			if err != nil {
				logger.Warn("Journal prune failed", "error", err)
			} else if n > 0 {
				logger.Info("Journal pruned", "segments", n, "retention", ret)
			}
		}
	}

	if cfg.Server.Listen != "" {
		s.hub = eventhub.New(cfg.Server.SendBuffer, logger)
		mux := http.NewServeMux()
		mux.Handle("/events", s.hub)
		mux.Handle("/healthz", s.healthRegistry().Handler(5*time.Second))
		s.server = &http.Server{
			Addr:              cfg.Server.Listen,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
	}

	return s, nil
}

// healthRegistry reports the state of the recorder and its sinks
func (s *recordSession) healthRegistry() *health.Registry {
	reg := health.NewRegistry(version.Name, version.Speechrec)

	reg.Register("recorder", func(context.Context) health.CheckResult {
		if !s.rec.Running() {
			return health.Unhealthy("not recording")
		}
		st := s.rec.State()
		res := health.Healthy("recording")
		res.Details = map[string]any{
			"speaking":            st.Speaking,
			"consecutive_silence": st.ConsecutiveSilence,
		}
		return res
	})

	reg.Register("events", func(context.Context) health.CheckResult {
		res := health.Healthy("")
		res.Details = map[string]any{"clients": s.hub.Clients()}
		return res
	})

	if s.store != nil {
		reg.Register("journal", func(ctx context.Context) health.CheckResult {
			n, err := s.store.Count(ctx)
			if err != nil {
				return health.Degraded(err.Error())
			}
			res := health.Healthy("")
			res.Details = map[string]any{"segments": n}
			return res
		})
	}

	return reg
}

// handlers combines all sinks
func (s *recordSession) handlers() recorder.Handlers {
	sets := []recorder.Handlers{s.collector.Handlers()}
	if s.hub != nil {
		sets = append(sets, s.hub.Handlers())
	}
	if s.program != nil {
		sets = append(sets, meter.Handlers(s.program))
	} else {
		sets = append(sets, s.logHandlers())
	}
	return recorder.Multi(sets...)
}

// logHandlers reports events through the logger when no TUI is shown
func (s *recordSession) logHandlers() recorder.Handlers {
	return recorder.Handlers{
		OnAudio: func(ev recorder.AudioEvent) {
			s.logger.Trace("Frame", "speaking", ev.Speaking, "speech", ev.Speech, "volume", ev.Volume, "silence", ev.Silence)
		},
		OnChunkStart: func(leading []byte) {
			s.logger.Info("Sprache erkannt", "leading_bytes", len(leading))
		},
		OnChunkEnd: func() {
			s.logger.Info("Sprache beendet")
		},
		OnTrigger: func(t recorder.Trigger) {
			s.logger.Info("Trigger", "id", t.ID, "threshold", t.Threshold)
		},
	}
}

func (s *recordSession) onSegment(seg *segment.Segment) {
	if s.wav != nil {
		if _, err := s.wav.Write(seg); err != nil {
			s.onError(fmt.Errorf("failed to write segment: %w", err))
		}
	}
	if s.store != nil {
		if err := s.store.SaveSegment(context.Background(), seg); err != nil {
			s.onError(fmt.Errorf("failed to journal segment: %w", err))
		}
	}
	if s.hub != nil {
		s.hub.Segment(seg)
	}
	if s.program != nil {
		meter.SegmentSaved(s.program, seg)
	}

	s.logger.Info("Segment abgeschlossen",
		"id", seg.ID,
		"duration", seg.Duration(),
		"leading_frames", seg.LeadingFrames,
		"frames", seg.Frames,
		"path", seg.Path,
	)
}

func (s *recordSession) onTrigger(hit segment.TriggerHit) {
	// Hits inside an open segment are journaled with it
	if s.store == nil || hit.SegmentID == "" || s.collector.Open() {
		return
	}
	if err := s.store.SaveTrigger(context.Background(), hit); err != nil {
		s.onError(fmt.Errorf("failed to journal trigger: %w", err))
	}
}

func (s *recordSession) onError(err error) {
	s.logger.Error("Aufnahmefehler", "error", err)
	if s.hub != nil {
		s.hub.Error(err)
	}
	if s.program != nil {
		meter.Error(s.program, err)
	}
}

// start launches the event server and the recorder
func (s *recordSession) start(ctx context.Context) error {
	if s.server != nil {
		go func() {
			if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logger.Error("Event server failed", "error", err)
			}
		}()
		s.logger.Info("Event server listening", "addr", s.server.Addr, "events", "/events", "health", "/healthz")
	}

	so := recorder.StartOptions{
		DeviceID: s.cfg.Recorder.Device,
		Handlers: s.handlers(),
		OnEnd: func() {
			close(s.done)
			if s.program != nil {
				s.program.Quit()
			}
		},
	}
	return s.rec.Start(ctx, so)
}

// close stops the recorder and releases all sinks
func (s *recordSession) close() {
	// Sinks are closed only after the last frame has been dispatched
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := s.rec.Shutdown(ctx); err != nil {
		s.logger.Warn("Stop failed", "error", err)
	}
	cancel()
	s.collector.Flush()

	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		s.server.Shutdown(ctx)
		cancel()
	}
	if s.hub != nil {
		s.hub.Close()
	}
	if s.store != nil {
		s.store.Close()
	}
}

func runRecord(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		printError("Config konnte nicht geladen werden", err)
		return err
	}
	if err := applyRecordFlags(cmd, cfg); err != nil {
		printError("Ungültige Parameter", err)
		return err
	}

	logger := newLogger(cfg)
	if recTUI {
		// Log lines would tear the TUI apart
		logger = logging.Discard()
	}

	session, err := newRecordSession(cfg, logger)
	if err != nil {
		printError("Aufnahme konnte nicht vorbereitet werden", err)
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if recTUI {
		return runRecordTUI(ctx, session)
	}

	if err := session.start(ctx); err != nil {
		session.close()
		printError("Aufnahme konnte nicht gestartet werden", err)
		return err
	}

	select {
	case <-ctx.Done():
		logger.Info("Aufnahme wird beendet")
	case <-session.done:
	}
	session.close()
	return nil
}

func runRecordTUI(ctx context.Context, session *recordSession) error {
	mcfg := meter.DefaultConfig()
	mcfg.Title = "speechrec"
	mcfg.OnReset = session.rec.Reset
	mcfg.OnStrictReset = session.rec.StrictReset

	err := meter.Run(mcfg, func(p *tea.Program) error {
		session.program = p
		if err := session.start(ctx); err != nil {
			return err
		}
		go func() {
			<-ctx.Done()
			p.Quit()
		}()
		return nil
	})
	session.close()

	if err != nil {
		printError("Aufnahme fehlgeschlagen", err)
	}
	return err
}
