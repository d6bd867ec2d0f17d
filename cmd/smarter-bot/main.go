// smarter-bot is the Discord-facing half of the community platform:
// it serves the bytes economy and squad interactions and runs the
// time-driven content schedulers against the backend API.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/jessevdk/go-flags"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/Smarter-Dev/smarter-dev-sub002/go/api"
	"github.com/Smarter-Dev/smarter-dev-sub002/go/cache"
	"github.com/Smarter-Dev/smarter-dev-sub002/go/discord"
	"github.com/Smarter-Dev/smarter-dev-sub002/go/economy"
	"github.com/Smarter-Dev/smarter-dev-sub002/go/scheduler"
	"github.com/Smarter-Dev/smarter-dev-sub002/go/service"
	"github.com/Smarter-Dev/smarter-dev-sub002/go/squads"
	"github.com/Smarter-Dev/smarter-dev-sub002/go/views"
)

// Config is the top-level configuration object of the bot.
var Config = new(struct {
	API struct {
		BaseURL       string        `long:"base-url" env:"BASE_URL" default:"http://localhost:8000/api" description:"Base URL of the backend API"`
		Token         string        `long:"bot-token" env:"BOT_TOKEN" required:"true" description:"Bearer token for the backend API"`
		MaxRetries    int           `long:"max-retries" env:"MAX_RETRIES" default:"3" description:"Retries for transient API failures"`
		BaseDelay     time.Duration `long:"base-delay" env:"BASE_DELAY" default:"500ms" description:"Initial retry delay"`
		MaxDelay      time.Duration `long:"max-delay" env:"MAX_DELAY" default:"30s" description:"Retry delay ceiling"`
		BackoffFactor float64       `long:"backoff-factor" env:"BACKOFF_FACTOR" default:"2" description:"Retry delay multiplier"`
	} `group:"API" namespace:"api" env-namespace:"API"`

	Cache struct {
		URL        string        `long:"url" env:"URL" description:"redis:// cache URL; empty selects the in-process cache"`
		KeyPrefix  string        `long:"key-prefix" env:"KEY_PREFIX" description:"Prefix ahead of the service-name key segment"`
		DefaultTTL time.Duration `long:"default-ttl" env:"DEFAULT_TTL" default:"5m" description:"TTL applied when a call omits one"`
	} `group:"Cache" namespace:"cache" env-namespace:"CACHE"`

	Discord struct {
		Token string `long:"token" env:"TOKEN" required:"true" description:"Discord bot token"`
		// GuildID scopes command registration during development;
		// empty registers globally.
		GuildID string `long:"guild-id" env:"GUILD_ID" description:"Guild for command registration (empty = global)"`
	} `group:"Discord" namespace:"discord" env-namespace:"DISCORD"`

	Metrics struct {
		Port int `long:"port" env:"PORT" default:"8080" description:"Listener for /metrics and /healthz"`
	} `group:"Metrics" namespace:"metrics" env-namespace:"METRICS"`

	Log struct {
		Level  string `long:"level" env:"LEVEL" default:"info" choice:"trace" choice:"debug" choice:"info" choice:"warn" choice:"error" description:"Logging level"`
		Format string `long:"format" env:"FORMAT" default:"text" choice:"json" choice:"text" description:"Logging output format"`
	} `group:"Logging" namespace:"log" env-namespace:"LOG"`
})

type cmdServe struct{}

func (cmdServe) Execute(_ []string) error {
	initLog()
	var ctx = context.Background()

	client, err := api.NewClient(api.Config{
		BaseURL:       Config.API.BaseURL,
		Token:         Config.API.Token,
		MaxRetries:    Config.API.MaxRetries,
		BaseDelay:     Config.API.BaseDelay,
		MaxDelay:      Config.API.MaxDelay,
		BackoffFactor: Config.API.BackoffFactor,
	})
	must(err, "building API client")
	defer client.Close()

	var store cache.Cache
	var cacheBackend = "redis"
	if Config.Cache.URL != "" {
		store, err = cache.NewRedis(ctx, cache.RedisConfig{
			URL:        Config.Cache.URL,
			KeyPrefix:  Config.Cache.KeyPrefix,
			DefaultTTL: Config.Cache.DefaultTTL,
		})
		must(err, "connecting cache")
	} else {
		log.Warn("no cache URL configured, using the in-process cache")
		store = cache.NewMemory(Config.Cache.DefaultTTL)
		cacheBackend = "memory"
	}
	defer store.Close()

	var bytesService = economy.NewService(client, store)
	var squadsService = squads.NewService(client, store)
	must(bytesService.Initialize(), "initializing bytes service")
	must(squadsService.Initialize(), "initializing squads service")
	defer bytesService.Cleanup()
	defer squadsService.Cleanup()

	session, err := discordgo.New("Bot " + Config.Discord.Token)
	must(err, "building Discord session")
	session.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages

	var responder = &views.SessionResponder{Session: session}
	var transfers = views.NewTransferHandler(bytesService, views.NewEmbeds(), responder)
	session.AddHandler(makeInteractionHandler(transfers, responder))
	session.AddHandlerOnce(func(s *discordgo.Session, _ *discordgo.Ready) {
		registerCommands(s)
	})

	must(session.Open(), "opening Discord gateway")
	defer session.Close()

	var poster = discord.NewRest(session)
	aoc, err := scheduler.NewAoCScheduler(client, poster)
	must(err, "building advent of code scheduler")

	var schedulers = []interface {
		Start(context.Context)
		Stop()
	}{
		scheduler.NewChallengeScheduler(client, poster, squadsService),
		scheduler.NewQuestScheduler(client, poster, squadsService),
		scheduler.NewMessageScheduler(client, poster, squadsService),
		scheduler.NewRepeatingScheduler(client, poster),
		aoc,
	}
	for _, s := range schedulers {
		s.Start(ctx)
	}
	// Shutdown runs in reverse of startup: stop producing work first.
	defer func() {
		for i := len(schedulers) - 1; i >= 0; i-- {
			schedulers[i].Stop()
		}
	}()

	var httpServer = serveMetrics(bytesService, squadsService)
	defer func() {
		var shutdownCtx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	log.WithFields(log.Fields{
		"api":   Config.API.BaseURL,
		"cache": cacheBackend,
		"port":  Config.Metrics.Port,
	}).Info("smarter-bot is serving")

	var signalCh = make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGTERM, syscall.SIGINT)
	var sig = <-signalCh
	log.WithField("signal", sig).Info("caught signal, shutting down")

	return nil
}

// healthChecker is the slice of a service the health endpoint needs.
type healthChecker interface {
	HealthCheck(ctx context.Context) service.Health
}

// serveMetrics exposes /metrics and /healthz on the metrics port.
func serveMetrics(services ...healthChecker) *http.Server {
	var mux = http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		var ctx, cancel = context.WithTimeout(r.Context(), 10*time.Second)
		defer cancel()

		var healthy = true
		var healths []service.Health
		for _, s := range services {
			var h = s.HealthCheck(ctx)
			healthy = healthy && h.Healthy
			healths = append(healths, h)
		}
		w.Header().Set("Content-Type", "application/json")
		if !healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(healths)
	})

	var server = &http.Server{
		Addr:    fmt.Sprintf(":%d", Config.Metrics.Port),
		Handler: mux,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithField("err", err).Error("metrics server failed")
		}
	}()
	return server
}

// registerCommands installs the "Send Bytes" user context-menu command.
func registerCommands(session *discordgo.Session) {
	var _, err = session.ApplicationCommandCreate(
		session.State.User.ID,
		Config.Discord.GuildID,
		&discordgo.ApplicationCommand{
			Name: "Send Bytes",
			Type: discordgo.UserApplicationCommand,
		})
	if err != nil {
		log.WithField("err", err).Error("failed to register Send Bytes command")
	}
}

// makeInteractionHandler routes interactions: the user command opens
// the transfer modal; the modal submit runs the transfer.
func makeInteractionHandler(transfers *views.TransferHandler, responder views.Responder) func(*discordgo.Session, *discordgo.InteractionCreate) {
	return func(_ *discordgo.Session, i *discordgo.InteractionCreate) {
		var ctx, cancel = context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		switch i.Type {
		case discordgo.InteractionApplicationCommand:
			var data = i.ApplicationCommandData()
			if data.Name != "Send Bytes" {
				return
			}
			if err := responder.Respond(i.Interaction, views.TransferModal(data.TargetID)); err != nil {
				log.WithField("err", err).Error("failed to open transfer modal")
			}
		case discordgo.InteractionModalSubmit:
			if !views.IsTransferModal(i.ModalSubmitData().CustomID) {
				return
			}
			if err := transfers.HandleSubmit(ctx, responder, i.Interaction); err != nil {
				log.WithField("err", err).Error("transfer modal handling failed")
			}
		}
	}
}

func initLog() {
	if Config.Log.Format == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	}
	if level, err := log.ParseLevel(Config.Log.Level); err == nil {
		log.SetLevel(level)
	}
}

func must(err error, msg string) {
	if err != nil {
		log.WithField("err", err).Fatal(msg)
	}
}

func main() {
	var parser = flags.NewParser(Config, flags.Default)

	_, _ = parser.AddCommand("serve", "Serve the community bot", `
Serve the Discord bot and its schedulers with the provided
configuration, until signaled to exit (via SIGTERM).
`, &cmdServe{})

	if _, err := parser.Parse(); err != nil {
		os.Exit(1)
	}
}
