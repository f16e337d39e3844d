package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/vearne/framereplay/biz"
	"github.com/vearne/framereplay/config"
	"github.com/vearne/framereplay/consts"
	"github.com/vearne/framereplay/frame"
	slog "github.com/vearne/simplelog"
)

const banner string = `
   ____                                         __
  / __/______ ___ _  ___ ________ ___  / /__ ___ __
 / _// __/ _ '/  ' \/ -_) __/ -_) _ \/ / _ '/ // /
/_/ /_/  \_,_/_/_/_/\__/_/  \__/ .__/_/\_,_/\_, /
                              /_/          /___/
`

func main() {
	fmt.Print(banner)

	adjustLogLevel()

	settings, err := config.Load()
	if err != nil {
		slog.Fatal("load settings error:%v", err)
	}
	slog.Info("Version:%v, BuildTime:%v, GitTag:%v", consts.Version, consts.BuildTime, consts.GitTag)
	printSettings(settings)
	slog.Info("captured frames:%v, total bytes:%v", frame.Count(), frame.TotalSize())

	plugins, err := biz.NewPlugins(settings)
	if err != nil {
		slog.Fatal("create plugins error:%v", err)
	}
	slog.Info("plugins:%v", plugins)

	emitter := biz.NewEmitter(plugins, biz.NewRateLimit(settings.RateLimitQPS))
	defer emitter.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGINT)
	defer stop()

	if settings.ExitAfter > 0 {
		slog.Info("Running framereplay for a duration of %s", settings.ExitAfter)
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, settings.ExitAfter)
		defer cancel()
	}

	replayer := biz.NewReplayer(settings, biz.WithRecorder(emitter))
	slog.Info("session:%v", replayer.SessionID())
	// errors were already logged by the replayer and never stop the process
	if err = replayer.Run(ctx); err != nil {
		slog.Debug("replay finished, state:%v, error:%v", replayer.State(), err)
	}
	if emitter.Dropped() > 0 {
		slog.Info("rate limited inbound records:%v", emitter.Dropped())
	}
}

func printSettings(settings *config.AppSettings) {
	slog.Info("SERVER_HOST, %v", settings.ServerHost)
	slog.Info("SERVER_PORT, %v", settings.ServerPort)
	slog.Info("FRAME_DELAY_MS, %v", settings.FrameDelay().Milliseconds())
	slog.Info("SEND_ON_CONNECT, %v", bool(settings.SendOnConnect))
	slog.Info("KEEP_ALIVE_PERIOD, %v", settings.KeepAlivePeriod)
	slog.Info("WRITE_TIMEOUT, %v", settings.WriteTimeout)
	slog.Info("EXIT_AFTER, %v", settings.ExitAfter)

	slog.Info("OUTPUT_STDOUT, %v", settings.OutputStdout)
	slog.Info("OUTPUT_FILE_DIRECTORY, %v", settings.OutputFileDir)
	slog.Info("OUTPUT_PCAP, %v", settings.OutputPcap)
	slog.Info("CODEC, %v", settings.Codec)
	slog.Info("RATE_LIMIT_QPS, %v", settings.RateLimitQPS)
}

func adjustLogLevel() {
	logLevel := os.Getenv("SIMPLE_LOG_LEVEL")
	if len(logLevel) > 0 {
		return
	}
	slog.SetLevel(slog.InfoLevel)
}
