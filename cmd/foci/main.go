// Command foci trains the foci classifier on a dataset split into train,
// val and test directories, then reports the test loss.
package main

import (
	"flag"
	"net/http"
	"os"

	"github.com/nvr-ai/go-foci/checkpoint"
	"github.com/nvr-ai/go-foci/classifier"
	"github.com/nvr-ai/go-foci/config"
	"github.com/nvr-ai/go-foci/dataset"
	"github.com/nvr-ai/go-foci/metrics"
	"github.com/nvr-ai/go-foci/trainer"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	var (
		configPath  string
		logLevel    string
		metricsAddr string
		resume      bool
	)
	flag.StringVar(&configPath, "config", "", "Path to the YAML run configuration")
	flag.StringVar(&logLevel, "log-level", "", "Override the configured log level")
	flag.StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :6021")
	flag.BoolVar(&resume, "resume", false, "Load the classifier checkpoint from save_path before training")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	params := config.DefaultParams()
	if configPath != "" {
		var err error
		if params, err = config.Load(configPath); err != nil {
			log.Fatal().Err(err).Str("path", configPath).Msg("failed to load configuration")
		}
	}
	if logLevel != "" {
		params.LogLevel = logLevel
	}
	level, err := zerolog.ParseLevel(params.LogLevel)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid log level")
	}
	zerolog.SetGlobalLevel(level)

	if metricsAddr != "" {
		http.Handle("/metrics", promhttp.Handler())
		go func() {
			if err := http.ListenAndServe(metricsAddr, nil); err != nil {
				log.Error().Err(err).Str("addr", metricsAddr).Msg("metrics server stopped")
			}
		}()
	}

	if err := run(params, resume); err != nil {
		log.Fatal().Err(err).Msg("training failed")
	}
}

func run(params config.Params, resume bool) error {
	c := params.Classifier
	load := func(dir string) (dataset.SliceLoader, error) {
		return dataset.LoadResized(dir, c.BatchSize, c.Width, c.Height)
	}
	train, err := load(params.Data.Train)
	if err != nil {
		return errors.Wrap(err, "loading training split")
	}
	var val, test dataset.SliceLoader
	if params.Data.Val != "" {
		if val, err = load(params.Data.Val); err != nil {
			return errors.Wrap(err, "loading validation split")
		}
	}
	if params.Data.Test != "" {
		if test, err = load(params.Data.Test); err != nil {
			return errors.Wrap(err, "loading test split")
		}
	}
	log.Info().Int("train", train.Len()).Int("val", val.Len()).Int("test", test.Len()).Msg("loaded batches")

	net, err := classifier.New(params.Classifier)
	if err != nil {
		return err
	}
	if resume {
		if err := checkpoint.Restore(params.SavePath, "classifier", net); err != nil {
			return err
		}
		log.Info().Str("path", checkpoint.Path(params.SavePath, "classifier")).Msg("resumed classifier")
	}
	log.Info().Str("classifier", net.String()).Msg("built model")

	recorder, err := metrics.New(prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}
	model, err := trainer.New(params, net, trainer.WithRecorder(recorder))
	if err != nil {
		return err
	}
	defer model.Close()

	if err := trainer.Fit(model, train, val, params.Epochs); err != nil {
		return err
	}
	log.Info().Float64("best_val_loss", model.Best().Value()).Msg("training finished")

	if test.Len() == 0 {
		return nil
	}
	loss, err := trainer.Evaluate(model, test)
	if err != nil {
		return err
	}
	log.Info().Float64("test_loss", loss).Msg("evaluation finished")
	return nil
}
